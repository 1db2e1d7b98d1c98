package stateres

import (
	"fmt"
)

// ErrorKind classifies a fatal state resolution failure.
type ErrorKind int

const (
	// ErrorKindNotFound means an event required by the algorithm could not
	// be fetched.
	ErrorKindNotFound ErrorKind = iota + 1
	// ErrorKindMissingStateKey means a state event, or an auth event
	// treated as one, has no state key.
	ErrorKindMissingStateKey
	// ErrorKindFetchConflictedStateSubgraphFailed means the conflicted state
	// subgraph was requested and could not be computed.
	ErrorKindFetchConflictedStateSubgraphFailed
	// ErrorKindAuthEvent means an auth-related lookup, such as the sender
	// power level of a power event, failed.
	ErrorKindAuthEvent
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNotFound:
		return "not found"
	case ErrorKindMissingStateKey:
		return "missing state key"
	case ErrorKindFetchConflictedStateSubgraphFailed:
		return "fetch conflicted state subgraph failed"
	case ErrorKindAuthEvent:
		return "auth event"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// A ResolutionError is returned when state resolution cannot complete.
// Authorization failures of individual events are never surfaced this way:
// those events are simply left out of the resolved state.
type ResolutionError struct {
	Kind    ErrorKind
	EventID string
	Message string
}

func (e *ResolutionError) Error() string {
	msg := "stateres: " + e.Kind.String()
	if e.EventID != "" {
		msg += " (event " + e.EventID + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is matches any ResolutionError of the same kind, so that callers can test
// against the sentinel values with errors.Is.
func (e *ResolutionError) Is(target error) bool {
	t, ok := target.(*ResolutionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound                           = &ResolutionError{Kind: ErrorKindNotFound}
	ErrMissingStateKey                    = &ResolutionError{Kind: ErrorKindMissingStateKey}
	ErrFetchConflictedStateSubgraphFailed = &ResolutionError{Kind: ErrorKindFetchConflictedStateSubgraphFailed}
	ErrAuthEvent                          = &ResolutionError{Kind: ErrorKindAuthEvent}
)

func notFoundError(eventID string) error {
	return &ResolutionError{Kind: ErrorKindNotFound, EventID: eventID, Message: "failed to find event"}
}

func missingStateKeyError(eventID string) error {
	return &ResolutionError{Kind: ErrorKindMissingStateKey, EventID: eventID, Message: "state event has no state key"}
}

func authEventError(eventID string, err error) error {
	return &ResolutionError{Kind: ErrorKindAuthEvent, EventID: eventID, Message: err.Error()}
}

type BadJSONError struct {
	err error
}

func (e BadJSONError) Error() string {
	return fmt.Sprintf("stateres: bad JSON: %s", e.err.Error())
}

func (e BadJSONError) Unwrap() error {
	return e.err
}

// UnsupportedRoomVersionError occurs when a room version is not known or
// does not resolve state with the v2 algorithm.
type UnsupportedRoomVersionError struct {
	Version RoomVersion
}

func (e UnsupportedRoomVersionError) Error() string {
	return fmt.Sprintf("stateres: unsupported room version '%s'", e.Version)
}
