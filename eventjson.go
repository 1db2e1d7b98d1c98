package stateres

import (
	"encoding/json"
	"fmt"

	"github.com/matrix-org/stateres/spec"
	"github.com/tidwall/gjson"
)

type eventFields struct {
	EventID        string          `json:"event_id"`
	RoomID         string          `json:"room_id"`
	Sender         string          `json:"sender"`
	Type           string          `json:"type"`
	StateKey       *string         `json:"state_key"`
	Content        json.RawMessage `json:"content"`
	Redacts        string          `json:"redacts"`
	OriginServerTS spec.Timestamp  `json:"origin_server_ts"`
}

// jsonEvent is an Event backed by its federation JSON.
type jsonEvent struct {
	eventJSON []byte
	rejected  bool

	eventFields

	prevEvents []string
	authEvents []string
}

// NewEventFromJSON parses federation event JSON into an Event. Both the room
// version 1/2 reference format for auth_events and prev_events
// ([[id, {hashes}], ...]) and the later plain ID list format are accepted.
// The rejected flag is carried through to Event.Rejected.
func NewEventFromJSON(eventJSON []byte, rejected bool) (Event, error) {
	if !gjson.ValidBytes(eventJSON) {
		return nil, BadJSONError{fmt.Errorf("event JSON is not valid")}
	}
	result := &jsonEvent{
		eventJSON: eventJSON,
		rejected:  rejected,
	}
	if err := json.Unmarshal(eventJSON, &result.eventFields); err != nil {
		return nil, BadJSONError{err}
	}

	for _, required := range []struct{ field, value string }{
		{"event_id", result.eventFields.EventID},
		{"room_id", result.eventFields.RoomID},
		{"sender", result.eventFields.Sender},
		{"type", result.eventFields.Type},
	} {
		if required.value == "" {
			return nil, BadJSONError{fmt.Errorf("missing or empty %q", required.field)}
		}
	}
	if len(result.eventFields.Content) == 0 || string(result.eventFields.Content) == "null" {
		result.eventFields.Content = json.RawMessage("{}")
	}

	var err error
	if result.prevEvents, err = eventReferenceIDs(eventJSON, "prev_events"); err != nil {
		return nil, BadJSONError{err}
	}
	if result.authEvents, err = eventReferenceIDs(eventJSON, "auth_events"); err != nil {
		return nil, BadJSONError{err}
	}
	return result, nil
}

// eventReferenceIDs reads the event IDs out of a list of event references,
// which is either [id, ...] or [[id, {hashes}], ...].
func eventReferenceIDs(eventJSON []byte, key string) ([]string, error) {
	refs := gjson.GetBytes(eventJSON, key)
	if !refs.Exists() || refs.Type == gjson.Null {
		return nil, nil
	}
	if !refs.IsArray() {
		return nil, fmt.Errorf("%q is not an array", key)
	}
	var ids []string
	var err error
	refs.ForEach(func(_, ref gjson.Result) bool {
		switch {
		case ref.Type == gjson.String:
			ids = append(ids, ref.Str)
		case ref.IsArray() && ref.Get("0").Type == gjson.String:
			ids = append(ids, ref.Get("0").Str)
		default:
			err = fmt.Errorf("%q contains an invalid event reference: %s", key, ref.Raw)
			return false
		}
		return true
	})
	return ids, err
}

// MarshalJSON implements json.Marshaller
func (e *jsonEvent) MarshalJSON() ([]byte, error) {
	if e.eventJSON == nil {
		return nil, fmt.Errorf("stateres: cannot serialise uninitialised Event")
	}
	return e.eventJSON, nil
}

// CacheCost is the size of the event JSON, used to weigh the event in
// caches.
func (e *jsonEvent) CacheCost() int {
	return len(e.eventJSON)
}

func (e *jsonEvent) EventID() string {
	return e.eventFields.EventID
}

func (e *jsonEvent) RoomID() string {
	return e.eventFields.RoomID
}

func (e *jsonEvent) Type() string {
	return e.eventFields.Type
}

func (e *jsonEvent) StateKey() *string {
	return e.eventFields.StateKey
}

func (e *jsonEvent) StateKeyEquals(s string) bool {
	if e.eventFields.StateKey == nil {
		return false
	}
	return *e.eventFields.StateKey == s
}

func (e *jsonEvent) Sender() string {
	return e.eventFields.Sender
}

func (e *jsonEvent) OriginServerTS() spec.Timestamp {
	return e.eventFields.OriginServerTS
}

func (e *jsonEvent) AuthEventIDs() []string {
	return e.authEvents
}

func (e *jsonEvent) PrevEventIDs() []string {
	return e.prevEvents
}

func (e *jsonEvent) Content() []byte {
	return e.eventFields.Content
}

func (e *jsonEvent) Redacts() string {
	if r := e.eventFields.Redacts; r != "" {
		return r
	}
	// Room version 11 moved redacts into the content.
	return gjson.GetBytes(e.eventFields.Content, "redacts").Str
}

func (e *jsonEvent) Rejected() bool {
	return e.rejected
}
