package stateres

import (
	"github.com/hashicorp/go-set/v3"
	"github.com/oleiade/lane/v2"
)

// AuthChain returns the full auth chain of the given events, which includes
// the events themselves. The chain is walked depth first so that an event
// shared by several branches is only fetched once. Every event in the chain
// must be in the store.
func AuthChain(store EventStore, eventIDs ...string) (*set.Set[string], error) {
	return walkAuthEvents(store, eventIDs, nil)
}

// ConflictedStateSubgraph returns the events that lie on a path of auth
// events from one conflicted state event to another, the conflicted state
// events included.
// https://spec.matrix.org/v1.16/rooms/v12/#state-resolution
func ConflictedStateSubgraph(store EventStore, conflicted ConflictedStateSet) (*set.Set[string], error) {
	conflictedIDs := conflicted.EventIDs()

	// Walk down the auth events from every conflicted event, remembering
	// which events cite each event that we visit.
	citedBy := make(map[string][]string)
	_, err := walkAuthEvents(store, conflictedIDs, func(eventID, authEventID string) {
		citedBy[authEventID] = append(citedBy[authEventID], eventID)
	})
	if err != nil {
		return nil, err
	}

	// An ancestor is on a path between two conflicted events if it can be
	// reached by walking back up from a conflicted event. Only visited events
	// are in citedBy, so the walk never leaves the ancestors.
	subgraph := set.New[string](len(conflictedIDs))
	stack := lane.NewStack(conflictedIDs...)
	for {
		eventID, ok := stack.Pop()
		if !ok {
			break
		}
		if !subgraph.Insert(eventID) {
			continue
		}
		for _, child := range citedBy[eventID] {
			if !subgraph.Contains(child) {
				stack.Push(child)
			}
		}
	}

	return subgraph, nil
}

// walkAuthEvents returns the auth chain of the events, calling edge, if not
// nil, for every auth event reference that it follows.
func walkAuthEvents(store EventStore, eventIDs []string, edge func(eventID, authEventID string)) (*set.Set[string], error) {
	visited := set.New[string](len(eventIDs))
	stack := lane.NewStack(eventIDs...)
	for {
		eventID, ok := stack.Pop()
		if !ok {
			return visited, nil
		}
		if !visited.Insert(eventID) {
			continue
		}
		event, ok := store.Event(eventID)
		if !ok {
			return nil, notFoundError(eventID)
		}
		for _, authEventID := range event.AuthEventIDs() {
			if edge != nil {
				edge(eventID, authEventID)
			}
			if !visited.Contains(authEventID) {
				stack.Push(authEventID)
			}
		}
	}
}
