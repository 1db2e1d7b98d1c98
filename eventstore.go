package stateres

// An EventStore returns the event with the given ID, or false if the event
// is unknown. Implementations must be safe to call repeatedly with the same
// ID and must return the same event each time.
type EventStore interface {
	Event(eventID string) (Event, bool)
}

// EventStoreFunc adapts a function to an EventStore.
type EventStoreFunc func(eventID string) (Event, bool)

func (f EventStoreFunc) Event(eventID string) (Event, bool) {
	return f(eventID)
}

// MapEventStore is an in-memory EventStore keyed by event ID. It is
// read-only once populated and may be shared between goroutines from then
// on.
type MapEventStore map[string]Event

// NewMapEventStore returns a store holding the given events.
func NewMapEventStore(events ...Event) MapEventStore {
	store := make(MapEventStore, len(events))
	store.Add(events...)
	return store
}

// Add inserts events into the store, replacing any with the same ID.
func (s MapEventStore) Add(events ...Event) {
	for _, event := range events {
		s[event.EventID()] = event
	}
}

func (s MapEventStore) Event(eventID string) (Event, bool) {
	event, ok := s[eventID]
	return event, ok && event != nil
}
