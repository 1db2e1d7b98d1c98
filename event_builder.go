package stateres

import (
	"encoding/json"
	"fmt"

	"github.com/matrix-org/stateres/spec"
	"github.com/tidwall/sjson"
)

// An EventBuilder is used to build a new event, for example from a test
// fixture describing a room DAG. Events are not hashed or signed so the
// event ID has to be supplied.
type EventBuilder struct {
	// The ID of the event.
	EventID string `json:"event_id"`
	// The user ID of the user sending the event.
	Sender string `json:"sender"`
	// The room ID of the room this event is in.
	RoomID string `json:"room_id"`
	// The type of the event.
	Type string `json:"type"`
	// The state_key of the event if the event is a state event or nil if the event is not a state event.
	StateKey *string `json:"state_key,omitempty"`
	// The events that immediately preceded this event in the room history.
	PrevEvents []string `json:"prev_events"`
	// The events needed to authenticate this event.
	AuthEvents []string `json:"auth_events"`
	// The event ID of the event being redacted if this event is a "m.room.redaction".
	Redacts string `json:"redacts,omitempty"`
	// The depth of the event, This should be one greater than the maximum depth of the previous events.
	// The create event has a depth of 1.
	Depth int64 `json:"depth"`
	// The time the event was created on the origin server.
	OriginServerTS spec.Timestamp `json:"origin_server_ts"`
	// The JSON object for "content" key of the event.
	Content json.RawMessage `json:"content"`
}

// SetContent sets the JSON content key of the event.
func (eb *EventBuilder) SetContent(content interface{}) (err error) {
	eb.Content, err = json.Marshal(content)
	return
}

// JSON returns the event JSON described by the builder.
func (eb *EventBuilder) JSON() ([]byte, error) {
	eventJSON := []byte(`{}`)
	var err error
	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		eventJSON, err = sjson.SetBytes(eventJSON, path, value)
	}

	set("event_id", eb.EventID)
	set("room_id", eb.RoomID)
	set("sender", eb.Sender)
	set("type", eb.Type)
	if eb.StateKey != nil {
		set("state_key", *eb.StateKey)
	}
	set("prev_events", nonNil(eb.PrevEvents))
	set("auth_events", nonNil(eb.AuthEvents))
	if eb.Redacts != "" {
		set("redacts", eb.Redacts)
	}
	set("depth", eb.Depth)
	set("origin_server_ts", uint64(eb.OriginServerTS))
	if err != nil {
		return nil, fmt.Errorf("stateres: failed to build event %s: %w", eb.EventID, err)
	}

	content := eb.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	if eventJSON, err = sjson.SetRawBytes(eventJSON, "content", content); err != nil {
		return nil, fmt.Errorf("stateres: failed to set content of event %s: %w", eb.EventID, err)
	}
	return eventJSON, nil
}

// Build builds the event JSON and parses it back into an Event.
func (eb *EventBuilder) Build(rejected bool) (Event, error) {
	eventJSON, err := eb.JSON()
	if err != nil {
		return nil, err
	}
	return NewEventFromJSON(eventJSON, rejected)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
