/* Copyright 2016-2017 Vector Creations Ltd
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package stateres

import (
	"fmt"
	"sort"

	"github.com/matrix-org/stateres/spec"
)

// An Event is a matrix room event as seen by state resolution. Only the
// fields that the resolution algorithm and the authorization rules read are
// exposed.
type Event interface {
	EventID() string
	RoomID() string
	Type() string
	// StateKey returns nil for message events.
	StateKey() *string
	StateKeyEquals(s string) bool
	Sender() string
	OriginServerTS() spec.Timestamp
	AuthEventIDs() []string
	PrevEventIDs() []string
	// Content returns the raw JSON of the event content.
	Content() []byte
	// Redacts returns the event ID targeted by an m.room.redaction, or "".
	Redacts() string
	// Rejected reports whether the event failed authorization on receipt.
	Rejected() bool
}

// A StateKeyTuple is the combination of an event type and an event state key.
// It is often used as a key in maps.
type StateKeyTuple struct {
	// The "type" key of a matrix event.
	EventType string
	// The "state_key" of a matrix event.
	// The empty string is a legitimate value for the "state_key" in matrix
	// so take care to initialise this field lest you accidentally request a
	// "state_key" with the go default of the empty string.
	StateKey string
}

func (t StateKeyTuple) String() string {
	return fmt.Sprintf("(%s, %q)", t.EventType, t.StateKey)
}

// less orders tuples by type, then by state key.
func (t StateKeyTuple) less(other StateKeyTuple) bool {
	if t.EventType != other.EventType {
		return t.EventType < other.EventType
	}
	return t.StateKey < other.StateKey
}

// StateKeyTupleFor returns the tuple an event is keyed by in room state, or
// false if the event is not a state event.
func StateKeyTupleFor(event Event) (StateKeyTuple, bool) {
	stateKey := event.StateKey()
	if stateKey == nil {
		return StateKeyTuple{}, false
	}
	return StateKeyTuple{EventType: event.Type(), StateKey: *stateKey}, true
}

// A StateMap is a snapshot of room state: one event ID per state key tuple.
type StateMap map[StateKeyTuple]string

// Copy returns a shallow copy of the state map.
func (s StateMap) Copy() StateMap {
	result := make(StateMap, len(s))
	for k, v := range s {
		result[k] = v
	}
	return result
}

// Keys returns the tuples in the state map, sorted by type then state key.
func (s StateMap) Keys() []StateKeyTuple {
	keys := make([]StateKeyTuple, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].less(keys[j])
	})
	return keys
}

// EventIDs returns the event IDs in the state map, in the order of Keys.
func (s StateMap) EventIDs() []string {
	keys := s.Keys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, s[k])
	}
	return ids
}

// A ConflictedStateSet holds, for every state key tuple on which the forks
// disagree, the event IDs that the forks assign to it.
type ConflictedStateSet map[StateKeyTuple][]string

// EventIDs returns every event ID in the conflicted set, deduplicated and
// sorted.
func (c ConflictedStateSet) EventIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, values := range c {
		for _, id := range values {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
