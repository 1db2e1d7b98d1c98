package stateres_test

import (
	"errors"
	"testing"

	"github.com/matrix-org/stateres"
	"github.com/matrix-org/stateres/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A linear sequence of common events in a room version 1 room, which uses
// the [id, {hashes}] reference format.
var authChainTestEvents = [][]byte{
	[]byte(`{"auth_events":[],"content":{"creator":"@userid:baba.is.you"},"depth":0,"event_id":"$WCraVpPZe5TtHAqs:baba.is.you","hashes":{"sha256":"EehWNbKy+oDOMC0vIvYl1FekdDxMNuabXKUVzV7DG74"},"origin":"baba.is.you","origin_server_ts":0,"prev_events":[],"prev_state":[],"room_id":"!roomid:baba.is.you","sender":"@userid:baba.is.you","signatures":{"baba.is.you":{"ed25519:auto":"08aF4/bYWKrdGPFdXmZCQU6IrOE1ulpevmWBM3kiShJPAbRbZ6Awk7buWkIxlMF6kX3kb4QpbAlZfHLQgncjCw"}},"state_key":"","type":"m.room.create"}`),
	[]byte(`{"auth_events":[["$WCraVpPZe5TtHAqs:baba.is.you",{"sha256":"gBxQI2xzDLMoyIjkrpCJFBXC5NnrSemepc7SninSARI"}]],"content":{"membership":"join"},"depth":1,"event_id":"$fnwGrQEpiOIUoDU2:baba.is.you","hashes":{"sha256":"DqOjdFgvFQ3V/jvQW2j3ygHL4D+t7/LaIPZ/tHTDZtI"},"origin":"baba.is.you","origin_server_ts":0,"prev_events":[["$WCraVpPZe5TtHAqs:baba.is.you",{"sha256":"gBxQI2xzDLMoyIjkrpCJFBXC5NnrSemepc7SninSARI"}]],"prev_state":[],"room_id":"!roomid:baba.is.you","sender":"@userid:baba.is.you","signatures":{"baba.is.you":{"ed25519:auto":"qBWLb42zicQVsbh333YrcKpHfKokcUOM/ytldGlrgSdXqDEDDxvpcFlfadYnyvj3Z/GjA2XZkqKHanNEh575Bw"}},"state_key":"@userid:baba.is.you","type":"m.room.member"}`),
	[]byte(`{"auth_events":[["$WCraVpPZe5TtHAqs:baba.is.you",{"sha256":"gBxQI2xzDLMoyIjkrpCJFBXC5NnrSemepc7SninSARI"}],["$fnwGrQEpiOIUoDU2:baba.is.you",{"sha256":"gUr26K5Tt7GQlNs8BlUup92gOzAZHbT8WNEobkrEIqk"}]],"content":{"body":"Test Message"},"depth":2,"event_id":"$xOJZshi3NeKKJiCf:baba.is.you","hashes":{"sha256":"lu5fF5HE090AXdu/+NpJ/RjRVRk/2tWCUozUc5t7Ru4"},"origin":"baba.is.you","origin_server_ts":0,"prev_events":[["$fnwGrQEpiOIUoDU2:baba.is.you",{"sha256":"gUr26K5Tt7GQlNs8BlUup92gOzAZHbT8WNEobkrEIqk"}]],"room_id":"!roomid:baba.is.you","sender":"@userid:baba.is.you","signatures":{"baba.is.you":{"ed25519:auto":"5KoVSLOBesqH9vciKXDExdu95lKFDtK1I72Hq1GG/UeEsH9jx7wL3V4jGYSKDnX2aLYp/VPiBQje7DFjde+hDQ"}},"type":"m.room.message"}`),
	[]byte(`{"auth_events":[["$WCraVpPZe5TtHAqs:baba.is.you",{"sha256":"gBxQI2xzDLMoyIjkrpCJFBXC5NnrSemepc7SninSARI"}],["$fnwGrQEpiOIUoDU2:baba.is.you",{"sha256":"gUr26K5Tt7GQlNs8BlUup92gOzAZHbT8WNEobkrEIqk"}]],"content":{"body":"Test Message"},"depth":3,"event_id":"$4Kp0G1yWZ6tNpeI7:baba.is.you","hashes":{"sha256":"B+MjcGZRh72iaGOgyNbIxgFkHDJo6NO8NQDgiKDKDBA"},"origin":"baba.is.you","origin_server_ts":0,"prev_events":[["$xOJZshi3NeKKJiCf:baba.is.you",{"sha256":"5PGENImHC863Yz9sO6IJX+bIQthZFI2RMhFZyFy+bC0"}]],"room_id":"!roomid:baba.is.you","sender":"@userid:baba.is.you","signatures":{"baba.is.you":{"ed25519:auto":"rP+Ybp17GPCqQBrTQ3yz+q6PihdaMWvNY3SngV8aDLHv8wdDlH4ULGnjsB+Az7trqYdCE3rZVo9M7Hy5tOObDg"}},"type":"m.room.message"}`),
}

func provideEvents(t *testing.T, events [][]byte) stateres.MapEventStore {
	t.Helper()
	store := stateres.NewMapEventStore()
	for _, eventJSON := range events {
		event, err := stateres.NewEventFromJSON(eventJSON, false)
		require.NoError(t, err)
		store.Add(event)
	}
	return store
}

func TestAuthChain(t *testing.T) {
	store := provideEvents(t, authChainTestEvents)
	chain, err := stateres.AuthChain(store, "$4Kp0G1yWZ6tNpeI7:baba.is.you")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"$4Kp0G1yWZ6tNpeI7:baba.is.you",
		"$WCraVpPZe5TtHAqs:baba.is.you",
		"$fnwGrQEpiOIUoDU2:baba.is.you",
	}, chain.Slice())
}

func TestAuthChainOfSeveralEvents(t *testing.T) {
	store := provideEvents(t, authChainTestEvents)
	chain, err := stateres.AuthChain(store, "$fnwGrQEpiOIUoDU2:baba.is.you", "$xOJZshi3NeKKJiCf:baba.is.you")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"$WCraVpPZe5TtHAqs:baba.is.you",
		"$fnwGrQEpiOIUoDU2:baba.is.you",
		"$xOJZshi3NeKKJiCf:baba.is.you",
	}, chain.Slice())
}

// The membership event is missing, so the chain cannot be completed.
func TestAuthChainMissing(t *testing.T) {
	store := provideEvents(t, [][]byte{authChainTestEvents[0], authChainTestEvents[2], authChainTestEvents[3]})
	_, err := stateres.AuthChain(store, "$4Kp0G1yWZ6tNpeI7:baba.is.you")
	require.Error(t, err)
	assert.True(t, errors.Is(err, stateres.ErrNotFound))

	var resErr *stateres.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "$fnwGrQEpiOIUoDU2:baba.is.you", resErr.EventID)
}

func buildChainEvent(t *testing.T, eventID string, authEvents ...string) stateres.Event {
	t.Helper()
	stateKey := ""
	eb := stateres.EventBuilder{
		EventID:    eventID,
		Sender:     "@alice:foo",
		RoomID:     "!room:foo",
		Type:       spec.MRoomTopic,
		StateKey:   &stateKey,
		AuthEvents: authEvents,
	}
	event, err := eb.Build(false)
	require.NoError(t, err)
	return event
}

func TestConflictedStateSubgraph(t *testing.T) {
	// $a <- $b <- $c <- $d, with $e and $f hanging off the chain.
	store := stateres.NewMapEventStore(
		buildChainEvent(t, "$a"),
		buildChainEvent(t, "$b", "$a"),
		buildChainEvent(t, "$c", "$b"),
		buildChainEvent(t, "$d", "$c"),
		buildChainEvent(t, "$e", "$a"),
		buildChainEvent(t, "$f", "$b"),
	)
	conflicted := stateres.ConflictedStateSet{
		{EventType: spec.MRoomTopic, StateKey: ""}: {"$b", "$d"},
	}

	subgraph, err := stateres.ConflictedStateSubgraph(store, conflicted)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"$b", "$c", "$d"}, subgraph.Slice())
}

func TestConflictedStateSubgraphUnrelatedEvents(t *testing.T) {
	store := stateres.NewMapEventStore(
		buildChainEvent(t, "$a"),
		buildChainEvent(t, "$b", "$a"),
		buildChainEvent(t, "$c", "$a"),
	)
	conflicted := stateres.ConflictedStateSet{
		{EventType: spec.MRoomTopic, StateKey: ""}: {"$b", "$c"},
	}

	subgraph, err := stateres.ConflictedStateSubgraph(store, conflicted)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"$b", "$c"}, subgraph.Slice())
}

func TestConflictedStateSubgraphMissingEvent(t *testing.T) {
	store := stateres.NewMapEventStore(
		buildChainEvent(t, "$b", "$a"),
	)
	conflicted := stateres.ConflictedStateSet{
		{EventType: spec.MRoomTopic, StateKey: ""}: {"$b"},
	}

	_, err := stateres.ConflictedStateSubgraph(store, conflicted)
	assert.True(t, errors.Is(err, stateres.ErrNotFound))
}
