package caching

import (
	"testing"
	"time"

	"github.com/matrix-org/stateres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(t *testing.T, eventID string) stateres.Event {
	t.Helper()
	eb := stateres.EventBuilder{
		EventID: eventID,
		Sender:  "@alice:foo",
		RoomID:  "!room:foo",
		Type:    "m.room.message",
	}
	event, err := eb.Build(false)
	require.NoError(t, err)
	return event
}

// countingStore records how often each event is fetched.
type countingStore struct {
	stateres.MapEventStore
	fetches map[string]int
}

func (s *countingStore) Event(eventID string) (stateres.Event, bool) {
	s.fetches[eventID]++
	return s.MapEventStore.Event(eventID)
}

func newTestCache(t *testing.T, events ...stateres.Event) (*EventStore, *countingStore, *prometheus.Registry) {
	t.Helper()
	backing := &countingStore{
		MapEventStore: stateres.NewMapEventStore(events...),
		fetches:       make(map[string]int),
	}
	reg := prometheus.NewRegistry()
	var cfg Config
	cfg.Defaults()
	cfg.Registerer = reg
	cache, err := NewEventStore(backing, cfg)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	return cache, backing, reg
}

func lookupCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "stateres_caching_ristretto_lookups_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEventStoreCachesFetchedEvents(t *testing.T) {
	event := testEvent(t, "$a:foo")
	cache, backing, reg := newTestCache(t, event)

	got, ok := cache.Event("$a:foo")
	require.True(t, ok)
	assert.Equal(t, "$a:foo", got.EventID())
	cache.Wait()

	got, ok = cache.Event("$a:foo")
	require.True(t, ok)
	assert.Equal(t, event, got)

	assert.Equal(t, 1, backing.fetches["$a:foo"])
	assert.Equal(t, float64(1), lookupCount(t, reg, "miss"))
	assert.Equal(t, float64(1), lookupCount(t, reg, "hit"))
}

func TestEventStoreDoesNotCacheMissingEvents(t *testing.T) {
	cache, backing, reg := newTestCache(t)

	_, ok := cache.Event("$missing:foo")
	assert.False(t, ok)
	cache.Wait()

	// The event turns up in the underlying store later.
	backing.Add(testEvent(t, "$missing:foo"))
	got, ok := cache.Event("$missing:foo")
	require.True(t, ok)
	assert.Equal(t, "$missing:foo", got.EventID())

	assert.Equal(t, 2, backing.fetches["$missing:foo"])
	assert.Equal(t, float64(1), lookupCount(t, reg, "not_found"))
}

func TestEventStoreStore(t *testing.T) {
	cache, backing, _ := newTestCache(t)

	cache.Store(testEvent(t, "$primed:foo"))
	cache.Wait()

	got, ok := cache.Event("$primed:foo")
	require.True(t, ok)
	assert.Equal(t, "$primed:foo", got.EventID())
	assert.Zero(t, backing.fetches["$primed:foo"])
}

func TestEventStoreResolvesState(t *testing.T) {
	create := `{"type":"m.room.create","state_key":"","sender":"@alice:foo","room_id":"!room:foo","event_id":"$create:foo","content":{"creator":"@alice:foo"}}`
	event, err := stateres.NewEventFromJSON([]byte(create), false)
	require.NoError(t, err)
	cache, _, _ := newTestCache(t, event)

	stateMap := stateres.StateMap{{EventType: "m.room.create", StateKey: ""}: "$create:foo"}
	resolved, err := stateres.ResolveStateConflictsForRoomVersion(
		t.Context(), stateres.RoomVersionV10, []stateres.StateMap{stateMap, stateMap}, cache,
	)
	require.NoError(t, err)
	assert.Equal(t, stateMap, resolved)
}

func TestNewEventStoreBadConfig(t *testing.T) {
	_, err := NewEventStore(stateres.NewMapEventStore(), Config{MaxCost: 0, NumCounters: 10, MaxAge: time.Second})
	assert.Error(t, err)
}
