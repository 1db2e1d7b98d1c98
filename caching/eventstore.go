// Package caching provides an in-memory cache in front of an event store,
// so that repeated resolutions over the same room do not refetch the same
// auth events.
package caching

import (
	"github.com/dgraph-io/ristretto"
	"github.com/matrix-org/stateres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type costable interface {
	CacheCost() int
}

// EventStore is a stateres.EventStore that remembers the events it fetches
// from the underlying store. Events that cannot be found are not
// remembered. It is safe for concurrent use.
type EventStore struct {
	store   stateres.EventStore
	cache   *ristretto.Cache
	cfg     Config
	lookups *prometheus.CounterVec
}

// NewEventStore wraps the store with a cache configured by cfg.
func NewEventStore(store stateres.EventStore, cfg Config) (*EventStore, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	factory := promauto.With(cfg.Registerer)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "stateres",
		Subsystem: "caching_ristretto",
		Name:      "ratio",
	}, func() float64 {
		return float64(cache.Metrics.Ratio())
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "stateres",
		Subsystem: "caching_ristretto",
		Name:      "cost",
	}, func() float64 {
		return float64(cache.Metrics.CostAdded() - cache.Metrics.CostEvicted())
	})
	lookups := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stateres",
		Subsystem: "caching_ristretto",
		Name:      "lookups_total",
		Help:      "Event lookups by result: hit, miss or not_found.",
	}, []string{"result"})

	logrus.WithFields(logrus.Fields{
		"max_cost":     cfg.MaxCost,
		"num_counters": cfg.NumCounters,
		"max_age":      cfg.MaxAge,
	}).Debug("Created event cache")

	return &EventStore{
		store:   store,
		cache:   cache,
		cfg:     cfg,
		lookups: lookups,
	}, nil
}

// Event returns the cached event, or fetches it from the underlying store.
func (s *EventStore) Event(eventID string) (stateres.Event, bool) {
	if v, ok := s.cache.Get(eventID); ok && v != nil {
		if event, ok := v.(stateres.Event); ok {
			s.lookups.WithLabelValues("hit").Inc()
			return event, true
		}
	}
	event, ok := s.store.Event(eventID)
	if !ok || event == nil {
		s.lookups.WithLabelValues("not_found").Inc()
		return nil, false
	}
	s.lookups.WithLabelValues("miss").Inc()
	s.Store(event)
	return event, true
}

// Store adds the event to the cache without touching the underlying store.
// The cache may decline to hold the event if it is full.
func (s *EventStore) Store(event stateres.Event) {
	s.cache.SetWithTTL(event.EventID(), event, eventCost(event), s.cfg.MaxAge)
}

// Wait blocks until every pending Store is visible to Event.
func (s *EventStore) Wait() {
	s.cache.Wait()
}

// Close stops the cache. The store must not be used afterwards.
func (s *EventStore) Close() {
	s.cache.Close()
}

func eventCost(event stateres.Event) int64 {
	if cv, ok := event.(costable); ok {
		return int64(cv.CacheCost())
	}
	return int64(len(event.EventID()) + len(event.Content()))
}
