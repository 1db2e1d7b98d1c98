package main

import (
	"fmt"
	"os"

	"github.com/matrix-org/stateres"
	"github.com/matrix-org/stateres/spec"
	"gopkg.in/yaml.v2"
)

// A fixture describes a room: its events, and the state at each of the
// forks that are to be resolved.
type fixture struct {
	RoomVersion string         `yaml:"room_version"`
	RoomID      string         `yaml:"room_id"`
	Events      []fixtureEvent `yaml:"events"`
	// Each state map is listed as the IDs of the state events in it.
	StateMaps [][]string `yaml:"state_maps"`
}

type fixtureEvent struct {
	ID             string   `yaml:"id"`
	Type           string   `yaml:"type"`
	Sender         string   `yaml:"sender"`
	StateKey       *string  `yaml:"state_key"`
	OriginServerTS uint64   `yaml:"origin_server_ts"`
	Content        string   `yaml:"content"`
	AuthEvents     []string `yaml:"auth_events"`
	PrevEvents     []string `yaml:"prev_events"`
	Rejected       bool     `yaml:"rejected"`
}

func loadFixture(fixturePath string) (*fixture, error) {
	fixtureData, err := os.ReadFile(fixturePath)
	if err != nil {
		return nil, err
	}
	return parseFixture(fixtureData)
}

func parseFixture(fixtureData []byte) (*fixture, error) {
	var f fixture
	if err := yaml.Unmarshal(fixtureData, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if f.RoomID == "" {
		return nil, fmt.Errorf("fixture has no room_id")
	}
	if len(f.StateMaps) == 0 {
		return nil, fmt.Errorf("fixture has no state_maps")
	}
	return &f, nil
}

// build turns the fixture into events and state maps.
func (f *fixture) build() (stateres.MapEventStore, []stateres.StateMap, error) {
	store := stateres.NewMapEventStore()
	for i, fe := range f.Events {
		if fe.ID == "" {
			return nil, nil, fmt.Errorf("event %d has no id", i)
		}
		if _, ok := store[fe.ID]; ok {
			return nil, nil, fmt.Errorf("event %s is listed twice", fe.ID)
		}
		eb := stateres.EventBuilder{
			EventID:        fe.ID,
			Sender:         fe.Sender,
			RoomID:         f.RoomID,
			Type:           fe.Type,
			StateKey:       fe.StateKey,
			PrevEvents:     fe.PrevEvents,
			AuthEvents:     fe.AuthEvents,
			Depth:          int64(i + 1),
			OriginServerTS: spec.Timestamp(fe.OriginServerTS),
			Content:        []byte(fe.Content),
		}
		event, err := eb.Build(fe.Rejected)
		if err != nil {
			return nil, nil, fmt.Errorf("event %s: %w", fe.ID, err)
		}
		store.Add(event)
	}

	stateMaps := make([]stateres.StateMap, 0, len(f.StateMaps))
	for i, eventIDs := range f.StateMaps {
		stateMap := make(stateres.StateMap, len(eventIDs))
		for _, eventID := range eventIDs {
			event, ok := store.Event(eventID)
			if !ok {
				return nil, nil, fmt.Errorf("state map %d: unknown event %s", i, eventID)
			}
			key, ok := stateres.StateKeyTupleFor(event)
			if !ok {
				return nil, nil, fmt.Errorf("state map %d: event %s is not a state event", i, eventID)
			}
			if other, ok := stateMap[key]; ok {
				return nil, nil, fmt.Errorf("state map %d: events %s and %s both have key %s", i, other, eventID, key)
			}
			stateMap[key] = eventID
		}
		stateMaps = append(stateMaps, stateMap)
	}
	return store, stateMaps, nil
}
