// Copyright 2020 The Matrix.org Foundation C.I.C.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stateres

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/stateres/spec"
	"github.com/matrix-org/util"
	"github.com/oleiade/lane/v2"
	"github.com/sirupsen/logrus"
)

// A ConflictedStateSubgraphFetcher returns the conflicted state subgraph of
// a conflicted state set, or false if it could not be computed.
type ConflictedStateSubgraphFetcher func(conflicted ConflictedStateSet) (*set.Set[string], bool)

type stateResolverV2 struct {
	logger     *logrus.Entry
	authRules  AuthorizationRules
	store      EventStore
	authorizer Authorizer
	// The creators of the room, worked out once from the first create event
	// found while ranking power events. nil until then.
	creators *set.Set[string]
	// The sender power level of every power event in the graph.
	powerLevels map[string]UserPowerLevel
}

// ResolveStateConflictsV2 takes the state of several forks of a room and
// resolves them into a single state using the second version of the state
// resolution algorithm.
// https://spec.matrix.org/v1.16/rooms/v2/#state-resolution
//
// authChains holds the full auth chain of each of the state maps. The
// subgraph fetcher is only called if the state resolution rules consider
// the conflicted state subgraph. Events that fail authorization are left out
// of the resolved state; an error is only returned if the inputs are not
// well-defined, e.g. when a required event cannot be fetched.
func ResolveStateConflictsV2(
	ctx context.Context,
	authRules AuthorizationRules,
	stateResRules StateResolutionV2Rules,
	stateMaps []StateMap,
	authChains []*set.Set[string],
	store EventStore,
	subgraphFetcher ConflictedStateSubgraphFetcher,
	authorizer Authorizer,
) (StateMap, error) {
	logger := util.GetLogger(ctx)
	logger.Info("state resolution starting")

	unconflicted, conflicted := SplitConflictedStateSet(stateMaps)
	logger.WithField("count", len(unconflicted)).Info("unconflicted events")
	if len(conflicted) == 0 {
		logger.Info("no conflicted state found")
		return unconflicted, nil
	}
	logger.WithField("count", len(conflicted)).Info("conflicted events")

	var subgraph *set.Set[string]
	if stateResRules.ConsiderConflictedStateSubgraph {
		var ok bool
		if subgraphFetcher != nil {
			subgraph, ok = subgraphFetcher(conflicted)
		}
		if !ok || subgraph == nil {
			return nil, &ResolutionError{
				Kind:    ErrorKindFetchConflictedStateSubgraphFailed,
				Message: "the conflicted state subgraph is required but was not supplied",
			}
		}
		logger.WithField("count", subgraph.Size()).Info("events in conflicted state subgraph")
	}

	r := &stateResolverV2{
		logger:      logger,
		authRules:   authRules,
		store:       store,
		authorizer:  authorizer,
		powerLevels: make(map[string]UserPowerLevel),
	}

	// The full conflicted set is the union of the auth difference, the
	// conflicted state set and, since v12, the conflicted state subgraph.
	// Events that we cannot fetch are not honoured.
	fullConflictedSet := set.New[string](0)
	candidates := AuthDifference(authChains).Slice()
	candidates = append(candidates, conflicted.EventIDs()...)
	if subgraph != nil {
		candidates = append(candidates, subgraph.Slice()...)
	}
	for _, eventID := range candidates {
		if _, ok := store.Event(eventID); ok {
			fullConflictedSet.Insert(eventID)
		}
	}
	logger.WithField("count", fullConflictedSet.Size()).Info("full conflicted set")

	// Select the power events in the full conflicted set, enlarge the
	// selection with the parts of their auth chains that are also in the
	// full conflicted set and sort it by the reverse topological power
	// ordering.
	var powerEventIDs []string
	for eventID := range fullConflictedSet.Items() {
		if event, ok := store.Event(eventID); ok && IsPowerEvent(event) {
			powerEventIDs = append(powerEventIDs, eventID)
		}
	}
	sortedPowerEvents, err := r.sortPowerEvents(powerEventIDs, fullConflictedSet)
	if err != nil {
		return nil, err
	}
	logger.WithField("count", len(sortedPowerEvents)).Debug("power events")

	// Since v12 the first pass of the iterative auth checks starts from an
	// empty state rather than from the unconflicted state.
	initialState := unconflicted.Copy()
	if stateResRules.BeginIterativeAuthChecksWithEmptyStateMap {
		initialState = StateMap{}
	}
	partiallyResolved, err := r.iterativeAuthChecks(sortedPowerEvents, initialState)
	if err != nil {
		return nil, err
	}
	logger.WithField("count", len(partiallyResolved)).Debug("resolved power events")

	// Every event that wasn't picked as a power event is ordered by the
	// mainline of the partially resolved power levels event.
	sortedPowerEventSet := set.From(sortedPowerEvents)
	var remaining []string
	for eventID := range fullConflictedSet.Items() {
		if !sortedPowerEventSet.Contains(eventID) {
			remaining = append(remaining, eventID)
		}
	}
	logger.WithField("count", len(remaining)).Debug("events left to resolve")

	powerLevelsID := partiallyResolved[StateKeyTuple{spec.MRoomPowerLevels, ""}]
	sortedRemaining, err := r.mainlineSort(remaining, powerLevelsID)
	if err != nil {
		return nil, err
	}

	resolved, err := r.iterativeAuthChecks(sortedRemaining, partiallyResolved)
	if err != nil {
		return nil, err
	}

	// Unconflicted state always wins.
	for key, eventID := range unconflicted {
		resolved[key] = eventID
	}

	logger.WithField("count", len(resolved)).Info("state resolution finished")
	return resolved, nil
}

// ResolveStateConflictsForRoomVersion resolves the given forks using the
// rules of the room version. The auth chains and, where required, the
// conflicted state subgraph are computed from the store, and the events are
// authorized with a RoomAuthorizer.
func ResolveStateConflictsForRoomVersion(
	ctx context.Context,
	roomVersion RoomVersion,
	stateMaps []StateMap,
	store EventStore,
) (StateMap, error) {
	rules, err := roomVersion.Rules()
	if err != nil {
		return nil, err
	}
	authChains := make([]*set.Set[string], 0, len(stateMaps))
	for _, stateMap := range stateMaps {
		authChain, err := AuthChain(store, stateMap.EventIDs()...)
		if err != nil {
			return nil, fmt.Errorf("AuthChain: %w", err)
		}
		authChains = append(authChains, authChain)
	}
	subgraphFetcher := func(conflicted ConflictedStateSet) (*set.Set[string], bool) {
		subgraph, err := ConflictedStateSubgraph(store, conflicted)
		if err != nil {
			util.GetLogger(ctx).WithError(err).Warn("Failed to compute the conflicted state subgraph")
			return nil, false
		}
		return subgraph, true
	}
	return ResolveStateConflictsV2(
		ctx, rules.Authorization, rules.StateResolution,
		stateMaps, authChains, store, subgraphFetcher, RoomAuthorizer{},
	)
}

// SplitConflictedStateSet splits the state maps into the unconflicted state
// map, which holds the entries that every state map agrees on, and the
// conflicted state set, which holds every event ID seen for the remaining
// keys. A key that is missing from some of the state maps is conflicted.
func SplitConflictedStateSet(stateMaps []StateMap) (StateMap, ConflictedStateSet) {
	occurrences := make(map[StateKeyTuple]map[string]int)
	for _, stateMap := range stateMaps {
		for key, eventID := range stateMap {
			counts, ok := occurrences[key]
			if !ok {
				counts = make(map[string]int)
				occurrences[key] = counts
			}
			counts[eventID]++
		}
	}

	unconflicted := make(StateMap)
	conflicted := make(ConflictedStateSet)
	for key, counts := range occurrences {
		for eventID, count := range counts {
			if count == len(stateMaps) {
				unconflicted[key] = eventID
			} else {
				conflicted[key] = append(conflicted[key], eventID)
			}
		}
	}
	for key := range conflicted {
		sort.Strings(conflicted[key])
	}
	return unconflicted, conflicted
}

// AuthDifference returns the event IDs that are in some, but not all, of
// the auth chains.
func AuthDifference(authChains []*set.Set[string]) *set.Set[string] {
	counts := make(map[string]int)
	for _, authChain := range authChains {
		for eventID := range authChain.Items() {
			counts[eventID]++
		}
	}
	difference := set.New[string](len(counts))
	for eventID, count := range counts {
		if count < len(authChains) {
			difference.Insert(eventID)
		}
	}
	return difference
}

// IsPowerEvent returns true if the event is a power event: a power levels,
// join rules or create event, or a membership event that kicks or bans
// another user.
func IsPowerEvent(event Event) bool {
	switch event.Type() {
	case spec.MRoomPowerLevels, spec.MRoomJoinRules, spec.MRoomCreate:
		return event.StateKeyEquals("")
	case spec.MRoomMember:
		content, err := NewMemberContentFromEvent(event)
		if err != nil {
			return false
		}
		if content.Membership != spec.Leave && content.Membership != spec.Ban {
			return false
		}
		return !event.StateKeyEquals(event.Sender())
	default:
		return false
	}
}

// sortPowerEvents builds the graph of the power events and of their auth
// events within the full conflicted set, and sorts it with the reverse
// topological power ordering.
func (r *stateResolverV2) sortPowerEvents(powerEventIDs []string, fullConflictedSet *set.Set[string]) ([]string, error) {
	r.logger.Debug("reverse topological sort of power events")

	graph := newPowerEventGraph()
	sort.Strings(powerEventIDs)
	for _, eventID := range powerEventIDs {
		graph.addEventAndAuthChain(eventID, fullConflictedSet, r.store)
	}

	for _, node := range graph.nodes {
		powerLevel, err := r.powerLevelForSender(node.eventID)
		if err != nil {
			return nil, authEventError(node.eventID, err)
		}
		r.logger.WithFields(logrus.Fields{
			"event_id":    node.eventID,
			"power_level": powerLevel,
		}).Trace("found the power level of an event's sender")
		r.powerLevels[node.eventID] = powerLevel
	}

	return graph.reverseTopologicalPowerSort(func(eventID string) (UserPowerLevel, spec.Timestamp, error) {
		event, ok := r.store.Event(eventID)
		if !ok {
			return UserPowerLevel{}, 0, notFoundError(eventID)
		}
		powerLevel, ok := r.powerLevels[eventID]
		if !ok {
			return UserPowerLevel{}, 0, notFoundError(eventID)
		}
		return powerLevel, event.OriginServerTS(), nil
	})
}

// powerLevelForSender returns the power level of the sender of an event as
// of its auth events. It is only used to order power events.
func (r *stateResolverV2) powerLevelForSender(eventID string) (UserPowerLevel, error) {
	event, found := r.store.Event(eventID)
	var create, powerLevels Event

	if found && r.authRules.RoomCreateEventIDAsRoomID && r.creators == nil {
		// The create event isn't listed in the auth events, but its ID can
		// be derived from the room ID.
		create = r.createEventForRoom(event)
	}

	if found {
		for _, authEventID := range event.AuthEventIDs() {
			authEvent, ok := r.store.Event(authEventID)
			if !ok {
				continue
			}
			switch {
			case isTypeAndKey(authEvent, spec.MRoomPowerLevels, ""):
				powerLevels = authEvent
			case !r.authRules.RoomCreateEventIDAsRoomID && r.creators == nil && isTypeAndKey(authEvent, spec.MRoomCreate, ""):
				create = authEvent
			}
			if powerLevels != nil && (r.authRules.RoomCreateEventIDAsRoomID || r.creators != nil || create != nil) {
				break
			}
		}
	}

	if r.creators == nil && create != nil {
		creators, err := r.authorizer.RoomCreators(r.authRules, create)
		if err != nil {
			return UserPowerLevel{}, err
		}
		r.creators = creators
	}

	if found && r.creators != nil {
		return r.authorizer.UserPowerLevel(r.authRules, powerLevels, event.Sender(), r.creators)
	}
	usersDefault, err := r.authorizer.UsersDefaultPowerLevel(r.authRules, powerLevels)
	if err != nil {
		return UserPowerLevel{}, err
	}
	return IntPowerLevel(usersDefault), nil
}

// createEventForRoom fetches the create event of a room whose ID is derived
// from the create event ID. Returns nil if there is no such event.
func (r *stateResolverV2) createEventForRoom(event Event) Event {
	roomID, err := spec.NewRoomID(event.RoomID())
	if err != nil {
		return nil
	}
	createEventID, err := roomID.CreateEventID()
	if err != nil {
		return nil
	}
	create, ok := r.store.Event(createEventID)
	if !ok {
		return nil
	}
	return create
}

// iterativeAuthChecks applies the events in order to the state, skipping
// the ones that aren't allowed by the state at that point. The state is
// updated in place and returned.
func (r *stateResolverV2) iterativeAuthChecks(eventIDs []string, state StateMap) (StateMap, error) {
	r.logger.WithField("count", len(eventIDs)).Debug("starting iterative auth checks")

	for _, eventID := range eventIDs {
		event, ok := r.store.Event(eventID)
		if !ok {
			return nil, notFoundError(eventID)
		}
		stateKey := event.StateKey()
		if stateKey == nil {
			return nil, missingStateKeyError(eventID)
		}

		authEvents := NewAuthEvents()
		for _, authEventID := range event.AuthEventIDs() {
			authEvent, ok := r.store.Event(authEventID)
			if !ok {
				r.logger.WithField("event_id", authEventID).Warn("missing auth event")
				continue
			}
			if authEvent.Rejected() {
				continue
			}
			if err := authEvents.AddEvent(authEvent); err != nil {
				return nil, missingStateKeyError(authEventID)
			}
		}

		// Since v12 the create event isn't in the auth events, but it is
		// always part of the state and the auth rules need it.
		if r.authRules.RoomCreateEventIDAsRoomID && event.Type() != spec.MRoomCreate {
			if create := r.createEventForRoom(event); create != nil {
				authEvents[StateKeyTuple{spec.MRoomCreate, ""}] = create
			} else {
				r.logger.WithField("event_id", eventID).Warn("missing m.room.create event")
			}
		}

		authTypes, err := r.authorizer.AuthTypesForEvent(r.authRules, event)
		if err != nil {
			r.logger.WithError(err).WithField("event_id", eventID).Warn("failed to get list of required auth events for malformed event")
			continue
		}

		// The auth events in the state that we're building take precedence
		// over the ones that the event cites.
		for _, key := range authTypes {
			stateEventID, ok := state[key]
			if !ok {
				continue
			}
			stateEvent, ok := r.store.Event(stateEventID)
			if !ok {
				r.logger.WithField("event_id", stateEventID).Warn("missing auth event")
				continue
			}
			if !stateEvent.Rejected() {
				authEvents[key] = stateEvent
			}
		}

		if err := r.authorizer.CheckStateDependentAuthRules(r.authRules, event, authEvents.Lookup); err != nil {
			r.logger.WithError(err).WithField("event_id", eventID).Debug("event failed the authentication check")
			continue
		}
		state[StateKeyTuple{event.Type(), *stateKey}] = eventID
	}

	return state, nil
}

// mainlineSort orders the events by their position relative to the mainline
// of the given power levels event, which may be empty.
func (r *stateResolverV2) mainlineSort(eventIDs []string, powerLevelsID string) ([]string, error) {
	r.logger.WithField("power_levels", powerLevelsID).Debug("mainline sort of events")

	if len(eventIDs) == 0 {
		return nil, nil
	}

	// Walk from the power levels event back through the power levels events
	// in each one's auth events.
	var mainline []string
	for current := powerLevelsID; current != ""; {
		mainline = append(mainline, current)
		event, ok := r.store.Event(current)
		if !ok {
			return nil, notFoundError(current)
		}
		next := ""
		for _, authEventID := range event.AuthEventIDs() {
			authEvent, ok := r.store.Event(authEventID)
			if !ok {
				return nil, notFoundError(current)
			}
			if isTypeAndKey(authEvent, spec.MRoomPowerLevels, "") {
				next = authEventID
				break
			}
		}
		current = next
	}

	// The oldest power levels event has position 0.
	positions := make(map[string]int, len(mainline))
	for i, eventID := range mainline {
		positions[eventID] = len(mainline) - 1 - i
	}

	keys := make(mainlineSortKeys, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		event, ok := r.store.Event(eventID)
		if !ok {
			r.logger.WithField("event_id", eventID).Warn("dropping event missing from the store from the mainline sort")
			continue
		}
		position, err := r.mainlinePosition(event, positions)
		if err != nil {
			r.logger.WithError(err).WithField("event_id", eventID).Warn("dropping event without a mainline position")
			continue
		}
		keys = append(keys, mainlineSortKey{
			position:       position,
			originServerTS: event.OriginServerTS(),
			eventID:        eventID,
		})
	}
	sort.Sort(keys)

	sorted := make([]string, 0, len(keys))
	for _, key := range keys {
		sorted = append(sorted, key.eventID)
	}
	return sorted, nil
}

// mainlinePosition returns the position of the closest mainline event that
// is reachable from the event through power levels auth events, or 0 if
// there is none.
func (r *stateResolverV2) mainlinePosition(event Event, positions map[string]int) (int, error) {
	for event != nil {
		if position, ok := positions[event.EventID()]; ok {
			return position, nil
		}
		current := event
		event = nil
		for _, authEventID := range current.AuthEventIDs() {
			authEvent, ok := r.store.Event(authEventID)
			if !ok {
				return 0, notFoundError(authEventID)
			}
			if isTypeAndKey(authEvent, spec.MRoomPowerLevels, "") {
				event = authEvent
				break
			}
		}
	}
	return 0, nil
}

func isTypeAndKey(event Event, eventType, stateKey string) bool {
	return event.Type() == eventType && event.StateKeyEquals(stateKey)
}

// A powerEventNode is a vertex of the power event graph. Edges point from
// an event to its auth events, i.e. from newer to older events.
type powerEventNode struct {
	eventID    string
	authEvents []int
	authedBy   []int
	expanded   bool
}

// A powerEventGraph holds the power events and the parts of their auth
// chains that are in the full conflicted set, with edges stored as indexes
// into nodes.
type powerEventGraph struct {
	nodes []powerEventNode
	index map[string]int
}

func newPowerEventGraph() *powerEventGraph {
	return &powerEventGraph{index: make(map[string]int)}
}

// node returns the index of the node for the event, adding it if needed.
func (g *powerEventGraph) node(eventID string) int {
	if i, ok := g.index[eventID]; ok {
		return i
	}
	g.nodes = append(g.nodes, powerEventNode{eventID: eventID})
	g.index[eventID] = len(g.nodes) - 1
	return len(g.nodes) - 1
}

func (g *powerEventGraph) addEdge(from, to int) {
	for _, existing := range g.nodes[from].authEvents {
		if existing == to {
			return
		}
	}
	g.nodes[from].authEvents = append(g.nodes[from].authEvents, to)
	g.nodes[to].authedBy = append(g.nodes[to].authedBy, from)
}

// addEventAndAuthChain adds the event and, depth first, every auth event
// reachable from it through auth events in the full conflicted set.
func (g *powerEventGraph) addEventAndAuthChain(eventID string, fullConflictedSet *set.Set[string], store EventStore) {
	stack := lane.NewStack[string]()
	stack.Push(eventID)
	for {
		current, ok := stack.Pop()
		if !ok {
			return
		}
		i := g.node(current)
		if g.nodes[i].expanded {
			continue
		}
		g.nodes[i].expanded = true

		event, ok := store.Event(current)
		if !ok {
			continue
		}
		for _, authEventID := range event.AuthEventIDs() {
			if !fullConflictedSet.Contains(authEventID) {
				continue
			}
			if _, seen := g.index[authEventID]; !seen {
				stack.Push(authEventID)
			}
			g.addEdge(i, g.node(authEventID))
		}
	}
}

// reverseTopologicalPowerSort runs Kahn's algorithm from the oldest events,
// always emitting the smallest ready event under comparePowerSortKeys.
// Events on a cycle are never ready and are left out.
func (g *powerEventGraph) reverseTopologicalPowerSort(
	details func(eventID string) (UserPowerLevel, spec.Timestamp, error),
) ([]string, error) {
	ready := set.NewTreeSet[powerSortKey](comparePowerSortKeys)
	push := func(i int) error {
		powerLevel, ts, err := details(g.nodes[i].eventID)
		if err != nil {
			return err
		}
		ready.Insert(powerSortKey{
			node:           i,
			powerLevel:     powerLevel,
			originServerTS: ts,
			eventID:        g.nodes[i].eventID,
		})
		return nil
	}

	outDegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		outDegree[i] = len(g.nodes[i].authEvents)
		if outDegree[i] == 0 {
			if err := push(i); err != nil {
				return nil, err
			}
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for !ready.Empty() {
		next := ready.Min()
		ready.Remove(next)
		sorted = append(sorted, next.eventID)
		for _, parent := range g.nodes[next.node].authedBy {
			outDegree[parent]--
			if outDegree[parent] == 0 {
				if err := push(parent); err != nil {
					return nil, err
				}
			}
		}
	}
	return sorted, nil
}

// ReverseTopologicalPowerSort sorts a graph of events, given as a map from
// an event ID to the IDs of the events it points to (e.g. its auth events),
// so that every event comes after the events it points to. Among the events
// whose dependencies have all been emitted, the one with the highest power
// level, then the lowest timestamp, then the lowest event ID comes first.
func ReverseTopologicalPowerSort(
	graph map[string][]string,
	details func(eventID string) (UserPowerLevel, spec.Timestamp, error),
) ([]string, error) {
	g := newPowerEventGraph()
	eventIDs := make([]string, 0, len(graph))
	for eventID := range graph {
		eventIDs = append(eventIDs, eventID)
	}
	sort.Strings(eventIDs)
	for _, eventID := range eventIDs {
		from := g.node(eventID)
		for _, to := range graph[eventID] {
			g.addEdge(from, g.node(to))
		}
	}
	return g.reverseTopologicalPowerSort(details)
}
