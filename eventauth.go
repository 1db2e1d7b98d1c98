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
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/stateres/spec"
)

// A StateFetcher returns the event for the given type and state key in some
// state snapshot, or nil if there is none.
type StateFetcher func(eventType, stateKey string) Event

// AuthEvents is a snapshot of state keyed by (type, state_key), used as the
// state that an event is authorized against.
type AuthEvents map[StateKeyTuple]Event

// NewAuthEvents returns AuthEvents holding the given events. Events without
// a state key are skipped.
func NewAuthEvents(events ...Event) AuthEvents {
	a := make(AuthEvents, len(events))
	for _, e := range events {
		a.AddEvent(e) // nolint: errcheck
	}
	return a
}

// AddEvent adds an event to the snapshot. If an event already existed for the (type, state_key) then
// the event is replaced with the new event. Only returns an error if the event is not a state event.
func (a AuthEvents) AddEvent(event Event) error {
	if event.StateKey() == nil {
		return fmt.Errorf("AddEvent: event %q does not have a state key", event.Type())
	}
	a[StateKeyTuple{event.Type(), *event.StateKey()}] = event
	return nil
}

// Lookup implements StateFetcher.
func (a AuthEvents) Lookup(eventType, stateKey string) Event {
	return a[StateKeyTuple{eventType, stateKey}]
}

// Create returns the m.room.create event for the room or nil if there isn't a m.room.create event.
func (a AuthEvents) Create() Event {
	return a.Lookup(spec.MRoomCreate, "")
}

// JoinRules returns the m.room.join_rules event for the room or nil if there isn't a m.room.join_rules event.
func (a AuthEvents) JoinRules() Event {
	return a.Lookup(spec.MRoomJoinRules, "")
}

// PowerLevels returns the m.room.power_levels event for the room or nil if there isn't a m.room.power_levels event.
func (a AuthEvents) PowerLevels() Event {
	return a.Lookup(spec.MRoomPowerLevels, "")
}

// Member returns the m.room.member event for the given user or nil if there isn't a m.room.member event.
func (a AuthEvents) Member(userID string) Event {
	return a.Lookup(spec.MRoomMember, userID)
}

// ThirdPartyInvite returns the m.room.third_party_invite event for the
// given state_key or nil if there isn't a m.room.third_party_invite event
func (a AuthEvents) ThirdPartyInvite(token string) Event {
	return a.Lookup(spec.MRoomThirdPartyInvite, token)
}

// An Authorizer implements the room authorization rules and the power level
// lookups that state resolution needs.
type Authorizer interface {
	// CheckStateDependentAuthRules returns nil if the event is allowed by
	// the state that fetchState reads from, or a *NotAllowed otherwise.
	CheckStateDependentAuthRules(rules AuthorizationRules, event Event, fetchState StateFetcher) error
	// AuthTypesForEvent lists the state keys an event is authorized
	// against.
	AuthTypesForEvent(rules AuthorizationRules, event Event) ([]StateKeyTuple, error)
	// RoomCreators returns the creators of the room given its create event.
	RoomCreators(rules AuthorizationRules, create Event) (*set.Set[string], error)
	// UserPowerLevel returns the power level of a user. The power levels
	// event may be nil.
	UserPowerLevel(rules AuthorizationRules, powerLevels Event, userID string, creators *set.Set[string]) (UserPowerLevel, error)
	// UsersDefaultPowerLevel returns the users_default of a power levels
	// event, or its default.
	UsersDefaultPowerLevel(rules AuthorizationRules, powerLevels Event) (int64, error)
}

// RoomAuthorizer implements Authorizer following the Matrix authorization
// rules for room versions 1 to 12. Signatures on third party invites are
// not verified.
type RoomAuthorizer struct{}

var _ Authorizer = RoomAuthorizer{}

// A NotAllowed error is returned if an event does not pass the auth checks.
type NotAllowed struct {
	Message string
}

func (a *NotAllowed) Error() string {
	return "eventauth: " + a.Message
}

func errorf(message string, args ...interface{}) error {
	return &NotAllowed{Message: fmt.Sprintf(message, args...)}
}

// AuthTypesForEvent implements Authorizer.
// See https://spec.matrix.org/v1.16/server-server-api/#auth-events-selection
func (RoomAuthorizer) AuthTypesForEvent(rules AuthorizationRules, event Event) ([]StateKeyTuple, error) {
	if event.Type() == spec.MRoomCreate {
		return nil, nil
	}

	result := []StateKeyTuple{
		{spec.MRoomPowerLevels, ""},
		{spec.MRoomMember, event.Sender()},
		{spec.MRoomCreate, ""},
	}
	add := func(t StateKeyTuple) {
		for _, existing := range result {
			if existing == t {
				return
			}
		}
		result = append(result, t)
	}

	if event.Type() != spec.MRoomMember {
		return result, nil
	}
	stateKey := event.StateKey()
	if stateKey == nil {
		return nil, errorf("m.room.member event %s has no state key", event.EventID())
	}
	add(StateKeyTuple{spec.MRoomMember, *stateKey})

	content, err := NewMemberContentFromEvent(event)
	if err != nil {
		return nil, err
	}
	switch content.Membership {
	case spec.Join, spec.Invite, spec.Knock:
		add(StateKeyTuple{spec.MRoomJoinRules, ""})
	}
	if content.Membership == spec.Invite && content.ThirdPartyInvite != nil {
		if content.ThirdPartyInvite.Token == "" {
			return nil, errorf("third party invite in %s has no signed token", event.EventID())
		}
		add(StateKeyTuple{spec.MRoomThirdPartyInvite, content.ThirdPartyInvite.Token})
	}
	if content.Membership == spec.Join && rules.RestrictedJoinRule && content.AuthorisedVia != "" {
		add(StateKeyTuple{spec.MRoomMember, content.AuthorisedVia})
	}
	return result, nil
}

// RoomCreators implements Authorizer.
func (RoomAuthorizer) RoomCreators(rules AuthorizationRules, create Event) (*set.Set[string], error) {
	return RoomCreatorsFromEvent(create, rules)
}

// UserPowerLevel implements Authorizer.
func (RoomAuthorizer) UserPowerLevel(rules AuthorizationRules, powerLevels Event, userID string, creators *set.Set[string]) (UserPowerLevel, error) {
	var content *PowerLevelContent
	if powerLevels != nil {
		var err error
		if content, err = NewPowerLevelContentFromEvent(powerLevels, rules.IntegerPowerLevels); err != nil {
			return UserPowerLevel{}, err
		}
	}
	return userPowerLevel(rules, content, userID, creators), nil
}

// UsersDefaultPowerLevel implements Authorizer.
func (RoomAuthorizer) UsersDefaultPowerLevel(rules AuthorizationRules, powerLevels Event) (int64, error) {
	if powerLevels == nil {
		return defaultUsersLevel, nil
	}
	content, err := NewPowerLevelContentFromEvent(powerLevels, rules.IntegerPowerLevels)
	if err != nil {
		return 0, err
	}
	return content.UsersDefault(), nil
}

// userPowerLevel returns the level of a user given the parsed power levels,
// which are nil if the room has no power levels event.
func userPowerLevel(rules AuthorizationRules, powerLevels *PowerLevelContent, userID string, creators *set.Set[string]) UserPowerLevel {
	isCreator := creators != nil && creators.Contains(userID)
	switch {
	case rules.ExplicitlyPrivilegeRoomCreators && isCreator:
		return InfinitePowerLevel
	case powerLevels != nil:
		return IntPowerLevel(powerLevels.UserLevel(userID))
	case isCreator:
		return IntPowerLevel(defaultCreatorLevel)
	default:
		return IntPowerLevel(defaultUsersLevel)
	}
}

// CheckStateDependentAuthRules implements Authorizer.
// See https://spec.matrix.org/v1.16/rooms/v12/#authorization-rules
func (RoomAuthorizer) CheckStateDependentAuthRules(rules AuthorizationRules, event Event, fetchState StateFetcher) error {
	// There are no state-dependent auth rules for create events.
	if event.Type() == spec.MRoomCreate {
		return nil
	}
	a, err := newAllowerContext(rules, fetchState)
	if err != nil {
		return err
	}
	return a.allowed(event)
}

// allowerContext caches the create and power level contents of the state
// that an event is being authorized against.
type allowerContext struct {
	rules      AuthorizationRules
	fetchState StateFetcher

	createEvent Event
	create      *CreateContent
	// nil if there is no m.room.power_levels event.
	powerLevels *PowerLevelContent
}

func newAllowerContext(rules AuthorizationRules, fetchState StateFetcher) (*allowerContext, error) {
	a := &allowerContext{
		rules:      rules,
		fetchState: fetchState,
	}
	if a.createEvent = fetchState(spec.MRoomCreate, ""); a.createEvent == nil {
		return nil, errorf("no m.room.create event in current state")
	}
	var err error
	if a.create, err = NewCreateContentFromEvent(a.createEvent, rules); err != nil {
		return nil, err
	}
	if e := fetchState(spec.MRoomPowerLevels, ""); e != nil {
		if a.powerLevels, err = NewPowerLevelContentFromEvent(e, rules.IntegerPowerLevels); err != nil {
			return nil, errorf("current power levels are invalid: %s", err.Error())
		}
	}
	return a, nil
}

// allowed checks whether an event is allowed by the current state.
func (a *allowerContext) allowed(event Event) error {
	if err := a.create.UserIDAllowed(event.Sender()); err != nil {
		return err
	}

	if a.rules.SpecialCaseRoomAliases && event.Type() == spec.MRoomAliases {
		return a.aliasEventAllowed(event)
	}

	if event.Type() == spec.MRoomMember {
		m, err := a.newMembershipAllower(event)
		if err != nil {
			return err
		}
		return m.membershipAllowed(event)
	}

	senderMembership, err := a.membership(event.Sender())
	if err != nil {
		return err
	}
	if senderMembership != spec.Join {
		return errorf("sender %q not in room", event.Sender())
	}
	senderLevel := a.userLevel(event.Sender())

	if event.Type() == spec.MRoomThirdPartyInvite {
		if !senderLevel.AtLeast(a.level().Invite()) {
			return errorf("sender %q does not have enough power to send invites: %s < %d", event.Sender(), senderLevel, a.level().Invite())
		}
		return nil
	}

	eventLevel := a.level().EventLevel(event.Type(), event.StateKey() != nil)
	if !senderLevel.AtLeast(eventLevel) {
		return errorf(
			"sender %q is not allowed to send event. %s < %d",
			event.Sender(), senderLevel, eventLevel,
		)
	}

	// Check that all state_keys that begin with '@' are only updated by users
	// with that ID.
	if stateKey := event.StateKey(); stateKey != nil && strings.HasPrefix(*stateKey, "@") && *stateKey != event.Sender() {
		return errorf(
			"sender %q is not allowed to modify the state belonging to %q",
			event.Sender(), *stateKey,
		)
	}

	switch {
	case event.Type() == spec.MRoomPowerLevels:
		return a.powerLevelsEventAllowed(event, senderLevel)
	case a.rules.SpecialCaseRoomRedaction && event.Type() == spec.MRoomRedaction:
		return a.redactEventAllowed(event, senderLevel)
	}
	return nil
}

// level returns the current power levels, or an empty content that yields
// the defaults.
func (a *allowerContext) level() *PowerLevelContent {
	if a.powerLevels != nil {
		return a.powerLevels
	}
	return &PowerLevelContent{}
}

func (a *allowerContext) userLevel(userID string) UserPowerLevel {
	return userPowerLevel(a.rules, a.powerLevels, userID, a.create.Creators)
}

// membership returns the current membership of a user. Users without a
// member event have left.
func (a *allowerContext) membership(userID string) (string, error) {
	event := a.fetchState(spec.MRoomMember, userID)
	if event == nil {
		return spec.Leave, nil
	}
	content, err := NewMemberContentFromEvent(event)
	if err != nil {
		return "", err
	}
	return content.Membership, nil
}

// aliasEventAllowed checks whether the m.room.aliases event is allowed.
func (a *allowerContext) aliasEventAllowed(event Event) error {
	senderDomain, ok := spec.ServerNameOf(event.Sender())
	if !ok {
		return errorf("invalid sender %q", event.Sender())
	}
	// The state key of an alias event is the domain of the sending server.
	if !event.StateKeyEquals(string(senderDomain)) {
		return errorf(
			"alias state_key does not match sender domain, %q != %q",
			senderDomain, stringOrNil(event.StateKey()),
		)
	}
	return nil
}

// powerLevelsEventAllowed checks whether the m.room.power_levels event is allowed.
func (a *allowerContext) powerLevelsEventAllowed(event Event, senderLevel UserPowerLevel) error {
	newPowerLevels, err := NewPowerLevelContentFromEvent(event, a.rules.IntegerPowerLevels)
	if err != nil {
		return err
	}

	if a.rules.ExplicitlyPrivilegeRoomCreators {
		for userID := range newPowerLevels.Users {
			if a.create.Creators.Contains(userID) {
				return errorf("room creator %q cannot be given a power level", userID)
			}
		}
	}

	// If there is no previous power level event then allow.
	if a.powerLevels == nil {
		return nil
	}
	oldPowerLevels := a.powerLevels

	for _, name := range powerLevelIntFields {
		oldLevel, oldOK := oldPowerLevels.Field(name)
		newLevel, newOK := newPowerLevels.Field(name)
		if oldOK == newOK && oldLevel == newLevel {
			continue
		}
		if above(oldPowerLevels.fieldOrDefault(name), senderLevel) || above(newPowerLevels.fieldOrDefault(name), senderLevel) {
			return errorf(
				"sender with level %s is not allowed to change %s from %d to %d",
				senderLevel, name, oldPowerLevels.fieldOrDefault(name), newPowerLevels.fieldOrDefault(name),
			)
		}
	}

	if err = checkPowerLevelMap("events", oldPowerLevels.Events, newPowerLevels.Events, senderLevel,
		func(_ string, oldLevel int64) bool { return above(oldLevel, senderLevel) },
	); err != nil {
		return err
	}

	if a.rules.LimitNotificationsPowerLevels {
		if err = checkPowerLevelMap("notifications", oldPowerLevels.Notifications, newPowerLevels.Notifications, senderLevel,
			func(_ string, oldLevel int64) bool { return above(oldLevel, senderLevel) },
		); err != nil {
			return err
		}
	}

	return checkPowerLevelMap("users", oldPowerLevels.Users, newPowerLevels.Users, senderLevel,
		func(userID string, oldLevel int64) bool {
			// A user may always lower their own level.
			return userID != event.Sender() && IntPowerLevel(oldLevel).Compare(senderLevel) >= 0
		},
	)
}

// checkPowerLevelMap checks every entry added, changed or removed between
// two power level maps. rejectChange is called with the old level of
// entries that are changed or removed.
func checkPowerLevelMap(
	name string, oldLevels, newLevels map[string]int64, senderLevel UserPowerLevel,
	rejectChange func(key string, oldLevel int64) bool,
) error {
	keys := set.New[string](len(oldLevels) + len(newLevels))
	for key := range oldLevels {
		keys.Insert(key)
	}
	for key := range newLevels {
		keys.Insert(key)
	}
	for key := range keys.Items() {
		oldLevel, oldOK := oldLevels[key]
		newLevel, newOK := newLevels[key]
		if oldOK == newOK && oldLevel == newLevel {
			continue
		}
		if oldOK && rejectChange(key, oldLevel) {
			return errorf(
				"sender with level %s is not allowed to change %s level of %q from %d",
				senderLevel, name, key, oldLevel,
			)
		}
		if newOK && above(newLevel, senderLevel) {
			return errorf(
				"sender with level %s is not allowed to set %s level of %q to %d",
				senderLevel, name, key, newLevel,
			)
		}
	}
	return nil
}

// redactEventAllowed checks whether the m.room.redaction event is allowed
// in room versions 1 and 2.
func (a *allowerContext) redactEventAllowed(event Event, senderLevel UserPowerLevel) error {
	if senderLevel.AtLeast(a.level().Redact()) {
		return nil
	}

	// An event may always be redacted by a server on the same domain.
	eventDomain, eventOK := spec.ServerNameOf(event.EventID())
	redactsDomain, redactsOK := spec.ServerNameOf(event.Redacts())
	if eventOK == redactsOK && eventDomain == redactsDomain {
		return nil
	}

	return errorf(
		"%q is not allowed to redact message from %q. %s < %d",
		event.Sender(), redactsDomain, senderLevel, a.level().Redact(),
	)
}

// A membershipAllower has the information needed to authenticate a m.room.member event
type membershipAllower struct {
	*allowerContext
	// The user ID of the user whose membership is changing.
	targetID string
	// The user ID of the user who sent the membership event.
	senderID string
	// The membership of the user who sent the membership event.
	senderMembership string
	// The previous membership of the user whose membership is changing.
	oldMembership string
	// The new membership of the user if this event is accepted.
	newMember *MemberContent
}

// newMembershipAllower loads the information needed to authenticate the m.room.member event
// from the current state.
func (a *allowerContext) newMembershipAllower(event Event) (m membershipAllower, err error) {
	m.allowerContext = a
	stateKey := event.StateKey()
	if stateKey == nil {
		err = errorf("m.room.member must be a state event")
		return
	}
	if _, err = spec.NewUserID(*stateKey, true); err != nil {
		err = errorf("invalid state key %q in m.room.member event: %s", *stateKey, err.Error())
		return
	}
	m.targetID = *stateKey
	m.senderID = event.Sender()
	if m.newMember, err = NewMemberContentFromEvent(event); err != nil {
		return
	}
	if m.oldMembership, err = a.membership(m.targetID); err != nil {
		return
	}
	if m.senderMembership, err = a.membership(m.senderID); err != nil {
		return
	}
	return
}

// membershipAllowed checks whether the membership event is allowed
func (m *membershipAllower) membershipAllowed(event Event) error {
	switch m.newMember.Membership {
	case spec.Join:
		return m.joinAllowed(event)
	case spec.Invite:
		if m.newMember.ThirdPartyInvite != nil {
			return m.membershipAllowedFromThirdPartyInvite()
		}
		return m.inviteAllowed()
	case spec.Leave:
		return m.leaveAllowed()
	case spec.Ban:
		return m.banAllowed()
	case spec.Knock:
		if m.rules.Knocking {
			return m.knockAllowed()
		}
	}
	return m.membershipFailed("the membership is unknown")
}

func (m *membershipAllower) joinAllowed(event Event) error {
	// Special case the first join event in the room to allow the creator to join.
	prevEvents := event.PrevEventIDs()
	if len(prevEvents) == 1 && prevEvents[0] == m.createEvent.EventID() && m.targetID == m.create.Creator {
		return nil
	}

	if m.senderID != m.targetID {
		return m.membershipFailed("the sender does not match the target")
	}
	if m.oldMembership == spec.Ban {
		return m.membershipFailed("the user is banned")
	}

	joinRule := joinRuleOf(m.fetchState(spec.MRoomJoinRules, ""))
	if (joinRule == spec.Invite || (m.rules.Knocking && joinRule == spec.Knock)) &&
		(m.oldMembership == spec.Invite || m.oldMembership == spec.Join) {
		return nil
	}

	if (m.rules.RestrictedJoinRule && joinRule == spec.Restricted) ||
		(m.rules.KnockRestrictedJoinRule && joinRule == spec.KnockRestricted) {
		return m.membershipAllowedSelfForRestrictedJoin()
	}

	if joinRule == spec.Public {
		return nil
	}
	return m.membershipFailed("the room join rule is %q", joinRule)
}

func (m *membershipAllower) membershipAllowedSelfForRestrictedJoin() error {
	if m.oldMembership == spec.Join || m.oldMembership == spec.Invite {
		return nil
	}
	authorisedVia := m.newMember.AuthorisedVia
	if authorisedVia == "" {
		return m.membershipFailed("the room is restricted and no join_authorised_via_users_server was given")
	}
	viaMembership, err := m.membership(authorisedVia)
	if err != nil {
		return err
	}
	if viaMembership != spec.Join {
		return m.membershipFailed("the authorising user %q is not joined", authorisedVia)
	}
	if !m.userLevel(authorisedVia).AtLeast(m.level().Invite()) {
		return m.membershipFailed("the authorising user %q does not have enough power to invite", authorisedVia)
	}
	return nil
}

func (m *membershipAllower) membershipAllowedFromThirdPartyInvite() error {
	if m.oldMembership == spec.Ban {
		return m.membershipFailed("the target is banned")
	}
	invite := m.newMember.ThirdPartyInvite
	if invite.Token == "" || invite.MXID == "" {
		return m.membershipFailed("the third party invite has no signed token or mxid")
	}
	if invite.MXID != m.targetID {
		return m.membershipFailed("the third party invite mxid %q does not match the target", invite.MXID)
	}
	thirdPartyInvite := m.fetchState(spec.MRoomThirdPartyInvite, invite.Token)
	if thirdPartyInvite == nil {
		return m.membershipFailed("no m.room.third_party_invite event matches token %q", invite.Token)
	}
	if thirdPartyInvite.Sender() != m.senderID {
		return m.membershipFailed("the sender did not send the m.room.third_party_invite event")
	}
	return nil
}

func (m *membershipAllower) inviteAllowed() error {
	if m.senderMembership != spec.Join {
		return m.membershipFailed("the sender is not in the room")
	}
	if m.oldMembership == spec.Join || m.oldMembership == spec.Ban {
		return m.membershipFailed("the target is %q", m.oldMembership)
	}
	senderLevel := m.userLevel(m.senderID)
	if !senderLevel.AtLeast(m.level().Invite()) {
		return m.membershipFailed("the sender has insufficient power to invite (%s < %d)", senderLevel, m.level().Invite())
	}
	return nil
}

func (m *membershipAllower) leaveAllowed() error {
	if m.senderID == m.targetID {
		switch m.senderMembership {
		case spec.Join, spec.Invite:
			return nil
		case spec.Knock:
			if m.rules.Knocking {
				return nil
			}
		}
		return m.membershipFailed("the sender is %q", m.senderMembership)
	}

	if m.senderMembership != spec.Join {
		return m.membershipFailed("the sender is not in the room")
	}
	senderLevel := m.userLevel(m.senderID)
	if m.oldMembership == spec.Ban && !senderLevel.AtLeast(m.level().Ban()) {
		return m.membershipFailed("the sender has insufficient power to unban (%s < %d)", senderLevel, m.level().Ban())
	}
	if senderLevel.AtLeast(m.level().Kick()) && m.userLevel(m.targetID).Compare(senderLevel) < 0 {
		return nil
	}
	return m.membershipFailed("the sender has insufficient power to kick the target")
}

func (m *membershipAllower) banAllowed() error {
	if m.senderMembership != spec.Join {
		return m.membershipFailed("the sender is not in the room")
	}
	senderLevel := m.userLevel(m.senderID)
	if senderLevel.AtLeast(m.level().Ban()) && m.userLevel(m.targetID).Compare(senderLevel) < 0 {
		return nil
	}
	return m.membershipFailed("the sender has insufficient power to ban the target")
}

func (m *membershipAllower) knockAllowed() error {
	joinRule := joinRuleOf(m.fetchState(spec.MRoomJoinRules, ""))
	if joinRule != spec.Knock && !(m.rules.KnockRestrictedJoinRule && joinRule == spec.KnockRestricted) {
		return m.membershipFailed("the room join rule is %q", joinRule)
	}
	if m.senderID != m.targetID {
		return m.membershipFailed("the sender does not match the target")
	}
	switch m.senderMembership {
	case spec.Ban, spec.Invite, spec.Join:
		return m.membershipFailed("the sender is %q", m.senderMembership)
	}
	return nil
}

// membershipFailed returns a error explaining why the membership change was disallowed.
func (m *membershipAllower) membershipFailed(format string, args ...interface{}) error {
	if m.senderID == m.targetID {
		return errorf(
			"%q is not allowed to change their membership from %q to %q as "+format,
			append([]interface{}{m.targetID, m.oldMembership, m.newMember.Membership}, args...)...,
		)
	}

	return errorf(
		"%q is not allowed to change the membership of %q from %q to %q as "+format,
		append([]interface{}{m.senderID, m.targetID, m.oldMembership, m.newMember.Membership}, args...)...,
	)
}

// above reports whether a level is strictly greater than the sender's.
func above(level int64, senderLevel UserPowerLevel) bool {
	return IntPowerLevel(level).Compare(senderLevel) > 0
}

func stringOrNil(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
