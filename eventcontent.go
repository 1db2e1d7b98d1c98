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
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/matrix-org/stateres/spec"
	"github.com/tidwall/gjson"
)

// Default power levels.
// See https://spec.matrix.org/v1.16/client-server-api/#mroompower_levels
const (
	defaultUsersLevel   int64 = 0
	defaultEventsLevel  int64 = 0
	defaultStateLevel   int64 = 50
	defaultInviteLevel  int64 = 0
	defaultKickLevel    int64 = 50
	defaultBanLevel     int64 = 50
	defaultRedactLevel  int64 = 50
	defaultCreatorLevel int64 = 100
)

// maxSafeInteger is the largest integer a canonical JSON number may hold.
const maxSafeInteger = 1<<53 - 1

// A UserPowerLevel is the power level of a user in a room. From room
// version 12 the room creators have a level above any integer.
type UserPowerLevel struct {
	Infinite bool
	Level    int64
}

// IntPowerLevel returns a finite power level.
func IntPowerLevel(level int64) UserPowerLevel {
	return UserPowerLevel{Level: level}
}

// InfinitePowerLevel is the power level of privileged room creators.
var InfinitePowerLevel = UserPowerLevel{Infinite: true}

// Compare returns -1, 0 or +1 when l is less than, equal to or greater
// than other.
func (l UserPowerLevel) Compare(other UserPowerLevel) int {
	switch {
	case l.Infinite && other.Infinite:
		return 0
	case l.Infinite:
		return 1
	case other.Infinite:
		return -1
	case l.Level < other.Level:
		return -1
	case l.Level > other.Level:
		return 1
	}
	return 0
}

// AtLeast reports whether l >= level.
func (l UserPowerLevel) AtLeast(level int64) bool {
	return l.Compare(IntPowerLevel(level)) >= 0
}

func (l UserPowerLevel) String() string {
	if l.Infinite {
		return "infinite"
	}
	return strconv.FormatInt(l.Level, 10)
}

// powerLevelIntFields are the top-level integer keys of m.room.power_levels
// content.
var powerLevelIntFields = []string{
	"users_default", "events_default", "state_default",
	"ban", "redact", "kick", "invite",
}

var powerLevelIntDefaults = map[string]int64{
	"users_default":  defaultUsersLevel,
	"events_default": defaultEventsLevel,
	"state_default":  defaultStateLevel,
	"ban":            defaultBanLevel,
	"redact":         defaultRedactLevel,
	"kick":           defaultKickLevel,
	"invite":         defaultInviteLevel,
}

// PowerLevelContent is the JSON content of a m.room.power_levels event needed
// for auth checks. Only the keys present in the event are recorded; the
// accessors apply the defaults.
// See https://spec.matrix.org/v1.16/client-server-api/#mroompower_levels for descriptions of the fields.
type PowerLevelContent struct {
	fields        map[string]int64
	Users         map[string]int64
	Events        map[string]int64
	Notifications map[string]int64
}

// NewPowerLevelContentFromEvent parses the power levels in an event.
// With integerPowerLevels only JSON integers are accepted, otherwise numeric
// strings and floats are converted the way python's int() would.
func NewPowerLevelContentFromEvent(event Event, integerPowerLevels bool) (*PowerLevelContent, error) {
	c, err := NewPowerLevelContent(event.Content(), integerPowerLevels)
	if err != nil {
		return nil, fmt.Errorf("power levels event %s: %w", event.EventID(), err)
	}
	return c, nil
}

// NewPowerLevelContent parses m.room.power_levels content.
func NewPowerLevelContent(content []byte, integerPowerLevels bool) (*PowerLevelContent, error) {
	root := gjson.ParseBytes(content)
	if !root.IsObject() {
		return nil, errorf("unparsable power_levels event content: not an object")
	}
	c := &PowerLevelContent{
		fields: make(map[string]int64),
	}
	for _, name := range powerLevelIntFields {
		value := root.Get(name)
		if !value.Exists() {
			continue
		}
		level, err := parsePowerLevel(value, integerPowerLevels)
		if err != nil {
			return nil, errorf("unparsable power_levels event content: %q: %s", name, err.Error())
		}
		c.fields[name] = level
	}

	var err error
	if c.Users, err = parsePowerLevelMap(root, "users", integerPowerLevels, isValidUserID); err != nil {
		return nil, err
	}
	if c.Events, err = parsePowerLevelMap(root, "events", integerPowerLevels, nil); err != nil {
		return nil, err
	}
	if c.Notifications, err = parsePowerLevelMap(root, "notifications", integerPowerLevels, nil); err != nil {
		return nil, err
	}
	return c, nil
}

func parsePowerLevelMap(root gjson.Result, key string, integerPowerLevels bool, validKey func(string) bool) (map[string]int64, error) {
	value := root.Get(key)
	if !value.Exists() || value.Type == gjson.Null {
		return nil, nil
	}
	if !value.IsObject() {
		return nil, errorf("unparsable power_levels event content: %q is not an object", key)
	}
	result := make(map[string]int64)
	var err error
	value.ForEach(func(k, v gjson.Result) bool {
		if validKey != nil && !validKey(k.Str) {
			err = errorf("unparsable power_levels event content: invalid key %q in %q", k.Str, key)
			return false
		}
		var level int64
		if level, err = parsePowerLevel(v, integerPowerLevels); err != nil {
			err = errorf("unparsable power_levels event content: %q in %q: %s", k.Str, key, err.Error())
			return false
		}
		result[k.Str] = level
		return true
	})
	return result, err
}

// parsePowerLevel reads a single power level. When not strict it is intended
// to replicate the effects of x = int(content["key"]) in python.
func parsePowerLevel(value gjson.Result, strict bool) (int64, error) {
	var level int64
	switch value.Type {
	case gjson.Number:
		if i, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			level = i
		} else if strict {
			return 0, fmt.Errorf("%s is not an integer", value.Raw)
		} else {
			f, err := strconv.ParseFloat(value.Raw, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return 0, fmt.Errorf("%s is not a number", value.Raw)
			}
			level = int64(f)
		}
	case gjson.String:
		if strict {
			return 0, fmt.Errorf("%q is not an integer", value.Str)
		}
		i, err := strconv.ParseInt(strings.TrimSpace(value.Str), 10, 64)
		if err != nil {
			return 0, err
		}
		level = i
	default:
		return 0, fmt.Errorf("%s is not a valid power level", value.Raw)
	}
	if level > maxSafeInteger || level < -maxSafeInteger {
		return 0, fmt.Errorf("%d is out of range", level)
	}
	return level, nil
}

// Field returns the value of a top-level integer key and whether it was
// present in the event.
func (c *PowerLevelContent) Field(name string) (int64, bool) {
	level, ok := c.fields[name]
	return level, ok
}

func (c *PowerLevelContent) fieldOrDefault(name string) int64 {
	if level, ok := c.fields[name]; ok {
		return level
	}
	return powerLevelIntDefaults[name]
}

func (c *PowerLevelContent) UsersDefault() int64  { return c.fieldOrDefault("users_default") }
func (c *PowerLevelContent) EventsDefault() int64 { return c.fieldOrDefault("events_default") }
func (c *PowerLevelContent) StateDefault() int64  { return c.fieldOrDefault("state_default") }
func (c *PowerLevelContent) Ban() int64           { return c.fieldOrDefault("ban") }
func (c *PowerLevelContent) Redact() int64        { return c.fieldOrDefault("redact") }
func (c *PowerLevelContent) Kick() int64          { return c.fieldOrDefault("kick") }
func (c *PowerLevelContent) Invite() int64        { return c.fieldOrDefault("invite") }

// UserLevel returns the power level a user has in the room, ignoring room
// creator privileges.
func (c *PowerLevelContent) UserLevel(userID string) int64 {
	level, ok := c.Users[userID]
	if ok {
		return level
	}
	return c.UsersDefault()
}

// EventLevel returns the power level needed to send an event in the room.
func (c *PowerLevelContent) EventLevel(eventType string, isState bool) int64 {
	level, ok := c.Events[eventType]
	if ok {
		return level
	}
	if isState {
		return c.StateDefault()
	}
	return c.EventsDefault()
}

// CreateContent is the JSON content of a m.room.create event along with
// the top level keys needed for auth.
// See https://spec.matrix.org/v1.16/client-server-api/#mroomcreate for descriptions of the fields.
type CreateContent struct {
	// We need the domain of the create event when checking federatability.
	senderDomain spec.ServerName
	// The "m.federate" flag tells us whether the room can be federated to other servers.
	Federate bool
	// The user that created the room: the sender from room version 11,
	// the creator field before that.
	Creator string
	// The room creators: the sender or the creator field, plus any
	// additional_creators.
	Creators *set.Set[string]
}

// NewCreateContentFromEvent loads the create event content.
func NewCreateContentFromEvent(create Event, rules AuthorizationRules) (*CreateContent, error) {
	content := gjson.ParseBytes(create.Content())
	if !content.IsObject() {
		return nil, errorf("unparsable create event content")
	}
	c := &CreateContent{Federate: true}
	if federate := content.Get(`m\.federate`); federate.Exists() {
		if federate.Type != gjson.True && federate.Type != gjson.False {
			return nil, errorf("m.federate in create event is not a boolean")
		}
		c.Federate = federate.Bool()
	}
	domain, ok := spec.ServerNameOf(create.Sender())
	if !ok {
		return nil, errorf("invalid create event sender %q", create.Sender())
	}
	c.senderDomain = domain

	var err error
	c.Creator, c.Creators, err = creatorsOf(create, content, rules)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RoomCreatorsFromEvent returns the creators of a room from its create event.
// Only the creator and additional_creators fields are looked at, so a create
// event with other malformed fields still yields its creators.
func RoomCreatorsFromEvent(create Event, rules AuthorizationRules) (*set.Set[string], error) {
	content := gjson.ParseBytes(create.Content())
	if !content.IsObject() {
		return nil, errorf("unparsable create event content")
	}
	_, creators, err := creatorsOf(create, content, rules)
	return creators, err
}

func creatorsOf(create Event, content gjson.Result, rules AuthorizationRules) (string, *set.Set[string], error) {
	var creator string
	if rules.UseRoomCreateSender {
		creator = create.Sender()
	} else {
		field := content.Get("creator")
		if field.Type != gjson.String || !isValidUserID(field.Str) {
			return "", nil, errorf("create event %s has no valid creator", create.EventID())
		}
		creator = field.Str
	}
	creators, err := roomCreators(creator, content, rules)
	if err != nil {
		return "", nil, err
	}
	return creator, creators, nil
}

func roomCreators(creator string, content gjson.Result, rules AuthorizationRules) (*set.Set[string], error) {
	creators := set.From([]string{creator})

	if rules.AdditionalRoomCreators {
		additional := content.Get("additional_creators")
		if additional.Exists() {
			if !additional.IsArray() {
				return nil, errorf("additional_creators in create event is not an array")
			}
			for _, userID := range additional.Array() {
				if userID.Type != gjson.String || !isValidUserID(userID.Str) {
					return nil, errorf("invalid user ID %s in additional_creators", userID.Raw)
				}
				creators.Insert(userID.Str)
			}
		}
	}
	return creators, nil
}

// UserIDAllowed checks whether the domain part of the user ID is allowed in
// the room by the "m.federate" flag.
func (c *CreateContent) UserIDAllowed(id string) error {
	if c.Federate {
		return nil
	}
	domain, ok := spec.ServerNameOf(id)
	if !ok {
		return errorf("invalid ID: %q", id)
	}
	if domain != c.senderDomain {
		return errorf("room is unfederatable")
	}
	return nil
}

// MemberContent is the JSON content of a m.room.member event needed for auth checks.
// See https://spec.matrix.org/v1.16/client-server-api/#mroommember for descriptions of the fields.
type MemberContent struct {
	Membership string
	// We use the third_party_invite key to special case thirdparty invites.
	ThirdPartyInvite *MemberThirdPartyInvite
	// Restricted join rules require a user with invite permission to be nominated,
	// so that their membership can be included in the auth events.
	AuthorisedVia string
}

// MemberThirdPartyInvite is the "signed" part of the third_party_invite
// structure in m.room.member content. A missing key leaves the field empty.
type MemberThirdPartyInvite struct {
	Token string
	MXID  string
}

// NewMemberContentFromEvent parses the member content from an event.
// Returns an error if the content couldn't be parsed.
func NewMemberContentFromEvent(event Event) (*MemberContent, error) {
	content := gjson.ParseBytes(event.Content())
	if !content.IsObject() {
		return nil, errorf("unparsable member event content")
	}
	membership := content.Get("membership")
	if membership.Type != gjson.String {
		return nil, errorf("member event %s has no membership", event.EventID())
	}
	c := &MemberContent{Membership: membership.Str}
	if invite := content.Get("third_party_invite"); invite.Exists() && invite.Type != gjson.Null {
		c.ThirdPartyInvite = &MemberThirdPartyInvite{
			Token: invite.Get("signed.token").Str,
			MXID:  invite.Get("signed.mxid").Str,
		}
	}
	if via := content.Get("join_authorised_via_users_server"); via.Type == gjson.String {
		c.AuthorisedVia = via.Str
	}
	return c, nil
}

// joinRuleOf returns the join rule of a join rules event. Rooms without one
// are treated as invite-only.
func joinRuleOf(event Event) string {
	if event == nil {
		return spec.Invite
	}
	rule := gjson.GetBytes(event.Content(), "join_rule")
	if rule.Type != gjson.String {
		return spec.Invite
	}
	return rule.Str
}

// Check if the user ID is a valid user ID.
func isValidUserID(userID string) bool {
	return len(userID) > 0 && userID[0] == '@' && strings.IndexByte(userID, ':') != -1
}
