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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkPowerLevelContent(b *testing.B) {
	content := []byte(`{"users":{"@a:x":100,"@b:x":"50"},"events":{"m.room.name":50},"ban":"50"}`)
	for n := 0; n < b.N; n++ {
		_, _ = NewPowerLevelContent(content, false)
	}
}

func TestUserPowerLevelCompare(t *testing.T) {
	assert.Equal(t, 0, IntPowerLevel(5).Compare(IntPowerLevel(5)))
	assert.Equal(t, -1, IntPowerLevel(4).Compare(IntPowerLevel(5)))
	assert.Equal(t, 1, IntPowerLevel(6).Compare(IntPowerLevel(5)))
	assert.Equal(t, 1, InfinitePowerLevel.Compare(IntPowerLevel(maxSafeInteger)))
	assert.Equal(t, -1, IntPowerLevel(maxSafeInteger).Compare(InfinitePowerLevel))
	assert.Equal(t, 0, InfinitePowerLevel.Compare(InfinitePowerLevel))

	assert.True(t, IntPowerLevel(50).AtLeast(50))
	assert.False(t, IntPowerLevel(49).AtLeast(50))
	assert.True(t, InfinitePowerLevel.AtLeast(maxSafeInteger))

	assert.Equal(t, "infinite", InfinitePowerLevel.String())
	assert.Equal(t, "-3", IntPowerLevel(-3).String())
}

func TestPowerLevelContentValid(t *testing.T) {
	// thanks python: https://docs.python.org/3/library/functions.html#int
	// "Optionally, the literal can be preceded by + or - (with no space in between) and surrounded by whitespace."
	content := []byte(`{"users":{"@a:x":0,"@b:x":"1","@c:x":2.0,"@d:x":"+3","@e:x":"  +4  "}}`)
	c, err := NewPowerLevelContent(content, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"@a:x": 0, "@b:x": 1, "@c:x": 2, "@d:x": 3, "@e:x": 4}, c.Users)
}

func TestPowerLevelContentInvalid(t *testing.T) {
	inputs := []string{
		`{"users":{"@a:x":{}}}`,
		`{"users":{"@a:x":[]}}`,
		`{"users":{"@a:x":"not a number"}}`,
		`{"users":{"@a:x":"0.0"}}`,
		`{"users":{"not_a_user":50}}`,
		`{"users":[]}`,
		`{"ban":true}`,
		`{"kick":9007199254740992}`,
		`[]`,
	}
	for _, input := range inputs {
		_, err := NewPowerLevelContent([]byte(input), false)
		assert.Error(t, err, "Unexpected success when parsing %q", input)
	}
}

func TestStrictPowerLevelContent(t *testing.T) {
	// "100" instead of 100 is permissible in room version 7, but not from
	// room version 10.
	content := []byte(`{"ban":50,"events":{"m.room.name":50,"m.room.power_levels":100},"events_default":0,"invite":0,"kick":50,"redact":50,"state_default":50,"users":{"@neilalexander:matrix.org":"100"},"users_default":0}`)

	c, err := NewPowerLevelContent(content, AuthorizationRulesV7.IntegerPowerLevels)
	require.NoError(t, err)
	assert.Equal(t, int64(100), c.UserLevel("@neilalexander:matrix.org"))

	_, err = NewPowerLevelContent(content, AuthorizationRulesV10.IntegerPowerLevels)
	assert.Error(t, err)

	_, err = NewPowerLevelContent([]byte(`{"users":{"@a:x":1.5}}`), true)
	assert.Error(t, err)
}

func TestPowerLevelContentDefaults(t *testing.T) {
	c, err := NewPowerLevelContent([]byte(`{"users":{"@a:x":100},"state_default":20,"events":{"m.room.topic":10}}`), true)
	require.NoError(t, err)

	assert.Equal(t, int64(0), c.UsersDefault())
	assert.Equal(t, int64(0), c.EventsDefault())
	assert.Equal(t, int64(20), c.StateDefault())
	assert.Equal(t, int64(50), c.Ban())
	assert.Equal(t, int64(50), c.Kick())
	assert.Equal(t, int64(50), c.Redact())
	assert.Equal(t, int64(0), c.Invite())

	assert.Equal(t, int64(100), c.UserLevel("@a:x"))
	assert.Equal(t, int64(0), c.UserLevel("@b:x"))
	assert.Equal(t, int64(10), c.EventLevel("m.room.topic", true))
	assert.Equal(t, int64(20), c.EventLevel("m.room.name", true))
	assert.Equal(t, int64(0), c.EventLevel("m.room.message", false))

	_, present := c.Field("ban")
	assert.False(t, present)
	level, present := c.Field("state_default")
	assert.True(t, present)
	assert.Equal(t, int64(20), level)
}

func TestCreateContent(t *testing.T) {
	create := testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x",
		"content": {"creator": "@b:x", "additional_creators": ["@c:x"], "m.federate": false}
	}`)

	c, err := NewCreateContentFromEvent(create, AuthorizationRulesV6)
	require.NoError(t, err)
	assert.Equal(t, "@b:x", c.Creator)
	assert.False(t, c.Federate)
	assert.ElementsMatch(t, []string{"@b:x"}, c.Creators.Slice())
	assert.NoError(t, c.UserIDAllowed("@d:x"))
	assert.Error(t, c.UserIDAllowed("@d:y"))

	// From room version 11 the sender is the creator, and from version 12
	// there can be more than one.
	c, err = NewCreateContentFromEvent(create, AuthorizationRulesV11)
	require.NoError(t, err)
	assert.Equal(t, "@a:x", c.Creator)
	assert.ElementsMatch(t, []string{"@a:x"}, c.Creators.Slice())

	c, err = NewCreateContentFromEvent(create, AuthorizationRulesV12)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"@a:x", "@c:x"}, c.Creators.Slice())
}

func TestCreateContentInvalid(t *testing.T) {
	noCreator := testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x", "content": {}
	}`)
	_, err := NewCreateContentFromEvent(noCreator, AuthorizationRulesV6)
	assert.Error(t, err)

	badCreators := testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x", "content": {"additional_creators": ["nope"]}
	}`)
	_, err = NewCreateContentFromEvent(badCreators, AuthorizationRulesV12)
	assert.Error(t, err)

	badFederate := testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x", "content": {"creator": "@a:x", "m.federate": "no"}
	}`)
	_, err = NewCreateContentFromEvent(badFederate, AuthorizationRulesV6)
	assert.Error(t, err)
}

func TestRoomCreatorsIgnoresOtherCreateFields(t *testing.T) {
	create := testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x",
		"content": {"creator": "@b:x", "additional_creators": ["@c:x"], "m.federate": "no"}
	}`)

	// The full content is rejected, but the creators can still be read.
	_, err := NewCreateContentFromEvent(create, AuthorizationRulesV6)
	require.Error(t, err)

	creators, err := RoomCreatorsFromEvent(create, AuthorizationRulesV6)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"@b:x"}, creators.Slice())

	creators, err = RoomAuthorizer{}.RoomCreators(AuthorizationRulesV12, create)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"@a:x", "@c:x"}, creators.Slice())

	// Broken creator fields still fail.
	_, err = RoomCreatorsFromEvent(testEventFromJSON(t, `{
		"type": "m.room.create", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$create:x", "content": {"m.federate": true}
	}`), AuthorizationRulesV6)
	assert.Error(t, err)
}

func TestMemberContent(t *testing.T) {
	member := testEventFromJSON(t, `{
		"type": "m.room.member", "state_key": "@c:x", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$m:x",
		"content": {
			"membership": "invite",
			"third_party_invite": {"signed": {"token": "abc", "mxid": "@c:x"}},
			"join_authorised_via_users_server": "@a:x"
		}
	}`)
	c, err := NewMemberContentFromEvent(member)
	require.NoError(t, err)
	assert.Equal(t, &MemberContent{
		Membership:       "invite",
		ThirdPartyInvite: &MemberThirdPartyInvite{Token: "abc", MXID: "@c:x"},
		AuthorisedVia:    "@a:x",
	}, c)

	noMembership := testEventFromJSON(t, `{
		"type": "m.room.member", "state_key": "@c:x", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$m:x", "content": {"membership": 1}
	}`)
	_, err = NewMemberContentFromEvent(noMembership)
	assert.Error(t, err)
}

func TestJoinRuleOf(t *testing.T) {
	assert.Equal(t, "invite", joinRuleOf(nil))
	joinRules := testEventFromJSON(t, `{
		"type": "m.room.join_rules", "state_key": "", "sender": "@a:x",
		"room_id": "!r1:x", "event_id": "$jr:x", "content": {"join_rule": "public"}
	}`)
	assert.Equal(t, "public", joinRuleOf(joinRules))
}
