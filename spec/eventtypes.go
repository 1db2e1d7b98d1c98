package spec

const (
	// Join is the string constant "join"
	Join = "join"
	// Ban is the string constant "ban"
	Ban = "ban"
	// Leave is the string constant "leave"
	Leave = "leave"
	// Invite is the string constant "invite"
	Invite = "invite"
	// Knock is the string constant "knock"
	Knock = "knock"
	// Restricted is the string constant "restricted"
	Restricted = "restricted"
	// KnockRestricted is the string constant "knock_restricted"
	KnockRestricted = "knock_restricted"
	// Public is the string constant "public"
	Public = "public"
	// Private is the string constant "private". It is a reserved join rule
	// which behaves as a closed room for the purposes of auth.
	Private = "private"
	// MRoomCreate https://spec.matrix.org/v1.16/client-server-api/#mroomcreate
	MRoomCreate = "m.room.create"
	// MRoomJoinRules https://spec.matrix.org/v1.16/client-server-api/#mroomjoin_rules
	MRoomJoinRules = "m.room.join_rules"
	// MRoomPowerLevels https://spec.matrix.org/v1.16/client-server-api/#mroompower_levels
	MRoomPowerLevels = "m.room.power_levels"
	// MRoomName https://spec.matrix.org/v1.16/client-server-api/#mroomname
	MRoomName = "m.room.name"
	// MRoomTopic https://spec.matrix.org/v1.16/client-server-api/#mroomtopic
	MRoomTopic = "m.room.topic"
	// MRoomMember https://spec.matrix.org/v1.16/client-server-api/#mroommember
	MRoomMember = "m.room.member"
	// MRoomMessage https://spec.matrix.org/v1.16/client-server-api/#mroommessage
	MRoomMessage = "m.room.message"
	// MRoomThirdPartyInvite https://spec.matrix.org/v1.16/client-server-api/#mroomthird_party_invite
	MRoomThirdPartyInvite = "m.room.third_party_invite"
	// MRoomAliases https://spec.matrix.org/v1.16/rooms/v5/#authorization-rules
	MRoomAliases = "m.room.aliases"
	// MRoomHistoryVisibility https://spec.matrix.org/v1.16/client-server-api/#mroomhistory_visibility
	MRoomHistoryVisibility = "m.room.history_visibility"
	// MRoomRedaction https://spec.matrix.org/v1.16/client-server-api/#mroomredaction
	MRoomRedaction = "m.room.redaction"
)
