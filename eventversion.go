package stateres

// RoomVersion refers to the room version for a specific room.
type RoomVersion string

// Room version constants. These are strings because the version grammar
// allows for future expansion.
// https://spec.matrix.org/v1.16/rooms/#room-version-grammar
const (
	RoomVersionV1  RoomVersion = "1"
	RoomVersionV2  RoomVersion = "2"
	RoomVersionV3  RoomVersion = "3"
	RoomVersionV4  RoomVersion = "4"
	RoomVersionV5  RoomVersion = "5"
	RoomVersionV6  RoomVersion = "6"
	RoomVersionV7  RoomVersion = "7"
	RoomVersionV8  RoomVersion = "8"
	RoomVersionV9  RoomVersion = "9"
	RoomVersionV10 RoomVersion = "10"
	RoomVersionV11 RoomVersion = "11"
	RoomVersionV12 RoomVersion = "12"
)

// AuthorizationRules selects the variant of the authorization rules that a
// room version uses.
type AuthorizationRules struct {
	// m.room.redaction events are authorized by the redact level or by
	// the origin of the redacted event (v1, v2).
	SpecialCaseRoomRedaction bool
	// m.room.aliases events are authorized by the sender's server name
	// (v1 to v5).
	SpecialCaseRoomAliases bool
	// Event JSON must be canonical (v6+). Not checked by this package.
	StrictCanonicalJSON bool
	// Changes to notifications power levels need the old level (v6+).
	LimitNotificationsPowerLevels bool
	// The knock membership and join rule exist (v7+).
	Knocking bool
	// The restricted join rule exists (v8+).
	RestrictedJoinRule bool
	// The knock_restricted join rule exists (v10+).
	KnockRestrictedJoinRule bool
	// Power levels must be JSON integers rather than numeric strings (v10+).
	IntegerPowerLevels bool
	// The room creator is the sender of m.room.create rather than the
	// creator content field (v11+).
	UseRoomCreateSender bool
	// Room creators have infinite power (v12+).
	ExplicitlyPrivilegeRoomCreators bool
	// m.room.create may list additional_creators (v12+).
	AdditionalRoomCreators bool
	// The room ID is derived from the create event ID, and m.room.create
	// is not listed in auth_events (v12+).
	RoomCreateEventIDAsRoomID bool
}

var (
	AuthorizationRulesV1 = AuthorizationRules{
		SpecialCaseRoomRedaction: true,
		SpecialCaseRoomAliases:   true,
	}
	AuthorizationRulesV3 = AuthorizationRules{
		SpecialCaseRoomAliases: true,
	}
	AuthorizationRulesV6 = AuthorizationRules{
		StrictCanonicalJSON:           true,
		LimitNotificationsPowerLevels: true,
	}
	AuthorizationRulesV7 = AuthorizationRules{
		StrictCanonicalJSON:           true,
		LimitNotificationsPowerLevels: true,
		Knocking:                      true,
	}
	AuthorizationRulesV8 = AuthorizationRules{
		StrictCanonicalJSON:           true,
		LimitNotificationsPowerLevels: true,
		Knocking:                      true,
		RestrictedJoinRule:            true,
	}
	AuthorizationRulesV10 = AuthorizationRules{
		StrictCanonicalJSON:           true,
		LimitNotificationsPowerLevels: true,
		Knocking:                      true,
		RestrictedJoinRule:            true,
		KnockRestrictedJoinRule:       true,
		IntegerPowerLevels:            true,
	}
	AuthorizationRulesV11 = AuthorizationRules{
		StrictCanonicalJSON:           true,
		LimitNotificationsPowerLevels: true,
		Knocking:                      true,
		RestrictedJoinRule:            true,
		KnockRestrictedJoinRule:       true,
		IntegerPowerLevels:            true,
		UseRoomCreateSender:           true,
	}
	AuthorizationRulesV12 = AuthorizationRules{
		StrictCanonicalJSON:             true,
		LimitNotificationsPowerLevels:   true,
		Knocking:                        true,
		RestrictedJoinRule:              true,
		KnockRestrictedJoinRule:         true,
		IntegerPowerLevels:              true,
		UseRoomCreateSender:             true,
		ExplicitlyPrivilegeRoomCreators: true,
		AdditionalRoomCreators:          true,
		RoomCreateEventIDAsRoomID:       true,
	}
)

// StateResolutionV2Rules selects the variant of state resolution v2.
type StateResolutionV2Rules struct {
	// Run the iterative auth checks from an empty state rather than from
	// the unconflicted state (v2.1).
	BeginIterativeAuthChecksWithEmptyStateMap bool
	// Include the conflicted state subgraph in the full conflicted set
	// (v2.1).
	ConsiderConflictedStateSubgraph bool
}

var (
	StateResolutionV2_0 = StateResolutionV2Rules{}
	StateResolutionV2_1 = StateResolutionV2Rules{
		BeginIterativeAuthChecksWithEmptyStateMap: true,
		ConsiderConflictedStateSubgraph:           true,
	}
)

// RoomVersionRules contains information about a given room version, e.g.
// which authorization rules and which state resolution variant to use.
type RoomVersionRules struct {
	Authorization   AuthorizationRules
	StateResolution StateResolutionV2Rules
}

var roomVersionMeta = map[RoomVersion]RoomVersionRules{
	RoomVersionV2:  {AuthorizationRulesV1, StateResolutionV2_0},
	RoomVersionV3:  {AuthorizationRulesV3, StateResolutionV2_0},
	RoomVersionV4:  {AuthorizationRulesV3, StateResolutionV2_0},
	RoomVersionV5:  {AuthorizationRulesV3, StateResolutionV2_0},
	RoomVersionV6:  {AuthorizationRulesV6, StateResolutionV2_0},
	RoomVersionV7:  {AuthorizationRulesV7, StateResolutionV2_0},
	RoomVersionV8:  {AuthorizationRulesV8, StateResolutionV2_0},
	RoomVersionV9:  {AuthorizationRulesV8, StateResolutionV2_0},
	RoomVersionV10: {AuthorizationRulesV10, StateResolutionV2_0},
	RoomVersionV11: {AuthorizationRulesV11, StateResolutionV2_0},
	RoomVersionV12: {AuthorizationRulesV12, StateResolutionV2_1},
}

// Rules returns the rules for the given room version. Room version 1 uses
// the first state resolution algorithm and is not supported.
func (v RoomVersion) Rules() (RoomVersionRules, error) {
	if r, ok := roomVersionMeta[v]; ok {
		return r, nil
	}
	return RoomVersionRules{}, UnsupportedRoomVersionError{Version: v}
}

// KnownRoomVersions returns the room versions that state resolution v2
// supports.
func KnownRoomVersions() []RoomVersion {
	return []RoomVersion{
		RoomVersionV2, RoomVersionV3, RoomVersionV4, RoomVersionV5,
		RoomVersionV6, RoomVersionV7, RoomVersionV8, RoomVersionV9,
		RoomVersionV10, RoomVersionV11, RoomVersionV12,
	}
}
