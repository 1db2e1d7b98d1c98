package spec

import (
	"fmt"
	"strings"
)

const (
	roomSigil  = '!'
	eventSigil = '$'
)

// A RoomID identifies a matrix room.
// https://spec.matrix.org/v1.16/appendices/#room-ids
//
// From room version 12 room IDs carry no server name: the opaque part is
// the reference hash of the room's m.room.create event.
type RoomID struct {
	opaqueID string
	domain   ServerName
}

// NewRoomID parses and validates a room ID. There are no length or
// character restrictions on the opaque part.
func NewRoomID(id string) (*RoomID, error) {
	if len(id) < 2 || id[0] != roomSigil {
		return nil, fmt.Errorf("room ID %q does not start with '%c' followed by an opaque ID", id, roomSigil)
	}
	opaqueID, domain, hasDomain := strings.Cut(id[1:], string(localDomainSeparator))
	if opaqueID == "" {
		return nil, fmt.Errorf("room ID %q has an empty opaque ID", id)
	}
	if hasDomain && !ServerName(domain).Valid() {
		return nil, fmt.Errorf("room ID %q has an invalid domain", id)
	}
	return &RoomID{opaqueID: opaqueID, domain: ServerName(domain)}, nil
}

// String returns the full room ID, sigil included.
func (room RoomID) String() string {
	if room.domain == "" {
		return string(roomSigil) + room.opaqueID
	}
	return string(roomSigil) + room.opaqueID + string(localDomainSeparator) + string(room.domain)
}

func (room RoomID) OpaqueID() string {
	return room.opaqueID
}

// Domain returns the server name of the room ID, which is empty for room
// IDs without one.
func (room RoomID) Domain() ServerName {
	return room.domain
}

// CreateEventID returns the event ID of the m.room.create event that the
// room ID was derived from. Only meaningful for rooms whose room ID is the
// create event's reference hash.
func (room RoomID) CreateEventID() (string, error) {
	if room.domain != "" {
		return "", fmt.Errorf("room ID %q has a server name and is not derived from its create event", room.String())
	}
	return string(eventSigil) + room.opaqueID, nil
}
