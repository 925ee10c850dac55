package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// RoomKind scopes a room to the entity it is about
type RoomKind string

const (
	RoomKindTask           RoomKind = "task"
	RoomKindWorkspace      RoomKind = "workspace"
	RoomKindTemplate       RoomKind = "template"
	RoomKindGlobalMentions RoomKind = "global-mentions"
)

// roomIDRegex matches entity ids (numeric ids, uuids, slugs)
var roomIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RoomID identifies a room. It has no persisted row: it exists while connections share it.
type RoomID struct {
	Kind RoomKind
	ID   string
}

// Key returns the canonical "<kind>:<id>" form, e.g. "task:42"
func (r RoomID) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r RoomID) String() string {
	return r.Key()
}

// IsGlobal reports whether this is a synthetic per-user notification room
func (r RoomID) IsGlobal() bool {
	return r.Kind == RoomKindGlobalMentions
}

// IsValidRoomKind reports whether kind names a joinable entity room
func IsValidRoomKind(kind RoomKind) bool {
	switch kind {
	case RoomKindTask, RoomKindWorkspace, RoomKindTemplate:
		return true
	}
	return false
}

// NewRoomID validates kind and id for an entity room.
// global-mentions rooms are only reachable through GlobalRoom.
func NewRoomID(kind, id string) (RoomID, error) {
	k := RoomKind(strings.ToLower(strings.TrimSpace(kind)))
	id = strings.TrimSpace(id)

	if !IsValidRoomKind(k) {
		return RoomID{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRoom, kind)
	}
	if !roomIDRegex.MatchString(id) {
		return RoomID{}, fmt.Errorf("%w: bad id %q", ErrInvalidRoom, id)
	}
	return RoomID{Kind: k, ID: id}, nil
}

// GlobalRoom is the synthetic room holding every notification stream of one user
func GlobalRoom(userID string) RoomID {
	return RoomID{Kind: RoomKindGlobalMentions, ID: userID}
}
