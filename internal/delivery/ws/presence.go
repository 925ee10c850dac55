package ws

import (
	"sync"
	"time"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// TypingRef points at one user flagged as typing in one room
type TypingRef struct {
	Room   domain.RoomID
	UserID string
}

type roomPresence struct {
	room  domain.RoomID
	users map[string]*domain.PresenceEntry
}

// PresenceTracker keeps per-room, per-user presence and typing flags.
// Whether a user is online is decided from the registry, never from counters.
type PresenceTracker struct {
	mu       sync.Mutex
	rooms    map[string]*roomPresence // room key -> presence
	registry *Registry
	now      func() time.Time
}

// NewPresenceTracker creates a tracker backed by registry
func NewPresenceTracker(registry *Registry) *PresenceTracker {
	return &PresenceTracker{
		rooms:    make(map[string]*roomPresence),
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source (tests)
func (p *PresenceTracker) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// entryLocked returns the entry for user, creating room and entry as needed.
// Caller must hold p.mu.
func (p *PresenceTracker) entryLocked(room domain.RoomID, user domain.User) *domain.PresenceEntry {
	rp := p.rooms[room.Key()]
	if rp == nil {
		rp = &roomPresence{room: room, users: make(map[string]*domain.PresenceEntry)}
		p.rooms[room.Key()] = rp
	}
	e := rp.users[user.ID]
	if e == nil {
		e = &domain.PresenceEntry{UserID: user.ID, DisplayName: user.DisplayName}
		rp.users[user.ID] = e
	}
	return e
}

// lookupLocked returns an existing entry or nil. Caller must hold p.mu.
func (p *PresenceTracker) lookupLocked(room domain.RoomID, userID string) *domain.PresenceEntry {
	rp := p.rooms[room.Key()]
	if rp == nil {
		return nil
	}
	return rp.users[userID]
}

// snapshotLocked copies a room. Caller must hold p.mu.
func (p *PresenceTracker) snapshotLocked(room domain.RoomID) domain.Snapshot {
	rp := p.rooms[room.Key()]
	if rp == nil {
		return domain.Snapshot{}
	}
	out := make(domain.Snapshot, len(rp.users))
	for id, e := range rp.users {
		out[id] = *e
	}
	return out
}

// OfflineSince returns when userID went offline in room, if the entry is still held
func (p *PresenceTracker) OfflineSince(room domain.RoomID, userID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookupLocked(room, userID)
	if e == nil || e.Status != domain.PresenceStatusOffline {
		return time.Time{}, false
	}
	return e.LastSeen, true
}

// MarkJoined sets user online in room and returns the room's presence
func (p *PresenceTracker) MarkJoined(room domain.RoomID, user domain.User) domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entryLocked(room, user)
	e.DisplayName = user.DisplayName
	e.Status = domain.PresenceStatusOnline
	e.LastSeen = p.now()

	return p.snapshotLocked(room)
}

// MarkLeft marks userID offline unless another of their connections is still in the room.
// It reports whether the user went from online to offline.
func (p *PresenceTracker) MarkLeft(room domain.RoomID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registry != nil && p.registry.UserConnectionCount(room, userID) > 0 {
		return false
	}

	e := p.lookupLocked(room, userID)
	if e == nil || e.Status == domain.PresenceStatusOffline {
		return false
	}
	e.Status = domain.PresenceStatusOffline
	e.IsTyping = false
	e.LastSeen = p.now()
	return true
}

// SetTyping updates the typing flag and last_seen. Unknown users are ignored.
// The bool result reports whether the flag changed. Last writer wins.
func (p *PresenceTracker) SetTyping(room domain.RoomID, userID string, isTyping bool) (domain.PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookupLocked(room, userID)
	if e == nil {
		return domain.PresenceEntry{}, false
	}
	changed := e.IsTyping != isTyping
	e.IsTyping = isTyping
	e.LastSeen = p.now()
	return *e, changed
}

// ClearTypingIfIdle clears the typing flag only if it is still set and idle since cutoff
func (p *PresenceTracker) ClearTypingIfIdle(room domain.RoomID, userID string, cutoff time.Time) (domain.PresenceEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.lookupLocked(room, userID)
	if e == nil || !e.IsTyping || e.LastSeen.After(cutoff) {
		return domain.PresenceEntry{}, false
	}
	e.IsTyping = false
	return *e, true
}

// StaleTyping lists typing entries whose last activity is at or before cutoff
func (p *PresenceTracker) StaleTyping(cutoff time.Time) []TypingRef {
	p.mu.Lock()
	defer p.mu.Unlock()

	var refs []TypingRef
	for _, rp := range p.rooms {
		for id, e := range rp.users {
			if e.IsTyping && !e.LastSeen.After(cutoff) {
				refs = append(refs, TypingRef{Room: rp.room, UserID: id})
			}
		}
	}
	return refs
}

// Snapshot returns a copy of the room's presence
func (p *PresenceTracker) Snapshot(room domain.RoomID) domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(room)
}

// PruneOffline drops offline entries last seen before cutoff and forgets empty rooms
func (p *PresenceTracker) PruneOffline(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pruned := 0
	for key, rp := range p.rooms {
		for id, e := range rp.users {
			if e.Status == domain.PresenceStatusOffline && e.LastSeen.Before(cutoff) {
				delete(rp.users, id)
				pruned++
			}
		}
		if len(rp.users) == 0 {
			delete(p.rooms, key)
		}
	}
	return pruned
}

// Now returns the tracker's current time
func (p *PresenceTracker) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now()
}
