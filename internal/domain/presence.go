package domain

import (
	"sort"
	"time"
)

// PresenceStatus is the per-room status of a user
type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

// PresenceEntry is the state of one user in one room
type PresenceEntry struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name"`
	Status      PresenceStatus `json:"status"`
	IsTyping    bool           `json:"is_typing"`
	LastSeen    time.Time      `json:"last_seen"`
}

// Snapshot is a copy of a room's presence keyed by user id
type Snapshot map[string]PresenceEntry

// Online returns the online entries sorted by user id
func (s Snapshot) Online() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(s))
	for _, e := range s {
		if e.Status == PresenceStatusOnline {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Entries returns every entry sorted by user id
func (s Snapshot) Entries() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// TypingCount counts users currently flagged as typing
func (s Snapshot) TypingCount() int {
	n := 0
	for _, e := range s {
		if e.IsTyping {
			n++
		}
	}
	return n
}
