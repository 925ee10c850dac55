package ws

import (
	"sort"
	"sync"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// RoomSummary is a point-in-time view of one room
type RoomSummary struct {
	Room        domain.RoomID
	Connections int
	Users       int
}

// Registry is the single source of truth for which connections are in which room.
// A room exists while it holds at least one connection.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connectionID -> connection
	rooms       map[string]map[string]*Connection // room key -> connectionID -> connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
	}
}

// Register adds conn under conn.Room
func (r *Registry) Register(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; exists {
		return domain.ErrAlreadyRegistered
	}

	key := conn.Room.Key()
	room := r.rooms[key]
	if room == nil {
		room = make(map[string]*Connection)
		r.rooms[key] = room
	}
	room[conn.ID] = conn
	r.connections[conn.ID] = conn
	return nil
}

// Unregister removes conn. Unknown connections are ignored so cleanup can run from several paths.
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID]; !exists {
		return false
	}
	delete(r.connections, conn.ID)

	key := conn.Room.Key()
	if room := r.rooms[key]; room != nil {
		delete(room, conn.ID)
		if len(room) == 0 {
			delete(r.rooms, key)
		}
	}
	return true
}

// IsRegistered reports whether conn is currently tracked
func (r *Registry) IsRegistered(conn *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[conn.ID]
	return ok
}

// ListConnections returns a copy of the room's connections
func (r *Registry) ListConnections(room domain.RoomID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room.Key()]
	out := make([]*Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// ListUsers returns the distinct users in the room, sorted by id
func (r *Registry) ListUsers(room domain.RoomID) []domain.User {
	conns := r.ListConnections(room)

	seen := make(map[string]struct{}, len(conns))
	users := make([]domain.User, 0, len(conns))
	for _, c := range conns {
		if _, dup := seen[c.User.ID]; dup {
			continue
		}
		seen[c.User.ID] = struct{}{}
		users = append(users, c.User)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// UserConnectionCount counts userID's connections in room
func (r *Registry) UserConnectionCount(room domain.RoomID, userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.rooms[room.Key()] {
		if c.User.ID == userID {
			n++
		}
	}
	return n
}

// ConnectionCount returns the number of connections in room
func (r *Registry) ConnectionCount(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room.Key()])
}

// All returns a copy of every live connection
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		out = append(out, c)
	}
	return out
}

// Rooms summarizes every live room, sorted by key
func (r *Registry) Rooms() []RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomSummary, 0, len(r.rooms))
	for _, members := range r.rooms {
		var summary RoomSummary
		users := make(map[string]struct{}, len(members))
		for _, c := range members {
			summary.Room = c.Room
			users[c.User.ID] = struct{}{}
		}
		summary.Connections = len(members)
		summary.Users = len(users)
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.Key() < out[j].Room.Key() })
	return out
}

// Stats returns the number of live rooms and connections
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.connections)
}
