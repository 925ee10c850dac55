package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// Broadcaster fans messages out to the connections of a room
type Broadcaster struct {
	registry    *Registry
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewBroadcaster creates a broadcaster over registry
func NewBroadcaster(registry *Registry, sendTimeout time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = domain.SendTimeout
	}
	return &Broadcaster{
		registry:    registry,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Broadcast sends msg to every connection in room except those owned by excludeUserID.
// The message is serialized once. Dead connections are reaped; delivery to the rest continues.
// Returns the number of connections the frame was written to.
func (b *Broadcaster) Broadcast(room domain.RoomID, msg domain.OutboundMessage, excludeUserID string) int {
	payload, err := msg.Marshal()
	if err != nil {
		b.logger.Error("encode broadcast", zap.String("room", room.Key()), zap.String("type", string(msg.Type)), zap.Error(err))
		return 0
	}
	return b.BroadcastRaw(room, payload, excludeUserID)
}

// BroadcastRaw is Broadcast for an already-encoded frame
func (b *Broadcaster) BroadcastRaw(room domain.RoomID, payload []byte, excludeUserID string) int {
	conns := b.registry.ListConnections(room)

	targets := conns[:0]
	for _, c := range conns {
		if excludeUserID != "" && c.User.ID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}

	switch len(targets) {
	case 0:
		return 0
	case 1:
		if b.TryDeliverOrReap(targets[0], payload) {
			return 1
		}
		return 0
	}

	// Sends run concurrently so one slow peer costs at most sendTimeout
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if b.TryDeliverOrReap(c, payload) {
				delivered.Add(1)
			}
		}(c)
	}
	wg.Wait()

	return int(delivered.Load())
}

// SendDirect writes msg to a single connection. Failure is returned, not acted on.
func (b *Broadcaster) SendDirect(conn *Connection, msg domain.OutboundMessage) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	return conn.Write(payload, b.sendTimeout)
}

// NotifyUser sends msg to every notification stream of userID
func (b *Broadcaster) NotifyUser(userID string, msg domain.OutboundMessage) int {
	return b.Broadcast(domain.GlobalRoom(userID), msg, "")
}

// TryDeliverOrReap writes payload to conn; on failure conn is unregistered and closed.
func (b *Broadcaster) TryDeliverOrReap(conn *Connection, payload []byte) bool {
	err := conn.Write(payload, b.sendTimeout)
	if err == nil {
		return true
	}

	b.logger.Debug("reaping connection",
		zap.String("room", conn.Room.Key()),
		zap.String("connection_id", conn.ID),
		zap.String("user_id", conn.User.ID),
		zap.Error(err),
	)
	b.registry.Unregister(conn)
	conn.Close(websocket.CloseGoingAway, "send failed")
	return false
}
