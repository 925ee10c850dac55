package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

const (
	// Time allowed to write a control frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Socket is the part of *websocket.Conn the collaboration core uses.
// Close and WriteControl may be called concurrently with the other methods.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Socket = (*websocket.Conn)(nil)

// Connection is one live client socket bound to exactly one room and one user
type Connection struct {
	ID            string
	User          domain.User
	Room          domain.RoomID
	EstablishedAt time.Time

	socket    Socket
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps an authenticated socket
func NewConnection(socket Socket, user domain.User, room domain.RoomID) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		User:          user,
		Room:          room,
		EstablishedAt: time.Now().UTC(),
		socket:        socket,
		closed:        make(chan struct{}),
	}
}

// Write sends one text frame. Writes are serialized; timeout bounds a slow peer.
func (c *Connection) Write(payload []byte, timeout time.Duration) error {
	select {
	case <-c.closed:
		return domain.ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		if err := c.socket.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
		}
	}
	if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	return nil
}

// Close sends a close frame with code and tears the socket down. Safe to call repeatedly.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.socket.Close()
	})
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// IsClosed reports whether Close has run
func (c *Connection) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// keepalive pings the peer until the connection closes
func (c *Connection) keepalive(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close(websocket.CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
