package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// HandlerState is the lifecycle stage of a connection. A handler starts in
// connecting; the gateway moves it to authenticated once every check passed.
type HandlerState int32

const (
	StateConnecting HandlerState = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s HandlerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionHandler owns one client's socket from activation to cleanup
type ConnectionHandler struct {
	conn    *Connection
	state   *CollaborationState
	limiter *rate.Limiter
	logger  *zap.Logger

	status      atomic.Int32
	cleanupOnce sync.Once
}

func newConnectionHandler(state *CollaborationState, conn *Connection) *ConnectionHandler {
	h := &ConnectionHandler{
		conn:  conn,
		state: state,
		logger: state.logger.With(
			zap.String("room", conn.Room.Key()),
			zap.String("connection_id", conn.ID),
			zap.String("user_id", conn.User.ID),
		),
	}
	if state.opts.MessageRateLimit > 0 {
		h.limiter = rate.NewLimiter(state.opts.MessageRateLimit, state.opts.MessageBurst)
	}
	h.status.Store(int32(StateConnecting))
	return h
}

var errNotAuthenticated = errors.New("connection not authenticated")

// markAuthenticated moves a connecting handler to authenticated
func (h *ConnectionHandler) markAuthenticated() bool {
	return h.status.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated))
}

// Connection returns the handled connection
func (h *ConnectionHandler) Connection() *Connection {
	return h.conn
}

// State returns the current lifecycle stage
func (h *ConnectionHandler) State() HandlerState {
	return HandlerState(h.status.Load())
}

// Run activates the connection and processes frames until the socket closes or ctx ends.
// Cleanup always runs before Run returns.
func (h *ConnectionHandler) Run(ctx context.Context) error {
	defer h.Close()

	if err := h.activate(); err != nil {
		return err
	}

	socket := h.conn.socket
	socket.SetReadLimit(h.state.opts.MaxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.conn.keepalive(pingPeriod)
	go func() {
		select {
		case <-ctx.Done():
			h.conn.Close(websocket.CloseGoingAway, "server shutdown")
		case <-h.conn.Done():
		}
	}()

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && !h.conn.IsClosed() {
				h.logger.Debug("read error", zap.Error(err))
			}
			return nil
		}
		h.HandleFrame(data)
	}
}

// activate registers the connection, greets it and announces it to the room
func (h *ConnectionHandler) activate() error {
	if h.State() != StateAuthenticated {
		return fmt.Errorf("activate %s: %w", h.conn.ID, errNotAuthenticated)
	}
	lastVisit := h.state.lastVisit(h.conn.Room, h.conn.User.ID)
	if err := h.state.Registry.Register(h.conn); err != nil {
		return fmt.Errorf("activate %s: %w", h.conn.ID, err)
	}
	snapshot := h.state.Presence.MarkJoined(h.conn.Room, h.conn.User)
	h.status.Store(int32(StateActive))

	h.reply(domain.NewOutbound(domain.MessageTypeConnected, domain.ConnectedPayload{
		ConnectionID: h.conn.ID,
		Room:         h.conn.Room.Key(),
		User:         h.conn.User,
		Presence:     snapshot.Entries(),
		Stats:        h.roomStats(snapshot),
		LastVisit:    lastVisit,
	}))

	if !h.conn.Room.IsGlobal() {
		h.state.Broadcaster.Broadcast(h.conn.Room, h.presenceUpdate(domain.PresenceEventJoined, domain.PresenceStatusOnline, snapshot), h.conn.User.ID)
	}

	h.logger.Info("connection active")
	return nil
}

// HandleFrame processes one inbound frame. Bad input is answered locally and never closes the connection.
func (h *ConnectionHandler) HandleFrame(data []byte) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.replyError(domain.ErrorCodeRateLimited, "too many messages")
		return
	}

	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		h.replyError(domain.ErrorCodeMalformedFrame, domain.ErrMalformedFrame.Error())
		return
	}

	if h.conn.Room.IsGlobal() {
		switch frame.Type {
		case domain.MessageTypePresencePing, domain.MessageTypeGetRoomStats:
		default:
			h.replyError(domain.ErrorCodeNotSupported, fmt.Sprintf("%s is not available on notification streams", frame.Type))
			return
		}
	}

	switch frame.Type {
	case domain.MessageTypeTypingStart:
		h.handleTyping(true)
	case domain.MessageTypeTypingStop:
		h.handleTyping(false)
	case domain.MessageTypePresencePing:
		h.reply(domain.NewOutbound(domain.MessageTypePresencePong, domain.PongPayload{ServerTime: time.Now().UTC()}))
	case domain.MessageTypeGetRoomStats:
		h.reply(domain.NewOutbound(domain.MessageTypeRoomStats, h.roomStats(h.state.Presence.Snapshot(h.conn.Room))))
	case domain.MessageTypeGetPresence:
		h.reply(domain.NewOutbound(domain.MessageTypePresenceSnapshot, domain.PresenceSnapshotPayload{
			Room:  h.conn.Room.Key(),
			Users: h.state.Presence.Snapshot(h.conn.Room).Entries(),
		}))
	case domain.MessageTypeCommentPreview:
		h.handleCommentPreview(frame.Data)
	default:
		h.replyError(domain.ErrorCodeUnknownType, fmt.Sprintf("%s: %q", domain.ErrUnknownMessageType, frame.Type))
	}
}

func (h *ConnectionHandler) handleTyping(isTyping bool) {
	entry, ok := h.state.Presence.SetTyping(h.conn.Room, h.conn.User.ID, isTyping)
	if !ok {
		return
	}
	h.state.Broadcaster.Broadcast(h.conn.Room, domain.NewOutbound(domain.MessageTypeUserTyping, domain.UserTypingPayload{
		Room:        h.conn.Room.Key(),
		UserID:      entry.UserID,
		DisplayName: entry.DisplayName,
		IsTyping:    entry.IsTyping,
	}), h.conn.User.ID)
}

// handleCommentPreview relays a draft to the room; nothing is persisted
func (h *ConnectionHandler) handleCommentPreview(raw json.RawMessage) {
	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			h.replyError(domain.ErrorCodeInvalidPayload, "data must be an object")
			return
		}
	}
	if err := ValidatePreviewContent(data["content"], h.state.opts.MinPreviewLength, h.state.opts.MaxPreviewLength); err != nil {
		h.replyError(domain.ErrorCodeInvalidPayload, err.Error())
		return
	}

	data["user_id"] = h.conn.User.ID
	data["display_name"] = h.conn.User.DisplayName
	h.state.Broadcaster.Broadcast(h.conn.Room, domain.NewOutbound(domain.MessageTypeCommentPreview, data), h.conn.User.ID)
}

// ValidatePreviewContent checks a comment_preview content field
func ValidatePreviewContent(v any, minLen, maxLen int) error {
	content, ok := v.(string)
	if !ok {
		return errors.New("content must be a string")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n < minLen {
		return fmt.Errorf("content must be at least %d characters", minLen)
	}
	if maxLen > 0 && n > maxLen {
		return fmt.Errorf("content must be at most %d characters", maxLen)
	}
	return nil
}

func (h *ConnectionHandler) roomStats(snapshot domain.Snapshot) domain.RoomStatsPayload {
	return domain.RoomStatsPayload{
		Room:            h.conn.Room.Key(),
		ConnectionCount: h.state.Registry.ConnectionCount(h.conn.Room),
		UserCount:       len(h.state.Registry.ListUsers(h.conn.Room)),
		TypingCount:     snapshot.TypingCount(),
	}
}

func (h *ConnectionHandler) presenceUpdate(event string, status domain.PresenceStatus, snapshot domain.Snapshot) domain.OutboundMessage {
	return domain.NewOutbound(domain.MessageTypePresenceUpdate, domain.PresenceUpdatePayload{
		Room:        h.conn.Room.Key(),
		Event:       event,
		UserID:      h.conn.User.ID,
		DisplayName: h.conn.User.DisplayName,
		Status:      status,
		OnlineUsers: snapshot.Online(),
	})
}

// reply sends to this connection only; a failed write reaps the connection
func (h *ConnectionHandler) reply(msg domain.OutboundMessage) {
	payload, err := msg.Marshal()
	if err != nil {
		h.logger.Error("encode reply", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	h.state.Broadcaster.TryDeliverOrReap(h.conn, payload)
}

func (h *ConnectionHandler) replyError(code, message string) {
	h.reply(domain.NewErrorMessage(code, message))
}

// Close runs cleanup exactly once, whichever path gets here first
func (h *ConnectionHandler) Close() {
	h.cleanupOnce.Do(h.cleanup)
}

func (h *ConnectionHandler) cleanup() {
	wasActive := h.State() == StateActive
	h.status.Store(int32(StateClosed))

	h.state.Registry.Unregister(h.conn)
	h.conn.Close(websocket.CloseNormalClosure, "")

	if !wasActive {
		return
	}

	wentOffline := h.state.Presence.MarkLeft(h.conn.Room, h.conn.User.ID)
	if wentOffline {
		h.state.recordLastSeen(h.conn.Room, h.conn.User.ID)
	}

	if wentOffline && !h.conn.Room.IsGlobal() && h.state.Registry.ConnectionCount(h.conn.Room) > 0 {
		snapshot := h.state.Presence.Snapshot(h.conn.Room)
		h.state.Broadcaster.Broadcast(h.conn.Room, h.presenceUpdate(domain.PresenceEventLeft, domain.PresenceStatusOffline, snapshot), h.conn.User.ID)
	}

	h.logger.Info("connection closed", zap.Duration("lifetime", time.Since(h.conn.EstablishedAt)))
}
