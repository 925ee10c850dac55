package domain

import (
	"encoding/json"
	"time"
)

// MessageType defines the type of message being sent
type MessageType string

// Inbound (client -> server)
const (
	MessageTypeTypingStart    MessageType = "typing_start"
	MessageTypeTypingStop     MessageType = "typing_stop"
	MessageTypePresencePing   MessageType = "presence_ping"
	MessageTypeGetRoomStats   MessageType = "get_room_stats"
	MessageTypeGetPresence    MessageType = "get_presence"
	MessageTypeCommentPreview MessageType = "comment_preview" // Also relayed outbound
)

// Outbound (server -> client)
const (
	MessageTypeConnected        MessageType = "connected"
	MessageTypePresenceUpdate   MessageType = "presence_update"
	MessageTypePresenceSnapshot MessageType = "presence_snapshot"
	MessageTypeUserTyping       MessageType = "user_typing"
	MessageTypePresencePong     MessageType = "presence_pong"
	MessageTypeRoomStats        MessageType = "room_stats"
	MessageTypeCommentCreated   MessageType = "comment_created"
	MessageTypeCommentUpdated   MessageType = "comment_updated"
	MessageTypeCommentDeleted   MessageType = "comment_deleted"
	MessageTypeMentionReceived  MessageType = "mention_received"
	MessageTypeTaskUpdated      MessageType = "task_updated"
	MessageTypeTemplateUpdated  MessageType = "template_updated"
	MessageTypeError            MessageType = "error"
)

// Presence events carried in presence_update
const (
	PresenceEventJoined = "joined"
	PresenceEventLeft   = "left"
)

// Error codes carried in error frames
const (
	ErrorCodeMalformedFrame = "malformed_frame"
	ErrorCodeUnknownType    = "unknown_type"
	ErrorCodeInvalidPayload = "invalid_payload"
	ErrorCodeRateLimited    = "rate_limited"
	ErrorCodeNotSupported   = "not_supported"
)

// InboundFrame is one client frame: {"type": ..., "data": {...}}
type InboundFrame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OutboundMessage is the server envelope. It is built, serialized once and discarded.
type OutboundMessage struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewOutbound stamps a message with the current UTC time
func NewOutbound(t MessageType, data any) OutboundMessage {
	if data == nil {
		data = struct{}{}
	}
	return OutboundMessage{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal encodes the envelope to the wire format
func (m OutboundMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// ErrorPayload is the data of an error frame
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame for the sending connection only
func NewErrorMessage(code, message string) OutboundMessage {
	return NewOutbound(MessageTypeError, ErrorPayload{Code: code, Message: message})
}

// UserTypingPayload is broadcast when a user's typing flag changes
type UserTypingPayload struct {
	Room        string `json:"room"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

// PresenceUpdatePayload announces a join or leave
type PresenceUpdatePayload struct {
	Room        string          `json:"room"`
	Event       string          `json:"event"`
	UserID      string          `json:"user_id"`
	DisplayName string          `json:"display_name"`
	Status      PresenceStatus  `json:"status"`
	OnlineUsers []PresenceEntry `json:"online_users"`
}

// RoomStatsPayload answers get_room_stats
type RoomStatsPayload struct {
	Room            string `json:"room"`
	ConnectionCount int    `json:"connection_count"`
	UserCount       int    `json:"user_count"`
	TypingCount     int    `json:"typing_count"`
}

// PresenceSnapshotPayload answers get_presence
type PresenceSnapshotPayload struct {
	Room  string          `json:"room"`
	Users []PresenceEntry `json:"users"`
}

// ConnectedPayload is sent to a connection right after it becomes active
type ConnectedPayload struct {
	ConnectionID string           `json:"connection_id"`
	Room         string           `json:"room"`
	User         User             `json:"user"`
	Presence     []PresenceEntry  `json:"presence"`
	Stats        RoomStatsPayload `json:"stats"`
	LastVisit    *time.Time       `json:"last_visit,omitempty"` // when the user last left this room
}

// PongPayload answers presence_ping
type PongPayload struct {
	ServerTime time.Time `json:"server_time"`
}

