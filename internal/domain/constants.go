package domain

import "time"

// ==== WebSocket Constants ====

// FrameEnvelopeAllowance covers the JSON envelope and extra fields around a preview's content
const FrameEnvelopeAllowance = 4096

// maxEscapedRuneBytes is the longest JSON encoding of one rune (an escaped surrogate pair)
const maxEscapedRuneBytes = 12

// MaxMessageSize is the maximum allowed inbound frame size in bytes.
// Larger frames are rejected by the transport with 1009.
const MaxMessageSize = MaxPreviewLength*maxEscapedRuneBytes + FrameEnvelopeAllowance

// FrameLimit returns the smallest read limit that admits every valid preview of maxPreview runes
func FrameLimit(maxPreview int) int {
	return maxPreview*maxEscapedRuneBytes + FrameEnvelopeAllowance
}

// ==== Close Codes ====

const (
	// CloseAuthFailed is sent when the token cannot be authenticated or the user is suspended
	CloseAuthFailed = 4001

	// CloseResourceNotFound is sent when the room's task/workspace/template does not exist
	CloseResourceNotFound = 4004

	// CloseInvalidRoom is sent when the room kind or id is malformed
	CloseInvalidRoom = 4400

	// CloseInternalError is sent when a collaborator fails unexpectedly (RFC 6455 1011)
	CloseInternalError = 1011

	// CloseGoingAway is sent on server shutdown
	CloseGoingAway = 1001
)

// ==== Timing Constants ====

const (
	// TypingTimeout is how long a typing flag survives without activity
	TypingTimeout = 10 * time.Second

	// TypingSweepInterval is the period of the typing expiry sweep
	TypingSweepInterval = 5 * time.Second

	// SendTimeout bounds a single socket write during fan-out
	SendTimeout = 2 * time.Second

	// PresenceRetention keeps offline entries visible before they are pruned
	PresenceRetention = 10 * time.Minute

	// SessionTTL is the lifetime of tokens issued by the in-memory authenticator
	SessionTTL = 24 * time.Hour

	// SessionCleanupInterval is how often expired in-memory tokens are dropped
	SessionCleanupInterval = 5 * time.Minute
)

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for API endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket handshakes (req/sec)
	DefaultRateLimitWS = 5

	// DefaultMessageRate is the inbound frame budget per connection (frames/sec)
	DefaultMessageRate = 20

	// DefaultMessageBurst is the inbound frame burst per connection
	DefaultMessageBurst = 40
)

// ==== Comment Preview Limits ====

const (
	MinPreviewLength = 1
	MaxPreviewLength = 2000
)
