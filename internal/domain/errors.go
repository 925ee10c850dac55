package domain

import "errors"

var (
	ErrAlreadyRegistered  = errors.New("connection already registered")
	ErrInvalidRoom        = errors.New("invalid room")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrSendFailed         = errors.New("send failed")
	ErrConnectionClosed   = errors.New("connection closed")
)

// CloseCodeFor maps a gateway rejection to the close code sent to the client
func CloseCodeFor(err error) int {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return CloseAuthFailed
	case errors.Is(err, ErrResourceNotFound):
		return CloseResourceNotFound
	case errors.Is(err, ErrInvalidRoom):
		return CloseInvalidRoom
	default:
		return CloseInternalError
	}
}
