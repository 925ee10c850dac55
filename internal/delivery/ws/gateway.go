package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// Authenticator resolves a token to a user. Unknown or invalid tokens must
// return an error wrapping domain.ErrAuthRejected.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// ResourceResolver reports whether the entity behind a room exists
type ResourceResolver interface {
	Exists(ctx context.Context, room domain.RoomID) (bool, error)
}

// RoomSpec is the unvalidated room a client asked for
type RoomSpec struct {
	Kind string
	ID   string
}

// Gateway is the entry point for new sockets. Rejected sockets are closed
// with a close code and never reach the registry.
type Gateway struct {
	state    *CollaborationState
	auth     Authenticator
	resolver ResourceResolver
	logger   *zap.Logger
}

// NewGateway creates a gateway over state
func NewGateway(state *CollaborationState, auth Authenticator, resolver ResourceResolver) *Gateway {
	return &Gateway{
		state:    state,
		auth:     auth,
		resolver: resolver,
		logger:   state.logger,
	}
}

// Accept validates, authenticates and builds the handler for a room socket
func (g *Gateway) Accept(ctx context.Context, socket Socket, token string, spec RoomSpec) (*ConnectionHandler, error) {
	room, err := domain.NewRoomID(spec.Kind, spec.ID)
	if err != nil {
		return nil, g.reject(socket, err)
	}

	user, err := g.authenticate(ctx, token)
	if err != nil {
		return nil, g.reject(socket, err)
	}

	if g.resolver != nil {
		exists, err := g.resolver.Exists(ctx, room)
		if err != nil {
			return nil, g.reject(socket, fmt.Errorf("resolve %s: %w", room, err))
		}
		if !exists {
			return nil, g.reject(socket, fmt.Errorf("%w: %s", domain.ErrResourceNotFound, room))
		}
	}

	return g.accepted(socket, user, room), nil
}

// AcceptGlobal builds the handler for an account-wide notification stream
func (g *Gateway) AcceptGlobal(ctx context.Context, socket Socket, token string) (*ConnectionHandler, error) {
	user, err := g.authenticate(ctx, token)
	if err != nil {
		return nil, g.reject(socket, err)
	}
	return g.accepted(socket, user, domain.GlobalRoom(user.ID)), nil
}

// accepted builds the handler for a socket that passed every check
func (g *Gateway) accepted(socket Socket, user domain.User, room domain.RoomID) *ConnectionHandler {
	h := newConnectionHandler(g.state, NewConnection(socket, user, room))
	h.markAuthenticated()
	return h
}

// Connect accepts a room socket and runs it until it closes
func (g *Gateway) Connect(ctx context.Context, socket Socket, token string, spec RoomSpec) error {
	h, err := g.Accept(ctx, socket, token, spec)
	if err != nil {
		return err
	}
	return h.Run(ctx)
}

// ConnectGlobal accepts a notification socket and runs it until it closes
func (g *Gateway) ConnectGlobal(ctx context.Context, socket Socket, token string) error {
	h, err := g.AcceptGlobal(ctx, socket, token)
	if err != nil {
		return err
	}
	return h.Run(ctx)
}

func (g *Gateway) authenticate(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: missing token", domain.ErrAuthRejected)
	}
	if g.auth == nil {
		return domain.User{}, fmt.Errorf("%w: no authenticator configured", domain.ErrAuthRejected)
	}

	user, err := g.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrAuthRejected) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !user.Active {
		return domain.User{}, fmt.Errorf("%w: account suspended", domain.ErrAuthRejected)
	}
	return user, nil
}

// reject closes socket with the code matching err and returns err
func (g *Gateway) reject(socket Socket, err error) error {
	code := domain.CloseCodeFor(err)
	reason := closeReason(code)

	msg := websocket.FormatCloseMessage(code, reason)
	_ = socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = socket.Close()

	g.logger.Info("connection rejected", zap.Int("code", code), zap.Error(err))
	return err
}

func closeReason(code int) string {
	switch code {
	case domain.CloseAuthFailed:
		return "authentication failed"
	case domain.CloseResourceNotFound:
		return "resource not found"
	case domain.CloseInvalidRoom:
		return "invalid room"
	default:
		return "internal error"
	}
}
