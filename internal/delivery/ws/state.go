package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mmuslimabdulj/taskflow-collab/internal/config"
	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// PresenceStore persists last-seen times after a user leaves a room. Optional.
type PresenceStore interface {
	RecordLastSeen(ctx context.Context, room domain.RoomID, userID string, at time.Time) error
	LastSeen(ctx context.Context, room domain.RoomID, userID string) (time.Time, bool, error)
}

// Options tunes the collaboration core
type Options struct {
	SendTimeout         time.Duration
	TypingTimeout       time.Duration
	TypingSweepInterval time.Duration
	PresenceRetention   time.Duration
	MaxMessageSize      int64
	MessageRateLimit    rate.Limit
	MessageBurst        int
	MinPreviewLength    int
	MaxPreviewLength    int
}

// DefaultOptions returns the built-in defaults
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig())
}

// OptionsFromConfig maps application config onto core options.
// The frame limit never drops below what a maximum-length preview needs.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SendTimeout:         cfg.SendTimeout,
		TypingTimeout:       cfg.TypingTimeout,
		TypingSweepInterval: cfg.TypingSweepInterval,
		PresenceRetention:   cfg.PresenceRetention,
		MaxMessageSize:      int64(max(cfg.MaxMessageSize, domain.FrameLimit(cfg.MaxPreviewLength))),
		MessageRateLimit:    cfg.MessageRateLimit,
		MessageBurst:        cfg.MessageBurst,
		MinPreviewLength:    cfg.MinPreviewLength,
		MaxPreviewLength:    cfg.MaxPreviewLength,
	}
}

// CollaborationState owns every piece of real-time state for the process.
// Nothing runs until Start is called.
type CollaborationState struct {
	Registry    *Registry
	Presence    *PresenceTracker
	Broadcaster *Broadcaster
	Typing      *TypingTimer
	Gateway     *Gateway
	Notifier    *Notifier

	opts          Options
	logger        *zap.Logger
	presenceStore PresenceStore

	mu      sync.Mutex
	started bool
}

// NewCollaborationState wires the core around the given collaborators
func NewCollaborationState(opts Options, auth Authenticator, resolver ResourceResolver, logger *zap.Logger) *CollaborationState {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := NewRegistry()
	presence := NewPresenceTracker(registry)
	broadcaster := NewBroadcaster(registry, opts.SendTimeout, logger)

	s := &CollaborationState{
		Registry:    registry,
		Presence:    presence,
		Broadcaster: broadcaster,
		Typing:      NewTypingTimer(presence, broadcaster, opts.TypingSweepInterval, opts.TypingTimeout, opts.PresenceRetention, logger),
		Notifier:    NewNotifier(broadcaster),
		opts:        opts,
		logger:      logger,
	}
	s.Gateway = NewGateway(s, auth, resolver)
	return s
}

// SetPresenceStore sets where last-seen times are recorded
func (s *CollaborationState) SetPresenceStore(ps PresenceStore) {
	s.presenceStore = ps
}

// Start launches background work (the typing sweep)
func (s *CollaborationState) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.Typing.Start(ctx)
	s.logger.Info("collaboration state started",
		zap.Duration("typing_timeout", s.opts.TypingTimeout),
		zap.Duration("typing_sweep", s.opts.TypingSweepInterval),
	)
}

// Stop halts the sweep and closes every live connection with 1001
func (s *CollaborationState) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.Typing.Stop()

	conns := s.Registry.All()
	for _, c := range conns {
		c.Close(domain.CloseGoingAway, "server shutdown")
	}
	s.logger.Info("collaboration state stopped", zap.Int("closed_connections", len(conns)))
}

func (s *CollaborationState) recordLastSeen(room domain.RoomID, userID string) {
	if s.presenceStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.presenceStore.RecordLastSeen(ctx, room, userID, s.Presence.Now()); err != nil {
		s.logger.Warn("record last seen",
			zap.String("room", room.Key()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// lastVisit returns when userID last left room. The in-memory entry wins; once it
// has been pruned the presence store is asked. Users already in the room get nil.
func (s *CollaborationState) lastVisit(room domain.RoomID, userID string) *time.Time {
	if room.IsGlobal() || s.Registry.UserConnectionCount(room, userID) > 0 {
		return nil
	}
	if at, ok := s.Presence.OfflineSince(room, userID); ok {
		return &at
	}
	if s.presenceStore == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	at, ok, err := s.presenceStore.LastSeen(ctx, room, userID)
	if err != nil {
		s.logger.Warn("read last seen",
			zap.String("room", room.Key()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if !ok {
		return nil
	}
	return &at
}
