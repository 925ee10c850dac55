package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// TypingTimer periodically expires stale typing flags and announces the change.
// It is started and stopped explicitly by whoever owns the CollaborationState.
type TypingTimer struct {
	presence    *PresenceTracker
	broadcaster *Broadcaster
	interval    time.Duration
	timeout     time.Duration
	retention   time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTypingTimer creates a stopped timer. Non-positive durations fall back to the defaults.
func NewTypingTimer(presence *PresenceTracker, broadcaster *Broadcaster, interval, timeout, retention time.Duration, logger *zap.Logger) *TypingTimer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = domain.TypingSweepInterval
	}
	if timeout <= 0 {
		timeout = domain.TypingTimeout
	}
	if retention <= 0 {
		retention = domain.PresenceRetention
	}
	return &TypingTimer{
		presence:    presence,
		broadcaster: broadcaster,
		interval:    interval,
		timeout:     timeout,
		retention:   retention,
		logger:      logger,
	}
}

// Start begins ticking. Calling Start on a running timer does nothing.
func (t *TypingTimer) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(ctx, t.done)
}

// Stop halts the timer and waits for the tick goroutine to exit
func (t *TypingTimer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the timer is started
func (t *TypingTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *TypingTimer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(t.presence.Now())
		}
	}
}

// Sweep runs one tick as of now and returns how many typing flags were cleared
func (t *TypingTimer) Sweep(now time.Time) int {
	cutoff := now.Add(-t.timeout)

	cleared := 0
	for _, ref := range t.presence.StaleTyping(cutoff) {
		entry, ok := t.presence.ClearTypingIfIdle(ref.Room, ref.UserID, cutoff)
		if !ok {
			continue
		}
		cleared++
		t.broadcaster.Broadcast(ref.Room, domain.NewOutbound(domain.MessageTypeUserTyping, domain.UserTypingPayload{
			Room:        ref.Room.Key(),
			UserID:      entry.UserID,
			DisplayName: entry.DisplayName,
			IsTyping:    false,
		}), entry.UserID)
	}

	if t.retention > 0 {
		if n := t.presence.PruneOffline(now.Add(-t.retention)); n > 0 {
			t.logger.Debug("pruned offline presence", zap.Int("entries", n))
		}
	}
	if cleared > 0 {
		t.logger.Debug("expired typing indicators", zap.Int("count", cleared))
	}
	return cleared
}
