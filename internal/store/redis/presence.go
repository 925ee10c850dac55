package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

const keyPrefix = "presence:last_seen:"

// client is the subset of go-redis commands the store uses
type client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// PresenceStore persists the last time a user left a room, so other services
// can show "last seen" after the in-memory entry is pruned.
type PresenceStore struct {
	client client
	ttl    time.Duration
	closer func() error
}

// Connect parses url, pings the server and returns a store whose keys expire after ttl
func Connect(ctx context.Context, url string, ttl time.Duration) (*PresenceStore, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	s := NewPresenceStore(c, ttl)
	s.closer = c.Close
	return s, nil
}

// NewPresenceStore wraps an existing client
func NewPresenceStore(c client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{client: c, ttl: ttl}
}

// Key returns the redis key for a user's last-seen time in room
func Key(room domain.RoomID, userID string) string {
	return keyPrefix + room.Key() + ":" + userID
}

// RecordLastSeen implements ws.PresenceStore
func (s *PresenceStore) RecordLastSeen(ctx context.Context, room domain.RoomID, userID string, at time.Time) error {
	if err := s.client.Set(ctx, Key(room, userID), at.UTC().Format(time.RFC3339Nano), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: record last seen: %w", err)
	}
	return nil
}

// LastSeen returns the stored time, with ok false when nothing is recorded
func (s *PresenceStore) LastSeen(ctx context.Context, room domain.RoomID, userID string) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, Key(room, userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: last seen: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: last seen %q: %w", raw, err)
	}
	return at, true, nil
}

// Close releases the client when the store owns it
func (s *PresenceStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
