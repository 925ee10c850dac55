package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/taskflow-collab/internal/config"
	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

type recordingStore struct {
	mu    sync.Mutex
	calls []string
	seen  map[string]time.Time
	err   error
}

func (s *recordingStore) RecordLastSeen(_ context.Context, room domain.RoomID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, room.Key()+"/"+userID)
	if s.err != nil {
		return s.err
	}
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	s.seen[room.Key()+"/"+userID] = at
	return nil
}

func (s *recordingStore) LastSeen(_ context.Context, room domain.RoomID, userID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return time.Time{}, false, s.err
	}
	at, ok := s.seen[room.Key()+"/"+userID]
	return at, ok, nil
}

// lastVisitOf decodes last_visit from the connected greeting
func lastVisitOf(t *testing.T, sock *fakeSocket) *time.Time {
	t.Helper()
	f, ok := sock.last(t, domain.MessageTypeConnected)
	require.True(t, ok)
	var payload domain.ConnectedPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	return payload.LastVisit
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TypingTimeout = 3 * time.Second
	cfg.MaxMessageSize = 1 << 20

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 3*time.Second, opts.TypingTimeout)
	assert.Equal(t, int64(1<<20), opts.MaxMessageSize)
	assert.Equal(t, domain.TypingSweepInterval, DefaultOptions().TypingSweepInterval)
}

func TestOptionsFromConfig_FrameLimitFitsLongestPreview(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxMessageSize = 1024
	cfg.MaxPreviewLength = 5000

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, int64(domain.FrameLimit(5000)), opts.MaxMessageSize)
	assert.GreaterOrEqual(t, DefaultOptions().MaxMessageSize, int64(domain.MaxPreviewLength*12))
}

func TestCollaborationState_StartStop(t *testing.T) {
	state := newTestState(t)
	_, s1 := join(t, state, ana, testTaskRoom)
	_, s2 := join(t, state, ben, workspaceRoom)

	state.Stop() // not started: no-op
	assert.False(t, s1.isClosed())

	state.Start(context.Background())
	state.Start(context.Background())
	assert.True(t, state.Typing.Running())

	state.Stop()
	assert.False(t, state.Typing.Running())
	assert.Equal(t, domain.CloseGoingAway, s1.code())
	assert.Equal(t, domain.CloseGoingAway, s2.code())
}

func TestCollaborationState_RecordsLastSeenOnLeave(t *testing.T) {
	state := newTestState(t)
	store := &recordingStore{}
	state.SetPresenceStore(store)

	tab1, _ := join(t, state, ana, testTaskRoom)
	tab2, _ := join(t, state, ana, testTaskRoom)

	tab1.Close()
	assert.Empty(t, store.calls, "still online in the other tab")

	tab2.Close()
	require.Equal(t, []string{"task:42/u1"}, store.calls)
}

func TestCollaborationState_StoreErrorIsNotFatal(t *testing.T) {
	state := newTestState(t)
	state.SetPresenceStore(&recordingStore{err: errors.New("redis down")})

	h, _ := join(t, state, ana, testTaskRoom)
	h.Close()

	assert.Equal(t, domain.PresenceStatusOffline, state.Presence.Snapshot(testTaskRoom)["u1"].Status)
}

func TestCollaborationState_LastVisit(t *testing.T) {
	t.Run("first visit has none", func(t *testing.T) {
		state := newTestState(t)
		state.SetPresenceStore(&recordingStore{})

		_, sock := join(t, state, ana, testTaskRoom)
		assert.Nil(t, lastVisitOf(t, sock))
	})

	t.Run("held offline entry", func(t *testing.T) {
		state := newTestState(t)
		left := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		state.Presence.SetClock(func() time.Time { return left })

		h, _ := join(t, state, ana, testTaskRoom)
		h.Close()

		_, sock := join(t, state, ana, testTaskRoom)
		require.NotNil(t, lastVisitOf(t, sock))
		assert.True(t, left.Equal(*lastVisitOf(t, sock)))
	})

	t.Run("pruned entry falls back to the store", func(t *testing.T) {
		state := newTestState(t)
		store := &recordingStore{}
		state.SetPresenceStore(store)
		left := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		state.Presence.SetClock(func() time.Time { return left })

		h, _ := join(t, state, ana, testTaskRoom)
		h.Close()
		require.Equal(t, 1, state.Presence.PruneOffline(left.Add(time.Hour)))

		_, sock := join(t, state, ana, testTaskRoom)
		require.NotNil(t, lastVisitOf(t, sock))
		assert.True(t, left.Equal(*lastVisitOf(t, sock)))
	})

	t.Run("second tab gets none", func(t *testing.T) {
		state := newTestState(t)
		h, _ := join(t, state, ana, testTaskRoom)
		h.Close()
		join(t, state, ana, testTaskRoom)

		_, sock := join(t, state, ana, testTaskRoom)
		assert.Nil(t, lastVisitOf(t, sock))
	})

	t.Run("store error is ignored", func(t *testing.T) {
		state := newTestState(t)
		state.SetPresenceStore(&recordingStore{err: errors.New("redis down")})

		_, sock := join(t, state, ana, testTaskRoom)
		assert.Nil(t, lastVisitOf(t, sock))
	})
}
