package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

type fakeClient struct {
	data   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.(string)
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(_ context.Context, key string) *goredis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

var taskRoom = domain.RoomID{Kind: domain.RoomKindTask, ID: "42"}

func TestKey(t *testing.T) {
	assert.Equal(t, "presence:last_seen:task:42:u1", Key(taskRoom, "u1"))
}

func TestPresenceStore_RoundTrip(t *testing.T) {
	c := newFakeClient()
	s := NewPresenceStore(c, time.Hour)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	require.NoError(t, s.RecordLastSeen(context.Background(), taskRoom, "u1", at))
	assert.Equal(t, time.Hour, c.ttls[Key(taskRoom, "u1")])

	got, ok, err := s.LastSeen(context.Background(), taskRoom, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestPresenceStore_Missing(t *testing.T) {
	s := NewPresenceStore(newFakeClient(), time.Hour)

	_, ok, err := s.LastSeen(context.Background(), taskRoom, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPresenceStore_Errors(t *testing.T) {
	c := newFakeClient()
	c.setErr = errors.New("connection refused")
	s := NewPresenceStore(c, time.Hour)

	err := s.RecordLastSeen(context.Background(), taskRoom, "u1", time.Now())
	assert.ErrorContains(t, err, "connection refused")

	c.data[Key(taskRoom, "u2")] = "not-a-time"
	_, _, err = s.LastSeen(context.Background(), taskRoom, "u2")
	assert.Error(t, err)

	assert.NoError(t, s.Close())
}
