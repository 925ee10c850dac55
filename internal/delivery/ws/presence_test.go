package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func TestPresence_JoinAndLeave(t *testing.T) {
	r := NewRegistry()
	p := NewPresenceTracker(r)

	c := NewConnection(newFakeSocket(), ana, testTaskRoom)
	require.NoError(t, r.Register(c))

	snap := p.MarkJoined(testTaskRoom, ana)
	require.Contains(t, snap, "u1")
	assert.Equal(t, domain.PresenceStatusOnline, snap["u1"].Status)
	assert.Equal(t, "Ana", snap["u1"].DisplayName)

	assert.False(t, p.MarkLeft(testTaskRoom, "u1"), "still registered")

	r.Unregister(c)
	assert.True(t, p.MarkLeft(testTaskRoom, "u1"))
	assert.False(t, p.MarkLeft(testTaskRoom, "u1"), "already offline")
	assert.False(t, p.MarkLeft(testTaskRoom, "nobody"))

	entry := p.Snapshot(testTaskRoom)["u1"]
	assert.Equal(t, domain.PresenceStatusOffline, entry.Status)
	assert.Empty(t, p.Snapshot(testTaskRoom).Online())
}

func TestPresence_MultipleConnectionsStayOnline(t *testing.T) {
	r := NewRegistry()
	p := NewPresenceTracker(r)

	tab1 := NewConnection(newFakeSocket(), ana, testTaskRoom)
	tab2 := NewConnection(newFakeSocket(), ana, testTaskRoom)
	require.NoError(t, r.Register(tab1))
	require.NoError(t, r.Register(tab2))
	p.MarkJoined(testTaskRoom, ana)
	p.MarkJoined(testTaskRoom, ana)

	r.Unregister(tab1)
	assert.False(t, p.MarkLeft(testTaskRoom, "u1"))
	assert.Len(t, p.Snapshot(testTaskRoom).Online(), 1)

	r.Unregister(tab2)
	assert.True(t, p.MarkLeft(testTaskRoom, "u1"))
}

func TestPresence_SetTyping(t *testing.T) {
	p := NewPresenceTracker(NewRegistry())

	_, changed := p.SetTyping(testTaskRoom, "u1", true)
	assert.False(t, changed, "unknown users are ignored")
	assert.Empty(t, p.Snapshot(testTaskRoom))

	p.MarkJoined(testTaskRoom, ana)

	entry, changed := p.SetTyping(testTaskRoom, "u1", true)
	assert.True(t, changed)
	assert.True(t, entry.IsTyping)

	_, changed = p.SetTyping(testTaskRoom, "u1", true)
	assert.False(t, changed)

	assert.Equal(t, 1, p.Snapshot(testTaskRoom).TypingCount())

	entry, changed = p.SetTyping(testTaskRoom, "u1", false)
	assert.True(t, changed)
	assert.False(t, entry.IsTyping)
}

func TestPresence_LeaveClearsTyping(t *testing.T) {
	p := NewPresenceTracker(NewRegistry())
	p.MarkJoined(testTaskRoom, ana)
	p.SetTyping(testTaskRoom, "u1", true)

	require.True(t, p.MarkLeft(testTaskRoom, "u1"))
	assert.False(t, p.Snapshot(testTaskRoom)["u1"].IsTyping)
}

func TestPresence_StaleTypingAndClear(t *testing.T) {
	clock := newClock()
	p := NewPresenceTracker(NewRegistry())
	p.SetClock(clock.Now)

	p.MarkJoined(testTaskRoom, ana)
	p.MarkJoined(testTaskRoom, ben)
	p.SetTyping(testTaskRoom, "u1", true)

	clock.Advance(8 * time.Second)
	p.SetTyping(testTaskRoom, "u2", true)

	clock.Advance(3 * time.Second)
	cutoff := clock.Now().Add(-10 * time.Second)

	refs := p.StaleTyping(cutoff)
	require.Len(t, refs, 1)
	assert.Equal(t, TypingRef{Room: testTaskRoom, UserID: "u1"}, refs[0])

	_, ok := p.ClearTypingIfIdle(testTaskRoom, "u2", cutoff)
	assert.False(t, ok, "recent activity is kept")

	entry, ok := p.ClearTypingIfIdle(testTaskRoom, "u1", cutoff)
	assert.True(t, ok)
	assert.False(t, entry.IsTyping)

	_, ok = p.ClearTypingIfIdle(testTaskRoom, "u1", cutoff)
	assert.False(t, ok, "already cleared")
}

func TestPresence_ClearTypingSkipsRefreshedUser(t *testing.T) {
	clock := newClock()
	p := NewPresenceTracker(NewRegistry())
	p.SetClock(clock.Now)

	p.MarkJoined(testTaskRoom, ana)
	p.SetTyping(testTaskRoom, "u1", true)
	clock.Advance(11 * time.Second)
	cutoff := clock.Now().Add(-10 * time.Second)
	require.Len(t, p.StaleTyping(cutoff), 1)

	// typing_start lands between the scan and the clear
	p.SetTyping(testTaskRoom, "u1", true)

	_, ok := p.ClearTypingIfIdle(testTaskRoom, "u1", cutoff)
	assert.False(t, ok)
	assert.True(t, p.Snapshot(testTaskRoom)["u1"].IsTyping)
}

func TestPresence_PruneOffline(t *testing.T) {
	clock := newClock()
	p := NewPresenceTracker(NewRegistry())
	p.SetClock(clock.Now)

	p.MarkJoined(testTaskRoom, ana)
	p.MarkJoined(testTaskRoom, ben)
	p.MarkJoined(workspaceRoom, cid)
	p.MarkLeft(testTaskRoom, "u1")
	p.MarkLeft(workspaceRoom, "u3")

	clock.Advance(time.Minute)
	assert.Zero(t, p.PruneOffline(clock.Now().Add(-10*time.Minute)))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 2, p.PruneOffline(clock.Now().Add(-10*time.Minute)))

	assert.NotContains(t, p.Snapshot(testTaskRoom), "u1")
	assert.Contains(t, p.Snapshot(testTaskRoom), "u2", "online users are never pruned")
	assert.Empty(t, p.Snapshot(workspaceRoom))
}
