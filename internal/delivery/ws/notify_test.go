package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

func TestNotifier_Comments(t *testing.T) {
	state := newTestState(t)
	_, author := join(t, state, ana, testTaskRoom)
	_, reader := join(t, state, ben, testTaskRoom)
	author.reset()
	reader.reset()

	n := state.Notifier
	assert.Equal(t, 1, n.CommentCreated("42", map[string]string{"id": "c1"}, "u1"))
	assert.Equal(t, 1, n.CommentUpdated("42", map[string]string{"id": "c1"}, "u1"))
	assert.Equal(t, 1, n.CommentDeleted("42", "c1", "u1"))

	assert.Empty(t, author.frames(t), "the actor does not get its own events")
	assert.Equal(t, []domain.MessageType{
		domain.MessageTypeCommentCreated,
		domain.MessageTypeCommentUpdated,
		domain.MessageTypeCommentDeleted,
	}, reader.types(t))

	f, _ := reader.last(t, domain.MessageTypeCommentDeleted)
	assert.JSONEq(t, `{"comment_id":"c1","task_id":"42"}`, string(f.Data))
}

func TestNotifier_TaskUpdatedReachesWorkspace(t *testing.T) {
	state := newTestState(t)
	_, onTask := join(t, state, ben, testTaskRoom)
	_, onWorkspace := join(t, state, cid, workspaceRoom)

	delivered := state.Notifier.TaskUpdated("42", "7", map[string]string{"status": "done"}, "u1")

	assert.Equal(t, 2, delivered)
	_, ok := onTask.last(t, domain.MessageTypeTaskUpdated)
	assert.True(t, ok)
	_, ok = onWorkspace.last(t, domain.MessageTypeTaskUpdated)
	assert.True(t, ok)

	assert.Equal(t, 1, state.Notifier.TaskUpdated("42", "", nil, "u1"))
}

func TestNotifier_TemplateUpdated(t *testing.T) {
	state := newTestState(t)
	room := domain.RoomID{Kind: domain.RoomKindTemplate, ID: "t1"}
	_, sock := join(t, state, ben, room)

	assert.Equal(t, 1, state.Notifier.TemplateUpdated("t1", map[string]string{"name": "Bug"}, "u1"))
	f, ok := sock.last(t, domain.MessageTypeTemplateUpdated)
	require.True(t, ok)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "Bug", payload["name"])
}

func TestNotifier_Mention(t *testing.T) {
	state := newTestState(t)
	_, stream := join(t, state, ben, domain.GlobalRoom("u2"))
	_, inRoom := join(t, state, ben, testTaskRoom)
	inRoom.reset()

	assert.Equal(t, 1, state.Notifier.Mention("u2", map[string]string{"task_id": "42"}))
	_, ok := stream.last(t, domain.MessageTypeMentionReceived)
	assert.True(t, ok)
	assert.Empty(t, inRoom.frames(t))

	assert.Zero(t, state.Notifier.Mention("u404", nil), "offline users are skipped silently")
}
