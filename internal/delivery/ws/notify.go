package ws

import "github.com/mmuslimabdulj/taskflow-collab/internal/domain"

// Notifier is what the REST layer calls after a write is committed.
// Each method returns how many connections received the event.
type Notifier struct {
	broadcaster *Broadcaster
}

// NewNotifier creates a notifier over broadcaster
func NewNotifier(b *Broadcaster) *Notifier {
	return &Notifier{broadcaster: b}
}

// Publish sends an event of type t to room, skipping the actor's own connections
func (n *Notifier) Publish(room domain.RoomID, t domain.MessageType, payload any, actorID string) int {
	return n.broadcaster.Broadcast(room, domain.NewOutbound(t, payload), actorID)
}

// CommentCreated announces a new comment on a task
func (n *Notifier) CommentCreated(taskID string, comment any, actorID string) int {
	return n.Publish(taskRoom(taskID), domain.MessageTypeCommentCreated, comment, actorID)
}

// CommentUpdated announces an edited comment on a task
func (n *Notifier) CommentUpdated(taskID string, comment any, actorID string) int {
	return n.Publish(taskRoom(taskID), domain.MessageTypeCommentUpdated, comment, actorID)
}

// CommentDeleted announces a removed comment on a task
func (n *Notifier) CommentDeleted(taskID, commentID, actorID string) int {
	return n.Publish(taskRoom(taskID), domain.MessageTypeCommentDeleted, map[string]string{
		"comment_id": commentID,
		"task_id":    taskID,
	}, actorID)
}

// TaskUpdated goes to the task room and, when known, the task's workspace room
func (n *Notifier) TaskUpdated(taskID, workspaceID string, task any, actorID string) int {
	delivered := n.Publish(taskRoom(taskID), domain.MessageTypeTaskUpdated, task, actorID)
	if workspaceID != "" {
		delivered += n.Publish(domain.RoomID{Kind: domain.RoomKindWorkspace, ID: workspaceID}, domain.MessageTypeTaskUpdated, task, actorID)
	}
	return delivered
}

// TemplateUpdated announces a template change
func (n *Notifier) TemplateUpdated(templateID string, template any, actorID string) int {
	return n.Publish(domain.RoomID{Kind: domain.RoomKindTemplate, ID: templateID}, domain.MessageTypeTemplateUpdated, template, actorID)
}

// Mention reaches every notification stream of the mentioned user
func (n *Notifier) Mention(userID string, mention any) int {
	return n.broadcaster.NotifyUser(userID, domain.NewOutbound(domain.MessageTypeMentionReceived, mention))
}

func taskRoom(taskID string) domain.RoomID {
	return domain.RoomID{Kind: domain.RoomKindTask, ID: taskID}
}
