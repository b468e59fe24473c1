package domain

import "encoding/json"

const (
	ColumnCreated = "column-created"
	ColumnUpdated = "column-updated"
	ColumnDeleted = "column-deleted"

	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskDeleted = "task-deleted"

	CommentAdded        = "comment-added"
	NotificationCreated = "notification-created"
	MessageSent         = "message-sent"
)

const (
	EntityColumn       = "column"
	EntityTask         = "task"
	EntityComment      = "comment"
	EntityNotification = "notification"
	EntityMessage      = "message"
)

// Event represents a row-level change fanned out to subscribed clients. Data
// holds the full entity state after the change; deletes carry only the keys.
// Time is the monotonic stamp assigned when the change was accepted.
type Event struct {
	ID         string          `json:"Id"`
	BoardID    string          `json:"BoardId"`
	EntityID   string          `json:"EntityId"`
	EntityType string          `json:"EntityType"`
	Type       string          `json:"Type"`
	Data       json.RawMessage `json:"Data,omitempty"`
	Time       int64           `json:"Time"`
	UserID     string          `json:"UserId,omitempty"`
}
