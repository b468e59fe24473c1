package api

import (
	"context"

	"boardsync/board"
	"boardsync/domain"
	"boardsync/reconcile"
	"boardsync/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	InsertBoard(ctx context.Context, b domain.Board, ownerName, ownerEmail string) error
	GetBoard(ctx context.Context, boardID string) (domain.Board, error)
	UpdateBoard(ctx context.Context, boardID string, title, description *string) error
	DeleteBoard(ctx context.Context, boardID string) error
	ListBoards(ctx context.Context, userID string) ([]domain.Board, error)
	FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error)
	EvictBoard(ctx context.Context, boardID string)

	InsertColumn(ctx context.Context, col domain.Column) error
	GetColumn(ctx context.Context, columnID string) (domain.Column, error)
	UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields, stamp int64) error
	ReorderColumns(ctx context.Context, placements []board.ColumnPlacement, stamp int64) error
	DeleteColumn(ctx context.Context, columnID string) ([]domain.Task, error)
	ListColumns(ctx context.Context, boardID string) ([]domain.Column, error)

	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, taskID string) (domain.Task, string, error)
	UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields, stamp int64) error
	ReorderTasks(ctx context.Context, placements []board.TaskPlacement, stamp int64) error
	DeleteTask(ctx context.Context, taskID string) error
	SearchTasks(ctx context.Context, boardID, query, excludeID string, limit int) ([]domain.Task, error)

	InsertComment(ctx context.Context, c domain.Comment) error
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error

	InsertAttachment(ctx context.Context, a domain.Attachment) error
	ListAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error

	InsertRelation(ctx context.Context, r domain.TaskRelation) error
	ListRelations(ctx context.Context, taskID string) ([]domain.RelatedTask, error)
	DeleteRelation(ctx context.Context, relationID string) error

	InsertMember(ctx context.Context, m domain.Member) error
	DeleteMember(ctx context.Context, boardID, userID string) error
	ListMembers(ctx context.Context, boardID string) ([]domain.Member, error)
	FindMemberByEmail(ctx context.Context, email string) (domain.Member, error)

	ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	EnqueueNotification(ctx context.Context, job storage.NotificationJob) error

	InsertMessage(ctx context.Context, m domain.ChatMessage) error
	ListMessages(ctx context.Context, boardID string) ([]domain.ChatMessage, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Publisher fans accepted changes out to subscribed clients.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	PublishUser(ctx context.Context, userID string, ev domain.Event) error
}

// Subscriber attaches a consumer to a board's change feed. Satisfied by
// realtime.Channel.
type Subscriber interface {
	Subscribe(ctx context.Context, boardID string) (reconcile.Subscription, error)
}
