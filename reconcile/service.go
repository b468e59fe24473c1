package reconcile

import (
	"context"

	"boardsync/board"
	"boardsync/domain"
)

// DataService is the durable data service collaborator. Implementations
// persist board state; the pipeline never assumes a write succeeded until the
// call returns.
type DataService interface {
	CreateColumn(ctx context.Context, boardID, title string, position int) (domain.Column, error)
	UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields) error
	ReorderColumns(ctx context.Context, boardID string, placements []board.ColumnPlacement) error
	DeleteColumn(ctx context.Context, columnID string) error
	CreateTask(ctx context.Context, columnID, title string, position int) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields) error
	ReorderTasks(ctx context.Context, placements []board.TaskPlacement) error
	DeleteTask(ctx context.Context, taskID string) error
	FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error)
}

// Subscription is a cancellable handle on a stream of change events. The
// event channel closes when the transport drops or Close is called.
type Subscription interface {
	Events() <-chan domain.Event
	Close() error
}

// Channel produces board-scoped subscriptions.
type Channel interface {
	Subscribe(ctx context.Context, boardID string) (Subscription, error)
}
