package reconcile

import (
	"context"
	"errors"
	"sync"

	"boardsync/board"
	"boardsync/domain"
)

// fakeService records durable writes and serves canned snapshots. Errors are
// injected per operation name.
type fakeService struct {
	mu sync.Mutex

	snapshot domain.Snapshot
	fail     map[string]error

	createdColumns  []domain.Column
	updatedColumns  map[string]domain.ColumnFields
	columnReorders  [][]board.ColumnPlacement
	deletedColumns  []string
	createdTasks    []domain.Task
	updatedTasks    map[string]domain.TaskFields
	taskReorders    [][]board.TaskPlacement
	deletedTasks    []string
	snapshotFetches int

	// nextColumnID/nextTaskID override the server-assigned id for creates.
	nextColumnID string
	nextTaskID   string

	// createTaskGate, when set, holds CreateTask until closed.
	createTaskGate chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{
		fail:           map[string]error{},
		updatedColumns: map[string]domain.ColumnFields{},
		updatedTasks:   map[string]domain.TaskFields{},
	}
}

func (f *fakeService) failWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakeService) errFor(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *fakeService) CreateColumn(ctx context.Context, boardID, title string, position int) (domain.Column, error) {
	if err := f.errFor("CreateColumn"); err != nil {
		return domain.Column{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextColumnID
	if id == "" {
		id = "srv-col"
	}
	col := domain.Column{ID: id, BoardID: boardID, Title: title, Position: position}
	f.createdColumns = append(f.createdColumns, col)
	return col, nil
}

func (f *fakeService) UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields) error {
	if err := f.errFor("UpdateColumn"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedColumns[columnID] = fields
	return nil
}

func (f *fakeService) ReorderColumns(ctx context.Context, boardID string, placements []board.ColumnPlacement) error {
	if err := f.errFor("ReorderColumns"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columnReorders = append(f.columnReorders, placements)
	return nil
}

func (f *fakeService) DeleteColumn(ctx context.Context, columnID string) error {
	if err := f.errFor("DeleteColumn"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedColumns = append(f.deletedColumns, columnID)
	return nil
}

func (f *fakeService) CreateTask(ctx context.Context, columnID, title string, position int) (domain.Task, error) {
	f.mu.Lock()
	gate := f.createTaskGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Task{}, ctx.Err()
		}
	}
	if err := f.errFor("CreateTask"); err != nil {
		return domain.Task{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextTaskID
	if id == "" {
		id = "srv-task"
	}
	task := domain.Task{ID: id, ColumnID: columnID, Title: title, Position: position}
	f.createdTasks = append(f.createdTasks, task)
	return task, nil
}

func (f *fakeService) UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields) error {
	if err := f.errFor("UpdateTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedTasks[taskID] = fields
	return nil
}

func (f *fakeService) ReorderTasks(ctx context.Context, placements []board.TaskPlacement) error {
	if err := f.errFor("ReorderTasks"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskReorders = append(f.taskReorders, placements)
	return nil
}

func (f *fakeService) DeleteTask(ctx context.Context, taskID string) error {
	if err := f.errFor("DeleteTask"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedTasks = append(f.deletedTasks, taskID)
	return nil
}

func (f *fakeService) FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	if err := f.errFor("FetchBoardSnapshot"); err != nil {
		return domain.Snapshot{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotFetches++
	return f.snapshot, nil
}

func (f *fakeService) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotFetches
}

func (f *fakeService) taskReorderCalls() [][]board.TaskPlacement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]board.TaskPlacement, len(f.taskReorders))
	copy(out, f.taskReorders)
	return out
}

func (f *fakeService) columnReorderCalls() [][]board.ColumnPlacement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]board.ColumnPlacement, len(f.columnReorders))
	copy(out, f.columnReorders)
	return out
}

var errBackend = errors.New("backend unavailable")
