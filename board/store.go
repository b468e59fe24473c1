package board

import (
	"fmt"
	"sync"

	"boardsync/domain"
)

// Store holds the client-visible state of a single board: an ordered list of
// columns, each holding an ordered list of tasks. It is the single source of
// truth for rendering. The store performs no I/O; every exposed operation is
// atomic under the store mutex and leaves positions contiguous from zero.
type Store struct {
	mu      sync.Mutex
	columns []domain.Column
	tasks   map[string][]domain.Task
}

func NewStore() *Store {
	return &Store{tasks: map[string][]domain.Task{}}
}

// ReplaceAll overwrites the full state, used after a cold fetch or a
// failure-recovery refresh.
func (s *Store) ReplaceAll(snapshot []domain.ColumnTasks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = s.columns[:0]
	s.tasks = map[string][]domain.Task{}
	for _, ct := range snapshot {
		s.columns = append(s.columns, ct.Column)
		s.tasks[ct.ID] = append([]domain.Task(nil), ct.Tasks...)
	}
	sortColumns(s.columns)
	renumberColumns(s.columns)
	for id, list := range s.tasks {
		sortTasks(list)
		renumberTasks(list, id)
	}
}

// ApplyColumnUpsert inserts the column at the index implied by its position,
// or relocates and updates it when already present.
func (s *Store) ApplyColumnUpsert(col domain.Column) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOfColumn(s.columns, col.ID); i >= 0 {
		s.columns = append(s.columns[:i], s.columns[i+1:]...)
	}
	at := clamp(col.Position, len(s.columns))
	s.columns = append(s.columns, domain.Column{})
	copy(s.columns[at+1:], s.columns[at:])
	s.columns[at] = col
	renumberColumns(s.columns)
	if _, ok := s.tasks[col.ID]; !ok {
		s.tasks[col.ID] = nil
	}
}

// ApplyColumnRemoval drops the column and its tasks, renumbering the
// surviving columns. Unknown ids are a no-op.
func (s *Store) ApplyColumnRemoval(columnID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOfColumn(s.columns, columnID)
	if i < 0 {
		return
	}
	s.columns = append(s.columns[:i], s.columns[i+1:]...)
	delete(s.tasks, columnID)
	renumberColumns(s.columns)
}

// ApplyTaskUpsert locates the task by id across all columns. A task found
// under a different column than task.ColumnID is removed there first, so a
// cross-column move never leaves a duplicate observable between renders.
func (s *Store) ApplyTaskUpsert(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locate(task.ID); ok {
		list := s.tasks[cur]
		i := indexOfTask(list, task.ID)
		s.tasks[cur] = append(list[:i], list[i+1:]...)
		if cur != task.ColumnID {
			renumberTasks(s.tasks[cur], cur)
		}
	}
	dst := s.tasks[task.ColumnID]
	at := clamp(task.Position, len(dst))
	dst = append(dst, domain.Task{})
	copy(dst[at+1:], dst[at:])
	dst[at] = task
	renumberTasks(dst, task.ColumnID)
	s.tasks[task.ColumnID] = dst
}

// ApplyTaskRemoval removes the task from whichever column currently holds it;
// the caller's idea of the owning column may be stale. Absent ids are a no-op.
func (s *Store) ApplyTaskRemoval(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locate(taskID)
	if !ok {
		return
	}
	list := s.tasks[cur]
	i := indexOfTask(list, taskID)
	s.tasks[cur] = append(list[:i], list[i+1:]...)
	renumberTasks(s.tasks[cur], cur)
}

// Columns returns a copy of the ordered column list.
func (s *Store) Columns() []domain.Column {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Column(nil), s.columns...)
}

// Tasks returns a copy of the ordered task list of one column.
func (s *Store) Tasks(columnID string) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Task(nil), s.tasks[columnID]...)
}

// Column fetches a tracked column by id.
func (s *Store) Column(columnID string) (domain.Column, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOfColumn(s.columns, columnID); i >= 0 {
		return s.columns[i], true
	}
	return domain.Column{}, false
}

// FindTask searches every column for the task and reports the column that
// currently holds it.
func (s *Store) FindTask(taskID string) (domain.Task, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.locate(taskID); ok {
		list := s.tasks[col]
		return list[indexOfTask(list, taskID)], col, true
	}
	return domain.Task{}, "", false
}

// HasColumn reports whether the column is tracked, used to discard change
// events that belong to a different board scope.
func (s *Store) HasColumn(columnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOfColumn(s.columns, columnID) >= 0
}

// Snapshot returns the full current state as ordered column/task pairs.
func (s *Store) Snapshot() []domain.ColumnTasks {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ColumnTasks, 0, len(s.columns))
	for _, col := range s.columns {
		out = append(out, domain.ColumnTasks{
			Column: col,
			Tasks:  append([]domain.Task(nil), s.tasks[col.ID]...),
		})
	}
	return out
}

// Validate checks the ordering invariants: contiguous zero-based positions,
// unique ids, and every task held by exactly one column. A non-nil error
// means the state must be discarded and re-fetched.
func (s *Store) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	colIDs := map[string]struct{}{}
	for i, col := range s.columns {
		if col.Position != i {
			return fmt.Errorf("column %s has position %d at index %d", col.ID, col.Position, i)
		}
		if _, dup := colIDs[col.ID]; dup {
			return fmt.Errorf("column %s appears twice", col.ID)
		}
		colIDs[col.ID] = struct{}{}
	}
	taskIDs := map[string]string{}
	for colID, list := range s.tasks {
		for i, t := range list {
			if t.Position != i {
				return fmt.Errorf("task %s has position %d at index %d", t.ID, t.Position, i)
			}
			if t.ColumnID != colID {
				return fmt.Errorf("task %s in column %s claims column %s", t.ID, colID, t.ColumnID)
			}
			if other, dup := taskIDs[t.ID]; dup {
				return fmt.Errorf("task %s held by columns %s and %s", t.ID, other, colID)
			}
			taskIDs[t.ID] = colID
		}
	}
	return nil
}

func (s *Store) locate(taskID string) (string, bool) {
	for colID, list := range s.tasks {
		if indexOfTask(list, taskID) >= 0 {
			return colID, true
		}
	}
	return "", false
}
