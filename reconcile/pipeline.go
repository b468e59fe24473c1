package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/board"
	"boardsync/domain"
)

// MutationState tracks one optimistic mutation through its lifecycle.
type MutationState int32

const (
	Pending MutationState = iota
	Confirmed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled-back"
	}
	return "unknown"
}

// Mutation is the handle returned for every optimistic write. The store
// already reflects the mutation when the handle is handed out; the state
// machine moves Pending -> Confirmed or Pending -> RolledBack exactly once.
type Mutation struct {
	ID       string
	entityID string
	seq      uint64

	mu    sync.Mutex
	state MutationState
	err   error
	done  chan struct{}
}

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the durable-write error after a rollback.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the mutation is confirmed or rolled back.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) settle(state MutationState, err error) {
	m.mu.Lock()
	if m.state != Pending {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

// Pipeline applies every mutation to the store synchronously, issues the
// durable write in the background, and recovers from write failures by
// replacing the whole store state with a fresh authoritative snapshot.
// Overlapping mutations of the same entity serialize as last-issued-wins
// locally; the server sees last-completed-wins. No distributed lock.
type Pipeline struct {
	store   *board.Store
	svc     DataService
	boardID string
	timeout time.Duration
	log     *log.Logger

	mu  sync.Mutex
	seq map[string]uint64

	wg sync.WaitGroup
}

// NewPipeline wires the pipeline for one board. timeout bounds every durable
// write; a stalled write rolls back through the refresh path instead of
// leaving the optimistic state displayed forever.
func NewPipeline(store *board.Store, svc DataService, boardID string, timeout time.Duration, logger *log.Logger) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Pipeline{
		store:   store,
		svc:     svc,
		boardID: boardID,
		timeout: timeout,
		log:     logger,
		seq:     map[string]uint64{},
	}
}

func (p *Pipeline) Store() *board.Store { return p.store }

// Refresh fetches the authoritative snapshot and overwrites the store.
func (p *Pipeline) Refresh(ctx context.Context) error {
	snap, err := p.svc.FetchBoardSnapshot(ctx, p.boardID)
	if err != nil {
		return err
	}
	p.store.ReplaceAll(snap.Columns)
	return nil
}

// Drain waits for all in-flight durable writes, used on teardown and in tests.
func (p *Pipeline) Drain() { p.wg.Wait() }

// CreateColumn appends a column at the end of the board order.
func (p *Pipeline) CreateColumn(title string) (*Mutation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	col := domain.Column{
		ID:        uuid.NewString(),
		BoardID:   p.boardID,
		Title:     title,
		Position:  len(p.store.Columns()),
		UpdatedAt: domain.NextStamp(),
	}
	p.store.ApplyColumnUpsert(col)
	m := p.begin(col.ID)
	p.run(m, "create column", func(ctx context.Context) error {
		created, err := p.svc.CreateColumn(ctx, p.boardID, title, col.Position)
		if err != nil {
			return err
		}
		p.mergeCreatedColumn(m, col.ID, created)
		return nil
	})
	return m, nil
}

// RenameColumn updates the column title in place.
func (p *Pipeline) RenameColumn(columnID, title string) (*Mutation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	col, ok := p.store.Column(columnID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	col.Title = title
	col.UpdatedAt = domain.NextStamp()
	p.store.ApplyColumnUpsert(col)
	m := p.begin(columnID)
	p.run(m, "rename column", func(ctx context.Context) error {
		return p.svc.UpdateColumn(ctx, columnID, domain.ColumnFields{Title: &title})
	})
	return m, nil
}

// MoveColumn relocates a column to dstIndex. A no-op gesture returns a nil
// mutation and issues no write.
func (p *Pipeline) MoveColumn(columnID string, dstIndex int) (*Mutation, error) {
	cols := p.store.Columns()
	_, delta := board.MoveColumn(cols, columnID, dstIndex)
	if len(delta) == 0 {
		if indexOfColumnID(cols, columnID) < 0 {
			return nil, domain.ErrNotFound
		}
		return nil, nil
	}
	col, _ := p.store.Column(columnID)
	col.Position = dstIndex
	col.UpdatedAt = domain.NextStamp()
	p.store.ApplyColumnUpsert(col)
	m := p.begin(columnID)
	p.run(m, "reorder columns", func(ctx context.Context) error {
		return p.svc.ReorderColumns(ctx, p.boardID, delta)
	})
	return m, nil
}

// DeleteColumn removes the column and its tasks, renumbering the surviving
// columns immediately and persisting their new placements.
func (p *Pipeline) DeleteColumn(columnID string) (*Mutation, error) {
	cols := p.store.Columns()
	at := indexOfColumnID(cols, columnID)
	if at < 0 {
		return nil, domain.ErrNotFound
	}
	var delta []board.ColumnPlacement
	for i := at + 1; i < len(cols); i++ {
		delta = append(delta, board.ColumnPlacement{ColumnID: cols[i].ID, Position: i - 1})
	}
	p.store.ApplyColumnRemoval(columnID)
	m := p.begin(columnID)
	p.run(m, "delete column", func(ctx context.Context) error {
		if err := p.svc.DeleteColumn(ctx, columnID); err != nil {
			return err
		}
		if len(delta) == 0 {
			return nil
		}
		return p.svc.ReorderColumns(ctx, p.boardID, delta)
	})
	return m, nil
}

// CreateTask appends a task at the end of the column order.
func (p *Pipeline) CreateTask(columnID, title string) (*Mutation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}
	if !p.store.HasColumn(columnID) {
		return nil, domain.ErrNotFound
	}
	now := domain.NextStamp()
	task := domain.Task{
		ID:        uuid.NewString(),
		ColumnID:  columnID,
		Title:     title,
		Position:  len(p.store.Tasks(columnID)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.store.ApplyTaskUpsert(task)
	m := p.begin(task.ID)
	p.run(m, "create task", func(ctx context.Context) error {
		created, err := p.svc.CreateTask(ctx, columnID, title, task.Position)
		if err != nil {
			return err
		}
		p.mergeCreatedTask(m, task.ID, created)
		return nil
	})
	return m, nil
}

// UpdateTask merges partial fields into the task. Field updates that change
// the column or position relocate the task through the store upsert.
func (p *Pipeline) UpdateTask(taskID string, fields domain.TaskFields) (*Mutation, error) {
	if fields.Title != nil {
		t := strings.TrimSpace(*fields.Title)
		if t == "" {
			return nil, domain.ErrEmptyTitle
		}
		fields.Title = &t
	}
	task, _, ok := p.store.FindTask(taskID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.ColumnID != nil {
		task.ColumnID = *fields.ColumnID
	}
	if fields.Position != nil {
		task.Position = *fields.Position
	}
	if fields.AssigneeID != nil {
		task.AssigneeID = *fields.AssigneeID
	}
	task.UpdatedAt = domain.NextStamp()
	p.store.ApplyTaskUpsert(task)
	m := p.begin(taskID)
	p.run(m, "update task", func(ctx context.Context) error {
		return p.svc.UpdateTask(ctx, taskID, fields)
	})
	return m, nil
}

// MoveTask applies a drag gesture: same-column reorder or cross-column move.
// A no-op gesture returns a nil mutation and issues no write.
func (p *Pipeline) MoveTask(taskID, dstColumnID string, dstIndex int) (*Mutation, error) {
	task, srcColumnID, ok := p.store.FindTask(taskID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	src := p.store.Tasks(srcColumnID)
	var dst []domain.Task
	if dstColumnID != srcColumnID {
		if !p.store.HasColumn(dstColumnID) {
			return nil, domain.ErrNotFound
		}
		dst = p.store.Tasks(dstColumnID)
	}
	_, _, delta := board.MoveTask(src, dst, srcColumnID, dstColumnID, taskID, dstIndex)
	if len(delta) == 0 {
		return nil, nil
	}
	task.ColumnID = dstColumnID
	task.Position = dstIndex
	task.UpdatedAt = domain.NextStamp()
	p.store.ApplyTaskUpsert(task)
	m := p.begin(taskID)
	p.run(m, "reorder tasks", func(ctx context.Context) error {
		return p.svc.ReorderTasks(ctx, delta)
	})
	return m, nil
}

// DeleteTask removes the task, renumbering its former siblings immediately
// and persisting their new placements.
func (p *Pipeline) DeleteTask(taskID string) (*Mutation, error) {
	_, columnID, ok := p.store.FindTask(taskID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	siblings := p.store.Tasks(columnID)
	at := 0
	for i := range siblings {
		if siblings[i].ID == taskID {
			at = i
			break
		}
	}
	var delta []board.TaskPlacement
	for i := at + 1; i < len(siblings); i++ {
		delta = append(delta, board.TaskPlacement{TaskID: siblings[i].ID, ColumnID: columnID, Position: i - 1})
	}
	p.store.ApplyTaskRemoval(taskID)
	m := p.begin(taskID)
	p.run(m, "delete task", func(ctx context.Context) error {
		if err := p.svc.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		if len(delta) == 0 {
			return nil
		}
		return p.svc.ReorderTasks(ctx, delta)
	})
	return m, nil
}

func (p *Pipeline) begin(entityID string) *Mutation {
	p.mu.Lock()
	p.seq[entityID]++
	m := &Mutation{
		ID:       uuid.NewString(),
		entityID: entityID,
		seq:      p.seq[entityID],
		done:     make(chan struct{}),
	}
	p.mu.Unlock()
	return m
}

// superseded reports whether a newer mutation was issued for the same entity.
func (p *Pipeline) superseded(m *Mutation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq[m.entityID] != m.seq
}

func (p *Pipeline) run(m *Mutation, op string, write func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := write(ctx); err != nil {
			p.log.WithFields(log.Fields{
				"board":  p.boardID,
				"entity": m.entityID,
				"op":     op,
				"error":  err.Error(),
			}).Error("durable write failed, discarding optimistic state")
			refreshCtx, rcancel := context.WithTimeout(context.Background(), p.timeout)
			if rerr := p.Refresh(refreshCtx); rerr != nil {
				p.log.WithFields(log.Fields{"board": p.boardID, "error": rerr.Error()}).Error("recovery refresh failed")
			}
			rcancel()
			m.settle(RolledBack, err)
			return
		}
		if err := p.store.Validate(); err != nil {
			p.log.WithFields(log.Fields{"board": p.boardID, "error": err.Error()}).Error("store invariant violated, re-fetching")
			refreshCtx, rcancel := context.WithTimeout(context.Background(), p.timeout)
			_ = p.Refresh(refreshCtx)
			rcancel()
		}
		m.settle(Confirmed, nil)
	}()
}

// mergeCreatedColumn swaps the optimistic placeholder for the server-assigned
// entity. Skipped when a newer mutation already replaced the local state.
func (p *Pipeline) mergeCreatedColumn(m *Mutation, tempID string, created domain.Column) {
	if p.superseded(m) {
		return
	}
	if created.ID != tempID {
		p.store.ApplyColumnRemoval(tempID)
	}
	if created.UpdatedAt == 0 {
		created.UpdatedAt = domain.NextStamp()
	}
	p.store.ApplyColumnUpsert(created)
}

func (p *Pipeline) mergeCreatedTask(m *Mutation, tempID string, created domain.Task) {
	if p.superseded(m) {
		return
	}
	if created.ID != tempID {
		p.store.ApplyTaskRemoval(tempID)
	}
	if created.UpdatedAt == 0 {
		created.UpdatedAt = domain.NextStamp()
	}
	p.store.ApplyTaskUpsert(created)
}

func indexOfColumnID(cols []domain.Column, id string) int {
	for i := range cols {
		if cols[i].ID == id {
			return i
		}
	}
	return -1
}
