package api

import (
	"context"
	"errors"
	"sync"

	"boardsync/board"
	"boardsync/domain"
	"boardsync/storage"
)

// fakeStore is an in-memory Storage used by handler tests.
type fakeStore struct {
	mu sync.Mutex

	boards        map[string]domain.Board
	columns       map[string]domain.Column
	tasks         map[string]domain.Task
	taskBoards    map[string]string
	comments      map[string]domain.Comment
	attachments   map[string]domain.Attachment
	relations     map[string]domain.TaskRelation
	members       map[string][]domain.Member
	notifications map[string][]domain.Notification
	messages      map[string][]domain.ChatMessage

	enqueued []storage.NotificationJob
	evicted  []string

	failSnapshot error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards:        map[string]domain.Board{},
		columns:       map[string]domain.Column{},
		tasks:         map[string]domain.Task{},
		taskBoards:    map[string]string{},
		comments:      map[string]domain.Comment{},
		attachments:   map[string]domain.Attachment{},
		relations:     map[string]domain.TaskRelation{},
		members:       map[string][]domain.Member{},
		notifications: map[string][]domain.Notification{},
		messages:      map[string][]domain.ChatMessage{},
	}
}

func (f *fakeStore) seedBoard(b domain.Board) {
	f.boards[b.ID] = b
	f.members[b.ID] = append(f.members[b.ID], domain.Member{BoardID: b.ID, UserID: b.OwnerID, Role: "owner"})
}

func (f *fakeStore) seedColumn(col domain.Column) { f.columns[col.ID] = col }

func (f *fakeStore) seedTask(t domain.Task, boardID string) {
	f.tasks[t.ID] = t
	f.taskBoards[t.ID] = boardID
}

func (f *fakeStore) InsertBoard(ctx context.Context, b domain.Board, ownerName, ownerEmail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[b.ID] = b
	f.members[b.ID] = append(f.members[b.ID], domain.Member{BoardID: b.ID, UserID: b.OwnerID, Role: "owner", Name: ownerName, Email: ownerEmail})
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return domain.Board{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, boardID string, title, description *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[boardID]
	if !ok {
		return domain.ErrNotFound
	}
	if title != nil {
		b.Title = *title
	}
	if description != nil {
		b.Description = *description
	}
	f.boards[boardID] = b
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, boardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[boardID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.boards, boardID)
	return nil
}

func (f *fakeStore) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Board
	for id, members := range f.members {
		for _, m := range members {
			if m.UserID == userID {
				if b, ok := f.boards[id]; ok {
					out = append(out, b)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSnapshot != nil {
		return domain.Snapshot{}, f.failSnapshot
	}
	b, ok := f.boards[boardID]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	snap := domain.Snapshot{Board: b, Members: f.members[boardID]}
	for _, col := range f.columns {
		if col.BoardID != boardID {
			continue
		}
		ct := domain.ColumnTasks{Column: col}
		for _, t := range f.tasks {
			if t.ColumnID == col.ID {
				ct.Tasks = append(ct.Tasks, t)
			}
		}
		snap.Columns = append(snap.Columns, ct)
	}
	return snap, nil
}

func (f *fakeStore) EvictBoard(ctx context.Context, boardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, boardID)
}

func (f *fakeStore) InsertColumn(ctx context.Context, col domain.Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[col.ID] = col
	return nil
}

func (f *fakeStore) GetColumn(ctx context.Context, columnID string) (domain.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.columns[columnID]
	if !ok {
		return domain.Column{}, domain.ErrNotFound
	}
	return col, nil
}

func (f *fakeStore) UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields, stamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.columns[columnID]
	if !ok {
		return domain.ErrNotFound
	}
	if fields.Title != nil {
		col.Title = *fields.Title
	}
	col.UpdatedAt = stamp
	f.columns[columnID] = col
	return nil
}

func (f *fakeStore) ReorderColumns(ctx context.Context, placements []board.ColumnPlacement, stamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range placements {
		col, ok := f.columns[p.ColumnID]
		if !ok {
			return domain.ErrNotFound
		}
		col.Position = p.Position
		col.UpdatedAt = stamp
		f.columns[p.ColumnID] = col
	}
	return nil
}

func (f *fakeStore) DeleteColumn(ctx context.Context, columnID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.columns[columnID]; !ok {
		return nil, domain.ErrNotFound
	}
	delete(f.columns, columnID)
	var removed []domain.Task
	for id, t := range f.tasks {
		if t.ColumnID == columnID {
			removed = append(removed, t)
			delete(f.tasks, id)
			delete(f.taskBoards, id)
		}
	}
	return removed, nil
}

func (f *fakeStore) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Column
	for _, col := range f.columns {
		if col.BoardID == boardID {
			out = append(out, col)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.columns[t.ColumnID]
	if !ok {
		return domain.ErrNotFound
	}
	f.tasks[t.ID] = t
	f.taskBoards[t.ID] = col.BoardID
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (domain.Task, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return domain.Task{}, "", domain.ErrNotFound
	}
	return t, f.taskBoards[taskID], nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields, stamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Description != nil {
		t.Description = *fields.Description
	}
	if fields.ColumnID != nil {
		t.ColumnID = *fields.ColumnID
	}
	if fields.Position != nil {
		t.Position = *fields.Position
	}
	if fields.AssigneeID != nil {
		t.AssigneeID = *fields.AssigneeID
	}
	t.UpdatedAt = stamp
	f.tasks[taskID] = t
	return nil
}

func (f *fakeStore) ReorderTasks(ctx context.Context, placements []board.TaskPlacement, stamp int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range placements {
		t, ok := f.tasks[p.TaskID]
		if !ok {
			return domain.ErrNotFound
		}
		t.ColumnID = p.ColumnID
		t.Position = p.Position
		t.UpdatedAt = stamp
		f.tasks[p.TaskID] = t
	}
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.tasks, taskID)
	delete(f.taskBoards, taskID)
	return nil
}

func (f *fakeStore) SearchTasks(ctx context.Context, boardID, query, excludeID string, limit int) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Task
	for id, t := range f.tasks {
		if f.taskBoards[id] != boardID || id == excludeID {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, c domain.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
	return nil
}

func (f *fakeStore) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Comment
	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteComment(ctx context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[commentID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.comments, commentID)
	return nil
}

func (f *fakeStore) InsertAttachment(ctx context.Context, a domain.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[a.ID] = a
	return nil
}

func (f *fakeStore) ListAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Attachment
	for _, a := range f.attachments {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attachments, attachmentID)
	return nil
}

func (f *fakeStore) InsertRelation(ctx context.Context, r domain.TaskRelation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations[r.ID] = r
	return nil
}

func (f *fakeStore) ListRelations(ctx context.Context, taskID string) ([]domain.RelatedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RelatedTask
	for _, r := range f.relations {
		if r.SourceTaskID == taskID {
			out = append(out, domain.RelatedTask{TaskRelation: r, Direction: "outgoing"})
		} else if r.TargetTaskID == taskID {
			out = append(out, domain.RelatedTask{TaskRelation: r, Direction: "incoming"})
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteRelation(ctx context.Context, relationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.relations, relationID)
	return nil
}

func (f *fakeStore) InsertMember(ctx context.Context, m domain.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.BoardID] = append(f.members[m.BoardID], m)
	return nil
}

func (f *fakeStore) DeleteMember(ctx context.Context, boardID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.members[boardID]
	for i, m := range list {
		if m.UserID == userID {
			f.members[boardID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) ListMembers(ctx context.Context, boardID string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Member(nil), f.members[boardID]...), nil
}

func (f *fakeStore) FindMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.members {
		for _, m := range list {
			if m.Email == email {
				return m, nil
			}
		}
	}
	return domain.Member{}, domain.ErrNotFound
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications[userID]...), nil
}

func (f *fakeStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.notifications[userID]
	for i := range list {
		if list[i].ID == notificationID {
			list[i].Read = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) EnqueueNotification(ctx context.Context, job storage.NotificationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, m domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.BoardID] = append(f.messages[m.BoardID], m)
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, boardID string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMessage(nil), f.messages[boardID]...), nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu         sync.Mutex
	events     []domain.Event
	userEvents map[string][]domain.Event
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) PublishUser(ctx context.Context, userID string, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.userEvents == nil {
		p.userEvents = map[string][]domain.Event{}
	}
	p.userEvents[userID] = append(p.userEvents[userID], ev)
	return nil
}

func (p *fakePublisher) published() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

type fakeAuth struct {
	userID string
	err    error
}

func (a fakeAuth) UserIDFromAuthHeader(string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.userID, nil
}

var errUnauthorized = errors.New("bad token")
