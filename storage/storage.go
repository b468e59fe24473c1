package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"boardsync/board"
	"boardsync/domain"
)

const edmInt64 = "Edm.Int64"

// Storage provides access to the underlying persistence mechanisms: one
// Azure table per entity kind plus the notification queue.
type Storage struct {
	boards        *aztables.Client
	columns       *aztables.Client
	tasks         *aztables.Client
	comments      *aztables.Client
	attachments   *aztables.Client
	relations     *aztables.Client
	members       *aztables.Client
	notifications *aztables.Client
	messages      *aztables.Client
	notifyQueue   *azqueue.QueueClient
}

// Tables names the Azure tables backing a deployment.
type Tables struct {
	Boards        string
	Columns       string
	Tasks         string
	Comments      string
	Attachments   string
	Relations     string
	Members       string
	Notifications string
	Messages      string
	NotifyQueue   string
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables) (*Storage, error) {
	tableOpts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tableOpts)
	if err != nil {
		return nil, err
	}
	queueOpts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, tables.NotifyQueue, &queueOpts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boards:        svc.NewClient(tables.Boards),
		columns:       svc.NewClient(tables.Columns),
		tasks:         svc.NewClient(tables.Tasks),
		comments:      svc.NewClient(tables.Comments),
		attachments:   svc.NewClient(tables.Attachments),
		relations:     svc.NewClient(tables.Relations),
		members:       svc.NewClient(tables.Members),
		notifications: svc.NewClient(tables.Notifications),
		messages:      svc.NewClient(tables.Messages),
		notifyQueue:   nq,
	}, nil
}

type boardEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	OwnerID       string `json:"OwnerId"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type columnEntity struct {
	aztables.Entity
	BoardID       string `json:"BoardId"`
	Title         string `json:"Title"`
	Position      int    `json:"Position"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type taskEntity struct {
	aztables.Entity
	BoardID       string `json:"BoardId"`
	ColumnID      string `json:"ColumnId"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Position      int    `json:"Position"`
	AssigneeID    string `json:"AssigneeId"`
	CreatorID     string `json:"CreatorId"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func mapStorageError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return domain.ErrNotFound
		case 409, 412:
			return domain.ErrConcurrencyConflict
		}
	}
	return err
}

// InsertBoard persists a new board and its owner membership.
func (s *Storage) InsertBoard(ctx context.Context, b domain.Board, ownerName, ownerEmail string) error {
	ent := boardEntity{
		Entity:        aztables.Entity{PartitionKey: b.ID, RowKey: b.ID},
		Title:         b.Title,
		Description:   b.Description,
		OwnerID:       b.OwnerID,
		CreatedAt:     b.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.boards.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return s.InsertMember(ctx, domain.Member{BoardID: b.ID, UserID: b.OwnerID, Role: "owner", Name: ownerName, Email: ownerEmail})
}

func (s *Storage) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	resp, err := s.boards.GetEntity(ctx, boardID, boardID, nil)
	if err != nil {
		return domain.Board{}, mapStorageError(err)
	}
	var ent boardEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Board{}, err
	}
	return domain.Board{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		OwnerID:     ent.OwnerID,
		CreatedAt:   ent.CreatedAt,
	}, nil
}

// UpdateBoard merges title/description changes.
func (s *Storage) UpdateBoard(ctx context.Context, boardID string, title, description *string) error {
	upd := map[string]any{"PartitionKey": boardID, "RowKey": boardID}
	if title != nil {
		upd["Title"] = *title
	}
	if description != nil {
		upd["Description"] = *description
	}
	return s.mergeEntity(ctx, s.boards, upd)
}

func (s *Storage) DeleteBoard(ctx context.Context, boardID string) error {
	if _, err := s.boards.DeleteEntity(ctx, boardID, boardID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListBoards returns every board the user is a member of.
func (s *Storage) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	memberships, err := s.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	boards := []domain.Board{}
	for _, m := range memberships {
		b, err := s.GetBoard(ctx, m.BoardID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		boards = append(boards, b)
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].CreatedAt < boards[j].CreatedAt })
	return boards, nil
}

// InsertColumn persists a new column.
func (s *Storage) InsertColumn(ctx context.Context, col domain.Column) error {
	ent := columnEntity{
		Entity:        aztables.Entity{PartitionKey: col.ID, RowKey: col.ID},
		BoardID:       col.BoardID,
		Title:         col.Title,
		Position:      col.Position,
		UpdatedAt:     col.UpdatedAt,
		UpdatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.columns.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (s *Storage) GetColumn(ctx context.Context, columnID string) (domain.Column, error) {
	resp, err := s.columns.GetEntity(ctx, columnID, columnID, nil)
	if err != nil {
		return domain.Column{}, mapStorageError(err)
	}
	var ent columnEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Column{}, err
	}
	return decodeColumn(ent), nil
}

func decodeColumn(ent columnEntity) domain.Column {
	return domain.Column{
		ID:        ent.RowKey,
		BoardID:   ent.BoardID,
		Title:     ent.Title,
		Position:  ent.Position,
		UpdatedAt: ent.UpdatedAt,
	}
}

// UpdateColumn merges partial fields and bumps the entity stamp.
func (s *Storage) UpdateColumn(ctx context.Context, columnID string, fields domain.ColumnFields, stamp int64) error {
	upd := map[string]any{
		"PartitionKey":         columnID,
		"RowKey":               columnID,
		"UpdatedAt":            jsonInt64(stamp),
		"UpdatedAt@odata.type": edmInt64,
	}
	if fields.Title != nil {
		upd["Title"] = *fields.Title
	}
	return s.mergeEntity(ctx, s.columns, upd)
}

// ReorderColumns rewrites positions for every affected column.
func (s *Storage) ReorderColumns(ctx context.Context, placements []board.ColumnPlacement, stamp int64) error {
	for _, pl := range placements {
		upd := map[string]any{
			"PartitionKey":         pl.ColumnID,
			"RowKey":               pl.ColumnID,
			"Position":             pl.Position,
			"UpdatedAt":            jsonInt64(stamp),
			"UpdatedAt@odata.type": edmInt64,
		}
		if err := s.mergeEntity(ctx, s.columns, upd); err != nil {
			return err
		}
	}
	return nil
}

// DeleteColumn removes the column and cascades to its tasks.
func (s *Storage) DeleteColumn(ctx context.Context, columnID string) ([]domain.Task, error) {
	tasks, err := s.ListColumnTasks(ctx, columnID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if _, err := s.columns.DeleteEntity(ctx, columnID, columnID, nil); err != nil {
		return nil, mapStorageError(err)
	}
	return tasks, nil
}

// ListColumns returns the columns of one board ordered by position.
func (s *Storage) ListColumns(ctx context.Context, boardID string) ([]domain.Column, error) {
	filter := "BoardId eq '" + sanitize(boardID) + "'"
	pager := s.columns.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	cols := []domain.Column{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			cols = append(cols, decodeColumn(ent))
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	return cols, nil
}

// InsertTask persists a new task under the board owning its column.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	col, err := s.GetColumn(ctx, t.ColumnID)
	if err != nil {
		return err
	}
	ent := taskEntity{
		Entity:        aztables.Entity{PartitionKey: t.ID, RowKey: t.ID},
		BoardID:       col.BoardID,
		ColumnID:      t.ColumnID,
		Title:         t.Title,
		Description:   t.Description,
		Position:      t.Position,
		AssigneeID:    t.AssigneeID,
		CreatorID:     t.CreatorID,
		CreatedAt:     t.CreatedAt,
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt,
		UpdatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.tasks.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (s *Storage) GetTask(ctx context.Context, taskID string) (domain.Task, string, error) {
	resp, err := s.tasks.GetEntity(ctx, taskID, taskID, nil)
	if err != nil {
		return domain.Task{}, "", mapStorageError(err)
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, "", err
	}
	return decodeTask(ent), ent.BoardID, nil
}

func decodeTask(ent taskEntity) domain.Task {
	return domain.Task{
		ID:          ent.RowKey,
		ColumnID:    ent.ColumnID,
		Title:       ent.Title,
		Description: ent.Description,
		Position:    ent.Position,
		AssigneeID:  ent.AssigneeID,
		CreatorID:   ent.CreatorID,
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
	}
}

// UpdateTask merges partial fields and bumps the entity stamp.
func (s *Storage) UpdateTask(ctx context.Context, taskID string, fields domain.TaskFields, stamp int64) error {
	upd := map[string]any{
		"PartitionKey":         taskID,
		"RowKey":               taskID,
		"UpdatedAt":            jsonInt64(stamp),
		"UpdatedAt@odata.type": edmInt64,
	}
	if fields.Title != nil {
		upd["Title"] = *fields.Title
	}
	if fields.Description != nil {
		upd["Description"] = *fields.Description
	}
	if fields.ColumnID != nil {
		upd["ColumnId"] = *fields.ColumnID
	}
	if fields.Position != nil {
		upd["Position"] = *fields.Position
	}
	if fields.AssigneeID != nil {
		upd["AssigneeId"] = *fields.AssigneeID
	}
	return s.mergeEntity(ctx, s.tasks, upd)
}

// ReorderTasks rewrites column references and positions for every affected
// task.
func (s *Storage) ReorderTasks(ctx context.Context, placements []board.TaskPlacement, stamp int64) error {
	for _, pl := range placements {
		upd := map[string]any{
			"PartitionKey":         pl.TaskID,
			"RowKey":               pl.TaskID,
			"ColumnId":             pl.ColumnID,
			"Position":             pl.Position,
			"UpdatedAt":            jsonInt64(stamp),
			"UpdatedAt@odata.type": edmInt64,
		}
		if err := s.mergeEntity(ctx, s.tasks, upd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.tasks.DeleteEntity(ctx, taskID, taskID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListTasks returns every task of one board.
func (s *Storage) ListTasks(ctx context.Context, boardID string) ([]domain.Task, error) {
	filter := "BoardId eq '" + sanitize(boardID) + "'"
	return s.queryTasks(ctx, filter)
}

// ListColumnTasks returns the tasks of one column ordered by position.
func (s *Storage) ListColumnTasks(ctx context.Context, columnID string) ([]domain.Task, error) {
	filter := "ColumnId eq '" + sanitize(columnID) + "'"
	tasks, err := s.queryTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	return tasks, nil
}

// SearchTasks matches board tasks by title substring, excluding one id.
func (s *Storage) SearchTasks(ctx context.Context, boardID, query, excludeID string, limit int) ([]domain.Task, error) {
	tasks, err := s.ListTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	out := []domain.Task{}
	for _, t := range tasks {
		if t.ID == excludeID || !strings.Contains(strings.ToLower(t.Title), q) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) queryTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.tasks.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, decodeTask(ent))
		}
	}
	return tasks, nil
}

// FetchBoardSnapshot assembles the full authoritative board state.
func (s *Storage) FetchBoardSnapshot(ctx context.Context, boardID string) (domain.Snapshot, error) {
	b, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	cols, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	tasks, err := s.ListTasks(ctx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	members, err := s.ListMembers(ctx, boardID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	byColumn := map[string][]domain.Task{}
	for _, t := range tasks {
		byColumn[t.ColumnID] = append(byColumn[t.ColumnID], t)
	}
	snap := domain.Snapshot{Board: b, Columns: make([]domain.ColumnTasks, 0, len(cols)), Members: members}
	for _, col := range cols {
		list := byColumn[col.ID]
		sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
		snap.Columns = append(snap.Columns, domain.ColumnTasks{Column: col, Tasks: list})
	}
	return snap, nil
}

func (s *Storage) mergeEntity(ctx context.Context, table *aztables.Client, upd map[string]any) error {
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return mapStorageError(err)
}

// jsonInt64 renders an int64 as the string form aztables expects for
// Edm.Int64 annotated values.
func jsonInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}

// sanitize escapes single quotes for OData filter literals.
func sanitize(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
