package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"boardsync/domain"
)

type commentEntity struct {
	aztables.Entity
	TaskID        string `json:"TaskId"`
	UserID        string `json:"UserId"`
	Content       string `json:"Content"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type attachmentEntity struct {
	aztables.Entity
	TaskID        string `json:"TaskId"`
	Name          string `json:"Name"`
	BlobPath      string `json:"BlobPath"`
	Size          int64  `json:"Size,string"`
	SizeType      string `json:"Size@odata.type"`
	UploadedBy    string `json:"UploadedBy"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type relationEntity struct {
	aztables.Entity
	SourceTaskID string `json:"SourceTaskId"`
	TargetTaskID string `json:"TargetTaskId"`
	Type         string `json:"Type"`
}

// InsertComment persists a new task comment.
func (s *Storage) InsertComment(ctx context.Context, c domain.Comment) error {
	ent := commentEntity{
		Entity:        aztables.Entity{PartitionKey: c.ID, RowKey: c.ID},
		TaskID:        c.TaskID,
		UserID:        c.UserID,
		Content:       c.Content,
		CreatedAt:     c.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.comments.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListComments returns the comments of one task in creation order.
func (s *Storage) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	filter := "TaskId eq '" + sanitize(taskID) + "'"
	pager := s.comments.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.Comment{
				ID:        ent.RowKey,
				TaskID:    ent.TaskID,
				UserID:    ent.UserID,
				Content:   ent.Content,
				CreatedAt: ent.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Storage) DeleteComment(ctx context.Context, commentID string) error {
	if _, err := s.comments.DeleteEntity(ctx, commentID, commentID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// InsertAttachment persists attachment metadata; the binary content lives in
// external blob storage.
func (s *Storage) InsertAttachment(ctx context.Context, a domain.Attachment) error {
	ent := attachmentEntity{
		Entity:        aztables.Entity{PartitionKey: a.ID, RowKey: a.ID},
		TaskID:        a.TaskID,
		Name:          a.Name,
		BlobPath:      a.BlobPath,
		Size:          a.Size,
		SizeType:      edmInt64,
		UploadedBy:    a.UploadedBy,
		CreatedAt:     a.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.attachments.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListAttachments returns the attachments of one task.
func (s *Storage) ListAttachments(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	filter := "TaskId eq '" + sanitize(taskID) + "'"
	pager := s.attachments.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Attachment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent attachmentEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.Attachment{
				ID:         ent.RowKey,
				TaskID:     ent.TaskID,
				Name:       ent.Name,
				BlobPath:   ent.BlobPath,
				Size:       ent.Size,
				UploadedBy: ent.UploadedBy,
				CreatedAt:  ent.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Storage) DeleteAttachment(ctx context.Context, attachmentID string) error {
	if _, err := s.attachments.DeleteEntity(ctx, attachmentID, attachmentID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// InsertRelation links two tasks.
func (s *Storage) InsertRelation(ctx context.Context, r domain.TaskRelation) error {
	ent := relationEntity{
		Entity:       aztables.Entity{PartitionKey: r.ID, RowKey: r.ID},
		SourceTaskID: r.SourceTaskID,
		TargetTaskID: r.TargetTaskID,
		Type:         r.Type,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.relations.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListRelations returns outgoing and incoming relations of one task, each
// resolved against the counterpart task title.
func (s *Storage) ListRelations(ctx context.Context, taskID string) ([]domain.RelatedTask, error) {
	out := []domain.RelatedTask{}
	outgoing, err := s.queryRelations(ctx, "SourceTaskId eq '"+sanitize(taskID)+"'")
	if err != nil {
		return nil, err
	}
	for _, r := range outgoing {
		title := s.taskTitle(ctx, r.TargetTaskID)
		out = append(out, domain.RelatedTask{TaskRelation: r, RelatedTaskTitle: title, Direction: "outgoing"})
	}
	incoming, err := s.queryRelations(ctx, "TargetTaskId eq '"+sanitize(taskID)+"'")
	if err != nil {
		return nil, err
	}
	for _, r := range incoming {
		title := s.taskTitle(ctx, r.SourceTaskID)
		out = append(out, domain.RelatedTask{TaskRelation: r, RelatedTaskTitle: title, Direction: "incoming"})
	}
	return out, nil
}

func (s *Storage) taskTitle(ctx context.Context, taskID string) string {
	t, _, err := s.GetTask(ctx, taskID)
	if err != nil {
		return ""
	}
	return t.Title
}

func (s *Storage) queryRelations(ctx context.Context, filter string) ([]domain.TaskRelation, error) {
	pager := s.relations.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.TaskRelation{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent relationEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.TaskRelation{
				ID:           ent.RowKey,
				SourceTaskID: ent.SourceTaskID,
				TargetTaskID: ent.TargetTaskID,
				Type:         ent.Type,
			})
		}
	}
	return out, nil
}

func (s *Storage) DeleteRelation(ctx context.Context, relationID string) error {
	if _, err := s.relations.DeleteEntity(ctx, relationID, relationID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}
