package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"boardsync/domain"
)

type memberEntity struct {
	aztables.Entity
	UserID string `json:"UserId"`
	Role   string `json:"Role"`
	Name   string `json:"Name"`
	Email  string `json:"Email"`
}

type notificationEntity struct {
	aztables.Entity
	UserID        string `json:"UserId"`
	TaskID        string `json:"TaskId"`
	Type          string `json:"Type"`
	Message       string `json:"Message"`
	Read          bool   `json:"Read"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type messageEntity struct {
	aztables.Entity
	SenderID      string `json:"SenderId"`
	Content       string `json:"Content"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

// InsertMember adds a user to a board. Members are keyed by board so listing
// a board's roster is a single-partition query.
func (s *Storage) InsertMember(ctx context.Context, m domain.Member) error {
	ent := memberEntity{
		Entity: aztables.Entity{PartitionKey: m.BoardID, RowKey: m.UserID},
		UserID: m.UserID,
		Role:   m.Role,
		Name:   m.Name,
		Email:  m.Email,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.members.UpsertEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

func (s *Storage) DeleteMember(ctx context.Context, boardID, userID string) error {
	if _, err := s.members.DeleteEntity(ctx, boardID, userID, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListMembers returns the roster of one board.
func (s *Storage) ListMembers(ctx context.Context, boardID string) ([]domain.Member, error) {
	filter := "PartitionKey eq '" + sanitize(boardID) + "'"
	return s.queryMembers(ctx, filter)
}

// ListMemberships returns every membership row of one user.
func (s *Storage) ListMemberships(ctx context.Context, userID string) ([]domain.Member, error) {
	filter := "UserId eq '" + sanitize(userID) + "'"
	return s.queryMembers(ctx, filter)
}

func (s *Storage) queryMembers(ctx context.Context, filter string) ([]domain.Member, error) {
	pager := s.members.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Member{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent memberEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.Member{
				BoardID: ent.PartitionKey,
				UserID:  ent.RowKey,
				Role:    ent.Role,
				Name:    ent.Name,
				Email:   ent.Email,
			})
		}
	}
	return out, nil
}

// FindMemberByEmail resolves an invite address against known profiles.
func (s *Storage) FindMemberByEmail(ctx context.Context, email string) (domain.Member, error) {
	filter := "Email eq '" + sanitize(email) + "'"
	members, err := s.queryMembers(ctx, filter)
	if err != nil {
		return domain.Member{}, err
	}
	if len(members) == 0 {
		return domain.Member{}, domain.ErrNotFound
	}
	return members[0], nil
}

// InsertNotification persists a delivered notification.
func (s *Storage) InsertNotification(ctx context.Context, n domain.Notification) error {
	ent := notificationEntity{
		Entity:        aztables.Entity{PartitionKey: n.UserID, RowKey: n.ID},
		UserID:        n.UserID,
		TaskID:        n.TaskID,
		Type:          n.Type,
		Message:       n.Message,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.notifications.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListNotifications returns a user's unread notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	filter := "PartitionKey eq '" + sanitize(userID) + "' and Read eq false"
	pager := s.notifications.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.Notification{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent notificationEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.Notification{
				ID:        ent.RowKey,
				UserID:    ent.PartitionKey,
				TaskID:    ent.TaskID,
				Type:      ent.Type,
				Message:   ent.Message,
				Read:      ent.Read,
				CreatedAt: ent.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// MarkNotificationRead flips the read flag.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	upd := map[string]any{
		"PartitionKey": userID,
		"RowKey":       notificationID,
		"Read":         true,
	}
	return s.mergeEntity(ctx, s.notifications, upd)
}

// InsertMessage persists a board chat message.
func (s *Storage) InsertMessage(ctx context.Context, m domain.ChatMessage) error {
	ent := messageEntity{
		Entity:        aztables.Entity{PartitionKey: m.BoardID, RowKey: m.ID},
		SenderID:      m.SenderID,
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.messages.AddEntity(ctx, payload, nil); err != nil {
		return mapStorageError(err)
	}
	return nil
}

// ListMessages returns a board's chat history in send order.
func (s *Storage) ListMessages(ctx context.Context, boardID string) ([]domain.ChatMessage, error) {
	filter := "PartitionKey eq '" + sanitize(boardID) + "'"
	pager := s.messages.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	out := []domain.ChatMessage{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapStorageError(err)
		}
		for _, raw := range resp.Entities {
			var ent messageEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			out = append(out, domain.ChatMessage{
				ID:        ent.RowKey,
				BoardID:   ent.PartitionKey,
				SenderID:  ent.SenderID,
				Content:   ent.Content,
				CreatedAt: ent.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
