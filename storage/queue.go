package storage

import (
	"context"
	"encoding/json"
)

// NotificationJob is the unit of work enqueued for asynchronous delivery.
type NotificationJob struct {
	UserID  string `json:"userId"`
	BoardID string `json:"boardId"`
	TaskID  string `json:"taskId,omitempty"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// QueuedNotification pairs a dequeued job with the receipt needed to delete
// it after processing.
type QueuedNotification struct {
	Job        NotificationJob
	MessageID  string
	PopReceipt string
}

// EnqueueNotification sends a delivery job to the notification queue.
func (s *Storage) EnqueueNotification(ctx context.Context, job NotificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.notifyQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueNotification fetches at most one pending job. A nil result with a
// nil error means the queue is empty.
func (s *Storage) DequeueNotification(ctx context.Context) (*QueuedNotification, error) {
	resp, err := s.notifyQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	var job NotificationJob
	if err := json.Unmarshal([]byte(*msg.MessageText), &job); err != nil {
		// Poison message: drop it so the queue keeps draining.
		_, _ = s.notifyQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
		return nil, err
	}
	return &QueuedNotification{Job: job, MessageID: *msg.MessageID, PopReceipt: *msg.PopReceipt}, nil
}

// DeleteQueuedNotification acknowledges a processed job.
func (s *Storage) DeleteQueuedNotification(ctx context.Context, messageID, popReceipt string) error {
	_, err := s.notifyQueue.DeleteMessage(ctx, messageID, popReceipt, nil)
	return err
}
