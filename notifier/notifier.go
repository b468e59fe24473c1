// Package notifier drains the notification queue, persists notifications and
// fans them out to the owning user's channel.
package notifier

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/storage"
)

const defaultPollInterval = 2 * time.Second

// Queue is the source of pending notification jobs.
type Queue interface {
	DequeueNotification(ctx context.Context) (*storage.QueuedNotification, error)
	DeleteQueuedNotification(ctx context.Context, messageID, popReceipt string) error
}

// Store persists delivered notifications.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
}

// Publisher pushes notifications to the user's realtime channel.
type Publisher interface {
	PublishUser(ctx context.Context, userID string, ev domain.Event) error
}

// Worker consumes notification jobs until its context is cancelled.
type Worker struct {
	queue    Queue
	store    Store
	pub      Publisher
	log      *log.Logger
	interval time.Duration
}

func New(queue Queue, store Store, pub Publisher, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Worker{
		queue:    queue,
		store:    store,
		pub:      pub,
		log:      logger,
		interval: defaultPollInterval,
	}
}

// Run polls the queue until ctx is cancelled. Failed jobs stay on the queue
// and reappear after the visibility timeout.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Errorf("notifier: %v", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// ProcessOne handles a single queued job. It reports false when the queue was
// empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.DequeueNotification(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    msg.Job.UserID,
		TaskID:    msg.Job.TaskID,
		Type:      msg.Job.Type,
		Message:   msg.Job.Message,
		CreatedAt: domain.NextStamp(),
	}
	if err := w.store.InsertNotification(ctx, n); err != nil {
		return true, err
	}

	if data, err := sonic.Marshal(n); err == nil {
		ev := domain.Event{
			ID:         uuid.NewString(),
			BoardID:    msg.Job.BoardID,
			EntityID:   n.ID,
			EntityType: domain.EntityNotification,
			Type:       domain.NotificationCreated,
			Data:       data,
			Time:       n.CreatedAt,
			UserID:     n.UserID,
		}
		if err := w.pub.PublishUser(ctx, n.UserID, ev); err != nil {
			w.log.Warnf("notifier publish: %v", err)
		}
	}

	if err := w.queue.DeleteQueuedNotification(ctx, msg.MessageID, msg.PopReceipt); err != nil {
		return true, err
	}
	return true, nil
}
