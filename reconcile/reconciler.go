package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/board"
	"boardsync/domain"
)

// Refresher restores the store from the authoritative snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Reconciler merges change events from the realtime channel into the store.
// Events that merely confirm a local optimistic edit reduce to no-ops; events
// from other clients are spliced in. Stale events (older than the applied
// per-entity stamp) are discarded, which bounds the damage of out-of-order
// delivery to a momentarily stale displayed order, never a broken invariant.
type Reconciler struct {
	store     *board.Store
	refresher Refresher
	ch        Channel
	boardID   string
	log       *log.Logger
	retry     time.Duration
}

func NewReconciler(store *board.Store, refresher Refresher, ch Channel, boardID string, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{
		store:     store,
		refresher: refresher,
		ch:        ch,
		boardID:   boardID,
		log:       logger,
		retry:     time.Second,
	}
}

// Run subscribes and consumes events until ctx is cancelled. A dropped
// channel triggers resubscription plus one full refresh to heal whatever the
// transport lost; the channel offers no replay guarantee.
func (r *Reconciler) Run(ctx context.Context) error {
	first := true
	for {
		sub, err := r.ch.Subscribe(ctx, r.boardID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.WithFields(log.Fields{"board": r.boardID, "error": err.Error()}).Error("subscribe failed, retrying")
			select {
			case <-time.After(r.retry):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if !first {
			if err := r.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.WithFields(log.Fields{"board": r.boardID, "error": err.Error()}).Error("post-reconnect refresh failed")
			}
		}
		first = false
		r.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithField("board", r.boardID).Warn("realtime channel closed, resubscribing")
	}
}

func (r *Reconciler) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := r.Apply(ev); err != nil {
				r.log.WithFields(log.Fields{"board": r.boardID, "event": ev.Type, "error": err.Error()}).Error("event apply failed, re-fetching")
				if rerr := r.refresher.Refresh(ctx); rerr != nil && ctx.Err() == nil {
					r.log.WithFields(log.Fields{"board": r.boardID, "error": rerr.Error()}).Error("recovery refresh failed")
				}
			}
		}
	}
}

// Apply merges a single event. Applying the same event twice yields the same
// store state as applying it once.
func (r *Reconciler) Apply(ev domain.Event) error {
	if ev.BoardID != "" && ev.BoardID != r.boardID {
		return nil
	}
	switch ev.EntityType {
	case domain.EntityColumn:
		return r.applyColumn(ev)
	case domain.EntityTask:
		return r.applyTask(ev)
	default:
		// Comments, notifications and chat have their own consumers.
		r.log.WithField("entityType", ev.EntityType).Debug("ignoring non-board event")
		return nil
	}
}

func (r *Reconciler) applyColumn(ev domain.Event) error {
	if ev.Type == domain.ColumnDeleted {
		r.store.ApplyColumnRemoval(ev.EntityID)
		return r.validate()
	}
	var col domain.Column
	if err := json.Unmarshal(ev.Data, &col); err != nil {
		return fmt.Errorf("decode column event: %w", err)
	}
	if col.BoardID != "" && col.BoardID != r.boardID {
		return nil
	}
	if existing, ok := r.store.Column(ev.EntityID); ok && ev.Time <= existing.UpdatedAt {
		return nil
	}
	col.ID = ev.EntityID
	col.UpdatedAt = ev.Time
	r.store.ApplyColumnUpsert(col)
	return r.validate()
}

func (r *Reconciler) applyTask(ev domain.Event) error {
	if ev.Type == domain.TaskDeleted {
		// The task's last-known column may be stale, or the whole column
		// already gone; removal tolerates both.
		r.store.ApplyTaskRemoval(ev.EntityID)
		return r.validate()
	}
	var task domain.Task
	if err := json.Unmarshal(ev.Data, &task); err != nil {
		return fmt.Errorf("decode task event: %w", err)
	}
	// A board-scoped subscription can leak rows from elsewhere; only tasks of
	// tracked columns are merged.
	if !r.store.HasColumn(task.ColumnID) {
		return nil
	}
	if existing, _, ok := r.store.FindTask(ev.EntityID); ok && ev.Time <= existing.UpdatedAt {
		return nil
	}
	task.ID = ev.EntityID
	task.UpdatedAt = ev.Time
	r.store.ApplyTaskUpsert(task)
	return r.validate()
}

func (r *Reconciler) validate() error {
	if err := r.store.Validate(); err != nil {
		return fmt.Errorf("store invariant violated: %w", err)
	}
	return nil
}
