package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/reconcile"
)

// ChannelName returns the pub/sub channel carrying one board's change events.
func ChannelName(boardID string) string { return "board:" + boardID }

// UserChannelName returns the pub/sub channel carrying one user's
// notifications.
func UserChannelName(userID string) string { return "user:" + userID }

// Publisher fans change events out to subscribed clients through Redis.
type Publisher struct {
	rc  *redis.Client
	log *log.Logger
}

func NewPublisher(rc *redis.Client, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Publisher{rc: rc, log: logger}
}

// Publish sends the event to its board channel.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, ChannelName(ev.BoardID), payload).Err()
}

// PublishUser sends the event to a single user's channel, used for
// notification delivery.
func (p *Publisher) PublishUser(ctx context.Context, userID string, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rc.Publish(ctx, UserChannelName(userID), payload).Err()
}

// Channel produces board-scoped subscriptions over Redis pub/sub.
type Channel struct {
	rc  *redis.Client
	log *log.Logger
}

func NewChannel(rc *redis.Client, logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Channel{rc: rc, log: logger}
}

// Subscribe opens a subscription for one board. The returned handle's event
// channel closes when the transport drops or Close is called; consumers
// resubscribe and refresh, the channel keeps no backlog.
func (c *Channel) Subscribe(ctx context.Context, boardID string) (reconcile.Subscription, error) {
	pubsub := c.rc.Subscribe(ctx, ChannelName(boardID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan domain.Event, 16),
		log:    c.log,
	}
	go sub.pump()
	return sub, nil
}

// Subscription adapts a Redis pub/sub stream to typed events.
type Subscription struct {
	pubsub *redis.PubSub
	events chan domain.Event
	log    *log.Logger
}

func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Close releases the underlying pub/sub resources; the event channel closes
// once the pump drains.
func (s *Subscription) Close() error { return s.pubsub.Close() }

func (s *Subscription) pump() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var ev domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.log.WithField("error", err.Error()).Error("unable to parse change event")
			continue
		}
		s.events <- ev
	}
}
