package realtime

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	rc := newTestRedis(t)
	pub := NewPublisher(rc, nil)
	ch := NewChannel(rc, nil)

	ctx := context.Background()
	sub, err := ch.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev := domain.Event{
		ID:         "ev1",
		BoardID:    "b1",
		EntityID:   "t1",
		EntityType: domain.EntityTask,
		Type:       domain.TaskUpdated,
		Data:       []byte(`{"id":"t1","columnId":"c1","title":"hello","position":0}`),
		Time:       42,
	}
	if err := pub.Publish(ctx, ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.ID != "ev1" || got.EntityID != "t1" || got.Time != 42 {
			t.Fatalf("unexpected event: %+v", got)
		}
		if string(got.Data) != string(ev.Data) {
			t.Fatalf("payload mangled: %s", got.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestSubscriptionsAreBoardScoped(t *testing.T) {
	rc := newTestRedis(t)
	pub := NewPublisher(rc, nil)
	ch := NewChannel(rc, nil)

	ctx := context.Background()
	sub, err := ch.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := pub.Publish(ctx, domain.Event{ID: "foreign", BoardID: "b2", EntityType: domain.EntityTask, Type: domain.TaskCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Publish(ctx, domain.Event{ID: "mine", BoardID: "b1", EntityType: domain.EntityTask, Type: domain.TaskCreated}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub.Events():
		if got.ID != "mine" {
			t.Fatalf("leak from another board: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestCloseEndsEventChannel(t *testing.T) {
	rc := newTestRedis(t)
	ch := NewChannel(rc, nil)

	sub, err := ch.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event channel did not close")
	}
}

func TestPublishUserTargetsUserChannel(t *testing.T) {
	rc := newTestRedis(t)
	pub := NewPublisher(rc, nil)

	ctx := context.Background()
	pubsub := rc.Subscribe(ctx, UserChannelName("u1"))
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer pubsub.Close()

	ev := domain.Event{ID: "n1", EntityType: domain.EntityNotification, Type: domain.NotificationCreated}
	if err := pub.PublishUser(ctx, "u1", ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-pubsub.Channel():
		if msg.Channel != UserChannelName("u1") {
			t.Fatalf("unexpected channel: %s", msg.Channel)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("notification not delivered")
	}
}

func TestMalformedPayloadSkipped(t *testing.T) {
	rc := newTestRedis(t)
	pub := NewPublisher(rc, nil)
	ch := NewChannel(rc, nil)

	ctx := context.Background()
	sub, err := ch.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := rc.Publish(ctx, ChannelName("b1"), "not json").Err(); err != nil {
		t.Fatalf("publish raw: %v", err)
	}
	if err := pub.Publish(ctx, domain.Event{ID: "good", BoardID: "b1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-sub.Events():
		if got.ID != "good" {
			t.Fatalf("malformed payload surfaced: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event not delivered")
	}
}
