package notify

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisBridgePublishesOnUserTopic(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	ctx := context.Background()
	sub := rc.Subscribe(ctx, "notifications.bob")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bridge := NewRedisBridge(rc, NewHub(quietLogger(), 1), quietLogger())
	if err := bridge.Publish(ctx, "bob", Event{Type: TypeDeadlineSoon, Message: "m", TaskID: 4}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		ev, err := Decode([]byte(msg.Payload))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.TaskID != 4 || ev.Type != TypeDeadlineSoon {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for redis message")
	}
}

func TestRedisBridgeRelaysIntoHub(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	hub := NewHub(quietLogger(), 4)
	session := hub.Subscribe("bob")
	defer session.Close()
	bridge := NewRedisBridge(rc, hub, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bridge.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for m.PubSubNumPat() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bridge did not subscribe")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := rc.Publish(context.Background(), "notifications.bob", "garbage").Err(); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	if err := bridge.Publish(context.Background(), "bob", Event{Type: TypeDeadlineSoon, Message: "m", TaskID: 11}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if got := receive(t, session); got.TaskID != 11 {
		t.Fatalf("unexpected event %+v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit")
	}
}
