package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBridge carries events between processes over Redis pub/sub. Publish
// writes to the user's topic channel; Run relays every topic into a local Publisher.
type RedisBridge struct {
	rc     *redis.Client
	local  Publisher
	logger *log.Logger
}

func NewRedisBridge(rc *redis.Client, local Publisher, logger *log.Logger) *RedisBridge {
	return &RedisBridge{rc: rc, local: local, logger: logger}
}

func (b *RedisBridge) Publish(ctx context.Context, username string, ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.rc.Publish(ctx, Topic(username), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Topic(username), err)
	}
	return nil
}

// Run subscribes to all user topics and forwards events until ctx is done.
// A dropped subscription is re-established after a short pause.
func (b *RedisBridge) Run(ctx context.Context) {
	pattern := TopicPrefix + "*"
	for {
		sub := b.rc.PSubscribe(ctx, pattern)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			b.logger.Errorf("psubscribe %s: %v", pattern, err)
			time.Sleep(time.Second)
			continue
		}
		b.relay(ctx, sub.Channel())
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (b *RedisBridge) relay(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			username := strings.TrimPrefix(msg.Channel, TopicPrefix)
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Errorf("unable to parse notification on %s: %v", msg.Channel, err)
				continue
			}
			if err := b.local.Publish(ctx, username, ev); err != nil {
				b.logger.Errorf("deliver notification on %s: %v", msg.Channel, err)
			}
		}
	}
}
