// Package notify delivers notification events to the live sessions of a user.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// TypeDeadlineSoon marks a task whose deadline falls inside the imminent window.
const TypeDeadlineSoon = "DEADLINE_SOON"

// TopicPrefix prefixes every per-user topic.
const TopicPrefix = "notifications."

// Event is a single notification for one user. It is never persisted.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TaskID  uint   `json:"taskId"`
}

// Publisher delivers an event to a user's topic. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, username string, ev Event) error
}

// Topic returns the private topic of username.
func Topic(username string) string {
	return TopicPrefix + username
}

// Encode serialises ev for the wire.
func Encode(ev Event) ([]byte, error) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Fanout publishes every event to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, username string, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, username, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
