package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"task-tracker/internal/model"
	"task-tracker/internal/repository"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

type fakeDirectory map[string]*model.User

func (d fakeDirectory) FindByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := d[username]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func TestTelegramRelay(t *testing.T) {
	chat := int64(4242)
	users := fakeDirectory{
		"bob":   {Username: "bob", TelegramChatID: &chat},
		"carol": {Username: "carol"},
	}
	sender := &fakeSender{}
	relay := NewTelegramRelay(sender, users, quietLogger())
	ctx := context.Background()

	if err := relay.Publish(ctx, "bob", Event{Type: TypeDeadlineSoon, Message: "Task 'x' is due", TaskID: 1}); err != nil {
		t.Fatalf("publish bob: %v", err)
	}
	if err := relay.Publish(ctx, "carol", Event{TaskID: 2}); err != nil {
		t.Fatalf("publish carol: %v", err)
	}
	if err := relay.Publish(ctx, "ghost", Event{TaskID: 3}); err != nil {
		t.Fatalf("publish ghost: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one telegram message, got %d", len(sender.sent))
	}
	if sender.sent[0].ChatID != chat || !strings.Contains(sender.sent[0].Text, "Task 'x' is due") {
		t.Fatalf("unexpected message %+v", sender.sent[0])
	}
}

func TestTelegramRelaySendError(t *testing.T) {
	chat := int64(1)
	boom := errors.New("boom")
	relay := NewTelegramRelay(&fakeSender{err: boom}, fakeDirectory{"bob": {TelegramChatID: &chat}}, quietLogger())
	if err := relay.Publish(context.Background(), "bob", Event{}); !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
}
