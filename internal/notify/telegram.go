package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/model"
	"task-tracker/internal/repository"
)

// TelegramSender is the part of *tgbotapi.BotAPI the relay needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserDirectory resolves a username to its account.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// TelegramRelay forwards events to the Telegram chat linked to a user, if any.
type TelegramRelay struct {
	sender TelegramSender
	users  UserDirectory
	logger *log.Logger
}

func NewTelegramRelay(sender TelegramSender, users UserDirectory, logger *log.Logger) *TelegramRelay {
	return &TelegramRelay{sender: sender, users: users, logger: logger}
}

func (r *TelegramRelay) Publish(ctx context.Context, username string, ev Event) error {
	user, err := r.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve telegram chat of %s: %w", username, err)
	}
	if user.TelegramChatID == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(*user.TelegramChatID, "⏰ "+ev.Message)
	if _, err := r.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram notification to %s: %w", username, err)
	}
	r.logger.WithFields(log.Fields{"username": username, "task_id": ev.TaskID}).Debug("telegram notification sent")
	return nil
}
