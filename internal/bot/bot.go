// Package bot is the Telegram companion: it links chats to accounts so
// deadline notifications can be relayed there, and lists open tasks.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/auth"
	"task-tracker/internal/model"
	"task-tracker/internal/repository"
)

const helpText = "<b>Task tracker</b>\n" +
	"/link &lt;token&gt; - receive deadline reminders here (use the token from login)\n" +
	"/unlink - stop reminders in this chat\n" +
	"/tasks - show open tasks\n" +
	"/help - this message"

// API is the part of the Telegram client the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatLinks stores which account a chat belongs to.
type ChatLinks interface {
	FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)
	LinkTelegramChat(ctx context.Context, username string, chatID int64) error
	UnlinkTelegramChat(ctx context.Context, chatID int64) (bool, error)
}

// TaskLister lists a caller's tasks, optionally by completion.
type TaskLister interface {
	List(ctx context.Context, caller string, completed *bool) ([]model.Task, error)
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    API
	links  ChatLinks
	tasks  TaskLister
	tokens auth.TokenValidator
	logger *log.Logger
}

func New(api API, links ChatLinks, tasks TaskLister, tokens auth.TokenValidator, logger *log.Logger) *Bot {
	return &Bot{api: api, links: links, tasks: tasks, tokens: tokens, logger: logger}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("telegram: start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.logger.Errorf("telegram: handle message: %v", err)
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "I only understand commands. Try /help.")
	}
	b.logger.Debugf("telegram: command /%s from chat %d", msg.Command(), msg.Chat.ID)

	switch msg.Command() {
	case "start", "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "link":
		return b.handleLink(ctx, msg)
	case "unlink":
		return b.handleUnlink(ctx, msg)
	case "tasks":
		return b.handleTasks(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	raw := strings.TrimSpace(msg.CommandArguments())
	if raw == "" {
		return b.sendText(msg.Chat.ID, "Usage: /link &lt;token&gt;")
	}
	username, err := b.tokens.Validate(raw)
	if err != nil {
		return b.sendText(msg.Chat.ID, "That token is invalid or expired. Log in again and retry.")
	}
	err = b.links.LinkTelegramChat(ctx, username, msg.Chat.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return b.sendText(msg.Chat.ID, "That account no longer exists.")
	}
	if err != nil {
		return fmt.Errorf("link chat %d: %w", msg.Chat.ID, err)
	}
	b.logger.WithField("username", username).Info("telegram chat linked")
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Linked to <b>%s</b>. Deadline reminders will arrive here.", html.EscapeString(username)))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message) error {
	ok, err := b.links.UnlinkTelegramChat(ctx, msg.Chat.ID)
	if err != nil {
		return fmt.Errorf("unlink chat %d: %w", msg.Chat.ID, err)
	}
	if !ok {
		return b.sendText(msg.Chat.ID, "This chat is not linked.")
	}
	return b.sendText(msg.Chat.ID, "Unlinked. No more reminders here.")
}

func (b *Bot) handleTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.links.FindByTelegramChatID(ctx, msg.Chat.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return b.sendText(msg.Chat.ID, "Link an account first with /link &lt;token&gt;.")
	}
	if err != nil {
		return fmt.Errorf("find chat owner: %w", err)
	}
	open := false
	tasks, err := b.tasks.List(ctx, user.Username, &open)
	if err != nil {
		return fmt.Errorf("list tasks for %s: %w", user.Username, err)
	}
	return b.sendText(msg.Chat.ID, formatTasks(tasks))
}

func formatTasks(tasks []model.Task) string {
	if len(tasks) == 0 {
		return "No open tasks. 🎉"
	}
	var builder strings.Builder
	builder.WriteString("📋 <b>Open tasks</b>\n")
	for _, task := range tasks {
		builder.WriteString(fmt.Sprintf("\n#%d %s <b>%s</b>", task.ID, priorityIcon(task.Priority), html.EscapeString(task.Title)))
		if task.HasDeadline() {
			builder.WriteString(fmt.Sprintf(" ⏳ %s %s", task.DueDate, task.DueTime))
		}
	}
	return builder.String()
}

func priorityIcon(priority string) string {
	switch priority {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "⚪"
	default:
		return "🟡"
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}
