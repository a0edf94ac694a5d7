package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alex123iuyt/elyse-astro-bot-sub002/internal/domain/model"
)

type Bot struct {
	api *tgbotapi.BotAPI
}

// Message is a single broadcast delivery. PhotoURL switches the message to a
// photo with Text as its caption.
type Message struct {
	ChatID    int64
	Text      string
	ParseMode string
	PhotoURL  string
	Buttons   []model.BroadcastButton
}

type MessageUpdate struct {
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	SentAt    time.Time
}

type Handlers struct {
	OnMessage func(context.Context, MessageUpdate) error
}

func NewBot(token string) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api}, nil
}

// Listen feeds every private message sender to handlers until ctx is done.
// Handler errors are returned to the caller and stop the loop.
func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updateCfg.AllowedUpdates = []string{"message"}
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil || handlers.OnMessage == nil {
				continue
			}
			if update.Message.From.IsBot {
				continue
			}

			err := handlers.OnMessage(ctx, MessageUpdate{
				ChatID:    update.Message.Chat.ID,
				UserID:    update.Message.From.ID,
				Username:  update.Message.From.UserName,
				FirstName: update.Message.From.FirstName,
				LastName:  update.Message.From.LastName,
				SentAt:    update.Message.Time(),
			})
			if err != nil {
				return err
			}
		}
	}
}

func (b *Bot) Send(ctx context.Context, msg Message) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if msg.ChatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := b.api.Send(BuildChattable(msg)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// BuildChattable converts a broadcast message into the bot API request.
func BuildChattable(msg Message) tgbotapi.Chattable {
	markup := inlineKeyboard(msg.Buttons)

	if strings.TrimSpace(msg.PhotoURL) != "" {
		photo := tgbotapi.NewPhoto(msg.ChatID, tgbotapi.FileURL(msg.PhotoURL))
		photo.Caption = msg.Text
		photo.ParseMode = msg.ParseMode
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		return photo
	}

	text := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	text.ParseMode = msg.ParseMode
	if markup != nil {
		text.ReplyMarkup = *markup
	}
	return text
}

// one URL button per row
func inlineKeyboard(buttons []model.BroadcastButton) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, button := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(button.Text, button.URL),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// RetryAfter reports whether err is a Telegram flood-control response and how
// long the bot has to wait before sending again.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code != 429 && apiErr.RetryAfter <= 0 {
		return 0, false
	}

	wait := time.Duration(apiErr.RetryAfter) * time.Second
	if wait <= 0 {
		wait = time.Second
	}
	return wait, true
}
