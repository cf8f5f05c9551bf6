package notify

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

type messageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramSink posts status messages to one chat.
type TelegramSink struct {
	bot    messageSender
	chatID int64
}

// NewTelegramSink builds an offline bot: it only sends and never polls.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram status sink needs a token and chat id")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.bot.Send(&tele.Chat{ID: s.chatID}, e.Text()); err != nil {
		return fmt.Errorf("send telegram status: %w", err)
	}
	return nil
}
