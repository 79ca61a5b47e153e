package push

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindd/internal/model"
	"remindd/pkg/logx"
)

// TelegramConfig configures the Telegram push driver.
type TelegramConfig struct {
	Token string
}

// Telegram delivers push payloads as Telegram messages. The subscriber's
// endpoint handle is a chat id; Keys is unused by this driver.
type Telegram struct {
	bot *tele.Bot
	log logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("push: telegram token is empty")
	}
	// Send-only: no poller, the engine never consumes updates.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("push: telegram bot: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, sub *model.PushSubscriber, p Payload) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(sub.EndpointHandle), 10, 64)
	if err != nil {
		return fmt.Errorf("push: subscriber %s has a non-telegram endpoint handle: %w", sub.ID, err)
	}

	text := p.Title
	if p.Body != "" {
		text += "\n" + p.Body
	}

	// telebot has no context-aware send; run it in a goroutine and
	// honor ctx ourselves so a hung API call cannot stall the caller.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("push: telegram send to %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
