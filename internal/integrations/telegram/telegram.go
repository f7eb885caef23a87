// Package telegram connects the agent to Telegram via long polling.
package telegram

import (
	"context"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/integrations"
	"github.com/haasonsaas/hive/internal/observability"
)

// Adapter is the Telegram integration.
type Adapter struct {
	token  string
	logger *observability.Logger
}

// New returns a Telegram adapter. An empty token means not configured.
func New(token string, logger *observability.Logger) *Adapter {
	return &Adapter{token: token, logger: logger}
}

func (a *Adapter) Platform() string { return integrations.PlatformTelegram }

func (a *Adapter) Configured() bool { return a.token != "" }

// Run long-polls for updates until ctx is done. Each private message is
// routed through handle and the reply is sent back to the chat.
func (a *Adapter) Run(ctx context.Context, handle func(context.Context, integrations.Inbound) integrations.Outbound) error {
	handler := func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil || msg.Text == "" || msg.From == nil {
			return
		}

		out := handle(ctx, integrations.Inbound{
			Platform:  integrations.PlatformTelegram,
			From:      strconv.FormatInt(msg.From.ID, 10),
			Text:      msg.Text,
			MessageID: strconv.Itoa(msg.ID),
			Timestamp: time.Unix(int64(msg.Date), 0),
		})
		if out.Text == "" {
			return
		}

		params := &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   out.Text,
			ReplyParameters: &models.ReplyParameters{
				MessageID: msg.ID,
			},
		}
		if _, err := b.SendMessage(ctx, params); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "telegram send failed", "error", err)
		}
	}

	b, err := bot.New(a.token, bot.WithDefaultHandler(handler))
	if err != nil {
		return errors.Wrap(err, "creating telegram bot")
	}

	b.Start(ctx)
	return ctx.Err()
}
