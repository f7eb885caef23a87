// Package discord connects the agent to Discord over the gateway.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/integrations"
	"github.com/haasonsaas/hive/internal/observability"
)

// Adapter is the Discord integration.
type Adapter struct {
	token  string
	logger *observability.Logger
}

// New returns a Discord adapter. An empty token means not configured.
func New(token string, logger *observability.Logger) *Adapter {
	return &Adapter{token: token, logger: logger}
}

func (a *Adapter) Platform() string { return integrations.PlatformDiscord }

func (a *Adapter) Configured() bool { return a.token != "" }

// Run opens a gateway session until ctx is done, routing direct and guild
// messages through handle.
func (a *Adapter) Run(ctx context.Context, handle func(context.Context, integrations.Inbound) integrations.Outbound) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return errors.Wrap(err, "creating discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.Content == "" {
			return
		}

		timestamp := m.Timestamp
		if timestamp.IsZero() {
			timestamp = time.Now()
		}
		out := handle(ctx, integrations.Inbound{
			Platform:  integrations.PlatformDiscord,
			From:      m.Author.ID,
			Text:      m.Content,
			MessageID: m.ID,
			Timestamp: timestamp,
		})
		if out.Text == "" {
			return
		}

		reply := &discordgo.MessageSend{
			Content:   out.Text,
			Reference: &discordgo.MessageReference{MessageID: m.ID, ChannelID: m.ChannelID},
		}
		if _, err := s.ChannelMessageSendComplex(m.ChannelID, reply); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "discord send failed", "error", err)
		}
	})

	if err := session.Open(); err != nil {
		return errors.Wrap(err, "opening discord gateway")
	}
	defer session.Close()

	<-ctx.Done()
	return ctx.Err()
}
