// Package slack connects the agent to Slack in socket mode.
package slack

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/hive/internal/integrations"
	"github.com/haasonsaas/hive/internal/observability"
)

// Adapter is the Slack integration. Socket mode needs both a bot token and
// an app-level token.
type Adapter struct {
	botToken string
	appToken string
	logger   *observability.Logger
}

// New returns a Slack adapter. Missing tokens mean not configured.
func New(botToken, appToken string, logger *observability.Logger) *Adapter {
	return &Adapter{botToken: botToken, appToken: appToken, logger: logger}
}

func (a *Adapter) Platform() string { return integrations.PlatformSlack }

func (a *Adapter) Configured() bool { return a.botToken != "" && a.appToken != "" }

// Run pumps socket-mode events until ctx is done, routing user messages
// through handle.
func (a *Adapter) Run(ctx context.Context, handle func(context.Context, integrations.Inbound) integrations.Outbound) error {
	api := slack.New(a.botToken, slack.OptionAppLevelToken(a.appToken))
	client := socketmode.New(api)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-client.Events:
				if !ok {
					return
				}
				a.handleEvent(ctx, api, client, event, handle)
			}
		}
	}()

	if err := client.RunContext(ctx); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "slack socket mode")
	}
	return ctx.Err()
}

func (a *Adapter) handleEvent(ctx context.Context, api *slack.Client, client *socketmode.Client, event socketmode.Event, handle func(context.Context, integrations.Inbound) integrations.Outbound) {
	if event.Type != socketmode.EventTypeEventsAPI {
		return
	}
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if event.Request != nil {
		client.Ack(*event.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || msg.BotID != "" || msg.Text == "" {
		return
	}

	out := handle(ctx, integrations.Inbound{
		Platform:  integrations.PlatformSlack,
		From:      msg.User,
		Text:      msg.Text,
		MessageID: msg.TimeStamp,
		Timestamp: time.Now(),
	})
	if out.Text == "" {
		return
	}

	_, _, err := api.PostMessageContext(ctx, msg.Channel,
		slack.MsgOptionText(out.Text, false),
		slack.MsgOptionTS(msg.TimeStamp))
	if err != nil && a.logger != nil {
		a.logger.Warn(ctx, "slack send failed", "error", err)
	}
}
