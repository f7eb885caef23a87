// Package integrations connects messaging platforms to the agent: sender
// authorization, per-sender rate limiting, the inbound message handler, and
// the adapter lifecycle manager.
package integrations

import (
	"context"
	"time"
)

// Platform names.
const (
	PlatformTelegram = "telegram"
	PlatformDiscord  = "discord"
	PlatformSlack    = "slack"
)

// Status is an adapter lifecycle state.
type Status string

const (
	StatusNotConfigured Status = "not configured"
	StatusDisabled      Status = "disabled"
	StatusStarting      Status = "starting"
	StatusRunning       Status = "running"
	StatusError         Status = "error"
)

// Inbound is a message received from a platform.
type Inbound struct {
	Platform  string
	From      string
	Text      string
	MessageID string
	Timestamp time.Time
}

// Outbound is the reply sent back to a platform.
type Outbound struct {
	Platform string
	To       string
	ReplyTo  string
	Text     string
}

// Adapter is one platform connection. Run blocks until the context is
// cancelled or the connection fails, delivering each inbound message to the
// handle callback and sending its return value back to the sender.
type Adapter interface {
	// Platform names the adapter.
	Platform() string

	// Configured reports whether credentials are present.
	Configured() bool

	// Run connects and pumps messages until ctx is done or the
	// connection fails.
	Run(ctx context.Context, handle func(context.Context, Inbound) Outbound) error
}
