package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/memory"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/store"
)

// Replies the handler sends without consulting the agent.
const (
	ReplyNotAuthorized  = "Not authorized. Ask the daemon owner to approve this sender."
	ReplyRateLimited    = "Rate limited"
	ReplyNotInitialized = "daemon running but agent not initialized"
)

// MaxHistoryTurns is how many platform turns are stitched into the prompt.
const MaxHistoryTurns = 20

// platformTurn is one entry of a platform conversation's message log.
type platformTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
	At   string `json:"at"`
}

// Handler routes inbound platform messages through auth, the rate limit and
// the orchestrator.
type Handler struct {
	Store    *store.Store
	Orch     *agent.Orchestrator
	Auth     *Auth
	Limiter  *Limiter
	LongTerm memory.LongTerm
	Memory   *memory.Pipeline
	Logger   *observability.Logger
	Home     home.Dir
}

// Handle processes one inbound message and returns the reply to send.
func (h *Handler) Handle(ctx context.Context, in Inbound) Outbound {
	reply := func(text string) Outbound {
		return Outbound{Platform: in.Platform, To: in.From, ReplyTo: in.MessageID, Text: text}
	}

	if !h.Auth.IsAuthorized(in.Platform, in.From) {
		if err := h.Auth.UpsertPending(in.Platform, in.From, in.Timestamp, in.Text); err != nil {
			h.warn(ctx, "pending upsert failed", "error", err)
		}
		return reply(ReplyNotAuthorized)
	}

	if !h.Limiter.Allow(in.Platform, in.From) {
		return reply(ReplyRateLimited)
	}

	if h.Orch == nil {
		return reply(ReplyNotInitialized)
	}

	turns := h.loadTurns(ctx, in.Platform, in.From)
	turns = append(turns, platformTurn{
		Role: store.RoleUser,
		Text: in.Text,
		At:   in.Timestamp.UTC().Format(time.RFC3339),
	})

	opts := agent.ChatOptions{SystemAddition: historyAddition(turns)}
	if h.LongTerm != nil {
		if contextPrompt, err := h.LongTerm.Build(ctx, in.Text); err != nil {
			h.warn(ctx, "long-term context build failed", "error", err)
		} else if contextPrompt != "" {
			opts.ContextSystemPrompt = contextPrompt
		}
		opts.DisableEpisodeStore = true
	}

	assistantText, err := h.chat(ctx, in.Text, opts)
	if err != nil {
		h.warn(ctx, "platform chat failed", "platform", in.Platform, "error", err)
		return reply(fmt.Sprintf("Error generating response. Check %s.", h.Home.LogFile()))
	}

	turns = append(turns, platformTurn{
		Role: store.RoleAssistant,
		Text: assistantText,
		At:   time.Now().UTC().Format(time.RFC3339),
	})
	h.saveTurns(ctx, in.Platform, in.From, turns)

	if h.Memory != nil {
		h.Memory.Schedule(in.Text, assistantText)
	}

	return reply(assistantText)
}

// chat runs one orchestrator turn and collects the stream into a string.
func (h *Handler) chat(ctx context.Context, text string, opts agent.ChatOptions) (string, error) {
	events, err := h.Orch.Chat(ctx, text, opts)
	if err != nil {
		return "", err
	}
	var out string
	var failure error
	for ev := range events {
		switch ev.Type {
		case agent.EventToken:
			out += ev.Token
		case agent.EventError:
			failure = ev.Err
		}
	}
	if out == "" && failure != nil {
		return "", failure
	}
	return out, nil
}

func (h *Handler) loadTurns(ctx context.Context, platform, from string) []platformTurn {
	pc, err := h.Store.GetPlatformConversation(ctx, platform, from)
	if err != nil {
		return nil
	}
	var turns []platformTurn
	if err := json.Unmarshal([]byte(pc.Messages), &turns); err != nil {
		h.warn(ctx, "platform conversation decode failed", "platform", platform, "error", err)
		return nil
	}
	return turns
}

func (h *Handler) saveTurns(ctx context.Context, platform, from string, turns []platformTurn) {
	data, err := json.Marshal(turns)
	if err != nil {
		h.warn(ctx, "platform conversation encode failed", "error", err)
		return
	}
	if _, err := h.Store.UpsertPlatformConversation(ctx, platform, from, string(data)); err != nil {
		h.warn(ctx, "platform conversation save failed", "error", err)
	}
}

// historyAddition renders the last MaxHistoryTurns turns as a system layer.
func historyAddition(turns []platformTurn) string {
	if len(turns) > MaxHistoryTurns {
		turns = turns[len(turns)-MaxHistoryTurns:]
	}
	out := "Conversation history (most recent last):"
	for _, turn := range turns {
		out += fmt.Sprintf("\n%s: %s", turn.Role, turn.Text)
	}
	return out
}

func (h *Handler) warn(ctx context.Context, msg string, args ...any) {
	if h.Logger != nil {
		h.Logger.Warn(ctx, msg, args...)
	}
}
