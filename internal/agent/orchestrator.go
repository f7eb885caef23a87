// Package agent orchestrates chat turns: conversation resolution, prompt
// assembly, the provider tool loop, streaming, and output sanitization.
package agent

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/prompt"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/resilience"
	"github.com/haasonsaas/hive/internal/store"
	"github.com/haasonsaas/hive/internal/web"
)

// ErrInvalidInput rejects an empty chat message.
var ErrInvalidInput = errors.New("empty message")

// ErrAuthMismatch rejects a conversation owned by a different agent.
var ErrAuthMismatch = errors.New("conversation does not belong to the primary agent")

// MaxHistoryMessages is how much conversation history each turn carries.
const MaxHistoryMessages = 80

// MaxEpisodeChars truncates the stored exchange episode.
const MaxEpisodeChars = 2000

const interruptedSuffix = " [response interrupted]"

// EventType discriminates chat stream events.
type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of the chat event stream.
type Event struct {
	Type           EventType
	Token          string
	ConversationID string
	MessageID      string
	Err            error
}

// ChatOptions tune a single chat turn.
type ChatOptions struct {
	// ConversationID continues an existing conversation. Empty creates one.
	ConversationID string

	// Model overrides the provider's default model.
	Model string

	Temperature *float32
	MaxTokens   int

	// SystemAddition is an extra system message appended after the prompt.
	SystemAddition string

	// ContextSystemPrompt replaces the layered system prompt entirely.
	ContextSystemPrompt string

	// DisableEpisodeStore skips the orchestrator's own episode write, for
	// callers that run their own memory pipeline.
	DisableEpisodeStore bool
}

// Config wires an Orchestrator.
type Config struct {
	Store      *store.Store
	Provider   provider.Provider
	Agent      store.Agent
	Web        *web.Client
	Logger     *observability.Logger
	PromptsDir string
}

// Orchestrator drives chat turns against the store and the provider.
type Orchestrator struct {
	store      *store.Store
	provider   provider.Provider
	agent      store.Agent
	web        *web.Client
	logger     *observability.Logger
	promptsDir string
}

// New builds an Orchestrator. Web defaults to a fresh client.
func New(cfg Config) *Orchestrator {
	if cfg.Web == nil {
		cfg.Web = web.NewClient()
	}
	return &Orchestrator{
		store:      cfg.Store,
		provider:   cfg.Provider,
		agent:      cfg.Agent,
		web:        cfg.Web,
		logger:     cfg.Logger,
		promptsDir: cfg.PromptsDir,
	}
}

// Agent returns the primary agent this orchestrator serves.
func (o *Orchestrator) Agent() store.Agent { return o.agent }

// Chat runs one turn and returns a stream of token events followed by done.
// Validation failures are returned synchronously; everything after the
// provider call flows through the channel.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string, opts ChatOptions) (<-chan Event, error) {
	trimmed := strings.TrimSpace(userMessage)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}

	processed, _ := o.preprocess(ctx, trimmed)

	conv, err := o.resolveConversation(ctx, opts.ConversationID, trimmed)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.AppendMessage(ctx, conv.ID, store.RoleUser, processed); err != nil {
		return nil, err
	}

	history, err := o.store.ListMessages(ctx, conv.ID, MaxHistoryMessages)
	if err != nil {
		return nil, err
	}

	req := o.buildRequest(ctx, processed, history, opts)

	events := make(chan Event)
	go o.run(ctx, events, conv, req, trimmed, processed, opts)
	return events, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, id, firstMessage string) (store.Conversation, error) {
	if id == "" {
		title := firstMessage
		if len(title) > 60 {
			title = title[:60]
		}
		return o.store.CreateConversation(ctx, o.agent.ID, title)
	}
	conv, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return store.Conversation{}, err
	}
	if conv.AgentID != o.agent.ID {
		return store.Conversation{}, ErrAuthMismatch
	}
	return conv, nil
}

// buildRequest layers the guardrails, the system prompt, and the history.
func (o *Orchestrator) buildRequest(ctx context.Context, userMessage string, history []store.Message, opts ChatOptions) provider.ChatRequest {
	messages := []provider.ChatMessage{{Role: provider.RoleSystem, Content: Guardrails}}

	if opts.ContextSystemPrompt != "" {
		system := opts.ContextSystemPrompt
		if opts.SystemAddition != "" {
			system += "\n\n" + opts.SystemAddition
		}
		messages = append(messages, provider.ChatMessage{Role: provider.RoleSystem, Content: system})
	} else {
		messages = append(messages, provider.ChatMessage{Role: provider.RoleSystem, Content: o.assembledPrompt(ctx, userMessage)})
		if opts.SystemAddition != "" {
			messages = append(messages, provider.ChatMessage{Role: provider.RoleSystem, Content: opts.SystemAddition})
		}
	}

	for _, m := range history {
		messages = append(messages, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}

	model := opts.Model
	if model == "" {
		model = o.provider.DefaultModel()
	}
	return provider.ChatRequest{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages:    messages,
	}
}

func (o *Orchestrator) assembledPrompt(ctx context.Context, userMessage string) string {
	pinned, err := o.store.ListPinnedKnowledge(ctx)
	if err != nil {
		o.debug(ctx, "loading pinned knowledge failed", "error", err)
	}
	episodes, err := o.store.FindRelevantEpisodes(ctx, userMessage, prompt.MaxEpisodes)
	if err != nil {
		o.debug(ctx, "loading episodes failed", "error", err)
	}
	res := prompt.Assemble(prompt.Input{
		Agent:      o.agent,
		Pinned:     pinned,
		Episodes:   episodes,
		PromptsDir: o.promptsDir,
	})
	if res.DroppedEpisodes > 0 {
		o.debug(ctx, "prompt budget dropped episodes", "dropped", res.DroppedEpisodes)
	}
	return res.Prompt
}

func (o *Orchestrator) run(ctx context.Context, events chan<- Event, conv store.Conversation, req provider.ChatRequest, rawMessage, userMessage string, opts ChatOptions) {
	defer close(events)

	if completer, ok := o.provider.(provider.Completer); ok && o.provider.SupportsTools() {
		text, err := o.runToolLoop(ctx, completer, req, userMessage)
		if err != nil {
			events <- Event{Type: EventError, ConversationID: conv.ID, Err: err}
			return
		}
		text = sanitize(rawMessage, userMessage, text)
		events <- Event{Type: EventToken, Token: text, ConversationID: conv.ID}
		o.finish(ctx, events, conv, userMessage, text, opts)
		return
	}

	o.runStreaming(ctx, events, conv, req, rawMessage, userMessage, opts)
}

// runStreaming calls stream_chat under the first-token timeout. One retry is
// allowed on transient failure, and only while zero tokens have been seen.
func (o *Orchestrator) runStreaming(ctx context.Context, events chan<- Event, conv store.Conversation, req provider.ChatRequest, rawMessage, userMessage string, opts ChatOptions) {
	var text strings.Builder
	emitted := false
	retried := false

	for {
		streamCtx, cancel := context.WithCancel(ctx)
		ch, err := o.provider.StreamChat(streamCtx, req)
		if err != nil {
			cancel()
			if !emitted && !retried && resilience.IsTransient(err) {
				retried = true
				continue
			}
			events <- Event{Type: EventError, ConversationID: conv.ID, Err: err}
			return
		}

		out := resilience.WithFirstTokenTimeout(ch, resilience.FirstTokenTimeout, cancel)
		var streamErr error
		for chunk := range out {
			if chunk.Err != nil {
				streamErr = chunk.Err
				break
			}
			emitted = true
			text.WriteString(chunk.Text)
			events <- Event{Type: EventToken, Token: chunk.Text, ConversationID: conv.ID}
		}
		cancel()

		if streamErr == nil {
			break
		}
		if !emitted && !retried && resilience.IsTransient(streamErr) {
			retried = true
			continue
		}
		if emitted {
			// Keep the partial turn; the suffix marks it as incomplete.
			partial := text.String() + interruptedSuffix
			if msg, err := o.store.AppendMessage(ctx, conv.ID, store.RoleAssistant, partial); err == nil {
				events <- Event{Type: EventDone, ConversationID: conv.ID, MessageID: msg.ID}
			}
		}
		events <- Event{Type: EventError, ConversationID: conv.ID, Err: streamErr}
		return
	}

	o.finish(ctx, events, conv, userMessage, sanitize(rawMessage, userMessage, text.String()), opts)
}

func (o *Orchestrator) finish(ctx context.Context, events chan<- Event, conv store.Conversation, userMessage, reply string, opts ChatOptions) {
	msg, err := o.store.AppendMessage(ctx, conv.ID, store.RoleAssistant, reply)
	if err != nil {
		events <- Event{Type: EventError, ConversationID: conv.ID, Err: err}
		return
	}

	if !opts.DisableEpisodeStore {
		episode := "User: " + userMessage + "\nAssistant: " + reply
		if len(episode) > MaxEpisodeChars {
			episode = episode[:MaxEpisodeChars]
		}
		if _, err := o.store.InsertEpisode(ctx, episode); err != nil {
			o.debug(ctx, "episode write failed", "error", err)
		}
	}

	events <- Event{Type: EventDone, ConversationID: conv.ID, MessageID: msg.ID}
}

func (o *Orchestrator) debug(ctx context.Context, msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(ctx, msg, args...)
	}
}
