// Package provider abstracts streaming and completion LLM calls with tool
// support behind a single interface.
//
// Two families of backends are implemented: Anthropic (official SDK) and
// OpenAI-compatible (OpenAI, Google, Groq, Mistral, OpenRouter, Together,
// and Ollama via its OpenAI endpoint). Tool support is advertised per
// backend; the orchestrator falls back to plain streaming when tools are
// unavailable.
package provider

import (
	"context"
)

// Message roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one message in a provider request.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// argument payload, usually a JSON object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a tool offered to the model. Parameters is a JSON Schema
// object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is a provider-independent chat request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []Tool        `json:"tools,omitempty"`
}

// ChatResult is the outcome of a non-streaming completion.
type ChatResult struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// StreamChunk is one element of a streamed reply. A chunk carries either a
// text token or a terminal error; the channel closes when the stream ends.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider is the capability set every LLM backend implements.
//
// StreamChat returns a finite, non-restartable sequence of tokens. The
// channel is closed by the provider; a terminal error, if any, arrives as
// the last chunk.
type Provider interface {
	// Name returns the provider name ("anthropic", "openai", ...).
	Name() string

	// DefaultModel returns the model used when a request leaves Model empty.
	DefaultModel() string

	// SupportsTools reports whether the backend can drive the tool loop.
	SupportsTools() bool

	// StreamChat starts a streaming completion.
	StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// Ping performs a lightweight connectivity check.
	Ping(ctx context.Context) error
}

// Completer is implemented by providers that support non-streaming
// completion with tool calls. The orchestrator type-asserts for it to decide
// whether to run the tool loop.
type Completer interface {
	CompleteChat(ctx context.Context, req ChatRequest) (ChatResult, error)
}
