package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// DefaultAnthropicModel is used when a request leaves the model empty.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic implements Provider and Completer against the Anthropic API.
// Both paths consume the streaming endpoint; CompleteChat accumulates the
// stream into a single result so tool calls assembled from partial JSON
// deltas arrive whole.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey is the sk-ant-... key.
	APIKey string

	// DefaultModel overrides DefaultAnthropicModel.
	DefaultModel string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultAnthropicModel
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:       anthropic.NewClient(options...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return "anthropic" }

// DefaultModel returns the configured default model.
func (p *Anthropic) DefaultModel() string { return p.defaultModel }

// SupportsTools reports true; Claude models support tool use.
func (p *Anthropic) SupportsTools() bool { return true }

// Ping sends a minimal one-token request to verify connectivity.
func (p *Anthropic) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	return p.wrap(err, p.defaultModel)
}

// StreamChat starts a streaming completion and emits text tokens.
func (p *Anthropic) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	stream, model, err := p.newStream(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				select {
				case chunks <- StreamChunk{Text: delta.Text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Err: p.wrap(err, model)}
		}
	}()
	return chunks, nil
}

// CompleteChat runs a completion and returns the final text plus any tool
// calls the model requested.
func (p *Anthropic) CompleteChat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	stream, model, err := p.newStream(ctx, req)
	if err != nil {
		return ChatResult{}, err
	}

	var content strings.Builder
	var toolCalls []ToolCall
	var current *ToolCall
	var currentInput strings.Builder

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				current = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				content.WriteString(delta.Text)
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if current != nil {
				current.Arguments = currentInput.String()
				toolCalls = append(toolCalls, *current)
				current = nil
			}
		}
	}
	if err := stream.Err(); err != nil {
		return ChatResult{}, p.wrap(err, model)
	}
	return ChatResult{Content: content.String(), ToolCalls: toolCalls}, nil
}

func (p *Anthropic) newStream(ctx context.Context, req ChatRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system, messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, model, p.wrap(err, model)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, model, p.wrap(err, model)
		}
		params.Tools = tools
	}

	return p.client.Messages.NewStreaming(ctx, params), model, nil
}

// convertAnthropicMessages maps wire messages onto Anthropic's format.
// System messages are folded into the separate system prompt; tool results
// become tool_result blocks inside user messages.
func convertAnthropicMessages(messages []ChatMessage) (string, []anthropic.MessageParam, error) {
	var system strings.Builder
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)

		case RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					input = map[string]any{"raw": call.Arguments}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))

		default:
			return "", nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return system.String(), result, nil
}

func convertAnthropicTools(tools []Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		raw, err := json.Marshal(tool.Parameters)
		if err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, param)
	}
	return result, nil
}

func (p *Anthropic) wrap(err error, model string) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return WrapError("anthropic", model, status, err)
}
