package provider

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// Vendor base URLs for the OpenAI-compatible family.
const (
	baseURLGoogle     = "https://generativelanguage.googleapis.com/v1beta/openai/"
	baseURLGroq       = "https://api.groq.com/openai/v1"
	baseURLMistral    = "https://api.mistral.ai/v1"
	baseURLOpenRouter = "https://openrouter.ai/api/v1"
	baseURLTogether   = "https://api.together.xyz/v1"
	baseURLOllama     = "http://localhost:11434/v1"
)

// OpenAICompatible implements Provider and Completer for any backend that
// speaks the OpenAI chat-completions protocol.
type OpenAICompatible struct {
	client        *openai.Client
	name          string
	defaultModel  string
	supportsTools bool
}

// OpenAICompatibleConfig configures an OpenAI-compatible provider.
type OpenAICompatibleConfig struct {
	// Name identifies the vendor ("openai", "groq", "ollama", ...).
	Name string

	// APIKey authenticates requests. Optional for local Ollama.
	APIKey string

	// BaseURL overrides the vendor endpoint. Empty means api.openai.com.
	BaseURL string

	// DefaultModel is used when a request leaves the model empty.
	DefaultModel string

	// SupportsTools advertises tool-call capability.
	SupportsTools bool
}

// NewOpenAICompatible creates a provider for an OpenAI-protocol backend.
func NewOpenAICompatible(cfg OpenAICompatibleConfig) (*OpenAICompatible, error) {
	if cfg.Name == "" {
		return nil, errors.New("openai: vendor name is required")
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAICompatible{
		client:        openai.NewClientWithConfig(clientCfg),
		name:          cfg.Name,
		defaultModel:  cfg.DefaultModel,
		supportsTools: cfg.SupportsTools,
	}, nil
}

// Name returns the vendor name.
func (p *OpenAICompatible) Name() string { return p.name }

// DefaultModel returns the configured default model.
func (p *OpenAICompatible) DefaultModel() string { return p.defaultModel }

// SupportsTools reports whether this vendor can drive the tool loop.
func (p *OpenAICompatible) SupportsTools() bool { return p.supportsTools }

// Ping lists models to verify connectivity and credentials.
func (p *OpenAICompatible) Ping(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	return p.wrap(err, p.defaultModel)
}

// StreamChat starts a streaming completion and emits text tokens.
func (p *OpenAICompatible) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	model := p.model(req)
	stream, err := p.client.CreateChatCompletionStream(ctx, p.convertRequest(req, model))
	if err != nil {
		return nil, p.wrap(err, model)
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				chunks <- StreamChunk{Err: p.wrap(err, model)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if token := resp.Choices[0].Delta.Content; token != "" {
				select {
				case chunks <- StreamChunk{Text: token}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return chunks, nil
}

// CompleteChat runs a non-streaming completion, returning content and any
// requested tool calls.
func (p *OpenAICompatible) CompleteChat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	model := p.model(req)
	resp, err := p.client.CreateChatCompletion(ctx, p.convertRequest(req, model))
	if err != nil {
		return ChatResult{}, p.wrap(err, model)
	}
	if len(resp.Choices) == 0 {
		return ChatResult{}, nil
	}

	choice := resp.Choices[0].Message
	result := ChatResult{Content: choice.Content}
	for _, call := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return result, nil
}

func (p *OpenAICompatible) model(req ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *OpenAICompatible) convertRequest(req ChatRequest, model string) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}

	for _, msg := range req.Messages {
		converted := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, converted)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func (p *OpenAICompatible) wrap(err error, model string) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatusCode
	}
	return WrapError(p.name, model, status, err)
}
