package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/resilience"
)

// MaxToolRounds bounds the completion/tool-execution loop.
const MaxToolRounds = 4

const toolExhaustedMessage = "I could not complete all required tool calls. Please try again."

const invalidSearchArgs = "Invalid search arguments. Provide a JSON object with a string \"query\" field."

var webSearchTool = provider.Tool{
	Name:        "web_search",
	Description: "Search the web. Returns a numbered list of results with title, URL and snippet.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
		},
		"required": []string{"query"},
	},
}

// runToolLoop drives chat completion with the web_search tool for providers
// that support it. It returns the final assistant text.
func (o *Orchestrator) runToolLoop(ctx context.Context, completer provider.Completer, req provider.ChatRequest, userMessage string) (string, error) {
	req.Tools = []provider.Tool{webSearchTool}
	messages := req.Messages

	for round := 0; round < MaxToolRounds; round++ {
		req.Messages = messages
		result, err := resilience.RetryTransient(ctx, func() (provider.ChatResult, error) {
			return completer.CompleteChat(ctx, req)
		})
		if err != nil {
			return "", err
		}

		if len(result.ToolCalls) == 0 {
			return result.Content, nil
		}

		messages = append(messages, provider.ChatMessage{
			Role:      provider.RoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		for _, call := range result.ToolCalls {
			messages = append(messages, provider.ChatMessage{
				Role:       provider.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    o.executeTool(ctx, call, userMessage),
			})
		}
	}

	return toolExhaustedMessage, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, call provider.ToolCall, userMessage string) string {
	if call.Name != webSearchTool.Name {
		return "Unknown tool: " + call.Name
	}
	query, ok := parseSearchQuery(call.Arguments)
	if !ok {
		return invalidSearchArgs
	}
	results := o.web.SearchText(ctx, query)
	return WrapUntrusted(results, "web_search for \""+query+"\"", userMessage)
}

// parseSearchQuery accepts either a JSON object with a string query field,
// a JSON string, or a bare non-JSON string. Anything else is rejected.
func parseSearchQuery(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return "", false
		}
		query := strings.TrimSpace(obj.Query)
		return query, query != ""
	}

	var s string
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}

	// Some models emit the query without quoting it as JSON.
	return trimmed, true
}
