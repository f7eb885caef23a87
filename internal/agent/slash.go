package agent

import (
	"context"
	"net/url"
	"strings"
)

// MaxSearchQueryChars caps a normalized /search query.
const MaxSearchQueryChars = 300

// preprocess rewrites slash commands and bare URLs into untrusted-context
// messages before the chat flow sees them. The second return reports whether
// a rewrite happened.
func (o *Orchestrator) preprocess(ctx context.Context, message string) (string, bool) {
	trimmed := strings.TrimSpace(message)

	switch {
	case strings.HasPrefix(trimmed, "/browse "):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/browse "))
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return message, false
		}
		pageURL := fields[0]
		question := strings.TrimSpace(strings.TrimPrefix(rest, pageURL))
		return o.browse(ctx, pageURL, question), true

	case strings.HasPrefix(trimmed, "/search "):
		query := normalizeQuery(strings.TrimPrefix(trimmed, "/search "), o.agent.Location)
		if query == "" {
			return message, false
		}
		results := o.web.SearchText(ctx, query)
		return WrapUntrusted(results, "web search for \""+query+"\"", query), true

	case isBareURL(trimmed):
		return o.browse(ctx, trimmed, ""), true
	}

	return message, false
}

func (o *Orchestrator) browse(ctx context.Context, pageURL, question string) string {
	if question == "" {
		question = "Summarize the key information from " + pageURL
	}
	body := o.web.BrowseText(ctx, pageURL)
	return WrapUntrusted(body, pageURL, question)
}

// normalizeQuery collapses whitespace, rewrites "near me" using the agent's
// location, and caps the result at MaxSearchQueryChars.
func normalizeQuery(query, location string) string {
	query = strings.Join(strings.Fields(query), " ")
	if location != "" {
		lower := strings.ToLower(query)
		if idx := strings.Index(lower, "near me"); idx >= 0 {
			query = query[:idx] + "near " + location + query[idx+len("near me"):]
		}
	}
	if len(query) > MaxSearchQueryChars {
		query = query[:MaxSearchQueryChars]
	}
	return strings.TrimSpace(query)
}

func isBareURL(text string) bool {
	if strings.ContainsAny(text, " \t\n") {
		return false
	}
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return false
	}
	u, err := url.Parse(text)
	return err == nil && u.Host != ""
}
