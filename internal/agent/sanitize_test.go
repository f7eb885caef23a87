package agent

import (
	"strings"
	"testing"
)

func TestSanitizeSearchBoilerplate(t *testing.T) {
	reply := "I am a helpful assistant with access to the following tools: web_search. Would you like me to run a search?"

	// By the time sanitize runs, a /search turn's message has been rewritten
	// into the untrusted block; the raw command still marks it as a search.
	wrapped := WrapUntrusted("1. Ramen Ichiro\n", "web search for \"best ramen\"", "best ramen")
	got := sanitize("/search best ramen", wrapped, reply)
	if got != cannedSearchConfirm {
		t.Errorf("got %q", got)
	}

	// Both markers are required for the replacement.
	partial := "I am a helpful assistant with access to the following tools."
	if got := sanitize("/search best ramen", wrapped, partial); got != partial {
		t.Errorf("replaced without the offer prompt: %q", got)
	}

	// Non-search turns keep the reply.
	if got := sanitize("tell me a story", "tell me a story", reply); got != reply {
		t.Errorf("non-search turn rewritten: %q", got)
	}
}

func TestSanitizeStripsInabilityClaims(t *testing.T) {
	user := WrapUntrusted("page body", "https://example.com", "what does it say?")
	reply := strings.Join([]string{
		"The page covers Go modules.",
		"However, I cannot browse the internet in real time.",
		"Would you like me to explain further?",
		"",
		"",
		"",
		"It also mentions workspaces.",
	}, "\n")

	got := sanitize("https://example.com", user, reply)
	if strings.Contains(got, "cannot browse") || strings.Contains(got, "Would you like me to") {
		t.Errorf("claims not stripped: %q", got)
	}
	if !strings.Contains(got, "Go modules") || !strings.Contains(got, "workspaces") {
		t.Errorf("real content lost: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("newline runs not collapsed: %q", got)
	}
}

func TestSanitizeEmptyAfterStrippingFallsBack(t *testing.T) {
	user := WrapUntrusted("results", "web search", "restaurants")
	reply := "I don't have the ability to browse the web.\nWould you like me to try something else?"
	if got := sanitize("/browse https://example.com restaurants", user, reply); got != cannedFollowUp {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeLeavesPlainRepliesAlone(t *testing.T) {
	reply := "Here is a haiku about autumn."
	if got := sanitize("write a haiku", "write a haiku", reply); got != reply {
		t.Errorf("got %q", got)
	}
}
