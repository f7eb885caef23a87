package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/home"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/store"
)

// echoProvider streams a fixed reply and records requests.
type echoProvider struct {
	reply    string
	fail     bool
	requests []provider.ChatRequest
}

func (e *echoProvider) Name() string                 { return "echo" }
func (e *echoProvider) DefaultModel() string         { return "echo-model" }
func (e *echoProvider) SupportsTools() bool          { return false }
func (e *echoProvider) Ping(_ context.Context) error { return nil }

func (e *echoProvider) StreamChat(_ context.Context, req provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	e.requests = append(e.requests, req)
	ch := make(chan provider.StreamChunk, 1)
	if e.fail {
		ch <- provider.StreamChunk{Err: fmt.Errorf("provider down")}
	} else {
		ch <- provider.StreamChunk{Text: e.reply}
	}
	close(ch)
	return ch, nil
}

func newTestHandler(t *testing.T, prov provider.Provider) (*Handler, *store.Store) {
	t.Helper()
	ctx := context.Background()
	h := home.Dir(t.TempDir())
	s, err := store.Open(ctx, h.DBPath())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ag, err := s.UpsertPrimaryAgent(ctx, store.Agent{Name: "Ada", AgentName: "Hive"})
	if err != nil {
		t.Fatalf("creating agent: %v", err)
	}

	handler := &Handler{
		Store:   s,
		Orch:    agent.New(agent.Config{Store: s, Provider: prov, Agent: ag}),
		Auth:    NewAuth(h),
		Limiter: NewLimiter(3 * time.Second),
		Home:    h,
	}
	return handler, s
}

func inbound(text string) Inbound {
	return Inbound{
		Platform:  PlatformTelegram,
		From:      "42",
		Text:      text,
		MessageID: "m1",
		Timestamp: time.Now(),
	}
}

func TestHandleUnauthorizedCreatesPending(t *testing.T) {
	h, _ := newTestHandler(t, &echoProvider{reply: "hi"})

	out := h.Handle(context.Background(), inbound("hello"))
	if out.Text != ReplyNotAuthorized {
		t.Errorf("reply = %q", out.Text)
	}
	if out.To != "42" || out.ReplyTo != "m1" {
		t.Errorf("outbound routing = %+v", out)
	}

	pending := h.Auth.ListPending()
	if len(pending) != 1 || pending[0].LastText != "hello" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestHandleRateLimit(t *testing.T) {
	h, _ := newTestHandler(t, &echoProvider{reply: "hi"})
	if err := h.Auth.AddAuthorized(PlatformTelegram, "42"); err != nil {
		t.Fatalf("AddAuthorized: %v", err)
	}

	if out := h.Handle(context.Background(), inbound("one")); out.Text != "hi" {
		t.Fatalf("first reply = %q", out.Text)
	}
	if out := h.Handle(context.Background(), inbound("two")); out.Text != ReplyRateLimited {
		t.Errorf("second reply = %q", out.Text)
	}
}

func TestHandleWithoutOrchestrator(t *testing.T) {
	h, _ := newTestHandler(t, &echoProvider{reply: "hi"})
	h.Orch = nil
	if err := h.Auth.AddAuthorized(PlatformTelegram, "42"); err != nil {
		t.Fatalf("AddAuthorized: %v", err)
	}

	if out := h.Handle(context.Background(), inbound("hello")); out.Text != ReplyNotInitialized {
		t.Errorf("reply = %q", out.Text)
	}
}

func TestHandlePersistsPlatformConversation(t *testing.T) {
	ctx := context.Background()
	prov := &echoProvider{reply: "good to hear"}
	h, s := newTestHandler(t, prov)
	if err := h.Auth.AddAuthorized(PlatformTelegram, "42"); err != nil {
		t.Fatalf("AddAuthorized: %v", err)
	}

	out := h.Handle(ctx, inbound("all tests pass"))
	if out.Text != "good to hear" {
		t.Fatalf("reply = %q", out.Text)
	}

	pc, err := s.GetPlatformConversation(ctx, PlatformTelegram, "42")
	if err != nil {
		t.Fatalf("GetPlatformConversation: %v", err)
	}
	var turns []platformTurn
	if err := json.Unmarshal([]byte(pc.Messages), &turns); err != nil {
		t.Fatalf("decoding turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != store.RoleUser || turns[0].Text != "all tests pass" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[1].Role != store.RoleAssistant || turns[1].Text != "good to hear" {
		t.Errorf("assistant turn = %+v", turns[1])
	}

	// The history layer reaches the provider on the next message.
	h.Limiter = NewLimiter(time.Nanosecond)
	h.Handle(ctx, inbound("and the next one"))
	last := prov.requests[len(prov.requests)-1]
	var addition string
	for _, m := range last.Messages {
		if m.Role == provider.RoleSystem && strings.HasPrefix(m.Content, "Conversation history") {
			addition = m.Content
		}
	}
	if !strings.Contains(addition, "all tests pass") || !strings.Contains(addition, "good to hear") {
		t.Errorf("history addition = %q", addition)
	}
}

func TestHandleProviderFailure(t *testing.T) {
	h, _ := newTestHandler(t, &echoProvider{fail: true})
	if err := h.Auth.AddAuthorized(PlatformTelegram, "42"); err != nil {
		t.Fatalf("AddAuthorized: %v", err)
	}

	out := h.Handle(context.Background(), inbound("hello"))
	want := fmt.Sprintf("Error generating response. Check %s.", h.Home.LogFile())
	if out.Text != want {
		t.Errorf("reply = %q, want %q", out.Text, want)
	}
}

func TestHistoryAdditionCapsTurns(t *testing.T) {
	var turns []platformTurn
	for i := 0; i < 30; i++ {
		turns = append(turns, platformTurn{Role: store.RoleUser, Text: fmt.Sprintf("turn-%d", i)})
	}
	got := historyAddition(turns)
	if strings.Contains(got, "turn-9\n") || !strings.Contains(got, "turn-10") || !strings.Contains(got, "turn-29") {
		t.Errorf("history window wrong: %q", got)
	}
}
