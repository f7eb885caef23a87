package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/store"
)

// scriptedProvider answers each completion from a queue keyed on the system
// prompt so fact, mood and crystallization calls can be told apart.
type scriptedProvider struct {
	answers map[string][]string
	calls   map[string]int
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{answers: map[string][]string{}, calls: map[string]int{}}
}

func (s *scriptedProvider) on(systemPrefix string, replies ...string) {
	s.answers[systemPrefix] = replies
}

func (s *scriptedProvider) Name() string                 { return "scripted" }
func (s *scriptedProvider) DefaultModel() string         { return "scripted-model" }
func (s *scriptedProvider) SupportsTools() bool          { return false }
func (s *scriptedProvider) Ping(_ context.Context) error { return nil }

func (s *scriptedProvider) StreamChat(_ context.Context, req provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{Text: s.reply(req)}
	close(ch)
	return ch, nil
}

func (s *scriptedProvider) CompleteChat(_ context.Context, req provider.ChatRequest) (provider.ChatResult, error) {
	return provider.ChatResult{Content: s.reply(req)}, nil
}

func (s *scriptedProvider) reply(req provider.ChatRequest) string {
	system := req.Messages[0].Content
	for prefix, replies := range s.answers {
		if strings.HasPrefix(system, prefix) {
			i := s.calls[prefix]
			s.calls[prefix]++
			if i < len(replies) {
				return replies[i]
			}
			return replies[len(replies)-1]
		}
	}
	return ""
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "hive.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessWritesEpisodeAndFacts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", `["User lives in Lucknow", "User prefers tea over coffee"]`)
	prov.on("Describe the user's current emotional state", "")

	p := NewPipeline(s, prov, nil, nil, config.Default().Memory)
	defer p.Close()

	p.Process(ctx, "I just moved to Lucknow", "Welcome to the city!")

	eps, err := s.ListRecentEpisodes(ctx, 5)
	if err != nil || len(eps) != 1 {
		t.Fatalf("episodes = %v, err = %v", eps, err)
	}
	if !strings.Contains(eps[0].Content, "User: I just moved to Lucknow") {
		t.Errorf("episode = %q", eps[0].Content)
	}

	auto, err := s.ListAutoKnowledge(ctx)
	if err != nil {
		t.Fatalf("listing knowledge: %v", err)
	}
	if len(auto) != 2 {
		t.Fatalf("expected 2 facts, got %d: %v", len(auto), auto)
	}
	for _, k := range auto {
		if k.Source != store.SourceAuto || k.Pinned {
			t.Errorf("unexpected knowledge row: %+v", k)
		}
	}
}

func TestZeroValueConfigFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", "[]")
	prov.on("Describe the user's current emotional state", "")

	p := NewPipeline(s, prov, nil, nil, config.MemoryConfig{})
	defer p.Close()

	// The counter bump divides by the crystallization cadence; a zero-value
	// config must not panic there.
	p.Process(ctx, "hello", "hi there")

	if p.cfg.CrystallizeEvery != config.Default().Memory.CrystallizeEvery {
		t.Errorf("CrystallizeEvery = %d", p.cfg.CrystallizeEvery)
	}
	if p.cfg.CrystallizeWindow != config.Default().Memory.CrystallizeWindow {
		t.Errorf("CrystallizeWindow = %v", p.cfg.CrystallizeWindow)
	}
}

func TestProcessDeduplicatesOverlappingFacts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts",
		`["User works as a kernel engineer"]`,
		`["The user works as a kernel engineer at a startup"]`)
	prov.on("Describe the user's current emotional state", "")

	p := NewPipeline(s, prov, nil, nil, config.Default().Memory)
	defer p.Close()

	p.Process(ctx, "first", "reply")
	p.Process(ctx, "second", "reply")

	auto, err := s.ListAutoKnowledge(ctx)
	if err != nil {
		t.Fatalf("listing knowledge: %v", err)
	}
	if len(auto) != 1 {
		t.Errorf("overlapping fact was not deduplicated: %v", auto)
	}
}

func TestProcessForwardsMoodToLongTerm(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", `[]`)
	prov.on("Describe the user's current emotional state", `"excited but tired"`)

	dir := t.TempDir()
	longTerm := NewCtxMemory(dir, s)
	p := NewPipeline(s, prov, nil, longTerm, config.Default().Memory)
	defer p.Close()

	p.Process(ctx, "big day today", "congratulations")

	built, err := longTerm.Build(ctx, "anything")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(built, "excited but tired") {
		t.Errorf("mood not recorded: %q", built)
	}
}

func TestCrystallizationPinsSynthesizedFacts(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", `[]`)
	prov.on("Describe the user's current emotional state", "")
	prov.on("These are summaries of recent conversations", `["User is planning a move to Tokyo"]`)

	cfg := config.MemoryConfig{CrystallizeEvery: 3, CrystallizeEpisodes: 10, CrystallizeWindow: 7 * 24 * time.Hour}
	p := NewPipeline(s, prov, nil, nil, cfg)
	defer p.Close()

	for i := 0; i < 3; i++ {
		p.Process(ctx, fmt.Sprintf("exchange %d", i), "reply")
	}

	pinned, err := s.ListPinnedKnowledge(ctx)
	if err != nil {
		t.Fatalf("listing pinned: %v", err)
	}
	if len(pinned) != 1 {
		t.Fatalf("expected 1 pinned fact, got %d: %v", len(pinned), pinned)
	}
	if pinned[0].Source != store.SourceAutoCrystallized || !pinned[0].Pinned {
		t.Errorf("crystallized row = %+v", pinned[0])
	}
}

func TestCrystallizationSkippedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", `[]`)
	prov.on("Describe the user's current emotional state", "")
	prov.on("These are summaries of recent conversations", `["should never be inserted"]`)

	// Pretend the previous exchange happened long ago.
	if err := s.SetMeta(ctx, LastConversationAtKey, time.Now().UTC().Add(-30*24*time.Hour).Format(time.RFC3339)); err != nil {
		t.Fatalf("seeding meta: %v", err)
	}
	if _, err := s.IncrMeta(ctx, ConversationCountKey); err != nil {
		t.Fatalf("seeding count: %v", err)
	}
	if _, err := s.IncrMeta(ctx, ConversationCountKey); err != nil {
		t.Fatalf("seeding count: %v", err)
	}

	cfg := config.MemoryConfig{CrystallizeEvery: 3, CrystallizeEpisodes: 10, CrystallizeWindow: 7 * 24 * time.Hour}
	p := NewPipeline(s, prov, nil, nil, cfg)
	defer p.Close()

	p.Process(ctx, "third exchange", "reply")

	pinned, err := s.ListPinnedKnowledge(ctx)
	if err != nil {
		t.Fatalf("listing pinned: %v", err)
	}
	if len(pinned) != 0 {
		t.Errorf("crystallization ran outside the window: %v", pinned)
	}
}

func TestScheduleRunsOutOfBand(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	prov := newScriptedProvider()
	prov.on("Extract durable facts", `[]`)
	prov.on("Describe the user's current emotional state", "")

	p := NewPipeline(s, prov, nil, nil, config.Default().Memory)
	p.Schedule("hello", "hi")
	p.Close()

	n, err := s.CountEpisodes(ctx)
	if err != nil {
		t.Fatalf("counting episodes: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 episode after Close, got %d", n)
	}
}

func TestParseStringArray(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`["a", "b"]`, 2},
		{"Here you go:\n[\"one\"]\nHope that helps!", 1},
		{`[]`, 0},
		{`not json`, 0},
		{`["", "  ", "kept"]`, 1},
	}
	for _, tc := range cases {
		if got := parseStringArray(tc.raw); len(got) != tc.want {
			t.Errorf("parseStringArray(%q) = %v, want %d items", tc.raw, got, tc.want)
		}
	}
}

func TestCtxMemoryTailKeepsRecentEntries(t *testing.T) {
	ctx := context.Background()
	m := NewCtxMemory(t.TempDir(), nil)
	for i := 0; i < 8; i++ {
		if err := m.Record(ctx, "mood", fmt.Sprintf("mood-%d", i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	built, err := m.Build(ctx, "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(built, "mood-0") || strings.Contains(built, "mood-2") {
		t.Errorf("old entries kept: %q", built)
	}
	for i := 3; i < 8; i++ {
		if !strings.Contains(built, fmt.Sprintf("mood-%d", i)) {
			t.Errorf("missing recent entry mood-%d: %q", i, built)
		}
	}
}
