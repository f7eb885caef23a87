// Package memory runs the passive memory pipeline: episode capture, fact
// extraction, mood tracking and periodic crystallization. Everything here is
// fire-and-forget; failures are logged and swallowed, never raised into the
// reply path.
package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/store"
)

// Meta keys maintained by the pipeline.
const (
	ConversationCountKey  = "conversation_count"
	LastConversationAtKey = "last_conversation_at"
)

// MaxEpisodeChars truncates the stored exchange summary.
const MaxEpisodeChars = 2000

const (
	factPrompt = "Extract durable facts about the user from this exchange: stable preferences, biography, relationships, ongoing projects. Respond with a JSON array of short strings. Respond with [] if there are none."

	moodPrompt = "Describe the user's current emotional state in one short phrase. Respond with only the phrase, or nothing if it is unclear."

	crystallizePrompt = "These are summaries of recent conversations with the user. What are the most important things to know going forward? Respond with a JSON array of short strings."
)

// LongTerm is the optional long-term memory collaborator.
type LongTerm interface {
	// Build returns a context system prompt for the given user text.
	Build(ctx context.Context, text string) (string, error)

	// Record appends an entry of the given kind (mood, fact).
	Record(ctx context.Context, kind, text string) error
}

// Pipeline processes completed exchanges on a small worker pool.
type Pipeline struct {
	store    *store.Store
	provider provider.Provider
	logger   *observability.Logger
	longTerm LongTerm
	cfg      config.MemoryConfig

	jobs chan func(context.Context)
	wg   sync.WaitGroup
	once sync.Once
}

const (
	pipelineWorkers = 2
	pipelineBacklog = 16
	jobTimeout      = 2 * time.Minute
)

// NewPipeline starts the worker pool. longTerm may be nil. A zero-value cfg
// falls back to the config defaults.
func NewPipeline(s *store.Store, prov provider.Provider, logger *observability.Logger, longTerm LongTerm, cfg config.MemoryConfig) *Pipeline {
	defaults := config.Default().Memory
	if cfg.CrystallizeEvery <= 0 {
		cfg.CrystallizeEvery = defaults.CrystallizeEvery
	}
	if cfg.CrystallizeEpisodes <= 0 {
		cfg.CrystallizeEpisodes = defaults.CrystallizeEpisodes
	}
	if cfg.CrystallizeWindow <= 0 {
		cfg.CrystallizeWindow = defaults.CrystallizeWindow
	}
	p := &Pipeline{
		store:    s,
		provider: prov,
		logger:   logger,
		longTerm: longTerm,
		cfg:      cfg,
		jobs:     make(chan func(context.Context), pipelineBacklog),
	}
	for i := 0; i < pipelineWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		job(ctx)
		cancel()
	}
}

// Close drains the pool. Queued jobs still run.
func (p *Pipeline) Close() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

// Schedule queues a completed exchange for processing. When the backlog is
// full the exchange is dropped rather than blocking the reply path.
func (p *Pipeline) Schedule(userMessage, assistantReply string) {
	job := func(ctx context.Context) { p.Process(ctx, userMessage, assistantReply) }
	select {
	case p.jobs <- job:
	default:
		p.warn(context.Background(), "memory backlog full, dropping exchange")
	}
}

// Process runs the pipeline synchronously for one exchange.
func (p *Pipeline) Process(ctx context.Context, userMessage, assistantReply string) {
	p.writeEpisode(ctx, userMessage, assistantReply)
	p.extractFacts(ctx, userMessage, assistantReply)
	p.captureMood(ctx, userMessage)
	p.bumpAndMaybeCrystallize(ctx)
}

func (p *Pipeline) writeEpisode(ctx context.Context, userMessage, assistantReply string) {
	content := "User: " + userMessage + "\nAssistant: " + assistantReply
	if len(content) > MaxEpisodeChars {
		content = content[:MaxEpisodeChars]
	}
	if _, err := p.store.InsertEpisode(ctx, content); err != nil {
		p.warn(ctx, "episode write failed", "error", err)
	}
}

func (p *Pipeline) extractFacts(ctx context.Context, userMessage, assistantReply string) {
	raw, err := p.complete(ctx, factPrompt, "User: "+userMessage+"\nAssistant: "+assistantReply, 200)
	if err != nil {
		p.warn(ctx, "fact extraction failed", "error", err)
		return
	}
	for _, fact := range parseStringArray(raw) {
		p.insertIfNew(ctx, fact, store.SourceAuto, false)
	}
}

func (p *Pipeline) captureMood(ctx context.Context, userMessage string) {
	if p.longTerm == nil {
		return
	}
	mood, err := p.complete(ctx, moodPrompt, userMessage, 50)
	if err != nil {
		p.warn(ctx, "mood capture failed", "error", err)
		return
	}
	mood = strings.TrimSpace(strings.Trim(strings.TrimSpace(mood), `"`))
	if mood == "" {
		return
	}
	if err := p.longTerm.Record(ctx, "mood", mood); err != nil {
		p.warn(ctx, "mood record failed", "error", err)
	}
}

// bumpAndMaybeCrystallize advances the exchange counter and, every N
// exchanges within the recency window, synthesizes recent episodes into
// pinned knowledge.
func (p *Pipeline) bumpAndMaybeCrystallize(ctx context.Context) {
	prev, _ := p.store.GetMeta(ctx, LastConversationAtKey)

	count, err := p.store.IncrMeta(ctx, ConversationCountKey)
	if err != nil {
		p.warn(ctx, "conversation count bump failed", "error", err)
		return
	}
	now := time.Now().UTC()
	if err := p.store.SetMeta(ctx, LastConversationAtKey, now.Format(time.RFC3339)); err != nil {
		p.warn(ctx, "last conversation stamp failed", "error", err)
	}

	if count%p.cfg.CrystallizeEvery != 0 {
		return
	}
	prevAt, err := time.Parse(time.RFC3339, prev)
	if err != nil || now.Sub(prevAt) > p.cfg.CrystallizeWindow {
		return
	}
	p.crystallize(ctx)
}

func (p *Pipeline) crystallize(ctx context.Context) {
	episodes, err := p.store.ListRecentEpisodes(ctx, p.cfg.CrystallizeEpisodes)
	if err != nil || len(episodes) == 0 {
		return
	}
	var b strings.Builder
	for _, ep := range episodes {
		b.WriteString("- " + ep.Content + "\n")
	}

	raw, err := p.complete(ctx, crystallizePrompt, b.String(), 400)
	if err != nil {
		p.warn(ctx, "crystallization failed", "error", err)
		return
	}
	for _, fact := range parseStringArray(raw) {
		if !p.insertIfNew(ctx, fact, store.SourceAutoCrystallized, true) {
			continue
		}
		if p.longTerm != nil {
			if err := p.longTerm.Record(ctx, "fact", fact); err != nil {
				p.warn(ctx, "long-term fact record failed", "error", err)
			}
		}
	}
}

// insertIfNew inserts the fact unless existing knowledge already overlaps it.
func (p *Pipeline) insertIfNew(ctx context.Context, fact, source string, pinned bool) bool {
	fact = strings.Join(strings.Fields(fact), " ")
	if fact == "" {
		return false
	}
	if _, err := p.store.FindClosestKnowledge(ctx, fact); err == nil {
		return false
	}
	if _, err := p.store.InsertKnowledge(ctx, fact, source, pinned); err != nil {
		p.warn(ctx, "knowledge insert failed", "error", err)
		return false
	}
	return true
}

// complete asks the provider for a short non-streamed answer, falling back
// to collecting a stream for providers without chat completion.
func (p *Pipeline) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := provider.ChatRequest{
		Model:     p.provider.DefaultModel(),
		MaxTokens: maxTokens,
		Messages: []provider.ChatMessage{
			{Role: provider.RoleSystem, Content: system},
			{Role: provider.RoleUser, Content: user},
		},
	}

	if completer, ok := p.provider.(provider.Completer); ok {
		result, err := completer.CompleteChat(ctx, req)
		if err != nil {
			return "", err
		}
		return result.Content, nil
	}

	ch, err := p.provider.StreamChat(ctx, req)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		text.WriteString(chunk.Text)
	}
	return text.String(), nil
}

// parseStringArray pulls a JSON array of strings out of a model reply,
// tolerating prose around the brackets.
func parseStringArray(raw string) []string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
		return nil
	}
	out := items[:0]
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *Pipeline) warn(ctx context.Context, msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(ctx, msg, args...)
	}
}
