package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAgent(t *testing.T, s *Store) Agent {
	t.Helper()
	agent, err := s.UpsertPrimaryAgent(context.Background(), Agent{
		Name:     "Ada",
		Provider: "openai",
		Model:    "gpt-4o",
		Persona:  "You are Ada, a helpful local agent.",
		Location: "Lucknow",
	})
	require.NoError(t, err)
	return agent
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hive.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	agent := seedAgent(t, s)
	version, err := s.GetMeta(ctx, SchemaVersionKey)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Re-opening applies no migrations twice and preserves records.
	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	reloaded, err := s2.GetPrimaryAgent(ctx)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, reloaded.ID)

	version2, err := s2.GetMeta(ctx, SchemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, version, version2)

	var n int
	require.NoError(t, s2.db.Get(&n, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, len(migrations), n)
}

func TestUpsertPrimaryAgentPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	first := seedAgent(t, s)

	second, err := s.UpsertPrimaryAgent(ctx, Agent{
		Name:     "Ada",
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "anthropic", second.Provider)
}

func TestInsertAgentAddsSecondaryRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	primary := seedAgent(t, s)

	other, err := s.InsertAgent(ctx, Agent{Name: "Eve", AgentName: "Drone"})
	require.NoError(t, err)
	assert.NotEqual(t, primary.ID, other.ID)

	// The secondary can own conversations of its own.
	conv, err := s.CreateConversation(ctx, other.ID, "side channel")
	require.NoError(t, err)
	assert.Equal(t, other.ID, conv.AgentID)
}

func TestAppendMessageAdvancesConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	agent := seedAgent(t, s)

	conv, err := s.CreateConversation(ctx, agent.ID, "")
	require.NoError(t, err)

	msg, err := s.AppendMessage(ctx, conv.ID, RoleUser, "hello")
	require.NoError(t, err)

	reloaded, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.CreatedAt, reloaded.UpdatedAt)
}

func TestListMessagesNewestNOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	agent := seedAgent(t, s)
	conv, err := s.CreateConversation(ctx, agent.ID, "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three", "four"} {
		_, err := s.AppendMessage(ctx, conv.ID, RoleUser, content)
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "four", msgs[1].Content)
}

func TestMessageRequiresConversation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.AppendMessage(ctx, "missing-conversation", RoleUser, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestDeleteAgentCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	agent := seedAgent(t, s)
	conv, err := s.CreateConversation(ctx, agent.ID, "")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, RoleUser, "hello")
	require.NoError(t, err)

	require.NoError(t, s.DeleteAgent(ctx, agent.ID))

	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFindClosestKnowledge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.InsertKnowledge(ctx, "The user lives in Lucknow with their family", SourceManual, false)
	require.NoError(t, err)
	_, err = s.InsertKnowledge(ctx, "Prefers espresso over filter coffee", SourceAuto, false)
	require.NoError(t, err)

	match, err := s.FindClosestKnowledge(ctx, "user family lives nearby")
	require.NoError(t, err)
	assert.Contains(t, match.Content, "Lucknow")

	_, err = s.FindClosestKnowledge(ctx, "quantum chromodynamics")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindClosestKnowledge(ctx, "a an")
	assert.ErrorIs(t, err, ErrNotFound, "queries with no usable tokens never match")
}

func TestFindRelevantEpisodesScoresThenRecency(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.InsertEpisode(ctx, "Discussed travel plans for Tokyo in spring")
	require.NoError(t, err)
	_, err = s.InsertEpisode(ctx, "Helped debug a flaky integration test")
	require.NoError(t, err)
	_, err = s.InsertEpisode(ctx, "Booked Tokyo flights and spring hotel dates")
	require.NoError(t, err)

	eps, err := s.FindRelevantEpisodes(ctx, "tokyo spring travel", 2)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Contains(t, eps[0].Content, "Tokyo")
	assert.Contains(t, eps[1].Content, "Tokyo")
}

func TestTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.InsertTask(ctx, "t-000001", "echo hello", "")
	require.NoError(t, err)
	assert.Equal(t, TaskQueued, task.Status)

	claimed, err := s.ClaimNextQueuedTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, claimed.ID)
	assert.Equal(t, TaskRunning, claimed.Status)
	assert.NotEmpty(t, claimed.StartedAt)

	// Queue drained.
	_, err = s.ClaimNextQueuedTask(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.MarkTaskDone(ctx, claimed.ID, "hello"))
	done, err := s.GetTask(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskDone, done.Status)
	assert.Equal(t, "hello", done.Result)
	assert.NotEmpty(t, done.CompletedAt)

	// Terminal states are final.
	err = s.MarkTaskFailed(ctx, claimed.ID, "late failure")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelQueuedTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.InsertTask(ctx, "", "never runs", "")
	require.NoError(t, err)
	require.NoError(t, s.CancelTask(ctx, task.ID))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, got.Status)
	assert.Equal(t, "cancelled", got.Error)
}

func TestResetRunningTasksToQueued(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	task, err := s.InsertTask(ctx, "", "interrupted", "")
	require.NoError(t, err)
	_, err = s.ClaimNextQueuedTask(ctx)
	require.NoError(t, err)

	n, err := s.ResetRunningTasksToQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskQueued, got.Status)

	counts, err := s.CountTasksByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{TaskQueued: 1}, counts)
}

func TestPlatformConversationUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.UpsertPlatformConversation(ctx, "telegram", "12345", `[{"role":"user"}]`)
	require.NoError(t, err)

	second, err := s.UpsertPlatformConversation(ctx, "telegram", "12345", `[{"role":"user"},{"role":"assistant"}]`)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert keys on (platform, external_id)")
	assert.Contains(t, second.Messages, "assistant")

	_, err = s.GetPlatformConversation(ctx, "discord", "12345")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hive.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, "theme", "dark"))
	require.NoError(t, s.SetMeta(ctx, "theme_hex", "#1a2b3c"))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	theme, err := s2.GetMeta(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
	hex, err := s2.GetMeta(ctx, "theme_hex")
	require.NoError(t, err)
	assert.Equal(t, "#1a2b3c", hex)
}

func TestIncrMeta(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	n, err := s.IncrMeta(ctx, "conversation_count")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrMeta(ctx, "conversation_count")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The USER, lives-in Lucknow! a b c 1234")
	assert.Equal(t, []string{"user", "lives", "lucknow", "1234"}, tokens)
}
