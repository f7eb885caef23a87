package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/provider"
	"github.com/haasonsaas/hive/internal/store"
)

// taskProvider streams chunks with an optional gate so tests can cancel
// mid-stream.
type taskProvider struct {
	chunks []string
	gate   chan struct{}
}

func (p *taskProvider) Name() string                 { return "task" }
func (p *taskProvider) DefaultModel() string         { return "task-model" }
func (p *taskProvider) SupportsTools() bool          { return false }
func (p *taskProvider) Ping(_ context.Context) error { return nil }

func (p *taskProvider) StreamChat(ctx context.Context, _ provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk)
	go func() {
		defer close(ch)
		for _, text := range p.chunks {
			if p.gate != nil {
				select {
				case <-p.gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- provider.StreamChunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestWorker(t *testing.T, prov provider.Provider) (*Worker, *store.Store) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "hive.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ag, err := s.UpsertPrimaryAgent(ctx, store.Agent{Name: "Ada", AgentName: "Hive"})
	if err != nil {
		t.Fatalf("creating agent: %v", err)
	}
	orch := agent.New(agent.Config{Store: s, Provider: prov, Agent: ag})
	w := NewWorker(s, func(_ context.Context) (*agent.Orchestrator, error) {
		return orch, nil
	}, nil, nil)
	return w, s
}

func TestDrainExecutesQueuedTask(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWorker(t, &taskProvider{chunks: []string{"hello ", "world"}})

	task, err := s.InsertTask(ctx, "t-000001", "echo hello", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	w.drain(ctx)

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.TaskDone {
		t.Fatalf("status = %q (error %q)", got.Status, got.Error)
	}
	if got.Result != "hello world" {
		t.Errorf("result = %q", got.Result)
	}
}

func TestDrainRunsTasksSerially(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWorker(t, &taskProvider{chunks: []string{"ok"}})

	for _, id := range []string{"t-1", "t-2", "t-3"} {
		if _, err := s.InsertTask(ctx, id, "work "+id, ""); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}

	w.drain(ctx)

	counts, err := s.CountTasksByStatus(ctx)
	if err != nil {
		t.Fatalf("CountTasksByStatus: %v", err)
	}
	if counts[store.TaskDone] != 3 || counts[store.TaskQueued] != 0 || counts[store.TaskRunning] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestCancelBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWorker(t, &taskProvider{chunks: []string{"never"}})

	task, err := s.InsertTask(ctx, "", "doomed", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	w.Cancels().Cancel(task.ID)

	w.drain(ctx)

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.TaskFailed || got.Error != "cancelled" {
		t.Errorf("task = %+v", got)
	}
	if w.Cancels().Cancelled(task.ID) {
		t.Error("cancellation mark not cleared")
	}
}

func TestCancelMidStream(t *testing.T) {
	ctx := context.Background()
	prov := &taskProvider{chunks: []string{"first", "second", "third"}, gate: make(chan struct{}, 3)}
	w, s := newTestWorker(t, prov)

	task, err := s.InsertTask(ctx, "", "long task", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	// Release one chunk, then cancel before the next.
	prov.gate <- struct{}{}
	go func() {
		time.Sleep(20 * time.Millisecond)
		w.Cancels().Cancel(task.ID)
		prov.gate <- struct{}{}
		prov.gate <- struct{}{}
	}()

	w.drain(ctx)

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.TaskFailed || got.Error != "cancelled" {
		t.Errorf("task = %+v", got)
	}
}

func TestOrchestratorFailureMarksTaskFailed(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "hive.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	w := NewWorker(s, func(_ context.Context) (*agent.Orchestrator, error) {
		return nil, errors.New("agent not initialized")
	}, nil, nil)

	task, err := s.InsertTask(ctx, "", "no agent", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	w.drain(ctx)

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != store.TaskFailed || got.Error != "agent not initialized" {
		t.Errorf("task = %+v", got)
	}
}

func TestNudgeWakesWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, s := newTestWorker(t, &taskProvider{chunks: []string{"done"}})
	w.interval = time.Hour

	go w.Run(ctx)

	task, err := s.InsertTask(ctx, "", "nudged", "")
	if err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	w.Nudge()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetTask(ctx, task.ID)
		if err == nil && got.Status == store.TaskDone {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never completed after nudge")
}
