// Package tasks runs queued background tasks one at a time.
package tasks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/resilience"
	"github.com/haasonsaas/hive/internal/store"
)

// PollInterval is how often the worker looks for queued tasks.
const PollInterval = 10 * time.Second

// CancelSet tracks task ids that must stop executing. Checked between
// streaming iterations, so cancellation lands within one token.
type CancelSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewCancelSet returns an empty CancelSet.
func NewCancelSet() *CancelSet {
	return &CancelSet{ids: map[string]struct{}{}}
}

// Cancel marks a task for cancellation.
func (c *CancelSet) Cancel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[id] = struct{}{}
}

// Cancelled reports whether the task was marked.
func (c *CancelSet) Cancelled(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

// Clear removes the mark once the task has settled.
func (c *CancelSet) Clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, id)
}

// OrchestratorFunc supplies the orchestrator on demand, so a provider that
// failed to construct at boot can be retried when a task actually needs it.
type OrchestratorFunc func(ctx context.Context) (*agent.Orchestrator, error)

// Worker claims and executes queued tasks, one active task at a time.
type Worker struct {
	store        *store.Store
	orchestrator OrchestratorFunc
	cancels      *CancelSet
	logger       *observability.Logger
	interval     time.Duration
	nudge        chan struct{}

	mu       sync.Mutex
	activeID string
}

// NewWorker wires a Worker. cancels may be shared with the IPC layer.
func NewWorker(s *store.Store, orch OrchestratorFunc, cancels *CancelSet, logger *observability.Logger) *Worker {
	if cancels == nil {
		cancels = NewCancelSet()
	}
	return &Worker{
		store:        s,
		orchestrator: orch,
		cancels:      cancels,
		logger:       logger,
		interval:     PollInterval,
		nudge:        make(chan struct{}, 1),
	}
}

// Cancels returns the shared cancellation set.
func (w *Worker) Cancels() *CancelSet { return w.cancels }

// ActiveTaskID returns the id of the task currently executing, or "".
func (w *Worker) ActiveTaskID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID
}

func (w *Worker) setActive(id string) {
	w.mu.Lock()
	w.activeID = id
	w.mu.Unlock()
}

// Nudge wakes the worker ahead of the next poll tick. Never blocks.
func (w *Worker) Nudge() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

// Run drains the queue on every tick and nudge until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-w.nudge:
			w.drain(ctx)
		}
	}
}

// drain claims and executes queued tasks until the queue is empty. Tasks run
// serially, so at most one is ever in status running.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		task, err := w.store.ClaimNextQueuedTask(ctx)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				w.warn(ctx, "task claim failed", "error", err)
			}
			return
		}
		w.execute(ctx, task)
	}
}

func (w *Worker) execute(ctx context.Context, task store.Task) {
	w.setActive(task.ID)
	defer w.setActive("")
	defer w.cancels.Clear(task.ID)

	if w.cancels.Cancelled(task.ID) {
		w.settleFailed(ctx, task.ID, resilience.ErrCancelled)
		return
	}

	orch, err := w.orchestrator(ctx)
	if err != nil {
		w.settleFailed(ctx, task.ID, err)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := orch.Chat(runCtx, task.Title, agent.ChatOptions{DisableEpisodeStore: true})
	if err != nil {
		w.settleFailed(ctx, task.ID, err)
		return
	}

	var text strings.Builder
	var failure error
	for ev := range events {
		if w.cancels.Cancelled(task.ID) {
			cancel()
			for range events {
			}
			failure = resilience.ErrCancelled
			break
		}
		switch ev.Type {
		case agent.EventToken:
			text.WriteString(ev.Token)
		case agent.EventError:
			failure = ev.Err
		}
	}

	if failure != nil {
		w.settleFailed(ctx, task.ID, failure)
		return
	}
	if err := w.store.MarkTaskDone(ctx, task.ID, text.String()); err != nil {
		w.warn(ctx, "task done mark failed", "task", task.ID, "error", err)
	}
}

// settleFailed records the failure with a short error message.
func (w *Worker) settleFailed(ctx context.Context, id string, cause error) {
	msg := cause.Error()
	if errors.Is(cause, resilience.ErrCancelled) {
		msg = "cancelled"
	} else if idx := strings.IndexByte(msg, '\n'); idx > 0 {
		msg = msg[:idx]
	}
	if err := w.store.MarkTaskFailed(ctx, id, msg); err != nil {
		w.warn(ctx, "task failure mark failed", "task", id, "error", err)
	}
}

func (w *Worker) warn(ctx context.Context, msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(ctx, msg, args...)
	}
}
