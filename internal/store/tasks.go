package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Task statuses. Legal transitions: queued -> running -> {done, failed} and
// queued -> failed (cancellation before dispatch). A running task may revert
// to queued only on clean daemon restart.
const (
	TaskQueued  = "queued"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// Task is one unit of background work dispatched to the agent.
type Task struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Status      string         `db:"status"`
	Result      string         `db:"result"`
	Error       string         `db:"error"`
	CreatedAt   string         `db:"created_at"`
	StartedAt   string         `db:"started_at"`
	CompletedAt string         `db:"completed_at"`
	AgentID     sql.NullString `db:"agent_id"`
}

// InsertTask enqueues a task. The caller may supply an id; one is minted
// when absent.
func (s *Store) InsertTask(ctx context.Context, id, title, agentID string) (Task, error) {
	if id == "" {
		id = newID()
	}
	task := Task{
		ID:        id,
		Title:     title,
		Status:    TaskQueued,
		CreatedAt: nowStamp(),
	}
	if agentID != "" {
		task.AgentID = sql.NullString{String: agentID, Valid: true}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (id, title, status, result, error, created_at, started_at, completed_at, agent_id)
		VALUES (:id, :title, :status, '', '', :created_at, '', '', :agent_id)`, task)
	if err != nil {
		return Task{}, classify(err)
	}
	return task, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, "SELECT * FROM tasks WHERE id = ?", id)
	if err != nil {
		if errNoRows(err) {
			return Task{}, ErrNotFound
		}
		return Task{}, classify(err)
	}
	return task, nil
}

// ClaimNextQueuedTask atomically transitions the oldest queued task to
// running and returns it. Returns ErrNotFound when the queue is empty. The
// single-transaction claim means concurrent workers cannot double-dispatch.
func (s *Store) ClaimNextQueuedTask(ctx context.Context) (Task, error) {
	var task Task
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.Get(&task,
			"SELECT * FROM tasks WHERE status = ? ORDER BY created_at ASC LIMIT 1", TaskQueued)
		if err != nil {
			if errNoRows(err) {
				return ErrNotFound
			}
			return classify(err)
		}
		task.Status = TaskRunning
		task.StartedAt = nowStamp()
		res, err := tx.Exec(
			"UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?",
			TaskRunning, task.StartedAt, task.ID, TaskQueued)
		if err != nil {
			return classify(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// MarkTaskDone records a successful run.
func (s *Store) MarkTaskDone(ctx context.Context, id, result string) error {
	return s.finishTask(ctx, id, TaskDone, result, "")
}

// MarkTaskFailed records a failed run.
func (s *Store) MarkTaskFailed(ctx context.Context, id, errMsg string) error {
	return s.finishTask(ctx, id, TaskFailed, "", errMsg)
}

func (s *Store) finishTask(ctx context.Context, id, status, result, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, result = ?, error = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		status, result, errMsg, nowStamp(), id, TaskQueued, TaskRunning)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelTask marks a queued or running task failed with error "cancelled".
func (s *Store) CancelTask(ctx context.Context, id string) error {
	return s.MarkTaskFailed(ctx, id, "cancelled")
}

// ResetRunningTasksToQueued re-queues tasks abandoned mid-run by a previous
// daemon process. Called exactly once during boot.
func (s *Store) ResetRunningTasksToQueued(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, started_at = '' WHERE status = ?",
		TaskQueued, TaskRunning)
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClearCompletedTasks removes done and failed tasks.
func (s *Store) ClearCompletedTasks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE status IN (?, ?)", TaskDone, TaskFailed)
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountTasksByStatus returns a status -> count map.
func (s *Store) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT status, COUNT(*) AS n FROM tasks GROUP BY status")
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classify(err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return counts, nil
}
