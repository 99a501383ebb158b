package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/overseer/internal/task"
)

const executionColumns = `id, task_id, role_id, COALESCE(step_id,''), status,
       auto_created, started_at, updated_at, completed_at`

// CreateExecution inserts a workflow execution. A partial unique index
// guarantees at most one active execution per task.
func (s *Store) CreateExecution(ctx context.Context, e *task.Execution) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO executions (id, task_id, role_id, step_id, status, auto_created)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, $6)`,
		e.ID, e.TaskID, string(e.CurrentRole), e.CurrentStep, string(e.Status), e.AutoCreated,
	)
	if err != nil {
		return wrapErr("create execution", err)
	}
	return nil
}

// GetExecution retrieves one execution by ID.
func (s *Store) GetExecution(ctx context.Context, id string) (*task.Execution, error) {
	row := s.db.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err != nil {
		return nil, wrapErr("get execution "+id, err)
	}
	return e, nil
}

// GetExecutionByTask returns the task's current execution, preferring
// the active one, else the most recent.
func (s *Store) GetExecutionByTask(ctx context.Context, taskID string) (*task.Execution, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+executionColumns+` FROM executions WHERE task_id = $1
		ORDER BY (status = 'active') DESC, started_at DESC LIMIT 1`, taskID)
	e, err := scanExecution(row)
	if err != nil {
		return nil, wrapErr("get execution for task "+taskID, err)
	}
	return e, nil
}

// UpdateExecution writes the cursor fields back. updated_at is set
// server-side.
func (s *Store) UpdateExecution(ctx context.Context, e *task.Execution) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE executions SET
			role_id = $2, step_id = NULLIF($3,''), status = $4,
			completed_at = $5, updated_at = NOW()
		WHERE id = $1`,
		e.ID, string(e.CurrentRole), e.CurrentStep, string(e.Status), e.CompletedAt,
	)
	if err != nil {
		return wrapErr("update execution "+e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update execution %s: %w", e.ID, task.ErrNotFound)
	}
	return nil
}

// ListExecutions returns executions, optionally filtered by status,
// newest first.
func (s *Store) ListExecutions(ctx context.Context, status task.ExecutionStatus) ([]*task.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list executions", err)
	}
	defer rows.Close()

	var out []*task.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row pgx.Row) (*task.Execution, error) {
	var e task.Execution
	err := row.Scan(&e.ID, &e.TaskID, &e.CurrentRole, &e.CurrentStep, &e.Status,
		&e.AutoCreated, &e.StartedAt, &e.UpdatedAt, &e.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
