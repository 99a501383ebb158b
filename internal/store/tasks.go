package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/overseer/internal/task"
)

const taskColumns = `id, name, slug, status, priority, owner, redelegation_count,
       description, analysis, created_at, updated_at, completed_at`

// CreateTask inserts a task row. The caller assigns the ID.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	desc, err := marshalDescription(t.Description)
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	analysis, err := marshalAnalysis(t.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO tasks (id, name, slug, status, priority, owner, redelegation_count, description, analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.Slug, string(t.Status), string(t.Priority), string(t.Owner),
		t.RedelegationCount, desc, analysis,
	)
	if err != nil {
		return wrapErr("create task "+t.ID, err)
	}
	return nil
}

// GetTask retrieves a single task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, wrapErr("get task "+id, err)
	}
	return t, nil
}

// GetTaskBySlug retrieves a single task by its slug.
func (s *Store) GetTaskBySlug(ctx context.Context, slug string) (*task.Task, error) {
	row := s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE slug = $1`, slug)
	t, err := scanTask(row)
	if err != nil {
		return nil, wrapErr("get task by slug "+slug, err)
	}
	return t, nil
}

// UpdateTask writes the mutable task fields back. updated_at is set
// server-side.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	desc, err := marshalDescription(t.Description)
	if err != nil {
		return fmt.Errorf("marshal description: %w", err)
	}
	analysis, err := marshalAnalysis(t.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE tasks SET
			name = $2, status = $3, priority = $4, owner = $5,
			redelegation_count = $6, description = $7, analysis = $8,
			completed_at = $9, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Name, string(t.Status), string(t.Priority), string(t.Owner),
		t.RedelegationCount, desc, analysis, t.CompletedAt,
	)
	if err != nil {
		return wrapErr("update task "+t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, task.ErrNotFound)
	}
	return nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f task.TaskFilter) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.Owner != "" {
		args = append(args, string(f.Owner))
		query += ` AND owner = $` + strconv.Itoa(len(args))
	}
	if f.Slug != "" {
		args = append(args, f.Slug)
		query += ` AND slug = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var desc, analysis []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Status, &t.Priority, &t.Owner,
		&t.RedelegationCount, &desc, &analysis,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(desc) > 0 {
		t.Description = &task.Description{}
		if err := json.Unmarshal(desc, t.Description); err != nil {
			return nil, fmt.Errorf("unmarshal description: %w", err)
		}
	}
	if len(analysis) > 0 {
		t.Analysis = &task.CodebaseContext{}
		if err := json.Unmarshal(analysis, t.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	return &t, nil
}

func marshalDescription(d *task.Description) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func marshalAnalysis(a *task.CodebaseContext) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}
