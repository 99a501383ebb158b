package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/overseer/internal/task"
)

// CreatePlan inserts an implementation plan.
func (s *Store) CreatePlan(ctx context.Context, p *task.Plan) error {
	approach, err := marshalMap(p.Approach)
	if err != nil {
		return fmt.Errorf("marshal plan approach: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO plans (id, task_id, title, overview, approach, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.TaskID, p.Title, p.Overview, approach, string(p.CreatedBy),
	)
	if err != nil {
		return wrapErr("create plan", err)
	}
	return nil
}

// GetPlan returns the newest plan for a task.
func (s *Store) GetPlan(ctx context.Context, taskID string) (*task.Plan, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, task_id, title, COALESCE(overview,''), approach, created_by, created_at, updated_at
		FROM plans WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)

	var p task.Plan
	var approach []byte
	err := row.Scan(&p.ID, &p.TaskID, &p.Title, &p.Overview, &approach, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get plan for "+taskID, err)
	}
	p.Approach = unmarshalMap(approach)
	return &p, nil
}

const subtaskColumns = `s.id, s.task_id, COALESCE(s.plan_id,''), s.name, COALESCE(s.description,''),
       s.sequence, s.status, COALESCE(s.batch_id,''), COALESCE(s.batch_title,''),
       COALESCE(s.estimated_duration,''), s.strategic_guidance, s.completion_evidence,
       s.started_at, s.completed_at, s.created_at, s.updated_at`

// CreateSubtask inserts a subtask and its dependency edges. Edges are
// fixed here and never mutated afterwards.
func (s *Store) CreateSubtask(ctx context.Context, st *task.Subtask) error {
	guidance, err := marshalMap(st.StrategicGuidance)
	if err != nil {
		return fmt.Errorf("marshal strategic guidance: %w", err)
	}
	evidence, err := marshalMap(st.CompletionEvidence)
	if err != nil {
		return fmt.Errorf("marshal completion evidence: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO subtasks (id, task_id, plan_id, name, description, sequence, status,
			batch_id, batch_title, estimated_duration, strategic_guidance, completion_evidence)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''), NULLIF($10,''), $11, $12)`,
		st.ID, st.TaskID, st.PlanID, st.Name, st.Description, st.Sequence, string(st.Status),
		st.BatchID, st.BatchTitle, st.EstimatedDuration, guidance, evidence,
	)
	if err != nil {
		return wrapErr("create subtask "+st.ID, err)
	}

	for _, dep := range st.DependsOn {
		_, err := s.db.Exec(ctx, `
			INSERT INTO subtask_dependencies (subtask_id, depends_on_id) VALUES ($1, $2)`,
			st.ID, dep,
		)
		if err != nil {
			return wrapErr("create subtask dependency", err)
		}
	}
	return nil
}

// GetSubtask retrieves one subtask with its dependency IDs.
func (s *Store) GetSubtask(ctx context.Context, id string) (*task.Subtask, error) {
	row := s.db.QueryRow(ctx, `SELECT `+subtaskColumns+` FROM subtasks s WHERE s.id = $1`, id)
	st, err := scanSubtask(row)
	if err != nil {
		return nil, wrapErr("get subtask "+id, err)
	}

	depRows, err := s.db.Query(ctx,
		`SELECT depends_on_id FROM subtask_dependencies WHERE subtask_id = $1`, id)
	if err != nil {
		return nil, wrapErr("get subtask dependencies", err)
	}
	defer depRows.Close()
	for depRows.Next() {
		var dep string
		if err := depRows.Scan(&dep); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		st.DependsOn = append(st.DependsOn, dep)
	}
	return st, depRows.Err()
}

// UpdateSubtask writes mutable subtask fields back. Dependency edges
// are deliberately not touched.
func (s *Store) UpdateSubtask(ctx context.Context, st *task.Subtask) error {
	guidance, err := marshalMap(st.StrategicGuidance)
	if err != nil {
		return fmt.Errorf("marshal strategic guidance: %w", err)
	}
	evidence, err := marshalMap(st.CompletionEvidence)
	if err != nil {
		return fmt.Errorf("marshal completion evidence: %w", err)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE subtasks SET
			name = $2, description = $3, status = $4, strategic_guidance = $5,
			completion_evidence = $6, started_at = $7, completed_at = $8, updated_at = NOW()
		WHERE id = $1`,
		st.ID, st.Name, st.Description, string(st.Status), guidance, evidence,
		st.StartedAt, st.CompletedAt,
	)
	if err != nil {
		return wrapErr("update subtask "+st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update subtask %s: %w", st.ID, task.ErrNotFound)
	}
	return nil
}

// ListSubtasks returns subtasks matching the filter in sequence order.
func (s *Store) ListSubtasks(ctx context.Context, f task.SubtaskFilter) ([]*task.Subtask, error) {
	query := `SELECT ` + subtaskColumns + ` FROM subtasks s WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		args = append(args, f.TaskID)
		query += ` AND s.task_id = $` + strconv.Itoa(len(args))
	}
	if f.PlanID != "" {
		args = append(args, f.PlanID)
		query += ` AND s.plan_id = $` + strconv.Itoa(len(args))
	}
	if f.BatchID != "" {
		args = append(args, f.BatchID)
		query += ` AND s.batch_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND s.status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY s.sequence`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list subtasks", err)
	}
	defer rows.Close()

	var out []*task.Subtask
	var ids []string
	byID := map[string]*task.Subtask{}
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		out = append(out, st)
		ids = append(ids, st.ID)
		byID[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	depRows, err := s.db.Query(ctx, `
		SELECT subtask_id, depends_on_id FROM subtask_dependencies WHERE subtask_id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapErr("list subtask dependencies", err)
	}
	defer depRows.Close()
	for depRows.Next() {
		var sub, dep string
		if err := depRows.Scan(&sub, &dep); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		if st, ok := byID[sub]; ok {
			st.DependsOn = append(st.DependsOn, dep)
		}
	}
	return out, depRows.Err()
}

// ListDependencies returns the subtasks a subtask depends on.
func (s *Store) ListDependencies(ctx context.Context, subtaskID string) ([]*task.Subtask, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+subtaskColumns+`
		FROM subtasks s
		JOIN subtask_dependencies d ON d.depends_on_id = s.id
		WHERE d.subtask_id = $1 ORDER BY s.sequence`, subtaskID)
	if err != nil {
		return nil, wrapErr("list dependencies", err)
	}
	defer rows.Close()

	var out []*task.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency subtask: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanSubtask(row pgx.Row) (*task.Subtask, error) {
	var st task.Subtask
	var guidance, evidence []byte
	err := row.Scan(
		&st.ID, &st.TaskID, &st.PlanID, &st.Name, &st.Description,
		&st.Sequence, &st.Status, &st.BatchID, &st.BatchTitle,
		&st.EstimatedDuration, &guidance, &evidence,
		&st.StartedAt, &st.CompletedAt, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.StrategicGuidance = unmarshalMap(guidance)
	st.CompletionEvidence = unmarshalMap(evidence)
	return &st, nil
}
