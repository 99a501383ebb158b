package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nidhogg/overseer/internal/task"
)

// SaveStep upserts a catalog step and replaces its action list. Used
// by catalog seeding at startup.
func (s *Store) SaveStep(ctx context.Context, step *task.WorkflowStep) error {
	var behavioral, approach, patterns []byte
	var err error
	if step.Behavioral != nil {
		if behavioral, err = json.Marshal(step.Behavioral); err != nil {
			return fmt.Errorf("marshal behavioral context: %w", err)
		}
	}
	if step.Approach != nil {
		if approach, err = json.Marshal(step.Approach); err != nil {
			return fmt.Errorf("marshal approach guidance: %w", err)
		}
	}
	if step.Patterns != nil {
		if patterns, err = json.Marshal(step.Patterns); err != nil {
			return fmt.Errorf("marshal pattern enforcement: %w", err)
		}
	}
	checklist, err := marshalSlice(step.Checklist)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_steps (id, role_id, name, display_name, sequence, description, behavioral, approach, patterns, checklist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			role_id = EXCLUDED.role_id,
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			sequence = EXCLUDED.sequence,
			description = EXCLUDED.description,
			behavioral = EXCLUDED.behavioral,
			approach = EXCLUDED.approach,
			patterns = EXCLUDED.patterns,
			checklist = EXCLUDED.checklist`,
		step.ID, string(step.RoleID), step.Name, step.DisplayName, step.Sequence,
		step.Description, behavioral, approach, patterns, checklist,
	)
	if err != nil {
		return wrapErr("save step "+step.ID, err)
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM step_actions WHERE step_id = $1`, step.ID); err != nil {
		return wrapErr("clear step actions", err)
	}
	for _, a := range step.Actions {
		data, err := marshalMap(a.ActionData)
		if err != nil {
			return fmt.Errorf("marshal action data: %w", err)
		}
		_, err = s.db.Exec(ctx, `
			INSERT INTO step_actions (id, step_id, name, action_type, sequence, description, service_name, operation, action_data, required)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			a.ID, step.ID, a.Name, string(a.Type), a.Sequence, a.Description,
			a.ServiceName, a.Operation, data, a.Required,
		)
		if err != nil {
			return wrapErr("save step action "+a.ID, err)
		}
	}
	return nil
}

// ListSteps returns catalog steps with their actions populated, ordered
// by role then sequence.
func (s *Store) ListSteps(ctx context.Context, f task.StepFilter) ([]*task.WorkflowStep, error) {
	query := `
		SELECT id, role_id, name, display_name, sequence, COALESCE(description,''), behavioral, approach, patterns, checklist
		FROM workflow_steps WHERE 1=1`
	var args []any
	if f.RoleID != "" {
		args = append(args, string(f.RoleID))
		query += ` AND role_id = $` + strconv.Itoa(len(args))
	}
	if f.StepID != "" {
		args = append(args, f.StepID)
		query += ` AND id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY role_id, sequence`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list steps", err)
	}
	defer rows.Close()

	var steps []*task.WorkflowStep
	var ids []string
	byID := map[string]*task.WorkflowStep{}
	for rows.Next() {
		var st task.WorkflowStep
		var behavioral, approach, patterns, checklist []byte
		if err := rows.Scan(&st.ID, &st.RoleID, &st.Name, &st.DisplayName, &st.Sequence,
			&st.Description, &behavioral, &approach, &patterns, &checklist); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if len(behavioral) > 0 {
			st.Behavioral = &task.BehavioralContext{}
			if err := json.Unmarshal(behavioral, st.Behavioral); err != nil {
				return nil, fmt.Errorf("unmarshal behavioral: %w", err)
			}
		}
		if len(approach) > 0 {
			st.Approach = &task.ApproachGuidance{}
			if err := json.Unmarshal(approach, st.Approach); err != nil {
				return nil, fmt.Errorf("unmarshal approach: %w", err)
			}
		}
		if len(patterns) > 0 {
			st.Patterns = &task.PatternEnforcement{}
			if err := json.Unmarshal(patterns, st.Patterns); err != nil {
				return nil, fmt.Errorf("unmarshal patterns: %w", err)
			}
		}
		st.Checklist = unmarshalSlice(checklist)
		steps = append(steps, &st)
		ids = append(ids, st.ID)
		byID[st.ID] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return steps, nil
	}

	actionRows, err := s.db.Query(ctx, `
		SELECT id, step_id, name, action_type, sequence, COALESCE(description,''),
		       COALESCE(service_name,''), COALESCE(operation,''), action_data, required
		FROM step_actions WHERE step_id = ANY($1) ORDER BY step_id, sequence`, ids)
	if err != nil {
		return nil, wrapErr("list step actions", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var a task.StepAction
		var data []byte
		if err := actionRows.Scan(&a.ID, &a.StepID, &a.Name, &a.Type, &a.Sequence,
			&a.Description, &a.ServiceName, &a.Operation, &data, &a.Required); err != nil {
			return nil, fmt.Errorf("scan step action: %w", err)
		}
		a.ActionData = unmarshalMap(data)
		if st, ok := byID[a.StepID]; ok {
			st.Actions = append(st.Actions, a)
		}
	}
	return steps, actionRows.Err()
}

// UpsertStepProgress records step execution state for a task. One row
// per (task, step).
func (s *Store) UpsertStepProgress(ctx context.Context, p *task.StepProgress) error {
	data, err := marshalMap(p.ExecutionData)
	if err != nil {
		return fmt.Errorf("marshal execution data: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO step_progress (id, task_id, step_id, role_id, status, started_at, completed_at, execution_data, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id, step_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = COALESCE(step_progress.started_at, EXCLUDED.started_at),
			completed_at = EXCLUDED.completed_at,
			execution_data = EXCLUDED.execution_data,
			failure_reason = EXCLUDED.failure_reason`,
		p.ID, p.TaskID, p.StepID, string(p.RoleID), string(p.Status),
		p.StartedAt, p.CompletedAt, data, p.FailureReason,
	)
	if err != nil {
		return wrapErr("upsert step progress", err)
	}
	return nil
}

// ListStepProgress returns all step progress rows for a task.
func (s *Store) ListStepProgress(ctx context.Context, taskID string) ([]*task.StepProgress, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, step_id, role_id, status, started_at, completed_at, execution_data, COALESCE(failure_reason,'')
		FROM step_progress WHERE task_id = $1 ORDER BY started_at NULLS LAST`, taskID)
	if err != nil {
		return nil, wrapErr("list step progress", err)
	}
	defer rows.Close()

	var out []*task.StepProgress
	for rows.Next() {
		var p task.StepProgress
		var data []byte
		if err := rows.Scan(&p.ID, &p.TaskID, &p.StepID, &p.RoleID, &p.Status,
			&p.StartedAt, &p.CompletedAt, &data, &p.FailureReason); err != nil {
			return nil, fmt.Errorf("scan step progress: %w", err)
		}
		p.ExecutionData = unmarshalMap(data)
		out = append(out, &p)
	}
	return out, rows.Err()
}
