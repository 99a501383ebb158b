package store

import (
	"context"
	"fmt"

	"github.com/nidhogg/overseer/internal/task"
)

// AppendDelegation writes one delegation audit row. Rows are never
// updated afterwards.
func (s *Store) AppendDelegation(ctx context.Context, d *task.DelegationRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO delegation_records (id, task_id, from_role, to_role, message, success, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.TaskID, string(d.FromRole), string(d.ToRole), d.Message, d.Success, d.Reason, d.Timestamp,
	)
	if err != nil {
		return wrapErr("append delegation", err)
	}
	return nil
}

// ListDelegations returns a task's delegation history, oldest first.
func (s *Store) ListDelegations(ctx context.Context, taskID string) ([]*task.DelegationRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, from_role, to_role, COALESCE(message,''), success, COALESCE(reason,''), created_at
		FROM delegation_records WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, wrapErr("list delegations", err)
	}
	defer rows.Close()

	var out []*task.DelegationRecord
	for rows.Next() {
		var d task.DelegationRecord
		if err := rows.Scan(&d.ID, &d.TaskID, &d.FromRole, &d.ToRole, &d.Message, &d.Success, &d.Reason, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan delegation: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// AppendTransition writes one transition audit row.
func (s *Store) AppendTransition(ctx context.Context, tr *task.Transition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transitions (id, task_id, from_role, to_role, from_status, to_status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tr.ID, tr.TaskID, string(tr.FromRole), string(tr.ToRole),
		string(tr.FromStatus), string(tr.ToStatus), tr.Reason, tr.Timestamp,
	)
	if err != nil {
		return wrapErr("append transition", err)
	}
	return nil
}

// ListTransitions returns a task's transition history, oldest first.
func (s *Store) ListTransitions(ctx context.Context, taskID string) ([]*task.Transition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, from_role, to_role, from_status, to_status, COALESCE(reason,''), created_at
		FROM transitions WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, wrapErr("list transitions", err)
	}
	defer rows.Close()

	var out []*task.Transition
	for rows.Next() {
		var tr task.Transition
		if err := rows.Scan(&tr.ID, &tr.TaskID, &tr.FromRole, &tr.ToRole, &tr.FromStatus, &tr.ToStatus, &tr.Reason, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, &tr)
	}
	return out, rows.Err()
}
