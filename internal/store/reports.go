package store

import (
	"context"
	"fmt"

	"github.com/nidhogg/overseer/internal/task"
)

// CreateResearchReport inserts the researcher's deliverable.
func (s *Store) CreateResearchReport(ctx context.Context, r *task.ResearchReport) error {
	refs, err := marshalSlice(r.References)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO research_reports (id, task_id, title, summary, findings, recommendations, references_json, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.TaskID, r.Title, r.Summary, r.Findings, r.Recommendations, refs, string(r.CreatedBy),
	)
	if err != nil {
		return wrapErr("create research report", err)
	}
	return nil
}

// GetResearchReport returns the newest research report for a task.
func (s *Store) GetResearchReport(ctx context.Context, taskID string) (*task.ResearchReport, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, task_id, title, summary, COALESCE(findings,''), COALESCE(recommendations,''), references_json, created_by, created_at
		FROM research_reports WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)

	var r task.ResearchReport
	var refs []byte
	err := row.Scan(&r.ID, &r.TaskID, &r.Title, &r.Summary, &r.Findings, &r.Recommendations, &refs, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr("get research report for "+taskID, err)
	}
	r.References = unmarshalSlice(refs)
	return &r, nil
}

// CreateCodeReview inserts a review verdict row.
func (s *Store) CreateCodeReview(ctx context.Context, r *task.CodeReview) error {
	criteria, err := marshalMap(r.CriteriaResults)
	if err != nil {
		return fmt.Errorf("marshal criteria results: %w", err)
	}
	changes, err := marshalSlice(r.RequiredChanges)
	if err != nil {
		return fmt.Errorf("marshal required changes: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO code_reviews (id, task_id, verdict, summary, strengths, issues, criteria_results, testing_notes, required_changes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.TaskID, string(r.Verdict), r.Summary, r.Strengths, r.Issues,
		criteria, r.TestingNotes, changes, string(r.CreatedBy),
	)
	if err != nil {
		return wrapErr("create code review", err)
	}
	return nil
}

// GetCodeReview returns the newest review for a task.
func (s *Store) GetCodeReview(ctx context.Context, taskID string) (*task.CodeReview, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, task_id, verdict, summary, COALESCE(strengths,''), COALESCE(issues,''),
		       criteria_results, COALESCE(testing_notes,''), required_changes, created_by, created_at
		FROM code_reviews WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)

	var r task.CodeReview
	var criteria, changes []byte
	err := row.Scan(&r.ID, &r.TaskID, &r.Verdict, &r.Summary, &r.Strengths, &r.Issues,
		&criteria, &r.TestingNotes, &changes, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr("get code review for "+taskID, err)
	}
	r.CriteriaResults = unmarshalMap(criteria)
	r.RequiredChanges = unmarshalSlice(changes)
	return &r, nil
}

// CreateCompletionReport inserts the final task summary.
func (s *Store) CreateCompletionReport(ctx context.Context, r *task.CompletionReport) error {
	files, err := marshalSlice(r.FilesModified)
	if err != nil {
		return fmt.Errorf("marshal files modified: %w", err)
	}
	criteria, err := marshalMap(r.CriteriaResults)
	if err != nil {
		return fmt.Errorf("marshal criteria results: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO completion_reports (id, task_id, summary, files_modified, criteria_results, delegation_notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TaskID, r.Summary, files, criteria, r.DelegationNotes, string(r.CreatedBy),
	)
	if err != nil {
		return wrapErr("create completion report", err)
	}
	return nil
}

// GetCompletionReport returns the newest completion report for a task.
func (s *Store) GetCompletionReport(ctx context.Context, taskID string) (*task.CompletionReport, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, task_id, summary, files_modified, criteria_results, COALESCE(delegation_notes,''), created_by, created_at
		FROM completion_reports WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1`, taskID)

	var r task.CompletionReport
	var files, criteria []byte
	err := row.Scan(&r.ID, &r.TaskID, &r.Summary, &files, &criteria, &r.DelegationNotes, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr("get completion report for "+taskID, err)
	}
	r.FilesModified = unmarshalSlice(files)
	r.CriteriaResults = unmarshalMap(criteria)
	return &r, nil
}

// AddComment appends a comment row.
func (s *Store) AddComment(ctx context.Context, c *task.Comment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO comments (id, task_id, subtask_id, author, content)
		VALUES ($1, $2, NULLIF($3,''), $4, $5)`,
		c.ID, c.TaskID, c.SubtaskID, string(c.Author), c.Content,
	)
	if err != nil {
		return wrapErr("add comment", err)
	}
	return nil
}

// ListComments returns a task's comments, oldest first.
func (s *Store) ListComments(ctx context.Context, taskID string) ([]*task.Comment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, COALESCE(subtask_id,''), author, content, created_at
		FROM comments WHERE task_id = $1 ORDER BY created_at`, taskID)
	if err != nil {
		return nil, wrapErr("list comments", err)
	}
	defer rows.Close()

	var out []*task.Comment
	for rows.Next() {
		var c task.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.SubtaskID, &c.Author, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
