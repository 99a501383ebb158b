package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/overseer/internal/task"
)

// reviewOps handles ReviewOperations. Recording a verdict never moves
// the task by itself; the reviewer hands the task back through a
// workflow completion, which picks the verdict up from the store.
func (e *Engine) reviewOps(ctx context.Context, operation string, data map[string]any) (any, string, error) {
	const op = "workflow.review-operations"

	switch operation {
	case "create_review":
		verdict := task.ReviewVerdict(getString(data, "verdict"))
		switch verdict {
		case task.VerdictApproved, task.VerdictApprovedReserved, task.VerdictNeedsChanges:
		default:
			return nil, "", validationErr(op, "unknown verdict "+string(verdict), "verdict")
		}
		cr := &task.CodeReview{
			ID:              uuid.NewString(),
			TaskID:          getString(data, "taskId"),
			Verdict:         verdict,
			Summary:         getString(data, "summary"),
			Strengths:       getString(data, "strengths"),
			Issues:          getString(data, "issues"),
			CriteriaResults: getMap(data, "criteriaResults"),
			TestingNotes:    getString(data, "testingNotes"),
			RequiredChanges: getStringSlice(data, "requiredChanges"),
			CreatedBy:       task.Role(getString(data, "roleId")),
			CreatedAt:       time.Now().UTC(),
		}
		if verdict == task.VerdictNeedsChanges && len(cr.RequiredChanges) == 0 {
			return nil, "", validationErr(op, "a needs-changes verdict must list required changes", "requiredChanges")
		}
		if err := e.store.CreateCodeReview(ctx, cr); err != nil {
			return nil, "", wrap(op, err)
		}
		return cr, fmt.Sprintf("review recorded: %s", verdict), nil

	case "get_review":
		cr, err := e.store.GetCodeReview(ctx, getString(data, "taskId"))
		if err != nil {
			return nil, "", wrap(op, err)
		}
		return cr, "", nil
	}
	return nil, "", errf(CodeNotFound, op, "unknown operation %s", operation)
}

// researchOps handles ResearchOperations.
func (e *Engine) researchOps(ctx context.Context, operation string, data map[string]any) (any, string, error) {
	const op = "workflow.research-operations"

	switch operation {
	case "create_research":
		rr := &task.ResearchReport{
			ID:              uuid.NewString(),
			TaskID:          getString(data, "taskId"),
			Title:           getString(data, "title"),
			Summary:         getString(data, "summary"),
			Findings:        getString(data, "findings"),
			Recommendations: getString(data, "recommendations"),
			References:      getStringSlice(data, "references"),
			CreatedBy:       task.Role(getString(data, "roleId")),
			CreatedAt:       time.Now().UTC(),
		}
		if err := e.store.CreateResearchReport(ctx, rr); err != nil {
			return nil, "", wrap(op, err)
		}
		return rr, "research report recorded", nil

	case "get_research":
		rr, err := e.store.GetResearchReport(ctx, getString(data, "taskId"))
		if err != nil {
			return nil, "", wrap(op, err)
		}
		return rr, "", nil

	case "add_comment":
		author := task.Role(getString(data, "author"))
		if !author.Valid() {
			return nil, "", validationErr(op, "unknown author role "+string(author), "author")
		}
		c := &task.Comment{
			ID:        uuid.NewString(),
			TaskID:    getString(data, "taskId"),
			SubtaskID: getString(data, "subtaskId"),
			Author:    author,
			Content:   getString(data, "content"),
			CreatedAt: time.Now().UTC(),
		}
		if err := e.store.AddComment(ctx, c); err != nil {
			return nil, "", wrap(op, err)
		}
		return c, "comment added", nil
	}
	return nil, "", errf(CodeNotFound, op, "unknown operation %s", operation)
}
