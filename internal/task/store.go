package task

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Callers match
// with errors.Is regardless of backend.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Status Status
	Owner  Role
	Slug   string
	Limit  int
}

// StepFilter narrows ListSteps. Zero values mean "any".
type StepFilter struct {
	RoleID Role
	StepID string
}

// SubtaskFilter narrows ListSubtasks. Zero values mean "any".
type SubtaskFilter struct {
	TaskID  string
	PlanID  string
	BatchID string
	Status  SubtaskStatus
}

// Store is the persistence boundary for the workflow engine. The
// Postgres implementation is authoritative; an in-memory one backs
// tests and the demo mode. Atomic runs fn against a store view whose
// writes commit or roll back together.
type Store interface {
	Tasks
	Audit
	Steps
	Subtasks
	Executions
	Reports

	Atomic(ctx context.Context, fn func(Store) error) error
}

// Tasks covers task rows including their description and analysis
// payloads.
type Tasks interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	GetTaskBySlug(ctx context.Context, slug string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	ListTasks(ctx context.Context, f TaskFilter) ([]*Task, error)
}

// Audit is append-only: delegation and transition rows are never
// updated or deleted.
type Audit interface {
	AppendDelegation(ctx context.Context, d *DelegationRecord) error
	ListDelegations(ctx context.Context, taskID string) ([]*DelegationRecord, error)
	AppendTransition(ctx context.Context, tr *Transition) error
	ListTransitions(ctx context.Context, taskID string) ([]*Transition, error)
}

// Steps covers the step catalog and per-task step progress.
type Steps interface {
	SaveStep(ctx context.Context, s *WorkflowStep) error
	ListSteps(ctx context.Context, f StepFilter) ([]*WorkflowStep, error)
	UpsertStepProgress(ctx context.Context, p *StepProgress) error
	ListStepProgress(ctx context.Context, taskID string) ([]*StepProgress, error)
}

// Subtasks covers plans, subtask rows and their fixed dependency edges.
type Subtasks interface {
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, taskID string) (*Plan, error)
	CreateSubtask(ctx context.Context, s *Subtask) error
	GetSubtask(ctx context.Context, id string) (*Subtask, error)
	UpdateSubtask(ctx context.Context, s *Subtask) error
	ListSubtasks(ctx context.Context, f SubtaskFilter) ([]*Subtask, error)
	ListDependencies(ctx context.Context, subtaskID string) ([]*Subtask, error)
}

// Executions covers the per-task workflow cursor.
type Executions interface {
	CreateExecution(ctx context.Context, e *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	GetExecutionByTask(ctx context.Context, taskID string) (*Execution, error)
	UpdateExecution(ctx context.Context, e *Execution) error
	ListExecutions(ctx context.Context, status ExecutionStatus) ([]*Execution, error)
}

// Reports covers role deliverables and comments.
type Reports interface {
	CreateResearchReport(ctx context.Context, r *ResearchReport) error
	GetResearchReport(ctx context.Context, taskID string) (*ResearchReport, error)
	CreateCodeReview(ctx context.Context, r *CodeReview) error
	GetCodeReview(ctx context.Context, taskID string) (*CodeReview, error)
	CreateCompletionReport(ctx context.Context, r *CompletionReport) error
	GetCompletionReport(ctx context.Context, taskID string) (*CompletionReport, error)
	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, taskID string) ([]*Comment, error)
}
