package workflow

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// CompletionPolicy decides what happens when a non-coordinator role
// asks for final completion.
type CompletionPolicy string

const (
	// PolicyCoordinatorReset routes completion requests from other
	// roles back to the coordinator as needs-review. Only the
	// coordinator finalizes a task.
	PolicyCoordinatorReset CompletionPolicy = "coordinator-reset"
	// PolicyHonorRequest applies the requested status as-is.
	PolicyHonorRequest CompletionPolicy = "honor-request"
)

// EventSink receives workflow events. The Redis stream bus implements
// it; a nil sink disables publishing.
type EventSink interface {
	Publish(ctx context.Context, ev *task.Event) error
}

// FlowRecorder mirrors role handoffs into the flow graph. Failures are
// logged, never propagated: the graph is an analytics view, not a
// source of truth.
type FlowRecorder interface {
	RecordHandoff(ctx context.Context, taskID string, from, to task.Role, reason string) error
}

// Engine owns the workflow semantics: role transitions, guidance
// assembly and the service operation surface.
type Engine struct {
	store  task.Store
	events EventSink
	flow   FlowRecorder
	policy CompletionPolicy
	logger *zap.Logger
}

// New creates the engine. events and flow may be nil when the backing
// services are not configured.
func New(store task.Store, events EventSink, flow FlowRecorder, policy CompletionPolicy, logger *zap.Logger) *Engine {
	if policy == "" {
		policy = PolicyCoordinatorReset
	}
	return &Engine{store: store, events: events, flow: flow, policy: policy, logger: logger}
}

// emit publishes an event and records the handoff when roles changed.
// Both targets are best-effort.
func (e *Engine) emit(ctx context.Context, ev *task.Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()

	if e.events != nil {
		if err := e.events.Publish(ctx, ev); err != nil {
			e.logger.Warn("event publish failed", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
	if e.flow != nil && ev.FromRole != "" && ev.ToRole != "" && ev.FromRole != ev.ToRole {
		if err := e.flow.RecordHandoff(ctx, ev.TaskID, ev.FromRole, ev.ToRole, ev.Message); err != nil {
			e.logger.Warn("flow graph record failed", zap.String("task", ev.TaskID), zap.Error(err))
		}
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a task name into a URL-safe slug.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		s = "task"
	}
	return s
}

// uniqueSlug appends a short suffix until the slug is free.
func (e *Engine) uniqueSlug(ctx context.Context, base string) string {
	slug := base
	for i := 0; i < 5; i++ {
		if _, err := e.store.GetTaskBySlug(ctx, slug); CodeOf(err) == CodeNotFound {
			return slug
		}
		slug = base + "-" + uuid.NewString()[:8]
	}
	return slug
}

// firstStep returns the lowest-sequence catalog step for a role, or
// nil when the role has no steps.
func (e *Engine) firstStep(ctx context.Context, role task.Role) (*task.WorkflowStep, error) {
	steps, err := e.store.ListSteps(ctx, task.StepFilter{RoleID: role})
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return steps[0], nil
}

// currentStep resolves the execution cursor to a catalog step. An
// unset or stale cursor falls back to the role's first step.
func (e *Engine) currentStep(ctx context.Context, exec *task.Execution, role task.Role) (*task.WorkflowStep, error) {
	if exec != nil && exec.CurrentStep != "" {
		steps, err := e.store.ListSteps(ctx, task.StepFilter{StepID: exec.CurrentStep})
		if err != nil {
			return nil, err
		}
		if len(steps) == 1 && steps[0].RoleID == role {
			return steps[0], nil
		}
	}
	return e.firstStep(ctx, role)
}
