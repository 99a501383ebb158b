package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/overseer/internal/task"
)

// EnvelopeVersion is the wire version of the response envelope.
const EnvelopeVersion = "1.0"

// Envelope type discriminators.
const (
	TypeGuidance          = "guidance"
	TypeExecution         = "execution"
	TypeTransition        = "transition"
	TypeBootstrap         = "bootstrap"
	TypeWorkflowExecution = "workflow-execution"
)

// Envelope is the uniform response wrapper every operation returns.
// The inner body is one of the five typed shapes below.
type Envelope struct {
	Version   string    `json:"version"`
	Envelope  any       `json:"envelope"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta carries identifying references. Bodies that embed the full task
// or execution leave the corresponding fields empty here so the same
// datum never appears twice in one envelope.
type Meta struct {
	TaskID      string    `json:"taskId,omitempty"`
	TaskName    string    `json:"taskName,omitempty"`
	ExecutionID string    `json:"executionId,omitempty"`
	StepID      string    `json:"stepId,omitempty"`
	Role        task.Role `json:"role,omitempty"`
	FromRole    task.Role `json:"fromRole,omitempty"`
	ToRole      task.Role `json:"toRole,omitempty"`
	Service     string    `json:"service,omitempty"`
	Operation   string    `json:"operation,omitempty"`
}

// GuidanceBody tells the owning role what to do next.
type GuidanceBody struct {
	Type           string             `json:"type"`
	Timestamp      time.Time          `json:"timestamp"`
	Guidance       *WorkflowGuidance  `json:"workflowGuidance"`
	RequiredInputs *InputRequirements `json:"requiredInputs"`
	ActionGuidance *ActionGuidance    `json:"actionGuidance,omitempty"`
	Progress       *ProgressMetrics   `json:"progressMetrics"`
	Validation     *ValidationContext `json:"validationContext"`
	Metadata       Meta               `json:"metadata"`
}

// ExecutionBody reports the outcome of one service operation.
type ExecutionBody struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Result    any       `json:"result,omitempty"`
	Message   string    `json:"message,omitempty"`
	Metadata  Meta      `json:"metadata"`
}

// TransitionResult is the outcome of an ownership or status change.
type TransitionResult struct {
	TaskID            string      `json:"taskId"`
	FromRole          task.Role   `json:"fromRole"`
	ToRole            task.Role   `json:"toRole"`
	FromStatus        task.Status `json:"fromStatus"`
	ToStatus          task.Status `json:"toStatus"`
	RedelegationCount int         `json:"redelegationCount"`
	Message           string      `json:"message,omitempty"`
	Reason            string      `json:"reason,omitempty"`
}

// TransitionBody reports a completed transition plus a pointer at what
// the new owner should do first.
type TransitionBody struct {
	Type         string            `json:"type"`
	Timestamp    time.Time         `json:"timestamp"`
	Transition   *TransitionResult `json:"transition"`
	NextGuidance *WorkflowGuidance `json:"nextGuidance,omitempty"`
	Metadata     Meta              `json:"metadata"`
}

// TaskRef is the envelope view of a task. Bootstrap embeds it once.
type TaskRef struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	Status    task.Status   `json:"status"`
	Priority  task.Priority `json:"priority"`
	Owner     task.Role     `json:"owner"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ExecutionRef is the envelope view of a workflow execution.
type ExecutionRef struct {
	ID          string               `json:"id"`
	TaskID      string               `json:"taskId,omitempty"`
	Status      task.ExecutionStatus `json:"status"`
	CurrentRole task.Role            `json:"currentRole"`
	CurrentStep string               `json:"currentStep,omitempty"`
	AutoCreated bool                 `json:"autoCreated,omitempty"`
	StartedAt   time.Time            `json:"startedAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// BootstrapBody returns the created task, its execution and the first
// step's guidance. Task identity lives only in the embedded TaskRef;
// metadata stays silent about it.
type BootstrapBody struct {
	Type           string             `json:"type"`
	Timestamp      time.Time          `json:"timestamp"`
	Task           *TaskRef           `json:"task"`
	Execution      *ExecutionRef      `json:"execution"`
	Guidance       *WorkflowGuidance  `json:"workflowGuidance,omitempty"`
	RequiredInputs *InputRequirements `json:"requiredInputs,omitempty"`
	ActionGuidance *ActionGuidance    `json:"actionGuidance,omitempty"`
	Metadata       Meta               `json:"metadata"`
}

// ExecutionSummary aggregates the execution list; per-execution detail
// stays in the refs, the summary never repeats it.
type ExecutionSummary struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Paused    int            `json:"paused"`
	Completed int            `json:"completed"`
	Aborted   int            `json:"aborted"`
	ByRole    map[string]int `json:"byRole,omitempty"`
}

// WorkflowExecutionBody lists executions with an aggregate summary.
type WorkflowExecutionBody struct {
	Type       string            `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Executions []*ExecutionRef   `json:"executions"`
	Summary    *ExecutionSummary `json:"summary"`
	Metadata   Meta              `json:"metadata"`
}

// newEnvelope wraps a typed body into the wire envelope.
func newEnvelope(body any) *Envelope {
	return &Envelope{
		Version:   EnvelopeVersion,
		Envelope:  body,
		Success:   true,
		Timestamp: time.Now().UTC(),
	}
}

func taskRef(t *task.Task) *TaskRef {
	return &TaskRef{
		ID: t.ID, Name: t.Name, Slug: t.Slug,
		Status: t.Status, Priority: t.Priority, Owner: t.Owner,
		CreatedAt: t.CreatedAt,
	}
}

func executionRef(e *task.Execution) *ExecutionRef {
	return &ExecutionRef{
		ID: e.ID, TaskID: e.TaskID, Status: e.Status,
		CurrentRole: e.CurrentRole, CurrentStep: e.CurrentStep,
		AutoCreated: e.AutoCreated, StartedAt: e.StartedAt, UpdatedAt: e.UpdatedAt,
	}
}

// assembleGuidance builds the guidance body. The four sections are
// independent reads, so they run concurrently; each degrades on its
// own without failing the envelope.
func (e *Engine) assembleGuidance(ctx context.Context, t *task.Task, exec *task.Execution, step *task.WorkflowStep) *GuidanceBody {
	role := t.Owner
	if exec != nil {
		role = exec.CurrentRole
	}

	var (
		wg       sync.WaitGroup
		guidance *WorkflowGuidance
		inputs   InputRequirements
		action   *ActionGuidance
		progress ProgressMetrics
		vc       ValidationContext
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		guidance = buildWorkflowGuidance(role, step)
	}()
	go func() {
		defer wg.Done()
		act := nextAction(step)
		inputs = ExtractInputs(act)
		inputs.Inputs = capOptional(inputs.Inputs, optionalGuidanceCap)
		action = buildActionGuidance(step, act, inputs)
	}()
	go func() {
		defer wg.Done()
		progress = e.progressFor(ctx, t, exec)
	}()
	go func() {
		defer wg.Done()
		vc = e.validationFor(ctx, t, role, step)
	}()
	wg.Wait()

	meta := Meta{TaskID: t.ID, TaskName: t.Name, Role: role}
	if exec != nil {
		meta.ExecutionID = exec.ID
	}
	if step != nil {
		meta.StepID = step.ID
	}

	return &GuidanceBody{
		Type:           TypeGuidance,
		Timestamp:      time.Now().UTC(),
		Guidance:       guidance,
		RequiredInputs: &inputs,
		ActionGuidance: action,
		Progress:       &progress,
		Validation:     &vc,
		Metadata:       meta,
	}
}
