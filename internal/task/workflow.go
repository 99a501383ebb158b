package task

import "time"

// ActionType classifies what a step action asks the agent to do.
type ActionType string

const (
	ActionValidation    ActionType = "validation"
	ActionAnalysis      ActionType = "analysis"
	ActionDecision      ActionType = "decision"
	ActionFileOperation ActionType = "file-operation"
	ActionCommand       ActionType = "command"
	ActionDelegation    ActionType = "delegation"
	ActionServiceCall   ActionType = "service-call"
)

// WorkflowStep is one unit of guided work inside a role. Steps are
// ordered by Sequence within their role.
type WorkflowStep struct {
	ID          string              `json:"id"`
	RoleID      Role                `json:"role_id"`
	Name        string              `json:"name"`
	DisplayName string              `json:"display_name"`
	Sequence    int                 `json:"sequence"`
	Description string              `json:"description,omitempty"`
	Behavioral  *BehavioralContext  `json:"behavioral_context,omitempty"`
	Approach    *ApproachGuidance   `json:"approach_guidance,omitempty"`
	Patterns    *PatternEnforcement `json:"pattern_enforcement,omitempty"`
	Checklist   []string            `json:"quality_checklist,omitempty"`
	Actions     []StepAction        `json:"actions,omitempty"`
}

// BehavioralContext frames how a role should think while on a step.
type BehavioralContext struct {
	Approach    string   `json:"approach"`
	Principles  []string `json:"principles,omitempty"`
	Methodology string   `json:"methodology,omitempty"`
}

// ApproachGuidance is the concrete instruction list for a step.
type ApproachGuidance struct {
	StepByStep    []string `json:"step_by_step"`
	ErrorHandling []string `json:"error_handling,omitempty"`
}

// PatternEnforcement names the patterns a step's output must follow
// and the ones it must avoid. Both feed the validation context.
type PatternEnforcement struct {
	RequiredPatterns []string `json:"required_patterns,omitempty"`
	AntiPatterns     []string `json:"anti_patterns,omitempty"`
}

// StepAction is a single action inside a step. Service-call actions
// name the service operation they invoke; ActionData may carry
// {{placeholder}} templates resolved by the agent at execution time.
type StepAction struct {
	ID          string         `json:"id"`
	StepID      string         `json:"step_id"`
	Name        string         `json:"name"`
	Type        ActionType     `json:"action_type"`
	Sequence    int            `json:"sequence"`
	Description string         `json:"description,omitempty"`
	ServiceName string         `json:"service_name,omitempty"`
	Operation   string         `json:"operation,omitempty"`
	ActionData  map[string]any `json:"action_data,omitempty"`
	Required    bool           `json:"required"`
}

// StepStatus tracks a step's execution state for one task.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in-progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

// StepProgress records how far a task got through one step.
type StepProgress struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"task_id"`
	StepID        string         `json:"step_id"`
	RoleID        Role           `json:"role_id"`
	Status        StepStatus     `json:"status"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ExecutionData map[string]any `json:"execution_data,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// ExecutionStatus is the state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionActive    ExecutionStatus = "active"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionAborted   ExecutionStatus = "aborted"
)

// Execution is the per-task workflow cursor: which role holds the task
// and which step that role is on. One active execution per task.
type Execution struct {
	ID          string          `json:"id"`
	TaskID      string          `json:"task_id"`
	CurrentRole Role            `json:"current_role"`
	CurrentStep string          `json:"current_step,omitempty"`
	Status      ExecutionStatus `json:"status"`
	AutoCreated bool            `json:"auto_created"`
	StartedAt   time.Time       `json:"started_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// EventType classifies workflow events published on the stream.
type EventType string

const (
	EventTaskCreated     EventType = "task-created"
	EventTaskDelegated   EventType = "task-delegated"
	EventStatusChanged   EventType = "status-changed"
	EventRoleTransition  EventType = "role-transition"
	EventStepCompleted   EventType = "step-completed"
	EventSubtaskUpdated  EventType = "subtask-updated"
	EventBatchCompleted  EventType = "batch-completed"
	EventTaskCompleted   EventType = "task-completed"
	EventTaskEscalated   EventType = "task-escalated"
	EventTaskStale       EventType = "task-stale"
)

// Event is the envelope-independent record published for observers:
// the Redis stream, chat notifiers and the flow graph all consume it.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	TaskID      string         `json:"task_id"`
	TaskName    string         `json:"task_name,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	FromRole    Role           `json:"from_role,omitempty"`
	ToRole      Role           `json:"to_role,omitempty"`
	Message     string         `json:"message,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
