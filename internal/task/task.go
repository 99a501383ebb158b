package task

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a workflow task.
type Status string

const (
	StatusNotStarted   Status = "not-started"
	StatusInProgress   Status = "in-progress"
	StatusNeedsReview  Status = "needs-review"
	StatusCompleted    Status = "completed"
	StatusNeedsChanges Status = "needs-changes"
	StatusPaused       Status = "paused"
	StatusCancelled    Status = "cancelled"
)

// Role identifies a workflow role that can own a task.
type Role string

const (
	RoleCoordinator     Role = "coordinator"
	RoleResearcher      Role = "researcher"
	RoleArchitect       Role = "architect"
	RoleSeniorDeveloper Role = "senior-developer"
	RoleCodeReview      Role = "code-review"
)

// RoleSequence is the canonical handoff order used for progress math.
// Actual delegation may skip roles; the sequence only anchors milestones.
var RoleSequence = []Role{
	RoleCoordinator,
	RoleResearcher,
	RoleArchitect,
	RoleSeniorDeveloper,
	RoleCodeReview,
}

// Priority ranks tasks for listing and stale-task sweeps.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Task is a unit of work moving through the role pipeline. Exactly one
// role owns it at a time; ownership changes only through delegation,
// completion, escalation or an explicit transition.
type Task struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Slug              string           `json:"slug"`
	Status            Status           `json:"status"`
	Priority          Priority         `json:"priority"`
	Owner             Role             `json:"owner"`
	RedelegationCount int              `json:"redelegation_count"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	Description       *Description     `json:"description,omitempty"`
	Analysis          *CodebaseContext `json:"analysis,omitempty"`
}

// Description carries the requirement text attached at creation or
// enriched later by the coordinator.
type Description struct {
	Text                  string   `json:"text"`
	BusinessRequirements  string   `json:"business_requirements,omitempty"`
	TechnicalRequirements string   `json:"technical_requirements,omitempty"`
	AcceptanceCriteria    []string `json:"acceptance_criteria,omitempty"`
}

// CodebaseContext is the analysis snapshot a role leaves behind for the
// next owner. Finding payloads are agent-authored and stay free-form.
type CodebaseContext struct {
	ArchitectureFindings  map[string]any `json:"architecture_findings,omitempty"`
	ProblemsIdentified    map[string]any `json:"problems_identified,omitempty"`
	ImplementationContext map[string]any `json:"implementation_context,omitempty"`
	QualityAssessment     map[string]any `json:"quality_assessment,omitempty"`
	FilesCovered          []string       `json:"files_covered,omitempty"`
	TechnologyStack       []string       `json:"technology_stack,omitempty"`
	AnalyzedBy            Role           `json:"analyzed_by,omitempty"`
	AnalyzedAt            *time.Time     `json:"analyzed_at,omitempty"`
}

// DelegationRecord is an audit row written for every ownership handoff.
type DelegationRecord struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	FromRole  Role      `json:"from_role"`
	ToRole    Role      `json:"to_role"`
	Message   string    `json:"message,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transition is an audit row written for every status or role change,
// including completions and escalations.
type Transition struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	FromRole   Role      `json:"from_role"`
	ToRole     Role      `json:"to_role"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// validStatusChanges defines allowed status transitions. Terminal
// states have no outgoing edges.
var validStatusChanges = map[Status][]Status{
	StatusNotStarted:   {StatusInProgress, StatusPaused, StatusCancelled},
	StatusInProgress:   {StatusNeedsReview, StatusCompleted, StatusNeedsChanges, StatusPaused, StatusCancelled},
	StatusNeedsReview:  {StatusInProgress, StatusCompleted, StatusNeedsChanges, StatusCancelled},
	StatusNeedsChanges: {StatusInProgress, StatusPaused, StatusCancelled},
	StatusPaused:       {StatusInProgress, StatusCancelled},
}

// ChangeStatus validates and returns nil if from→to is a legal status
// change. Same-status writes are treated as no-ops and allowed.
func ChangeStatus(from, to Status) error {
	if from == to {
		return nil
	}
	allowed, ok := validStatusChanges[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid status change %q → %q", from, to)
}

// IsTerminal reports whether a task in this status accepts no further
// workflow operations.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusNeedsReview,
		StatusCompleted, StatusNeedsChanges, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCoordinator, RoleResearcher, RoleArchitect, RoleSeniorDeveloper, RoleCodeReview:
		return true
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// NextRole returns the role after r in the canonical sequence, or ""
// when r is last or unknown.
func NextRole(r Role) Role {
	for i, seq := range RoleSequence {
		if seq == r && i+1 < len(RoleSequence) {
			return RoleSequence[i+1]
		}
	}
	return ""
}

// RoleIndex returns r's position in the canonical sequence, or -1.
func RoleIndex(r Role) int {
	for i, seq := range RoleSequence {
		if seq == r {
			return i
		}
	}
	return -1
}
