package task

import "time"

// SubtaskStatus is deliberately narrower than task Status: subtasks
// only move forward.
type SubtaskStatus string

const (
	SubtaskNotStarted SubtaskStatus = "not-started"
	SubtaskInProgress SubtaskStatus = "in-progress"
	SubtaskCompleted  SubtaskStatus = "completed"
)

// Subtask is an implementation unit carved out of a task by the
// architect. Subtasks are grouped into batches and ordered by Sequence;
// dependency edges are fixed at creation and never mutated.
type Subtask struct {
	ID                 string         `json:"id"`
	TaskID             string         `json:"task_id"`
	PlanID             string         `json:"plan_id,omitempty"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Sequence           int            `json:"sequence"`
	Status             SubtaskStatus  `json:"status"`
	BatchID            string         `json:"batch_id,omitempty"`
	BatchTitle         string         `json:"batch_title,omitempty"`
	EstimatedDuration  string         `json:"estimated_duration,omitempty"`
	StrategicGuidance  map[string]any `json:"strategic_guidance,omitempty"`
	CompletionEvidence map[string]any `json:"completion_evidence,omitempty"`
	DependsOn          []string       `json:"depends_on,omitempty"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Ready reports whether the subtask can be picked up given the state
// of the subtasks it depends on.
func (s *Subtask) Ready(deps []*Subtask) bool {
	if s.Status != SubtaskNotStarted {
		return false
	}
	for _, d := range deps {
		if d.Status != SubtaskCompleted {
			return false
		}
	}
	return true
}

// Plan is the architect's implementation plan a subtask batch hangs off.
type Plan struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Title     string         `json:"title"`
	Overview  string         `json:"overview,omitempty"`
	Approach  map[string]any `json:"approach,omitempty"`
	CreatedBy Role           `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
