package task

import "time"

// ResearchReport is the researcher's deliverable for a task.
type ResearchReport struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Findings        string    `json:"findings,omitempty"`
	Recommendations string    `json:"recommendations,omitempty"`
	References      []string  `json:"references,omitempty"`
	CreatedBy       Role      `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReviewVerdict is the outcome of a code review.
type ReviewVerdict string

const (
	VerdictApproved         ReviewVerdict = "approved"
	VerdictApprovedReserved ReviewVerdict = "approved-with-reservations"
	VerdictNeedsChanges     ReviewVerdict = "needs-changes"
)

// CodeReview is the code-review role's deliverable.
type CodeReview struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	Verdict         ReviewVerdict  `json:"verdict"`
	Summary         string         `json:"summary"`
	Strengths       string         `json:"strengths,omitempty"`
	Issues          string         `json:"issues,omitempty"`
	CriteriaResults map[string]any `json:"criteria_results,omitempty"`
	TestingNotes    string         `json:"testing_notes,omitempty"`
	RequiredChanges []string       `json:"required_changes,omitempty"`
	CreatedBy       Role           `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
}

// CompletionReport summarizes a finished task for the record.
type CompletionReport struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	Summary         string         `json:"summary"`
	FilesModified   []string       `json:"files_modified,omitempty"`
	CriteriaResults map[string]any `json:"criteria_results,omitempty"`
	DelegationNotes string         `json:"delegation_notes,omitempty"`
	CreatedBy       Role           `json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Comment is a free-form note a role leaves on a task or subtask.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	SubtaskID string    `json:"subtask_id,omitempty"`
	Author    Role      `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
