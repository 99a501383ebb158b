package workflow

import (
	"fmt"
	"strings"

	"github.com/nidhogg/overseer/internal/task"
)

// StepInfo is the envelope view of a catalog step.
type StepInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Sequence    int    `json:"sequence"`
}

// WorkflowGuidance frames the current step for the owning role.
// Quality criteria deliberately live in validationContext instead.
type WorkflowGuidance struct {
	Role        task.Role               `json:"role"`
	Step        *StepInfo               `json:"step,omitempty"`
	Description string                  `json:"description,omitempty"`
	Behavioral  *task.BehavioralContext `json:"behavioralContext,omitempty"`
	Approach    *task.ApproachGuidance  `json:"approachGuidance,omitempty"`
}

// ActionGuidance renders the next action into something an agent can
// execute directly.
type ActionGuidance struct {
	NextAction     string          `json:"nextAction"`
	ActionType     task.ActionType `json:"actionType"`
	Intent         string          `json:"intent,omitempty"`
	Instruction    string          `json:"instruction"`
	RequiredInputs []string        `json:"requiredInputs,omitempty"`
	Service        string          `json:"service,omitempty"`
	Operation      string          `json:"operation,omitempty"`
}

// nextAction picks the first pending required action of a step, or the
// first pending action when none are required.
func nextAction(step *task.WorkflowStep) *task.StepAction {
	if step == nil || len(step.Actions) == 0 {
		return nil
	}
	for i := range step.Actions {
		if step.Actions[i].Required {
			return &step.Actions[i]
		}
	}
	return &step.Actions[0]
}

// buildWorkflowGuidance projects a step into its envelope form.
func buildWorkflowGuidance(role task.Role, step *task.WorkflowStep) *WorkflowGuidance {
	g := &WorkflowGuidance{Role: role}
	if step == nil {
		return g
	}
	g.Step = &StepInfo{ID: step.ID, Name: step.Name, DisplayName: step.DisplayName, Sequence: step.Sequence}
	g.Description = step.Description
	g.Behavioral = step.Behavioral
	g.Approach = step.Approach
	return g
}

// buildActionGuidance renders the action's intent plus its required
// inputs into an instruction the agent can follow verbatim.
func buildActionGuidance(step *task.WorkflowStep, action *task.StepAction, reqs InputRequirements) *ActionGuidance {
	if action == nil {
		instruction := "Report the operation you are performing along with its execution data."
		if step != nil {
			instruction = fmt.Sprintf("Work through %q and report the operation you performed with its execution data.", step.DisplayName)
		}
		return &ActionGuidance{
			NextAction:     "report-progress",
			ActionType:     task.ActionAnalysis,
			Instruction:    instruction,
			RequiredInputs: requiredNames(reqs.Inputs),
		}
	}

	g := &ActionGuidance{
		NextAction:     action.Name,
		ActionType:     action.Type,
		Intent:         action.Description,
		RequiredInputs: requiredNames(reqs.Inputs),
		Service:        action.ServiceName,
		Operation:      action.Operation,
	}

	var b strings.Builder
	switch action.Type {
	case task.ActionServiceCall:
		fmt.Fprintf(&b, "Call %s.%s", action.ServiceName, action.Operation)
	case task.ActionDelegation:
		b.WriteString("Hand the task off")
	case task.ActionValidation:
		b.WriteString("Validate the work against the criteria in the validation context")
	case task.ActionCommand:
		b.WriteString("Run the prepared command")
	case task.ActionFileOperation:
		b.WriteString("Apply the file changes")
	default:
		fmt.Fprintf(&b, "Perform %q", action.Name)
	}
	if action.Description != "" {
		fmt.Fprintf(&b, ": %s", strings.TrimRight(action.Description, "."))
	}
	if names := g.RequiredInputs; len(names) > 0 {
		fmt.Fprintf(&b, ". Provide %s", strings.Join(names, ", "))
	}
	b.WriteString(".")
	g.Instruction = b.String()
	return g
}
