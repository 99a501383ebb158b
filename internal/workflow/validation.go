package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// Criteria sources reported in validationContext.
const (
	criteriaFromStep    = "step-checklist"
	criteriaFromCatalog = "role-catalog"
)

// roleStandardsCatalog is the fixed standard set per role. It rides
// along in every context and doubles as the step-criteria fallback
// when the current step declares no checklist of its own.
var roleStandardsCatalog = map[task.Role][]string{
	task.RoleCoordinator: {
		"Requirements are understood and recorded on the task",
		"The right role owns the next piece of work",
		"Redelegations carry enough context to act on",
	},
	task.RoleResearcher: {
		"Findings cite the files or sources they come from",
		"Open questions are listed, not silently dropped",
		"Recommendations are actionable by the architect",
	},
	task.RoleArchitect: {
		"The plan covers every acceptance criterion",
		"Subtasks are small enough to verify independently",
		"Dependencies between subtasks are explicit",
	},
	task.RoleSeniorDeveloper: {
		"Implementation matches the plan or deviations are recorded",
		"Tests cover the changed behavior",
		"No subtask is marked done without evidence",
	},
	task.RoleCodeReview: {
		"Every acceptance criterion is verified, not assumed",
		"Issues include file and line context",
		"The verdict matches the findings",
	},
}

// projectStandardsCatalog applies regardless of role and step.
var projectStandardsCatalog = []string{
	"Work stays within the scope the current role was delegated",
	"Artifacts are recorded through their service, not summarized in chat",
	"Hand-offs name what was done and what remains",
}

// ValidationCheck is one explicit check to run before declaring the
// step done. Checks come from the step's validation-type actions.
type ValidationCheck struct {
	Name            string   `json:"name"`
	Criteria        string   `json:"criteria"`
	ExpectedOutcome string   `json:"expectedOutcome"`
	FailureActions  []string `json:"failureActions,omitempty"`
}

// ValidationContext tells the agent what the current work will be
// judged against. Step criteria live here and only here; guidance
// text references them instead of repeating them.
type ValidationContext struct {
	QualityPatterns    []string          `json:"qualityPatterns,omitempty"`
	Checks             []ValidationCheck `json:"validationChecks,omitempty"`
	AntiPatterns       []string          `json:"antiPatterns,omitempty"`
	RoleStandards      []string          `json:"roleStandards,omitempty"`
	StepCriteria       []string          `json:"stepCriteria,omitempty"`
	ProjectStandards   []string          `json:"projectStandards,omitempty"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria,omitempty"`
	ReviewVerdict      string            `json:"reviewVerdict,omitempty"`
	RequiredChanges    []string          `json:"requiredChanges,omitempty"`
	Source             string            `json:"source"`
}

// validationFor assembles the validation context for the current step.
// Role and project standards always ride along; the step contributes
// patterns, checks and criteria when it exists, and a missing step or
// checklist falls back to the role catalog. Review data is attached
// when a review exists so reworking roles see what to fix.
func (e *Engine) validationFor(ctx context.Context, t *task.Task, role task.Role, step *task.WorkflowStep) ValidationContext {
	vc := ValidationContext{
		RoleStandards:    roleStandardsCatalog[role],
		ProjectStandards: projectStandardsCatalog,
		Source:           criteriaFromCatalog,
	}

	if step == nil {
		e.logger.Warn("validation context: no current step, using role catalog",
			zap.String("task", t.ID), zap.String("role", string(role)))
	} else {
		if step.Behavioral != nil {
			vc.QualityPatterns = append(vc.QualityPatterns, step.Behavioral.Principles...)
		}
		if step.Patterns != nil {
			vc.QualityPatterns = append(vc.QualityPatterns, step.Patterns.RequiredPatterns...)
			vc.AntiPatterns = step.Patterns.AntiPatterns
		}
		// Checklist gates count as patterns too; they additionally
		// serve as the step criteria below.
		vc.QualityPatterns = append(vc.QualityPatterns, step.Checklist...)
		vc.Checks = validationChecks(step)
	}

	if step != nil && len(step.Checklist) > 0 {
		vc.StepCriteria = step.Checklist
		vc.Source = criteriaFromStep
	} else {
		vc.StepCriteria = roleStandardsCatalog[role]
	}

	if t.Description != nil {
		vc.AcceptanceCriteria = t.Description.AcceptanceCriteria
	}

	if review, err := e.store.GetCodeReview(ctx, t.ID); err == nil {
		vc.ReviewVerdict = string(review.Verdict)
		vc.RequiredChanges = review.RequiredChanges
	} else if CodeOf(err) != CodeNotFound {
		e.logger.Warn("validation context: review lookup failed", zap.String("task", t.ID), zap.Error(err))
	}

	return vc
}

// validationChecks lifts the step's validation actions into explicit
// checks, defaulting the fields the action payload leaves out.
func validationChecks(step *task.WorkflowStep) []ValidationCheck {
	var checks []ValidationCheck
	for _, a := range step.Actions {
		if a.Type != task.ActionValidation {
			continue
		}
		c := ValidationCheck{
			Name:            a.Name,
			Criteria:        getString(a.ActionData, "criteria"),
			ExpectedOutcome: getString(a.ActionData, "expectedOutcome"),
			FailureActions:  getStringSlice(a.ActionData, "failureActions"),
		}
		if c.Criteria == "" {
			c.Criteria = a.Description
		}
		if c.Criteria == "" {
			c.Criteria = "The step's outcome matches its description"
		}
		if c.ExpectedOutcome == "" {
			c.ExpectedOutcome = "All criteria hold"
		}
		if len(c.FailureActions) == 0 {
			c.FailureActions = []string{"Resolve the failures and run this check again"}
		}
		checks = append(checks, c)
	}
	return checks
}
