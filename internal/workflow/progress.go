package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// RoleProgress is one role's share of the pipeline.
type RoleProgress struct {
	Role      task.Role `json:"role"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
}

// ProgressMetrics summarizes how far a task has moved through the
// catalog. Degraded is set when the metrics could not be computed and
// came back zeroed; guidance still renders in that case.
type ProgressMetrics struct {
	TotalSteps          int            `json:"totalSteps"`
	CompletedSteps      int            `json:"completedSteps"`
	OverallProgress     int            `json:"overallProgress"`
	CurrentStepProgress int            `json:"currentStepProgress"`
	CurrentStep         string         `json:"currentStep,omitempty"`
	CurrentRole         task.Role      `json:"currentRole,omitempty"`
	NextMilestone       string         `json:"nextMilestone,omitempty"`
	Roles               []RoleProgress `json:"roleProgress,omitempty"`
	Degraded            bool           `json:"degraded,omitempty"`
}

// progressFor computes metrics across the whole catalog. Any store
// failure degrades to zeroed metrics instead of failing the envelope.
func (e *Engine) progressFor(ctx context.Context, t *task.Task, exec *task.Execution) ProgressMetrics {
	zeroed := ProgressMetrics{Degraded: true}
	if exec != nil {
		zeroed.CurrentRole = exec.CurrentRole
		zeroed.CurrentStep = exec.CurrentStep
	}

	steps, err := e.store.ListSteps(ctx, task.StepFilter{})
	if err != nil {
		e.logger.Warn("progress degraded: list steps", zap.String("task", t.ID), zap.Error(err))
		return zeroed
	}
	progress, err := e.store.ListStepProgress(ctx, t.ID)
	if err != nil {
		e.logger.Warn("progress degraded: list step progress", zap.String("task", t.ID), zap.Error(err))
		return zeroed
	}

	statusByStep := map[string]task.StepStatus{}
	done := map[string]bool{}
	for _, p := range progress {
		statusByStep[p.StepID] = p.Status
		if p.Status == task.StepCompleted || p.Status == task.StepSkipped {
			done[p.StepID] = true
		}
	}

	byRole := map[task.Role]*RoleProgress{}
	m := ProgressMetrics{}
	for _, s := range steps {
		m.TotalSteps++
		rp, ok := byRole[s.RoleID]
		if !ok {
			rp = &RoleProgress{Role: s.RoleID}
			byRole[s.RoleID] = rp
		}
		rp.Total++
		if done[s.ID] {
			m.CompletedSteps++
			rp.Completed++
		}
	}
	if m.TotalSteps > 0 {
		m.OverallProgress = m.CompletedSteps * 100 / m.TotalSteps
	}
	if exec != nil {
		m.CurrentRole = exec.CurrentRole
		m.CurrentStep = exec.CurrentStep
	} else {
		m.CurrentRole = t.Owner
	}

	stepPct, err := e.currentStepPct(ctx, t, m.CurrentRole, statusByStep[m.CurrentStep])
	if err != nil {
		e.logger.Warn("progress degraded: list subtasks", zap.String("task", t.ID), zap.Error(err))
		return zeroed
	}
	m.CurrentStepProgress = stepPct

	for _, role := range task.RoleSequence {
		if rp, ok := byRole[role]; ok {
			m.Roles = append(m.Roles, *rp)
		}
	}
	m.NextMilestone = nextMilestone(steps, done)

	if t.Status == task.StatusCompleted {
		m.OverallProgress = 100
		m.CurrentStepProgress = 100
		m.NextMilestone = ""
	}
	return m
}

// currentStepPct measures the step under the cursor. For the developer
// the subtask batch is the truer signal, so its completion ratio wins
// whenever subtasks exist.
func (e *Engine) currentStepPct(ctx context.Context, t *task.Task, role task.Role, status task.StepStatus) (int, error) {
	if role == task.RoleSeniorDeveloper {
		subtasks, err := e.store.ListSubtasks(ctx, task.SubtaskFilter{TaskID: t.ID})
		if err != nil {
			return 0, err
		}
		if len(subtasks) > 0 {
			completed := 0
			for _, st := range subtasks {
				if st.Status == task.SubtaskCompleted {
					completed++
				}
			}
			return completed * 100 / len(subtasks), nil
		}
	}
	switch status {
	case task.StepCompleted, task.StepSkipped:
		return 100, nil
	case task.StepInProgress:
		return 50, nil
	default:
		return 0, nil
	}
}

// nextMilestone names the first step not yet completed, walking the
// catalog in pipeline order.
func nextMilestone(steps []*task.WorkflowStep, done map[string]bool) string {
	byRole := map[task.Role][]*task.WorkflowStep{}
	for _, s := range steps {
		byRole[s.RoleID] = append(byRole[s.RoleID], s)
	}
	for _, role := range task.RoleSequence {
		for _, s := range byRole[role] {
			if done[s.ID] {
				continue
			}
			if s.DisplayName != "" {
				return s.DisplayName
			}
			return s.Name
		}
	}
	return ""
}
