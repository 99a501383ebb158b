package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/task"
)

// BootstrapRequest creates a task and starts its workflow in one shot.
type BootstrapRequest struct {
	Name                  string                `json:"name"`
	Description           string                `json:"description"`
	Priority              task.Priority         `json:"priority,omitempty"`
	BusinessRequirements  string                `json:"businessRequirements,omitempty"`
	TechnicalRequirements string                `json:"technicalRequirements,omitempty"`
	AcceptanceCriteria    []string              `json:"acceptanceCriteria,omitempty"`
	Analysis              *task.CodebaseContext `json:"codebaseAnalysis,omitempty"`
}

// Bootstrap creates the task, opens its execution at the coordinator's
// first step and returns the bootstrap envelope.
func (e *Engine) Bootstrap(ctx context.Context, r BootstrapRequest) (*Envelope, error) {
	const op = "workflow.bootstrap"

	if r.Name == "" {
		return nil, validationErr(op, "name is required", "name")
	}
	if r.Priority == "" {
		r.Priority = task.PriorityMedium
	}
	if !r.Priority.Valid() {
		return nil, validationErr(op, "unknown priority "+string(r.Priority), "priority")
	}

	now := time.Now().UTC()
	t := &task.Task{
		ID:        uuid.NewString(),
		Name:      r.Name,
		Slug:      e.uniqueSlug(ctx, slugify(r.Name)),
		Status:    task.StatusInProgress,
		Priority:  r.Priority,
		Owner:     task.RoleCoordinator,
		CreatedAt: now,
		UpdatedAt: now,
		Description: &task.Description{
			Text:                  r.Description,
			BusinessRequirements:  r.BusinessRequirements,
			TechnicalRequirements: r.TechnicalRequirements,
			AcceptanceCriteria:    r.AcceptanceCriteria,
		},
		Analysis: r.Analysis,
	}

	step, err := e.firstStep(ctx, task.RoleCoordinator)
	if err != nil {
		return nil, wrap(op, err)
	}

	exec := &task.Execution{
		ID:          uuid.NewString(),
		TaskID:      t.ID,
		CurrentRole: task.RoleCoordinator,
		Status:      task.ExecutionActive,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if step != nil {
		exec.CurrentStep = step.ID
	}

	err = e.store.Atomic(ctx, func(s task.Store) error {
		if err := s.CreateTask(ctx, t); err != nil {
			return err
		}
		if err := s.CreateExecution(ctx, exec); err != nil {
			return err
		}
		return s.AppendTransition(ctx, &task.Transition{
			ID: uuid.NewString(), TaskID: t.ID,
			ToRole: task.RoleCoordinator,
			FromStatus: task.StatusNotStarted, ToStatus: task.StatusInProgress,
			Reason: "bootstrap", Timestamp: now,
		})
	})
	if err != nil {
		return nil, wrap(op, err)
	}

	e.emit(ctx, &task.Event{
		Type: task.EventTaskCreated, TaskID: t.ID, TaskName: t.Name,
		ExecutionID: exec.ID, ToRole: task.RoleCoordinator,
		Message: "task created: " + t.Name,
	})
	e.logger.Info("task bootstrapped",
		zap.String("task", t.ID), zap.String("slug", t.Slug))

	act := nextAction(step)
	inputs := ExtractInputs(act)
	inputs.Inputs = capOptional(inputs.Inputs, optionalGuidanceCap)

	ref := executionRef(exec)
	ref.TaskID = "" // the embedded task already identifies it

	body := &BootstrapBody{
		Type:           TypeBootstrap,
		Timestamp:      time.Now().UTC(),
		Task:           taskRef(t),
		Execution:      ref,
		Guidance:       buildWorkflowGuidance(task.RoleCoordinator, step),
		RequiredInputs: &inputs,
		ActionGuidance: buildActionGuidance(step, act, inputs),
		Metadata:       Meta{StepID: exec.CurrentStep},
	}
	return newEnvelope(body), nil
}

// Guidance assembles the guidance envelope for a task's current owner.
// A missing execution is healed by opening one at the owner's first
// step, flagged auto-created.
func (e *Engine) Guidance(ctx context.Context, taskID string, role task.Role) (*Envelope, error) {
	const op = "workflow.guidance"

	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, wrap(op, err)
	}
	if verr := validateMutable(t, op); verr != nil {
		return nil, verr
	}
	if role != "" {
		if verr := validateOwner(t, role, op); verr != nil {
			return nil, verr
		}
	}

	exec, err := e.store.GetExecutionByTask(ctx, t.ID)
	if CodeOf(err) == CodeNotFound {
		exec, err = e.healExecution(ctx, t)
	}
	if err != nil {
		return nil, wrap(op, err)
	}

	step, err := e.currentStep(ctx, exec, exec.CurrentRole)
	if err != nil {
		return nil, wrap(op, err)
	}

	return newEnvelope(e.assembleGuidance(ctx, t, exec, step)), nil
}

// healExecution opens an auto-created execution for a task that lost
// or never had one.
func (e *Engine) healExecution(ctx context.Context, t *task.Task) (*task.Execution, error) {
	step, err := e.firstStep(ctx, t.Owner)
	if err != nil {
		return nil, err
	}
	exec := &task.Execution{
		ID:          uuid.NewString(),
		TaskID:      t.ID,
		CurrentRole: t.Owner,
		Status:      task.ExecutionActive,
		AutoCreated: true,
		StartedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if step != nil {
		exec.CurrentStep = step.ID
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	e.logger.Warn("execution auto-created",
		zap.String("task", t.ID), zap.String("execution", exec.ID))
	return exec, nil
}

// DelegateRequest hands a task from its owner to another role.
type DelegateRequest struct {
	TaskID   string    `json:"taskId"`
	FromRole task.Role `json:"fromRole"`
	ToRole   task.Role `json:"toRole"`
	Message  string    `json:"message,omitempty"`
}

// Delegate moves ownership. Task update, audit rows and the execution
// cursor move in one transaction.
func (e *Engine) Delegate(ctx context.Context, r DelegateRequest) (*Envelope, error) {
	const op = "workflow.delegate"

	t, err := e.store.GetTask(ctx, r.TaskID)
	if err != nil {
		return nil, wrap(op, err)
	}
	if verr := validateMutable(t, op); verr != nil {
		return nil, verr
	}
	if verr := validateOwner(t, r.FromRole, op); verr != nil {
		return nil, verr
	}
	if !r.ToRole.Valid() {
		return nil, validationErr(op, "unknown role "+string(r.ToRole), "toRole")
	}
	if r.ToRole == r.FromRole {
		return nil, validationErr(op, "task already owned by "+string(r.FromRole), "toRole")
	}

	nextStep, err := e.firstStep(ctx, r.ToRole)
	if err != nil {
		return nil, wrap(op, err)
	}

	now := time.Now().UTC()
	var result TransitionResult
	var execID string
	err = e.store.Atomic(ctx, func(s task.Store) error {
		cur, err := s.GetTask(ctx, r.TaskID)
		if err != nil {
			return err
		}
		if verr := validateMutable(cur, op); verr != nil {
			return verr
		}
		if verr := validateOwner(cur, r.FromRole, op); verr != nil {
			return verr
		}

		prior, err := s.ListDelegations(ctx, cur.ID)
		if err != nil {
			return err
		}

		fromStatus := cur.Status
		cur.Owner = r.ToRole
		if cur.Status == task.StatusNotStarted || cur.Status == task.StatusNeedsChanges {
			cur.Status = task.StatusInProgress
		}
		if len(prior) > 0 {
			cur.RedelegationCount++
		}
		if err := s.UpdateTask(ctx, cur); err != nil {
			return err
		}

		if err := s.AppendDelegation(ctx, &task.DelegationRecord{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: r.FromRole, ToRole: r.ToRole,
			Message: r.Message, Success: true, Timestamp: now,
		}); err != nil {
			return err
		}
		if err := s.AppendTransition(ctx, &task.Transition{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: r.FromRole, ToRole: r.ToRole,
			FromStatus: fromStatus, ToStatus: cur.Status,
			Reason: "delegation", Timestamp: now,
		}); err != nil {
			return err
		}

		execID, err = e.moveCursor(ctx, s, cur, r.ToRole, nextStep)
		if err != nil {
			return err
		}

		result = TransitionResult{
			TaskID: cur.ID, FromRole: r.FromRole, ToRole: r.ToRole,
			FromStatus: fromStatus, ToStatus: cur.Status,
			RedelegationCount: cur.RedelegationCount, Message: r.Message,
		}
		return nil
	})
	if err != nil {
		return nil, engineErr(op, err)
	}

	e.emit(ctx, &task.Event{
		Type: task.EventTaskDelegated, TaskID: t.ID, TaskName: t.Name,
		ExecutionID: execID, FromRole: r.FromRole, ToRole: r.ToRole,
		Message: r.Message,
	})
	e.logger.Info("task delegated", zap.String("task", t.ID),
		zap.String("from", string(r.FromRole)), zap.String("to", string(r.ToRole)))

	return newEnvelope(&TransitionBody{
		Type:         TypeTransition,
		Timestamp:    time.Now().UTC(),
		Transition:   &result,
		NextGuidance: buildWorkflowGuidance(r.ToRole, nextStep),
		Metadata: Meta{
			TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
			FromRole: r.FromRole, ToRole: r.ToRole,
		},
	}), nil
}

// moveCursor points the task's execution at a role's first step,
// creating the execution when none exists.
func (e *Engine) moveCursor(ctx context.Context, s task.Store, t *task.Task, role task.Role, step *task.WorkflowStep) (string, error) {
	stepID := ""
	if step != nil {
		stepID = step.ID
	}

	exec, err := s.GetExecutionByTask(ctx, t.ID)
	if CodeOf(err) == CodeNotFound {
		exec = &task.Execution{
			ID: uuid.NewString(), TaskID: t.ID,
			CurrentRole: role, CurrentStep: stepID,
			Status: task.ExecutionActive, AutoCreated: true,
			StartedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
		}
		return exec.ID, s.CreateExecution(ctx, exec)
	}
	if err != nil {
		return "", err
	}

	exec.CurrentRole = role
	exec.CurrentStep = stepID
	exec.Status = task.ExecutionActive
	return exec.ID, s.UpdateExecution(ctx, exec)
}

// CompleteRequest finishes a role's portion of the work.
type CompleteRequest struct {
	TaskID         string         `json:"taskId"`
	Role           task.Role      `json:"roleId"`
	Status         task.Status    `json:"status,omitempty"`
	CompletionData map[string]any `json:"completionData,omitempty"`
	NextRole       task.Role      `json:"nextRole,omitempty"`
}

// Complete applies the completion policy: under coordinator-reset a
// completion request from any other role parks the task with the
// coordinator as needs-review instead of finishing it.
func (e *Engine) Complete(ctx context.Context, r CompleteRequest) (*Envelope, error) {
	const op = "workflow.complete"

	t, err := e.store.GetTask(ctx, r.TaskID)
	if err != nil {
		return nil, wrap(op, err)
	}
	if verr := validateMutable(t, op); verr != nil {
		return nil, verr
	}
	if verr := validateOwner(t, r.Role, op); verr != nil {
		return nil, verr
	}

	requested := r.Status
	if requested == "" {
		requested = task.StatusCompleted
	}
	switch requested {
	case task.StatusCompleted, task.StatusNeedsReview, task.StatusNeedsChanges:
	default:
		return nil, validationErr(op, "status must be completed, needs-review or needs-changes", "status")
	}
	if r.NextRole != "" && !r.NextRole.Valid() {
		return nil, validationErr(op, "unknown role "+string(r.NextRole), "nextRole")
	}

	effective, nextOwner, reason := e.resolveCompletion(r.Role, requested, r.NextRole)
	if err := task.ChangeStatus(t.Status, effective); err != nil {
		return nil, errf(CodeInvalidState, op, "%v", err)
	}

	terminal := effective == task.StatusCompleted
	nextStep, err := e.completionStep(ctx, terminal, nextOwner)
	if err != nil {
		return nil, wrap(op, err)
	}

	now := time.Now().UTC()
	var result TransitionResult
	var execID string
	err = e.store.Atomic(ctx, func(s task.Store) error {
		cur, err := s.GetTask(ctx, r.TaskID)
		if err != nil {
			return err
		}
		if verr := validateMutable(cur, op); verr != nil {
			return verr
		}
		if verr := validateOwner(cur, r.Role, op); verr != nil {
			return verr
		}

		fromStatus := cur.Status
		cur.Status = effective
		if terminal {
			cur.CompletedAt = &now
		} else {
			cur.Owner = nextOwner
		}
		if err := s.UpdateTask(ctx, cur); err != nil {
			return err
		}

		if err := e.finishCurrentStep(ctx, s, cur, r.Role, r.CompletionData, now); err != nil {
			return err
		}

		if err := s.AppendTransition(ctx, &task.Transition{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: r.Role, ToRole: cur.Owner,
			FromStatus: fromStatus, ToStatus: effective,
			Reason: reason, Timestamp: now,
		}); err != nil {
			return err
		}

		if terminal {
			execID, err = e.closeExecution(ctx, s, cur.ID, task.ExecutionCompleted, now)
			if err != nil {
				return err
			}
			if len(r.CompletionData) > 0 {
				if err := s.CreateCompletionReport(ctx, completionReport(cur.ID, r.Role, r.CompletionData)); err != nil {
					return err
				}
			}
		} else {
			execID, err = e.moveCursor(ctx, s, cur, nextOwner, nextStep)
			if err != nil {
				return err
			}
		}

		result = TransitionResult{
			TaskID: cur.ID, FromRole: r.Role, ToRole: cur.Owner,
			FromStatus: fromStatus, ToStatus: effective,
			RedelegationCount: cur.RedelegationCount, Reason: reason,
		}
		return nil
	})
	if err != nil {
		return nil, engineErr(op, err)
	}

	evType := task.EventStatusChanged
	msg := string(r.Role) + " finished: " + string(effective)
	if terminal {
		evType = task.EventTaskCompleted
		msg = "task completed by " + string(r.Role)
	}
	e.emit(ctx, &task.Event{
		Type: evType, TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
		FromRole: r.Role, ToRole: result.ToRole, Message: msg,
	})
	e.logger.Info("task completion processed", zap.String("task", t.ID),
		zap.String("role", string(r.Role)), zap.String("status", string(effective)))

	body := &TransitionBody{
		Type:       TypeTransition,
		Timestamp:  time.Now().UTC(),
		Transition: &result,
		Metadata: Meta{
			TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
			FromRole: r.Role, ToRole: result.ToRole,
		},
	}
	if !terminal {
		body.NextGuidance = buildWorkflowGuidance(nextOwner, nextStep)
	}
	return newEnvelope(body), nil
}

// resolveCompletion applies the completion policy and default routing.
func (e *Engine) resolveCompletion(role task.Role, requested task.Status, explicitNext task.Role) (task.Status, task.Role, string) {
	switch requested {
	case task.StatusCompleted:
		if role != task.RoleCoordinator && e.policy == PolicyCoordinatorReset {
			return task.StatusNeedsReview, task.RoleCoordinator, "completion routed to coordinator review"
		}
		return task.StatusCompleted, role, "completed"
	case task.StatusNeedsReview:
		next := explicitNext
		if next == "" {
			if next = task.NextRole(role); next == "" {
				next = task.RoleCoordinator
			}
		}
		return task.StatusNeedsReview, next, "ready for review"
	default: // needs-changes
		next := explicitNext
		if next == "" {
			next = task.RoleSeniorDeveloper
		}
		return task.StatusNeedsChanges, next, "changes requested"
	}
}

func (e *Engine) completionStep(ctx context.Context, terminal bool, nextOwner task.Role) (*task.WorkflowStep, error) {
	if terminal {
		return nil, nil
	}
	return e.firstStep(ctx, nextOwner)
}

// finishCurrentStep marks the execution's current step completed with
// the submitted data attached.
func (e *Engine) finishCurrentStep(ctx context.Context, s task.Store, t *task.Task, role task.Role, data map[string]any, now time.Time) error {
	exec, err := s.GetExecutionByTask(ctx, t.ID)
	if CodeOf(err) == CodeNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if exec.CurrentStep == "" {
		return nil
	}
	return s.UpsertStepProgress(ctx, &task.StepProgress{
		ID: uuid.NewString(), TaskID: t.ID, StepID: exec.CurrentStep,
		RoleID: role, Status: task.StepCompleted,
		StartedAt: &now, CompletedAt: &now, ExecutionData: data,
	})
}

// closeExecution finishes the task's execution if one exists.
func (e *Engine) closeExecution(ctx context.Context, s task.Store, taskID string, status task.ExecutionStatus, now time.Time) (string, error) {
	exec, err := s.GetExecutionByTask(ctx, taskID)
	if CodeOf(err) == CodeNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	exec.Status = status
	exec.CompletedAt = &now
	return exec.ID, s.UpdateExecution(ctx, exec)
}

func completionReport(taskID string, role task.Role, data map[string]any) *task.CompletionReport {
	rep := &task.CompletionReport{
		ID: uuid.NewString(), TaskID: taskID, CreatedBy: role,
	}
	if s, ok := data["summary"].(string); ok {
		rep.Summary = s
	}
	if rep.Summary == "" {
		rep.Summary = "task completed"
	}
	if files, ok := data["filesModified"].([]any); ok {
		for _, f := range files {
			if s, ok := f.(string); ok {
				rep.FilesModified = append(rep.FilesModified, s)
			}
		}
	}
	if criteria, ok := data["criteriaResults"].(map[string]any); ok {
		rep.CriteriaResults = criteria
	}
	if notes, ok := data["delegationNotes"].(string); ok {
		rep.DelegationNotes = notes
	}
	return rep
}

// EscalateRequest raises a task to the role that can unblock it.
type EscalateRequest struct {
	TaskID   string    `json:"taskId"`
	FromRole task.Role `json:"fromRole"`
	Reason   string    `json:"reason"`
}

// Escalate bounces ownership upward. Every escalation counts as a
// redelegation.
func (e *Engine) Escalate(ctx context.Context, r EscalateRequest) (*Envelope, error) {
	const op = "workflow.escalate"

	t, err := e.store.GetTask(ctx, r.TaskID)
	if err != nil {
		return nil, wrap(op, err)
	}
	if verr := validateMutable(t, op); verr != nil {
		return nil, verr
	}
	if verr := validateOwner(t, r.FromRole, op); verr != nil {
		return nil, verr
	}
	if r.Reason == "" {
		return nil, validationErr(op, "reason is required", "reason")
	}
	target, ok := escalationTargets[r.FromRole]
	if !ok {
		return nil, errf(CodeInvalidState, op, "%s has no escalation target", r.FromRole)
	}

	nextStep, err := e.firstStep(ctx, target)
	if err != nil {
		return nil, wrap(op, err)
	}

	now := time.Now().UTC()
	var result TransitionResult
	var execID string
	err = e.store.Atomic(ctx, func(s task.Store) error {
		cur, err := s.GetTask(ctx, r.TaskID)
		if err != nil {
			return err
		}
		if verr := validateMutable(cur, op); verr != nil {
			return verr
		}
		if verr := validateOwner(cur, r.FromRole, op); verr != nil {
			return verr
		}

		fromStatus := cur.Status
		cur.Owner = target
		cur.RedelegationCount++
		if cur.Status != task.StatusInProgress {
			if err := task.ChangeStatus(cur.Status, task.StatusInProgress); err == nil {
				cur.Status = task.StatusInProgress
			}
		}
		if err := s.UpdateTask(ctx, cur); err != nil {
			return err
		}

		if err := s.AppendDelegation(ctx, &task.DelegationRecord{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: r.FromRole, ToRole: target,
			Success: true, Reason: r.Reason, Timestamp: now,
		}); err != nil {
			return err
		}
		if err := s.AppendTransition(ctx, &task.Transition{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: r.FromRole, ToRole: target,
			FromStatus: fromStatus, ToStatus: cur.Status,
			Reason: "escalation: " + r.Reason, Timestamp: now,
		}); err != nil {
			return err
		}

		execID, err = e.moveCursor(ctx, s, cur, target, nextStep)
		if err != nil {
			return err
		}

		result = TransitionResult{
			TaskID: cur.ID, FromRole: r.FromRole, ToRole: target,
			FromStatus: fromStatus, ToStatus: cur.Status,
			RedelegationCount: cur.RedelegationCount, Reason: r.Reason,
		}
		return nil
	})
	if err != nil {
		return nil, engineErr(op, err)
	}

	e.emit(ctx, &task.Event{
		Type: task.EventTaskEscalated, TaskID: t.ID, TaskName: t.Name,
		ExecutionID: execID, FromRole: r.FromRole, ToRole: target,
		Message: r.Reason,
	})
	e.logger.Info("task escalated", zap.String("task", t.ID),
		zap.String("from", string(r.FromRole)), zap.String("to", string(target)))

	return newEnvelope(&TransitionBody{
		Type:         TypeTransition,
		Timestamp:    time.Now().UTC(),
		Transition:   &result,
		NextGuidance: buildWorkflowGuidance(target, nextStep),
		Metadata: Meta{
			TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
			FromRole: r.FromRole, ToRole: target,
		},
	}), nil
}

// TransitionRequest is the generic status/ownership change.
type TransitionRequest struct {
	TaskID    string      `json:"taskId"`
	FromRole  task.Role   `json:"fromRole"`
	ToRole    task.Role   `json:"toRole,omitempty"`
	NewStatus task.Status `json:"newStatus"`
	Reason    string      `json:"reason,omitempty"`
}

// Transition applies an explicit status change, moving ownership when
// toRole is set. The completion policy guards the completed status the
// same way Complete does.
func (e *Engine) Transition(ctx context.Context, r TransitionRequest) (*Envelope, error) {
	const op = "workflow.transition"

	t, err := e.store.GetTask(ctx, r.TaskID)
	if err != nil {
		return nil, wrap(op, err)
	}
	if verr := validateMutable(t, op); verr != nil {
		return nil, verr
	}
	if verr := validateOwner(t, r.FromRole, op); verr != nil {
		return nil, verr
	}
	if !r.NewStatus.Valid() {
		return nil, validationErr(op, "unknown status "+string(r.NewStatus), "newStatus")
	}
	if r.ToRole != "" && !r.ToRole.Valid() {
		return nil, validationErr(op, "unknown role "+string(r.ToRole), "toRole")
	}

	effective := r.NewStatus
	newOwner := r.FromRole
	reason := r.Reason
	if r.ToRole != "" {
		newOwner = r.ToRole
	}
	if effective == task.StatusCompleted && r.FromRole != task.RoleCoordinator && e.policy == PolicyCoordinatorReset {
		effective = task.StatusNeedsReview
		newOwner = task.RoleCoordinator
		reason = "completion routed to coordinator review"
	}
	if err := task.ChangeStatus(t.Status, effective); err != nil {
		return nil, errf(CodeInvalidState, op, "%v", err)
	}

	terminal := effective.IsTerminal()
	var nextStep *task.WorkflowStep
	if !terminal && newOwner != t.Owner {
		if nextStep, err = e.firstStep(ctx, newOwner); err != nil {
			return nil, wrap(op, err)
		}
	}

	now := time.Now().UTC()
	var result TransitionResult
	var execID string
	err = e.store.Atomic(ctx, func(s task.Store) error {
		cur, err := s.GetTask(ctx, r.TaskID)
		if err != nil {
			return err
		}
		if verr := validateMutable(cur, op); verr != nil {
			return verr
		}
		if verr := validateOwner(cur, r.FromRole, op); verr != nil {
			return verr
		}

		fromStatus := cur.Status
		fromOwner := cur.Owner
		cur.Status = effective
		cur.Owner = newOwner
		if effective == task.StatusCompleted {
			cur.CompletedAt = &now
		}
		if err := s.UpdateTask(ctx, cur); err != nil {
			return err
		}

		if err := s.AppendTransition(ctx, &task.Transition{
			ID: uuid.NewString(), TaskID: cur.ID,
			FromRole: fromOwner, ToRole: newOwner,
			FromStatus: fromStatus, ToStatus: effective,
			Reason: reason, Timestamp: now,
		}); err != nil {
			return err
		}

		switch {
		case effective == task.StatusCompleted:
			execID, err = e.closeExecution(ctx, s, cur.ID, task.ExecutionCompleted, now)
		case effective == task.StatusCancelled:
			execID, err = e.closeExecution(ctx, s, cur.ID, task.ExecutionAborted, now)
		case effective == task.StatusPaused:
			execID, err = e.pauseExecution(ctx, s, cur.ID)
		case newOwner != fromOwner:
			execID, err = e.moveCursor(ctx, s, cur, newOwner, nextStep)
		default:
			execID, err = e.resumeExecution(ctx, s, cur.ID)
		}
		if err != nil {
			return err
		}

		result = TransitionResult{
			TaskID: cur.ID, FromRole: fromOwner, ToRole: newOwner,
			FromStatus: fromStatus, ToStatus: effective,
			RedelegationCount: cur.RedelegationCount, Reason: reason,
		}
		return nil
	})
	if err != nil {
		return nil, engineErr(op, err)
	}

	evType := task.EventStatusChanged
	if result.FromRole != result.ToRole {
		evType = task.EventRoleTransition
	}
	if effective == task.StatusCompleted {
		evType = task.EventTaskCompleted
	}
	e.emit(ctx, &task.Event{
		Type: evType, TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
		FromRole: result.FromRole, ToRole: result.ToRole,
		Message: reason,
		Detail:  map[string]any{"fromStatus": result.FromStatus, "toStatus": result.ToStatus},
	})

	body := &TransitionBody{
		Type:       TypeTransition,
		Timestamp:  time.Now().UTC(),
		Transition: &result,
		Metadata: Meta{
			TaskID: t.ID, TaskName: t.Name, ExecutionID: execID,
			FromRole: result.FromRole, ToRole: result.ToRole,
		},
	}
	if nextStep != nil {
		body.NextGuidance = buildWorkflowGuidance(newOwner, nextStep)
	}
	return newEnvelope(body), nil
}

func (e *Engine) pauseExecution(ctx context.Context, s task.Store, taskID string) (string, error) {
	exec, err := s.GetExecutionByTask(ctx, taskID)
	if CodeOf(err) == CodeNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	exec.Status = task.ExecutionPaused
	return exec.ID, s.UpdateExecution(ctx, exec)
}

func (e *Engine) resumeExecution(ctx context.Context, s task.Store, taskID string) (string, error) {
	exec, err := s.GetExecutionByTask(ctx, taskID)
	if CodeOf(err) == CodeNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if exec.Status == task.ExecutionPaused {
		exec.Status = task.ExecutionActive
		return exec.ID, s.UpdateExecution(ctx, exec)
	}
	return exec.ID, nil
}

// Task returns one task.
func (e *Engine) Task(ctx context.Context, id string) (*task.Task, error) {
	t, err := e.store.GetTask(ctx, id)
	if err != nil {
		return nil, wrap("workflow.task", err)
	}
	return t, nil
}

// Tasks lists tasks through the engine so API handlers stay
// store-agnostic.
func (e *Engine) Tasks(ctx context.Context, f task.TaskFilter) ([]*task.Task, error) {
	ts, err := e.store.ListTasks(ctx, f)
	if err != nil {
		return nil, wrap("workflow.tasks", err)
	}
	return ts, nil
}

// AuditTrail returns a task's delegation and transition history.
func (e *Engine) AuditTrail(ctx context.Context, taskID string) ([]*task.DelegationRecord, []*task.Transition, error) {
	const op = "workflow.audit"
	if _, err := e.store.GetTask(ctx, taskID); err != nil {
		return nil, nil, wrap(op, err)
	}
	dels, err := e.store.ListDelegations(ctx, taskID)
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	trs, err := e.store.ListTransitions(ctx, taskID)
	if err != nil {
		return nil, nil, wrap(op, err)
	}
	return dels, trs, nil
}

// Execution returns one workflow execution.
func (e *Engine) Execution(ctx context.Context, id string) (*task.Execution, error) {
	exec, err := e.store.GetExecution(ctx, id)
	if err != nil {
		return nil, wrap("workflow.execution", err)
	}
	return exec, nil
}

// TaskExecution returns the execution cursor for a task, preferring an
// active one.
func (e *Engine) TaskExecution(ctx context.Context, taskID string) (*task.Execution, error) {
	exec, err := e.store.GetExecutionByTask(ctx, taskID)
	if err != nil {
		return nil, wrap("workflow.execution", err)
	}
	return exec, nil
}

// WorkflowExecutions builds the execution-list envelope: refs plus an
// aggregate summary, never both views of the same execution.
func (e *Engine) WorkflowExecutions(ctx context.Context, status task.ExecutionStatus) (*Envelope, error) {
	const op = "workflow.executions"

	execs, err := e.store.ListExecutions(ctx, status)
	if err != nil {
		return nil, wrap(op, err)
	}

	summary := &ExecutionSummary{Total: len(execs), ByRole: map[string]int{}}
	refs := make([]*ExecutionRef, 0, len(execs))
	for _, ex := range execs {
		refs = append(refs, executionRef(ex))
		summary.ByRole[string(ex.CurrentRole)]++
		switch ex.Status {
		case task.ExecutionActive:
			summary.Active++
		case task.ExecutionPaused:
			summary.Paused++
		case task.ExecutionCompleted:
			summary.Completed++
		case task.ExecutionAborted:
			summary.Aborted++
		}
	}
	if len(summary.ByRole) == 0 {
		summary.ByRole = nil
	}

	return newEnvelope(&WorkflowExecutionBody{
		Type:       TypeWorkflowExecution,
		Timestamp:  time.Now().UTC(),
		Executions: refs,
		Summary:    summary,
		Metadata:   Meta{},
	}), nil
}
