package workflow

import (
	"context"
	"time"

	"github.com/nidhogg/overseer/internal/task"
)

// ExecuteRequest invokes one declared service operation. TaskID and
// RoleID are merged into Data so contract validation sees them.
type ExecuteRequest struct {
	TaskID    string         `json:"taskId,omitempty"`
	RoleID    task.Role      `json:"roleId,omitempty"`
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	Data      map[string]any `json:"data,omitempty"`
}

// Execute validates the request against the operation's declared
// contract and dispatches it. Workflow operations return their own
// transition envelopes; everything else comes back as an execution
// envelope.
func (e *Engine) Execute(ctx context.Context, r ExecuteRequest) (*Envelope, error) {
	const op = "workflow.execute"

	c, ok := LookupContract(r.Service, r.Operation)
	if !ok {
		return nil, errf(CodeNotFound, op, "unknown operation %s.%s", r.Service, r.Operation)
	}

	data := map[string]any{}
	for k, v := range r.Data {
		data[k] = v
	}
	if r.TaskID != "" {
		if _, ok := data["taskId"]; !ok {
			data["taskId"] = r.TaskID
		}
	}
	if r.RoleID != "" {
		if _, ok := data["roleId"]; !ok {
			data["roleId"] = string(r.RoleID)
		}
	}

	if missing := missingInputs(c, data); len(missing) > 0 {
		return nil, validationErr(op, "missing required inputs for "+r.Service+"."+r.Operation, missing...)
	}

	if taskID := getString(data, "taskId"); taskID != "" && r.RoleID != "" && mutatesTask(r.Service, r.Operation) {
		t, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, wrap(op, err)
		}
		if verr := validateMutable(t, op); verr != nil {
			return nil, verr
		}
		if verr := validateOwner(t, r.RoleID, op); verr != nil {
			return nil, verr
		}
	}

	var (
		result  any
		message string
		env     *Envelope
		err     error
	)
	switch r.Service {
	case SvcTask:
		env, result, message, err = e.taskOps(ctx, r.Operation, data)
	case SvcWorkflow:
		env, err = e.workflowOps(ctx, r.Operation, data)
	case SvcPlanning:
		result, message, err = e.planningOps(ctx, r.Operation, data)
	case SvcSubtask:
		result, message, err = e.subtaskOps(ctx, r.Operation, data)
	case SvcReview:
		result, message, err = e.reviewOps(ctx, r.Operation, data)
	case SvcResearch:
		result, message, err = e.researchOps(ctx, r.Operation, data)
	}
	if err != nil {
		return nil, engineErr(op, err)
	}
	if env != nil {
		return env, nil
	}

	return newEnvelope(&ExecutionBody{
		Type:      TypeExecution,
		Timestamp: time.Now().UTC(),
		Result:    result,
		Message:   message,
		Metadata: Meta{
			TaskID: getString(data, "taskId"), Role: r.RoleID,
			Service: r.Service, Operation: r.Operation,
		},
	}), nil
}

// mutatesTask marks the operations that require the caller to own the
// task when a role is supplied.
func mutatesTask(service, operation string) bool {
	switch service {
	case SvcTask:
		return operation == "update"
	case SvcPlanning:
		return true
	case SvcSubtask:
		return operation != "get_next_subtask"
	case SvcReview:
		return operation == "create_review"
	case SvcResearch:
		return operation == "create_research"
	}
	return false
}

// taskOps handles TaskOperations. create reuses Bootstrap so the task
// starts with a live execution either way.
func (e *Engine) taskOps(ctx context.Context, operation string, data map[string]any) (*Envelope, any, string, error) {
	const op = "workflow.task-operations"

	switch operation {
	case "create":
		taskData := getMap(data, "taskData")
		req := BootstrapRequest{
			Name:                  getString(taskData, "name"),
			Priority:              task.Priority(getString(taskData, "priority")),
			Description:           getString(data, "description"),
			BusinessRequirements:  getString(data, "businessRequirements"),
			TechnicalRequirements: getString(data, "technicalRequirements"),
			AcceptanceCriteria:    getStringSlice(data, "acceptanceCriteria"),
		}
		if analysis := getMap(data, "codebaseAnalysis"); analysis != nil {
			req.Analysis = &task.CodebaseContext{
				ArchitectureFindings:  getMap(analysis, "architectureFindings"),
				ProblemsIdentified:    getMap(analysis, "problemsIdentified"),
				ImplementationContext: getMap(analysis, "implementationContext"),
				QualityAssessment:     getMap(analysis, "qualityAssessment"),
				FilesCovered:          getStringSlice(analysis, "filesCovered"),
				TechnologyStack:       getStringSlice(analysis, "technologyStack"),
			}
		}
		env, err := e.Bootstrap(ctx, req)
		return env, nil, "", err

	case "update":
		t, err := e.store.GetTask(ctx, getString(data, "taskId"))
		if err != nil {
			return nil, nil, "", wrap(op, err)
		}
		if verr := validateMutable(t, op); verr != nil {
			return nil, nil, "", verr
		}
		if name := getString(data, "name"); name != "" {
			t.Name = name
		}
		if p := getString(data, "priority"); p != "" {
			priority := task.Priority(p)
			if !priority.Valid() {
				return nil, nil, "", validationErr(op, "unknown priority "+p, "priority")
			}
			t.Priority = priority
		}
		if desc := getMap(data, "description"); desc != nil {
			if t.Description == nil {
				t.Description = &task.Description{}
			}
			if v := getString(desc, "text"); v != "" {
				t.Description.Text = v
			}
			if v := getString(desc, "businessRequirements"); v != "" {
				t.Description.BusinessRequirements = v
			}
			if v := getString(desc, "technicalRequirements"); v != "" {
				t.Description.TechnicalRequirements = v
			}
			if v := getStringSlice(desc, "acceptanceCriteria"); v != nil {
				t.Description.AcceptanceCriteria = v
			}
		}
		if analysis := getMap(data, "codebaseAnalysis"); analysis != nil {
			role := task.Role(getString(data, "roleId"))
			analyzedAt := time.Now().UTC()
			t.Analysis = &task.CodebaseContext{
				ArchitectureFindings:  getMap(analysis, "architectureFindings"),
				ProblemsIdentified:    getMap(analysis, "problemsIdentified"),
				ImplementationContext: getMap(analysis, "implementationContext"),
				QualityAssessment:     getMap(analysis, "qualityAssessment"),
				FilesCovered:          getStringSlice(analysis, "filesCovered"),
				TechnologyStack:       getStringSlice(analysis, "technologyStack"),
				AnalyzedBy:            role,
				AnalyzedAt:            &analyzedAt,
			}
		}
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return nil, nil, "", wrap(op, err)
		}
		return nil, taskRef(t), "task updated", nil

	case "get":
		t, err := e.store.GetTask(ctx, getString(data, "taskId"))
		if err != nil {
			return nil, nil, "", wrap(op, err)
		}
		if b, _ := data["includeAudit"].(bool); b {
			dels, trs, err := e.AuditTrail(ctx, t.ID)
			if err != nil {
				return nil, nil, "", err
			}
			return nil, map[string]any{"task": t, "delegations": dels, "transitions": trs}, "", nil
		}
		return nil, t, "", nil

	case "list":
		f := task.TaskFilter{
			Status: task.Status(getString(data, "status")),
			Owner:  task.Role(getString(data, "owner")),
			Limit:  getInt(data, "limit"),
		}
		ts, err := e.store.ListTasks(ctx, f)
		if err != nil {
			return nil, nil, "", wrap(op, err)
		}
		refs := make([]*TaskRef, 0, len(ts))
		for _, t := range ts {
			refs = append(refs, taskRef(t))
		}
		return nil, refs, "", nil
	}
	return nil, nil, "", errf(CodeNotFound, op, "unknown operation %s", operation)
}

// workflowOps routes to the typed transition operations.
func (e *Engine) workflowOps(ctx context.Context, operation string, data map[string]any) (*Envelope, error) {
	switch operation {
	case "delegate":
		return e.Delegate(ctx, DelegateRequest{
			TaskID:   getString(data, "taskId"),
			FromRole: task.Role(getString(data, "fromRole")),
			ToRole:   task.Role(getString(data, "toRole")),
			Message:  getString(data, "message"),
		})
	case "complete":
		return e.Complete(ctx, CompleteRequest{
			TaskID:         getString(data, "taskId"),
			Role:           task.Role(getString(data, "roleId")),
			Status:         task.Status(getString(data, "status")),
			CompletionData: getMap(data, "completionData"),
			NextRole:       task.Role(getString(data, "nextRole")),
		})
	case "escalate":
		return e.Escalate(ctx, EscalateRequest{
			TaskID:   getString(data, "taskId"),
			FromRole: task.Role(getString(data, "fromRole")),
			Reason:   getString(data, "reason"),
		})
	case "transition":
		return e.Transition(ctx, TransitionRequest{
			TaskID:    getString(data, "taskId"),
			FromRole:  task.Role(getString(data, "fromRole")),
			ToRole:    task.Role(getString(data, "toRole")),
			NewStatus: task.Status(getString(data, "newStatus")),
			Reason:    getString(data, "reason"),
		})
	}
	return nil, errf(CodeNotFound, "workflow.workflow-operations", "unknown operation %s", operation)
}

// --- payload helpers ---

func getString(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func getMap(data map[string]any, key string) map[string]any {
	if data == nil {
		return nil
	}
	m, _ := data[key].(map[string]any)
	return m
}

func getStringSlice(data map[string]any, key string) []string {
	if data == nil {
		return nil
	}
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getInt(data map[string]any, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
