package workflow

import (
	"context"
	"testing"

	"github.com/nidhogg/overseer/internal/task"
)

func executionBody(t *testing.T, env *Envelope, err error) *ExecutionBody {
	t.Helper()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	body, ok := env.Envelope.(*ExecutionBody)
	if !ok {
		t.Fatalf("expected ExecutionBody, got %T", env.Envelope)
	}
	return body
}

func TestExecuteUnknownOperation(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "")
	_, err := e.Execute(context.Background(), ExecuteRequest{
		Service: "TimeTravelOperations", Operation: "undo",
	})
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("code = %s, want NOT_FOUND", CodeOf(err))
	}
	_, err = e.Execute(context.Background(), ExecuteRequest{
		Service: SvcTask, Operation: "obliterate",
	})
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("code = %s, want NOT_FOUND", CodeOf(err))
	}
}

func TestExecuteReportsMissingInputs(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "")
	_, err := e.Execute(context.Background(), ExecuteRequest{
		Service: SvcTask, Operation: "create",
		Data: map[string]any{"description": "half a request"},
	})
	if CodeOf(err) != CodeValidationFailure {
		t.Fatalf("code = %s, want VALIDATION_FAILURE", CodeOf(err))
	}
	fields := FieldsOf(err)
	want := map[string]bool{
		"taskData": true, "codebaseAnalysis": true,
		"businessRequirements": true, "technicalRequirements": true, "acceptanceCriteria": true,
	}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want the %d absent inputs", fields, len(want))
	}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected field %q in %v", f, fields)
		}
	}
}

func TestExecuteCreateTask(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")

	env, err := e.Execute(ctx, ExecuteRequest{
		Service: SvcTask, Operation: "create",
		Data: map[string]any{
			"taskData":    map[string]any{"name": "Wire the cache", "priority": "high"},
			"description": "add a read-through cache",
			"codebaseAnalysis": map[string]any{
				"architectureFindings": map[string]any{"layers": "storage is behind one interface"},
				"technologyStack":      []any{"go", "postgres"},
			},
			"businessRequirements":  "reads dominate and latency is user-visible",
			"technicalRequirements": "cache sits behind the existing storage interface",
			"acceptanceCriteria":    []any{"cache hit ratio is observable"},
		},
	})
	if err != nil {
		t.Fatalf("execute create: %v", err)
	}
	body, ok := env.Envelope.(*BootstrapBody)
	if !ok {
		t.Fatalf("create should bootstrap, got %T", env.Envelope)
	}
	if body.Task.Priority != task.PriorityHigh {
		t.Errorf("priority = %s, want high", body.Task.Priority)
	}

	stored, err := mem.GetTask(ctx, body.Task.ID)
	if err != nil {
		t.Fatalf("stored task: %v", err)
	}
	if stored.Analysis == nil || len(stored.Analysis.TechnologyStack) != 2 {
		t.Errorf("analysis = %+v", stored.Analysis)
	}
	if stored.Description.AcceptanceCriteria[0] != "cache hit ratio is observable" {
		t.Errorf("criteria = %v", stored.Description.AcceptanceCriteria)
	}
	if stored.Description.BusinessRequirements == "" || stored.Description.TechnicalRequirements == "" {
		t.Errorf("requirements dropped: %+v", stored.Description)
	}
}

func TestExecuteUpdateTaskOwnership(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Renamed task")

	// A non-owner cannot update.
	_, err := e.Execute(ctx, ExecuteRequest{
		TaskID: created.Task.ID, RoleID: task.RoleResearcher,
		Service: SvcTask, Operation: "update",
		Data: map[string]any{"name": "hijacked"},
	})
	if CodeOf(err) != CodeInvalidOwnership {
		t.Fatalf("code = %s, want INVALID_OWNERSHIP", CodeOf(err))
	}

	body := executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: created.Task.ID, RoleID: task.RoleCoordinator,
		Service: SvcTask, Operation: "update",
		Data: map[string]any{"name": "Renamed properly", "priority": "critical"},
	}))
	if body.Metadata.Service != SvcTask || body.Metadata.Operation != "update" {
		t.Errorf("metadata = %+v", body.Metadata)
	}
	stored, _ := mem.GetTask(ctx, created.Task.ID)
	if stored.Name != "Renamed properly" || stored.Priority != task.PriorityCritical {
		t.Errorf("task = %q/%s", stored.Name, stored.Priority)
	}
}

func TestExecuteGetWithAudit(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Audited task")

	body := executionBody(t, e.Execute(ctx, ExecuteRequest{
		Service: SvcTask, Operation: "get",
		Data: map[string]any{"taskId": created.Task.ID, "includeAudit": true},
	}))
	result, ok := body.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want map", body.Result)
	}
	trs, ok := result["transitions"].([]*task.Transition)
	if !ok || len(trs) != 1 {
		t.Fatalf("transitions = %v", result["transitions"])
	}
}

func TestExecuteWorkflowDelegate(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Dispatched handoff")

	env, err := e.Execute(ctx, ExecuteRequest{
		Service: SvcWorkflow, Operation: "delegate",
		Data: map[string]any{
			"taskId":   created.Task.ID,
			"fromRole": "coordinator",
			"toRole":   "researcher",
			"message":  "please investigate",
		},
	})
	if err != nil {
		t.Fatalf("execute delegate: %v", err)
	}
	if _, ok := env.Envelope.(*TransitionBody); !ok {
		t.Fatalf("delegate through execute should return TransitionBody, got %T", env.Envelope)
	}
	stored, _ := mem.GetTask(ctx, created.Task.ID)
	if stored.Owner != task.RoleResearcher {
		t.Errorf("owner = %s, want researcher", stored.Owner)
	}
}

func TestExecutePlanningAndSubtaskFlow(t *testing.T) {
	ctx := context.Background()
	e, mem, sink, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Planned feature")
	taskID := created.Task.ID

	transitionBody(t, e.Delegate(ctx, DelegateRequest{
		TaskID: taskID, FromRole: task.RoleCoordinator, ToRole: task.RoleArchitect,
	}))

	planBody := executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleArchitect,
		Service: SvcPlanning, Operation: "create_plan",
		Data: map[string]any{
			"title":    "Cache rollout",
			"overview": "introduce the cache behind the storage interface",
			"approach": map[string]any{"phases": []any{"schema", "api", "tests"}},
		},
	}))
	plan, ok := planBody.Result.(*task.Plan)
	if !ok {
		t.Fatalf("plan result = %T", planBody.Result)
	}
	if plan.CreatedBy != task.RoleArchitect {
		t.Errorf("plan.createdBy = %s, want architect", plan.CreatedBy)
	}

	batchBody := executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleArchitect,
		Service: SvcPlanning, Operation: "create_subtasks",
		Data: map[string]any{
			"planId": plan.ID,
			"batchData": map[string]any{
				"batchTitle": "cache-rollout-1",
				"subtasks": []any{
					map[string]any{"name": "db-schema", "description": "add cache tables"},
					map[string]any{"name": "api-layer", "dependsOn": []any{"db-schema"}},
					map[string]any{"name": "tests", "dependsOn": []any{"api-layer"}},
				},
			},
		},
	}))
	batch, _ := batchBody.Result.(map[string]any)
	if batch["count"] != 3 {
		t.Fatalf("batch result = %+v, want 3 subtasks", batch)
	}
	batchID, _ := batch["batchId"].(string)
	if batchID == "" {
		t.Fatal("batch id missing from result")
	}

	// Name references resolved into real dependency edges.
	subtasks, _ := mem.ListSubtasks(ctx, task.SubtaskFilter{TaskID: taskID})
	if len(subtasks) != 3 {
		t.Fatalf("stored subtasks = %d, want 3", len(subtasks))
	}
	if subtasks[0].Name != "db-schema" || subtasks[0].Sequence != 1 {
		t.Errorf("first subtask = %+v", subtasks[0])
	}
	if len(subtasks[1].DependsOn) != 1 || subtasks[1].DependsOn[0] != subtasks[0].ID {
		t.Errorf("api-layer deps = %v, want [%s]", subtasks[1].DependsOn, subtasks[0].ID)
	}

	transitionBody(t, e.Delegate(ctx, DelegateRequest{
		TaskID: taskID, FromRole: task.RoleArchitect, ToRole: task.RoleSeniorDeveloper,
	}))

	nextBody := executionBody(t, e.Execute(ctx, ExecuteRequest{
		Service: SvcSubtask, Operation: "get_next_subtask",
		Data: map[string]any{"taskId": taskID},
	}))
	next, _ := nextBody.Result.(map[string]any)
	first, ok := next["subtask"].(*task.Subtask)
	if !ok || first.Name != "db-schema" {
		t.Fatalf("next subtask = %+v, want db-schema", next["subtask"])
	}
	if next["remaining"] != 3 {
		t.Errorf("remaining = %v, want 3", next["remaining"])
	}

	// Dependents stay blocked until their dependencies complete.
	_, err := e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleSeniorDeveloper,
		Service: SvcSubtask, Operation: "update_subtask",
		Data: map[string]any{"subtaskId": subtasks[1].ID, "status": "in-progress"},
	})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("blocked start: code = %s, want INVALID_STATE", CodeOf(err))
	}

	for _, st := range subtasks {
		executionBody(t, e.Execute(ctx, ExecuteRequest{
			TaskID: taskID, RoleID: task.RoleSeniorDeveloper,
			Service: SvcSubtask, Operation: "complete_subtask",
			Data: map[string]any{
				"subtaskId":          st.ID,
				"completionEvidence": map[string]any{"commit": "abc123"},
			},
		}))
	}

	doneBody := executionBody(t, e.Execute(ctx, ExecuteRequest{
		Service: SvcSubtask, Operation: "get_next_subtask",
		Data: map[string]any{"taskId": taskID},
	}))
	done, _ := doneBody.Result.(map[string]any)
	if done["remaining"] != 0 || done["subtask"] != nil {
		t.Fatalf("after completion: %+v, want nothing remaining", done)
	}

	if !sink.has(task.EventBatchCompleted) {
		t.Errorf("events = %v, want batch-completed", sink.types())
	}

	stored, _ := mem.GetSubtask(ctx, subtasks[2].ID)
	if stored.Status != task.SubtaskCompleted || stored.CompletedAt == nil {
		t.Errorf("last subtask = %+v, want completed with timestamp", stored)
	}
	if stored.CompletionEvidence["commit"] != "abc123" {
		t.Errorf("evidence = %+v", stored.CompletionEvidence)
	}
}

func TestExecuteSubtaskCannotMoveBackward(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Backward subtask")

	if err := mem.CreateSubtask(ctx, &task.Subtask{
		ID: "st-1", TaskID: created.Task.ID, Name: "only", Sequence: 1,
		Status: task.SubtaskCompleted, BatchID: "b1",
	}); err != nil {
		t.Fatalf("seed subtask: %v", err)
	}

	_, err := e.Execute(ctx, ExecuteRequest{
		Service: SvcSubtask, Operation: "update_subtask",
		Data: map[string]any{"subtaskId": "st-1", "status": "in-progress"},
	})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("code = %s, want INVALID_STATE", CodeOf(err))
	}
}

func TestExecuteUpdateBatch(t *testing.T) {
	ctx := context.Background()
	e, mem, sink, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Batched work")
	taskID := created.Task.ID

	for i, name := range []string{"one", "two"} {
		if err := mem.CreateSubtask(ctx, &task.Subtask{
			ID: name, TaskID: taskID, Name: name, Sequence: i + 1,
			Status: task.SubtaskInProgress, BatchID: "batch-a",
		}); err != nil {
			t.Fatalf("seed subtask: %v", err)
		}
	}

	body := executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleCoordinator,
		Service: SvcPlanning, Operation: "update_batch",
		Data: map[string]any{"batchId": "batch-a", "newStatus": "completed"},
	}))
	result, _ := body.Result.(map[string]any)
	if result["updated"] != 2 {
		t.Fatalf("result = %+v, want 2 updated", result)
	}
	for _, id := range []string{"one", "two"} {
		st, _ := mem.GetSubtask(ctx, id)
		if st.Status != task.SubtaskCompleted || st.CompletedAt == nil {
			t.Errorf("subtask %s = %+v, want completed", id, st)
		}
	}
	if !sink.has(task.EventBatchCompleted) {
		t.Errorf("events = %v, want batch-completed", sink.types())
	}

	_, err := e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleCoordinator,
		Service: SvcPlanning, Operation: "update_batch",
		Data: map[string]any{"batchId": "no-such-batch", "newStatus": "completed"},
	})
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("empty batch: code = %s, want NOT_FOUND", CodeOf(err))
	}
}

func TestExecuteReviewOperations(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Reviewed code")
	taskID := created.Task.ID

	transitionBody(t, e.Delegate(ctx, DelegateRequest{
		TaskID: taskID, FromRole: task.RoleCoordinator, ToRole: task.RoleCodeReview,
	}))

	_, err := e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleCodeReview,
		Service: SvcReview, Operation: "create_review",
		Data: map[string]any{"verdict": "looks-fine", "summary": "ok"},
	})
	if CodeOf(err) != CodeValidationFailure {
		t.Fatalf("bogus verdict: code = %s, want VALIDATION_FAILURE", CodeOf(err))
	}

	// needs-changes must name the changes.
	_, err = e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleCodeReview,
		Service: SvcReview, Operation: "create_review",
		Data: map[string]any{"verdict": "needs-changes", "summary": "gaps found"},
	})
	if CodeOf(err) != CodeValidationFailure {
		t.Fatalf("empty changes: code = %s, want VALIDATION_FAILURE", CodeOf(err))
	}

	body := executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleCodeReview,
		Service: SvcReview, Operation: "create_review",
		Data: map[string]any{
			"verdict":         "needs-changes",
			"summary":         "error paths untested",
			"requiredChanges": []any{"cover the rollback path"},
		},
	}))
	review, ok := body.Result.(*task.CodeReview)
	if !ok || review.Verdict != task.VerdictNeedsChanges {
		t.Fatalf("review = %+v", body.Result)
	}

	getBody := executionBody(t, e.Execute(ctx, ExecuteRequest{
		Service: SvcReview, Operation: "get_review",
		Data: map[string]any{"taskId": taskID},
	}))
	fetched, _ := getBody.Result.(*task.CodeReview)
	if fetched == nil || fetched.ID != review.ID {
		t.Fatalf("fetched review = %+v, want %s", fetched, review.ID)
	}

	// The recorded verdict surfaces in the validation context.
	env, err := e.Guidance(ctx, taskID, task.RoleCodeReview)
	if err != nil {
		t.Fatalf("guidance: %v", err)
	}
	guidance := env.Envelope.(*GuidanceBody)
	if guidance.Validation.ReviewVerdict != string(task.VerdictNeedsChanges) {
		t.Errorf("validation verdict = %q", guidance.Validation.ReviewVerdict)
	}
	if len(guidance.Validation.RequiredChanges) != 1 {
		t.Errorf("required changes = %v", guidance.Validation.RequiredChanges)
	}
}

func TestExecuteResearchOperations(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Researched topic")
	taskID := created.Task.ID

	transitionBody(t, e.Delegate(ctx, DelegateRequest{
		TaskID: taskID, FromRole: task.RoleCoordinator, ToRole: task.RoleResearcher,
	}))

	executionBody(t, e.Execute(ctx, ExecuteRequest{
		TaskID: taskID, RoleID: task.RoleResearcher,
		Service: SvcResearch, Operation: "create_research",
		Data: map[string]any{
			"title":      "Cache options",
			"summary":    "redis fits the access pattern",
			"references": []any{"docs/cache.md"},
		},
	}))
	rr, err := mem.GetResearchReport(ctx, taskID)
	if err != nil {
		t.Fatalf("stored research: %v", err)
	}
	if rr.CreatedBy != task.RoleResearcher || len(rr.References) != 1 {
		t.Errorf("report = %+v", rr)
	}

	_, err = e.Execute(ctx, ExecuteRequest{
		Service: SvcResearch, Operation: "add_comment",
		Data: map[string]any{"taskId": taskID, "content": "note", "author": "ghost"},
	})
	if CodeOf(err) != CodeValidationFailure {
		t.Fatalf("bogus author: code = %s, want VALIDATION_FAILURE", CodeOf(err))
	}

	executionBody(t, e.Execute(ctx, ExecuteRequest{
		Service: SvcResearch, Operation: "add_comment",
		Data: map[string]any{
			"taskId": taskID, "content": "compare memory footprints too",
			"author": "coordinator",
		},
	}))
	comments, _ := mem.ListComments(ctx, taskID)
	if len(comments) != 1 || comments[0].Author != task.RoleCoordinator {
		t.Errorf("comments = %+v", comments)
	}
}

func TestExecuteRejectsTerminalTask(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t, "")
	created := bootstrapTask(t, e, "Closed task")

	transitionBody(t, e.Complete(ctx, CompleteRequest{
		TaskID: created.Task.ID, Role: task.RoleCoordinator, Status: task.StatusCompleted,
	}))

	_, err := e.Execute(ctx, ExecuteRequest{
		TaskID: created.Task.ID, RoleID: task.RoleCoordinator,
		Service: SvcPlanning, Operation: "create_plan",
		Data: map[string]any{"title": "too late", "overview": "n/a"},
	})
	if CodeOf(err) != CodeInvalidState {
		t.Fatalf("code = %s, want INVALID_STATE", CodeOf(err))
	}
}
