package workflow

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/overseer/internal/store"
	"github.com/nidhogg/overseer/internal/task"
)

// brokenSteps fails step listing to exercise the degraded path.
type brokenSteps struct{ task.Store }

func (brokenSteps) ListSteps(ctx context.Context, f task.StepFilter) ([]*task.WorkflowStep, error) {
	return nil, errors.New("catalog unavailable")
}

// brokenProgress fails only the per-task progress read.
type brokenProgress struct{ task.Store }

func (brokenProgress) ListStepProgress(ctx context.Context, taskID string) ([]*task.StepProgress, error) {
	return nil, errors.New("progress unavailable")
}

// brokenSubtasks fails the subtask read the developer fold relies on.
type brokenSubtasks struct{ task.Store }

func (brokenSubtasks) ListSubtasks(ctx context.Context, f task.SubtaskFilter) ([]*task.Subtask, error) {
	return nil, errors.New("subtasks unavailable")
}

func TestProgressMetricsAcrossRoles(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")

	tk := &task.Task{ID: "t1", Name: "T", Slug: "t", Status: task.StatusInProgress, Owner: task.RoleResearcher}
	exec := &task.Execution{ID: "x1", TaskID: "t1", CurrentRole: task.RoleResearcher, CurrentStep: "research-gather", Status: task.ExecutionActive}

	for _, stepID := range []string{"coord-intake", "coord-delegate"} {
		if err := mem.UpsertStepProgress(ctx, &task.StepProgress{
			ID: "p-" + stepID, TaskID: "t1", StepID: stepID,
			RoleID: task.RoleCoordinator, Status: task.StepCompleted,
		}); err != nil {
			t.Fatalf("seed progress: %v", err)
		}
	}
	// Skipped steps count as done.
	if err := mem.UpsertStepProgress(ctx, &task.StepProgress{
		ID: "p-skip", TaskID: "t1", StepID: "research-gather",
		RoleID: task.RoleResearcher, Status: task.StepSkipped,
	}); err != nil {
		t.Fatalf("seed skipped: %v", err)
	}

	m := e.progressFor(ctx, tk, exec)
	if m.Degraded {
		t.Fatal("degraded on a healthy store")
	}
	if m.TotalSteps != 6 || m.CompletedSteps != 3 || m.OverallProgress != 50 {
		t.Fatalf("metrics = %d/%d %d%%, want 3/6 50%%", m.CompletedSteps, m.TotalSteps, m.OverallProgress)
	}
	if m.CurrentRole != task.RoleResearcher || m.CurrentStep != "research-gather" {
		t.Errorf("cursor = %s/%s", m.CurrentRole, m.CurrentStep)
	}
	// The cursor step is done, so its own figure reads full.
	if m.CurrentStepProgress != 100 {
		t.Errorf("current step progress = %d, want 100", m.CurrentStepProgress)
	}
	// First uncompleted step in pipeline order is the architect's.
	if m.NextMilestone != "Write the Plan" {
		t.Errorf("next milestone = %q, want Write the Plan", m.NextMilestone)
	}
	// Role breakdown follows the pipeline order.
	if len(m.Roles) != 5 || m.Roles[0].Role != task.RoleCoordinator || m.Roles[1].Role != task.RoleResearcher {
		t.Fatalf("roles = %+v", m.Roles)
	}
	if m.Roles[0].Completed != 2 || m.Roles[1].Completed != 1 || m.Roles[2].Completed != 0 {
		t.Errorf("per-role completion = %+v", m.Roles)
	}
}

func TestProgressFoldsSubtasksIntoCurrentStep(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")

	tk := &task.Task{ID: "t1", Status: task.StatusInProgress, Owner: task.RoleSeniorDeveloper}
	exec := &task.Execution{ID: "x1", TaskID: "t1", CurrentRole: task.RoleSeniorDeveloper, CurrentStep: "dev-implement", Status: task.ExecutionActive}

	statuses := []task.SubtaskStatus{
		task.SubtaskCompleted, task.SubtaskInProgress, task.SubtaskNotStarted, task.SubtaskNotStarted,
	}
	for i, status := range statuses {
		if err := mem.CreateSubtask(ctx, &task.Subtask{
			ID: string(rune('a' + i)), TaskID: "t1", Name: string(rune('a' + i)),
			Sequence: i + 1, Status: status, BatchID: "b1",
		}); err != nil {
			t.Fatalf("seed subtask: %v", err)
		}
	}

	m := e.progressFor(ctx, tk, exec)
	if m.CurrentStepProgress != 25 {
		t.Fatalf("current step progress = %d, want 25 (1 of 4 subtasks)", m.CurrentStepProgress)
	}

	// A subtask read failure zeroes the metrics like any other store error.
	broken := New(brokenSubtasks{mem}, nil, nil, "", zap.NewNop())
	m = broken.progressFor(ctx, tk, exec)
	if !m.Degraded || m.CurrentStepProgress != 0 {
		t.Errorf("broken subtasks: %+v, want degraded zeroes", m)
	}
}

func TestProgressCurrentStepWithoutSubtasks(t *testing.T) {
	ctx := context.Background()
	e, mem, _, _ := newTestEngine(t, "")

	tk := &task.Task{ID: "t1", Status: task.StatusInProgress, Owner: task.RoleArchitect}
	exec := &task.Execution{ID: "x1", TaskID: "t1", CurrentRole: task.RoleArchitect, CurrentStep: "arch-plan", Status: task.ExecutionActive}

	// No progress row yet: the step has not moved.
	if m := e.progressFor(ctx, tk, exec); m.CurrentStepProgress != 0 {
		t.Errorf("untouched step = %d, want 0", m.CurrentStepProgress)
	}

	if err := mem.UpsertStepProgress(ctx, &task.StepProgress{
		ID: "p1", TaskID: "t1", StepID: "arch-plan",
		RoleID: task.RoleArchitect, Status: task.StepInProgress,
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	if m := e.progressFor(ctx, tk, exec); m.CurrentStepProgress != 50 {
		t.Errorf("in-progress step = %d, want 50", m.CurrentStepProgress)
	}
}

func TestProgressFullWhenTaskCompleted(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "")
	tk := &task.Task{ID: "t1", Status: task.StatusCompleted, Owner: task.RoleCoordinator}
	m := e.progressFor(context.Background(), tk, nil)
	if m.OverallProgress != 100 || m.CurrentStepProgress != 100 {
		t.Fatalf("progress = %d/%d, want 100/100 for a completed task", m.OverallProgress, m.CurrentStepProgress)
	}
	if m.NextMilestone != "" {
		t.Errorf("next milestone = %q, want none", m.NextMilestone)
	}
	if m.CurrentRole != task.RoleCoordinator {
		t.Errorf("current role = %s, want owner fallback", m.CurrentRole)
	}
}

func TestProgressDegradesInsteadOfFailing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedSteps(t, mem)

	tk := &task.Task{ID: "t1", Status: task.StatusInProgress, Owner: task.RoleArchitect}
	exec := &task.Execution{ID: "x1", TaskID: "t1", CurrentRole: task.RoleArchitect, CurrentStep: "arch-plan"}

	for name, st := range map[string]task.Store{
		"steps fail":    brokenSteps{mem},
		"progress fail": brokenProgress{mem},
	} {
		e := New(st, nil, nil, "", zap.NewNop())
		m := e.progressFor(ctx, tk, exec)
		if !m.Degraded {
			t.Errorf("%s: not flagged degraded", name)
		}
		if m.TotalSteps != 0 || m.CompletedSteps != 0 || m.OverallProgress != 0 {
			t.Errorf("%s: degraded metrics not zeroed: %+v", name, m)
		}
		// The cursor survives so guidance still says where the task is.
		if m.CurrentRole != task.RoleArchitect || m.CurrentStep != "arch-plan" {
			t.Errorf("%s: cursor lost: %s/%s", name, m.CurrentRole, m.CurrentStep)
		}
	}
}

func TestGuidanceSurvivesDegradedProgress(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedSteps(t, mem)
	e := New(mem, nil, nil, "", zap.NewNop())
	created := bootstrapTask(t, e, "Degraded but alive")

	// Swap the engine's store for one that cannot list steps for
	// progress; guidance must still produce an envelope.
	broken := New(progressOnlyBroken{mem}, nil, nil, "", zap.NewNop())
	env, err := broken.Guidance(ctx, created.Task.ID, task.RoleCoordinator)
	if err != nil {
		t.Fatalf("guidance with degraded progress: %v", err)
	}
	body := env.Envelope.(*GuidanceBody)
	if !body.Progress.Degraded {
		t.Error("progress not flagged degraded")
	}
	if body.Guidance == nil || body.Validation == nil || body.RequiredInputs == nil {
		t.Error("degraded progress dropped unrelated envelope sections")
	}
}

// progressOnlyBroken fails ListStepProgress but leaves step listing
// intact so step resolution works.
type progressOnlyBroken struct{ task.Store }

func (progressOnlyBroken) ListStepProgress(ctx context.Context, taskID string) ([]*task.StepProgress, error) {
	return nil, errors.New("progress unavailable")
}
