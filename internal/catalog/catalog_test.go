package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/nidhogg/overseer/internal/store"
	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/workflow"
)

func TestBuiltinCatalogShape(t *testing.T) {
	steps := Builtin()
	if len(steps) == 0 {
		t.Fatal("builtin catalog is empty")
	}

	stepIDs := make(map[string]bool)
	actionIDs := make(map[string]bool)
	byRole := make(map[task.Role][]int)
	for _, s := range steps {
		if stepIDs[s.ID] {
			t.Errorf("duplicate step id %q", s.ID)
		}
		stepIDs[s.ID] = true
		if !s.RoleID.Valid() {
			t.Errorf("step %s has unknown role %q", s.ID, s.RoleID)
		}
		if s.Description == "" {
			t.Errorf("step %s has no description", s.ID)
		}
		byRole[s.RoleID] = append(byRole[s.RoleID], s.Sequence)

		for _, a := range s.Actions {
			if actionIDs[a.ID] {
				t.Errorf("duplicate action id %q", a.ID)
			}
			actionIDs[a.ID] = true
			if a.StepID != s.ID {
				t.Errorf("action %s claims step %q, belongs to %q", a.ID, a.StepID, s.ID)
			}
		}
	}

	for _, role := range task.RoleSequence {
		seqs := byRole[role]
		if len(seqs) == 0 {
			t.Errorf("role %s has no steps", role)
			continue
		}
		sort.Ints(seqs)
		for i, seq := range seqs {
			if seq != i+1 {
				t.Errorf("role %s sequences are not contiguous: %v", role, seqs)
				break
			}
		}
	}
}

func TestBuiltinServiceCallsResolve(t *testing.T) {
	for _, s := range Builtin() {
		for _, a := range s.Actions {
			if a.Type != task.ActionServiceCall {
				continue
			}
			if _, ok := workflow.LookupContract(a.ServiceName, a.Operation); !ok {
				t.Errorf("action %s targets unknown operation %s.%s", a.ID, a.ServiceName, a.Operation)
			}
		}
	}
}

func TestSeedWritesAllSteps(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	steps := Builtin()
	if err := Seed(ctx, st, steps); err != nil {
		t.Fatalf("seed: %v", err)
	}

	total := 0
	for _, role := range task.RoleSequence {
		got, err := st.ListSteps(ctx, task.StepFilter{RoleID: role})
		if err != nil {
			t.Fatalf("list steps for %s: %v", role, err)
		}
		total += len(got)
	}
	if total != len(steps) {
		t.Fatalf("got %d stored steps, want %d", total, len(steps))
	}
}

func TestLoadDirMissingIsEmpty(t *testing.T) {
	steps, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if steps != nil {
		t.Fatalf("got %d steps from a missing dir", len(steps))
	}
}

func TestLoadDirNormalizesActions(t *testing.T) {
	dir := t.TempDir()
	step := &task.WorkflowStep{
		ID: "coordinator-custom", RoleID: task.RoleCoordinator,
		Name: "custom", Sequence: 4,
		Description: "Deployment specific follow-up.",
		Actions: []task.StepAction{
			{Name: "notify-channel", Type: task.ActionCommand, Sequence: 1},
		},
	}
	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "custom.json"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Non-JSON clutter is skipped.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	steps, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	a := steps[0].Actions[0]
	if a.ID != "coordinator-custom-notify-channel" {
		t.Errorf("action id not backfilled: %q", a.ID)
	}
	if a.StepID != "coordinator-custom" {
		t.Errorf("action step id not backfilled: %q", a.StepID)
	}
	if steps[0].DisplayName != "custom" {
		t.Errorf("display name not defaulted: %q", steps[0].DisplayName)
	}
}

func TestLoadDirRejectsBrokenServiceCall(t *testing.T) {
	dir := t.TempDir()
	step := &task.WorkflowStep{
		ID: "researcher-broken", RoleID: task.RoleResearcher,
		Name: "broken", Sequence: 4,
		Description: "Service call without a target.",
		Actions: []task.StepAction{
			{Name: "call-nothing", Type: task.ActionServiceCall, Sequence: 1},
		},
	}
	data, _ := json.Marshal(step)
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected an error for a service call without a target")
	}
}

func TestMergeReplacesByID(t *testing.T) {
	base := Builtin()
	replacement := &task.WorkflowStep{
		ID: "coordinator-intake", RoleID: task.RoleCoordinator,
		Name: "intake", Sequence: 1,
		Description: "Replaced by deployment config.",
	}
	extraStep := &task.WorkflowStep{
		ID: "review-extra", RoleID: task.RoleCodeReview,
		Name: "extra", Sequence: 4,
		Description: "Appended by deployment config.",
	}

	merged := Merge(base, []*task.WorkflowStep{replacement, extraStep})
	if len(merged) != len(base)+1 {
		t.Fatalf("got %d steps, want %d", len(merged), len(base)+1)
	}
	if merged[0].Description != "Replaced by deployment config." {
		t.Errorf("replacement did not land in place: %q", merged[0].Description)
	}
	if merged[len(merged)-1].ID != "review-extra" {
		t.Errorf("new step not appended, tail is %q", merged[len(merged)-1].ID)
	}
	// Merge must not mutate the builtin slice.
	if base[0].Description == "Replaced by deployment config." {
		t.Error("merge mutated its input")
	}
}
