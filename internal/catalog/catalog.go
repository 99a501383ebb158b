// Package catalog holds the workflow step definitions the guidance
// engine serves. The builtin set covers the full role pipeline;
// deployments can replace or extend individual steps from a directory
// of JSON files.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nidhogg/overseer/internal/task"
)

// LoadDir reads step definitions from dir, one JSON file per step.
// A missing directory is not an error; it simply contributes nothing.
func LoadDir(dir string) ([]*task.WorkflowStep, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading catalog dir: %w", err)
	}

	var steps []*task.WorkflowStep
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading step %s: %w", entry.Name(), err)
		}
		var step task.WorkflowStep
		if err := json.Unmarshal(data, &step); err != nil {
			return nil, fmt.Errorf("loading step %s: %w", entry.Name(), err)
		}
		if err := normalize(&step); err != nil {
			return nil, fmt.Errorf("loading step %s: %w", entry.Name(), err)
		}
		steps = append(steps, &step)
	}
	return steps, nil
}

// Merge overlays extra onto base. A step with a known ID replaces the
// builtin in place; unknown IDs are appended in their own order.
func Merge(base, extra []*task.WorkflowStep) []*task.WorkflowStep {
	if len(extra) == 0 {
		return base
	}
	byID := make(map[string]int, len(base))
	merged := make([]*task.WorkflowStep, len(base))
	copy(merged, base)
	for i, s := range merged {
		byID[s.ID] = i
	}
	for _, s := range extra {
		if i, ok := byID[s.ID]; ok {
			merged[i] = s
			continue
		}
		byID[s.ID] = len(merged)
		merged = append(merged, s)
	}
	return merged
}

// Seed writes the given steps to the store, replacing any existing
// definitions with the same IDs.
func Seed(ctx context.Context, st task.Store, steps []*task.WorkflowStep) error {
	for _, step := range steps {
		if err := normalize(step); err != nil {
			return fmt.Errorf("seeding step %s: %w", step.ID, err)
		}
		if err := st.SaveStep(ctx, step); err != nil {
			return fmt.Errorf("seeding step %s: %w", step.ID, err)
		}
	}
	return nil
}

// normalize backfills action identifiers and rejects steps the engine
// could not serve.
func normalize(step *task.WorkflowStep) error {
	if step.ID == "" {
		return fmt.Errorf("step has no id")
	}
	if !step.RoleID.Valid() {
		return fmt.Errorf("unknown role %q", step.RoleID)
	}
	if step.Sequence < 1 {
		return fmt.Errorf("sequence must be positive, got %d", step.Sequence)
	}
	if step.Name == "" {
		step.Name = step.ID
	}
	if step.DisplayName == "" {
		step.DisplayName = step.Name
	}
	for i := range step.Actions {
		a := &step.Actions[i]
		if a.Name == "" {
			return fmt.Errorf("action %d has no name", i)
		}
		if a.ID == "" {
			a.ID = step.ID + "-" + a.Name
		}
		if a.StepID == "" {
			a.StepID = step.ID
		}
		if a.Type == task.ActionServiceCall && (a.ServiceName == "" || a.Operation == "") {
			return fmt.Errorf("action %s is a service call without a target", a.Name)
		}
	}
	return nil
}
