package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/overseer/internal/task"
)

// planningOps handles PlanningOperations: the architect's plan and the
// subtask batches carved out of it.
func (e *Engine) planningOps(ctx context.Context, operation string, data map[string]any) (any, string, error) {
	const op = "workflow.planning-operations"

	switch operation {
	case "create_plan":
		p := &task.Plan{
			ID:        uuid.NewString(),
			TaskID:    getString(data, "taskId"),
			Title:     getString(data, "title"),
			Overview:  getString(data, "overview"),
			Approach:  getMap(data, "approach"),
			CreatedBy: task.Role(getString(data, "roleId")),
			CreatedAt: time.Now().UTC(),
		}
		p.UpdatedAt = p.CreatedAt
		if err := e.store.CreatePlan(ctx, p); err != nil {
			return nil, "", wrap(op, err)
		}
		return p, "implementation plan created", nil

	case "get_plan":
		p, err := e.store.GetPlan(ctx, getString(data, "taskId"))
		if err != nil {
			return nil, "", wrap(op, err)
		}
		return p, "", nil

	case "create_subtasks":
		return e.createSubtaskBatch(ctx, data)

	case "update_batch":
		return e.updateBatch(ctx, data)
	}
	return nil, "", errf(CodeNotFound, op, "unknown operation %s", operation)
}

// createSubtaskBatch creates every subtask in batchData atomically.
// dependsOn entries may name sibling subtasks in the same batch; those
// names resolve to the generated IDs before anything is written.
func (e *Engine) createSubtaskBatch(ctx context.Context, data map[string]any) (any, string, error) {
	const op = "workflow.planning-operations"

	taskID := getString(data, "taskId")
	batch := getMap(data, "batchData")
	items, _ := batch["subtasks"].([]any)
	if len(items) == 0 {
		return nil, "", validationErr(op, "batchData.subtasks must not be empty", "batchData")
	}

	batchID := getString(batch, "batchId")
	if batchID == "" {
		batchID = uuid.NewString()
	}
	batchTitle := getString(batch, "batchTitle")
	planID := getString(data, "planId")
	now := time.Now().UTC()

	subtasks := make([]*task.Subtask, 0, len(items))
	idByName := make(map[string]string, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, "", validationErr(op, fmt.Sprintf("batchData.subtasks[%d] is not an object", i), "batchData")
		}
		name := getString(fields, "name")
		if name == "" {
			return nil, "", validationErr(op, fmt.Sprintf("batchData.subtasks[%d] has no name", i), "batchData")
		}
		seq := getInt(fields, "sequence")
		if seq == 0 {
			seq = i + 1
		}
		st := &task.Subtask{
			ID:                uuid.NewString(),
			TaskID:            taskID,
			PlanID:            planID,
			Name:              name,
			Description:       getString(fields, "description"),
			Sequence:          seq,
			Status:            task.SubtaskNotStarted,
			BatchID:           batchID,
			BatchTitle:        batchTitle,
			EstimatedDuration: getString(fields, "estimatedDuration"),
			StrategicGuidance: getMap(fields, "strategicGuidance"),
			DependsOn:         getStringSlice(fields, "dependsOn"),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		subtasks = append(subtasks, st)
		idByName[name] = st.ID
	}
	for _, st := range subtasks {
		for i, dep := range st.DependsOn {
			if id, ok := idByName[dep]; ok {
				st.DependsOn[i] = id
			}
		}
	}

	err := e.store.Atomic(ctx, func(s task.Store) error {
		for _, st := range subtasks {
			if err := s.CreateSubtask(ctx, st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", wrap(op, err)
	}

	e.emit(ctx, &task.Event{
		Type:    task.EventSubtaskUpdated,
		TaskID:  taskID,
		Message: fmt.Sprintf("batch %q created with %d subtasks", batchTitle, len(subtasks)),
		Detail:  map[string]any{"batch_id": batchID, "count": len(subtasks)},
	})

	return map[string]any{
		"batchId":  batchID,
		"planId":   planID,
		"count":    len(subtasks),
		"subtasks": subtasks,
	}, fmt.Sprintf("created %d subtasks in batch %s", len(subtasks), batchID), nil
}

// updateBatch applies one status to every subtask in a batch.
func (e *Engine) updateBatch(ctx context.Context, data map[string]any) (any, string, error) {
	const op = "workflow.planning-operations"

	taskID := getString(data, "taskId")
	batchID := getString(data, "batchId")
	status := task.SubtaskStatus(getString(data, "newStatus"))
	switch status {
	case task.SubtaskNotStarted, task.SubtaskInProgress, task.SubtaskCompleted:
	default:
		return nil, "", validationErr(op, "unknown subtask status "+string(status), "newStatus")
	}

	var updated int
	now := time.Now().UTC()
	err := e.store.Atomic(ctx, func(s task.Store) error {
		subtasks, err := s.ListSubtasks(ctx, task.SubtaskFilter{TaskID: taskID, BatchID: batchID})
		if err != nil {
			return err
		}
		if len(subtasks) == 0 {
			return errf(CodeNotFound, op, "batch %s has no subtasks on task %s", batchID, taskID)
		}
		for _, st := range subtasks {
			st.Status = status
			stampSubtask(st, status, now)
			if err := s.UpdateSubtask(ctx, st); err != nil {
				return err
			}
		}
		updated = len(subtasks)
		return nil
	})
	if err != nil {
		return nil, "", engineErr(op, err)
	}

	if status == task.SubtaskCompleted {
		e.emit(ctx, &task.Event{
			Type:    task.EventBatchCompleted,
			TaskID:  taskID,
			Message: fmt.Sprintf("batch %s completed (%d subtasks)", batchID, updated),
			Detail:  map[string]any{"batch_id": batchID, "count": updated},
		})
	}

	return map[string]any{"batchId": batchID, "newStatus": status, "updated": updated},
		fmt.Sprintf("updated %d subtasks to %s", updated, status), nil
}

// subtaskOps handles IndividualSubtaskOperations for the developer
// working through a batch.
func (e *Engine) subtaskOps(ctx context.Context, operation string, data map[string]any) (any, string, error) {
	const op = "workflow.subtask-operations"

	switch operation {
	case "get_next_subtask":
		return e.nextSubtask(ctx, getString(data, "taskId"))

	case "update_subtask":
		return e.updateSubtask(ctx, data, task.SubtaskStatus(getString(data, "status")))

	case "complete_subtask":
		return e.updateSubtask(ctx, data, task.SubtaskCompleted)
	}
	return nil, "", errf(CodeNotFound, op, "unknown operation %s", operation)
}

// nextSubtask picks the lowest-sequence not-started subtask whose
// dependencies are all completed. Dependencies referencing unknown
// subtasks keep the subtask blocked rather than letting it run early.
func (e *Engine) nextSubtask(ctx context.Context, taskID string) (any, string, error) {
	const op = "workflow.subtask-operations"

	subtasks, err := e.store.ListSubtasks(ctx, task.SubtaskFilter{TaskID: taskID})
	if err != nil {
		return nil, "", wrap(op, err)
	}
	if len(subtasks) == 0 {
		return nil, "", errf(CodeNotFound, op, "task %s has no subtasks", taskID)
	}

	byID := make(map[string]*task.Subtask, len(subtasks))
	for _, st := range subtasks {
		byID[st.ID] = st
	}
	ordered := make([]*task.Subtask, len(subtasks))
	copy(ordered, subtasks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	var remaining int
	for _, st := range ordered {
		if st.Status != task.SubtaskCompleted {
			remaining++
		}
	}

	for _, st := range ordered {
		deps := make([]*task.Subtask, 0, len(st.DependsOn))
		blocked := false
		for _, depID := range st.DependsOn {
			dep, ok := byID[depID]
			if !ok {
				blocked = true
				break
			}
			deps = append(deps, dep)
		}
		if blocked {
			continue
		}
		if st.Ready(deps) {
			return map[string]any{"subtask": st, "remaining": remaining},
				fmt.Sprintf("next subtask: %s", st.Name), nil
		}
	}

	if remaining == 0 {
		return map[string]any{"subtask": nil, "remaining": 0}, "all subtasks completed", nil
	}
	return map[string]any{"subtask": nil, "remaining": remaining},
		"no subtask is ready; waiting on dependencies", nil
}

// updateSubtask moves one subtask forward. Subtask statuses only move
// not-started -> in-progress -> completed; dependency gating applies to
// both forward moves.
func (e *Engine) updateSubtask(ctx context.Context, data map[string]any, status task.SubtaskStatus) (any, string, error) {
	const op = "workflow.subtask-operations"

	rank := map[task.SubtaskStatus]int{
		task.SubtaskNotStarted: 0,
		task.SubtaskInProgress: 1,
		task.SubtaskCompleted:  2,
	}
	to, ok := rank[status]
	if !ok {
		return nil, "", validationErr(op, "unknown subtask status "+string(status), "status")
	}

	subtaskID := getString(data, "subtaskId")
	now := time.Now().UTC()

	var (
		updated       *task.Subtask
		batchDone     bool
		batchSubtasks int
	)
	err := e.store.Atomic(ctx, func(s task.Store) error {
		st, err := s.GetSubtask(ctx, subtaskID)
		if err != nil {
			return err
		}
		if rank[st.Status] > to {
			return errf(CodeInvalidState, op, "subtask %s is %s and cannot move back to %s", st.ID, st.Status, status)
		}
		if rank[st.Status] < to {
			deps, err := s.ListDependencies(ctx, st.ID)
			if err != nil {
				return err
			}
			for _, dep := range deps {
				if dep.Status != task.SubtaskCompleted {
					return errf(CodeInvalidState, op, "subtask %s is blocked by %s (%s)", st.ID, dep.Name, dep.Status)
				}
			}
		}

		st.Status = status
		stampSubtask(st, status, now)
		if ev := getMap(data, "completionEvidence"); ev != nil {
			st.CompletionEvidence = ev
		}
		if err := s.UpdateSubtask(ctx, st); err != nil {
			return err
		}
		updated = st

		if status == task.SubtaskCompleted && st.BatchID != "" {
			siblings, err := s.ListSubtasks(ctx, task.SubtaskFilter{TaskID: st.TaskID, BatchID: st.BatchID})
			if err != nil {
				return err
			}
			batchSubtasks = len(siblings)
			batchDone = true
			for _, sib := range siblings {
				if sib.Status != task.SubtaskCompleted {
					batchDone = false
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", engineErr(op, err)
	}

	e.emit(ctx, &task.Event{
		Type:    task.EventSubtaskUpdated,
		TaskID:  updated.TaskID,
		Message: fmt.Sprintf("subtask %q is now %s", updated.Name, updated.Status),
		Detail:  map[string]any{"subtask_id": updated.ID, "status": string(updated.Status)},
	})
	if batchDone {
		e.emit(ctx, &task.Event{
			Type:    task.EventBatchCompleted,
			TaskID:  updated.TaskID,
			Message: fmt.Sprintf("batch %s completed (%d subtasks)", updated.BatchID, batchSubtasks),
			Detail:  map[string]any{"batch_id": updated.BatchID, "count": batchSubtasks},
		})
	}

	msg := fmt.Sprintf("subtask %s", updated.Status)
	if batchDone {
		msg = fmt.Sprintf("subtask %s; batch %s fully completed", updated.Status, updated.BatchID)
	}
	return map[string]any{"subtask": updated, "batchCompleted": batchDone}, msg, nil
}

// stampSubtask maintains the started/completed timestamps for a status.
func stampSubtask(st *task.Subtask, status task.SubtaskStatus, now time.Time) {
	switch status {
	case task.SubtaskInProgress:
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
		st.CompletedAt = nil
	case task.SubtaskCompleted:
		if st.StartedAt == nil {
			st.StartedAt = &now
		}
		st.CompletedAt = &now
	case task.SubtaskNotStarted:
		st.StartedAt = nil
		st.CompletedAt = nil
	}
	st.UpdatedAt = now
}
