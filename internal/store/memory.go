package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/overseer/internal/task"
)

// Memory is an in-memory task.Store. It backs unit tests and the
// --demo mode of the server; Postgres remains the real backend.
// Atomic clones state and swaps it back only on success, so rollback
// semantics match the transactional store closely enough for tests.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

type memState struct {
	tasks       map[string]*task.Task
	delegations map[string][]*task.DelegationRecord
	transitions map[string][]*task.Transition
	steps       map[string]*task.WorkflowStep
	progress    map[string]map[string]*task.StepProgress
	plans       map[string][]*task.Plan
	subtasks    map[string]*task.Subtask
	executions  map[string]*task.Execution
	research    map[string][]*task.ResearchReport
	reviews     map[string][]*task.CodeReview
	completions map[string][]*task.CompletionReport
	comments    map[string][]*task.Comment
}

var _ task.Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		tasks:       map[string]*task.Task{},
		delegations: map[string][]*task.DelegationRecord{},
		transitions: map[string][]*task.Transition{},
		steps:       map[string]*task.WorkflowStep{},
		progress:    map[string]map[string]*task.StepProgress{},
		plans:       map[string][]*task.Plan{},
		subtasks:    map[string]*task.Subtask{},
		executions:  map[string]*task.Execution{},
		research:    map[string][]*task.ResearchReport{},
		reviews:     map[string][]*task.CodeReview{},
		completions: map[string][]*task.CompletionReport{},
		comments:    map[string][]*task.Comment{},
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.tasks {
		c.tasks[k] = v
	}
	for k, v := range st.delegations {
		c.delegations[k] = append([]*task.DelegationRecord(nil), v...)
	}
	for k, v := range st.transitions {
		c.transitions[k] = append([]*task.Transition(nil), v...)
	}
	for k, v := range st.steps {
		c.steps[k] = v
	}
	for k, v := range st.progress {
		inner := map[string]*task.StepProgress{}
		for k2, v2 := range v {
			inner[k2] = v2
		}
		c.progress[k] = inner
	}
	for k, v := range st.plans {
		c.plans[k] = append([]*task.Plan(nil), v...)
	}
	for k, v := range st.subtasks {
		c.subtasks[k] = v
	}
	for k, v := range st.executions {
		c.executions[k] = v
	}
	for k, v := range st.research {
		c.research[k] = append([]*task.ResearchReport(nil), v...)
	}
	for k, v := range st.reviews {
		c.reviews[k] = append([]*task.CodeReview(nil), v...)
	}
	for k, v := range st.completions {
		c.completions[k] = append([]*task.CompletionReport(nil), v...)
	}
	for k, v := range st.comments {
		c.comments[k] = append([]*task.Comment(nil), v...)
	}
	return c
}

// Atomic runs fn against a cloned state and swaps it in on success.
// The shadow has its own mutex, so fn uses the normal methods.
func (m *Memory) Atomic(ctx context.Context, fn func(task.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	shadow := &Memory{st: m.st.clone()}
	if err := fn(shadow); err != nil {
		return err
	}
	m.st = shadow.st
	return nil
}

func now(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func copyTask(t *task.Task) *task.Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		d.AcceptanceCriteria = append([]string(nil), t.Description.AcceptanceCriteria...)
		c.Description = &d
	}
	if t.Analysis != nil {
		a := *t.Analysis
		c.Analysis = &a
	}
	return &c
}

func copySubtask(s *task.Subtask) *task.Subtask {
	c := *s
	c.DependsOn = append([]string(nil), s.DependsOn...)
	return &c
}

func copyExecution(e *task.Execution) *task.Execution {
	c := *e
	return &c
}

// --- Tasks ---

func (m *Memory) CreateTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.tasks[t.ID]; ok {
		return fmt.Errorf("create task %s: %w", t.ID, task.ErrDuplicate)
	}
	for _, other := range m.st.tasks {
		if other.Slug == t.Slug {
			return fmt.Errorf("create task %s: %w", t.Slug, task.ErrDuplicate)
		}
	}
	c := copyTask(t)
	c.CreatedAt = now(t.CreatedAt)
	c.UpdatedAt = now(t.UpdatedAt)
	m.st.tasks[c.ID] = c
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.st.tasks[id]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", id, task.ErrNotFound)
	}
	return copyTask(t), nil
}

func (m *Memory) GetTaskBySlug(ctx context.Context, slug string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.st.tasks {
		if t.Slug == slug {
			return copyTask(t), nil
		}
	}
	return nil, fmt.Errorf("get task by slug %s: %w", slug, task.ErrNotFound)
}

func (m *Memory) UpdateTask(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.st.tasks[t.ID]
	if !ok {
		return fmt.Errorf("update task %s: %w", t.ID, task.ErrNotFound)
	}
	c := copyTask(t)
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now()
	m.st.tasks[c.ID] = c
	return nil
}

func (m *Memory) ListTasks(ctx context.Context, f task.TaskFilter) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.Task
	for _, t := range m.st.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Owner != "" && t.Owner != f.Owner {
			continue
		}
		if f.Slug != "" && t.Slug != f.Slug {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// --- Audit ---

func (m *Memory) AppendDelegation(ctx context.Context, d *task.DelegationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	c.Timestamp = now(d.Timestamp)
	m.st.delegations[d.TaskID] = append(m.st.delegations[d.TaskID], &c)
	return nil
}

func (m *Memory) ListDelegations(ctx context.Context, taskID string) ([]*task.DelegationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*task.DelegationRecord(nil), m.st.delegations[taskID]...), nil
}

func (m *Memory) AppendTransition(ctx context.Context, tr *task.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *tr
	c.Timestamp = now(tr.Timestamp)
	m.st.transitions[tr.TaskID] = append(m.st.transitions[tr.TaskID], &c)
	return nil
}

func (m *Memory) ListTransitions(ctx context.Context, taskID string) ([]*task.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*task.Transition(nil), m.st.transitions[taskID]...), nil
}

// --- Steps ---

func (m *Memory) SaveStep(ctx context.Context, s *task.WorkflowStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	c.Actions = append([]task.StepAction(nil), s.Actions...)
	m.st.steps[s.ID] = &c
	return nil
}

func (m *Memory) ListSteps(ctx context.Context, f task.StepFilter) ([]*task.WorkflowStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.WorkflowStep
	for _, s := range m.st.steps {
		if f.RoleID != "" && s.RoleID != f.RoleID {
			continue
		}
		if f.StepID != "" && s.ID != f.StepID {
			continue
		}
		c := *s
		c.Actions = append([]task.StepAction(nil), s.Actions...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoleID != out[j].RoleID {
			return out[i].RoleID < out[j].RoleID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (m *Memory) UpsertStepProgress(ctx context.Context, p *task.StepProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStep, ok := m.st.progress[p.TaskID]
	if !ok {
		byStep = map[string]*task.StepProgress{}
		m.st.progress[p.TaskID] = byStep
	}
	c := *p
	if prev, ok := byStep[p.StepID]; ok && prev.StartedAt != nil {
		c.StartedAt = prev.StartedAt
	}
	byStep[p.StepID] = &c
	return nil
}

func (m *Memory) ListStepProgress(ctx context.Context, taskID string) ([]*task.StepProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.StepProgress
	for _, p := range m.st.progress[taskID] {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

// --- Subtasks ---

func (m *Memory) CreatePlan(ctx context.Context, p *task.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	c.CreatedAt = now(p.CreatedAt)
	c.UpdatedAt = now(p.UpdatedAt)
	m.st.plans[p.TaskID] = append(m.st.plans[p.TaskID], &c)
	return nil
}

func (m *Memory) GetPlan(ctx context.Context, taskID string) (*task.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plans := m.st.plans[taskID]
	if len(plans) == 0 {
		return nil, fmt.Errorf("get plan for %s: %w", taskID, task.ErrNotFound)
	}
	c := *plans[len(plans)-1]
	return &c, nil
}

func (m *Memory) CreateSubtask(ctx context.Context, s *task.Subtask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.subtasks[s.ID]; ok {
		return fmt.Errorf("create subtask %s: %w", s.ID, task.ErrDuplicate)
	}
	c := copySubtask(s)
	c.CreatedAt = now(s.CreatedAt)
	c.UpdatedAt = now(s.UpdatedAt)
	m.st.subtasks[s.ID] = c
	return nil
}

func (m *Memory) GetSubtask(ctx context.Context, id string) (*task.Subtask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.st.subtasks[id]
	if !ok {
		return nil, fmt.Errorf("get subtask %s: %w", id, task.ErrNotFound)
	}
	return copySubtask(s), nil
}

func (m *Memory) UpdateSubtask(ctx context.Context, s *task.Subtask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.st.subtasks[s.ID]
	if !ok {
		return fmt.Errorf("update subtask %s: %w", s.ID, task.ErrNotFound)
	}
	c := copySubtask(s)
	c.DependsOn = append([]string(nil), old.DependsOn...)
	c.CreatedAt = old.CreatedAt
	c.UpdatedAt = time.Now()
	m.st.subtasks[s.ID] = c
	return nil
}

func (m *Memory) ListSubtasks(ctx context.Context, f task.SubtaskFilter) ([]*task.Subtask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.Subtask
	for _, s := range m.st.subtasks {
		if f.TaskID != "" && s.TaskID != f.TaskID {
			continue
		}
		if f.PlanID != "" && s.PlanID != f.PlanID {
			continue
		}
		if f.BatchID != "" && s.BatchID != f.BatchID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, copySubtask(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *Memory) ListDependencies(ctx context.Context, subtaskID string) ([]*task.Subtask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.st.subtasks[subtaskID]
	if !ok {
		return nil, fmt.Errorf("list dependencies of %s: %w", subtaskID, task.ErrNotFound)
	}
	var out []*task.Subtask
	for _, depID := range s.DependsOn {
		if dep, ok := m.st.subtasks[depID]; ok {
			out = append(out, copySubtask(dep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// --- Executions ---

func (m *Memory) CreateExecution(ctx context.Context, e *task.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.executions[e.ID]; ok {
		return fmt.Errorf("create execution %s: %w", e.ID, task.ErrDuplicate)
	}
	if e.Status == task.ExecutionActive {
		for _, other := range m.st.executions {
			if other.TaskID == e.TaskID && other.Status == task.ExecutionActive {
				return fmt.Errorf("create execution for %s: %w", e.TaskID, task.ErrDuplicate)
			}
		}
	}
	c := copyExecution(e)
	c.StartedAt = now(e.StartedAt)
	c.UpdatedAt = now(e.UpdatedAt)
	m.st.executions[e.ID] = c
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id string) (*task.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.st.executions[id]
	if !ok {
		return nil, fmt.Errorf("get execution %s: %w", id, task.ErrNotFound)
	}
	return copyExecution(e), nil
}

func (m *Memory) GetExecutionByTask(ctx context.Context, taskID string) (*task.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *task.Execution
	for _, e := range m.st.executions {
		if e.TaskID != taskID {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		bestActive := best.Status == task.ExecutionActive
		eActive := e.Status == task.ExecutionActive
		if eActive && !bestActive {
			best = e
		} else if eActive == bestActive && e.StartedAt.After(best.StartedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("get execution for task %s: %w", taskID, task.ErrNotFound)
	}
	return copyExecution(best), nil
}

func (m *Memory) UpdateExecution(ctx context.Context, e *task.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.st.executions[e.ID]
	if !ok {
		return fmt.Errorf("update execution %s: %w", e.ID, task.ErrNotFound)
	}
	c := copyExecution(e)
	c.StartedAt = old.StartedAt
	c.UpdatedAt = time.Now()
	m.st.executions[e.ID] = c
	return nil
}

func (m *Memory) ListExecutions(ctx context.Context, status task.ExecutionStatus) ([]*task.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.Execution
	for _, e := range m.st.executions {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, copyExecution(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// --- Reports ---

func (m *Memory) CreateResearchReport(ctx context.Context, r *task.ResearchReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	c.CreatedAt = now(r.CreatedAt)
	m.st.research[r.TaskID] = append(m.st.research[r.TaskID], &c)
	return nil
}

func (m *Memory) GetResearchReport(ctx context.Context, taskID string) (*task.ResearchReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.st.research[taskID]
	if len(rs) == 0 {
		return nil, fmt.Errorf("get research report for %s: %w", taskID, task.ErrNotFound)
	}
	c := *rs[len(rs)-1]
	return &c, nil
}

func (m *Memory) CreateCodeReview(ctx context.Context, r *task.CodeReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	c.CreatedAt = now(r.CreatedAt)
	m.st.reviews[r.TaskID] = append(m.st.reviews[r.TaskID], &c)
	return nil
}

func (m *Memory) GetCodeReview(ctx context.Context, taskID string) (*task.CodeReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.st.reviews[taskID]
	if len(rs) == 0 {
		return nil, fmt.Errorf("get code review for %s: %w", taskID, task.ErrNotFound)
	}
	c := *rs[len(rs)-1]
	return &c, nil
}

func (m *Memory) CreateCompletionReport(ctx context.Context, r *task.CompletionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	c.CreatedAt = now(r.CreatedAt)
	m.st.completions[r.TaskID] = append(m.st.completions[r.TaskID], &c)
	return nil
}

func (m *Memory) GetCompletionReport(ctx context.Context, taskID string) (*task.CompletionReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.st.completions[taskID]
	if len(rs) == 0 {
		return nil, fmt.Errorf("get completion report for %s: %w", taskID, task.ErrNotFound)
	}
	c := *rs[len(rs)-1]
	return &c, nil
}

func (m *Memory) AddComment(ctx context.Context, c *task.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := *c
	cc.CreatedAt = now(c.CreatedAt)
	m.st.comments[c.TaskID] = append(m.st.comments[c.TaskID], &cc)
	return nil
}

func (m *Memory) ListComments(ctx context.Context, taskID string) ([]*task.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*task.Comment(nil), m.st.comments[taskID]...), nil
}
