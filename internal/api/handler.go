package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/overseer/internal/graph"
	"github.com/nidhogg/overseer/internal/search"
	"github.com/nidhogg/overseer/internal/task"
	"github.com/nidhogg/overseer/internal/workflow"
	"go.uber.org/zap"
)

// ExecutionCache is the slice of the Redis cache the API reads through.
// A nil cache is fine; reads fall through to the engine.
type ExecutionCache interface {
	Get(ctx context.Context, taskID string) (*task.Execution, error)
	Put(ctx context.Context, exec *task.Execution) error
	Invalidate(ctx context.Context, taskID string) error
}

// Searcher answers free-text queries against the guidance index.
type Searcher interface {
	Query(ctx context.Context, query string, topK int) ([]*search.Hit, error)
}

// FlowReader reads handoff history back out of the graph store.
type FlowReader interface {
	TaskFlow(ctx context.Context, taskID string) ([]*graph.Handoff, error)
	RoleLoad(ctx context.Context) (map[task.Role]int, error)
}

// Sweeper flags tasks that have gone quiet.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine  *workflow.Engine
	store   task.Store
	cache   ExecutionCache
	search  Searcher
	flow    FlowReader
	sweeper Sweeper
	logger  *zap.Logger
}

// NewHandler creates a new API handler. cache, searcher, flow and
// sweeper may be nil; the matching routes answer 503 instead.
func NewHandler(
	engine *workflow.Engine,
	store task.Store,
	cache ExecutionCache,
	searcher Searcher,
	flow FlowReader,
	sweeper Sweeper,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:  engine,
		store:   store,
		cache:   cache,
		search:  searcher,
		flow:    flow,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Workflow operations
		r.Post("/workflow/bootstrap", h.bootstrap)
		r.Get("/workflow/{taskID}/guidance", h.guidance)
		r.Post("/workflow/{taskID}/delegate", h.delegate)
		r.Post("/workflow/{taskID}/complete", h.complete)
		r.Post("/workflow/{taskID}/escalate", h.escalate)
		r.Post("/workflow/{taskID}/transition", h.transition)
		r.Post("/execute", h.execute)

		// Task routes
		r.Get("/tasks", h.listTasks)
		r.Get("/tasks/{id}", h.getTask)
		r.Get("/tasks/{id}/audit", h.getAudit)

		// Execution routes
		r.Get("/executions", h.listExecutions)
		r.Get("/executions/{taskID}", h.getExecution)

		// Role catalog routes
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}/steps", h.listRoleSteps)

		// Guidance search
		r.Get("/search/guidance", h.searchGuidance)

		// Handoff graph routes
		r.Get("/flow/{taskID}", h.taskFlow)
		r.Get("/flow/roles", h.roleLoad)

		// Monitoring
		r.Post("/monitor/sweep", h.triggerSweep)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "overseer"})
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	var req workflow.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	env, err := h.engine.Bootstrap(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, env)
}

func (h *Handler) guidance(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	role := task.Role(r.URL.Query().Get("role"))
	if role == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role query parameter is required"})
		return
	}
	env, err := h.engine.Guidance(r.Context(), taskID, role)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request) {
	var req workflow.DelegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.TaskID = chi.URLParam(r, "taskID")
	env, err := h.engine.Delegate(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.dropCached(r.Context(), req.TaskID)
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	var req workflow.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.TaskID = chi.URLParam(r, "taskID")
	env, err := h.engine.Complete(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.dropCached(r.Context(), req.TaskID)
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) escalate(w http.ResponseWriter, r *http.Request) {
	var req workflow.EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.TaskID = chi.URLParam(r, "taskID")
	env, err := h.engine.Escalate(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.dropCached(r.Context(), req.TaskID)
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req workflow.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	req.TaskID = chi.URLParam(r, "taskID")
	env, err := h.engine.Transition(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.dropCached(r.Context(), req.TaskID)
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	var req workflow.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	env, err := h.engine.Execute(r.Context(), req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	// Workflow operations routed through execute move the cursor too.
	taskID := req.TaskID
	if taskID == "" {
		taskID, _ = req.Data["taskId"].(string)
	}
	if taskID != "" {
		h.dropCached(r.Context(), taskID)
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	var f task.TaskFilter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		f.Status = task.Status(s)
		if !f.Status.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + s})
			return
		}
	}
	if o := q.Get("owner"); o != "" {
		f.Owner = task.Role(o)
		if !f.Owner.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role " + o})
			return
		}
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	tasks, err := h.engine.Tasks(r.Context(), f)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) getAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := h.engine.Task(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	dels, trs, err := h.engine.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":        t,
		"delegations": dels,
		"transitions": trs,
	})
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	status := task.ExecutionStatus(r.URL.Query().Get("status"))
	env, err := h.engine.WorkflowExecutions(r.Context(), status)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	ctx := r.Context()

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, taskID)
		if err != nil {
			h.logger.Warn("execution cache read failed", zap.String("task_id", taskID), zap.Error(err))
		}
		if cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	exec, err := h.engine.TaskExecution(ctx, taskID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Put(ctx, exec); err != nil {
			h.logger.Warn("execution cache write failed", zap.String("task_id", taskID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, exec)
}

type roleInfo struct {
	ID          task.Role `json:"id"`
	Sequence    int       `json:"sequence"`
	Next        task.Role `json:"next,omitempty"`
	EscalatesTo task.Role `json:"escalatesTo,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := make([]roleInfo, 0, len(task.RoleSequence))
	for i, role := range task.RoleSequence {
		info := roleInfo{ID: role, Sequence: i + 1, Next: task.NextRole(role)}
		if target, ok := workflow.EscalationTarget(role); ok {
			info.EscalatesTo = target
		}
		roles = append(roles, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listRoleSteps(w http.ResponseWriter, r *http.Request) {
	role := task.Role(chi.URLParam(r, "id"))
	if !role.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown role " + string(role)})
		return
	}
	steps, err := h.store.ListSteps(r.Context(), task.StepFilter{RoleID: role})
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roleId": role, "steps": steps})
}

func (h *Handler) searchGuidance(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "search index not configured"})
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q query parameter is required"})
		return
	}
	topK := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		topK = n
	}
	hits, err := h.search.Query(r.Context(), q, topK)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "hits": hits})
}

func (h *Handler) taskFlow(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "flow graph not configured"})
		return
	}
	taskID := chi.URLParam(r, "taskID")
	handoffs, err := h.flow.TaskFlow(r.Context(), taskID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"taskId": taskID, "handoffs": handoffs})
}

func (h *Handler) roleLoad(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "flow graph not configured"})
		return
	}
	load, err := h.flow.RoleLoad(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"load": load})
}

func (h *Handler) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stale monitor not configured"})
		return
	}
	n, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flagged": n})
}

// dropCached invalidates the execution cache after a mutation. Cache
// failures never fail the request.
func (h *Handler) dropCached(ctx context.Context, taskID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, taskID); err != nil {
		h.logger.Warn("execution cache invalidation failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

// writeErr maps workflow error codes onto HTTP statuses.
func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	code := workflow.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case workflow.CodeNotFound:
		status = http.StatusNotFound
	case workflow.CodeInvalidOwnership, workflow.CodeInvalidState:
		status = http.StatusConflict
	case workflow.CodeValidationFailure:
		status = http.StatusUnprocessableEntity
	}

	body := map[string]any{"error": err.Error(), "code": string(code)}
	if fields := workflow.FieldsOf(err); len(fields) > 0 {
		body["fields"] = fields
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
