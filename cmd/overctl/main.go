package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func main() {
	server := flag.String("server", "http://localhost:8080", "Overseer server URL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "bootstrap":
		cmdBootstrap(*server, rest)
	case "guidance":
		cmdGuidance(*server, rest)
	case "delegate":
		cmdDelegate(*server, rest)
	case "complete":
		cmdComplete(*server, rest)
	case "escalate":
		cmdEscalate(*server, rest)
	case "tasks":
		cmdTasks(*server, rest)
	case "task":
		cmdTask(*server, rest)
	case "audit":
		cmdAudit(*server, rest)
	case "executions":
		cmdExecutions(*server, rest)
	case "roles":
		cmdRoles(*server)
	case "steps":
		cmdSteps(*server, rest)
	case "search":
		cmdSearch(*server, rest)
	case "flow":
		cmdFlow(*server, rest)
	case "sweep":
		cmdSweep(*server)
	default:
		printError("unknown command %q", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("overctl — drive the Overseer workflow engine from the shell")
	fmt.Println()
	fmt.Println("Usage: overctl [-server URL] <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  bootstrap   -name N [-desc D] [-priority P]       create a task")
	fmt.Println("  guidance    -task ID -role R                      current step guidance")
	fmt.Println("  delegate    -task ID -from R -to R [-m MSG]       hand a task off")
	fmt.Println("  complete    -task ID -role R [-status S] [-next R] finish a portion")
	fmt.Println("  escalate    -task ID -from R -reason TEXT         bounce a task upward")
	fmt.Println("  tasks       [-status S] [-owner R] [-limit N]     list tasks")
	fmt.Println("  task        -id ID                                show one task")
	fmt.Println("  audit       -id ID                                delegation/transition history")
	fmt.Println("  executions  [-status S]                           execution overview")
	fmt.Println("  roles                                             role pipeline")
	fmt.Println("  steps       -role R                               a role's step catalog")
	fmt.Println("  search      -q TEXT [-limit N]                    search guidance content")
	fmt.Println("  flow        -task ID                              handoff graph for a task")
	fmt.Println("  sweep                                             flag stale tasks now")
}

// envelope is the uniform wire wrapper; bodies decode per command.
type envelope struct {
	Version  string          `json:"version"`
	Envelope json.RawMessage `json:"envelope"`
	Success  bool            `json:"success"`
}

type taskView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Owner    string `json:"owner"`
}

type guidanceView struct {
	Role string `json:"role"`
	Step *struct {
		DisplayName string `json:"displayName"`
		Sequence    int    `json:"sequence"`
	} `json:"step"`
	Description string `json:"description"`
}

type transitionView struct {
	Transition struct {
		TaskID     string `json:"taskId"`
		FromRole   string `json:"fromRole"`
		ToRole     string `json:"toRole"`
		FromStatus string `json:"fromStatus"`
		ToStatus   string `json:"toStatus"`
	} `json:"transition"`
	NextGuidance *guidanceView `json:"nextGuidance"`
}

func cmdBootstrap(server string, args []string) {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	name := fs.String("name", "", "task name (required)")
	desc := fs.String("desc", "", "task description")
	priority := fs.String("priority", "", "low|medium|high|critical")
	fs.Parse(args)
	if *name == "" {
		printError("bootstrap: -name is required")
		os.Exit(2)
	}

	env := post(server, "/api/workflow/bootstrap", map[string]any{
		"name": *name, "description": *desc, "priority": *priority,
	})
	var body struct {
		Task     taskView      `json:"task"`
		Guidance *guidanceView `json:"workflowGuidance"`
	}
	decodeBody(env, &body)

	fmt.Printf("Task \033[32m%s\033[0m created (%s)\n", body.Task.Slug, body.Task.ID)
	fmt.Printf("  owner: %s  status: %s  priority: %s\n", body.Task.Owner, body.Task.Status, body.Task.Priority)
	printGuidance(body.Guidance)
}

func cmdGuidance(server string, args []string) {
	fs := flag.NewFlagSet("guidance", flag.ExitOnError)
	taskID := fs.String("task", "", "task ID (required)")
	role := fs.String("role", "", "asking role (required)")
	fs.Parse(args)
	if *taskID == "" || *role == "" {
		printError("guidance: -task and -role are required")
		os.Exit(2)
	}

	env := get(server, "/api/workflow/"+*taskID+"/guidance?role="+*role)
	var body struct {
		Guidance *guidanceView `json:"workflowGuidance"`
		Action   *struct {
			NextAction  string `json:"nextAction"`
			Instruction string `json:"instruction"`
		} `json:"actionGuidance"`
		Progress *struct {
			OverallProgress int    `json:"overallProgress"`
			CompletedSteps  int    `json:"completedSteps"`
			TotalSteps      int    `json:"totalSteps"`
			CurrentStep     string `json:"currentStep"`
			NextMilestone   string `json:"nextMilestone"`
		} `json:"progressMetrics"`
		Validation *struct {
			StepCriteria []string `json:"stepCriteria"`
		} `json:"validationContext"`
	}
	decodeBody(env, &body)

	printGuidance(body.Guidance)
	if body.Action != nil {
		fmt.Printf("  next action: \033[36m%s\033[0m\n", body.Action.NextAction)
		fmt.Printf("  %s\n", body.Action.Instruction)
	}
	if body.Progress != nil {
		fmt.Printf("  progress: %d%% (%d/%d steps, at %s)\n",
			body.Progress.OverallProgress, body.Progress.CompletedSteps,
			body.Progress.TotalSteps, body.Progress.CurrentStep)
		if body.Progress.NextMilestone != "" {
			fmt.Printf("  next milestone: %s\n", body.Progress.NextMilestone)
		}
	}
	if body.Validation != nil && len(body.Validation.StepCriteria) > 0 {
		fmt.Println("  checklist:")
		for _, c := range body.Validation.StepCriteria {
			fmt.Printf("    - %s\n", c)
		}
	}
}

func cmdDelegate(server string, args []string) {
	fs := flag.NewFlagSet("delegate", flag.ExitOnError)
	taskID := fs.String("task", "", "task ID (required)")
	from := fs.String("from", "", "current owner (required)")
	to := fs.String("to", "", "destination role (required)")
	msg := fs.String("m", "", "handoff message")
	fs.Parse(args)
	if *taskID == "" || *from == "" || *to == "" {
		printError("delegate: -task, -from and -to are required")
		os.Exit(2)
	}

	env := post(server, "/api/workflow/"+*taskID+"/delegate", map[string]string{
		"fromRole": *from, "toRole": *to, "message": *msg,
	})
	printTransition(env)
}

func cmdComplete(server string, args []string) {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	taskID := fs.String("task", "", "task ID (required)")
	role := fs.String("role", "", "completing role (required)")
	status := fs.String("status", "", "requested status (default completed)")
	next := fs.String("next", "", "explicit next role")
	summary := fs.String("summary", "", "completion summary")
	fs.Parse(args)
	if *taskID == "" || *role == "" {
		printError("complete: -task and -role are required")
		os.Exit(2)
	}

	req := map[string]any{"roleId": *role}
	if *status != "" {
		req["status"] = *status
	}
	if *next != "" {
		req["nextRole"] = *next
	}
	if *summary != "" {
		req["completionData"] = map[string]any{"summary": *summary}
	}
	env := post(server, "/api/workflow/"+*taskID+"/complete", req)
	printTransition(env)
}

func cmdEscalate(server string, args []string) {
	fs := flag.NewFlagSet("escalate", flag.ExitOnError)
	taskID := fs.String("task", "", "task ID (required)")
	from := fs.String("from", "", "escalating role (required)")
	reason := fs.String("reason", "", "why (required)")
	fs.Parse(args)
	if *taskID == "" || *from == "" || *reason == "" {
		printError("escalate: -task, -from and -reason are required")
		os.Exit(2)
	}

	env := post(server, "/api/workflow/"+*taskID+"/escalate", map[string]string{
		"fromRole": *from, "reason": *reason,
	})
	printTransition(env)
}

func cmdTasks(server string, args []string) {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	owner := fs.String("owner", "", "filter by owning role")
	limit := fs.Int("limit", 0, "cap the listing")
	fs.Parse(args)

	params := []string{}
	if *status != "" {
		params = append(params, "status="+*status)
	}
	if *owner != "" {
		params = append(params, "owner="+*owner)
	}
	if *limit > 0 {
		params = append(params, fmt.Sprintf("limit=%d", *limit))
	}
	path := "/api/tasks"
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var listing struct {
		Tasks []taskView `json:"tasks"`
		Count int        `json:"count"`
	}
	getInto(server, path, &listing)

	if listing.Count == 0 {
		fmt.Println("No tasks.")
		return
	}
	for _, t := range listing.Tasks {
		fmt.Printf("%-36s  %-12s %-14s %-10s %s\n", t.ID, t.Owner, t.Status, t.Priority, t.Name)
	}
}

func cmdTask(server string, args []string) {
	fs := flag.NewFlagSet("task", flag.ExitOnError)
	id := fs.String("id", "", "task ID (required)")
	fs.Parse(args)
	if *id == "" {
		printError("task: -id is required")
		os.Exit(2)
	}

	var t struct {
		taskView
		RedelegationCount int `json:"redelegation_count"`
		Description       *struct {
			Text               string   `json:"text"`
			AcceptanceCriteria []string `json:"acceptance_criteria"`
		} `json:"description"`
	}
	getInto(server, "/api/tasks/"+*id, &t)

	fmt.Printf("\033[32m%s\033[0m (%s)\n", t.Name, t.ID)
	fmt.Printf("  owner: %s  status: %s  priority: %s  redelegations: %d\n",
		t.Owner, t.Status, t.Priority, t.RedelegationCount)
	if t.Description != nil && t.Description.Text != "" {
		fmt.Printf("  %s\n", t.Description.Text)
	}
	if t.Description != nil {
		for _, c := range t.Description.AcceptanceCriteria {
			fmt.Printf("  - %s\n", c)
		}
	}
}

func cmdAudit(server string, args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	id := fs.String("id", "", "task ID (required)")
	fs.Parse(args)
	if *id == "" {
		printError("audit: -id is required")
		os.Exit(2)
	}

	var audit struct {
		Delegations []struct {
			FromRole  string    `json:"from_role"`
			ToRole    string    `json:"to_role"`
			Message   string    `json:"message"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"delegations"`
		Transitions []struct {
			FromStatus string    `json:"from_status"`
			ToStatus   string    `json:"to_status"`
			Reason     string    `json:"reason"`
			Timestamp  time.Time `json:"timestamp"`
		} `json:"transitions"`
	}
	getInto(server, "/api/tasks/"+*id+"/audit", &audit)

	fmt.Println("Delegations:")
	for _, d := range audit.Delegations {
		fmt.Printf("  %s  %s → %s", d.Timestamp.Format(time.RFC3339), d.FromRole, d.ToRole)
		if d.Message != "" {
			fmt.Printf("  %q", d.Message)
		}
		fmt.Println()
	}
	fmt.Println("Transitions:")
	for _, tr := range audit.Transitions {
		fmt.Printf("  %s  %s → %s (%s)\n", tr.Timestamp.Format(time.RFC3339), tr.FromStatus, tr.ToStatus, tr.Reason)
	}
}

func cmdExecutions(server string, args []string) {
	fs := flag.NewFlagSet("executions", flag.ExitOnError)
	status := fs.String("status", "", "filter by execution status")
	fs.Parse(args)

	path := "/api/executions"
	if *status != "" {
		path += "?status=" + *status
	}
	env := get(server, path)
	var body struct {
		Executions []struct {
			ID          string `json:"id"`
			TaskID      string `json:"taskId"`
			Status      string `json:"status"`
			CurrentRole string `json:"currentRole"`
			CurrentStep string `json:"currentStep"`
		} `json:"executions"`
		Summary struct {
			Total     int `json:"total"`
			Active    int `json:"active"`
			Paused    int `json:"paused"`
			Completed int `json:"completed"`
			Aborted   int `json:"aborted"`
		} `json:"summary"`
	}
	decodeBody(env, &body)

	s := body.Summary
	fmt.Printf("%d executions: %d active, %d paused, %d completed, %d aborted\n",
		s.Total, s.Active, s.Paused, s.Completed, s.Aborted)
	for _, e := range body.Executions {
		fmt.Printf("  %-36s  %-10s %-16s %s\n", e.TaskID, e.Status, e.CurrentRole, e.CurrentStep)
	}
}

func cmdRoles(server string) {
	var body struct {
		Roles []struct {
			ID          string `json:"id"`
			Sequence    int    `json:"sequence"`
			Next        string `json:"next"`
			EscalatesTo string `json:"escalatesTo"`
		} `json:"roles"`
	}
	getInto(server, "/api/roles", &body)

	for _, r := range body.Roles {
		fmt.Printf("%d. \033[36m%s\033[0m", r.Sequence, r.ID)
		if r.Next != "" {
			fmt.Printf("  → %s", r.Next)
		}
		if r.EscalatesTo != "" {
			fmt.Printf("  (escalates to %s)", r.EscalatesTo)
		}
		fmt.Println()
	}
}

func cmdSteps(server string, args []string) {
	fs := flag.NewFlagSet("steps", flag.ExitOnError)
	role := fs.String("role", "", "role ID (required)")
	fs.Parse(args)
	if *role == "" {
		printError("steps: -role is required")
		os.Exit(2)
	}

	var body struct {
		Steps []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			Sequence    int    `json:"sequence"`
			Description string `json:"description"`
		} `json:"steps"`
	}
	getInto(server, "/api/roles/"+*role+"/steps", &body)

	for _, s := range body.Steps {
		fmt.Printf("%d. \033[36m%s\033[0m (%s)\n   %s\n", s.Sequence, s.DisplayName, s.ID, s.Description)
	}
}

func cmdSearch(server string, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	q := fs.String("q", "", "free-text query (required)")
	limit := fs.Int("limit", 5, "result cap")
	fs.Parse(args)
	if *q == "" {
		printError("search: -q is required")
		os.Exit(2)
	}

	path := fmt.Sprintf("/api/search/guidance?q=%s&limit=%d", strings.ReplaceAll(*q, " ", "+"), *limit)
	var body struct {
		Hits []struct {
			StepID string  `json:"stepId"`
			Role   string  `json:"role"`
			Name   string  `json:"name"`
			Score  float32 `json:"score"`
		} `json:"hits"`
	}
	getInto(server, path, &body)

	if len(body.Hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, h := range body.Hits {
		fmt.Printf("%.2f  \033[36m%s\033[0m  %s (%s)\n", h.Score, h.StepID, h.Name, h.Role)
	}
}

func cmdFlow(server string, args []string) {
	fs := flag.NewFlagSet("flow", flag.ExitOnError)
	taskID := fs.String("task", "", "task ID (required)")
	fs.Parse(args)
	if *taskID == "" {
		printError("flow: -task is required")
		os.Exit(2)
	}

	var body struct {
		Handoffs []struct {
			From   string    `json:"from"`
			To     string    `json:"to"`
			Reason string    `json:"reason"`
			At     time.Time `json:"at"`
		} `json:"handoffs"`
	}
	getInto(server, "/api/flow/"+*taskID, &body)

	if len(body.Handoffs) == 0 {
		fmt.Println("No handoffs recorded.")
		return
	}
	for _, h := range body.Handoffs {
		fmt.Printf("%s  %s → %s", h.At.Format(time.RFC3339), h.From, h.To)
		if h.Reason != "" {
			fmt.Printf("  %q", h.Reason)
		}
		fmt.Println()
	}
}

func cmdSweep(server string) {
	var body struct {
		Flagged int `json:"flagged"`
	}
	postInto(server, "/api/monitor/sweep", nil, &body)
	fmt.Printf("Flagged %d stale task(s).\n", body.Flagged)
}

func printGuidance(g *guidanceView) {
	if g == nil {
		return
	}
	if g.Step != nil {
		fmt.Printf("  step %d: \033[36m%s\033[0m\n", g.Step.Sequence, g.Step.DisplayName)
	}
	if g.Description != "" {
		fmt.Printf("  %s\n", g.Description)
	}
}

func printTransition(env *envelope) {
	var body transitionView
	decodeBody(env, &body)
	tr := body.Transition
	fmt.Printf("\033[32m%s\033[0m → \033[32m%s\033[0m  (%s → %s)\n",
		tr.FromRole, tr.ToRole, tr.FromStatus, tr.ToStatus)
	printGuidance(body.NextGuidance)
}

func get(server, path string) *envelope {
	resp, err := httpClient.Get(server + path)
	if err != nil {
		printError("Request failed: %v", err)
		os.Exit(1)
	}
	return readEnvelope(resp)
}

func post(server, path string, payload any) *envelope {
	b, _ := json.Marshal(payload)
	resp, err := httpClient.Post(server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		printError("Request failed: %v", err)
		os.Exit(1)
	}
	return readEnvelope(resp)
}

// getInto decodes a plain (non-envelope) JSON response.
func getInto(server, path string, v any) {
	resp, err := httpClient.Get(server + path)
	if err != nil {
		printError("Request failed: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	checkStatus(resp)
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		printError("Failed to parse response: %v", err)
		os.Exit(1)
	}
}

func postInto(server, path string, payload, v any) {
	b, _ := json.Marshal(payload)
	resp, err := httpClient.Post(server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		printError("Request failed: %v", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	checkStatus(resp)
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		printError("Failed to parse response: %v", err)
		os.Exit(1)
	}
}

func readEnvelope(resp *http.Response) *envelope {
	defer resp.Body.Close()
	checkStatus(resp)
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		printError("Failed to parse envelope: %v", err)
		os.Exit(1)
	}
	return &env
}

func decodeBody(env *envelope, v any) {
	if err := json.Unmarshal(env.Envelope, v); err != nil {
		printError("Failed to parse envelope body: %v", err)
		os.Exit(1)
	}
}

// checkStatus prints the server's error body and exits on non-2xx.
func checkStatus(resp *http.Response) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return
	}
	data, _ := io.ReadAll(resp.Body)
	var e struct {
		Error  string   `json:"error"`
		Code   string   `json:"code"`
		Fields []string `json:"fields"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		if e.Code != "" {
			printError("Server error (%d %s): %s", resp.StatusCode, e.Code, e.Error)
		} else {
			printError("Server error (%d): %s", resp.StatusCode, e.Error)
		}
		if len(e.Fields) > 0 {
			printError("  fields: %s", strings.Join(e.Fields, ", "))
		}
	} else {
		printError("Server error (%d): %s", resp.StatusCode, string(data))
	}
	os.Exit(1)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
