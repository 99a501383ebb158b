//go:build e2e

package comprehensive

import (
	"testing"
)

// ===== T1: Workflow lifecycle over HTTP =====

func TestWorkflow_HealthCheck(t *testing.T) {
	status, body := apiGet(t, "/api/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	m := decodeMap(t, body)
	if m["status"] != "ok" {
		t.Errorf("expected status ok, got %v", m["status"])
	}
	if m["service"] != "overseer" {
		t.Errorf("expected service overseer, got %v", m["service"])
	}
}

func TestWorkflow_Lifecycle(t *testing.T) {
	taskID := bootstrapTask(t, "t1-lifecycle")

	// Guidance for the initial owner
	status, body := apiGet(t, "/api/workflow/"+taskID+"/guidance?role=coordinator")
	if status != 200 {
		t.Fatalf("guidance: expected 200, got %d (body: %s)", status, string(body))
	}
	env := decodeEnvelope(t, body)
	if env["type"] != "guidance" {
		t.Errorf("expected type guidance, got %v", env["type"])
	}
	if env["workflowGuidance"] == nil {
		t.Error("expected workflowGuidance section")
	}
	if env["progressMetrics"] == nil {
		t.Error("expected progressMetrics section")
	}
	if env["validationContext"] == nil {
		t.Error("expected validationContext section")
	}

	// Guidance as a role that does not own the task — 409
	status, _ = apiGet(t, "/api/workflow/"+taskID+"/guidance?role=architect")
	if status != 409 {
		t.Errorf("non-owner guidance: expected 409, got %d", status)
	}

	// Hand off to the researcher
	env = delegate(t, taskID, "coordinator", "researcher")
	if env["type"] != "transition" {
		t.Errorf("expected type transition, got %v", env["type"])
	}
	tr := env["transition"].(map[string]interface{})
	if tr["toRole"] != "researcher" {
		t.Errorf("expected toRole researcher, got %v", tr["toRole"])
	}
	if env["nextGuidance"] == nil {
		t.Error("expected nextGuidance for the new owner")
	}

	// Researcher finishes; coordinator-reset parks the task for review
	env = complete(t, taskID, "researcher")
	tr = env["transition"].(map[string]interface{})
	if tr["toStatus"] != "needs-review" {
		t.Errorf("expected needs-review, got %v", tr["toStatus"])
	}
	if tr["toRole"] != "coordinator" {
		t.Errorf("expected coordinator, got %v", tr["toRole"])
	}

	// Coordinator finalizes
	env = complete(t, taskID, "coordinator")
	tr = env["transition"].(map[string]interface{})
	if tr["toStatus"] != "completed" {
		t.Errorf("expected completed, got %v", tr["toStatus"])
	}

	status, body = apiGet(t, "/api/tasks/"+taskID)
	if status != 200 {
		t.Fatalf("get task: expected 200, got %d", status)
	}
	got := decodeMap(t, body)
	if got["status"] != "completed" {
		t.Errorf("task status = %v, want completed", got["status"])
	}

	// Completed tasks accept no further operations
	status, body = apiPost(t, "/api/workflow/"+taskID+"/delegate", map[string]string{
		"fromRole": "coordinator", "toRole": "researcher",
	})
	if status != 409 {
		t.Errorf("delegate after completion: expected 409, got %d (body: %s)", status, string(body))
	}
	m := decodeMap(t, body)
	if m["code"] != "INVALID_STATE" {
		t.Errorf("expected INVALID_STATE, got %v", m["code"])
	}
}

func TestWorkflow_Escalation(t *testing.T) {
	taskID := bootstrapTask(t, "t1-escalation")
	delegate(t, taskID, "coordinator", "senior-developer")

	status, body := apiPost(t, "/api/workflow/"+taskID+"/escalate", map[string]string{
		"fromRole": "senior-developer",
		"reason":   "blocked on schema ownership",
	})
	if status != 200 {
		t.Fatalf("escalate: expected 200, got %d (body: %s)", status, string(body))
	}
	env := decodeEnvelope(t, body)
	tr := env["transition"].(map[string]interface{})
	if tr["toRole"] != "architect" {
		t.Errorf("developer escalates to %v, want architect", tr["toRole"])
	}

	// Escalating without a reason fails validation
	status, body = apiPost(t, "/api/workflow/"+taskID+"/escalate", map[string]string{
		"fromRole": "architect",
	})
	if status != 422 {
		t.Errorf("reasonless escalation: expected 422, got %d (body: %s)", status, string(body))
	}
}

func TestWorkflow_ValidationErrors(t *testing.T) {
	// Bootstrap without a name
	status, body := apiPost(t, "/api/workflow/bootstrap", map[string]string{})
	if status != 422 {
		t.Fatalf("nameless bootstrap: expected 422, got %d (body: %s)", status, string(body))
	}
	m := decodeMap(t, body)
	if m["code"] != "VALIDATION_FAILURE" {
		t.Errorf("expected VALIDATION_FAILURE, got %v", m["code"])
	}

	// Unknown task
	status, body = apiPost(t, "/api/workflow/no-such-task/delegate", map[string]string{
		"fromRole": "coordinator", "toRole": "researcher",
	})
	if status != 404 {
		t.Errorf("unknown task: expected 404, got %d", status)
	}
	m = decodeMap(t, body)
	if m["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", m["code"])
	}

	// Unknown target role carries the offending field
	taskID := bootstrapTask(t, "t1-validation")
	status, body = apiPost(t, "/api/workflow/"+taskID+"/delegate", map[string]string{
		"fromRole": "coordinator", "toRole": "janitor",
	})
	if status != 422 {
		t.Fatalf("bogus role: expected 422, got %d (body: %s)", status, string(body))
	}
	m = decodeMap(t, body)
	fields, _ := m["fields"].([]interface{})
	if len(fields) != 1 || fields[0] != "toRole" {
		t.Errorf("expected fields [toRole], got %v", m["fields"])
	}

	// Guidance without the role parameter
	status, _ = apiGet(t, "/api/workflow/"+taskID+"/guidance")
	if status != 400 {
		t.Errorf("roleless guidance: expected 400, got %d", status)
	}
}
