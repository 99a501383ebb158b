//go:build e2e

package comprehensive

import (
	"fmt"
	"testing"
)

// ===== T2: Service operations through /api/execute =====

func TestExecute_ResearchOperations(t *testing.T) {
	taskID := bootstrapTask(t, "t2-research")
	delegate(t, taskID, "coordinator", "researcher")

	status, body := execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "researcher",
		"service": "ResearchOperations", "operation": "create_research",
		"data": map[string]interface{}{
			"title":           "Session store options",
			"summary":         "Redis wins on operational familiarity.",
			"recommendations": "Use the existing cluster.",
		},
	})
	if status != 200 {
		t.Fatalf("create_research: expected 200, got %d (body: %s)", status, string(body))
	}
	env := decodeEnvelope(t, body)
	if env["type"] != "execution" {
		t.Errorf("expected type execution, got %v", env["type"])
	}
	report := env["result"].(map[string]interface{})
	if report["created_by"] != "researcher" {
		t.Errorf("created_by = %v, want researcher", report["created_by"])
	}

	// Reads carry no role requirement
	status, body = execute(t, map[string]interface{}{
		"taskId": taskID,
		"service": "ResearchOperations", "operation": "get_research",
	})
	if status != 200 {
		t.Fatalf("get_research: expected 200, got %d (body: %s)", status, string(body))
	}
	env = decodeEnvelope(t, body)
	got := env["result"].(map[string]interface{})
	if got["title"] != "Session store options" {
		t.Errorf("title = %v, want Session store options", got["title"])
	}

	status, body = execute(t, map[string]interface{}{
		"taskId": taskID,
		"service": "ResearchOperations", "operation": "add_comment",
		"data": map[string]interface{}{
			"content": "double-check eviction policy",
			"author":  "coordinator",
		},
	})
	if status != 200 {
		t.Fatalf("add_comment: expected 200, got %d (body: %s)", status, string(body))
	}
}

func TestExecute_PlanningAndSubtasks(t *testing.T) {
	taskID := bootstrapTask(t, "t2-planning")

	// Workflow operations are reachable through execute too
	status, body := execute(t, map[string]interface{}{
		"service": "WorkflowOperations", "operation": "delegate",
		"data": map[string]interface{}{
			"taskId": taskID, "fromRole": "coordinator", "toRole": "architect",
		},
	})
	if status != 200 {
		t.Fatalf("workflow delegate: expected 200, got %d (body: %s)", status, string(body))
	}
	env := decodeEnvelope(t, body)
	if env["type"] != "transition" {
		t.Errorf("expected transition envelope, got %v", env["type"])
	}

	status, body = execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "architect",
		"service": "PlanningOperations", "operation": "create_plan",
		"data": map[string]interface{}{
			"title":    "Rate limiter",
			"overview": "Token bucket per API key, shared via Redis.",
		},
	})
	if status != 200 {
		t.Fatalf("create_plan: expected 200, got %d (body: %s)", status, string(body))
	}

	status, body = execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "architect",
		"service": "PlanningOperations", "operation": "create_subtasks",
		"data": map[string]interface{}{
			"batchData": map[string]interface{}{
				"batchTitle": "limiter",
				"subtasks": []map[string]interface{}{
					{"name": "bucket math", "sequence": 1},
					{"name": "redis counters", "sequence": 2, "dependsOn": []string{"bucket math"}},
				},
			},
		},
	})
	if status != 200 {
		t.Fatalf("create_subtasks: expected 200, got %d (body: %s)", status, string(body))
	}
	env = decodeEnvelope(t, body)
	result := env["result"].(map[string]interface{})
	if result["count"] != float64(2) {
		t.Errorf("count = %v, want 2", result["count"])
	}

	delegate(t, taskID, "architect", "senior-developer")

	// Drain the batch in dependency order
	for i, want := range []string{"bucket math", "redis counters"} {
		status, body = execute(t, map[string]interface{}{
			"taskId": taskID, "roleId": "senior-developer",
			"service": "IndividualSubtaskOperations", "operation": "get_next_subtask",
		})
		if status != 200 {
			t.Fatalf("get_next_subtask %d: expected 200, got %d (body: %s)", i, status, string(body))
		}
		env = decodeEnvelope(t, body)
		st, ok := env["result"].(map[string]interface{})["subtask"].(map[string]interface{})
		if !ok {
			t.Fatalf("round %d: no ready subtask (body: %s)", i, string(body))
		}
		if st["name"] != want {
			t.Errorf("round %d: subtask = %v, want %s", i, st["name"], want)
		}

		status, body = execute(t, map[string]interface{}{
			"taskId": taskID, "roleId": "senior-developer",
			"service": "IndividualSubtaskOperations", "operation": "complete_subtask",
			"data": map[string]interface{}{
				"subtaskId": st["id"],
				"completionEvidence": map[string]interface{}{
					"notes": fmt.Sprintf("round %d done", i),
				},
			},
		})
		if status != 200 {
			t.Fatalf("complete_subtask %d: expected 200, got %d (body: %s)", i, status, string(body))
		}
	}

	status, body = execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "senior-developer",
		"service": "IndividualSubtaskOperations", "operation": "get_next_subtask",
	})
	if status != 200 {
		t.Fatalf("drained get_next_subtask: expected 200, got %d", status)
	}
	env = decodeEnvelope(t, body)
	if env["message"] != "all subtasks completed" {
		t.Errorf("message = %v, want all subtasks completed", env["message"])
	}
}

func TestExecute_ReviewOperations(t *testing.T) {
	taskID := bootstrapTask(t, "t2-review")
	delegate(t, taskID, "coordinator", "code-review")

	status, body := execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "code-review",
		"service": "ReviewOperations", "operation": "create_review",
		"data": map[string]interface{}{
			"verdict": "approved-with-reservations",
			"summary": "works, but the retry loop needs a cap",
			"issues":  "unbounded retries on 5xx",
		},
	})
	if status != 200 {
		t.Fatalf("create_review: expected 200, got %d (body: %s)", status, string(body))
	}
	env := decodeEnvelope(t, body)
	review := env["result"].(map[string]interface{})
	if review["verdict"] != "approved-with-reservations" {
		t.Errorf("verdict = %v", review["verdict"])
	}

	status, body = execute(t, map[string]interface{}{
		"taskId": taskID,
		"service": "ReviewOperations", "operation": "get_review",
	})
	if status != 200 {
		t.Fatalf("get_review: expected 200, got %d (body: %s)", status, string(body))
	}
}

func TestExecute_Validation(t *testing.T) {
	taskID := bootstrapTask(t, "t2-validation")

	// Missing required inputs list the gaps
	status, body := execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "coordinator",
		"service": "PlanningOperations", "operation": "create_plan",
	})
	if status != 422 {
		t.Fatalf("inputless create_plan: expected 422, got %d (body: %s)", status, string(body))
	}
	m := decodeMap(t, body)
	fields, _ := m["fields"].([]interface{})
	if len(fields) != 2 {
		t.Errorf("expected 2 missing fields, got %v", m["fields"])
	}

	// Unknown operation
	status, body = execute(t, map[string]interface{}{
		"service": "TaskOperations", "operation": "obliterate",
	})
	if status != 404 {
		t.Errorf("unknown operation: expected 404, got %d (body: %s)", status, string(body))
	}

	// Mutating operations require ownership
	status, body = execute(t, map[string]interface{}{
		"taskId": taskID, "roleId": "architect",
		"service": "PlanningOperations", "operation": "create_plan",
		"data": map[string]interface{}{
			"title": "sneaky plan", "overview": "written by a non-owner",
		},
	})
	if status != 409 {
		t.Errorf("non-owner create_plan: expected 409, got %d (body: %s)", status, string(body))
	}
	m = decodeMap(t, body)
	if m["code"] != "INVALID_OWNERSHIP" {
		t.Errorf("expected INVALID_OWNERSHIP, got %v", m["code"])
	}
}
