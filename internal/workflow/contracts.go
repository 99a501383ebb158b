package workflow

import "sort"

// Service names addressable through Execute and referenced by
// service-call actions in the step catalog.
const (
	SvcTask       = "TaskOperations"
	SvcWorkflow   = "WorkflowOperations"
	SvcPlanning   = "PlanningOperations"
	SvcSubtask    = "IndividualSubtaskOperations"
	SvcReview     = "ReviewOperations"
	SvcResearch   = "ResearchOperations"
)

// InputSpec describes one declared input of a service operation.
type InputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Contract is the declared input surface of one (service, operation)
// pair. Both the input extractor and Execute validation read from the
// same table, so guidance and enforcement cannot drift apart.
type Contract struct {
	Service   string      `json:"service"`
	Operation string      `json:"operation"`
	Required  []InputSpec `json:"required"`
	Optional  []InputSpec `json:"optional,omitempty"`
}

func req(name, typ, desc string) InputSpec {
	return InputSpec{Name: name, Type: typ, Description: desc, Required: true}
}

func opt(name, typ, desc string) InputSpec {
	return InputSpec{Name: name, Type: typ, Description: desc}
}

var contracts = map[string]map[string]Contract{
	SvcTask: {
		"create": {
			Required: []InputSpec{
				req("taskData", "object", "Core task fields: name, priority"),
				req("description", "string", "What the task is about"),
				req("codebaseAnalysis", "object", "Findings about the affected code"),
				req("businessRequirements", "string", "Business context for the work"),
				req("technicalRequirements", "string", "Technical constraints"),
				req("acceptanceCriteria", "array", "Checklist the result must satisfy"),
			},
		},
		"update": {
			Required: []InputSpec{
				req("taskId", "string", "Task to update"),
			},
			Optional: []InputSpec{
				opt("name", "string", "New task name"),
				opt("priority", "string", "New priority"),
				opt("description", "object", "Replacement description block"),
				opt("codebaseAnalysis", "object", "Updated analysis snapshot"),
			},
		},
		"get": {
			Required: []InputSpec{
				req("taskId", "string", "Task to fetch"),
			},
			Optional: []InputSpec{
				opt("includeAudit", "boolean", "Also return delegation and transition history"),
			},
		},
		"list": {
			Optional: []InputSpec{
				opt("status", "string", "Filter by task status"),
				opt("owner", "string", "Filter by owning role"),
				opt("limit", "number", "Maximum rows to return"),
			},
		},
	},
	SvcWorkflow: {
		"delegate": {
			Required: []InputSpec{
				req("taskId", "string", "Task being handed off"),
				req("fromRole", "string", "Current owner performing the handoff"),
				req("toRole", "string", "Role receiving the task"),
			},
			Optional: []InputSpec{
				opt("message", "string", "Context for the receiving role"),
			},
		},
		"complete": {
			Required: []InputSpec{
				req("taskId", "string", "Task being completed"),
				req("roleId", "string", "Role finishing its portion"),
				req("status", "string", "Requested resulting status"),
			},
			Optional: []InputSpec{
				opt("completionData", "object", "Evidence and summary of the work"),
				opt("nextRole", "string", "Explicit next owner"),
			},
		},
		"escalate": {
			Required: []InputSpec{
				req("taskId", "string", "Task being escalated"),
				req("fromRole", "string", "Role raising the escalation"),
				req("reason", "string", "Why the role cannot proceed"),
			},
		},
		"transition": {
			Required: []InputSpec{
				req("taskId", "string", "Task being transitioned"),
				req("fromRole", "string", "Current owner"),
				req("newStatus", "string", "Target status"),
			},
			Optional: []InputSpec{
				opt("toRole", "string", "New owner when ownership moves"),
				opt("reason", "string", "Why the transition happens"),
			},
		},
	},
	SvcPlanning: {
		"create_plan": {
			Required: []InputSpec{
				req("taskId", "string", "Task the plan belongs to"),
				req("title", "string", "Plan title"),
				req("overview", "string", "Implementation overview"),
			},
			Optional: []InputSpec{
				opt("approach", "object", "Structured approach details"),
			},
		},
		"get_plan": {
			Required: []InputSpec{
				req("taskId", "string", "Task whose plan to fetch"),
			},
		},
		"create_subtasks": {
			Required: []InputSpec{
				req("taskId", "string", "Parent task"),
				req("batchData", "object", "Batch title plus the subtask list"),
			},
			Optional: []InputSpec{
				opt("planId", "string", "Plan the batch implements"),
			},
		},
		"update_batch": {
			Required: []InputSpec{
				req("taskId", "string", "Parent task"),
				req("batchId", "string", "Batch to update"),
				req("newStatus", "string", "Status to apply to every subtask in the batch"),
			},
		},
	},
	SvcSubtask: {
		"get_next_subtask": {
			Required: []InputSpec{
				req("taskId", "string", "Parent task"),
			},
		},
		"update_subtask": {
			Required: []InputSpec{
				req("subtaskId", "string", "Subtask to update"),
				req("status", "string", "New subtask status"),
			},
			Optional: []InputSpec{
				opt("completionEvidence", "object", "Proof the subtask is done"),
			},
		},
		"complete_subtask": {
			Required: []InputSpec{
				req("subtaskId", "string", "Subtask to mark completed"),
			},
			Optional: []InputSpec{
				opt("completionEvidence", "object", "Proof the subtask is done"),
			},
		},
	},
	SvcReview: {
		"create_review": {
			Required: []InputSpec{
				req("taskId", "string", "Task under review"),
				req("verdict", "string", "approved, approved-with-reservations or needs-changes"),
				req("summary", "string", "Review summary"),
			},
			Optional: []InputSpec{
				opt("strengths", "string", "What the implementation does well"),
				opt("issues", "string", "Problems found"),
				opt("requiredChanges", "array", "Changes needed before approval"),
				opt("criteriaResults", "object", "Per-criterion verification results"),
				opt("testingNotes", "string", "Manual testing performed"),
			},
		},
		"get_review": {
			Required: []InputSpec{
				req("taskId", "string", "Task whose review to fetch"),
			},
		},
	},
	SvcResearch: {
		"create_research": {
			Required: []InputSpec{
				req("taskId", "string", "Task the research supports"),
				req("title", "string", "Report title"),
				req("summary", "string", "Findings summary"),
			},
			Optional: []InputSpec{
				opt("findings", "string", "Detailed findings"),
				opt("recommendations", "string", "Recommended direction"),
				opt("references", "array", "Sources consulted"),
			},
		},
		"get_research": {
			Required: []InputSpec{
				req("taskId", "string", "Task whose research to fetch"),
			},
		},
		"add_comment": {
			Required: []InputSpec{
				req("taskId", "string", "Task to comment on"),
				req("content", "string", "Comment text"),
				req("author", "string", "Role writing the comment"),
			},
			Optional: []InputSpec{
				opt("subtaskId", "string", "Subtask the comment targets"),
			},
		},
	},
}

// LookupContract returns the declared contract for a service operation.
func LookupContract(service, operation string) (Contract, bool) {
	ops, ok := contracts[service]
	if !ok {
		return Contract{}, false
	}
	c, ok := ops[operation]
	if !ok {
		return Contract{}, false
	}
	c.Service = service
	c.Operation = operation
	return c, true
}

// Services returns all service names in stable order.
func Services() []string {
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns a service's operation names in stable order, or
// nil for an unknown service.
func Operations(service string) []string {
	ops, ok := contracts[service]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// missingInputs returns the required contract inputs absent from data.
func missingInputs(c Contract, data map[string]any) []string {
	var missing []string
	for _, in := range c.Required {
		v, ok := data[in.Name]
		if !ok || v == nil {
			missing = append(missing, in.Name)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, in.Name)
		}
	}
	return missing
}
