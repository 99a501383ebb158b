package workflow

import (
	"regexp"
	"sort"

	"github.com/nidhogg/overseer/internal/task"
)

// Extraction methods reported in requiredInputs so agents know how
// trustworthy the schema is.
const (
	methodServiceContract = "service-contract"
	methodTemplateScan    = "template-scan"
	methodActionDefaults  = "action-defaults"
	methodFallback        = "operation-mapping-fallback"
)

// essentialInputs are always needed regardless of the action at hand.
var essentialInputs = []string{"taskId", "roleId", "projectPath"}

// optionalGuidanceCap bounds how many optional inputs a guidance
// envelope advertises: agents drown past three.
const optionalGuidanceCap = 3

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// actionTypeDefaults maps each action type to the inputs it needs when
// no declared contract applies.
var actionTypeDefaults = map[task.ActionType][]InputSpec{
	task.ActionValidation: {
		req("validationCriteria", "array", "Criteria to check the work against"),
		req("executionData", "object", "Results of the work being validated"),
	},
	task.ActionAnalysis: {
		req("analysisScope", "string", "What to analyze"),
	},
	task.ActionDecision: {
		req("decisionCriteria", "array", "Factors the decision weighs"),
		req("options", "array", "Candidate options"),
	},
	task.ActionFileOperation: {
		req("filePath", "string", "File to read or write"),
	},
	task.ActionCommand: {
		req("command", "string", "Command to run"),
		req("workingDirectory", "string", "Directory to run it in"),
	},
	task.ActionDelegation: {
		req("targetRole", "string", "Role to hand the task to"),
		req("delegationMessage", "string", "Context for the receiving role"),
	},
	task.ActionServiceCall: {
		req("operation", "string", "Service operation to invoke"),
		req("executionData", "object", "Operation payload"),
	},
}

// InputRequirements is the extracted input schema for the next action.
// SchemaFound is false only when the fallback path produced it.
type InputRequirements struct {
	Inputs      []InputSpec `json:"inputs"`
	Essential   []string    `json:"essential"`
	Method      string      `json:"extractionMethod"`
	SchemaFound bool        `json:"schemaFound"`
}

// ExtractInputs derives the inputs an agent must supply for an action.
// Contract lookup wins; template placeholders in the action data and
// per-type defaults fill in behind it; with no action at all the
// generic fallback applies.
func ExtractInputs(action *task.StepAction) InputRequirements {
	if action == nil {
		return fallbackRequirements()
	}

	var inputs []InputSpec
	method := ""
	schemaFound := false

	if action.Type == task.ActionServiceCall && action.ServiceName != "" {
		if c, ok := LookupContract(action.ServiceName, action.Operation); ok {
			// The execute call itself names the operation, so it is
			// required ahead of whatever the contract declares.
			inputs = append(inputs, req("operation", "string", "Service operation to invoke"))
			inputs = append(inputs, c.Required...)
			inputs = append(inputs, c.Optional...)
			method = methodServiceContract
			schemaFound = true
		}
	}

	if names := scanPlaceholders(action.ActionData); len(names) > 0 {
		for _, name := range names {
			inputs = append(inputs, req(name, "string", "Referenced by the action template"))
		}
		if method == "" {
			method = methodTemplateScan
			schemaFound = true
		}
	}

	if method == "" {
		if defaults, ok := actionTypeDefaults[action.Type]; ok {
			inputs = append(inputs, defaults...)
			method = methodActionDefaults
			schemaFound = true
		}
	}

	if len(inputs) == 0 {
		return fallbackRequirements()
	}

	return InputRequirements{
		Inputs:      dedupeInputs(inputs),
		Essential:   essentialInputs,
		Method:      method,
		SchemaFound: schemaFound,
	}
}

func fallbackRequirements() InputRequirements {
	return InputRequirements{
		Inputs: []InputSpec{
			req("operation", "string", "Operation being performed"),
			req("executionData", "object", "Free-form operation payload"),
		},
		Essential:   essentialInputs,
		Method:      methodFallback,
		SchemaFound: false,
	}
}

// scanPlaceholders walks the action data and collects {{name}}
// template references from every string value, in stable order.
func scanPlaceholders(data map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		collectPlaceholders(data[k], seen, &names)
	}
	return names
}

func collectPlaceholders(v any, seen map[string]bool, names *[]string) {
	switch x := v.(type) {
	case string:
		for _, m := range placeholderRe.FindAllStringSubmatch(x, -1) {
			name := m[1]
			if !seen[name] {
				seen[name] = true
				*names = append(*names, name)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectPlaceholders(x[k], seen, names)
		}
	case []any:
		for _, item := range x {
			collectPlaceholders(item, seen, names)
		}
	}
}

// dedupeInputs keeps first occurrence order; a required spec beats an
// optional duplicate regardless of order.
func dedupeInputs(inputs []InputSpec) []InputSpec {
	index := map[string]int{}
	var out []InputSpec
	for _, in := range inputs {
		if i, ok := index[in.Name]; ok {
			if in.Required && !out[i].Required {
				out[i].Required = true
			}
			continue
		}
		index[in.Name] = len(out)
		out = append(out, in)
	}
	return out
}

// capOptional trims optional inputs for guidance rendering, keeping
// every required one.
func capOptional(inputs []InputSpec, limit int) []InputSpec {
	var out []InputSpec
	optionals := 0
	for _, in := range inputs {
		if !in.Required {
			if optionals >= limit {
				continue
			}
			optionals++
		}
		out = append(out, in)
	}
	return out
}

// requiredNames lists just the required input names.
func requiredNames(inputs []InputSpec) []string {
	var names []string
	for _, in := range inputs {
		if in.Required {
			names = append(names, in.Name)
		}
	}
	return names
}
