package workflow

import (
	"reflect"
	"testing"

	"github.com/nidhogg/overseer/internal/task"
)

func inputNames(inputs []InputSpec) []string {
	var names []string
	for _, in := range inputs {
		names = append(names, in.Name)
	}
	return names
}

func TestExtractInputsFromContract(t *testing.T) {
	action := &task.StepAction{
		Name: "hand-off", Type: task.ActionServiceCall,
		ServiceName: SvcWorkflow, Operation: "delegate",
	}
	got := ExtractInputs(action)
	if got.Method != methodServiceContract || !got.SchemaFound {
		t.Fatalf("method=%q schemaFound=%v, want service-contract/true", got.Method, got.SchemaFound)
	}
	if want := []string{"operation", "taskId", "fromRole", "toRole", "message"}; !reflect.DeepEqual(inputNames(got.Inputs), want) {
		t.Errorf("inputs = %v, want %v", inputNames(got.Inputs), want)
	}
	if want := []string{"operation", "taskId", "fromRole", "toRole"}; !reflect.DeepEqual(requiredNames(got.Inputs), want) {
		t.Errorf("required = %v, want %v", requiredNames(got.Inputs), want)
	}
	if !reflect.DeepEqual(got.Essential, essentialInputs) {
		t.Errorf("essential = %v", got.Essential)
	}
}

func TestExtractInputsTaskCreateRequiresFullIntake(t *testing.T) {
	action := &task.StepAction{
		Name: "create-task", Type: task.ActionServiceCall,
		ServiceName: SvcTask, Operation: "create",
	}
	got := ExtractInputs(action)
	want := []string{
		"operation", "taskData", "description", "codebaseAnalysis",
		"businessRequirements", "technicalRequirements", "acceptanceCriteria",
	}
	if !reflect.DeepEqual(requiredNames(got.Inputs), want) {
		t.Errorf("required = %v, want %v", requiredNames(got.Inputs), want)
	}
}

func TestExtractInputsFromTemplates(t *testing.T) {
	action := &task.StepAction{
		Name: "analyze", Type: task.ActionAnalysis,
		ActionData: map[string]any{
			"prompt": "Analyze {{analysisScope}} within {{projectPath}}",
			"nested": map[string]any{"focus": "look at {{ depth }}"},
			"list":   []any{"include {{analysisScope}}"},
		},
	}
	got := ExtractInputs(action)
	if got.Method != methodTemplateScan || !got.SchemaFound {
		t.Fatalf("method=%q schemaFound=%v, want template-scan/true", got.Method, got.SchemaFound)
	}
	// Keys scan in sorted order and duplicates collapse.
	if want := []string{"analysisScope", "depth", "projectPath"}; !reflect.DeepEqual(inputNames(got.Inputs), want) {
		t.Errorf("inputs = %v, want %v", inputNames(got.Inputs), want)
	}
}

func TestExtractInputsActionTypeDefaults(t *testing.T) {
	cases := []struct {
		typ  task.ActionType
		want []string
	}{
		{task.ActionValidation, []string{"validationCriteria", "executionData"}},
		{task.ActionCommand, []string{"command", "workingDirectory"}},
		{task.ActionDelegation, []string{"targetRole", "delegationMessage"}},
		{task.ActionFileOperation, []string{"filePath"}},
	}
	for _, tc := range cases {
		got := ExtractInputs(&task.StepAction{Name: "act", Type: tc.typ})
		if got.Method != methodActionDefaults {
			t.Errorf("%s: method = %q, want action-defaults", tc.typ, got.Method)
			continue
		}
		if !reflect.DeepEqual(inputNames(got.Inputs), tc.want) {
			t.Errorf("%s: inputs = %v, want %v", tc.typ, inputNames(got.Inputs), tc.want)
		}
	}
}

func TestExtractInputsFallback(t *testing.T) {
	for name, action := range map[string]*task.StepAction{
		"nil action":     nil,
		"unknown type":   {Name: "odd", Type: task.ActionType("mystery")},
		"no usable data": {Name: "odd", Type: task.ActionType("mystery"), ActionData: map[string]any{"static": 7}},
	} {
		got := ExtractInputs(action)
		if got.Method != methodFallback || got.SchemaFound {
			t.Errorf("%s: method=%q schemaFound=%v, want fallback/false", name, got.Method, got.SchemaFound)
		}
		if want := []string{"operation", "executionData"}; !reflect.DeepEqual(inputNames(got.Inputs), want) {
			t.Errorf("%s: inputs = %v, want %v", name, inputNames(got.Inputs), want)
		}
	}
}

func TestExtractInputsContractBeatsTemplates(t *testing.T) {
	// A service-call action with templated data keeps the contract as
	// its method; templated names append without duplicating taskId.
	action := &task.StepAction{
		Name: "record", Type: task.ActionServiceCall,
		ServiceName: SvcResearch, Operation: "get_research",
		ActionData: map[string]any{"query": "report for {{taskId}} about {{topic}}"},
	}
	got := ExtractInputs(action)
	if got.Method != methodServiceContract {
		t.Fatalf("method = %q, want service-contract", got.Method)
	}
	names := inputNames(got.Inputs)
	if want := []string{"operation", "taskId", "topic"}; !reflect.DeepEqual(names, want) {
		t.Errorf("inputs = %v, want %v", names, want)
	}
	// The contract's required taskId wins over the template duplicate.
	if !got.Inputs[1].Required {
		t.Error("taskId lost its required flag to the template duplicate")
	}
}

func TestCapOptionalKeepsRequired(t *testing.T) {
	inputs := []InputSpec{
		req("a", "string", ""),
		opt("o1", "string", ""), opt("o2", "string", ""),
		req("b", "string", ""),
		opt("o3", "string", ""), opt("o4", "string", ""), opt("o5", "string", ""),
	}
	got := capOptional(inputs, optionalGuidanceCap)
	if want := []string{"a", "o1", "o2", "b", "o3"}; !reflect.DeepEqual(inputNames(got), want) {
		t.Errorf("capped = %v, want %v", inputNames(got), want)
	}
}

func TestMissingInputs(t *testing.T) {
	c, ok := LookupContract(SvcWorkflow, "escalate")
	if !ok {
		t.Fatal("escalate contract missing")
	}
	missing := missingInputs(c, map[string]any{
		"taskId":   "t1",
		"fromRole": "",
		"reason":   nil,
	})
	if want := []string{"fromRole", "reason"}; !reflect.DeepEqual(missing, want) {
		t.Errorf("missing = %v, want %v", missing, want)
	}
	if missing := missingInputs(c, map[string]any{
		"taskId": "t1", "fromRole": "researcher", "reason": "stuck",
	}); missing != nil {
		t.Errorf("complete payload reported missing = %v", missing)
	}
}

func TestContractTableIsWellFormed(t *testing.T) {
	services := Services()
	if len(services) != 6 {
		t.Fatalf("services = %v, want 6", services)
	}
	for _, svc := range services {
		ops := Operations(svc)
		if len(ops) == 0 {
			t.Errorf("service %s has no operations", svc)
		}
		for _, op := range ops {
			c, ok := LookupContract(svc, op)
			if !ok {
				t.Fatalf("%s.%s vanished between listing and lookup", svc, op)
			}
			if c.Service != svc || c.Operation != op {
				t.Errorf("%s.%s: contract identifies as %s.%s", svc, op, c.Service, c.Operation)
			}
			seen := map[string]bool{}
			for _, in := range append(append([]InputSpec{}, c.Required...), c.Optional...) {
				if in.Name == "" || in.Type == "" {
					t.Errorf("%s.%s: input with empty name or type", svc, op)
				}
				if seen[in.Name] {
					t.Errorf("%s.%s: duplicate input %q", svc, op, in.Name)
				}
				seen[in.Name] = true
			}
			for _, in := range c.Required {
				if !in.Required {
					t.Errorf("%s.%s: %q listed required but not flagged", svc, op, in.Name)
				}
			}
		}
	}
	if Operations("NoSuchService") != nil {
		t.Error("unknown service returned operations")
	}
}
