package catalog

import "github.com/nidhogg/overseer/internal/task"

// Builtin returns the default step catalog for every role. Steps are
// keyed by stable IDs so directory overrides can replace them
// individually.
func Builtin() []*task.WorkflowStep {
	return []*task.WorkflowStep{
		// --- coordinator ---
		{
			ID: "coordinator-intake", RoleID: task.RoleCoordinator,
			Name: "intake", DisplayName: "Intake and Triage", Sequence: 1,
			Description: "Understand what is being asked, record it as a task and decide which role should pick it up first.",
			Behavioral: &task.BehavioralContext{
				Approach: "Clarify the request before routing it. A vague task bounces between roles; a sharp one moves in a straight line.",
				Principles: []string{
					"Exactly one role owns a task at any moment",
					"Acceptance criteria are written down before work starts",
					"Unknowns go to the researcher, not into assumptions",
				},
				Methodology: "triage",
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Read the request and restate it in one sentence",
					"Record business and technical requirements on the task",
					"Write acceptance criteria that can be checked mechanically",
					"Decide whether research is needed before planning",
				},
				ErrorHandling: []string{
					"If the request cannot be restated in one sentence, ask for clarification instead of delegating",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "coordinator-intake-analyze", StepID: "coordinator-intake",
					Name: "analyze-request", Type: task.ActionAnalysis, Sequence: 1,
					Description: "Assess scope, urgency and which parts of the codebase the request touches",
					Required:    true,
				},
				{
					ID: "coordinator-intake-route", StepID: "coordinator-intake",
					Name: "choose-route", Type: task.ActionDecision, Sequence: 2,
					Description: "Pick the first role for the task",
					ActionData: map[string]any{
						"options": []any{"researcher", "architect", "senior-developer"},
						"prompt":  "Route the task using {{decisionCriteria}}",
					},
				},
			},
		},
		{
			ID: "coordinator-delegate", RoleID: task.RoleCoordinator,
			Name: "delegate", DisplayName: "Delegate Work", Sequence: 2,
			Description: "Hand the task to the chosen role with enough context to act on.",
			Behavioral: &task.BehavioralContext{
				Approach: "A handoff without context is a redelegation waiting to happen. Say what is known, what is wanted and what done looks like.",
				Principles: []string{
					"The delegation message states the expected deliverable",
					"Redelegations carry what changed since the last attempt",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Summarize the task state for the receiving role",
					"Name the deliverable you expect back",
					"Delegate through the workflow service so the audit trail stays intact",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "coordinator-delegate-handoff", StepID: "coordinator-delegate",
					Name: "delegate-task", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "WorkflowOperations", Operation: "delegate",
					Description: "Hand the task to the selected role",
					Required:    true,
				},
			},
		},
		{
			ID: "coordinator-review", RoleID: task.RoleCoordinator,
			Name: "final-review", DisplayName: "Final Review", Sequence: 3,
			Description: "Verify the returned work against the acceptance criteria and finalize or send it back.",
			Behavioral: &task.BehavioralContext{
				Approach: "The coordinator is the last line before a task closes. Check the evidence, not the summary.",
				Principles: []string{
					"Only the coordinator finalizes a task",
					"Unmet criteria send work back with a concrete list of gaps",
				},
			},
			Checklist: []string{
				"Every acceptance criterion has evidence attached",
				"The code review verdict is approved or the reservations are acceptable",
				"Completion data names the files that changed",
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Re-read the acceptance criteria recorded at intake",
					"Check each criterion against the completion data",
					"Finalize the task, or route it back with needs-changes",
				},
				ErrorHandling: []string{
					"When evidence is missing, request it instead of assuming the work happened",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "coordinator-review-verify", StepID: "coordinator-review",
					Name: "verify-outcome", Type: task.ActionValidation, Sequence: 1,
					Description: "Check the completion data against the acceptance criteria",
					Required:    true,
				},
				{
					ID: "coordinator-review-finalize", StepID: "coordinator-review",
					Name: "finalize-task", Type: task.ActionServiceCall, Sequence: 2,
					ServiceName: "WorkflowOperations", Operation: "complete",
					Description: "Close the task or send it back for changes",
				},
			},
		},

		// --- researcher ---
		{
			ID: "researcher-scope", RoleID: task.RoleResearcher,
			Name: "scope", DisplayName: "Scope the Question", Sequence: 1,
			Description: "Turn the delegation message into concrete questions the research must answer.",
			Behavioral: &task.BehavioralContext{
				Approach: "Research without a question list produces trivia. Write the questions first, then go looking.",
				Principles: []string{
					"Each question names where its answer will come from",
					"Scope creep gets a comment, not silent expansion",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"List the questions the architect will need answered",
					"Rank them by how much the plan depends on them",
					"Note which parts of the codebase each touches",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "researcher-scope-define", StepID: "researcher-scope",
					Name: "define-scope", Type: task.ActionAnalysis, Sequence: 1,
					Description: "Write the question list for this task",
					ActionData: map[string]any{
						"prompt": "Derive research questions for {{analysisScope}} under {{projectPath}}",
					},
					Required: true,
				},
			},
		},
		{
			ID: "researcher-investigate", RoleID: task.RoleResearcher,
			Name: "investigate", DisplayName: "Investigate", Sequence: 2,
			Description: "Answer the scoped questions from the codebase and prior task history.",
			Behavioral: &task.BehavioralContext{
				Approach: "Prefer primary sources: the code, the schema, the commit history. Summaries of summaries drift.",
				Principles: []string{
					"Every finding cites the file or source it came from",
					"Dead ends are findings too",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Read the files each question points at",
					"Record findings as you go, with their sources",
					"Collect open questions you could not answer",
				},
				ErrorHandling: []string{
					"If a source is unreachable, record the gap rather than guessing",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "researcher-investigate-read", StepID: "researcher-investigate",
					Name: "read-sources", Type: task.ActionFileOperation, Sequence: 1,
					Description: "Work through the files the scope named",
					ActionData:  map[string]any{"path": "{{filePath}}"},
					Required:    true,
				},
			},
		},
		{
			ID: "researcher-report", RoleID: task.RoleResearcher,
			Name: "report", DisplayName: "Record Findings", Sequence: 3,
			Description: "Write the research report and hand the task back.",
			Checklist: []string{
				"Findings cite the files or sources they come from",
				"Open questions are listed, not silently dropped",
				"Recommendations are actionable by the architect",
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Summarize answers per scoped question",
					"Record the report through the research service",
					"Complete your portion so the task moves on",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "researcher-report-record", StepID: "researcher-report",
					Name: "record-findings", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "ResearchOperations", Operation: "create_research",
					Description: "Store the research report on the task",
					Required:    true,
				},
				{
					ID: "researcher-report-handback", StepID: "researcher-report",
					Name: "hand-back", Type: task.ActionServiceCall, Sequence: 2,
					ServiceName: "WorkflowOperations", Operation: "complete",
					Description: "Mark the research portion done",
				},
			},
		},

		// --- architect ---
		{
			ID: "architect-absorb", RoleID: task.RoleArchitect,
			Name: "absorb", DisplayName: "Absorb the Research", Sequence: 1,
			Description: "Read the research report and the task history before planning anything.",
			Behavioral: &task.BehavioralContext{
				Approach: "Plans built on unread research repeat the researcher's dead ends.",
				Principles: []string{
					"Disagreements with the research get written down",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Fetch the research report",
					"Map findings onto the acceptance criteria",
					"Note constraints the plan must respect",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "architect-absorb-fetch", StepID: "architect-absorb",
					Name: "fetch-research", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "ResearchOperations", Operation: "get_research",
					Description: "Pull the stored research report",
					Required:    true,
				},
			},
		},
		{
			ID: "architect-plan", RoleID: task.RoleArchitect,
			Name: "plan", DisplayName: "Write the Plan", Sequence: 2,
			Description: "Write the implementation plan the developer will execute.",
			Behavioral: &task.BehavioralContext{
				Approach: "A plan is a sequence of verifiable states, not a prose essay. Each phase should leave the system working.",
				Principles: []string{
					"The plan covers every acceptance criterion",
					"Risky work lands early, not last",
				},
				Methodology: "incremental-delivery",
			},
			Patterns: &task.PatternEnforcement{
				RequiredPatterns: []string{
					"Phases ordered so each leaves the system deployable",
					"Every phase names its verification step",
				},
				AntiPatterns: []string{
					"Big-bang phases that only integrate at the end",
					"Plans that restate the request instead of decomposing it",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Outline the phases and their order",
					"Map each acceptance criterion to a phase",
					"Record the plan through the planning service",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "architect-plan-write", StepID: "architect-plan",
					Name: "write-plan", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "PlanningOperations", Operation: "create_plan",
					Description: "Store the implementation plan",
					Required:    true,
				},
			},
		},
		{
			ID: "architect-batch", RoleID: task.RoleArchitect,
			Name: "batch", DisplayName: "Carve the Batches", Sequence: 3,
			Description: "Split the plan into a subtask batch with explicit dependencies, then hand it to the developer.",
			Checklist: []string{
				"Subtasks are small enough to verify independently",
				"Dependencies between subtasks are explicit",
				"Every subtask carries strategic guidance the developer can act on",
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Carve each phase into subtasks of at most a day",
					"Declare dependencies by subtask name within the batch",
					"Create the batch, then delegate to the senior developer",
				},
				ErrorHandling: []string{
					"A subtask that cannot be verified on its own is two subtasks",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "architect-batch-create", StepID: "architect-batch",
					Name: "create-batch", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "PlanningOperations", Operation: "create_subtasks",
					Description: "Create the subtask batch for the plan",
					Required:    true,
				},
				{
					ID: "architect-batch-handoff", StepID: "architect-batch",
					Name: "hand-to-developer", Type: task.ActionServiceCall, Sequence: 2,
					ServiceName: "WorkflowOperations", Operation: "delegate",
					Description: "Delegate the batch to the senior developer",
				},
			},
		},

		// --- senior-developer ---
		{
			ID: "developer-pick", RoleID: task.RoleSeniorDeveloper,
			Name: "pick", DisplayName: "Pick Up the Next Subtask", Sequence: 1,
			Description: "Ask the subtask service which unit is ready and claim it.",
			Behavioral: &task.BehavioralContext{
				Approach: "Work the batch in dependency order. Starting a blocked subtask early just moves the waiting around.",
				Principles: []string{
					"One subtask in progress at a time",
					"Blocked means blocked; escalate instead of guessing",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Request the next ready subtask",
					"Read its strategic guidance before touching code",
					"Mark it in progress",
				},
				ErrorHandling: []string{
					"If nothing is ready but work remains, a dependency is stuck; escalate to the architect",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "developer-pick-next", StepID: "developer-pick",
					Name: "get-next", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "IndividualSubtaskOperations", Operation: "get_next_subtask",
					Description: "Fetch the next unblocked subtask",
					Required:    true,
				},
			},
		},
		{
			ID: "developer-implement", RoleID: task.RoleSeniorDeveloper,
			Name: "implement", DisplayName: "Implement and Verify", Sequence: 2,
			Description: "Implement the subtask and prove it works before marking it done.",
			Behavioral: &task.BehavioralContext{
				Approach: "The test run is the completion evidence. No green run, no done.",
				Principles: []string{
					"Tests cover the changed behavior",
					"Deviations from the plan are recorded on the subtask",
				},
			},
			Patterns: &task.PatternEnforcement{
				RequiredPatterns: []string{
					"Changes follow the structure the plan laid out",
					"New code paths ship with tests in the same change",
				},
				AntiPatterns: []string{
					"Commenting out failing tests to get to green",
					"Drive-by refactors outside the subtask's scope",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Make the change the subtask describes",
					"Run the verification command for the affected area",
					"Capture the evidence for the completion record",
				},
				ErrorHandling: []string{
					"A failing verification keeps the subtask in progress; never mark it done to move on",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "developer-implement-verify", StepID: "developer-implement",
					Name: "run-verification", Type: task.ActionCommand, Sequence: 1,
					Description: "Run the verification for the changed area",
					ActionData: map[string]any{
						"command": "{{command}}",
						"cwd":     "{{workingDirectory}}",
					},
					Required: true,
				},
			},
		},
		{
			ID: "developer-close", RoleID: task.RoleSeniorDeveloper,
			Name: "close", DisplayName: "Close Out the Subtask", Sequence: 3,
			Description: "Record the completion evidence; when the batch is done, hand the task onward.",
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Complete the subtask with its evidence attached",
					"Pick up the next one while any remain",
					"When the batch completes, finish your portion of the task",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "developer-close-complete", StepID: "developer-close",
					Name: "complete-subtask", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "IndividualSubtaskOperations", Operation: "complete_subtask",
					Description: "Mark the subtask done with evidence",
					Required:    true,
				},
				{
					ID: "developer-close-finish", StepID: "developer-close",
					Name: "finish-portion", Type: task.ActionServiceCall, Sequence: 2,
					ServiceName: "WorkflowOperations", Operation: "complete",
					Description: "Hand the task onward once the batch is done",
				},
			},
		},

		// --- code-review ---
		{
			ID: "review-baseline", RoleID: task.RoleCodeReview,
			Name: "baseline", DisplayName: "Establish the Baseline", Sequence: 1,
			Description: "Load the task, its plan and its history before judging anything.",
			Behavioral: &task.BehavioralContext{
				Approach: "Review against what was asked, not against how you would have built it.",
				Principles: []string{
					"The acceptance criteria are the review rubric",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Fetch the task with its audit trail",
					"Read the plan and the completion evidence",
					"List what you will verify",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "review-baseline-fetch", StepID: "review-baseline",
					Name: "fetch-task", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "TaskOperations", Operation: "get",
					Description: "Load the task with its history",
					ActionData:  map[string]any{"includeAudit": true},
					Required:    true,
				},
			},
		},
		{
			ID: "review-verify", RoleID: task.RoleCodeReview,
			Name: "verify", DisplayName: "Verify Against Criteria", Sequence: 2,
			Description: "Check the implementation against every acceptance criterion.",
			Patterns: &task.PatternEnforcement{
				AntiPatterns: []string{
					"Approving on the strength of the summary alone",
					"Issues reported without file and line context",
				},
			},
			Checklist: []string{
				"Every acceptance criterion is verified, not assumed",
				"Issues include file and line context",
				"Testing notes record what was actually run",
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Verify each criterion against the code and tests",
					"Record per-criterion results as you go",
					"Collect issues with enough context to fix them",
				},
				ErrorHandling: []string{
					"An unverifiable criterion is a finding, not a pass",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "review-verify-criteria", StepID: "review-verify",
					Name: "verify-criteria", Type: task.ActionValidation, Sequence: 1,
					Description: "Check the work against the validation context",
					ActionData: map[string]any{
						"criteria":        "Every acceptance criterion maps to verified code or test evidence",
						"expectedOutcome": "All criteria verified, or each gap recorded as an issue",
						"failureActions": []any{
							"Record each unverified criterion as an issue",
							"Set the verdict to needs-changes with the required changes listed",
						},
					},
					Required: true,
				},
			},
		},
		{
			ID: "review-verdict", RoleID: task.RoleCodeReview,
			Name: "verdict", DisplayName: "Record the Verdict", Sequence: 3,
			Description: "Record the review and route the task by its outcome.",
			Behavioral: &task.BehavioralContext{
				Approach: "The verdict must match the findings. Approving past known issues moves the cost downstream.",
				Principles: []string{
					"A needs-changes verdict names the required changes",
				},
			},
			Approach: &task.ApproachGuidance{
				StepByStep: []string{
					"Record the review with its verdict",
					"Complete your portion; needs-changes routes back to the developer",
				},
			},
			Actions: []task.StepAction{
				{
					ID: "review-verdict-record", StepID: "review-verdict",
					Name: "record-review", Type: task.ActionServiceCall, Sequence: 1,
					ServiceName: "ReviewOperations", Operation: "create_review",
					Description: "Store the review with its verdict",
					Required:    true,
				},
				{
					ID: "review-verdict-route", StepID: "review-verdict",
					Name: "route-by-verdict", Type: task.ActionServiceCall, Sequence: 2,
					ServiceName: "WorkflowOperations", Operation: "complete",
					Description: "Move the task according to the verdict",
				},
			},
		},
	}
}
