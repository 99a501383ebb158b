package workflow

import "github.com/nidhogg/overseer/internal/task"

// validateMutable rejects operations on terminal tasks.
func validateMutable(t *task.Task, op string) *Error {
	if t.Status.IsTerminal() {
		return errf(CodeInvalidState, op, "task %s is %s and accepts no further operations", t.ID, t.Status)
	}
	return nil
}

// validateOwner checks that role names a known role and currently owns
// the task.
func validateOwner(t *task.Task, role task.Role, op string) *Error {
	if !role.Valid() {
		return validationErr(op, "unknown role "+string(role), "roleId")
	}
	if t.Owner != role {
		return errf(CodeInvalidOwnership, op, "task %s is owned by %s, not %s", t.ID, t.Owner, role)
	}
	return nil
}

// escalationTargets maps each role to where its escalations land.
// The coordinator has nowhere to escalate to.
var escalationTargets = map[task.Role]task.Role{
	task.RoleResearcher:      task.RoleCoordinator,
	task.RoleArchitect:       task.RoleCoordinator,
	task.RoleSeniorDeveloper: task.RoleArchitect,
	task.RoleCodeReview:      task.RoleCoordinator,
}

// EscalationTarget reports where escalations from r land, if anywhere.
func EscalationTarget(r task.Role) (task.Role, bool) {
	target, ok := escalationTargets[r]
	return target, ok
}
