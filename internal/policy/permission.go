// Package policy holds the pure decision functions for the document
// lifecycle: system-wide permissions and workflow transition rules.
// Nothing in this package performs I/O.
package policy

type SystemRole string
type WorkflowRole string

const (
	RoleAdmin  SystemRole = "ADMIN"
	RoleQMB    SystemRole = "QMB"
	RoleUser   SystemRole = "USER"
	RoleViewer SystemRole = "VIEWER"
)

const (
	WorkflowAuthor   WorkflowRole = "AUTHOR"
	WorkflowReviewer WorkflowRole = "REVIEWER"
	WorkflowApprover WorkflowRole = "APPROVER"
)

// CurrentUser is the minimal user shape policy decisions need.
type CurrentUser struct {
	ID               string
	Role             SystemRole
	CanStartWorkflow bool
}

func (u CurrentUser) isPrivileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleQMB
}

// CanStartWorkflow reports whether the user may start a workflow anywhere.
// Admin/QMB always may; regular users need the explicit grant.
func CanStartWorkflow(user CurrentUser) bool {
	return user.isPrivileged() || user.CanStartWorkflow
}

// CanAbortWorkflow reports whether the user may abort a running workflow.
// An empty starterID means the starter is unknown and contributes deny.
func CanAbortWorkflow(user CurrentUser, starterID string) bool {
	if starterID != "" && user.ID == starterID {
		return true
	}
	return user.isPrivileged()
}

// CanEditRoles reports whether the user may edit per-document assignments.
func CanEditRoles(user CurrentUser) bool {
	return user.isPrivileged()
}

// CanPublish reports whether the user may release an approved document.
func CanPublish(user CurrentUser) bool {
	return user.isPrivileged()
}

// CanArchive reports whether the user may archive published documents.
func CanArchive(user CurrentUser) bool {
	return user.isPrivileged()
}

func NormalizeSystemRole(role string) SystemRole {
	switch SystemRole(role) {
	case RoleAdmin, RoleQMB, RoleUser, RoleViewer:
		return SystemRole(role)
	default:
		return RoleViewer
	}
}
