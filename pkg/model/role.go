package model

// Role identifies a specialized behavior profile. The set is closed;
// adding a role means adding a constant here and a row to the router's
// transition table.
type Role string

const (
	// RolePrimary is the general assistant and the entry state for every
	// new session.
	RolePrimary Role = "primary"

	// RoleStatus investigates project status from channel history.
	RoleStatus Role = "status"

	// RoleActivity summarizes a user's channel activity.
	RoleActivity Role = "activity"

	// RoleArchivist curates long-lived memory records.
	RoleArchivist Role = "archivist"
)

// Roles returns all known roles.
func Roles() []Role {
	return []Role{RolePrimary, RoleStatus, RoleActivity, RoleArchivist}
}

// Valid reports whether the role is a member of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RolePrimary, RoleStatus, RoleActivity, RoleArchivist:
		return true
	}
	return false
}

// PrimaryTask is the role's declared core responsibility. Reflection
// output must keep referencing it; the reflection engine checks this
// before accepting rewritten instructions.
func (r Role) PrimaryTask() string {
	switch r {
	case RolePrimary:
		return "answer project-status questions"
	case RoleStatus:
		return "investigate project status from channel messages"
	case RoleActivity:
		return "summarize user activity across channels"
	case RoleArchivist:
		return "curate stored memory records"
	default:
		return ""
	}
}
