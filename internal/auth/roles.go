package auth

// Role is a staff role.
type Role string

const (
	// RoleViewer may read ledgers, statements and the catalog.
	RoleViewer Role = "viewer"
	// RoleBursar may also record payments.
	RoleBursar Role = "bursar"
	// RoleAdmin may also assign fees, amend discounts, waive and delete entries
	// and manage the catalog.
	RoleAdmin Role = "admin"
)

// NormalizeRole validates a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleViewer, RoleBursar, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// RoleAtLeast reports whether role satisfies required.
func RoleAtLeast(role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleBursar:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
