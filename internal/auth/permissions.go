package auth

import "slices"

// Role is the authorisation tier of an API key.
type Role string

const (
	// RoleViewer may read systems, zones, attributes and history.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally send commands.
	RoleOperator Role = "operator"
)

// Permission represents a named capability in the API.
type Permission string

// Permission constants.
const (
	PermSystemRead   Permission = "system:read"
	PermHistoryRead  Permission = "history:read"
	PermCommandSend  Permission = "command:send"
	PermStreamAccess Permission = "stream:access"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermSystemRead,
		PermHistoryRead,
		PermStreamAccess,
	},
	RoleOperator: {
		PermSystemRead,
		PermHistoryRead,
		PermStreamAccess,
		PermCommandSend,
	},
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := rolePermissions[r]; !ok {
		return "", ErrInvalidRole
	}
	return r, nil
}

// HasPermission reports whether role grants perm. Unknown roles have none.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}
