package models

// Role enumerates the caller roles the auth layer can resolve.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleWorker Role = "worker"
)

// Principal is the already-authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
