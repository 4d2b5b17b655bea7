package identity

// UserRole is the user's platform-wide role
type UserRole = string

const (
	// RoleStudent is the default role assigned at registration
	RoleStudent UserRole = "student"
	// RoleParent manages one or more student accounts
	RoleParent UserRole = "parent"
	// RoleTeacher can publish and manage course offerings
	RoleTeacher UserRole = "teacher"
	// RoleInstitution represents an organization account
	RoleInstitution UserRole = "institution"
	// RoleAdmin reviews role applications and administers accounts
	RoleAdmin UserRole = "admin"
)

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleStudent, RoleParent, RoleTeacher, RoleInstitution, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsRequestableRole reports whether a user may apply for the role through the
// role application workflow. Admin is granted administratively, never through
// self-service.
func IsRequestableRole(r UserRole) bool {
	switch r {
	case RoleParent, RoleTeacher, RoleInstitution:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleStudent,
		RoleParent,
		RoleTeacher,
		RoleInstitution,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// RoleIn reports whether role is contained in the allowed set. An empty set
// allows any authenticated caller.
func RoleIn(role UserRole, allowed ...UserRole) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
