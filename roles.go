package auth

// IsValidRole checks if the role is one of the predefined valid roles.
// The enumeration is exhaustive; any other value is invalid input.
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleUser, RoleEmployee, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, IsValidRole(role)
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleEmployee,
		RoleAdmin,
	}
}

// RoleIn reports whether the role is in the allowed set.
func RoleIn(role UserRole, allowed ...UserRole) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

// IsValidState checks the account state enumeration.
func IsValidState(s AccountState) bool {
	switch s {
	case StatePendingVerification, StateActive, StateBanned:
		return true
	default:
		return false
	}
}

// ParseState safely parses a string into an AccountState.
func ParseState(stateStr string) (AccountState, bool) {
	state := AccountState(stateStr)
	return state, IsValidState(state)
}
