package session

import (
	goerrors "github.com/goliatone/go-errors"
)

// Role is the marketplace role of a user.
type Role string

const (
	// RoleUser can browse, list own cars and keep a wishlist
	RoleUser Role = "user"
	// RoleDealer is a user with a dealer sub profile
	RoleDealer Role = "dealer"
	// RoleAdmin can moderate listings and users
	RoleAdmin Role = "admin"
)

var roleHierarchy = map[Role]int{
	RoleUser:   0,
	RoleDealer: 1,
	RoleAdmin:  2,
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	current, ok := roleHierarchy[r]
	if !ok {
		return false
	}
	required, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}
	return current >= required
}

// ParseRole safely parses a string into a Role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// GetAllRoles returns all roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{RoleUser, RoleDealer, RoleAdmin}
}

// RequireRole is the route guard check: it fails with ErrSessionRequired for
// anonymous snapshots and with a forbidden error when the role is too low.
func RequireRole(s Snapshot, minRole Role) error {
	if !s.Authenticated {
		return ErrSessionRequired
	}
	if s.IsAtLeast(minRole) {
		return nil
	}
	return goerrors.New("insufficient role", goerrors.CategoryAuthz).
		WithTextCode(TextCodeInsufficientRole).
		WithCode(goerrors.CodeForbidden).
		WithMetadata(map[string]any{
			"required": string(minRole),
			"role":     string(s.User.Role),
		})
}
