package session

import "context"

// ProfileGatePolicy decides what ProfileComplete reports when the backend
// status check fails.
type ProfileGatePolicy int

const (
	// ProfileGateFromProfile falls back to the ProfileCompleted flag of the
	// current user.
	ProfileGateFromProfile ProfileGatePolicy = iota
	// ProfileGateFailOpen treats the profile as complete.
	ProfileGateFailOpen
	// ProfileGateFailClosed treats the profile as incomplete.
	ProfileGateFailClosed
)

func (p ProfileGatePolicy) String() string {
	switch p {
	case ProfileGateFailOpen:
		return "fail_open"
	case ProfileGateFailClosed:
		return "fail_closed"
	default:
		return "from_profile"
	}
}

// ParseProfileGatePolicy maps a config value to a policy. Unknown values
// resolve to ProfileGateFromProfile.
func ParseProfileGatePolicy(s string) ProfileGatePolicy {
	switch s {
	case "fail_open", "open":
		return ProfileGateFailOpen
	case "fail_closed", "closed":
		return ProfileGateFailClosed
	default:
		return ProfileGateFromProfile
	}
}

// WithProfileStatusChecker sets the checker used by ProfileComplete. When
// unset the AuthClient is used if it implements ProfileStatusChecker.
func WithProfileStatusChecker(c ProfileStatusChecker) ManagerOption {
	return func(m *Manager) {
		m.statusChecker = c
	}
}

// ProfileComplete reports whether the signed in user finished onboarding.
// Anonymous sessions always report false.
func (m *Manager) ProfileComplete(ctx context.Context) bool {
	user := m.User()
	if user == nil {
		return false
	}

	checker := m.statusChecker
	if checker == nil {
		if c, ok := m.client.(ProfileStatusChecker); ok {
			checker = c
		}
	}
	if checker == nil {
		return user.ProfileCompleted
	}

	status, err := checker.ProfileStatus(ctx)
	if err == nil {
		return status.Completed
	}

	m.logger.Warn("profile status check failed", "policy", m.profileGate.String(), "error", err)

	switch m.profileGate {
	case ProfileGateFailOpen:
		return true
	case ProfileGateFailClosed:
		return false
	default:
		return user.ProfileCompleted
	}
}
