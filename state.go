package session

// State is the lifecycle state of the Manager.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateInitializing   State = "initializing"
	StateAuthenticated  State = "authenticated"
	StateAnonymous      State = "anonymous"
	StateDegradedCached State = "degraded_cached"
)

// transitions is the allowed transition graph. Staying in the same state
// is always allowed.
var transitions = map[State]map[State]struct{}{
	StateUninitialized: {
		StateInitializing: {},
	},
	StateInitializing: {
		StateAuthenticated:  {},
		StateAnonymous:      {},
		StateDegradedCached: {},
	},
	StateAuthenticated: {
		StateAnonymous: {},
	},
	StateDegradedCached: {
		StateAnonymous:     {},
		StateAuthenticated: {},
	},
	StateAnonymous: {
		StateAuthenticated: {},
	},
}

// CanTransition reports whether the lifecycle allows moving from one state to another.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	_, ok := transitions[from][to]
	return ok
}

// IsResolved reports whether the boot sequence produced an outcome.
func (s State) IsResolved() bool {
	switch s {
	case StateAuthenticated, StateAnonymous, StateDegradedCached:
		return true
	default:
		return false
	}
}

// Snapshot is a read-only copy of the session state handed to consumers.
type Snapshot struct {
	State            State `json:"state"`
	User             *User `json:"user,omitempty"`
	Authenticated    bool  `json:"authenticated"`
	Initializing     bool  `json:"initializing"`
	ServerErrorCount int   `json:"server_error_count"`
}

// Degraded reports whether the session runs on a cached profile.
func (s Snapshot) Degraded() bool {
	return s.State == StateDegradedCached
}

// HasRole checks the user's role.
func (s Snapshot) HasRole(role Role) bool {
	return s.User != nil && s.User.Role == role
}

// IsAtLeast checks the user's role against the hierarchy.
func (s Snapshot) IsAtLeast(minRole Role) bool {
	return s.User != nil && s.User.Role.IsAtLeast(minRole)
}
