package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventInitialized           ActivityEventType = "session.initialized"
	ActivityEventInitRetry             ActivityEventType = "session.init.retry"
	ActivityEventDegraded              ActivityEventType = "session.degraded"
	ActivityEventCleared               ActivityEventType = "session.cleared"
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventRegisterSuccess       ActivityEventType = "auth.register.success"
	ActivityEventRegisterFailure       ActivityEventType = "auth.register.failure"
	ActivityEventLogout                ActivityEventType = "auth.logout"
	ActivityEventProfileUpdated        ActivityEventType = "auth.profile.updated"
	ActivityEventPasswordChanged       ActivityEventType = "auth.password.changed"
	ActivityEventProfileUpdateFailure  ActivityEventType = "auth.profile.update.failure"
	ActivityEventPasswordChangeFailure ActivityEventType = "auth.password.change.failure"
	ActivityEventPasswordForgot        ActivityEventType = "auth.password.forgot"
)

// Reasons attached to ActivityEventCleared.
const (
	ClearReasonLogout          = "logout"
	ClearReasonSessionRequired = "session_required"
	ClearReasonInitFailure     = "init_failure"
)

// ActivityEvent captures audit-friendly information about a session change.
type ActivityEvent struct {
	ID         string
	EventType  ActivityEventType
	UserID     UserID
	FromState  State
	ToState    State
	Attempt    int
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to several sinks and returns the first error.
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func (m *Manager) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error", "event", event.EventType, "error", err)
	}
}
