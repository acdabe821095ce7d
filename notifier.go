package session

import "context"

// Severity of a user facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notification is a one-shot toast style message.
type Notification struct {
	Severity Severity
	Message  string
}

// Notifier receives notifications for terminal outcomes of session operations.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	if f != nil {
		f(ctx, n)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

const (
	msgLoginSuccess    = "Welcome back!"
	msgRegisterSuccess = "Your account has been created."
	msgLogoutSuccess   = "You have been logged out."
	msgProfileUpdated  = "Profile updated."
	msgPasswordUpdated = "Password updated."
	msgDegradedCache   = "Using cached data, some features may be limited."
	msgSessionRequired = "Your session has expired, please log in again."
)
