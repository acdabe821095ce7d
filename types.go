package session

import (
	"context"
	"fmt"
	"time"
)

// Logger is the logging contract used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AuthClient wraps the remote auth endpoints. Implementations hold no
// session state; every call may fail with a *NetworkError, a *ServerError
// or a *ValidationError.
type AuthClient interface {
	Login(ctx context.Context, credentials Credentials) (*AuthResult, error)
	Register(ctx context.Context, data RegistrationData) (*AuthResult, error)
	// RefreshToken exchanges the stored refresh token for a new pair. The
	// implementation updates the TokenStore; the returned pair may be nil.
	RefreshToken(ctx context.Context) (*CredentialPair, error)
	GetProfile(ctx context.Context) (*User, error)
	UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error)
	ChangePassword(ctx context.Context, current, next string) error
	ForgotPassword(ctx context.Context, email string) error
	// Logout is a best-effort server side invalidation.
	Logout(ctx context.Context) error
}

// ProfileStatusChecker is implemented by clients that can report whether
// the current user finished the profile onboarding.
type ProfileStatusChecker interface {
	ProfileStatus(ctx context.Context) (ProfileStatus, error)
}

// ProfileStatus is the onboarding state reported by the backend.
type ProfileStatus struct {
	Completed     bool     `json:"completed"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Credentials is the login payload.
type Credentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

// AuthResult is returned by login and register.
type AuthResult struct {
	User   *User          `json:"user"`
	Tokens CredentialPair `json:"tokens"`
}

// Timer abstracts the wait between initialization attempts.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }

func (defLogger) print(level, msg string, args ...any) {
	line := "[" + level + "] SESSION " + msg
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			line += fmt.Sprintf(" %v", args[i])
		}
	}
	fmt.Print(newline(line))
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
