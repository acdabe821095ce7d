package session

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSessionRequired    = "SESSION_REQUIRED"
	TextCodeInitializing       = "SESSION_INITIALIZING"
	TextCodeStorageKeyNotFound = "STORAGE_KEY_NOT_FOUND"
	TextCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	TextCodeInvalidTransition  = "INVALID_SESSION_TRANSITION"
	TextCodeInsufficientRole   = "INSUFFICIENT_ROLE"
)

// ErrSessionRequired is returned when an operation needs an authenticated user.
var ErrSessionRequired = goerrors.New("session required", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInitializing is returned by login and register while the boot
// sequence has not resolved yet.
var ErrInitializing = goerrors.New("session is initializing", goerrors.CategoryConflict).
	WithTextCode(TextCodeInitializing).
	WithCode(goerrors.CodeConflict)

// ErrStorageKeyNotFound is returned by Storage implementations for missing keys.
var ErrStorageKeyNotFound = goerrors.New("storage key not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeStorageKeyNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStorageUnavailable is returned by writes when no Storage was configured.
var ErrStorageUnavailable = goerrors.New("storage unavailable", goerrors.CategoryInternal).
	WithTextCode(TextCodeStorageUnavailable)

// ErrInvalidTransition is logged when the manager is asked to move between
// states the lifecycle does not allow.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryInternal).
	WithTextCode(TextCodeInvalidTransition)

// NetworkError is a transport failure: the request never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a backend side failure identified by its HTTP status.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Message)
}

// ValidationError is rejected input. Message is meant to be shown verbatim.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// IsServerStatus reports whether err is a *ServerError with the given status.
func IsServerStatus(err error, status int) bool {
	var serr *ServerError
	if errors.As(err, &serr) {
		return serr.Status == status
	}
	return false
}

// IsTransientServerError reports the only condition the boot sequence
// treats as recoverable: a ServerError with status 500.
func IsTransientServerError(err error) bool {
	return IsServerStatus(err, http.StatusInternalServerError)
}

// IsNetworkError reports whether err is a *NetworkError.
func IsNetworkError(err error) bool {
	var nerr *NetworkError
	return errors.As(err, &nerr)
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// UserMessage renders err as a message suitable for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return "Unable to reach the server. Check your connection and try again."
	}

	var serr *ServerError
	if errors.As(err, &serr) {
		if serr.Message != "" {
			return serr.Message
		}
		return fmt.Sprintf("The server could not complete the request (status %d).", serr.Status)
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}

	return err.Error()
}

// validationErrorFrom converts ozzo validation errors into a *ValidationError.
// Other errors are returned unchanged.
func validationErrorFrom(err error, message string) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	flattenValidationErrors("", verrs, fields)

	return &ValidationError{Message: message, Fields: fields}
}

func flattenValidationErrors(prefix string, verrs validation.Errors, out map[string]string) {
	for key, ferr := range verrs {
		if ferr == nil {
			continue
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		var nested validation.Errors
		if errors.As(ferr, &nested) {
			flattenValidationErrors(name, nested, out)
			continue
		}
		out[name] = ferr.Error()
	}
}
