// Package apperr defines the error taxonomy shared across the service.
// Every remote-call failure is classified into one of these categories
// before it reaches a user-facing surface.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates input rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrAuth indicates a failure reported by the identity provider.
	ErrAuth = errors.New("authentication failed")
	// ErrPermission indicates a write rejected by access rules.
	ErrPermission = errors.New("permission denied")
	// ErrNotFound indicates a referenced document, object, or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrTransient indicates a network or service failure; the caller may
	// retry by re-invoking the action. Nothing retries automatically.
	ErrTransient = errors.New("transient failure")
)

// Validation wraps a reason into ErrValidation.
func Validation(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Validationf wraps a formatted reason into ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Permission wraps a reason into ErrPermission.
func Permission(reason string) error {
	return fmt.Errorf("%w: %s", ErrPermission, reason)
}

// NotFound wraps a reason into ErrNotFound.
func NotFound(reason string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, reason)
}

// Transient wraps an underlying failure into ErrTransient, preserving the
// cause for logs while keeping the user-facing category coarse.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Classify maps an arbitrary error into the taxonomy. Errors already in a
// category pass through; context cancellation and everything else becomes
// transient.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrAuth),
		errors.Is(err, ErrPermission),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrTransient):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Transient(err)
	default:
		return Transient(err)
	}
}

// UserMessage returns the user-readable text for a classified error,
// distinguishing permission and auth failures from generic transient ones.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrAuth):
		return "Authentication failed. Please sign in again."
	case errors.Is(err, ErrPermission):
		return "You don't have permission to do that."
	case errors.Is(err, ErrNotFound):
		return "The requested item could not be found."
	default:
		return "Something went wrong. Please try again."
	}
}
