package errors

import (
	"errors"
	"strings"
)

// Sentinels for domain errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")
	ErrTimeout     = errors.New("timed out")
)

// ValidationError lists every problem found on a rule. It unwraps to ErrValidation.
type ValidationError struct {
	Subject string
	Issues  []string
}

// NewValidationError builds a ValidationError, or nil when there are no issues.
func NewValidationError(subject string, issues []string) error {
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Subject: subject, Issues: issues}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	if e.Subject != "" {
		b.WriteString(": ")
		b.WriteString(e.Subject)
	}
	if len(e.Issues) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Issues, "; "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As re-exported so callers only import one errors package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
