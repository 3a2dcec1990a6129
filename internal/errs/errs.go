// Package errs defines the error taxonomy shared by every worker so the
// job queue can classify failures as retryable or terminal without each
// package inventing its own convention.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec.md §7 does.
type Kind string

const (
	// Transient failures (timeouts, 5xx, rate limits, busy daemons) are
	// retried with backoff.
	Transient Kind = "transient"
	// Auth failures trip a cooldown after one refresh attempt.
	Auth Kind = "auth"
	// NotFound is terminal for the operation that hit it.
	NotFound Kind = "not_found"
	// Conflict is resolved by component policy, never retried blindly.
	Conflict Kind = "conflict"
	// Validation failures are terminal and recorded with detail.
	Validation Kind = "validation"
	// Integrity failures roll back side effects and open a circuit.
	Integrity Kind = "integrity"
	// Fatal means an invariant was violated; the job is marked dead and
	// an operator should look at it.
	Fatal Kind = "fatal"
)

// Error wraps an underlying error with a Kind for queue classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap is a convenience for fmt.Errorf-style wrapping with a kind.
func Wrap(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Fatal when the error
// was never classified — an unclassified error is treated conservatively
// as non-retryable so a bug doesn't spin a job forever.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// Retryable reports whether the job queue should schedule another
// attempt for err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transient, Auth:
		return true
	default:
		return false
	}
}
