// Package apperr defines the closed taxonomy of error kinds that cross
// component boundaries, per the error handling design: every external
// boundary returns one of these kinds instead of an ad hoc error string.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies which of the documented error categories an Error belongs to.
type Kind string

const (
	// KindValidation: malformed input at a boundary. Never propagates into a Session.
	KindValidation Kind = "validation"
	// KindAuth: missing or expired bearer/admin credentials.
	KindAuth Kind = "auth"
	// KindForbidden: credentials valid but missing a required scope.
	KindForbidden Kind = "forbidden"
	// KindQuotaExceeded: a tenant-level capacity limit was hit.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindOverloaded: a process-wide concurrency cap was hit.
	KindOverloaded Kind = "overloaded"
	// KindDependencyFailure: an external service timed out or errored. Degrades the Session.
	KindDependencyFailure Kind = "dependency_failure"
	// KindInvariantViolation: an internal contract was broken. Fatal to the Session.
	KindInvariantViolation Kind = "invariant_violation"
	// KindFatal: the process cannot continue serving new work.
	KindFatal Kind = "fatal"
	// KindNotFound: resource absent or belongs to a different tenant (never KindAuth/Forbidden).
	KindNotFound Kind = "not_found"
	// KindAgentUnavailable: Session.open() targeted an Agent not in idle status.
	KindAgentUnavailable Kind = "agent_unavailable"
)

// Error is the single error type returned across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperr.KindX) style checks via a sentinel wrapper.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) *Error          { return New(KindValidation, msg) }
func NotFound(msg string) *Error            { return New(KindNotFound, msg) }
func Unauthorized(msg string) *Error        { return New(KindAuth, msg) }
func Forbidden(msg string) *Error           { return New(KindForbidden, msg) }
func QuotaExceeded(msg string) *Error       { return New(KindQuotaExceeded, msg) }
func Overloaded(msg string) *Error          { return New(KindOverloaded, msg) }
func DependencyFailure(msg string, cause error) *Error {
	return Wrap(KindDependencyFailure, msg, cause)
}
func InvariantViolation(msg string) *Error { return New(KindInvariantViolation, msg) }
func AgentUnavailable(msg string) *Error   { return New(KindAgentUnavailable, msg) }
func Fatal(msg string, cause error) *Error { return Wrap(KindFatal, msg, cause) }

// KindOf extracts the Kind from err, defaulting to KindFatal for unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// HTTPStatus maps a Kind to the HTTP status code the client/admin API returns.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return 400
	case KindAuth:
		return 401
	case KindForbidden:
		return 403
	case KindNotFound:
		return 404
	case KindQuotaExceeded, KindOverloaded:
		return 429
	case KindAgentUnavailable:
		return 409
	case KindDependencyFailure:
		return 502
	case KindInvariantViolation, KindFatal:
		return 500
	default:
		return 500
	}
}
