// Package syncerr defines the closed set of error kinds the synchronization
// engine can fail with, replacing exception-based control flow with an
// explicit sum type that every layer of the engine can switch on.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the ways a synchronization operation can
// fail. New kinds are never added silently: every kind must be handled at
// every call site that inspects it.
type Kind int

const (
	// InvalidArgument is a caller misuse, e.g. a zero max-in-flight limit.
	InvalidArgument Kind = iota
	// OperationCanceled means the run's Canceler fired.
	OperationCanceled
	// AuthenticationFailed means the authenticator could not produce a token.
	AuthenticationFailed
	// AuthenticationExpired means the server rejected a token mid-run; a stop-sync trigger.
	AuthenticationExpired
	// RateLimitReached means the server imposed pacing; a stop-sync trigger.
	RateLimitReached
	// LocalStorageOpenException means the local store could not be opened.
	LocalStorageOpenException
	// LocalStorageOperationException means a local store read/write failed.
	LocalStorageOperationException
	// RuntimeError covers all other failures, carrying a non-localized message.
	RuntimeError
	// ProtocolViolation means the server broke a wire-level invariant (e.g. USN ordering).
	ProtocolViolation
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case OperationCanceled:
		return "OperationCanceled"
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case AuthenticationExpired:
		return "AuthenticationExpired"
	case RateLimitReached:
		return "RateLimitReached"
	case LocalStorageOpenException:
		return "LocalStorageOpenException"
	case LocalStorageOperationException:
		return "LocalStorageOperationException"
	case RuntimeError:
		return "RuntimeError"
	case ProtocolViolation:
		return "ProtocolViolation"
	default:
		return "Unknown"
	}
}

// Error is the engine's single error type. RateLimitSeconds is meaningful
// only when Kind == RateLimitReached, and may be zero if the server did not
// report a duration.
type Error struct {
	Kind             Kind
	Message          string
	RateLimitSeconds int32
	Err              error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, syncerr.New(kind, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func RateLimit(seconds int32) *Error {
	return &Error{Kind: RateLimitReached, Message: "rate limit reached", RateLimitSeconds: seconds}
}

func AuthExpired() *Error {
	return &Error{Kind: AuthenticationExpired, Message: "authentication expired"}
}

func Canceled() *Error {
	return &Error{Kind: OperationCanceled, Message: "operation canceled"}
}

// As extracts a *Error from err, if it is one (directly or wrapped).
func As(err error) (*Error, bool) {
	var se *Error
	ok := errors.As(err, &se)
	return se, ok
}

// OfKind reports whether err is a *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	se, ok := As(err)
	return ok && se.Kind == kind
}

// IsStopSyncTrigger reports whether err should halt the current scope's
// pipeline and be recorded as a partial-result stop-sync error.
func IsStopSyncTrigger(err error) bool {
	return OfKind(err, RateLimitReached) || OfKind(err, AuthenticationExpired)
}
