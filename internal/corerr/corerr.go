// Package corerr defines the semantic error kinds the core classifies every
// failure into, replacing exception-based control flow with explicit
// {ok|err(kind, cause)} values at each handler boundary.
package corerr

import (
	"errors"
	"fmt"
)

// Kind is a semantic error category. It carries no source-language
// exception type information; it only tells the caller how to react.
type Kind string

const (
	// KindTransient covers HTTP 5xx, timeouts, and network resets. Retry
	// in place; repeated occurrences may trip a circuit breaker.
	KindTransient Kind = "transient_external"
	// KindRateLimited covers HTTP 429. Retry with backoff; opens the
	// circuit once the configured threshold is crossed.
	KindRateLimited Kind = "rate_limited"
	// KindMalformed covers unparseable stream payloads. The cursor still
	// advances past the entry; no DLQ entry is written.
	KindMalformed Kind = "malformed_input"
	// KindHandlerLogical covers exhausted retries or consistent failure.
	// Produces a DLQ entry and advances the cursor.
	KindHandlerLogical Kind = "handler_logical"
	// KindConfig covers missing credentials or an unknown tier. Only the
	// affected channel or model fails; the caller continues.
	KindConfig Kind = "config"
	// KindShutdown covers caller-initiated cancellation. Work in flight
	// is abandoned and the cursor does not advance.
	KindShutdown Kind = "shutdown"
	// KindFatal covers unrecoverable process state. The caller should
	// report to the alert channel and exit non-zero.
	KindFatal Kind = "fatal"
)

// Error wraps a cause with the Kind that determines its disposition.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Newf builds an *Error of the given kind from a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to KindTransient when err
// carries no classification — unclassified failures are treated as
// retryable rather than silently dropped.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
