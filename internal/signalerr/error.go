// Package signalerr implements the kind-tagged error results mandated by
// spec §7, replacing exception-driven control flow. It is grounded on the
// teacher's providers/guards/guard.go ProviderError: a struct carrying retry
// guidance rather than a bare error string.
package signalerr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind is one of the six error kinds the core must distinguish (§7).
type Kind string

const (
	KindTransientNetwork Kind = "transient_network"
	KindRateLimited      Kind = "rate_limited"
	KindProviderEmpty    Kind = "provider_empty"
	KindTimeout          Kind = "timeout"
	KindCancelled        Kind = "cancelled"
	KindFatal            Kind = "fatal"
)

// Error is the kind-tagged result type threaded through the pipeline.
type Error struct {
	Kind       Kind
	Provider   string
	Message    string
	RetryAfter time.Duration
	Wrapped    error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (provider=%s)", e.Kind, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Retryable mirrors the propagation policy of §7: TransientNetwork recovers
// via retry, ProviderEmpty/Timeout recover locally without retry (failover or
// fallback), Cancelled/Fatal always surface.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransientNetwork
}

// Surfaces reports whether this kind must propagate upward rather than be
// absorbed locally.
func (e *Error) Surfaces() bool {
	return e.Kind == KindCancelled || e.Kind == KindFatal
}

func New(kind Kind, provider, message string, wrapped error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Wrapped: wrapped}
}

func Transient(provider, message string, wrapped error) *Error {
	return New(KindTransientNetwork, provider, message, wrapped)
}

func ProviderEmpty(provider, message string) *Error {
	return New(KindProviderEmpty, provider, message, nil)
}

func Timeout(provider, message string) *Error {
	return New(KindTimeout, provider, message, nil)
}

func Cancelled(message string) *Error {
	return New(KindCancelled, "", message, context.Canceled)
}

func Fatal(provider, message string, wrapped error) *Error {
	return New(KindFatal, provider, message, wrapped)
}

// FromContext converts a context error into the Cancelled or Timeout kind,
// matching §7's rule that a timeout is a normal failure while cancellation
// must surface and never be swallowed.
func FromContext(ctx context.Context, provider string) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return Cancelled("context cancelled")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Timeout(provider, "deadline exceeded")
	default:
		return nil
	}
}

// Of unwraps err into a *Error if one is anywhere in its chain.
func Of(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
