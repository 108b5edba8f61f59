package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for admission and lifecycle failures. These are returned
// synchronously to the caller; nothing gets enqueued when they fire.
var (
	ErrQueueFull            = errors.New("queue is at capacity")
	ErrShuttingDown         = errors.New("gateway is shutting down")
	ErrReasoningUnavailable = errors.New("reasoning backend is not usable")

	// ErrNoAlternativeBackend is internal to the dispatch retry path: the
	// second resolve produced nothing but the backend that just failed.
	// Callers never see it; the original backend error is surfaced instead.
	ErrNoAlternativeBackend = errors.New("no alternative backend available")
)

// ConfigError indicates bad startup configuration. It is fatal: the
// process refuses to start.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Reason
}

// UnknownBackendError is returned when a caller explicitly names a backend
// that was never registered. An explicit request for a nonexistent resource
// is a caller error, not a routing decision.
type UnknownBackendError struct {
	Name string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown backend %q", e.Name)
}

type BackendErrorKind int

const (
	ErrKindConnection BackendErrorKind = iota
	ErrKindTimeout
)

// BackendError wraps a transport-level failure from a backend invocation.
// Connection and timeout failures trigger the single retry-with-fallback;
// everything else from a provider is terminal.
type BackendError struct {
	Backend string
	Kind    BackendErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	switch e.Kind {
	case ErrKindTimeout:
		return fmt.Sprintf("backend %s timed out: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("backend %s unreachable: %v", e.Backend, e.Err)
	}
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a backend connection or timeout
// failure, the only failures that permit the one fallback attempt.
func IsRetryable(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
