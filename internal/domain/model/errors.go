package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors forming the domain error taxonomy.
var (
	// ErrNotFound indicates the requested external or internal resource is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the credential is invalid or expired and must be refreshed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServiceUnavailable indicates an upstream error or rate limit.
	ErrServiceUnavailable = errors.New("external service unavailable")

	// ErrValidation indicates malformed input to a sync or metrics request.
	ErrValidation = errors.New("validation failed")

	// ErrSyncInProgress indicates a run for the same account is already executing.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ErrorKind classifies an error for callers that must not see raw errors.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "not_found"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindValidation         ErrorKind = "validation"
	KindConflict           ErrorKind = "conflict"
	KindCanceled           ErrorKind = "canceled"
	KindUnexpected         ErrorKind = "unexpected"
)

// RateLimitError is the raw platform signal that the request quota is exhausted.
// It is translated into a ServiceUnavailableError by the retry policy.
type RateLimitError struct {
	Reset time.Time
	Err   error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.Reset.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ServiceUnavailableError reports an upstream failure with an optional retry hint.
// RetryAfter is zero when the upstream gave no hint.
type ServiceUnavailableError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *ServiceUnavailableError) Error() string {
	var b strings.Builder
	b.WriteString("external service unavailable")
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrServiceUnavailable) hold for every ServiceUnavailableError.
func (e *ServiceUnavailableError) Is(target error) bool {
	return target == ErrServiceUnavailable
}

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// KindOf classifies err into the error taxonomy.
func KindOf(err error) ErrorKind {
	var rl *RateLimitError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSyncInProgress):
		return KindConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &rl), errors.Is(err, ErrServiceUnavailable):
		return KindServiceUnavailable
	default:
		return KindUnexpected
	}
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var su *ServiceUnavailableError
	if errors.As(err, &su) {
		return su.RetryAfter
	}
	return 0
}

// SplitFullName splits "owner/name" into its two segments.
func SplitFullName(fullName string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", &ValidationError{Field: "full_name", Reason: fmt.Sprintf("must be owner/name, got %q", fullName)}
	}
	return owner, name, nil
}
