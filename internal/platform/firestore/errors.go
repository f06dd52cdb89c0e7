package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is the repositories.RepositoryError implementation for Firestore failures.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports precondition, abort and already-exists failures.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports transient backend failures.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies err by its gRPC code. Context cancellation passes through unchanged so callers
// can match it with errors.Is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}

	wrapped := &Error{op: op, err: err}
	switch code {
	case codes.NotFound:
		wrapped.notFound = true
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		wrapped.conflict = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		wrapped.unavailable = true
	}
	return wrapped
}
