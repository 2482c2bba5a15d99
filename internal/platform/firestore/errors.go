package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type failureKind uint8

const (
	failureOther failureKind = iota
	failureNotFound
	failureConflict
	failureUnavailable
)

// Error satisfies repositories.RepositoryError. Errors returned by transaction callbacks
// are kept as the cause, so services can still match their own sentinels with errors.Is.
type Error struct {
	op   string
	kind failureKind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == failureNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == failureConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == failureUnavailable }

// IsNotFound reports whether err is a wrapped missing-document failure.
func IsNotFound(err error) bool {
	var fsErr *Error
	return errors.As(err, &fsErr) && fsErr.IsNotFound()
}

func kindOf(code codes.Code) failureKind {
	switch code {
	case codes.NotFound:
		return failureNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return failureConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return failureUnavailable
	default:
		return failureOther
	}
}

// WrapError tags err with op and its failure kind. Cancellation and deadline errors come
// back as the plain context errors so callers map them to timeouts.
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

	var fsErr *Error
	if errors.As(err, &fsErr) {
		if fsErr.op == "" {
			fsErr.op = op
		}
		return fsErr
	}
	return &Error{op: op, kind: kindOf(code), err: err}
}
