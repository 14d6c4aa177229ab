package loader

import (
	"context"

	"github.com/pkg/errors"
)

// ErrSlotDone is returned by a slot behavior when that slot has no more work. The pool stops
// invoking the behavior for the slot and does not report it as a failure.
var ErrSlotDone = errors.New("slot finished")

type transientError struct {
	err error
}

func (t transientError) Error() string   { return t.err.Error() }
func (t transientError) Cause() error    { return t.err }
func (t transientError) Unwrap() error   { return t.err }
func (t transientError) Temporary() bool { return true }

// Transient marks err as a transient transport failure (connectivity, contention, throttling).
// Transports should wrap errors they expect to clear up on a later attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err, or any error it wraps, is marked transient or exposes a
// Temporary() bool method returning true.
func IsTransient(err error) bool {
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// isCancellation reports whether err should be treated as normal shutdown: either the context
// has already been cancelled when the error is observed, or the error is a cancellation itself.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
