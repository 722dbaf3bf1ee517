package kafkax

import (
	"context"
	"errors"
	"fmt"
)

// FailureClass is the closed classification a handler failure resolves to.
type FailureClass string

const (
	// FailureRetryable marks transient faults (upstream timeout, broken
	// connection) that should be retried with backoff.
	FailureRetryable FailureClass = "RETRYABLE"
	// FailurePermanent marks faults that will never succeed on retry
	// (malformed payload, rejected by a downstream validator).
	FailurePermanent FailureClass = "PERMANENT"
)

// RetryableError signals the handler failed transiently and should be
// retried with exponential backoff.
type RetryableError struct {
	Reason string
	Err    error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retryable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("retryable: %s", e.Reason)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError signals the handler failed in a way retrying cannot fix.
// The message goes straight to the dead-letter sink.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("permanent: %s", e.Reason)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable handler failure.
func Retryable(reason string, err error) error {
	return &RetryableError{Reason: reason, Err: err}
}

// Permanent wraps err as a permanent handler failure.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// Classify maps a handler error to its failure class. Unclassified errors
// default to retryable so nothing is silently dropped; the attempt bound
// still applies.
func Classify(err error) FailureClass {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return FailurePermanent
	}
	return FailureRetryable
}

// FailureReason extracts the classified reason, falling back to the error
// string for unclassified failures.
func FailureReason(err error) string {
	var retry *RetryableError
	if errors.As(err, &retry) {
		return retry.Reason
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.Reason
	}
	return err.Error()
}

// Handler processes one decoded event. A nil return commits the message;
// a *RetryableError schedules a retry; a *PermanentError dead-letters it.
// Any other non-nil error is treated as retryable. Delivery is at least
// once, so handlers must be idempotent or duplicate-tolerant.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle calls f(ctx, msg).
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
