package kafkax

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"retryable error", Retryable("upstream timeout", errors.New("dial tcp: timeout")), FailureRetryable},
		{"permanent error", Permanent("malformed payload", nil), FailurePermanent},
		{"wrapped permanent", fmt.Errorf("handle: %w", Permanent("rejected", nil)), FailurePermanent},
		{"wrapped retryable", fmt.Errorf("handle: %w", Retryable("db down", nil)), FailureRetryable},
		{"unclassified defaults to retryable", errors.New("something broke"), FailureRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"retryable reason", Retryable("upstream timeout", errors.New("eof")), "upstream timeout"},
		{"permanent reason", Permanent("missing customer_id", nil), "missing customer_id"},
		{"unclassified uses error string", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureReason(tt.err); got != tt.want {
				t.Errorf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")

	if !errors.Is(Retryable("db", inner), inner) {
		t.Error("RetryableError should unwrap to inner error")
	}
	if !errors.Is(Permanent("bad input", inner), inner) {
		t.Error("PermanentError should unwrap to inner error")
	}
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := HandlerFunc(func(ctx context.Context, msg *Message) error {
		called = true
		return nil
	})
	if err := h.Handle(context.Background(), &Message{}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !called {
		t.Error("handler func was not invoked")
	}
}

func TestStateMachine(t *testing.T) {
	tests := []struct {
		from MessageState
		to   MessageState
		ok   bool
	}{
		{StateReceived, StateProcessing, true},
		{StateProcessing, StateCommitted, true},
		{StateProcessing, StateRetryScheduled, true},
		{StateProcessing, StateDeadLettered, true},
		{StateRetryScheduled, StateProcessing, true},
		{StateReceived, StateCommitted, false},
		{StateCommitted, StateProcessing, false},
		{StateDeadLettered, StateProcessing, false},
		{StateRetryScheduled, StateCommitted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}

	if !StateCommitted.IsTerminal() || !StateDeadLettered.IsTerminal() {
		t.Error("committed and dead-lettered must be terminal")
	}
	if StateProcessing.IsTerminal() || StateRetryScheduled.IsTerminal() {
		t.Error("processing and retry-scheduled must not be terminal")
	}
}
