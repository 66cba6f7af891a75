package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestWorkerExecutionFailedError(t *testing.T) {
	cause := fmt.Errorf("upstream: %w", ErrRateLimited)
	err := NewWorkerExecutionFailed("researcher", cause)

	if !errors.Is(err, ErrWorkerExecutionFailed) {
		t.Fatal("expected ErrWorkerExecutionFailed")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected cause to be reachable")
	}

	var wf *WorkerExecutionFailedError
	if !errors.As(err, &wf) || wf.Worker != "researcher" {
		t.Fatalf("unexpected error %#v", err)
	}

	again := NewWorkerExecutionFailed("other", fmt.Errorf("wrapped: %w", err))
	if !errors.As(again, &wf) || wf.Worker != "researcher" {
		t.Fatalf("expected existing worker failure to be kept, got %v", again)
	}
}

func TestPolicyDecisionFailedError(t *testing.T) {
	err := error(&PolicyDecisionFailedError{Cause: ErrServiceUnavailable})

	if !errors.Is(err, ErrPolicyDecisionFailed) || !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("unexpected chain for %v", err)
	}
	if errors.Is(err, ErrWorkerExecutionFailed) {
		t.Fatal("policy failure must not match worker failure")
	}
}
