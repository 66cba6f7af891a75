package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedUpdate is matched by every *MalformedUpdateError.
	ErrMalformedUpdate = errors.New("malformed update")

	// ErrWorkerExecutionFailed is matched by every *WorkerExecutionFailedError.
	ErrWorkerExecutionFailed = errors.New("worker execution failed")

	// ErrPolicyDecisionFailed is matched by every *PolicyDecisionFailedError.
	ErrPolicyDecisionFailed = errors.New("policy decision failed")

	// ErrServiceUnavailable is returned by model adapters when the provider
	// cannot be reached or answers with a server error.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrRateLimited is returned by model adapters when the provider throttles.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionNotFound means no checkpoint and no initial state exist for a thread.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy means the thread already has a run in progress.
	ErrSessionBusy = errors.New("session already running")

	// ErrCheckpointNotFound is returned by stores for threads without checkpoints.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrUnknownWorker is returned when a decision names an unregistered worker.
	ErrUnknownWorker = errors.New("unknown worker")
)

// MalformedUpdateError reports a partial update outside the permitted field
// set of the node that produced it.
type MalformedUpdateError struct {
	Field  string
	Reason string
}

func (e *MalformedUpdateError) Error() string {
	return fmt.Sprintf("malformed update: field %q: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedUpdate) succeed.
func (e *MalformedUpdateError) Is(target error) bool { return target == ErrMalformedUpdate }

// WorkerExecutionFailedError wraps the cause of a failed worker invocation.
type WorkerExecutionFailedError struct {
	Worker string
	Cause  error
}

// NewWorkerExecutionFailed wraps cause unless it already is a
// *WorkerExecutionFailedError.
func NewWorkerExecutionFailed(worker string, cause error) error {
	var wf *WorkerExecutionFailedError
	if errors.As(cause, &wf) {
		return wf
	}
	return &WorkerExecutionFailedError{Worker: worker, Cause: cause}
}

func (e *WorkerExecutionFailedError) Error() string {
	return fmt.Sprintf("worker %q execution failed: %v", e.Worker, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *WorkerExecutionFailedError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrWorkerExecutionFailed) succeed.
func (e *WorkerExecutionFailedError) Is(target error) bool { return target == ErrWorkerExecutionFailed }

// PolicyDecisionFailedError wraps a failed Controller policy call.
type PolicyDecisionFailedError struct {
	Cause error
}

func (e *PolicyDecisionFailedError) Error() string {
	return fmt.Sprintf("policy decision failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PolicyDecisionFailedError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrPolicyDecisionFailed) succeed.
func (e *PolicyDecisionFailedError) Is(target error) bool { return target == ErrPolicyDecisionFailed }
