package core

import (
	"context"
	"fmt"
)

// Worker is a node wrapping one specialised capability. From the executor's
// point of view Invoke is a function from the full state to a partial update
// restricted to WorkerFields: appended messages, the single results entry
// keyed by Name and the incremented iteration counter.
//
// Failures should be reported as *WorkerExecutionFailedError; the executor
// wraps anything else.
type Worker interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, state TaskState) (PartialState, error)
}

// ValidateWorkerUpdate checks the worker specific rules on top of Merge:
// the update must not route, must write exactly its own results entry and
// must advance the iteration counter by exactly one.
func ValidateWorkerUpdate(name string, current TaskState, partial PartialState) error {
	if partial.NextAgent != nil {
		return &MalformedUpdateError{Field: "next_agent", Reason: fmt.Sprintf("worker %q may not route", name)}
	}

	if len(partial.Results) != 1 {
		return &MalformedUpdateError{Field: "results", Reason: fmt.Sprintf("worker %q must write exactly one result, got %d", name, len(partial.Results))}
	}

	if _, ok := partial.Results[name]; !ok {
		return &MalformedUpdateError{Field: "results", Reason: fmt.Sprintf("worker %q may only write its own result", name)}
	}

	if partial.IterationCount == nil || *partial.IterationCount != current.IterationCount+1 {
		return &MalformedUpdateError{Field: "iteration_count", Reason: fmt.Sprintf("worker %q must increment the counter to %d", name, current.IterationCount+1)}
	}

	return nil
}
