package worker

import (
	"context"
	"fmt"

	"github.com/hupe1980/supervisor/core"
)

// BaseWorker carries the identity shared by all workers. Embed it in
// concrete implementations.
type BaseWorker struct {
	name        string
	description string
}

// NewBaseWorker creates a BaseWorker. An empty description defaults to
// "Worker <name>".
func NewBaseWorker(name, description string) BaseWorker {
	if description == "" {
		description = fmt.Sprintf("Worker %s", name)
	}
	return BaseWorker{name: name, description: description}
}

// Name returns the worker's registered name.
func (b BaseWorker) Name() string { return b.name }

// Description returns what the worker is good at.
func (b BaseWorker) Description() string { return b.description }

// NewResult builds the canonical worker update: output appended to the
// transcript, stored under results[name] and the iteration counter advanced
// by one.
func NewResult(name string, state core.TaskState, output string) core.PartialState {
	return core.PartialState{
		Messages:       []core.Message{core.NewAgentMessage(name, output)},
		Results:        map[string]string{name: output},
		IterationCount: core.Int(state.IterationCount + 1),
	}
}

// FuncWorker adapts a function producing the worker output.
type FuncWorker struct {
	BaseWorker
	fn func(ctx context.Context, state core.TaskState) (string, error)
}

// NewFuncWorker creates a FuncWorker.
func NewFuncWorker(name, description string, fn func(ctx context.Context, state core.TaskState) (string, error)) *FuncWorker {
	return &FuncWorker{BaseWorker: NewBaseWorker(name, description), fn: fn}
}

// Invoke calls the function and wraps its output as a result.
func (w *FuncWorker) Invoke(ctx context.Context, state core.TaskState) (core.PartialState, error) {
	out, err := w.fn(ctx, state)
	if err != nil {
		return core.PartialState{}, core.NewWorkerExecutionFailed(w.Name(), err)
	}
	return NewResult(w.Name(), state, out), nil
}
