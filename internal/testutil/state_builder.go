package testutil

import (
	"github.com/hupe1980/supervisor/core"
)

// StateBuilder helps construct task states with fluent chaining for tests.
// Example:
//
//	s := NewStateBuilder("write a post").Result("researcher", "facts").Iterations(1).Build()
type StateBuilder struct {
	state core.TaskState
}

// NewStateBuilder starts from core.NewTaskState(task).
func NewStateBuilder(task string) *StateBuilder {
	return &StateBuilder{state: core.NewTaskState(task)}
}

// Result records output as worker's result and appends the matching agent
// message (chainable).
func (b *StateBuilder) Result(worker, output string) *StateBuilder {
	b.state.Results[worker] = output
	b.state.Messages = append(b.state.Messages, core.NewAgentMessage(worker, output))
	return b
}

// Message appends a raw transcript entry (chainable).
func (b *StateBuilder) Message(m core.Message) *StateBuilder {
	b.state.Messages = append(b.state.Messages, m)
	return b
}

// Iterations sets the iteration counter (chainable).
func (b *StateBuilder) Iterations(n int) *StateBuilder {
	b.state.IterationCount = n
	return b
}

// Next sets the routing slot (chainable).
func (b *StateBuilder) Next(name string) *StateBuilder {
	b.state.NextAgent = name
	return b
}

// Build returns a copy of the assembled state.
func (b *StateBuilder) Build() core.TaskState {
	return b.state.Clone()
}
