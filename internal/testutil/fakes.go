package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/supervisor/core"
)

// ScriptedPolicy returns its proposals in order and FINISH once they are
// exhausted. It records every decision context it saw.
type ScriptedPolicy struct {
	mu        sync.Mutex
	proposals []core.Proposal
	seen      []core.DecisionContext
}

// NewScriptedPolicy creates a policy that proposes names in order. A name
// is sent as a structured tag.
func NewScriptedPolicy(names ...string) *ScriptedPolicy {
	p := &ScriptedPolicy{}
	for _, n := range names {
		p.proposals = append(p.proposals, core.Proposal{Worker: n})
	}
	return p
}

// NewTextPolicy creates a policy that answers with free text only.
func NewTextPolicy(texts ...string) *ScriptedPolicy {
	p := &ScriptedPolicy{}
	for _, t := range texts {
		p.proposals = append(p.proposals, core.Proposal{Text: t})
	}
	return p
}

// Decide implements core.Policy.
func (p *ScriptedPolicy) Decide(_ context.Context, dc core.DecisionContext) (core.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen = append(p.seen, dc)
	if len(p.proposals) == 0 {
		return core.Proposal{Worker: core.Finish}, nil
	}

	next := p.proposals[0]
	p.proposals = p.proposals[1:]
	return next, nil
}

// Calls returns how many decisions were requested.
func (p *ScriptedPolicy) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// Seen returns the recorded decision contexts.
func (p *ScriptedPolicy) Seen() []core.DecisionContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.DecisionContext(nil), p.seen...)
}

// EchoWorker answers "<name>: <task> #<iteration>" and counts invocations.
// Hook, when set, runs before the answer is produced and may fail the call.
type EchoWorker struct {
	WorkerName string
	Hook       func(ctx context.Context, state core.TaskState) error

	mu    sync.Mutex
	calls int
}

// NewEchoWorker creates an EchoWorker named name.
func NewEchoWorker(name string) *EchoWorker {
	return &EchoWorker{WorkerName: name}
}

// Name implements core.Worker.
func (w *EchoWorker) Name() string { return w.WorkerName }

// Description implements core.Worker.
func (w *EchoWorker) Description() string { return "echoes the task" }

// Invoke implements core.Worker.
func (w *EchoWorker) Invoke(ctx context.Context, state core.TaskState) (core.PartialState, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()

	if w.Hook != nil {
		if err := w.Hook(ctx, state); err != nil {
			return core.PartialState{}, err
		}
	}

	out := fmt.Sprintf("%s: %s #%d", w.WorkerName, state.Task, state.IterationCount+1)

	return core.PartialState{
		Messages:       []core.Message{core.NewAgentMessage(w.WorkerName, out)},
		Results:        map[string]string{w.WorkerName: out},
		IterationCount: core.Int(state.IterationCount + 1),
	}, nil
}

// Calls returns the number of invocations.
func (w *EchoWorker) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
