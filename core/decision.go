package core

import "context"

// Finish is the terminal routing sentinel.
const Finish = "FINISH"

// FinishReason explains why a session terminated.
type FinishReason string

const (
	// ReasonPolicy means the policy chose FINISH.
	ReasonPolicy FinishReason = "policy"
	// ReasonIterationCeiling means the hard iteration ceiling was reached.
	ReasonIterationCeiling FinishReason = "iteration_ceiling"
	// ReasonNoMatch means the policy output named no registered worker.
	ReasonNoMatch FinishReason = "no_match"
	// ReasonAlreadyFinished is reported when resuming a finished session.
	ReasonAlreadyFinished FinishReason = "already_finished"
)

// Decision is the Controller's routing result: a registered worker name or
// Finish.
type Decision struct {
	Next   string
	Reason FinishReason // set when Next is Finish
	// Degraded is true when the worker was picked by substring matching
	// instead of a structured proposal.
	Degraded bool
	Raw      string
}

// IsFinish reports whether the decision terminates the session.
func (d Decision) IsFinish() bool { return d.Next == Finish }

// WorkerInfo describes a registered worker to a policy.
type WorkerInfo struct {
	Name        string
	Description string
}

// DecisionContext is the bounded view of a TaskState handed to a Policy.
type DecisionContext struct {
	Task          string
	Iteration     int
	MaxIterations int
	Results       map[string]string
	Recent        []Message
	Workers       []WorkerInfo
}

// WorkerNames returns the worker names in registration order.
func (dc DecisionContext) WorkerNames() []string {
	names := make([]string, len(dc.Workers))
	for i, w := range dc.Workers {
		names[i] = w.Name
	}
	return names
}

// Proposal is what a Policy answers. Worker is the structured tagged choice
// (a worker name or Finish); Text is any free-form output that accompanied it.
// Either may be empty.
type Proposal struct {
	Worker string
	Text   string
}

// Policy picks the next worker. Implementations usually call an LLM.
type Policy interface {
	Decide(ctx context.Context, dc DecisionContext) (Proposal, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, dc DecisionContext) (Proposal, error)

// Decide calls f.
func (f PolicyFunc) Decide(ctx context.Context, dc DecisionContext) (Proposal, error) {
	return f(ctx, dc)
}
