package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/logging"
)

// Options configure a Router.
type Options struct {
	// MaxIterations is the hard ceiling on completed worker invocations.
	MaxIterations int
	// HistoryWindow is the number of trailing messages a policy sees.
	HistoryWindow int
	Logger        logging.Logger
}

// DefaultOptions returns the default router settings.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 10,
		HistoryWindow: 5,
		Logger:        logging.NoOpLogger{},
	}
}

// Router is the Controller node. It never dispatches to anything but a
// registered worker or core.Finish.
type Router struct {
	policy  core.Policy
	workers []core.WorkerInfo
	names   []string
	opts    Options
}

// New creates a Router over workers in registration order.
func New(policy core.Policy, workers []core.WorkerInfo, optFns ...func(o *Options)) (*Router, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if policy == nil {
		return nil, fmt.Errorf("router: policy is required")
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("router: at least one worker is required")
	}
	if opts.MaxIterations < 0 {
		return nil, fmt.Errorf("router: max iterations must not be negative")
	}

	names := make([]string, 0, len(workers))
	seen := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		key := strings.ToLower(w.Name)
		if w.Name == "" || strings.EqualFold(w.Name, core.Finish) {
			return nil, fmt.Errorf("router: invalid worker name %q", w.Name)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("router: duplicate worker name %q", w.Name)
		}
		seen[key] = struct{}{}
		names = append(names, w.Name)
	}

	return &Router{
		policy:  policy,
		workers: append([]core.WorkerInfo(nil), workers...),
		names:   names,
		opts:    opts,
	}, nil
}

// Workers returns the registered workers in registration order.
func (r *Router) Workers() []core.WorkerInfo {
	return append([]core.WorkerInfo(nil), r.workers...)
}

// MaxIterations returns the ceiling.
func (r *Router) MaxIterations() int { return r.opts.MaxIterations }

// IsRegistered reports whether name is a registered worker.
func (r *Router) IsRegistered(name string) bool {
	for _, n := range r.names {
		if n == name {
			return true
		}
	}
	return false
}

// DecisionContext builds the bounded policy view of state.
func (r *Router) DecisionContext(state core.TaskState) core.DecisionContext {
	results := make(map[string]string, len(state.Results))
	for k, v := range state.Results {
		results[k] = v
	}

	return core.DecisionContext{
		Task:          state.Task,
		Iteration:     state.IterationCount,
		MaxIterations: r.opts.MaxIterations,
		Results:       results,
		Recent:        state.RecentMessages(r.opts.HistoryWindow),
		Workers:       r.Workers(),
	}
}

// Route decides the next node. The ceiling check runs before, and cannot be
// overridden by, the policy. Policy failures are returned as
// *core.PolicyDecisionFailedError; unusable policy output is a FINISH.
func (r *Router) Route(ctx context.Context, state core.TaskState) (core.Decision, error) {
	if state.IterationCount >= r.opts.MaxIterations {
		return core.Decision{Next: core.Finish, Reason: core.ReasonIterationCeiling}, nil
	}

	proposal, err := r.policy.Decide(ctx, r.DecisionContext(state))
	if err != nil {
		return core.Decision{}, &core.PolicyDecisionFailedError{Cause: err}
	}

	decision := r.resolve(proposal)

	r.opts.Logger.Debug("router.decision",
		"iteration", state.IterationCount,
		"next", decision.Next,
		"reason", string(decision.Reason),
		"degraded", decision.Degraded,
	)

	return decision, nil
}

// resolve turns a proposal into a decision: a structured tag naming a worker
// or FINISH wins; otherwise the tag and then the text are matched by
// substring; otherwise FINISH.
func (r *Router) resolve(p core.Proposal) core.Decision {
	tag := strings.TrimSpace(p.Worker)
	raw := p.Text
	if raw == "" {
		raw = tag
	}

	if tag != "" {
		if strings.EqualFold(tag, core.Finish) {
			return core.Decision{Next: core.Finish, Reason: core.ReasonPolicy, Raw: raw}
		}
		for _, name := range r.names {
			if strings.EqualFold(tag, name) {
				return core.Decision{Next: name, Raw: raw}
			}
		}
	}

	for _, text := range []string{tag, p.Text} {
		if name, ok := MatchWorker(text, r.names); ok {
			return core.Decision{Next: name, Degraded: true, Raw: raw}
		}
	}

	if _, ok := MatchWorker(p.Text, []string{core.Finish}); ok {
		return core.Decision{Next: core.Finish, Reason: core.ReasonPolicy, Degraded: true, Raw: raw}
	}

	return core.Decision{Next: core.Finish, Reason: core.ReasonNoMatch, Degraded: true, Raw: raw}
}

// MatchWorker returns the first name, in the given order, that occurs in
// text ignoring case.
func MatchWorker(text string, names []string) (string, bool) {
	if text == "" {
		return "", false
	}

	upper := strings.ToUpper(text)
	for _, name := range names {
		if strings.Contains(upper, strings.ToUpper(name)) {
			return name, true
		}
	}

	return "", false
}
