// Package supervisor is the session entry point of a supervised multi-worker
// workflow. A Supervisor wires a routing policy, a team of workers, a
// checkpoint store and a logger into an engine.Executor and exposes the
// session lifecycle:
//  1. StartSession persists the initial state of a new thread
//  2. ResumeSession streams the steps of a thread from its last checkpoint
//  3. GetResult and History read the persisted state back
//
// Run and RunBatch combine these for the common start-and-drain case.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/supervisor/checkpoint"
	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/engine"
	"github.com/hupe1980/supervisor/logging"
)

// Options configures a Supervisor.
type Options struct {
	// EngineConfig holds the iteration ceiling, history window, step timeout
	// and event buffering.
	EngineConfig engine.Config

	// MaxConcurrentSessions bounds RunBatch. Values below 1 mean 1.
	MaxConcurrentSessions int

	// Store defaults to an in-memory checkpoint store.
	Store core.CheckpointStore

	// Callbacks are passed to the executor.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Result is the outcome of a session as recorded in its latest checkpoint.
type Result struct {
	ThreadID   string
	Task       string
	Results    map[string]string
	Iterations int
	Transcript []core.Message
	Finished   bool
	Sequence   int64
}

// Supervisor is the high-level façade over the executor and its store.
type Supervisor struct {
	opts     Options
	executor *engine.Executor
}

// New creates a Supervisor for workers routed by policy.
func New(workers []core.Worker, policy core.Policy, optFns ...func(o *Options)) (*Supervisor, error) {
	opts := Options{
		EngineConfig:          engine.DefaultConfig,
		MaxConcurrentSessions: 4,
		Logger:                logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Store == nil {
		opts.Store = checkpoint.NewInMemoryStore()
	}
	if opts.MaxConcurrentSessions < 1 {
		opts.MaxConcurrentSessions = 1
	}

	exec, err := engine.New(policy, workers, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Store = opts.Store
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
	})
	if err != nil {
		return nil, err
	}

	return &Supervisor{opts: opts, executor: exec}, nil
}

// Executor exposes the underlying executor.
func (s *Supervisor) Executor() *engine.Executor { return s.executor }

// StartSession creates a thread for task and persists its initial
// checkpoint. No worker runs until the session is resumed.
func (s *Supervisor) StartSession(ctx context.Context, task string) (string, error) {
	if task == "" {
		return "", fmt.Errorf("task must not be empty")
	}

	threadID := core.NewID()
	if _, err := s.opts.Store.Save(ctx, threadID, core.NewTaskState(task)); err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}

	s.opts.Logger.Info("session.started", "thread_id", threadID)

	return threadID, nil
}

// ResumeSession runs threadID from its latest checkpoint and returns the
// event stream. Resuming a finished session yields a single finish event.
func (s *Supervisor) ResumeSession(ctx context.Context, threadID string) (<-chan core.StepEvent, error) {
	return s.executor.Run(ctx, threadID, nil)
}

// Stop cancels the active run of threadID after its current step.
func (s *Supervisor) Stop(threadID string) error {
	return s.executor.Stop(threadID)
}

// GetResult reads the latest checkpoint of threadID.
func (s *Supervisor) GetResult(ctx context.Context, threadID string) (*Result, error) {
	cp, err := s.opts.Store.LoadLatest(ctx, threadID)
	if errors.Is(err, core.ErrCheckpointNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, threadID)
	}
	if err != nil {
		return nil, err
	}

	return resultFrom(cp), nil
}

// History returns every checkpoint of threadID in sequence order.
func (s *Supervisor) History(ctx context.Context, threadID string) ([]core.Checkpoint, error) {
	cps, err := s.opts.Store.List(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, threadID)
	}
	return cps, nil
}

// Run starts a session for task, drains its events and returns the result.
// A failed run returns the result at the last good checkpoint together with
// the error carried by the error event.
func (s *Supervisor) Run(ctx context.Context, task string) (*Result, []core.StepEvent, error) {
	threadID, err := s.StartSession(ctx, task)
	if err != nil {
		return nil, nil, err
	}

	events, err := s.ResumeSession(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}

	var (
		collected []core.StepEvent
		runErr    error
	)
	for ev := range events {
		collected = append(collected, ev)
		if ev.Kind == core.EventError {
			runErr = ev.Err
		}
	}

	if runErr == nil {
		runErr = ctx.Err()
	}

	res, err := s.GetResult(context.WithoutCancel(ctx), threadID)
	if err != nil {
		return nil, collected, err
	}

	return res, collected, runErr
}

// RunBatch runs one session per task concurrently, at most
// MaxConcurrentSessions at a time. Results are returned in task order. The
// first failing session cancels the sessions that have not started yet.
func (s *Supervisor) RunBatch(ctx context.Context, tasks []string) ([]*Result, error) {
	results := make([]*Result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrentSessions)

	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, _, err := s.Run(gctx, task)
			results[i] = res
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func resultFrom(cp *core.Checkpoint) *Result {
	results := make(map[string]string, len(cp.State.Results))
	for k, v := range cp.State.Results {
		results[k] = v
	}

	return &Result{
		ThreadID:   cp.ThreadID,
		Task:       cp.State.Task,
		Results:    results,
		Iterations: cp.State.IterationCount,
		Transcript: append([]core.Message(nil), cp.State.Messages...),
		Finished:   cp.State.Finished(),
		Sequence:   cp.Sequence,
	}
}
