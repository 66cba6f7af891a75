package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/supervisor/checkpoint"
	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/logging"
	"github.com/hupe1980/supervisor/router"
)

// Config defines the tuning parameters of an Executor.
type Config struct {
	// MaxIterations is the hard ceiling on worker invocations per session.
	MaxIterations int

	// HistoryWindow is the number of trailing messages the routing policy
	// sees on each decision.
	HistoryWindow int

	// StepTimeout bounds each Controller call and each Worker call. Zero
	// disables the bound.
	StepTimeout time.Duration

	// EventBufferSize sets the buffer of the event channel returned by Run.
	EventBufferSize int
}

// DefaultConfig provides the default executor settings.
var DefaultConfig = Config{
	MaxIterations:   10,
	HistoryWindow:   5,
	StepTimeout:     0,
	EventBufferSize: 100,
}

// Options configure an Executor.
type Options struct {
	Config Config

	// Store persists checkpoints. Defaults to an in-memory store.
	Store core.CheckpointStore

	// Logger defaults to a no-op logger. Loggers that also implement
	// logging.StepRecorder receive routing and worker step records.
	Logger logging.Logger

	// Callbacks are optional lifecycle hooks.
	Callbacks *CallbackManager
}

// Executor runs the supervisor graph for many threads. Each run alternates
// between the Controller (a router.Router) and exactly one Worker until the
// Controller answers FINISH. Every completed step is checkpointed, so a run
// can be resumed from the last good state after a crash or a cancellation.
//
// Runs of distinct threads are independent and may execute concurrently.
// Runs of the same thread are strictly sequential; a second Run while one is
// active fails with core.ErrSessionBusy.
type Executor struct {
	router    *router.Router
	workers   map[string]core.Worker
	store     core.CheckpointStore
	logger    logging.Logger
	recorder  logging.StepRecorder
	callbacks *CallbackManager
	config    Config

	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// New creates an Executor for workers, routed by policy. Workers are
// registered in the given order, which is the order of the degraded
// substring match.
func New(policy core.Policy, workers []core.Worker, optFns ...func(o *Options)) (*Executor, error) {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Store == nil {
		opts.Store = checkpoint.NewInMemoryStore()
	}
	if opts.Config.EventBufferSize < 0 {
		opts.Config.EventBufferSize = 0
	}

	infos := make([]core.WorkerInfo, 0, len(workers))
	registry := make(map[string]core.Worker, len(workers))
	for _, w := range workers {
		if w == nil {
			return nil, fmt.Errorf("engine: nil worker")
		}
		infos = append(infos, core.WorkerInfo{Name: w.Name(), Description: w.Description()})
		registry[w.Name()] = w
	}

	r, err := router.New(policy, infos, func(o *router.Options) {
		o.MaxIterations = opts.Config.MaxIterations
		o.HistoryWindow = opts.Config.HistoryWindow
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	recorder, _ := opts.Logger.(logging.StepRecorder)

	return &Executor{
		router:    r,
		workers:   registry,
		store:     opts.Store,
		logger:    opts.Logger,
		recorder:  recorder,
		callbacks: opts.Callbacks,
		config:    opts.Config,
		active:    make(map[string]context.CancelFunc),
	}, nil
}

// Router returns the Controller of this executor.
func (e *Executor) Router() *router.Router { return e.router }

// Store returns the checkpoint store.
func (e *Executor) Store() core.CheckpointStore { return e.store }

// Config returns the executor settings.
func (e *Executor) Config() Config { return e.config }

// Run starts or resumes the session threadID and returns its event stream.
//
// The latest checkpoint of threadID is the starting point. When the thread
// has none, initial is saved as checkpoint 0; when initial is nil as well,
// Run fails with core.ErrSessionNotFound. A thread whose latest checkpoint
// is already finished yields a single finish event and nothing else.
//
// The returned channel is closed when the run ends. The last event is a
// finish or an error event, unless ctx was cancelled (or Stop was called),
// in which case the run stops after the step in flight has been
// checkpointed and no further events are sent.
func (e *Executor) Run(ctx context.Context, threadID string, initial *core.TaskState) (<-chan core.StepEvent, error) {
	if threadID == "" {
		return nil, fmt.Errorf("engine: thread id must not be empty")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := e.acquire(threadID, cancel); err != nil {
		cancel()
		return nil, err
	}

	state, seq, err := e.load(ctx, threadID, initial)
	if err != nil {
		e.release(threadID)
		cancel()
		return nil, err
	}

	events := make(chan core.StepEvent, e.config.EventBufferSize)

	go func() {
		defer close(events)
		defer e.release(threadID)
		defer cancel()

		e.loop(runCtx, threadID, state, seq, events)
	}()

	return events, nil
}

// Stop cancels the active run of threadID. The run ends after the step in
// flight has completed and been checkpointed.
func (e *Executor) Stop(threadID string) error {
	e.activeMu.Lock()
	cancel, ok := e.active[threadID]
	e.activeMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no active run for %s", core.ErrSessionNotFound, threadID)
	}

	cancel()
	return nil
}

// Active reports whether threadID currently has a run in progress.
func (e *Executor) Active(threadID string) bool {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	_, ok := e.active[threadID]
	return ok
}

func (e *Executor) acquire(threadID string, cancel context.CancelFunc) error {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()

	if _, busy := e.active[threadID]; busy {
		return fmt.Errorf("%w: %s", core.ErrSessionBusy, threadID)
	}
	e.active[threadID] = cancel
	return nil
}

func (e *Executor) release(threadID string) {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	delete(e.active, threadID)
}

func (e *Executor) load(ctx context.Context, threadID string, initial *core.TaskState) (core.TaskState, int64, error) {
	cp, err := e.store.LoadLatest(ctx, threadID)
	if err == nil {
		return cp.State, cp.Sequence, nil
	}
	if !errors.Is(err, core.ErrCheckpointNotFound) {
		return core.TaskState{}, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if initial == nil {
		return core.TaskState{}, 0, fmt.Errorf("%w: %s", core.ErrSessionNotFound, threadID)
	}

	state := initial.Clone()
	seq, err := e.store.Save(ctx, threadID, state)
	if err != nil {
		return core.TaskState{}, 0, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	return state, seq, nil
}

// loop drives one run. state and seq always describe the last persisted
// checkpoint.
func (e *Executor) loop(ctx context.Context, threadID string, state core.TaskState, seq int64, events chan<- core.StepEvent) {
	if state.Finished() {
		e.emit(ctx, events, core.NewFinishEvent(threadID, core.ReasonAlreadyFinished, state.IterationCount, seq))
		return
	}

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("run.stopped", "thread_id", threadID, "sequence", seq, "reason", err.Error())
			return
		}

		decision, err := e.route(ctx, threadID, state)
		if err != nil {
			e.fail(ctx, events, threadID, state, seq, err)
			return
		}

		if decision.IsFinish() {
			final, err := core.Merge(state, core.PartialState{NextAgent: core.String(core.Finish)}, core.ControllerFields)
			if err != nil {
				e.fail(ctx, events, threadID, state, seq, err)
				return
			}

			finalSeq, err := e.save(ctx, threadID, final)
			if err != nil {
				e.fail(ctx, events, threadID, state, seq, err)
				return
			}
			if err := e.checkpointed(ctx, threadID, final, finalSeq); err != nil {
				e.fail(ctx, events, threadID, final, finalSeq, err)
				return
			}

			e.logger.Info("run.finished",
				"thread_id", threadID,
				"iterations", final.IterationCount,
				"reason", string(decision.Reason),
				"sequence", finalSeq,
			)
			e.emit(ctx, events, core.NewFinishEvent(threadID, decision.Reason, final.IterationCount, finalSeq))
			return
		}

		start := time.Now()
		next, output, err := e.step(ctx, threadID, state, decision.Next)
		if err != nil {
			e.recordStep(decision.Next, state.IterationCount+1, seq, time.Since(start), err)
			e.fail(ctx, events, threadID, state, seq, err)
			return
		}

		nextSeq, err := e.save(ctx, threadID, next)
		if err != nil {
			e.fail(ctx, events, threadID, state, seq, err)
			return
		}
		e.recordStep(decision.Next, next.IterationCount, nextSeq, time.Since(start), nil)
		state, seq = next, nextSeq

		if err := e.checkpointed(ctx, threadID, state, seq); err != nil {
			e.fail(ctx, events, threadID, state, seq, err)
			return
		}

		if !e.emit(ctx, events, core.NewProgressEvent(threadID, decision.Next, output, state.IterationCount, seq)) {
			return
		}
	}
}

// route asks the Controller for the next node.
func (e *Executor) route(ctx context.Context, threadID string, state core.TaskState) (core.Decision, error) {
	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	cc := &CallbackContext{ThreadID: threadID, State: state.Clone()}
	if err := e.callbacks.ExecuteCallbacks(stepCtx, CallbackBeforeRoute, cc); err != nil {
		return core.Decision{}, err
	}

	decision, err := e.router.Route(stepCtx, state)
	if err != nil {
		return core.Decision{}, err
	}

	if e.recorder != nil {
		e.recorder.LogRouting(state.IterationCount, decision.Next, string(decision.Reason), decision.Degraded)
	}

	cc.Decision = &decision
	if err := e.callbacks.ExecuteCallbacks(stepCtx, CallbackAfterRoute, cc); err != nil {
		return core.Decision{}, err
	}

	return decision, nil
}

// step runs one worker and returns the merged state. The Controller's choice
// is visible to the worker in NextAgent and consumed once the update is
// applied, so progress checkpoints carry an empty routing slot.
func (e *Executor) step(ctx context.Context, threadID string, state core.TaskState, name string) (core.TaskState, string, error) {
	w, ok := e.workers[name]
	if !ok {
		return core.TaskState{}, "", fmt.Errorf("%w: %s", core.ErrUnknownWorker, name)
	}

	routed, err := core.Merge(state, core.PartialState{NextAgent: core.String(name)}, core.ControllerFields)
	if err != nil {
		return core.TaskState{}, "", err
	}

	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	cc := &CallbackContext{ThreadID: threadID, State: routed.Clone(), Worker: name}
	if err := e.callbacks.ExecuteCallbacks(stepCtx, CallbackBeforeWorker, cc); err != nil {
		return core.TaskState{}, "", err
	}

	partial, err := invoke(stepCtx, w, routed.Clone())
	if err == nil {
		err = core.ValidateWorkerUpdate(name, routed, partial)
	}

	var next core.TaskState
	if err == nil {
		next, err = core.Merge(routed, partial, core.WorkerFields)
	}
	if err == nil {
		next, err = core.Merge(next, core.PartialState{NextAgent: core.String("")}, core.ControllerFields)
	}

	if err != nil {
		if errors.Is(err, core.ErrMalformedUpdate) {
			return core.TaskState{}, "", err
		}
		return core.TaskState{}, "", core.NewWorkerExecutionFailed(name, err)
	}

	cc.State = next.Clone()
	if err := e.callbacks.ExecuteCallbacks(stepCtx, CallbackAfterWorker, cc); err != nil {
		return core.TaskState{}, "", err
	}

	return next, next.Results[name], nil
}

func (e *Executor) recordStep(worker string, iteration int, seq int64, dur time.Duration, err error) {
	if e.recorder != nil {
		e.recorder.LogWorkerStep(worker, iteration, seq, dur, err)
	}
}

type invokeResult struct {
	partial core.PartialState
	err     error
}

// invoke calls the worker and gives up when ctx ends, even if the worker
// does not observe ctx itself.
func invoke(ctx context.Context, w core.Worker, state core.TaskState) (core.PartialState, error) {
	done := make(chan invokeResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()
		p, err := w.Invoke(ctx, state)
		done <- invokeResult{partial: p, err: err}
	}()

	select {
	case res := <-done:
		return res.partial, res.err
	case <-ctx.Done():
		return core.PartialState{}, ctx.Err()
	}
}

// save writes a checkpoint. The write is not subject to caller cancellation
// so that a completed step is never lost.
func (e *Executor) save(ctx context.Context, threadID string, state core.TaskState) (int64, error) {
	seq, err := e.store.Save(context.WithoutCancel(ctx), threadID, state)
	if err != nil {
		return 0, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return seq, nil
}

// checkpointed runs the on_checkpoint callbacks for a checkpoint that is
// already stored. A failure here ends the run with seq as the last good
// checkpoint.
func (e *Executor) checkpointed(ctx context.Context, threadID string, state core.TaskState, seq int64) error {
	cc := &CallbackContext{ThreadID: threadID, State: state.Clone(), Sequence: seq}
	return e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnCheckpoint, cc)
}

// stepContext detaches a step from caller cancellation and applies the
// configured step timeout.
func (e *Executor) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if e.config.StepTimeout > 0 {
		return context.WithTimeout(detached, e.config.StepTimeout)
	}
	return context.WithCancel(detached)
}

func (e *Executor) fail(ctx context.Context, events chan<- core.StepEvent, threadID string, state core.TaskState, seq int64, err error) {
	e.logger.Error("run.failed",
		"thread_id", threadID,
		"iteration", state.IterationCount,
		"sequence", seq,
		"error", err.Error(),
	)

	cc := &CallbackContext{ThreadID: threadID, State: state.Clone(), Sequence: seq, Err: err}
	_ = e.callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, cc)

	e.emit(ctx, events, core.NewErrorEvent(threadID, err, state.IterationCount, seq))
}

// emit delivers ev unless the run has been cancelled. It reports whether
// the event was delivered.
func (e *Executor) emit(ctx context.Context, events chan<- core.StepEvent, ev core.StepEvent) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
