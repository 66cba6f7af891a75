// Package engine runs supervised workflows.
//
// An Executor owns a router.Router (the Controller) and a set of workers
// and drives one session, identified by a thread id, through the graph
//
//	Controller -> Worker -> Controller -> ... -> FINISH
//
// Every Worker step is validated against the fixed shape of a worker update,
// merged into the core.TaskState and persisted through a
// core.CheckpointStore before its progress event is emitted. The iteration
// ceiling is enforced by the Controller ahead of the routing policy, so a
// run always terminates.
//
// # Events
//
// Run returns a buffered channel of core.StepEvent: one progress event per
// worker step followed by exactly one finish or error event. An error event
// carries the sequence number of the last good checkpoint; resuming the
// thread continues from there.
//
// # Cancellation and timeouts
//
// Caller cancellation (and Stop) is observed between steps only. A step in
// flight runs on a context detached from the caller, bounded by
// Config.StepTimeout, and its checkpoint is written before the run stops.
// A timed out step is a failure and is not retried.
//
// # Callbacks
//
// A CallbackManager may be supplied to observe or veto lifecycle points
// (before/after route, before/after worker, checkpoint, error).
package engine
