package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a StepEvent.
type EventKind string

const (
	// EventProgress is emitted after a worker step was merged and checkpointed.
	EventProgress EventKind = "progress"
	// EventFinish is the terminal event of a completed session.
	EventFinish EventKind = "finish"
	// EventError is the terminal event of a failed run. The session stays
	// resumable from Sequence.
	EventError EventKind = "error"
)

// StepEvent is one element of the stream produced by the executor. A stream
// always ends with exactly one terminal event (finish or error) unless the
// caller cancelled it.
//
// Sequence is the checkpoint written for the step. For error events it is the
// last good checkpoint, the point a later resume continues from.
type StepEvent struct {
	ID        string       `json:"id"`
	ThreadID  string       `json:"thread_id"`
	Kind      EventKind    `json:"kind"`
	Worker    string       `json:"worker,omitempty"`
	Output    string       `json:"output,omitempty"`
	Iteration int          `json:"iteration"`
	Sequence  int64        `json:"sequence"`
	Reason    FinishReason `json:"reason,omitempty"`
	Err       error        `json:"-"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func newStepEvent(threadID string, kind EventKind, iteration int, seq int64) StepEvent {
	return StepEvent{
		ID:        NewID(),
		ThreadID:  threadID,
		Kind:      kind,
		Iteration: iteration,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
	}
}

// NewProgressEvent reports a completed worker step.
func NewProgressEvent(threadID, worker, output string, iteration int, seq int64) StepEvent {
	e := newStepEvent(threadID, EventProgress, iteration, seq)
	e.Worker = worker
	e.Output = output
	return e
}

// NewFinishEvent reports normal termination.
func NewFinishEvent(threadID string, reason FinishReason, iteration int, seq int64) StepEvent {
	e := newStepEvent(threadID, EventFinish, iteration, seq)
	e.Reason = reason
	return e
}

// NewErrorEvent reports a failed step. seq is the last good checkpoint.
func NewErrorEvent(threadID string, err error, iteration int, seq int64) StepEvent {
	e := newStepEvent(threadID, EventError, iteration, seq)
	e.Err = err
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsTerminal reports whether the event ends the stream.
func (e StepEvent) IsTerminal() bool {
	return e.Kind == EventFinish || e.Kind == EventError
}

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }
