// Package core defines the domain types and contracts of the supervisor:
//
//   - TaskState, the shared session aggregate, with its fixed merge rules
//   - Worker and Policy, the node contracts the executor drives
//   - Decision and StepEvent, what routing and execution produce
//   - Checkpoint and CheckpointStore, the append-only persistence contract
//   - the error taxonomy (MalformedUpdate, WorkerExecutionFailed, ...)
//
// Implementations live in sibling packages; core has no I/O.
package core
