// Package checkpoint houses core.CheckpointStore implementations.
//
// InMemoryStore keeps checkpoints for the lifetime of the process. The
// sqlite sub-package persists them to a single database file so sessions
// can be resumed after a restart. Callers depend on core.CheckpointStore;
// only the wiring layer picks a backend.
package checkpoint
