// Package router implements the Controller node of a supervised workflow.
//
// A Router wraps a core.Policy. On every turn it first enforces the
// iteration ceiling, then asks the policy for a proposal and resolves it
// against the registered workers: an exact structured choice wins, a
// case-insensitive substring match over the proposal text is the degraded
// fallback, and anything else ends the run with FINISH.
//
// LLMPolicy asks a model.Model (tool calling where supported, JSON
// otherwise). SequentialPolicy walks the workers in order and needs no
// model. StaticPolicy and FuncPolicy are for tests and scripted runs.
package router
