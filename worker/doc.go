// Package worker contains core.Worker implementations: ModelWorker, which
// answers with an LLM and a tool-call loop, FuncWorker for plain functions,
// and the default researcher/analyst/writer/reviewer team.
//
// Every worker returns the same shape of update (see NewResult); the
// executor rejects anything else.
package worker
