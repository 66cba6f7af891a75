// Package model defines the provider-agnostic abstraction over the LLM
// completion service consumed by routing policies and workers.
//
// Core goals:
//   - One request/response shape for every vendor (Request, Response)
//   - Normalized tool / function call representation (ToolDefinition, ToolCall)
//   - Uniform failure classification (core.ErrRateLimited, core.ErrServiceUnavailable)
//   - Lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) live in sub packages and never retry;
// retry policy belongs to the caller.
package model
