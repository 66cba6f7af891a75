package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/supervisor/core"
)

// Chat roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is a provider neutral chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"` // assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final answer of a model call.
type Response struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by policies and workers to drive
// generation. Generate delivers exactly one Response or one error; both
// channels are closed afterwards.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete calls m and waits for its single result.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		resp Response
		got  bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			resp, got = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !got {
		return Response{}, fmt.Errorf("model %s returned no response", m.Info().Name)
	}

	return resp, nil
}

// ClassifyStatus maps a provider failure to the service error taxonomy:
// HTTP 429 becomes core.ErrRateLimited, server errors and transport failures
// (status 0) become core.ErrServiceUnavailable. Context errors and other
// client errors are returned unchanged.
func ClassifyStatus(status int, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case status == 429:
		return fmt.Errorf("%w: %w", core.ErrRateLimited, err)
	case status >= 500, status == 0:
		return fmt.Errorf("%w: %w", core.ErrServiceUnavailable, err)
	default:
		return err
	}
}

// Emit runs fn on a goroutine and adapts its result to the channel contract
// of Model.Generate.
func Emit(ctx context.Context, fn func(ctx context.Context) (Response, error)) (<-chan Response, <-chan error) {
	out := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := fn(ctx)
		if err != nil {
			errCh <- err
			return
		}
		out <- resp
	}()

	return out, errCh
}

// FromTranscript converts session messages into chat messages. Worker output
// becomes assistant turns prefixed with the worker name.
func FromTranscript(msgs []core.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleAgent:
			content := m.Content
			if m.Name != "" {
				content = fmt.Sprintf("[%s] %s", m.Name, m.Content)
			}
			out = append(out, Message{Role: RoleAssistant, Content: content})
		case core.RoleSystem:
			out = append(out, Message{Role: RoleSystem, Content: m.Content})
		default:
			out = append(out, Message{Role: RoleUser, Content: m.Content})
		}
	}
	return out
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Queued responses are served first in FIFO order; after that canned
// responses keyed by the last user message apply, and finally an echo.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	queue     []mockResult
	responses map[string]string
	requests  []Request
}

type mockResult struct {
	resp Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends a response to the FIFO queue.
func (m *MockModel) Enqueue(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{resp: resp})
}

// EnqueueText appends a plain text response to the FIFO queue.
func (m *MockModel) EnqueueText(text string) {
	m.Enqueue(Response{Content: text, FinishReason: "stop"})
}

// EnqueueError makes the next call fail with err.
func (m *MockModel) EnqueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{err: err})
}

// Requests returns every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	return Emit(ctx, func(ctx context.Context) (Response, error) {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		m.requests = append(m.requests, req)

		if len(m.queue) > 0 {
			next := m.queue[0]
			m.queue = m.queue[1:]
			return next.resp, next.err
		}

		var input string
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == RoleUser {
				input = req.Messages[i].Content
				break
			}
		}

		if canned, ok := m.responses[input]; ok {
			return Response{Content: canned, FinishReason: "stop"}, nil
		}

		return Response{Content: fmt.Sprintf("Mock response to: %s", input), FinishReason: "stop"}, nil
	})
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
