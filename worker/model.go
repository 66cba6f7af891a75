package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/internal/util"
	"github.com/hupe1980/supervisor/logging"
	"github.com/hupe1980/supervisor/model"
	"github.com/hupe1980/supervisor/tool"
)

// ModelWorkerOptions configure a ModelWorker.
type ModelWorkerOptions struct {
	Description string
	// Instructions is the system prompt. It may reference {{.task}},
	// {{.name}} and {{.iteration}}.
	Instructions       string
	Tools              []tool.Tool
	ToolTimeout        time.Duration
	MaxHistoryMessages int
	MaxToolRounds      int
	MaxParallelTools   int
	Logger             logging.Logger
}

// ModelWorker answers with an LLM and may call tools before answering.
// Its result is the final assistant text.
type ModelWorker struct {
	BaseWorker
	llm   model.Model
	opts  ModelWorkerOptions
	tools map[string]tool.Tool
}

// NewModelWorker creates a worker backed by llm.
func NewModelWorker(name string, llm model.Model, optFns ...func(o *ModelWorkerOptions)) *ModelWorker {
	opts := ModelWorkerOptions{
		ToolTimeout:        15 * time.Second,
		MaxHistoryMessages: 20,
		MaxToolRounds:      5,
		MaxParallelTools:   4,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &ModelWorker{
		BaseWorker: NewBaseWorker(name, opts.Description),
		llm:        llm,
		opts:       opts,
		tools:      tools,
	}
}

// Invoke implements core.Worker.
func (w *ModelWorker) Invoke(ctx context.Context, state core.TaskState) (core.PartialState, error) {
	instructions, err := util.RenderTemplate(w.opts.Instructions, map[string]any{
		"task":      state.Task,
		"name":      w.Name(),
		"iteration": state.IterationCount,
	})
	if err != nil {
		return core.PartialState{}, core.NewWorkerExecutionFailed(w.Name(), fmt.Errorf("failed to render instructions: %w", err))
	}

	req := model.Request{
		Instructions: instructions,
		Messages:     model.FromTranscript(state.RecentMessages(w.opts.MaxHistoryMessages)),
		Tools:        tool.Definitions(w.opts.Tools),
	}

	for round := 0; round <= w.opts.MaxToolRounds; round++ {
		start := time.Now()
		resp, err := model.Complete(ctx, w.llm, req)
		if err != nil {
			w.opts.Logger.Error("worker.model.error", "worker", w.Name(), "error", err.Error())
			return core.PartialState{}, core.NewWorkerExecutionFailed(w.Name(), err)
		}

		w.opts.Logger.Debug("worker.model.completed",
			"worker", w.Name(),
			"round", round,
			"tool_calls", len(resp.ToolCalls),
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if len(resp.ToolCalls) == 0 {
			return NewResult(w.Name(), state, resp.Content), nil
		}

		results, err := w.executeTools(ctx, resp.ToolCalls)
		if err != nil {
			return core.PartialState{}, core.NewWorkerExecutionFailed(w.Name(), err)
		}

		req.Messages = append(req.Messages, model.Message{Role: model.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for i, call := range resp.ToolCalls {
			req.Messages = append(req.Messages, model.Message{Role: model.RoleTool, ToolCallID: call.ID, Content: results[i]})
		}
	}

	return core.PartialState{}, core.NewWorkerExecutionFailed(w.Name(), fmt.Errorf("exceeded %d tool rounds", w.opts.MaxToolRounds))
}

// executeTools runs one round of tool calls in parallel, bounded by
// MaxParallelTools. Results keep the order of calls. The first failure
// cancels the rest.
func (w *ModelWorker) executeTools(ctx context.Context, calls []model.ToolCall) ([]string, error) {
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	if w.opts.MaxParallelTools > 0 {
		g.SetLimit(w.opts.MaxParallelTools)
	}

	for i, call := range calls {
		g.Go(func() error {
			out, err := w.executeTool(gctx, call)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (w *ModelWorker) executeTool(ctx context.Context, call model.ToolCall) (out string, err error) {
	impl, ok := w.tools[call.Name]
	if !ok {
		return "", tool.NewToolError(call.Name, "tool not registered", tool.CodeNotFound)
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", &tool.ToolError{Tool: call.Name, Message: "failed to unmarshal args", Code: tool.CodeValidation, Details: err}
		}
	}

	if w.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.opts.Logger.Error("worker.tool.panic", "worker", w.Name(), "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			err = &tool.ToolError{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: tool.CodeExecution}
		}
		w.opts.Logger.Info("worker.tool.executed",
			"worker", w.Name(),
			"tool", call.Name,
			"tool_call_id", call.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)
	}()

	return impl.Call(ctx, args)
}
