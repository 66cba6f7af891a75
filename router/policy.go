package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/internal/util"
	"github.com/hupe1980/supervisor/logging"
	"github.com/hupe1980/supervisor/model"
)

// RouteToolName is the function the LLM policy offers to tool capable models.
const RouteToolName = "route"

// DefaultSystemPrompt introduces the team to the supervising model.
const DefaultSystemPrompt = `You are a supervisor managing a team of specialized agents:

{{range .workers}}- {{.Name}}: {{.Description}}
{{end}}
Based on the user's request, decide which agent should act next.
When the task is complete, respond with FINISH.

Consider the conversation history and current progress when making decisions.
Delegate tasks efficiently and ensure quality output.`

// DefaultContextPrompt renders the routing question.
const DefaultContextPrompt = `Current task: {{.task | default "Not specified"}}
Iteration: {{.iteration}}/{{.max}}
Previous results:{{range .results}}
- {{.Name}}: {{truncate 200 .Output}}{{else}} none{{end}}

Based on the conversation and task progress, which agent should act next?
Options: {{join ", " .options}}, FINISH

Conversation:
{{range .conversation}}{{.}}
{{end}}`

// LLMPolicyOptions configure an LLMPolicy.
type LLMPolicyOptions struct {
	SystemPrompt  string
	ContextPrompt string
	// MessageChars bounds each transcript line shown to the model.
	MessageChars int
	Logger       logging.Logger
}

// LLMPolicy asks a model for the next worker. Tool capable models get a
// "route" function whose "next" argument is an enum of the options; other
// models are asked for a JSON object. Whatever text comes back is kept for
// the router's degraded substring match.
type LLMPolicy struct {
	llm  model.Model
	opts LLMPolicyOptions
}

// NewLLMPolicy creates an LLM backed policy.
func NewLLMPolicy(llm model.Model, optFns ...func(o *LLMPolicyOptions)) *LLMPolicy {
	opts := LLMPolicyOptions{
		SystemPrompt:  DefaultSystemPrompt,
		ContextPrompt: DefaultContextPrompt,
		MessageChars:  200,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &LLMPolicy{llm: llm, opts: opts}
}

type namedResult struct {
	Name   string
	Output string
}

// Decide implements core.Policy.
func (p *LLMPolicy) Decide(ctx context.Context, dc core.DecisionContext) (core.Proposal, error) {
	req, err := p.buildRequest(dc)
	if err != nil {
		return core.Proposal{}, err
	}

	resp, err := model.Complete(ctx, p.llm, req)
	if err != nil {
		return core.Proposal{}, err
	}

	proposal := parseProposal(resp)

	p.opts.Logger.Debug("router.policy.response",
		"model", p.llm.Info().Name,
		"worker", proposal.Worker,
		"text", util.Truncate(200, proposal.Text),
	)

	return proposal, nil
}

func (p *LLMPolicy) buildRequest(dc core.DecisionContext) (model.Request, error) {
	system, err := util.RenderTemplate(p.opts.SystemPrompt, map[string]any{"workers": dc.Workers})
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to render system prompt: %w", err)
	}

	results := make([]namedResult, 0, len(dc.Results))
	for name, out := range dc.Results {
		results = append(results, namedResult{Name: name, Output: out})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	conversation := make([]string, len(dc.Recent))
	for i, m := range dc.Recent {
		role := "Agent"
		if m.Role == core.RoleUser {
			role = "User"
		}
		conversation[i] = fmt.Sprintf("%s: %s", role, util.Truncate(p.opts.MessageChars, m.Content))
	}

	question, err := util.RenderTemplate(p.opts.ContextPrompt, map[string]any{
		"task":         dc.Task,
		"iteration":    dc.Iteration,
		"max":          dc.MaxIterations,
		"results":      results,
		"options":      dc.WorkerNames(),
		"conversation": conversation,
	})
	if err != nil {
		return model.Request{}, fmt.Errorf("failed to render routing context: %w", err)
	}

	req := model.Request{Instructions: system}

	if p.llm.Info().SupportsTools {
		req.Tools = []model.ToolDefinition{routeTool(dc.WorkerNames())}
		question += "\nCall the route tool with your choice."
	} else {
		question += "\nAnswer with a JSON object like {\"next\": \"<option>\", \"reason\": \"<why>\"}."
	}

	req.Messages = []model.Message{{Role: model.RoleUser, Content: question}}

	return req, nil
}

func routeTool(names []string) model.ToolDefinition {
	options := append(append([]string(nil), names...), core.Finish)
	return model.ToolDefinition{
		Name:        RouteToolName,
		Description: "Select the agent that should act next, or FINISH when the task is complete.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"next":   map[string]any{"type": "string", "enum": options},
				"reason": map[string]any{"type": "string"},
			},
			"required": []string{"next"},
		},
	}
}

// parseProposal reads the structured choice from a route tool call, or from
// a JSON object embedded in the text, and keeps the text for fallback.
func parseProposal(resp model.Response) core.Proposal {
	proposal := core.Proposal{Text: resp.Content}

	for _, call := range resp.ToolCalls {
		if call.Name != RouteToolName || !gjson.Valid(call.Arguments) {
			continue
		}
		proposal.Worker = gjson.Get(call.Arguments, "next").String()
		if proposal.Text == "" {
			proposal.Text = gjson.Get(call.Arguments, "reason").String()
		}
		return proposal
	}

	if obj, ok := extractJSONObject(resp.Content); ok {
		if next := gjson.Get(obj, "next"); next.Exists() {
			proposal.Worker = next.String()
		}
	}

	return proposal
}

// extractJSONObject returns the outermost {...} span of s when it is valid JSON.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	obj := s[start : end+1]
	return obj, gjson.Valid(obj)
}

// SequentialPolicy proposes each worker once in registration order and then
// FINISH. It needs no model and is used for offline runs.
type SequentialPolicy struct{}

// Decide implements core.Policy.
func (SequentialPolicy) Decide(_ context.Context, dc core.DecisionContext) (core.Proposal, error) {
	for _, w := range dc.Workers {
		if _, done := dc.Results[w.Name]; !done {
			return core.Proposal{Worker: w.Name}, nil
		}
	}
	return core.Proposal{Worker: core.Finish}, nil
}

// FuncPolicy adapts a plain function to core.Policy.
type FuncPolicy = core.PolicyFunc

// StaticPolicy replays a fixed list of proposals, one per call, and proposes
// FINISH once they are used up. It is safe for concurrent use.
type StaticPolicy struct {
	mu        sync.Mutex
	proposals []core.Proposal
	next      int
}

// NewStaticPolicy returns a StaticPolicy over proposals.
func NewStaticPolicy(proposals ...core.Proposal) *StaticPolicy {
	return &StaticPolicy{proposals: append([]core.Proposal(nil), proposals...)}
}

// Decide implements core.Policy.
func (p *StaticPolicy) Decide(ctx context.Context, _ core.DecisionContext) (core.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return core.Proposal{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= len(p.proposals) {
		return core.Proposal{Worker: core.Finish}, nil
	}
	prop := p.proposals[p.next]
	p.next++
	return prop, nil
}
