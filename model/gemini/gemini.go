// Package gemini implements model.Model with the Google Gen AI SDK. The
// adapter is text only: tool definitions are not forwarded, so callers that
// need structured output ask for JSON in the prompt instead.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hupe1980/supervisor/model"
)

// Options configure the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
}

// Model wraps genai.Client.Models.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// NewModel creates a Gemini API client. Without Options.APIKey the SDK reads
// GEMINI_API_KEY / GOOGLE_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions(optFns)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: defaultOptions(optFns)}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	return model.Emit(ctx, func(ctx context.Context) (model.Response, error) {
		resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, buildContents(req.Messages), m.buildConfig(req))
		if err != nil {
			return model.Response{}, classify(err)
		}
		return toResponse(resp), nil
	})
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.opts.Temperature),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}
	if req.Instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	return cfg
}

// buildContents maps assistant turns to the model role and everything else,
// tool results included, to user turns.
func buildContents(msgs []model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case model.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case model.RoleTool:
			contents = append(contents, genai.NewContentFromText(fmt.Sprintf("tool result (%s): %s", msg.ToolCallID, msg.Content), genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents
}

func toResponse(resp *genai.GenerateContentResponse) model.Response {
	out := model.Response{Content: resp.Text(), FinishReason: "stop"}

	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return out
}

func classify(err error) error {
	wrapped := fmt.Errorf("gemini api error: %w", err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return model.ClassifyStatus(apiErr.Code, wrapped)
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return model.ClassifyStatus(apiErrPtr.Code, wrapped)
	}

	return model.ClassifyStatus(0, wrapped)
}

// Info returns metadata describing this model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: false,
	}
}
