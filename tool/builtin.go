package tool

import (
	"context"
	"fmt"
)

// The built-in tools return placeholder text. They stand in for real search,
// analysis, writing and review backends and keep the default team runnable
// offline.

type queryArgs struct {
	Query string `json:"query" description:"What to search for"`
}

type dataArgs struct {
	Data string `json:"data" description:"The data to analyze"`
}

type writeArgs struct {
	Topic string `json:"topic" description:"The topic to write about"`
	Style string `json:"style,omitempty" description:"Writing style (professional, casual, technical)"`
}

type codeArgs struct {
	Code string `json:"code" description:"The code to review"`
}

// SearchWeb searches the web for information.
func SearchWeb() Tool {
	return NewFunctionToolFromStruct("search_web", "Search the web for information.", queryArgs{},
		func(_ context.Context, args map[string]any) (string, error) {
			q := StringArg(args, "query", "")
			return fmt.Sprintf("Search results for: %s\n- Result 1: Relevant information about %s\n- Result 2: Additional details", q, q), nil
		})
}

// AnalyzeData analyzes data and provides insights.
func AnalyzeData() Tool {
	return NewFunctionToolFromStruct("analyze_data", "Analyze data and provide insights.", dataArgs{},
		func(_ context.Context, _ map[string]any) (string, error) {
			return "Analysis of data:\n- Key insight 1: Pattern detected\n- Key insight 2: Trend identified\n- Recommendation: Based on analysis...", nil
		})
}

// WriteContent writes content on a given topic.
func WriteContent() Tool {
	return NewFunctionToolFromStruct("write_content", "Write content on a given topic.", writeArgs{},
		func(_ context.Context, args map[string]any) (string, error) {
			topic := StringArg(args, "topic", "")
			style := StringArg(args, "style", "professional")
			return fmt.Sprintf("# %s\n\nThis is generated content about %s in %s style.\n\n## Key Points\n- Point 1\n- Point 2\n- Point 3", topic, topic, style), nil
		})
}

// CodeReview reviews code and provides feedback.
func CodeReview() Tool {
	return NewFunctionToolFromStruct("code_review", "Review code and provide feedback.", codeArgs{},
		func(_ context.Context, _ map[string]any) (string, error) {
			return "Code Review:\n✓ Good practices observed\n⚠ Suggestion: Consider adding type hints\n⚠ Suggestion: Add error handling", nil
		})
}

// Builtins returns the built-in tools keyed by name.
func Builtins() map[string]Tool {
	tools := []Tool{SearchWeb(), AnalyzeData(), WriteContent(), CodeReview()}
	out := make(map[string]Tool, len(tools))
	for _, t := range tools {
		out[t.Name()] = t
	}
	return out
}

// Lookup resolves tool names against the built-ins.
func Lookup(names ...string) ([]Tool, error) {
	builtins := Builtins()
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := builtins[name]
		if !ok {
			return nil, NewToolError(name, "unknown tool", CodeNotFound)
		}
		out = append(out, t)
	}
	return out, nil
}
