package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() *FunctionTool {
	return NewFunctionTool(
		"echo",
		"Repeat the input text",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		func(_ context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	)
}

func TestFunctionTool_Success(t *testing.T) {
	out, err := echoTool().Call(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := echoTool().Call(context.Background(), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "echo", toolErr.Tool)

	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	tl := NewFunctionTool("fail", "always fails", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) { return "", boom })

	_, err := tl.Call(context.Background(), nil)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "limit reached", "QUOTA")
	tl := NewFunctionTool("quota", "", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (string, error) { return "", custom })

	_, err := tl.Call(context.Background(), map[string]any{})
	assert.Same(t, custom, err)
}

func TestFunctionTool_Concurrent(t *testing.T) {
	tl := echoTool()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tl.Call(context.Background(), map[string]any{"text": "x"})
			assert.NoError(t, err)
			assert.Equal(t, "x", out)
		}()
	}
	wg.Wait()
}

func TestBuiltins(t *testing.T) {
	ctx := context.Background()

	out, err := SearchWeb().Call(ctx, map[string]any{"query": "golang"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Search results for: golang"))

	out, err = WriteContent().Call(ctx, map[string]any{"topic": "Go"})
	require.NoError(t, err)
	assert.Contains(t, out, "in professional style")

	out, err = WriteContent().Call(ctx, map[string]any{"topic": "Go", "style": "casual"})
	require.NoError(t, err)
	assert.Contains(t, out, "in casual style")

	_, err = CodeReview().Call(ctx, map[string]any{})
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	tools, err := Lookup("search_web", "code_review")
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "code_review", tools[1].Name())

	_, err = Lookup("paint")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestDefinitions(t *testing.T) {
	defs := Definitions([]Tool{SearchWeb(), AnalyzeData()})
	require.Len(t, defs, 2)
	assert.Equal(t, "search_web", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}
