package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/model"
)

func team(names ...string) []core.WorkerInfo {
	out := make([]core.WorkerInfo, len(names))
	for i, n := range names {
		out[i] = core.WorkerInfo{Name: n, Description: n + " worker"}
	}
	return out
}

func textPolicy(text string) core.Policy {
	return core.PolicyFunc(func(context.Context, core.DecisionContext) (core.Proposal, error) {
		return core.Proposal{Text: text}, nil
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, team("a"))
	assert.Error(t, err)

	_, err = New(SequentialPolicy{}, nil)
	assert.Error(t, err)

	_, err = New(SequentialPolicy{}, team("writer", "Writer"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = New(SequentialPolicy{}, team("finish"))
	assert.ErrorContains(t, err, "invalid worker name")

	_, err = New(SequentialPolicy{}, team(""))
	assert.Error(t, err)
}

func TestRouteDegradedSubstringMatch(t *testing.T) {
	r, err := New(textPolicy("I think the WRITER should continue"), team("researcher", "analyst", "writer", "reviewer"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.Equal(t, "writer", d.Next)
	assert.True(t, d.Degraded)
	assert.Equal(t, "I think the WRITER should continue", d.Raw)
}

func TestRouteSubstringMatchFollowsRegistrationOrder(t *testing.T) {
	workers := team("researcher", "analyst", "writer", "reviewer")

	for text, want := range map[string]string{
		"the reviewer and the writer both agree": "writer",
		"Analyst, then the RESEARCHER":           "researcher",
		"over to the reviewer":                   "reviewer",
	} {
		r, err := New(textPolicy(text), workers)
		require.NoError(t, err)

		d, err := r.Route(context.Background(), core.NewTaskState("t"))
		require.NoError(t, err)
		assert.Equal(t, want, d.Next, text)
		assert.True(t, d.Degraded, text)
	}
}

func TestRouteRegistrationOrderWinsOverlappingNames(t *testing.T) {
	r, err := New(textPolicy("send to analystX"), team("analyst", "analystX"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		d, err := r.Route(context.Background(), core.NewTaskState("t"))
		require.NoError(t, err)
		assert.Equal(t, "analyst", d.Next)
	}

	// A structured tag still picks the exact worker.
	exact := core.PolicyFunc(func(context.Context, core.DecisionContext) (core.Proposal, error) {
		return core.Proposal{Worker: "analystX", Text: "send to analystX"}, nil
	})
	r, err = New(exact, team("analyst", "analystX"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.Equal(t, "analystX", d.Next)
	assert.False(t, d.Degraded)
}

func TestRouteNoMatchFinishes(t *testing.T) {
	r, err := New(textPolicy("nobody fits"), team("researcher", "writer"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, core.ReasonNoMatch, d.Reason)
}

func TestRouteFinishText(t *testing.T) {
	r, err := New(textPolicy("All done, FINISH."), team("researcher"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, core.ReasonPolicy, d.Reason)
}

func TestRouteUnknownTagFallsBackToText(t *testing.T) {
	p := core.PolicyFunc(func(context.Context, core.DecisionContext) (core.Proposal, error) {
		return core.Proposal{Worker: "editor", Text: "the writer should polish it"}, nil
	})
	r, err := New(p, team("researcher", "writer"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.Equal(t, "writer", d.Next)
	assert.True(t, d.Degraded)
}

func TestRouteCeilingBeforePolicy(t *testing.T) {
	called := false
	p := core.PolicyFunc(func(context.Context, core.DecisionContext) (core.Proposal, error) {
		called = true
		return core.Proposal{Worker: "researcher"}, nil
	})

	r, err := New(p, team("researcher"), func(o *Options) { o.MaxIterations = 2 })
	require.NoError(t, err)

	state := core.NewTaskState("t")
	state.IterationCount = 2

	d, err := r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, core.ReasonIterationCeiling, d.Reason)
	assert.False(t, called)
}

func TestRoutePolicyFailure(t *testing.T) {
	boom := errors.New("boom")
	p := core.PolicyFunc(func(context.Context, core.DecisionContext) (core.Proposal, error) {
		return core.Proposal{}, boom
	})
	r, err := New(p, team("researcher"))
	require.NoError(t, err)

	_, err = r.Route(context.Background(), core.NewTaskState("t"))
	assert.ErrorIs(t, err, core.ErrPolicyDecisionFailed)
	assert.ErrorIs(t, err, boom)
}

func TestDecisionContextWindow(t *testing.T) {
	var got core.DecisionContext
	p := core.PolicyFunc(func(_ context.Context, dc core.DecisionContext) (core.Proposal, error) {
		got = dc
		return core.Proposal{Worker: core.Finish}, nil
	})
	r, err := New(p, team("researcher", "writer"))
	require.NoError(t, err)

	state := core.NewTaskState("t")
	for i := 0; i < 8; i++ {
		state.Messages = append(state.Messages, core.NewAgentMessage("researcher", fmt.Sprintf("m%d", i)))
	}
	state.Results["researcher"] = "m7"
	state.IterationCount = 3

	_, err = r.Route(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, got.Recent, 5)
	assert.Equal(t, "m7", got.Recent[4].Content)
	assert.Equal(t, 3, got.Iteration)
	assert.Equal(t, 10, got.MaxIterations)
	assert.Equal(t, []string{"researcher", "writer"}, got.WorkerNames())
	assert.Equal(t, "m7", got.Results["researcher"])
}

func TestMatchWorker(t *testing.T) {
	name, ok := MatchWorker("go to Reviewer", []string{"writer", "reviewer"})
	assert.True(t, ok)
	assert.Equal(t, "reviewer", name)

	_, ok = MatchWorker("", []string{"writer"})
	assert.False(t, ok)
}

func TestSequentialPolicy(t *testing.T) {
	dc := core.DecisionContext{Workers: team("a", "b"), Results: map[string]string{"a": "x"}}

	p, err := SequentialPolicy{}.Decide(context.Background(), dc)
	require.NoError(t, err)
	assert.Equal(t, "b", p.Worker)

	dc.Results["b"] = "y"
	p, err = SequentialPolicy{}.Decide(context.Background(), dc)
	require.NoError(t, err)
	assert.Equal(t, core.Finish, p.Worker)
}

func TestLLMPolicyToolCall(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.Enqueue(model.Response{ToolCalls: []model.ToolCall{
		{ID: "1", Name: RouteToolName, Arguments: `{"next":"writer","reason":"needs prose"}`},
	}})

	r, err := New(NewLLMPolicy(llm), team("researcher", "writer"))
	require.NoError(t, err)

	state := core.NewTaskState("write a blog post")
	state.Results["researcher"] = "facts"
	state.IterationCount = 1

	d, err := r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "writer", d.Next)
	assert.False(t, d.Degraded)
	assert.Equal(t, "needs prose", d.Raw)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, RouteToolName, reqs[0].Tools[0].Name)
	assert.Contains(t, reqs[0].Instructions, "- researcher: researcher worker")
	assert.Contains(t, reqs[0].Messages[0].Content, "Current task: write a blog post")
	assert.Contains(t, reqs[0].Messages[0].Content, "Iteration: 1/10")
	assert.Contains(t, reqs[0].Messages[0].Content, "- researcher: facts")
	assert.Contains(t, reqs[0].Messages[0].Content, "Options: researcher, writer, FINISH")
	assert.Contains(t, reqs[0].Messages[0].Content, "User: write a blog post")
}

type textOnlyModel struct{ *model.MockModel }

func (m textOnlyModel) Info() model.Info {
	info := m.MockModel.Info()
	info.SupportsTools = false
	return info
}

func TestLLMPolicyJSONText(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.EnqueueText("Sure. {\"next\": \"FINISH\", \"reason\": \"done\"}")

	r, err := New(NewLLMPolicy(textOnlyModel{llm}), team("researcher", "writer"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, core.ReasonPolicy, d.Reason)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Tools)
	assert.Contains(t, reqs[0].Messages[0].Content, "JSON object")
}

func TestLLMPolicyFreeTextFallback(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.EnqueueText("Let the researcher dig deeper.")

	r, err := New(NewLLMPolicy(textOnlyModel{llm}), team("researcher", "writer"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("t"))
	require.NoError(t, err)
	assert.Equal(t, "researcher", d.Next)
	assert.True(t, d.Degraded)
}

func TestLLMPolicyServiceError(t *testing.T) {
	llm := model.NewMockModel("mock")
	llm.EnqueueError(core.ErrServiceUnavailable)

	r, err := New(NewLLMPolicy(llm), team("researcher"))
	require.NoError(t, err)

	_, err = r.Route(context.Background(), core.NewTaskState("t"))
	assert.ErrorIs(t, err, core.ErrPolicyDecisionFailed)
	assert.ErrorIs(t, err, core.ErrServiceUnavailable)
}

func TestStaticPolicy(t *testing.T) {
	p := NewStaticPolicy(
		core.Proposal{Worker: "researcher"},
		core.Proposal{Text: "hand it to the Writer"},
	)

	r, err := New(p, team("researcher", "writer"))
	require.NoError(t, err)

	state := core.NewTaskState("task")

	d, err := r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "researcher", d.Next)

	d, err = r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "writer", d.Next)
	assert.True(t, d.Degraded)

	d, err = r.Route(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, d.IsFinish())
	assert.Equal(t, core.ReasonPolicy, d.Reason)
}

func TestFuncPolicy(t *testing.T) {
	var p core.Policy = FuncPolicy(func(_ context.Context, dc core.DecisionContext) (core.Proposal, error) {
		return core.Proposal{Worker: dc.Workers[len(dc.Workers)-1].Name}, nil
	})

	r, err := New(p, team("a", "b"))
	require.NoError(t, err)

	d, err := r.Route(context.Background(), core.NewTaskState("task"))
	require.NoError(t, err)
	assert.Equal(t, "b", d.Next)
}
