package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/supervisor/checkpoint/sqlite"
	"github.com/hupe1980/supervisor/core"
	"github.com/hupe1980/supervisor/internal/testutil"
	"github.com/hupe1980/supervisor/model"
	"github.com/hupe1980/supervisor/router"
	"github.com/hupe1980/supervisor/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoTeam(names ...string) []core.Worker {
	out := make([]core.Worker, len(names))
	for i, n := range names {
		out[i] = testutil.NewEchoWorker(n)
	}
	return out
}

func TestRunSequentialTeam(t *testing.T) {
	sup, err := New(echoTeam("researcher", "writer"), router.SequentialPolicy{})
	require.NoError(t, err)

	res, events, err := sup.Run(context.Background(), "write about go")
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "researcher", events[0].Worker)
	assert.Equal(t, "writer", events[1].Worker)
	assert.Equal(t, core.EventFinish, events[2].Kind)

	assert.True(t, res.Finished)
	assert.Equal(t, "write about go", res.Task)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, int64(3), res.Sequence)
	assert.Equal(t, map[string]string{
		"researcher": "researcher: write about go #1",
		"writer":     "writer: write about go #2",
	}, res.Results)
	assert.Len(t, res.Transcript, 3)
}

func TestStartResumeAndHistory(t *testing.T) {
	ctx := context.Background()
	sup, err := New(echoTeam("analyst"), router.SequentialPolicy{})
	require.NoError(t, err)

	threadID, err := sup.StartSession(ctx, "analyze sales")
	require.NoError(t, err)

	res, err := sup.GetResult(ctx, threadID)
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Equal(t, int64(0), res.Sequence)
	assert.Empty(t, res.Results)

	events, err := sup.ResumeSession(ctx, threadID)
	require.NoError(t, err)
	for range events {
	}

	history, err := sup.History(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Empty(t, history[1].State.NextAgent)
	assert.Equal(t, "analyst: analyze sales #1", history[1].State.Results["analyst"])
	assert.Equal(t, core.Finish, history[2].State.NextAgent)

	// Resuming a finished session is a no-op.
	events, err = sup.ResumeSession(ctx, threadID)
	require.NoError(t, err)
	var again []core.StepEvent
	for ev := range events {
		again = append(again, ev)
	}
	require.Len(t, again, 1)
	assert.Equal(t, core.ReasonAlreadyFinished, again[0].Reason)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	sup, err := New(echoTeam("a"), router.SequentialPolicy{})
	require.NoError(t, err)

	_, err = sup.GetResult(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = sup.History(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = sup.ResumeSession(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = sup.StartSession(ctx, "")
	assert.Error(t, err)
}

func TestRunReturnsFailureWithLastGoodResult(t *testing.T) {
	failing := testutil.NewEchoWorker("writer")
	failing.Hook = func(context.Context, core.TaskState) error { return errors.New("quota") }

	sup, err := New([]core.Worker{testutil.NewEchoWorker("researcher"), failing}, router.SequentialPolicy{})
	require.NoError(t, err)

	res, events, err := sup.Run(context.Background(), "task")
	assert.ErrorIs(t, err, core.ErrWorkerExecutionFailed)
	require.Len(t, events, 2)
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.Sequence)
	assert.False(t, res.Finished)
	assert.Contains(t, res.Results, "researcher")
}

func TestRunBatch(t *testing.T) {
	sup, err := New(echoTeam("researcher", "writer"), router.SequentialPolicy{}, func(o *Options) {
		o.MaxConcurrentSessions = 2
	})
	require.NoError(t, err)

	tasks := []string{"a", "b", "c", "d", "e"}
	results, err := sup.RunBatch(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, len(tasks))

	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, tasks[i], res.Task)
		assert.True(t, res.Finished)
		assert.Equal(t, 2, res.Iterations)
	}
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cp.db")

	store, err := sqlite.Open(path)
	require.NoError(t, err)

	sup, err := New(echoTeam("researcher"), router.SequentialPolicy{}, func(o *Options) { o.Store = store })
	require.NoError(t, err)

	threadID, err := sup.StartSession(ctx, "persist me")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	sup, err = New(echoTeam("researcher"), router.SequentialPolicy{}, func(o *Options) { o.Store = reopened })
	require.NoError(t, err)

	events, err := sup.ResumeSession(ctx, threadID)
	require.NoError(t, err)
	for range events {
	}

	res, err := sup.GetResult(ctx, threadID)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, "researcher: persist me #1", res.Results["researcher"])
}

func TestLLMRoutedDefaultTeam(t *testing.T) {
	llm := model.NewMockModel("mock")
	// Router, then the researcher, then the router again.
	llm.Enqueue(model.Response{ToolCalls: []model.ToolCall{
		{ID: "r1", Name: router.RouteToolName, Arguments: `{"next":"researcher"}`},
	}})
	llm.EnqueueText("Go 1.18 introduced generics.")
	llm.EnqueueText("The task is complete. FINISH")

	sup, err := New(worker.DefaultTeam(llm, nil), router.NewLLMPolicy(llm))
	require.NoError(t, err)

	res, events, err := sup.Run(context.Background(), "When did Go get generics?")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "researcher", events[0].Worker)
	assert.Equal(t, core.ReasonPolicy, events[1].Reason)
	assert.Equal(t, "Go 1.18 introduced generics.", res.Results["researcher"])
}
