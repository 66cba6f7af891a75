package checkpoint

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/supervisor/core"
)

var _ core.CheckpointStore = (*InMemoryStore)(nil)

func TestInMemoryStoreSequence(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.LoadLatest(ctx, "t1")
	assert.ErrorIs(t, err, core.ErrCheckpointNotFound)

	state := core.NewTaskState("task")
	for want := int64(0); want < 3; want++ {
		seq, err := s.Save(ctx, "t1", state)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
		state.IterationCount++
	}

	seq, err := s.Save(ctx, "t2", core.NewTaskState("other"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	latest, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Sequence)
	assert.Equal(t, 2, latest.State.IterationCount)

	all, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, cp := range all {
		assert.Equal(t, int64(i), cp.Sequence)
		assert.Equal(t, "t1", cp.ThreadID)
	}

	assert.ElementsMatch(t, []string{"t1", "t2"}, s.Threads())
}

func TestInMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	state := core.NewTaskState("task")
	_, err := s.Save(ctx, "t", state)
	require.NoError(t, err)

	state.Results["writer"] = "mutated"
	state.Messages[0].Content = "mutated"

	cp, err := s.LoadLatest(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, cp.State.Results)
	assert.Equal(t, "task", cp.State.Messages[0].Content)

	cp.State.Results["x"] = "y"
	again, err := s.LoadLatest(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, again.State.Results)
}

func TestInMemoryStoreConcurrentThreads(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = s.Save(ctx, id, core.NewTaskState(id))
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		cps, err := s.List(ctx, id)
		require.NoError(t, err)
		assert.Len(t, cps, 20)
		assert.Equal(t, int64(19), cps[19].Sequence)
	}
}

func TestInMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInMemoryStore().Save(ctx, "t", core.NewTaskState("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
