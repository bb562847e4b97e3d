package synchronizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hotsync/internal/changeset"
	"github.com/vk/hotsync/internal/inmemorygraph"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/vk/hotsync/internal/registry"
)

func TestEnqueue_FullQueue(t *testing.T) {
	g := inmemorygraph.New()
	s := New(g, &stubFetcher{}, registry.New(g), Config{QueueSize: 1})
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, changeset.ChangeSet{Added: []nodetype.TypeID{"A"}}))
	err := s.Enqueue(ctx, changeset.ChangeSet{Added: []nodetype.TypeID{"B"}})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestHandleEvent_Malformed(t *testing.T) {
	h := newHarness(t, nil)

	err := h.sync.HandleEvent(context.Background(), []byte(`{"changes": {"added": []}}`))

	assert.ErrorIs(t, err, changeset.ErrMalformed)
	assert.Equal(t, 1, h.recorder.malformed)
	assert.Empty(t, h.sync.queue)
}

func TestRun_ProcessesQueuedRunsInOrder(t *testing.T) {
	g := inmemorygraph.New()
	f := &stubFetcher{defs: map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {}}}}`,
		"B": `{"B": {"input": {"required": {}}}}`,
	}}
	reports := make(chan Report, 4)
	s := New(g, f, registry.New(g), Config{
		OnReport: func(r Report) { reports <- r },
	})

	n := livegraph.NewInstance(1, "A")
	n.Pos = livegraph.Vec2{1, 1}
	resetOnRefresh(n)
	require.NoError(t, g.AddInstance(context.Background(), n))

	// Every fetch observes the worker mid-run; no second run may start.
	f.before = func(nodetype.TypeID) {
		assert.Equal(t, FetchingAndRegistering, s.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.HandleEvent(ctx, []byte(`{"changes": {"added": [], "updated": ["A"]}}`)))
	require.NoError(t, s.HandleEvent(ctx, []byte(`{"changes": {"added": ["B"], "updated": []}}`)))

	var got []Report
	for range 2 {
		select {
		case r := <-reports:
			got = append(got, r)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for queued runs")
		}
	}

	cancel()
	require.NoError(t, <-done)

	require.Len(t, got, 2)
	assert.Equal(t, []nodetype.TypeID{"A"}, got[0].Batch)
	assert.Equal(t, []nodetype.TypeID{"B"}, got[1].Batch)
	assert.NotEqual(t, got[0].RunID, got[1].RunID)
	assert.Equal(t, ResultOK, got[0].Result)
	assert.Equal(t, ResultOK, got[1].Result)
	assert.Equal(t, []nodetype.TypeID{"A", "B"}, f.calls)
	assert.Equal(t, livegraph.Vec2{1, 1}, n.Pos)
	assert.Equal(t, uint64(2), g.ViewVersion())
	assert.Equal(t, Idle, s.State())
}
