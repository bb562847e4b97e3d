package synchronizer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hotsync/internal/changeset"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/inmemorygraph"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/vk/hotsync/internal/registry"
)

// stubFetcher serves definitions from memory. before runs ahead of every
// fetch and may mutate the graph or panic.
type stubFetcher struct {
	mu     sync.Mutex
	defs   map[nodetype.TypeID]string
	before func(id nodetype.TypeID)
	calls  []nodetype.TypeID
}

func (f *stubFetcher) Fetch(_ context.Context, id nodetype.TypeID) fetcher.Result {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	if f.before != nil {
		f.before(id)
	}
	body, ok := f.defs[id]
	if !ok {
		return fetcher.Result{TypeID: id, Outcome: fetcher.OutcomeNotFound, Err: fetcher.ErrNotFound}
	}
	def, err := nodetype.Decode([]byte(body), id)
	if err != nil {
		return fetcher.Result{TypeID: id, Outcome: fetcher.OutcomeMalformed, Err: err}
	}
	return fetcher.Result{TypeID: id, Outcome: fetcher.OutcomeOK, Definition: def}
}

type countingRecorder struct {
	mu        sync.Mutex
	runs      []RunResult
	fetches   []fetcher.Outcome
	capture   int
	restore   int
	malformed int
}

func (r *countingRecorder) RunFinished(result RunResult, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, result)
}

func (r *countingRecorder) FetchFinished(o fetcher.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches = append(r.fetches, o)
}

func (r *countingRecorder) CaptureFailures(n int) { r.mu.Lock(); r.capture += n; r.mu.Unlock() }
func (r *countingRecorder) RestoreFailures(n int) { r.mu.Lock(); r.restore += n; r.mu.Unlock() }
func (r *countingRecorder) MalformedNotification() { r.mu.Lock(); r.malformed++; r.mu.Unlock() }
func (r *countingRecorder) QueueDepth(int)         {}

func (r *countingRecorder) runResults() []RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunResult(nil), r.runs...)
}

type harness struct {
	graph    *inmemorygraph.Store
	fetcher  *stubFetcher
	recorder *countingRecorder
	sync     *Synchronizer
}

func newHarness(t *testing.T, defs map[nodetype.TypeID]string) *harness {
	t.Helper()
	g := inmemorygraph.New()
	f := &stubFetcher{defs: defs}
	rec := &countingRecorder{}
	return &harness{
		graph:    g,
		fetcher:  f,
		recorder: rec,
		sync:     New(g, f, registry.New(g), Config{Recorder: rec}),
	}
}

func (h *harness) add(t *testing.T, n *livegraph.Instance) *livegraph.Instance {
	t.Helper()
	require.NoError(t, h.graph.AddInstance(context.Background(), n))
	return n
}

// resetOnRefresh mimics an editor that rebuilds an instance from its new
// definition: geometry, widgets and properties go back to defaults.
func resetOnRefresh(n *livegraph.Instance) {
	n.OnRefresh = func(context.Context, *nodetype.Definition) error {
		n.Pos = livegraph.Vec2{}
		n.Size = livegraph.Vec2{}
		for _, w := range n.Widgets {
			w.Value = "default"
		}
		n.Properties = map[string]any{}
		return nil
	}
}

func widgetValue(t *testing.T, n *livegraph.Instance, name string) any {
	t.Helper()
	w, ok := n.Widget(name)
	require.True(t, ok, "widget %q", name)
	return w.Value
}

func TestHandle_EmptyChangeSetIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	n := h.add(t, livegraph.NewInstance(1, "A"))
	n.Pos = livegraph.Vec2{1, 2}

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Removed: []nodetype.TypeID{"A"}})

	assert.Equal(t, ResultNoop, report.Result)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, h.fetcher.calls)
	assert.Zero(t, h.graph.ViewVersion())
	assert.Equal(t, livegraph.Vec2{1, 2}, n.Pos)
	assert.Equal(t, Idle, h.sync.State())
	assert.Equal(t, []RunResult{ResultNoop}, h.recorder.runResults())
}

func TestHandle_PreservesInstanceState(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {"strength": ["FLOAT", {"default": 1.0}]}}}}`,
	})
	n := livegraph.NewInstance(7, "A")
	n.Pos = livegraph.Vec2{10, 20}
	n.Size = livegraph.Vec2{200, 100}
	n.Properties["note"] = "x"
	require.NoError(t, n.AddWidget(&livegraph.Widget{Name: "strength", Value: 0.75}))
	resetOnRefresh(n)
	h.add(t, n)

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"A"}})

	require.NoError(t, report.Err)
	assert.Equal(t, ResultOK, report.Result)
	assert.Equal(t, []nodetype.TypeID{"A"}, report.Installed)
	assert.Equal(t, 1, report.Captured)
	assert.Equal(t, 1, report.Restored)

	assert.Equal(t, livegraph.Vec2{10, 20}, n.Pos)
	assert.Equal(t, livegraph.Vec2{200, 100}, n.Size)
	assert.Equal(t, 0.75, widgetValue(t, n, "strength"))
	assert.Equal(t, "x", n.Properties["note"])
	assert.Equal(t, uint64(1), h.graph.ViewVersion())

	_, ok := h.graph.Definition(context.Background(), "A")
	assert.True(t, ok)
}

func TestHandle_PartialFailureIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/object_info/") {
		case "A":
			_, _ = w.Write([]byte(`{"A": {"input": {"required": {"v": ["INT"]}}}}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	f, err := fetcher.New(fetcher.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	g := inmemorygraph.New()
	s := New(g, f, registry.New(g), Config{})

	a := livegraph.NewInstance(1, "A")
	require.NoError(t, a.AddWidget(&livegraph.Widget{Name: "v", Value: 3}))
	resetOnRefresh(a)
	b := livegraph.NewInstance(2, "B")
	b.Pos = livegraph.Vec2{5, 5}
	require.NoError(t, b.AddWidget(&livegraph.Widget{Name: "w", Value: "keep"}))
	for _, n := range []*livegraph.Instance{a, b} {
		require.NoError(t, g.AddInstance(context.Background(), n))
	}

	report := s.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"A", "B"}})

	assert.Equal(t, ResultPartial, report.Result)
	assert.Equal(t, []nodetype.TypeID{"A"}, report.Installed)
	require.Contains(t, report.Failed, nodetype.TypeID("B"))
	assert.ErrorIs(t, report.Failed["B"], fetcher.ErrHTTPStatus)

	_, ok := g.Definition(context.Background(), "A")
	assert.True(t, ok)
	_, ok = g.Definition(context.Background(), "B")
	assert.False(t, ok, "failed type keeps its previous registration")

	assert.Equal(t, 3, widgetValue(t, a, "v"))
	assert.Equal(t, "keep", widgetValue(t, b, "w"))
	assert.Equal(t, livegraph.Vec2{5, 5}, b.Pos)
	assert.Equal(t, uint64(1), g.ViewVersion())
}

func TestHandle_AllFetchesFailedDoesNotRedraw(t *testing.T) {
	h := newHarness(t, nil)
	h.add(t, livegraph.NewInstance(1, "A"))

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Added: []nodetype.TypeID{"A"}})

	assert.Equal(t, ResultFailed, report.Result)
	assert.ErrorIs(t, report.Failed["A"], fetcher.ErrNotFound)
	assert.NoError(t, report.Err)
	assert.Zero(t, h.graph.ViewVersion())
	assert.Equal(t, []fetcher.Outcome{fetcher.OutcomeNotFound}, h.recorder.fetches)
}

func TestHandle_SerializerFallback(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {}}}}`,
	})
	n := livegraph.NewInstance(1, "A")
	require.NoError(t, n.AddWidget(&livegraph.Widget{
		Name:  "failing",
		Value: "raw-1",
		Serializer: livegraph.SerializerFunc(func(context.Context) (any, error) {
			return nil, errors.New("serializer broke")
		}),
	}))
	require.NoError(t, n.AddWidget(&livegraph.Widget{
		Name:  "empty",
		Value: "raw-2",
		Serializer: livegraph.SerializerFunc(func(context.Context) (any, error) {
			return nil, nil
		}),
	}))
	require.NoError(t, n.AddWidget(&livegraph.Widget{
		Name:  "custom",
		Value: "raw-3",
		Serializer: livegraph.SerializerFunc(func(context.Context) (any, error) {
			return "serialized-3", nil
		}),
	}))
	resetOnRefresh(n)
	h.add(t, n)

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"A"}})

	assert.Equal(t, ResultOK, report.Result)
	assert.Equal(t, 2, report.SerializationFailures)
	assert.Equal(t, 2, h.recorder.capture)
	assert.Equal(t, "raw-1", widgetValue(t, n, "failing"))
	assert.Equal(t, "raw-2", widgetValue(t, n, "empty"))
	assert.Equal(t, "serialized-3", widgetValue(t, n, "custom"))
}

func TestHandle_ChoiceListUpdateKeepsValue(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"Loader": `{"Loader": {"input": {"required": {"ckpt": [["v1", "v2", "v3"]]}}}}`,
	})
	n := livegraph.NewInstance(1, "Loader")
	require.NoError(t, n.AddWidget(&livegraph.Widget{
		Name: "ckpt", Kind: livegraph.KindChoice, Value: "v1", Choices: []any{"v1", "v2"},
	}))
	h.add(t, n)

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"Loader"}})

	assert.Equal(t, ResultOK, report.Result)
	w, _ := n.Widget("ckpt")
	assert.Equal(t, []any{"v1", "v2", "v3"}, w.Choices)
	assert.Equal(t, "v1", w.Value)
}

func TestHandle_InstanceDeletedDuringFetchIsSkipped(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {}}}}`,
	})
	keep := livegraph.NewInstance(1, "A")
	keep.Pos = livegraph.Vec2{3, 4}
	resetOnRefresh(keep)
	h.add(t, keep)
	h.add(t, livegraph.NewInstance(2, "A"))

	h.fetcher.before = func(nodetype.TypeID) {
		h.graph.RemoveInstance(context.Background(), 2)
	}

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"A"}})

	require.NoError(t, report.Err)
	assert.Equal(t, ResultOK, report.Result)
	assert.Equal(t, 2, report.Captured)
	assert.Equal(t, 1, report.Restored)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.WidgetFailures)
	assert.Equal(t, livegraph.Vec2{3, 4}, keep.Pos)
	_, ok := h.graph.FindInstanceByID(context.Background(), 2)
	assert.False(t, ok, "a deleted instance is never recreated")
}

func TestHandle_PanicDuringFetchIsContainedToTypeID(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {}}}}`,
		"B": `{"B": {"input": {"required": {}}}}`,
	})
	h.fetcher.before = func(id nodetype.TypeID) {
		if id == "A" {
			panic("fetch exploded")
		}
	}

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{Updated: []nodetype.TypeID{"A", "B"}})

	assert.Equal(t, ResultPartial, report.Result)
	assert.ErrorIs(t, report.Failed["A"], ErrUnexpected)
	assert.Equal(t, []nodetype.TypeID{"B"}, report.Installed)
	assert.NoError(t, report.Err)
}

type panickingGraph struct {
	*inmemorygraph.Store
}

func (panickingGraph) FindInstancesByType(context.Context, nodetype.TypeID) []*livegraph.Instance {
	panic("graph exploded")
}

func TestHandle_RecoversFromUnexpectedPanic(t *testing.T) {
	g := panickingGraph{inmemorygraph.New()}
	rec := &countingRecorder{}
	s := New(g, &stubFetcher{}, registry.New(g), Config{Recorder: rec})

	var report Report
	require.NotPanics(t, func() {
		report = s.Handle(context.Background(), changeset.ChangeSet{Added: []nodetype.TypeID{"A"}})
	})

	assert.ErrorIs(t, report.Err, ErrUnexpected)
	assert.Equal(t, ResultFailed, report.Result)
	assert.Equal(t, Idle, s.State())
	assert.Zero(t, g.ViewVersion())
	assert.Equal(t, []RunResult{ResultFailed}, rec.runResults())
}

func TestHandle_DuplicateTypeIDs(t *testing.T) {
	h := newHarness(t, map[nodetype.TypeID]string{
		"A": `{"A": {"input": {"required": {}}}}`,
	})
	h.add(t, livegraph.NewInstance(1, "A"))

	report := h.sync.Handle(context.Background(), changeset.ChangeSet{
		Added:   []nodetype.TypeID{"A"},
		Updated: []nodetype.TypeID{"A"},
	})

	assert.Equal(t, ResultOK, report.Result)
	assert.Equal(t, []nodetype.TypeID{"A", "A"}, h.fetcher.calls)
	assert.Equal(t, 1, report.Captured)
	assert.Equal(t, 1, report.Restored)
}
