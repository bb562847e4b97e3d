package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vk/hotsync/internal/changeset"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/vk/hotsync/internal/registry"
	"github.com/vk/hotsync/internal/restore"
	"github.com/vk/hotsync/internal/snapshot"
)

var (
	// ErrUnexpected wraps a panic recovered at batch scope.
	ErrUnexpected = errors.New("unexpected failure during reconcile run")
	// ErrQueueFull is returned by Enqueue when the run queue is at capacity.
	ErrQueueFull = errors.New("reconcile queue is full")
)

// Graph is the live graph as seen by a run.
type Graph interface {
	FindInstancesByType(ctx context.Context, id nodetype.TypeID) []*livegraph.Instance
	FindInstanceByID(ctx context.Context, id livegraph.InstanceID) (*livegraph.Instance, bool)
	MarkViewDirty(ctx context.Context)
}

// DefinitionFetcher retrieves one type definition. *fetcher.Fetcher
// implements it.
type DefinitionFetcher interface {
	Fetch(ctx context.Context, id nodetype.TypeID) fetcher.Result
}

// Installer replaces a type definition and refreshes its live instances.
// *registry.Registry implements it.
type Installer interface {
	Install(ctx context.Context, id nodetype.TypeID, def *nodetype.Definition) (registry.InstallReport, error)
}

// Config holds the optional parts of a Synchronizer.
type Config struct {
	// QueueSize bounds the number of pending change sets. Defaults to 16.
	QueueSize int
	// Recorder receives run statistics. Defaults to a no-op.
	Recorder Recorder
	// OnReport, when set, is called by Run after each queued run.
	OnReport func(Report)
}

// Report describes one finished run.
type Report struct {
	RunID  string
	Batch  []nodetype.TypeID
	Result RunResult

	Captured              int
	SerializationFailures int

	Installed []nodetype.TypeID
	Failed    map[nodetype.TypeID]error

	Restored       int
	Skipped        int
	WidgetFailures []error

	Elapsed time.Duration
	// Err is set when the run ended on a recovered panic.
	Err error
}

// Synchronizer runs capture, fetch, install and restore for change sets.
type Synchronizer struct {
	graph     Graph
	fetcher   DefinitionFetcher
	installer Installer
	recorder  Recorder
	onReport  func(Report)

	queue chan changeset.ChangeSet
	state atomic.Int32
}

// New creates a Synchronizer.
func New(graph Graph, defs DefinitionFetcher, installer Installer, cfg Config) *Synchronizer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Synchronizer{
		graph:     graph,
		fetcher:   defs,
		installer: installer,
		recorder:  cfg.Recorder,
		onReport:  cfg.OnReport,
		queue:     make(chan changeset.ChangeSet, cfg.QueueSize),
	}
}

// State returns the phase of the run in progress.
func (s *Synchronizer) State() State {
	return State(s.state.Load())
}

func (s *Synchronizer) setState(st State) {
	s.state.Store(int32(st))
}

// Handle performs one reconcile run for cs and returns its report. It never
// panics; per-type failures are reported in Report.Failed.
func (s *Synchronizer) Handle(ctx context.Context, cs changeset.ChangeSet) (report Report) {
	start := time.Now()
	report = Report{
		RunID:  uuid.NewString(),
		Batch:  cs.Batch(),
		Failed: make(map[nodetype.TypeID]error),
	}
	ctx, logger := ctxlog.With(ctx, "run_id", report.RunID)

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("%w: %v", ErrUnexpected, r)
			report.Result = ResultFailed
			logger.Error("Reconcile run panicked.", "panic", r, "stack", string(debug.Stack()))
		}
		s.setState(Idle)
		report.Elapsed = time.Since(start)
		s.recorder.RunFinished(report.Result, report.Elapsed)
	}()

	if len(cs.Removed) > 0 {
		logger.Info("Types removed by backend, leaving their instances untouched.", "removed", cs.Removed)
	}
	if len(report.Batch) == 0 {
		report.Result = ResultNoop
		logger.Debug("Empty change set, nothing to reconcile.")
		return report
	}
	logger.Info("Reconcile run started.", "batch", report.Batch)

	s.setState(Capturing)
	captured := snapshot.Capture(ctx, s.graph, report.Batch)
	report.Captured = len(captured.Snapshots)
	report.SerializationFailures = captured.SerializationFailures
	if captured.SerializationFailures > 0 {
		s.recorder.CaptureFailures(captured.SerializationFailures)
	}

	s.setState(FetchingAndRegistering)
	for _, id := range report.Batch {
		if err := s.fetchAndInstall(ctx, id); err != nil {
			report.Failed[id] = err
			continue
		}
		delete(report.Failed, id)
		report.Installed = append(report.Installed, id)
	}

	s.setState(Restoring)
	restored := restore.Restore(ctx, s.graph, captured.Snapshots)
	report.Restored = restored.Restored
	report.Skipped = restored.Skipped
	report.WidgetFailures = restored.WidgetFailures
	if len(restored.WidgetFailures) > 0 {
		s.recorder.RestoreFailures(len(restored.WidgetFailures))
	}

	switch {
	case len(report.Installed) == 0:
		report.Result = ResultFailed
	case len(report.Failed) > 0:
		report.Result = ResultPartial
	default:
		report.Result = ResultOK
	}

	if report.Result != ResultFailed {
		s.graph.MarkViewDirty(ctx)
	}

	logger.Info("Reconcile run finished.",
		"result", report.Result,
		"installed", len(report.Installed),
		"failed", len(report.Failed),
		"restored", report.Restored,
		"skipped", report.Skipped,
		"widget_failures", len(report.WidgetFailures),
	)
	return report
}

// fetchAndInstall handles one type id. A panic is contained to this id.
func (s *Synchronizer) fetchAndInstall(ctx context.Context, id nodetype.TypeID) (err error) {
	ctx, logger := ctxlog.With(ctx, "type_id", id)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: type %q: %v", ErrUnexpected, id, r)
			logger.Error("Type reconcile panicked.", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	res := s.fetcher.Fetch(ctx, id)
	s.recorder.FetchFinished(res.Outcome)
	if !res.OK() {
		if res.Err == nil {
			res.Err = fmt.Errorf("fetch of %q ended with outcome %s", id, res.Outcome)
		}
		logger.Warn("Definition not installed, fetch failed.", "outcome", res.Outcome, "error", res.Err)
		return res.Err
	}

	installed, err := s.installer.Install(ctx, id, res.Definition)
	if err != nil {
		logger.Error("Definition install failed.", "error", err)
		return err
	}
	logger.Debug("Definition installed.",
		"instances", installed.Instances,
		"refresh_failures", installed.RefreshFailures,
	)
	return nil
}
