// Package restore replays captured snapshots onto live instances after their
// type definitions were re-registered.
package restore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/snapshot"
)

// ErrWidgetRestore wraps every per-widget restore failure.
var ErrWidgetRestore = errors.New("widget restore failed")

// InstanceLookup is the part of graphstore.Store the restorer needs.
type InstanceLookup interface {
	FindInstanceByID(ctx context.Context, id livegraph.InstanceID) (*livegraph.Instance, bool)
}

// Report summarizes one Restore call.
type Report struct {
	Restored int
	// Skipped counts snapshots whose instance no longer exists.
	Skipped int
	// WidgetFailures lists the widgets left at their post-install value.
	WidgetFailures []error
}

// Restore applies every snapshot in set to the live instance with the same
// id. Instances deleted since capture are skipped silently. Snapshots are
// applied in instance id order.
func Restore(ctx context.Context, graph InstanceLookup, set snapshot.Set) Report {
	logger := ctxlog.FromContext(ctx)
	var report Report

	ids := make([]livegraph.InstanceID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n, ok := graph.FindInstanceByID(ctx, id)
		if !ok {
			report.Skipped++
			logger.Debug("Instance removed before restore, skipping.", "instance_id", id)
			continue
		}
		var failures []error
		n.Edit(func() { failures = apply(ctx, n, set[id]) })
		report.WidgetFailures = append(report.WidgetFailures, failures...)
		report.Restored++
	}
	return report
}

// apply runs with n's edit lock held.
func apply(ctx context.Context, n *livegraph.Instance, snap *snapshot.Snapshot) []error {
	logger := ctxlog.FromContext(ctx)

	n.Pos = snap.Pos
	n.Size = snap.Size
	if n.Properties == nil {
		n.Properties = make(map[string]any, len(snap.Properties))
	}
	maps.Copy(n.Properties, snap.Properties)

	var failures []error
	for _, w := range n.Widgets {
		value, captured := snap.Widgets[w.Name]
		if !captured {
			continue
		}
		if err := restoreWidget(ctx, w, value); err != nil {
			err = fmt.Errorf("%w: instance %s widget %q: %w", ErrWidgetRestore, n.ID(), w.Name, err)
			failures = append(failures, err)
			logger.Warn("Widget restore failed, keeping post-install value.",
				"instance_id", n.ID(), "widget", w.Name, "error", err)
		}
	}
	return failures
}

func restoreWidget(ctx context.Context, w *livegraph.Widget, value any) error {
	if pending, ok := value.(livegraph.Pending); ok {
		resolved, err := pending.Await(ctx)
		if err != nil {
			return fmt.Errorf("awaiting captured value: %w", err)
		}
		value = resolved
	}
	return w.TryLoad(ctx, value)
}
