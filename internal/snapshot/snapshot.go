// Package snapshot captures the reconcilable state of live instances right
// before their type definitions are replaced.
//
// A Snapshot is ephemeral: it is created at the start of one reconcile run,
// consumed by internal/restore at its end, and dropped afterwards.
package snapshot

import (
	"context"
	"maps"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
)

// Snapshot is the captured state of one instance.
type Snapshot struct {
	ID         livegraph.InstanceID
	Type       nodetype.TypeID
	Pos        livegraph.Vec2
	Size       livegraph.Vec2
	Widgets    map[string]any
	Properties map[string]any
}

// Set maps instance ids to their snapshots.
type Set map[livegraph.InstanceID]*Snapshot

// Result is the outcome of one Capture call.
type Result struct {
	Snapshots Set
	// SerializationFailures counts widgets whose serializer failed and whose
	// raw value was captured instead.
	SerializationFailures int
}

// InstanceFinder is the part of graphstore.Store that capture needs.
type InstanceFinder interface {
	FindInstancesByType(ctx context.Context, id nodetype.TypeID) []*livegraph.Instance
}

// Capture snapshots every live instance whose type is in types. It never
// fails: widget-level problems are logged and the raw value is kept.
func Capture(ctx context.Context, graph InstanceFinder, types []nodetype.TypeID) Result {
	logger := ctxlog.FromContext(ctx)
	res := Result{Snapshots: make(Set)}

	seen := make(map[nodetype.TypeID]struct{}, len(types))
	for _, typeID := range types {
		if _, dup := seen[typeID]; dup {
			continue
		}
		seen[typeID] = struct{}{}

		instances := graph.FindInstancesByType(ctx, typeID)
		for _, n := range instances {
			var (
				snap     *Snapshot
				failures int
			)
			n.Edit(func() { snap, failures = captureInstance(ctx, n) })
			res.Snapshots[n.ID()] = snap
			res.SerializationFailures += failures
		}
		logger.Debug("Captured instances of type.", "type_id", typeID, "count", len(instances))
	}
	return res
}

func captureInstance(ctx context.Context, n *livegraph.Instance) (*Snapshot, int) {
	logger := ctxlog.FromContext(ctx)
	snap := &Snapshot{
		ID:         n.ID(),
		Type:       n.Type,
		Pos:        n.Pos,
		Size:       n.Size,
		Widgets:    make(map[string]any, len(n.Widgets)),
		Properties: maps.Clone(n.Properties),
	}
	if snap.Properties == nil {
		snap.Properties = make(map[string]any)
	}

	failures := 0
	for _, w := range n.Widgets {
		value, ok, err := w.TrySerialize(ctx)
		if !ok {
			failures++
			logger.Warn("Widget serialization failed, capturing raw value.",
				"instance_id", n.ID(), "widget", w.Name, "error", err)
		}
		snap.Widgets[w.Name] = value
	}
	return snap, failures
}
