package workspace

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/graphstore"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/vk/hotsync/internal/registry"
)

// DefinitionFetcher retrieves one type definition.
type DefinitionFetcher interface {
	Fetch(ctx context.Context, id nodetype.TypeID) fetcher.Result
}

// Report summarizes one Populate call.
type Report struct {
	Instances int
	// Unresolved lists types built from seeded widgets because their
	// definition could not be fetched.
	Unresolved []nodetype.TypeID
}

// Populate adds nodes to graph. It fails only when an instance cannot be
// added, for example because its id is already taken.
func Populate(ctx context.Context, graph graphstore.Store, reg *registry.Registry, defs DefinitionFetcher, nodes []Node) (Report, error) {
	logger := ctxlog.FromContext(ctx)
	var report Report

	var types []nodetype.TypeID
	for _, n := range nodes {
		if !slices.Contains(types, n.Type) {
			types = append(types, n.Type)
		}
	}

	resolved := make(map[nodetype.TypeID]bool, len(types))
	for _, typeID := range types {
		res := defs.Fetch(ctx, typeID)
		if !res.OK() {
			logger.Warn("Definition unavailable, building instances from seeded widgets.",
				"type_id", typeID, "outcome", res.Outcome, "error", res.Err)
			report.Unresolved = append(report.Unresolved, typeID)
			continue
		}
		if _, err := reg.Install(ctx, typeID, res.Definition); err != nil {
			logger.Warn("Definition install failed, building instances from seeded widgets.",
				"type_id", typeID, "error", err)
			report.Unresolved = append(report.Unresolved, typeID)
			continue
		}
		resolved[typeID] = true
	}

	for _, n := range nodes {
		inst, err := build(ctx, reg, n, resolved[n.Type])
		if err != nil {
			return report, fmt.Errorf("%s: %w", n.Source, err)
		}
		if err := graph.AddInstance(ctx, inst); err != nil {
			return report, fmt.Errorf("%s: %w", n.Source, err)
		}
		report.Instances++
	}

	if report.Instances > 0 {
		graph.MarkViewDirty(ctx)
	}
	logger.Info("Workspace populated.", "instances", report.Instances, "unresolved_types", report.Unresolved)
	return report, nil
}

func build(ctx context.Context, reg *registry.Registry, n Node, resolved bool) (*livegraph.Instance, error) {
	logger := ctxlog.FromContext(ctx).With("instance_id", n.ID, "type_id", n.Type)

	var inst *livegraph.Instance
	if resolved {
		var err error
		if inst, err = reg.Construct(ctx, n.ID, n.Type); err != nil {
			return nil, err
		}
	} else {
		inst = livegraph.NewInstance(n.ID, n.Type)
		for _, name := range sortedKeys(n.Widgets) {
			if err := inst.AddWidget(&livegraph.Widget{Name: name, Kind: livegraph.KindValue}); err != nil {
				return nil, err
			}
		}
	}

	inst.Pos = n.Pos
	inst.Size = n.Size
	for k, v := range n.Properties {
		inst.Properties[k] = v
	}
	for _, name := range sortedKeys(n.Widgets) {
		w, ok := inst.Widget(name)
		if !ok {
			logger.Warn("Seeded widget is not part of the definition, ignoring.", "widget", name)
			continue
		}
		if err := w.TryLoad(ctx, n.Widgets[name]); err != nil {
			logger.Warn("Seeded widget value rejected.", "widget", name, "error", err)
		}
	}
	return inst, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
