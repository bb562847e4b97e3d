package registry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
)

// Graph is the part of graphstore.Store the registry works on.
type Graph interface {
	RegisterDefinition(ctx context.Context, id nodetype.TypeID, def *nodetype.Definition) error
	Definition(ctx context.Context, id nodetype.TypeID) (*nodetype.Definition, bool)
	FindInstancesByType(ctx context.Context, id nodetype.TypeID) []*livegraph.Instance
}

// WidgetFactory builds the widget for one input of a new instance.
type WidgetFactory func(spec nodetype.InputSpec) *livegraph.Widget

// Registry installs definitions and constructs instances from them.
type Registry struct {
	graph     Graph
	factories map[string]WidgetFactory
}

// New creates a Registry working on graph.
func New(graph Graph) *Registry {
	return &Registry{
		graph:     graph,
		factories: make(map[string]WidgetFactory),
	}
}

// RegisterWidgetFactory registers the factory used for inputs of the given
// type name or, for inputs that name a widget explicitly, that widget name.
func (r *Registry) RegisterWidgetFactory(name string, factory WidgetFactory) {
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("widget factory with name '%s' already registered", name))
	}
	slog.Debug("Registering widget factory.", "name", name)
	r.factories[name] = factory
}

// InstallReport summarizes what one Install did to live instances.
type InstallReport struct {
	Instances       int
	ChoiceUpdates   int
	RefreshFailures int
}

// Install replaces the type table entry for id with def, then updates the
// choice lists of live instances of id and runs their refresh hooks. Refresh
// hook failures are logged per instance and do not fail the install.
func (r *Registry) Install(ctx context.Context, id nodetype.TypeID, def *nodetype.Definition) (InstallReport, error) {
	logger := ctxlog.FromContext(ctx)
	var report InstallReport

	if err := r.graph.RegisterDefinition(ctx, id, def); err != nil {
		return report, fmt.Errorf("failed to register definition for %q: %w", id, err)
	}

	instances := r.graph.FindInstancesByType(ctx, id)
	report.Instances = len(instances)
	for _, n := range instances {
		var refreshErr error
		n.Edit(func() {
			report.ChoiceUpdates += refreshChoices(n, def)
			if n.OnRefresh != nil {
				refreshErr = runRefresh(ctx, n, def)
			}
		})
		if refreshErr != nil {
			report.RefreshFailures++
			logger.Error("Instance refresh hook failed.", "instance_id", n.ID(), "error", refreshErr)
		}
	}

	logger.Debug("Definition installed.", "instances", report.Instances, "choice_updates", report.ChoiceUpdates)
	return report, nil
}

// refreshChoices swaps the allowed values of every widget whose name matches
// a choice input of def. Plain value widgets without callbacks, such as those
// seeded before the type had a definition, become choice widgets. Values are
// left alone.
func refreshChoices(n *livegraph.Instance, def *nodetype.Definition) int {
	updated := 0
	for _, w := range n.Widgets {
		choices, ok := def.ChoiceList(w.Name)
		if !ok {
			continue
		}
		switch {
		case w.Kind == livegraph.KindChoice:
		case w.Kind == livegraph.KindValue && w.Serializer == nil && w.Loader == nil:
			w.Kind = livegraph.KindChoice
		default:
			continue
		}
		w.Choices = append([]any(nil), choices...)
		updated++
	}
	return updated
}

func runRefresh(ctx context.Context, n *livegraph.Instance, def *nodetype.Definition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &livegraph.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return n.OnRefresh(ctx, def)
}
