package registry

import (
	"context"
	"fmt"

	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
)

// Construct builds a new instance of typeID from the registered definition:
// one widget per widget-capable input, at its default value. The instance
// is not added to the graph.
func (r *Registry) Construct(ctx context.Context, id livegraph.InstanceID, typeID nodetype.TypeID) (*livegraph.Instance, error) {
	def, ok := r.graph.Definition(ctx, typeID)
	if !ok {
		return nil, fmt.Errorf("no definition registered for type %q", typeID)
	}

	n := livegraph.NewInstance(id, typeID)
	for _, spec := range def.WidgetInputs() {
		if err := n.AddWidget(r.newWidget(spec)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (r *Registry) newWidget(spec nodetype.InputSpec) *livegraph.Widget {
	if name, ok := spec.Options["widget"].(string); ok {
		if factory, ok := r.factories[name]; ok {
			return withName(factory(spec), spec.Name)
		}
	}
	if factory, ok := r.factories[spec.Type]; ok {
		return withName(factory(spec), spec.Name)
	}

	w := &livegraph.Widget{Name: spec.Name, Kind: livegraph.KindValue, Value: spec.Default()}
	if spec.IsChoice() {
		w.Kind = livegraph.KindChoice
		w.Choices = append([]any(nil), spec.Choices...)
	}
	return w
}

func withName(w *livegraph.Widget, name string) *livegraph.Widget {
	w.Name = name
	return w
}
