package livegraph

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"

	"github.com/vk/hotsync/internal/nodetype"
)

// InstanceID identifies a node instance for its whole lifetime in the graph.
type InstanceID int64

// String implements fmt.Stringer.
func (id InstanceID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseInstanceID parses the decimal form produced by String.
func ParseInstanceID(s string) (InstanceID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid instance id %q: %w", s, err)
	}
	return InstanceID(v), nil
}

// Vec2 is a 2D position or size. It is an array so that assignment copies it.
type Vec2 [2]float64

// RefreshFunc is the optional per-instance hook run after a new definition
// for the instance's type was installed.
type RefreshFunc func(ctx context.Context, def *nodetype.Definition) error

// Instance is one live node in the graph.
//
// Once an instance is in a shared graph, its fields are changed only inside
// Edit and read from other goroutines only through View.
type Instance struct {
	mu sync.Mutex

	id         InstanceID
	Type       nodetype.TypeID
	Pos        Vec2
	Size       Vec2
	Widgets    []*Widget
	Properties map[string]any

	// OnRefresh, when set, runs after the instance's type was re-registered.
	// It runs with the edit lock held.
	OnRefresh RefreshFunc
}

// NewInstance creates an instance with no widgets and an empty property map.
func NewInstance(id InstanceID, typeID nodetype.TypeID) *Instance {
	return &Instance{
		id:         id,
		Type:       typeID,
		Properties: make(map[string]any),
	}
}

// ID returns the instance id.
func (n *Instance) ID() InstanceID {
	return n.id
}

// Widget returns the widget with the given name.
func (n *Instance) Widget(name string) (*Widget, bool) {
	for _, w := range n.Widgets {
		if w.Name == name {
			return w, true
		}
	}
	return nil, false
}

// AddWidget appends a widget. It fails when the name is already taken.
func (n *Instance) AddWidget(w *Widget) error {
	if _, exists := n.Widget(w.Name); exists {
		return fmt.Errorf("instance %s already has a widget named %q", n.id, w.Name)
	}
	n.Widgets = append(n.Widgets, w)
	return nil
}

// Edit runs fn with the instance's edit lock held. fn must not call Edit or
// View on the same instance.
func (n *Instance) Edit(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn()
}

// InstanceView is a copy of an instance's state, safe to use after the
// instance changed.
type InstanceView struct {
	ID         InstanceID
	Type       nodetype.TypeID
	Pos        Vec2
	Size       Vec2
	Widgets    map[string]any
	Properties map[string]any
}

// View copies the instance's state under its edit lock. Widget values and
// property values are copied shallowly.
func (n *Instance) View() InstanceView {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := InstanceView{
		ID:         n.id,
		Type:       n.Type,
		Pos:        n.Pos,
		Size:       n.Size,
		Widgets:    make(map[string]any, len(n.Widgets)),
		Properties: maps.Clone(n.Properties),
	}
	if v.Properties == nil {
		v.Properties = make(map[string]any)
	}
	for _, w := range n.Widgets {
		v.Widgets[w.Name] = w.Value
	}
	return v
}
