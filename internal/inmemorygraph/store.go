// Package inmemorygraph provides a thread-safe, in-memory implementation of
// graphstore.Store.
//
// Maps are guarded by a single RWMutex: the workload is read-heavy (lookups
// during capture and restore) with occasional writes from the host. The
// redraw counter is atomic so renderers can poll it without taking the lock.
package inmemorygraph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/graphstore"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
)

// Store implements graphstore.Store with maps and a mutex.
type Store struct {
	mu        sync.RWMutex
	types     map[nodetype.TypeID]*nodetype.Definition
	instances map[livegraph.InstanceID]*livegraph.Instance

	viewVersion atomic.Uint64
}

var _ graphstore.Store = (*Store)(nil)

// New creates a new, empty in-memory graph.
func New() *Store {
	return &Store{
		types:     make(map[nodetype.TypeID]*nodetype.Definition),
		instances: make(map[livegraph.InstanceID]*livegraph.Instance),
	}
}

// RegisterDefinition replaces the type table entry for id.
func (s *Store) RegisterDefinition(ctx context.Context, id nodetype.TypeID, def *nodetype.Definition) error {
	if id == "" {
		return fmt.Errorf("cannot register a definition under an empty type id")
	}
	if def == nil {
		return fmt.Errorf("cannot register a nil definition for type %q", id)
	}

	s.mu.Lock()
	_, replaced := s.types[id]
	s.types[id] = def
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("Type definition registered.", "type_id", id, "replaced", replaced)
	return nil
}

// Definition returns the registered definition for id.
func (s *Store) Definition(ctx context.Context, id nodetype.TypeID) (*nodetype.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.types[id]
	return def, ok
}

// FindInstancesByType returns the instances of type id ordered by id.
func (s *Store) FindInstancesByType(ctx context.Context, id nodetype.TypeID) []*livegraph.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*livegraph.Instance
	for _, n := range s.instances {
		if n.Type == id {
			found = append(found, n)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID() < found[j].ID() })
	return found
}

// FindInstanceByID returns the instance with the given id.
func (s *Store) FindInstanceByID(ctx context.Context, id livegraph.InstanceID) (*livegraph.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.instances[id]
	return n, ok
}

// AddInstance puts n into the graph.
func (s *Store) AddInstance(ctx context.Context, n *livegraph.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[n.ID()]; exists {
		return fmt.Errorf("instance %s already exists in graph", n.ID())
	}
	s.instances[n.ID()] = n
	return nil
}

// RemoveInstance deletes the instance with the given id.
func (s *Store) RemoveInstance(ctx context.Context, id livegraph.InstanceID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, id)
}

// Len returns the number of live instances.
func (s *Store) Len(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.instances)
}

// MarkViewDirty bumps the view version.
func (s *Store) MarkViewDirty(ctx context.Context) {
	v := s.viewVersion.Add(1)
	ctxlog.FromContext(ctx).Debug("Graph view marked dirty.", "view_version", v)
}

// ViewVersion returns the current view version.
func (s *Store) ViewVersion() uint64 {
	return s.viewVersion.Load()
}
