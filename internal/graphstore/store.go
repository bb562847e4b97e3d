// Package graphstore defines the interface to the editor's live graph: the
// type table that shapes new instances and the set of instances the user is
// editing.
//
// # Why a separate interface
//
// The reconcile pipeline (snapshot, registry, restore, synchronizer) only
// needs four operations from the editor: install a definition, find
// instances by type, find one instance by id, and ask for a redraw. Keeping
// them behind Store lets the pipeline run against the in-memory graph used
// by the headless host and tests, or against any other editor binding.
//
// # Ownership
//
// The store owns every Instance. Callers may mutate fields of an instance
// they looked up, but they never create or destroy instances through the
// pipeline. AddInstance and RemoveInstance exist for the host that mirrors
// the user's editing.
package graphstore

import (
	"context"

	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
)

// Store is the live graph plus its type table.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use: the host adds and removes
// instances from its own goroutine while the synchronizer worker queries
// them. Instance fields are not protected by the store.
type Store interface {
	// RegisterDefinition replaces the type table entry for id. It affects
	// instances constructed afterwards; live instances are not touched.
	RegisterDefinition(ctx context.Context, id nodetype.TypeID, def *nodetype.Definition) error

	// Definition returns the currently registered definition for id.
	Definition(ctx context.Context, id nodetype.TypeID) (*nodetype.Definition, bool)

	// FindInstancesByType returns all live instances whose current type is
	// id, ordered by instance id. The slice is a snapshot owned by the caller.
	FindInstancesByType(ctx context.Context, id nodetype.TypeID) []*livegraph.Instance

	// FindInstanceByID returns the live instance with the given id.
	FindInstanceByID(ctx context.Context, id livegraph.InstanceID) (*livegraph.Instance, bool)

	// AddInstance puts an instance into the graph. Adding an id that already
	// exists is an error.
	AddInstance(ctx context.Context, n *livegraph.Instance) error

	// RemoveInstance deletes an instance. Removing a missing id is a no-op.
	RemoveInstance(ctx context.Context, id livegraph.InstanceID)

	// Len returns the number of live instances.
	Len(ctx context.Context) int

	// MarkViewDirty signals that the next render must redraw. Each call
	// increments ViewVersion.
	MarkViewDirty(ctx context.Context)

	// ViewVersion is a monotonically increasing counter that renderers poll
	// to decide whether to redraw.
	ViewVersion() uint64
}
