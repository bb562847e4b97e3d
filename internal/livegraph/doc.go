// Package livegraph defines the live objects of an editor graph: node
// instances and the widgets they own.
//
// An Instance is owned by the graph store. Other packages mutate its fields
// in place but never create or destroy instances on the store's behalf.
//
// Widgets are identified by name, not by position. A new type definition may
// reorder or resize the widget list, so every reconciliation step looks
// widgets up with Instance.Widget(name).
//
// Widgets may expose two optional capabilities supplied by the type
// definition: a Serializer, used when capturing a value, and a Loader, used
// when putting one back. Widget.TrySerialize and Widget.TryLoad fall back to
// the raw value when a capability is missing.
package livegraph
