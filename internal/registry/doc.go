// Package registry installs node-type definitions into the live graph.
//
// Install is the only path through which a definition reaches the type
// table during a reconcile run. Besides replacing the table entry it
// refreshes the choice lists of live instances of that type and runs their
// refresh hooks. It never adds or removes widgets on live instances.
//
// Construct builds new instances from the installed definition. Input types
// that need richer widgets (uploads, previews) get them from widget
// factories registered by the host with RegisterWidgetFactory.
package registry
