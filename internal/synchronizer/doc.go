// Package synchronizer orchestrates one reconcile run per change
// notification: capture the state of affected instances, fetch and install
// the new type definitions, restore the captured state, and ask for a
// redraw.
//
// # Run lifecycle
//
// A run moves through Idle, Capturing, FetchingAndRegistering and Restoring
// before returning to Idle. Capture happens before any definition is
// replaced, so every snapshot reflects the pre-reload state.
//
// # Failure scopes
//
// Problems are handled at the narrowest scope that contains them: a widget
// (capture and restore fall back), a type id (its fetch or install fails,
// the rest of the batch proceeds), or the batch (an unexpected panic ends
// the run, is logged with its stack, and never escapes Handle).
//
// # Serialization
//
// Handle processes one ChangeSet synchronously. Notifications arriving from
// the event feed go through Enqueue onto a bounded queue drained by a single
// Run goroutine, so one run finishes before the next starts.
package synchronizer
