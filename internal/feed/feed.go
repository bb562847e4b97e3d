// Package feed routes backend events to the components that consume them.
// The transports in wsfeed and siofeed decode frames into Events and hand
// them to a Router.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/vk/hotsync/internal/ctxlog"
)

// Event is one named message from the backend. Payload is JSON.
type Event struct {
	Name    string
	Payload []byte
}

// Handler consumes the payload of one event.
type Handler func(ctx context.Context, payload []byte) error

// Source delivers events to a router until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, router *Router) error
}

// Router maps event names to handlers. Handlers are registered before the
// source starts; Dispatch is safe for concurrent use afterwards.
type Router struct {
	handlers map[string]Handler
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle registers h for events named name. It panics on a duplicate name.
func (r *Router) Handle(name string, h Handler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("feed handler for event '%s' already registered", name))
	}
	slog.Debug("Registering feed handler.", "event", name)
	r.handlers[name] = h
}

// Names returns the routed event names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the handler for ev. Unknown events are ignored. Handler
// errors and panics are logged and do not reach the transport.
func (r *Router) Dispatch(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx).With("event", ev.Name)

	h, ok := r.handlers[ev.Name]
	if !ok {
		logger.Debug("No handler for event, ignoring.")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Feed handler panicked.", "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	if err := h(ctx, ev.Payload); err != nil {
		logger.Warn("Feed handler failed.", "error", err)
	}
}
