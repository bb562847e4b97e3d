package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/livegraph"
)

// statusRouter serves health, metrics, terminal output and graph state.
func (a *App) statusRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", a.healthHandler)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Get("/terminal", a.terminalHandler)
	r.Route("/graph", func(r chi.Router) {
		r.Get("/", a.graphHandler)
		r.Get("/{instanceID}", a.instanceHandler)
	})
	return r
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

type terminalResponse struct {
	Version uint64   `json:"version"`
	Lines   []string `json:"lines"`
}

func (a *App) terminalHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, terminalResponse{
		Version: a.terminal.Version(),
		Lines:   a.terminal.Lines(),
	})
}

type graphResponse struct {
	ViewVersion uint64 `json:"view_version"`
	Instances   int    `json:"instances"`
	State       string `json:"state"`
}

func (a *App) graphHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, graphResponse{
		ViewVersion: a.graph.ViewVersion(),
		Instances:   a.graph.Len(r.Context()),
		State:       a.sync.State().String(),
	})
}

type instanceResponse struct {
	ID         livegraph.InstanceID `json:"id"`
	Type       string               `json:"type"`
	Pos        livegraph.Vec2       `json:"pos"`
	Size       livegraph.Vec2       `json:"size"`
	Widgets    map[string]any       `json:"widgets"`
	Properties map[string]any       `json:"properties"`
}

func (a *App) instanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := livegraph.ParseInstanceID(chi.URLParam(r, "instanceID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, ok := a.graph.FindInstanceByID(r.Context(), id)
	if !ok {
		http.Error(w, "instance not found", http.StatusNotFound)
		return
	}

	v := n.View()
	writeJSON(w, http.StatusOK, instanceResponse{
		ID:         v.ID,
		Type:       string(v.Type),
		Pos:        v.Pos,
		Size:       v.Size,
		Widgets:    v.Widgets,
		Properties: v.Properties,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// startStatusServer runs the status server when a port is configured.
func (a *App) startStatusServer() {
	logger := ctxlog.FromContext(a.ctx)
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Status server not started: disabled")
		return
	}

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.statusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeStatusServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Status server shut down gracefully.")
	return nil
}
