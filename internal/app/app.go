package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/vk/hotsync/internal/changeset"
	"github.com/vk/hotsync/internal/config"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/feed"
	"github.com/vk/hotsync/internal/feed/siofeed"
	"github.com/vk/hotsync/internal/feed/wsfeed"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/inmemorygraph"
	"github.com/vk/hotsync/internal/metrics"
	"github.com/vk/hotsync/internal/registry"
	"github.com/vk/hotsync/internal/synchronizer"
	"github.com/vk/hotsync/internal/terminal"
)

// App encapsulates the process dependencies, configuration and lifecycle.
type App struct {
	ctx    context.Context
	logger *slog.Logger
	config *config.Config

	graph    *inmemorygraph.Store
	registry *registry.Registry
	fetcher  *fetcher.Fetcher
	sync     *synchronizer.Synchronizer
	terminal *terminal.Buffer
	metrics  *metrics.Collector
	router   *feed.Router
	source   feed.Source

	httpServer *http.Server
}

// NewApp builds an App from a validated configuration. Log output goes to
// outW.
func NewApp(outW io.Writer, cfg *config.Config) (*App, error) {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		logger.Debug("Generated client id.", "client_id", cfg.ClientID)
	}

	f, err := fetcher.New(fetcher.Config{
		BaseURL:         cfg.BackendURL,
		Timeout:         cfg.Fetch.TimeoutDuration(),
		BreakerFailures: uint32(cfg.Fetch.BreakerFailures),
		BreakerCooldown: cfg.Fetch.BreakerCooldownDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create definition fetcher: %w", err)
	}

	a := &App{
		ctx:      ctx,
		logger:   logger,
		config:   cfg,
		graph:    inmemorygraph.New(),
		fetcher:  f,
		terminal: terminal.New(cfg.Terminal.Capacity),
		router:   feed.NewRouter(),
	}
	a.registry = registry.New(a.graph)
	a.metrics = metrics.NewCollector("hotsync", a.terminal.Version)
	a.sync = synchronizer.New(a.graph, a.fetcher, a.registry, synchronizer.Config{
		QueueSize: cfg.QueueSize,
		Recorder:  a.metrics,
	})

	a.router.Handle(changeset.EventName, a.sync.HandleEvent)
	a.router.Handle(terminal.EventName, a.terminal.HandleEvent)

	if a.source, err = newSource(cfg); err != nil {
		return nil, err
	}
	logger.Debug("App initialized.", "transport", cfg.Transport, "backend_url", cfg.BackendURL)
	return a, nil
}

func newSource(cfg *config.Config) (feed.Source, error) {
	switch cfg.Transport {
	case config.TransportSocketIO:
		return siofeed.New(siofeed.Config{
			BackendURL:         cfg.BackendURL,
			Namespace:          cfg.SocketIO.Namespace,
			Path:               cfg.SocketIO.Path,
			InsecureSkipVerify: cfg.SocketIO.InsecureSkipVerify,
		})
	case config.TransportWebsocket:
		return wsfeed.New(wsfeed.Config{
			BackendURL:     cfg.BackendURL,
			ClientID:       cfg.ClientID,
			ReconnectDelay: cfg.ReconnectDelayDuration(),
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// Registry returns the application's registry so hosts can register
// widget factories before Run.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Graph returns the live graph.
func (a *App) Graph() *inmemorygraph.Store {
	return a.graph
}

// Synchronizer returns the reconcile orchestrator.
func (a *App) Synchronizer() *synchronizer.Synchronizer {
	return a.sync
}

// Terminal returns the terminal line buffer.
func (a *App) Terminal() *terminal.Buffer {
	return a.terminal
}

// Close releases the fetcher's idle connections.
func (a *App) Close() {
	a.fetcher.Close()
}
