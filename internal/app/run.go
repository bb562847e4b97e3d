package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/vk/hotsync/internal/workspace"
)

// Run mirrors the configured workspace, then processes backend events until
// ctx is cancelled. A run in progress at cancellation is finished first.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.startStatusServer()
	defer func() { _ = a.closeStatusServer() }()

	if a.config.Workspace != "" {
		nodes, err := workspace.Load(ctx, a.config.Workspace)
		if err != nil {
			return fmt.Errorf("failed to load workspace: %w", err)
		}
		if _, err := workspace.Populate(ctx, a.graph, a.registry, a.fetcher, nodes); err != nil {
			return fmt.Errorf("failed to populate workspace: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.sync.Run(ctx); err != nil {
			a.logger.Error("Synchronizer worker stopped with error.", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.source.Run(ctx, a.router); err != nil {
			a.logger.Error("Event feed stopped with error.", "error", err)
		}
	}()

	a.logger.Info("🚀 Listening for backend reloads.", "transport", a.config.Transport, "backend_url", a.config.BackendURL)
	<-ctx.Done()
	wg.Wait()
	a.logger.Info("🏁 Shutdown complete.")
	return nil
}

// FetchDefinitions fetches the given types without installing them.
func (a *App) FetchDefinitions(ctx context.Context, ids []nodetype.TypeID) []fetcher.Result {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	results := make([]fetcher.Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, a.fetcher.Fetch(ctx, id))
	}
	return results
}
