// Package app wires the catalog cache together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/catalog-cache/internal/config"
)

// CatalogApp encapsulates all components needed to run the catalog cache server
type CatalogApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the scheduler and the HTTP server. It blocks until the server
// stops or fails.
func (app *CatalogApp) Start() error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.serve(ln)
}

func (app *CatalogApp) serve(ln net.Listener) error {
	g, ctx := errgroup.WithContext(app.ctx)

	if app.config.Scheduler.IsEnabled() {
		g.Go(func() error {
			if err := app.components.SyncCoordinator.Start(ctx); err != nil {
				slog.Error("Sync scheduler failed", "error", err)
			}
			return nil
		})
	} else {
		slog.Info("Background sync disabled by configuration")
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", ln.Addr().String())
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		// the scheduler exits with the app context
		app.cancelFunc()
		return nil
	})

	return g.Wait()
}

// Stop gracefully stops the application with the given timeout. Running
// syncs are cancelled; what they wrote stays cached.
func (app *CatalogApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync scheduler", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		slog.Info("Server shutdown complete")
	}
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *CatalogApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *CatalogApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *CatalogApp) Components() *AppComponents {
	return app.components
}
