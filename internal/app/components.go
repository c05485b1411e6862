package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/catalog-cache/internal/profiles"
	"github.com/stacklok/catalog-cache/internal/query"
	"github.com/stacklok/catalog-cache/internal/search"
	"github.com/stacklok/catalog-cache/internal/service"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/store"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
	"github.com/stacklok/catalog-cache/internal/sync/coordinator"
	"github.com/stacklok/catalog-cache/internal/telemetry"
)

// AppComponents groups the components shared by the server and the one-shot commands
//
//nolint:revive // This name is fine
type AppComponents struct {
	Store       *store.Store
	Index       *search.Index
	Engine      *query.Engine
	Profiles    *profiles.Directory
	Fetcher     sources.Fetcher
	SyncManager catalogsync.Manager
	Service     service.CatalogService
	Telemetry   *telemetry.Telemetry

	// SyncCoordinator is only built for the server
	SyncCoordinator coordinator.Coordinator
}

// Close stops running syncs and releases the cache and telemetry providers.
// Nil components are skipped, so a partially built set can be closed.
func (c *AppComponents) Close(ctx context.Context) error {
	var errs []error
	if c.SyncManager != nil {
		if err := c.SyncManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sync runs: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close cache: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
