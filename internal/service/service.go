// Package service defines the catalog commands exposed to the HTTP API and
// the CLI, and the user-facing errors they return.
package service

import (
	"context"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/query"
	"github.com/stacklok/catalog-cache/internal/search"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go CatalogService

// CatalogService is the command layer. Every error it returns is an *Error.
type CatalogService interface {
	// CheckReadiness checks if the cache can serve requests
	CheckReadiness(ctx context.Context) error

	// ListProfiles returns the configured profiles
	ListProfiles(ctx context.Context) ([]*catalog.Profile, error)

	// StartSync starts a sync run and returns without waiting for it
	StartSync(ctx context.Context, profileID string, full bool) (*SyncStarted, error)

	// CancelSync asks the running sync of a profile to stop
	CancelSync(ctx context.Context, profileID string) error

	// GetSyncProgress returns the progress of the current or last run
	GetSyncProgress(ctx context.Context, profileID string) (*catalogsync.Progress, error)

	// GetSyncSettings returns the auto-sync settings of a profile
	GetSyncSettings(ctx context.Context, profileID string) (*catalog.SyncSettings, error)

	// UpdateSyncSettings applies a partial settings update
	UpdateSyncSettings(ctx context.Context, profileID string, update *SettingsUpdate) (*catalog.SyncSettings, error)

	// ListItems returns a filtered, sorted page of cached items
	ListItems(ctx context.Context, opts ...Option) (*query.Page, error)

	// SearchItems returns a page of full-text matches
	SearchItems(ctx context.Context, opts ...Option) (*query.Page, error)

	// GetItemDetails returns an item, fetching series seasons on demand
	GetItemDetails(ctx context.Context, profileID, contentType, externalID string) (*catalog.ItemDetail, error)

	// ListCategories returns the cached categories of a content type
	ListCategories(ctx context.Context, profileID, contentType string) ([]catalog.Category, error)

	// ExplainQuery returns the execution plan of a list or search query
	ExplainQuery(ctx context.Context, opts ...Option) (*query.Plan, error)

	// VerifyIndex checks that the search index matches the cached items
	VerifyIndex(ctx context.Context, profileID, contentType string) (*search.Consistency, error)
}

// SyncStarted identifies a run started by StartSync.
type SyncStarted struct {
	RunID     string `json:"run_id"`
	ProfileID string `json:"profile_id"`
	Full      bool   `json:"full"`
}

// SettingsUpdate changes the fields that are set and keeps the others.
type SettingsUpdate struct {
	AutoSyncEnabled   *bool `json:"auto_sync_enabled,omitempty"`
	SyncIntervalHours *uint `json:"sync_interval_hours,omitempty"`
	WifiOnly          *bool `json:"wifi_only,omitempty"`
	NotifyOnComplete  *bool `json:"notify_on_complete,omitempty"`
}

// Apply returns a copy of current with the update applied.
func (u *SettingsUpdate) Apply(current *catalog.SyncSettings) *catalog.SyncSettings {
	next := *current
	if u == nil {
		return &next
	}
	if u.AutoSyncEnabled != nil {
		next.AutoSyncEnabled = *u.AutoSyncEnabled
	}
	if u.SyncIntervalHours != nil {
		next.SyncIntervalHours = *u.SyncIntervalHours
	}
	if u.WifiOnly != nil {
		next.WifiOnly = *u.WifiOnly
	}
	if u.NotifyOnComplete != nil {
		next.NotifyOnComplete = *u.NotifyOnComplete
	}
	return &next
}
