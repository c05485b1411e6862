// Package local implements the catalog commands over the local cache.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
	"github.com/stacklok/catalog-cache/internal/query"
	"github.com/stacklok/catalog-cache/internal/search"
	"github.com/stacklok/catalog-cache/internal/service"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/store"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

// DefaultDetailsTTL is how long fetched series details are reused.
const DefaultDetailsTTL = 24 * time.Hour

// Profiles resolves configured profiles.
type Profiles interface {
	Get(id string) (*catalog.Profile, error)
	List() []*catalog.Profile
}

// options holds configuration options for the local service
type options struct {
	store      *store.Store
	index      *search.Index
	engine     *query.Engine
	manager    catalogsync.Manager
	profiles   Profiles
	fetcher    sources.Fetcher
	detailsTTL time.Duration
	tracer     trace.Tracer
	now        func() time.Time
}

// Option is a functional option for configuring the local service
type Option func(*options) error

// WithStore sets the cache store. The caller closes it.
func WithStore(s *store.Store) Option {
	return func(o *options) error {
		if s == nil {
			return fmt.Errorf("store is required")
		}
		o.store = s
		return nil
	}
}

// WithSearchIndex sets the search index.
func WithSearchIndex(index *search.Index) Option {
	return func(o *options) error {
		if index == nil {
			return fmt.Errorf("search index is required")
		}
		o.index = index
		return nil
	}
}

// WithQueryEngine sets the query engine.
func WithQueryEngine(engine *query.Engine) Option {
	return func(o *options) error {
		if engine == nil {
			return fmt.Errorf("query engine is required")
		}
		o.engine = engine
		return nil
	}
}

// WithSyncManager sets the sync manager.
func WithSyncManager(m catalogsync.Manager) Option {
	return func(o *options) error {
		if m == nil {
			return fmt.Errorf("sync manager is required")
		}
		o.manager = m
		return nil
	}
}

// WithProfiles sets the profile directory.
func WithProfiles(p Profiles) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("profiles are required")
		}
		o.profiles = p
		return nil
	}
}

// WithFetcher sets the provider client used for series details.
func WithFetcher(f sources.Fetcher) Option {
	return func(o *options) error {
		if f == nil {
			return fmt.Errorf("fetcher is required")
		}
		o.fetcher = f
		return nil
	}
}

// WithDetailsTTL sets how long fetched series details are reused.
func WithDetailsTTL(ttl time.Duration) Option {
	return func(o *options) error {
		if ttl <= 0 {
			return fmt.Errorf("details ttl must be greater than zero, got %s", ttl)
		}
		o.detailsTTL = ttl
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer. If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.now = now
		return nil
	}
}

// localService implements CatalogService over the cache store
type localService struct {
	store      *store.Store
	index      *search.Index
	engine     *query.Engine
	manager    catalogsync.Manager
	profiles   Profiles
	fetcher    sources.Fetcher
	detailsTTL time.Duration
	tracer     trace.Tracer
	now        func() time.Time

	details singleflight.Group
}

var _ service.CatalogService = (*localService)(nil)

// New creates the local catalog service.
func New(opts ...Option) (service.CatalogService, error) {
	o := &options{
		detailsTTL: DefaultDetailsTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	switch {
	case o.store == nil:
		return nil, fmt.Errorf("store is required")
	case o.index == nil:
		return nil, fmt.Errorf("search index is required")
	case o.engine == nil:
		return nil, fmt.Errorf("query engine is required")
	case o.manager == nil:
		return nil, fmt.Errorf("sync manager is required")
	case o.profiles == nil:
		return nil, fmt.Errorf("profiles are required")
	case o.fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	}

	return &localService{
		store:      o.store,
		index:      o.index,
		engine:     o.engine,
		manager:    o.manager,
		profiles:   o.profiles,
		fetcher:    o.fetcher,
		detailsTTL: o.detailsTTL,
		tracer:     o.tracer,
		now:        o.now,
	}, nil
}

// CheckReadiness checks that the cache database answers
func (s *localService) CheckReadiness(ctx context.Context) error {
	return service.Translate(s.store.Ping(ctx))
}

// ListProfiles returns the configured profiles
func (s *localService) ListProfiles(context.Context) ([]*catalog.Profile, error) {
	return s.profiles.List(), nil
}

func (s *localService) profile(profileID string) (*catalog.Profile, error) {
	p, err := s.profiles.Get(profileID)
	if err != nil {
		return nil, service.Translate(err)
	}
	return p, nil
}

func contentType(raw string) (catalog.ContentType, error) {
	ct, err := catalog.ParseContentType(raw)
	if err != nil {
		return "", service.Translate(err)
	}
	return ct, nil
}

// StartSync starts a sync run for the profile
func (s *localService) StartSync(ctx context.Context, profileID string, full bool) (*service.SyncStarted, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "service.StartSync",
		otel.AttrProfileID.String(profileID),
		otel.AttrSyncFull.Bool(full))
	defer span.End()

	h, err := s.manager.StartSync(ctx, profileID, full)
	if err != nil {
		otel.RecordError(span, err)
		return nil, service.Translate(err)
	}
	span.SetAttributes(otel.AttrSyncRunID.String(h.RunID))
	return &service.SyncStarted{RunID: h.RunID, ProfileID: profileID, Full: full}, nil
}

// CancelSync cancels the profile's running sync
func (s *localService) CancelSync(_ context.Context, profileID string) error {
	if _, err := s.profile(profileID); err != nil {
		return err
	}
	return service.Translate(s.manager.CancelSync(profileID))
}

// GetSyncProgress returns the profile's sync progress
func (s *localService) GetSyncProgress(_ context.Context, profileID string) (*catalogsync.Progress, error) {
	if _, err := s.profile(profileID); err != nil {
		return nil, err
	}
	p := s.manager.GetProgress(profileID)
	return &p, nil
}

// GetSyncSettings returns the profile's settings, created with defaults on first access
func (s *localService) GetSyncSettings(ctx context.Context, profileID string) (*catalog.SyncSettings, error) {
	settings, err := s.store.GetSyncSettings(ctx, profileID)
	if err != nil {
		return nil, service.Translate(err)
	}
	return settings, nil
}

// UpdateSyncSettings validates and stores a partial settings update
func (s *localService) UpdateSyncSettings(
	ctx context.Context, profileID string, update *service.SettingsUpdate,
) (*catalog.SyncSettings, error) {
	current, err := s.store.GetSyncSettings(ctx, profileID)
	if err != nil {
		return nil, service.Translate(err)
	}

	next := update.Apply(current)
	if err := next.Validate(); err != nil {
		return nil, service.Translate(err)
	}

	saved, err := s.store.UpdateSyncSettings(ctx, next)
	if err != nil {
		return nil, service.Translate(err)
	}
	slog.Info("Sync settings updated",
		"profile", profileID,
		"auto_sync", saved.AutoSyncEnabled,
		"interval_hours", saved.SyncIntervalHours,
		"wifi_only", saved.WifiOnly)
	return saved, nil
}

func (s *localService) buildQuery(withText bool, opts []service.Option) (query.Query, error) {
	o, err := service.NewItemsOptions(opts...)
	if err != nil {
		return query.Query{}, service.Translate(err)
	}
	if _, err := s.profile(o.ProfileID); err != nil {
		return query.Query{}, err
	}
	if !withText {
		o.Text = ""
	}
	q, err := o.Query()
	if err != nil {
		return query.Query{}, service.Translate(err)
	}
	return q, nil
}

// ListItems returns a page of cached items
func (s *localService) ListItems(ctx context.Context, opts ...service.Option) (*query.Page, error) {
	q, err := s.buildQuery(false, opts)
	if err != nil {
		return nil, err
	}
	page, err := s.engine.List(ctx, q)
	if err != nil {
		return nil, service.Translate(err)
	}
	return page, nil
}

// SearchItems returns a page of search matches
func (s *localService) SearchItems(ctx context.Context, opts ...service.Option) (*query.Page, error) {
	q, err := s.buildQuery(true, opts)
	if err != nil {
		return nil, err
	}
	page, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, service.Translate(err)
	}
	return page, nil
}

// ExplainQuery returns the plan of the query the options describe
func (s *localService) ExplainQuery(ctx context.Context, opts ...service.Option) (*query.Plan, error) {
	q, err := s.buildQuery(true, opts)
	if err != nil {
		return nil, err
	}
	plan, err := s.engine.Explain(ctx, q)
	if err != nil {
		return nil, service.Translate(err)
	}
	return plan, nil
}

// ListCategories returns the cached categories of a content type
func (s *localService) ListCategories(ctx context.Context, profileID, rawType string) ([]catalog.Category, error) {
	if _, err := s.profile(profileID); err != nil {
		return nil, err
	}
	ct, err := contentType(rawType)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx, profileID, ct)
	if err != nil {
		return nil, service.Translate(err)
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	return categories, nil
}

// VerifyIndex compares the search index with the cached items
func (s *localService) VerifyIndex(ctx context.Context, profileID, rawType string) (*search.Consistency, error) {
	if _, err := s.profile(profileID); err != nil {
		return nil, err
	}
	ct, err := contentType(rawType)
	if err != nil {
		return nil, err
	}
	c, err := s.index.Verify(ctx, profileID, ct)
	if err != nil {
		return nil, service.Translate(err)
	}
	if !c.Consistent {
		slog.Error("Search index drifted from cached items",
			"profile", profileID,
			"content_type", ct,
			"items", c.Items,
			"index_rows", c.IndexRows)
	}
	return c, nil
}
