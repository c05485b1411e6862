package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/telemetry"
)

const (
	// DefaultPageTimeout bounds one page fetch attempt
	DefaultPageTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of attempts per page
	DefaultMaxRetries uint = 4
	// DefaultInitialBackoff is the delay before the first retry
	DefaultInitialBackoff = time.Second
	// DefaultMaxBackoff caps the retry delay
	DefaultMaxBackoff = 30 * time.Second
	// DefaultProgressRetention keeps terminal progress readable
	DefaultProgressRetention = 30 * time.Second

	// maxConsecutiveStorageFailures aborts a run after this many failed batches in a row
	maxConsecutiveStorageFailures = 2
)

// Manager orchestrates sync runs.
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/catalog-cache/internal/sync Manager
type Manager interface {
	// StartSync starts a run for a profile and returns without waiting for it.
	StartSync(ctx context.Context, profileID string, full bool) (*Handle, error)

	// CancelSync asks the active run of a profile to stop.
	CancelSync(profileID string) error

	// GetProgress returns the progress of the profile's current or recent run.
	GetProgress(profileID string) Progress

	// IsActive reports whether a run is active for the profile.
	IsActive(profileID string) bool

	// Shutdown cancels every active run and waits for them to stop.
	Shutdown(ctx context.Context) error
}

// Store is the part of the cache store a run writes to.
type Store interface {
	UpsertBatch(ctx context.Context, profileID string, contentType catalog.ContentType, items []catalog.Item) (int, error)
	Reconcile(ctx context.Context, profileID string, contentType catalog.ContentType, seen []string) (int, error)
	UpsertCategories(
		ctx context.Context, profileID string, contentType catalog.ContentType, categories []catalog.Category, replace bool,
	) error
	EnsureSyncState(ctx context.Context, profileID string, contentType catalog.ContentType) error
	GetSyncState(ctx context.Context, profileID string, contentType catalog.ContentType) (*catalog.SyncState, error)
	SetSyncState(ctx context.Context, state *catalog.SyncState) error
	RecordSyncOutcome(
		ctx context.Context, profileID string, contentType catalog.ContentType, outcome catalog.SyncOutcome, message string,
	) error
	CountItems(ctx context.Context, profileID string, contentType catalog.ContentType) (int, error)
}

// Profiles resolves profile ids to profiles with credentials.
type Profiles interface {
	Get(id string) (*catalog.Profile, error)
}

// Option configures the manager.
type Option func(*defaultManager)

// WithContentTypes sets the content types synced by every run, in order.
func WithContentTypes(types ...catalog.ContentType) Option {
	return func(m *defaultManager) {
		if len(types) > 0 {
			m.contentTypes = types
		}
	}
}

// WithPageTimeout bounds a single page fetch attempt.
func WithPageTimeout(d time.Duration) Option {
	return func(m *defaultManager) {
		if d > 0 {
			m.pageTimeout = d
		}
	}
}

// WithRetry configures page fetch retries.
func WithRetry(maxTries uint, initial, maxInterval time.Duration) Option {
	return func(m *defaultManager) {
		if maxTries > 0 {
			m.maxRetries = maxTries
		}
		if initial > 0 {
			m.initialBackoff = initial
		}
		if maxInterval > 0 {
			m.maxBackoff = maxInterval
		}
	}
}

// WithProgressRetention sets how long a finished run stays visible.
func WithProgressRetention(d time.Duration) Option {
	return func(m *defaultManager) {
		if d > 0 {
			m.progressRetention = d
		}
	}
}

// WithSyncMetrics records run metrics.
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultManager) {
		m.metrics = metrics
	}
}

// WithTracer traces runs and page fetches.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultManager) {
		m.tracer = tracer
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *defaultManager) {
		m.now = now
	}
}

// defaultManager is the default implementation of Manager
type defaultManager struct {
	store    Store
	fetcher  sources.Fetcher
	profiles Profiles

	contentTypes      []catalog.ContentType
	pageTimeout       time.Duration
	maxRetries        uint
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	progressRetention time.Duration
	metrics           *telemetry.SyncMetrics
	tracer            trace.Tracer
	now               func() time.Time

	// registry of active and recently finished runs; never held across I/O
	mu       sync.Mutex
	active   map[string]*run
	finished map[string]Progress
	closed   bool
	wg       sync.WaitGroup
}

var _ Manager = (*defaultManager)(nil)

// NewManager creates a sync manager.
func NewManager(store Store, fetcher sources.Fetcher, profiles Profiles, opts ...Option) Manager {
	m := &defaultManager{
		store:             store,
		fetcher:           fetcher,
		profiles:          profiles,
		contentTypes:      catalog.AllContentTypes(),
		pageTimeout:       DefaultPageTimeout,
		maxRetries:        DefaultMaxRetries,
		initialBackoff:    DefaultInitialBackoff,
		maxBackoff:        DefaultMaxBackoff,
		progressRetention: DefaultProgressRetention,
		now:               time.Now,
		active:            make(map[string]*run),
		finished:          make(map[string]Progress),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle refers to a started run.
type Handle struct {
	RunID     string
	ProfileID string
	run       *run
}

// Done is closed when the run reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.run.done
}

// Progress returns the current progress of the run.
func (h *Handle) Progress() Progress {
	return h.run.snapshot()
}

// StartSync validates the profile, registers a run and starts it in the
// background. The run outlives ctx; only values are taken from it.
func (m *defaultManager) StartSync(ctx context.Context, profileID string, full bool) (*Handle, error) {
	profile, err := m.profiles.Get(profileID)
	if err != nil {
		return nil, err
	}
	if !profile.Credentials.Complete() {
		return nil, fmt.Errorf("%w: profile %s", catalog.ErrCredentialsMissing, profileID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := newRun(m, profile, full, cancel)
	if err := m.tryAcquire(r); err != nil {
		cancel()
		return nil, err
	}

	slog.Info("Starting sync",
		"profile", profileID,
		"run_id", r.id,
		"full", full)

	go func() {
		defer m.wg.Done()
		defer cancel()
		r.execute(runCtx)
		m.release(r)
	}()

	return &Handle{RunID: r.id, ProfileID: profileID, run: r}, nil
}

func (m *defaultManager) tryAcquire(r *run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: sync manager is shut down", catalog.ErrAlreadyActive)
	}
	if existing, ok := m.active[r.profile.ID]; ok {
		return fmt.Errorf("%w: profile %s (run %s)", catalog.ErrAlreadyActive, r.profile.ID, existing.id)
	}
	m.active[r.profile.ID] = r
	delete(m.finished, r.profile.ID)
	m.wg.Add(1)
	return nil
}

func (m *defaultManager) release(r *run) {
	final := r.snapshot()
	m.mu.Lock()
	if m.active[r.profile.ID] == r {
		delete(m.active, r.profile.ID)
	}
	m.finished[r.profile.ID] = final
	m.mu.Unlock()
	close(r.done)
}

// CancelSync signals the profile's active run to stop.
func (m *defaultManager) CancelSync(profileID string) error {
	m.mu.Lock()
	r, ok := m.active[profileID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: profile %s", catalog.ErrNotActive, profileID)
	}
	slog.Info("Cancelling sync", "profile", profileID, "run_id", r.id)
	r.cancel()
	return nil
}

// GetProgress returns the active run's progress, the last run's final
// progress within the retention window, or Idle.
func (m *defaultManager) GetProgress(profileID string) Progress {
	m.mu.Lock()
	r, active := m.active[profileID]
	final, finished := m.finished[profileID]
	if finished && final.FinishedAt != nil && m.now().Sub(*final.FinishedAt) >= m.progressRetention {
		delete(m.finished, profileID)
		finished = false
	}
	m.mu.Unlock()

	switch {
	case active:
		return r.snapshot()
	case finished:
		return final.clone()
	default:
		return IdleProgress(profileID)
	}
}

// IsActive reports whether a run is active for the profile.
func (m *defaultManager) IsActive(profileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[profileID]
	return ok
}

// Shutdown cancels all runs and waits until they stop or ctx ends. No new
// runs are accepted afterwards.
func (m *defaultManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	runs := make([]*run, 0, len(m.active))
	for _, r := range m.active {
		runs = append(runs, r)
	}
	m.mu.Unlock()

	for _, r := range runs {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d sync runs: %w", len(runs), ctx.Err())
	}
}

func newRunID() string {
	return uuid.NewString()
}
