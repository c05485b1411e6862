package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stacklok/catalog-cache/internal/catalog"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

const (
	// DefaultCheckInterval is the base interval between eligibility passes
	DefaultCheckInterval = 5 * time.Minute
	// DefaultJitter is the maximum random offset applied to the interval
	DefaultJitter = 30 * time.Second
)

// Coordinator triggers incremental syncs of profiles whose auto-sync policy
// says they are due.
type Coordinator interface {
	// Start runs the eligibility loop and blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the loop and waits for it to exit.
	Stop() error
}

// Store is what the coordinator reads to evaluate the policy.
type Store interface {
	ListProfiles(ctx context.Context) ([]*catalog.Profile, error)
	GetSyncSettings(ctx context.Context, profileID string) (*catalog.SyncSettings, error)
	GetSyncState(ctx context.Context, profileID string, contentType catalog.ContentType) (*catalog.SyncState, error)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager catalogsync.Manager
	store   Store

	checkInterval time.Duration
	jitter        time.Duration
	contentTypes  []catalog.ContentType
	network       NetworkClassifier
	notifier      Notifier
	now           func() time.Time

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
	notifyWG   sync.WaitGroup
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithCheckInterval sets the base interval between eligibility passes.
func WithCheckInterval(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		if d > 0 {
			c.checkInterval = d
		}
	}
}

// WithJitter sets the maximum random offset of each tick. Zero disables it.
func WithJitter(d time.Duration) Option {
	return func(c *defaultCoordinator) {
		if d >= 0 {
			c.jitter = d
		}
	}
}

// WithContentTypes sets the content types whose sync state is considered.
func WithContentTypes(types ...catalog.ContentType) Option {
	return func(c *defaultCoordinator) {
		if len(types) > 0 {
			c.contentTypes = types
		}
	}
}

// WithNetworkClassifier sets how the coordinator tells metered networks apart.
func WithNetworkClassifier(n NetworkClassifier) Option {
	return func(c *defaultCoordinator) {
		c.network = n
	}
}

// WithNotifier sets where completion notices go.
func WithNotifier(n Notifier) Option {
	return func(c *defaultCoordinator) {
		c.notifier = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies
func New(manager catalogsync.Manager, store Store, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:       manager,
		store:         store,
		checkInterval: DefaultCheckInterval,
		jitter:        DefaultJitter,
		contentTypes:  catalog.AllContentTypes(),
		network:       StaticNetwork(false),
		notifier:      LogNotifier{},
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// pollingInterval returns the check interval with a random offset of up to
// ±jitter, never below half the interval.
func (c *defaultCoordinator) pollingInterval() time.Duration {
	if c.jitter <= 0 {
		return c.checkInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*c.jitter))) - c.jitter
	return max(c.checkInterval+offset, c.checkInterval/2)
}

// Start runs one eligibility pass immediately and then one per tick. A pass
// runs to completion before the next tick is taken, so passes never overlap.
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("coordinator already started")
	}
	c.cancelFunc = cancel
	c.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.notifyWG.Wait()
		close(done)
		slog.Info("Background sync coordinator shutting down")
	}()

	interval := c.pollingInterval()
	slog.Info("Starting background sync coordinator",
		"base_interval", c.checkInterval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.checkProfiles(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.checkProfiles(coordCtx)
			ticker.Reset(c.pollingInterval())
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-done
	}
	return nil
}

// checkProfiles runs one eligibility pass and returns how many syncs it started.
func (c *defaultCoordinator) checkProfiles(ctx context.Context) int {
	profiles, err := c.store.ListProfiles(ctx)
	if err != nil {
		slog.Error("Error listing profiles for auto-sync", "error", err)
		return 0
	}

	metered := c.network.Metered(ctx)
	started := 0
	for _, p := range profiles {
		if ctx.Err() != nil {
			return started
		}
		if c.checkProfile(ctx, p.ID, metered) {
			started++
		}
	}
	return started
}

func (c *defaultCoordinator) checkProfile(ctx context.Context, profileID string, metered bool) bool {
	settings, err := c.store.GetSyncSettings(ctx, profileID)
	if err != nil {
		slog.Error("Error reading sync settings", "profile", profileID, "error", err)
		return false
	}
	if !settings.AutoSyncEnabled {
		slog.Debug("Profile does not need sync",
			"profile", profileID,
			"reason", ReasonAutoSyncDisabled.String())
		return false
	}

	states := make([]*catalog.SyncState, 0, len(c.contentTypes))
	for _, ct := range c.contentTypes {
		st, err := c.store.GetSyncState(ctx, profileID, ct)
		if err != nil {
			slog.Error("Error reading sync state",
				"profile", profileID,
				"content_type", ct,
				"error", err)
			return false
		}
		states = append(states, st)
	}

	reason := Decide(settings, states, metered, c.manager.IsActive(profileID), c.now())
	if !reason.ShouldSync() {
		slog.Debug("Profile does not need sync",
			"profile", profileID,
			"reason", reason.String())
		return false
	}

	if failed := lastFailure(states); failed != nil {
		slog.Warn("Retrying auto-sync after a failed attempt",
			"profile", profileID,
			"content_type", failed.ContentType,
			"outcome", failed.LastOutcome,
			"failed_at", failed.UpdatedAt,
			"error", failed.LastError)
	}

	handle, err := c.manager.StartSync(ctx, profileID, false)
	if err != nil {
		// lost a race with a user-started run, or credentials are gone
		slog.Warn("Auto-sync not started",
			"profile", profileID,
			"reason", reason.String(),
			"error", err)
		return false
	}
	slog.Info("Auto-sync started",
		"profile", profileID,
		"run_id", handle.RunID,
		"reason", reason.String())

	if settings.NotifyOnComplete {
		c.notifyWhenDone(ctx, handle)
	}
	return true
}

func (c *defaultCoordinator) notifyWhenDone(ctx context.Context, handle *catalogsync.Handle) {
	c.notifyWG.Add(1)
	go func() {
		defer c.notifyWG.Done()
		select {
		case <-handle.Done():
			c.notifier.NotifySyncComplete(context.WithoutCancel(ctx), handle.Progress())
		case <-ctx.Done():
		}
	}()
}
