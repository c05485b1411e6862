package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/profiles"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/store"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
	syncmocks "github.com/stacklok/catalog-cache/internal/sync/mocks"
)

const testProfile = "p1"

func at(t time.Time) *time.Time { return &t }

func TestDecide(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enabled := &catalog.SyncSettings{AutoSyncEnabled: true, SyncIntervalHours: 6}
	wifiOnly := &catalog.SyncSettings{AutoSyncEnabled: true, SyncIntervalHours: 6, WifiOnly: true}
	synced := func(ago ...time.Duration) []*catalog.SyncState {
		states := make([]*catalog.SyncState, 0, len(ago))
		for _, d := range ago {
			states = append(states, &catalog.SyncState{LastSyncAt: at(now.Add(-d))})
		}
		return states
	}
	failedAt := func(outcome catalog.SyncOutcome, ago time.Duration) *catalog.SyncState {
		return &catalog.SyncState{LastOutcome: outcome, UpdatedAt: now.Add(-ago)}
	}

	tests := []struct {
		name     string
		settings *catalog.SyncSettings
		states   []*catalog.SyncState
		metered  bool
		active   bool
		expected Reason
	}{
		{
			name:     "auto sync disabled",
			settings: &catalog.SyncSettings{SyncIntervalHours: 6},
			states:   []*catalog.SyncState{{}},
			expected: ReasonAutoSyncDisabled,
		},
		{
			name:     "never synced",
			settings: enabled,
			states:   []*catalog.SyncState{{}},
			expected: ReasonNeverSynced,
		},
		{
			name:     "one content type never synced",
			settings: enabled,
			states:   append(synced(time.Hour), &catalog.SyncState{}),
			expected: ReasonNeverSynced,
		},
		{
			name:     "interval not elapsed",
			settings: enabled,
			states:   synced(time.Hour, 2*time.Hour),
			expected: ReasonIntervalNotElapsed,
		},
		{
			name:     "oldest content type decides",
			settings: enabled,
			states:   synced(time.Hour, 7*time.Hour),
			expected: ReasonDue,
		},
		{
			name:     "exactly at interval",
			settings: enabled,
			states:   synced(6 * time.Hour),
			expected: ReasonDue,
		},
		{
			name:     "wifi only on metered network",
			settings: wifiOnly,
			states:   synced(8 * time.Hour),
			metered:  true,
			expected: ReasonMeteredNetwork,
		},
		{
			name:     "wifi only on unmetered network",
			settings: wifiOnly,
			states:   synced(8 * time.Hour),
			expected: ReasonDue,
		},
		{
			name:     "metered network without wifi only",
			settings: enabled,
			states:   synced(8 * time.Hour),
			metered:  true,
			expected: ReasonDue,
		},
		{
			name:     "already active",
			settings: enabled,
			states:   synced(8 * time.Hour),
			active:   true,
			expected: ReasonAlreadyActive,
		},
		{
			name:     "first attempt failed recently",
			settings: enabled,
			states:   []*catalog.SyncState{failedAt(catalog.SyncOutcomeError, 10*time.Minute)},
			expected: ReasonRecentFailure,
		},
		{
			name:     "first attempt failed a while ago",
			settings: enabled,
			states:   []*catalog.SyncState{failedAt(catalog.SyncOutcomeError, 2*time.Hour)},
			expected: ReasonNeverSynced,
		},
		{
			name:     "partial run after a due interval",
			settings: enabled,
			states: []*catalog.SyncState{{
				LastSyncAt:  at(now.Add(-8 * time.Hour)),
				LastOutcome: catalog.SyncOutcomePartial,
				UpdatedAt:   now.Add(-30 * time.Minute),
			}},
			expected: ReasonRecentFailure,
		},
		{
			name:     "cancelled run is retried",
			settings: enabled,
			states:   []*catalog.SyncState{failedAt(catalog.SyncOutcomeCancelled, time.Minute)},
			expected: ReasonNeverSynced,
		},
		{
			name:     "interval not elapsed wins over a failure",
			settings: enabled,
			states: []*catalog.SyncState{{
				LastSyncAt:  at(now.Add(-time.Hour)),
				LastOutcome: catalog.SyncOutcomeError,
				UpdatedAt:   now.Add(-time.Minute),
			}},
			expected: ReasonIntervalNotElapsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reason := Decide(tt.settings, tt.states, tt.metered, tt.active, now)
			assert.Equal(t, tt.expected, reason, "got %s", reason)
			assert.Equal(t, tt.expected == ReasonDue || tt.expected == ReasonNeverSynced, reason.ShouldSync())
		})
	}
}

func TestReasonString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "never-synced", ReasonNeverSynced.String())
	assert.Equal(t, "metered-network", ReasonMeteredNetwork.String())
	assert.Equal(t, "recent-failure", ReasonRecentFailure.String())
	assert.Equal(t, "unknown", Reason(99).String())
}

func TestPollingInterval(t *testing.T) {
	t.Parallel()
	c := New(nil, nil, WithCheckInterval(10*time.Minute), WithJitter(30*time.Second)).(*defaultCoordinator)
	for range 100 {
		d := c.pollingInterval()
		assert.GreaterOrEqual(t, d, 10*time.Minute-30*time.Second)
		assert.Less(t, d, 10*time.Minute+30*time.Second)
	}

	c = New(nil, nil, WithCheckInterval(time.Minute), WithJitter(0)).(*defaultCoordinator)
	assert.Equal(t, time.Minute, c.pollingInterval())
}

func newTestCoordinator(t *testing.T, s Store, m catalogsync.Manager, opts ...Option) *defaultCoordinator {
	t.Helper()
	opts = append([]Option{WithContentTypes(catalog.ContentTypeMovie)}, opts...)
	return New(m, s, opts...).(*defaultCoordinator)
}

func updateSettings(t *testing.T, s *store.Store, settings *catalog.SyncSettings) {
	t.Helper()
	settings.ProfileID = testProfile
	_, err := s.UpdateSyncSettings(context.Background(), settings)
	require.NoError(t, err)
}

func markSynced(t *testing.T, s *store.Store, when time.Time) {
	t.Helper()
	require.NoError(t, s.SetSyncState(context.Background(), &catalog.SyncState{
		ProfileID:   testProfile,
		ContentType: catalog.ContentTypeMovie,
		LastSyncAt:  &when,
		LastOutcome: catalog.SyncOutcomeSuccess,
	}))
}

func TestCheckProfiles_AutoSyncDisabledNeverTriggers(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile)
	updateSettings(t, s, &catalog.SyncSettings{AutoSyncEnabled: false, SyncIntervalHours: 6})

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().StartSync(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	c := newTestCoordinator(t, s, manager)
	for range 10 {
		assert.Zero(t, c.checkProfiles(context.Background()))
	}
}

func TestCheckProfiles_NeverSyncedTriggersIncremental(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile)

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().IsActive(testProfile).Return(false)
	manager.EXPECT().
		StartSync(gomock.Any(), testProfile, false).
		Return(&catalogsync.Handle{RunID: "run-1", ProfileID: testProfile}, nil)

	c := newTestCoordinator(t, s, manager)
	assert.Equal(t, 1, c.checkProfiles(context.Background()))
}

func TestCheckProfiles_Interval(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastSync  time.Time
		wantStart bool
	}{
		{name: "recent sync is skipped", lastSync: now.Add(-time.Hour)},
		{name: "stale sync is started", lastSync: now.Add(-25 * time.Hour), wantStart: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			s := store.NewTestStore(t, testProfile)
			markSynced(t, s, tt.lastSync)

			manager := syncmocks.NewMockManager(ctrl)
			manager.EXPECT().IsActive(testProfile).Return(false)
			if tt.wantStart {
				manager.EXPECT().
					StartSync(gomock.Any(), testProfile, false).
					Return(&catalogsync.Handle{RunID: "run-1", ProfileID: testProfile}, nil)
			}

			c := newTestCoordinator(t, s, manager, WithClock(func() time.Time { return now }))
			started := c.checkProfiles(context.Background())
			assert.Equal(t, tt.wantStart, started == 1)
		})
	}
}

func TestCheckProfiles_WifiOnlyOnMeteredNetwork(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile)
	updateSettings(t, s, &catalog.SyncSettings{AutoSyncEnabled: true, SyncIntervalHours: 6, WifiOnly: true})

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().IsActive(testProfile).Return(false).AnyTimes()
	manager.EXPECT().StartSync(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	c := newTestCoordinator(t, s, manager, WithNetworkClassifier(StaticNetwork(true)))
	assert.Zero(t, c.checkProfiles(context.Background()))
}

func TestCheckProfiles_SkipsActiveProfile(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile)

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().IsActive(testProfile).Return(true)
	manager.EXPECT().StartSync(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	c := newTestCoordinator(t, s, manager)
	assert.Zero(t, c.checkProfiles(context.Background()))
}

func TestCheckProfiles_StartSyncRace(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile, "p2")

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().IsActive(gomock.Any()).Return(false).Times(2)
	manager.EXPECT().
		StartSync(gomock.Any(), testProfile, false).
		Return(nil, catalog.ErrAlreadyActive)
	manager.EXPECT().
		StartSync(gomock.Any(), "p2", false).
		Return(&catalogsync.Handle{RunID: "run-2", ProfileID: "p2"}, nil)

	c := newTestCoordinator(t, s, manager)
	assert.Equal(t, 1, c.checkProfiles(context.Background()))
}

func TestCheckProfiles_BacksOffAfterFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantStart bool
	}{
		{name: "within the retry delay", elapsed: 5 * time.Minute},
		{name: "after the retry delay", elapsed: FailureRetryDelay + time.Minute, wantStart: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			s := store.NewTestStore(t, testProfile)
			require.NoError(t, s.RecordSyncOutcome(context.Background(), testProfile,
				catalog.ContentTypeMovie, catalog.SyncOutcomeError, "network error: connection refused"))

			manager := syncmocks.NewMockManager(ctrl)
			manager.EXPECT().IsActive(testProfile).Return(false)
			if tt.wantStart {
				manager.EXPECT().
					StartSync(gomock.Any(), testProfile, false).
					Return(&catalogsync.Handle{RunID: "run-1", ProfileID: testProfile}, nil)
			}

			now := time.Now().Add(tt.elapsed)
			c := newTestCoordinator(t, s, manager, WithClock(func() time.Time { return now }))
			assert.Equal(t, tt.wantStart, c.checkProfiles(context.Background()) == 1)
		})
	}
}

type emptyFetcher struct{}

func (emptyFetcher) FetchCategories(context.Context, *catalog.Profile, catalog.ContentType) ([]catalog.Category, error) {
	return nil, nil
}

func (emptyFetcher) FetchPage(context.Context, *catalog.Profile, catalog.ContentType, sources.PageRequest) (*sources.Page, error) {
	return &sources.Page{Total: 1}, nil
}

func (emptyFetcher) FetchDetail(context.Context, *catalog.Profile, catalog.ContentType, string) (*catalog.ItemDetail, error) {
	return nil, catalog.ErrItemNotFound
}

type chanNotifier chan catalogsync.Progress

func (n chanNotifier) NotifySyncComplete(_ context.Context, p catalogsync.Progress) {
	n <- p
}

func TestCheckProfiles_NotifiesOnCompletion(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, testProfile)
	updateSettings(t, s, &catalog.SyncSettings{AutoSyncEnabled: true, SyncIntervalHours: 6, NotifyOnComplete: true})

	manager := catalogsync.NewManager(s, emptyFetcher{}, profiles.New(&catalog.Profile{
		ID:          testProfile,
		Credentials: catalog.Credentials{Username: "user", Password: "pass"},
	}), catalogsync.WithContentTypes(catalog.ContentTypeMovie))

	notices := make(chanNotifier, 1)
	c := newTestCoordinator(t, s, manager, WithNotifier(notices))
	require.Equal(t, 1, c.checkProfiles(context.Background()))

	select {
	case p := <-notices:
		assert.Equal(t, testProfile, p.ProfileID)
		assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	case <-time.After(10 * time.Second):
		t.Fatal("no completion notice")
	}
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()
	c := New(syncmocks.NewMockManager(gomock.NewController(t)), store.NewTestStore(t))
	assert.NoError(t, c.Stop())
}

func TestCoordinator_StartStop(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	s := store.NewTestStore(t, testProfile)
	updateSettings(t, s, &catalog.SyncSettings{AutoSyncEnabled: false, SyncIntervalHours: 6})

	manager := syncmocks.NewMockManager(ctrl)
	c := New(manager, s, WithCheckInterval(10*time.Millisecond), WithJitter(0))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, c.Stop())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinator_StopsWithContext(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)
	c := New(syncmocks.NewMockManager(gomock.NewController(t)), s, WithCheckInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}
