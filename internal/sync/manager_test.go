package sync_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/profiles"
	"github.com/stacklok/catalog-cache/internal/sources"
	"github.com/stacklok/catalog-cache/internal/store"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

const profileID = "p1"

var errFlaky = fmt.Errorf("%w: connection reset", catalog.ErrNetwork)

// fakeFetcher serves fixed pages per content type. hook runs before each
// page is returned and may block or fail the attempt.
type fakeFetcher struct {
	pages       map[catalog.ContentType][]*sources.Page
	categoryErr map[catalog.ContentType]error
	hook        func(ctx context.Context, ct catalog.ContentType, page, attempt int) error

	mu       sync.Mutex
	attempts map[string]int
	requests []sources.PageRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:       make(map[catalog.ContentType][]*sources.Page),
		categoryErr: make(map[catalog.ContentType]error),
		attempts:    make(map[string]int),
	}
}

// serve splits ids into pages of the content type. Item i is added at base+i.
func (f *fakeFetcher) serve(ct catalog.ContentType, base int64, pages ...[]string) {
	var n int64
	for i, ids := range pages {
		page := &sources.Page{HasMore: i < len(pages)-1, NextPage: i + 1, Total: len(pages)}
		for _, id := range ids {
			page.Items = append(page.Items, catalog.Item{
				ExternalID: id,
				Name:       "Item " + id,
				AddedAt:    time.Unix(base+n, 0),
			})
			n++
		}
		f.pages[ct] = append(f.pages[ct], page)
	}
}

func (f *fakeFetcher) FetchCategories(
	_ context.Context, _ *catalog.Profile, ct catalog.ContentType,
) ([]catalog.Category, error) {
	if err := f.categoryErr[ct]; err != nil {
		return nil, err
	}
	return []catalog.Category{{ExternalID: "1", Name: string(ct) + " category"}}, nil
}

func (f *fakeFetcher) FetchPage(
	ctx context.Context, _ *catalog.Profile, ct catalog.ContentType, req sources.PageRequest,
) (*sources.Page, error) {
	f.mu.Lock()
	key := fmt.Sprintf("%s/%d", ct, req.Page)
	f.attempts[key]++
	attempt := f.attempts[key]
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.hook != nil {
		if err := f.hook(ctx, ct, req.Page, attempt); err != nil {
			return nil, err
		}
	}
	pages := f.pages[ct]
	if req.Page >= len(pages) {
		return &sources.Page{Total: len(pages)}, nil
	}
	return pages[req.Page], nil
}

func (*fakeFetcher) FetchDetail(context.Context, *catalog.Profile, catalog.ContentType, string) (*catalog.ItemDetail, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFetcher) pageRequests() []sources.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sources.PageRequest(nil), f.requests...)
}

// flakyStore fails the next failUpserts batch writes; a negative value fails all of them.
type flakyStore struct {
	*store.Store
	failUpserts atomic.Int32
}

func (s *flakyStore) UpsertBatch(
	ctx context.Context, profileID string, ct catalog.ContentType, items []catalog.Item,
) (int, error) {
	switch n := s.failUpserts.Load(); {
	case n < 0:
		return 0, fmt.Errorf("%w: disk I/O error", catalog.ErrStorage)
	case n > 0:
		s.failUpserts.Add(-1)
		return 0, fmt.Errorf("%w: disk I/O error", catalog.ErrStorage)
	}
	return s.Store.UpsertBatch(ctx, profileID, ct, items)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testProfiles() *profiles.Directory {
	return profiles.New(&catalog.Profile{
		ID:          profileID,
		Name:        "Test",
		ProviderURL: "http://p1.example",
		Credentials: catalog.Credentials{Username: "user", Password: "pass"},
	})
}

func newManager(t *testing.T, s catalogsync.Store, f *fakeFetcher, opts ...catalogsync.Option) catalogsync.Manager {
	t.Helper()
	opts = append([]catalogsync.Option{
		catalogsync.WithRetry(3, time.Millisecond, 2*time.Millisecond),
		catalogsync.WithPageTimeout(5 * time.Second),
	}, opts...)
	m := catalogsync.NewManager(s, f, testProfiles(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitDone(t *testing.T, h *catalogsync.Handle) catalogsync.Progress {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("sync run did not finish")
	}
	return h.Progress()
}

func seedStale(t *testing.T, s *store.Store, ct catalog.ContentType) {
	t.Helper()
	_, err := s.UpsertBatch(context.Background(), profileID, ct, []catalog.Item{{ExternalID: "stale", Name: "Stale"}})
	require.NoError(t, err)
}

func cachedIDs(t *testing.T, s *store.Store, ct catalog.ContentType) []string {
	t.Helper()
	ids, err := s.ListExternalIDs(context.Background(), profileID, ct)
	require.NoError(t, err)
	return ids
}

func syncState(t *testing.T, s *store.Store, ct catalog.ContentType) *catalog.SyncState {
	t.Helper()
	state, err := s.GetSyncState(context.Background(), profileID, ct)
	require.NoError(t, err)
	return state
}

func TestFullSyncReconciles(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	seedStale(t, s, catalog.ContentTypeMovie)

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeChannel, 100, []string{"c1"})
	f.serve(catalog.ContentTypeMovie, 1000, []string{"m1", "m2"}, []string{"m3"})
	f.serve(catalog.ContentTypeSeries, 500, []string{})

	m := newManager(t, s, f)
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	require.NotEmpty(t, h.RunID)

	p := waitDone(t, h)
	assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	assert.Equal(t, 1.0, p.Fraction)
	assert.Equal(t, 4, p.ItemsProcessed)
	assert.Empty(t, p.Errors)
	require.NotNil(t, p.FinishedAt)

	assert.Equal(t, []string{"m1", "m2", "m3"}, cachedIDs(t, s, catalog.ContentTypeMovie))
	assert.Equal(t, []string{"c1"}, cachedIDs(t, s, catalog.ContentTypeChannel))

	state := syncState(t, s, catalog.ContentTypeMovie)
	assert.Equal(t, catalog.SyncOutcomeSuccess, state.LastOutcome)
	assert.NotNil(t, state.LastSyncAt)
	assert.Equal(t, int64(1002), state.Cursor)
	assert.Equal(t, 3, state.ItemCount)

	categories, err := s.ListCategories(context.Background(), profileID, catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Len(t, categories, 1)

	for _, req := range f.pageRequests() {
		assert.Zero(t, req.Cursor, "full sync must not send a cursor")
	}
	assert.False(t, m.IsActive(profileID))
}

func TestIncrementalSyncUsesCursor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t, profileID)
	seedStale(t, s, catalog.ContentTypeMovie)
	last := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.SetSyncState(ctx, &catalog.SyncState{
		ProfileID:   profileID,
		ContentType: catalog.ContentTypeMovie,
		LastSyncAt:  &last,
		LastOutcome: catalog.SyncOutcomeSuccess,
		Cursor:      5000,
		ItemCount:   1,
	}))

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 6000, []string{"m9"})

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(ctx, profileID, false)
	require.NoError(t, err)
	p := waitDone(t, h)
	require.Equal(t, catalogsync.StatusCompleted, p.Status)

	reqs := f.pageRequests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, int64(5000), reqs[0].Cursor)

	// incremental runs never delete
	assert.Equal(t, []string{"m9", "stale"}, cachedIDs(t, s, catalog.ContentTypeMovie))

	state := syncState(t, s, catalog.ContentTypeMovie)
	assert.Equal(t, int64(6000), state.Cursor)
	assert.Equal(t, 2, state.ItemCount)
	assert.True(t, state.LastSyncAt.After(last))
}

func TestIncrementalSyncKeepsCursorWhenNothingNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t, profileID)
	require.NoError(t, s.SetSyncState(ctx, &catalog.SyncState{
		ProfileID:   profileID,
		ContentType: catalog.ContentTypeMovie,
		LastOutcome: catalog.SyncOutcomeSuccess,
		Cursor:      5000,
	}))

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{})

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(ctx, profileID, false)
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, int64(5000), syncState(t, s, catalog.ContentTypeMovie).Cursor)
}

func TestFullSyncNeverMovesCursorBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t, profileID)
	last := time.Unix(1_700_000_000, 0)
	require.NoError(t, s.SetSyncState(ctx, &catalog.SyncState{
		ProfileID:   profileID,
		ContentType: catalog.ContentTypeMovie,
		LastSyncAt:  &last,
		LastOutcome: catalog.SyncOutcomeSuccess,
		Cursor:      9000,
	}))

	// the item added at 9000 was withdrawn, the newest left is older
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 4000, []string{"m1", "m2"})

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(ctx, profileID, true)
	require.NoError(t, err)
	require.Equal(t, catalogsync.StatusCompleted, waitDone(t, h).Status)

	state := syncState(t, s, catalog.ContentTypeMovie)
	assert.Equal(t, catalog.SyncOutcomeSuccess, state.LastOutcome)
	assert.Equal(t, int64(9000), state.Cursor)
	assert.Equal(t, 2, state.ItemCount)
}

func TestFirstSyncCreatesStateRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t, profileID)

	states, err := s.ListSyncStates(ctx, profileID)
	require.NoError(t, err)
	require.Empty(t, states)

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})
	started := make(chan struct{})
	release := make(chan struct{})
	f.hook = func(ctx context.Context, _ catalog.ContentType, _, _ int) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(ctx, profileID, true)
	require.NoError(t, err)
	<-started

	states, err = s.ListSyncStates(ctx, profileID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, catalog.ContentTypeMovie, states[0].ContentType)
	assert.Equal(t, catalog.SyncOutcomeNever, states[0].LastOutcome)
	assert.Nil(t, states[0].LastSyncAt)

	close(release)
	require.Equal(t, catalogsync.StatusCompleted, waitDone(t, h).Status)
	assert.Equal(t, catalog.SyncOutcomeSuccess, syncState(t, s, catalog.ContentTypeMovie).LastOutcome)
}

func TestStartSyncRejectsConcurrentRun(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})

	gate := make(chan struct{})
	f.hook = func(ctx context.Context, _ catalog.ContentType, _, _ int) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	assert.True(t, m.IsActive(profileID))

	_, err = m.StartSync(context.Background(), profileID, false)
	require.ErrorIs(t, err, catalog.ErrAlreadyActive)

	close(gate)
	p := waitDone(t, h)
	assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	assert.False(t, m.IsActive(profileID))

	h, err = m.StartSync(context.Background(), profileID, false)
	require.NoError(t, err)
	waitDone(t, h)
}

func TestStartSyncValidatesProfile(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()

	m := catalogsync.NewManager(s, f, profiles.New(&catalog.Profile{
		ID:          "nopass",
		Credentials: catalog.Credentials{Username: "user"},
	}))

	_, err := m.StartSync(context.Background(), "missing", true)
	assert.ErrorIs(t, err, catalog.ErrProfileNotFound)

	_, err = m.StartSync(context.Background(), "nopass", true)
	assert.ErrorIs(t, err, catalog.ErrCredentialsMissing)
	assert.False(t, m.IsActive("nopass"))
	assert.Empty(t, f.pageRequests())
}

func TestCancelSyncKeepsWrittenPrefix(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	seedStale(t, s, catalog.ContentTypeMovie)

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1", "m2"}, []string{"m3"}, []string{"m4"})
	blocked := make(chan struct{})
	f.hook = func(ctx context.Context, _ catalog.ContentType, page, _ int) error {
		if page == 0 {
			return nil
		}
		close(blocked)
		<-ctx.Done()
		return ctx.Err()
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)

	<-blocked
	require.NoError(t, m.CancelSync(profileID))
	p := waitDone(t, h)

	assert.Equal(t, catalogsync.StatusCancelled, p.Status)
	assert.Equal(t, 2, p.ItemsProcessed)
	// the first batch stays applied and nothing is reconciled
	assert.Equal(t, []string{"m1", "m2", "stale"}, cachedIDs(t, s, catalog.ContentTypeMovie))

	state := syncState(t, s, catalog.ContentTypeMovie)
	assert.Equal(t, catalog.SyncOutcomeCancelled, state.LastOutcome)
	assert.Nil(t, state.LastSyncAt)
	assert.Zero(t, state.Cursor)
}

func TestCancelSyncNotActive(t *testing.T) {
	t.Parallel()
	m := newManager(t, store.NewTestStore(t, profileID), newFakeFetcher())
	assert.ErrorIs(t, m.CancelSync(profileID), catalog.ErrNotActive)
}

func TestRemoteAuthErrorIsFatal(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})
	f.categoryErr[catalog.ContentTypeMovie] = fmt.Errorf("%w: account disabled", catalog.ErrRemoteAuth)

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeChannel, catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	p := waitDone(t, h)

	assert.Equal(t, catalogsync.StatusError, p.Status)
	require.NotEmpty(t, p.Errors)
	assert.Contains(t, p.Errors[len(p.Errors)-1], "remote authentication failed")
	assert.Empty(t, f.pageRequests())
	assert.Equal(t, catalog.SyncOutcomeError, syncState(t, s, catalog.ContentTypeMovie).LastOutcome)
}

func TestRemoteAuthErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})
	f.hook = func(context.Context, catalog.ContentType, int, int) error {
		return fmt.Errorf("%w: status 401", catalog.ErrRemoteAuth)
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	p := waitDone(t, h)

	assert.Equal(t, catalogsync.StatusError, p.Status)
	assert.Len(t, f.pageRequests(), 1)
}

func TestPageFailureIsRetried(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"}, []string{"m2"})
	f.hook = func(_ context.Context, _ catalog.ContentType, page, attempt int) error {
		if page == 1 && attempt == 1 {
			return errFlaky
		}
		return nil
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	p := waitDone(t, h)

	assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	assert.Empty(t, p.Errors)
	assert.Len(t, f.pageRequests(), 3)
	assert.Equal(t, catalog.SyncOutcomeSuccess, syncState(t, s, catalog.ContentTypeMovie).LastOutcome)
}

func TestPageFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	seedStale(t, s, catalog.ContentTypeMovie)

	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"}, []string{"m2"}, []string{"m3"})
	f.serve(catalog.ContentTypeSeries, 0, []string{"s1"})
	f.hook = func(_ context.Context, ct catalog.ContentType, page, _ int) error {
		if ct == catalog.ContentTypeMovie && page == 1 {
			return errFlaky
		}
		return nil
	}

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie, catalog.ContentTypeSeries))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	p := waitDone(t, h)

	assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	assert.Equal(t, 1.0, p.Fraction)
	require.Len(t, p.Errors, 1)
	assert.Contains(t, p.Errors[0], "movie page 2")

	// the failed page leaves the seen set incomplete so nothing is removed
	assert.Equal(t, []string{"m1", "m3", "stale"}, cachedIDs(t, s, catalog.ContentTypeMovie))
	movie := syncState(t, s, catalog.ContentTypeMovie)
	assert.Equal(t, catalog.SyncOutcomePartial, movie.LastOutcome)
	assert.Nil(t, movie.LastSyncAt)

	assert.Equal(t, catalog.SyncOutcomeSuccess, syncState(t, s, catalog.ContentTypeSeries).LastOutcome)
	assert.Equal(t, []string{"s1"}, cachedIDs(t, s, catalog.ContentTypeSeries))
}

func TestStorageFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		failUpserts int32
		wantStatus  catalogsync.Status
		wantOutcome catalog.SyncOutcome
		wantIDs     []string
	}{
		{
			name:        "failed write retried once",
			failUpserts: 1,
			wantStatus:  catalogsync.StatusCompleted,
			wantOutcome: catalog.SyncOutcomeSuccess,
			wantIDs:     []string{"m1", "m2"},
		},
		{
			name:        "one failed batch is non-fatal",
			failUpserts: 2,
			wantStatus:  catalogsync.StatusCompleted,
			wantOutcome: catalog.SyncOutcomePartial,
			wantIDs:     []string{"m2", "stale"},
		},
		{
			name:        "consecutive failed batches abort",
			failUpserts: -1,
			wantStatus:  catalogsync.StatusError,
			wantOutcome: catalog.SyncOutcomeError,
			wantIDs:     []string{"stale"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base := store.NewTestStore(t, profileID)
			seedStale(t, base, catalog.ContentTypeMovie)
			s := &flakyStore{Store: base}
			s.failUpserts.Store(tt.failUpserts)

			f := newFakeFetcher()
			f.serve(catalog.ContentTypeMovie, 0, []string{"m1"}, []string{"m2"})

			m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
			h, err := m.StartSync(context.Background(), profileID, true)
			require.NoError(t, err)
			p := waitDone(t, h)

			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantOutcome, syncState(t, base, catalog.ContentTypeMovie).LastOutcome)
			assert.Equal(t, tt.wantIDs, cachedIDs(t, base, catalog.ContentTypeMovie))
		})
	}
}

func TestProgressRetention(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1_800_000_000, 0)}
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})

	m := newManager(t, s, f,
		catalogsync.WithContentTypes(catalog.ContentTypeMovie),
		catalogsync.WithClock(clock.Now),
		catalogsync.WithProgressRetention(30*time.Second))

	assert.Equal(t, catalogsync.StatusIdle, m.GetProgress(profileID).Status)

	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	waitDone(t, h)

	p := m.GetProgress(profileID)
	assert.Equal(t, catalogsync.StatusCompleted, p.Status)
	assert.Equal(t, h.RunID, p.RunID)

	clock.Advance(29 * time.Second)
	assert.Equal(t, catalogsync.StatusCompleted, m.GetProgress(profileID).Status)

	clock.Advance(2 * time.Second)
	p = m.GetProgress(profileID)
	assert.Equal(t, catalogsync.StatusIdle, p.Status)
	assert.Empty(t, p.RunID)
}

func TestShutdownCancelsRuns(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})
	started := make(chan struct{})
	f.hook = func(ctx context.Context, _ catalog.ContentType, _, _ int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	m := catalogsync.NewManager(s, f, testProfiles(), catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	h, err := m.StartSync(context.Background(), profileID, true)
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, catalogsync.StatusCancelled, waitDone(t, h).Status)

	_, err = m.StartSync(context.Background(), profileID, true)
	assert.ErrorIs(t, err, catalog.ErrAlreadyActive)
}

func TestRunOutlivesCallerContext(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t, profileID)
	f := newFakeFetcher()
	f.serve(catalog.ContentTypeMovie, 0, []string{"m1"})

	m := newManager(t, s, f, catalogsync.WithContentTypes(catalog.ContentTypeMovie))
	ctx, cancel := context.WithCancel(context.Background())
	h, err := m.StartSync(ctx, profileID, true)
	require.NoError(t, err)
	cancel()

	assert.Equal(t, catalogsync.StatusCompleted, waitDone(t, h).Status)
}
