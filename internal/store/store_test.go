package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

func movies(n int) []catalog.Item {
	items := make([]catalog.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, catalog.Item{
			ExternalID: fmt.Sprintf("m%03d", i),
			Name:       fmt.Sprintf("Movie %03d", i),
			Genre:      "Drama",
			Year:       2000 + i%20,
			Rating:     float64(i%10) + 0.5,
			AddedAt:    time.Unix(int64(1700000000+i), 0),
		})
	}
	return items
}

func indexCount(t *testing.T, s *Store, profileID string, ct catalog.ContentType) int {
	t.Helper()
	var n int
	err := s.DB().QueryRow(`SELECT count(*) FROM catalog_search WHERE profile_id = ? AND content_type = ?`,
		profileID, string(ct)).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestUpsertBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	n, err := s.UpsertBatch(ctx, "home", catalog.ContentTypeMovie, movies(30))
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	count, err := s.CountItems(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.Equal(t, 30, indexCount(t, s, "home", catalog.ContentTypeMovie))

	// the same ids again replace rather than duplicate
	updated := movies(10)
	for i := range updated {
		updated[i].Name = "Renamed " + updated[i].ExternalID
	}
	_, err = s.UpsertBatch(ctx, "home", catalog.ContentTypeMovie, updated)
	require.NoError(t, err)

	count, err = s.CountItems(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.Equal(t, 30, indexCount(t, s, "home", catalog.ContentTypeMovie))

	item, err := s.GetItem(ctx, "home", catalog.ContentTypeMovie, "m001")
	require.NoError(t, err)
	assert.Equal(t, "Renamed m001", item.Name)
	assert.Equal(t, "Drama", item.Genre)
	assert.Equal(t, time.Unix(1700000001, 0).UTC(), item.AddedAt)
	assert.False(t, item.SyncedAt.IsZero())

	// the index follows the rename
	var indexed string
	require.NoError(t, s.DB().QueryRow(
		`SELECT name FROM catalog_search WHERE catalog_search MATCH 'renamed' AND profile_id = 'home' LIMIT 1`,
	).Scan(&indexed))
	assert.Contains(t, indexed, "Renamed")

	// other content types are separate keyspaces
	_, err = s.UpsertBatch(ctx, "home", catalog.ContentTypeSeries, movies(3))
	require.NoError(t, err)
	count, err = s.CountItems(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 30, count)
}

func TestUpsertBatchIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	batch := movies(5)
	batch[3].ExternalID = ""

	n, err := s.UpsertBatch(ctx, "home", catalog.ContentTypeMovie, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.Zero(t, n)

	count, err := s.CountItems(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Zero(t, count, "a failed batch must not leave partial rows")
	assert.Zero(t, indexCount(t, s, "home", catalog.ContentTypeMovie))
}

func TestUpsertBatchUnknownProfile(t *testing.T) {
	t.Parallel()

	s := NewTestStore(t)
	_, err := s.UpsertBatch(context.Background(), "ghost", catalog.ContentTypeMovie, movies(1))
	assert.ErrorIs(t, err, catalog.ErrStorage)
}

func TestReconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home", "other")

	_, err := s.UpsertBatch(ctx, "home", catalog.ContentTypeMovie, movies(10))
	require.NoError(t, err)
	_, err = s.UpsertBatch(ctx, "other", catalog.ContentTypeMovie, movies(10))
	require.NoError(t, err)

	seen := []string{"m002", "m004", "m006", "m999"}
	deleted, err := s.Reconcile(ctx, "home", catalog.ContentTypeMovie, seen)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	ids, err := s.ListExternalIDs(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, []string{"m002", "m004", "m006"}, ids)
	assert.Equal(t, 3, indexCount(t, s, "home", catalog.ContentTypeMovie))

	// other profiles are untouched
	count, err := s.CountItems(ctx, "other", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	// a second reconcile starts from a clean seen set
	deleted, err = s.Reconcile(ctx, "home", catalog.ContentTypeMovie, []string{"m002"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	// an empty upstream empties the cache
	deleted, err = s.Reconcile(ctx, "home", catalog.ContentTypeMovie, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Zero(t, indexCount(t, s, "home", catalog.ContentTypeMovie))
}

func TestSyncState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	state, err := s.GetSyncState(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Nil(t, state.LastSyncAt)
	assert.Equal(t, catalog.SyncOutcomeNever, state.LastOutcome)
	assert.Zero(t, state.Cursor)

	require.NoError(t, s.EnsureSyncState(ctx, "home", catalog.ContentTypeMovie))
	states, err := s.ListSyncStates(ctx, "home")
	require.NoError(t, err)
	require.Len(t, states, 1)

	syncedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetSyncState(ctx, &catalog.SyncState{
		ProfileID:   "home",
		ContentType: catalog.ContentTypeMovie,
		LastSyncAt:  &syncedAt,
		LastOutcome: catalog.SyncOutcomeSuccess,
		Cursor:      1700000500,
		ItemCount:   42,
	}))

	require.NoError(t, s.RecordSyncOutcome(ctx, "home", catalog.ContentTypeMovie,
		catalog.SyncOutcomeCancelled, "cancelled by user"))

	state, err = s.GetSyncState(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	require.NotNil(t, state.LastSyncAt)
	assert.Equal(t, syncedAt, *state.LastSyncAt)
	assert.Equal(t, int64(1700000500), state.Cursor)
	assert.Equal(t, 42, state.ItemCount)
	assert.Equal(t, catalog.SyncOutcomeCancelled, state.LastOutcome)
	assert.Equal(t, "cancelled by user", state.LastError)

	err = s.EnsureSyncState(ctx, "ghost", catalog.ContentTypeMovie)
	assert.ErrorIs(t, err, catalog.ErrProfileNotFound)
}

func TestSyncSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	settings, err := s.GetSyncSettings(ctx, "home")
	require.NoError(t, err)
	assert.True(t, settings.AutoSyncEnabled)
	assert.Equal(t, uint(24), settings.SyncIntervalHours)
	assert.False(t, settings.WifiOnly)

	settings.SyncIntervalHours = 2
	_, err = s.UpdateSyncSettings(ctx, settings)
	assert.ErrorIs(t, err, catalog.ErrInvalidSettings)

	settings.SyncIntervalHours = 6
	settings.WifiOnly = true
	settings.NotifyOnComplete = true
	updated, err := s.UpdateSyncSettings(ctx, settings)
	require.NoError(t, err)
	assert.Equal(t, uint(6), updated.SyncIntervalHours)
	assert.True(t, updated.WifiOnly)
	assert.True(t, updated.NotifyOnComplete)

	again, err := s.GetSyncSettings(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, updated.SyncIntervalHours, again.SyncIntervalHours)

	_, err = s.GetSyncSettings(ctx, "ghost")
	assert.ErrorIs(t, err, catalog.ErrProfileNotFound)

	_, err = s.UpdateSyncSettings(ctx, catalog.DefaultSyncSettings("ghost"))
	assert.ErrorIs(t, err, catalog.ErrProfileNotFound)
}

func TestSyncProfilesCascades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home", "cabin")

	_, err := s.UpsertBatch(ctx, "cabin", catalog.ContentTypeMovie, movies(5))
	require.NoError(t, err)
	require.NoError(t, s.UpsertCategories(ctx, "cabin", catalog.ContentTypeMovie,
		[]catalog.Category{{ExternalID: "1", Name: "Action"}}, true))
	_, err = s.GetSyncSettings(ctx, "cabin")
	require.NoError(t, err)

	require.NoError(t, s.SyncProfiles(ctx, []*catalog.Profile{{ID: "home", Name: "Home", ProviderURL: "http://h"}}))

	profiles, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "home", profiles[0].ID)

	count, err := s.CountItems(ctx, "cabin", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, indexCount(t, s, "cabin", catalog.ContentTypeMovie))

	categories, err := s.ListCategories(ctx, "cabin", catalog.ContentTypeMovie)
	require.NoError(t, err)
	assert.Empty(t, categories)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	require.NoError(t, s.UpsertCategories(ctx, "home", catalog.ContentTypeMovie, []catalog.Category{
		{ExternalID: "2", Name: "drama"},
		{ExternalID: "1", Name: "Action"},
		{ExternalID: "3", Name: "Comedy", ParentID: "1"},
	}, false))

	categories, err := s.ListCategories(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, []string{"Action", "Comedy", "drama"},
		[]string{categories[0].Name, categories[1].Name, categories[2].Name})
	assert.Equal(t, "1", categories[1].ParentID)

	require.NoError(t, s.UpsertCategories(ctx, "home", catalog.ContentTypeMovie, []catalog.Category{
		{ExternalID: "1", Name: "Action & Adventure"},
	}, true))

	categories, err = s.ListCategories(ctx, "home", catalog.ContentTypeMovie)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Action & Adventure", categories[0].Name)
}

func TestSeriesDetail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTestStore(t, "home")

	_, err := s.UpsertBatch(ctx, "home", catalog.ContentTypeSeries, []catalog.Item{
		{ExternalID: "s1", Name: "Westworld", Genre: "Sci-Fi"},
	})
	require.NoError(t, err)

	detail, err := s.GetItemDetail(ctx, "home", catalog.ContentTypeSeries, "s1")
	require.NoError(t, err)
	assert.Nil(t, detail.DetailsFetchedAt)
	assert.Empty(t, detail.Seasons)

	err = s.SaveSeriesDetail(ctx, "home", catalog.ContentTypeSeries, &catalog.ItemDetail{
		Item: catalog.Item{ExternalID: "s1", Plot: "A park of hosts.", Cast: "Evan Rachel Wood"},
		Seasons: []catalog.Season{
			{Number: 2, Name: "Season 2", Episodes: []catalog.Episode{
				{ExternalID: "e21", Number: 1, Title: "Journey Into Night", DurationSecs: 3600},
			}},
			{Number: 1, Name: "Season 1", Episodes: []catalog.Episode{
				{ExternalID: "e12", Number: 2, Title: "Chestnut", DurationSecs: 3500},
				{ExternalID: "e11", Number: 1, Title: "The Original", DurationSecs: 4100},
			}},
		},
	})
	require.NoError(t, err)

	detail, err = s.GetItemDetail(ctx, "home", catalog.ContentTypeSeries, "s1")
	require.NoError(t, err)
	require.NotNil(t, detail.DetailsFetchedAt)
	assert.Equal(t, "Westworld", detail.Name)
	assert.Equal(t, "A park of hosts.", detail.Plot)
	assert.Equal(t, "Sci-Fi", detail.Genre, "empty detail fields keep the synced value")
	require.Len(t, detail.Seasons, 2)
	assert.Equal(t, 1, detail.Seasons[0].Number)
	require.Len(t, detail.Seasons[0].Episodes, 2)
	assert.Equal(t, "The Original", detail.Seasons[0].Episodes[0].Title)
	assert.Equal(t, "Chestnut", detail.Seasons[0].Episodes[1].Title)
	assert.Equal(t, 2, detail.Seasons[1].Number)

	// a later sync of the list keeps the fetched seasons
	_, err = s.UpsertBatch(ctx, "home", catalog.ContentTypeSeries, []catalog.Item{
		{ExternalID: "s1", Name: "Westworld", Genre: "Sci-Fi"},
	})
	require.NoError(t, err)
	detail, err = s.GetItemDetail(ctx, "home", catalog.ContentTypeSeries, "s1")
	require.NoError(t, err)
	assert.Len(t, detail.Seasons, 2)

	// removing the series upstream drops its seasons too
	_, err = s.Reconcile(ctx, "home", catalog.ContentTypeSeries, nil)
	require.NoError(t, err)
	var episodes int
	require.NoError(t, s.DB().QueryRow(`SELECT count(*) FROM series_episodes`).Scan(&episodes))
	assert.Zero(t, episodes)

	_, err = s.GetItemDetail(ctx, "home", catalog.ContentTypeSeries, "s1")
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
	err = s.SaveSeriesDetail(ctx, "home", catalog.ContentTypeSeries, &catalog.ItemDetail{Item: catalog.Item{ExternalID: "s1"}})
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}

func TestOpenOptions(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), t.TempDir()+"/x.db", WithMaxOpenConns(-1))
	assert.Error(t, err)
	_, err = Open(context.Background(), t.TempDir()+"/x.db", WithClock(nil))
	assert.Error(t, err)
	_, err = Open(context.Background(), t.TempDir()+"/x.db", WithBusyTimeout(-time.Second))
	assert.Error(t, err)
}
