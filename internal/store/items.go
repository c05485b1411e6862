package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
)

// ItemColumns is the column list read by ScanItem, qualified with the "i" alias.
const ItemColumns = `i.profile_id, i.content_type, i.external_id, i.name, i.category_id, i.genre, i.year,
	i.rating, i.plot, i.cast_members, i.director, i.stream_ref, i.container_ext, i.icon, i.backdrop,
	i.added_at, i.synced_at`

const upsertItemSQL = `
INSERT INTO catalog_items (
    profile_id, content_type, external_id, name, category_id, genre, year, rating, plot,
    cast_members, director, stream_ref, container_ext, icon, backdrop, added_at, synced_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (profile_id, content_type, external_id) DO UPDATE SET
    name = excluded.name,
    category_id = excluded.category_id,
    genre = excluded.genre,
    year = excluded.year,
    rating = excluded.rating,
    plot = excluded.plot,
    cast_members = excluded.cast_members,
    director = excluded.director,
    stream_ref = excluded.stream_ref,
    container_ext = excluded.container_ext,
    icon = excluded.icon,
    backdrop = excluded.backdrop,
    added_at = excluded.added_at,
    synced_at = excluded.synced_at`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanItem scans one row selected with ItemColumns.
func ScanItem(row RowScanner) (*catalog.Item, error) {
	var (
		item                                               catalog.Item
		contentType                                        string
		category, genre, plot, cast, director, stream, ext sql.NullString
		icon, backdrop                                     sql.NullString
		year, addedAt, syncedAt                            sql.NullInt64
		rating                                             sql.NullFloat64
	)
	err := row.Scan(&item.ProfileID, &contentType, &item.ExternalID, &item.Name, &category, &genre, &year,
		&rating, &plot, &cast, &director, &stream, &ext, &icon, &backdrop, &addedAt, &syncedAt)
	if err != nil {
		return nil, err
	}

	item.ContentType = catalog.ContentType(contentType)
	item.CategoryID = category.String
	item.Genre = genre.String
	item.Year = int(year.Int64)
	item.Rating = rating.Float64
	item.Plot = plot.String
	item.Cast = cast.String
	item.Director = director.String
	item.StreamRef = stream.String
	item.ContainerExt = ext.String
	item.Icon = icon.String
	item.Backdrop = backdrop.String
	item.AddedAt = timeFromNull(addedAt)
	item.SyncedAt = timeFromNull(syncedAt)
	return &item, nil
}

// UpsertBatch inserts or replaces items keyed by (profile, content type,
// external id) in one transaction and returns the number written. Either
// the whole batch is applied or none of it.
func (s *Store) UpsertBatch(
	ctx context.Context, profileID string, contentType catalog.ContentType, items []catalog.Item,
) (int, error) {
	ctx, span := s.startSpan(ctx, "store.UpsertBatch",
		append(otel.Catalog(profileID, string(contentType)), otel.AttrBatchSize.Int(len(items)))...)
	defer span.End()

	if len(items) == 0 {
		return 0, nil
	}

	syncedAt := s.now()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertItemSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for i := range items {
			item := &items[i]
			if item.ExternalID == "" {
				return fmt.Errorf("item %d has no external id", i)
			}
			itemSyncedAt := item.SyncedAt
			if itemSyncedAt.IsZero() {
				itemSyncedAt = syncedAt
			}
			_, err := stmt.ExecContext(ctx,
				profileID, string(contentType), item.ExternalID, item.Name,
				nullString(item.CategoryID), nullString(item.Genre), nullInt(item.Year), nullFloat(item.Rating),
				nullString(item.Plot), nullString(item.Cast), nullString(item.Director),
				nullString(item.StreamRef), nullString(item.ContainerExt), nullString(item.Icon),
				nullString(item.Backdrop), unixOrNull(item.AddedAt), itemSyncedAt.Unix(),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert item %s: %w", item.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return 0, storageError("upsert batch", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int(len(items)))
	return len(items), nil
}

// Reconcile deletes the cached items of a content type whose external ids are
// not in seen and returns how many were removed. Used after a full sync.
func (s *Store) Reconcile(
	ctx context.Context, profileID string, contentType catalog.ContentType, seen []string,
) (int, error) {
	ctx, span := s.startSpan(ctx, "store.Reconcile",
		append(otel.Catalog(profileID, string(contentType)), otel.AttrBatchSize.Int(len(seen)))...)
	defer span.End()

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// temp tables are per connection, and the transaction pins one
		if _, err := tx.ExecContext(ctx,
			`CREATE TEMP TABLE IF NOT EXISTS reconcile_seen (external_id TEXT PRIMARY KEY)`); err != nil {
			return fmt.Errorf("failed to create seen table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM temp.reconcile_seen`); err != nil {
			return fmt.Errorf("failed to clear seen table: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO temp.reconcile_seen (external_id) VALUES (?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare seen insert: %w", err)
		}
		defer stmt.Close()
		for _, id := range seen {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to record seen id: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM catalog_items
			WHERE profile_id = ? AND content_type = ?
			  AND external_id NOT IN (SELECT external_id FROM temp.reconcile_seen)`,
			profileID, string(contentType))
		if err != nil {
			return fmt.Errorf("failed to delete orphaned items: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM temp.reconcile_seen`)
		return err
	})
	if err != nil {
		otel.RecordError(span, err)
		return 0, storageError("reconcile", err)
	}

	span.SetAttributes(otel.AttrResultCount.Int64(deleted))
	return int(deleted), nil
}

// CountItems returns the number of cached items of a content type.
func (s *Store) CountItems(ctx context.Context, profileID string, contentType catalog.ContentType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM catalog_items WHERE profile_id = ? AND content_type = ?`,
		profileID, string(contentType)).Scan(&n)
	if err != nil {
		return 0, storageError("count items", err)
	}
	return n, nil
}

// ListExternalIDs returns the external ids of a content type, sorted.
func (s *Store) ListExternalIDs(ctx context.Context, profileID string, contentType catalog.ContentType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id FROM catalog_items WHERE profile_id = ? AND content_type = ? ORDER BY external_id`,
		profileID, string(contentType))
	if err != nil {
		return nil, storageError("list external ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("list external ids", err)
		}
		ids = append(ids, id)
	}
	return ids, storageError("list external ids", rows.Err())
}

// GetItem returns one cached item.
func (s *Store) GetItem(
	ctx context.Context, profileID string, contentType catalog.ContentType, externalID string,
) (*catalog.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ItemColumns+` FROM catalog_items i
		WHERE i.profile_id = ? AND i.content_type = ? AND i.external_id = ?`,
		profileID, string(contentType), externalID)
	item, err := ScanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", catalog.ErrItemNotFound, contentType, externalID)
	}
	if err != nil {
		return nil, storageError("get item", err)
	}
	return item, nil
}

// GetItemDetail returns an item with its cached seasons and episodes.
func (s *Store) GetItemDetail(
	ctx context.Context, profileID string, contentType catalog.ContentType, externalID string,
) (*catalog.ItemDetail, error) {
	ctx, span := s.startSpan(ctx, "store.GetItemDetail", otel.Catalog(profileID, string(contentType))...)
	defer span.End()

	var (
		rowID     int64
		fetchedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, details_fetched_at FROM catalog_items
		WHERE profile_id = ? AND content_type = ? AND external_id = ?`,
		profileID, string(contentType), externalID).Scan(&rowID, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", catalog.ErrItemNotFound, contentType, externalID)
	}
	if err != nil {
		otel.RecordError(span, err)
		return nil, storageError("get item detail", err)
	}

	item, err := s.GetItem(ctx, profileID, contentType, externalID)
	if err != nil {
		return nil, err
	}

	detail := &catalog.ItemDetail{Item: *item, DetailsFetchedAt: timePtrFromNull(fetchedAt)}
	if contentType != catalog.ContentTypeSeries {
		return detail, nil
	}

	seasons, err := s.loadSeasons(ctx, rowID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, storageError("load seasons", err)
	}
	detail.Seasons = seasons
	return detail, nil
}

func (s *Store) loadSeasons(ctx context.Context, itemID int64) ([]catalog.Season, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT season_number, name, overview, air_date
		FROM series_seasons WHERE item_id = ? ORDER BY season_number`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seasons []catalog.Season
	index := map[int]int{}
	for rows.Next() {
		var (
			season            catalog.Season
			overview, airDate sql.NullString
		)
		if err := rows.Scan(&season.Number, &season.Name, &overview, &airDate); err != nil {
			return nil, err
		}
		season.Overview = overview.String
		season.AirDate = airDate.String
		season.Episodes = []catalog.Episode{}
		index[season.Number] = len(seasons)
		seasons = append(seasons, season)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	epRows, err := s.db.QueryContext(ctx, `SELECT season_number, episode_number, external_id, title, plot,
		duration_secs, stream_ref, container_ext
		FROM series_episodes WHERE item_id = ? ORDER BY season_number, episode_number`, itemID)
	if err != nil {
		return nil, err
	}
	defer epRows.Close()

	for epRows.Next() {
		var (
			seasonNumber      int
			ep                catalog.Episode
			plot, stream, ext sql.NullString
		)
		if err := epRows.Scan(&seasonNumber, &ep.Number, &ep.ExternalID, &ep.Title, &plot,
			&ep.DurationSecs, &stream, &ext); err != nil {
			return nil, err
		}
		ep.Plot = plot.String
		ep.StreamRef = stream.String
		ep.ContainerExt = ext.String

		i, ok := index[seasonNumber]
		if !ok {
			// episodes of a season the provider did not describe
			index[seasonNumber] = len(seasons)
			i = len(seasons)
			seasons = append(seasons, catalog.Season{Number: seasonNumber, Episodes: []catalog.Episode{}})
		}
		seasons[i].Episodes = append(seasons[i].Episodes, ep)
	}
	return seasons, epRows.Err()
}

// SaveSeriesDetail replaces the seasons and episodes of a cached series and
// merges the richer detail metadata into the item, in one transaction.
func (s *Store) SaveSeriesDetail(
	ctx context.Context, profileID string, contentType catalog.ContentType, detail *catalog.ItemDetail,
) error {
	ctx, span := s.startSpan(ctx, "store.SaveSeriesDetail", otel.Catalog(profileID, string(contentType))...)
	defer span.End()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var rowID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM catalog_items
			WHERE profile_id = ? AND content_type = ? AND external_id = ?`,
			profileID, string(contentType), detail.ExternalID).Scan(&rowID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", catalog.ErrItemNotFound, contentType, detail.ExternalID)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE catalog_items SET
				plot = coalesce(nullif(?, ''), plot),
				cast_members = coalesce(nullif(?, ''), cast_members),
				director = coalesce(nullif(?, ''), director),
				genre = coalesce(nullif(?, ''), genre),
				backdrop = coalesce(nullif(?, ''), backdrop),
				details_fetched_at = ?
			WHERE id = ?`,
			detail.Plot, detail.Cast, detail.Director, detail.Genre, detail.Backdrop, s.now().Unix(), rowID)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}

		for _, table := range []string{"series_episodes", "series_seasons"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE item_id = ?`, rowID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, season := range detail.Seasons {
			_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO series_seasons (item_id, season_number, name, overview, air_date)
				VALUES (?, ?, ?, ?, ?)`,
				rowID, season.Number, season.Name, nullString(season.Overview), nullString(season.AirDate))
			if err != nil {
				return fmt.Errorf("failed to insert season %d: %w", season.Number, err)
			}
			for _, ep := range season.Episodes {
				_, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO series_episodes (item_id, season_number,
					episode_number, external_id, title, plot, duration_secs, stream_ref, container_ext)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					rowID, season.Number, ep.Number, ep.ExternalID, strings.TrimSpace(ep.Title),
					nullString(ep.Plot), ep.DurationSecs, nullString(ep.StreamRef), nullString(ep.ContainerExt))
				if err != nil {
					return fmt.Errorf("failed to insert episode %d of season %d: %w", ep.Number, season.Number, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return storageError("save series detail", err)
	}
	return nil
}
