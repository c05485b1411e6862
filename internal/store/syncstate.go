package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

const syncStateColumns = `profile_id, content_type, last_sync_at, last_outcome, last_error, cursor, item_count, updated_at`

func scanSyncState(row RowScanner) (*catalog.SyncState, error) {
	var (
		state       catalog.SyncState
		contentType string
		outcome     string
		lastSync    sql.NullInt64
		lastError   sql.NullString
		updatedAt   sql.NullInt64
	)
	if err := row.Scan(&state.ProfileID, &contentType, &lastSync, &outcome, &lastError,
		&state.Cursor, &state.ItemCount, &updatedAt); err != nil {
		return nil, err
	}
	state.ContentType = catalog.ContentType(contentType)
	state.LastOutcome = catalog.SyncOutcome(outcome)
	state.LastSyncAt = timePtrFromNull(lastSync)
	state.LastError = lastError.String
	state.UpdatedAt = timeFromNull(updatedAt)
	return &state, nil
}

// GetSyncState returns the sync bookkeeping of a profile and content type.
// A pair that never had a sync attempt reports "never synced".
func (s *Store) GetSyncState(
	ctx context.Context, profileID string, contentType catalog.ContentType,
) (*catalog.SyncState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state
		WHERE profile_id = ? AND content_type = ?`, profileID, string(contentType))
	state, err := scanSyncState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.NeverSynced(profileID, contentType), nil
	}
	if err != nil {
		return nil, storageError("get sync state", err)
	}
	return state, nil
}

// ListSyncStates returns the stored sync states of a profile.
func (s *Store) ListSyncStates(ctx context.Context, profileID string) ([]*catalog.SyncState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+syncStateColumns+` FROM sync_state
		WHERE profile_id = ? ORDER BY content_type`, profileID)
	if err != nil {
		return nil, storageError("list sync states", err)
	}
	defer rows.Close()

	var states []*catalog.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, storageError("list sync states", err)
		}
		states = append(states, state)
	}
	return states, storageError("list sync states", rows.Err())
}

// EnsureSyncState creates the "never synced" row for a pair if it is absent.
func (s *Store) EnsureSyncState(ctx context.Context, profileID string, contentType catalog.ContentType) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_state (profile_id, content_type, last_outcome, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (profile_id, content_type) DO NOTHING`,
		profileID, string(contentType), string(catalog.SyncOutcomeNever), s.now().Unix())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", catalog.ErrProfileNotFound, profileID)
		}
		return storageError("ensure sync state", err)
	}
	return nil
}

// SetSyncState writes every column of a sync state.
func (s *Store) SetSyncState(ctx context.Context, state *catalog.SyncState) error {
	var lastSync sql.NullInt64
	if state.LastSyncAt != nil {
		lastSync = unixOrNull(*state.LastSyncAt)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_state (`+syncStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, content_type) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			last_outcome = excluded.last_outcome,
			last_error = excluded.last_error,
			cursor = excluded.cursor,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at`,
		state.ProfileID, string(state.ContentType), lastSync, string(state.LastOutcome),
		nullString(state.LastError), state.Cursor, state.ItemCount, s.now().Unix())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", catalog.ErrProfileNotFound, state.ProfileID)
		}
		return storageError("set sync state", err)
	}
	return nil
}

// RecordSyncOutcome updates only the outcome columns, leaving the last
// successful sync time and the cursor untouched.
func (s *Store) RecordSyncOutcome(
	ctx context.Context,
	profileID string,
	contentType catalog.ContentType,
	outcome catalog.SyncOutcome,
	message string,
) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_state (profile_id, content_type, last_outcome, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (profile_id, content_type) DO UPDATE SET
			last_outcome = excluded.last_outcome,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		profileID, string(contentType), string(outcome), nullString(message), s.now().Unix())
	return storageError("record sync outcome", err)
}
