package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// GetSyncSettings returns the settings of a profile, creating the defaults
// on first access.
func (s *Store) GetSyncSettings(ctx context.Context, profileID string) (*catalog.SyncSettings, error) {
	var settings *catalog.SyncSettings
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.profileExists(ctx, tx, profileID); err != nil {
			return err
		}

		defaults := catalog.DefaultSyncSettings(profileID)
		_, err := tx.ExecContext(ctx, `INSERT INTO sync_settings
				(profile_id, auto_sync_enabled, sync_interval_hours, wifi_only, notify_on_complete, updated_at)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (profile_id) DO NOTHING`,
			profileID, boolToInt(defaults.AutoSyncEnabled), defaults.SyncIntervalHours,
			boolToInt(defaults.WifiOnly), boolToInt(defaults.NotifyOnComplete), s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to create default settings: %w", err)
		}

		settings, err = readSettings(ctx, tx, profileID)
		return err
	})
	if err != nil {
		return nil, storageError("get sync settings", err)
	}
	return settings, nil
}

// UpdateSyncSettings validates and stores the settings of a profile.
func (s *Store) UpdateSyncSettings(ctx context.Context, settings *catalog.SyncSettings) (*catalog.SyncSettings, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var updated *catalog.SyncSettings
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.profileExists(ctx, tx, settings.ProfileID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `INSERT INTO sync_settings
				(profile_id, auto_sync_enabled, sync_interval_hours, wifi_only, notify_on_complete, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (profile_id) DO UPDATE SET
				auto_sync_enabled = excluded.auto_sync_enabled,
				sync_interval_hours = excluded.sync_interval_hours,
				wifi_only = excluded.wifi_only,
				notify_on_complete = excluded.notify_on_complete,
				updated_at = excluded.updated_at`,
			settings.ProfileID, boolToInt(settings.AutoSyncEnabled), settings.SyncIntervalHours,
			boolToInt(settings.WifiOnly), boolToInt(settings.NotifyOnComplete), s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to store settings: %w", err)
		}

		updated, err = readSettings(ctx, tx, settings.ProfileID)
		return err
	})
	if err != nil {
		return nil, storageError("update sync settings", err)
	}
	return updated, nil
}

func readSettings(ctx context.Context, q querier, profileID string) (*catalog.SyncSettings, error) {
	var (
		settings                            catalog.SyncSettings
		autoSync, wifiOnly, notify, updated int64
	)
	err := q.QueryRowContext(ctx, `SELECT profile_id, auto_sync_enabled, sync_interval_hours, wifi_only,
			notify_on_complete, updated_at
		FROM sync_settings WHERE profile_id = ?`, profileID).
		Scan(&settings.ProfileID, &autoSync, &settings.SyncIntervalHours, &wifiOnly, &notify, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	settings.AutoSyncEnabled = autoSync != 0
	settings.WifiOnly = wifiOnly != 0
	settings.NotifyOnComplete = notify != 0
	settings.UpdatedAt = timeFromNull(sql.NullInt64{Int64: updated, Valid: true})
	return &settings, nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
