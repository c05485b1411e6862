package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// SyncProfiles makes the profiles table match the configured profiles.
// Profiles no longer configured are deleted together with everything they
// own: items, categories, series details, sync state and settings.
func (s *Store) SyncProfiles(ctx context.Context, profiles []*catalog.Profile) error {
	ctx, span := s.startSpan(ctx, "store.SyncProfiles")
	defer span.End()

	now := s.now().Unix()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids := make([]any, 0, len(profiles))
		for _, p := range profiles {
			_, err := tx.ExecContext(ctx, `INSERT INTO profiles (id, name, provider_url, username, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					provider_url = excluded.provider_url,
					username = excluded.username,
					updated_at = excluded.updated_at`,
				p.ID, p.Name, p.ProviderURL, p.Credentials.Username, now, now)
			if err != nil {
				return fmt.Errorf("failed to upsert profile %s: %w", p.ID, err)
			}
			ids = append(ids, p.ID)
		}

		query := `DELETE FROM profiles`
		if len(ids) > 0 {
			query += ` WHERE id NOT IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
		}
		res, err := tx.ExecContext(ctx, query, ids...)
		if err != nil {
			return fmt.Errorf("failed to delete removed profiles: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Info("Removed profiles no longer configured", "count", n)
		}
		return nil
	})
	return storageError("sync profiles", err)
}

// ListProfiles returns the stored profiles ordered by id. Credentials are
// not persisted; only the username is returned.
func (s *Store) ListProfiles(ctx context.Context) ([]*catalog.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, provider_url, username FROM profiles ORDER BY id`)
	if err != nil {
		return nil, storageError("list profiles", err)
	}
	defer rows.Close()

	var profiles []*catalog.Profile
	for rows.Next() {
		p := &catalog.Profile{}
		if err := rows.Scan(&p.ID, &p.Name, &p.ProviderURL, &p.Credentials.Username); err != nil {
			return nil, storageError("list profiles", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, storageError("list profiles", rows.Err())
}
