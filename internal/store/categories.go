package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
)

// UpsertCategories writes the categories of a content type. With replace set,
// categories not in the given set are removed in the same transaction.
func (s *Store) UpsertCategories(
	ctx context.Context,
	profileID string,
	contentType catalog.ContentType,
	categories []catalog.Category,
	replace bool,
) error {
	ctx, span := s.startSpan(ctx, "store.UpsertCategories",
		append(otel.Catalog(profileID, string(contentType)), otel.AttrBatchSize.Int(len(categories)))...)
	defer span.End()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE profile_id = ? AND content_type = ?`,
				profileID, string(contentType)); err != nil {
				return fmt.Errorf("failed to clear categories: %w", err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO categories (profile_id, content_type, external_id, name, parent_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (profile_id, content_type, external_id) DO UPDATE SET
				name = excluded.name, parent_id = excluded.parent_id`)
		if err != nil {
			return fmt.Errorf("failed to prepare category upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range categories {
			if _, err := stmt.ExecContext(ctx, profileID, string(contentType), c.ExternalID, c.Name,
				nullString(c.ParentID)); err != nil {
				return fmt.Errorf("failed to upsert category %s: %w", c.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return storageError("upsert categories", err)
	}
	return nil
}

// ListCategories returns the categories of a content type ordered by name.
func (s *Store) ListCategories(
	ctx context.Context, profileID string, contentType catalog.ContentType,
) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, name, parent_id FROM categories
		WHERE profile_id = ? AND content_type = ? ORDER BY name COLLATE NOCASE, external_id`,
		profileID, string(contentType))
	if err != nil {
		return nil, storageError("list categories", err)
	}
	defer rows.Close()

	categories := []catalog.Category{}
	for rows.Next() {
		c := catalog.Category{ProfileID: profileID, ContentType: contentType}
		var parent sql.NullString
		if err := rows.Scan(&c.ExternalID, &c.Name, &parent); err != nil {
			return nil, storageError("list categories", err)
		}
		c.ParentID = parent.String
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list categories", err)
	}
	return categories, nil
}
