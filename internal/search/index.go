// Package search is the full-text index over the catalog cache.
//
// The index table (catalog_search) is written only by triggers on
// catalog_items, inside the same transaction as the base rows. This package
// reads it: it builds match expressions and the ranking the query layer
// composes into its statements, and verifies that the index still mirrors
// the base table.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
	"github.com/stacklok/catalog-cache/internal/store"
	"github.com/stacklok/catalog-cache/internal/telemetry"
)

const (
	// DefaultLimit bounds the number of matches one search exposes.
	DefaultLimit = 1000

	// rankExpression scores a match: name outweighs genre, cast and plot.
	// bm25 is lower for better matches.
	rankExpression = `bm25(catalog_search, 10.0, 4.0, 2.0, 1.0, 0.0, 0.0, 0.0)`

	joinClause     = `JOIN catalog_search s ON s.rowid = i.id`
	matchPredicate = `catalog_search MATCH ?`
	relevanceOrder = rankExpression + `, s.synced_at DESC, i.name COLLATE NOCASE, i.id`
)

// Match restricts a statement over catalog_items (alias i) to the index
// matches of one search text, and ranks them.
type Match struct {
	// Join joins the index table as alias s
	Join string
	// Where is the match predicate; Args holds its parameters
	Where string
	Args  []any
	// Order ranks matches best first, then by most recent sync
	Order string
}

// Option configures an Index.
type Option func(*Index)

// WithLimit overrides the maximum number of matches.
func WithLimit(limit int) Option {
	return func(x *Index) {
		if limit > 0 {
			x.limit = limit
		}
	}
}

// WithMetrics records verification latency.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(x *Index) {
		x.metrics = m
	}
}

// Index owns matching and ranking over the catalog cache.
type Index struct {
	db      *sql.DB
	tracer  trace.Tracer
	limit   int
	metrics *telemetry.QueryMetrics
}

// New returns an index reading from the given store.
func New(s *store.Store, opts ...Option) *Index {
	x := &Index{
		db:     s.DB(),
		tracer: s.Tracer(),
		limit:  DefaultLimit,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Limit returns the maximum number of matches a search exposes.
func (x *Index) Limit() int {
	return x.limit
}

// Match compiles search text into statement fragments. It reports false
// when the text has no searchable tokens; such a search matches nothing and
// must not reach storage.
func (x *Index) Match(text string) (Match, bool) {
	expr, ok := BuildMatch(text)
	if !ok {
		return Match{}, false
	}
	return Match{
		Join:  joinClause,
		Where: matchPredicate,
		Args:  []any{expr},
		Order: relevanceOrder,
	}, true
}

// Consistency compares base rows and index rows of one content type.
type Consistency struct {
	ProfileID   string              `json:"profile_id"`
	ContentType catalog.ContentType `json:"content_type"`
	Items       int                 `json:"items"`
	IndexRows   int                 `json:"index_rows"`
	Consistent  bool                `json:"consistent"`
}

// Verify runs the FTS5 integrity check and compares the number of items
// with the number of index rows of a content type.
func (x *Index) Verify(ctx context.Context, profileID string, contentType catalog.ContentType) (*Consistency, error) {
	ctx, span := otel.StartSpan(ctx, x.tracer, "search.Verify", otel.Catalog(profileID, string(contentType))...)
	defer span.End()

	start := time.Now()
	defer func() {
		x.metrics.RecordQueryDuration(ctx, "verify", time.Since(start))
	}()

	if _, err := x.db.ExecContext(ctx, `INSERT INTO catalog_search (catalog_search) VALUES ('integrity-check')`); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%w: index integrity check failed: %w", catalog.ErrStorage, err)
	}

	c := &Consistency{ProfileID: profileID, ContentType: contentType}
	err := x.db.QueryRowContext(ctx, `SELECT
			(SELECT count(*) FROM catalog_items WHERE profile_id = ?1 AND content_type = ?2),
			(SELECT count(*) FROM catalog_search WHERE profile_id = ?1 AND content_type = ?2)`,
		profileID, string(contentType)).Scan(&c.Items, &c.IndexRows)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%w: verify index: %w", catalog.ErrStorage, err)
	}
	c.Consistent = c.Items == c.IndexRows
	return c, nil
}
