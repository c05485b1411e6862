package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
	"github.com/stacklok/catalog-cache/internal/search"
	"github.com/stacklok/catalog-cache/internal/store"
	"github.com/stacklok/catalog-cache/internal/telemetry"
)

const (
	// DefaultMaxLimit clamps the page size of every query
	DefaultMaxLimit = 200
	// DefaultLimit is the page size used when a query leaves it unset
	DefaultLimit = 50
	// DefaultSlowQueryThreshold flags queries slower than this
	DefaultSlowQueryThreshold = 150 * time.Millisecond
)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxLimit sets the page size clamp.
func WithMaxLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLimit = n
		}
	}
}

// WithDefaultLimit sets the page size used when a query leaves it unset.
func WithDefaultLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultLimit = n
		}
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slowThreshold = d
		}
	}
}

// WithMetrics records query latency.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine runs list and search queries against the cache.
type Engine struct {
	db            *sql.DB
	index         *search.Index
	tracer        trace.Tracer
	maxLimit      int
	defaultLimit  int
	slowThreshold time.Duration
	metrics       *telemetry.QueryMetrics
}

// NewEngine returns an engine over the store and its search index.
func NewEngine(s *store.Store, index *search.Index, opts ...Option) *Engine {
	e := &Engine{
		db:            s.DB(),
		index:         index,
		tracer:        s.Tracer(),
		maxLimit:      DefaultMaxLimit,
		defaultLimit:  DefaultLimit,
		slowThreshold: DefaultSlowQueryThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	return e
}

// Page is one page of results.
type Page struct {
	Items []catalog.Item `json:"items"`
	// Total counts all matches; for searches it is capped at the search limit.
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ClampLimit maps a requested page size onto [1, max].
func (e *Engine) ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return e.defaultLimit
	case limit > e.maxLimit:
		return e.maxLimit
	default:
		return limit
	}
}

// statement is a compiled query: the shared FROM/WHERE part plus ordering.
type statement struct {
	from    string
	args    []any
	orderBy string
	limit   int
	offset  int
	// empty is set when the result is known to be empty without running it
	empty bool
}

func (e *Engine) compile(q *Query) (*statement, error) {
	st := &statement{
		limit:  e.ClampLimit(q.Limit),
		offset: q.Offset,
	}
	if st.offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", catalog.ErrInvalidQuery)
	}

	var (
		where     []string
		from      = `catalog_items i`
		relevance string
	)
	if q.IsSearch() {
		m, ok := e.index.Match(q.Text)
		if !ok {
			// nothing to match, and no statement to run
			st.empty = true
			return st, nil
		}
		from += ` ` + m.Join
		where = append(where, m.Where)
		st.args = append(st.args, m.Args...)
		relevance = m.Order

		// searches only ever expose the first index.Limit() matches
		searchCap := e.index.Limit()
		if st.offset >= searchCap {
			st.empty = true
		}
		if st.offset+st.limit > searchCap {
			st.limit = searchCap - st.offset
		}
	}

	where = append(where, `i.profile_id = ?`, `i.content_type = ?`)
	st.args = append(st.args, q.ProfileID, string(q.ContentType))

	f := q.Filter
	if f.CategoryID != "" {
		where = append(where, `i.category_id = ?`)
		st.args = append(st.args, f.CategoryID)
	}
	if f.Genre != "" {
		where = append(where, `i.genre LIKE ? ESCAPE '\'`)
		st.args = append(st.args, "%"+escapeLike(f.Genre)+"%")
	}
	if f.Year != nil {
		where = append(where, `i.year = ?`)
		st.args = append(st.args, *f.Year)
	}
	if f.MinRating != nil {
		where = append(where, `i.rating >= ?`)
		st.args = append(st.args, *f.MinRating)
	}

	orderBy, err := orderClause(q, relevance)
	if err != nil {
		return nil, err
	}

	st.from = from + ` WHERE ` + strings.Join(where, ` AND `)
	st.orderBy = orderBy
	return st, nil
}

func (st *statement) selectSQL() (string, []any) {
	args := append(append([]any{}, st.args...), st.limit, st.offset)
	return `SELECT ` + store.ItemColumns + ` FROM ` + st.from + ` ORDER BY ` + st.orderBy + ` LIMIT ? OFFSET ?`, args
}

func (st *statement) countSQL() (string, []any) {
	return `SELECT count(*) FROM ` + st.from, st.args
}

// orderClause returns the ORDER BY of q; relevance is the index ranking of a
// search statement.
func orderClause(q *Query, relevance string) (string, error) {
	s := q.EffectiveSort()
	dir := "ASC"
	if s.Descending {
		dir = "DESC"
	}
	const tiebreak = `i.name COLLATE NOCASE ASC, i.id ASC`

	switch s.Field {
	case SortRelevance:
		if relevance == "" {
			return "", fmt.Errorf("%w: relevance sort requires search text", catalog.ErrInvalidQuery)
		}
		return relevance, nil
	case SortName:
		return `i.name COLLATE NOCASE ` + dir + `, i.id ` + dir, nil
	case SortYear:
		return `i.year IS NULL, i.year ` + dir + `, ` + tiebreak, nil
	case SortRating:
		return `i.rating IS NULL, i.rating ` + dir + `, ` + tiebreak, nil
	case SortDateAdded:
		return `i.added_at IS NULL, i.added_at ` + dir + `, ` + tiebreak, nil
	}
	return "", fmt.Errorf("%w: unknown sort field %q", catalog.ErrInvalidQuery, s.Field)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of items matching the query filters. Search text, if
// any, is ignored; use Search for that.
func (e *Engine) List(ctx context.Context, q Query) (*Page, error) {
	q.Text = ""
	return e.run(ctx, "list", &q)
}

// Search returns one page of items matching the search text and filters.
// Empty search text yields an empty page.
func (e *Engine) Search(ctx context.Context, q Query) (*Page, error) {
	if !q.IsSearch() {
		return &Page{Items: []catalog.Item{}, Limit: e.ClampLimit(q.Limit), Offset: q.Offset}, nil
	}
	return e.run(ctx, "search", &q)
}

func (e *Engine) run(ctx context.Context, operation string, q *Query) (*Page, error) {
	ctx, span := otel.StartSpan(ctx, e.tracer, "query."+operation,
		append(otel.Catalog(q.ProfileID, string(q.ContentType)),
			otel.AttrPageSize.Int(q.Limit), otel.AttrPageOffset.Int(q.Offset), otel.AttrHasSearch.Bool(q.IsSearch()))...)
	defer span.End()

	st, err := e.compile(q)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: []catalog.Item{}, Limit: e.ClampLimit(q.Limit), Offset: st.offset}
	if st.empty {
		return page, nil
	}

	start := time.Now()
	defer func() {
		e.observe(ctx, operation, q, time.Since(start))
	}()

	countSQL, countArgs := st.countSQL()
	if err := e.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&page.Total); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%w: count %s: %w", catalog.ErrStorage, operation, err)
	}
	if q.IsSearch() {
		page.Total = min(page.Total, e.index.Limit())
	}
	if st.offset >= page.Total {
		return page, nil
	}

	selectSQL, args := st.selectSQL()
	rows, err := e.db.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", catalog.ErrStorage, operation, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := store.ScanItem(rows)
		if err != nil {
			otel.RecordError(span, err)
			return nil, fmt.Errorf("%w: %s: %w", catalog.ErrStorage, operation, err)
		}
		page.Items = append(page.Items, *item)
	}
	if err := rows.Err(); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("%w: %s: %w", catalog.ErrStorage, operation, err)
	}

	page.HasMore = st.offset+len(page.Items) < page.Total
	span.SetAttributes(otel.AttrResultCount.Int(len(page.Items)))
	return page, nil
}

func (e *Engine) observe(ctx context.Context, operation string, q *Query, d time.Duration) {
	e.metrics.RecordQueryDuration(ctx, operation, d)
	if d < e.slowThreshold {
		return
	}
	slog.WarnContext(ctx, "Slow catalog query",
		"operation", operation,
		"profile", q.ProfileID,
		"content_type", q.ContentType,
		"has_search", q.IsSearch(),
		"sort", q.EffectiveSort().Field,
		"duration", d,
		"threshold", e.slowThreshold,
	)
}

// PlanStep is one row of an EXPLAIN QUERY PLAN result.
type PlanStep struct {
	ID     int    `json:"id"`
	Parent int    `json:"parent"`
	Detail string `json:"detail"`
}

// Plan describes how a query would be executed.
type Plan struct {
	SQL   string     `json:"sql"`
	Args  []any      `json:"args"`
	Steps []PlanStep `json:"steps"`
}

// Explain returns the statement a List or Search of q would run and SQLite's
// plan for it. Search text selects the search statement.
func (e *Engine) Explain(ctx context.Context, q Query) (*Plan, error) {
	st, err := e.compile(&q)
	if err != nil {
		return nil, err
	}
	if st.from == "" {
		// search text without tokens compiles to no statement at all
		return &Plan{Args: []any{}, Steps: []PlanStep{}}, nil
	}
	if st.empty {
		// keep the statement valid so the plan can still be inspected
		st.limit = max(st.limit, 1)
	}

	stmt, args := st.selectSQL()
	rows, err := e.db.QueryContext(ctx, `EXPLAIN QUERY PLAN `+stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: explain: %w", catalog.ErrStorage, err)
	}
	defer rows.Close()

	plan := &Plan{SQL: stmt, Args: args, Steps: []PlanStep{}}
	for rows.Next() {
		var (
			step    PlanStep
			notused int
		)
		if err := rows.Scan(&step.ID, &step.Parent, &notused, &step.Detail); err != nil {
			return nil, fmt.Errorf("%w: explain: %w", catalog.ErrStorage, err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: explain: %w", catalog.ErrStorage, err)
	}
	return plan, nil
}
