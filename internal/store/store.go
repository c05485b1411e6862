// Package store is the local cache of provider catalogs. It persists catalog
// items, categories, series details, sync bookkeeping and settings in SQLite.
//
// Every write to catalog_items goes through a transaction, and the
// catalog_search full-text table is maintained by triggers on the same
// statements, so a committed item and its index row always appear together.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	// registers the pure-Go "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
)

// TracerName is the name used for the store tracer
const TracerName = "github.com/stacklok/catalog-cache/store"

// options holds configuration options for the store
type options struct {
	tracer       trace.Tracer
	maxOpenConns int
	busyTimeout  time.Duration
	now          func() time.Time
}

// Option is a functional option for configuring the store
type Option func(*options) error

// WithTracer sets the OpenTelemetry tracer. If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithMaxOpenConns caps the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("maxOpenConns must not be negative, got %d", n)
		}
		o.maxOpenConns = n
		return nil
	}
}

// WithBusyTimeout sets how long a writer waits for the database write lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("busyTimeout must not be negative, got %s", d)
		}
		o.busyTimeout = d
		return nil
	}
}

// WithClock overrides the clock used for synced_at and updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		o.now = now
		return nil
	}
}

// Store is the SQLite-backed catalog cache.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

// Open opens the cache at path. The schema must already be migrated.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := &options{
		maxOpenConns: 8,
		busyTimeout:  5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	// WAL lets readers proceed while a sync batch is being written, and
	// immediate transactions take the write lock up front so two writers
	// never deadlock upgrading a shared lock.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, o.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, tracer: o.tracer, now: o.now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for read-side packages layered on the store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tracer returns the configured tracer, which may be nil.
func (s *Store) Tracer() trace.Tracer {
	return s.tracer
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{semconv.DBSystemSqlite}, attrs...)
	return otel.StartSpan(ctx, s.tracer, name, attrs...)
}

// withTx runs fn inside a transaction. The transaction is rolled back unless
// fn returns nil and the commit succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// storageError tags err as a storage failure of op.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	// domain errors raised inside a transaction keep their own class
	for _, known := range []error{catalog.ErrProfileNotFound, catalog.ErrItemNotFound, catalog.ErrInvalidSettings} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrStorage, op, err)
}

func (s *Store) profileExists(ctx context.Context, q querier, profileID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, profileID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", catalog.ErrProfileNotFound, profileID)
	}
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
