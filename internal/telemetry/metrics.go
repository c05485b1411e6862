package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/catalog-cache/sync"

	// QueryMetricsMeterName is the name used for the query metrics meter
	QueryMetricsMeterName = "github.com/stacklok/catalog-cache/query"
)

// SyncMetrics holds the OpenTelemetry instruments for sync runs
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	itemsWritten metric.Int64Counter
	activeSyncs  metric.Int64UpDownCounter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"catalog_cache_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	itemsWritten, err := meter.Int64Counter(
		"catalog_cache_sync_items_total",
		metric.WithDescription("Number of catalog items written by sync runs"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	activeSyncs, err := meter.Int64UpDownCounter(
		"catalog_cache_active_syncs",
		metric.WithDescription("Number of sync runs currently in progress"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		itemsWritten: itemsWritten,
		activeSyncs:  activeSyncs,
	}, nil
}

// RecordSyncDuration records the duration and outcome of a finished run
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, profileID string, full bool, outcome string, d time.Duration) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("profile", profileID),
		attribute.Bool("full", full),
		attribute.String("outcome", outcome),
	))
}

// AddItemsWritten counts items applied by one batch
func (m *SyncMetrics) AddItemsWritten(ctx context.Context, profileID, contentType string, n int) {
	if m == nil || m.itemsWritten == nil {
		return
	}

	m.itemsWritten.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("profile", profileID),
		attribute.String("content_type", contentType),
	))
}

// SyncStarted increments the active sync gauge
func (m *SyncMetrics) SyncStarted(ctx context.Context) {
	if m == nil || m.activeSyncs == nil {
		return
	}
	m.activeSyncs.Add(ctx, 1)
}

// SyncFinished decrements the active sync gauge
func (m *SyncMetrics) SyncFinished(ctx context.Context) {
	if m == nil || m.activeSyncs == nil {
		return
	}
	m.activeSyncs.Add(ctx, -1)
}

// QueryMetrics holds the OpenTelemetry instruments for catalog reads
type QueryMetrics struct {
	queryDuration metric.Float64Histogram
}

// NewQueryMetrics creates a new QueryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewQueryMetrics(provider metric.MeterProvider) (*QueryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	queryDuration, err := provider.Meter(QueryMetricsMeterName).Float64Histogram(
		"catalog_cache_query_duration_seconds",
		metric.WithDescription("Duration of catalog list and search queries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.15, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	return &QueryMetrics{queryDuration: queryDuration}, nil
}

// RecordQueryDuration records one query execution
func (m *QueryMetrics) RecordQueryDuration(ctx context.Context, operation string, d time.Duration) {
	if m == nil || m.queryDuration == nil {
		return
	}

	m.queryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
