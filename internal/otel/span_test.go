package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTracer(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestStartSpan_NilTracer(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), nil, "store.upsert_batch")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpan_RecordsAttributes(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracer(t)
	tracer := tp.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "store.upsert_batch",
		append(Catalog("home", "movie"), AttrBatchSize.Int(20))...)
	RecordError(span, errors.New("disk full"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "store.upsert_batch", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "operation failed", spans[0].Status.Description)
	assert.Contains(t, spans[0].Attributes, attribute.String("catalog.profile_id", "home"))
	assert.Contains(t, spans[0].Attributes, attribute.String("catalog.content_type", "movie"))
	assert.Contains(t, spans[0].Attributes, attribute.Int("catalog.batch_size", 20))
}

func TestRecordError_NilSafe(t *testing.T) {
	t.Parallel()

	exporter, tp := newTestTracer(t)
	_, span := tp.Tracer("test").Start(context.Background(), "ok")
	RecordError(span, nil)
	span.End()
	RecordError(nil, errors.New("ignored"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}
