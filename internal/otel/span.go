// Package otel provides span helpers shared by the store, query and sync packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used across the catalog cache spans.
const (
	AttrProfileID   = attribute.Key("catalog.profile_id")
	AttrContentType = attribute.Key("catalog.content_type")
	AttrBatchSize   = attribute.Key("catalog.batch_size")
	AttrSyncFull    = attribute.Key("sync.full")
	AttrSyncRunID   = attribute.Key("sync.run_id")
	AttrPageSize    = attribute.Key("pagination.limit")
	AttrPageOffset  = attribute.Key("pagination.offset")
	AttrResultCount = attribute.Key("result.count")
	AttrHasSearch   = attribute.Key("query.has_search")
)

// StartSpan starts a span when tracer is non-nil and otherwise returns the
// span already carried by ctx (a no-op span for a bare context).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	attrs ...attribute.KeyValue,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on span and marks it failed. The status
// description stays generic so SQL text never lands in span status.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// Catalog returns the profile and content type attributes of a catalog operation.
func Catalog(profileID, contentType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProfileID.String(profileID),
		AttrContentType.String(contentType),
	}
}
