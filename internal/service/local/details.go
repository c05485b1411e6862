package local

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
	"github.com/stacklok/catalog-cache/internal/service"
)

// GetItemDetails returns a cached item. Series seasons are fetched from the
// provider when they were never fetched or are older than the details TTL;
// concurrent requests for the same series share one fetch. When the fetch
// fails the cached item is returned as is.
func (s *localService) GetItemDetails(
	ctx context.Context, profileID, rawType, externalID string,
) (*catalog.ItemDetail, error) {
	profile, err := s.profile(profileID)
	if err != nil {
		return nil, err
	}
	ct, err := contentType(rawType)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "service.GetItemDetails", otel.Catalog(profileID, string(ct))...)
	defer span.End()

	cached, err := s.store.GetItemDetail(ctx, profileID, ct, externalID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, service.Translate(err)
	}
	if ct != catalog.ContentTypeSeries || s.fresh(cached) {
		return cached, nil
	}

	key := fmt.Sprintf("%s/%s/%s", profileID, ct, externalID)
	v, err, shared := s.details.Do(key, func() (any, error) {
		// the fetch is shared, so one caller going away must not cancel it
		return s.refreshDetail(context.WithoutCancel(ctx), profile, ct, externalID)
	})
	if err != nil {
		slog.Warn("Serving cached item without fresh details",
			"profile", profileID,
			"content_type", ct,
			"item", externalID,
			"error", err)
		return cached, nil
	}
	if shared {
		slog.Debug("Shared series detail fetch", "profile", profileID, "item", externalID)
	}
	return v.(*catalog.ItemDetail), nil
}

func (s *localService) fresh(d *catalog.ItemDetail) bool {
	return d.DetailsFetchedAt != nil && s.now().Sub(*d.DetailsFetchedAt) < s.detailsTTL
}

func (s *localService) refreshDetail(
	ctx context.Context, profile *catalog.Profile, ct catalog.ContentType, externalID string,
) (*catalog.ItemDetail, error) {
	// a flight that finished just before this one may have refreshed it
	if current, err := s.store.GetItemDetail(ctx, profile.ID, ct, externalID); err == nil && s.fresh(current) {
		return current, nil
	}

	fetched, err := s.fetcher.FetchDetail(ctx, profile, ct, externalID)
	if err != nil {
		return nil, err
	}
	fetched.ExternalID = externalID
	if err := s.store.SaveSeriesDetail(ctx, profile.ID, ct, fetched); err != nil {
		return nil, err
	}
	return s.store.GetItemDetail(ctx, profile.ID, ct, externalID)
}
