package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/httpclient"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=types.go Fetcher

// Fetcher retrieves catalog data from a remote provider.
type Fetcher interface {
	// FetchCategories returns the categories of a content type.
	FetchCategories(ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType) ([]catalog.Category, error)

	// FetchPage returns one page of items. Pages are numbered from zero.
	FetchPage(
		ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType, req PageRequest,
	) (*Page, error)

	// FetchDetail returns a series with its seasons and episodes.
	FetchDetail(
		ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType, externalID string,
	) (*catalog.ItemDetail, error)
}

// PageRequest selects one page of a content type.
type PageRequest struct {
	// Cursor is the highest "added" timestamp already cached. Zero fetches everything.
	Cursor int64
	Page   int
}

// Page is one page of fetched items.
type Page struct {
	Items    []catalog.Item
	HasMore  bool
	NextPage int
	// Total is the number of pages, when known.
	Total int
	// Skipped counts records dropped for missing ids or names.
	Skipped int
}

// classify maps transport errors onto the catalog error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, catalog.ErrRemoteAuth) || errors.Is(err, catalog.ErrNetwork) {
		return err
	}
	if httpclient.IsUnauthorized(err) {
		return fmt.Errorf("%w: %s: %w", catalog.ErrRemoteAuth, op, err)
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrNetwork, op, err)
}
