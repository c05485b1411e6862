package service

import (
	"fmt"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/query"
)

// ItemsOptions collects the parameters of ListItems, SearchItems and ExplainQuery.
type ItemsOptions struct {
	ProfileID   string
	ContentType string
	Text        string
	CategoryID  string
	Genre       string
	Year        *int
	MinRating   *float64
	Sort        string
	Descending  bool
	Limit       int
	Offset      int
}

// Option sets one parameter of an items query
type Option func(o *ItemsOptions) error

// WithProfile selects the profile to read from
func WithProfile(profileID string) Option {
	return func(o *ItemsOptions) error {
		if profileID == "" {
			return fmt.Errorf("%w: profile is required", catalog.ErrInvalidQuery)
		}
		o.ProfileID = profileID
		return nil
	}
}

// WithContentType selects the content type; plural forms are accepted
func WithContentType(contentType string) Option {
	return func(o *ItemsOptions) error {
		o.ContentType = contentType
		return nil
	}
}

// WithText sets the search text
func WithText(text string) Option {
	return func(o *ItemsOptions) error {
		o.Text = text
		return nil
	}
}

// WithCategory filters on a category id
func WithCategory(categoryID string) Option {
	return func(o *ItemsOptions) error {
		o.CategoryID = categoryID
		return nil
	}
}

// WithGenre filters on a genre substring
func WithGenre(genre string) Option {
	return func(o *ItemsOptions) error {
		o.Genre = genre
		return nil
	}
}

// WithYear filters on the release year
func WithYear(year int) Option {
	return func(o *ItemsOptions) error {
		o.Year = &year
		return nil
	}
}

// WithMinRating filters on a minimum rating
func WithMinRating(rating float64) Option {
	return func(o *ItemsOptions) error {
		o.MinRating = &rating
		return nil
	}
}

// WithSort sets the sort field and direction
func WithSort(field string, descending bool) Option {
	return func(o *ItemsOptions) error {
		o.Sort = field
		o.Descending = descending
		return nil
	}
}

// WithLimit sets the page size; it is clamped by the query engine
func WithLimit(limit int) Option {
	return func(o *ItemsOptions) error {
		if limit < 0 {
			return fmt.Errorf("%w: limit must not be negative", catalog.ErrInvalidQuery)
		}
		o.Limit = limit
		return nil
	}
}

// WithOffset sets the page offset
func WithOffset(offset int) Option {
	return func(o *ItemsOptions) error {
		if offset < 0 {
			return fmt.Errorf("%w: offset must not be negative", catalog.ErrInvalidQuery)
		}
		o.Offset = offset
		return nil
	}
}

// NewItemsOptions applies opts in order.
func NewItemsOptions(opts ...Option) (*ItemsOptions, error) {
	o := &ItemsOptions{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Query builds the validated query described by the options.
func (o *ItemsOptions) Query() (query.Query, error) {
	b := query.New(o.ProfileID, catalog.ContentType(o.ContentType)).
		Search(o.Text).
		Category(o.CategoryID).
		Genre(o.Genre).
		Page(o.Limit, o.Offset)
	if o.Year != nil {
		b = b.Year(*o.Year)
	}
	if o.MinRating != nil {
		b = b.MinRating(*o.MinRating)
	}
	if field := strings.TrimSpace(o.Sort); field != "" {
		sf, err := query.ParseSortField(field)
		if err != nil {
			return query.Query{}, err
		}
		b = b.SortBy(sf)
	}
	if o.Descending {
		b = b.Desc()
	}
	return b.Build()
}
