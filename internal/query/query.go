// Package query composes filtering, sorting and pagination over the catalog
// cache and its search index. It holds no state besides its configuration.
package query

import (
	"fmt"
	"strings"

	"github.com/stacklok/catalog-cache/internal/catalog"
)

// SortField is one of the closed set of sortable fields.
type SortField string

const (
	// SortRelevance orders search matches by score; only valid with search text
	SortRelevance SortField = "relevance"
	// SortName orders by name, case-insensitively
	SortName SortField = "name"
	// SortYear orders by release year
	SortYear SortField = "year"
	// SortRating orders by rating
	SortRating SortField = "rating"
	// SortDateAdded orders by the provider's "added" timestamp
	SortDateAdded SortField = "date_added"
)

// ParseSortField parses a sort field name.
func ParseSortField(s string) (SortField, error) {
	switch SortField(strings.ToLower(strings.TrimSpace(s))) {
	case SortRelevance:
		return SortRelevance, nil
	case SortName:
		return SortName, nil
	case SortYear:
		return SortYear, nil
	case SortRating:
		return SortRating, nil
	case SortDateAdded, "added", "date-added":
		return SortDateAdded, nil
	}
	return "", fmt.Errorf("%w: unknown sort field %q", catalog.ErrInvalidQuery, s)
}

// Sort is a sort specification.
type Sort struct {
	Field      SortField
	Descending bool
}

// Filter holds the optional predicates of a query, combined with AND.
type Filter struct {
	CategoryID string   `json:"category_id,omitempty"`
	Genre      string   `json:"genre,omitempty"`
	Year       *int     `json:"year,omitempty"`
	MinRating  *float64 `json:"min_rating,omitempty"`
}

// Query is a validated list or search request. Build it with New.
type Query struct {
	ProfileID   string
	ContentType catalog.ContentType
	// Text is the search input; empty for plain listing.
	Text   string
	Filter Filter
	// Sort is nil for the default order.
	Sort   *Sort
	Limit  int
	Offset int
}

// IsSearch reports whether the query carries search text.
func (q *Query) IsSearch() bool {
	return strings.TrimSpace(q.Text) != ""
}

// EffectiveSort returns the sort in force: relevance for searches and name
// ascending for listings unless overridden.
func (q *Query) EffectiveSort() Sort {
	if q.Sort != nil {
		return *q.Sort
	}
	if q.IsSearch() {
		return Sort{Field: SortRelevance}
	}
	return Sort{Field: SortName}
}

// Builder assembles a Query fluently:
//
//	q, err := query.New("home", catalog.ContentTypeMovie).
//		Genre("drama").MinRating(7).
//		SortBy(query.SortYear).Desc().
//		Page(20, 40).
//		Build()
type Builder struct {
	q    Query
	errs []error
}

// New starts a query over one profile and content type.
func New(profileID string, contentType catalog.ContentType) *Builder {
	return &Builder{q: Query{ProfileID: profileID, ContentType: contentType}}
}

// Search sets the search text.
func (b *Builder) Search(text string) *Builder {
	b.q.Text = text
	return b
}

// Category restricts results to one category id.
func (b *Builder) Category(id string) *Builder {
	b.q.Filter.CategoryID = strings.TrimSpace(id)
	return b
}

// Genre restricts results to items whose genre contains g.
func (b *Builder) Genre(g string) *Builder {
	b.q.Filter.Genre = strings.TrimSpace(g)
	return b
}

// Year restricts results to one release year.
func (b *Builder) Year(y int) *Builder {
	if y <= 0 {
		b.errs = append(b.errs, fmt.Errorf("year must be positive, got %d", y))
	}
	b.q.Filter.Year = &y
	return b
}

// MinRating restricts results to items rated at least r.
func (b *Builder) MinRating(r float64) *Builder {
	if r < 0 || r > 10 {
		b.errs = append(b.errs, fmt.Errorf("min rating must be between 0 and 10, got %g", r))
	}
	b.q.Filter.MinRating = &r
	return b
}

// SortBy sets the sort field, ascending.
func (b *Builder) SortBy(field SortField) *Builder {
	b.q.Sort = &Sort{Field: field}
	return b
}

// Asc sorts ascending.
func (b *Builder) Asc() *Builder {
	b.ensureSort().Descending = false
	return b
}

// Desc sorts descending.
func (b *Builder) Desc() *Builder {
	b.ensureSort().Descending = true
	return b
}

func (b *Builder) ensureSort() *Sort {
	if b.q.Sort == nil {
		s := b.q.EffectiveSort()
		b.q.Sort = &s
	}
	return b.q.Sort
}

// Page sets limit and offset. A zero limit selects the engine default.
func (b *Builder) Page(limit, offset int) *Builder {
	if limit < 0 {
		b.errs = append(b.errs, fmt.Errorf("limit must not be negative, got %d", limit))
	}
	if offset < 0 {
		b.errs = append(b.errs, fmt.Errorf("offset must not be negative, got %d", offset))
	}
	b.q.Limit = limit
	b.q.Offset = offset
	return b
}

// Build validates and returns the query.
func (b *Builder) Build() (Query, error) {
	errs := b.errs
	if b.q.ProfileID == "" {
		errs = append(errs, fmt.Errorf("profile id is required"))
	}
	if ct, err := catalog.ParseContentType(string(b.q.ContentType)); err != nil {
		errs = append(errs, fmt.Errorf("unknown content type %q", b.q.ContentType))
	} else {
		b.q.ContentType = ct
	}
	if b.q.Sort != nil {
		if _, err := ParseSortField(string(b.q.Sort.Field)); err != nil {
			errs = append(errs, fmt.Errorf("unknown sort field %q", b.q.Sort.Field))
		} else if b.q.Sort.Field == SortRelevance && !b.q.IsSearch() {
			errs = append(errs, fmt.Errorf("relevance sort requires search text"))
		}
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return Query{}, fmt.Errorf("%w: %s", catalog.ErrInvalidQuery, strings.Join(msgs, "; "))
	}
	return b.q, nil
}
