package v1

import "github.com/stacklok/catalog-cache/internal/catalog"

// CategoriesResponse lists the cached categories of one content type
type CategoriesResponse struct {
	ContentType catalog.ContentType `json:"content_type"`
	Categories  []catalog.Category  `json:"categories"`
}

// ProfilesResponse lists the configured profiles
type ProfilesResponse struct {
	Profiles []*catalog.Profile `json:"profiles"`
}
