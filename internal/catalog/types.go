package catalog

import (
	"fmt"
	"strings"
	"time"
)

// ContentType is the kind of a catalog item.
type ContentType string

const (
	// ContentTypeChannel is a live channel
	ContentTypeChannel ContentType = "channel"
	// ContentTypeMovie is an on-demand movie
	ContentTypeMovie ContentType = "movie"
	// ContentTypeSeries is a series owning seasons and episodes
	ContentTypeSeries ContentType = "series"
)

// AllContentTypes returns every content type in sync order.
func AllContentTypes() []ContentType {
	return []ContentType{ContentTypeChannel, ContentTypeMovie, ContentTypeSeries}
}

// ParseContentType parses a content type, accepting the plural forms used in URLs.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "channel", "channels", "live":
		return ContentTypeChannel, nil
	case "movie", "movies", "vod":
		return ContentTypeMovie, nil
	case "series":
		return ContentTypeSeries, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", ErrInvalidQuery, s)
}

// Item is a cached catalog entry. It is identified by (ProfileID, ContentType, ExternalID).
type Item struct {
	ProfileID    string      `json:"profile_id"`
	ContentType  ContentType `json:"content_type"`
	ExternalID   string      `json:"external_id"`
	Name         string      `json:"name"`
	CategoryID   string      `json:"category_id,omitempty"`
	Genre        string      `json:"genre,omitempty"`
	Year         int         `json:"year,omitempty"`
	Rating       float64     `json:"rating,omitempty"`
	Plot         string      `json:"plot,omitempty"`
	Cast         string      `json:"cast,omitempty"`
	Director     string      `json:"director,omitempty"`
	StreamRef    string      `json:"stream_ref,omitempty"`
	ContainerExt string      `json:"container_ext,omitempty"`
	Icon         string      `json:"icon,omitempty"`
	Backdrop     string      `json:"backdrop,omitempty"`
	AddedAt      time.Time   `json:"added_at,omitzero"`
	SyncedAt     time.Time   `json:"synced_at,omitzero"`
}

// Key returns the identity of the item within its profile and content type.
func (i *Item) Key() string {
	return i.ExternalID
}

// Category groups items of one content type.
type Category struct {
	ProfileID   string      `json:"profile_id"`
	ContentType ContentType `json:"content_type"`
	ExternalID  string      `json:"external_id"`
	Name        string      `json:"name"`
	ParentID    string      `json:"parent_id,omitempty"`
}

// Episode is one playable episode of a series season.
type Episode struct {
	ExternalID   string `json:"external_id"`
	Number       int    `json:"number"`
	Title        string `json:"title"`
	Plot         string `json:"plot,omitempty"`
	DurationSecs int    `json:"duration_secs"`
	StreamRef    string `json:"stream_ref,omitempty"`
	ContainerExt string `json:"container_ext,omitempty"`
}

// Season is an ordered group of episodes.
type Season struct {
	Number   int       `json:"number"`
	Name     string    `json:"name"`
	Overview string    `json:"overview,omitempty"`
	AirDate  string    `json:"air_date,omitempty"`
	Episodes []Episode `json:"episodes"`
}

// ItemDetail is an item together with its lazily fetched seasons.
type ItemDetail struct {
	Item
	Seasons          []Season   `json:"seasons,omitempty"`
	DetailsFetchedAt *time.Time `json:"details_fetched_at,omitempty"`
}

// Credentials authenticate a profile against its provider.
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// Complete reports whether both username and password are present.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// Profile is one remote catalog source.
type Profile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	ProviderURL string      `json:"provider_url"`
	Credentials Credentials `json:"-"`
}
