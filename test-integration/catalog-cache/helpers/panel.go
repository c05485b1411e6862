// Package helpers provides a fake Xtream panel and a server harness for the
// integration suite.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Movie is a VOD stream served by the fake panel
type Movie struct {
	ID       int
	Name     string
	Category string
	Genre    string
	Year     int
	Rating   float64
	Added    int64
}

// Series is a series served by the fake panel, with its episodes per season
type Series struct {
	ID           int
	Name         string
	Category     string
	LastModified int64
	Episodes     map[int][]string
}

// Channel is a live stream served by the fake panel
type Channel struct {
	ID       int
	Name     string
	Category string
}

type category struct {
	ID   string `json:"category_id"`
	Name string `json:"category_name"`
}

// MockPanel is a fake Xtream-Codes panel. Its catalog can change between syncs.
type MockPanel struct {
	*httptest.Server

	username string
	password string

	mu                 sync.Mutex
	categories         map[string][]category
	movies             []Movie
	series             []Series
	channels           []Channel
	seriesInfoRequests int
}

// MockPanelBuilder provides a fluent interface for building fake panels
type MockPanelBuilder struct {
	panel *MockPanel
}

// NewMockPanelBuilder creates a builder for a panel accepting the given credentials
func NewMockPanelBuilder(username, password string) *MockPanelBuilder {
	return &MockPanelBuilder{panel: &MockPanel{
		username:   username,
		password:   password,
		categories: make(map[string][]category),
	}}
}

// WithCategory adds a category; kind is "live", "vod" or "series"
func (b *MockPanelBuilder) WithCategory(kind, id, name string) *MockPanelBuilder {
	b.panel.categories[kind] = append(b.panel.categories[kind], category{ID: id, Name: name})
	return b
}

// WithMovies adds VOD streams
func (b *MockPanelBuilder) WithMovies(movies ...Movie) *MockPanelBuilder {
	b.panel.movies = append(b.panel.movies, movies...)
	return b
}

// WithSeries adds series
func (b *MockPanelBuilder) WithSeries(series ...Series) *MockPanelBuilder {
	b.panel.series = append(b.panel.series, series...)
	return b
}

// WithChannels adds live streams
func (b *MockPanelBuilder) WithChannels(channels ...Channel) *MockPanelBuilder {
	b.panel.channels = append(b.panel.channels, channels...)
	return b
}

// Build starts the panel
func (b *MockPanelBuilder) Build() *MockPanel {
	p := b.panel
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

// AddMovie publishes another VOD stream
func (p *MockPanel) AddMovie(m Movie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.movies = append(p.movies, m)
}

// RemoveMovie withdraws a VOD stream
func (p *MockPanel) RemoveMovie(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.movies[:0]
	for _, m := range p.movies {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	p.movies = kept
}

// SeriesInfoRequests returns how many series detail requests were served
func (p *MockPanel) SeriesInfoRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seriesInfoRequests
}

func (p *MockPanel) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.URL.Path != "/player_api.php" {
		http.NotFound(w, r)
		return
	}
	if q.Get("username") != p.username || q.Get("password") != p.password {
		writeJSON(w, map[string]any{"user_info": map[string]any{"auth": 0}})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	categoryID := q.Get("category_id")
	switch q.Get("action") {
	case "get_live_categories":
		writeJSON(w, p.listCategories("live"))
	case "get_vod_categories":
		writeJSON(w, p.listCategories("vod"))
	case "get_series_categories":
		writeJSON(w, p.listCategories("series"))
	case "get_live_streams":
		out := []map[string]any{}
		for _, c := range p.channels {
			if categoryID == "" || c.Category == categoryID {
				out = append(out, map[string]any{
					"stream_id": c.ID, "name": c.Name, "category_id": c.Category, "added": "1700000000",
				})
			}
		}
		writeJSON(w, out)
	case "get_vod_streams":
		out := []map[string]any{}
		for _, m := range p.movies {
			if categoryID == "" || m.Category == categoryID {
				out = append(out, map[string]any{
					"stream_id":           m.ID,
					"name":                m.Name,
					"category_id":         m.Category,
					"genre":               m.Genre,
					"year":                strconv.Itoa(m.Year),
					"rating":              strconv.FormatFloat(m.Rating, 'f', 1, 64),
					"added":               strconv.FormatInt(m.Added, 10),
					"container_extension": "mkv",
				})
			}
		}
		writeJSON(w, out)
	case "get_series":
		out := []map[string]any{}
		for _, s := range p.series {
			if categoryID == "" || s.Category == categoryID {
				out = append(out, map[string]any{
					"series_id":     s.ID,
					"name":          s.Name,
					"category_id":   s.Category,
					"last_modified": strconv.FormatInt(s.LastModified, 10),
				})
			}
		}
		writeJSON(w, out)
	case "get_series_info":
		p.seriesInfoRequests++
		id, _ := strconv.Atoi(q.Get("series_id"))
		for _, s := range p.series {
			if s.ID == id {
				writeJSON(w, seriesInfo(s))
				return
			}
		}
		writeJSON(w, map[string]any{"seasons": []any{}, "info": map[string]any{}, "episodes": []any{}})
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (p *MockPanel) listCategories(kind string) []category {
	if cats := p.categories[kind]; cats != nil {
		return cats
	}
	return []category{}
}

func seriesInfo(s Series) map[string]any {
	seasons := []map[string]any{}
	episodes := map[string][]map[string]any{}
	for season, titles := range s.Episodes {
		key := strconv.Itoa(season)
		seasons = append(seasons, map[string]any{"season_number": season, "name": "Season " + key})
		for i, title := range titles {
			episodes[key] = append(episodes[key], map[string]any{
				"id":                  strconv.Itoa(s.ID*1000 + season*100 + i + 1),
				"episode_num":         i + 1,
				"title":               title,
				"season":              season,
				"container_extension": "mp4",
				"info":                map[string]any{"duration_secs": 3000},
			})
		}
	}
	return map[string]any{
		"seasons":  seasons,
		"info":     map[string]any{"name": s.Name, "category_id": s.Category},
		"episodes": episodes,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
