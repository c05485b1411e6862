package sources

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/httpclient"
)

const playerAPIPath = "/player_api.php"

// ClientFactory returns the HTTP client used for one profile.
type ClientFactory func(profile *catalog.Profile) httpclient.Client

// XtreamOption configures an XtreamFetcher.
type XtreamOption func(*XtreamFetcher)

// WithClient uses one HTTP client for every profile.
func WithClient(c httpclient.Client) XtreamOption {
	return func(f *XtreamFetcher) {
		f.newClient = func(*catalog.Profile) httpclient.Client { return c }
	}
}

// WithClientFactory builds a client per profile, e.g. to give each profile
// its own rate limit.
func WithClientFactory(factory ClientFactory) XtreamOption {
	return func(f *XtreamFetcher) {
		f.newClient = factory
	}
}

type categoryKey struct {
	profileID   string
	contentType catalog.ContentType
}

// XtreamFetcher implements Fetcher against Xtream-Codes panels.
type XtreamFetcher struct {
	newClient ClientFactory

	mu         sync.Mutex
	clients    map[string]httpclient.Client
	categories map[categoryKey][]catalog.Category
}

var _ Fetcher = (*XtreamFetcher)(nil)

// NewXtreamFetcher creates a fetcher. Without options every profile shares a
// default client.
func NewXtreamFetcher(opts ...XtreamOption) *XtreamFetcher {
	f := &XtreamFetcher{
		clients:    make(map[string]httpclient.Client),
		categories: make(map[categoryKey][]catalog.Category),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.newClient == nil {
		shared := httpclient.NewDefaultClient(0)
		f.newClient = func(*catalog.Profile) httpclient.Client { return shared }
	}
	return f
}

func (f *XtreamFetcher) client(profile *catalog.Profile) httpclient.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[profile.ID]
	if !ok {
		c = f.newClient(profile)
		f.clients[profile.ID] = c
	}
	return c
}

func actionsFor(contentType catalog.ContentType) (categories, streams string, err error) {
	switch contentType {
	case catalog.ContentTypeChannel:
		return "get_live_categories", "get_live_streams", nil
	case catalog.ContentTypeMovie:
		return "get_vod_categories", "get_vod_streams", nil
	case catalog.ContentTypeSeries:
		return "get_series_categories", "get_series", nil
	}
	return "", "", fmt.Errorf("%w: unknown content type %q", catalog.ErrInvalidQuery, contentType)
}

func apiURL(profile *catalog.Profile, action string, params ...string) string {
	q := url.Values{}
	q.Set("username", profile.Credentials.Username)
	q.Set("password", profile.Credentials.Password)
	if action != "" {
		q.Set("action", action)
	}
	for i := 0; i+1 < len(params); i += 2 {
		q.Set(params[i], params[i+1])
	}
	return strings.TrimSuffix(profile.ProviderURL, "/") + playerAPIPath + "?" + q.Encode()
}

func (f *XtreamFetcher) get(ctx context.Context, profile *catalog.Profile, op, action string, params ...string) ([]byte, error) {
	if !profile.Credentials.Complete() {
		return nil, fmt.Errorf("%w: profile %s", catalog.ErrCredentialsMissing, profile.ID)
	}
	body, err := f.client(profile).Get(ctx, apiURL(profile, action, params...))
	if err != nil {
		return nil, classify(op, err)
	}
	if err := checkAuth(body); err != nil {
		return nil, fmt.Errorf("%w: %s", err, op)
	}
	return body, nil
}

// checkAuth detects panels that answer 200 with {"user_info":{"auth":0}}
// instead of the requested list.
func checkAuth(body []byte) error {
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var info userInfoRaw
	if err := json.Unmarshal(body, &info); err != nil {
		return nil
	}
	if info.UserInfo.Auth != "" && info.UserInfo.Auth.Int() == 0 {
		return catalog.ErrRemoteAuth
	}
	return nil
}

// FetchCategories returns the categories of a content type and remembers them
// as the page plan of later FetchPage calls.
func (f *XtreamFetcher) FetchCategories(
	ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType,
) ([]catalog.Category, error) {
	action, _, err := actionsFor(contentType)
	if err != nil {
		return nil, err
	}

	body, err := f.get(ctx, profile, action, action)
	if err != nil {
		return nil, err
	}

	var raw []categoryRaw
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response: %w", catalog.ErrNetwork, action, err)
	}

	categories := make([]catalog.Category, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		id := r.CategoryID.String()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		parent := r.ParentID.String()
		if parent == "0" {
			parent = ""
		}
		categories = append(categories, catalog.Category{
			ProfileID:   profile.ID,
			ContentType: contentType,
			ExternalID:  id,
			Name:        strings.TrimSpace(r.CategoryName),
			ParentID:    parent,
		})
	}

	f.mu.Lock()
	f.categories[categoryKey{profile.ID, contentType}] = categories
	f.mu.Unlock()

	slog.Debug("Fetched categories",
		"profile", profile.ID,
		"content_type", contentType,
		"count", len(categories))
	return categories, nil
}

func (f *XtreamFetcher) pagePlan(
	ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType,
) ([]catalog.Category, error) {
	f.mu.Lock()
	categories, ok := f.categories[categoryKey{profile.ID, contentType}]
	f.mu.Unlock()
	if ok {
		return categories, nil
	}
	return f.FetchCategories(ctx, profile, contentType)
}

// FetchPage returns the streams of the req.Page-th category. A provider
// without categories is served as a single page from the unfiltered list.
func (f *XtreamFetcher) FetchPage(
	ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType, req PageRequest,
) (*Page, error) {
	_, action, err := actionsFor(contentType)
	if err != nil {
		return nil, err
	}
	if req.Page < 0 {
		return nil, fmt.Errorf("%w: negative page %d", catalog.ErrInvalidQuery, req.Page)
	}

	categories, err := f.pagePlan(ctx, profile, contentType)
	if err != nil {
		return nil, err
	}

	var (
		params []string
		total  = max(len(categories), 1)
	)
	if len(categories) > 0 {
		if req.Page >= len(categories) {
			return &Page{Items: []catalog.Item{}, Total: total}, nil
		}
		params = []string{"category_id", categories[req.Page].ExternalID}
	} else if req.Page > 0 {
		return &Page{Items: []catalog.Item{}, Total: total}, nil
	}

	body, err := f.get(ctx, profile, action, action, params...)
	if err != nil {
		return nil, err
	}

	items, skipped, err := decodeItems(body, profile.ID, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response: %w", catalog.ErrNetwork, action, err)
	}

	if req.Cursor > 0 {
		items = slices.DeleteFunc(items, func(item catalog.Item) bool {
			return item.AddedAt.Unix() <= req.Cursor
		})
	}

	page := &Page{
		Items:   items,
		HasMore: req.Page+1 < total,
		Total:   total,
		Skipped: skipped,
	}
	if page.HasMore {
		page.NextPage = req.Page + 1
	}
	return page, nil
}

func decodeItems(body []byte, profileID string, contentType catalog.ContentType) ([]catalog.Item, int, error) {
	var (
		items   []catalog.Item
		skipped int
	)
	keep := func(item catalog.Item) {
		if item.ExternalID == "" || item.Name == "" {
			skipped++
			return
		}
		item.ProfileID = profileID
		item.ContentType = contentType
		items = append(items, item)
	}

	switch contentType {
	case catalog.ContentTypeChannel:
		var raw []liveStreamRaw
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, 0, err
		}
		for _, r := range raw {
			keep(liveItem(r))
		}
	case catalog.ContentTypeMovie:
		var raw []vodStreamRaw
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, 0, err
		}
		for _, r := range raw {
			keep(movieItem(r))
		}
	case catalog.ContentTypeSeries:
		var raw []seriesRaw
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, 0, err
		}
		for _, r := range raw {
			keep(seriesItem(r))
		}
	}
	if items == nil {
		items = []catalog.Item{}
	}
	return items, skipped, nil
}

func liveItem(r liveStreamRaw) catalog.Item {
	id := r.StreamID.String()
	return catalog.Item{
		ExternalID: id,
		Name:       strings.TrimSpace(r.Name),
		CategoryID: r.CategoryID.String(),
		StreamRef:  streamRef("live", id, "ts"),
		Icon:       r.StreamIcon,
		AddedAt:    unixTime(r.Added.Int()),
	}
}

func movieItem(r vodStreamRaw) catalog.Item {
	id := r.StreamID.String()
	ext := strings.TrimPrefix(r.Container, ".")
	if ext == "" {
		ext = "mp4"
	}
	return catalog.Item{
		ExternalID:   id,
		Name:         strings.TrimSpace(r.Name),
		CategoryID:   r.CategoryID.String(),
		Genre:        r.Genre,
		Year:         parseYear(r.Year.String()),
		Rating:       rating(r.Rating, r.Rating5Based),
		Plot:         r.Plot,
		Cast:         r.Cast,
		Director:     r.Director,
		StreamRef:    streamRef("movie", id, ext),
		ContainerExt: ext,
		Icon:         r.StreamIcon,
		AddedAt:      unixTime(r.Added.Int()),
	}
}

func seriesItem(r seriesRaw) catalog.Item {
	id := r.SeriesID.String()
	return catalog.Item{
		ExternalID: id,
		Name:       strings.TrimSpace(r.Name),
		CategoryID: r.CategoryID.String(),
		Genre:      r.Genre,
		Year:       parseYear(r.ReleaseDate.String()),
		Rating:     rating(r.Rating, r.Rating5Based),
		Plot:       r.Plot,
		Cast:       r.Cast,
		Director:   r.Director,
		StreamRef:  streamRef("series", id, ""),
		Icon:       r.Cover,
		Backdrop:   r.Backdrop.first(),
		// series carry no "added"; last_modified moves when episodes are added
		AddedAt: unixTime(r.LastModified.Int()),
	}
}

// FetchDetail returns a series with its seasons and episodes ordered by number.
func (f *XtreamFetcher) FetchDetail(
	ctx context.Context, profile *catalog.Profile, contentType catalog.ContentType, externalID string,
) (*catalog.ItemDetail, error) {
	if contentType != catalog.ContentTypeSeries {
		return nil, fmt.Errorf("%w: details are only available for series", catalog.ErrInvalidQuery)
	}

	body, err := f.get(ctx, profile, "get_series_info", "get_series_info", "series_id", externalID)
	if err != nil {
		return nil, err
	}

	var raw seriesInfoRaw
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: get_series_info: malformed response: %w", catalog.ErrNetwork, err)
	}
	episodes, err := decodeEpisodes(raw.Episodes)
	if err != nil {
		return nil, fmt.Errorf("%w: get_series_info: malformed episodes: %w", catalog.ErrNetwork, err)
	}

	raw.Info.SeriesID = flexString(externalID)
	item := seriesItem(raw.Info)
	item.ProfileID = profile.ID
	item.ContentType = contentType

	detail := &catalog.ItemDetail{
		Item:    item,
		Seasons: buildSeasons(raw.Seasons, episodes),
	}
	return detail, nil
}

func buildSeasons(seasons []seasonRaw, episodes []episodeRaw) []catalog.Season {
	byNumber := make(map[int]*catalog.Season)
	season := func(n int) *catalog.Season {
		s, ok := byNumber[n]
		if !ok {
			s = &catalog.Season{Number: n, Name: fmt.Sprintf("Season %d", n), Episodes: []catalog.Episode{}}
			byNumber[n] = s
		}
		return s
	}

	for _, r := range seasons {
		s := season(int(r.SeasonNumber.Int()))
		if name := strings.TrimSpace(r.Name); name != "" {
			s.Name = name
		}
		s.Overview = r.Overview
		s.AirDate = r.AirDate
	}

	for _, r := range episodes {
		id := r.ID.String()
		if id == "" {
			continue
		}
		ext := strings.TrimPrefix(r.Container, ".")
		s := season(int(r.Season.Int()))
		s.Episodes = append(s.Episodes, catalog.Episode{
			ExternalID:   id,
			Number:       int(r.EpisodeNum.Int()),
			Title:        strings.TrimSpace(r.Title),
			Plot:         r.Info.Plot,
			DurationSecs: int(r.Info.DurationSecs.Int()),
			StreamRef:    streamRef("series", id, ext),
			ContainerExt: ext,
		})
	}

	out := make([]catalog.Season, 0, len(byNumber))
	for _, s := range byNumber {
		slices.SortStableFunc(s.Episodes, func(a, b catalog.Episode) int {
			return cmp.Compare(a.Number, b.Number)
		})
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b catalog.Season) int {
		return cmp.Compare(a.Number, b.Number)
	})
	return out
}

// streamRef is the credential-free path of a stream below the provider URL.
func streamRef(kind, id, ext string) string {
	if ext == "" {
		return kind + "/" + id
	}
	return kind + "/" + id + "." + ext
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func parseYear(s string) int {
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1870 || y > 2200 {
		return 0
	}
	return y
}

// rating normalises to a 0..10 scale, falling back to the 5-based value.
func rating(tenBased, fiveBased flexString) float64 {
	r := tenBased.Float()
	if r <= 0 {
		r = fiveBased.Float() * 2
	}
	return min(max(r, 0), 10)
}
