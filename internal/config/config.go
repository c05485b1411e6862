// Package config provides configuration loading and management for the catalog cache.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the service.
const EnvPrefix = "CATALOG_CACHE"

const (
	// DefaultDatabasePath is where the cache lives when no path is configured
	DefaultDatabasePath = "catalog-cache.db"
	// DefaultCheckInterval is how often the scheduler evaluates profiles
	DefaultCheckInterval = 5 * time.Minute
	// DefaultCheckJitter is the random spread added to each scheduler tick
	DefaultCheckJitter = 30 * time.Second
	// DefaultPageTimeout bounds a single page fetch
	DefaultPageTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of attempts per page
	DefaultMaxRetries = 4
	// DefaultInitialBackoff is the first retry delay
	DefaultInitialBackoff = time.Second
	// DefaultMaxBackoff caps the retry delay
	DefaultMaxBackoff = 30 * time.Second
	// DefaultProgressRetention is how long terminal progress stays readable
	DefaultProgressRetention = 30 * time.Second
	// DefaultMaxLimit is the largest page size a query may request
	DefaultMaxLimit = 200
	// DefaultLimit is the page size used when none is requested
	DefaultLimit = 50
	// DefaultSearchLimit bounds the number of search matches
	DefaultSearchLimit = 1000
	// DefaultSlowQueryThreshold flags queries slower than this
	DefaultSlowQueryThreshold = 150 * time.Millisecond
	// DefaultDetailsTTL is how long fetched series details are reused
	DefaultDetailsTTL = 24 * time.Hour
	// DefaultRequestsPerSecond limits calls to one provider
	DefaultRequestsPerSecond = 5.0
)

var profileIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath sets the path of the YAML configuration file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config is the root configuration of the catalog cache.
type Config struct {
	Database  DatabaseConfig    `yaml:"database"`
	Sync      SyncConfig        `yaml:"sync"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Query     QueryConfig       `yaml:"query"`
	Details   DetailsConfig     `yaml:"details"`
	Profiles  []ProfileConfig   `yaml:"profiles"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// DatabaseConfig locates the SQLite cache file.
type DatabaseConfig struct {
	// Path is the database file; created on first start
	Path string `yaml:"path"`

	// MaxOpenConns caps the connection pool; readers run in parallel under WAL
	MaxOpenConns int `yaml:"maxOpenConns,omitempty"`

	// BusyTimeout is how long a writer waits for the write lock
	BusyTimeout string `yaml:"busyTimeout,omitempty"`
}

// SyncConfig tunes the sync orchestrator.
type SyncConfig struct {
	PageTimeout       string   `yaml:"pageTimeout,omitempty"`
	MaxRetries        uint     `yaml:"maxRetries,omitempty"`
	InitialBackoff    string   `yaml:"initialBackoff,omitempty"`
	MaxBackoff        string   `yaml:"maxBackoff,omitempty"`
	ProgressRetention string   `yaml:"progressRetention,omitempty"`
	ContentTypes      []string `yaml:"contentTypes,omitempty"`
}

// SchedulerConfig tunes the background scheduler.
type SchedulerConfig struct {
	// Enabled defaults to true when omitted
	Enabled       *bool  `yaml:"enabled,omitempty"`
	CheckInterval string `yaml:"checkInterval,omitempty"`
	Jitter        string `yaml:"jitter,omitempty"`

	// MeteredNetwork classifies the host network; wifi-only profiles are skipped when true
	MeteredNetwork bool `yaml:"meteredNetwork,omitempty"`
}

// QueryConfig tunes the query layer.
type QueryConfig struct {
	MaxLimit           int    `yaml:"maxLimit,omitempty"`
	DefaultLimit       int    `yaml:"defaultLimit,omitempty"`
	SearchLimit        int    `yaml:"searchLimit,omitempty"`
	SlowQueryThreshold string `yaml:"slowQueryThreshold,omitempty"`
}

// DetailsConfig tunes lazy series detail fetching.
type DetailsConfig struct {
	TTL string `yaml:"ttl,omitempty"`
}

// ProfileConfig declares one provider account.
type ProfileConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name,omitempty"`
	Provider ProviderConfig `yaml:"provider"`
}

// ProviderConfig describes how to reach a provider.
type ProviderConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`

	// PasswordFile is the path to a file containing the password.
	// If not set, CATALOG_CACHE_PROFILE_<ID>_PASSWORD is consulted.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	UserAgent         string  `yaml:"userAgent,omitempty"`
}

// LoadConfig loads and validates the configuration.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	durations := map[string]string{
		"database.busyTimeout":     c.Database.BusyTimeout,
		"sync.pageTimeout":         c.Sync.PageTimeout,
		"sync.initialBackoff":      c.Sync.InitialBackoff,
		"sync.maxBackoff":          c.Sync.MaxBackoff,
		"sync.progressRetention":   c.Sync.ProgressRetention,
		"scheduler.checkInterval":  c.Scheduler.CheckInterval,
		"scheduler.jitter":         c.Scheduler.Jitter,
		"query.slowQueryThreshold": c.Query.SlowQueryThreshold,
		"details.ttl":              c.Details.TTL,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", field, value, err))
			continue
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s: must not be negative", field))
		}
	}

	if c.Query.MaxLimit < 0 || c.Query.DefaultLimit < 0 || c.Query.SearchLimit < 0 {
		errs = append(errs, fmt.Errorf("query: limits must not be negative"))
	}

	for _, ct := range c.Sync.ContentTypes {
		if _, err := catalog.ParseContentType(ct); err != nil {
			errs = append(errs, fmt.Errorf("sync.contentTypes: %w", err))
		}
	}

	profileIDs := make(map[string]bool)
	for i, p := range c.Profiles {
		if !profileIDPattern.MatchString(p.ID) {
			errs = append(errs, fmt.Errorf("profiles[%d]: id %q must be lowercase alphanumeric with - or _", i, p.ID))
			continue
		}
		if profileIDs[p.ID] {
			errs = append(errs, fmt.Errorf("profiles[%d]: duplicate profile id '%s'", i, p.ID))
		}
		profileIDs[p.ID] = true

		if p.Provider.URL == "" {
			errs = append(errs, fmt.Errorf("profiles[%d]: provider.url is required", i))
		} else if u, err := url.Parse(p.Provider.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("profiles[%d]: provider.url %q is not an absolute URL", i, p.Provider.URL))
		}
		if p.Provider.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Errorf("profiles[%d]: provider.requestsPerSecond must not be negative", i))
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// GetPath returns the database file path.
func (d *DatabaseConfig) GetPath() string {
	if d.Path == "" {
		return DefaultDatabasePath
	}
	return d.Path
}

// GetBusyTimeout returns how long a writer waits for the database lock.
func (d *DatabaseConfig) GetBusyTimeout() time.Duration {
	return parseDurationOr(d.BusyTimeout, 5*time.Second)
}

// GetPageTimeout returns the per-page fetch timeout.
func (s *SyncConfig) GetPageTimeout() time.Duration {
	return parseDurationOr(s.PageTimeout, DefaultPageTimeout)
}

// GetMaxRetries returns the number of fetch attempts per page.
func (s *SyncConfig) GetMaxRetries() uint {
	if s.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// GetInitialBackoff returns the first retry delay.
func (s *SyncConfig) GetInitialBackoff() time.Duration {
	return parseDurationOr(s.InitialBackoff, DefaultInitialBackoff)
}

// GetMaxBackoff returns the retry delay cap.
func (s *SyncConfig) GetMaxBackoff() time.Duration {
	return parseDurationOr(s.MaxBackoff, DefaultMaxBackoff)
}

// GetProgressRetention returns how long terminal progress stays readable.
func (s *SyncConfig) GetProgressRetention() time.Duration {
	return parseDurationOr(s.ProgressRetention, DefaultProgressRetention)
}

// GetContentTypes returns the content types to sync, in order.
func (s *SyncConfig) GetContentTypes() []catalog.ContentType {
	if len(s.ContentTypes) == 0 {
		return catalog.AllContentTypes()
	}
	types := make([]catalog.ContentType, 0, len(s.ContentTypes))
	for _, raw := range s.ContentTypes {
		// validated at load time
		ct, _ := catalog.ParseContentType(raw)
		types = append(types, ct)
	}
	return types
}

// IsEnabled reports whether the background scheduler runs.
func (s *SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GetCheckInterval returns the scheduler tick interval.
func (s *SchedulerConfig) GetCheckInterval() time.Duration {
	return parseDurationOr(s.CheckInterval, DefaultCheckInterval)
}

// GetJitter returns the random spread applied to each tick.
func (s *SchedulerConfig) GetJitter() time.Duration {
	return parseDurationOr(s.Jitter, DefaultCheckJitter)
}

// GetMaxLimit returns the page size clamp.
func (q *QueryConfig) GetMaxLimit() int {
	if q.MaxLimit == 0 {
		return DefaultMaxLimit
	}
	return q.MaxLimit
}

// GetDefaultLimit returns the page size used when none is requested.
func (q *QueryConfig) GetDefaultLimit() int {
	if q.DefaultLimit == 0 {
		return DefaultLimit
	}
	return q.DefaultLimit
}

// GetSearchLimit returns the cap on search matches.
func (q *QueryConfig) GetSearchLimit() int {
	if q.SearchLimit == 0 {
		return DefaultSearchLimit
	}
	return q.SearchLimit
}

// GetSlowQueryThreshold returns the slow query logging threshold.
func (q *QueryConfig) GetSlowQueryThreshold() time.Duration {
	return parseDurationOr(q.SlowQueryThreshold, DefaultSlowQueryThreshold)
}

// GetTTL returns how long fetched series details are reused.
func (d *DetailsConfig) GetTTL() time.Duration {
	return parseDurationOr(d.TTL, DefaultDetailsTTL)
}

// GetName returns the display name, falling back to the id.
func (p *ProfileConfig) GetName() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

// PasswordEnvVar returns the environment variable consulted for the profile password.
func (p *ProfileConfig) PasswordEnvVar() string {
	id := strings.ToUpper(strings.NewReplacer("-", "_").Replace(p.ID))
	return fmt.Sprintf("%s_PROFILE_%s_PASSWORD", EnvPrefix, id)
}

// GetPassword resolves the provider password. An unset password is not an
// error here; syncing such a profile fails with missing credentials.
func (p *ProfileConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if p.Provider.PasswordFile != "" {
		cleanPath := filepath.Clean(p.Provider.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", p.Provider.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	// Priority 2: Check environment variable
	return os.Getenv(p.PasswordEnvVar()), nil
}

// GetRequestsPerSecond returns the provider request rate limit.
func (p *ProviderConfig) GetRequestsPerSecond() float64 {
	if p.RequestsPerSecond == 0 {
		return DefaultRequestsPerSecond
	}
	return p.RequestsPerSecond
}

// ToProfile resolves the profile with its credentials.
func (p *ProfileConfig) ToProfile() (*catalog.Profile, error) {
	password, err := p.GetPassword()
	if err != nil {
		return nil, err
	}
	return &catalog.Profile{
		ID:          p.ID,
		Name:        p.GetName(),
		ProviderURL: strings.TrimRight(p.Provider.URL, "/"),
		Credentials: catalog.Credentials{
			Username: p.Provider.Username,
			Password: password,
		},
	}, nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
