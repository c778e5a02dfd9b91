package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file values.
// A double underscore separates nested keys: RACECAL_STORE__DRIVER sets
// store.driver.
const EnvPrefix = "RACECAL_"

const (
	defaultListen           = "127.0.0.1:8080"
	defaultFetchTimeout     = "10s"
	defaultRefresh          = "*/30 * * * *"
	defaultMobileBreakpoint = 768
	defaultLogLevel         = "info"
	defaultStoreDriver      = "file"
	defaultEventsURL        = "events.json"
	defaultClubsURL         = "clubs.json"
	defaultCalendarName     = "racecal"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" koanf:"username"`
	Password string `yaml:"password" json:"password" koanf:"password"`
}

// StoreConfig selects the preference store backend.
type StoreConfig struct {
	// Driver is one of "memory", "file", "sqlite".
	Driver string `yaml:"driver" json:"driver" koanf:"driver"`
	// Path is the file or database location. Relative to the config
	// directory when not absolute.
	Path string `yaml:"path" json:"path" koanf:"path"`
}

// LegacyCookiesConfig points at an exported browser Cookie header from the
// cookie-era site, imported once by `racecal migrate`.
type LegacyCookiesConfig struct {
	File     string `yaml:"file,omitempty" json:"file,omitempty" koanf:"file"`
	Header   string `yaml:"header,omitempty" json:"header,omitempty" koanf:"header"`
	HashKey  string `yaml:"hash_key,omitempty" json:"hash_key,omitempty" koanf:"hash_key"`
	BlockKey string `yaml:"block_key,omitempty" json:"block_key,omitempty" koanf:"block_key"`
}

// ICSConfig bounds recurrence expansion for iCalendar feeds.
type ICSConfig struct {
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days" koanf:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days" koanf:"backfill_days"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen" koanf:"listen"`

	// EventsURL and ClubsURL locate the two collections. Either may be an
	// http(s) URL, a file:// URL or a local path. ClubsURL is optional.
	EventsURL string `yaml:"events_url" json:"events_url" koanf:"events_url"`
	ClubsURL  string `yaml:"clubs_url" json:"clubs_url" koanf:"clubs_url"`

	// FetchTimeout is a Go duration string bounding each request.
	FetchTimeout string `yaml:"fetch_timeout" json:"fetch_timeout" koanf:"fetch_timeout"`

	// CacheDir holds HTTP bodies with their validators. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" koanf:"cache_dir"`

	Store         StoreConfig          `yaml:"store" json:"store" koanf:"store"`
	LegacyCookies *LegacyCookiesConfig `yaml:"legacy_cookies,omitempty" json:"legacy_cookies,omitempty" koanf:"legacy_cookies"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *")
	// used for periodic reloads in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh" koanf:"refresh"`

	// MobileBreakpoint is the viewport width below which the calendar
	// view is replaced by the list.
	MobileBreakpoint int `yaml:"mobile_breakpoint" json:"mobile_breakpoint" koanf:"mobile_breakpoint"`

	LogLevel     string `yaml:"log_level" json:"log_level" koanf:"log_level"`
	CalendarName string `yaml:"calendar_name" json:"calendar_name" koanf:"calendar_name"`

	ICS ICSConfig `yaml:"ics" json:"ics" koanf:"ics"`

	// CORSOrigins lists origins allowed to call the JSON API.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty" koanf:"cors_origins"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" koanf:"basic_auth"`
}

// DefaultPath is $XDG_CONFIG_HOME/racecal/config.yaml, or ./racecal.yaml
// when no user config directory is known.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "racecal.yaml"
	}
	return filepath.Join(dir, "racecal", "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		EventsURL:        defaultEventsURL,
		ClubsURL:         defaultClubsURL,
		FetchTimeout:     defaultFetchTimeout,
		CacheDir:         "cache",
		Store:            StoreConfig{Driver: defaultStoreDriver, Path: "prefs.json"},
		RefreshCron:      defaultRefresh,
		MobileBreakpoint: defaultMobileBreakpoint,
		LogLevel:         defaultLogLevel,
		CalendarName:     defaultCalendarName,
		ICS:              ICSConfig{HorizonDays: 365, BackfillDays: 1},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if strings.TrimSpace(c.EventsURL) == "" {
		c.EventsURL = defaultEventsURL
	}
	if _, err := time.ParseDuration(c.FetchTimeout); err != nil {
		c.FetchTimeout = defaultFetchTimeout
	}
	switch c.Store.Driver {
	case "memory", "file", "sqlite":
	default:
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Path == "" {
		if c.Store.Driver == "sqlite" {
			c.Store.Path = "prefs.db"
		} else {
			c.Store.Path = "prefs.json"
		}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.MobileBreakpoint <= 0 {
		c.MobileBreakpoint = defaultMobileBreakpoint
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.CalendarName == "" {
		c.CalendarName = defaultCalendarName
	}
	if c.ICS.HorizonDays <= 0 {
		c.ICS.HorizonDays = 365
	}
	if c.ICS.BackfillDays < 0 {
		c.ICS.BackfillDays = 1
	}
}

// Timeout is FetchTimeout as a duration.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.FetchTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultFetchTimeout)
	}
	return d
}

// Resolve makes relative store, cache and data paths absolute against dir.
// URLs are left alone.
func (c *Config) Resolve(dir string) {
	c.EventsURL = resolveResource(dir, c.EventsURL)
	c.ClubsURL = resolveResource(dir, c.ClubsURL)
	if c.Store.Path != "" && c.Store.Path != ":memory:" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(dir, c.Store.Path)
	}
	if c.CacheDir != "" && !filepath.IsAbs(c.CacheDir) {
		c.CacheDir = filepath.Join(dir, c.CacheDir)
	}
	if c.LegacyCookies != nil && c.LegacyCookies.File != "" && !filepath.IsAbs(c.LegacyCookies.File) {
		c.LegacyCookies.File = filepath.Join(dir, c.LegacyCookies.File)
	}
}

// resolveResource joins a bare relative path onto dir.
func resolveResource(dir, v string) string {
	if v == "" || strings.Contains(v, "://") || filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(dir, v)
}

// Load loads configuration from the given YAML path, then applies
// RACECAL_* environment overrides.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms first.
//   - Values missing from the file keep their defaults.
//   - Relative paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Normalize()
	cfg.Resolve(filepath.Dir(path))

	return cfg, nil
}

// envKey maps RACECAL_STORE__DRIVER to store.driver.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".racecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
