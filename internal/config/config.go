package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	appLog "festplan/internal/log"
)

// EnvPrefix is the prefix of environment overrides (FESTPLAN_LISTEN, ...).
const EnvPrefix = "festplan"

const dateLayout = "2006-01-02"

// CatalogConfig selects where the event catalog comes from. With neither
// field set the built-in catalog is used.
type CatalogConfig struct {
	// Path is a YAML catalog file on disk.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// FeedURL is an ICS line-up feed refreshed on the Refresh schedule.
	FeedURL string `yaml:"feed_url,omitempty" json:"feed_url,omitempty"`
}

// CacheConfig describes the offline worker deployment.
type CacheConfig struct {
	// Version names the live cache bucket. Bumping it purges old buckets.
	Version string `yaml:"version" json:"version"`
	// Shell lists the paths cached at install time.
	Shell []string `yaml:"shell" json:"shell"`
	// Fallback is served for navigations when the network is down.
	Fallback string `yaml:"fallback" json:"fallback"`
	// Origin is the upstream that serves the app shell. Empty means the
	// embedded shell.
	Origin string `yaml:"origin,omitempty" json:"origin,omitempty"`
}

// NotificationsConfig styles reminders and sets the permission answer the
// in-process notification center gives when prompted.
type NotificationsConfig struct {
	AppName    string `yaml:"app_name" json:"app_name"`
	Icon       string `yaml:"icon" json:"icon"`
	Vibrate    []int  `yaml:"vibrate" json:"vibrate"`
	Permission string `yaml:"permission" json:"permission"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and offline front.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone of the festival (e.g. "Pacific/Auckland").
	// Reminder times and calendar exports are interpreted in it.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FestivalStart is the date of the first festival day (the Friday),
	// formatted YYYY-MM-DD.
	FestivalStart string `yaml:"festival_start" json:"festival_start"`

	// DataDir holds the SQLite store, cache buckets and feed cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-fetching the catalog feed.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Cache CacheConfig `yaml:"cache" json:"cache"`

	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides are read with envconfig; empty values leave the file
// setting in place.
type envOverrides struct {
	Listen        string `envconfig:"LISTEN"`
	Timezone      string `envconfig:"TIMEZONE"`
	FestivalStart string `envconfig:"FESTIVAL_START"`
	DataDir       string `envconfig:"DATA_DIR"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	CatalogPath   string `envconfig:"CATALOG_PATH"`
	FeedURL       string `envconfig:"FEED_URL"`
	RefreshCron   string `envconfig:"REFRESH"`
	CacheVersion  string `envconfig:"CACHE_VERSION"`
	CacheOrigin   string `envconfig:"CACHE_ORIGIN"`
	Permission    string `envconfig:"NOTIFICATION_PERMISSION"`
	BasicAuthUser string `envconfig:"BASIC_AUTH_USERNAME"`
	BasicAuthPass string `envconfig:"BASIC_AUTH_PASSWORD"`
}

func defaultShell() []string {
	return []string{"/", "/index.html", "/manifest.json", "/icon.svg"}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "Pacific/Auckland",
		FestivalStart: "2025-02-28",
		DataDir:       "./var",
		LogLevel:      "info",
		RefreshCron:   "*/15 * * * *",
		Cache: CacheConfig{
			Version:  "festplan-v1",
			Shell:    defaultShell(),
			Fallback: "/index.html",
		},
		Notifications: NotificationsConfig{
			AppName:    "Festplan",
			Icon:       "/icon.svg",
			Vibrate:    []int{200, 100, 200},
			Permission: "granted",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if _, err := time.Parse(dateLayout, c.FestivalStart); err != nil {
		if c.FestivalStart != "" {
			appLog.Warn("config: bad festival_start, using default", err, "value", c.FestivalStart)
		}
		c.FestivalStart = def.FestivalStart
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Cache.Version == "" {
		c.Cache.Version = def.Cache.Version
	}
	if len(c.Cache.Shell) == 0 {
		c.Cache.Shell = def.Cache.Shell
	}
	if c.Cache.Fallback == "" {
		c.Cache.Fallback = def.Cache.Fallback
	}
	if c.Notifications.AppName == "" {
		c.Notifications.AppName = def.Notifications.AppName
	}
	if c.Notifications.Icon == "" {
		c.Notifications.Icon = def.Notifications.Icon
	}
	if c.Notifications.Vibrate == nil {
		c.Notifications.Vibrate = def.Notifications.Vibrate
	}
	switch c.Notifications.Permission {
	case "granted", "denied", "default":
	default:
		c.Notifications.Permission = def.Notifications.Permission
	}
	// An incomplete credential pair disables auth rather than locking
	// everyone out.
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// ApplyEnv overlays FESTPLAN_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Listen, env.Listen)
	set(&c.Timezone, env.Timezone)
	set(&c.FestivalStart, env.FestivalStart)
	set(&c.DataDir, env.DataDir)
	set(&c.LogLevel, env.LogLevel)
	set(&c.Catalog.Path, env.CatalogPath)
	set(&c.Catalog.FeedURL, env.FeedURL)
	set(&c.RefreshCron, env.RefreshCron)
	set(&c.Cache.Version, env.CacheVersion)
	set(&c.Cache.Origin, env.CacheOrigin)
	set(&c.Notifications.Permission, env.Permission)
	if env.BasicAuthUser != "" || env.BasicAuthPass != "" {
		if c.BasicAuth == nil {
			c.BasicAuth = &BasicAuthConfig{}
		}
		set(&c.BasicAuth.Username, env.BasicAuthUser)
		set(&c.BasicAuth.Password, env.BasicAuthPass)
	}
	c.Normalize()
	return nil
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// FestivalStartTime is midnight of the first festival day in Location.
func (c *Config) FestivalStartTime() (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, c.FestivalStart, c.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("config: festival_start %q: %w", c.FestivalStart, err)
	}
	return t, nil
}

func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "festplan.db") }

func (c *Config) CacheDir() string { return filepath.Join(c.DataDir, "caches") }

func (c *Config) FeedCacheDir() string { return filepath.Join(c.DataDir, "feed-cache") }

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, cfg.ApplyEnv()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".festplan-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// String is a one-line summary safe for logs (no credentials).
func (c *Config) String() string {
	src := "builtin"
	switch {
	case c.Catalog.FeedURL != "":
		src = "feed"
	case c.Catalog.Path != "":
		src = "file"
	}
	return strings.Join([]string{
		"listen=" + c.Listen,
		"tz=" + c.Timezone,
		"festival_start=" + c.FestivalStart,
		"catalog=" + src,
		"cache=" + c.Cache.Version,
	}, " ")
}
