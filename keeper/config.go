package keeper

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/profkeeper/keeper/internal/producer"
	"github.com/hazyhaar/profkeeper/keeper/internal/record"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all profkeeper configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Schema    SchemaConfig    `yaml:"schema"`
	Ordering  string          `yaml:"ordering"` // bulk | relocate
	LockPath  string          `yaml:"lock_path"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Producer  ProducerConfig  `yaml:"producer"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Dates     DatesConfig     `yaml:"dates"`
}

// StoreConfig selects the system of record.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	Path            string `yaml:"path"`             // sqlite
	SpreadsheetID   string `yaml:"spreadsheet_id"`   // sheets
	CredentialsFile string `yaml:"credentials_file"` // sheets
	Endpoint        string `yaml:"endpoint"`         // sheets, tests only
	DSN             string `yaml:"dsn"`              // postgres

	Tabs TabsConfig `yaml:"tabs"`
}

// TabsConfig names the tabs of the book.
type TabsConfig struct {
	Profiles string `yaml:"profiles"`
	Queue    string `yaml:"queue"`
	Labels   string `yaml:"labels"`
	Runs     string `yaml:"runs"`
}

// ThrottleConfig controls retries on rate-limited store calls.
type ThrottleConfig struct {
	Backoff time.Duration `yaml:"backoff"`
	// MaxAttempts bounds attempts per store call. Unset or 0 means 5; a
	// negative value retries until the context ends.
	MaxAttempts       int `yaml:"max_attempts"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// SchemaConfig overrides the default profile columns. An empty Columns
// keeps the default schema.
type SchemaConfig struct {
	Columns  []string `yaml:"columns"`
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	State    string   `yaml:"state"`
	Observed string   `yaml:"observed"`
	Label    string   `yaml:"label"`
	Volatile []string `yaml:"volatile"`
	Counts   []string `yaml:"counts"`
	Dates    []string `yaml:"dates"`
}

// SchedulerConfig controls periodic runs.
type SchedulerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	SkipInitial bool          `yaml:"skip_initial"`
}

// ProducerConfig controls page fetching and extraction.
type ProducerConfig struct {
	ProfileURL       string               `yaml:"profile_url"`
	SourceTag        string               `yaml:"source_tag"`
	RemoteURL        string               `yaml:"remote_url"`
	Headful          bool                 `yaml:"headful"`
	DisableStealth   bool                 `yaml:"disable_stealth"`
	PageTimeout      time.Duration        `yaml:"page_timeout"`
	RecycleAfter     int                  `yaml:"recycle_after"`
	ResourceBlocking []string             `yaml:"resource_blocking"`
	Rules            producer.RulesConfig `yaml:"rules"`
}

// DashboardConfig controls the HTTP API.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
	// TokenHash is the bcrypt hash of the bearer token accepted by
	// POST /api/runs. Empty disables the manual trigger over HTTP.
	TokenHash string `yaml:"token_hash"`
}

// DatesConfig controls date normalization.
type DatesConfig struct {
	Unknown string `yaml:"unknown"` // now | sentinel
}

func (c *Config) defaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQLite
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/profkeeper.db"
	}
	if c.Store.Tabs.Profiles == "" {
		c.Store.Tabs.Profiles = "Profiles"
	}
	if c.Store.Tabs.Queue == "" {
		c.Store.Tabs.Queue = "Queue"
	}
	if c.Store.Tabs.Labels == "" {
		c.Store.Tabs.Labels = "Tags"
	}
	if c.Store.Tabs.Runs == "" {
		c.Store.Tabs.Runs = "Runs"
	}
	if c.Throttle.Backoff <= 0 {
		c.Throttle.Backoff = 60 * time.Second
	}
	if c.Throttle.MaxAttempts == 0 {
		c.Throttle.MaxAttempts = 5
	}
	if c.Ordering == "" {
		c.Ordering = "bulk"
	}
	if c.LockPath == "" {
		c.LockPath = "data/profkeeper.lock"
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 30 * time.Minute
	}
	if c.Producer.ProfileURL == "" {
		c.Producer.ProfileURL = "https://example.com/profile/{target}"
	}
	if c.Producer.SourceTag == "" {
		c.Producer.SourceTag = "queue"
	}
	if c.Producer.PageTimeout <= 0 {
		c.Producer.PageTimeout = 30 * time.Second
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8087"
	}
	if c.Dates.Unknown == "" {
		c.Dates.Unknown = "now"
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendMemory:
	case BackendSheets:
		if c.Store.SpreadsheetID == "" {
			return fmt.Errorf("%w: store.spreadsheet_id is required for sheets", ErrInvalidConfig)
		}
		if c.Store.CredentialsFile == "" && c.Store.Endpoint == "" {
			return fmt.Errorf("%w: store.credentials_file is required for sheets", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	switch c.Ordering {
	case "bulk", "relocate":
	default:
		return fmt.Errorf("%w: ordering must be bulk or relocate, got %q", ErrInvalidConfig, c.Ordering)
	}
	switch c.Dates.Unknown {
	case "now", "sentinel":
	default:
		return fmt.Errorf("%w: dates.unknown must be now or sentinel, got %q", ErrInvalidConfig, c.Dates.Unknown)
	}
	return nil
}

// schema builds the profile schema from the config.
func (c *Config) schema() (*record.Schema, error) {
	sc := c.Schema
	if len(sc.Columns) == 0 {
		return record.Default(), nil
	}
	s, err := record.NewSchema(record.Schema{
		Columns:  sc.Columns,
		Key:      sc.Key,
		Name:     sc.Name,
		State:    sc.State,
		Observed: sc.Observed,
		Label:    sc.Label,
		Volatile: sc.Volatile,
		Counts:   sc.Counts,
		Dates:    sc.Dates,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}

// applyEnv overrides fields from PROFKEEPER_* variables.
func (c *Config) applyEnv() {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("PROFKEEPER_STORE_BACKEND", &c.Store.Backend)
	str("PROFKEEPER_STORE_PATH", &c.Store.Path)
	str("PROFKEEPER_SPREADSHEET_ID", &c.Store.SpreadsheetID)
	str("PROFKEEPER_CREDENTIALS_FILE", &c.Store.CredentialsFile)
	str("PROFKEEPER_PG_DSN", &c.Store.DSN)
	str("PROFKEEPER_LOCK_PATH", &c.LockPath)
	str("PROFKEEPER_ORDERING", &c.Ordering)
	str("PROFKEEPER_PROFILE_URL", &c.Producer.ProfileURL)
	str("PROFKEEPER_BROWSER_URL", &c.Producer.RemoteURL)
	str("PROFKEEPER_DASHBOARD_ADDR", &c.Dashboard.Addr)
	str("PROFKEEPER_DASHBOARD_TOKEN_HASH", &c.Dashboard.TokenHash)
	str("PROFKEEPER_DATES_UNKNOWN", &c.Dates.Unknown)
	if v := os.Getenv("PROFKEEPER_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.Interval = d
		}
	}
	if v := os.Getenv("PROFKEEPER_THROTTLE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Throttle.MaxAttempts = n
		}
	}
}

// LoadConfigFile reads a YAML config file and applies PROFKEEPER_*
// environment overrides. An empty path yields the defaults plus the
// environment.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}
