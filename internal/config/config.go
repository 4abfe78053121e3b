// Package config loads casalert configuration from defaults, an optional YAML
// file and CASALERT_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/casalert/internal/deduplication"
	"github.com/steveyegge/casalert/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g. CASALERT_SCRAPE_DELAY
const EnvPrefix = "CASALERT"

// Default source URLs
const (
	DefaultCASURL   = "https://www.cas.mhra.gov.uk/SearchAlerts.aspx"
	DefaultGOVUKURL = "https://www.gov.uk/drug-device-alerts"
)

// Store backends
const (
	BackendSQLite = "sqlite"
	BackendSheets = "sheets"
	BackendMongo  = "mongo"
)

// Config is the complete application configuration
type Config struct {
	Sources    SourcesConfig    `mapstructure:"sources" yaml:"sources"`
	Scrape     ScrapeConfig     `mapstructure:"scrape" yaml:"scrape"`
	Dedup      DedupConfig      `mapstructure:"dedup" yaml:"dedup"`
	Run        RunConfig        `mapstructure:"run" yaml:"run"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Log        logging.Config   `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	RunHistory RunHistoryConfig `mapstructure:"run_history" yaml:"run_history"`
}

// SourceConfig configures one scraped site
type SourceConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`

	// MaxPages bounds pagination; 0 means follow every page
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`

	// EnrichDetails fetches each alert's detail page for the optional fields
	EnrichDetails bool `mapstructure:"enrich_details" yaml:"enrich_details"`
}

// SourcesConfig lists the scraped sites
type SourcesConfig struct {
	CAS   SourceConfig `mapstructure:"cas" yaml:"cas"`
	GOVUK SourceConfig `mapstructure:"govuk" yaml:"govuk"`
}

// ScrapeConfig controls HTTP behaviour shared by all scrapers
type ScrapeConfig struct {
	// Delay is the minimum gap between requests to the same site. Default: 2s
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`

	// MaxRetries is the number of retries after a failed request. Default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// Timeout bounds each request. Default: 30s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`

	// BackupEnabled saves every fetched listing page under BackupDir
	BackupEnabled bool   `mapstructure:"backup_enabled" yaml:"backup_enabled"`
	BackupDir     string `mapstructure:"backup_dir" yaml:"backup_dir"`
}

// DedupConfig mirrors deduplication.Config for file and env loading
type DedupConfig struct {
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold" yaml:"duplicate_threshold"`
}

// RunConfig controls a single pipeline pass and the watch loop
type RunConfig struct {
	// MaxAlertsPerRun caps how many new alerts are appended in one run. Default: 1000
	MaxAlertsPerRun int `mapstructure:"max_alerts_per_run" yaml:"max_alerts_per_run"`

	// Interval is the pause between runs in watch mode. Default: 6h
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// StoreConfig selects and configures the persistent store
type StoreConfig struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	SQLite  SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Sheets  SheetsConfig `mapstructure:"sheets" yaml:"sheets"`
	Mongo   MongoConfig  `mapstructure:"mongo" yaml:"mongo"`
}

// SQLiteConfig configures the local database store
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SheetsConfig configures the Google Sheets store
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	Worksheet       string `mapstructure:"worksheet" yaml:"worksheet"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// Endpoint overrides the API base URL (used against local fakes)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// MongoConfig configures the MongoDB store
type MongoConfig struct {
	URI        string `mapstructure:"uri" yaml:"uri"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// NotifyConfig controls run notifications
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Desktop bool `mapstructure:"desktop" yaml:"desktop"`
	Sound   bool `mapstructure:"sound" yaml:"sound"`

	NATS NATSConfig `mapstructure:"nats" yaml:"nats"`
}

// NATSConfig configures the NATS publisher; an empty URL disables it
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// MetricsConfig controls the Prometheus endpoint served in watch mode
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090"; empty disables the endpoint
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Sources: SourcesConfig{
			CAS:   SourceConfig{Enabled: true, URL: DefaultCASURL, EnrichDetails: true},
			GOVUK: SourceConfig{Enabled: true, URL: DefaultGOVUKURL, EnrichDetails: true},
		},
		Scrape: ScrapeConfig{
			Delay:         2 * time.Second,
			MaxRetries:    3,
			Timeout:       30 * time.Second,
			UserAgent:     "CAS-Alert-Scraper/1.0",
			BackupEnabled: true,
			BackupDir:     "data/backups",
		},
		Dedup: DedupConfig{
			DuplicateThreshold: deduplication.DefaultConfig().DuplicateThreshold,
		},
		Run: RunConfig{
			MaxAlertsPerRun: 1000,
			Interval:        6 * time.Hour,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "data/alerts.db"},
			Sheets:  SheetsConfig{Worksheet: "Sheet1"},
			Mongo:   MongoConfig{Database: "casalert", Collection: "alerts"},
		},
		Notify: NotifyConfig{
			Enabled: true,
			Desktop: true,
			Sound:   true,
			NATS:    NATSConfig{Subject: "casalert.alerts.new"},
		},
		Log:        logging.DefaultConfig(),
		RunHistory: DefaultRunHistoryConfig(),
	}
}

// Deduplication returns the dedup engine configuration
func (c *Config) Deduplication() deduplication.Config {
	return deduplication.Config{DuplicateThreshold: c.Dedup.DuplicateThreshold}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if err := c.Sources.CAS.validate("cas"); err != nil {
		return err
	}
	if err := c.Sources.GOVUK.validate("govuk"); err != nil {
		return err
	}
	if err := c.Scrape.Validate(); err != nil {
		return err
	}
	if err := c.Deduplication().Validate(); err != nil {
		return err
	}
	if c.Run.MaxAlertsPerRun < 1 {
		return fmt.Errorf("max_alerts_per_run must be positive (got %d)", c.Run.MaxAlertsPerRun)
	}
	if c.Run.Interval < time.Minute {
		return fmt.Errorf("run interval must be at least 1m (got %v)", c.Run.Interval)
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Notify.NATS.URL != "" && c.Notify.NATS.Subject == "" {
		return fmt.Errorf("notify.nats.subject is required when notify.nats.url is set")
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.RunHistory.Validate()
}

func (s SourceConfig) validate(name string) error {
	if !s.Enabled {
		return nil
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sources.%s.url must be an absolute URL (got %q)", name, s.URL)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("sources.%s.max_pages cannot be negative (got %d)", name, s.MaxPages)
	}
	return nil
}

// Validate checks if the scrape configuration has valid values
func (s ScrapeConfig) Validate() error {
	if s.Delay < 0 {
		return fmt.Errorf("scrape delay cannot be negative (got %v)", s.Delay)
	}
	if s.MaxRetries < 0 || s.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10 (got %d)", s.MaxRetries)
	}
	if s.Timeout <= 0 || s.Timeout > 5*time.Minute {
		return fmt.Errorf("timeout must be between 0 and 5m (got %v)", s.Timeout)
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		return fmt.Errorf("user_agent is required")
	}
	if s.BackupEnabled && s.BackupDir == "" {
		return fmt.Errorf("backup_dir is required when backups are enabled")
	}
	return nil
}

// Validate checks if the store configuration has valid values
func (s StoreConfig) Validate() error {
	switch s.Backend {
	case BackendSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case BackendSheets:
		if s.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("store.sheets.spreadsheet_id is required")
		}
		if s.Sheets.Worksheet == "" {
			return fmt.Errorf("store.sheets.worksheet is required")
		}
	case BackendMongo:
		if s.Mongo.URI == "" || s.Mongo.Database == "" || s.Mongo.Collection == "" {
			return fmt.Errorf("store.mongo uri, database and collection are required")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", s.Backend)
	}
	return nil
}

// String returns a one-line summary of the configuration
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{CAS: %t, GOVUK: %t, Delay: %v, Retries: %d, Threshold: %.2f, MaxPerRun: %d, Store: %s}",
		c.Sources.CAS.Enabled, c.Sources.GOVUK.Enabled, c.Scrape.Delay, c.Scrape.MaxRetries,
		c.Dedup.DuplicateThreshold, c.Run.MaxAlertsPerRun, c.Store.Backend,
	)
}

// WriteYAML writes the configuration as YAML
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Load builds the configuration from defaults, the YAML file at path (optional,
// skipped when empty) and CASALERT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"sources.cas.enabled":          d.Sources.CAS.Enabled,
		"sources.cas.url":              d.Sources.CAS.URL,
		"sources.cas.max_pages":        d.Sources.CAS.MaxPages,
		"sources.cas.enrich_details":   d.Sources.CAS.EnrichDetails,
		"sources.govuk.enabled":        d.Sources.GOVUK.Enabled,
		"sources.govuk.url":            d.Sources.GOVUK.URL,
		"sources.govuk.max_pages":      d.Sources.GOVUK.MaxPages,
		"sources.govuk.enrich_details": d.Sources.GOVUK.EnrichDetails,

		"scrape.delay":          d.Scrape.Delay,
		"scrape.max_retries":    d.Scrape.MaxRetries,
		"scrape.timeout":        d.Scrape.Timeout,
		"scrape.user_agent":     d.Scrape.UserAgent,
		"scrape.backup_enabled": d.Scrape.BackupEnabled,
		"scrape.backup_dir":     d.Scrape.BackupDir,

		"dedup.duplicate_threshold": d.Dedup.DuplicateThreshold,

		"run.max_alerts_per_run": d.Run.MaxAlertsPerRun,
		"run.interval":           d.Run.Interval,

		"store.backend":                 d.Store.Backend,
		"store.sqlite.path":             d.Store.SQLite.Path,
		"store.sheets.spreadsheet_id":   d.Store.Sheets.SpreadsheetID,
		"store.sheets.worksheet":        d.Store.Sheets.Worksheet,
		"store.sheets.credentials_file": d.Store.Sheets.CredentialsFile,
		"store.sheets.endpoint":         d.Store.Sheets.Endpoint,
		"store.mongo.uri":               d.Store.Mongo.URI,
		"store.mongo.database":          d.Store.Mongo.Database,
		"store.mongo.collection":        d.Store.Mongo.Collection,

		"notify.enabled":      d.Notify.Enabled,
		"notify.desktop":      d.Notify.Desktop,
		"notify.sound":        d.Notify.Sound,
		"notify.nats.url":     d.Notify.NATS.URL,
		"notify.nats.subject": d.Notify.NATS.Subject,

		"log.level":          d.Log.Level,
		"log.format":         d.Log.Format,
		"log.output":         d.Log.Output,
		"log.dir":            d.Log.Dir,
		"log.file_name":      d.Log.FileName,
		"log.retention_days": d.Log.RetentionDays,
		"log.max_size_mb":    d.Log.MaxSizeMB,
		"log.compress":       d.Log.Compress,

		"metrics.addr": d.Metrics.Addr,

		"run_history.retention_days": d.RunHistory.RetentionDays,
		"run_history.keep":           d.RunHistory.Keep,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
