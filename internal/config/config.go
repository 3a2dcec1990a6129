// Package config loads the typed configuration struct every component in
// this repository is constructor-injected with. No package reads the
// environment or a config file directly — config.Load is the single
// entrypoint, and the rest of the program receives a *Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Download DownloadConfig `mapstructure:"download"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Import   ImportConfig   `mapstructure:"import"`
	Upgrade  UpgradeConfig  `mapstructure:"upgrade"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Job      JobConfig      `mapstructure:"job"`
	Health   HealthConfig   `mapstructure:"health"`
	RSS      RSSConfig      `mapstructure:"rss"`
	ListSync ListSyncConfig `mapstructure:"list_sync"`
	Routing  RoutingConfig  `mapstructure:"routing"`

	Indexers        []IndexerInstance        `mapstructure:"indexers"`
	DownloadClients []DownloadClientInstance `mapstructure:"download_clients"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// WorkerConfig holds per-job-kind worker pool concurrency.
// worker.{search, grab, import, monitor, rss, list_sync}
type WorkerConfig struct {
	Search   int `mapstructure:"search"`
	Grab     int `mapstructure:"grab"`
	Import   int `mapstructure:"import"`
	Monitor  int `mapstructure:"monitor"`
	RSS      int `mapstructure:"rss"`
	ListSync int `mapstructure:"list_sync"`
}

// QueueConfig holds job-queue retry/backoff configuration.
type QueueConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

// DownloadConfig holds download-client monitor poll intervals.
type DownloadConfig struct {
	MonitorPollActive time.Duration `mapstructure:"monitor_poll_active"`
	MonitorPollIdle   time.Duration `mapstructure:"monitor_poll_idle"`
}

// IndexerConfig holds per-host default indexer rate limit configuration.
type IndexerConfig struct {
	RatePerMinute    float64       `mapstructure:"rate_per_minute"`
	Burst            int           `mapstructure:"burst"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenDuration      time.Duration `mapstructure:"open_duration"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	AggregateTimeout  time.Duration `mapstructure:"aggregate_timeout"`
}

// ImportConfig holds import pipeline configuration.
type ImportConfig struct {
	CrossFilesystemFallback string `mapstructure:"cross_filesystem_fallback"` // copy-verify | copy-hash-verify | refuse
	TemplateMovie           string `mapstructure:"template_movie"`
	MinSampleSizeBytes      int64  `mapstructure:"min_sample_size_bytes"`
	RuntimeToleranceMinutes int    `mapstructure:"runtime_tolerance_minutes"`
	AllowSuspect            bool   `mapstructure:"allow_suspect"`
	MaxParallelImports      int    `mapstructure:"max_parallel_imports"`
}

// UpgradeConfig holds upgrade-margin configuration.
type UpgradeConfig struct {
	Margin int `mapstructure:"margin"`
}

// ShutdownConfig holds graceful-shutdown timing.
type ShutdownConfig struct {
	Grace       time.Duration `mapstructure:"grace"`
	CancelGrace time.Duration `mapstructure:"cancel_grace"`
}

// JobConfig holds job-lease timing.
type JobConfig struct {
	LeaseDuration time.Duration `mapstructure:"lease_duration"`
}

// HealthConfig holds background health-sweep cadence.
type HealthConfig struct {
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// RSSConfig holds C9's sweep cadence and feed-walk bounds.
type RSSConfig struct {
	SyncInterval       time.Duration `mapstructure:"sync_interval"`
	LookbackWindow     time.Duration `mapstructure:"lookback_window"`
	BackoffThreshold   int           `mapstructure:"backoff_threshold"`
	MaxReleasesPerFeed int           `mapstructure:"max_releases_per_feed"`
}

// ListSyncConfig holds C10's fetch cadence and the set of curated
// lists to pull. Lists has no scalar default; an empty deployment
// simply runs no list syncs.
type ListSyncConfig struct {
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxEntries     int           `mapstructure:"max_entries"`
	Lists          []ListEntry   `mapstructure:"lists"`
}

// ListEntry configures one curated list C10 pulls on a schedule.
type ListEntry struct {
	Name                    string   `mapstructure:"name"`
	URL                     string   `mapstructure:"url"`
	Strategy                string   `mapstructure:"strategy"` // keep-existing | use-new | intelligent | rules-based
	DefaultQualityProfileID int64    `mapstructure:"default_quality_profile_id"`
	Monitored               bool     `mapstructure:"monitored"`
	MinimumAvailability     string   `mapstructure:"minimum_availability"`
	RootPath                string   `mapstructure:"root_path"`
	Exclusions              []string `mapstructure:"exclusions"`
}

// RoutingConfig holds cross-component job routing defaults not owned
// by any single subsystem's own config block.
type RoutingConfig struct {
	DefaultDownloadClientID int64 `mapstructure:"default_download_client_id"`
}

// IndexerInstance configures one Torznab/Prowlarr indexer registered
// into the pool at startup. This module has no UI-driven indexer CRUD
// (spec.md's indexers table is read by the pool at boot, not mutated
// at runtime), so instances live in config rather than the catalog.
type IndexerInstance struct {
	ID         int64  `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	Host       string `mapstructure:"host"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Categories []int  `mapstructure:"categories"`
	Priority   int    `mapstructure:"priority"`
	Enabled    bool   `mapstructure:"enabled"`
}

// DownloadClientInstance configures one download client registered
// into the ClientRegistry at startup.
type DownloadClientInstance struct {
	ID       int64  `mapstructure:"id"`
	Kind     string `mapstructure:"kind"` // qbittorrent | sabnzbd
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`
	Category string `mapstructure:"category"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "cinequeue.db")},
		Logging: LoggingConfig{
			Level: "info", Format: "console", Path: filepath.Join(dataDir, "logs"),
			MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true,
		},
		Worker: WorkerConfig{Search: 4, Grab: 2, Import: 2, Monitor: 1, RSS: 1, ListSync: 1},
		Queue: QueueConfig{
			MaxAttempts: 8, BackoffBase: 10 * time.Second, BackoffMax: 30 * time.Minute,
		},
		Download: DownloadConfig{MonitorPollActive: 10 * time.Second, MonitorPollIdle: 2 * time.Minute},
		Indexer: IndexerConfig{
			RatePerMinute: 60, Burst: 5, FailureThreshold: 5,
			OpenDuration: 2 * time.Minute, RequestTimeout: 20 * time.Second, AggregateTimeout: 45 * time.Second,
		},
		Import: ImportConfig{
			CrossFilesystemFallback: "copy-hash-verify",
			TemplateMovie:           "{title} ({year}) [{quality} {resolution}]",
			MinSampleSizeBytes:      50 * 1024 * 1024,
			RuntimeToleranceMinutes: 15,
			AllowSuspect:            false,
			MaxParallelImports:      2,
		},
		Upgrade:  UpgradeConfig{Margin: 10},
		Shutdown: ShutdownConfig{Grace: 30 * time.Second, CancelGrace: 5 * time.Second},
		Job:      JobConfig{LeaseDuration: 5 * time.Minute},
		Health:   HealthConfig{ReapInterval: 30 * time.Second},
		RSS: RSSConfig{
			SyncInterval: 15 * time.Minute, LookbackWindow: 7 * 24 * time.Hour,
			BackoffThreshold: 3, MaxReleasesPerFeed: 1000,
		},
		ListSync: ListSyncConfig{SyncInterval: time.Hour, RequestTimeout: 60 * time.Second, MaxEntries: 50000},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults.
func Load(configPath string) (*Config, error) {
	envFiles := []string{".env", "configs/.env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
			break
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.cinequeue")
	}

	v.SetEnvPrefix("CINEQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "cinequeue")
	}
	return "./data"
}

// setDefaults seeds viper with the struct defaults so env-only overrides
// (no config file present) still produce a fully populated Config.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("worker.search", d.Worker.Search)
	v.SetDefault("worker.grab", d.Worker.Grab)
	v.SetDefault("worker.import", d.Worker.Import)
	v.SetDefault("worker.monitor", d.Worker.Monitor)
	v.SetDefault("worker.rss", d.Worker.RSS)
	v.SetDefault("worker.list_sync", d.Worker.ListSync)

	v.SetDefault("queue.max_attempts", d.Queue.MaxAttempts)
	v.SetDefault("queue.backoff_base", d.Queue.BackoffBase)
	v.SetDefault("queue.backoff_max", d.Queue.BackoffMax)

	v.SetDefault("download.monitor_poll_active", d.Download.MonitorPollActive)
	v.SetDefault("download.monitor_poll_idle", d.Download.MonitorPollIdle)

	v.SetDefault("indexer.rate_per_minute", d.Indexer.RatePerMinute)
	v.SetDefault("indexer.burst", d.Indexer.Burst)
	v.SetDefault("indexer.failure_threshold", d.Indexer.FailureThreshold)
	v.SetDefault("indexer.open_duration", d.Indexer.OpenDuration)
	v.SetDefault("indexer.request_timeout", d.Indexer.RequestTimeout)
	v.SetDefault("indexer.aggregate_timeout", d.Indexer.AggregateTimeout)

	v.SetDefault("import.cross_filesystem_fallback", d.Import.CrossFilesystemFallback)
	v.SetDefault("import.template_movie", d.Import.TemplateMovie)
	v.SetDefault("import.min_sample_size_bytes", d.Import.MinSampleSizeBytes)
	v.SetDefault("import.runtime_tolerance_minutes", d.Import.RuntimeToleranceMinutes)
	v.SetDefault("import.allow_suspect", d.Import.AllowSuspect)
	v.SetDefault("import.max_parallel_imports", d.Import.MaxParallelImports)

	v.SetDefault("upgrade.margin", d.Upgrade.Margin)

	v.SetDefault("shutdown.grace", d.Shutdown.Grace)
	v.SetDefault("shutdown.cancel_grace", d.Shutdown.CancelGrace)

	v.SetDefault("job.lease_duration", d.Job.LeaseDuration)

	v.SetDefault("health.reap_interval", d.Health.ReapInterval)

	v.SetDefault("rss.sync_interval", d.RSS.SyncInterval)
	v.SetDefault("rss.lookback_window", d.RSS.LookbackWindow)
	v.SetDefault("rss.backoff_threshold", d.RSS.BackoffThreshold)
	v.SetDefault("rss.max_releases_per_feed", d.RSS.MaxReleasesPerFeed)

	v.SetDefault("list_sync.sync_interval", d.ListSync.SyncInterval)
	v.SetDefault("list_sync.request_timeout", d.ListSync.RequestTimeout)
	v.SetDefault("list_sync.max_entries", d.ListSync.MaxEntries)

	v.SetDefault("routing.default_download_client_id", d.Routing.DefaultDownloadClientID)
}
