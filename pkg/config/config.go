// Package config loads rosterwatch settings from a YAML file, environment
// variables prefixed with ROSTERWATCH_ and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "ROSTERWATCH"

const (
	SnapshotStoreDatabase = "database"
	SnapshotStoreFile     = "file"
)

type Config struct {
	Term     string         `mapstructure:"term"`
	Canvas   CanvasConfig   `mapstructure:"canvas"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Database DatabaseConfig `mapstructure:"database"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type CanvasConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccountID   string        `mapstructure:"account_id"`
	Token       string        `mapstructure:"token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PerPage     int           `mapstructure:"per_page"`
	MaxAttempts uint          `mapstructure:"max_attempts"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type FetchConfig struct {
	Workers       int  `mapstructure:"workers"`
	FailOnPartial bool `mapstructure:"fail_on_partial"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SnapshotConfig struct {
	Store string `mapstructure:"store"`
	Dir   string `mapstructure:"dir"`
}

type BigQueryConfig struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

type PubSubConfig struct {
	Project string `mapstructure:"project"`
	Topic   string `mapstructure:"topic"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// SetDefaults registers every key, which also lets AutomaticEnv resolve
// keys that appear in neither the file nor the flags.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("term", "")
	v.SetDefault("canvas.base_url", "")
	v.SetDefault("canvas.account_id", "1")
	v.SetDefault("canvas.token", "")
	v.SetDefault("canvas.timeout", 30*time.Second)
	v.SetDefault("canvas.per_page", 100)
	v.SetDefault("canvas.max_attempts", 4)
	v.SetDefault("canvas.retry_wait", time.Second)
	v.SetDefault("canvas.user_agent", "rosterwatch/1.0")
	v.SetDefault("fetch.workers", 8)
	v.SetDefault("fetch.fail_on_partial", false)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("snapshot.store", SnapshotStoreDatabase)
	v.SetDefault("snapshot.dir", "")
	v.SetDefault("bigquery.project", "")
	v.SetDefault("bigquery.dataset", "rosterwatch")
	v.SetDefault("pubsub.project", "")
	v.SetDefault("pubsub.topic", "roster-changed")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the optional config file at path and decodes the merged
// settings. Flags must already be bound to v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings needed to run a sync.
func (c *Config) Validate() error {
	var errs []error
	if c.Term == "" {
		errs = append(errs, errors.New("term is required"))
	}
	if c.Canvas.BaseURL == "" {
		errs = append(errs, errors.New("canvas.base_url is required"))
	}
	if c.Canvas.Token == "" {
		errs = append(errs, errors.New("canvas.token is required"))
	}
	if c.Fetch.Workers < 0 {
		errs = append(errs, errors.New("fetch.workers must not be negative"))
	}
	errs = append(errs, c.validateStorage())
	return errors.Join(errs...)
}

// ValidateStorage checks only the settings needed to read stored data.
func (c *Config) ValidateStorage() error {
	return c.validateStorage()
}

func (c *Config) validateStorage() error {
	var errs []error
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite3", "sqlite", "pgx", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" && !c.isSqlite() {
		errs = append(errs, errors.New("database.dsn is required for postgres"))
	}
	switch c.Snapshot.Store {
	case SnapshotStoreDatabase, SnapshotStoreFile:
	default:
		errs = append(errs, fmt.Errorf("unsupported snapshot.store %q", c.Snapshot.Store))
	}
	return errors.Join(errs...)
}

func (c *Config) isSqlite() bool {
	d := strings.ToLower(c.Database.Driver)
	return d == "sqlite3" || d == "sqlite"
}

// DatabaseDSN defaults sqlite databases to the user cache directory.
func (c *Config) DatabaseDSN() (string, error) {
	if c.Database.DSN != "" || !c.isSqlite() {
		return c.Database.DSN, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rosterwatch.db"), nil
}

// SnapshotDir defaults to a snapshots directory in the user cache directory.
func (c *Config) SnapshotDir() (string, error) {
	if c.Snapshot.Dir != "" {
		return c.Snapshot.Dir, nil
	}
	dir, err := cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshots"), nil
}

func cacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate cache directory: %w", err)
	}
	dir := filepath.Join(userCacheDir, "rosterwatch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return dir, nil
}
