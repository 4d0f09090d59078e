package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TrackerConfig holds the connection settings for the issue tracker.
type TrackerConfig struct {
	// BaseURL is the root URL of the tracker (e.g. https://yt.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Token is a permanent token. When set, Login/Password are ignored.
	Token string `mapstructure:"token" yaml:"token"`

	Login    string `mapstructure:"login" yaml:"login"`
	Password string `mapstructure:"password" yaml:"password"`
}

// ChatConfig holds the chat platform settings.
type ChatConfig struct {
	APIURL string `mapstructure:"api_url" yaml:"api_url"`
	Token  string `mapstructure:"token" yaml:"token"`
}

// StoreConfig holds the persistent store settings.
type StoreConfig struct {
	// DSN is the SQLite database path (or ":memory:").
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// SyncConfig controls the polling engine.
type SyncConfig struct {
	// PollIntervalSec is how often (in seconds) all projects are swept.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// PageSize is the number of issues requested per tracker page.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// IssueConcurrency bounds how many issues of one page are checked at once.
	IssueConcurrency int `mapstructure:"issue_concurrency" yaml:"issue_concurrency"`

	// FailureAlertThreshold is the attempt count after which a repeatedly
	// failing issue is logged at error level.
	FailureAlertThreshold int `mapstructure:"failure_alert_threshold" yaml:"failure_alert_threshold"`
}

// PollInterval returns the poll interval as a duration.
func (c SyncConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Tracker TrackerConfig `mapstructure:"tracker" yaml:"tracker"`
	Chat    ChatConfig    `mapstructure:"chat" yaml:"chat"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// envPrefix is prepended to every environment override, e.g.
// TRACKRELAY_TRACKER_TOKEN for tracker.token.
const envPrefix = "TRACKRELAY"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/trackrelay/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "trackrelay", "config.yaml")
}

// DefaultStorePath returns the default SQLite location,
// ~/.local/share/trackrelay/trackrelay.db.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "trackrelay.db"
	}
	return filepath.Join(home, ".local", "share", "trackrelay", "trackrelay.db")
}

// setDefaults registers every key so that environment overrides are
// visible to Unmarshal even when the key is absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tracker.base_url", "")
	v.SetDefault("tracker.token", "")
	v.SetDefault("tracker.login", "")
	v.SetDefault("tracker.password", "")
	v.SetDefault("chat.api_url", "https://api.telegram.org")
	v.SetDefault("chat.token", "")
	v.SetDefault("store.dsn", DefaultStorePath())
	v.SetDefault("sync.poll_interval_sec", 300)
	v.SetDefault("sync.page_size", 50)
	v.SetDefault("sync.issue_concurrency", 4)
	v.SetDefault("sync.failure_alert_threshold", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applying TRACKRELAY_* environment overrides. A missing file is not an
// error; defaults and the environment still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Tracker.BaseURL = strings.TrimRight(cfg.Tracker.BaseURL, "/")

	return cfg, nil
}

// Validate reports configuration that would prevent the engine from running.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Tracker.BaseURL == "" {
		errs = append(errs, errors.New("tracker.base_url is required"))
	}
	if c.Sync.PollIntervalSec <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval_sec must be positive, got %d", c.Sync.PollIntervalSec))
	}
	if c.Sync.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.page_size must be positive, got %d", c.Sync.PageSize))
	}
	if c.Sync.IssueConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("sync.issue_concurrency must be positive, got %d", c.Sync.IssueConcurrency))
	}
	return errors.Join(errs...)
}
