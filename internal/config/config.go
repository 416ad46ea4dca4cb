// Package config loads outagewatch settings from defaults, an optional YAML
// file, .env files and OW_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wanops/outagewatch/internal/notify"
)

// EnvPrefix prefixes every environment override: OW_DATABASE_PATH, OW_FEED_TOKEN.
const EnvPrefix = "OW"

// Feed polling modes.
const (
	FeedModePerNetwork = "per_network"
	FeedModeBulk       = "bulk"
)

// Config is the typed view of the settings tree.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Classify ClassifyConfig `mapstructure:"classify"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	BackupDir string `mapstructure:"backup_dir"`
}

type IngestConfig struct {
	Mode                string `mapstructure:"mode"`
	RetainDays          int    `mapstructure:"retain_days"`
	ReportDir           string `mapstructure:"report_dir"`
	AllowDuplicateInput bool   `mapstructure:"allow_duplicate_input"`
}

// FeedConfig configures the vendor outage API.
type FeedConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"` //nolint:gosec // G101: config field name, not a credential
	Timeout     time.Duration `mapstructure:"timeout"`
	Rate        float64       `mapstructure:"rate"`
	Concurrency int           `mapstructure:"concurrency"`
	Lookback    time.Duration `mapstructure:"lookback"`
	Mode        string        `mapstructure:"mode"`
}

type ClassifyConfig struct {
	Lookback        time.Duration `mapstructure:"lookback"`
	ReportThreshold float64       `mapstructure:"report_threshold"`
	AlertThreshold  float64       `mapstructure:"alert_threshold"`
}

type NotifyConfig struct {
	Pushover notify.PushoverConfig `mapstructure:"pushover"`
	Webhook  notify.WebhookConfig  `mapstructure:"webhook"`
	Timeout  time.Duration         `mapstructure:"timeout"`
}

type ServerConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Addr returns the listen address as host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every known key so environment overrides reach
// Unmarshal even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./output/outages.db")
	v.SetDefault("database.backup_dir", "./backups")

	v.SetDefault("ingest.mode", "append")
	v.SetDefault("ingest.retain_days", 7)
	v.SetDefault("ingest.report_dir", "./processing_reports")
	v.SetDefault("ingest.allow_duplicate_input", false)

	v.SetDefault("feed.base_url", "")
	v.SetDefault("feed.token", "")
	v.SetDefault("feed.timeout", "30s")
	v.SetDefault("feed.rate", 2.0)
	v.SetDefault("feed.concurrency", 4)
	v.SetDefault("feed.lookback", "48h")
	v.SetDefault("feed.mode", FeedModePerNetwork)

	v.SetDefault("classify.lookback", "24h")
	v.SetDefault("classify.report_threshold", 0.80)
	v.SetDefault("classify.alert_threshold", 0.75)

	v.SetDefault("notify.pushover.user_key", "")
	v.SetDefault("notify.pushover.api_token", "")
	v.SetDefault("notify.pushover.url", notify.PushoverURL)
	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration. A .env file in the working directory is applied
// to the process environment first; variables already set win. configPath
// may be empty, in which case outagewatch.yaml is searched for in the usual
// places and its absence is not an error.
func Load(configPath string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("outagewatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/outagewatch")
	}

	// OW_FEED_BASE_URL -> feed.base_url
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Ingest.Mode {
	case "append", "rebuild":
	default:
		errs = append(errs, fmt.Errorf("ingest.mode %q: must be append or rebuild", c.Ingest.Mode))
	}
	if c.Ingest.RetainDays < 1 {
		errs = append(errs, fmt.Errorf("ingest.retain_days %d: must be at least 1", c.Ingest.RetainDays))
	}
	switch c.Feed.Mode {
	case FeedModePerNetwork, FeedModeBulk:
	default:
		errs = append(errs, fmt.Errorf("feed.mode %q: must be %s or %s", c.Feed.Mode, FeedModePerNetwork, FeedModeBulk))
	}
	if c.Feed.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("feed.concurrency %d: must be at least 1", c.Feed.Concurrency))
	}
	if c.Feed.Rate < 0 {
		errs = append(errs, fmt.Errorf("feed.rate %v: must not be negative", c.Feed.Rate))
	}
	for key, f := range map[string]float64{
		"classify.report_threshold": c.Classify.ReportThreshold,
		"classify.alert_threshold":  c.Classify.AlertThreshold,
	} {
		if f <= 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s %v: must be in (0, 1]", key, f))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d: out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}
