// Package config loads and validates harvester configuration. Process-level
// settings come from Viper (file + HARVESTER_* environment); journal and group
// definitions come from a case-preserving INI file, see journal.go.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all process-level configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Harvest     HarvestConfig     `mapstructure:"harvest"`
	Translation TranslationConfig `mapstructure:"translation"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HarvestConfig governs dispatcher and pipeline behavior.
type HarvestConfig struct {
	JournalConfigPath string `mapstructure:"journal_config_path"`
	OutputFormat      string `mapstructure:"output_format"`
	ProgressFile      string `mapstructure:"progress_file"`
	ErrorReportFile   string `mapstructure:"error_report_file"`
	MaxTasklets       int    `mapstructure:"max_tasklets"`
	IgnoreRobots      bool   `mapstructure:"ignore_robots"`
	TestMode          bool   `mapstructure:"test_mode"`
}

// TranslationConfig configures the translation service client.
type TranslationConfig struct {
	TimeoutMs           int `mapstructure:"timeout_ms"`
	ConversionTimeoutMs int `mapstructure:"conversion_timeout_ms"`
	MinProcessingTimeMs int `mapstructure:"min_processing_time_ms"`
}

// HeadlessConfig configures the headless rendering fallback for crawls.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig sets where generated record files land.
type StorageConfig struct {
	Directory string `mapstructure:"directory"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the tracking database. An empty DSN selects the
// in-memory tracker, which also disables feed-state persistence.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for delivery notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9139)
	v.SetDefault("harvest.journal_config_path", "harvester.conf")
	v.SetDefault("harvest.output_format", "marcxml")
	v.SetDefault("harvest.max_tasklets", 8)
	v.SetDefault("harvest.ignore_robots", false)
	v.SetDefault("harvest.test_mode", false)
	v.SetDefault("translation.timeout_ms", 10000)
	v.SetDefault("translation.conversion_timeout_ms", 60000)
	v.SetDefault("translation.min_processing_time_ms", 200)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("storage.directory", "out")
	v.SetDefault("storage.prefix", "records")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the status server is enabled")
	}
	if c.Harvest.JournalConfigPath == "" {
		return fmt.Errorf("harvest.journal_config_path must be set")
	}
	if c.Harvest.MaxTasklets <= 0 {
		return fmt.Errorf("harvest.max_tasklets must be > 0")
	}
	switch c.Harvest.OutputFormat {
	case "marcxml", "marc21", "json":
	default:
		return fmt.Errorf("harvest.output_format must be marcxml, marc21, or json, got %q", c.Harvest.OutputFormat)
	}
	if c.Translation.TimeoutMs <= 0 {
		return fmt.Errorf("translation.timeout_ms must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// TranslationTimeout converts the configured request timeout to a Duration.
func (c Config) TranslationTimeout() time.Duration {
	return time.Duration(c.Translation.TimeoutMs) * time.Millisecond
}

// ConversionTimeout bounds one translation-service conversion round trip.
func (c Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Translation.ConversionTimeoutMs) * time.Millisecond
}

// MinProcessingTime is the floor between consecutive translation requests.
func (c Config) MinProcessingTime() time.Duration {
	return time.Duration(c.Translation.MinProcessingTimeMs) * time.Millisecond
}
