// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig            `mapstructure:"server"`
	HTTP    HTTPConfig              `mapstructure:"http"`
	Render  RenderConfig            `mapstructure:"render"`
	Storage StorageConfig           `mapstructure:"storage"`
	DB      DBConfig                `mapstructure:"db"`
	PubSub  PubSubConfig            `mapstructure:"pubsub"`
	Logging LoggingConfig           `mapstructure:"logging"`
	Sources map[string]SourceConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	MaxRetries     int               `mapstructure:"max_retries"`
	RespectRobots  bool              `mapstructure:"respect_robots"`
	DefaultHeaders map[string]string `mapstructure:"default_headers"`
}

// RenderConfig configures the headless rendering strategy.
type RenderConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// StorageConfig selects and parameterizes the blob store backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // gcs, local, memory
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the content metadata database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig is the validated per-source shape the core consumes. The
// cadence and concurrency hint are carried for the external orchestrator and
// never interpreted here.
type SourceConfig struct {
	Spider           string            `mapstructure:"spider"`
	FeedURL          string            `mapstructure:"feed_url"`
	Cadence          string            `mapstructure:"cadence"`
	QPS              float64           `mapstructure:"qps"`
	DelaySeconds     float64           `mapstructure:"delay_seconds"`
	Jitter           bool              `mapstructure:"jitter"`
	Concurrency      int               `mapstructure:"concurrency"`
	MaxItems         int               `mapstructure:"max_items"`
	FetchFullContent bool              `mapstructure:"fetch_full_content"`
	UseRender        bool              `mapstructure:"use_render"`
	Headers          map[string]string `mapstructure:"headers"`
	Language         string            `mapstructure:"language"`
}

// Delay converts the configured delay into a duration.
func (s SourceConfig) Delay() time.Duration {
	return time.Duration(s.DelaySeconds * float64(time.Second))
}

// Throttled reports whether any throttling parameter is set.
func (s SourceConfig) Throttled() bool {
	return s.QPS > 0 || s.DelaySeconds > 0
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.user_agent", "leobrain-crawler/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.respect_robots", true)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.nav_timeout_seconds", 45)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("db.table", "contents")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Per-source shapes
// are validated here so a bad source fails at startup, not mid-run.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	for name, src := range c.Sources {
		if src.Spider == "" {
			return fmt.Errorf("sources.%s: spider is required", name)
		}
		if src.FeedURL == "" {
			return fmt.Errorf("sources.%s: feed_url is required", name)
		}
		if src.QPS < 0 || src.DelaySeconds < 0 {
			return fmt.Errorf("sources.%s: throttle values must be >= 0", name)
		}
	}
	return nil
}

// Timeout converts the HTTP timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
