// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "CONFIG_PATH"

// DefaultPath is used when PathEnv is unset.
const DefaultPath = "config.yml"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	DataVersion    string        `mapstructure:"data_version"`
	RootDataDir    string        `mapstructure:"root_data_dir"`
	GalleriesPages []string      `mapstructure:"galleries_pages"`
	Crawl          CrawlConfig   `mapstructure:"crawl"`
	HTTP           HTTPConfig    `mapstructure:"http"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Server         ServerConfig  `mapstructure:"server"`
	Publish        PublishConfig `mapstructure:"publish"`
}

// CrawlConfig governs the crawl drivers.
type CrawlConfig struct {
	BatchSize     int    `mapstructure:"batch_size"`
	ProgressEvery int    `mapstructure:"progress_every"`
	ArtworksLimit int    `mapstructure:"artworks_limit"`
	WikiartURL    string `mapstructure:"wikiart_url"`
}

// HTTPConfig configures the fetch transport and retry behavior.
type HTTPConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	MaxAttempts        int     `mapstructure:"max_attempts"`
	BackoffSeconds     float64 `mapstructure:"backoff_seconds"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RespectRobots      bool    `mapstructure:"respect_robots"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the recommendation API.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	MaxResults int `mapstructure:"max_results"`
}

// PublishConfig controls service-data packaging and optional upload.
type PublishConfig struct {
	Artifacts     []string `mapstructure:"artifacts"`
	GCSBucket     string   `mapstructure:"gcs_bucket"`
	Prefix        string   `mapstructure:"prefix"`
	PubSubProject string   `mapstructure:"pubsub_project"`
	PubSubTopic   string   `mapstructure:"pubsub_topic"`
}

// ResolvePath returns explicit when set, otherwise $CONFIG_PATH, otherwise
// DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := strings.TrimSpace(os.Getenv(PathEnv)); env != "" {
		return env
	}
	return DefaultPath
}

// Load builds a Config from disk/environment. A missing config file is an
// error: the harvester cannot guess its data directory.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARTHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		return Config{}, errors.New("config path is required")
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
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
	v.SetDefault("data_version", "01")
	v.SetDefault("root_data_dir", "data")
	v.SetDefault("galleries_pages", []string{})
	v.SetDefault("crawl.batch_size", 30)
	v.SetDefault("crawl.progress_every", 500)
	v.SetDefault("crawl.artworks_limit", 10)
	v.SetDefault("crawl.wikiart_url", "https://www.wikiart.org")
	v.SetDefault("http.user_agent", "artharvest/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_seconds", 1)
	v.SetDefault("http.rate_limit_per_second", 4)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_results", 50)
	v.SetDefault("publish.artifacts", []string{"tags_db.csv.gz", "content_db.csv.gz", "exhibitions_db.csv.gz"})
	v.SetDefault("publish.prefix", "service_data")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataVersion) == "" {
		return fmt.Errorf("data_version must be set")
	}
	if strings.ContainsAny(c.DataVersion, `/\`) {
		return fmt.Errorf("data_version must not contain path separators")
	}
	if strings.TrimSpace(c.RootDataDir) == "" {
		return fmt.Errorf("root_data_dir must be set")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.ProgressEvery <= 0 {
		return fmt.Errorf("crawl.progress_every must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffSeconds < 0 {
		return fmt.Errorf("http.backoff_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Publish.PubSubTopic != "" && c.Publish.PubSubProject == "" {
		return fmt.Errorf("publish.pubsub_project must be set when publish.pubsub_topic is set")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Backoff converts the retry delay into a duration.
func (c Config) Backoff() time.Duration {
	return time.Duration(c.HTTP.BackoffSeconds * float64(time.Second))
}
