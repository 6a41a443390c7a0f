// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Site      SiteConfig      `yaml:"site" mapstructure:"site"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SiteConfig points at the documentation site being crawled.
type SiteConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CrawlConfig configures the crawl phase.
type CrawlConfig struct {
	MaxDepth  int `yaml:"max_depth" mapstructure:"max_depth"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// CacheConfig configures the two-tier page cache.
type CacheConfig struct {
	Root                 string `yaml:"root" mapstructure:"root"`
	TTLHours             int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	CleanupIntervalHours int    `yaml:"cleanup_interval_hours" mapstructure:"cleanup_interval_hours"`
}

// RateLimitConfig configures the upstream token bucket.
type RateLimitConfig struct {
	MaxTokens    int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RefillPerSec float64 `yaml:"refill_per_sec" mapstructure:"refill_per_sec"`
}

// RetryConfig configures retry backoff for page fetches.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS   int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS    int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
}

// CircuitConfig configures the upstream circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	SuccessThreshold int `yaml:"success_threshold" mapstructure:"success_threshold"`
}

// QueueConfig bounds concurrent page fetches.
type QueueConfig struct {
	MaxConcurrent   int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TaskTimeoutSecs int `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
}

// StoreConfig configures the crawl-run history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BaseDelay returns the retry base delay as a duration.
func (c RetryConfig) BaseDelay() time.Duration { return time.Duration(c.BaseDelayMS) * time.Millisecond }

// MaxDelay returns the retry delay ceiling as a duration.
func (c RetryConfig) MaxDelay() time.Duration { return time.Duration(c.MaxDelayMS) * time.Millisecond }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, "docfetch"))

	// Environment
	v.SetEnvPrefix("DOCFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://deepwiki.com")
	v.SetDefault("site.user_agent", "docfetch/1.0")
	v.SetDefault("site.timeout_secs", 30)
	v.SetDefault("crawl.max_depth", 1)
	v.SetDefault("crawl.batch_size", 5)
	v.SetDefault("cache.root", filepath.Join(xdg.CacheHome, "docfetch"))
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("cache.cleanup_interval_hours", 1)
	v.SetDefault("rate_limit.max_tokens", 10)
	v.SetDefault("rate_limit.refill_per_sec", 5.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 500)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("circuit.success_threshold", 3)
	v.SetDefault("queue.max_concurrent", 5)
	v.SetDefault("queue.task_timeout_secs", 30)
	v.SetDefault("store.path", filepath.Join(xdg.DataHome, "docfetch", "runs.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
