// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
	"github.com/madun/platform-nlp-dqm/internal/quality"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	DB         DBConfig         `mapstructure:"db"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Quality    QualityConfig    `mapstructure:"quality"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

// QualityConfig carries the gate rule weights and per-platform thresholds.
// Platforms absent from the map fall back to quality.DefaultThresholds.
type QualityConfig struct {
	Weights    quality.Weights                          `mapstructure:"weights"`
	Thresholds map[pipeline.Platform]quality.Thresholds `mapstructure:"thresholds"`
}

// ServerConfig controls the read API server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// BrowserConfig governs the browser acquisition engine.
type BrowserConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	BaseURL            string   `mapstructure:"base_url"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	Verification       string   `mapstructure:"verification"`
	Headless           bool     `mapstructure:"headless"`
	UserAgent          string   `mapstructure:"user_agent"`
	NavTimeoutSec      int      `mapstructure:"nav_timeout_seconds"`
	Keywords           []string `mapstructure:"keywords"`
	MaxItemsPerKeyword int      `mapstructure:"max_items_per_keyword"`
	StagnationLimit    int      `mapstructure:"stagnation_limit"`
	ScrollDelaySec     int      `mapstructure:"scroll_delay_seconds"`
	MaxDeferred        int      `mapstructure:"max_deferred"`
}

// YouTubeConfig governs the API acquisition engine.
type YouTubeConfig struct {
	Enabled             bool           `mapstructure:"enabled"`
	APIKey              string         `mapstructure:"api_key"`
	BaseURL             string         `mapstructure:"base_url"`
	QuotaBudget         int            `mapstructure:"quota_budget"`
	MaxCommentsPerVideo int            `mapstructure:"max_comments_per_video"`
	MaxVideosPerChannel int            `mapstructure:"max_videos_per_channel"`
	CommentPageSize     int            `mapstructure:"comment_page_size"`
	Targets             []TargetConfig `mapstructure:"targets"`
}

// TargetConfig seeds the acquisition whitelist when no database backs it.
type TargetConfig struct {
	Type     string `mapstructure:"type"`
	ID       string `mapstructure:"id"`
	Priority int    `mapstructure:"priority"`
	MaxItems int    `mapstructure:"max_items"`
}

// RateLimitConfig sets the shared request cadence and backoff policy.
type RateLimitConfig struct {
	RequestIntervalSec int `mapstructure:"request_interval_seconds"`
	BackoffBaseSec     int `mapstructure:"backoff_base_seconds"`
	BackoffMaxAttempts int `mapstructure:"backoff_max_attempts"`
}

// SentimentConfig tunes the sentiment classifier.
type SentimentConfig struct {
	ThresholdHigh float64 `mapstructure:"threshold_high"`
	ThresholdLow  float64 `mapstructure:"threshold_low"`
	TopKeywords   int     `mapstructure:"top_keywords"`
}

// EnrichmentConfig bounds the enrichment backlog processing.
type EnrichmentConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	Workers   int `mapstructure:"workers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
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

// setDefaults registers every key the config knows about. Keys without a
// meaningful default still get a zero value: AutomaticEnv only surfaces
// environment overrides for keys viper has seen.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 60)
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.base_url", "https://x.com")
	v.SetDefault("browser.username", "")
	v.SetDefault("browser.password", "")
	v.SetDefault("browser.verification", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.keywords", []string{})
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.max_items_per_keyword", 100)
	v.SetDefault("browser.stagnation_limit", 3)
	v.SetDefault("browser.scroll_delay_seconds", 2)
	v.SetDefault("browser.max_deferred", 10)
	v.SetDefault("youtube.enabled", false)
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.base_url", "")
	v.SetDefault("youtube.quota_budget", 10000)
	v.SetDefault("youtube.max_comments_per_video", 200)
	v.SetDefault("youtube.max_videos_per_channel", 10)
	v.SetDefault("youtube.comment_page_size", 100)
	v.SetDefault("rate_limit.request_interval_seconds", 3)
	v.SetDefault("rate_limit.backoff_base_seconds", 5)
	v.SetDefault("rate_limit.backoff_max_attempts", 3)
	w := quality.DefaultWeights()
	v.SetDefault("quality.weights.duplicate", w.Duplicate)
	v.SetDefault("quality.weights.language", w.Language)
	v.SetDefault("quality.weights.min_length", w.MinLength)
	v.SetDefault("quality.weights.max_length", w.MaxLength)
	v.SetDefault("quality.weights.bot", w.Bot)
	v.SetDefault("quality.weights.url_count", w.URLCount)
	v.SetDefault("quality.weights.mention_count", w.MentionCount)
	v.SetDefault("quality.weights.emoji", w.Emoji)
	v.SetDefault("quality.weights.repeated_word", w.RepeatedWord)
	v.SetDefault("sentiment.threshold_high", 0.8)
	v.SetDefault("sentiment.threshold_low", -0.8)
	v.SetDefault("sentiment.top_keywords", 10)
	v.SetDefault("enrichment.batch_size", 100)
	v.SetDefault("enrichment.workers", 4)
}

// Validate enforces required values and reasonable limits. The API key is a
// startup failure only for the engine that needs it; browser credentials are
// always optional.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.Enabled && len(c.Browser.Keywords) == 0 {
		return fmt.Errorf("browser.keywords must be set when the browser engine is enabled")
	}
	if c.YouTube.Enabled && c.YouTube.APIKey == "" {
		return fmt.Errorf("youtube.api_key must be set when the youtube engine is enabled")
	}
	if c.RateLimit.RequestIntervalSec <= 0 {
		return fmt.Errorf("rate_limit.request_interval_seconds must be > 0")
	}
	if c.RateLimit.BackoffMaxAttempts <= 0 {
		return fmt.Errorf("rate_limit.backoff_max_attempts must be > 0")
	}
	if c.Sentiment.ThresholdHigh <= c.Sentiment.ThresholdLow {
		return fmt.Errorf("sentiment.threshold_high must exceed sentiment.threshold_low")
	}
	if c.Enrichment.BatchSize <= 0 {
		return fmt.Errorf("enrichment.batch_size must be > 0")
	}
	return nil
}

// RequestInterval returns the throttle interval as a duration.
func (c Config) RequestInterval() time.Duration {
	return time.Duration(c.RateLimit.RequestIntervalSec) * time.Second
}

// BackoffBase returns the backoff base delay as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.RateLimit.BackoffBaseSec) * time.Second
}
