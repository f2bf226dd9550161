// Package config assembles the service configuration from an optional YAML
// settings file and environment variables. The file carries operator-tunable
// knobs (listen address, rate limits, upstream URLs); secrets (the cookie
// signing key, API keys) come from the environment only.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted for cache.backend.
const (
	CacheBackendRedis  = "redis"
	CacheBackendSQLite = "sqlite"
)

// Config is the fully resolved service configuration.
type Config struct {
	HTTPAddr   string
	StaticDir  string
	SecretKey  string
	LogLevel   string
	LogFormat  string
	SessionTTL time.Duration

	Cache     CacheConfig
	Gemini    GeminiConfig
	NASA      NASAConfig
	SpaceDevs SpaceDevsConfig
	Limits    LimitsConfig
}

// CacheConfig selects and configures the conversation cache backend.
type CacheConfig struct {
	Backend       string // "redis" or "sqlite"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
}

// GeminiConfig configures the chat backend client.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NASAConfig configures the NASA data client.
type NASAConfig struct {
	APIKey         string
	BaseURL        string
	FireballMapURL string
}

// SpaceDevsConfig configures the launches/events/news client.
type SpaceDevsConfig struct {
	LaunchBaseURL string
	NewsBaseURL   string
}

// LimitsConfig holds the admission-control knobs.
type LimitsConfig struct {
	// DefaultPerMinute and DefaultPerSecond apply to every route per caller.
	DefaultPerMinute int
	DefaultPerSecond int
	// ChatSendEvery is the minimum spacing between chat sends per caller.
	ChatSendEvery time.Duration
	// FireballEvery is the minimum spacing between fireball-map fetches.
	FireballEvery time.Duration
}

// defaults returns the built-in configuration, before file and env overlays.
func defaults() *Config {
	return &Config{
		HTTPAddr:   ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		SessionTTL: time.Hour,
		Cache: CacheConfig{
			Backend:    CacheBackendRedis,
			RedisAddr:  "localhost:6379",
			SQLitePath: "./skywatch-cache.db",
		},
		Limits: LimitsConfig{
			DefaultPerMinute: 600,
			DefaultPerSecond: 10,
			ChatSendEvery:    4 * time.Second,
			FireballEvery:    10 * time.Second,
		},
	}
}

// Load resolves the configuration: built-in defaults, then the YAML settings
// file named by SKYWATCH_SETTINGS (if set), then environment variables.
// SECRET_KEY and GEMINI_API_KEY are required.
func Load() (*Config, error) {
	cfg := defaults()

	if path := envStringOr("SKYWATCH_SETTINGS", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read settings %q: %w", path, err)
		}
		settings, err := ParseSettings(data)
		if err != nil {
			return nil, fmt.Errorf("config: settings %q: %w", path, err)
		}
		settings.apply(cfg)
	}

	cfg.HTTPAddr = envStringOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.StaticDir = envStringOr("STATIC_DIR", cfg.StaticDir)
	cfg.LogLevel = envStringOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envStringOr("LOG_FORMAT", cfg.LogFormat)
	cfg.SessionTTL = envDurationOr("SESSION_TTL", cfg.SessionTTL)

	cfg.Cache.Backend = envStringOr("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = envStringOr("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = envStringOr("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = envIntOr("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.SQLitePath = envStringOr("CACHE_SQLITE_PATH", cfg.Cache.SQLitePath)

	cfg.NASA.APIKey = envStringOr("NASA_API_KEY", cfg.NASA.APIKey)

	var err error
	if cfg.SecretKey, err = envRequired("SECRET_KEY"); err != nil {
		return nil, err
	}
	if cfg.Gemini.APIKey, err = envRequired("GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if cfg.Cache.Backend != CacheBackendRedis && cfg.Cache.Backend != CacheBackendSQLite {
		return nil, fmt.Errorf("config: unknown cache backend %q", cfg.Cache.Backend)
	}
	return cfg, nil
}

// Settings is the YAML settings-file document.
type Settings struct {
	Listen     string `yaml:"listen"`
	StaticDir  string `yaml:"static_dir"`
	SessionTTL string `yaml:"session_ttl"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Cache struct {
		Backend    string `yaml:"backend"`
		RedisAddr  string `yaml:"redis_addr"`
		RedisDB    int    `yaml:"redis_db"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"cache"`

	Gemini struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"gemini"`

	NASA struct {
		BaseURL        string `yaml:"base_url"`
		FireballMapURL string `yaml:"fireball_map_url"`
	} `yaml:"nasa"`

	SpaceDevs struct {
		LaunchBaseURL string `yaml:"launch_base_url"`
		NewsBaseURL   string `yaml:"news_base_url"`
	} `yaml:"spacedevs"`

	Limits struct {
		DefaultPerMinute int    `yaml:"default_per_minute"`
		DefaultPerSecond int    `yaml:"default_per_second"`
		ChatSendEvery    string `yaml:"chat_send_every"`
		FireballEvery    string `yaml:"fireball_every"`
	} `yaml:"limits"`
}

// ParseSettings decodes and validates a settings document. Validation runs
// against the embedded JSON Schema first, so structural mistakes (unknown
// keys, wrong types, bad enum values) produce a schema error naming the
// offending field.
func ParseSettings(data []byte) (*Settings, error) {
	if err := validateSettings(data); err != nil {
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &s, nil
}

// apply overlays the non-zero file settings onto cfg.
func (s *Settings) apply(cfg *Config) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v string) {
		// The schema already constrained v to a duration literal.
		if v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setStr(&cfg.HTTPAddr, s.Listen)
	setStr(&cfg.StaticDir, s.StaticDir)
	setDur(&cfg.SessionTTL, s.SessionTTL)
	setStr(&cfg.LogLevel, s.Log.Level)
	setStr(&cfg.LogFormat, s.Log.Format)

	setStr(&cfg.Cache.Backend, s.Cache.Backend)
	setStr(&cfg.Cache.RedisAddr, s.Cache.RedisAddr)
	if s.Cache.RedisDB != 0 {
		cfg.Cache.RedisDB = s.Cache.RedisDB
	}
	setStr(&cfg.Cache.SQLitePath, s.Cache.SQLitePath)

	setStr(&cfg.Gemini.BaseURL, s.Gemini.BaseURL)
	setStr(&cfg.Gemini.Model, s.Gemini.Model)
	setStr(&cfg.NASA.BaseURL, s.NASA.BaseURL)
	setStr(&cfg.NASA.FireballMapURL, s.NASA.FireballMapURL)
	setStr(&cfg.SpaceDevs.LaunchBaseURL, s.SpaceDevs.LaunchBaseURL)
	setStr(&cfg.SpaceDevs.NewsBaseURL, s.SpaceDevs.NewsBaseURL)

	if s.Limits.DefaultPerMinute > 0 {
		cfg.Limits.DefaultPerMinute = s.Limits.DefaultPerMinute
	}
	if s.Limits.DefaultPerSecond > 0 {
		cfg.Limits.DefaultPerSecond = s.Limits.DefaultPerSecond
	}
	setDur(&cfg.Limits.ChatSendEvery, s.Limits.ChatSendEvery)
	setDur(&cfg.Limits.FireballEvery, s.Limits.FireballEvery)
}
