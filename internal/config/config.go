package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pricewatch/internal/item"
)

// ItemConfig is one tracked item: an identifier key ("app/220", "sub/469",
// or a free-text name) plus an optional display-name hint.
type ItemConfig struct {
	Key      string `mapstructure:"key"`
	NameHint string `mapstructure:"name_hint"`
}

// Config holds all configuration for the pricewatch daemon.
type Config struct {
	// Base URLs for the remote sources (configurable for testing)
	CatalogBaseURL string `mapstructure:"catalog_base_url"`
	MarketBaseURL  string `mapstructure:"market_base_url"`
	ManncoBaseURL  string `mapstructure:"mannco_base_url"`

	// Outbound request pacing
	RequestInterval time.Duration `mapstructure:"request_interval"`
	RequestJitter   time.Duration `mapstructure:"request_jitter"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`

	// Cache persistence: redis when an address is set, a JSON snapshot
	// file otherwise
	CachePath     string `mapstructure:"cache_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	// HTTP surface
	ListenAddr string `mapstructure:"listen_addr"`

	// Startup behavior
	AutoCheckCount int          `mapstructure:"auto_check_count"`
	Items          []ItemConfig `mapstructure:"items"`
}

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over config file
// values.
//
// Recognized environment variables:
//   - CATALOG_BASE_URL, MARKET_BASE_URL, MANNCO_BASE_URL (optional,
//     default to the production sources)
//   - REQUEST_INTERVAL, REQUEST_JITTER, FETCH_TIMEOUT (durations)
//   - CACHE_PATH
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, REDIS_KEY
//   - LISTEN_ADDR
//   - AUTO_CHECK_COUNT
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog_base_url", "https://gg.deals")
	v.SetDefault("market_base_url", "https://steamcommunity.com")
	v.SetDefault("mannco_base_url", "https://mannco.store")
	v.SetDefault("request_interval", "6s")
	v.SetDefault("request_jitter", "0s")
	v.SetDefault("fetch_timeout", "30s")
	v.SetDefault("cache_path", "pricewatch.json")
	v.SetDefault("redis_key", "pricewatch:cache")
	v.SetDefault("listen_addr", ":8417")
	v.SetDefault("auto_check_count", 0)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.pricewatch")
	_ = v.ReadInConfig()

	// Bind environment variables
	v.BindEnv("catalog_base_url", "CATALOG_BASE_URL")
	v.BindEnv("market_base_url", "MARKET_BASE_URL")
	v.BindEnv("mannco_base_url", "MANNCO_BASE_URL")
	v.BindEnv("request_interval", "REQUEST_INTERVAL")
	v.BindEnv("request_jitter", "REQUEST_JITTER")
	v.BindEnv("fetch_timeout", "FETCH_TIMEOUT")
	v.BindEnv("cache_path", "CACHE_PATH")
	v.BindEnv("redis_addr", "REDIS_ADDR")
	v.BindEnv("redis_password", "REDIS_PASSWORD")
	v.BindEnv("redis_db", "REDIS_DB")
	v.BindEnv("redis_key", "REDIS_KEY")
	v.BindEnv("listen_addr", "LISTEN_ADDR")
	v.BindEnv("auto_check_count", "AUTO_CHECK_COUNT")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.RequestInterval <= 0 {
		problems = append(problems, "request_interval must be positive")
	}
	if c.RequestJitter < 0 {
		problems = append(problems, "request_jitter must not be negative")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "fetch_timeout must be positive")
	}
	if c.RedisAddr == "" && c.CachePath == "" {
		problems = append(problems, "cache_path is required without redis_addr")
	}
	for i, it := range c.Items {
		if strings.TrimSpace(it.Key) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].key is empty", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Descriptors converts the configured items into tracked descriptors.
func (c *Config) Descriptors() []item.Descriptor {
	out := make([]item.Descriptor, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, item.Descriptor{
			ID:       item.ParseKey(strings.TrimSpace(it.Key)),
			NameHint: it.NameHint,
		})
	}
	return out
}
