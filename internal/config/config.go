// Package config loads and validates the application configuration. The
// resulting Config is immutable after Load and passed explicitly to every
// component; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amaumene/gocomet/internal/constants"
)

// Tie-break policy tokens for duplicate content found via multiple sources.
const (
	TiebreakSeeders = "seeders"
	TiebreakTrust   = "trust"
	TiebreakFirst   = "first"
)

// SourceConfig describes one enabled indexer source.
type SourceConfig struct {
	Name          string        `mapstructure:"name"`
	Enabled       bool          `mapstructure:"enabled"`
	TrustPriority int           `mapstructure:"trust_priority"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BaseURL       string        `mapstructure:"base_url"`
}

// ProviderConfig describes one enabled debrid provider.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// CacheConfig holds resolution cache sizing and TTLs.
type CacheConfig struct {
	Capacity               int           `mapstructure:"capacity"`
	PositiveTTL            time.Duration `mapstructure:"positive_ttl"`
	NegativeFailedTTL      time.Duration `mapstructure:"negative_failed_ttl"`
	NegativeUnavailableTTL time.Duration `mapstructure:"negative_unavailable_ttl"`
	SearchTTL              time.Duration `mapstructure:"search_ttl"`
	SweepInterval          time.Duration `mapstructure:"sweep_interval"`
}

// RankingConfig holds the scoring weights and the resolution preference order.
type RankingConfig struct {
	SeedersWeight    float64  `mapstructure:"seeders_weight"`
	ResolutionWeight float64  `mapstructure:"resolution_weight"`
	CodecBonus       float64  `mapstructure:"codec_bonus"`
	HDRBonus         float64  `mapstructure:"hdr_bonus"`
	SizePenalty      float64  `mapstructure:"size_penalty"`
	ResolutionOrder  []string `mapstructure:"resolution_order"`
	SeederSaturation int      `mapstructure:"seeder_saturation"`
}

// Config is the root configuration.
type Config struct {
	ListenAddr      string           `mapstructure:"listen_addr"`
	LogLevel        string           `mapstructure:"log_level"`
	DatabasePath    string           `mapstructure:"database_path"`
	SearchDeadline  time.Duration    `mapstructure:"search_deadline"`
	ProviderTimeout time.Duration    `mapstructure:"provider_timeout"`
	DedupTiebreak   []string         `mapstructure:"dedup_tiebreak"`
	Sources         []SourceConfig   `mapstructure:"sources"`
	Providers       []ProviderConfig `mapstructure:"providers"`
	Cache           CacheConfig      `mapstructure:"cache"`
	Ranking         RankingConfig    `mapstructure:"ranking"`
	MagnetMaxAge    time.Duration    `mapstructure:"magnet_max_age"`
	CleanupInterval time.Duration    `mapstructure:"cleanup_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8085")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_path", "./gocomet.db")
	v.SetDefault("search_deadline", constants.DefaultSearchDeadline)
	v.SetDefault("provider_timeout", constants.DefaultProviderTimeout)
	v.SetDefault("dedup_tiebreak", []string{TiebreakSeeders, TiebreakTrust, TiebreakFirst})
	v.SetDefault("cache.capacity", constants.DefaultCacheCapacity)
	v.SetDefault("cache.positive_ttl", constants.DefaultPositiveTTL)
	v.SetDefault("cache.negative_failed_ttl", constants.DefaultNegativeFailedTTL)
	v.SetDefault("cache.negative_unavailable_ttl", constants.DefaultNegativeUnavailableTTL)
	v.SetDefault("cache.search_ttl", constants.DefaultSearchTTL)
	v.SetDefault("cache.sweep_interval", constants.DefaultCacheSweepInterval)
	v.SetDefault("ranking.seeders_weight", 40.0)
	v.SetDefault("ranking.resolution_weight", 30.0)
	v.SetDefault("ranking.codec_bonus", 5.0)
	v.SetDefault("ranking.hdr_bonus", 5.0)
	v.SetDefault("ranking.size_penalty", 20.0)
	v.SetDefault("ranking.resolution_order", []string{"2160p", "1080p", "720p", "480p"})
	v.SetDefault("ranking.seeder_saturation", constants.SeederSaturation)
	v.SetDefault("magnet_max_age", constants.DefaultMagnetMaxAge)
	v.SetDefault("cleanup_interval", constants.DefaultCleanupInterval)
}

// Load reads configuration from the given file (optional) and from GOCOMET_*
// environment variables, environment winning.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("gocomet")
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
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SearchDeadline <= 0 {
		return fmt.Errorf("search_deadline must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			return fmt.Errorf("source %d has no name", i)
		}
		if s.Timeout <= 0 {
			s.Timeout = constants.DefaultSourceTimeout
		}
		if s.Timeout >= c.SearchDeadline {
			return fmt.Errorf("source %s timeout must be shorter than the search deadline", s.Name)
		}
	}
	for _, tb := range c.DedupTiebreak {
		switch tb {
		case TiebreakSeeders, TiebreakTrust, TiebreakFirst:
		default:
			return fmt.Errorf("unknown dedup_tiebreak policy %q", tb)
		}
	}
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		if p.APIKey == "" {
			return fmt.Errorf("provider %s has no api_key", p.Name)
		}
	}
	return nil
}

// EnabledSources returns the configured sources that are enabled, in
// configuration order. The order is the deterministic iteration order used by
// the dedup first-encountered tie-break.
func (c *Config) EnabledSources() []SourceConfig {
	out := make([]SourceConfig, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// TrustPriorities returns sourceName -> trust priority for the merge step.
func (c *Config) TrustPriorities() map[string]int {
	m := make(map[string]int, len(c.Sources))
	for _, s := range c.Sources {
		m[s.Name] = s.TrustPriority
	}
	return m
}

// ResolutionPriority returns the preference rank of a resolution tag: lower is
// better, len(order) when the tag is absent or unknown.
func (c *Config) ResolutionPriority(resolution string) int {
	for i, r := range c.Ranking.ResolutionOrder {
		if strings.EqualFold(r, resolution) {
			return i
		}
	}
	return len(c.Ranking.ResolutionOrder)
}
