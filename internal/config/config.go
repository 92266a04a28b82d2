// Package config loads service settings from an optional TOML file and
// environment variable overrides.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	fp "github.com/jarvis-network/synthereum-sub002/internal/fixedpoint"
	"github.com/jarvis-network/synthereum-sub002/internal/model"
)

// Config is the service configuration.
type Config struct {
	Port        string   `toml:"port"`
	DatabaseURL string   `toml:"database_url"`
	RedisURL    string   `toml:"redis_url"`
	CacheTTL    Duration `toml:"cache_ttl"`
	Quote       Quote    `toml:"quote"`
	Pools       []Pool   `toml:"pools"`
}

// Quote configures the per-client quote rate limit.
type Quote struct {
	RatePerMinute float64 `toml:"rate_per_minute"`
	Burst         int     `toml:"burst"`
}

// Pool seeds a pool's parameters at startup. Numbers are decimal strings.
type Pool struct {
	ID                     string   `toml:"id"`
	CollateralizationRatio fp.Value `toml:"collateralization_ratio"`
	LiquidationRatio       fp.Value `toml:"liquidation_ratio"`
	CollateralRequirement  fp.Value `toml:"collateral_requirement"`
	FeePercentage          fp.Value `toml:"fee_percentage"`
	CapDepositRatio        fp.Value `toml:"cap_deposit_ratio"`
	CapMintAmount          fp.Value `toml:"cap_mint_amount"`
	MinSponsorTokens       fp.Value `toml:"min_sponsor_tokens"`
	CollateralDecimals     uint8    `toml:"collateral_decimals"`
	SyntheticDecimals      uint8    `toml:"synthetic_decimals"`
}

// Model converts the seed entry to a pool snapshot without a price.
func (p Pool) Model(now time.Time) *model.Pool {
	return &model.Pool{
		ID:                     p.ID,
		CollateralizationRatio: p.CollateralizationRatio,
		LiquidationRatio:       p.LiquidationRatio,
		CollateralRequirement:  p.CollateralRequirement,
		FeePercentage:          p.FeePercentage,
		CapDepositRatio:        p.CapDepositRatio,
		CapMintAmount:          p.CapMintAmount,
		MinSponsorTokens:       p.MinSponsorTokens,
		CollateralDecimals:     p.CollateralDecimals,
		SyntheticDecimals:      p.SyntheticDecimals,
		UpdatedAt:              now,
	}
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Port:     "8080",
		CacheTTL: Duration{30 * time.Second},
		Quote: Quote{
			RatePerMinute: 600,
			Burst:         20,
		},
	}
}

// Load reads the TOML file at path, if path is non-empty, over the defaults
// and then applies environment overrides looked up with getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if getenv != nil {
		if err := cfg.applyEnv(getenv); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := getenv("CACHE_TTL"); v != "" {
		if err := c.CacheTTL.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
	}
	if v := getenv("QUOTE_RATE_PER_MINUTE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("QUOTE_RATE_PER_MINUTE: %w", err)
		}
		c.Quote.RatePerMinute = rate
	}
	if v := getenv("QUOTE_RATE_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QUOTE_RATE_BURST: %w", err)
		}
		c.Quote.Burst = burst
	}
	return nil
}
