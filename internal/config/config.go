// Package config maps command line flags, environment variables and config
// files (all through viper) onto typed configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Flags use the same names; environment variables use the
// CHAINGUARD_ prefix with dashes replaced by underscores.
const (
	KeyNode           = "node"
	KeyTimeout        = "timeout"
	KeyCacheSize      = "cache-size"
	KeyLogLevel       = "log-level"
	KeyPrometheusAddr = "prometheus-addr"
	KeyMaxConcurrency = "max-concurrency"
	KeyMaxRetries     = "max-retries"
	KeyRetryBackoff   = "retry-backoff"
	KeyBlockTime      = "block-time"
	KeyLive           = "live"
	KeyProgress       = "progress"
)

type RPCConfig struct {
	Address   string
	Timeout   time.Duration
	CacheSize int
	// MaxRetries bounds how many times a poisoned connection is replaced
	// before an operation gives up.
	MaxRetries   uint
	RetryBackoff time.Duration
}

func (c RPCConfig) Validate() error {
	u, err := url.Parse(c.Address)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid node address %q", c.Address)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSize)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive, got %s", c.RetryBackoff)
	}
	return nil
}

type ScanConfig struct {
	MaxConcurrency uint
	// BlockTime is how long live mode waits between height polls.
	BlockTime time.Duration
	Live      bool
	Progress  bool
}

func (c ScanConfig) Validate() error {
	if c.MaxConcurrency == 0 {
		return fmt.Errorf("max concurrency must be at least 1")
	}
	if c.Live && c.BlockTime <= 0 {
		return fmt.Errorf("block time must be positive in live mode, got %s", c.BlockTime)
	}
	return nil
}

type Config struct {
	RPC            RPCConfig
	Scan           ScanConfig
	LogLevel       slog.Level
	PrometheusAddr string
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v.GetString(KeyLogLevel)))); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	cfg := Config{
		RPC: RPCConfig{
			Address:      v.GetString(KeyNode),
			Timeout:      v.GetDuration(KeyTimeout),
			CacheSize:    v.GetInt(KeyCacheSize),
			MaxRetries:   v.GetUint(KeyMaxRetries),
			RetryBackoff: v.GetDuration(KeyRetryBackoff),
		},
		Scan: ScanConfig{
			MaxConcurrency: v.GetUint(KeyMaxConcurrency),
			BlockTime:      v.GetDuration(KeyBlockTime),
			Live:           v.GetBool(KeyLive),
			Progress:       v.GetBool(KeyProgress),
		},
		LogLevel:       level,
		PrometheusAddr: v.GetString(KeyPrometheusAddr),
	}

	if err := cfg.RPC.Validate(); err != nil {
		return Config{}, err
	}
	if err := cfg.Scan.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNode, "http://127.0.0.1:18081")
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyCacheSize, 1024)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMaxConcurrency, 1)
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyRetryBackoff, time.Second)
	v.SetDefault(KeyBlockTime, 2*time.Minute)
	v.SetDefault(KeyProgress, true)
}
