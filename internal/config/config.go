// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Manual cycle triggers allowed per caller per window; 0 disables the limit.
	TriggerLimit  int           `yaml:"trigger_limit"`
	TriggerWindow time.Duration `yaml:"trigger_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan cache ttl
}

// BillingConfig holds the default scheduling policy for billing-cycle runs.
type BillingConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	ConcurrencyLimit int           `yaml:"concurrency_limit"`
	InterBatchDelay  time.Duration `yaml:"inter_batch_delay"`
	GatewayTimeout   time.Duration `yaml:"gateway_timeout"`
	CycleInterval    time.Duration `yaml:"cycle_interval"` // 0 disables the periodic worker
	CycleLockTTL     time.Duration `yaml:"cycle_lock_ttl"`
	ReapInterval     time.Duration `yaml:"reap_interval"`
	StaleJobAfter    time.Duration `yaml:"stale_job_after"` // running jobs older than this are reaped
}

// GatewayConfig tunes the simulated payment gateway and its limiter.
type GatewayConfig struct {
	SuccessRate   float64       `yaml:"success_rate"`
	TimeoutRate   float64       `yaml:"timeout_rate"`
	MinLatency    time.Duration `yaml:"min_latency"`
	MaxLatency    time.Duration `yaml:"max_latency"`
	RateLimit     float64       `yaml:"rate_limit"` // charges per second, 0 = unlimited
	Burst         int           `yaml:"burst"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Billing  BillingConfig  `yaml:"billing"`
	Gateway  GatewayConfig  `yaml:"gateway"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes YAML, applies env overrides and defaults, and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Gateway.SuccessRate < 0 || cfg.Gateway.SuccessRate > 1 {
		return nil, errors.New("gateway.success_rate must be within [0,1]")
	}
	if cfg.Gateway.MinLatency > cfg.Gateway.MaxLatency {
		return nil, errors.New("gateway.min_latency must not exceed gateway.max_latency")
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.TriggerWindow <= 0 {
		cfg.HTTP.TriggerWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Billing.BatchSize <= 0 {
		cfg.Billing.BatchSize = 10
	}
	if cfg.Billing.ConcurrencyLimit <= 0 {
		cfg.Billing.ConcurrencyLimit = cfg.Billing.BatchSize
	}
	if cfg.Billing.InterBatchDelay < 0 {
		cfg.Billing.InterBatchDelay = 0
	} else if cfg.Billing.InterBatchDelay == 0 {
		cfg.Billing.InterBatchDelay = 100 * time.Millisecond
	}
	if cfg.Billing.GatewayTimeout <= 0 {
		cfg.Billing.GatewayTimeout = 10 * time.Second
	}
	if cfg.Billing.CycleLockTTL <= 0 {
		cfg.Billing.CycleLockTTL = 30 * time.Minute
	}
	if cfg.Billing.ReapInterval <= 0 {
		cfg.Billing.ReapInterval = time.Minute
	}
	if cfg.Billing.StaleJobAfter <= 0 {
		cfg.Billing.StaleJobAfter = 2 * cfg.Billing.CycleLockTTL
	}

	if cfg.Gateway.SuccessRate == 0 {
		cfg.Gateway.SuccessRate = 0.92
	}
	if cfg.Gateway.TimeoutRate == 0 {
		cfg.Gateway.TimeoutRate = 0.01
	}
	if cfg.Gateway.MinLatency == 0 && cfg.Gateway.MaxLatency == 0 {
		cfg.Gateway.MinLatency = 150 * time.Millisecond
		cfg.Gateway.MaxLatency = 800 * time.Millisecond
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
