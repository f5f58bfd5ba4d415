// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// Default undelete behavior, matching the storage backend's conventions.
const (
	DefaultTrashPrefix   = ".trash-"
	DefaultTrashLifetime = 86400 * 90 // 90 days expressed in seconds
)

// GatewayConfig holds the full configuration for the trashgate proxy.
type GatewayConfig struct {
	// Listen is the address the proxy listens on.
	Listen string `json:"listen" mapstructure:"listen"`

	// DebugListen is the address for metrics/pprof/health. Empty disables it.
	DebugListen string `json:"debug_listen" mapstructure:"debug_listen"`

	// Upstream is the base URL of the storage backend the proxy fronts.
	Upstream string `json:"upstream" mapstructure:"upstream"`

	// RequestTimeout bounds each backend round trip.
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`

	// MaxIdleConns tunes the pooled transport to the backend.
	MaxIdleConns int `json:"max_idle_conns" mapstructure:"max_idle_conns"`

	// MetadataCacheTTL controls how long scope sysmeta lookups are cached.
	// Zero disables caching.
	MetadataCacheTTL time.Duration `json:"metadata_cache_ttl" mapstructure:"metadata_cache_ttl"`

	// TrashPrefix is prepended to a container name to form its trash container.
	TrashPrefix string `json:"trash_prefix" mapstructure:"trash_prefix"`

	// TrashLifetime is how long, in seconds, trashed copies live before the
	// backend expires them. 0 keeps them forever.
	TrashLifetime int64 `json:"trash_lifetime" mapstructure:"trash_lifetime"`

	// BlockTrashDeletes rejects deletes from trash containers for all callers.
	BlockTrashDeletes bool `json:"block_trash_deletes" mapstructure:"block_trash_deletes"`

	// EnableByDefault is the undelete policy when no scope metadata opts in or out.
	EnableByDefault bool `json:"enable_by_default" mapstructure:"enable_by_default"`

	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig configures the optional request rate limiting filter.
type RateLimitConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// RPS and Burst bound requests per account.
	RPS   float64 `json:"rps" mapstructure:"rps"`
	Burst int     `json:"burst" mapstructure:"burst"`

	// Redis settings for distributed limiting across gateway instances.
	// When disabled, a local in-memory limiter is used.
	RedisEnabled  bool          `json:"redis_enabled" mapstructure:"redis_enabled"`
	RedisAddr     string        `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `json:"redis_db" mapstructure:"redis_db"`
	KeyPrefix     string        `json:"key_prefix" mapstructure:"key_prefix"`
	KeyTTL        time.Duration `json:"key_ttl" mapstructure:"key_ttl"`

	// FailOpen allows requests through when Redis is unavailable.
	FailOpen bool `json:"fail_open" mapstructure:"fail_open"`
}

// DefaultGatewayConfig returns a config with the documented defaults applied.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Listen:           ":8080",
		DebugListen:      ":9090",
		RequestTimeout:   60 * time.Second,
		MaxIdleConns:     100,
		MetadataCacheTTL: 10 * time.Second,
		TrashPrefix:      DefaultTrashPrefix,
		TrashLifetime:    DefaultTrashLifetime,
		EnableByDefault:  true,
		RateLimit: RateLimitConfig{
			RPS:       800,
			Burst:     1600,
			KeyPrefix: "trashgate:ratelimit:",
			KeyTTL:    time.Minute,
			FailOpen:  true,
		},
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *GatewayConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Upstream == "" {
		return fmt.Errorf("upstream backend URL is required")
	}
	u, err := url.Parse(c.Upstream)
	if err != nil {
		return fmt.Errorf("parse upstream URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream URL has no host")
	}
	if c.TrashPrefix == "" {
		return fmt.Errorf("trash_prefix must not be empty")
	}
	if c.TrashLifetime < 0 {
		return fmt.Errorf("trash_lifetime must be >= 0, got %d", c.TrashLifetime)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be > 0 when rate limiting is enabled")
		}
		if c.RateLimit.RedisEnabled && c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("rate_limit.redis_addr is required when redis limiting is enabled")
		}
	}
	return nil
}

// LoadGatewayConfigFromFile loads a gateway config from a JSON file, applying
// defaults for fields the file omits.
func LoadGatewayConfigFromFile(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultGatewayConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}

	return &cfg, nil
}
