// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trashgate/trashgate/pkg/types"
)

// RedisRateLimiter implements distributed rate limiting using Redis and GCRA
// (generic cell rate algorithm). GCRA tracks a theoretical arrival time per
// key and allows a request only when that time has not drifted more than the
// burst allowance ahead of now; a Lua script keeps the check-and-update
// atomic across gateway instances.
type RedisRateLimiter struct {
	client *redis.Client
	cfg    types.RateLimitConfig
}

// NewRedisRateLimiter connects to Redis and verifies the connection.
func NewRedisRateLimiter(cfg types.RateLimitConfig) (*RedisRateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisRateLimiter{client: client, cfg: cfg}, nil
}

// NewRedisRateLimiterWithClient creates a limiter over an existing client.
func NewRedisRateLimiterWithClient(client *redis.Client, cfg types.RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, cfg: cfg}
}

func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}

var gcraScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])        -- current time in microseconds
local burst = tonumber(ARGV[2])      -- burst size (max tokens)
local rate = tonumber(ARGV[3])       -- tokens per second
local ttl = tonumber(ARGV[4])        -- key TTL in seconds

local emission_interval = 1000000 / rate
local burst_offset = burst * emission_interval

local tat = redis.call("GET", key)
if tat then
    tat = tonumber(tat)
else
    tat = now
end

local new_tat = tat + emission_interval
local allow_at = now + burst_offset
if new_tat > allow_at then
    local reset_after = math.ceil((tat - now) / 1000)
    return {0, reset_after}
end

if tat < now then
    new_tat = now + emission_interval
end

redis.call("SET", key, new_tat, "EX", ttl)
local reset_after = math.ceil((new_tat - now) / 1000)
return {1, reset_after}
`)

// RateLimitResult is the outcome of one limit check.
type RateLimitResult struct {
	Allowed    bool
	ResetAfter time.Duration
}

// Allow checks whether one request for key may proceed, at the configured
// rate and burst. When Redis is unavailable the configured fail-open policy
// decides.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	return r.AllowN(ctx, key, r.cfg.RPS, r.cfg.Burst)
}

// AllowN checks the limit with explicit rate and burst values.
func (r *RedisRateLimiter) AllowN(ctx context.Context, key string, rps float64, burst int) (RateLimitResult, error) {
	fullKey := r.cfg.KeyPrefix + key
	now := time.Now().UnixMicro()
	ttlSeconds := int64(r.cfg.KeyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 3600
	}

	result, err := gcraScript.Run(ctx, r.client, []string{fullKey},
		now, burst, rps, ttlSeconds,
	).Int64Slice()

	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis rate limit check failed")
		if r.cfg.FailOpen {
			return RateLimitResult{Allowed: true}, nil
		}
		return RateLimitResult{}, err
	}

	return RateLimitResult{
		Allowed:    result[0] == 1,
		ResetAfter: time.Duration(result[1]) * time.Millisecond,
	}, nil
}
