// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trashgate/trashgate/pkg/debug"
	"github.com/trashgate/trashgate/pkg/env"
	"github.com/trashgate/trashgate/pkg/gateway"
	"github.com/trashgate/trashgate/pkg/gateway/filter"
	"github.com/trashgate/trashgate/pkg/logger"
	"github.com/trashgate/trashgate/pkg/storeclient"
	"github.com/trashgate/trashgate/pkg/types"
	"github.com/trashgate/trashgate/pkg/undelete"
	"github.com/trashgate/trashgate/pkg/utils"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the delete interception gateway",
	Long: `Start the trashgate proxy in front of a storage backend. Object deletes
are copied into per-container trash containers before they are forwarded;
account and container undelete policy is managed through the
X-Undelete-Enabled header.`,
	Run: runGatewayServer,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)

	f := gatewayCmd.Flags()
	f.String("config", "", "Path to a JSON config file (flags override it)")
	f.String("listen", ":8080", "Address the proxy listens on")
	f.String("debug_listen", ":9090", "Debug HTTP address (metrics, pprof, health); empty disables")
	f.String("upstream", "", "Base URL of the storage backend")
	f.Duration("request_timeout", 60*time.Second, "Timeout for backend round trips")
	f.Int("max_idle_conns", 100, "Maximum idle connections to the backend")
	f.Duration("metadata_cache_ttl", 10*time.Second, "TTL for cached sysmeta lookups; 0 disables caching")
	f.String("log_level", "info", "Log level (debug, info, warn, error, fatal)")

	f.String("trash_prefix", types.DefaultTrashPrefix, "Prefix for trash container names")
	f.Int64("trash_lifetime", types.DefaultTrashLifetime, "Seconds trashed copies live; 0 keeps them forever")
	f.Bool("block_trash_deletes", false, "Reject deletes from trash containers for all callers")
	f.Bool("enable_by_default", true, "Protect deletes when no account or container policy is set")

	// Rate limiting
	f.Bool("rate_limit_enabled", false, "Enable request rate limiting")
	f.Float64("rate_limit_rps", 800, "Requests per second allowed per account")
	f.Int("rate_limit_burst", 1600, "Burst size for rate limiting")
	f.Bool("rate_limit_redis_enabled", false, "Enable distributed rate limiting via Redis")
	f.String("rate_limit_redis_addr", "localhost:6379", "Redis address for distributed rate limiting")
	f.String("rate_limit_redis_password", "", "Redis password")
	f.Int("rate_limit_redis_db", 0, "Redis database number")
	f.Bool("rate_limit_redis_fail_open", true, "Allow requests when Redis is unavailable")

	viper.BindPFlags(f)
}

func runGatewayServer(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("gateway", false)
	cfg := loadGatewayConfig(cmd)

	if level, err := zerolog.ParseLevel(NewFlagLoader(cmd).String("log_level")); err == nil {
		logger.SetLevel(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	debug.SetNotReady()

	client, err := storeclient.New(cfg.Upstream, cfg.RequestTimeout, cfg.MaxIdleConns)
	if err != nil {
		logger.Fatal().Err(err).Str("upstream", cfg.Upstream).Msg("failed to create backend client")
	}

	undeleteCfg := undelete.Config{
		TrashPrefix:       cfg.TrashPrefix,
		TrashLifetime:     cfg.TrashLifetime,
		BlockTrashDeletes: cfg.BlockTrashDeletes,
		EnableByDefault:   cfg.EnableByDefault,
	}

	var meta undelete.MetadataSource = client
	var inval filter.Invalidator
	if cfg.MetadataCacheTTL > 0 {
		cached := undelete.NewCachedMetadata(client, cfg.MetadataCacheTTL)
		meta = cached
		inval = cached
	}

	chain := filter.NewChain()
	chain.AddFilter(filter.NewRequestIDFilter())
	chain.AddFilter(filter.NewAuthFilter())
	chain.AddFilter(filter.NewParserFilter())

	// Local development runs unthrottled
	if cfg.RateLimit.Enabled && !env.IsLocal() {
		var redisLimiter *filter.RedisRateLimiter
		if cfg.RateLimit.RedisEnabled {
			redisLimiter, err = filter.NewRedisRateLimiter(cfg.RateLimit)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to connect to redis for rate limiting")
			}
			defer redisLimiter.Close()
			logger.Info().Str("redis_addr", cfg.RateLimit.RedisAddr).Msg("distributed rate limiting enabled")
		}
		rateLimitFilter := filter.NewRateLimitFilter(cfg.RateLimit, redisLimiter)
		chain.AddFilter(rateLimitFilter)
		debug.Registry().MustRegister(rateLimitFilter.Metrics()...)
	}

	undeleteFilter := filter.NewUndeleteFilter(
		undeleteCfg,
		undelete.NewPolicy(undeleteCfg, meta),
		undelete.NewTrash(undeleteCfg, client),
		client,
		filter.WithInvalidator(inval),
	)
	chain.AddFilter(undeleteFilter)
	debug.Registry().MustRegister(undeleteFilter.Metrics()...)
	debug.Registry().MustRegister(chain.Metrics()...)

	server := gateway.NewServer(chain, client)
	debug.Registry().MustRegister(server.Metrics()...)

	httpServer := startHTTPServer(server, cfg.Listen)
	var debugServer *http.Server
	if cfg.DebugListen != "" {
		debug.RegisterHandler("/debug/version", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(VersionInfo()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}))
		debugServer = startHTTPServer(debug.GetMux(), cfg.DebugListen)
	}

	retention := "forever"
	if cfg.TrashLifetime > 0 {
		expiry := time.Now().Add(time.Duration(cfg.TrashLifetime) * time.Second)
		retention = humanize.RelTime(time.Now(), expiry, "", "")
	}
	logger.Info().
		Str("listen", cfg.Listen).
		Str("upstream", cfg.Upstream).
		Str("trash_prefix", cfg.TrashPrefix).
		Str("trash_retention", retention).
		Bool("block_trash_deletes", cfg.BlockTrashDeletes).
		Bool("enable_by_default", cfg.EnableByDefault).
		Msg("gateway started")

	debug.SetReady()
	waitForShutdown()
	debug.SetNotReady()

	httpServer.Shutdown(cmd.Context())
	if debugServer != nil {
		debugServer.Shutdown(cmd.Context())
	}
}

func loadGatewayConfig(cmd *cobra.Command) *types.GatewayConfig {
	f := NewFlagLoader(cmd)

	// An explicit JSON config file is the base when given; flags that were
	// actually set on the command line still win over it.
	if path := f.String("config"); path != "" {
		cfg, err := types.LoadGatewayConfigFromFile(utils.ResolvePath(path))
		if err != nil {
			logger.Fatal().Err(err).Str("path", path).Msg("failed to load config file")
		}
		applyChangedFlags(cmd, cfg)
		return cfg
	}

	return &types.GatewayConfig{
		Listen:            f.String("listen"),
		DebugListen:       f.String("debug_listen"),
		Upstream:          f.String("upstream"),
		RequestTimeout:    f.Duration("request_timeout"),
		MaxIdleConns:      f.Int("max_idle_conns"),
		MetadataCacheTTL:  f.Duration("metadata_cache_ttl"),
		TrashPrefix:       f.String("trash_prefix"),
		TrashLifetime:     f.Int64("trash_lifetime"),
		BlockTrashDeletes: f.Bool("block_trash_deletes"),
		EnableByDefault:   f.Bool("enable_by_default"),
		RateLimit: types.RateLimitConfig{
			Enabled:       f.Bool("rate_limit_enabled"),
			RPS:           f.Float64("rate_limit_rps"),
			Burst:         f.Int("rate_limit_burst"),
			RedisEnabled:  f.Bool("rate_limit_redis_enabled"),
			RedisAddr:     f.String("rate_limit_redis_addr"),
			RedisPassword: f.String("rate_limit_redis_password"),
			RedisDB:       f.Int("rate_limit_redis_db"),
			KeyPrefix:     "trashgate:ratelimit:",
			KeyTTL:        time.Minute,
			FailOpen:      f.Bool("rate_limit_redis_fail_open"),
		},
	}
}

func applyChangedFlags(cmd *cobra.Command, cfg *types.GatewayConfig) {
	fl := cmd.Flags()
	if fl.Changed("listen") {
		cfg.Listen, _ = fl.GetString("listen")
	}
	if fl.Changed("debug_listen") {
		cfg.DebugListen, _ = fl.GetString("debug_listen")
	}
	if fl.Changed("upstream") {
		cfg.Upstream, _ = fl.GetString("upstream")
	}
	if fl.Changed("request_timeout") {
		cfg.RequestTimeout, _ = fl.GetDuration("request_timeout")
	}
	if fl.Changed("max_idle_conns") {
		cfg.MaxIdleConns, _ = fl.GetInt("max_idle_conns")
	}
	if fl.Changed("metadata_cache_ttl") {
		cfg.MetadataCacheTTL, _ = fl.GetDuration("metadata_cache_ttl")
	}
	if fl.Changed("trash_prefix") {
		cfg.TrashPrefix, _ = fl.GetString("trash_prefix")
	}
	if fl.Changed("trash_lifetime") {
		cfg.TrashLifetime, _ = fl.GetInt64("trash_lifetime")
	}
	if fl.Changed("block_trash_deletes") {
		cfg.BlockTrashDeletes, _ = fl.GetBool("block_trash_deletes")
	}
	if fl.Changed("enable_by_default") {
		cfg.EnableByDefault, _ = fl.GetBool("enable_by_default")
	}
	if fl.Changed("rate_limit_enabled") {
		cfg.RateLimit.Enabled, _ = fl.GetBool("rate_limit_enabled")
	}
	if fl.Changed("rate_limit_rps") {
		cfg.RateLimit.RPS, _ = fl.GetFloat64("rate_limit_rps")
	}
	if fl.Changed("rate_limit_burst") {
		cfg.RateLimit.Burst, _ = fl.GetInt("rate_limit_burst")
	}
	if fl.Changed("rate_limit_redis_enabled") {
		cfg.RateLimit.RedisEnabled, _ = fl.GetBool("rate_limit_redis_enabled")
	}
	if fl.Changed("rate_limit_redis_addr") {
		cfg.RateLimit.RedisAddr, _ = fl.GetString("rate_limit_redis_addr")
	}
	if fl.Changed("rate_limit_redis_password") {
		cfg.RateLimit.RedisPassword, _ = fl.GetString("rate_limit_redis_password")
	}
	if fl.Changed("rate_limit_redis_db") {
		cfg.RateLimit.RedisDB, _ = fl.GetInt("rate_limit_redis_db")
	}
	if fl.Changed("rate_limit_redis_fail_open") {
		cfg.RateLimit.FailOpen, _ = fl.GetBool("rate_limit_redis_fail_open")
	}
}

func startHTTPServer(handler http.Handler, addr string) *http.Server {
	listener, err := utils.NewListener(addr, 0)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("failed to create HTTP listener")
	}

	httpServer := &http.Server{Handler: handler}
	go func() {
		logger.Info().Str("http_addr", addr).Msg("Starting HTTP server")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()
	return httpServer
}

func waitForShutdown() {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-stopChan
}
