package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pbnj/cfg"
	"pbnj/svc/api"
	"pbnj/svc/auth"
	"pbnj/svc/cache"
	"pbnj/svc/db"
	"pbnj/svc/hl"
	"pbnj/svc/lim"
	"pbnj/svc/svc"
	"pbnj/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthCheck())
	}

	c, err := cfg.Load()
	if err != nil {
		util.InitLog("info", false)
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	util.InitLog(c.LogLevel, c.Environment == "development")
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.Info().Str("environment", c.Environment).Msg("starting pbnj")

	style, err := util.ParseIDStyle(c.IDStyle)
	if err != nil {
		util.Fatal().Err(err).Msg("invalid id style")
	}
	ids, err := util.NewIDGenerator(style)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to build id generator")
	}

	var engine hl.Engine = hl.Disabled{}
	if c.HighlightEnabled {
		engine = hl.NewChroma(c.HighlightTheme)
	}
	renderer := hl.NewRenderer(engine, c.HighlightTheme, c.PreviewLength)
	util.Info().
		Bool("highlight", c.HighlightEnabled).
		Str("theme", c.HighlightTheme).
		Str("render_mode", string(c.RenderMode)).
		Msg("renderer initialized")

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Str("path", c.DatabasePath).Msg("failed to initialize database")
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	var shared svc.SharedCache
	var counter lim.Counter
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis configured but unreachable")
			}
			util.Warn().Err(err).Msg("redis unavailable, continuing without shared cache")
			rdb = nil
		} else {
			defer rdb.Close()
			shared, counter = rdb, rdb
			util.Info().Msg("redis connected")
		}
	}

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	limiter, err := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, counter, c.TrustedProxies)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize rate limiter")
	}
	limiter.Start()
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	authn, err := auth.NewAuthenticator(c.AuthKey.Value())
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize authenticator")
	}

	pasteSvc := svc.NewPaste(sqlDB, lruCache, shared, ids, renderer, svc.Options{
		RenderAhead: c.RenderMode == cfg.RenderAhead,
		CacheTTL:    c.CacheTTL,
	})
	server := api.NewServer(c, pasteSvc, limiter, authn, sqlDB, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sqlDB.RunWALMaintenance(ctx, c.WALCheckpointInterval)
	}()
	util.Info().Dur("interval", c.WALCheckpointInterval).Msg("WAL maintenance worker started")

	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	pasteSvc.Shutdown()
	cancel()
	walDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(walDone)
	}()
	select {
	case <-walDone:
		util.Info().Msg("WAL maintenance stopped")
	case <-time.After(15 * time.Second):
		util.Warn().Msg("WAL maintenance did not stop gracefully")
	}
	util.Info().Msg("shutdown complete")
}

// healthCheck is used by container health checks; it opens the database and
// pings it without starting the server.
func healthCheck() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "pbnj.db"
	}
	sqlDB, err := db.NewSQLite(dbPath)
	if err != nil {
		return 1
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(ctx); err != nil {
		return 1
	}
	return 0
}
