package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theexperiencecompany/gaia-sub002/internal/app"
	"github.com/theexperiencecompany/gaia-sub002/internal/cache"
	"github.com/theexperiencecompany/gaia-sub002/internal/config"
	"github.com/theexperiencecompany/gaia-sub002/internal/logging"
	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
	"github.com/theexperiencecompany/gaia-sub002/internal/search"
	"github.com/theexperiencecompany/gaia-sub002/internal/store"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	m := metrics.NewMetrics()
	deps := app.Dependencies{
		Backend: upstream.New(cfg.UpstreamURL, cfg.UpstreamTimeout, log),
		Metrics: m,
		Log:     log,
		Checks:  map[string]app.Pinger{},
	}

	var cacheBackend cache.Backend = cache.NewMemoryBackend()
	if cfg.RedisURL != "" {
		log.Info("using redis for the integration cache")
		redisBackend, err := cache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisBackend.Close()
		cacheBackend = redisBackend
		deps.Checks["redis"] = redisBackend
	}
	deps.Cache = cache.NewStore(cacheBackend, cache.DefaultPolicies(), m, log)

	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
		if err != nil {
			log.WithError(err).Fatal("database connection failed")
		}
		defer db.Close()

		migrations, err := store.MigrationsFS(cfg.MigrationsDir)
		if err != nil {
			log.WithError(err).Fatal("migrations unavailable")
		}
		if err := store.ApplyMigrations(ctx, db, migrations); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		deps.Events = store.NewEventLog(db)
	} else {
		log.Warn("DATABASE_URL not set, connection events are not recorded")
	}

	pipeline := search.Pipeline{StrictCategory: cfg.StrictCategory}
	if cfg.MeiliURL != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
		deps.Search = search.NewService(meiliClient, pipeline, log)
	} else {
		deps.Search = search.NewService(nil, pipeline, log)
	}

	service := app.New(cfg, deps)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).WithField("upstream", cfg.UpstreamURL).Info("integrations API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}
