package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/redisclient"
)

const (
	archiveInterval = time.Minute
	minEventAge     = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	// Connect to Redis
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres; archival has nowhere to write without it
	dbCfg, err := database.NewConfig()
	if err != nil {
		logger.Log.Fatal("database config", zap.Error(err))
	}
	if !dbCfg.Enabled {
		logger.Log.Fatal("archival requires DB_ENABLED=true")
	}
	db, err := database.New(ctx, dbCfg)
	if err != nil {
		logger.Log.Fatal("database connect", zap.Error(err))
	}
	defer db.Close()
	if err := db.RunMigrations(ctx); err != nil {
		logger.Log.Fatal("migrations", zap.Error(err))
	}

	// Start metrics server
	go startMetricsServer(cfg.MetricsPort)

	a := &archiver{
		src:       rdb,
		events:    database.NewLaunchpadEventRepository(db),
		snapshots: database.NewTokenSnapshotRepository(db),
		exec: gqlclient.New(gqlclient.Options{
			Endpoint:   cfg.APIURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
		}),
		batch:    int64(cfg.BatchSize),
		pageSize: cfg.PageSize,
		minAge:   minEventAge,
		now:      time.Now,
	}

	archiveTicker := time.NewTicker(archiveInterval)
	defer archiveTicker.Stop()
	snapshotTicker := time.NewTicker(cfg.SnapshotInterval)
	defer snapshotTicker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.Log.Info("archival service started",
		zap.Duration("archive_interval", archiveInterval),
		zap.Duration("snapshot_interval", cfg.SnapshotInterval))

	a.runSnapshot(ctx)
	for {
		select {
		case <-stop:
			logger.Log.Info("archival service shutting down")
			return
		case <-archiveTicker.C:
			a.runEvents(ctx)
		case <-snapshotTicker.C:
			a.runSnapshot(ctx)
		}
	}
}

func startMetricsServer(port int) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Log.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Log.Error("metrics server stopped", zap.Error(err))
	}
}
