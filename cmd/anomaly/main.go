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

	"github.com/alim08/marketgql/pkg/anomaly"
	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/redisclient"
	"github.com/alim08/marketgql/pkg/sink"
)

func main() {
	// 1. Load configuration & init logging
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	// 2. Redis connection
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &detectorService{
		detector: anomaly.NewDetector(cfg.AnomalyWindowSize, cfg.AnomalyThreshold),
		rdb:      rdb,
		now:      time.Now,
	}

	// 3. Optional Postgres archive
	dbCfg, err := database.NewConfig()
	if err != nil {
		logger.Log.Fatal("database config", zap.Error(err))
	}
	if dbCfg.Enabled {
		db, err := database.New(ctx, dbCfg)
		if err != nil {
			logger.Log.Fatal("database connect", zap.Error(err))
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Log.Fatal("migrations", zap.Error(err))
		}
		svc.repo = database.NewAnomalyRepository(db)
	}

	go startMetricsServer(cfg.MetricsPort)

	// 4. Run detector loop
	pubsub := rdb.Subscribe(ctx, sink.PubSubChannel)
	defer pubsub.Close()
	payloads := make(chan string, 256)
	go func() {
		defer close(payloads)
		for msg := range pubsub.Channel() {
			payloads <- msg.Payload
		}
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.run(ctx, payloads)
	}()

	// 5. Wait for SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Log.Info("shutting down anomaly detector")
	case <-done:
	}
	cancel()
	<-done
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
