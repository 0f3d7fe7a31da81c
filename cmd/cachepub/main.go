package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/redisclient"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	// 2. Initialize structured logging
	if err := logger.Init(); err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Log.Sync()

	// 3. Connect to Redis
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	go startMetricsServer(cfg.MetricsPort)

	// 4. Launch cache-pub processor
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runCachePub(ctx, rdb, int64(cfg.BatchSize))
	}()

	// 5. Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Log.Info("shutdown signal received, exiting")
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
