package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/redisclient"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	// 2. Init logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	// 3. Connect to Redis
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// 4. Start Prometheus metrics endpoint
	go startMetricsServer(cfg.MetricsPort)

	sub := gqlclient.NewSubscriber(gqlclient.SubscriberOptions{
		URL:    cfg.WSURL,
		APIKey: cfg.APIKey,
	})

	// 5. One subscription per configured network
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, vars := range subscriptionInputs(cfg) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ingestLaunchpad(ctx, rdb, sub, vars, cfg.MaxWorkers); err != nil {
				logger.Log.Error("subscription stopped", zap.Error(err))
			}
		}()
	}

	// 6. Wait for shutdown signal or for every subscription to end
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
		logger.Log.Info("shutdown signal received, exiting")
	case <-done:
		logger.Log.Warn("all subscriptions ended")
	}
	cancel()
	wg.Wait()
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
