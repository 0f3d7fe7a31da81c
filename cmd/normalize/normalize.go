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
	"github.com/alim08/marketgql/pkg/sink"
)

func main() {
	// Load config & init logging
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	// Connect Redis
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Redis is always a destination; Kafka only when brokers are configured
	out := sink.Multi{sink.NewRedisSink(rdb)}
	if len(cfg.KafkaBrokers) > 0 {
		out = append(out, sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		logger.Log.Info("kafka sink enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Log.Warn("sink close", zap.Error(err))
		}
	}()

	go startMetricsServer(cfg.MetricsPort)

	// Cancellation & graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w := &worker{src: rdb, out: out, maxWorkers: cfg.MaxWorkers, batch: int64(cfg.BatchSize)}
		w.run(ctx)
	}()

	// Block until signal, then let the in-flight batch finish
	<-sigs
	logger.Log.Info("shutdown signal received")
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
