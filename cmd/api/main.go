package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/auth"
	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/redisclient"
	"github.com/alim08/marketgql/pkg/sink"
	"github.com/alim08/marketgql/pkg/tokens"
)

const tokenExpiration = 24 * time.Hour

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
	log := logger.Log

	log.Info("starting marketgql API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize database when enabled
	var db *archive
	dbCfg, err := database.NewConfig()
	if err != nil {
		log.Fatal("database config", zap.Error(err))
	}
	if dbCfg.Enabled {
		conn, err := database.New(ctx, dbCfg)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer conn.Close()

		migrateCtx, cancelMigrate := context.WithTimeout(ctx, 30*time.Second)
		err = conn.RunMigrations(migrateCtx)
		cancelMigrate()
		if err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}
		log.Info("database migrations completed")
		db = newArchive(conn)
	} else {
		log.Info("database disabled; archive endpoints will return 503")
	}

	// Initialize authentication service
	authService, err := auth.NewService(cfg.JWTSecret, tokenExpiration)
	if err != nil {
		log.Fatal("failed to initialize authentication service", zap.Error(err))
	}

	tokenService := tokens.NewService(gqlclient.New(gqlclient.Options{
		Endpoint:   cfg.APIURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
	}), rdb, cfg.CacheTTL)

	// Relay launchpad events to websocket clients
	rl := newRelay()
	defer rl.Close()
	pubsub := rdb.Subscribe(ctx, sink.PubSubChannel)
	defer pubsub.Close()
	payloads := make(chan string, 256)
	go func() {
		defer close(payloads)
		for msg := range pubsub.Channel() {
			select {
			case payloads <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	go rl.Run(ctx, payloads)

	srv, err := NewServer(rdb, tokenService, db, authService, rl)
	if err != nil {
		log.Fatal("failed to build GraphQL schema", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv.Router(cfg.RateLimit),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()

	log.Info("server exited")
}
