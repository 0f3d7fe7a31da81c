package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth"
	"github.com/gorilla/mux"
	"github.com/graphql-go/graphql"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/auth"
	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/operations"
)

// latestStore is the Redis surface the API reads from.
type latestStore interface {
	Ping(ctx context.Context) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Keys(ctx context.Context, pattern string, limit int) ([]string, error)
	ZRevRange(ctx context.Context, key string, n int64) ([]string, error)
}

// tokenQuerier is satisfied by *tokens.Service.
type tokenQuerier interface {
	LaunchpadTokens(ctx context.Context, vars operations.LaunchpadTokensVariables) (*operations.LaunchpadTokensQuery, error)
	TokensPage(ctx context.Context, vars operations.TokensPageVariables) (*operations.TokensPageQuery, error)
}

// archive groups the Postgres-backed dependencies. A nil *archive means the
// API runs without a database.
type archive struct {
	health     interface{ HealthCheck(ctx context.Context) error }
	migrations interface {
		GetMigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
	}
	events    database.LaunchpadEventRepository
	anomalies database.AnomalyRepository
	snapshots database.TokenSnapshotRepository
}

func newArchive(db *database.DB) *archive {
	return &archive{
		health:     db,
		migrations: db,
		events:     database.NewLaunchpadEventRepository(db),
		anomalies:  database.NewAnomalyRepository(db),
		snapshots:  database.NewTokenSnapshotRepository(db),
	}
}

type Server struct {
	redis  latestStore
	tokens tokenQuerier
	db     *archive
	auth   *auth.Service
	relay  *relay
	schema graphql.Schema
	log    *zap.Logger
	now    func() time.Time
}

func NewServer(redis latestStore, tokens tokenQuerier, db *archive, authSvc *auth.Service, rl *relay) (*Server, error) {
	s := &Server{
		redis:  redis,
		tokens: tokens,
		db:     db,
		auth:   authSvc,
		relay:  rl,
		log:    logger.Named("api"),
		now:    time.Now,
	}
	schema, err := s.createSchema()
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s, nil
}

// Router wires every route. requestsPerSecond <= 0 disables rate limiting.
func (s *Server) Router(requestsPerSecond float64) http.Handler {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(metricsMiddleware)

	// Health check endpoints (no auth required)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler())
	if s.relay != nil {
		router.HandleFunc("/ws/events", s.relay.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints
	api.HandleFunc("/launchpad/tokens", s.getLaunchpadTokensHandler).Methods(http.MethodGet)
	api.HandleFunc("/tokens/top", s.getTopTokensHandler).Methods(http.MethodGet)
	api.HandleFunc("/tokens/latest", s.getLatestStatesHandler).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{network:[0-9]+}/{address}/latest", s.getLatestStateHandler).Methods(http.MethodGet)

	// Protected endpoints
	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.auth.AuthMiddleware)
	protected.HandleFunc("/events", s.getRecentEventsHandler).Methods(http.MethodGet)
	protected.HandleFunc("/events/{network:[0-9]+}/{address}", s.getEventsByTokenHandler).Methods(http.MethodGet)
	protected.HandleFunc("/anomalies", s.getAnomaliesHandler).Methods(http.MethodGet)
	protected.HandleFunc("/graphql", s.graphqlHandler).Methods(http.MethodPost)

	// Admin endpoints
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RoleMiddleware(auth.RoleAdmin))
	admin.HandleFunc("/migrations/status", s.getMigrationStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/snapshots/latest", s.getLatestSnapshotsHandler).Methods(http.MethodGet)

	var h http.Handler = router
	if requestsPerSecond > 0 {
		lmt := tollbooth.NewLimiter(requestsPerSecond, nil)
		lmt.SetMessageContentType("application/json; charset=utf-8")
		lmt.SetMessage(`{"success":false,"error":"rate limit exceeded"}`)
		h = tollbooth.LimitHandler(lmt, h)
	}
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(h)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket relay.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Label by route template rather than the raw path.
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint, status).Observe(time.Since(start).Seconds())
		metrics.APIRequestTotal.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}
