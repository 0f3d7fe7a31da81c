package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/breaker"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/sink"
	"github.com/alim08/marketgql/pkg/validation"
)

const (
	defaultPerPage     = 50
	maxLatestStates    = 500
	requestTimeout     = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination and metadata information
type Meta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page,omitempty"`
	PerPage  int   `json:"per_page,omitempty"`
	HasMore  bool  `json:"has_more"`
	Duration int64 `json:"duration_ms"`
}

// LatestState is the cached view of a token kept by cachepub.
type LatestState struct {
	TokenKey string            `json:"tokenKey"`
	Fields   map[string]string `json:"fields"`
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

// writeUpstreamError maps a failure from the remote API or a local store to
// a status code.
func (s *Server) writeUpstreamError(w http.ResponseWriter, what string, err error) {
	var (
		invalid validation.ValidationErrors
		httpErr *gqlclient.HTTPError
	)
	switch {
	case errors.As(err, &invalid):
		s.writeError(w, http.StatusBadRequest, invalid.Error())
		return
	case errors.Is(err, breaker.ErrOpen):
		s.writeError(w, http.StatusServiceUnavailable, what+" temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, what+" timed out")
	case errors.As(err, &httpErr):
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: upstream returned %d", what, httpErr.StatusCode))
	default:
		s.writeError(w, http.StatusBadGateway, what+" failed")
	}
	s.log.Error(what+" failed", zap.Error(err))
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", name)
	}
	return &v, nil
}

// queryList splits a comma separated parameter, dropping empty items.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// pagination reads page (1-based) and per_page, capping per_page at the
// remote API's page limit.
func pagination(r *http.Request) (page, perPage int, err error) {
	if page, err = queryInt(r, "page", 1); err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage, err = queryInt(r, "per_page", defaultPerPage); err != nil {
		return 0, 0, err
	}
	if perPage < 1 || perPage > operations.MaxLimit {
		perPage = defaultPerPage
	}
	return page, perPage, nil
}

// tokenFilters builds filterTokens arguments from network, protocol,
// completed and migrated.
func tokenFilters(r *http.Request) (*models.TokenFilters, error) {
	f := &models.TokenFilters{LaunchpadProtocol: queryList(r, "protocol")}
	for _, raw := range queryList(r, "network") {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("network must be a list of integers")
		}
		f.Network = append(f.Network, id)
	}
	var err error
	if f.LaunchpadCompleted, err = queryBool(r, "completed"); err != nil {
		return nil, err
	}
	if f.LaunchpadMigrated, err = queryBool(r, "migrated"); err != nil {
		return nil, err
	}
	return f, nil
}

// ranking reads sort and direction. It defaults to the given attribute,
// descending.
func ranking(r *http.Request, def models.TokenRankingAttribute) (models.TokenRanking, error) {
	attr := models.TokenRankingAttribute(r.URL.Query().Get("sort"))
	if attr == "" {
		attr = def
	}
	if !attr.IsValid() {
		return models.TokenRanking{}, fmt.Errorf("unknown sort attribute %q", attr)
	}
	dir := models.RankingDirection(strings.ToUpper(r.URL.Query().Get("direction")))
	if dir == "" {
		dir = models.RankingDirectionDesc
	}
	if !dir.IsValid() {
		return models.TokenRanking{}, fmt.Errorf("direction must be ASC or DESC")
	}
	return models.RankBy(attr, dir), nil
}

func pathToken(r *http.Request) (networkID int, address string, err error) {
	vars := mux.Vars(r)
	networkID, err = strconv.Atoi(vars["network"])
	if err != nil {
		return 0, "", fmt.Errorf("network must be an integer")
	}
	address = vars["address"]
	if !validation.IsAddress(address) {
		return 0, "", fmt.Errorf("invalid token address")
	}
	return networkID, validation.SanitizeAddress(address), nil
}

// normalizeTokenKey lowercases the EVM address of a "networkId:address" key
// so it matches the keys normalize writes.
func normalizeTokenKey(key string) string {
	network, address, ok := strings.Cut(key, ":")
	if !ok {
		return strings.TrimSpace(key)
	}
	return network + ":" + validation.SanitizeAddress(address)
}

// healthHandler returns server health status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.checkDependencies(w, r, "healthy")
}

// readyHandler reports whether the API can serve traffic.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.checkDependencies(w, r, "ready")
}

func (s *Server) checkDependencies(w http.ResponseWriter, r *http.Request, status string) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.redis.Ping(ctx); err != nil {
		s.log.Warn("redis health check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "Redis connection failed")
		return
	}
	database := "disabled"
	if s.db != nil {
		if err := s.db.health.HealthCheck(ctx); err != nil {
			s.log.Warn("database health check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		database = "ok"
	}

	s.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    status,
			"redis":     "ok",
			"database":  database,
			"timestamp": s.now().Unix(),
		},
	})
}

// getLaunchpadTokensHandler pages through launchpad tokens with count and
// page information from the remote API.
func (s *Server) getLaunchpadTokensHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	page, perPage, err := pagination(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters, err := tokenFilters(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rank, err := ranking(r, models.TokenRankingAttributeCreatedAt)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.tokens.LaunchpadTokens(ctx, operations.LaunchpadTokensVariables{
		Filters:  filters,
		Rankings: []models.TokenRanking{rank},
		Limit:    models.Ptr(perPage),
		Offset:   models.Ptr((page - 1) * perPage),
	})
	if err != nil && !isPartial(res, err) {
		s.writeUpstreamError(w, "launchpad tokens", err)
		return
	}

	resp := Response{Success: true, Data: []models.TokenFilterResult{}}
	meta := &Meta{Page: page, PerPage: perPage}
	if res != nil && res.FilterTokens != nil {
		tokens := res.FilterTokens.Tokens()
		resp.Data = tokens
		meta.Total = int64(models.Deref(res.FilterTokens.Count))
		meta.HasMore = int64(page*perPage) < meta.Total
	}
	if err != nil {
		resp.Error = err.Error()
	}
	meta.Duration = time.Since(start).Milliseconds()
	resp.Meta = meta
	s.writeJSON(w, http.StatusOK, resp)
}

// getTopTokensHandler returns one ranked page, by 24h volume unless sort is
// given.
func (s *Server) getTopTokensHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, err := queryInt(r, "limit", defaultPerPage)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > operations.MaxLimit {
		limit = defaultPerPage
	}
	filters, err := tokenFilters(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rank, err := ranking(r, models.TokenRankingAttributeVolume24)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.tokens.TokensPage(ctx, operations.TokensPageVariables{
		Filters:  filters,
		Rankings: []models.TokenRanking{rank},
		Limit:    models.Ptr(limit),
	})
	if err != nil && !isPartial(res, err) {
		s.writeUpstreamError(w, "top tokens", err)
		return
	}

	tokens := []models.TokenFilterResult{}
	if res != nil && res.FilterTokens != nil {
		tokens = res.FilterTokens.Tokens()
	}
	resp := Response{
		Success: true,
		Data:    tokens,
		Meta:    &Meta{Total: int64(len(tokens)), PerPage: limit, Duration: time.Since(start).Milliseconds()},
	}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// isPartial reports whether res carries data alongside GraphQL errors.
func isPartial[R any](res *R, err error) bool {
	_, partial := gqlclient.AsGraphQLErrors(err)
	return partial && res != nil
}

// getLatestStateHandler returns the latest cached state of one token.
func (s *Server) getLatestStateHandler(w http.ResponseWriter, r *http.Request) {
	networkID, address, err := pathToken(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := fmt.Sprintf("%d:%s", networkID, address)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	fields, err := s.redis.HGetAll(ctx, sink.LatestKeyPrefix+key)
	if err != nil {
		s.writeUpstreamError(w, "latest state", err)
		return
	}
	if len(fields) == 0 {
		s.writeError(w, http.StatusNotFound, "Token not found")
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: LatestState{TokenKey: key, Fields: fields}})
}

// getLatestStatesHandler lists cached token states. Order follows the Redis
// keyspace scan.
func (s *Server) getLatestStatesHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit < 1 || limit > maxLatestStates {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	states, err := s.latestStates(ctx, limit)
	if err != nil {
		s.writeUpstreamError(w, "latest states", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    states,
		Meta: &Meta{
			Total:    int64(len(states)),
			PerPage:  limit,
			HasMore:  len(states) == limit,
			Duration: time.Since(start).Milliseconds(),
		},
	})
}

func (s *Server) latestStates(ctx context.Context, limit int) ([]LatestState, error) {
	keys, err := s.redis.Keys(ctx, sink.LatestKeyPrefix+"*", limit)
	if err != nil {
		return nil, err
	}
	states := make([]LatestState, 0, len(keys))
	for _, k := range keys {
		fields, err := s.redis.HGetAll(ctx, k)
		if err != nil {
			return nil, err
		}
		// Expired between SCAN and HGETALL.
		if len(fields) == 0 {
			continue
		}
		states = append(states, LatestState{TokenKey: strings.TrimPrefix(k, sink.LatestKeyPrefix), Fields: fields})
	}
	return states, nil
}

// requireArchive writes 503 when the API runs without Postgres.
func (s *Server) requireArchive(w http.ResponseWriter) bool {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Archive is disabled")
		return false
	}
	return true
}

// getRecentEventsHandler lists archived launchpad events, optionally for one
// protocol.
func (s *Server) getRecentEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	events, err := s.db.events.GetRecentEvents(ctx, r.URL.Query().Get("protocol"), limit)
	if err != nil {
		s.writeUpstreamError(w, "recent events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: events, Meta: &Meta{Total: int64(len(events))}})
}

// getEventsByTokenHandler lists archived events for one token.
func (s *Server) getEventsByTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	networkID, address, err := pathToken(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	events, err := s.db.events.GetEventsByToken(ctx, networkID, address, limit)
	if err != nil {
		s.writeUpstreamError(w, "token events", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: events, Meta: &Meta{Total: int64(len(events))}})
}

// getAnomaliesHandler serves archived anomalies. Without Postgres it falls
// back to the per-token history kept in Redis, which requires token.
func (s *Server) getAnomaliesHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be milliseconds since epoch")
			return
		}
		since = time.UnixMilli(ms)
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	anomalies, err := s.anomalies(ctx, token, since, limit)
	if errors.Is(err, errNoArchive) {
		s.writeError(w, http.StatusBadRequest, "token is required when the archive is disabled")
		return
	}
	if err != nil {
		s.writeUpstreamError(w, "anomalies", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: anomalies, Meta: &Meta{Total: int64(len(anomalies))}})
}

var errNoArchive = errors.New("archive disabled")

// anomalies reads from Postgres when available, else from the Redis history
// of a single token.
func (s *Server) anomalies(ctx context.Context, token string, since time.Time, limit int) ([]models.PriceAnomaly, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	token = normalizeTokenKey(token)
	if s.db != nil {
		out, err := s.db.anomalies.GetAnomalies(ctx, token, since, limit)
		if out == nil {
			out = []models.PriceAnomaly{}
		}
		return out, err
	}
	if token == "" {
		return nil, errNoArchive
	}
	members, err := s.redis.ZRevRange(ctx, sink.AnomalyHistoryKey(token), int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]models.PriceAnomaly, 0, len(members))
	for _, m := range members {
		a, err := models.PriceAnomalyFromJSON(m)
		if err != nil {
			s.log.Warn("skipping malformed anomaly", zap.String("token", token), zap.Error(err))
			continue
		}
		if a.Time().Before(since) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// getMigrationStatusHandler (admin only)
func (s *Server) getMigrationStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	status, err := s.db.migrations.GetMigrationStatus(ctx)
	if err != nil {
		s.writeUpstreamError(w, "migration status", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: status})
}

// getLatestSnapshotsHandler (admin only)
func (s *Server) getLatestSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireArchive(w) {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	snapshots, err := s.db.snapshots.GetLatestSnapshots(ctx, limit)
	if err != nil {
		s.writeUpstreamError(w, "token snapshots", err)
		return
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: snapshots, Meta: &Meta{Total: int64(len(snapshots))}})
}
