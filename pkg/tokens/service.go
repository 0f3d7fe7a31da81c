// Package tokens serves filterTokens results through a short-lived Redis
// cache in front of the remote API.
package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/operations"
)

// Cache is the subset of *redisclient.Client the service needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

type Service struct {
	exec  operations.Executor
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewService caches results for ttl. A nil cache or ttl <= 0 disables caching.
func NewService(exec operations.Executor, cache Cache, ttl time.Duration) *Service {
	return &Service{exec: exec, cache: cache, ttl: ttl, log: logger.Named("tokens")}
}

// CacheKey is gql:<operation>:<sha256 of the JSON variables>.
func CacheKey(operation string, vars interface{}) (string, error) {
	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "gql:" + operation + ":" + hex.EncodeToString(sum[:]), nil
}

func (s *Service) LaunchpadTokens(ctx context.Context, vars operations.LaunchpadTokensVariables) (*operations.LaunchpadTokensQuery, error) {
	return cached(ctx, s, operations.LaunchpadTokensDocument.Name, vars, func() (*operations.LaunchpadTokensQuery, error) {
		return operations.LaunchpadTokens(ctx, s.exec, vars)
	})
}

func (s *Service) TokensPage(ctx context.Context, vars operations.TokensPageVariables) (*operations.TokensPageQuery, error) {
	return cached(ctx, s, operations.TokensPageDocument.Name, vars, func() (*operations.TokensPageQuery, error) {
		return operations.TokensPage(ctx, s.exec, vars)
	})
}

// cached serves from the cache when it can. Cache failures fall through to a
// live call; only complete results are stored.
func cached[R any](ctx context.Context, s *Service, op string, vars interface{}, live func() (*R, error)) (*R, error) {
	if s.cache == nil || s.ttl <= 0 {
		return live()
	}
	key, err := CacheKey(op, vars)
	if err != nil {
		return live()
	}

	var hit R
	found, err := s.cache.GetJSON(ctx, key, &hit)
	switch {
	case err != nil:
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	case found:
		metrics.CacheHits.WithLabelValues(op).Inc()
		return &hit, nil
	}
	metrics.CacheMisses.WithLabelValues(op).Inc()

	res, err := live()
	if err != nil {
		return res, err
	}
	if err := s.cache.SetJSON(ctx, key, res, s.ttl); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}
