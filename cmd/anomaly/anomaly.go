package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/anomaly"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

// historyPerToken bounds the anomalies:<key> sorted set.
const historyPerToken = 500

type anomalyStore interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	ZAdd(ctx context.Context, key string, score float64, member string, keep int64) error
}

type anomalySaver interface {
	SaveAnomaly(ctx context.Context, a models.PriceAnomaly) error
}

type detectorService struct {
	detector *anomaly.Detector
	rdb      anomalyStore
	// repo is nil when the database is disabled.
	repo anomalySaver
	now  func() time.Time
}

// run consumes launchpad:pubsub payloads until ctx is done or the channel closes.
func (s *detectorService) run(ctx context.Context, payloads <-chan string) {
	logger.Log.Info("anomaly detector started")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("anomaly detector stopping")
			return
		case payload, ok := <-payloads:
			if !ok {
				logger.Log.Warn("launchpad:pubsub closed")
				return
			}
			s.handle(ctx, payload)
		}
	}
}

// handle returns the anomaly it emitted, if any.
func (s *detectorService) handle(ctx context.Context, payload string) (models.PriceAnomaly, bool) {
	start := time.Now()
	defer func() { metrics.AnomalyLatency.Observe(time.Since(start).Seconds()) }()

	event, err := models.LaunchpadEventFromJSON(payload)
	if err != nil {
		logger.Log.Warn("invalid event JSON", zap.Error(err))
		metrics.AnomalyErrors.Inc()
		return models.PriceAnomaly{}, false
	}
	if event.EventType == models.LaunchpadTokenEventTypeMigrated {
		// Post-migration prices come from a different pool.
		s.detector.Forget(event.Key())
		return models.PriceAnomaly{}, false
	}

	a, flagged := s.detector.Observe(event, s.now())
	if !flagged {
		return a, false
	}
	s.emit(ctx, a)
	return a, true
}

func (s *detectorService) emit(ctx context.Context, a models.PriceAnomaly) {
	log := logger.Log.With(zap.String("token", a.TokenKey), zap.Float64("z", a.ZScore))

	// 1) Stream entry
	if _, err := s.rdb.AddToStream(ctx, sink.AnomalyStream, a.ToMap()); err != nil {
		log.Error("XADD anomalies stream failed", zap.Error(err))
		metrics.AnomalyErrors.Inc()
	}

	// 2) Sorted set (for range queries)
	member, err := a.ToJSON()
	if err == nil {
		err = s.rdb.ZAdd(ctx, sink.AnomalyHistoryKey(a.TokenKey), float64(a.Timestamp), member, historyPerToken)
	}
	if err != nil {
		log.Error("ZADD anomalies set failed", zap.Error(err))
		metrics.AnomalyErrors.Inc()
	}

	// 3) Postgres
	if s.repo != nil {
		if err := s.repo.SaveAnomaly(ctx, a); err != nil {
			log.Error("anomaly save failed", zap.Error(err))
			metrics.AnomalyErrors.Inc()
			return
		}
	}
	metrics.AnomalyCounter.Inc()
	log.Info("price anomaly", zap.Float64("price", a.Price), zap.Float64("mean", a.Mean))
}
