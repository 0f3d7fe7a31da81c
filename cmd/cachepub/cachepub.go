package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

// latestTTL expires tokens that stop trading.
const latestTTL = 24 * time.Hour

type latestStore interface {
	ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
	HSet(ctx context.Context, key string, values map[string]interface{}, ttl time.Duration) error
	Publish(ctx context.Context, channel string, msg interface{}) error
}

// runCachePub follows launchpad:events and keeps one latest-state hash per token.
func runCachePub(ctx context.Context, rdb latestStore, batch int64) {
	logger.Log.Info("cachepub service started")

	lastID := "0-0"
	for ctx.Err() == nil {
		msgs, err := rdb.ReadStream(ctx, sink.EventsStream, lastID, batch, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Log.Warn("XREAD error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID
			if err := publishLatest(ctx, rdb, msg); err != nil {
				logger.Log.Error("publishLatest failed", zap.String("id", msg.ID), zap.Error(err))
				metrics.CachePubErrors.Inc()
				continue
			}
			metrics.CachePubCounter.Inc()
		}
	}
	logger.Log.Info("runCachePub: context cancelled")
}

// latestState is the hash stored under launchpad:latest:<networkId>:<address>.
func latestState(e models.LaunchpadTokenEventOutput, receivedAt time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"address":     e.Address,
		"networkId":   strconv.Itoa(e.NetworkID),
		"protocol":    e.Protocol,
		"eventType":   string(e.EventType),
		"received_ms": strconv.FormatInt(receivedAt.UnixMilli(), 10),
	}
	if e.Token.Symbol != nil {
		m["symbol"] = *e.Token.Symbol
	}
	if e.Price != nil {
		m["price"] = strconv.FormatFloat(*e.Price, 'f', -1, 64)
	}
	if e.MarketCap != nil {
		m["marketCap"] = e.MarketCap.String()
	}
	if e.Liquidity != nil {
		m["liquidity"] = e.Liquidity.String()
	}
	if e.Holders != nil {
		m["holders"] = strconv.Itoa(*e.Holders)
	}
	return m
}

func publishLatest(ctx context.Context, rdb latestStore, msg redis.XMessage) error {
	start := time.Now()
	defer func() { metrics.CachePubLatency.Observe(time.Since(start).Seconds()) }()

	event, receivedAt, err := models.LaunchpadEventFromMap(msg.Values)
	if err != nil {
		return err
	}

	// 1) Update hash: HSET launchpad:latest:<key>
	state := latestState(event, receivedAt)
	if err := rdb.HSet(ctx, sink.LatestKeyPrefix+event.Key(), state, latestTTL); err != nil {
		return err
	}

	// 2) Announce the new state
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, sink.LatestChannel, string(payload))
}
