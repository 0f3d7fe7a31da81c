package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

// rawSource is the subset of *redisclient.Client the worker reads from.
type rawSource interface {
	ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
	DeleteFromStream(ctx context.Context, stream string, ids ...string) (int64, error)
}

// worker drains launchpad:raw. Entries are deleted once handled, so a
// restart from 0-0 only replays what was never processed.
type worker struct {
	src        rawSource
	out        sink.Sink
	maxWorkers int
	batch      int64
	lastID     string
}

func (w *worker) run(ctx context.Context) {
	logger.Log.Info("normalization worker started")
	if w.lastID == "" {
		w.lastID = "0-0"
	}
	for ctx.Err() == nil {
		if _, err := w.poll(ctx); err != nil && ctx.Err() == nil {
			logger.Log.Warn("normalize poll failed", zap.String("last_id", w.lastID), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	logger.Log.Info("normalization worker stopped")
}

// poll handles one XREAD batch and returns how many entries it consumed.
func (w *worker) poll(ctx context.Context) (int, error) {
	batch := w.batch
	if batch <= 0 {
		batch = 100
	}
	msgs, err := w.src.ReadStream(ctx, sink.RawStream, w.lastID, batch, 500*time.Millisecond)
	if err != nil || len(msgs) == 0 {
		return 0, err
	}

	limit := w.maxWorkers
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	handled := make([]bool, len(msgs))
	for i, msg := range msgs {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, m redis.XMessage) {
			defer func() { <-sem; wg.Done() }()
			handled[i] = normalizeOne(ctx, w.out, m)
		}(i, msg)
	}
	wg.Wait()

	var (
		done   []string
		failed int
	)
	for i, msg := range msgs {
		if handled[i] {
			done = append(done, msg.ID)
			continue
		}
		// The cursor stops before the first failed entry so the next
		// XREAD delivers it again; handled entries after it are deleted.
		if failed == 0 && i > 0 {
			w.lastID = msgs[i-1].ID
		}
		failed++
	}
	if failed == 0 {
		w.lastID = msgs[len(msgs)-1].ID
	}

	if len(done) > 0 {
		// Use a fresh context so a shutdown does not strand handled entries.
		trimCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := w.src.DeleteFromStream(trimCtx, sink.RawStream, done...); err != nil {
			logger.Log.Warn("raw stream trim failed", zap.Error(err))
		}
	}
	if failed > 0 {
		return len(msgs), fmt.Errorf("%d of %d raw entries not written", failed, len(msgs))
	}
	return len(msgs), nil
}

// normalizeOne reports whether the entry is finished with: written, or
// unusable and dropped. A failed sink write leaves it in the raw stream for
// the next poll.
func normalizeOne(ctx context.Context, out sink.Sink, msg redis.XMessage) bool {
	start := time.Now()
	defer func() { metrics.NormalizeLatency.Observe(time.Since(start).Seconds()) }()

	// 1) Convert raw map → validated, sanitized event
	event, receivedAt, err := models.LaunchpadEventFromMap(msg.Values)
	if err != nil {
		logger.Log.Warn("raw parse error", zap.String("id", msg.ID), zap.Error(err))
		metrics.NormalizeErrors.Inc()
		return true
	}

	// 2) Fan out
	if err := out.Write(ctx, event, receivedAt); err != nil {
		logger.Log.Error("failed to write normalized event",
			zap.String("id", msg.ID), zap.String("token", event.Key()), zap.Error(err))
		metrics.NormalizeErrors.Inc()
		return false
	}
	metrics.NormalizeCounter.Inc()
	return true
}
