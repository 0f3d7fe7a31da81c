package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/config"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/sink"
)

const (
	writers    = 5
	bufferSize = 1000
)

type streamAdder interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

type rawEvent struct {
	event      models.LaunchpadTokenEventOutput
	receivedAt time.Time
}

// subscriptionInputs turns the configured networks and protocol into one
// subscription input per network, or a single unfiltered one.
func subscriptionInputs(cfg *config.Config) []operations.OnLaunchpadTokenEventBatchVariables {
	var protocol *models.LaunchpadTokenProtocol
	if cfg.Protocol != "" {
		protocol = models.Ptr(models.LaunchpadTokenProtocol(cfg.Protocol))
	}
	if len(cfg.NetworkIDs) == 0 {
		return []operations.OnLaunchpadTokenEventBatchVariables{{
			Input: &models.OnLaunchpadTokenEventBatchInput{Protocol: protocol},
		}}
	}
	vars := make([]operations.OnLaunchpadTokenEventBatchVariables, 0, len(cfg.NetworkIDs))
	for _, id := range cfg.NetworkIDs {
		vars = append(vars, operations.OnLaunchpadTokenEventBatchVariables{
			Input: &models.OnLaunchpadTokenEventBatchInput{NetworkID: models.Ptr(id), Protocol: protocol},
		})
	}
	return vars
}

// ingestLaunchpad runs the batch subscription and hands every event to a
// pool of stream writers. It returns when the subscription ends, with the
// error that ended it if the last batch carried one.
func ingestLaunchpad(ctx context.Context, rdb streamAdder, sub operations.Streamer, vars operations.OnLaunchpadTokenEventBatchVariables, maxWorkers int) error {
	log := logger.Named("ingest")
	if vars.Input != nil && vars.Input.NetworkID != nil {
		log = log.With(zap.Int("network_id", *vars.Input.NetworkID))
	}

	batches, err := operations.OnLaunchpadTokenEventBatch(ctx, sub, vars)
	if err != nil {
		return err
	}
	log.Info("subscription started")

	// 1. Buffer events before blocking the reader
	events := make(chan rawEvent, bufferSize)

	// 2. Start writers to Redis
	n := writers
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for evt := range events {
				writeRaw(ctx, log, rdb, evt)
			}
			log.Debug("writer exiting", zap.Int("worker", id))
		}(i)
	}

	// 3. Dispatch batches; drop when the writers fall behind
	var lastErr error
	for b := range batches {
		lastErr = b.Err
		if b.Err != nil {
			log.Warn("batch error", zap.Error(b.Err))
			metrics.IngestErrors.Inc()
		}
		now := time.Now()
		for _, e := range b.Events {
			select {
			case events <- rawEvent{event: e, receivedAt: now}:
			default:
				log.Warn("events chan full, dropping event", zap.String("token", e.Key()))
				metrics.IngestErrors.Inc()
			}
		}
	}

	// 4. Clean up
	close(events)
	wg.Wait()
	log.Info("subscription terminated")
	if ctx.Err() != nil {
		return nil
	}
	return lastErr
}

func writeRaw(ctx context.Context, log *zap.Logger, rdb streamAdder, evt rawEvent) {
	start := time.Now()
	defer func() { metrics.IngestLatency.Observe(time.Since(start).Seconds()) }()

	values, err := evt.event.ToMap(evt.receivedAt)
	if err != nil {
		log.Warn("encode failed", zap.Error(err))
		metrics.IngestErrors.Inc()
		return
	}
	if _, err := rdb.AddToStream(ctx, sink.RawStream, values); err != nil {
		log.Warn("stream write failed", zap.Error(err))
		metrics.IngestErrors.Inc()
		return
	}
	metrics.IngestCounter.Inc()
}
