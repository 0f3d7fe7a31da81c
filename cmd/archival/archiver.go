package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/operations"
	"github.com/alim08/marketgql/pkg/sink"
)

type eventSource interface {
	ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
	DeleteFromStream(ctx context.Context, stream string, ids ...string) (int64, error)
}

type archiver struct {
	src       eventSource
	events    database.LaunchpadEventRepository
	snapshots database.TokenSnapshotRepository
	exec      operations.Executor

	batch    int64
	pageSize int
	// minAge keeps fresh entries in the stream for the live consumers.
	minAge time.Duration
	now    func() time.Time
}

// archiveEvents moves entries older than minAge from launchpad:events into
// Postgres, deleting each batch once it is committed. Entries that cannot be
// decoded are deleted without being archived.
func (a *archiver) archiveEvents(ctx context.Context) (archived int64, err error) {
	cutoff := a.now().Add(-a.minAge)
	lastID := "0-0"
	for {
		msgs, err := a.src.ReadStream(ctx, sink.EventsStream, lastID, a.batch, -1)
		if err != nil {
			return archived, fmt.Errorf("read %s: %w", sink.EventsStream, err)
		}
		if len(msgs) == 0 {
			return archived, nil
		}

		var (
			rows  []database.ArchivedEvent
			ids   []string
			fresh bool
		)
		for _, msg := range msgs {
			event, receivedAt, err := models.LaunchpadEventFromMap(msg.Values)
			if err != nil {
				logger.Log.Warn("dropping undecodable entry", zap.String("id", msg.ID), zap.Error(err))
				ids = append(ids, msg.ID)
				continue
			}
			if receivedAt.After(cutoff) {
				fresh = true
				break
			}
			rows = append(rows, database.ArchivedEvent{StreamID: msg.ID, ReceivedAt: receivedAt, Event: event})
			ids = append(ids, msg.ID)
		}

		n, err := a.events.SaveEvents(ctx, rows)
		if err != nil {
			return archived, err
		}
		archived += n
		if len(ids) > 0 {
			if _, err := a.src.DeleteFromStream(ctx, sink.EventsStream, ids...); err != nil {
				// The rows are committed; a replay is skipped by stream_id.
				return archived, fmt.Errorf("trim %s: %w", sink.EventsStream, err)
			}
			lastID = ids[len(ids)-1]
		}
		if fresh || int64(len(msgs)) < a.batch {
			return archived, nil
		}
	}
}

// snapshotTokens stores the current top tokens by 24h volume.
func (a *archiver) snapshotTokens(ctx context.Context) (int64, error) {
	limit := a.pageSize
	if limit <= 0 || limit > operations.MaxLimit {
		limit = operations.MaxLimit
	}
	page, err := operations.TokensPage(ctx, a.exec, operations.TokensPageVariables{
		Rankings: []models.TokenRanking{
			models.RankBy(models.TokenRankingAttributeVolume24, models.RankingDirectionDesc),
		},
		Limit: models.Ptr(limit),
	})
	if err != nil {
		return 0, err
	}
	if page.FilterTokens == nil {
		return 0, nil
	}
	return a.snapshots.SaveSnapshots(ctx, a.now().Truncate(time.Second), page.FilterTokens.Tokens())
}

func (a *archiver) runEvents(ctx context.Context) {
	start := time.Now()
	n, err := a.archiveEvents(ctx)
	metrics.ArchivalLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Log.Error("archival failed", zap.Int64("archived", n), zap.Error(err))
		metrics.ArchivalErrorCounter.Inc()
		return
	}
	logger.Log.Info("archival completed successfully", zap.Int64("archived", n))
	metrics.ArchivalSuccessCounter.Inc()
}

func (a *archiver) runSnapshot(ctx context.Context) {
	n, err := a.snapshotTokens(ctx)
	if err != nil {
		logger.Log.Error("token snapshot failed", zap.Error(err))
		metrics.ArchivalErrorCounter.Inc()
		return
	}
	logger.Log.Info("token snapshot stored", zap.Int64("tokens", n))
}
