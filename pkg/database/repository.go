package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/models"
)

// LaunchpadEventRepository archives launchpad events drained from Redis.
type LaunchpadEventRepository interface {
	SaveEvents(ctx context.Context, events []ArchivedEvent) (int64, error)
	GetEventsByToken(ctx context.Context, networkID int, address string, limit int) ([]ArchivedEvent, error)
	GetRecentEvents(ctx context.Context, protocol string, limit int) ([]ArchivedEvent, error)
}

// AnomalyRepository defines the interface for anomaly data access
type AnomalyRepository interface {
	SaveAnomaly(ctx context.Context, anomaly models.PriceAnomaly) error
	GetAnomalies(ctx context.Context, tokenKey string, since time.Time, limit int) ([]models.PriceAnomaly, error)
}

// TokenSnapshotRepository stores periodic filterTokens pages.
type TokenSnapshotRepository interface {
	SaveSnapshots(ctx context.Context, at time.Time, results []models.TokenFilterResult) (int64, error)
	GetLatestSnapshots(ctx context.Context, limit int) ([]TokenSnapshot, error)
}

// ArchivedEvent is one launchpad event with the Redis stream entry it came from.
type ArchivedEvent struct {
	StreamID   string                           `json:"streamId"`
	ReceivedAt time.Time                        `json:"receivedAt"`
	Event      models.LaunchpadTokenEventOutput `json:"event"`
}

// TokenSnapshot is the latest stored row for a token.
type TokenSnapshot struct {
	TokenKey   string                   `json:"tokenKey"`
	SnapshotAt time.Time                `json:"snapshotAt"`
	Result     models.TokenFilterResult `json:"result"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

type launchpadEventRepository struct {
	db *DB
}

func NewLaunchpadEventRepository(db *DB) LaunchpadEventRepository {
	return &launchpadEventRepository{db: db}
}

// SaveEvents inserts the batch in one transaction. Stream IDs already
// archived are skipped, so a batch can be replayed after a failed trim.
func (r *launchpadEventRepository) SaveEvents(ctx context.Context, events []ArchivedEvent) (inserted int64, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	start := time.Now()
	defer func() { observe("save_launchpad_events", start, err) }()

	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO launchpad_events
				(stream_id, token_key, address, network_id, protocol, event_type,
				 price, market_cap, liquidity, holders, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (stream_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range events {
			e := a.Event
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode event %s: %w", a.StreamID, err)
			}
			res, err := stmt.ExecContext(ctx,
				a.StreamID, e.Key(), e.Address, e.NetworkID, e.Protocol, string(e.EventType),
				nullFloat(e.Price), nullDecimal(e.MarketCap), nullDecimal(e.Liquidity), nullInt(e.Holders),
				payload, a.ReceivedAt.UTC())
			if err != nil {
				return fmt.Errorf("failed to insert event %s: %w", a.StreamID, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if skipped := int64(len(events)) - inserted; skipped > 0 {
		logger.Log.Debug("skipped archived events", zap.Int64("count", skipped))
	}
	return inserted, nil
}

func (r *launchpadEventRepository) GetEventsByToken(ctx context.Context, networkID int, address string, limit int) (events []ArchivedEvent, err error) {
	start := time.Now()
	defer func() { observe("get_events_by_token", start, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT stream_id, received_at, payload
		FROM launchpad_events
		WHERE network_id = $1 AND address = $2
		ORDER BY received_at DESC
		LIMIT $3
	`, networkID, address, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get events by token: %w", err)
	}
	return scanEvents(rows)
}

// GetRecentEvents lists the newest events, optionally for one protocol.
func (r *launchpadEventRepository) GetRecentEvents(ctx context.Context, protocol string, limit int) (events []ArchivedEvent, err error) {
	start := time.Now()
	defer func() { observe("get_recent_events", start, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT stream_id, received_at, payload
		FROM launchpad_events
		WHERE $1 = '' OR protocol = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, protocol, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]ArchivedEvent, error) {
	defer rows.Close()

	var events []ArchivedEvent
	for rows.Next() {
		var a ArchivedEvent
		var payload []byte
		if err := rows.Scan(&a.StreamID, &a.ReceivedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal(payload, &a.Event); err != nil {
			return nil, fmt.Errorf("failed to decode event %s: %w", a.StreamID, err)
		}
		events = append(events, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

type anomalyRepository struct {
	db *DB
}

// NewAnomalyRepository creates a new anomaly repository
func NewAnomalyRepository(db *DB) AnomalyRepository {
	return &anomalyRepository{db: db}
}

// SaveAnomaly saves an anomaly to the database
func (r *anomalyRepository) SaveAnomaly(ctx context.Context, a models.PriceAnomaly) (err error) {
	start := time.Now()
	defer func() { observe("save_anomaly", start, err) }()

	if err = a.Validate(); err != nil {
		return fmt.Errorf("anomaly validation failed: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO price_anomalies
			(token_key, address, network_id, protocol, event_type, price, mean, std_dev, z_score, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.TokenKey, a.Address, a.NetworkID, a.Protocol, string(a.EventType),
		a.Price, a.Mean, a.StdDev, a.ZScore, a.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}
	return nil
}

// GetAnomalies returns anomalies detected at or after since, newest first.
// An empty tokenKey matches every token.
func (r *anomalyRepository) GetAnomalies(ctx context.Context, tokenKey string, since time.Time, limit int) (anomalies []models.PriceAnomaly, err error) {
	start := time.Now()
	defer func() { observe("get_anomalies", start, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT token_key, address, network_id, protocol, COALESCE(event_type, ''),
		       price, mean, std_dev, z_score, detected_at
		FROM price_anomalies
		WHERE ($1 = '' OR token_key = $1) AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3
	`, tokenKey, since.UnixMilli(), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get anomalies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.PriceAnomaly
		var eventType string
		if err := rows.Scan(&a.TokenKey, &a.Address, &a.NetworkID, &a.Protocol, &eventType,
			&a.Price, &a.Mean, &a.StdDev, &a.ZScore, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.EventType = models.LaunchpadTokenEventType(eventType)
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anomalies: %w", err)
	}
	return anomalies, nil
}

type tokenSnapshotRepository struct {
	db *DB
}

func NewTokenSnapshotRepository(db *DB) TokenSnapshotRepository {
	return &tokenSnapshotRepository{db: db}
}

// SnapshotKey is "networkId:address" for results that carry a token.
func SnapshotKey(r models.TokenFilterResult) (string, bool) {
	if r.Token == nil || r.Token.Address == "" {
		return "", false
	}
	return strconv.Itoa(r.Token.NetworkID) + ":" + r.Token.Address, true
}

// SaveSnapshots stores one row per token for the given instant. Results
// without a token are skipped.
func (r *tokenSnapshotRepository) SaveSnapshots(ctx context.Context, at time.Time, results []models.TokenFilterResult) (inserted int64, err error) {
	start := time.Now()
	defer func() { observe("save_token_snapshots", start, err) }()

	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO token_snapshots
				(token_key, address, network_id, price_usd, market_cap, liquidity, volume24, holders, payload, snapshot_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (token_key, snapshot_at) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, res := range results {
			key, ok := SnapshotKey(res)
			if !ok {
				continue
			}
			payload, err := json.Marshal(res)
			if err != nil {
				return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
			}
			out, err := stmt.ExecContext(ctx,
				key, res.Token.Address, res.Token.NetworkID,
				nullDecimal(res.PriceUSD), nullDecimal(res.MarketCap), nullDecimal(res.Liquidity),
				nullDecimal(res.Volume24), nullInt(res.Holders), payload, at.UTC())
			if err != nil {
				return fmt.Errorf("failed to insert snapshot %s: %w", key, err)
			}
			if n, err := out.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetLatestSnapshots returns each token's newest snapshot, most recent first.
func (r *tokenSnapshotRepository) GetLatestSnapshots(ctx context.Context, limit int) (snapshots []TokenSnapshot, err error) {
	start := time.Now()
	defer func() { observe("get_latest_snapshots", start, err) }()

	rows, err := r.db.QueryContext(ctx, `
		SELECT token_key, snapshot_at, payload
		FROM latest_token_snapshots
		ORDER BY snapshot_at DESC, token_key
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s TokenSnapshot
		var payload []byte
		if err := rows.Scan(&s.TokenKey, &s.SnapshotAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal(payload, &s.Result); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.TokenKey, err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}
