package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/database"
	"github.com/alim08/marketgql/pkg/gqlclient"
	"github.com/alim08/marketgql/pkg/models"
)

var now = time.UnixMilli(1752150896789)

type streamFake struct {
	entries []redis.XMessage
	deleted []string
}

func (s *streamFake) ReadStream(_ context.Context, _ string, lastID string, count int64, _ time.Duration) ([]redis.XMessage, error) {
	var out []redis.XMessage
	for _, e := range s.entries {
		if e.ID > lastID && int64(len(out)) < count {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *streamFake) DeleteFromStream(_ context.Context, _ string, ids ...string) (int64, error) {
	s.deleted = append(s.deleted, ids...)
	gone := map[string]bool{}
	for _, id := range ids {
		gone[id] = true
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !gone[e.ID] {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return int64(len(ids)), nil
}

type eventRepo struct {
	database.LaunchpadEventRepository
	saved []database.ArchivedEvent
}

func (r *eventRepo) SaveEvents(_ context.Context, events []database.ArchivedEvent) (int64, error) {
	r.saved = append(r.saved, events...)
	return int64(len(events)), nil
}

type snapshotRepo struct {
	database.TokenSnapshotRepository
	at      time.Time
	results []models.TokenFilterResult
}

func (r *snapshotRepo) SaveSnapshots(_ context.Context, at time.Time, results []models.TokenFilterResult) (int64, error) {
	r.at, r.results = at, results
	return int64(len(results)), nil
}

type pageExecutor struct {
	req      gqlclient.Request
	response string
}

func (p *pageExecutor) Execute(_ context.Context, req gqlclient.Request, out interface{}) error {
	p.req = req
	return json.Unmarshal([]byte(p.response), out)
}

func entry(t *testing.T, id string, age time.Duration) redis.XMessage {
	t.Helper()
	const mint = "6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN"
	e := models.LaunchpadTokenEventOutput{
		Address:   mint,
		NetworkID: 1399811149,
		Protocol:  "Pump",
		EventType: models.LaunchpadTokenEventTypeUpdated,
		Token:     models.EnhancedToken{Address: mint, NetworkID: 1399811149},
	}
	values, err := e.ToMap(now.Add(-age))
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: values}
}

func TestArchiveEvents(t *testing.T) {
	src := &streamFake{entries: []redis.XMessage{
		entry(t, "1-0", time.Hour),
		{ID: "2-0", Values: map[string]interface{}{"payload": "{"}},
		entry(t, "3-0", 10*time.Minute),
		entry(t, "4-0", 6*time.Minute),
		entry(t, "5-0", time.Minute),
	}}
	repo := &eventRepo{}
	a := &archiver{src: src, events: repo, batch: 2, minAge: 5 * time.Minute, now: func() time.Time { return now }}

	n, err := a.archiveEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, repo.saved, 3)
	assert.Equal(t, "1-0", repo.saved[0].StreamID)
	assert.Equal(t, "4-0", repo.saved[2].StreamID)
	assert.Equal(t, []string{"1-0", "2-0", "3-0", "4-0"}, src.deleted)
	require.Len(t, src.entries, 1)
	assert.Equal(t, "5-0", src.entries[0].ID)
}

func TestArchiveEvents_Empty(t *testing.T) {
	a := &archiver{src: &streamFake{}, events: &eventRepo{}, batch: 10, now: time.Now}
	n, err := a.archiveEvents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotTokens(t *testing.T) {
	exec := &pageExecutor{response: `{"filterTokens":{"results":[
		{"token":{"address":"So11111111111111111111111111111111111111112","networkId":1399811149},"priceUSD":"151.2","holders":10},
		null
	]}}`}
	repo := &snapshotRepo{}
	a := &archiver{exec: exec, snapshots: repo, pageSize: 500, now: func() time.Time { return now }}

	n, err := a.snapshotTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "TokensPage", exec.req.OperationName)
	assert.Equal(t, now.Truncate(time.Second), repo.at)
	require.Len(t, repo.results, 1)
	assert.Equal(t, "151.2", repo.results[0].PriceUSD.String())
}
