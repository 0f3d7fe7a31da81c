package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

type fakeStore struct {
	hashes    map[string]map[string]interface{}
	ttls      map[string]time.Duration
	published []string
}

func (f *fakeStore) ReadStream(context.Context, string, string, int64, time.Duration) ([]redis.XMessage, error) {
	return nil, nil
}

func (f *fakeStore) HSet(_ context.Context, key string, values map[string]interface{}, ttl time.Duration) error {
	if f.hashes == nil {
		f.hashes = map[string]map[string]interface{}{}
		f.ttls = map[string]time.Duration{}
	}
	f.hashes[key] = values
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Publish(_ context.Context, channel string, msg interface{}) error {
	f.published = append(f.published, channel+" "+msg.(string))
	return nil
}

func TestPublishLatest(t *testing.T) {
	const mint = "6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN"
	mc := decimal.RequireFromString("41250.5")
	e := models.LaunchpadTokenEventOutput{
		Address:   mint,
		NetworkID: 1399811149,
		Protocol:  "Pump",
		EventType: models.LaunchpadTokenEventTypeUpdated,
		Price:     models.Ptr(0.0000412),
		MarketCap: &mc,
		Holders:   models.Ptr(88),
		Token:     models.EnhancedToken{Address: mint, NetworkID: 1399811149, Symbol: models.Ptr("CAT")},
	}
	values, err := e.ToMap(time.UnixMilli(1752150896789))
	require.NoError(t, err)

	store := &fakeStore{}
	require.NoError(t, publishLatest(context.Background(), store, redis.XMessage{ID: "1-0", Values: values}))

	key := sink.LatestKeyPrefix + "1399811149:" + mint
	require.Contains(t, store.hashes, key)
	h := store.hashes[key]
	assert.Equal(t, "0.0000412", h["price"])
	assert.Equal(t, "41250.5", h["marketCap"])
	assert.Equal(t, "88", h["holders"])
	assert.Equal(t, "CAT", h["symbol"])
	assert.Equal(t, "1752150896789", h["received_ms"])
	assert.NotContains(t, h, "liquidity")
	assert.Equal(t, latestTTL, store.ttls[key])

	require.Len(t, store.published, 1)
	assert.Contains(t, store.published[0], sink.LatestChannel+" ")
	var announced map[string]string
	require.NoError(t, json.Unmarshal([]byte(store.published[0][len(sink.LatestChannel)+1:]), &announced))
	assert.Equal(t, "Updated", announced["eventType"])
}

func TestPublishLatest_BadEntry(t *testing.T) {
	store := &fakeStore{}
	err := publishLatest(context.Background(), store, redis.XMessage{ID: "1-0", Values: map[string]interface{}{"address": "x"}})
	assert.Error(t, err)
	assert.Empty(t, store.hashes)
	assert.Empty(t, store.published)
}
