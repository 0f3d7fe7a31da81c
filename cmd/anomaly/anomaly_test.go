package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/anomaly"
	"github.com/alim08/marketgql/pkg/models"
	"github.com/alim08/marketgql/pkg/sink"
)

type memStore struct {
	streams map[string][]map[string]interface{}
	zsets   map[string][]string
}

func (m *memStore) AddToStream(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	if m.streams == nil {
		m.streams = map[string][]map[string]interface{}{}
	}
	m.streams[stream] = append(m.streams[stream], values)
	return "1-0", nil
}

func (m *memStore) ZAdd(_ context.Context, key string, _ float64, member string, _ int64) error {
	if m.zsets == nil {
		m.zsets = map[string][]string{}
	}
	m.zsets[key] = append(m.zsets[key], member)
	return nil
}

type memRepo struct{ saved []models.PriceAnomaly }

func (r *memRepo) SaveAnomaly(_ context.Context, a models.PriceAnomaly) error {
	r.saved = append(r.saved, a)
	return nil
}

const tokenMint = "6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN"

func payload(t *testing.T, eventType models.LaunchpadTokenEventType, price float64) string {
	t.Helper()
	e := models.LaunchpadTokenEventOutput{
		Address:   tokenMint,
		NetworkID: 1399811149,
		Protocol:  "Pump",
		EventType: eventType,
		Price:     models.Ptr(price),
		Token:     models.EnhancedToken{Address: tokenMint, NetworkID: 1399811149},
	}
	s, err := e.ToJSON()
	require.NoError(t, err)
	return s
}

func newService() (*detectorService, *memStore, *memRepo) {
	store, repo := &memStore{}, &memRepo{}
	return &detectorService{
		detector: anomaly.NewDetector(20, 3),
		rdb:      store,
		repo:     repo,
		now:      func() time.Time { return time.UnixMilli(1752150896789) },
	}, store, repo
}

func TestDetectorService_EmitsAnomaly(t *testing.T) {
	svc, store, repo := newService()
	ctx := context.Background()

	for _, p := range []float64{1.0, 1.1, 0.9, 1.0, 1.05, 0.95} {
		_, flagged := svc.handle(ctx, payload(t, models.LaunchpadTokenEventTypeUpdated, p))
		require.False(t, flagged)
	}
	a, flagged := svc.handle(ctx, payload(t, models.LaunchpadTokenEventTypeUpdated, 5))
	require.True(t, flagged)

	key := "1399811149:" + tokenMint
	assert.Equal(t, key, a.TokenKey)
	require.Len(t, store.streams[sink.AnomalyStream], 1)
	assert.Equal(t, key, store.streams[sink.AnomalyStream][0]["token"])
	assert.Len(t, store.zsets[sink.AnomalyHistoryKey(key)], 1)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, int64(1752150896789), repo.saved[0].Timestamp)
}

func TestDetectorService_MigrationResetsHistory(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	for _, p := range []float64{1.0, 1.1, 0.9, 1.0, 1.05} {
		svc.handle(ctx, payload(t, models.LaunchpadTokenEventTypeUpdated, p))
	}
	assert.Equal(t, 1, svc.detector.Tracked())

	svc.handle(ctx, payload(t, models.LaunchpadTokenEventTypeMigrated, 40))
	assert.Zero(t, svc.detector.Tracked())
}

func TestDetectorService_Run(t *testing.T) {
	svc, _, _ := newService()
	svc.repo = nil
	ch := make(chan string, 2)
	ch <- "not json"
	ch <- payload(t, models.LaunchpadTokenEventTypeCreated, 1)
	close(ch)

	done := make(chan struct{})
	go func() { svc.run(context.Background(), ch); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the channel closed")
	}
	assert.Equal(t, 1, svc.detector.Tracked())
}
