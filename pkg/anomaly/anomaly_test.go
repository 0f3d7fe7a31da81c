package anomaly

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/marketgql/pkg/models"
)

func TestWindow_Stats(t *testing.T) {
	w := NewWindow(4)
	mean, std := w.Stats()
	assert.Zero(t, mean)
	assert.Zero(t, std)

	for _, x := range []float64{2, 4, 4, 4} {
		w.Add(x)
	}
	mean, std = w.Stats()
	assert.InDelta(t, 3.5, mean, 1e-9)
	assert.InDelta(t, math.Sqrt(0.75), std, 1e-9)

	// Evicts the oldest value (2).
	w.Add(4)
	mean, std = w.Stats()
	assert.Equal(t, 4, w.Len())
	assert.InDelta(t, 4, mean, 1e-9)
	assert.InDelta(t, 0, std, 1e-9)
}

func event(price float64) models.LaunchpadTokenEventOutput {
	return models.LaunchpadTokenEventOutput{
		Address:   "6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN",
		NetworkID: 1399811149,
		Protocol:  "Pump",
		EventType: models.LaunchpadTokenEventTypeUpdated,
		Price:     models.Ptr(price),
	}
}

func TestDetector_Observe(t *testing.T) {
	d := NewDetector(20, 3)
	at := time.UnixMilli(1752150896789)

	for _, p := range []float64{1.0, 1.1, 0.9, 1.0, 1.05, 0.95} {
		_, flagged := d.Observe(event(p), at)
		require.False(t, flagged, "price %v flagged while warming up", p)
	}

	a, flagged := d.Observe(event(5.0), at)
	require.True(t, flagged)
	assert.Equal(t, "1399811149:6p6xgHyF7AeE6TZkSmFsko444wqoP15icUSqi2jfGiPN", a.TokenKey)
	assert.Greater(t, a.ZScore, 3.0)
	assert.InDelta(t, 1.0, a.Mean, 1e-9)
	assert.Equal(t, at.UnixMilli(), a.Timestamp)
	assert.NoError(t, a.Validate())

	_, flagged = d.Observe(event(1.0), at)
	assert.False(t, flagged)
}

func TestDetector_IgnoresMissingPrice(t *testing.T) {
	d := NewDetector(20, 3)
	e := event(1)
	e.Price = nil
	_, flagged := d.Observe(e, time.Now())
	assert.False(t, flagged)
	assert.Zero(t, d.Tracked())
}

func TestDetector_FlatHistory(t *testing.T) {
	d := NewDetector(10, 3)
	for i := 0; i < 8; i++ {
		_, _, _, ok := d.Score("k", 2)
		assert.False(t, ok)
	}
	d.Forget("k")
	assert.Zero(t, d.Tracked())
}

func TestDetector_SmallWindowStillScores(t *testing.T) {
	for _, size := range []int{0, 3, MinSamples} {
		d := NewDetector(size, 3)
		for i := 0; i < 49; i++ {
			d.Score("k", 1+float64(i%3)*0.01)
		}
		z, _, _, ok := d.Score("k", 1000)
		require.True(t, ok, "window %d never scored", size)
		assert.Greater(t, z, 3.0)
	}
}
