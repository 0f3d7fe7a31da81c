package anomaly

import (
	"math"
	"sync"
	"time"

	"github.com/alim08/marketgql/pkg/models"
)

// MinSamples is how many prices a token needs before it can be flagged.
const MinSamples = 5

// Detector keeps one window per token key. It is safe for concurrent use.
type Detector struct {
	size      int
	threshold float64

	mu      sync.Mutex
	windows map[string]*Window
}

// NewDetector returns a detector keeping windowSize prices per token. Sizes
// below MinSamples are raised to it so that tokens can be scored at all.
func NewDetector(windowSize int, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = 3
	}
	return &Detector{size: max(windowSize, MinSamples), threshold: threshold, windows: make(map[string]*Window)}
}

// Score compares price with the token's history, then adds it to the
// history. ok is false until the window has MinSamples prices with some
// variation.
func (d *Detector) Score(key string, price float64) (z, mean, std float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, exists := d.windows[key]
	if !exists {
		w = NewWindow(d.size)
		d.windows[key] = w
	}
	defer w.Add(price)

	if w.Len() < MinSamples {
		return 0, 0, 0, false
	}
	mean, std = w.Stats()
	if std == 0 {
		return 0, mean, 0, false
	}
	return math.Abs(price-mean) / std, mean, std, true
}

// Observe scores a launchpad event and returns an anomaly when its price
// crosses the threshold. Events without a price are ignored.
func (d *Detector) Observe(e models.LaunchpadTokenEventOutput, at time.Time) (models.PriceAnomaly, bool) {
	if e.Price == nil || *e.Price <= 0 {
		return models.PriceAnomaly{}, false
	}
	z, mean, std, ok := d.Score(e.Key(), *e.Price)
	if !ok || z < d.threshold {
		return models.PriceAnomaly{}, false
	}
	return models.PriceAnomaly{
		TokenKey:  e.Key(),
		Address:   e.Address,
		NetworkID: e.NetworkID,
		Protocol:  e.Protocol,
		EventType: e.EventType,
		Price:     *e.Price,
		Mean:      mean,
		StdDev:    std,
		ZScore:    z,
		Timestamp: at.UnixMilli(),
	}, true
}

// Tracked is the number of tokens with a window.
func (d *Detector) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// Forget drops a token's history, e.g. after it migrates off the launchpad.
func (d *Detector) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.windows, key)
}
