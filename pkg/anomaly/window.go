// Package anomaly flags launchpad price moves that sit far outside a token's
// recent history.
package anomaly

import "math"

// Window is a fixed-size ring buffer with O(1) mean and standard deviation.
type Window struct {
	buf        []float64
	sum, sqsum float64
	idx        int
	full       bool
}

func NewWindow(size int) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{buf: make([]float64, size)}
}

func (w *Window) Add(x float64) {
	if w.full {
		old := w.buf[w.idx]
		w.sum -= old
		w.sqsum -= old * old
	}
	w.buf[w.idx] = x
	w.sum += x
	w.sqsum += x * x
	w.idx = (w.idx + 1) % len(w.buf)
	if w.idx == 0 {
		w.full = true
	}
}

// Len is the number of samples held.
func (w *Window) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.idx
}

// Stats returns the population mean and standard deviation.
func (w *Window) Stats() (mean, std float64) {
	n := float64(w.Len())
	if n == 0 {
		return 0, 0
	}
	mean = w.sum / n
	variance := (w.sqsum / n) - (mean * mean)
	if variance < 0 {
		variance = 0
	}
	std = math.Sqrt(variance)
	return
}
