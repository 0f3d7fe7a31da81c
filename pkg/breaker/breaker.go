// Package breaker is a lock-free circuit breaker shared by the Redis and
// GraphQL clients.
package breaker

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Breaker struct {
	name      string
	threshold int64
	cooldown  time.Duration
	now       func() time.Time

	failureCount int64
	lastFailure  int64 // unix nanos
	state        int32
}

// New opens after threshold consecutive failures and lets a probe through
// once cooldown has passed since the last failure.
func New(name string, threshold int64, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *Breaker) State() State {
	return State(atomic.LoadInt32(&b.state))
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	if State(atomic.LoadInt32(&b.state)) != Open {
		return true
	}
	since := b.now().UnixNano() - atomic.LoadInt64(&b.lastFailure)
	if time.Duration(since) >= b.cooldown {
		atomic.CompareAndSwapInt32(&b.state, int32(Open), int32(HalfOpen))
		return true
	}
	return false
}

// Record feeds the outcome of a call into the breaker.
func (b *Breaker) Record(err error) {
	if err == nil {
		atomic.StoreInt64(&b.failureCount, 0)
		if prev := atomic.SwapInt32(&b.state, int32(Closed)); prev != int32(Closed) {
			logger.Log.Info("circuit breaker closed", zap.String("breaker", b.name))
		}
		return
	}

	n := atomic.AddInt64(&b.failureCount, 1)
	atomic.StoreInt64(&b.lastFailure, b.now().UnixNano())

	// A failed probe reopens immediately.
	if atomic.CompareAndSwapInt32(&b.state, int32(HalfOpen), int32(Open)) {
		logger.Log.Warn("circuit breaker reopened", zap.String("breaker", b.name), zap.Error(err))
		return
	}
	if n >= b.threshold && atomic.CompareAndSwapInt32(&b.state, int32(Closed), int32(Open)) {
		logger.Log.Warn("circuit breaker opened", zap.String("breaker", b.name), zap.Int64("failures", n), zap.Error(err))
	}
}
