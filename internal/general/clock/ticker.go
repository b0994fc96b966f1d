// Package clock abstracts periodic timers so the components that own them
// can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Ticker delivers ticks on C until Stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker creates a ticker firing every d.
type NewTicker func(d time.Duration) Ticker

// RealTicker is a NewTicker backed by time.Ticker.
func RealTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Manual is a Ticker that only fires when Tick is called.
type Manual struct {
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
	interval time.Duration
	now      time.Time
	mu       sync.Mutex
}

// NewManual returns a Manual ticker reporting the given interval.
func NewManual(interval time.Duration) *Manual {
	return &Manual{
		c:        make(chan time.Time),
		stopped:  make(chan struct{}),
		interval: interval,
		now:      time.Unix(0, 0).UTC(),
	}
}

func (m *Manual) C() <-chan time.Time { return m.c }

// Stop marks the ticker stopped; pending and future Tick calls return false.
func (m *Manual) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// Stopped reports whether Stop has been called.
func (m *Manual) Stopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

// Interval is the duration the ticker was created with.
func (m *Manual) Interval() time.Duration { return m.interval }

// Tick blocks until the owner receives the tick, returning true, or until
// the ticker is stopped, returning false.
func (m *Manual) Tick() bool {
	m.mu.Lock()
	m.now = m.now.Add(m.interval)
	now := m.now
	m.mu.Unlock()

	select {
	case <-m.stopped:
		return false
	default:
	}

	select {
	case m.c <- now:
		return true
	case <-m.stopped:
		return false
	}
}

// ManualFactory hands out Manual tickers and remembers every one it created.
type ManualFactory struct {
	mu      sync.Mutex
	tickers []*Manual
	created chan *Manual
}

// NewManualFactory creates an empty factory.
func NewManualFactory() *ManualFactory {
	return &ManualFactory{created: make(chan *Manual, 64)}
}

// New satisfies NewTicker.
func (f *ManualFactory) New(d time.Duration) Ticker {
	m := NewManual(d)
	f.mu.Lock()
	f.tickers = append(f.tickers, m)
	f.mu.Unlock()

	select {
	case f.created <- m:
	default:
	}
	return m
}

// Created yields tickers in creation order.
func (f *ManualFactory) Created() <-chan *Manual { return f.created }

// All returns every ticker created so far.
func (f *ManualFactory) All() []*Manual {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Manual, len(f.tickers))
	copy(out, f.tickers)
	return out
}

// Live counts tickers that have not been stopped.
func (f *ManualFactory) Live() int {
	n := 0
	for _, m := range f.All() {
		if !m.Stopped() {
			n++
		}
	}
	return n
}
