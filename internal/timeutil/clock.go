// Package timeutil abstracts wall-clock access so frame pacing and
// interval loops can run against a controllable time source in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source injected into anything that paces, schedules,
// or measures. Production code uses RealClock; tests use MockClock and
// drive it explicitly.
type Clock interface {
	// Now reports the current time.
	Now() time.Time

	// Since reports the elapsed time since t.
	Since(t time.Time) time.Duration

	// Sleep blocks for at least d.
	Sleep(d time.Duration)

	// After returns a channel that delivers the time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTimer arms a one-shot timer that fires after d.
	NewTimer(d time.Duration) Timer

	// NewTicker arms a repeating ticker with period d.
	NewTicker(d time.Duration) Ticker
}

// Timer is a one-shot timer handle.
type Timer interface {
	// C is the channel the expiry time is delivered on.
	C() <-chan time.Time

	// Stop disarms the timer. It reports whether the timer was still armed.
	Stop() bool

	// Reset re-arms the timer to fire after d.
	Reset(d time.Duration) bool
}

// Ticker is a repeating timer handle.
type Ticker interface {
	// C is the channel ticks are delivered on.
	C() <-chan time.Time

	// Stop disarms the ticker.
	Stop()

	// Reset re-arms the ticker with period d.
	Reset(d time.Duration)
}

// RealClock delegates every Clock method to the time package.
type RealClock struct{}

// Now reports the current wall-clock time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since reports the wall-clock time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Sleep blocks the calling goroutine for at least d.
func (RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// After wraps time.After.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTimer wraps time.NewTimer.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &wallTimer{timer: time.NewTimer(d)}
}

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &wallTicker{ticker: time.NewTicker(d)}
}

type wallTimer struct {
	timer *time.Timer
}

func (w *wallTimer) C() <-chan time.Time { return w.timer.C }
func (w *wallTimer) Stop() bool          { return w.timer.Stop() }
func (w *wallTimer) Reset(d time.Duration) bool {
	return w.timer.Reset(d)
}

type wallTicker struct {
	ticker *time.Ticker
}

func (w *wallTicker) C() <-chan time.Time { return w.ticker.C }
func (w *wallTicker) Stop()               { w.ticker.Stop() }
func (w *wallTicker) Reset(d time.Duration) {
	w.ticker.Reset(d)
}

// MockClock is a Clock whose time only moves when the test says so.
// Sleep returns immediately and records the requested duration; timers
// and tickers fire from Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	timers  []*MockTimer
	tickers []*MockTicker
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now reports the mock's current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps the mock to t without firing timers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the mock forward by d and fires every timer and ticker
// whose deadline has passed.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := c.timers
	tickers := c.tickers
	c.mu.Unlock()

	for _, t := range timers {
		t.fire(now)
	}
	for _, t := range tickers {
		t.fire(now)
	}
}

// Since reports the elapsed mock time since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Sleep records d and returns without blocking.
func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// After returns a channel that receives once the mock has advanced past d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer arms a MockTimer that fires when Advance crosses its deadline.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTimer{
		clk:  c,
		ch:   make(chan time.Time, 1),
		when: c.now.Add(d),
	}
	c.timers = append(c.timers, t)
	return t
}

// NewTicker arms a MockTicker that ticks each time Advance crosses its
// next deadline.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &MockTicker{
		clk:   c,
		ch:    make(chan time.Time, 1),
		every: d,
		next:  c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// MockTimer is the Timer produced by MockClock.
type MockTimer struct {
	clk     *MockClock
	mu      sync.Mutex
	ch      chan time.Time
	when    time.Time
	stopped bool
	fired   bool
}

func (t *MockTimer) C() <-chan time.Time {
	return t.ch
}

// Stop disarms the timer and reports whether it was still armed.
func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasArmed := !t.stopped && !t.fired
	t.stopped = true
	return wasArmed
}

// Reset re-arms the timer to fire d after the mock's current time.
func (t *MockTimer) Reset(d time.Duration) bool {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	wasArmed := !t.stopped && !t.fired
	t.stopped = false
	t.fired = false
	t.when = now.Add(d)
	return wasArmed
}

func (t *MockTimer) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.fired || now.Before(t.when) {
		return
	}
	t.fired = true
	select {
	case t.ch <- now:
	default:
	}
}

// MockTicker is the Ticker produced by MockClock. The channel holds one
// pending tick; extra ticks are dropped, matching time.Ticker.
type MockTicker struct {
	clk     *MockClock
	mu      sync.Mutex
	ch      chan time.Time
	every   time.Duration
	next    time.Time
	stopped bool
}

func (t *MockTicker) C() <-chan time.Time {
	return t.ch
}

// Stop disarms the ticker.
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Reset re-arms the ticker with period d, measured from the mock's
// current time.
func (t *MockTicker) Reset(d time.Duration) {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.every = d
	t.next = now.Add(d)
}

// Trigger delivers a tick carrying now without moving the clock. Tests
// use it to drive interval loops one step at a time.
func (t *MockTicker) Trigger(now time.Time) {
	select {
	case t.ch <- now:
	default:
	}
}

func (t *MockTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || now.Before(t.next) {
		return
	}
	select {
	case t.ch <- now:
	default:
	}
	t.next = now.Add(t.every)
}
