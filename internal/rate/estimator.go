// Package rate estimates how fast the sensor feed is arriving from the
// wall-clock gaps between consecutive frames.
package rate

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindowSize is how many instantaneous samples feed the running
// mean.
const DefaultWindowSize = 30

// Estimator keeps a sliding window of instantaneous frames-per-second
// samples, one per observed arrival gap. It is not safe for concurrent
// use: the event adapter owns it and drives it from the callback
// goroutine only.
type Estimator struct {
	window []float64
	next   int
	count  int
	last   time.Time
	seen   bool
}

// NewEstimator returns an estimator keeping up to size samples. Sizes
// of zero or less select DefaultWindowSize.
func NewEstimator(size int) *Estimator {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Estimator{window: make([]float64, size)}
}

// Observe records a frame arrival at now. The returned fps is the
// instantaneous rate over the gap since the previous arrival; ok is
// false for the very first arrival, when no gap exists yet.
//
// The window is diagnostic and mirrors whatever the clock produced: a
// zero gap yields +Inf and is kept as a sample like any other.
func (e *Estimator) Observe(now time.Time) (float64, bool) {
	if !e.seen {
		e.seen = true
		e.last = now
		return 0, false
	}
	fps := 1 / now.Sub(e.last).Seconds()
	e.last = now
	e.window[e.next] = fps
	e.next = (e.next + 1) % len(e.window)
	if e.count < len(e.window) {
		e.count++
	}
	return fps, true
}

// Mean returns the average of the windowed samples. ok is false until
// at least one gap has been observed.
func (e *Estimator) Mean() (float64, bool) {
	if e.count == 0 {
		return 0, false
	}
	return stat.Mean(e.window[:e.count], nil), true
}

// Count returns how many samples the window currently holds.
func (e *Estimator) Count() int { return e.count }

// Reset drops all samples and the remembered last arrival.
func (e *Estimator) Reset() {
	e.next, e.count, e.seen = 0, 0, false
	e.last = time.Time{}
}
