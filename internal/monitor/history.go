package monitor

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the in-memory rate trail. At one sample per
// stats interval (5s default) this covers roughly half an hour.
const DefaultHistorySize = 360

// RateSample is one averaged observation of the pipeline rate, kept for the
// charts page.
type RateSample struct {
	Timestamp time.Time
	FPS       float64
	Hands     float64
}

// RateHistory keeps a bounded trail of rate samples in arrival order.
// All methods are safe for concurrent use.
type RateHistory struct {
	mu      sync.Mutex
	samples []RateSample
	next    int
	count   int
}

// NewRateHistory creates a history holding at most size samples. A size of
// zero or less selects DefaultHistorySize.
func NewRateHistory(size int) *RateHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &RateHistory{samples: make([]RateSample, size)}
}

// Push appends a sample, evicting the oldest once the history is full.
func (h *RateHistory) Push(s RateSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = s
	h.next = (h.next + 1) % len(h.samples)
	if h.count < len(h.samples) {
		h.count++
	}
}

// Recent returns up to n samples in chronological order, oldest first.
// A non-positive n returns everything held.
func (h *RateHistory) Recent(n int) []RateSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]RateSample, 0, n)
	start := h.next - n
	if start < 0 {
		start += len(h.samples)
	}
	for i := 0; i < n; i++ {
		out = append(out, h.samples[(start+i)%len(h.samples)])
	}
	return out
}

// Len reports how many samples are currently held.
func (h *RateHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}
