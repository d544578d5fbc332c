// Package bridge adapts tracking-service callbacks into the outbound
// telemetry pipeline. Each frame is flattened to the canonical model,
// rate-tracked, encoded and handed to the transport, with optional tees
// to the session recorder and the live debug mux.
package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/handcast-data/handcast/internal/leap"
	"github.com/handcast-data/handcast/internal/monitor"
	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/rate"
	"github.com/handcast-data/handcast/internal/timeutil"
	"github.com/handcast-data/handcast/internal/track"
	"github.com/handcast-data/handcast/internal/wire"
)

// State tracks where the bridge is in the connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateTracking:
		return "tracking"
	default:
		return "unknown"
	}
}

// Transport delivers one encoded frame. network.Dispatcher satisfies it.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// FrameRecorder tees encoded frames to storage. session.Recorder
// satisfies it.
type FrameRecorder interface {
	RecordAsync(frameID uint64, timestampNs int64, payload []byte) bool
	Close() error
}

// Config assembles a Bridge. Transport must be set; everything else has
// a usable default or is optional.
type Config struct {
	// Label routes frames on the consumer side. Empty selects
	// wire.DefaultLabel.
	Label string

	// RateWindow is the estimator window size. Zero or less selects the
	// package default.
	RateWindow int

	// DatagramLimit caps encoded payloads in bytes. Zero or less
	// selects wire.MaxDatagramSize.
	DatagramLimit int

	// Clock supplies arrival timestamps. Nil selects the real clock.
	Clock timeutil.Clock

	// Stats receives pipeline counters. Nil allocates a private set.
	Stats *monitor.FrameStats

	Transport Transport

	// Recorder, when set, receives every encoded datagram
	// asynchronously.
	Recorder FrameRecorder

	// Mux, when set, receives a JSON summary of each sent frame for
	// live debug subscribers.
	Mux *monitor.FrameMux
}

// Bridge is the stateful orchestrator behind the leap.Listener
// callbacks. Sources invoke the callbacks serially, so frame processing
// needs no locking of its own; the small mutex below only covers the
// estimator, which the stats loop reads from another goroutine.
type Bridge struct {
	label     string
	clock     timeutil.Clock
	stats     *monitor.FrameStats
	transport Transport
	recorder  FrameRecorder
	mux       *monitor.FrameMux

	enc *wire.Encoder

	rateMu sync.Mutex
	rate   *rate.Estimator

	state atomic.Int32
}

// New creates a bridge in the Disconnected state.
func New(cfg Config) *Bridge {
	if cfg.Label == "" {
		cfg.Label = wire.DefaultLabel
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = monitor.NewFrameStats()
	}
	return &Bridge{
		label:     cfg.Label,
		clock:     cfg.Clock,
		stats:     cfg.Stats,
		transport: cfg.Transport,
		recorder:  cfg.Recorder,
		mux:       cfg.Mux,
		enc:       wire.NewEncoder(cfg.DatagramLimit),
		rate:      rate.NewEstimator(cfg.RateWindow),
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// RateMean returns the windowed mean frame rate. ok is false until at
// least one arrival gap has been observed.
func (b *Bridge) RateMean() (float64, bool) {
	b.rateMu.Lock()
	defer b.rateMu.Unlock()
	return b.rate.Mean()
}

// OnConnected marks the service connection established. On a
// reconnection the estimator is re-primed so the next frame starts a
// fresh interval rather than measuring the outage.
func (b *Bridge) OnConnected() {
	if State(b.state.Load()) == StateDisconnected {
		b.state.Store(int32(StateConnected))
		monitoring.Logf("bridge: connected to tracking service")
		return
	}
	b.rateMu.Lock()
	b.rate.Reset()
	b.rateMu.Unlock()
	monitoring.Logf("bridge: reconnected to tracking service")
}

// OnDeviceFound logs the attached device. Informational only.
func (b *Bridge) OnDeviceFound(device leap.DeviceInfo) {
	if device.Model != "" {
		monitoring.Logf("bridge: device found: serial=%s model=%s", device.Serial, device.Model)
		return
	}
	monitoring.Logf("bridge: device found: serial=%s", device.Serial)
}

// OnTrackingFrame runs one frame through the pipeline: map, observe the
// arrival, then encode and send once an interval exists. The first
// frame after (re)connecting is mapped and rate-tracked but not sent.
// No failure here is fatal and nothing blocks beyond the transport's
// bounded write.
func (b *Bridge) OnTrackingFrame(ev *leap.TrackingEvent) {
	if ev == nil {
		return
	}
	if State(b.state.Load()) != StateTracking {
		b.state.Store(int32(StateTracking))
		monitoring.Logf("bridge: tracking started at frame %d", ev.FrameID)
	}

	f, skipped := track.FromLeap(ev)
	b.stats.AddFrame(len(f.Hands))
	if skipped > 0 {
		b.stats.AddMapSkips(skipped)
	}

	now := b.clock.Now()
	b.rateMu.Lock()
	fps, ok := b.rate.Observe(now)
	b.rateMu.Unlock()
	if !ok {
		return
	}

	payload, err := b.enc.Encode(b.label, f)
	if err != nil {
		b.stats.AddEncodeError()
		monitoring.Logf("bridge: dropping frame %d: %v", f.FrameID, err)
		return
	}

	// The dispatcher counts and rate-logs its own drops; a failed send
	// only costs this frame.
	_ = b.transport.Send(payload)

	if b.recorder != nil {
		b.recorder.RecordAsync(uint64(f.FrameID), now.UnixNano(), payload)
	}
	if b.mux != nil && b.mux.Active() {
		b.publishSummary(f, fps, len(payload))
	}
}

type frameSummary struct {
	FrameID   int64   `json:"frame_id"`
	Timestamp int64   `json:"timestamp"`
	Hands     int     `json:"hands"`
	FPS       float64 `json:"fps"`
	Bytes     int     `json:"bytes"`
}

func (b *Bridge) publishSummary(f *track.Frame, fps float64, size int) {
	data, err := json.Marshal(frameSummary{
		FrameID:   f.FrameID,
		Timestamp: f.Timestamp,
		Hands:     len(f.Hands),
		FPS:       fps,
		Bytes:     size,
	})
	if err != nil {
		return
	}
	b.mux.Publish(string(data))
}

// Close flushes the recorder, then releases the transport socket. The
// first error wins.
func (b *Bridge) Close() error {
	var firstErr error
	if b.recorder != nil {
		if err := b.recorder.Close(); err != nil {
			monitoring.Logf("bridge: recorder close: %v", err)
			firstErr = err
		}
	}
	if b.transport != nil {
		if err := b.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
