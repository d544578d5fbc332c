package bridge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/handcast-data/handcast/internal/geom"
	"github.com/handcast-data/handcast/internal/leap"
	"github.com/handcast-data/handcast/internal/monitor"
	"github.com/handcast-data/handcast/internal/timeutil"
	"github.com/handcast-data/handcast/internal/wire"
)

type fakeTransport struct {
	sends    [][]byte
	attempts int
	err      error
	closed   bool
	closeLog *[]string
}

func (f *fakeTransport) Send(payload []byte) error {
	f.attempts++
	if f.err != nil {
		return f.err
	}
	// The encoder reuses its buffer, so keep a copy like a real socket
	// write would.
	p := make([]byte, len(payload))
	copy(p, payload)
	f.sends = append(f.sends, p)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	if f.closeLog != nil {
		*f.closeLog = append(*f.closeLog, "transport")
	}
	return nil
}

type recordedFrame struct {
	frameID uint64
	ts      int64
	payload []byte
}

type fakeRecorder struct {
	records  []recordedFrame
	closed   bool
	closeErr error
	closeLog *[]string
}

func (f *fakeRecorder) RecordAsync(frameID uint64, timestampNs int64, payload []byte) bool {
	p := make([]byte, len(payload))
	copy(p, payload)
	f.records = append(f.records, recordedFrame{frameID, timestampNs, p})
	return true
}

func (f *fakeRecorder) Close() error {
	f.closed = true
	if f.closeLog != nil {
		*f.closeLog = append(*f.closeLog, "recorder")
	}
	return f.closeErr
}

func vec(x, y, z float64) geom.Vector3 { return geom.Vector3{X: x, Y: y, Z: z} }

func emptyFrame(id int64) *leap.TrackingEvent {
	return &leap.TrackingEvent{FrameID: id, Timestamp: id * 1000}
}

func fullHand(id int32, ht leap.HandType) leap.Hand {
	h := leap.Hand{
		ID:         id,
		Type:       ht,
		Confidence: 0.9,
		Palm: leap.Palm{
			Position: vec(10, 200, 30),
		},
	}
	for finger := int32(0); finger < 5; finger++ {
		d := leap.Digit{FingerID: finger, TipPosition: vec(float64(finger), 300, -50)}
		for b := 0; b < 4; b++ {
			d.Bones[b] = &leap.Bone{Length: 40, Width: 15}
		}
		h.Digits = append(h.Digits, d)
	}
	return h
}

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBridgeLifecycle(t *testing.T) {
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: timeutil.NewMockClock(testStart)})

	if b.State() != StateDisconnected {
		t.Errorf("initial state = %v, want disconnected", b.State())
	}

	b.OnConnected()
	if b.State() != StateConnected {
		t.Errorf("state after connect = %v, want connected", b.State())
	}

	b.OnDeviceFound(leap.DeviceInfo{Serial: "LP91337", Model: "test device"})
	if b.State() != StateConnected {
		t.Errorf("device event changed state to %v", b.State())
	}

	b.OnTrackingFrame(emptyFrame(1))
	if b.State() != StateTracking {
		t.Errorf("state after first frame = %v, want tracking", b.State())
	}

	b.OnTrackingFrame(emptyFrame(2))
	if b.State() != StateTracking {
		t.Errorf("tracking state did not hold: %v", b.State())
	}

	if got := b.State().String(); got != "tracking" {
		t.Errorf("State.String() = %q", got)
	}
}

func TestBridgeFirstFrameRule(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock})

	b.OnConnected()
	b.OnTrackingFrame(emptyFrame(1))
	if len(transport.sends) != 0 {
		t.Fatalf("%d sends after one callback, want 0", len(transport.sends))
	}

	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(2))
	if len(transport.sends) != 1 {
		t.Fatalf("%d sends after two callbacks, want exactly 1", len(transport.sends))
	}

	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(3))
	if len(transport.sends) != 2 {
		t.Errorf("%d sends after three callbacks, want 2", len(transport.sends))
	}
}

func TestBridgeEmptyHandsFrameSent(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock})

	b.OnTrackingFrame(emptyFrame(10))
	clock.Advance(8 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(11))

	if len(transport.sends) != 1 {
		t.Fatalf("%d sends, want 1", len(transport.sends))
	}
	label, f, err := wire.Decode(transport.sends[0])
	if err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	if label != wire.DefaultLabel {
		t.Errorf("label = %q, want %q", label, wire.DefaultLabel)
	}
	if f.FrameID != 11 {
		t.Errorf("sent frame id = %d, want 11", f.FrameID)
	}
	if len(f.Hands) != 0 {
		t.Errorf("%d hands in empty frame, want 0", len(f.Hands))
	}
}

func TestBridgeScenarioFrame(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock, Label: "/tracking/event"})

	b.OnConnected()
	b.OnTrackingFrame(emptyFrame(41))
	clock.Advance(11 * time.Millisecond)
	b.OnTrackingFrame(&leap.TrackingEvent{
		FrameID:   42,
		Timestamp: 1000000,
		Hands:     []leap.Hand{fullHand(7, leap.HandLeft)},
	})

	if len(transport.sends) != 1 {
		t.Fatalf("%d sends, want 1", len(transport.sends))
	}
	label, f, err := wire.Decode(transport.sends[0])
	if err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	if label != "/tracking/event" {
		t.Errorf("label = %q", label)
	}
	if f.FrameID != 42 || f.Timestamp != 1000000 {
		t.Errorf("frame identity = (%d, %d), want (42, 1000000)", f.FrameID, f.Timestamp)
	}
	if len(f.Hands) != 1 {
		t.Fatalf("%d hands, want 1", len(f.Hands))
	}
	hand := f.Hands[0]
	if !hand.IsLeft {
		t.Error("hand not flagged is_left")
	}
	if hand.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", hand.Confidence)
	}
	if hand.PalmPosition != vec(10, 200, 30) {
		t.Errorf("palm position = %+v", hand.PalmPosition)
	}
	if len(hand.Fingers) != 5 {
		t.Fatalf("%d fingers, want 5", len(hand.Fingers))
	}
	for i, fg := range hand.Fingers {
		if len(fg.Bones) != 4 {
			t.Errorf("finger %d has %d bones, want 4", i, len(fg.Bones))
		}
	}
}

func TestBridgeWindowEviction(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock})

	if _, ok := b.RateMean(); ok {
		t.Fatal("mean available before any gap")
	}

	// One slow gap, then 29 fast ones: the window holds all 30.
	b.OnTrackingFrame(emptyFrame(0))
	clock.Advance(time.Second)
	b.OnTrackingFrame(emptyFrame(1))
	for i := int64(2); i <= 30; i++ {
		clock.Advance(7812500 * time.Nanosecond) // exactly 128 fps
		b.OnTrackingFrame(emptyFrame(i))
	}

	mean, ok := b.RateMean()
	if !ok {
		t.Fatal("mean unavailable after 31 callbacks")
	}
	if mean >= 128.0 {
		t.Errorf("mean = %v, the slow gap should still weigh it down", mean)
	}

	// One more fast gap evicts the slow sample; every one of the 30
	// remaining samples is exactly 128.
	clock.Advance(7812500 * time.Nanosecond)
	b.OnTrackingFrame(emptyFrame(31))

	mean, ok = b.RateMean()
	if !ok || mean != 128.0 {
		t.Errorf("mean = %v after eviction, want exactly 128", mean)
	}
}

func TestBridgeEncodeErrorDropsFrame(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	stats := monitor.NewFrameStats()
	b := New(Config{
		Transport:     transport,
		Clock:         clock,
		Stats:         stats,
		DatagramLimit: 8, // nothing fits
	})

	for i := int64(1); i <= 3; i++ {
		b.OnTrackingFrame(emptyFrame(i))
		clock.Advance(10 * time.Millisecond)
	}

	if transport.attempts != 0 {
		t.Errorf("%d send attempts, oversized frames must be dropped before the transport", transport.attempts)
	}
	totals := stats.GetAndReset()
	if totals.Frames != 3 {
		t.Errorf("frames = %d, want 3", totals.Frames)
	}
	if totals.EncodeErrors != 2 {
		t.Errorf("encode errors = %d, want 2 (first frame never reaches the encoder)", totals.EncodeErrors)
	}
}

func TestBridgeSendFailureContinues(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{err: errors.New("destination unreachable")}
	b := New(Config{Transport: transport, Clock: clock})

	for i := int64(1); i <= 3; i++ {
		b.OnTrackingFrame(emptyFrame(i))
		clock.Advance(10 * time.Millisecond)
	}
	if transport.attempts != 2 {
		t.Fatalf("%d send attempts, want 2", transport.attempts)
	}

	// The socket recovers; the next frame goes out.
	transport.err = nil
	b.OnTrackingFrame(emptyFrame(4))
	if len(transport.sends) != 1 {
		t.Errorf("%d successful sends after recovery, want 1", len(transport.sends))
	}
}

func TestBridgeMapSkipsCounted(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	stats := monitor.NewFrameStats()
	b := New(Config{Transport: transport, Clock: clock, Stats: stats})

	b.OnTrackingFrame(emptyFrame(1))
	clock.Advance(10 * time.Millisecond)

	h := fullHand(1, leap.HandRight)
	h.Digits[2].FingerID = 9 // malformed, dropped by the mapper
	b.OnTrackingFrame(&leap.TrackingEvent{FrameID: 2, Hands: []leap.Hand{h}})

	if len(transport.sends) != 1 {
		t.Fatalf("%d sends, a malformed digit must not drop the frame", len(transport.sends))
	}
	totals := stats.GetAndReset()
	if totals.MapSkips != 1 {
		t.Errorf("map skips = %d, want 1", totals.MapSkips)
	}

	_, f, err := wire.Decode(transport.sends[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Hands[0].Fingers) != 4 {
		t.Errorf("%d fingers survived, want 4", len(f.Hands[0].Fingers))
	}
}

func TestBridgeDeviceEventDoesNotDisturbPipeline(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock})

	b.OnTrackingFrame(emptyFrame(1))
	b.OnDeviceFound(leap.DeviceInfo{Serial: "LP91337"})
	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(2))

	if len(transport.sends) != 1 {
		t.Errorf("%d sends, device event must not affect the first-frame rule", len(transport.sends))
	}
	if b.State() != StateTracking {
		t.Errorf("state = %v, want tracking", b.State())
	}
}

func TestBridgeReconnectReprimesEstimator(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	b := New(Config{Transport: transport, Clock: clock})

	b.OnConnected()
	b.OnTrackingFrame(emptyFrame(1))
	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(2))
	if len(transport.sends) != 1 {
		t.Fatalf("%d sends before reconnect, want 1", len(transport.sends))
	}

	// Service drops and comes back. The first frame of the new
	// connection is primed, not sent.
	clock.Advance(30 * time.Second)
	b.OnConnected()
	if b.State() != StateTracking {
		t.Errorf("state after reconnect = %v, tracking is terminal", b.State())
	}

	b.OnTrackingFrame(emptyFrame(3))
	if len(transport.sends) != 1 {
		t.Fatalf("frame across the outage was sent; want it to re-prime instead")
	}

	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(4))
	if len(transport.sends) != 2 {
		t.Errorf("%d sends after reconnect recovery, want 2", len(transport.sends))
	}
}

func TestBridgeRecorderTee(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	rec := &fakeRecorder{}
	b := New(Config{Transport: transport, Clock: clock, Recorder: rec})

	b.OnTrackingFrame(emptyFrame(1))
	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(2))
	clock.Advance(10 * time.Millisecond)
	b.OnTrackingFrame(emptyFrame(3))

	if len(rec.records) != 2 {
		t.Fatalf("%d records, want 2", len(rec.records))
	}
	if rec.records[0].frameID != 2 || rec.records[1].frameID != 3 {
		t.Errorf("recorded frame ids = %d, %d", rec.records[0].frameID, rec.records[1].frameID)
	}

	wantTS := testStart.Add(10 * time.Millisecond).UnixNano()
	if rec.records[0].ts != wantTS {
		t.Errorf("recorded timestamp = %d, want arrival time %d", rec.records[0].ts, wantTS)
	}

	// The recorder sees exactly the bytes the transport saw.
	for i := range rec.records {
		if string(rec.records[i].payload) != string(transport.sends[i]) {
			t.Errorf("record %d payload differs from sent datagram", i)
		}
	}
}

func TestBridgeMuxSummaries(t *testing.T) {
	clock := timeutil.NewMockClock(testStart)
	transport := &fakeTransport{}
	mux := monitor.NewFrameMux()
	defer mux.Close()
	b := New(Config{Transport: transport, Clock: clock, Mux: mux})

	_, ch := mux.Subscribe()
	got := make(chan string, 1)
	go func() {
		got <- <-ch
	}()

	b.OnTrackingFrame(emptyFrame(1))

	// Publishing is non-blocking, so drive frames until the parked
	// subscriber picks one up.
	deadline := time.After(2 * time.Second)
	var summary string
loop:
	for i := int64(2); ; i++ {
		clock.Advance(10 * time.Millisecond)
		b.OnTrackingFrame(emptyFrame(i))
		select {
		case summary = <-got:
			break loop
		case <-deadline:
			t.Fatal("no summary published")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	var parsed frameSummary
	if err := json.Unmarshal([]byte(summary), &parsed); err != nil {
		t.Fatalf("summary is not JSON: %v (%q)", err, summary)
	}
	if parsed.Hands != 0 {
		t.Errorf("summary hands = %d, want 0", parsed.Hands)
	}
	if parsed.Bytes <= 0 {
		t.Errorf("summary bytes = %d, want > 0", parsed.Bytes)
	}
	if parsed.FPS <= 0 {
		t.Errorf("summary fps = %v, want > 0", parsed.FPS)
	}
}

func TestBridgeClose(t *testing.T) {
	var order []string
	transport := &fakeTransport{closeLog: &order}
	rec := &fakeRecorder{closeLog: &order}
	b := New(Config{Transport: transport, Recorder: rec})

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !rec.closed || !transport.closed {
		t.Error("Close must reach both the recorder and the transport")
	}
	if len(order) != 2 || order[0] != "recorder" || order[1] != "transport" {
		t.Errorf("close order = %v, want recorder before transport", order)
	}
}

func TestBridgeCloseRecorderError(t *testing.T) {
	wantErr := errors.New("disk full")
	transport := &fakeTransport{}
	rec := &fakeRecorder{closeErr: wantErr}
	b := New(Config{Transport: transport, Recorder: rec})

	if err := b.Close(); !errors.Is(err, wantErr) {
		t.Errorf("Close error = %v, want the recorder failure", err)
	}
	if !transport.closed {
		t.Error("transport must close even when the recorder fails")
	}
}
