package leap

import (
	"context"
	"time"

	"github.com/handcast-data/handcast/internal/timeutil"
)

// ScriptSource replays a fixed list of tracking events. It exists for
// tests and offline tooling that need a predictable feed.
type ScriptSource struct {
	Device   DeviceInfo
	Events   []*TrackingEvent
	Interval time.Duration  // pause before each event; 0 delivers back to back
	Clock    timeutil.Clock // nil selects the real clock
}

// Run delivers the scripted events in order and returns nil once the
// script is exhausted.
func (s *ScriptSource) Run(ctx context.Context, l Listener) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	l.OnConnected()
	if s.Device != (DeviceInfo{}) {
		l.OnDeviceFound(s.Device)
	}
	for _, ev := range s.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Interval > 0 {
			clock.Sleep(s.Interval)
		}
		l.OnTrackingFrame(ev)
	}
	return nil
}
