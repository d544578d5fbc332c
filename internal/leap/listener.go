package leap

import "context"

// Listener receives tracking-service events. A Source invokes the
// callbacks serially from a single goroutine, so implementations may
// keep per-frame state without locking.
type Listener interface {
	// OnConnected fires once the service connection is established.
	OnConnected()

	// OnDeviceFound fires when the service reports an attached device.
	OnDeviceFound(device DeviceInfo)

	// OnTrackingFrame fires for every tracking frame. The event is only
	// valid for the duration of the call; listeners that need it longer
	// must copy what they keep.
	OnTrackingFrame(ev *TrackingEvent)
}

// Source drives a Listener with tracking events until the context is
// cancelled or the feed ends.
type Source interface {
	Run(ctx context.Context, l Listener) error
}
