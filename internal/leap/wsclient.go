package leap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/handcast-data/handcast/internal/monitoring"
)

// DefaultServiceURL is the hand-tracking service's event feed on the
// local machine.
const DefaultServiceURL = "ws://127.0.0.1:6437/v1/events"

// Feed message types.
const (
	eventConnected = "connected"
	eventDevice    = "device"
	eventTracking  = "tracking"
)

// serviceEvent is the envelope around every message on the event feed.
type serviceEvent struct {
	Type   string         `json:"type"`
	Device *DeviceInfo    `json:"device,omitempty"`
	Event  *TrackingEvent `json:"event,omitempty"`
}

// ServiceClient subscribes to the tracking service's WebSocket event
// feed and replays it onto a Listener.
type ServiceClient struct {
	url    string
	dialer *websocket.Dialer
}

// NewServiceClient returns a client for the feed at url. An empty url
// selects DefaultServiceURL.
func NewServiceClient(url string) *ServiceClient {
	if url == "" {
		url = DefaultServiceURL
	}
	return &ServiceClient{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
	}
}

// URL returns the feed endpoint this client dials.
func (c *ServiceClient) URL() string { return c.url }

// Run connects to the service and delivers its events to l until the
// context is cancelled or the connection drops. Callbacks run on the
// calling goroutine. Run returns the reason the feed ended; callers
// that want a resilient feed reconnect around it.
func (c *ServiceClient) Run(ctx context.Context, l Listener) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial tracking service %s: %w", c.url, err)
	}
	defer conn.Close()
	monitoring.Verbosef("leap: subscribed to %s", c.url)

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("tracking service read: %w", err)
		}
		c.deliver(data, l)
	}
}

// deliver decodes one feed message and fires the matching callback.
// Malformed messages are dropped with a notice so a single bad event
// cannot take the feed down.
func (c *ServiceClient) deliver(data []byte, l Listener) {
	var ev serviceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		monitoring.Logf("leap: discarding malformed service event: %v", err)
		return
	}
	switch ev.Type {
	case eventConnected:
		l.OnConnected()
	case eventDevice:
		if ev.Device == nil {
			monitoring.Logf("leap: device event without device payload")
			return
		}
		l.OnDeviceFound(*ev.Device)
	case eventTracking:
		if ev.Event == nil {
			monitoring.Logf("leap: tracking event without frame payload")
			return
		}
		l.OnTrackingFrame(ev.Event)
	default:
		monitoring.Verbosef("leap: ignoring %q service event", ev.Type)
	}
}
