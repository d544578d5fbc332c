// Package network moves encoded tracking frames over UDP: a
// fire-and-forget dispatcher on the producer side and a datagram
// listener for consumer tooling.
package network

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/handcast-data/handcast/internal/monitoring"
)

const (
	// DefaultHost and DefaultPort are where consumers listen on the
	// local machine.
	DefaultHost = "127.0.0.1"
	DefaultPort = 5005

	// DefaultWriteTimeout bounds one send attempt. Frames are
	// droppable; blocking the sensor callback is not.
	DefaultWriteTimeout = time.Millisecond

	dropLogInterval = 5 * time.Second
)

// SendStats receives transport outcomes. monitor.FrameStats satisfies
// it.
type SendStats interface {
	AddSent(bytes int)
	AddSendDropped()
}

type noopSendStats struct{}

func (noopSendStats) AddSent(int)     {}
func (noopSendStats) AddSendDropped() {}

// Dispatcher owns one connected UDP socket for the process lifetime
// and pushes frames at it without acknowledgement, retry or buffering.
type Dispatcher struct {
	conn         *net.UDPConn
	dest         string
	writeTimeout time.Duration
	stats        SendStats

	mu              sync.Mutex
	dropped         uint64
	droppedSinceLog uint64
	lastDropLog     time.Time
}

// NewDispatcher resolves the destination and opens the socket
// immediately; the destination is fixed for the dispatcher's lifetime.
// Empty host and zero port select the local defaults. A nil stats sink
// is allowed.
func NewDispatcher(host string, port int, stats SendStats) (*Dispatcher, error) {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	if stats == nil {
		stats = noopSendStats{}
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve destination %s:%d: %w", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %v: %w", addr, err)
	}
	d := &Dispatcher{
		conn:         conn,
		dest:         addr.String(),
		writeTimeout: DefaultWriteTimeout,
		stats:        stats,
	}
	monitoring.Logf("network: dispatching tracking frames to %s", d.dest)
	return d, nil
}

// SetWriteTimeout changes the per-send deadline. Zero or negative
// restores the default.
func (d *Dispatcher) SetWriteTimeout(t time.Duration) {
	if t <= 0 {
		t = DefaultWriteTimeout
	}
	d.writeTimeout = t
}

// Send makes a single bounded write attempt and never retries: a frame
// that cannot leave now is already stale by the time it could.
func (d *Dispatcher) Send(payload []byte) error {
	_ = d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	n, err := d.conn.Write(payload)
	if err != nil {
		d.stats.AddSendDropped()
		d.noteDrop(err)
		return fmt.Errorf("send to %s: %w", d.dest, err)
	}
	d.stats.AddSent(n)
	return nil
}

// noteDrop aggregates failures so a dead consumer cannot flood the log
// at frame rate.
func (d *Dispatcher) noteDrop(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped++
	d.droppedSinceLog++
	now := time.Now()
	if d.lastDropLog.IsZero() || now.Sub(d.lastDropLog) >= dropLogInterval {
		monitoring.Logf("\033[93mnetwork: %d sends to %s dropped since last report: %v\033[0m",
			d.droppedSinceLog, d.dest, err)
		d.droppedSinceLog = 0
		d.lastDropLog = now
	}
}

// Address returns the resolved destination.
func (d *Dispatcher) Address() string { return d.dest }

// Dropped returns the total number of failed send attempts.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close releases the socket. Sends after Close fail and count as
// drops.
func (d *Dispatcher) Close() error {
	return d.conn.Close()
}
