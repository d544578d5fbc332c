package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/handcast-data/handcast/internal/monitoring"
)

// maxPacketSize covers the largest datagram the dispatcher can emit.
const maxPacketSize = 65535

// ReceiveStats receives listener outcomes.
type ReceiveStats interface {
	AddPacket(bytes int)
	LogStats()
}

type noopReceiveStats struct{}

func (noopReceiveStats) AddPacket(int) {}
func (noopReceiveStats) LogStats()     {}

// PacketHandler consumes one datagram payload. The payload slice is
// reused between reads; handlers keep a copy if they need it later.
type PacketHandler interface {
	HandlePacket(payload []byte) error
}

// PacketHandlerFunc adapts a plain function to PacketHandler.
type PacketHandlerFunc func(payload []byte) error

func (f PacketHandlerFunc) HandlePacket(p []byte) error { return f(p) }

// ListenerConfig configures a datagram listener.
type ListenerConfig struct {
	Address     string        // bind address; empty selects ":5005"
	ReadBuffer  int           // kernel receive buffer; <= 0 selects 1MB
	LogInterval time.Duration // stats cadence; 0 disables the log loop
	Stats       ReceiveStats  // nil is allowed
	Handler     PacketHandler // required
}

// Listener receives tracking datagrams for consumer tools. Reads use
// short deadlines so cancellation is honoured promptly.
type Listener struct {
	cfg       ListenerConfig
	conn      *net.UDPConn
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewListener validates the configuration and fills defaults. The
// socket is not bound until Start.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Handler == nil {
		return nil, errors.New("network: listener needs a packet handler")
	}
	if cfg.Address == "" {
		cfg.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 1 << 20
	}
	if cfg.Stats == nil {
		cfg.Stats = noopReceiveStats{}
	}
	return &Listener{cfg: cfg, quit: make(chan struct{})}, nil
}

// Start binds the socket and consumes datagrams until ctx ends or
// Close is called.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", l.cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", l.cfg.Address, err)
	}
	if err := conn.SetReadBuffer(l.cfg.ReadBuffer); err != nil {
		monitoring.Logf("network: could not grow receive buffer to %d: %v", l.cfg.ReadBuffer, err)
	}
	l.conn = conn
	monitoring.Logf("network: listening for tracking frames on %s", conn.LocalAddr())

	if l.cfg.LogInterval > 0 {
		l.wg.Add(1)
		go l.logLoop(ctx)
	}
	l.wg.Add(1)
	go l.readLoop(ctx)
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) readLoop(ctx context.Context) {
	defer l.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		default:
		}

		_ = l.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			monitoring.Logf("network: read error: %v", err)
			continue
		}

		l.cfg.Stats.AddPacket(n)
		if err := l.cfg.Handler.HandlePacket(buf[:n]); err != nil {
			monitoring.Verbosef("network: handler rejected %d byte packet: %v", n, err)
		}
	}
}

// logLoop emits an early liveness report, then settles into the
// configured cadence.
func (l *Listener) logLoop(ctx context.Context) {
	defer l.wg.Done()
	first := time.NewTimer(2 * time.Second)
	defer first.Stop()
	select {
	case <-ctx.Done():
		return
	case <-l.quit:
		return
	case <-first.C:
		l.cfg.Stats.LogStats()
	}

	ticker := time.NewTicker(l.cfg.LogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case <-ticker.C:
			l.cfg.Stats.LogStats()
		}
	}
}

// Close unblocks the loops and waits for them to finish.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.quit)
		if l.conn != nil {
			err = l.conn.Close()
		}
	})
	l.wg.Wait()
	return err
}
