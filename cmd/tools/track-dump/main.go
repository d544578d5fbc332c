// Command track-dump prints decoded tracking frames arriving over UDP.
//
// It binds the consumer side of the bridge transport and either dumps
// every hand in every frame (the default) or keeps running counters
// with -stats. Use it to confirm the bridge is sending and that palm
// coordinates look sane before pointing a real consumer at the stream.
//
// Usage:
//
//	go run ./cmd/tools/track-dump [flags]
//
// Flags:
//
//	-listen    Bind address (default: :5005)
//	-stats     Summary counters only, no per-frame output
//	-interval  Summary cadence in -stats mode (default: 5s)
//	-frames    Stop after this many frames (default: 0, run until interrupted)
//	-verbose   Log decode rejects
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/handcast-data/handcast/internal/geom"
	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/network"
	"github.com/handcast-data/handcast/internal/track"
	"github.com/handcast-data/handcast/internal/wire"
)

// fingerNames maps the canonical digit index to its anatomical name.
var fingerNames = [5]string{"thumb", "index", "middle", "ring", "pinky"}

// dumpStats holds the interval counters reported in -stats mode.
type dumpStats struct {
	mu          sync.Mutex
	packets     int64
	bytes       int64
	frames      int64
	hands       int64
	undecodable int64
	lastReset   time.Time
}

func (ds *dumpStats) AddPacket(bytes int) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.packets++
	ds.bytes += int64(bytes)
}

func (ds *dumpStats) addFrame(hands int) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.frames++
	ds.hands += int64(hands)
}

func (ds *dumpStats) addUndecodable() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.undecodable++
}

// LogStats prints one summary line and resets the interval counters.
func (ds *dumpStats) LogStats() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(ds.lastReset)
	if ds.lastReset.IsZero() || elapsed <= 0 {
		elapsed = time.Second
	}
	secs := elapsed.Seconds()

	handsPerFrame := 0.0
	if ds.frames > 0 {
		handsPerFrame = float64(ds.hands) / float64(ds.frames)
	}

	log.Printf("track-dump: %d pkts (%.1f/s), %.1f KB/s, %d frames, %.2f hands/frame, %d undecodable",
		ds.packets, float64(ds.packets)/secs,
		float64(ds.bytes)/1024.0/secs,
		ds.frames, handsPerFrame, ds.undecodable)

	ds.packets, ds.bytes, ds.frames, ds.hands, ds.undecodable = 0, 0, 0, 0, 0
	ds.lastReset = now
}

func main() {
	listen := flag.String("listen", fmt.Sprintf(":%d", network.DefaultPort), "bind address for tracking datagrams")
	statsOnly := flag.Bool("stats", false, "summary counters only, no per-frame output")
	interval := flag.Duration("interval", 5*time.Second, "summary cadence in -stats mode")
	maxFrames := flag.Int64("frames", 0, "stop after this many frames (0 runs until interrupted)")
	verbose := flag.Bool("verbose", false, "log decode rejects")
	flag.Parse()

	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := &dumpStats{}
	var total atomic.Int64

	handler := network.PacketHandlerFunc(func(payload []byte) error {
		label, frame, err := wire.Decode(payload)
		if err != nil {
			stats.addUndecodable()
			return err
		}
		stats.addFrame(len(frame.Hands))
		if !*statsOnly {
			printFrame(label, frame)
		}
		if n := total.Add(1); *maxFrames > 0 && n >= *maxFrames {
			stop()
		}
		return nil
	})

	logInterval := time.Duration(0)
	if *statsOnly {
		logInterval = *interval
	}

	listener, err := network.NewListener(network.ListenerConfig{
		Address:     *listen,
		LogInterval: logInterval,
		Stats:       stats,
		Handler:     handler,
	})
	if err != nil {
		log.Fatalf("Failed to configure listener: %v", err)
	}
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("Failed to start listener: %v", err)
	}

	<-ctx.Done()
	listener.Close()
	log.Printf("track-dump: %d frames total", total.Load())
}

// printFrame writes one frame in a fixed-width layout, one line per
// finger, coordinates in millimetres.
func printFrame(label string, f *track.Frame) {
	fmt.Printf("frame %-9d ts=%dus %s hands=%d\n", f.FrameID, f.Timestamp, label, len(f.Hands))
	for _, h := range f.Hands {
		side := "right"
		if h.IsLeft {
			side = "left"
		}
		fmt.Printf("  %-5s #%-3d conf=%.2f grab=%.2f pinch=%.2f gap=%.1fmm\n",
			side, h.ID, h.Confidence, h.GrabStrength, h.PinchStrength, h.PinchDistance)
		fmt.Printf("    palm   %s vel %6.1f mm/s\n", fmtVec(h.PalmPosition), h.PalmVelocity.Norm())
		for _, fg := range h.Fingers {
			name := "digit"
			if fg.ID >= 0 && int(fg.ID) < len(fingerNames) {
				name = fingerNames[fg.ID]
			}
			marker := ""
			if fg.IsExtended {
				marker = " extended"
			}
			fmt.Printf("    %-6s %s bones=%d%s\n", name, fmtVec(fg.TipPosition), len(fg.Bones), marker)
		}
		if h.WristPosition != (geom.Vector3{}) || h.ElbowPosition != (geom.Vector3{}) {
			fmt.Printf("    wrist  %s elbow %s\n", fmtVec(h.WristPosition), fmtVec(h.ElbowPosition))
		}
	}
}

func fmtVec(v geom.Vector3) string {
	return fmt.Sprintf("(%7.1f %7.1f %7.1f)", v.X, v.Y, v.Z)
}
