// Command fov-check reports whether hands sit inside the sensor's
// sweet spot.
//
// It listens for tracking frames for a fixed window, then reports how
// often a hand was visible and where the palms sat vertically. The
// device tracks best with palms 100-400mm above it; when the mean
// falls outside that band the report says which way to move.
//
// Usage:
//
//	go run ./cmd/tools/fov-check [flags]
//
// Flags:
//
//	-listen    Bind address (default: :5005)
//	-duration  Sampling window (default: 10s)
//	-verbose   Log decode rejects
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/network"
	"github.com/handcast-data/handcast/internal/track"
	"github.com/handcast-data/handcast/internal/wire"
)

// The vertical band, in millimetres above the device, where tracking
// quality holds up.
const (
	bandLowMm  = 100.0
	bandHighMm = 400.0
)

// fovStats accumulates per-frame visibility and palm geometry over the
// sampling window.
type fovStats struct {
	mu              sync.Mutex
	frames          int64
	framesWithHands int64
	leftFrames      int64
	rightFrames     int64
	handSamples     int64
	heightSum       float64
	heightMin       float64
	heightMax       float64
	confSum         float64
}

func (fs *fovStats) observe(f *track.Frame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.frames++
	if len(f.Hands) == 0 {
		return
	}
	fs.framesWithHands++

	left, right := false, false
	for _, h := range f.Hands {
		if h.IsLeft {
			left = true
		} else {
			right = true
		}
		y := h.PalmPosition.Y
		if fs.handSamples == 0 || y < fs.heightMin {
			fs.heightMin = y
		}
		if fs.handSamples == 0 || y > fs.heightMax {
			fs.heightMax = y
		}
		fs.heightSum += y
		fs.confSum += h.Confidence
		fs.handSamples++
	}
	if left {
		fs.leftFrames++
	}
	if right {
		fs.rightFrames++
	}
}

// fovSummary is the digest printed at the end of the window.
type fovSummary struct {
	Frames         int64
	VisiblePct     float64
	LeftFrames     int64
	RightFrames    int64
	HandSamples    int64
	MeanHeight     float64
	MinHeight      float64
	MaxHeight      float64
	MeanConfidence float64
}

func (fs *fovStats) summary() fovSummary {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s := fovSummary{
		Frames:      fs.frames,
		LeftFrames:  fs.leftFrames,
		RightFrames: fs.rightFrames,
		HandSamples: fs.handSamples,
		MinHeight:   fs.heightMin,
		MaxHeight:   fs.heightMax,
	}
	if fs.frames > 0 {
		s.VisiblePct = 100 * float64(fs.framesWithHands) / float64(fs.frames)
	}
	if fs.handSamples > 0 {
		s.MeanHeight = fs.heightSum / float64(fs.handSamples)
		s.MeanConfidence = fs.confSum / float64(fs.handSamples)
	}
	return s
}

// placementAdvice reduces the window to one operator instruction.
func placementAdvice(s fovSummary) string {
	switch {
	case s.Frames == 0:
		return "no tracking traffic received; is the bridge running and pointed here?"
	case s.VisiblePct < 50:
		return "hands rarely visible; check the device faces the capture volume"
	case s.MeanHeight < bandLowMm:
		return fmt.Sprintf("palms average %.0fmm, too close to the device; raise the hands or lower the mount", s.MeanHeight)
	case s.MeanHeight > bandHighMm:
		return fmt.Sprintf("palms average %.0fmm, too far above the device; bring the hands closer", s.MeanHeight)
	default:
		return fmt.Sprintf("good placement, palms average %.0fmm inside the %.0f-%.0fmm band", s.MeanHeight, bandLowMm, bandHighMm)
	}
}

func main() {
	listen := flag.String("listen", fmt.Sprintf(":%d", network.DefaultPort), "bind address for tracking datagrams")
	window := flag.Duration("duration", 10*time.Second, "how long to sample")
	verbose := flag.Bool("verbose", false, "log decode rejects")
	flag.Parse()

	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *window)
	defer cancel()

	stats := &fovStats{}
	handler := network.PacketHandlerFunc(func(payload []byte) error {
		_, frame, err := wire.Decode(payload)
		if err != nil {
			return err
		}
		stats.observe(frame)
		return nil
	})

	listener, err := network.NewListener(network.ListenerConfig{
		Address: *listen,
		Handler: handler,
	})
	if err != nil {
		log.Fatalf("Failed to configure listener: %v", err)
	}

	started := time.Now()
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("Failed to start listener: %v", err)
	}
	log.Printf("fov-check: sampling %s for %s, keep your hands over the device", *listen, *window)

	<-ctx.Done()
	listener.Close()

	printReport(time.Since(started), stats.summary())
}

func printReport(window time.Duration, s fovSummary) {
	fmt.Println("\n=== Field of View Check ===")
	fmt.Printf("Window:          %.1fs\n", window.Seconds())
	fmt.Printf("Frames received: %d (%.1f/s)\n", s.Frames, float64(s.Frames)/window.Seconds())
	fmt.Printf("Hand visible:    %.1f%% of frames\n", s.VisiblePct)
	fmt.Printf("  left hand:     %d frames\n", s.LeftFrames)
	fmt.Printf("  right hand:    %d frames\n", s.RightFrames)
	if s.HandSamples > 0 {
		fmt.Printf("Palm height:     mean %.1fmm  min %.1fmm  max %.1fmm\n", s.MeanHeight, s.MinHeight, s.MaxHeight)
		fmt.Printf("Confidence:      mean %.2f\n", s.MeanConfidence)
	}
	fmt.Printf("\nPlacement: %s\n", placementAdvice(s))
}
