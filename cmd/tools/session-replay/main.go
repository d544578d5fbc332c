// Command session-replay re-sends a recorded session over UDP.
//
// It walks a .hclog session directory and dispatches each stored
// datagram to the destination, either with the original inter-arrival
// timing or scaled by -speed. Consumers cannot tell a replay from a
// live bridge, which makes recorded material usable for development
// without a device on the desk.
//
// Usage:
//
//	go run ./cmd/tools/session-replay [flags]
//
// Flags:
//
//	-log    Path to the .hclog session directory (required)
//	-dest   Destination host:port (default: 127.0.0.1:5005)
//	-speed  Playback rate multiplier; 0 sends as fast as possible (default: 1.0)
//	-loop   Restart from the first frame on reaching the end
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/handcast-data/handcast/internal/network"
	"github.com/handcast-data/handcast/internal/session"
)

func main() {
	logPath := flag.String("log", "", "path to the .hclog session directory (required)")
	dest := flag.String("dest", fmt.Sprintf("%s:%d", network.DefaultHost, network.DefaultPort), "destination host:port")
	speed := flag.Float64("speed", 1.0, "playback rate multiplier; 0 sends as fast as possible")
	loop := flag.Bool("loop", false, "restart from the first frame on reaching the end")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}

	replayer, err := session.NewReplayer(*logPath)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}

	header := replayer.Header()
	log.Printf("Log info: %d frames, %.2f seconds, session=%s label=%q",
		header.TotalFrames,
		float64(header.EndNs-header.StartNs)/1e9,
		header.SessionID, header.Label)

	host, port, err := splitDestination(*dest)
	if err != nil {
		log.Fatalf("Invalid destination %q: %v", *dest, err)
	}
	dispatcher, err := network.NewDispatcher(host, port, nil)
	if err != nil {
		log.Fatalf("Failed to open socket: %v", err)
	}
	defer dispatcher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pass := 0
	totalSent := 0
	for {
		sent, err := replayPass(ctx, replayer, dispatcher, *speed)
		totalSent += sent
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Fatalf("Replay failed: %v", err)
		}
		pass++
		log.Printf("Pass %d complete: %d frames sent", pass, sent)
		if !*loop {
			break
		}
		if err := replayer.Seek(0); err != nil {
			log.Fatalf("Failed to rewind: %v", err)
		}
	}

	if dropped := dispatcher.Dropped(); dropped > 0 {
		log.Printf("%d sends dropped", dropped)
	}
	log.Printf("Done: %d frames sent to %s", totalSent, dispatcher.Address())
}

// replayPass sends every remaining record once, pacing by the recorded
// inter-arrival gaps scaled by speed. A zero or negative speed sends
// with no pacing at all.
func replayPass(ctx context.Context, rep *session.Replayer, disp *network.Dispatcher, speed float64) (int, error) {
	sent := 0
	var prevNs int64
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		rec, err := rep.ReadRecord()
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if wait := replayGap(prevNs, rec.TimestampNs, speed); wait > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(wait):
			}
		}
		prevNs = rec.TimestampNs

		// A failed send is already counted and logged by the dispatcher;
		// replay carries on like the live bridge would.
		if err := disp.Send(rec.Payload); err == nil {
			sent++
		}
	}
}

// replayGap converts the recorded gap between consecutive records into
// a wait, scaled by the rate multiplier. The first record of a pass and
// non-monotonic timestamps produce no wait.
func replayGap(prevNs, curNs int64, speed float64) time.Duration {
	if speed <= 0 || prevNs == 0 || curNs <= prevNs {
		return 0
	}
	return time.Duration(float64(curNs-prevNs) / speed)
}

func splitDestination(destination string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(destination)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("port %q: %w", portStr, err)
	}
	return host, port, nil
}
