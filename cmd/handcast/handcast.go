package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/handcast-data/handcast/internal/bridge"
	"github.com/handcast-data/handcast/internal/config"
	"github.com/handcast-data/handcast/internal/leap"
	"github.com/handcast-data/handcast/internal/monitor"
	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/network"
	"github.com/handcast-data/handcast/internal/session"
	"github.com/handcast-data/handcast/internal/version"
)

var (
	serviceURL     = flag.String("service-url", "", "tracking service WebSocket URL (default ws://127.0.0.1:6437/v1/events)")
	synthetic      = flag.Bool("synthetic", false, "run from the synthetic frame generator instead of the tracking service")
	syntheticRate  = flag.Float64("synthetic-rate", 90, "synthetic source frame rate in frames per second")
	syntheticHands = flag.Int("synthetic-hands", 1, "number of synthetic hands (1 or 2)")
	dest           = flag.String("dest", "", "destination host:port for tracking datagrams (default 127.0.0.1:5005)")
	label          = flag.String("label", "", "address label for outgoing frames (default /tracking/event)")
	listen         = flag.String("listen", ":8080", "HTTP listen address for the monitor interface (empty disables)")
	recordPath     = flag.String("record", "", "record the outgoing stream into a session log at this path")
	dbFile         = flag.String("db", "handcast.db", "path to the session catalogue database (empty disables)")
	tuningFile     = flag.String("tuning", "", "path to a tuning overrides JSON file")
	logInterval    = flag.Int("log-interval", 0, "statistics logging interval in seconds (0 uses the tuning value)")
	verbose        = flag.Bool("verbose", false, "log per-frame diagnostics")
	showVersion    = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("handcast", version.String())
		return
	}

	monitoring.SetVerbose(*verbose)

	// Tuning starts from the built-in defaults; a -tuning file overrides
	// individual values.
	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	destination := *dest
	if destination == "" {
		destination = tuning.GetDestination()
	}
	host, port, err := splitDestination(destination)
	if err != nil {
		log.Fatalf("Invalid destination %q: %v", destination, err)
	}

	frameLabel := *label
	if frameLabel == "" {
		frameLabel = tuning.GetLabel()
	}

	stats := monitor.NewFrameStats()
	history := monitor.NewRateHistory(tuning.GetHistorySize())
	frameMux := monitor.NewFrameMux()

	dispatcher, err := network.NewDispatcher(host, port, stats)
	if err != nil {
		log.Fatalf("Failed to open dispatch socket: %v", err)
	}
	dispatcher.SetWriteTimeout(tuning.GetSendTimeout())

	var store *session.Store
	if *dbFile != "" {
		store, err = session.OpenStore(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open session catalogue: %v", err)
		}
		defer store.Close()
	}

	var recorder *session.Recorder
	if *recordPath != "" {
		recorder, err = session.NewRecorder(session.RecorderConfig{
			BasePath:    *recordPath,
			Label:       frameLabel,
			Destination: dispatcher.Address(),
			ChunkSize:   tuning.GetChunkRecords(),
			QueueDepth:  tuning.GetRecordQueue(),
			Stats:       stats,
		})
		if err != nil {
			log.Fatalf("Failed to create session recorder: %v", err)
		}
		log.Printf("Recording session %s to %s", recorder.SessionID(), recorder.Path())
	}

	bcfg := bridge.Config{
		Label:         frameLabel,
		RateWindow:    tuning.GetRateWindow(),
		DatagramLimit: tuning.GetMaxDatagramBytes(),
		Stats:         stats,
		Transport:     dispatcher,
		Mux:           frameMux,
	}
	if recorder != nil {
		bcfg.Recorder = recorder
	}
	b := bridge.New(bcfg)

	// Pick the frame source. The WebSocket client reconnects around
	// service restarts; the synthetic generator runs until shutdown.
	var src leap.Source
	var sourceDesc string
	reconnect := false
	if *synthetic {
		src = leap.NewSyntheticSource(*syntheticRate, *syntheticHands)
		sourceDesc = fmt.Sprintf("synthetic (%d hands at %.0f fps)", *syntheticHands, *syntheticRate)
	} else {
		url := *serviceURL
		if url == "" {
			url = tuning.GetServiceURL()
		}
		client := leap.NewServiceClient(url)
		src = client
		sourceDesc = client.URL()
		reconnect = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if recorder != nil {
		recorder.Start(ctx)
	}

	var sessionID string
	if store != nil {
		sess := &session.Session{Label: frameLabel, Destination: dispatcher.Address()}
		if recorder != nil {
			sess.SessionID = recorder.SessionID()
			sess.LogPath = recorder.Path()
		}
		if err := store.BeginSession(sess); err != nil {
			log.Fatalf("Failed to begin session: %v", err)
		}
		sessionID = sess.SessionID
		log.Printf("Session %s started", sessionID)
	}

	log.Printf("handcast %s: %s -> %s (label %s)", version.String(), sourceDesc, dispatcher.Address(), frameLabel)

	var wg sync.WaitGroup

	// Source loop. A dropped service connection comes back through the
	// bridge as a reconnect, so the first frame after an outage is
	// primed rather than sent.
	wg.Add(1)
	go func() {
		defer wg.Done()
		backoff := tuning.GetReconnectBackoff()
		for {
			err := src.Run(ctx, b)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				log.Printf("Tracking source stopped: %v", err)
			}
			if !reconnect {
				// A finite source ending means there is nothing left
				// to do; take the rest of the process down with it.
				stop()
				return
			}
			log.Printf("Reconnecting to tracking service in %s", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}()

	// Periodic stats: log the interval totals, remember them for the
	// monitor pages, and persist a rollup when a session row exists.
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := tuning.GetStatsInterval()
		if *logInterval > 0 {
			interval = time.Duration(*logInterval) * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastPush time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mean, ok := b.RateMean()
				stats.LogStats(mean, ok)

				// Idle intervals store no snapshot; skip them instead
				// of re-pushing the previous one.
				snap := stats.GetLatestSnapshot()
				if snap == nil || !snap.Timestamp.After(lastPush) {
					continue
				}
				lastPush = snap.Timestamp
				history.Push(monitor.RateSample{
					Timestamp: snap.Timestamp,
					FPS:       snap.FramesPerSec,
					Hands:     snap.HandsPerFrame,
				})
				if store != nil && sessionID != "" {
					if err := store.AddRateSample(sessionID, snap.Timestamp.UnixNano(), snap.FramesPerSec, snap.HandsPerFrame); err != nil {
						log.Printf("Failed to persist rate sample: %v", err)
					}
				}
			}
		}
	}()

	if *listen != "" {
		recording := ""
		if recorder != nil {
			recording = recorder.Path()
		}
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:       *listen,
			Stats:         stats,
			History:       history,
			Frames:        frameMux,
			Store:         store,
			ServiceSource: sourceDesc,
			Destination:   dispatcher.Address(),
			Label:         frameLabel,
			RecordingPath: recording,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("Monitor server error: %v", err)
			}
		}()
	}

	wg.Wait()

	// The bridge flushes the recorder before releasing the socket, so
	// every queued frame reaches the log before the catalogue row is
	// finalised.
	if err := b.Close(); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	frameMux.Close()

	if store != nil && sessionID != "" {
		if err := store.EndSession(sessionID, time.Now().UnixNano(), stats.TotalFrames()); err != nil {
			log.Printf("Failed to finalise session row: %v", err)
		} else {
			log.Printf("Session %s finalised (%d frames)", sessionID, stats.TotalFrames())
		}
	}

	log.Printf("Graceful shutdown complete")
}

// splitDestination separates a host:port destination. The host may be
// empty, which the dispatcher treats as the local default.
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
