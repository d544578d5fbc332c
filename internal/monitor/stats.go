package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/handcast-data/handcast/internal/monitoring"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	FramesPerSec  float64
	HandsPerFrame float64
	SendsPerSec   float64
	KBPerSec      float64
	MeanFPS       float64
	RateKnown     bool
	SendDrops     int64
	EncodeErrors  int64
	MapSkips      int64
	RecordDrops   int64
	Timestamp     time.Time
}

// FrameTotals holds the counters accumulated since the last reset.
type FrameTotals struct {
	Frames        int64
	Hands         int64
	Sends         int64
	Bytes         int64
	SendDropped   int64
	EncodeErrors  int64
	MapSkips      int64
	RecordDropped int64
	Duration      time.Duration
}

// FrameStats tracks tracking-frame statistics with thread-safe operations
type FrameStats struct {
	mu             sync.Mutex
	frameCount     int64
	handCount      int64
	sendCount      int64
	byteCount      int64
	sendDropped    int64
	encodeErrors   int64
	mapSkips       int64
	recordDropped  int64
	totalFrames    int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewFrameStats creates a new FrameStats instance
func NewFrameStats() *FrameStats {
	now := time.Now()
	return &FrameStats{
		lastReset: now,
		startTime: now,
	}
}

// AddFrame increments the frame count and records how many hands it carried.
func (fs *FrameStats) AddFrame(hands int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.totalFrames++
	fs.handCount += int64(hands)
}

// AddMapSkips records hands or fingers that the mapper discarded.
func (fs *FrameStats) AddMapSkips(count int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mapSkips += int64(count)
}

// AddEncodeError increments the count of frames that failed to encode.
func (fs *FrameStats) AddEncodeError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.encodeErrors++
}

// AddSent increments the sent-datagram count and byte count.
func (fs *FrameStats) AddSent(bytes int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sendCount++
	fs.byteCount += int64(bytes)
}

// AddSendDropped increments the dropped-send count.
func (fs *FrameStats) AddSendDropped() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.sendDropped++
}

// AddRecordDropped increments the count of frames the recorder had to discard.
func (fs *FrameStats) AddRecordDropped() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.recordDropped++
}

// GetAndReset returns current totals and resets the counters
func (fs *FrameStats) GetAndReset() FrameTotals {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	totals := FrameTotals{
		Frames:        fs.frameCount,
		Hands:         fs.handCount,
		Sends:         fs.sendCount,
		Bytes:         fs.byteCount,
		SendDropped:   fs.sendDropped,
		EncodeErrors:  fs.encodeErrors,
		MapSkips:      fs.mapSkips,
		RecordDropped: fs.recordDropped,
		Duration:      now.Sub(fs.lastReset),
	}

	fs.frameCount = 0
	fs.handCount = 0
	fs.sendCount = 0
	fs.byteCount = 0
	fs.sendDropped = 0
	fs.encodeErrors = 0
	fs.mapSkips = 0
	fs.recordDropped = 0
	fs.lastReset = now

	return totals
}

// LogStats logs formatted statistics and stores a snapshot for the web
// interface. meanFPS is the window average from the rate estimator; pass
// haveRate false while the window is still empty.
func (fs *FrameStats) LogStats(meanFPS float64, haveRate bool) {
	t := fs.GetAndReset()
	if t.Frames == 0 && t.SendDropped == 0 {
		return
	}

	framesPerSec := float64(t.Frames) / t.Duration.Seconds()
	sendsPerSec := float64(t.Sends) / t.Duration.Seconds()
	kbPerSec := float64(t.Bytes) / t.Duration.Seconds() / 1024
	var handsPerFrame float64
	if t.Frames > 0 {
		handsPerFrame = float64(t.Hands) / float64(t.Frames)
	}

	// Store snapshot for web interface
	fs.mu.Lock()
	fs.latestSnapshot = &StatsSnapshot{
		FramesPerSec:  framesPerSec,
		HandsPerFrame: handsPerFrame,
		SendsPerSec:   sendsPerSec,
		KBPerSec:      kbPerSec,
		MeanFPS:       meanFPS,
		RateKnown:     haveRate,
		SendDrops:     t.SendDropped,
		EncodeErrors:  t.EncodeErrors,
		MapSkips:      t.MapSkips,
		RecordDrops:   t.RecordDropped,
		Timestamp:     time.Now(),
	}
	fs.mu.Unlock()

	logMsg := fmt.Sprintf("Tracking stats (/sec): %.1f frames, %.2f hands/frame, %.1f sends, %.1f KB",
		framesPerSec, handsPerFrame, sendsPerSec, kbPerSec)
	if haveRate {
		logMsg += fmt.Sprintf(", window mean %.1f fps", meanFPS)
	}
	if t.SendDropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on send", t.SendDropped)
	}
	if t.EncodeErrors > 0 {
		logMsg += fmt.Sprintf(", %d encode errors", t.EncodeErrors)
	}
	if t.MapSkips > 0 {
		logMsg += fmt.Sprintf(", %d map skips", t.MapSkips)
	}
	if t.RecordDropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped on record", t.RecordDropped)
	}

	monitoring.Logf("%s", logMsg)
}

// TotalFrames returns the cumulative frame count since startup. Unlike
// the interval counters it is never reset.
func (fs *FrameStats) TotalFrames() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.totalFrames
}

// GetUptime returns the time since the stats were created
func (fs *FrameStats) GetUptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return time.Since(fs.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for the web interface
func (fs *FrameStats) GetLatestSnapshot() *StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *fs.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
