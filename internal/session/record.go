// Package session provides recording, replay, and cataloguing of hand
// tracking sessions.
package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/handcast-data/handcast/internal/monitoring"
)

// FileExtension is the extension for handcast session log directories.
const FileExtension = ".hclog"

// ChunkSize is the default number of records per chunk file.
const ChunkSize = 1000

// DefaultQueueDepth bounds how many records may wait for the writer before
// RecordAsync starts dropping.
const DefaultQueueDepth = 256

// LogHeader contains metadata about a recorded session log.
type LogHeader struct {
	Version     string `json:"version"`
	SessionID   string `json:"session_id"`
	CreatedNs   int64  `json:"created_ns"`
	Label       string `json:"label"`
	Destination string `json:"destination"`
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	FrameID     uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// RecordStats receives drop notifications from the async queue.
// monitor.FrameStats satisfies it.
type RecordStats interface {
	AddRecordDropped()
}

type noopRecordStats struct{}

func (noopRecordStats) AddRecordDropped() {}

// RecorderConfig configures a session Recorder.
type RecorderConfig struct {
	// BasePath is the directory the log is written into. Empty selects a
	// timestamped directory under the system temp dir.
	BasePath string
	// SessionID identifies the session. Empty generates a fresh UUID.
	SessionID string
	// Label and Destination are copied into the log header so a log is
	// self-describing when replayed elsewhere.
	Label       string
	Destination string
	// ChunkSize is the number of records per chunk file. Zero selects ChunkSize.
	ChunkSize int
	// QueueDepth bounds the async queue. Zero selects DefaultQueueDepth.
	QueueDepth int
	// Stats receives drop notifications. May be nil.
	Stats RecordStats
}

type queuedRecord struct {
	frameID uint64
	tsNs    int64
	payload []byte
}

// Recorder writes encoded tracking frames to a chunked session log. The
// synchronous Record path is safe for direct use; the tracking callback
// should go through RecordAsync so a slow disk never stalls frame delivery.
type Recorder struct {
	basePath  string
	chunkSize int

	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	frameCount uint64
	startNs    int64
	endNs      int64

	// qmu guards the queue and accepting flag only. It is never held
	// across file IO so RecordAsync stays cheap.
	qmu       sync.Mutex
	queue     chan queuedRecord
	accepting bool
	stats     RecordStats
	wg        sync.WaitGroup

	mu        sync.Mutex
	finalized bool
}

// NewRecorder creates a Recorder that writes a session log under the
// configured directory.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	basePath := cfg.BasePath
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("session_%s_%d%s", sessionID, time.Now().Unix(), FileExtension))
	}

	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	stats := cfg.Stats
	if stats == nil {
		stats = noopRecordStats{}
	}

	r := &Recorder{
		basePath:     basePath,
		chunkSize:    chunkSize,
		currentChunk: -1,
		index:        make([]IndexEntry, 0),
		queue:        make(chan queuedRecord, queueDepth),
		accepting:    true,
		stats:        stats,
		header: LogHeader{
			Version:     "1.0",
			SessionID:   sessionID,
			CreatedNs:   time.Now().UnixNano(),
			Label:       cfg.Label,
			Destination: cfg.Destination,
		},
	}

	return r, nil
}

// Start launches the queue writer. The writer exits when the queue is closed
// by Close or when ctx is cancelled.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case rec, ok := <-r.queue:
				if !ok {
					return
				}
				if err := r.Record(rec.frameID, rec.tsNs, rec.payload); err != nil {
					// A failing disk stops the writer. The tracking
					// path just sees queue drops from here on.
					monitoring.Logf("session: record failed, recording stopped: %v", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RecordAsync queues a frame for the background writer. The payload is
// copied, so callers may reuse their buffer. Returns false when the queue is
// full or the recorder is closing; the frame is counted as dropped.
func (r *Recorder) RecordAsync(frameID uint64, timestampNs int64, payload []byte) bool {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	r.qmu.Lock()
	defer r.qmu.Unlock()
	if !r.accepting {
		r.stats.AddRecordDropped()
		return false
	}
	select {
	case r.queue <- queuedRecord{frameID: frameID, tsNs: timestampNs, payload: buf}:
		return true
	default:
		r.stats.AddRecordDropped()
		return false
	}
}

// Record writes one frame payload to the log.
func (r *Recorder) Record(frameID uint64, timestampNs int64, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return fmt.Errorf("recorder is closed")
	}

	// Track timestamps
	if r.startNs == 0 {
		r.startNs = timestampNs
	}
	r.endNs = timestampNs

	// Open new chunk if needed
	chunkIdx := int(r.frameCount / uint64(r.chunkSize))
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	// Write length-prefixed frame
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := r.chunkFile.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	// Add to index
	r.index = append(r.index, IndexEntry{
		FrameID:     frameID,
		TimestampNs: timestampNs,
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})

	r.chunkOffset += uint32(4 + len(payload))
	r.frameCount++

	return nil
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.bin", chunkIdx))
	f, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0

	return nil
}

// Close stops accepting new records, drains the queue, and finalises the log
// by writing the header and index.
func (r *Recorder) Close() error {
	r.qmu.Lock()
	if r.accepting {
		r.accepting = false
		close(r.queue)
	}
	r.qmu.Unlock()

	// Wait for the writer to drain whatever was queued.
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return nil
	}
	r.finalized = true

	// Close current chunk
	if r.chunkFile != nil {
		r.chunkFile.Close()
	}

	// Write header
	r.header.TotalFrames = r.frameCount
	r.header.StartNs = r.startNs
	r.header.EndNs = r.endNs

	headerPath := filepath.Join(r.basePath, "header.json")
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write index
	indexPath := filepath.Join(r.basePath, "index.bin")
	indexFile, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()

	for _, entry := range r.index {
		if err := binary.Write(indexFile, binary.LittleEndian, entry.FrameID); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.TimestampNs); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.ChunkID); err != nil {
			return err
		}
		if err := binary.Write(indexFile, binary.LittleEndian, entry.Offset); err != nil {
			return err
		}
	}

	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// SessionID returns the session identifier written into the log header.
func (r *Recorder) SessionID() string {
	return r.header.SessionID
}

// FrameCount returns the number of frames recorded so far.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}
