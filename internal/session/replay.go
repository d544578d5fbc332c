package session

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Record is one frame read back from a session log.
type Record struct {
	FrameID     uint64
	TimestampNs int64
	Payload     []byte
}

// Replayer reads records from a session log.
type Replayer struct {
	basePath string
	header   LogHeader
	index    []IndexEntry

	currentRecord uint64

	// Chunk cache
	currentChunk int
	chunkData    []byte

	mu sync.Mutex
}

// NewReplayer opens a session log for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
	}

	// Read header
	headerPath := filepath.Join(basePath, "header.json")
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	// Read index
	indexPath := filepath.Join(basePath, "index.bin")
	indexFile, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	r.index = make([]IndexEntry, 0, r.header.TotalFrames)
	for {
		var entry IndexEntry
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.FrameID); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.TimestampNs); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.ChunkID); err != nil {
			return nil, err
		}
		if err := binary.Read(indexFile, binary.LittleEndian, &entry.Offset); err != nil {
			return nil, err
		}
		r.index = append(r.index, entry)
	}

	return r, nil
}

// Header returns the log header.
func (r *Replayer) Header() LogHeader {
	return r.header
}

// TotalRecords returns the total number of records in the log.
func (r *Replayer) TotalRecords() uint64 {
	return uint64(len(r.index))
}

// CurrentRecord returns the current record index.
func (r *Replayer) CurrentRecord() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRecord
}

// Seek seeks to a specific record by index.
func (r *Replayer) Seek(recordIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if recordIdx >= uint64(len(r.index)) {
		return fmt.Errorf("record index out of range: %d >= %d", recordIdx, len(r.index))
	}

	r.currentRecord = recordIdx
	return nil
}

// SeekToTimestamp seeks to the first record at or after the given timestamp.
// A timestamp beyond the end of the log seeks to the final record.
func (r *Replayer) SeekToTimestamp(timestampNs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("log is empty")
	}

	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampNs >= timestampNs
	})
	if i == len(r.index) {
		i = len(r.index) - 1
	}

	r.currentRecord = uint64(i)
	return nil
}

// ReadRecord reads the current record and advances. Returns io.EOF when the
// log is exhausted.
func (r *Replayer) ReadRecord() (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentRecord >= uint64(len(r.index)) {
		return nil, io.EOF
	}

	entry := r.index[r.currentRecord]

	// Load chunk if needed
	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, err
		}
	}

	// Read frame from chunk
	offset := entry.Offset
	if offset+4 > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid record offset")
	}

	payloadLen := binary.LittleEndian.Uint32(r.chunkData[offset:])
	offset += 4

	if offset+payloadLen > uint32(len(r.chunkData)) {
		return nil, fmt.Errorf("invalid record length")
	}

	payload := make([]byte, payloadLen)
	copy(payload, r.chunkData[offset:offset+payloadLen])

	r.currentRecord++
	return &Record{
		FrameID:     entry.FrameID,
		TimestampNs: entry.TimestampNs,
		Payload:     payload,
	}, nil
}

// loadChunk loads a chunk file into memory.
func (r *Replayer) loadChunk(chunkIdx int) error {
	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.bin", chunkIdx))
	data, err := os.ReadFile(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}

	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}
