// Package wire encodes canonical tracking frames for the UDP transport
// and decodes them on the consumer side.
//
// The on-wire shape is a two-element MessagePack array: a label string
// for consumer-side routing followed by the frame encoded as a map
// keyed by the canonical field names. Integers and floats are written
// full width (int64 and float64 markers) so identical frames always
// encode to identical bytes.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/handcast-data/handcast/internal/track"
)

// DefaultLabel routes tracking frames on the consumer side.
const DefaultLabel = "/tracking/event"

// MaxDatagramSize is the largest payload handed to the dispatcher: the
// IPv4 maximum of 65535 minus the IP and UDP headers.
const MaxDatagramSize = 65507

// ErrOversized reports an encoded frame too large for one datagram.
var ErrOversized = errors.New("encoded frame exceeds datagram size")

// Encoder turns frames into wire payloads. The internal buffer is
// reused across calls, so the returned slice is only valid until the
// next Encode; hand it straight to the dispatcher or copy it.
//
// Not safe for concurrent use.
type Encoder struct {
	buf   bytes.Buffer
	enc   *msgpack.Encoder
	limit int
}

// NewEncoder returns an encoder enforcing the given payload limit in
// bytes. Limits of zero or less select MaxDatagramSize.
func NewEncoder(limit int) *Encoder {
	if limit <= 0 {
		limit = MaxDatagramSize
	}
	e := &Encoder{limit: limit}
	e.enc = msgpack.NewEncoder(&e.buf)
	e.enc.UseCompactInts(false)
	e.enc.UseCompactFloats(false)
	return e
}

// Limit returns the payload cap this encoder enforces.
func (e *Encoder) Limit() int { return e.limit }

// Encode renders one frame under the given label.
func (e *Encoder) Encode(label string, f *track.Frame) ([]byte, error) {
	if f == nil {
		return nil, errors.New("encode nil frame")
	}
	e.buf.Reset()
	if err := e.enc.EncodeArrayLen(2); err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	if err := e.enc.EncodeString(label); err != nil {
		return nil, fmt.Errorf("encode label: %w", err)
	}
	if err := e.enc.Encode(f); err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.FrameID, err)
	}
	if e.buf.Len() > e.limit {
		return nil, fmt.Errorf("frame %d is %d bytes: %w", f.FrameID, e.buf.Len(), ErrOversized)
	}
	return e.buf.Bytes(), nil
}

// Decode parses a payload produced by Encode, returning the label and
// the frame.
func Decode(p []byte) (string, *track.Frame, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(p))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	if n != 2 {
		return "", nil, fmt.Errorf("decode envelope: %d elements, want 2", n)
	}
	label, err := dec.DecodeString()
	if err != nil {
		return "", nil, fmt.Errorf("decode label: %w", err)
	}
	var f track.Frame
	if err := dec.Decode(&f); err != nil {
		return label, nil, fmt.Errorf("decode frame: %w", err)
	}
	return label, &f, nil
}
