// Package track defines the canonical flat tracking model and the
// mapper that flattens native sensor frames into it. The canonical
// shapes are the consumer-facing contract: field names and the
// anatomical ordering of fingers and bones are relied on positionally
// by downstream decoders and must not change between mapping and
// encoding.
package track

import "github.com/handcast-data/handcast/internal/geom"

// Bone is one phalange segment. Start is the joint closer to the
// wrist, End the joint closer to the fingertip.
type Bone struct {
	Start       geom.Vector3    `msgpack:"start_position" json:"start_position"`
	End         geom.Vector3    `msgpack:"end_position" json:"end_position"`
	Center      geom.Vector3    `msgpack:"center" json:"center"`
	Orientation geom.Quaternion `msgpack:"orientation" json:"orientation"`
	Length      float64         `msgpack:"length" json:"length"`
	Width       float64         `msgpack:"width" json:"width"`
}

// Finger is one digit in thumb→pinky order. Bones holds the segments
// the sensor resolved, metacarpal→distal; absent segments are omitted
// rather than zero-filled, so the sequence may be shorter than four.
type Finger struct {
	ID          int32        `msgpack:"id" json:"id"`
	TipPosition geom.Vector3 `msgpack:"tip_position" json:"tip_position"`
	IsExtended  bool         `msgpack:"is_extended" json:"is_extended"`
	Bones       []Bone       `msgpack:"bones" json:"bones"`
}

// Hand is one tracked hand with its palm kinematics and grip metrics.
// WristPosition and ElbowPosition are zero when the sensor supplied no
// forearm geometry.
type Hand struct {
	ID            int32        `msgpack:"id" json:"id"`
	IsLeft        bool         `msgpack:"is_left" json:"is_left"`
	Confidence    float64      `msgpack:"confidence" json:"confidence"`
	GrabStrength  float64      `msgpack:"grab_strength" json:"grab_strength"`
	PinchStrength float64      `msgpack:"pinch_strength" json:"pinch_strength"`
	PinchDistance float64      `msgpack:"pinch_distance" json:"pinch_distance"`
	PalmPosition  geom.Vector3 `msgpack:"palm_position" json:"palm_position"`
	PalmVelocity  geom.Vector3 `msgpack:"palm_velocity" json:"palm_velocity"`
	PalmNormal    geom.Vector3 `msgpack:"palm_normal" json:"palm_normal"`
	Direction     geom.Vector3 `msgpack:"direction" json:"direction"`
	WristPosition geom.Vector3 `msgpack:"wrist_position" json:"wrist_position"`
	ElbowPosition geom.Vector3 `msgpack:"elbow_position" json:"elbow_position"`
	Fingers       []Finger     `msgpack:"fingers" json:"fingers"`
}

// Frame is one canonical tracking frame. FrameID and Timestamp come
// from the sensor service unchanged; Timestamp is microseconds in the
// sensor clock domain, not wall time.
type Frame struct {
	FrameID   int64  `msgpack:"frame_id" json:"frame_id"`
	Timestamp int64  `msgpack:"timestamp" json:"timestamp"`
	Hands     []Hand `msgpack:"hands" json:"hands"`
}
