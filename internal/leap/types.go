// Package leap models the boundary to the hand-tracking service: the
// native frame structures the sensor feed delivers, the Listener
// callback contract, and the event sources that drive it (live
// WebSocket feed, synthetic generator, scripted playback).
//
// Native structures mirror what the service reports. Optional parts of
// the skeleton (the forearm, individual bones of a digit) are pointers
// and are nil when the service did not resolve them. All positions are
// millimetres in the device coordinate frame; timestamps are the device
// clock in microseconds.
package leap

import (
	"github.com/handcast-data/handcast/internal/geom"
)

// HandType identifies hand laterality as reported by the service.
type HandType string

const (
	HandLeft  HandType = "left"
	HandRight HandType = "right"
)

// Bone slot indices within Digit.Bones, ordered from the palm outward.
const (
	BoneMetacarpal = iota
	BoneProximal
	BoneIntermediate
	BoneDistal
)

// DeviceInfo describes a tracking device attached to the service.
type DeviceInfo struct {
	Serial string `json:"serial"`
	Model  string `json:"model,omitempty"`
}

// Bone is a single segment of the hand skeleton. PrevJoint is the end
// closer to the wrist, NextJoint the end closer to the fingertip.
type Bone struct {
	PrevJoint geom.Vector3    `json:"prev_joint"`
	NextJoint geom.Vector3    `json:"next_joint"`
	Center    geom.Vector3    `json:"center"`
	Rotation  geom.Quaternion `json:"rotation"`
	Length    float64         `json:"length"`
	Width     float64         `json:"width"`
}

// Palm carries the palm kinematics for one hand. Velocity is mm/s.
type Palm struct {
	Position  geom.Vector3 `json:"position"`
	Velocity  geom.Vector3 `json:"velocity"`
	Normal    geom.Vector3 `json:"normal"`
	Direction geom.Vector3 `json:"direction"`
	Width     float64      `json:"width"`
}

// Digit is one finger or thumb with up to four bones. Bone slots the
// service did not resolve are nil; the thumb reports no metacarpal.
// FingerID runs 0 (thumb) through 4 (pinky).
type Digit struct {
	FingerID    int32        `json:"finger_id"`
	TipPosition geom.Vector3 `json:"tip_position"`
	IsExtended  bool         `json:"is_extended"`
	Bones       [4]*Bone     `json:"bones"`
}

// Distal returns the outermost bone of the digit, or nil.
func (d *Digit) Distal() *Bone { return d.Bones[BoneDistal] }

// Hand is one tracked hand. Arm is nil when forearm tracking is
// unavailable; when present, Arm.PrevJoint is the elbow and
// Arm.NextJoint the wrist.
type Hand struct {
	ID            int32    `json:"id"`
	Type          HandType `json:"type"`
	Confidence    float64  `json:"confidence"`
	GrabStrength  float64  `json:"grab_strength"`
	PinchStrength float64  `json:"pinch_strength"`
	PinchDistance float64  `json:"pinch_distance"`
	Palm          Palm     `json:"palm"`
	Arm           *Bone    `json:"arm,omitempty"`
	Digits        []Digit  `json:"digits"`
}

// IsLeft reports whether the service tagged this as a left hand.
func (h *Hand) IsLeft() bool { return h.Type == HandLeft }

// TrackingEvent is one native frame from the service.
type TrackingEvent struct {
	FrameID   int64  `json:"frame_id"`
	Timestamp int64  `json:"timestamp"`
	Hands     []Hand `json:"hands"`
}
