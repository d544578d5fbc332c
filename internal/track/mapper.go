package track

import (
	"github.com/handcast-data/handcast/internal/leap"
	"github.com/handcast-data/handcast/internal/monitoring"
)

// Limits inherited from the device: at most two hands, five digits.
const (
	maxHands   = 2
	maxFingers = 5
)

// FromLeap flattens one native tracking event into a canonical frame.
// Optional structures the sensor did not resolve (forearm, individual
// bone slots) become zero values or are omitted; they never fail the
// frame. Malformed sub-entities are dropped with a diagnostic, and the
// returned count says how many were dropped.
//
// Numeric values are copied verbatim, including NaN and infinities.
func FromLeap(ev *leap.TrackingEvent) (*Frame, int) {
	if ev == nil {
		return nil, 0
	}
	f := &Frame{
		FrameID:   ev.FrameID,
		Timestamp: ev.Timestamp,
		Hands:     make([]Hand, 0, len(ev.Hands)),
	}
	skipped := 0
	for i := range ev.Hands {
		if len(f.Hands) >= maxHands {
			monitoring.Logf("track: frame %d: dropping surplus hand %d", ev.FrameID, ev.Hands[i].ID)
			skipped++
			continue
		}
		hand, n := mapHand(&ev.Hands[i], ev.FrameID)
		skipped += n
		f.Hands = append(f.Hands, hand)
	}
	return f, skipped
}

func mapHand(h *leap.Hand, frameID int64) (Hand, int) {
	out := Hand{
		ID:            h.ID,
		IsLeft:        h.IsLeft(),
		Confidence:    h.Confidence,
		GrabStrength:  h.GrabStrength,
		PinchStrength: h.PinchStrength,
		PinchDistance: h.PinchDistance,
		PalmPosition:  h.Palm.Position,
		PalmVelocity:  h.Palm.Velocity,
		PalmNormal:    h.Palm.Normal,
		Direction:     h.Palm.Direction,
		Fingers:       make([]Finger, 0, maxFingers),
	}
	// Without forearm tracking the wrist and elbow stay at the origin.
	if h.Arm != nil {
		out.WristPosition = h.Arm.NextJoint
		out.ElbowPosition = h.Arm.PrevJoint
	}
	skipped := 0
	for i := range h.Digits {
		d := &h.Digits[i]
		if d.FingerID < 0 || d.FingerID >= maxFingers {
			monitoring.Logf("track: frame %d hand %d: dropping digit with finger id %d",
				frameID, h.ID, d.FingerID)
			skipped++
			continue
		}
		if len(out.Fingers) >= maxFingers {
			monitoring.Logf("track: frame %d hand %d: dropping surplus digit %d",
				frameID, h.ID, d.FingerID)
			skipped++
			continue
		}
		out.Fingers = append(out.Fingers, mapFinger(d))
	}
	return out, skipped
}

func mapFinger(d *leap.Digit) Finger {
	f := Finger{
		ID:          d.FingerID,
		TipPosition: d.TipPosition,
		IsExtended:  d.IsExtended,
		Bones:       make([]Bone, 0, len(d.Bones)),
	}
	// Anatomical order is preserved; absent slots are skipped, not
	// zero filled, so consumers see only real segments.
	for _, b := range d.Bones {
		if b == nil {
			continue
		}
		f.Bones = append(f.Bones, Bone{
			Start:       b.PrevJoint,
			End:         b.NextJoint,
			Center:      b.Center,
			Orientation: b.Rotation,
			Length:      b.Length,
			Width:       b.Width,
		})
	}
	return f
}
