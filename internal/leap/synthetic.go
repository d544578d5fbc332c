package leap

import (
	"context"
	"math"
	"time"

	"github.com/handcast-data/handcast/internal/geom"
	"github.com/handcast-data/handcast/internal/monitoring"
	"github.com/handcast-data/handcast/internal/timeutil"
)

// Synthetic hand proportions in millimetres. Rows are thumb through
// pinky, columns metacarpal through distal. The thumb has no
// metacarpal, matching the device.
var fingerLengths = [5][4]float64{
	{0, 46, 32, 22},
	{68, 40, 23, 16},
	{65, 45, 26, 17},
	{58, 41, 25, 17},
	{54, 31, 19, 15},
}

// Knuckle spread across the palm, millimetres from the palm centreline,
// thumb through pinky.
var knuckleOffsets = [5]float64{-34, -18, 0, 16, 32}

const (
	syntheticSerial      = "SYN4482691"
	defaultSyntheticRate = 90.0 // frames/sec, typical device rate

	palmRestHeight = 220.0 // mm above the device
	palmRestSide   = 120.0 // mm from the device centreline
	palmSwingX     = 90.0
	palmSwingY     = 40.0
	palmSwingZ     = 55.0
	waveSeconds    = 4.0 // one full palm orbit
	curlSeconds    = 2.5 // one open-close cycle
	curlStep       = 0.5 // radians of flex per joint at full curl
	boneWidth      = 16.0
	armLength      = 250.0
)

// SyntheticSource fabricates articulated tracking frames without any
// hardware: one or two hands orbit the interaction volume while the
// fingers open and close. Frames are a pure function of the frame
// counter, so tests can assert exact geometry.
type SyntheticSource struct {
	Rate  float64        // frames per second; <= 0 selects the device-typical default
	Hands int            // 1 or 2
	Clock timeutil.Clock // nil selects the real clock

	frame int64
}

// NewSyntheticSource returns a generator emitting the given number of
// hands at the given frame rate.
func NewSyntheticSource(rate float64, hands int) *SyntheticSource {
	return &SyntheticSource{Rate: rate, Hands: hands}
}

// Run announces a synthetic device and then emits frames at the
// configured rate until ctx ends.
func (s *SyntheticSource) Run(ctx context.Context, l Listener) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rate := s.Rate
	if rate <= 0 {
		rate = defaultSyntheticRate
	}
	l.OnConnected()
	l.OnDeviceFound(DeviceInfo{Serial: syntheticSerial, Model: "synthetic"})
	monitoring.Verbosef("leap: synthetic source running at %.1f fps", rate)

	ticker := clock.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			l.OnTrackingFrame(s.NextFrame())
		}
	}
}

// NextFrame fabricates the next tracking frame and advances the
// animation. Not safe for concurrent use; Run owns the counter.
func (s *SyntheticSource) NextFrame() *TrackingEvent {
	rate := s.Rate
	if rate <= 0 {
		rate = defaultSyntheticRate
	}
	n := s.frame
	s.frame++

	t := float64(n) / rate // seconds into the animation
	ev := &TrackingEvent{
		FrameID:   n,
		Timestamp: int64(math.Round(t * 1e6)),
	}

	hands := s.Hands
	if hands < 1 {
		hands = 1
	}
	if hands > 2 {
		hands = 2
	}
	ev.Hands = append(ev.Hands, synthesizeHand(HandRight, 101, t))
	if hands == 2 {
		ev.Hands = append(ev.Hands, synthesizeHand(HandLeft, 102, t))
	}
	return ev
}

// synthesizeHand builds one hand at animation time t. The left hand is
// the right hand mirrored in X.
func synthesizeHand(ht HandType, id int32, t float64) Hand {
	mirror := 1.0
	if ht == HandLeft {
		mirror = -1.0
	}
	wave := 2 * math.Pi * t / waveSeconds
	curl := 0.5 - 0.5*math.Cos(2*math.Pi*t/curlSeconds) // 0 open .. 1 fist

	palmPos := geom.Vector3{
		X: mirror * (palmRestSide + palmSwingX*math.Sin(wave)),
		Y: palmRestHeight + palmSwingY*math.Sin(2*wave),
		Z: palmSwingZ * math.Cos(wave),
	}
	// Velocity is the orbit differentiated analytically.
	w := 2 * math.Pi / waveSeconds
	palmVel := geom.Vector3{
		X: mirror * palmSwingX * w * math.Cos(wave),
		Y: 2 * palmSwingY * w * math.Cos(2*wave),
		Z: -palmSwingZ * w * math.Sin(wave),
	}

	hand := Hand{
		ID:           id,
		Type:         ht,
		Confidence:   0.85 + 0.15*math.Abs(math.Sin(wave)),
		GrabStrength: curl,
		Palm: Palm{
			Position:  palmPos,
			Velocity:  palmVel,
			Normal:    geom.Vector3{Y: -1}, // palm faces the device
			Direction: geom.Vector3{Z: -1}, // fingers point away from the user
			Width:     85,
		},
	}

	for f := 0; f < 5; f++ {
		hand.Digits = append(hand.Digits, synthesizeDigit(int32(f), palmPos, mirror, curl))
	}

	// Pinch metrics follow the thumb-index tip gap.
	gap := hand.Digits[1].TipPosition.Sub(hand.Digits[0].TipPosition).Norm()
	hand.PinchDistance = gap
	hand.PinchStrength = clamp(1-gap/120, 0, 1)

	wrist := palmPos.Add(geom.Vector3{Z: 55})
	elbow := wrist.Add(geom.Vector3{Y: -0.35, Z: 1}.Normalized().Scale(armLength))
	hand.Arm = &Bone{
		PrevJoint: elbow,
		NextJoint: wrist,
		Center:    midpoint(elbow, wrist),
		Rotation:  geom.Identity(),
		Length:    armLength,
		Width:     41,
	}
	return hand
}

// synthesizeDigit chains up to four bones out from the knuckle, flexing
// each joint toward the palm normal as curl rises.
func synthesizeDigit(finger int32, palm geom.Vector3, mirror, curl float64) Digit {
	d := Digit{FingerID: finger}

	// Flex is about the lateral axis, negative so the chain curls
	// toward the device rather than the back of the hand.
	bend := geom.FromAxisAngle(geom.Vector3{X: 1}, -curl*curlStep)
	base := palm.Add(geom.Vector3{X: mirror * knuckleOffsets[finger], Z: -20})

	q := geom.Identity()
	joint := base
	for b := 0; b < 4; b++ {
		length := fingerLengths[finger][b]
		if length == 0 {
			continue // absent bone slot stays nil
		}
		if b > BoneMetacarpal {
			q = q.Mul(bend)
		}
		dir := q.Rotate(geom.Vector3{Z: -1})
		next := joint.Add(dir.Scale(length))
		d.Bones[b] = &Bone{
			PrevJoint: joint,
			NextJoint: next,
			Center:    midpoint(joint, next),
			Rotation:  q,
			Length:    length,
			Width:     boneWidth - 2*float64(b),
		}
		joint = next
	}
	if distal := d.Distal(); distal != nil {
		d.TipPosition = distal.NextJoint
	}
	d.IsExtended = curl < 0.35
	return d
}

func midpoint(a, b geom.Vector3) geom.Vector3 {
	return a.Add(b).Scale(0.5)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
