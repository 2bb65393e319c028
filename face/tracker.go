package face

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Tracker is the motion state of one tracking session. It keeps the previous
// detected frame and rolling velocity histories. A Tracker belongs to exactly
// one processing run and must not be shared between videos.
type Tracker struct {
	fps  float64
	prev *Features

	headYaw     []float64
	headPitch   []float64
	headRoll    []float64
	gazeShifts  []float64
	mouthMotion []float64
}

func NewTracker(fps float64) *Tracker {
	return &Tracker{fps: fps}
}

// Reset drops the previous frame and every history. A frames session calls
// it before its first frame.
func (t *Tracker) Reset() {
	t.prev = nil
	t.headYaw = t.headYaw[:0]
	t.headPitch = t.headPitch[:0]
	t.headRoll = t.headRoll[:0]
	t.gazeShifts = t.gazeShifts[:0]
	t.mouthMotion = t.mouthMotion[:0]
}

// Samples reports how many velocity samples have been recorded.
func (t *Tracker) Samples() int { return len(t.headYaw) }

// Update records f as the current frame and fills in its motion metrics from
// the velocity window. The first frame of a session has no predecessor, so
// its motion metrics stay at zero.
func (t *Tracker) Update(f *Features) {
	cur := *f
	if t.prev == nil {
		t.prev = &cur
		return
	}
	p := t.prev

	yawVel := math.Abs(f.Head.Rotation.Yaw-p.Head.Rotation.Yaw) * t.fps
	pitchVel := math.Abs(f.Head.Rotation.Pitch-p.Head.Rotation.Pitch) * t.fps
	rollVel := math.Abs(f.Head.Rotation.Roll-p.Head.Rotation.Roll) * t.fps

	gazeVel := (math.Abs(f.Eyes.Left.Gaze.Yaw-p.Eyes.Left.Gaze.Yaw) +
		math.Abs(f.Eyes.Right.Gaze.Yaw-p.Eyes.Right.Gaze.Yaw) +
		math.Abs(f.Eyes.Left.Gaze.Pitch-p.Eyes.Left.Gaze.Pitch) +
		math.Abs(f.Eyes.Right.Gaze.Pitch-p.Eyes.Right.Gaze.Pitch)) / 2 * t.fps
	mouthVel := math.Abs(f.Mouth.MAR-p.Mouth.MAR) * t.fps

	t.headYaw = append(t.headYaw, yawVel)
	t.headPitch = append(t.headPitch, pitchVel)
	t.headRoll = append(t.headRoll, rollVel)
	t.gazeShifts = append(t.gazeShifts, gazeVel)
	t.mouthMotion = append(t.mouthMotion, mouthVel)

	// roughly the last second of samples
	window := int(math.Min(t.fps, float64(len(t.headYaw))))
	if window < 1 {
		window = 1
	}

	yaw := tail(t.headYaw, window)
	pitch := tail(t.headPitch, window)
	roll := tail(t.headRoll, window)

	m := &f.Head.Motion
	m.YawRate = mean(yaw)
	m.PitchRate = mean(pitch)
	m.RollRate = mean(roll)
	m.ShakeRate = m.YawRate
	m.NodRate = m.PitchRate

	var sq float64
	for i := range yaw {
		sq += yaw[i]*yaw[i] + pitch[i]*pitch[i] + roll[i]*roll[i]
	}
	m.StabilityRMS = math.Sqrt(sq / float64(3*len(yaw)))

	f.Eyes.SaccadeRate = mean(tail(t.gazeShifts, window))
	f.Mouth.MotionEnergy = mean(tail(t.mouthMotion, window))

	cur = *f
	t.prev = &cur
}

func tail(s []float64, n int) []float64 {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return stat.Mean(s, nil)
}
