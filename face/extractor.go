package face

import (
	"image"
	"math"

	log "github.com/sirupsen/logrus"
)

// Landmarker runs a single-face landmark model on one RGB frame. A frame
// without a face returns ok=false and no error.
type Landmarker interface {
	Detect(img image.Image) (lm []Landmark, ok bool, err error)
}

// Extractor turns landmark model output into Features.
type Extractor struct {
	model Landmarker
}

func NewExtractor(model Landmarker) *Extractor {
	return &Extractor{model: model}
}

// Extract computes the feature record for one frame. tracker may be nil, in
// which case motion metrics are not computed. Model failures are logged and
// reported as a frame without a face.
func (e *Extractor) Extract(img image.Image, tracker *Tracker) Features {
	var f Features

	lm, ok, err := e.model.Detect(img)
	if err != nil {
		log.WithError(err).Warn("landmark model failed on frame")
		return f
	}
	if !ok || len(lm) < RefinedPoints {
		return f
	}

	FromLandmarks(lm, &f)
	if tracker != nil {
		tracker.Update(&f)
	}
	return f
}

// FromLandmarks fills f from a 478-point mesh. Head rotation is a 2D proxy
// derived from cheek and nose geometry, not a calibrated 3-DoF pose solve:
// yaw is the cheek depth difference, pitch the nose tip to bridge vertical
// distance, and roll the cheek line angle in degrees.
func FromLandmarks(lm []Landmark, f *Features) {
	f.FaceDetected = true

	f.Eyes.Left = eyeFeatures(lm, leftEye)
	f.Eyes.Right = eyeFeatures(lm, rightEye)

	furrow := math.Abs(lm[leftBrow.Inner].X - lm[rightBrow.Inner].X)
	f.Eyebrows.Left = Eyebrow{
		Raise:  math.Abs(lm[leftBrow.Top].Y - lm[leftEye.Top].Y),
		Furrow: furrow,
	}
	f.Eyebrows.Right = Eyebrow{
		Raise:  math.Abs(lm[rightBrow.Top].Y - lm[rightEye.Top].Y),
		Furrow: furrow,
	}
	f.Eyebrows.Asymmetry = math.Abs(f.Eyebrows.Left.Raise - f.Eyebrows.Right.Raise)

	top, bottom := lm[mouthTop], lm[mouthBottom]
	left, right := lm[mouthLeftCorner], lm[mouthRightCorner]
	mouthW := math.Abs(left.X - right.X)
	mouthH := math.Abs(top.Y - bottom.Y)
	mar := MouthAspectRatio(top, bottom, left, right)
	f.Mouth = Mouth{
		MAR:              mar,
		WidthHeightRatio: ratio(mouthW, mouthH),
		Asymmetry:        math.Abs(left.Y - right.Y),
		SmileIntensity:   mouthW * 2,
		LipPress:         1 - mar,
	}

	lc, rc := lm[faceLeftCheek], lm[faceRightCheek]
	f.Head.Rotation = Rotation{
		Yaw:   math.Abs(lc.Z - rc.Z),
		Pitch: math.Abs(lm[noseTip].Y - lm[noseBridge].Y),
		Roll:  degrees(math.Atan2(rc.Y-lc.Y, rc.X-lc.X)),
	}

	faceW := math.Abs(lc.X - rc.X)
	faceH := math.Abs(lm[faceForehead].Y - lm[faceChin].Y)
	cx := (lc.X + rc.X) / 2
	cy := (lm[faceForehead].Y + lm[faceChin].Y) / 2
	f.Face = Geometry{
		WidthHeightRatio: ratio(faceW, faceH),
		Symmetry:         Symmetry(lm),
		Scale:            faceW * faceH * 100,
		CenterOffset:     Point{X: (cx - 0.5) * 2, Y: (cy - 0.5) * 2},
	}
}

func eyeFeatures(lm []Landmark, idx eyeIndices) Eye {
	w := math.Abs(lm[idx.Outer].X - lm[idx.Inner].X)
	h := math.Abs(lm[idx.Top].Y - lm[idx.Bottom].Y)

	ex, ey := centroid(lm, idx.Center[:]...)
	ix, iy := centroid(lm, idx.Iris[:]...)
	dx, dy := ix-ex, iy-ey
	yaw, pitch := GazeAngles(dx, dy)

	return Eye{
		WidthHeightRatio: ratio(w, h),
		IrisPosition:     Point{X: dx, Y: dy},
		Gaze:             Gaze{Yaw: yaw, Pitch: pitch},
	}
}

// GazeAngles converts an iris offset from the eye centre into yaw and pitch
// in degrees.
func GazeAngles(dx, dy float64) (yaw, pitch float64) {
	return degrees(math.Atan2(dx, 1)), degrees(math.Atan2(dy, 1))
}

// MouthAspectRatio is |top-bottom| / |left-right|, zero when the mouth has no width.
func MouthAspectRatio(top, bottom, left, right Landmark) float64 {
	return ratio(math.Abs(top.Y-bottom.Y), math.Abs(left.X-right.X))
}

// Symmetry is the mean distance between the first half of the mesh and the
// horizontally mirrored second half.
func Symmetry(lm []Landmark) float64 {
	half := MeshPoints / 2
	var sum float64
	for i := 0; i < half; i++ {
		l := lm[i]
		r := lm[half+i]
		sum += math.Hypot(l.X-(1-r.X), l.Y-r.Y)
	}
	return sum / float64(half)
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
