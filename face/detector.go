package face

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/speakwise/videosignal/ortenv"
)

// Box is a face bounding box in normalized frame coordinates.
type Box struct {
	X, Y, W, H float64
	Score      float64
}

// Detector finds the most confident face in a frame.
type Detector interface {
	DetectFace(img image.Image) (box Box, ok bool, err error)
}

// CroppedLandmarker runs the mesh model on a square crop around the detected
// face and returns landmarks in normalized frame coordinates, the space the
// face geometry features are defined in.
type CroppedLandmarker struct {
	det  Detector
	mesh Landmarker
	// Margin widens the box on each side, as a fraction of its longer edge.
	Margin float64
}

func NewCroppedLandmarker(det Detector, mesh Landmarker) *CroppedLandmarker {
	return &CroppedLandmarker{det: det, mesh: mesh, Margin: 0.25}
}

func (c *CroppedLandmarker) Detect(img image.Image) ([]Landmark, bool, error) {
	box, ok, err := c.det.DetectFace(img)
	if err != nil || !ok {
		return nil, false, err
	}
	fb := img.Bounds()
	crop := cropRect(box, fb, c.Margin)
	if crop.Empty() {
		return nil, false, nil
	}

	// parts of the crop outside the frame stay black
	sub := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(sub, sub.Bounds(), img, crop.Min, draw.Src)

	lm, ok, err := c.mesh.Detect(sub)
	if err != nil || !ok {
		return nil, false, err
	}
	toFrame(lm, crop, fb)
	return lm, true, nil
}

// cropRect returns the square pixel rectangle centred on box, grown by
// margin. It may extend past the frame bounds.
func cropRect(box Box, fb image.Rectangle, margin float64) image.Rectangle {
	fw, fh := float64(fb.Dx()), float64(fb.Dy())
	cx := float64(fb.Min.X) + (box.X+box.W/2)*fw
	cy := float64(fb.Min.Y) + (box.Y+box.H/2)*fh
	side := math.Max(box.W*fw, box.H*fh) * (1 + 2*margin)
	x0 := int(math.Round(cx - side/2))
	y0 := int(math.Round(cy - side/2))
	n := int(math.Round(side))
	return image.Rect(x0, y0, x0+n, y0+n)
}

// toFrame maps crop-normalized landmarks to frame-normalized ones in place.
// Depth is scaled with x.
func toFrame(lm []Landmark, crop, fb image.Rectangle) {
	fw, fh := float64(fb.Dx()), float64(fb.Dy())
	cw, ch := float64(crop.Dx()), float64(crop.Dy())
	ox := float64(crop.Min.X - fb.Min.X)
	oy := float64(crop.Min.Y - fb.Min.Y)
	for i := range lm {
		lm[i].X = (ox + lm[i].X*cw) / fw
		lm[i].Y = (oy + lm[i].Y*ch) / fh
		lm[i].Z = lm[i].Z * cw / fw
	}
}

// DetectorConfig configures the short-range BlazeFace detector.
type DetectorConfig struct {
	ModelPath  string
	InputSize  int
	Threshold  float64
	NumThreads int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{InputSize: 128, Threshold: 0.5, NumThreads: 1}
}

const (
	numAnchors = 896
	boxValues  = 16
	scoreClip  = 100.0
)

// ONNXDetector runs BlazeFace short-range (NHWC input in [-1,1], 896 SSD
// anchors, 16 regressors and one score logit per anchor) and keeps the best
// scoring box.
type ONNXDetector struct {
	cfg     DetectorConfig
	session *ort.DynamicAdvancedSession
	anchors []anchor
	outputs int
}

func NewONNXDetector(cfg DetectorConfig) (*ONNXDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detector model: %w", err)
	}
	def := DefaultDetectorConfig()
	if cfg.InputSize <= 0 {
		cfg.InputSize = def.InputSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if err := ortenv.Init(""); err != nil {
		return nil, err
	}

	inputs, outputs, err := ortenv.IONames(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) < 2 {
		return nil, fmt.Errorf("detector model: unexpected signature in=%v out=%v", inputs, outputs)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("session options: %w", err)
		}
	}

	s, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("detector session: %w", err)
	}
	return &ONNXDetector{cfg: cfg, session: s, anchors: anchors(), outputs: len(outputs)}, nil
}

func (d *ONNXDetector) DetectFace(img image.Image) (Box, bool, error) {
	size := d.cfg.InputSize
	lb := newLetterbox(img.Bounds(), size)

	in, err := ort.NewTensor(ort.NewShape(1, int64(size), int64(size), 3), lb.tensorData(img))
	if err != nil {
		return Box{}, false, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	outs := make([]ort.Value, d.outputs)
	if err := d.session.Run([]ort.Value{in}, outs); err != nil {
		return Box{}, false, fmt.Errorf("detector inference: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	var reg, scores []float32
	for _, o := range outs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			continue
		}
		switch data := t.GetData(); len(data) {
		case numAnchors * boxValues:
			reg = data
		case numAnchors:
			scores = data
		}
	}
	if reg == nil || scores == nil {
		return Box{}, false, errors.New("detector model returned unexpected outputs")
	}

	box, ok := decodeBest(reg, scores, d.anchors, float64(size))
	if !ok || box.Score < d.cfg.Threshold {
		return Box{}, false, nil
	}
	return lb.toFrame(box), true, nil
}

func (d *ONNXDetector) Close() {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
}

type anchor struct{ X, Y float64 }

// anchors generates the short-range SSD anchor centres: a 16x16 grid with two
// anchors per cell at stride 8, then an 8x8 grid with six per cell at stride
// 16. Anchor sizes are fixed at 1.
func anchors() []anchor {
	out := make([]anchor, 0, numAnchors)
	for _, l := range []struct{ grid, perCell int }{{16, 2}, {8, 6}} {
		for y := 0; y < l.grid; y++ {
			for x := 0; x < l.grid; x++ {
				a := anchor{
					X: (float64(x) + 0.5) / float64(l.grid),
					Y: (float64(y) + 0.5) / float64(l.grid),
				}
				for range l.perCell {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

// decodeBest decodes the highest scoring anchor into a box in normalized
// model input coordinates.
func decodeBest(reg, scores []float32, anc []anchor, size float64) (Box, bool) {
	best, bestLogit := -1, math.Inf(-1)
	for i := range anc {
		if i >= len(scores) || (i+1)*boxValues > len(reg) {
			break
		}
		if l := float64(scores[i]); l > bestLogit {
			best, bestLogit = i, l
		}
	}
	if best < 0 {
		return Box{}, false
	}
	r := reg[best*boxValues:]
	a := anc[best]
	cx := float64(r[0])/size + a.X
	cy := float64(r[1])/size + a.Y
	w := float64(r[2]) / size
	h := float64(r[3]) / size
	logit := math.Max(-scoreClip, math.Min(scoreClip, bestLogit))
	return Box{X: cx - w/2, Y: cy - h/2, W: w, H: h, Score: sigmoid(logit)}, true
}

// letterbox places a frame in the square model input keeping its aspect
// ratio. Offsets and content sizes are in input pixels.
type letterbox struct {
	src            image.Rectangle
	size           int
	ox, oy, cw, ch float64
}

func newLetterbox(src image.Rectangle, size int) letterbox {
	fw, fh := float64(src.Dx()), float64(src.Dy())
	s := math.Min(float64(size)/fw, float64(size)/fh)
	cw, ch := fw*s, fh*s
	return letterbox{
		src:  src,
		size: size,
		ox:   (float64(size) - cw) / 2,
		oy:   (float64(size) - ch) / 2,
		cw:   cw,
		ch:   ch,
	}
}

func (l letterbox) toFrame(b Box) Box {
	n := float64(l.size)
	return Box{
		X:     (b.X*n - l.ox) / l.cw,
		Y:     (b.Y*n - l.oy) / l.ch,
		W:     b.W * n / l.cw,
		H:     b.H * n / l.ch,
		Score: b.Score,
	}
}

// tensorData packs the letterboxed frame as NHWC floats in [-1,1].
func (l letterbox) tensorData(img image.Image) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, l.size, l.size))
	x0, y0 := int(math.Round(l.ox)), int(math.Round(l.oy))
	content := image.Rect(x0, y0, x0+int(math.Round(l.cw)), y0+int(math.Round(l.ch)))
	draw.BiLinear.Scale(dst, content, img, l.src, draw.Src, nil)

	out := make([]float32, l.size*l.size*3)
	for i, j := 0, 0; i < len(dst.Pix); i += 4 {
		out[j] = float32(dst.Pix[i])/127.5 - 1
		out[j+1] = float32(dst.Pix[i+1])/127.5 - 1
		out[j+2] = float32(dst.Pix[i+2])/127.5 - 1
		j += 3
	}
	return out
}
