package face

import (
	"fmt"
	"image"
	"math"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/speakwise/videosignal/ortenv"
)

// ONNXConfig configures the face-mesh landmark model.
type ONNXConfig struct {
	ModelPath string
	// InputSize is the square model input edge in pixels.
	InputSize int
	// PresenceThreshold is the minimum face presence probability.
	PresenceThreshold float64
	NumThreads        int
}

func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		InputSize:         256,
		PresenceThreshold: 0.5,
		NumThreads:        2,
	}
}

// ONNXLandmarker runs a 478-point face-mesh model (NHWC float input in
// [0,1], landmarks in input pixel units plus a presence logit) through
// onnxruntime. It expects a face crop and returns crop-normalized landmarks;
// CroppedLandmarker supplies the crop.
type ONNXLandmarker struct {
	cfg     ONNXConfig
	session *ort.DynamicAdvancedSession
	outputs int
}

func NewONNXLandmarker(cfg ONNXConfig) (*ONNXLandmarker, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("landmark model: %w", err)
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultONNXConfig().InputSize
	}
	if err := ortenv.Init(""); err != nil {
		return nil, err
	}

	inputs, outputs, err := ortenv.IONames(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) != 1 || len(outputs) < 2 {
		return nil, fmt.Errorf("landmark model: unexpected signature in=%v out=%v", inputs, outputs)
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
		return nil, fmt.Errorf("landmark session: %w", err)
	}
	return &ONNXLandmarker{cfg: cfg, session: s, outputs: len(outputs)}, nil
}

func (m *ONNXLandmarker) Detect(img image.Image) ([]Landmark, bool, error) {
	size := m.cfg.InputSize
	input := m.tensorData(img)

	in, err := ort.NewTensor(ort.NewShape(1, int64(size), int64(size), 3), input)
	if err != nil {
		return nil, false, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	outs := make([]ort.Value, m.outputs)
	if err := m.session.Run([]ort.Value{in}, outs); err != nil {
		return nil, false, fmt.Errorf("landmark inference: %w", err)
	}
	defer func() {
		for _, o := range outs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	var coords []float32
	presence := float32(math.NaN())
	for _, o := range outs {
		t, ok := o.(*ort.Tensor[float32])
		if !ok {
			continue
		}
		data := t.GetData()
		switch {
		case len(data) >= RefinedPoints*3 && coords == nil:
			coords = data
		case len(data) == 1:
			presence = data[0]
		}
	}
	if coords == nil {
		return nil, false, fmt.Errorf("landmark model returned no mesh output")
	}
	if !math.IsNaN(float64(presence)) && sigmoid(float64(presence)) < m.cfg.PresenceThreshold {
		return nil, false, nil
	}

	lm := make([]Landmark, RefinedPoints)
	s := float64(size)
	for i := range lm {
		lm[i] = Landmark{
			X: float64(coords[i*3]) / s,
			Y: float64(coords[i*3+1]) / s,
			Z: float64(coords[i*3+2]) / s,
		}
	}
	return lm, true, nil
}

// tensorData resizes the frame to the model input and packs it as NHWC floats.
func (m *ONNXLandmarker) tensorData(img image.Image) []float32 {
	size := m.cfg.InputSize
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float32, size*size*3)
	for i, j := 0, 0; i < len(dst.Pix); i += 4 {
		out[j] = float32(dst.Pix[i]) / 255
		out[j+1] = float32(dst.Pix[i+1]) / 255
		out[j+2] = float32(dst.Pix[i+2]) / 255
		j += 3
	}
	return out
}

func (m *ONNXLandmarker) Close() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
