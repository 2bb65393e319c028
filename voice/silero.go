package voice

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/speakwise/videosignal/ortenv"
)

type SileroConfig struct {
	ModelPath  string
	Threshold  float32
	MinSilence float64 // seconds of silence that close a speech span
	MinSpeech  float64 // shortest span kept, seconds
}

func DefaultSileroConfig() SileroConfig {
	return SileroConfig{Threshold: 0.5, MinSilence: 0.1, MinSpeech: 0.1}
}

// SileroVAD runs the Silero v5 ONNX model (inputs input/state/sr, outputs
// output/stateN) over 32 ms windows.
type SileroVAD struct {
	cfg     SileroConfig
	session *ort.DynamicAdvancedSession
}

func NewSileroVAD(cfg SileroConfig) (*SileroVAD, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("vad model: %w", err)
	}
	if err := ortenv.Init(""); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	s, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		opts)
	if err != nil {
		return nil, fmt.Errorf("vad session: %w", err)
	}
	return &SileroVAD{cfg: cfg, session: s}, nil
}

func (v *SileroVAD) Close() {
	if v.session != nil {
		v.session.Destroy()
		v.session = nil
	}
}

func (v *SileroVAD) Speech(samples []float64, sr int) ([]Span, error) {
	var window, ctxSize int
	switch sr {
	case 16000:
		window, ctxSize = 512, 64
	case 8000:
		window, ctxSize = 256, 32
	default:
		return nil, fmt.Errorf("silero vad: unsupported sample rate %d", sr)
	}

	state := make([]float32, 2*128)
	context := make([]float32, ctxSize)
	input := make([]float32, ctxSize+window)
	step := float64(window) / float64(sr)
	minSilence := int(v.cfg.MinSilence/step + 0.5)

	var spans []Span
	open, silent := -1.0, 0
	for i := 0; i < len(samples); i += window {
		copy(input, context)
		for j := 0; j < window; j++ {
			var s float32
			if i+j < len(samples) {
				s = float32(samples[i+j])
			}
			input[ctxSize+j] = s
		}
		copy(context, input[len(input)-ctxSize:])

		prob, err := v.run(input, state, sr)
		if err != nil {
			return nil, err
		}
		t := float64(i) / float64(sr)
		if prob >= v.cfg.Threshold {
			silent = 0
			if open < 0 {
				open = t
			}
			continue
		}
		if open < 0 {
			continue
		}
		silent++
		if silent >= max(minSilence, 1) {
			end := t - float64(silent-1)*step
			if end-open >= v.cfg.MinSpeech {
				spans = append(spans, Span{Start: open, End: end})
			}
			open, silent = -1, 0
		}
	}
	if open >= 0 {
		end := float64(len(samples)) / float64(sr)
		if end-open >= v.cfg.MinSpeech {
			spans = append(spans, Span{Start: open, End: end})
		}
	}
	return spans, nil
}

func (v *SileroVAD) run(input, state []float32, sr int) (float32, error) {
	in, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("vad input tensor: %w", err)
	}
	defer in.Destroy()
	st, err := ort.NewTensor(ort.NewShape(2, 1, 128), state)
	if err != nil {
		return 0, fmt.Errorf("vad state tensor: %w", err)
	}
	defer st.Destroy()
	rate, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sr)})
	if err != nil {
		return 0, fmt.Errorf("vad sr tensor: %w", err)
	}
	defer rate.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := v.session.Run([]ort.Value{in, st, rate}, outputs); err != nil {
		return 0, fmt.Errorf("vad inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	copy(state, outputs[1].(*ort.Tensor[float32]).GetData())
	if data := outputs[0].(*ort.Tensor[float32]).GetData(); len(data) > 0 {
		return data[0], nil
	}
	return 0, nil
}
