package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/media"
	"github.com/speakwise/videosignal/transcript"
)

const sherpaSampleRate = 16000

type SherpaConfig struct {
	Encoder    string
	Decoder    string
	Tokens     string
	VADModel   string
	Language   string
	NumThreads int
	Provider   string
}

// SherpaEngine runs Silero VAD to cut speech regions and decodes each region
// with an offline Whisper model. Both models stay loaded until Close.
type SherpaEngine struct {
	cfg        SherpaConfig
	vadConfig  sherpa.VadModelConfig
	recognizer *sherpa.OfflineRecognizer
}

func NewSherpaEngine(cfg SherpaConfig) (*SherpaEngine, error) {
	for _, p := range []string{cfg.Encoder, cfg.Decoder, cfg.Tokens, cfg.VADModel} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("sherpa model: %w", err)
		}
	}
	cfg = cfg.withDefaults()

	rc := recognizerConfig(cfg)
	recognizer := sherpa.NewOfflineRecognizer(&rc)
	if recognizer == nil {
		return nil, fmt.Errorf("sherpa: failed to create whisper recognizer from %s", cfg.Encoder)
	}
	vc := vadConfig(cfg)

	return &SherpaEngine{cfg: cfg, vadConfig: vc, recognizer: recognizer}, nil
}

func (c SherpaConfig) withDefaults() SherpaConfig {
	if c.NumThreads <= 0 {
		c.NumThreads = 2
	}
	if c.Provider == "" {
		c.Provider = "cpu"
	}
	return c
}

// recognizerConfig builds the offline Whisper setup. Decoding is greedy.
func recognizerConfig(cfg SherpaConfig) sherpa.OfflineRecognizerConfig {
	rc := sherpa.OfflineRecognizerConfig{}
	rc.FeatConfig = sherpa.FeatureConfig{SampleRate: sherpaSampleRate, FeatureDim: 80}
	rc.ModelConfig.Whisper = sherpa.OfflineWhisperModelConfig{
		Encoder:      cfg.Encoder,
		Decoder:      cfg.Decoder,
		Language:     cfg.Language,
		Task:         "transcribe",
		TailPaddings: -1,
	}
	rc.ModelConfig.Tokens = cfg.Tokens
	rc.ModelConfig.NumThreads = cfg.NumThreads
	rc.ModelConfig.Provider = cfg.Provider
	rc.DecodingMethod = "greedy_search"
	return rc
}

func vadConfig(cfg SherpaConfig) sherpa.VadModelConfig {
	vc := sherpa.VadModelConfig{}
	vc.SileroVad.Model = cfg.VADModel
	vc.SileroVad.Threshold = 0.5
	vc.SileroVad.MinSilenceDuration = 0.5
	vc.SileroVad.MinSpeechDuration = 0.25
	vc.SileroVad.MaxSpeechDuration = 20
	vc.SileroVad.WindowSize = 512
	vc.SampleRate = sherpaSampleRate
	vc.NumThreads = 1
	vc.Provider = cfg.Provider
	return vc
}

func (e *SherpaEngine) Close() {
	if e.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(e.recognizer)
		e.recognizer = nil
	}
}

func (e *SherpaEngine) Recognize(ctx context.Context, audioPath string) ([]transcript.TextSegment, error) {
	a, err := media.LoadAudio(audioPath)
	if err != nil {
		return nil, err
	}
	pcm := media.Resample(a.Samples, a.SampleRate, sherpaSampleRate)
	samples := make([]float32, len(pcm))
	for i, v := range pcm {
		samples[i] = float32(v)
	}

	vad := sherpa.NewVoiceActivityDetector(&e.vadConfig, 30)
	defer sherpa.DeleteVoiceActivityDetector(vad)

	var out []transcript.TextSegment
	drain := func() {
		for !vad.IsEmpty() {
			seg := vad.Front()
			vad.Pop()
			if text := e.decode(seg.Samples); text != "" {
				start := float64(seg.Start) / sherpaSampleRate
				out = append(out, transcript.TextSegment{
					Start: start,
					End:   start + float64(len(seg.Samples))/sherpaSampleRate,
					Text:  text,
				})
			}
		}
	}

	window := int(e.vadConfig.SileroVad.WindowSize)
	for len(samples) >= window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vad.AcceptWaveform(samples[:window])
		samples = samples[window:]
		drain()
	}
	vad.Flush()
	drain()

	log.WithFields(log.Fields{"audio": audioPath, "segments": len(out)}).Debug("sherpa transcription done")
	return out, nil
}

func (e *SherpaEngine) decode(samples []float32) string {
	stream := sherpa.NewOfflineStream(e.recognizer)
	defer sherpa.DeleteOfflineStream(stream)
	stream.AcceptWaveform(sherpaSampleRate, samples)
	e.recognizer.Decode(stream)
	return strings.TrimSpace(stream.GetResult().Text)
}
