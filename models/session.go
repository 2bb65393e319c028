// Package models owns the native models a stage worker loads. A Session is
// built once per worker process and passed explicitly to the stage body;
// nothing is cached in package globals.
package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/clients"
	"github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/face"
	"github.com/speakwise/videosignal/ortenv"
	"github.com/speakwise/videosignal/transcribe"
	"github.com/speakwise/videosignal/voice"
)

type Session struct {
	Engine    transcribe.Engine
	Extractor *face.Extractor
	Analyzer  *voice.Analyzer

	closers []func()
	ort     bool
}

// Close releases every model. Memory held by the native runtimes is only
// fully returned to the OS when the worker process exits.
func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if s.ort {
		ortenv.Shutdown()
		s.ort = false
	}
}

func (s *Session) initORT(cfg *config.Root) error {
	if err := ortenv.Init(cfg.Pipeline.ONNXRuntimeLib); err != nil {
		return err
	}
	s.ort = true
	return nil
}

// ForText loads the speech recognition engine.
func ForText(cfg *config.Root) (*Session, error) {
	s := &Session{}
	switch cfg.ASR.Engine {
	case "http":
		// long recordings take a while to upload and decode
		httpc := clients.NewHTTPWithClient(&http.Client{Timeout: 15 * time.Minute})
		s.Engine = &transcribe.HTTPEngine{
			Client: httpc,
			URL:    cfg.ASR.URL,
			Opts: clients.ASROptions{
				Model:          cfg.ASR.Model,
				Language:       cfg.ASR.Language,
				BeamSize:       cfg.ASR.BeamSize,
				WordTimestamps: cfg.ASR.WordTimestamps,
			},
		}
	case "sherpa":
		eng, err := transcribe.NewSherpaEngine(transcribe.SherpaConfig{
			Encoder:    cfg.ASR.Encoder,
			Decoder:    cfg.ASR.Decoder,
			Tokens:     cfg.ASR.Tokens,
			VADModel:   cfg.ASR.VADModel,
			Language:   cfg.ASR.Language,
			NumThreads: cfg.ASR.NumThreads,
			Provider:   cfg.ASR.Provider,
		})
		if err != nil {
			return nil, err
		}
		s.Engine = eng
		s.closers = append(s.closers, eng.Close)
	default:
		return nil, fmt.Errorf("%w: %q", transcribe.ErrNoEngine, cfg.ASR.Engine)
	}
	return s, nil
}

// ForFrames loads the face detector and the landmark model that runs on its
// crops.
func ForFrames(cfg *config.Root) (*Session, error) {
	if cfg.Face.DetectorModel == "" {
		return nil, errors.New("face.detector_model is not configured")
	}
	if cfg.Face.LandmarkModel == "" {
		return nil, errors.New("face.landmark_model is not configured")
	}
	s := &Session{}
	if err := s.initORT(cfg); err != nil {
		return nil, err
	}
	det, err := face.NewONNXDetector(face.DetectorConfig{
		ModelPath:  cfg.Face.DetectorModel,
		InputSize:  face.DefaultDetectorConfig().InputSize,
		Threshold:  cfg.Face.DetectorThreshold,
		NumThreads: cfg.Face.NumThreads,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, det.Close)
	lm, err := face.NewONNXLandmarker(face.ONNXConfig{
		ModelPath:         cfg.Face.LandmarkModel,
		InputSize:         cfg.Face.InputSize,
		PresenceThreshold: cfg.Face.PresenceThreshold,
		NumThreads:        cfg.Face.NumThreads,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, lm.Close)
	s.Extractor = face.NewExtractor(face.NewCroppedLandmarker(det, lm))
	return s, nil
}

// ForVoice builds the voice analyzer, with the Silero VAD model when one is
// configured. A VAD model that fails to load degrades to the energy
// detector.
func ForVoice(cfg *config.Root) (*Session, error) {
	s := &Session{}
	var vad voice.VAD
	if cfg.Voice.VADModel != "" {
		sc := voice.DefaultSileroConfig()
		sc.ModelPath = cfg.Voice.VADModel
		sc.Threshold = float32(cfg.Voice.VADThreshold)
		sc.MinSilence = cfg.Voice.MinPause

		err := s.initORT(cfg)
		var sv *voice.SileroVAD
		if err == nil {
			sv, err = voice.NewSileroVAD(sc)
		}
		if err != nil {
			log.WithError(err).Warn("silero vad unavailable, using energy detector")
		} else {
			vad = sv
			s.closers = append(s.closers, sv.Close)
		}
	}
	s.Analyzer = voice.NewAnalyzer(cfg.Voice.Config, vad)
	return s, nil
}
