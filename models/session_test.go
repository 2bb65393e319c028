package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/transcribe"
)

func TestForTextHTTP(t *testing.T) {
	t.Parallel()

	s, err := ForText(config.Default())
	require.NoError(t, err)
	defer s.Close()

	eng, ok := s.Engine.(*transcribe.HTTPEngine)
	require.True(t, ok)
	assert.Equal(t, "en", eng.Opts.Language)
	assert.Equal(t, 10, eng.Opts.BeamSize)
	assert.True(t, eng.Opts.WordTimestamps)
}

func TestForTextUnknownEngine(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.ASR.Engine = "none"
	_, err := ForText(cfg)
	assert.ErrorIs(t, err, transcribe.ErrNoEngine)
}

func TestForFramesNeedsModel(t *testing.T) {
	t.Parallel()

	_, err := ForFrames(config.Default())
	assert.ErrorContains(t, err, "detector_model")

	cfg := config.Default()
	cfg.Face.DetectorModel = "assets/face_detector_short_range.onnx"
	_, err = ForFrames(cfg)
	assert.ErrorContains(t, err, "landmark_model")
}

func TestForVoiceWithoutVADModel(t *testing.T) {
	t.Parallel()

	s, err := ForVoice(config.Default())
	require.NoError(t, err)
	defer s.Close()
	assert.NotNil(t, s.Analyzer)
	assert.Nil(t, s.Extractor)
}
