package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakwise/videosignal/clients"
	"github.com/speakwise/videosignal/transcript"
)

type fakeEngine struct {
	segs []transcript.TextSegment
	err  error
}

func (f fakeEngine) Recognize(context.Context, string) ([]transcript.TextSegment, error) {
	return f.segs, f.err
}

var meta = transcript.VideoMetadata{FPS: 30, TotalFrames: 300, DurationSeconds: 10, FrameWidth: 640, FrameHeight: 480}

func TestTranscribeBuildsFrameSpans(t *testing.T) {
	t.Parallel()

	eng := fakeEngine{segs: []transcript.TextSegment{
		{Start: 2.5, End: 5, Text: "Testing the endpoint."},
		{Start: 0, End: 2.5, Text: " Hello, this is a test. "},
	}}
	tt, err := Transcribe(context.Background(), eng, "audio.wav", meta)
	require.NoError(t, err)

	require.Len(t, tt.Segments, 2)
	first := tt.Segments[0]
	assert.Equal(t, "Hello, this is a test.", first.Text)
	assert.InDelta(t, 2.5, first.Duration, 1e-9)
	assert.Equal(t, transcript.FrameSpan{StartFrame: 0, EndFrame: 75, FrameCount: 75}, first.Frames)
	assert.Equal(t, 75, tt.Segments[1].Frames.StartFrame)
	assert.Equal(t, "Hello, this is a test. Testing the endpoint.", tt.FullText)
	assert.Equal(t, meta, tt.VideoMetadata)
	assert.Equal(t, "audio.wav", tt.AudioPath)
}

func TestTranscribeFailures(t *testing.T) {
	t.Parallel()

	_, err := Transcribe(context.Background(), nil, "a.wav", meta)
	assert.ErrorIs(t, err, ErrNoEngine)

	boom := errors.New("decoder crashed")
	_, err = Transcribe(context.Background(), fakeEngine{err: boom}, "a.wav", meta)
	assert.ErrorIs(t, err, boom)
}

func TestTranscribeNoSpeech(t *testing.T) {
	t.Parallel()

	tt, err := Transcribe(context.Background(), fakeEngine{}, "a.wav", meta)
	require.NoError(t, err)
	assert.Empty(t, tt.Segments)
	assert.Empty(t, tt.FullText)
}

func TestHTTPEngine(t *testing.T) {
	t.Parallel()

	wav := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(wav, []byte("RIFF"), 0o644))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"segments":[{"start":1,"end":2,"text":"b"},{"start":0,"end":1,"text":"a"}]}`))
	}))
	defer srv.Close()

	eng := &HTTPEngine{Client: clients.NewHTTP(), URL: srv.URL}
	tt, err := Transcribe(context.Background(), eng, wav, meta)
	require.NoError(t, err)
	assert.Equal(t, "a b", tt.FullText)
	assert.Equal(t, 30, tt.Segments[1].Frames.StartFrame)
}

func TestSherpaRecognizerConfig(t *testing.T) {
	t.Parallel()

	cfg := SherpaConfig{Encoder: "enc.onnx", Decoder: "dec.onnx", Tokens: "tokens.txt", Language: "en"}.withDefaults()
	rc := recognizerConfig(cfg)

	assert.Equal(t, 2, rc.ModelConfig.NumThreads)
	assert.Equal(t, "cpu", rc.ModelConfig.Provider)
	assert.Equal(t, "enc.onnx", rc.ModelConfig.Whisper.Encoder)
	assert.Equal(t, "en", rc.ModelConfig.Whisper.Language)
	assert.Equal(t, "greedy_search", rc.DecodingMethod)
	assert.Equal(t, sherpaSampleRate, rc.FeatConfig.SampleRate)

	vc := vadConfig(cfg)
	assert.Equal(t, sherpaSampleRate, vc.SampleRate)
	assert.Equal(t, "cpu", vc.Provider)
}

func TestSherpaEngineMissingModel(t *testing.T) {
	t.Parallel()

	_, err := NewSherpaEngine(SherpaConfig{Encoder: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.ErrorContains(t, err, "sherpa model")
}
