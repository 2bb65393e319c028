package media

import (
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	fps    float64
	broken map[int]bool
}

func (s *fakeStream) FPS() float64 { return s.fps }

func (s *fakeStream) Frame(_ context.Context, index int) (image.Image, error) {
	if s.broken[index] {
		return nil, errors.New("corrupt")
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (s *fakeStream) Close() error { return nil }

type fakeSource struct {
	fps    float64
	broken map[int]bool
	opens  int
}

func (f *fakeSource) Open(context.Context, string) (Stream, error) {
	f.opens++
	return &fakeStream{fps: f.fps, broken: f.broken}, nil
}

func collect(t *testing.T, s *Sampler, start, end float64, interval int) []float64 {
	t.Helper()
	var times []float64
	for ts, img := range s.Sample(context.Background(), "video.mp4", start, end, interval) {
		require.NotNil(t, img)
		times = append(times, ts)
	}
	return times
}

func TestSampleOneFramePerSecond(t *testing.T) {
	t.Parallel()

	s := NewSampler(&fakeSource{fps: 30})
	times := collect(t, s, 0, 10, 30)

	require.Len(t, times, 10)
	for i := 1; i < len(times); i++ {
		assert.Greater(t, times[i], times[i-1])
	}
	assert.InDelta(t, 9.0, times[9], 1e-9)
}

func TestSampleSkipsBrokenFrames(t *testing.T) {
	t.Parallel()

	s := NewSampler(&fakeSource{fps: 30, broken: map[int]bool{30: true, 60: true}})
	times := collect(t, s, 0, 4, 30)
	assert.Equal(t, []float64{0, 3}, times)
}

func TestSampleIsRestartable(t *testing.T) {
	t.Parallel()

	src := &fakeSource{fps: 25}
	s := NewSampler(src)
	seq := s.Sample(context.Background(), "v.mp4", 1, 3, 25)

	var first, second int
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, 2, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, src.opens)
}

func TestSampleEmptyWindow(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SampleIndices(30, 2, 2, 30))
	assert.Empty(t, SampleIndices(30, 0, 1, 0))
	assert.Equal(t, []int{15, 45}, SampleIndices(30, 0.5, 2, 30))
}

func TestParseProbe(t *testing.T) {
	t.Parallel()

	out := []byte(`{"streams":[
		{"codec_type":"audio","duration":"5.0"},
		{"codec_type":"video","width":640,"height":480,"r_frame_rate":"30/1","avg_frame_rate":"30000/1001","duration":"10.0"}
	],"format":{"duration":"10.02"}}`)
	meta, err := parseProbe(out)
	require.NoError(t, err)
	assert.InDelta(t, 29.97, meta.FPS, 0.01)
	assert.Equal(t, 640, meta.FrameWidth)
	assert.Equal(t, 480, meta.FrameHeight)
	assert.InDelta(t, 10.0, meta.DurationSeconds, 1e-9)
	assert.Equal(t, 299, meta.TotalFrames)
}

func TestParseProbeNoVideo(t *testing.T) {
	t.Parallel()

	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}]}`))
	assert.Error(t, err)
}

func writeSine(t *testing.T, path string, sr int, seconds, freq float64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n := int(float64(sr) * seconds)
	data := make([]int, n)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr)))
	}
	enc := wav.NewEncoder(f, sr, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sr},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestLoadWAV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	writeSine(t, path, 16000, 1.5, 220)

	a, err := LoadAudio(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, a.SampleRate)
	assert.InDelta(t, 1.5, a.Duration(), 1e-3)

	var peak float64
	for _, s := range a.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	assert.InDelta(t, 16000.0/32768, peak, 0.01)

	assert.Len(t, a.Slice(0.5, 1.0), 8000)
	assert.Len(t, a.Slice(1.0, 9.0), 8000)
	assert.Nil(t, a.Slice(2, 3))
}

func TestLoadAudioUnsupported(t *testing.T) {
	t.Parallel()

	_, err := LoadAudio("clip.ogg")
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	out := Resample(in, 8, 4)
	assert.Equal(t, []float64{0, 2, 4, 6}, out)
	assert.Equal(t, in, Resample(in, 16000, 16000))
}
