package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/speakwise/videosignal/clients"
	"github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/handoff"
	"github.com/speakwise/videosignal/transcript"
	"github.com/speakwise/videosignal/voice"
)

// inProcRunner serves jobs in-process with canned stage bodies. A failing
// body is reported the way a worker exiting with status 1 would be.
type inProcRunner struct {
	mu    sync.Mutex
	funcs map[Stage]StageFunc
	calls []Stage
	// crash makes a stage fail without leaving an envelope.
	crash map[Stage]bool
}

func (r *inProcRunner) Run(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.calls = append(r.calls, job.Stage)
	r.mu.Unlock()
	if r.crash[job.Stage] {
		return &ExitError{Stage: job.Stage, Code: 137}
	}
	if err := ServeStage(ctx, r.funcs[job.Stage], job.Input, job.Output); err != nil {
		return &ExitError{Stage: job.Stage, Code: 1}
	}
	return nil
}

var testMeta = transcript.VideoMetadata{FPS: 30, TotalFrames: 300, DurationSeconds: 10, FrameWidth: 640, FrameHeight: 360}

func cannedText(context.Context, StageInput) (any, error) {
	segs := []transcript.TextSegment{
		{Start: 0, End: 2.5, Text: "hello there", Duration: 2.5, Frames: transcript.SpanFor(0, 2.5, 30)},
		{Start: 3, End: 5.123456, Text: "general kenobi", Duration: 2.123456, Frames: transcript.SpanFor(3, 5.123456, 30)},
	}
	return &transcript.TextTranscript{VideoMetadata: testMeta, Segments: segs, FullText: "hello there general kenobi"}, nil
}

func cannedFrames(_ context.Context, in StageInput) (any, error) {
	var tt transcript.TextTranscript
	if err := handoff.Read(in.Previous, &tt); err != nil {
		return nil, err
	}
	out := &transcript.ImagesTranscript{Metadata: transcript.NewMetadata(tt.VideoMetadata, len(tt.Segments), in.FrameInterval)}
	for _, s := range tt.Segments {
		out.Segments = append(out.Segments, transcript.VisualSegment{
			TextSegment: s,
			VisualInfo:  []transcript.FrameInfo{{FrameTime: s.Start + 1.0/3}},
		})
	}
	return out, nil
}

func cannedVoice(_ context.Context, in StageInput) (any, error) {
	var it transcript.ImagesTranscript
	if err := handoff.Read(in.Previous, &it); err != nil {
		return nil, err
	}
	final := &transcript.Final{Metadata: it.Metadata, AudioMetadata: transcript.AudioMetadata{SampleRate: 16000, AudioPath: in.AudioPath}}
	for _, s := range it.Segments {
		var vf voice.Features
		vf.Energy.RMSMean = 0.0123456
		vf.Pitch.F0Median = 123.45678
		final.Segments = append(final.Segments, transcript.Segment{VisualSegment: s, VoiceFeatures: vf})
	}
	return final, nil
}

func newRunner() *inProcRunner {
	return &inProcRunner{funcs: map[Stage]StageFunc{
		StageText:   cannedText,
		StageFrames: cannedFrames,
		StageVoice:  cannedVoice,
	}}
}

func testConfig(t *testing.T) *config.Root {
	t.Helper()
	c := config.Default()
	c.Pipeline.WorkDir = t.TempDir()
	return c
}

func workDirEntries(t *testing.T, c *config.Root) []os.DirEntry {
	t.Helper()
	ents, err := os.ReadDir(c.Pipeline.WorkDir)
	require.NoError(t, err)
	return ents
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	r := newRunner()
	out := filepath.Join(t.TempDir(), "final.json")

	final, err := NewPipeline(c, r).Run(context.Background(), VideoRef{ID: "vid-1", Source: "talk.mp4"}, out)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageText, StageFrames, StageVoice}, r.calls)

	require.Len(t, final.Segments, 2)
	assert.Equal(t, 5.123, final.Segments[1].End)
	assert.Equal(t, 0.333, final.Segments[0].VisualInfo[0].FrameTime)
	assert.Equal(t, 0.012, final.Segments[0].VoiceFeatures.Energy.RMSMean)
	require.NotNil(t, final.Metadata.VideoMetadata)
	assert.Equal(t, testMeta, *final.Metadata.VideoMetadata)
	assert.Equal(t, "hello there general kenobi", final.Metadata.FullText)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 123.457, gjson.GetBytes(b, "segments.0.voice_features.pitch.f0_median").Float())
	assert.True(t, gjson.GetBytes(b, "segments.1.visual_info.0.face_features.head.motion").Exists())
	assert.Equal(t, int64(2), gjson.GetBytes(b, "metadata.total_segments").Int())

	assert.Empty(t, workDirEntries(t, c), "run directory should be removed")
}

func TestPipelineKeepsWorkDirAndDumps(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	c.Pipeline.KeepWorkDir = true
	c.Pipeline.DebugDump = true
	outDir := t.TempDir()

	_, err := NewPipeline(c, newRunner()).Run(context.Background(), VideoRef{ID: "vid-2", Source: "talk.mp4"}, filepath.Join(outDir, "final.json"))
	require.NoError(t, err)

	assert.Len(t, workDirEntries(t, c), 1)
	assert.FileExists(t, filepath.Join(outDir, "vid-2_text_transcript.json"))
	assert.FileExists(t, filepath.Join(outDir, "vid-2_images_text_transcript.json"))
}

func TestPipelineDumpsOutliveRunDir(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	c.Pipeline.DebugDump = true

	_, err := NewPipeline(c, newRunner()).Run(context.Background(), VideoRef{ID: "vid-2b", Source: "talk.mp4"}, "")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(c.Pipeline.WorkDir, "vid-2b_text_transcript.json"))
	assert.FileExists(t, filepath.Join(c.Pipeline.WorkDir, "vid-2b_images_text_transcript.json"))
	for _, e := range workDirEntries(t, c) {
		assert.False(t, e.IsDir(), "run directory %s should be removed", e.Name())
	}
}

func TestPipelineStageFailureAborts(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	r := newRunner()
	r.funcs[StageFrames] = func(context.Context, StageInput) (any, error) {
		return nil, errors.New("landmark model missing")
	}
	out := filepath.Join(t.TempDir(), "final.json")

	final, err := NewPipeline(c, r).Run(context.Background(), VideoRef{ID: "vid-3", Source: "talk.mp4"}, out)
	assert.Nil(t, final)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFrames, se.Stage)
	assert.EqualError(t, err, "stage frames: landmark model missing")
	assert.Equal(t, []Stage{StageText, StageFrames}, r.calls)
	assert.NoFileExists(t, out)
	assert.Empty(t, workDirEntries(t, c))
}

func TestPipelineWorkerCrash(t *testing.T) {
	t.Parallel()

	r := newRunner()
	r.crash = map[Stage]bool{StageVoice: true}

	_, err := NewPipeline(testConfig(t), r).Run(context.Background(), VideoRef{ID: "vid-4", Source: "talk.mp4"}, "")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageVoice, se.Stage)
	var xe *ExitError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, 137, xe.Code)
}

func TestPipelineRejectsMisalignedFrames(t *testing.T) {
	t.Parallel()

	r := newRunner()
	r.funcs[StageFrames] = func(ctx context.Context, in StageInput) (any, error) {
		v, err := cannedFrames(ctx, in)
		if err != nil {
			return nil, err
		}
		it := v.(*transcript.ImagesTranscript)
		it.Segments = it.Segments[:1]
		return it, nil
	}

	_, err := NewPipeline(testConfig(t), r).Run(context.Background(), VideoRef{ID: "vid-5", Source: "talk.mp4"}, "")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFrames, se.Stage)
	assert.Contains(t, err.Error(), "segment count")
}

type fakePresigner struct{ calls int }

func (f *fakePresigner) Presign(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	f.calls++
	return "https://signed.example/" + bucket + "/" + key + "?ttl=" + ttl.String(), nil
}

func remoteServer(t *testing.T, respond func(job map[string]any) any) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var jobs []map[string]any
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/ep-1/run" || req.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unexpected", http.StatusNotFound)
			return
		}
		var body struct {
			Input map[string]any `json:"input"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		jobs = append(jobs, body.Input)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "status": "COMPLETED", "output": respond(body.Input)})
	}))
	t.Cleanup(srv.Close)
	return srv, &jobs
}

func remoteConfig(t *testing.T, url string) *config.Root {
	c := testConfig(t)
	c.Remote.Enabled = true
	c.Remote.URL = url
	c.Remote.EndpointID = "ep-1"
	c.Remote.APIKey = "secret"
	c.Remote.URLTTL = 600
	return c
}

func TestPipelineRemoteFrames(t *testing.T) {
	t.Parallel()

	srv, jobs := remoteServer(t, func(job map[string]any) any {
		b, _ := json.Marshal(job["text_transcript"])
		var tt transcript.TextTranscript
		_ = json.Unmarshal(b, &tt)
		out := transcript.ImagesTranscript{Metadata: transcript.NewMetadata(tt.VideoMetadata, len(tt.Segments), 30)}
		for _, s := range tt.Segments {
			out.Segments = append(out.Segments, transcript.VisualSegment{TextSegment: s})
		}
		return out
	})
	c := remoteConfig(t, srv.URL)
	r := newRunner()
	ps := &fakePresigner{}

	final, err := NewPipeline(c, r, WithPresigner(ps)).Run(context.Background(), VideoRef{ID: "vid-6", Source: "s3://bucket/talks/a.mp4"}, "")
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageText, StageVoice}, r.calls)
	require.Len(t, *jobs, 1)
	job := (*jobs)[0]
	assert.Equal(t, "https://signed.example/bucket/talks/a.mp4?ttl=10m0s", job["video_url"])
	assert.EqualValues(t, 30, job["frame_interval"])
	require.Len(t, final.Segments, 2)
	assert.NotNil(t, final.Segments[0].VisualInfo)
	assert.Equal(t, 2, ps.calls)
}

func TestPipelineRemoteError(t *testing.T) {
	t.Parallel()

	srv, _ := remoteServer(t, func(map[string]any) any {
		return map[string]any{"error": "cuda out of memory"}
	})
	r := newRunner()

	_, err := NewPipeline(remoteConfig(t, srv.URL), r).Run(context.Background(), VideoRef{ID: "vid-7", Source: "https://cdn.example/a.mp4"}, "")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFrames, se.Stage)
	assert.ErrorIs(t, err, clients.ErrRemoteJobFailed)
	assert.Equal(t, []Stage{StageText}, r.calls)
}

func TestPipelineRemoteNeedsURL(t *testing.T) {
	t.Parallel()

	c := remoteConfig(t, "http://127.0.0.1:1")
	_, err := NewPipeline(c, newRunner()).Run(context.Background(), VideoRef{ID: "vid-8", Source: "/videos/a.mp4"}, "")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageFrames, se.Stage)
}

func TestPipelineBuildsPresignerOnce(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	c := testConfig(t)
	c.Storage.Region = "eu-west-1"
	c.Storage.Endpoint = "http://127.0.0.1:9000"
	p := NewPipeline(c, newRunner())

	var wg sync.WaitGroup
	urls := make([]string, 8)
	errs := make([]error, len(urls))
	for i := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			urls[i], errs[i] = p.resolveURL(context.Background(), "s3://media/clips/v.mp4")
		}()
	}
	wg.Wait()

	for i := range urls {
		require.NoError(t, errs[i])
		assert.Contains(t, urls[i], "X-Amz-Signature=")
	}
	first := p.presigner
	_, err := p.resolveURL(context.Background(), "s3://media/clips/w.mp4")
	require.NoError(t, err)
	assert.Same(t, first, p.presigner)
}

func TestPipelineWithSpawnedWorkers(t *testing.T) {
	t.Parallel()

	c := testConfig(t)
	sp := helperSpawner(t, "panic")

	_, err := NewPipeline(c, sp).Run(context.Background(), VideoRef{ID: "vid-9", Source: "talk.mp4"}, "")

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageText, se.Stage)
	var f *handoff.Failure
	require.ErrorAs(t, err, &f)
	assert.Contains(t, f.Message, "index out of range")
}

func TestCheckAligned(t *testing.T) {
	t.Parallel()

	a := []transcript.TextSegment{{Start: 0, End: 1}, {Start: 1, End: 2}}
	assert.NoError(t, checkAligned(a, []transcript.TextSegment{{Start: 0, End: 1}, {Start: 1, End: 2.0000000001}}))
	assert.Error(t, checkAligned(a, []transcript.TextSegment{{Start: 0, End: 1}, {Start: 1.5, End: 2}}))
}
