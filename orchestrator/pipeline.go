package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/clients"
	cfg "github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/handoff"
	"github.com/speakwise/videosignal/normalize"
	"github.com/speakwise/videosignal/storage"
	"github.com/speakwise/videosignal/transcript"
)

// Pipeline runs one video through TEXT -> FRAMES -> VOICE -> NORMALIZE ->
// DONE. Stages run strictly one after another, each in its own worker.
type Pipeline struct {
	cfg       *cfg.Root
	runner    Runner
	http      *clients.HTTP

	// presigner is built on first use and then shared by concurrent runs.
	presignOnce sync.Once
	presigner   storage.Presigner
	presignErr  error
}

type Option func(*Pipeline)

func WithRunner(r Runner) Option { return func(p *Pipeline) { p.runner = r } }

func WithHTTP(h *clients.HTTP) Option { return func(p *Pipeline) { p.http = h } }

func WithPresigner(ps storage.Presigner) Option { return func(p *Pipeline) { p.presigner = ps } }

func NewPipeline(c *cfg.Root, runner Runner, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: c, runner: runner, http: clients.NewHTTP()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes ref and, when outPath is set, writes the normalized record
// there. The returned error is always a *StageError.
func (p *Pipeline) Run(ctx context.Context, ref VideoRef, outPath string) (final *transcript.Final, err error) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	lg := log.WithField("video_id", ref.ID)
	state := StageText
	started := time.Now()

	defer func() {
		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				err = &StageError{Stage: state, Err: err}
			}
			final = nil
			lg.WithError(err).WithField("state", StageFailed).Error("pipeline failed")
		}
	}()

	runDir, err := mkRunDir(p.cfg.Pipeline.WorkDir, ref.ID)
	if err != nil {
		return nil, err
	}
	defer cleanup(runDir, p.cfg.Pipeline.KeepWorkDir)
	lg = lg.WithField("run_dir", runDir)

	video, err := p.localVideo(ctx, ref)
	if err != nil {
		return nil, err
	}
	base := StageInput{
		VideoID:       ref.ID,
		Video:         video,
		RunDir:        runDir,
		AudioPath:     filepath.Join(runDir, "audio.wav"),
		FrameInterval: p.cfg.Media.FrameInterval,
		SampleRate:    p.cfg.Media.SampleRate,
	}
	// dumps must outlive the run directory
	dumpDir := ""
	if p.cfg.Pipeline.DebugDump {
		dumpDir = p.cfg.Pipeline.WorkDir
		if outPath != "" {
			dumpDir = filepath.Dir(outPath)
		}
	}
	enter := func(s Stage) {
		state = s
		lg.WithField("state", s).Info("stage started")
	}

	enter(StageText)
	textOut, err := p.runStage(ctx, StageText, base, "")
	if err != nil {
		return nil, err
	}
	var tt transcript.TextTranscript
	if err := p.read(StageText, textOut, &tt); err != nil {
		return nil, err
	}
	if err := transcript.Validate(tt.Segments); err != nil {
		return nil, err
	}
	dump(dumpDir, ref.ID+"_text_transcript.json", &tt)

	enter(StageFrames)
	var framesOut string
	if p.cfg.Remote.Enabled {
		framesOut, err = p.remoteFrames(ctx, ref, &tt, base)
	} else {
		framesOut, err = p.runStage(ctx, StageFrames, base, textOut)
	}
	if err != nil {
		return nil, err
	}
	var it transcript.ImagesTranscript
	if err := p.read(StageFrames, framesOut, &it); err != nil {
		return nil, err
	}
	if err := checkAligned(tt.Segments, visualSpans(it.Segments)); err != nil {
		return nil, err
	}
	dump(dumpDir, ref.ID+"_images_text_transcript.json", &it)

	enter(StageVoice)
	voiceOut, err := p.runStage(ctx, StageVoice, base, framesOut)
	if err != nil {
		return nil, err
	}
	final = &transcript.Final{}
	if err := p.read(StageVoice, voiceOut, final); err != nil {
		return nil, err
	}
	if err := checkAligned(tt.Segments, finalSpans(final.Segments)); err != nil {
		return nil, err
	}

	enter(StageNormalize)
	meta := tt.VideoMetadata
	final.Metadata.VideoMetadata = &meta
	final.Metadata.FullText = tt.FullText
	handoff.Portable(final)
	n := normalize.Round(final, p.cfg.Pipeline.Decimals)
	lg.WithField("rounded", n).Debug("normalized")
	logSummary(lg, final)

	if outPath != "" {
		if err := writeJSON(outPath, final); err != nil {
			return nil, fmt.Errorf("write result: %w", err)
		}
	}
	state = StageDone
	lg.WithFields(log.Fields{
		"state":    StageDone,
		"segments": len(final.Segments),
		"wall":     time.Since(started).Round(time.Millisecond).String(),
	}).Info("pipeline done")
	return final, nil
}

// runStage writes the stage input and blocks until the worker exits. It
// returns the path of the worker's output envelope.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, base StageInput, previous string) (string, error) {
	in := base
	in.Previous = previous
	job := Job{
		Stage:  stage,
		Input:  filepath.Join(base.RunDir, string(stage)+"_in.json"),
		Output: filepath.Join(base.RunDir, string(stage)+"_out.json"),
	}
	if err := handoff.Write(job.Input, in); err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	if err := p.runner.Run(ctx, job); err != nil {
		// the envelope carries the worker's own account of the failure
		var body json.RawMessage
		var f *handoff.Failure
		if rerr := handoff.Read(job.Output, &body); errors.As(rerr, &f) {
			return "", &StageError{Stage: stage, Err: f}
		}
		return "", &StageError{Stage: stage, Err: err}
	}
	return job.Output, nil
}

func (p *Pipeline) read(stage Stage, path string, out any) error {
	if err := handoff.Read(path, out); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// localVideo returns a reference the local workers can open. ffmpeg reads
// http(s) directly; s3 objects are presigned first.
func (p *Pipeline) localVideo(ctx context.Context, ref VideoRef) (string, error) {
	if !strings.HasPrefix(ref.Source, "s3://") {
		return ref.Source, nil
	}
	return p.resolveURL(ctx, ref.Source)
}

func (p *Pipeline) resolveURL(ctx context.Context, src string) (string, error) {
	var ps storage.Presigner
	if strings.HasPrefix(src, "s3://") {
		var err error
		if ps, err = p.s3Presigner(ctx); err != nil {
			return "", err
		}
	}
	return storage.ResolveURL(ctx, ps, src, cfg.DurSeconds(p.cfg.Remote.URLTTL))
}

func (p *Pipeline) s3Presigner(ctx context.Context) (storage.Presigner, error) {
	p.presignOnce.Do(func() {
		if p.presigner != nil {
			return
		}
		var s3p *storage.S3Presigner
		s3p, p.presignErr = storage.NewS3Presigner(ctx, p.cfg.Storage.Region, p.cfg.Storage.Endpoint)
		if p.presignErr == nil {
			p.presigner = s3p
		}
	})
	return p.presigner, p.presignErr
}

// remoteFrames delegates the frames stage to the remote executor and stores
// its result as a regular handoff envelope for the voice worker.
func (p *Pipeline) remoteFrames(ctx context.Context, ref VideoRef, tt *transcript.TextTranscript, base StageInput) (string, error) {
	fail := func(err error) (string, error) { return "", &StageError{Stage: StageFrames, Err: err} }

	videoURL, err := p.resolveURL(ctx, ref.Source)
	if err != nil {
		return fail(err)
	}
	rc := p.cfg.Remote
	log.WithFields(log.Fields{"video_id": ref.ID, "endpoint": rc.Endpoint()}).Info("frames delegated to remote executor")
	raw, err := p.http.RunFrames(ctx, clients.Remote{
		Endpoint: rc.Endpoint(),
		APIKey:   rc.APIKey,
		Poll:     cfg.DurSeconds(rc.PollInterval),
	}, clients.FramesJob{
		VideoURL:           videoURL,
		TextTranscript:     tt,
		FrameInterval:      base.FrameInterval,
		UseMultiprocessing: rc.UseMultiprocessing,
		NumWorkers:         rc.NumWorkers,
	})
	if err != nil {
		return fail(err)
	}

	var it transcript.ImagesTranscript
	if err := json.Unmarshal(raw, &it); err != nil {
		return fail(fmt.Errorf("remote output decode: %w", err))
	}
	if it.Error != "" {
		return fail(fmt.Errorf("%w: %s", clients.ErrRemoteJobFailed, it.Error))
	}
	for i := range it.Segments {
		if it.Segments[i].VisualInfo == nil {
			it.Segments[i].VisualInfo = []transcript.FrameInfo{}
		}
	}
	out := filepath.Join(base.RunDir, string(StageFrames)+"_out.json")
	if err := handoff.Write(out, &it); err != nil {
		return fail(err)
	}
	return out, nil
}
