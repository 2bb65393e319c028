package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/config"
	"github.com/speakwise/videosignal/face"
	"github.com/speakwise/videosignal/handoff"
	"github.com/speakwise/videosignal/media"
	"github.com/speakwise/videosignal/models"
	"github.com/speakwise/videosignal/transcribe"
	"github.com/speakwise/videosignal/transcript"
	"github.com/speakwise/videosignal/voice"
)

// StageFunc computes a stage payload inside a worker process.
type StageFunc func(ctx context.Context, in StageInput) (any, error)

// ServeStage is the body of a worker process: read the input envelope, run
// fn, write the output envelope. Every failure, panics included, leaves an
// error envelope at outPath before ServeStage returns.
func ServeStage(ctx context.Context, fn StageFunc, inPath, outPath string) (err error) {
	lg := log.WithFields(log.Fields{"pid": os.Getpid(), "out": outPath})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			lg.WithField("stack", string(debug.Stack())).Error("stage panicked")
		}
		if err != nil {
			if werr := handoff.WriteError(outPath, err); werr != nil {
				lg.WithError(werr).Error("write error envelope")
			}
		}
	}()

	var in StageInput
	if err := handoff.Read(inPath, &in); err != nil {
		return fmt.Errorf("read stage input: %w", err)
	}
	lg = lg.WithField("video_id", in.VideoID)

	payload, err := fn(ctx, in)
	if err != nil {
		return err
	}
	return handoff.Write(outPath, payload)
}

// Worker binds stage bodies to the models and tools they need. Models are
// loaded per call, so one worker process holds one stage's models only.
type Worker struct {
	Cfg   *config.Root
	Tools media.Tools
}

func NewWorker(cfg *config.Root) *Worker {
	return &Worker{Cfg: cfg, Tools: media.Tools{FFmpeg: cfg.Media.FFmpeg, FFprobe: cfg.Media.FFprobe}}
}

func (w *Worker) Func(stage Stage) (StageFunc, error) {
	switch stage {
	case StageText:
		return w.text, nil
	case StageFrames:
		return w.frames, nil
	case StageVoice:
		return w.voice, nil
	}
	return nil, fmt.Errorf("no worker body for stage %q", stage)
}

func (w *Worker) text(ctx context.Context, in StageInput) (any, error) {
	sess, err := models.ForText(w.Cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return TextStage(ctx, w.Tools, sess.Engine, in)
}

func (w *Worker) frames(ctx context.Context, in StageInput) (any, error) {
	var tt transcript.TextTranscript
	if err := handoff.Read(in.Previous, &tt); err != nil {
		return nil, err
	}
	sess, err := models.ForFrames(w.Cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	sampler := media.NewSampler(media.FFmpegSource{Tools: w.Tools})
	tracker := face.NewTracker(tt.VideoMetadata.FPS)
	return FramesStage(ctx, sampler, sess.Extractor, tracker, &tt, in), nil
}

func (w *Worker) voice(ctx context.Context, in StageInput) (any, error) {
	var it transcript.ImagesTranscript
	if err := handoff.Read(in.Previous, &it); err != nil {
		return nil, err
	}
	sess, err := models.ForVoice(w.Cfg)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	audio, err := media.LoadAudio(in.AudioPath)
	if err != nil {
		return nil, err
	}
	return VoiceStage(ctx, sess.Analyzer, audio, &it, in)
}

// Prober reads video metadata and extracts its audio track.
type Prober interface {
	Probe(ctx context.Context, path string) (transcript.VideoMetadata, error)
	ExtractAudio(ctx context.Context, video, dst string, sampleRate int) error
}

// TextStage extracts audio next to the run directory and transcribes it.
// Audio extraction failure is fatal.
func TextStage(ctx context.Context, tools Prober, engine transcribe.Engine, in StageInput) (*transcript.TextTranscript, error) {
	meta, err := tools.Probe(ctx, in.Video)
	if err != nil {
		return nil, err
	}
	audioPath := in.AudioPath
	if audioPath == "" {
		audioPath = filepath.Join(in.RunDir, "audio.wav")
	}
	if err := tools.ExtractAudio(ctx, in.Video, audioPath, in.SampleRate); err != nil {
		return nil, err
	}
	tt, err := transcribe.Transcribe(ctx, engine, audioPath, meta)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"video_id": in.VideoID, "segments": len(tt.Segments)}).Info("text stage done")
	return tt, nil
}

// FramesStage samples every segment window and extracts face features. The
// tracker is reset once and then spans the whole run. Segments with no
// decodable frames get an empty visual_info list.
func FramesStage(ctx context.Context, sampler *media.Sampler, ex *face.Extractor, tracker *face.Tracker, tt *transcript.TextTranscript, in StageInput) *transcript.ImagesTranscript {
	tracker.Reset()
	out := &transcript.ImagesTranscript{
		Segments: make([]transcript.VisualSegment, 0, len(tt.Segments)),
		Metadata: transcript.NewMetadata(tt.VideoMetadata, len(tt.Segments), in.FrameInterval),
	}
	for _, seg := range tt.Segments {
		infos := []transcript.FrameInfo{}
		for ts, img := range sampler.Sample(ctx, in.Video, seg.Start, seg.End, in.FrameInterval) {
			infos = append(infos, transcript.FrameInfo{FrameTime: ts, FaceFeatures: ex.Extract(img, tracker)})
		}
		out.Segments = append(out.Segments, transcript.VisualSegment{TextSegment: seg, VisualInfo: infos})
	}
	log.WithFields(log.Fields{"video_id": in.VideoID, "tracked_frames": tracker.Samples()}).Info("frames stage done")
	return out
}

// VoiceStage analyzes the audio slice of every segment.
func VoiceStage(ctx context.Context, an *voice.Analyzer, audio *media.Audio, it *transcript.ImagesTranscript, in StageInput) (*transcript.Final, error) {
	final := &transcript.Final{
		Segments: make([]transcript.Segment, 0, len(it.Segments)),
		Metadata: it.Metadata,
		AudioMetadata: transcript.AudioMetadata{
			SampleRate:      audio.SampleRate,
			DurationSeconds: audio.Duration(),
			NumSamples:      len(audio.Samples),
			AudioPath:       in.AudioPath,
		},
	}
	for _, seg := range it.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seg.VisualInfo == nil {
			seg.VisualInfo = []transcript.FrameInfo{}
		}
		vf := an.AnalyzeSegment(audio.Slice(seg.Start, seg.End), audio.SampleRate, seg.Text, seg.Start, seg.End)
		final.Segments = append(final.Segments, transcript.Segment{VisualSegment: seg, VoiceFeatures: vf})
	}
	log.WithFields(log.Fields{"video_id": in.VideoID, "segments": len(final.Segments)}).Info("voice stage done")
	return final, nil
}
