// Package transcribe turns the extracted audio track into time-stamped text
// segments mapped onto the video frame grid.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/clients"
	"github.com/speakwise/videosignal/transcript"
)

// ErrNoEngine is returned when no speech engine is configured.
var ErrNoEngine = errors.New("no speech recognition engine configured")

// Engine recognizes speech in a WAV file. Returned segments may be unsorted
// or overlap; Transcribe cleans them up.
type Engine interface {
	Recognize(ctx context.Context, audioPath string) ([]transcript.TextSegment, error)
}

// Transcribe runs engine over audioPath and builds the text transcript:
// cleaned chronological segments, their frame spans at meta.FPS, and the
// joined full text.
func Transcribe(ctx context.Context, engine Engine, audioPath string, meta transcript.VideoMetadata) (*transcript.TextTranscript, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	raw, err := engine.Recognize(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	segs := transcript.Clean(raw)
	if dropped := len(raw) - len(segs); dropped > 0 {
		log.WithField("dropped", dropped).Debug("transcribe: dropped empty or overlapping segments")
	}
	for i := range segs {
		segs[i].Frames = transcript.SpanFor(segs[i].Start, segs[i].End, meta.FPS)
	}
	if err := transcript.Validate(segs); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	return &transcript.TextTranscript{
		VideoMetadata: meta,
		Segments:      segs,
		FullText:      transcript.FullText(segs),
		AudioPath:     audioPath,
	}, nil
}

// HTTPEngine delegates recognition to the ASR service.
type HTTPEngine struct {
	Client *clients.HTTP
	URL    string
	Opts   clients.ASROptions
}

func (e *HTTPEngine) Recognize(ctx context.Context, audioPath string) ([]transcript.TextSegment, error) {
	resp, err := e.Client.ASR(ctx, e.URL, audioPath, e.Opts)
	if err != nil {
		return nil, err
	}
	out := make([]transcript.TextSegment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		out = append(out, transcript.TextSegment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return out, nil
}
