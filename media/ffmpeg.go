package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/transcript"
)

// ErrAudioExtraction marks a failure to pull the audio track out of a video.
// Without audio there is no transcript, so callers treat it as fatal.
var ErrAudioExtraction = errors.New("audio extraction failed")

// Tools locates the ffmpeg and ffprobe binaries.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

func (t Tools) ffmpeg() string {
	if t.FFmpeg == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func (t Tools) ffprobe() string {
	if t.FFprobe == "" {
		return "ffprobe"
	}
	return t.FFprobe
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads fps, frame count, duration and frame size of the first video stream.
func (t Tools) Probe(ctx context.Context, path string) (transcript.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, t.ffprobe(),
		"-v", "error",
		"-print_format", "json",
		"-show_streams", "-show_format",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return transcript.VideoMetadata{}, fmt.Errorf("ffprobe error: %v, output: %s", err, stderr.String())
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (transcript.VideoMetadata, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return transcript.VideoMetadata{}, fmt.Errorf("ffprobe decode: %w", err)
	}

	var meta transcript.VideoMetadata
	found := false
	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		meta.FrameWidth = s.Width
		meta.FrameHeight = s.Height
		meta.FPS = parseRate(s.AvgFrameRate)
		if meta.FPS <= 0 {
			meta.FPS = parseRate(s.RFrameRate)
		}
		meta.DurationSeconds = parseFloat(s.Duration)
		if n, err := strconv.Atoi(s.NbFrames); err == nil {
			meta.TotalFrames = n
		}
		break
	}
	if !found {
		return transcript.VideoMetadata{}, errors.New("ffprobe: no video stream")
	}
	if meta.FPS <= 0 {
		return transcript.VideoMetadata{}, errors.New("ffprobe: unknown frame rate")
	}
	if meta.DurationSeconds <= 0 {
		meta.DurationSeconds = parseFloat(p.Format.Duration)
	}
	// webm and other containers often omit nb_frames
	if meta.TotalFrames <= 0 {
		meta.TotalFrames = int(meta.DurationSeconds * meta.FPS)
	}
	if meta.DurationSeconds <= 0 && meta.TotalFrames > 0 {
		meta.DurationSeconds = float64(meta.TotalFrames) / meta.FPS
	}
	return meta, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ExtractAudio writes the audio track of video to dst as mono 16-bit PCM WAV.
func (t Tools) ExtractAudio(ctx context.Context, video, dst string, sampleRate int) error {
	cmd := exec.CommandContext(ctx, t.ffmpeg(), "-y",
		"-v", "error",
		"-i", video,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-acodec", "pcm_s16le",
		dst,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: ffmpeg error: %v, output: %s", ErrAudioExtraction, err, string(out))
	}
	log.WithFields(log.Fields{"video": video, "audio": dst}).Debug("audio extracted")
	return nil
}
