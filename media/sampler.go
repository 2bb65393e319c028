package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"iter"
	"os/exec"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Stream is an opened video positioned by frame index.
type Stream interface {
	FPS() float64
	// Frame decodes the frame at index and returns it in RGB order.
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// Source opens independent streams; no decoder state is shared between them.
type Source interface {
	Open(ctx context.Context, path string) (Stream, error)
}

// Sampler yields frames at a fixed frame interval inside a time window.
type Sampler struct {
	src Source
}

func NewSampler(src Source) *Sampler {
	return &Sampler{src: src}
}

// SampleIndices lists the frame indices in [start*fps, end*fps) stepping by interval.
func SampleIndices(fps, start, end float64, interval int) []int {
	if fps <= 0 || interval <= 0 || end <= start {
		return nil
	}
	first := int(start * fps)
	last := int(end * fps)
	out := make([]int, 0, (last-first)/interval+1)
	for i := first; i < last; i += interval {
		out = append(out, i)
	}
	return out
}

// Sample returns a lazy sequence of (timestamp, frame) pairs. Each iteration
// reopens the source, so the sequence can be ranged over more than once.
// Frames that fail to decode are skipped.
func (s *Sampler) Sample(ctx context.Context, video string, start, end float64, interval int) iter.Seq2[float64, image.Image] {
	return func(yield func(float64, image.Image) bool) {
		st, err := s.src.Open(ctx, video)
		if err != nil {
			log.WithError(err).WithField("video", video).Warn("open video for sampling")
			return
		}
		defer st.Close()

		fps := st.FPS()
		for _, idx := range SampleIndices(fps, start, end, interval) {
			if ctx.Err() != nil {
				return
			}
			img, err := st.Frame(ctx, idx)
			if err != nil {
				log.WithError(err).WithField("frame", idx).Debug("skip undecodable frame")
				continue
			}
			if !yield(float64(idx)/fps, img) {
				return
			}
		}
	}
}

// FFmpegSource decodes single frames by seeking with ffmpeg.
type FFmpegSource struct {
	Tools Tools
}

func (s FFmpegSource) Open(ctx context.Context, path string) (Stream, error) {
	meta, err := s.Tools.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta.FrameWidth <= 0 || meta.FrameHeight <= 0 {
		return nil, fmt.Errorf("video %s: unknown frame size", path)
	}
	return &ffmpegStream{
		tools:  s.Tools,
		path:   path,
		fps:    meta.FPS,
		width:  meta.FrameWidth,
		height: meta.FrameHeight,
	}, nil
}

type ffmpegStream struct {
	tools         Tools
	path          string
	fps           float64
	width, height int
}

func (s *ffmpegStream) FPS() float64 { return s.fps }

func (s *ffmpegStream) Frame(ctx context.Context, index int) (image.Image, error) {
	ts := strconv.FormatFloat(float64(index)/s.fps, 'f', 6, 64)
	cmd := exec.CommandContext(ctx, s.tools.ffmpeg(),
		"-v", "error",
		"-ss", ts,
		"-i", s.path,
		"-frames:v", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame %d error: %v, output: %s", index, err, stderr.String())
	}
	return rgbToImage(bytes.NewReader(out), s.width, s.height)
}

func (s *ffmpegStream) Close() error { return nil }

// rgbToImage reads one packed rgb24 frame.
func rgbToImage(r io.Reader, w, h int) (image.Image, error) {
	raw := make([]byte, w*h*3)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("short frame: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(raw); i += 3 {
		img.Pix[j] = raw[i]
		img.Pix[j+1] = raw[i+1]
		img.Pix[j+2] = raw[i+2]
		img.Pix[j+3] = 0xff
		j += 4
	}
	return img, nil
}
