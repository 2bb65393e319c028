// Package transcript holds the records that flow between pipeline stages.
// Each stage returns a superset of the record it received: TextSegment is
// enriched into VisualSegment, which is enriched into Segment.
package transcript

import (
	"github.com/speakwise/videosignal/face"
	"github.com/speakwise/videosignal/voice"
)

type VideoMetadata struct {
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	DurationSeconds float64 `json:"duration_seconds"`
	FrameWidth      int     `json:"frame_width"`
	FrameHeight     int     `json:"frame_height"`
}

// FrameSpan maps a segment onto frame indices of the source video.
type FrameSpan struct {
	StartFrame int `json:"start_frame"`
	EndFrame   int `json:"end_frame"`
	FrameCount int `json:"frame_count"`
}

// SpanFor converts a [start, end) time window into frame indices at fps.
func SpanFor(start, end, fps float64) FrameSpan {
	sf, ef := int(start*fps), int(end*fps)
	return FrameSpan{StartFrame: sf, EndFrame: ef, FrameCount: max(ef-sf, 0)}
}

type TextSegment struct {
	Start    float64   `json:"start"`
	End      float64   `json:"end"`
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Frames   FrameSpan `json:"frames"`
}

type FrameInfo struct {
	FrameTime    float64       `json:"frame_time"`
	FaceFeatures face.Features `json:"face_features"`
}

type VisualSegment struct {
	TextSegment
	VisualInfo []FrameInfo `json:"visual_info"`
}

type Segment struct {
	VisualSegment
	VoiceFeatures voice.Features `json:"voice_features"`
}

type TextTranscript struct {
	VideoMetadata VideoMetadata `json:"video_metadata"`
	Segments      []TextSegment `json:"segments"`
	FullText      string        `json:"full_text"`
	AudioPath     string        `json:"audio_path,omitempty"`
}

type VideoProperties struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

type Metadata struct {
	TotalSegments   int             `json:"total_segments"`
	FrameInterval   int             `json:"frame_interval"`
	VideoProperties VideoProperties `json:"video_properties"`
	VideoMetadata   *VideoMetadata  `json:"video_metadata,omitempty"`
	FullText        string          `json:"full_text,omitempty"`
}

// ImagesTranscript is the frames-stage output. The remote executor returns
// the same shape, optionally with an error string instead of segments.
type ImagesTranscript struct {
	Segments []VisualSegment `json:"segments"`
	Metadata Metadata        `json:"metadata"`
	Error    string          `json:"error,omitempty"`
}

type AudioMetadata struct {
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	NumSamples      int     `json:"num_samples"`
	AudioPath       string  `json:"audio_path"`
}

type Final struct {
	Segments      []Segment     `json:"segments"`
	Metadata      Metadata      `json:"metadata"`
	AudioMetadata AudioMetadata `json:"audio_metadata"`
}

func NewMetadata(meta VideoMetadata, segments, frameInterval int) Metadata {
	return Metadata{
		TotalSegments: segments,
		FrameInterval: frameInterval,
		VideoProperties: VideoProperties{
			Width:  meta.FrameWidth,
			Height: meta.FrameHeight,
			FPS:    meta.FPS,
		},
	}
}
