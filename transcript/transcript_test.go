package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestCleanProducesOrderedSegments(t *testing.T) {
	t.Parallel()

	raw := []TextSegment{
		{Start: 4, End: 6, Text: "third"},
		{Start: 0, End: 2.5, Text: " first "},
		{Start: 2, End: 4.2, Text: "second"},
		{Start: 5, End: 5.5, Text: "swallowed"},
		{Start: 7, End: 7, Text: "empty span"},
		{Start: 8, End: 9, Text: "   "},
	}
	segs := Clean(raw)

	require.NoError(t, Validate(segs))
	require.Len(t, segs, 3)
	assert.Equal(t, "first", segs[0].Text)
	assert.InDelta(t, 2.5, segs[1].Start, 1e-9)
	assert.InDelta(t, 1.7, segs[1].Duration, 1e-9)
	assert.InDelta(t, 4.2, segs[2].Start, 1e-9)
	assert.Equal(t, "first second third", FullText(segs))
}

func TestValidateRejectsDisorder(t *testing.T) {
	t.Parallel()

	assert.Error(t, Validate([]TextSegment{{Start: 1, End: 1}}))
	assert.Error(t, Validate([]TextSegment{{Start: 2, End: 3}, {Start: 1, End: 4}}))
	assert.Error(t, Validate([]TextSegment{{Start: 0, End: 3}, {Start: 2, End: 4}}))
	assert.NoError(t, Validate(nil))
}

func TestSpanFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FrameSpan{StartFrame: 15, EndFrame: 300, FrameCount: 285}, SpanFor(0.5, 10, 30))
	assert.Equal(t, 0, SpanFor(3, 2, 30).FrameCount)
}

func TestFinalKeepsEmptyVisualInfo(t *testing.T) {
	t.Parallel()

	f := Final{Segments: []Segment{{VisualSegment: VisualSegment{
		TextSegment: TextSegment{Start: 0, End: 1, Text: "hi", Duration: 1},
		VisualInfo:  []FrameInfo{},
	}}}}
	b, err := json.Marshal(f)
	require.NoError(t, err)

	for _, path := range []string{
		"segments.0.start",
		"segments.0.frames.frame_count",
		"segments.0.visual_info",
		"segments.0.voice_features.derived_flags.choppy",
		"segments.0.voice_features.quality.jitter_local",
		"metadata.video_properties.fps",
		"audio_metadata.sample_rate",
	} {
		assert.True(t, gjson.GetBytes(b, path).Exists(), path)
	}
	assert.True(t, gjson.GetBytes(b, "segments.0.visual_info").IsArray())
}
