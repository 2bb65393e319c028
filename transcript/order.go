package transcript

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks that segments are chronological, non-overlapping and non-empty.
func Validate(segs []TextSegment) error {
	for i, s := range segs {
		if !(s.End > s.Start) {
			return fmt.Errorf("segment %d: end %.3f not after start %.3f", i, s.End, s.Start)
		}
		if i == 0 {
			continue
		}
		prev := segs[i-1]
		if !(s.Start > prev.Start) {
			return fmt.Errorf("segment %d: start %.3f not after previous start %.3f", i, s.Start, prev.Start)
		}
		if s.Start < prev.End {
			return fmt.Errorf("segment %d: overlaps previous segment ending at %.3f", i, prev.End)
		}
	}
	return nil
}

// Clean sorts raw recognizer segments by start, trims overlaps against the
// previous segment, and drops segments left with no duration or no text.
// Duration is recomputed from the trimmed bounds.
func Clean(segs []TextSegment) []TextSegment {
	sorted := slices.Clone(segs)
	slices.SortStableFunc(sorted, func(a, b TextSegment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := make([]TextSegment, 0, len(sorted))
	for _, s := range sorted {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if n := len(out); n > 0 && s.Start < out[n-1].End {
			s.Start = out[n-1].End
		}
		if !(s.End > s.Start) {
			continue
		}
		s.Duration = s.End - s.Start
		out = append(out, s)
	}
	return out
}

// FullText joins segment texts in order.
func FullText(segs []TextSegment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}
