package orchestrator

import (
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/speakwise/videosignal/transcript"
)

// spanTolerance absorbs float noise from a JSON round trip.
const spanTolerance = 1e-6

// checkAligned verifies a stage returned the same segments, in the same
// order, as it was given. Segments are the alignment key across modalities.
func checkAligned(want []transcript.TextSegment, got []transcript.TextSegment) error {
	if len(want) != len(got) {
		return fmt.Errorf("segment count changed: %d in, %d out", len(want), len(got))
	}
	for i := range want {
		if math.Abs(want[i].Start-got[i].Start) > spanTolerance || math.Abs(want[i].End-got[i].End) > spanTolerance {
			return fmt.Errorf("segment %d moved: [%.3f, %.3f] became [%.3f, %.3f]",
				i, want[i].Start, want[i].End, got[i].Start, got[i].End)
		}
	}
	return nil
}

func visualSpans(segs []transcript.VisualSegment) []transcript.TextSegment {
	out := make([]transcript.TextSegment, len(segs))
	for i, s := range segs {
		out[i] = s.TextSegment
	}
	return out
}

func finalSpans(segs []transcript.Segment) []transcript.TextSegment {
	out := make([]transcript.TextSegment, len(segs))
	for i, s := range segs {
		out[i] = s.TextSegment
	}
	return out
}

// logSummary prints one debug line per segment: speaking rate, detected
// face ratio and any raised voice flags.
func logSummary(lg *log.Entry, final *transcript.Final) {
	if !lg.Logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	for i, s := range final.Segments {
		faces := 0
		for _, fi := range s.VisualInfo {
			if fi.FaceFeatures.FaceDetected {
				faces++
			}
		}
		lg.WithFields(log.Fields{
			"segment": i,
			"start":   s.Start,
			"end":     s.End,
			"wpm":     s.VoiceFeatures.Rate.WordsPerMinute,
			"faces":   fmt.Sprintf("%d/%d", faces, len(s.VisualInfo)),
			"flags":   raisedFlags(s),
		}).Debug("segment summary")
	}
}

func raisedFlags(s transcript.Segment) string {
	f := s.VoiceFeatures.DerivedFlags
	var out []string
	if f.TooQuiet {
		out = append(out, "too_quiet")
	}
	if f.Monotone {
		out = append(out, "monotone")
	}
	if f.TooFast {
		out = append(out, "too_fast")
	}
	if f.Choppy {
		out = append(out, "choppy")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}
