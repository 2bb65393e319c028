package voice

import (
	log "github.com/sirupsen/logrus"
)

// Span is a speech region in seconds relative to the start of the slice.
type Span struct {
	Start float64
	End   float64
}

// VAD finds speech regions in a mono waveform.
type VAD interface {
	Speech(samples []float64, sampleRate int) ([]Span, error)
}

// EnergyVAD marks fixed windows whose RMS level exceeds ThresholdDB as
// speech and merges adjacent speech windows into spans.
type EnergyVAD struct {
	Window      float64 // seconds
	ThresholdDB float64
}

func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{Window: 0.03, ThresholdDB: -40}
}

func (v *EnergyVAD) Speech(samples []float64, sr int) ([]Span, error) {
	n := int(v.Window * float64(sr))
	if n <= 0 {
		n = 1
	}
	var spans []Span
	open := -1
	for i := 0; i < len(samples); i += n {
		end := min(i+n, len(samples))
		speech := toDB(rms(samples[i:end])) > v.ThresholdDB
		switch {
		case speech && open < 0:
			open = i
		case !speech && open >= 0:
			spans = append(spans, Span{Start: float64(open) / float64(sr), End: float64(i) / float64(sr)})
			open = -1
		}
	}
	if open >= 0 {
		spans = append(spans, Span{Start: float64(open) / float64(sr), End: float64(len(samples)) / float64(sr)})
	}
	return spans, nil
}

func (a *Analyzer) speech(samples []float64, sr int, lg *log.Entry) []Span {
	if a.vad != nil {
		spans, err := a.vad.Speech(samples, sr)
		if err == nil {
			return spans
		}
		lg.WithError(err).Warn("vad model failed, using energy detector")
	}
	spans, _ := a.fallback.Speech(samples, sr)
	return spans
}

// pauses measures silence before, between and after speech spans. A slice
// with no speech is one pause spanning its whole duration.
func (a *Analyzer) pauses(samples []float64, sr int, lg *log.Entry) Pauses {
	dur := float64(len(samples)) / float64(sr)
	if dur <= 0 {
		return Pauses{}
	}

	spans := a.speech(samples, sr, lg)
	var gaps []float64
	minPause := a.cfg.MinPause
	if len(spans) == 0 {
		gaps = []float64{dur}
		minPause = 0
	} else {
		cursor := 0.0
		for _, s := range spans {
			gaps = append(gaps, s.Start-cursor)
			cursor = s.End
		}
		gaps = append(gaps, dur-cursor)
	}

	var p Pauses
	for _, g := range gaps {
		if g < minPause || g <= 0 {
			continue
		}
		p.PauseCount++
		p.TotalPauseDuration += g
		p.LongestPause = max(p.LongestPause, g)
	}
	if p.PauseCount > 0 {
		p.MeanPauseDuration = p.TotalPauseDuration / float64(p.PauseCount)
	}
	p.PauseRate = float64(p.PauseCount) / dur * 60
	return p
}
