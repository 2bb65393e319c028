// Package voice computes per-segment prosody and voice-quality measurements
// from a mono waveform slice and its transcript text.
package voice

import (
	log "github.com/sirupsen/logrus"
)

// Thresholds is the single place where derived flags and the quality gate
// are tuned.
type Thresholds struct {
	TooQuietDB       float64 `yaml:"too_quiet_db"`
	MonotoneF0Std    float64 `yaml:"monotone_f0_std"`
	TooFastWPM       float64 `yaml:"too_fast_wpm"`
	ChoppyPauseRatio float64 `yaml:"choppy_pause_ratio"`
	// Periodicity measures need at least this many voiced pitch frames
	// covering at least QualityMinVoicedSeconds.
	QualityMinVoicedFrames  int     `yaml:"quality_min_voiced_frames"`
	QualityMinVoicedSeconds float64 `yaml:"quality_min_voiced_seconds"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TooQuietDB:              -35,
		MonotoneF0Std:           15,
		TooFastWPM:              160,
		ChoppyPauseRatio:        0.25,
		QualityMinVoicedFrames:  20,
		QualityMinVoicedSeconds: 0.3,
	}
}

type Config struct {
	FrameLength int     `yaml:"frame_length"`
	HopLength   int     `yaml:"hop_length"`
	FMin        float64 `yaml:"fmin"`
	FMax        float64 `yaml:"fmax"`
	// MinPause is the shortest silence gap, in seconds, counted as a pause.
	MinPause   float64    `yaml:"min_pause"`
	Thresholds Thresholds `yaml:"thresholds"`
}

func DefaultConfig() Config {
	return Config{
		FrameLength: 2048,
		HopLength:   512,
		FMin:        50,
		FMax:        500,
		MinPause:    0.1,
		Thresholds:  DefaultThresholds(),
	}
}

// Analyzer is safe for sequential use by one worker. vad may be a model
// backed detector; the energy detector is used when it is nil or fails.
type Analyzer struct {
	cfg      Config
	vad      VAD
	fallback VAD
}

func NewAnalyzer(cfg Config, vad VAD) *Analyzer {
	def := DefaultConfig()
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.HopLength <= 0 {
		cfg.HopLength = def.HopLength
	}
	if cfg.FMin <= 0 || cfg.FMax <= cfg.FMin {
		cfg.FMin, cfg.FMax = def.FMin, def.FMax
	}
	return &Analyzer{cfg: cfg, vad: vad, fallback: NewEnergyVAD()}
}

// AnalyzeSegment never fails: each measurement group that cannot be computed
// is logged and left at zero.
func (a *Analyzer) AnalyzeSegment(samples []float64, sampleRate int, text string, start, end float64) Features {
	var f Features
	lg := log.WithFields(log.Fields{"start": start, "end": end})

	if sampleRate <= 0 {
		lg.Warn("voice: invalid sample rate, audio measurements skipped")
		f.Rate = speakingRate(text, end-start)
		return f
	}

	var track pitchTrack
	guard(lg, "energy", func() { f.Energy = energy(samples, a.cfg.FrameLength, a.cfg.HopLength) })
	guard(lg, "pitch", func() {
		track = trackPitch(samples, sampleRate, a.cfg)
		f.Pitch = track.summary()
	})
	guard(lg, "rate", func() { f.Rate = speakingRate(text, end-start) })
	guard(lg, "pauses", func() { f.Pauses = a.pauses(samples, sampleRate, lg) })
	guard(lg, "spectral", func() { f.Spectral = spectral(samples, sampleRate, a.cfg.FrameLength, a.cfg.HopLength) })
	guard(lg, "quality", func() { f.Quality = quality(samples, sampleRate, track, a.cfg) })

	f.DerivedFlags = a.flags(f, float64(len(samples))/float64(sampleRate))
	return f
}

func (a *Analyzer) flags(f Features, audioDur float64) DerivedFlags {
	th := a.cfg.Thresholds
	d := DerivedFlags{
		TooQuiet: f.Energy.RMSDBMean < th.TooQuietDB,
		TooFast:  f.Rate.WordsPerMinute > th.TooFastWPM,
	}
	// no voiced frames means no pitch evidence either way
	if f.Pitch.F0Median > 0 {
		d.Monotone = f.Pitch.F0Std < th.MonotoneF0Std
	}
	if den := f.Pauses.TotalPauseDuration + audioDur; den > 0 {
		d.Choppy = f.Pauses.TotalPauseDuration/den > th.ChoppyPauseRatio
	}
	return d
}

func guard(lg *log.Entry, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			lg.WithField("measure", name).Warnf("voice measurement failed: %v", r)
		}
	}()
	fn()
}
