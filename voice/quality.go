package voice

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// quality always reports zero-crossing statistics. The periodicity measures
// come from the voiced frames of the pitch track and are only reported when
// enough voiced material exists; otherwise they stay zero. Jitter and
// shimmer are frame-level approximations of the cycle-level definitions.
func quality(samples []float64, sr int, track pitchTrack, cfg Config) Quality {
	var q Quality
	fr := frames(samples, cfg.FrameLength, cfg.HopLength)
	if len(fr) > 0 {
		zcr := make([]float64, len(fr))
		for i, f := range fr {
			zcr[i] = zeroCrossingRate(f)
		}
		q.ZeroCrossingRateMean, q.ZeroCrossingRateStd = meanStd(zcr)
	}

	voiced := track.voiced()
	th := cfg.Thresholds
	voicedSeconds := float64(len(voiced)*track.hop) / float64(sr)
	if len(voiced) < th.QualityMinVoicedFrames || voicedSeconds < th.QualityMinVoicedSeconds {
		return q
	}

	f0 := make([]float64, len(voiced))
	periods := make([]float64, len(voiced))
	peaks := make([]float64, len(voiced))
	hnr := make([]float64, len(voiced))
	for i, v := range voiced {
		f0[i] = v.F0
		periods[i] = v.Period / float64(sr)
		peaks[i] = v.Peak
		r := math.Min(math.Max(v.Clarity, 1e-6), 1-1e-6)
		hnr[i] = 10 * math.Log10(r/(1-r))
	}

	q.JitterLocal = localPerturbation(periods)
	q.ShimmerLocal = localPerturbation(peaks)
	q.HNRMean, q.HNRStd = meanStd(hnr)
	q.F0Mean, q.F0Std = meanStd(f0)
	q.F0Min, q.F0Max = floats.Min(f0), floats.Max(f0)
	q.VoicedFraction = float64(len(voiced)) / float64(len(track.frames))
	return q
}

// localPerturbation is the mean absolute difference of consecutive values
// divided by the mean value.
func localPerturbation(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var diff float64
	for i := 1; i < len(x); i++ {
		diff += math.Abs(x[i] - x[i-1])
	}
	mean := floats.Sum(x) / float64(len(x))
	if mean == 0 {
		return 0
	}
	return diff / float64(len(x)-1) / mean
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(x); i++ {
		if (x[i] >= 0) != (x[i-1] >= 0) {
			n++
		}
	}
	return float64(n) / float64(len(x))
}
