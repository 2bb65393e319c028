package voice

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// yinThreshold is the cumulative-mean-normalized difference below which a
// lag is accepted as the period.
const yinThreshold = 0.1

// silenceRMS marks frames too quiet to carry pitch.
const silenceRMS = 1e-4

// pitchFrame is one analysis frame of the pitch track. F0 is NaN when the
// frame is unvoiced.
type pitchFrame struct {
	F0      float64
	Period  float64 // samples
	Peak    float64
	Clarity float64 // normalized autocorrelation at the period lag
}

type pitchTrack struct {
	frames []pitchFrame
	hop    int
	sr     int
}

func (t pitchTrack) voiced() []pitchFrame {
	var out []pitchFrame
	for _, f := range t.frames {
		if !math.IsNaN(f.F0) {
			out = append(out, f)
		}
	}
	return out
}

func (t pitchTrack) summary() Pitch {
	if len(t.frames) == 0 {
		return Pitch{}
	}
	v := t.voiced()
	p := Pitch{UnvoicedRatio: float64(len(t.frames)-len(v)) / float64(len(t.frames))}
	if len(v) == 0 {
		return p
	}
	f0 := make([]float64, len(v))
	for i, f := range v {
		f0[i] = f.F0
	}
	_, p.F0Std = meanStd(f0)
	p.F0Median = median(f0)
	p.F0Range = floats.Max(f0) - floats.Min(f0)
	return p
}

// trackPitch estimates F0 per frame with the YIN method, restricted to
// [cfg.FMin, cfg.FMax].
func trackPitch(samples []float64, sr int, cfg Config) pitchTrack {
	t := pitchTrack{hop: cfg.HopLength, sr: sr}
	tauMin := int(float64(sr) / cfg.FMax)
	tauMax := int(math.Ceil(float64(sr) / cfg.FMin))
	if tauMin < 2 {
		tauMin = 2
	}
	for _, fr := range frames(samples, cfg.FrameLength, cfg.HopLength) {
		t.frames = append(t.frames, yin(fr, sr, tauMin, tauMax))
	}
	return t
}

func yin(x []float64, sr, tauMin, tauMax int) pitchFrame {
	out := pitchFrame{F0: math.NaN(), Peak: peak(x)}
	if tauMax+2 > len(x) {
		tauMax = len(x) - 2
	}
	if tauMax <= tauMin || rms(x) < silenceRMS {
		return out
	}
	w := len(x) - tauMax

	// difference function and its cumulative mean normalization
	d := make([]float64, tauMax+1)
	for tau := 1; tau <= tauMax; tau++ {
		var s float64
		for j := 0; j < w; j++ {
			diff := x[j] - x[j+tau]
			s += diff * diff
		}
		d[tau] = s
	}
	cmnd := make([]float64, tauMax+1)
	cmnd[0] = 1
	var running float64
	for tau := 1; tau <= tauMax; tau++ {
		running += d[tau]
		if running == 0 {
			cmnd[tau] = 1
			continue
		}
		cmnd[tau] = d[tau] * float64(tau) / running
	}

	tau := -1
	for k := tauMin; k <= tauMax; k++ {
		if cmnd[k] < yinThreshold {
			for k+1 <= tauMax && cmnd[k+1] < cmnd[k] {
				k++
			}
			tau = k
			break
		}
	}
	if tau < 0 {
		return out
	}

	period := float64(tau)
	if tau > 1 && tau < tauMax {
		a, b, c := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
		if den := a - 2*b + c; den != 0 {
			period += 0.5 * (a - c) / den
		}
	}
	f0 := float64(sr) / period
	lo, hi := float64(sr)/float64(tauMax), float64(sr)/float64(tauMin)
	if f0 < lo || f0 > hi {
		return out
	}
	out.F0 = f0
	out.Period = period
	out.Clarity = clarity(x, tau)
	return out
}

// clarity is the normalized autocorrelation of x at lag tau, in [0, 1].
func clarity(x []float64, tau int) float64 {
	n := len(x) - tau
	if n <= 0 {
		return 0
	}
	a, b := x[:n], x[tau:]
	den := math.Sqrt(floats.Dot(a, a) * floats.Dot(b, b))
	if den == 0 {
		return 0
	}
	return math.Max(0, floats.Dot(a, b)/den)
}

func peak(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
