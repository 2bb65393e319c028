package voice

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const eps = 1e-10

// frames splits x into frameLen windows every hop samples. A signal shorter
// than one frame yields a single short frame.
func frames(x []float64, frameLen, hop int) [][]float64 {
	if len(x) == 0 {
		return nil
	}
	if len(x) <= frameLen {
		return [][]float64{x}
	}
	out := make([][]float64, 0, (len(x)-frameLen)/hop+1)
	for i := 0; i+frameLen <= len(x); i += hop {
		out = append(out, x[i:i+frameLen])
	}
	return out
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(x, x) / float64(len(x)))
}

func toDB(v float64) float64 { return 20 * math.Log10(v+eps) }

func meanStd(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := slices.Clone(x)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func energy(samples []float64, frameLen, hop int) Energy {
	fr := frames(samples, frameLen, hop)
	if len(fr) == 0 {
		return Energy{}
	}
	vals := make([]float64, len(fr))
	for i, f := range fr {
		vals[i] = rms(f)
	}
	mean, std := meanStd(vals)
	return Energy{
		RMSMean:   mean,
		RMSDBMean: toDB(mean),
		RMSStd:    std,
		RMSMax:    floats.Max(vals),
	}
}
