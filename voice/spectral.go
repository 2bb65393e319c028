package voice

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

const rolloffPercent = 0.85

// spectral averages frame-wise centroid, bandwidth, rolloff and flatness of
// the Hann-windowed magnitude spectrum. Silent frames are left out.
func spectral(samples []float64, sr, frameLen, hop int) Spectral {
	fr := frames(samples, frameLen, hop)
	if len(fr) == 0 {
		return Spectral{}
	}

	fft := fourier.NewFFT(frameLen)
	win := hann(frameLen)
	buf := make([]float64, frameLen)
	var coeffs []complex128
	bins := frameLen/2 + 1
	mag := make([]float64, bins)
	freq := make([]float64, bins)
	for k := range freq {
		freq[k] = float64(k) * float64(sr) / float64(frameLen)
	}

	var sum Spectral
	n := 0
	for _, f := range fr {
		clear(buf)
		for i := 0; i < len(f) && i < frameLen; i++ {
			buf[i] = f[i] * win[i]
		}
		coeffs = fft.Coefficients(coeffs, buf)

		var total float64
		for k := 0; k < bins; k++ {
			mag[k] = math.Hypot(real(coeffs[k]), imag(coeffs[k]))
			total += mag[k]
		}
		if total <= eps {
			continue
		}

		var centroid float64
		for k := range mag {
			centroid += freq[k] * mag[k]
		}
		centroid /= total

		var spread float64
		for k := range mag {
			d := freq[k] - centroid
			spread += mag[k] * d * d
		}

		var acc, rolloff float64
		for k := range mag {
			acc += mag[k]
			if acc >= rolloffPercent*total {
				rolloff = freq[k]
				break
			}
		}

		var logSum, powSum float64
		for k := range mag {
			p := mag[k]*mag[k] + eps
			logSum += math.Log(p)
			powSum += p
		}
		flatness := math.Exp(logSum/float64(bins)) / (powSum / float64(bins))

		sum.CentroidMean += centroid
		sum.BandwidthMean += math.Sqrt(spread / total)
		sum.RolloffMean += rolloff
		sum.FlatnessMean += flatness
		n++
	}
	if n == 0 {
		return Spectral{}
	}
	k := float64(n)
	return Spectral{
		CentroidMean:  sum.CentroidMean / k,
		BandwidthMean: sum.BandwidthMean / k,
		RolloffMean:   sum.RolloffMean / k,
		FlatnessMean:  sum.FlatnessMean / k,
	}
}
