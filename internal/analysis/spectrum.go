package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PowerSpectrum returns the magnitude of the real FFT of data sampled every
// dt, with the frequency in Hz of each bin. The mean is removed first.
func PowerSpectrum(data []float64, dt float64) (freqs, power []float64) {
	n := len(data)
	if n < 2 {
		return nil, nil
	}
	mean := 0.0
	for _, x := range data {
		mean += x
	}
	mean /= float64(n)
	centered := make([]float64, n)
	for i, x := range data {
		centered[i] = x - mean
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, centered)
	freqs = make([]float64, len(coeffs))
	power = make([]float64, len(coeffs))
	for i, c := range coeffs {
		freqs[i] = fft.Freq(i) / dt
		power[i] = cmplx.Abs(c)
	}
	return freqs, power
}

// DominantFrequency returns the frequency of the strongest non-DC bin, or 0
// for a constant signal.
func DominantFrequency(data []float64, dt float64) float64 {
	freqs, power := PowerSpectrum(data, dt)
	best, idx := 0.0, 0
	for i := 1; i < len(power); i++ {
		if power[i] > best {
			best, idx = power[i], i
		}
	}
	if idx == 0 {
		return 0
	}
	return freqs[idx]
}
