// Package pitch estimates the fundamental frequency of monophonic audio chunks.
package pitch

import (
	"math"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Params tunes a single estimate.
type Params struct {
	Sensitivity   float64 // Minimum confidence for a frequency to be reported.
	SilenceFloor  float64 // RMS level below which a chunk is silence.
	MinFreq       float64 // Lowest detectable frequency in Hz.
	MaxFreq       float64 // Highest detectable frequency in Hz.
	PeakThreshold float64 // Fraction of the strongest peak the chosen peak must reach.
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Sensitivity:   0.8,
		SilenceFloor:  0.01,
		MinFreq:       80,
		MaxFreq:       800,
		PeakThreshold: 0.9,
	}
}

// Estimator computes pitch observations with an FFT based autocorrelation.
// Buffers are sized on first use and reused while the chunk length stays the same,
// so an Estimator must not be shared between goroutines.
type Estimator struct {
	size     int
	fftSize  int
	hann     []float64
	hannACF  []float64 // autocorrelation of the window, normalised to 1 at lag 0
	frame    []float64
	acf      []float64
	spectrum []complex128
}

// NewEstimator returns an estimator with no buffers allocated yet.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate analyses one chunk. It never panics on short, silent or non-finite input;
// those produce an observation without frequency.
func (e *Estimator) Estimate(chunk []float64, sampleRate int, p Params) contracts.PitchObservation {
	var obs contracts.PitchObservation
	if len(chunk) < 4 || sampleRate <= 0 || p.MinFreq <= 0 || p.MaxFreq <= p.MinFreq {
		return obs
	}

	rms, mean := levels(chunk)
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return obs
	}
	obs.RMS = rms
	if rms < p.SilenceFloor || rms == 0 {
		return obs
	}

	n := len(chunk)
	e.prepare(n)

	for i := range e.frame {
		e.frame[i] = 0
	}
	for i, s := range chunk {
		e.frame[i] = (s - mean) * e.hann[i]
	}
	autocorrelate(e.frame, e.acf, e.spectrum)

	r0 := e.acf[0]
	if r0 <= 0 {
		return obs
	}

	sr := float64(sampleRate)
	minLag := int(math.Floor(sr / p.MaxFreq))
	if minLag < 2 {
		minLag = 2
	}
	maxLag := int(math.Ceil(sr / p.MinFreq))
	// Beyond half the window the window correction is dominated by noise.
	if limit := n / 2; maxLag > limit {
		maxLag = limit
	}
	if maxLag-minLag < 2 {
		return obs
	}

	norm := e.acf[:maxLag+2]
	for tau := range norm {
		norm[tau] = (e.acf[tau] / r0) / e.hannACF[tau]
	}

	zc := firstNegative(norm, maxLag)
	if zc < 0 {
		return obs
	}
	start := max(minLag, zc)

	lag, ok := pickPeak(norm, start, maxLag, p.PeakThreshold)
	if !ok {
		return obs
	}

	refined, height := interpolate(norm, lag)
	if refined <= 0 || math.IsNaN(refined) {
		return obs
	}

	obs.Confidence = clamp01(height)
	if obs.Confidence < p.Sensitivity {
		return obs
	}
	obs.FrequencyHz = sr / refined
	return obs
}

// prepare (re)allocates buffers for chunks of n samples.
func (e *Estimator) prepare(n int) {
	if e.size == n {
		return
	}
	e.size = n
	e.fftSize = nextPow2(2 * n)
	e.hann = window.Hann(n)
	e.frame = make([]float64, e.fftSize)
	e.acf = make([]float64, e.fftSize)
	e.spectrum = make([]complex128, e.fftSize)

	copy(e.frame, e.hann)
	e.hannACF = make([]float64, e.fftSize)
	autocorrelate(e.frame, e.hannACF, e.spectrum)
	w0 := e.hannACF[0]
	for i := range e.hannACF {
		e.hannACF[i] /= w0
	}
}

// autocorrelate writes the linear autocorrelation of the zero padded frame into out
// using the Wiener-Khinchin relation.
func autocorrelate(frame, out []float64, spectrum []complex128) {
	x := fft.FFTReal(frame)
	for i, c := range x {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	r := fft.IFFT(spectrum)
	for i := range out {
		out[i] = real(r[i])
	}
}

// levels returns the RMS of the chunk with its mean removed, and the mean. A DC
// offset alone never lifts a chunk above the silence floor.
func levels(chunk []float64) (rms, mean float64) {
	var sum float64
	for _, s := range chunk {
		sum += s
	}
	n := float64(len(chunk))
	mean = sum / n

	var sq float64
	for _, s := range chunk {
		d := s - mean
		sq += d * d
	}
	return math.Sqrt(sq / n), mean
}

// firstNegative returns the first lag where the autocorrelation drops below zero,
// marking the end of the zero-lag lobe, or -1 when it never does up to maxLag.
func firstNegative(norm []float64, maxLag int) int {
	for tau := 1; tau <= maxLag; tau++ {
		if norm[tau] < 0 {
			return tau
		}
	}
	return -1
}

// pickPeak returns the first local maximum in [start, maxLag] whose height reaches
// threshold times the strongest local maximum in that range.
func pickPeak(norm []float64, start, maxLag int, threshold float64) (int, bool) {
	best := math.Inf(-1)
	for tau := start; tau <= maxLag; tau++ {
		if isPeak(norm, tau) && norm[tau] > best {
			best = norm[tau]
		}
	}
	if best <= 0 || math.IsInf(best, -1) {
		return 0, false
	}
	for tau := start; tau <= maxLag; tau++ {
		if isPeak(norm, tau) && norm[tau] >= threshold*best {
			return tau, true
		}
	}
	return 0, false
}

func isPeak(norm []float64, tau int) bool {
	return norm[tau] > norm[tau-1] && norm[tau] >= norm[tau+1]
}

// interpolate fits a parabola through the peak and its neighbours and returns the
// refined lag and peak height.
func interpolate(norm []float64, tau int) (float64, float64) {
	a, b, c := norm[tau-1], norm[tau], norm[tau+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(tau), b
	}
	delta := 0.5 * (a - c) / denom
	if delta > 0.5 {
		delta = 0.5
	} else if delta < -0.5 {
		delta = -0.5
	}
	return float64(tau) + delta, b - 0.25*(a-c)*delta
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
