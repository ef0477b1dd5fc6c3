// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"beatsketch/internal/beat"
	"beatsketch/internal/fft"
)

const (
	// DefaultFeatureWindow is the analysis window after each onset, in seconds.
	DefaultFeatureWindow = 0.05

	durationThreshold = 0.1   // Amplitude above which a sample counts as sounding.
	durationCap       = 0.5   // Longest duration reported, seconds.
	durationGap       = 0.01  // Silence after this many seconds ends the scan.
	attackLevel       = 0.8   // Fraction of peak that marks the end of the attack.
	sustainWindow     = 0.015 // Averaging window for sustain and tail, seconds.
	tailOffset        = 0.05  // Tail window starts this long after the peak.
	bandFloor         = 0.0001
)

// ExtractFeatures computes the feature vector for the onset at onset seconds,
// looking at window seconds of samples (clamped to the end of the buffer).
// An onset at or past the end of the buffer yields zero Features.
func ExtractFeatures(samples []float64, sampleRate int, onset, window float64, t *fft.Transform) beat.Features {
	if sampleRate <= 0 || onset < 0 {
		return beat.Features{}
	}
	start := int(onset * float64(sampleRate))
	if start >= len(samples) {
		return beat.Features{}
	}
	end := min(start+int(window*float64(sampleRate)), len(samples))
	if end <= start {
		return beat.Features{}
	}
	win := samples[start:end]

	var f beat.Features
	f.SetBands(bandEnergies(t.Spectrum(win), t.BinWidth(sampleRate)))
	f.Noisiness = zeroCrossingRate(win)
	f.Duration = soundingDuration(samples, start, sampleRate)

	peak, peakIndex := peakAmplitude(win)
	if rms := calculateRMS(win); rms > 0 {
		f.CrestFactor = peak / rms
	}
	if peak > 0 {
		f.AttackTime = float64(attackIndex(win, peak, peakIndex)) / float64(sampleRate)
		f.DecayRatio = decayRatio(win, peakIndex, sampleRate)
	}
	return f
}

// bandEnergies averages spectrum bins inside each band and scales the six
// values so the loudest band is 1. Band bins run from floor(low/binWidth) up
// to, not including, ceil(high/binWidth).
func bandEnergies(spectrum []float64, binWidth float64) [beat.BandCount]float64 {
	var e [beat.BandCount]float64
	loudest := bandFloor
	for i, band := range beat.Bands {
		lo := int(math.Floor(band.LowHz / binWidth))
		hi := min(int(math.Ceil(band.HighHz/binWidth)), len(spectrum))
		if hi <= lo {
			continue
		}
		var sum float64
		for _, v := range spectrum[lo:hi] {
			sum += v
		}
		e[i] = sum / float64(hi-lo)
		loudest = max(loudest, e[i])
	}
	for i := range e {
		e[i] /= loudest
	}
	return e
}

// zeroCrossingRate is the number of sign changes divided by the window length.
func zeroCrossingRate(win []float64) float64 {
	if len(win) == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(win); i++ {
		if (win[i-1] >= 0) != (win[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(win))
}

// soundingDuration scans up to durationCap seconds from start and returns the
// time to the last sample louder than durationThreshold. The scan stops at
// the first quiet sample more than durationGap seconds after start.
func soundingDuration(samples []float64, start, sampleRate int) float64 {
	limit := min(start+int(durationCap*float64(sampleRate)), len(samples))
	gap := float64(sampleRate) * durationGap
	var duration float64
	for i := start; i < limit; i++ {
		if math.Abs(samples[i]) > durationThreshold {
			duration = float64(i-start) / float64(sampleRate)
		} else if float64(i-start) > gap {
			break
		}
	}
	return duration
}

// peakAmplitude returns the largest absolute sample and its index.
func peakAmplitude(win []float64) (float64, int) {
	var peak float64
	idx := 0
	for i, v := range win {
		if a := math.Abs(v); a > peak {
			peak, idx = a, i
		}
	}
	return peak, idx
}

// calculateRMS calculates the Root Mean Square energy of the window.
func calculateRMS(win []float64) float64 {
	if len(win) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range win {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(win)))
}

// attackIndex is the first index up to the peak whose amplitude reaches
// attackLevel of the peak.
func attackIndex(win []float64, peak float64, peakIndex int) int {
	target := peak * attackLevel
	for i := 0; i <= peakIndex; i++ {
		if math.Abs(win[i]) >= target {
			return i
		}
	}
	return peakIndex
}

// decayRatio compares the mean amplitude of a short tail window tailOffset
// after the peak to the same-length window right at the peak, clamped to
// [0,1]. It is 0 when the sustain window is effectively silent.
func decayRatio(win []float64, peakIndex, sampleRate int) float64 {
	n := max(1, int(float64(sampleRate)*sustainWindow))
	offset := max(1, int(float64(sampleRate)*tailOffset))
	sustain := meanAbs(win, peakIndex, n)
	if sustain <= 1e-6 {
		return 0
	}
	tail := meanAbs(win, peakIndex+offset, n)
	return math.Min(math.Max(tail/sustain, 0), 1)
}

// meanAbs averages |win[i]| over n samples from start, truncated at the end
// of win. Out of range windows average to 0.
func meanAbs(win []float64, start, n int) float64 {
	if start >= len(win) {
		return 0
	}
	end := min(start+n, len(win))
	var sum float64
	for _, v := range win[start:end] {
		sum += math.Abs(v)
	}
	return sum / float64(end-start)
}
