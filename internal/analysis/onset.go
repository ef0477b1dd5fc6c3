// SPDX-License-Identifier: MIT
package analysis

import (
	"beatsketch/internal/fft"
)

// OnsetParams controls spectral-flux onset detection.
type OnsetParams struct {
	FrameSize       int     // Samples per analysis frame.
	HopSize         int     // Samples between consecutive frames.
	Threshold       float64 // Minimum normalized flux for a peak, 0-1.
	MinPeakDistance float64 // Minimum seconds between accepted onsets.
}

// DefaultOnsetParams returns the stock detector settings: 2048-sample frames,
// 512-sample hop, 0.3 threshold and 50ms minimum spacing.
func DefaultOnsetParams() OnsetParams {
	return OnsetParams{
		FrameSize:       2048,
		HopSize:         512,
		Threshold:       0.3,
		MinPeakDistance: 0.05,
	}
}

// SpectralFlux slides frames of p.FrameSize across samples every p.HopSize
// samples and returns, per frame, the summed positive change in spectral
// energy since the previous frame. The first frame has no predecessor and
// its flux is 0.
func SpectralFlux(samples []float64, p OnsetParams, t *fft.Transform) []float64 {
	if p.FrameSize <= 0 || p.HopSize <= 0 {
		return nil
	}

	half := t.Size() / 2
	prev := make([]float64, half)
	curr := make([]float64, half)
	var flux []float64

	for start := 0; start+p.FrameSize < len(samples); start += p.HopSize {
		t.SpectrumInto(curr, samples[start:start+p.FrameSize])
		if len(flux) == 0 {
			flux = append(flux, 0)
		} else {
			var f float64
			for k := range curr {
				if d := curr[k] - prev[k]; d > 0 {
					f += d
				}
			}
			flux = append(flux, f)
		}
		prev, curr = curr, prev
	}
	return flux
}

// DetectOnsets returns onset times in seconds, strictly increasing and at
// least p.MinPeakDistance apart. A frame is an onset when its normalized flux
// is a strict local maximum at or above p.Threshold. Candidates within
// MinPeakDistance of the last accepted onset are dropped.
func DetectOnsets(samples []float64, sampleRate int, p OnsetParams, t *fft.Transform) []float64 {
	if sampleRate <= 0 {
		return nil
	}

	flux := SpectralFlux(samples, p, t)
	var peak float64
	for _, f := range flux {
		peak = max(peak, f)
	}
	if peak == 0 {
		return nil
	}
	for i := range flux {
		flux[i] /= peak
	}

	minPeakSamples := int(p.MinPeakDistance * float64(sampleRate))
	lastOnset := -minPeakSamples
	var onsets []float64

	for i := 1; i < len(flux)-1; i++ {
		if flux[i] <= flux[i-1] || flux[i] <= flux[i+1] || flux[i] < p.Threshold {
			continue
		}
		pos := i * p.HopSize
		if pos-lastOnset < minPeakSamples {
			continue
		}
		onsets = append(onsets, float64(pos)/float64(sampleRate))
		lastOnset = pos
	}
	return onsets
}
