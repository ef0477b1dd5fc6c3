// SPDX-License-Identifier: MIT
package fft

import (
	"beatsketch/pkg/bitint"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// DefaultSize is the transform length used by onset detection and feature
// extraction.
const DefaultSize = 1024

// workspace holds pre-allocated buffers for FFT calculations.
type workspace struct {
	input     []float64    // ...for windowed input samples
	fftOutput []complex128 // ...for FFT complex output (N/2+1 bins)
	window    []float64    // ...for Hann window coefficients
}

// Transform turns a frame of samples into a power spectrum of length N/2.
// It reuses its workspace between calls and is not safe for concurrent use.
type Transform struct {
	size      int
	fftObj    *fourier.FFT
	workspace workspace
}

// NewTransform creates a transform of the given size, which must be a power
// of 2. The Hann window coefficients are computed once here.
func NewTransform(size int) (*Transform, error) {
	if !bitint.IsPowerOfTwo(size) || size < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2 >= 2, got %d", size)
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Hann(coeffs)

	return &Transform{
		size:   size,
		fftObj: fourier.NewFFT(size),
		workspace: workspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, size/2+1),
			window:    coeffs,
		},
	}, nil
}

// Size returns the transform length N.
func (t *Transform) Size() int {
	return t.size
}

// BinWidth returns the frequency resolution in Hz of one spectrum bin.
func (t *Transform) BinWidth(sampleRate int) float64 {
	return float64(sampleRate) / float64(t.size)
}

// Spectrum returns a newly allocated power spectrum of length N/2 for frame.
// See SpectrumInto.
func (t *Transform) Spectrum(frame []float64) []float64 {
	return t.SpectrumInto(make([]float64, t.size/2), frame)
}

// SpectrumInto writes the power spectrum of frame into dst and returns it.
// Frames longer than N are decimated to N samples by nearest-index picking
// (no anti-alias filter); shorter frames are zero-padded. The Hann window is
// applied before the transform and each bin is (re²+im²)/N. dst must hold
// at least N/2 values.
func (t *Transform) SpectrumInto(dst, frame []float64) []float64 {
	in := t.workspace.input
	n := t.size

	if len(frame) >= n {
		step := float64(len(frame)) / float64(n)
		for i := range n {
			in[i] = frame[int(float64(i)*step)] * t.workspace.window[i]
		}
	} else {
		for i := range n {
			if i < len(frame) {
				in[i] = frame[i] * t.workspace.window[i]
			} else {
				in[i] = 0 // zero-pad
			}
		}
	}

	out := t.fftObj.Coefficients(t.workspace.fftOutput, in)

	dst = dst[:n/2]
	norm := 1 / float64(n)
	for k := range dst {
		re, im := real(out[k]), imag(out[k])
		dst[k] = (re*re + im*im) * norm
	}
	return dst
}
