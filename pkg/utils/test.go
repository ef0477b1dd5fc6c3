package utils

import (
	"math"
	"math/rand"
	"sync"
)

// MockTransport implements the Transport interface for testing. It keeps
// every payload it receives so tests can inspect what the pipeline sent.
type MockTransport struct {
	mu       sync.Mutex
	messages []any
	closed   bool

	// SendErr, when set, is returned from every Send call.
	SendErr error
}

// Send stores the payload for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.messages = append(m.messages, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.messages))
	copy(out, m.messages)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = (math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2) * 0.9 // 440Hz fundamental + harmonics
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*frequency*t) * amplitude
	}
	return buffer
}

// GenerateDecayingSine returns a sine burst whose envelope falls off as
// exp(-t/tau), the rough shape of a struck drum.
func GenerateDecayingSine(size int, sampleRate, frequency, amplitude, tau float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Exp(-t/tau) * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateNoiseBurst returns uniform white noise under an exp(-t/tau)
// envelope. The same seed always yields the same samples.
func GenerateNoiseBurst(size int, sampleRate, amplitude, tau float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Exp(-t/tau) * (2*rng.Float64() - 1)
	}
	return buffer
}

// Mix sums the signals sample by sample. The result is as long as the
// longest input.
func Mix(signals ...[]float64) []float64 {
	n := 0
	for _, s := range signals {
		n = max(n, len(s))
	}
	out := make([]float64, n)
	for _, s := range signals {
		for i, v := range s {
			out[i] += v
		}
	}
	return out
}

// Place adds burst into dst starting at offset, dropping whatever falls past
// the end of dst.
func Place(dst, burst []float64, offset int) {
	for i, v := range burst {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= len(dst) {
			return
		}
		dst[j] += v
	}
}

func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
