// Package audio loads WAV recordings into float sample buffers for analysis
// and writes buffers back out as WAV.
package audio

// Buffer is a decoded recording: one float64 slice per channel, samples in
// [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float64
}

// NewMono wraps a single channel of samples.
func NewMono(sampleRate int, samples []float64) *Buffer {
	return &Buffer{SampleRate: sampleRate, Channels: [][]float64{samples}}
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Channel returns channel i, or nil when it does not exist.
func (b *Buffer) Channel(i int) []float64 {
	if b == nil || i < 0 || i >= len(b.Channels) {
		return nil
	}
	return b.Channels[i]
}
