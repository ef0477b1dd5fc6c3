package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// Encode writes b to w as integer PCM WAV with the given bit depth (8, 16,
// 24 or 32). Samples are clamped to [-1, 1].
func Encode(w io.WriteSeeker, b *Buffer, bitDepth int) error {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	numChans := len(b.Channels)
	if numChans == 0 || b.SampleRate <= 0 {
		return fmt.Errorf("cannot encode an empty buffer")
	}

	frames := b.Frames()
	pcm := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChans,
			SampleRate:  b.SampleRate,
		},
		Data:           make([]int, frames*numChans),
		SourceBitDepth: bitDepth,
	}

	peak := float64(int64(1)<<(bitDepth-1) - 1)
	offset := 0
	if bitDepth == 8 {
		offset = 128 // 8-bit PCM is unsigned
	}
	for c, ch := range b.Channels {
		if len(ch) != frames {
			return fmt.Errorf("channel %d has %d samples, want %d", c, len(ch), frames)
		}
		for i, v := range ch {
			v = math.Max(-1, math.Min(1, v))
			pcm.Data[i*numChans+c] = int(math.Round(v*peak)) + offset
		}
	}

	enc := wav.NewEncoder(w, b.SampleRate, bitDepth, numChans, wavFormatPCM)
	if err := enc.Write(pcm); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}
	return enc.Close()
}

// WriteFile encodes b into a new WAV file at path.
func WriteFile(path string, b *Buffer, bitDepth int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(file, b, bitDepth); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
