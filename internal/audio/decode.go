package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
)

// DefaultMaxBytes is the largest file accepted for analysis.
const DefaultMaxBytes = 5 << 20

// AllowedMIMETypes are the declared content types accepted for WAV input.
var AllowedMIMETypes = []string{"audio/wav", "audio/x-wav", "audio/wave"}

var (
	ErrUnsupportedType = errors.New("unsupported audio type")
	ErrTooLarge        = errors.New("audio file too large")
	ErrDecode          = errors.New("could not decode audio")
)

// Decode reads a WAV file from r. declaredMIME, when not empty, must be one
// of AllowedMIMETypes; the content itself must sniff as WAV either way.
// Inputs larger than maxBytes fail with ErrTooLarge (maxBytes <= 0 means
// DefaultMaxBytes).
func Decode(r io.Reader, declaredMIME string, maxBytes int64) (*Buffer, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if declaredMIME != "" && !MIMEAllowed(declaredMIME) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, declaredMIME)
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading input: %v", ErrDecode, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(maxBytes)))
	}

	if m := mimetype.Detect(data); !m.Is("audio/wav") {
		return nil, fmt.Errorf("%w: content is %s", ErrUnsupportedType, m.String())
	}
	return decodeWAV(data)
}

// Open decodes the WAV file at path. The file extension stands in for the
// declared content type.
func Open(path string, maxBytes int64) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, typeByExtension(path), maxBytes)
}

// MIMEAllowed reports whether the declared content type (parameters are
// ignored) is one of AllowedMIMETypes.
func MIMEAllowed(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, a := range AllowedMIMETypes {
		if mt == a {
			return true
		}
	}
	return false
}

func typeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".wave":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

const wavFormatFloat = 3

func decodeWAV(data []byte) (*Buffer, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}
	if d.WavAudioFormat == wavFormatFloat {
		return nil, fmt.Errorf("%w: floating point WAV is not supported", ErrDecode)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	numChans := int(d.NumChans)
	bitDepth := int(d.BitDepth)
	if numChans <= 0 || d.SampleRate == 0 || bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: bad header (%d channels, %d Hz, %d bits)", ErrDecode, numChans, d.SampleRate, bitDepth)
	}

	frames := len(pcm.Data) / numChans
	chans := make([][]float64, numChans)
	for c := range chans {
		chans[c] = make([]float64, frames)
	}

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		offset = 128 // 8-bit PCM is unsigned
	}
	for i := 0; i < frames*numChans; i++ {
		chans[i%numChans][i/numChans] = (float64(pcm.Data[i]) - offset) / scale
	}

	return &Buffer{SampleRate: int(d.SampleRate), Channels: chans}, nil
}
