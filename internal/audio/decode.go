package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Output format written by EncodeWAV.
const (
	OutputChannels = 1
	OutputBitDepth = 16
)

// ErrFormatMismatch is returned when a WAV cannot be used as model input.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// ErrInvalidWAV is returned for input that is not a readable WAV file.
var ErrInvalidWAV = errors.New("invalid WAV file")

// DecodeWAV decodes PCM WAV bytes into mono float32 samples in [-1, 1] and
// returns them with the file's sample rate. Multi-channel audio is mixed
// down by averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: empty input", ErrInvalidWAV)
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}

	if dec.SampleRate == 0 {
		return nil, 0, fmt.Errorf("%w: sample rate 0", ErrFormatMismatch)
	}
	if dec.NumChans == 0 {
		return nil, 0, fmt.Errorf("%w: no channels", ErrFormatMismatch)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, 0, fmt.Errorf("%w: bit depth %d", ErrFormatMismatch, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	return mixdown(buf.Data, int(dec.NumChans)), int(dec.SampleRate), nil
}

func mixdown(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	scale := 1 / float32(channels)

	for i := range frames {
		var sum float32
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += v
		}

		out[i] = sum * scale
	}

	return out
}
