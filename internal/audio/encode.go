package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// EncodeWAV encodes mono float32 samples as 16-bit PCM WAV at sampleRate.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	// wav.NewEncoder patches the header on Close, so it needs a seekable sink.
	sw := &seekBuffer{}

	enc := wav.NewEncoder(sw, sampleRate, OutputBitDepth, OutputChannels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           clampCopy(samples),
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: OutputChannels},
		SourceBitDepth: OutputBitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return sw.buf.Bytes(), nil
}

// clampCopy limits samples to [-1, 1] so enhanced peaks above full scale do
// not wrap when quantized.
func clampCopy(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = min(max(s, -1), 1)
	}

	return out
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	buf bytes.Buffer
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if s.pos == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += n
		return n, err
	}

	data := s.buf.Bytes()
	n := copy(data[s.pos:], p)
	if n < len(p) {
		s.buf.Write(p[n:])
	}
	s.pos += len(p)

	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(s.pos) + offset
	case io.SeekEnd:
		next = int64(s.buf.Len()) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("seek before start")
	}
	if next > int64(s.buf.Len()) {
		return 0, errors.New("seek past end")
	}
	s.pos = int(next)

	return next, nil
}
