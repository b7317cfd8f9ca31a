package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// makeWAV builds a minimal 16-bit PCM WAV file; frames holds one slice of
// per-channel int16 values per frame.
func makeWAV(sampleRate uint32, numChannels uint16, bitDepth uint16, frames [][]int16) []byte {
	blockAlign := numChannels * bitDepth / 8
	byteRate := sampleRate * uint32(blockAlign)
	dataSize := uint32(len(frames)) * uint32(blockAlign)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16)) // chunk size
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))  // PCM
	_ = binary.Write(buf, binary.LittleEndian, numChannels)
	_ = binary.Write(buf, binary.LittleEndian, sampleRate)
	_ = binary.Write(buf, binary.LittleEndian, byteRate)
	_ = binary.Write(buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(buf, binary.LittleEndian, bitDepth)

	// data chunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
	for _, frame := range frames {
		for _, v := range frame {
			_ = binary.Write(buf, binary.LittleEndian, v)
		}
	}

	return buf.Bytes()
}

func silentFrames(n, channels int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		frames[i] = make([]int16, channels)
	}

	return frames
}

func TestDecodeWAV(t *testing.T) {
	t.Run("decodes 16kHz mono", func(t *testing.T) {
		samples, rate, err := DecodeWAV(makeWAV(16000, 1, 16, silentFrames(100, 1)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(samples) != 100 {
			t.Errorf("got %d samples, want 100", len(samples))
		}
		if rate != 16000 {
			t.Errorf("rate = %d, want 16000", rate)
		}
	})

	t.Run("keeps any sample rate", func(t *testing.T) {
		_, rate, err := DecodeWAV(makeWAV(44100, 1, 16, silentFrames(10, 1)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rate != 44100 {
			t.Errorf("rate = %d, want 44100", rate)
		}
	})

	t.Run("mixes stereo down to mono", func(t *testing.T) {
		frames := [][]int16{{16384, 0}, {-16384, -16384}, {8192, 24576}}
		samples, _, err := DecodeWAV(makeWAV(16000, 2, 16, frames))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []float32{0.25, -0.5, 0.5}
		if len(samples) != len(want) {
			t.Fatalf("got %d samples, want %d", len(samples), len(want))
		}

		for i := range want {
			if math.Abs(float64(samples[i]-want[i])) > 1e-3 {
				t.Errorf("sample[%d] = %f, want %f", i, samples[i], want[i])
			}
		}
	})

	t.Run("rejects unsupported bit depth", func(t *testing.T) {
		_, _, err := DecodeWAV(makeWAV(16000, 1, 12, silentFrames(4, 1)))
		if !errors.Is(err, ErrFormatMismatch) {
			t.Fatalf("err = %v, want ErrFormatMismatch", err)
		}
	})

	t.Run("rejects invalid WAV data", func(t *testing.T) {
		_, _, err := DecodeWAV([]byte("not a wav file"))
		if !errors.Is(err, ErrInvalidWAV) {
			t.Fatalf("err = %v, want ErrInvalidWAV", err)
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, _, err := DecodeWAV(nil)
		if !errors.Is(err, ErrInvalidWAV) {
			t.Fatalf("err = %v, want ErrInvalidWAV", err)
		}
	})
}

func TestEncodeWAV(t *testing.T) {
	t.Run("produces valid WAV with RIFF header", func(t *testing.T) {
		data, err := EncodeWAV(make([]float32, 100), 16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(data) < 44 {
			t.Fatalf("WAV too short: %d bytes", len(data))
		}
		if string(data[:4]) != "RIFF" {
			t.Errorf("missing RIFF header")
		}
		if string(data[8:12]) != "WAVE" {
			t.Errorf("missing WAVE identifier")
		}
	})

	t.Run("encodes sample rate and channels", func(t *testing.T) {
		data, err := EncodeWAV(make([]float32, 50), 22050)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// Parse fmt chunk: sample rate at byte 24, channels at byte 22.
		sampleRate := binary.LittleEndian.Uint32(data[24:28])
		numChans := binary.LittleEndian.Uint16(data[22:24])
		bitDepth := binary.LittleEndian.Uint16(data[34:36])

		if sampleRate != 22050 {
			t.Errorf("sample rate = %d, want 22050", sampleRate)
		}
		if numChans != OutputChannels {
			t.Errorf("channels = %d, want %d", numChans, OutputChannels)
		}
		if bitDepth != OutputBitDepth {
			t.Errorf("bit depth = %d, want %d", bitDepth, OutputBitDepth)
		}
	})

	t.Run("rejects invalid sample rate", func(t *testing.T) {
		if _, err := EncodeWAV([]float32{0}, 0); err == nil {
			t.Fatal("expected error for rate 0")
		}
	})
}

func TestDecodeEncodeRoundtrip(t *testing.T) {
	original := []float32{0.0, 0.5, -0.5, 1.0, -1.0}
	encoded, err := EncodeWAV(original, 16000)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, rate, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}

	if len(decoded) != len(original) {
		t.Fatalf("roundtrip: got %d samples, want %d", len(decoded), len(original))
	}

	// 16-bit quantization introduces error up to ~1/32768.
	const tolerance = 1.0 / 32768.0 * 2
	for i, want := range original {
		got := decoded[i]
		if math.Abs(float64(got-want)) > tolerance {
			t.Errorf("sample[%d] = %f, want %f (tolerance %f)", i, got, want, tolerance)
		}
	}
}

func TestEncodeWAVClampsOverflow(t *testing.T) {
	encoded, err := EncodeWAV([]float32{1.8, -3}, 16000)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}

	decoded, _, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if decoded[0] < 0.99 || decoded[1] > -0.99 {
		t.Errorf("decoded = %v; want clamped to full scale", decoded)
	}
}

func TestDecodeWAVFormatError(t *testing.T) {
	wav := makeWAV(16000, 1, 16, silentFrames(4, 1))
	// Zero the channel count in the fmt chunk.
	binary.LittleEndian.PutUint16(wav[22:24], 0)

	_, _, err := DecodeWAV(wav)
	if err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestResample(t *testing.T) {
	const from, to = 16000, 8000

	in := make([]float32, from/10)
	for i := range in {
		in[i] = float32(0.5 * math.Sin(2*math.Pi*200*float64(i)/from))
	}

	out, err := Resample(in, from, to)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	if len(out) != len(in)/2 {
		t.Fatalf("len = %d, want %d", len(out), len(in)/2)
	}

	if rmsOf(out) == 0 {
		t.Fatal("resampled output is silent")
	}

	same, err := Resample(in, from, from)
	if err != nil {
		t.Fatalf("Resample same rate: %v", err)
	}

	if len(same) != len(in) || &same[0] == &in[0] {
		t.Fatal("same-rate resample should return a copy")
	}

	if _, err := Resample(in, 0, to); err == nil {
		t.Fatal("expected error for zero input rate")
	}
}

func TestResampleAlignment(t *testing.T) {
	tests := []struct {
		name     string
		rates    []int
		impulse  int
		wantPeak int
		tol      int
	}{
		{"44100 to 16000", []int{44100, 16000}, 8820, 3200, 1},
		{"16000 to 44100", []int{16000, 44100}, 3200, 8820, 2},
		{"44100 to 16000 to 44100", []int{44100, 16000, 44100}, 8820, 8820, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := make([]float32, 2*tt.impulse)
			sig[tt.impulse] = 1

			for i := 1; i < len(tt.rates); i++ {
				var err error

				sig, err = Resample(sig, tt.rates[i-1], tt.rates[i])
				if err != nil {
					t.Fatalf("Resample %d -> %d: %v", tt.rates[i-1], tt.rates[i], err)
				}
			}

			peak := 0
			for i, v := range sig {
				if math.Abs(float64(v)) > math.Abs(float64(sig[peak])) {
					peak = i
				}
			}

			if d := peak - tt.wantPeak; d < -tt.tol || d > tt.tol {
				t.Fatalf("peak at %d, want %d +/- %d", peak, tt.wantPeak, tt.tol)
			}
		})
	}
}

func TestResampleKeepsTail(t *testing.T) {
	const from, to = 44100, 16000

	in := make([]float32, from/10)
	for i := range in {
		in[i] = 1
	}

	out, err := Resample(in, from, to)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	if want := len(in) * to / from; len(out) != want {
		t.Fatalf("len = %d, want %d", len(out), want)
	}

	tail := out[len(out)-64:]
	lowest := tail[0]
	for _, v := range tail {
		lowest = min(lowest, v)
	}

	if lowest <= 0.25 {
		t.Fatalf("tail min = %.3f, want > 0.25", lowest)
	}
}
