// Package dcunet assembles the Deep Complex U-Net speech enhancement model:
// STFT encoder, complex mask network, mask application and inverse STFT.
package dcunet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-dcunet/internal/complexnn"
	"github.com/example/go-dcunet/internal/runtime/tensor"
	"github.com/example/go-dcunet/internal/stft"
)

// Masker estimates complex masks [batch, sources, freq, frames] from a
// complex spectrum [batch, freq, frames].
type Masker interface {
	Forward(ctx context.Context, spec *complexnn.Tensor) (*complexnn.Tensor, error)
}

// Model runs waveforms through the full enhancement pipeline.
type Model struct {
	args    Args
	encoder *stft.Encoder
	decoder *stft.Decoder
	masker  Masker
}

// New builds a model from validated args and a mask estimator.
func New(args Args, masker Masker) (*Model, error) {
	if masker == nil {
		return nil, errors.New("dcunet: masker is required")
	}

	if err := args.Validate(); err != nil {
		return nil, err
	}

	fb, err := stft.NewFilterbank(args.STFTKernelSize, args.Stride(), args.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("dcunet: %w", err)
	}

	return &Model{
		args:    args,
		encoder: stft.NewEncoder(fb),
		decoder: stft.NewDecoder(fb),
		masker:  masker,
	}, nil
}

// ModelArgs returns the arguments needed to re-instantiate the model.
func (m *Model) ModelArgs() Args { return m.args }

func (m *Model) SampleRate() float64 { return m.args.SampleRate }

// Filterbank exposes the STFT configuration shared by encoder and decoder.
func (m *Model) Filterbank() *stft.Filterbank { return m.encoder.Filterbank() }

// ForwardEncoder maps wav ([time], [batch, time] or [batch, 1, time]) to a
// complex spectrum [batch, freq, frames]. The layout warning is logged and
// returned; it never fails the call.
func (m *Model) ForwardEncoder(wav *tensor.Tensor) (*complexnn.Tensor, complexnn.Warning, error) {
	x, err := asBatch(wav)
	if err != nil {
		return nil, complexnn.WarnNone, err
	}

	tf, err := m.encoder.Forward(x)
	if err != nil {
		return nil, complexnn.WarnNone, fmt.Errorf("dcunet: encoder: %w", err)
	}

	spec, warn, err := complexnn.AsComplex(complexnn.FromReal(tf))
	if err != nil {
		return nil, warn, fmt.Errorf("dcunet: encoder output: %w", err)
	}

	if warn != complexnn.WarnNone {
		slog.Warn("complex layout", "warning", warn.String(), "shape", tf.Shape())
	}

	return spec, warn, nil
}

// ApplyMasks multiplies masks [batch, sources, freq, frames] with tf
// [batch, freq, frames] and returns the legacy real layout
// [batch, sources, 2*freq, frames].
func (m *Model) ApplyMasks(tf, masks *complexnn.Tensor) (*tensor.Tensor, error) {
	if tf == nil || masks == nil {
		return nil, errors.New("dcunet: apply masks: nil input")
	}

	expanded, err := tf.Unsqueeze(1)
	if err != nil {
		return nil, fmt.Errorf("dcunet: apply masks: %w", err)
	}

	masked, err := complexnn.Mul(masks, expanded)
	if err != nil {
		return nil, fmt.Errorf("dcunet: apply masks: %w", err)
	}

	out, err := complexnn.ToLegacy(masked, complexnn.DefaultLegacyDim)
	if err != nil {
		return nil, fmt.Errorf("dcunet: apply masks: %w", err)
	}

	return out, nil
}

// Forward enhances wav and returns [batch, sources, time] with time equal to
// the input length. Inputs too short for the mask network are zero-padded
// and the output trimmed back.
func (m *Model) Forward(ctx context.Context, wav *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := asBatch(wav)
	if err != nil {
		return nil, err
	}

	n := x.Dim(-1)

	padded, err := x.PadDim(-1, m.paddedLength(n))
	if err != nil {
		return nil, err
	}

	tf, _, err := m.ForwardEncoder(padded)
	if err != nil {
		return nil, err
	}

	masks, err := m.masker.Forward(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("dcunet: masker: %w", err)
	}

	masked, err := m.ApplyMasks(tf, masks)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := m.decoder.Forward(masked)
	if err != nil {
		return nil, fmt.Errorf("dcunet: decoder: %w", err)
	}

	return out.PadDim(-1, n)
}

// paddedLength returns the signal length the encoder is run on. Signals
// shorter than one frame grow to a full frame. A two-frame spectrum would
// read as paired (re, im) along its last axis, so it grows to three frames.
func (m *Model) paddedLength(n int64) int64 {
	fb := m.encoder.Filterbank()
	kernel, stride := int64(fb.KernelSize()), int64(fb.Stride())

	n = max(n, kernel)
	if (n-kernel)/stride+1 == 2 {
		n = kernel + 2*stride
	}

	return n
}

// EnhanceSources runs a mono signal through the model and returns one
// waveform per source, each as long as samples.
func (m *Model) EnhanceSources(ctx context.Context, samples []float32) ([][]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("dcunet: empty input")
	}

	wav, err := tensor.New(samples, []int64{1, int64(len(samples))})
	if err != nil {
		return nil, err
	}

	out, err := m.Forward(ctx, wav)
	if err != nil {
		return nil, err
	}

	sources := int(out.Dim(1))
	data := out.RawData()
	n := len(samples)

	res := make([][]float32, sources)
	for s := range sources {
		res[s] = append([]float32(nil), data[s*n:(s+1)*n]...)
	}

	return res, nil
}

// Enhance returns the first estimated source for a mono signal.
func (m *Model) Enhance(ctx context.Context, samples []float32) ([]float32, error) {
	sources, err := m.EnhanceSources(ctx, samples)
	if err != nil {
		return nil, err
	}

	return sources[0], nil
}

func asBatch(wav *tensor.Tensor) (*tensor.Tensor, error) {
	if wav == nil {
		return nil, errors.New("dcunet: nil waveform")
	}

	switch wav.Rank() {
	case 1:
		return wav.Unsqueeze(0)
	case 2:
		return wav, nil
	case 3:
		if wav.Dim(1) != 1 {
			return nil, fmt.Errorf("dcunet: expected [batch, 1, time], got %v", wav.Shape())
		}

		return wav.Squeeze(1)
	default:
		return nil, fmt.Errorf("dcunet: waveform must be [time], [batch, time] or [batch, 1, time], got %v", wav.Shape())
	}
}
