// Package enhance wires a DCUNet model to WAV input and output for the CLI
// and the HTTP server.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/go-dcunet/internal/audio"
	"github.com/example/go-dcunet/internal/config"
	"github.com/example/go-dcunet/internal/dcunet"
	"github.com/example/go-dcunet/internal/runtime/ops"
)

// ErrSourceRange is returned when the requested source index does not exist.
var ErrSourceRange = errors.New("source index out of range")

type Service struct {
	model   *dcunet.Model
	backend string
	post    audio.PostProcess
	closer  func()
}

// NewService loads the model for cfg.Runtime.Backend.
func NewService(cfg config.Config) (*Service, error) {
	ops.SetConvWorkers(cfg.Runtime.Workers)

	model, backend, closer, err := loadModel(cfg)
	if err != nil {
		return nil, err
	}

	return &Service{
		model:   model,
		backend: backend,
		post:    postProcess(cfg.Audio),
		closer:  closer,
	}, nil
}

// NewServiceWithModel wraps an already built model.
func NewServiceWithModel(model *dcunet.Model, post audio.PostProcess) *Service {
	return &Service{model: model, backend: config.BackendNative, post: post, closer: func() {}}
}

func postProcess(ac config.AudioConfig) audio.PostProcess {
	return audio.PostProcess{
		DCBlock:       ac.DCBlock,
		PeakNormalize: ac.PeakNormalize,
		FadeMS:        ac.FadeMS,
	}
}

func (s *Service) Backend() string { return s.backend }

func (s *Service) ModelArgs() dcunet.Args { return s.model.ModelArgs() }

// SampleRate is the rate the model runs at, rounded to whole Hz.
func (s *Service) SampleRate() int {
	return int(math.Round(s.model.SampleRate()))
}

// EnhanceSamples enhances mono samples recorded at sampleRate and returns
// the selected source at the same rate and length.
func (s *Service) EnhanceSamples(ctx context.Context, samples []float32, sampleRate, source int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to enhance")
	}

	if source < 0 {
		return nil, fmt.Errorf("%w: %d", ErrSourceRange, source)
	}

	modelRate := s.SampleRate()

	in, err := audio.Resample(samples, sampleRate, modelRate)
	if err != nil {
		return nil, fmt.Errorf("resample input: %w", err)
	}

	start := time.Now()

	sources, err := s.model.EnhanceSources(ctx, in)
	if err != nil {
		return nil, err
	}

	if source >= len(sources) {
		return nil, fmt.Errorf("%w: %d (model has %d)", ErrSourceRange, source, len(sources))
	}

	slog.Debug("enhanced",
		"samples", len(in),
		"sources", len(sources),
		"ms", time.Since(start).Milliseconds(),
	)

	out, err := audio.Resample(sources[source], modelRate, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("resample output: %w", err)
	}

	out = fitLength(out, len(samples))

	return audio.ApplyHooks(out, s.post.Hooks(sampleRate)...), nil
}

// EnhanceWAV decodes a WAV file, enhances it and encodes the selected source
// as 16-bit mono PCM at the input sample rate.
func (s *Service) EnhanceWAV(ctx context.Context, wavData []byte, source int) ([]byte, error) {
	samples, rate, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, err
	}

	out, err := s.EnhanceSamples(ctx, samples, rate, source)
	if err != nil {
		return nil, err
	}

	return audio.EncodeWAV(out, rate)
}

func (s *Service) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func fitLength(samples []float32, n int) []float32 {
	if len(samples) >= n {
		return samples[:n]
	}

	return append(samples, make([]float32, n-len(samples))...)
}
