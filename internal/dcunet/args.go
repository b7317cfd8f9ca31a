package dcunet

import (
	"encoding/json"
	"fmt"

	"github.com/example/go-dcunet/internal/masknet"
)

const (
	DefaultArchitecture   = "DCUNet-10"
	DefaultSTFTKernelSize = 512
	DefaultSampleRate     = 16000.0
)

// Args is everything needed to re-instantiate a model. STFTStride and
// MasknetKwargs stay nil when unset so that the persisted mapping keeps
// the null values it was created with.
type Args struct {
	Architecture   string         `json:"architecture"`
	STFTKernelSize int            `json:"stft_kernel_size"`
	STFTStride     *int           `json:"stft_stride"`
	SampleRate     float64        `json:"sample_rate"`
	MasknetKwargs  map[string]any `json:"masknet_kwargs"`
}

// DefaultArgs returns DCUNet-10 on a 512-point STFT at 16 kHz.
func DefaultArgs() Args {
	return Args{
		Architecture:   DefaultArchitecture,
		STFTKernelSize: DefaultSTFTKernelSize,
		SampleRate:     DefaultSampleRate,
	}
}

// Validate fills zero-valued fields with defaults and checks that the args
// describe a buildable model.
func (a *Args) Validate() error {
	if a.Architecture == "" {
		a.Architecture = DefaultArchitecture
	}

	if a.STFTKernelSize == 0 {
		a.STFTKernelSize = DefaultSTFTKernelSize
	}

	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}

	if _, err := masknet.Lookup(a.Architecture); err != nil {
		return err
	}

	if a.STFTKernelSize < 2 || a.STFTKernelSize%2 != 0 {
		return fmt.Errorf("dcunet: stft_kernel_size must be even and >= 2, got %d", a.STFTKernelSize)
	}

	if a.STFTStride != nil && (*a.STFTStride < 1 || *a.STFTStride > a.STFTKernelSize) {
		return fmt.Errorf("dcunet: stft_stride must be in [1, %d], got %d", a.STFTKernelSize, *a.STFTStride)
	}

	if a.SampleRate < 0 {
		return fmt.Errorf("dcunet: sample_rate must be positive, got %v", a.SampleRate)
	}

	if _, err := masknet.ParseOptions(a.MasknetKwargs); err != nil {
		return fmt.Errorf("dcunet: masknet_kwargs: %w", err)
	}

	return nil
}

// Stride returns the hop length, defaulting to half the kernel.
func (a Args) Stride() int {
	if a.STFTStride != nil {
		return *a.STFTStride
	}

	return a.STFTKernelSize / 2
}

// MaskOptions parses MasknetKwargs.
func (a Args) MaskOptions() (masknet.Options, error) {
	return masknet.ParseOptions(a.MasknetKwargs)
}

// Map returns the args as a plain mapping keyed like the JSON encoding.
func (a Args) Map() map[string]any {
	var stride any
	if a.STFTStride != nil {
		stride = *a.STFTStride
	}

	var kwargs any
	if a.MasknetKwargs != nil {
		cp := make(map[string]any, len(a.MasknetKwargs))
		for k, v := range a.MasknetKwargs {
			cp[k] = v
		}

		kwargs = cp
	}

	return map[string]any{
		"architecture":     a.Architecture,
		"stft_kernel_size": a.STFTKernelSize,
		"stft_stride":      stride,
		"sample_rate":      a.SampleRate,
		"masknet_kwargs":   kwargs,
	}
}

// ParseArgs decodes the JSON form produced by json.Marshal(Args).
func ParseArgs(data []byte) (Args, error) {
	var a Args
	if err := json.Unmarshal(data, &a); err != nil {
		return Args{}, fmt.Errorf("dcunet: decode model args: %w", err)
	}

	return a, nil
}
