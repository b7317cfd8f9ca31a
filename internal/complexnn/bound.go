package complexnn

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnrecognizedBound is returned for a mask bound name that is not known.
var ErrUnrecognizedBound = errors.New("complexnn: unrecognized mask bound")

// BoundType selects how BoundMask constrains a complex mask.
type BoundType string

const (
	BoundNone    BoundType = ""
	BoundSigmoid BoundType = "sigmoid"
	BoundBDSS    BoundType = "BDSS"
	BoundTanh    BoundType = "tanh"
	BoundBDT     BoundType = "BDT"
	BoundUBD     BoundType = "UBD"
)

// ParseBoundType maps a configuration string to a BoundType. "none" and the
// empty string both select BoundNone.
func ParseBoundType(s string) (BoundType, error) {
	switch b := BoundType(strings.TrimSpace(s)); b {
	case BoundNone, BoundSigmoid, BoundBDSS, BoundTanh, BoundBDT, BoundUBD:
		return b, nil
	case "none", "None":
		return BoundNone, nil
	default:
		return BoundNone, fmt.Errorf("%w: %q", ErrUnrecognizedBound, s)
	}
}

// BoundMask constrains mask according to bound:
//
//	sigmoid, BDSS: magnitude replaced by sigmoid(|m|), phase kept
//	tanh, BDT:     tanh on real and imaginary parts independently
//	UBD, none:     unchanged
func BoundMask(mask *Tensor, bound BoundType) (*Tensor, error) {
	if mask == nil {
		return nil, errors.New("complexnn: bound mask: nil mask")
	}

	switch bound {
	case BoundNone, BoundUBD:
		return mask, nil
	case BoundSigmoid, BoundBDSS:
		out := make([]complex64, len(mask.data))

		for i, v := range mask.data {
			re, im := float64(real(v)), float64(imag(v))
			mag := math.Hypot(re, im)
			scaled := 1 / (1 + math.Exp(-mag))

			if mag == 0 {
				// Phase of zero is 0.
				out[i] = complex(float32(scaled), 0)
				continue
			}

			k := scaled / mag
			out[i] = complex(float32(re*k), float32(im*k))
		}

		return &Tensor{shape: mask.Shape(), data: out}, nil
	case BoundTanh, BoundBDT:
		return MapReIm(mask, func(re, im float32) (float32, float32) {
			return float32(math.Tanh(float64(re))), float32(math.Tanh(float64(im)))
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedBound, string(bound))
	}
}
