package tensor

import "fmt"

// BroadcastAdd performs element-wise add with NumPy-style broadcasting.
func BroadcastAdd(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, func(x, y float32) float32 { return x + y }, "add")
}

// BroadcastSub performs element-wise subtract with NumPy-style broadcasting.
func BroadcastSub(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, func(x, y float32) float32 { return x - y }, "sub")
}

// BroadcastMul performs element-wise multiply with NumPy-style broadcasting.
func BroadcastMul(a, b *Tensor) (*Tensor, error) {
	return broadcastBinary(a, b, func(x, y float32) float32 { return x * y }, "mul")
}

// BroadcastShape returns the NumPy-style broadcast of shapes a and b.
func BroadcastShape(a, b []int64) ([]int64, error) {
	return broadcastShape(a, b)
}

// BroadcastOffsets returns, for every linear index of outShape, the offset of
// the matching element in a row-major tensor of shape src broadcast to
// outShape. src must be broadcast-compatible with outShape.
func BroadcastOffsets(src, outShape []int64) ([]int64, error) {
	if len(src) > len(outShape) {
		return nil, fmt.Errorf("tensor: cannot broadcast %v to lower rank %v", src, outShape)
	}

	padded := leftPadShape(src, len(outShape))
	for i := range padded {
		if padded[i] != 1 && padded[i] != outShape[i] {
			return nil, fmt.Errorf("tensor: cannot broadcast %v to %v", src, outShape)
		}
	}

	total, err := shapeElemCount(outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(padded)
	outStrides := computeStrides(outShape)
	coord := make([]int64, len(outShape))
	offsets := make([]int64, total)

	for i := range offsets {
		linearToCoord(int64(i), outShape, outStrides, coord)

		var off int64
		for d, c := range coord {
			if padded[d] == 1 {
				continue
			}

			off += c * srcStrides[d]
		}

		offsets[i] = off
	}

	return offsets, nil
}

func broadcastBinary(a, b *Tensor, fn func(x, y float32) float32, opName string) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("tensor: broadcast %s requires non-nil inputs", opName)
	}

	outShape, err := broadcastShape(a.shape, b.shape)
	if err != nil {
		return nil, fmt.Errorf("tensor: broadcast %s: %w", opName, err)
	}

	if EqualShape(a.shape, b.shape) {
		out := make([]float32, len(a.data))
		for i := range out {
			out[i] = fn(a.data[i], b.data[i])
		}

		return newOwned(out, outShape), nil
	}

	aOff, err := BroadcastOffsets(a.shape, outShape)
	if err != nil {
		return nil, err
	}

	bOff, err := BroadcastOffsets(b.shape, outShape)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(aOff))
	for i := range out {
		out[i] = fn(a.data[aOff[i]], b.data[bOff[i]])
	}

	return newOwned(out, outShape), nil
}

func broadcastShape(a, b []int64) ([]int64, error) {
	outRank := max(len(a), len(b))

	out := make([]int64, outRank)
	for i := range outRank {
		ad := int64(1)
		if j := i - (outRank - len(a)); j >= 0 {
			ad = a[j]
		}

		bd := int64(1)
		if j := i - (outRank - len(b)); j >= 0 {
			bd = b[j]
		}

		switch {
		case ad == bd || ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		default:
			return nil, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
	}

	return out, nil
}

func leftPadShape(shape []int64, rank int) []int64 {
	if len(shape) == rank {
		return append([]int64(nil), shape...)
	}

	out := make([]int64, rank)

	pad := rank - len(shape)
	for i := range pad {
		out[i] = 1
	}

	copy(out[pad:], shape)

	return out
}
