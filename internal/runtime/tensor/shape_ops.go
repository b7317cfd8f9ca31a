package tensor

import (
	"errors"
	"fmt"
)

// Narrow slices the tensor along a single dimension.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[dim] = length

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := outerInner(t.shape, dim)
	srcDim := t.shape[dim]
	span := length * inner

	for o := range outer {
		srcBase := (o*srcDim + start) * inner
		dstBase := o * span
		copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
	}

	return out, nil
}

// Chunk splits the tensor into n equal parts along dim.
func (t *Tensor) Chunk(n int, dim int) ([]*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: chunk on nil tensor")
	}

	if n <= 0 {
		return nil, fmt.Errorf("tensor: chunk count must be > 0, got %d", n)
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: chunk: %w", err)
	}

	if t.shape[d]%int64(n) != 0 {
		return nil, fmt.Errorf("tensor: chunk: dim %d size %d not divisible by %d", d, t.shape[d], n)
	}

	size := t.shape[d] / int64(n)
	out := make([]*Tensor, n)

	for i := range n {
		part, err := t.Narrow(d, int64(i)*size, size)
		if err != nil {
			return nil, err
		}

		out[i] = part
	}

	return out, nil
}

// PadDim zero-pads or truncates dim at its end so that it has size length.
func (t *Tensor) PadDim(dim int, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: pad on nil tensor")
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: pad: %w", err)
	}

	if length < 0 {
		return nil, fmt.Errorf("tensor: pad: negative length %d", length)
	}

	cur := t.shape[d]
	if length == cur {
		return t.Clone(), nil
	}

	if length < cur {
		return t.Narrow(d, 0, length)
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d] = length

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := outerInner(t.shape, d)
	span := cur * inner

	for o := range outer {
		copy(out.data[o*length*inner:o*length*inner+span], t.data[o*span:(o+1)*span])
	}

	return out, nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	outShape := append([]int64(nil), t.shape...)
	outShape[d1], outShape[d2] = outShape[d2], outShape[d1]

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	srcStrides := computeStrides(t.shape)
	permStrides := append([]int64(nil), srcStrides...)
	permStrides[d1], permStrides[d2] = srcStrides[d2], srcStrides[d1]
	outStrides := computeStrides(outShape)
	coord := make([]int64, rank)

	for i := range out.data {
		linearToCoord(int64(i), outShape, outStrides, coord)

		var off int64
		for k, c := range coord {
			off += c * permStrides[k]
		}

		out.data[i] = t.data[off]
	}

	return out, nil
}

// Concat concatenates tensors along dim.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	outShape := append([]int64(nil), first.shape...)
	outShape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d == dim {
				continue
			}

			if t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		outShape[dim] += t.shape[dim]
	}

	out, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	outer, inner := outerInner(outShape, dim)
	outDim := outShape[dim]

	for o := range outer {
		writePos := int64(0)

		for _, t := range tensors {
			span := t.shape[dim] * inner
			srcBase := o * span
			dstBase := o*outDim*inner + writePos
			copy(out.data[dstBase:dstBase+span], t.data[srcBase:srcBase+span])
			writePos += span
		}
	}

	return out, nil
}
