package tensor

import (
	"fmt"
)

// Reshape returns a tensor sharing t's data with a new shape. At most one
// dimension may be -1, in which case it is inferred
func Reshape(t *Tensor, newShape []int) (*Tensor, error) {
	shape := make([]int, len(newShape))
	copy(shape, newShape)

	inferred := -1
	known := 1
	for i, dim := range shape {
		if dim == -1 {
			if inferred != -1 {
				return nil, fmt.Errorf("only one dimension can be inferred, got shape %v", newShape)
			}
			inferred = i
			continue
		}
		known *= dim
	}
	if inferred != -1 {
		if known <= 0 || t.NumElems%known != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", t.NumElems, newShape)
		}
		shape[inferred] = t.NumElems / known
	}

	if err := validateShape(shape); err != nil {
		return nil, err
	}

	newNumElems := calculateNumElements(shape)
	if newNumElems != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v (size %d)",
			t.NumElems, shape, newNumElems)
	}

	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

// Flatten keeps dimension 0 and collapses the rest: [N, ...] -> [N, prod(...)]
func Flatten(t *Tensor) (*Tensor, error) {
	if len(t.Shape) < 2 {
		return Reshape(t, []int{1, t.NumElems})
	}
	return Reshape(t, []int{t.Shape[0], -1})
}

// Stack concatenates equally-shaped samples along a new leading dimension
func Stack(samples []*Tensor) (*Tensor, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}
	first := samples[0]
	shape := append([]int{len(samples)}, first.Shape...)
	out, err := Zeros(shape)
	if err != nil {
		return nil, err
	}
	for i, s := range samples {
		if !ShapesEqual(s.Shape, first.Shape) {
			return nil, fmt.Errorf("shape mismatch at sample %d: %v vs %v", i, s.Shape, first.Shape)
		}
		copy(out.Data[i*first.NumElems:(i+1)*first.NumElems], s.Data)
	}
	return out, nil
}
