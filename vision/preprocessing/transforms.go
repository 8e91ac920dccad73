package preprocessing

import (
	"fmt"

	"github.com/tsawler/go-garments/tensor"
)

// Transform maps one [C,H,W] sample to another. Implementations must not
// modify their input and must be safe for concurrent use
type Transform interface {
	Apply(t *tensor.Tensor) (*tensor.Tensor, error)
}

// TransformFunc adapts a plain function to the Transform interface
type TransformFunc func(t *tensor.Tensor) (*tensor.Tensor, error)

// Apply calls f(t)
func (f TransformFunc) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	return f(t)
}

// ToTensor scales raw 8-bit pixel values into [0, 1]
func ToTensor() Transform {
	return TransformFunc(func(t *tensor.Tensor) (*tensor.Tensor, error) {
		if t == nil {
			return nil, fmt.Errorf("cannot convert nil tensor")
		}
		out := t.Clone()
		for i, v := range out.Data {
			out.Data[i] = v / 255.0
		}
		return out, nil
	})
}

// Normalize applies (x-mean)/std per channel. A single mean/std pair is
// used for every channel
type Normalize struct {
	Mean []float64
	Std  []float64
}

// NewNormalize validates the per-channel statistics
func NewNormalize(mean, std []float64) (*Normalize, error) {
	if len(mean) == 0 || len(mean) != len(std) {
		return nil, fmt.Errorf("mean and std must be non-empty and the same length: %d vs %d", len(mean), len(std))
	}
	for i, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("std for channel %d cannot be zero", i)
		}
	}
	return &Normalize{
		Mean: append([]float64(nil), mean...),
		Std:  append([]float64(nil), std...),
	}, nil
}

// Apply normalizes a [C,H,W] tensor
func (n *Normalize) Apply(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot normalize nil tensor")
	}
	if len(t.Shape) != 3 {
		return nil, fmt.Errorf("normalize expects a [C,H,W] tensor, got shape %v", t.Shape)
	}
	channels := t.Shape[0]
	if len(n.Mean) != 1 && len(n.Mean) != channels {
		return nil, fmt.Errorf("normalize has %d channel statistics but tensor has %d channels", len(n.Mean), channels)
	}

	out := t.Clone()
	plane := t.Shape[1] * t.Shape[2]
	for c := 0; c < channels; c++ {
		mean, std := n.Mean[0], n.Std[0]
		if len(n.Mean) > 1 {
			mean, std = n.Mean[c], n.Std[c]
		}
		seg := out.Data[c*plane : (c+1)*plane]
		for i, v := range seg {
			seg[i] = (v - mean) / std
		}
	}
	return out, nil
}

// Compose chains transforms left to right. Nil entries are skipped
func Compose(transforms ...Transform) Transform {
	return TransformFunc(func(t *tensor.Tensor) (*tensor.Tensor, error) {
		var err error
		for i, tr := range transforms {
			if tr == nil {
				continue
			}
			t, err = tr.Apply(t)
			if err != nil {
				return nil, fmt.Errorf("failed to apply transform %d: %w", i, err)
			}
		}
		return t, nil
	})
}

// DefaultFashionMNISTTransform scales pixels to [0, 1] and then normalizes
// them with mean 0.5 and std 0.5, giving values in [-1, 1]
func DefaultFashionMNISTTransform() Transform {
	return Compose(ToTensor(), &Normalize{Mean: []float64{0.5}, Std: []float64{0.5}})
}

// Unnormalize inverts DefaultFashionMNISTTransform's normalization step
func Unnormalize(v float64) float64 {
	return v/2 + 0.5
}
