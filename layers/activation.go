package layers

import (
	"fmt"

	"github.com/tsawler/go-garments/tensor"
)

type reluLayer struct {
	name string
	mask []bool
}

func (l *reluLayer) Name() string             { return l.name }
func (l *reluLayer) Parameters() []*Parameter { return nil }

func (l *reluLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	out, err := tensor.Zeros(x.Shape)
	if err != nil {
		return nil, err
	}
	if mode == Training {
		if cap(l.mask) < x.NumElems {
			l.mask = make([]bool, x.NumElems)
		}
		l.mask = l.mask[:x.NumElems]
	} else {
		l.mask = nil
	}
	for i, v := range x.Data {
		active := v > 0
		if active {
			out.Data[i] = v
		}
		if l.mask != nil {
			l.mask[i] = active
		}
	}
	return out, nil
}

func (l *reluLayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.mask == nil {
		return nil, fmt.Errorf("no cached mask, forward was not run in %s mode", Training)
	}
	if gradOut.NumElems != len(l.mask) {
		return nil, fmt.Errorf("gradient has %d elements, expected %d", gradOut.NumElems, len(l.mask))
	}
	dx, err := tensor.Zeros(gradOut.Shape)
	if err != nil {
		return nil, err
	}
	for i, active := range l.mask {
		if active {
			dx.Data[i] = gradOut.Data[i]
		}
	}
	l.mask = nil
	return dx, nil
}

type flattenLayer struct {
	name       string
	inputShape []int
}

func (l *flattenLayer) Name() string             { return l.name }
func (l *flattenLayer) Parameters() []*Parameter { return nil }

func (l *flattenLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if mode == Training {
		l.inputShape = append([]int(nil), x.Shape...)
	} else {
		l.inputShape = nil
	}
	return tensor.Flatten(x)
}

func (l *flattenLayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.inputShape == nil {
		return nil, fmt.Errorf("no cached shape, forward was not run in %s mode", Training)
	}
	dx, err := tensor.Reshape(gradOut, l.inputShape)
	l.inputShape = nil
	return dx, err
}
