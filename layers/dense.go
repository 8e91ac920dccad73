package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-garments/tensor"
)

// denseLayer computes y = x·W + b with W stored [in, out]
type denseLayer struct {
	name    string
	inSize  int
	outSize int
	weight  *Parameter
	bias    *Parameter

	input      *tensor.Tensor // flattened [N, in], Training mode only
	inputShape []int
}

func newDenseLayer(name string, inSize, outSize int, useBias bool, rng *rand.Rand) (*denseLayer, error) {
	if inSize <= 0 || outSize <= 0 {
		return nil, fmt.Errorf("invalid dense dimensions %d -> %d", inSize, outSize)
	}
	bound := initBound(inSize)

	weight, err := newParameter(name, "weight", []int{inSize, outSize}, bound, rng)
	if err != nil {
		return nil, err
	}
	l := &denseLayer{name: name, inSize: inSize, outSize: outSize, weight: weight}

	if useBias {
		l.bias, err = newParameter(name, "bias", []int{outSize}, bound, rng)
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *denseLayer) Name() string { return l.name }

func (l *denseLayer) Parameters() []*Parameter {
	if l.bias == nil {
		return []*Parameter{l.weight}
	}
	return []*Parameter{l.weight, l.bias}
}

func (l *denseLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	batch := x.Shape[0]
	if x.NumElems != batch*l.inSize {
		return nil, fmt.Errorf("expected %d features per sample, got shape %v", l.inSize, x.Shape)
	}

	out, err := tensor.Zeros([]int{batch, l.outSize})
	if err != nil {
		return nil, err
	}

	xm := mat.NewDense(batch, l.inSize, x.Data)
	wm := mat.NewDense(l.inSize, l.outSize, l.weight.Value.Data)
	om := mat.NewDense(batch, l.outSize, out.Data)
	om.Mul(xm, wm)

	if l.bias != nil {
		for i := 0; i < batch; i++ {
			floats.Add(out.Row(i), l.bias.Value.Data)
		}
	}

	if mode == Training {
		l.input = x
		l.inputShape = append(l.inputShape[:0], x.Shape...)
	} else {
		l.input = nil
	}
	return out, nil
}

func (l *denseLayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("no cached input, forward was not run in %s mode", Training)
	}
	batch := l.input.Shape[0]
	if gradOut.NumElems != batch*l.outSize {
		return nil, fmt.Errorf("gradient shape %v does not match output [%d %d]", gradOut.Shape, batch, l.outSize)
	}

	xm := mat.NewDense(batch, l.inSize, l.input.Data)
	gm := mat.NewDense(batch, l.outSize, gradOut.Data)
	wm := mat.NewDense(l.inSize, l.outSize, l.weight.Value.Data)

	// dW += xᵀ·g
	dw := mat.NewDense(l.inSize, l.outSize, nil)
	dw.Mul(xm.T(), gm)
	floats.Add(l.weight.Grad.Data, dw.RawMatrix().Data)

	if l.bias != nil {
		for i := 0; i < batch; i++ {
			floats.Add(l.bias.Grad.Data, gradOut.Row(i))
		}
	}

	// dx = g·Wᵀ
	dx, err := tensor.Zeros(l.inputShape)
	if err != nil {
		return nil, err
	}
	dxm := mat.NewDense(batch, l.inSize, dx.Data)
	dxm.Mul(gm, wm.T())

	l.input = nil
	return dx, nil
}
