package layers

import (
	"fmt"
	"math"

	"github.com/tsawler/go-garments/tensor"
)

type maxPool2DLayer struct {
	name   string
	size   int
	stride int

	inputShape []int
	argmax     []int // flat input index chosen for each output element
}

func newMaxPool2DLayer(name string, size, stride int) (*maxPool2DLayer, error) {
	if size <= 0 || stride <= 0 {
		return nil, fmt.Errorf("invalid max pool configuration size=%d stride=%d", size, stride)
	}
	return &maxPool2DLayer{name: name, size: size, stride: stride}, nil
}

func (l *maxPool2DLayer) Name() string             { return l.name }
func (l *maxPool2DLayer) Parameters() []*Parameter { return nil }

func (l *maxPool2DLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("expected 4D input, got %v", x.Shape)
	}
	batch, channels, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH := (h-l.size)/l.stride + 1
	outW := (w-l.size)/l.stride + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("pool %d does not fit input %dx%d", l.size, h, w)
	}

	out, err := tensor.Zeros([]int{batch, channels, outH, outW})
	if err != nil {
		return nil, err
	}

	var argmax []int
	if mode == Training {
		argmax = make([]int, out.NumElems)
	}

	o := 0
	for plane := 0; plane < batch*channels; plane++ {
		base := plane * h * w
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				best := math.Inf(-1)
				bestIdx := -1
				for ky := 0; ky < l.size; ky++ {
					rowBase := base + (oy*l.stride+ky)*w + ox*l.stride
					for kx := 0; kx < l.size; kx++ {
						v := x.Data[rowBase+kx]
						if bestIdx == -1 || v > best {
							best = v
							bestIdx = rowBase + kx
						}
					}
				}
				out.Data[o] = best
				if argmax != nil {
					argmax[o] = bestIdx
				}
				o++
			}
		}
	}

	if mode == Training {
		l.inputShape = append([]int(nil), x.Shape...)
		l.argmax = argmax
	} else {
		l.inputShape = nil
		l.argmax = nil
	}
	return out, nil
}

func (l *maxPool2DLayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.argmax == nil {
		return nil, fmt.Errorf("no cached indices, forward was not run in %s mode", Training)
	}
	if gradOut.NumElems != len(l.argmax) {
		return nil, fmt.Errorf("gradient has %d elements, expected %d", gradOut.NumElems, len(l.argmax))
	}
	dx, err := tensor.Zeros(l.inputShape)
	if err != nil {
		return nil, err
	}
	for o, idx := range l.argmax {
		dx.Data[idx] += gradOut.Data[o]
	}
	l.argmax = nil
	l.inputShape = nil
	return dx, nil
}
