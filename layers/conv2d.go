package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-garments/tensor"
)

// conv2DLayer is a square-kernel 2D convolution lowered to a matrix
// product over im2col patches
type conv2DLayer struct {
	name        string
	inChannels  int
	outChannels int
	kernel      int
	stride      int
	padding     int
	weight      *Parameter // [out, in, k, k]
	bias        *Parameter // [out]

	// Training mode cache
	inputShape []int
	cols       []*mat.Dense // per sample [in*k*k, outH*outW]
}

func newConv2DLayer(name string, inC, outC, kernel, stride, padding int, useBias bool, rng *rand.Rand) (*conv2DLayer, error) {
	if inC <= 0 || outC <= 0 || kernel <= 0 || stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("invalid conv2d configuration in=%d out=%d k=%d stride=%d pad=%d",
			inC, outC, kernel, stride, padding)
	}
	fanIn := inC * kernel * kernel
	bound := initBound(fanIn)

	weight, err := newParameter(name, "weight", []int{outC, inC, kernel, kernel}, bound, rng)
	if err != nil {
		return nil, err
	}
	l := &conv2DLayer{
		name:        name,
		inChannels:  inC,
		outChannels: outC,
		kernel:      kernel,
		stride:      stride,
		padding:     padding,
		weight:      weight,
	}
	if useBias {
		l.bias, err = newParameter(name, "bias", []int{outC}, bound, rng)
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *conv2DLayer) Name() string { return l.name }

func (l *conv2DLayer) Parameters() []*Parameter {
	if l.bias == nil {
		return []*Parameter{l.weight}
	}
	return []*Parameter{l.weight, l.bias}
}

func (l *conv2DLayer) outputSize(h, w int) (int, int) {
	return (h+2*l.padding-l.kernel)/l.stride + 1, (w+2*l.padding-l.kernel)/l.stride + 1
}

func (l *conv2DLayer) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != l.inChannels {
		return nil, fmt.Errorf("expected input [N %d H W], got %v", l.inChannels, x.Shape)
	}
	batch, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	outH, outW := l.outputSize(h, w)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("kernel %d does not fit input %dx%d", l.kernel, h, w)
	}

	out, err := tensor.Zeros([]int{batch, l.outChannels, outH, outW})
	if err != nil {
		return nil, err
	}

	patch := l.inChannels * l.kernel * l.kernel
	spatial := outH * outW
	wm := mat.NewDense(l.outChannels, patch, l.weight.Value.Data)

	var cache []*mat.Dense
	if mode == Training {
		cache = make([]*mat.Dense, batch)
	}

	for n := 0; n < batch; n++ {
		cols := l.im2col(x.Row(n), h, w, outH, outW)
		om := mat.NewDense(l.outChannels, spatial, out.Row(n))
		om.Mul(wm, cols)

		if l.bias != nil {
			row := out.Row(n)
			for oc := 0; oc < l.outChannels; oc++ {
				floats.AddConst(l.bias.Value.Data[oc], row[oc*spatial:(oc+1)*spatial])
			}
		}
		if cache != nil {
			cache[n] = cols
		}
	}

	if mode == Training {
		l.inputShape = append([]int(nil), x.Shape...)
		l.cols = cache
	} else {
		l.inputShape = nil
		l.cols = nil
	}
	return out, nil
}

func (l *conv2DLayer) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if l.cols == nil {
		return nil, fmt.Errorf("no cached patches, forward was not run in %s mode", Training)
	}
	batch, h, w := l.inputShape[0], l.inputShape[2], l.inputShape[3]
	outH, outW := l.outputSize(h, w)
	spatial := outH * outW
	patch := l.inChannels * l.kernel * l.kernel

	if gradOut.NumElems != batch*l.outChannels*spatial {
		return nil, fmt.Errorf("gradient shape %v does not match output [%d %d %d %d]",
			gradOut.Shape, batch, l.outChannels, outH, outW)
	}

	dx, err := tensor.Zeros(l.inputShape)
	if err != nil {
		return nil, err
	}

	wm := mat.NewDense(l.outChannels, patch, l.weight.Value.Data)
	dw := mat.NewDense(l.outChannels, patch, nil)
	dcols := mat.NewDense(patch, spatial, nil)

	for n := 0; n < batch; n++ {
		g := gradOut.Row(n)
		gm := mat.NewDense(l.outChannels, spatial, g)

		// dW += g·colsᵀ
		dw.Mul(gm, l.cols[n].T())
		floats.Add(l.weight.Grad.Data, dw.RawMatrix().Data)

		if l.bias != nil {
			for oc := 0; oc < l.outChannels; oc++ {
				l.bias.Grad.Data[oc] += floats.Sum(g[oc*spatial : (oc+1)*spatial])
			}
		}

		// dcols = Wᵀ·g, scattered back onto the input grid
		dcols.Mul(wm.T(), gm)
		l.col2im(dcols, dx.Row(n), h, w, outH, outW)
	}

	l.cols = nil
	l.inputShape = nil
	return dx, nil
}

// im2col unrolls every receptive field of one sample into a column.
// Row r = c*k*k + ki*k + kj, column = oy*outW + ox
func (l *conv2DLayer) im2col(sample []float64, h, w, outH, outW int) *mat.Dense {
	k := l.kernel
	patch := l.inChannels * k * k
	spatial := outH * outW
	data := make([]float64, patch*spatial)

	for c := 0; c < l.inChannels; c++ {
		plane := sample[c*h*w : (c+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := data[(c*k*k+ki*k+kj)*spatial:]
				for oy := 0; oy < outH; oy++ {
					iy := oy*l.stride + ki - l.padding
					if iy < 0 || iy >= h {
						continue
					}
					for ox := 0; ox < outW; ox++ {
						ix := ox*l.stride + kj - l.padding
						if ix < 0 || ix >= w {
							continue
						}
						row[oy*outW+ox] = plane[iy*w+ix]
					}
				}
			}
		}
	}
	return mat.NewDense(patch, spatial, data)
}

func (l *conv2DLayer) col2im(cols *mat.Dense, dst []float64, h, w, outH, outW int) {
	k := l.kernel
	raw := cols.RawMatrix()

	for c := 0; c < l.inChannels; c++ {
		plane := dst[c*h*w : (c+1)*h*w]
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				r := c*k*k + ki*k + kj
				row := raw.Data[r*raw.Stride : r*raw.Stride+outH*outW]
				for oy := 0; oy < outH; oy++ {
					iy := oy*l.stride + ki - l.padding
					if iy < 0 || iy >= h {
						continue
					}
					for ox := 0; ox < outW; ox++ {
						ix := ox*l.stride + kj - l.padding
						if ix < 0 || ix >= w {
							continue
						}
						plane[iy*w+ix] += row[oy*outW+ox]
					}
				}
			}
		}
	}
}
