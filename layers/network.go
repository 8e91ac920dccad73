package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-garments/tensor"
)

// Parameter is a learnable tensor together with its accumulated gradient
type Parameter struct {
	Name  string // "<layer>.<type>", e.g. "conv1.weight"
	Layer string
	Type  string // "weight" or "bias"
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Layer is an executable network stage
type Layer interface {
	Name() string
	Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error)
	// Backward consumes the gradient w.r.t. the layer output, accumulates
	// parameter gradients and returns the gradient w.r.t. the layer input
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*Parameter
}

// Network is a sequential stack of layers built from a compiled ModelSpec
type Network struct {
	spec     *ModelSpec
	layers   []Layer
	params   []*Parameter
	lastMode Mode
	ready    bool // a Training-mode forward pass is pending backward
}

// NewNetwork builds executable layers for spec and initializes parameters
// from U(-1/sqrt(fan_in), 1/sqrt(fan_in))
func NewNetwork(spec *ModelSpec, rng *rand.Rand) (*Network, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model not compiled")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}

	// Specs decoded from checkpoints carry Compiled=true without proof, so
	// the layer list is compiled again from the input shape
	checked, err := recompile(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid model spec: %w", err)
	}

	net := &Network{spec: checked, lastMode: Evaluation}

	for i, ls := range checked.Layers {
		layer, err := buildLayer(ls, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to build layer %d (%s): %w", i, ls.Name, err)
		}
		net.layers = append(net.layers, layer)
		net.params = append(net.params, layer.Parameters()...)
	}

	return net, nil
}

func recompile(spec *ModelSpec) (*ModelSpec, error) {
	mb := NewModelBuilder(append([]int(nil), spec.InputShape...))
	for _, ls := range spec.Layers {
		mb.AddLayer(ls)
	}
	return mb.Compile()
}

func buildLayer(ls LayerSpec, rng *rand.Rand) (Layer, error) {
	switch ls.Type {
	case Dense:
		inputSize, ok1 := intParam(ls.Parameters, "input_size")
		outputSize, ok2 := intParam(ls.Parameters, "output_size")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("dense layer is missing input_size or output_size")
		}
		return newDenseLayer(ls.Name, inputSize, outputSize, getBoolParam(ls.Parameters, "use_bias", true), rng)
	case Conv2D:
		inC, ok1 := intParam(ls.Parameters, "input_channels")
		outC, ok2 := intParam(ls.Parameters, "output_channels")
		k, ok3 := intParam(ls.Parameters, "kernel_size")
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("conv2d layer is missing input_channels, output_channels or kernel_size")
		}
		return newConv2DLayer(ls.Name, inC, outC, k,
			getIntParam(ls.Parameters, "stride", 1),
			getIntParam(ls.Parameters, "padding", 0),
			getBoolParam(ls.Parameters, "use_bias", true), rng)
	case MaxPool2D:
		size, ok := intParam(ls.Parameters, "pool_size")
		if !ok {
			return nil, fmt.Errorf("max pool layer is missing pool_size")
		}
		return newMaxPool2DLayer(ls.Name, size, getIntParam(ls.Parameters, "stride", size))
	case ReLU:
		return &reluLayer{name: ls.Name}, nil
	case Flatten:
		return &flattenLayer{name: ls.Name}, nil
	default:
		return nil, fmt.Errorf("unsupported layer type: %s", ls.Type.String())
	}
}

// Spec returns the compiled model specification the network was built from
func (n *Network) Spec() *ModelSpec {
	return n.spec
}

// Layers returns the executable layers in forward order
func (n *Network) Layers() []Layer {
	return n.layers
}

// Parameters returns every learnable parameter in a stable order
func (n *Network) Parameters() []*Parameter {
	return n.params
}

// Parameter looks a parameter up by its full name
func (n *Network) Parameter(name string) (*Parameter, bool) {
	for _, p := range n.params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// ZeroGrad clears every accumulated gradient
func (n *Network) ZeroGrad() {
	for _, p := range n.params {
		p.Grad.Zero()
	}
}

// Forward runs x through every layer. The per-sample dimensions of x must
// match the compiled input shape; the batch dimension may differ
func (n *Network) Forward(x *tensor.Tensor, mode Mode) (*tensor.Tensor, error) {
	if x == nil {
		return nil, fmt.Errorf("input tensor cannot be nil")
	}
	want := n.spec.InputShape
	if len(x.Shape) != len(want) {
		return nil, fmt.Errorf("input rank %d does not match model input %v", len(x.Shape), want)
	}
	for i := 1; i < len(want); i++ {
		if x.Shape[i] != want[i] {
			return nil, fmt.Errorf("input shape %v does not match model input %v", x.Shape, want)
		}
	}

	n.lastMode = mode
	n.ready = false

	out := x
	for i, layer := range n.layers {
		var err error
		out, err = layer.Forward(out, mode)
		if err != nil {
			return nil, fmt.Errorf("forward failed at layer %d (%s): %w", i, layer.Name(), err)
		}
	}

	n.ready = mode == Training
	return out, nil
}

// Backward propagates gradOut (the loss gradient w.r.t. the network
// output) back through the layers, accumulating parameter gradients.
// It requires that the last Forward ran in Training mode
func (n *Network) Backward(gradOut *tensor.Tensor) error {
	if !n.ready {
		return fmt.Errorf("backward requires a preceding %s forward pass (last pass: %s)", Training, n.lastMode)
	}

	grad := gradOut
	for i := len(n.layers) - 1; i >= 0; i-- {
		var err error
		grad, err = n.layers[i].Backward(grad)
		if err != nil {
			return fmt.Errorf("backward failed at layer %d (%s): %w", i, n.layers[i].Name(), err)
		}
	}
	n.ready = false
	return nil
}

// NumParameters returns the total number of learnable scalars
func (n *Network) NumParameters() int {
	total := 0
	for _, p := range n.params {
		total += p.Value.NumElems
	}
	return total
}

func newParameter(layer, kind string, shape []int, bound float64, rng *rand.Rand) (*Parameter, error) {
	value, err := tensor.RandomUniform(shape, -bound, bound, rng)
	if err != nil {
		return nil, err
	}
	grad, err := tensor.Zeros(shape)
	if err != nil {
		return nil, err
	}
	return &Parameter{
		Name:  layer + "." + kind,
		Layer: layer,
		Type:  kind,
		Value: value,
		Grad:  grad,
	}, nil
}

func initBound(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}
