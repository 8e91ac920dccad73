package layers

// Fashion-MNIST geometry
const (
	ImageChannels = 1
	ImageSize     = 28
	NumClasses    = 10
)

// NewGarmentClassifierSpec compiles the fixed garment classifier topology:
// two conv+ReLU+pool stages (1→6→16 channels, 5x5 kernels, 2x2 pooling)
// followed by dense layers 16·4·4→120→84→10, the first two with ReLU
func NewGarmentClassifierSpec(batchSize int) (*ModelSpec, error) {
	return NewModelBuilder([]int{batchSize, ImageChannels, ImageSize, ImageSize}).
		AddConv2D(6, 5, 1, 0, true, "conv1").
		AddReLU("relu1").
		AddMaxPool2D(2, 2, "pool1").
		AddConv2D(16, 5, 1, 0, true, "conv2").
		AddReLU("relu2").
		AddMaxPool2D(2, 2, "pool2").
		AddFlatten("flatten").
		AddDense(120, true, "fc1").
		AddReLU("relu3").
		AddDense(84, true, "fc2").
		AddReLU("relu4").
		AddDense(NumClasses, true, "fc3").
		Compile()
}
