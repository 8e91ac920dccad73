package layers

import (
	"fmt"
	"io"
)

// ModelArchitecturePrinter prints a compiled model in the style of a
// PyTorch module repr
type ModelArchitecturePrinter struct {
	modelName string
}

// NewModelArchitecturePrinter creates a new model architecture printer
func NewModelArchitecturePrinter(modelName string) *ModelArchitecturePrinter {
	return &ModelArchitecturePrinter{
		modelName: modelName,
	}
}

// PrintArchitecture writes the layer list and a parameter summary to w
func (p *ModelArchitecturePrinter) PrintArchitecture(w io.Writer, spec *ModelSpec) {
	fmt.Fprintf(w, "%s(\n", p.modelName)
	for _, layer := range spec.Layers {
		fmt.Fprintf(w, "  %s\n", formatLayer(layer))
	}
	fmt.Fprintf(w, ")\n")

	fmt.Fprintf(w, "Total parameters: %s\n", formatParameterCount(spec.TotalParameters))
	fmt.Fprintf(w, "Input size (MB): %.3f\n", tensorMegabytes(spec.InputShape))
	fmt.Fprintf(w, "Params size (MB): %.3f\n", float64(spec.TotalParameters*8)/1024/1024)
}

func formatLayer(layer LayerSpec) string {
	params := layer.Parameters
	switch layer.Type {
	case Conv2D:
		inC, _ := intParam(params, "input_channels")
		outC, _ := intParam(params, "output_channels")
		k, _ := intParam(params, "kernel_size")
		stride := getIntParam(params, "stride", 1)
		padding := getIntParam(params, "padding", 0)
		return fmt.Sprintf("(%s): Conv2d(%d, %d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d), bias=%t)",
			layer.Name, inC, outC, k, k, stride, stride, padding, padding, getBoolParam(params, "use_bias", true))
	case Dense:
		in, _ := intParam(params, "input_size")
		out, _ := intParam(params, "output_size")
		return fmt.Sprintf("(%s): Linear(in_features=%d, out_features=%d, bias=%t)",
			layer.Name, in, out, getBoolParam(params, "use_bias", true))
	case MaxPool2D:
		size, _ := intParam(params, "pool_size")
		return fmt.Sprintf("(%s): MaxPool2d(kernel_size=%d, stride=%d)", layer.Name, size, getIntParam(params, "stride", size))
	case ReLU:
		return fmt.Sprintf("(%s): ReLU()", layer.Name)
	case Flatten:
		return fmt.Sprintf("(%s): Flatten()", layer.Name)
	default:
		return fmt.Sprintf("(%s): %s()", layer.Name, layer.Type.String())
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}

// tensorMegabytes is the float64 storage size of a tensor with shape
func tensorMegabytes(shape []int) float64 {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return float64(size*8) / 1024 / 1024
}
