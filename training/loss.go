package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-garments/tensor"
	"gonum.org/v1/gonum/floats"
)

// Loss interface defines methods that all classification losses must implement
type Loss interface {
	Forward(logits *tensor.Tensor, labels []int) (float64, error)
	Backward(logits *tensor.Tensor, labels []int) (*tensor.Tensor, error)
}

// CrossEntropyLoss combines log-softmax and negative log-likelihood over
// raw logits of shape [N, C]
type CrossEntropyLoss struct {
	reduction string // "mean" or "sum"
}

// NewCrossEntropyLoss creates a new cross-entropy loss function
func NewCrossEntropyLoss(reduction string) *CrossEntropyLoss {
	if reduction == "" {
		reduction = "mean"
	}
	return &CrossEntropyLoss{reduction: reduction}
}

// Forward computes L = reduce(-log softmax(logits)[label])
func (ce *CrossEntropyLoss) Forward(logits *tensor.Tensor, labels []int) (float64, error) {
	loss, _, err := ce.compute(logits, labels, false)
	return loss, err
}

// Backward returns dL/dlogits = (softmax(logits) - onehot(labels)) / N for
// mean reduction
func (ce *CrossEntropyLoss) Backward(logits *tensor.Tensor, labels []int) (*tensor.Tensor, error) {
	_, grad, err := ce.compute(logits, labels, true)
	return grad, err
}

// ForwardBackward computes the loss and its gradient in one pass
func (ce *CrossEntropyLoss) ForwardBackward(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	return ce.compute(logits, labels, true)
}

func (ce *CrossEntropyLoss) compute(logits *tensor.Tensor, labels []int, withGrad bool) (float64, *tensor.Tensor, error) {
	if logits == nil || len(logits.Shape) != 2 {
		return 0, nil, fmt.Errorf("cross-entropy expects 2D logits [batch, classes]")
	}
	batchSize, numClasses := logits.Shape[0], logits.Shape[1]
	if len(labels) != batchSize {
		return 0, nil, fmt.Errorf("label count %d does not match batch size %d", len(labels), batchSize)
	}
	if ce.reduction != "mean" && ce.reduction != "sum" {
		return 0, nil, fmt.Errorf("unsupported reduction: %s", ce.reduction)
	}

	var grad *tensor.Tensor
	if withGrad {
		var err error
		grad, err = tensor.Zeros(logits.Shape)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create gradient tensor: %w", err)
		}
	}

	scale := 1.0
	if ce.reduction == "mean" {
		scale = 1.0 / float64(batchSize)
	}

	total := 0.0
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return 0, nil, fmt.Errorf("label %d at position %d out of range [0, %d)", label, i, numClasses)
		}

		row := logits.Row(i)
		logSumExp := floats.LogSumExp(row)
		total += logSumExp - row[label]

		if withGrad {
			g := grad.Row(i)
			for c, z := range row {
				g[c] = math.Exp(z-logSumExp) * scale
			}
			g[label] -= scale
		}
	}

	return total * scale, grad, nil
}
