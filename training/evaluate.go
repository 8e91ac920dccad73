package training

import (
	"context"
	"fmt"

	"github.com/tsawler/go-garments/layers"
)

// EvalResult summarizes one pass over a loader in evaluation mode
type EvalResult struct {
	Loss      float64 // Mean of the per-batch losses
	Batches   int
	Samples   int
	Confusion *ConfusionMatrix
}

// Accuracy returns the fraction of correctly classified samples
func (er *EvalResult) Accuracy() float64 {
	return er.Confusion.GetAccuracy()
}

// Evaluate runs net over every batch of loader in Evaluation mode. No
// gradients are accumulated and parameters are not touched
func Evaluate(ctx context.Context, net *layers.Network, loader *DataLoader, loss Loss, numClasses int) (*EvalResult, error) {
	return EvaluateWithProgress(ctx, net, loader, loss, numClasses, nil)
}

// EvaluateWithProgress is Evaluate with the running loss and accuracy shown
// on bar after every batch. A nil bar is silent
func EvaluateWithProgress(ctx context.Context, net *layers.Network, loader *DataLoader, loss Loss, numClasses int, bar *ProgressBar) (*EvalResult, error) {
	it := loader.Iter(ctx)
	defer it.Close()

	result := &EvalResult{Confusion: NewConfusionMatrix(numClasses)}
	total := 0.0

	for {
		batch, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to load validation batch %d: %w", result.Batches, err)
		}
		if batch == nil {
			break
		}

		logits, err := net.Forward(batch.Data, layers.Evaluation)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed on validation batch %d: %w", batch.Index, err)
		}
		batchLoss, err := loss.Forward(logits, batch.Labels)
		if err != nil {
			return nil, fmt.Errorf("loss computation failed on validation batch %d: %w", batch.Index, err)
		}
		if err := result.Confusion.UpdateFromLogits(logits, batch.Labels); err != nil {
			return nil, fmt.Errorf("failed to update metrics on validation batch %d: %w", batch.Index, err)
		}

		total += batchLoss
		result.Batches++
		result.Samples += batch.Size()

		if bar != nil {
			bar.Update(result.Batches, map[string]float64{
				"loss":     total / float64(result.Batches),
				"accuracy": result.Confusion.GetAccuracy(),
			})
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if result.Batches == 0 {
		return nil, fmt.Errorf("validation loader produced no batches")
	}

	result.Loss = total / float64(result.Batches)
	return result, nil
}
