package optimizer

import (
	"fmt"

	"github.com/tsawler/go-garments/checkpoints"
)

// Optimizer defines the common interface for optimizers.
// Parameters are bound at construction; Step reads their accumulated gradients
type Optimizer interface {
	// Step performs a single optimization step using the current gradients
	Step() error

	// ZeroGrad clears the gradients of every bound parameter
	ZeroGrad()

	// GetState extracts optimizer state for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// LearningRate returns the current learning rate
	LearningRate() float64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float64)
}

// OptimizerState is the serializable optimizer state stored in checkpoints
type OptimizerState = checkpoints.OptimizerState

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state cannot be nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}
