package optimizer

import (
	"fmt"

	"github.com/tsawler/go-garments/checkpoints"
	"github.com/tsawler/go-garments/layers"
	"gonum.org/v1/gonum/floats"
)

const momentumStateType = "momentum"

// SGD is stochastic gradient descent with optional momentum, Nesterov
// momentum and L2 weight decay. Updates follow the usual deep learning
// convention: the momentum buffer starts as the first gradient and no
// dampening is applied
type SGD struct {
	// Hyperparameters
	learningRate float64
	momentum     float64 // Momentum coefficient (0 for vanilla SGD)
	weightDecay  float64 // L2 regularization coefficient
	nesterov     bool

	params []*layers.Parameter

	// momentumBuffers[i] is nil until parameter i has taken its first step
	momentumBuffers [][]float64
	scratch         [][]float64

	stepCount uint64
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns the garment classifier's SGD configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.001,
		Momentum:     0.9,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// Validate checks the configuration for out-of-range values
func (c SGDConfig) Validate() error {
	if c.LearningRate < 0 {
		return fmt.Errorf("learning rate cannot be negative: %f", c.LearningRate)
	}
	if c.Momentum < 0 {
		return fmt.Errorf("momentum cannot be negative: %f", c.Momentum)
	}
	if c.Momentum > 1.0 {
		return fmt.Errorf("momentum cannot be greater than 1.0: %f", c.Momentum)
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("weight decay cannot be negative: %f", c.WeightDecay)
	}
	if c.Nesterov && c.Momentum == 0 {
		return fmt.Errorf("nesterov momentum requires a momentum greater than 0")
	}
	return nil
}

// NewSGD creates an SGD optimizer over params
func NewSGD(config SGDConfig, params []*layers.Parameter) (*SGD, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters provided")
	}

	seen := make(map[string]bool, len(params))
	scratch := make([][]float64, len(params))
	for i, p := range params {
		if p == nil || p.Value == nil || p.Grad == nil {
			return nil, fmt.Errorf("parameter %d is not initialized", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		seen[p.Name] = true
		scratch[i] = make([]float64, len(p.Value.Data))
	}

	return &SGD{
		learningRate:    config.LearningRate,
		momentum:        config.Momentum,
		weightDecay:     config.WeightDecay,
		nesterov:        config.Nesterov,
		params:          params,
		momentumBuffers: make([][]float64, len(params)),
		scratch:         scratch,
	}, nil
}

// Step applies one update to every parameter from its accumulated gradient
func (sgd *SGD) Step() error {
	for i, p := range sgd.params {
		if len(p.Grad.Data) != len(p.Value.Data) {
			return fmt.Errorf("gradient size mismatch for %s: %d vs %d", p.Name, len(p.Grad.Data), len(p.Value.Data))
		}

		g := sgd.scratch[i]
		copy(g, p.Grad.Data)

		if sgd.weightDecay != 0 {
			floats.AddScaled(g, sgd.weightDecay, p.Value.Data)
		}

		if sgd.momentum != 0 {
			buf := sgd.momentumBuffers[i]
			if buf == nil {
				buf = make([]float64, len(g))
				copy(buf, g)
				sgd.momentumBuffers[i] = buf
			} else {
				floats.Scale(sgd.momentum, buf)
				floats.Add(buf, g)
			}

			if sgd.nesterov {
				floats.AddScaled(g, sgd.momentum, buf)
			} else {
				copy(g, buf)
			}
		}

		floats.AddScaled(p.Value.Data, -sgd.learningRate, g)
	}

	sgd.stepCount++
	return nil
}

// ZeroGrad clears accumulated gradients
func (sgd *SGD) ZeroGrad() {
	for _, p := range sgd.params {
		p.Grad.Zero()
	}
}

// UpdateLearningRate updates the learning rate
func (sgd *SGD) UpdateLearningRate(newLR float64) {
	sgd.learningRate = newLR
}

// LearningRate returns the current learning rate
func (sgd *SGD) LearningRate() float64 {
	return sgd.learningRate
}

// GetStepCount returns the current step count
func (sgd *SGD) GetStepCount() uint64 {
	return sgd.stepCount
}

// GetState extracts optimizer state for checkpointing
func (sgd *SGD) GetState() (*OptimizerState, error) {
	stateData := make([]checkpoints.OptimizerTensor, 0, len(sgd.params))

	for i, buf := range sgd.momentumBuffers {
		if buf == nil {
			continue
		}
		p := sgd.params[i]
		stateData = append(stateData, extractBufferState(buf, p.Value.Shape, p.Name, momentumStateType))
	}

	return &OptimizerState{
		Type: "SGD",
		Parameters: map[string]interface{}{
			"learning_rate": sgd.learningRate,
			"momentum":      sgd.momentum,
			"weight_decay":  sgd.weightDecay,
			"nesterov":      sgd.nesterov,
			"step_count":    sgd.stepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint. Nothing is modified
// if the state does not match the bound parameters
func (sgd *SGD) LoadState(state *OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	config := SGDConfig{
		LearningRate: extractFloat64Param(state.Parameters, "learning_rate", sgd.learningRate),
		Momentum:     extractFloat64Param(state.Parameters, "momentum", sgd.momentum),
		WeightDecay:  extractFloat64Param(state.Parameters, "weight_decay", sgd.weightDecay),
		Nesterov:     extractBoolParam(state.Parameters, "nesterov", sgd.nesterov),
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid SGD state: %w", err)
	}

	index := make(map[string]int, len(sgd.params))
	for i, p := range sgd.params {
		index[p.Name] = i
	}

	buffers := make([][]float64, len(sgd.params))
	for _, tensor := range state.StateData {
		if tensor.StateType != momentumStateType {
			continue
		}
		i, ok := index[tensor.Name]
		if !ok {
			return fmt.Errorf("momentum buffer for unknown parameter: %s", tensor.Name)
		}
		p := sgd.params[i]
		data, err := restoreBufferState(tensor, p.Value.Shape, len(p.Value.Data))
		if err != nil {
			return err
		}
		buffers[i] = data
	}

	sgd.learningRate = config.LearningRate
	sgd.momentum = config.Momentum
	sgd.weightDecay = config.WeightDecay
	sgd.nesterov = config.Nesterov
	sgd.stepCount = extractUint64Param(state.Parameters, "step_count", sgd.stepCount)
	sgd.momentumBuffers = buffers
	return nil
}
