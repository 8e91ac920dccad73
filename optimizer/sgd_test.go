package optimizer

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/tsawler/go-garments/checkpoints"
	"github.com/tsawler/go-garments/layers"
	"github.com/tsawler/go-garments/tensor"
)

const tolerance = 1e-12

func newParam(t *testing.T, name string, values ...float64) *layers.Parameter {
	t.Helper()
	value, err := tensor.NewTensor([]int{len(values)}, append([]float64(nil), values...))
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	grad, err := tensor.Zeros([]int{len(values)})
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}
	return &layers.Parameter{Name: name, Layer: "test", Type: "weight", Value: value, Grad: grad}
}

func assertClose(t *testing.T, got, want float64, msg string) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

func TestDefaultSGDConfig(t *testing.T) {
	config := DefaultSGDConfig()

	if config.LearningRate != 0.001 {
		t.Errorf("Expected learning rate 0.001, got %f", config.LearningRate)
	}
	if config.Momentum != 0.9 {
		t.Errorf("Expected momentum 0.9, got %f", config.Momentum)
	}
	if config.WeightDecay != 0 {
		t.Errorf("Expected weight decay 0, got %f", config.WeightDecay)
	}
	if config.Nesterov {
		t.Error("Expected Nesterov to be disabled")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestSGDParameterValidation(t *testing.T) {
	tests := []struct {
		name   string
		config SGDConfig
		valid  bool
	}{
		{"ZeroLearningRate", SGDConfig{LearningRate: 0}, true},
		{"NegativeLearningRate", SGDConfig{LearningRate: -0.1}, false},
		{"NegativeMomentum", SGDConfig{LearningRate: 0.1, Momentum: -0.1}, false},
		{"MomentumOne", SGDConfig{LearningRate: 0.1, Momentum: 1.0}, true},
		{"MomentumAboveOne", SGDConfig{LearningRate: 0.1, Momentum: 1.1}, false},
		{"NegativeWeightDecay", SGDConfig{LearningRate: 0.1, WeightDecay: -1}, false},
		{"NesterovWithoutMomentum", SGDConfig{LearningRate: 0.1, Nesterov: true}, false},
		{"NesterovWithMomentum", SGDConfig{LearningRate: 0.1, Momentum: 0.9, Nesterov: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSGD(tt.config, []*layers.Parameter{newParam(t, "w", 1)})
			if tt.valid && err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

func TestSGDInvalidParameters(t *testing.T) {
	if _, err := NewSGD(DefaultSGDConfig(), nil); err == nil {
		t.Error("Expected error for empty parameter list")
	}
	if _, err := NewSGD(DefaultSGDConfig(), []*layers.Parameter{newParam(t, "w", 1), newParam(t, "w", 2)}); err == nil {
		t.Error("Expected error for duplicate parameter names")
	}
	if _, err := NewSGD(DefaultSGDConfig(), []*layers.Parameter{{Name: "empty"}}); err == nil {
		t.Error("Expected error for uninitialized parameter")
	}
}

func TestSGDVanillaStep(t *testing.T) {
	p := newParam(t, "w", 1, -2)
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1}, []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	p.Grad.Data[0], p.Grad.Data[1] = 0.5, -1
	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	assertClose(t, p.Value.Data[0], 0.95, "w[0]")
	assertClose(t, p.Value.Data[1], -1.9, "w[1]")
	if sgd.GetStepCount() != 1 {
		t.Errorf("Expected step count 1, got %d", sgd.GetStepCount())
	}
}

func TestSGDMomentum(t *testing.T) {
	p := newParam(t, "w", 0)
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9}, []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	// Constant gradient of 1: v1 = 1, v2 = 0.9 + 1 = 1.9
	expected := []float64{-0.1, -0.29}
	for i, want := range expected {
		p.Grad.Data[0] = 1
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		assertClose(t, p.Value.Data[0], want, "momentum step")
	}
}

func TestSGDNesterovFlag(t *testing.T) {
	p := newParam(t, "w", 0)
	sgd, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9, Nesterov: true}, []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	// Step 1: v = 1, update = 1 + 0.9*1 = 1.9
	// Step 2: v = 1.9, update = 1 + 0.9*1.9 = 2.71
	expected := []float64{-0.19, -0.461}
	for i, want := range expected {
		p.Grad.Data[0] = 1
		if err := sgd.Step(); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		assertClose(t, p.Value.Data[0], want, "nesterov step")
	}
}

func TestSGDWeightDecay(t *testing.T) {
	p := newParam(t, "w", 1)
	sgd, err := NewSGD(SGDConfig{LearningRate: 1, WeightDecay: 0.1}, []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	if err := sgd.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	assertClose(t, p.Value.Data[0], 0.9, "weight decay with zero gradient")

	// Gradients are not modified by the decay term
	if p.Grad.Data[0] != 0 {
		t.Errorf("Gradient modified by Step: %v", p.Grad.Data[0])
	}
}

func TestSGDZeroGradAndLearningRate(t *testing.T) {
	p := newParam(t, "w", 1, 2, 3)
	sgd, err := NewSGD(DefaultSGDConfig(), []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	p.Grad.Data[1] = 7
	sgd.ZeroGrad()
	for i, g := range p.Grad.Data {
		if g != 0 {
			t.Errorf("grad[%d] = %v after ZeroGrad", i, g)
		}
	}

	sgd.UpdateLearningRate(0.5)
	if sgd.LearningRate() != 0.5 {
		t.Errorf("Expected learning rate 0.5, got %v", sgd.LearningRate())
	}

	var _ Optimizer = sgd
}

func TestSGDCheckpointing(t *testing.T) {
	grads := [][]float64{{1, -1}, {0.5, 0.25}, {-2, 3}}

	a := newParam(t, "w", 1, 1)
	optA, err := NewSGD(SGDConfig{LearningRate: 0.1, Momentum: 0.9, WeightDecay: 0.01}, []*layers.Parameter{a})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}
	for _, g := range grads[:2] {
		copy(a.Grad.Data, g)
		if err := optA.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	state, err := optA.GetState()
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Type != "SGD" || len(state.StateData) != 1 || state.StateData[0].Name != "w" {
		t.Fatalf("Unexpected state: %+v", state)
	}

	// Round trip through JSON as a checkpoint would
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded OptimizerState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	b := newParam(t, "w", a.Value.Data...)
	optB, err := NewSGD(SGDConfig{LearningRate: 0.7}, []*layers.Parameter{b})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}
	if err := optB.LoadState(&decoded); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if optB.GetStepCount() != 2 {
		t.Errorf("Expected restored step count 2, got %d", optB.GetStepCount())
	}
	if optB.LearningRate() != 0.1 {
		t.Errorf("Expected restored learning rate 0.1, got %v", optB.LearningRate())
	}

	copy(a.Grad.Data, grads[2])
	copy(b.Grad.Data, grads[2])
	if err := optA.Step(); err != nil {
		t.Fatal(err)
	}
	if err := optB.Step(); err != nil {
		t.Fatal(err)
	}
	for i := range a.Value.Data {
		if a.Value.Data[i] != b.Value.Data[i] {
			t.Errorf("Resumed optimizer diverged at %d: %v vs %v", i, a.Value.Data[i], b.Value.Data[i])
		}
	}
}

func TestSGDLoadStateErrors(t *testing.T) {
	p := newParam(t, "w", 1, 2)
	sgd, err := NewSGD(DefaultSGDConfig(), []*layers.Parameter{p})
	if err != nil {
		t.Fatalf("NewSGD failed: %v", err)
	}

	tests := []struct {
		name  string
		state *OptimizerState
	}{
		{"Nil", nil},
		{"WrongType", &OptimizerState{Type: "Adam"}},
		{"UnknownParameter", &OptimizerState{Type: "SGD", StateData: []checkpoints.OptimizerTensor{
			{Name: "other", Shape: []int{2}, Data: []float64{1, 2}, StateType: momentumStateType},
		}}},
		{"ShapeMismatch", &OptimizerState{Type: "SGD", StateData: []checkpoints.OptimizerTensor{
			{Name: "w", Shape: []int{3}, Data: []float64{1, 2, 3}, StateType: momentumStateType},
		}}},
		{"InvalidHyperparameters", &OptimizerState{Type: "SGD", Parameters: map[string]interface{}{"momentum": 2.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sgd.LoadState(tt.state); err == nil {
				t.Error("Expected error")
			}
			if sgd.LearningRate() != 0.001 {
				t.Errorf("Failed LoadState changed learning rate to %v", sgd.LearningRate())
			}
		})
	}
}
