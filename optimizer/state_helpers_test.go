package optimizer

import (
	"testing"

	"github.com/tsawler/go-garments/checkpoints"
)

func TestExtractParams(t *testing.T) {
	params := map[string]interface{}{
		"learning_rate": 0.01,
		"momentum":      float32(0.5),
		"nesterov":      true,
		"step_count":    float64(12),
		"int_steps":     7,
		"wrong_type":    "x",
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"float64", extractFloat64Param(params, "learning_rate", 0), 0.01},
		{"float32 widened", extractFloat64Param(params, "momentum", 0), 0.5},
		{"float default", extractFloat64Param(params, "wrong_type", 0.3), 0.3},
		{"bool", extractBoolParam(params, "nesterov", false), true},
		{"bool default", extractBoolParam(params, "missing", true), true},
		{"uint64 from JSON float", extractUint64Param(params, "step_count", 0), uint64(12)},
		{"uint64 from int", extractUint64Param(params, "int_steps", 0), uint64(7)},
		{"uint64 default", extractUint64Param(params, "wrong_type", 3), uint64(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestExtractBufferStateCopies(t *testing.T) {
	buf := []float64{1, 2, 3, 4}
	shape := []int{2, 2}
	state := extractBufferState(buf, shape, "fc.weight", "momentum")

	buf[0] = 99
	shape[0] = 9
	if state.Data[0] != 1 || state.Shape[0] != 2 {
		t.Error("extractBufferState should copy data and shape")
	}
	if state.Name != "fc.weight" || state.StateType != "momentum" {
		t.Errorf("Unexpected metadata: %+v", state)
	}
}

func TestRestoreBufferState(t *testing.T) {
	good := checkpoints.OptimizerTensor{Name: "w", Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}

	data, err := restoreBufferState(good, []int{2, 2}, 4)
	if err != nil {
		t.Fatalf("restoreBufferState failed: %v", err)
	}
	data[0] = 99
	if good.Data[0] != 1 {
		t.Error("restoreBufferState should return a copy")
	}

	bad := []struct {
		name  string
		state checkpoints.OptimizerTensor
	}{
		{"rank", checkpoints.OptimizerTensor{Name: "w", Shape: []int{4}, Data: []float64{1, 2, 3, 4}}},
		{"dims", checkpoints.OptimizerTensor{Name: "w", Shape: []int{1, 4}, Data: []float64{1, 2, 3, 4}}},
		{"size", checkpoints.OptimizerTensor{Name: "w", Shape: []int{2, 2}, Data: []float64{1, 2, 3}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := restoreBufferState(tt.state, []int{2, 2}, 4); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestValidateStateType(t *testing.T) {
	if err := validateStateType("SGD", nil); err == nil {
		t.Error("Expected error for nil state")
	}
	if err := validateStateType("SGD", &OptimizerState{Type: "Adam"}); err == nil {
		t.Error("Expected error for mismatched type")
	}
	if err := validateStateType("SGD", &OptimizerState{Type: "SGD"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
