package optimizer

import (
	"fmt"

	"github.com/tsawler/go-garments/checkpoints"
)

// extractBufferState copies a state buffer into checkpoint form
func extractBufferState(buffer []float64, shape []int, name string, stateType string) checkpoints.OptimizerTensor {
	data := make([]float64, len(buffer))
	copy(data, buffer)
	s := make([]int, len(shape))
	copy(s, shape)

	return checkpoints.OptimizerTensor{
		Name:      name,
		Shape:     s,
		Data:      data,
		StateType: stateType,
	}
}

// restoreBufferState validates a checkpoint tensor against the expected shape and returns a copy of its data
func restoreBufferState(tensor checkpoints.OptimizerTensor, shape []int, size int) ([]float64, error) {
	if len(tensor.Shape) != len(shape) {
		return nil, fmt.Errorf("state tensor %s has shape %v, expected %v", tensor.Name, tensor.Shape, shape)
	}
	for i := range shape {
		if tensor.Shape[i] != shape[i] {
			return nil, fmt.Errorf("state tensor %s has shape %v, expected %v", tensor.Name, tensor.Shape, shape)
		}
	}
	if len(tensor.Data) != size {
		return nil, fmt.Errorf("state tensor %s has %d values, expected %d", tensor.Name, len(tensor.Data), size)
	}

	data := make([]float64, size)
	copy(data, tensor.Data)
	return data, nil
}

// extractFloat64Param safely extracts a float parameter from the state map.
// Values decoded from JSON arrive as float64
func extractFloat64Param(params map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := params[key].(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	}
	return defaultValue
}

// extractBoolParam safely extracts a bool parameter from the state map
func extractBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := params[key].(bool); ok {
		return val
	}
	return defaultValue
}

// extractUint64Param safely extracts a uint64 parameter from the state map
func extractUint64Param(params map[string]interface{}, key string, defaultValue uint64) uint64 {
	switch val := params[key].(type) {
	case uint64:
		return val
	case int:
		return uint64(val)
	case float64:
		return uint64(val)
	}
	return defaultValue
}
