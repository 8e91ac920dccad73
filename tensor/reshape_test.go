package tensor

import (
	"reflect"
	"testing"
)

func TestTensorReshape(t *testing.T) {
	t.Run("Basic reshape", func(t *testing.T) {
		data := []float64{1, 2, 3, 4, 5, 6}
		tensor, err := NewTensor([]int{2, 3}, data)
		if err != nil {
			t.Fatalf("Failed to create tensor: %v", err)
		}

		reshaped, err := Reshape(tensor, []int{3, 2})
		if err != nil {
			t.Fatalf("Failed to reshape tensor: %v", err)
		}

		if !reflect.DeepEqual(reshaped.Shape, []int{3, 2}) {
			t.Errorf("Expected shape [3 2], got %v", reshaped.Shape)
		}

		// Reshape shares storage
		reshaped.Data[0] = 42
		if tensor.Data[0] != 42 {
			t.Error("Reshape should share the underlying data")
		}
	})

	t.Run("Reshape with -1", func(t *testing.T) {
		tensor, _ := Zeros([]int{12})
		reshaped, err := Reshape(tensor, []int{3, -1})
		if err != nil {
			t.Fatalf("Failed to reshape tensor: %v", err)
		}
		if !reflect.DeepEqual(reshaped.Shape, []int{3, 4}) {
			t.Errorf("Expected shape [3 4], got %v", reshaped.Shape)
		}
	})

	t.Run("Invalid reshapes", func(t *testing.T) {
		tensor, _ := Zeros([]int{12})
		if _, err := Reshape(tensor, []int{5, -1}); err == nil {
			t.Error("Expected error when -1 cannot be inferred")
		}
		if _, err := Reshape(tensor, []int{-1, -1}); err == nil {
			t.Error("Expected error for two inferred dimensions")
		}
		if _, err := Reshape(tensor, []int{5, 5}); err == nil {
			t.Error("Expected error for size mismatch")
		}
	})
}

func TestFlatten(t *testing.T) {
	tensor, _ := Zeros([]int{4, 16, 4, 4})
	flat, err := Flatten(tensor)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if !reflect.DeepEqual(flat.Shape, []int{4, 256}) {
		t.Errorf("Expected shape [4 256], got %v", flat.Shape)
	}
}

func TestStack(t *testing.T) {
	a, _ := NewTensor([]int{1, 2}, []float64{1, 2})
	b, _ := NewTensor([]int{1, 2}, []float64{3, 4})
	stacked, err := Stack([]*Tensor{a, b})
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}
	if !reflect.DeepEqual(stacked.Shape, []int{2, 1, 2}) {
		t.Errorf("Expected shape [2 1 2], got %v", stacked.Shape)
	}
	if !reflect.DeepEqual(stacked.Data, []float64{1, 2, 3, 4}) {
		t.Errorf("Unexpected stacked data %v", stacked.Data)
	}
	if !reflect.DeepEqual(stacked.Row(1), []float64{3, 4}) {
		t.Errorf("Row(1) = %v", stacked.Row(1))
	}

	c, _ := NewTensor([]int{2}, []float64{1, 2})
	if _, err := Stack([]*Tensor{a, c}); err == nil {
		t.Error("Expected error for mismatched shapes")
	}
	if _, err := Stack(nil); err == nil {
		t.Error("Expected error for empty input")
	}
}
