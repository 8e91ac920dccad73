package tensor

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestCalculateStrides(t *testing.T) {
	tests := []struct {
		shape    []int
		expected []int
	}{
		{[]int{}, []int{}},
		{[]int{5}, []int{1}},
		{[]int{2, 3}, []int{3, 1}},
		{[]int{2, 3, 4}, []int{12, 4, 1}},
		{[]int{1, 5, 1, 3}, []int{15, 3, 3, 1}},
	}

	for _, test := range tests {
		result := calculateStrides(test.shape)
		if !reflect.DeepEqual(result, test.expected) {
			t.Errorf("calculateStrides(%v) = %v, expected %v", test.shape, result, test.expected)
		}
	}
}

func TestNewTensor(t *testing.T) {
	t.Run("Wraps data", func(t *testing.T) {
		data := []float64{1, 2, 3, 4, 5, 6}
		tensor, err := NewTensor([]int{2, 3}, data)
		if err != nil {
			t.Fatalf("Failed to create tensor: %v", err)
		}
		if tensor.NumElems != 6 {
			t.Errorf("Expected 6 elements, got %d", tensor.NumElems)
		}
		v, err := tensor.At(1, 2)
		if err != nil {
			t.Fatalf("At failed: %v", err)
		}
		if v != 6 {
			t.Errorf("Expected At(1, 2) = 6, got %g", v)
		}
	})

	t.Run("Rejects bad shapes", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 0}, nil); err == nil {
			t.Error("Expected error for zero dimension")
		}
		if _, err := NewTensor([]int{}, nil); err == nil {
			t.Error("Expected error for empty shape")
		}
		if _, err := NewTensor([]int{2, 2}, []float64{1, 2, 3}); err == nil {
			t.Error("Expected error for data length mismatch")
		}
	})

	t.Run("At bounds", func(t *testing.T) {
		tensor, _ := Zeros([]int{2, 2})
		if _, err := tensor.At(2, 0); err == nil {
			t.Error("Expected out of range error")
		}
		if _, err := tensor.At(0); err == nil {
			t.Error("Expected index count error")
		}
	})
}

func TestRandomUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tensor, err := RandomUniform([]int{100}, -0.5, 0.5, rng)
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	for i, v := range tensor.Data {
		if v < -0.5 || v >= 0.5 {
			t.Fatalf("Value %g at %d outside [-0.5, 0.5)", v, i)
		}
	}

	again, _ := RandomUniform([]int{100}, -0.5, 0.5, rand.New(rand.NewSource(1)))
	if !tensor.Equal(again) {
		t.Error("Expected identical samples for identical seeds")
	}

	if _, err := RandomUniform([]int{1}, 1, 0, rng); err == nil {
		t.Error("Expected error for inverted range")
	}
}

func TestCloneAndEqual(t *testing.T) {
	original, _ := NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	clone := original.Clone()
	if !original.Equal(clone) {
		t.Fatal("Clone should be equal to original")
	}

	clone.Data[0] = 10
	if original.Data[0] != 1 {
		t.Error("Clone must not share storage")
	}
	if original.Equal(clone) {
		t.Error("Tensors with different data should not be equal")
	}

	nan1, _ := NewTensor([]int{1}, []float64{math.NaN()})
	nan2 := nan1.Clone()
	if !nan1.Equal(nan2) {
		t.Error("Equal compares bits, identical NaNs should match")
	}

	other, _ := NewTensor([]int{4}, []float64{1, 2, 3, 4})
	if original.Equal(other) {
		t.Error("Tensors with different shapes should not be equal")
	}
}

func TestFullAndZero(t *testing.T) {
	tensor, err := Full([]int{3}, 2.5)
	if err != nil {
		t.Fatalf("Full failed: %v", err)
	}
	for _, v := range tensor.Data {
		if v != 2.5 {
			t.Fatalf("Expected 2.5, got %g", v)
		}
	}
	tensor.Zero()
	for _, v := range tensor.Data {
		if v != 0 {
			t.Fatalf("Expected 0 after Zero, got %g", v)
		}
	}
}
