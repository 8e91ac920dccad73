package training

import (
	"fmt"

	"github.com/tsawler/go-garments/tensor"
)

// SubsetDataset exposes only the first limit samples of another dataset
type SubsetDataset struct {
	original Dataset
	limit    int
}

// NewSubsetDataset wraps original, clamping limit to its length
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if original == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if limit > original.Len() {
		limit = original.Len()
	}
	return &SubsetDataset{original: original, limit: limit}, nil
}

// Len returns min(limit, original length)
func (sd *SubsetDataset) Len() int {
	return sd.limit
}

// Get forwards to the original dataset
func (sd *SubsetDataset) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= sd.limit {
		return nil, 0, fmt.Errorf("index out of bounds for subset: %d (limit: %d)", idx, sd.limit)
	}
	return sd.original.Get(idx)
}
