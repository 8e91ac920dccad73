package training

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tsawler/go-garments/tensor"
)

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	// Len returns the total number of samples
	Len() int
	// Get returns one sample and its class label
	Get(idx int) (*tensor.Tensor, int, error)
}

// DataLoaderConfig holds configuration for the data loader
type DataLoaderConfig struct {
	BatchSize     int   // Samples per batch
	Shuffle       bool  // Reshuffle the sample order at the start of every epoch
	DropLast      bool  // Drop a trailing partial batch
	NumWorkers    int   // Batch assembly goroutines (0 = number of physical cores)
	PrefetchDepth int   // Batches assembled ahead of the consumer (0 = 2 per worker)
	Seed          int64 // Shuffle seed (0 = seeded from the clock)
}

// DefaultDataLoaderConfig returns the configuration used for the garment splits
func DefaultDataLoaderConfig() DataLoaderConfig {
	return DataLoaderConfig{
		BatchSize:     4,
		Shuffle:       false,
		DropLast:      false,
		NumWorkers:    2,
		PrefetchDepth: 0,
	}
}

// DefaultWorkers returns the number of physical cores, falling back to the
// logical CPU count when cpuid cannot tell
func DefaultWorkers() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DataLoader provides batching, shuffling and concurrent batch assembly
type DataLoader struct {
	dataset Dataset
	config  DataLoaderConfig

	mutex sync.Mutex
	rng   *rand.Rand
}

// NewDataLoader creates a new DataLoader
func NewDataLoader(dataset Dataset, config DataLoaderConfig) (*DataLoader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset cannot be nil")
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.PrefetchDepth < 0 {
		return nil, fmt.Errorf("prefetch depth cannot be negative, got %d", config.PrefetchDepth)
	}

	// Set defaults
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultWorkers()
	}
	if config.PrefetchDepth == 0 {
		config.PrefetchDepth = 2 * config.NumWorkers
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &DataLoader{
		dataset: dataset,
		config:  config,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Batch represents a batch of images and their labels
type Batch struct {
	Index  int            // Position of the batch within the epoch
	Data   *tensor.Tensor // [N, ...sample shape]
	Labels []int
}

// Size returns the number of samples in the batch
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	if dl.config.DropLast {
		return n / dl.config.BatchSize
	}
	return (n + dl.config.BatchSize - 1) / dl.config.BatchSize
}

// NumSamples returns the size of the underlying dataset
func (dl *DataLoader) NumSamples() int {
	return dl.dataset.Len()
}

// Config returns the effective configuration, defaults applied
func (dl *DataLoader) Config() DataLoaderConfig {
	return dl.config
}

// epochIndices returns the sample order for one epoch
func (dl *DataLoader) epochIndices() []int {
	indices := make([]int, dl.dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	if dl.config.Shuffle {
		dl.mutex.Lock()
		dl.rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		dl.mutex.Unlock()
	}
	return indices
}

// Iter starts one epoch. Batches are assembled by NumWorkers goroutines at
// most PrefetchDepth batches ahead and are delivered in order. The caller
// must Close the iterator
func (dl *DataLoader) Iter(ctx context.Context) *BatchIterator {
	indices := dl.epochIndices()
	numBatches := dl.Len()

	ctx, cancel := context.WithCancel(ctx)
	it := &BatchIterator{
		ctx:    ctx,
		cancel: cancel,
		order:  make(chan chan batchResult, dl.config.PrefetchDepth),
	}

	jobs := make(chan batchJob)

	// Dispatcher: reserves an ordered slot for each batch, then hands it to a worker
	it.wg.Add(1)
	go func() {
		defer it.wg.Done()
		defer close(jobs)
		defer close(it.order)

		for b := 0; b < numBatches; b++ {
			start := b * dl.config.BatchSize
			end := start + dl.config.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			job := batchJob{index: b, indices: indices[start:end], result: make(chan batchResult, 1)}

			select {
			case it.order <- job.result:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < dl.config.NumWorkers; w++ {
		it.wg.Add(1)
		go func() {
			defer it.wg.Done()
			for job := range jobs {
				batch, err := dl.loadBatch(job.index, job.indices)
				job.result <- batchResult{batch: batch, err: err}
			}
		}()
	}

	return it
}

// loadBatch loads a batch of samples and stacks them into one tensor
func (dl *DataLoader) loadBatch(index int, indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	samples := make([]*tensor.Tensor, len(indices))
	labels := make([]int, len(indices))
	for i, idx := range indices {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", idx, err)
		}
		samples[i] = data
		labels[i] = label
	}

	data, err := tensor.Stack(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to stack batch %d: %w", index, err)
	}

	return &Batch{Index: index, Data: data, Labels: labels}, nil
}

type batchJob struct {
	index   int
	indices []int
	result  chan batchResult
}

type batchResult struct {
	batch *Batch
	err   error
}

// BatchIterator walks the batches of one epoch
type BatchIterator struct {
	ctx    context.Context
	cancel context.CancelFunc
	order  chan chan batchResult
	wg     sync.WaitGroup
	err    error
}

// Next blocks until the next batch is ready. It returns (nil, nil) once the
// epoch is exhausted. After an error every further call returns that error
func (it *BatchIterator) Next() (*Batch, error) {
	if it.err != nil {
		return nil, it.err
	}

	var result chan batchResult
	select {
	case ch, ok := <-it.order:
		if !ok {
			if err := it.ctx.Err(); err != nil {
				it.err = err
				return nil, err
			}
			return nil, nil // End of epoch
		}
		result = ch
	case <-it.ctx.Done():
		it.err = it.ctx.Err()
		return nil, it.err
	}

	select {
	case res := <-result:
		if res.err != nil {
			it.err = res.err
			it.cancel()
			return nil, res.err
		}
		return res.batch, nil
	case <-it.ctx.Done():
		it.err = it.ctx.Err()
		return nil, it.err
	}
}

// Close stops the workers and waits for them to exit
func (it *BatchIterator) Close() {
	it.cancel()
	it.wg.Wait()
}

// SimpleDataset is an in-memory dataset
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []int
}

// NewSimpleDataset creates a dataset from matching samples and labels
func NewSimpleDataset(data []*tensor.Tensor, labels []int) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have same length: %d vs %d", len(data), len(labels))
	}
	return &SimpleDataset{data: data, labels: labels}, nil
}

// Len returns the number of samples
func (sd *SimpleDataset) Len() int {
	return len(sd.data)
}

// Get returns the sample at idx
func (sd *SimpleDataset) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= len(sd.data) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(sd.data))
	}
	return sd.data[idx], sd.labels[idx], nil
}
