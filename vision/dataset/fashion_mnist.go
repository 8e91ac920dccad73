package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/go-garments/tensor"
	"github.com/tsawler/go-garments/vision/preprocessing"
)

// Classes are the Fashion-MNIST label names, indexed by label
var Classes = []string{
	"T-shirt/top", "Trouser", "Pullover", "Dress", "Coat",
	"Sandal", "Shirt", "Sneaker", "Bag", "Ankle Boot",
}

// FashionMNISTConfig controls where the dataset lives and how it is loaded
type FashionMNISTConfig struct {
	Root      string
	Train     bool
	Download  bool
	Transform preprocessing.Transform

	// Mirror is the base URL archives are fetched from
	Mirror string
	Client *http.Client

	// CacheSize bounds the number of transformed samples kept in memory.
	// Zero disables caching
	CacheSize int

	// Output receives download progress. Nil is silent
	Output io.Writer
}

// FashionMNIST is one split of the Fashion-MNIST garment dataset. Get is
// safe for concurrent use
type FashionMNIST struct {
	root      string
	train     bool
	images    *idxImages
	labels    []byte
	transform preprocessing.Transform
	cache     *SampleCache
}

// NewFashionMNIST loads the training or test split from root, downloading
// missing archives when download is set
func NewFashionMNIST(root string, train, download bool, transform preprocessing.Transform) (*FashionMNIST, error) {
	return OpenFashionMNIST(context.Background(), FashionMNISTConfig{
		Root:      root,
		Train:     train,
		Download:  download,
		Transform: transform,
		Output:    os.Stdout,
	})
}

// OpenFashionMNIST loads a split according to config
func OpenFashionMNIST(ctx context.Context, config FashionMNISTConfig) (*FashionMNIST, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("dataset root cannot be empty")
	}
	if config.CacheSize < 0 {
		return nil, fmt.Errorf("cache size cannot be negative: %d", config.CacheSize)
	}

	d := &FashionMNIST{
		root:      config.Root,
		train:     config.Train,
		transform: config.Transform,
		cache:     NewSampleCache(config.CacheSize),
	}

	if config.Download {
		dl := &downloader{
			client: config.Client,
			mirror: config.Mirror,
			output: config.Output,
		}
		if dl.client == nil {
			dl.client = &http.Client{Timeout: 5 * time.Minute}
		}
		if dl.mirror == "" {
			dl.mirror = DefaultMirror
		}
		if err := dl.ensure(ctx, d.RawDir()); err != nil {
			return nil, err
		}
	}

	imagesFile, labelsFile := testImagesFile, testLabelsFile
	if config.Train {
		imagesFile, labelsFile = trainImagesFile, trainLabelsFile
	}

	imgs, err := loadIDXImages(filepath.Join(d.RawDir(), imagesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dataset not found in %s, enable download to fetch it: %w", d.RawDir(), err)
		}
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, err := loadIDXLabels(filepath.Join(d.RawDir(), labelsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("dataset not found in %s, enable download to fetch it: %w", d.RawDir(), err)
		}
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}

	if imgs.count != len(labels) {
		return nil, fmt.Errorf("image and label counts differ: %d vs %d", imgs.count, len(labels))
	}
	for i, l := range labels {
		if int(l) >= len(Classes) {
			return nil, fmt.Errorf("label %d at index %d is out of range", l, i)
		}
	}

	d.images = imgs
	d.labels = labels
	return d, nil
}

// RawDir is the directory holding the gzipped IDX archives
func (d *FashionMNIST) RawDir() string {
	return filepath.Join(d.root, "FashionMNIST", "raw")
}

// Train reports whether this is the training split
func (d *FashionMNIST) Train() bool {
	return d.train
}

// Len returns the number of samples
func (d *FashionMNIST) Len() int {
	return len(d.labels)
}

// Classes returns the label names
func (d *FashionMNIST) Classes() []string {
	return append([]string(nil), Classes...)
}

// Get returns sample idx as a [1,28,28] tensor after the transform, plus
// its label
func (d *FashionMNIST) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= d.Len() {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", idx, d.Len())
	}
	label := int(d.labels[idx])
	shape := []int{1, d.images.rows, d.images.cols}

	if data, ok := d.cache.Get(idx); ok {
		t, err := tensor.NewTensor(shape, append([]float64(nil), data...))
		return t, label, err
	}

	plane := d.images.rows * d.images.cols
	data := make([]float64, plane)
	for i, p := range d.images.pixels[idx*plane : (idx+1)*plane] {
		data[i] = float64(p)
	}
	sample, err := tensor.NewTensor(shape, data)
	if err != nil {
		return nil, 0, err
	}

	if d.transform != nil {
		sample, err = d.transform.Apply(sample)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to transform sample %d: %w", idx, err)
		}
	}

	if tensor.ShapesEqual(sample.Shape, shape) {
		d.cache.Put(idx, append([]float64(nil), sample.Data...))
	}
	return sample, label, nil
}

// CacheStats reports the sample cache statistics
func (d *FashionMNIST) CacheStats() CacheStats {
	return d.cache.Stats()
}
