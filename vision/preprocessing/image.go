package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sync"

	"github.com/tsawler/go-garments/tensor"
)

// ImageProcessor turns arbitrary PNG or JPEG images into [1,S,S] tensors of
// raw 8-bit gray values, the same layout the Fashion-MNIST dataset yields
// before its transform runs
type ImageProcessor struct {
	mu         sync.Mutex
	grayBuffer *image.Gray
	targetSize int

	// Invert flips dark-on-light photos into the light-on-dark style of
	// the Fashion-MNIST scans
	Invert bool
}

// NewImageProcessor creates a new image processor with the specified target size
func NewImageProcessor(targetSize int) *ImageProcessor {
	return &ImageProcessor{
		targetSize: targetSize,
	}
}

// DecodeAndPreprocess decodes an image, converts it to grayscale and
// resizes it with nearest-neighbour sampling
func (p *ImageProcessor) DecodeAndPreprocess(reader io.Reader) (*tensor.Tensor, error) {
	if p.targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", p.targetSize)
	}

	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Reuse image buffer
	if p.grayBuffer == nil || p.grayBuffer.Bounds().Dx() != p.targetSize {
		p.grayBuffer = image.NewGray(image.Rect(0, 0, p.targetSize, p.targetSize))
	}
	target := p.grayBuffer

	scaleX := float64(width) / float64(p.targetSize)
	scaleY := float64(height) / float64(p.targetSize)

	for y := 0; y < p.targetSize; y++ {
		for x := 0; x < p.targetSize; x++ {
			srcX := int(float64(x) * scaleX)
			srcY := int(float64(y) * scaleY)
			if srcX >= width {
				srcX = width - 1
			}
			if srcY >= height {
				srcY = height - 1
			}
			g := color.GrayModel.Convert(img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY)).(color.Gray)
			target.SetGray(x, y, g)
		}
	}

	data := make([]float64, p.targetSize*p.targetSize)
	for i, v := range target.Pix[:len(data)] {
		if p.Invert {
			v = 255 - v
		}
		data[i] = float64(v)
	}
	return tensor.NewTensor([]int{1, p.targetSize, p.targetSize}, data)
}

// PreprocessBatch preprocesses multiple image files concurrently, keeping
// the input order
func PreprocessBatch(imagePaths []string, targetSize int, invert bool, maxWorkers int) ([]*tensor.Tensor, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*tensor.Tensor, len(imagePaths))
	errs := make([]error, len(imagePaths))

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(imagePaths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := NewImageProcessor(targetSize)
			processor.Invert = invert

			for j := range jobs {
				file, err := os.Open(j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}

				img, err := processor.DecodeAndPreprocess(file)
				file.Close()

				if err != nil {
					errs[j.index] = err
				} else {
					results[j.index] = img
				}
			}
		}()
	}

	for i, path := range imagePaths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process image %d (%s): %w", i, imagePaths[i], err)
		}
	}

	return results, nil
}
