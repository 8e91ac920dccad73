package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/tsawler/go-garments/tensor"
)

// gridRowLength is the number of images per grid row
const gridRowLength = 8

// MakeGrid tiles a normalized [N,1,H,W] batch into one grayscale image,
// up to eight tiles per row. Tiles are separated by padding pixels holding
// the normalized value 0. Every pixel is un-normalized with x/2+0.5 and
// clamped to [0, 1] before it is quantized
func MakeGrid(batch *tensor.Tensor, padding int) (*image.Gray, error) {
	if batch == nil {
		return nil, fmt.Errorf("cannot make a grid from a nil batch")
	}
	if len(batch.Shape) != 4 {
		return nil, fmt.Errorf("grid expects a [N,1,H,W] batch, got shape %v", batch.Shape)
	}
	if batch.Shape[1] != 1 {
		return nil, fmt.Errorf("grid expects single-channel images, got %d channels", batch.Shape[1])
	}
	if padding < 0 {
		return nil, fmt.Errorf("padding cannot be negative: %d", padding)
	}

	n, h, w := batch.Shape[0], batch.Shape[2], batch.Shape[3]
	cols := n
	if cols > gridRowLength {
		cols = gridRowLength
	}
	rows := (n + cols - 1) / cols

	width := cols*(w+padding) + padding
	height := rows*(h+padding) + padding
	img := image.NewGray(image.Rect(0, 0, width, height))

	background := toGray(0)
	for i := range img.Pix {
		img.Pix[i] = background.Y
	}

	plane := h * w
	for k := 0; k < n; k++ {
		x0 := (k%cols)*(w+padding) + padding
		y0 := (k/cols)*(h+padding) + padding
		src := batch.Data[k*plane : (k+1)*plane]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetGray(x0+x, y0+y, toGray(src[y*w+x]))
			}
		}
	}
	return img, nil
}

func toGray(v float64) color.Gray {
	u := Unnormalize(v)
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	return color.Gray{Y: uint8(u*255 + 0.5)}
}

// SaveGridPNG writes MakeGrid's output to path as a PNG
func SaveGridPNG(path string, batch *tensor.Tensor, padding int) error {
	img, err := MakeGrid(batch, padding)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create grid image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode grid image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close grid image: %w", err)
	}
	return nil
}
