package preprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// halfImage returns a w x h image whose left half is black and right half white
func halfImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if x >= w/2 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeAndPreprocessPNG(t *testing.T) {
	p := NewImageProcessor(4)
	out, err := p.DecodeAndPreprocess(bytes.NewReader(encodePNG(t, halfImage(8, 8))))
	if err != nil {
		t.Fatalf("DecodeAndPreprocess failed: %v", err)
	}

	if len(out.Shape) != 3 || out.Shape[0] != 1 || out.Shape[1] != 4 || out.Shape[2] != 4 {
		t.Fatalf("Expected shape [1 4 4], got %v", out.Shape)
	}
	for y := 0; y < 4; y++ {
		if out.Data[y*4] != 0 || out.Data[y*4+3] != 255 {
			t.Errorf("Row %d: expected 0 and 255 at the edges, got %v", y, out.Data[y*4:y*4+4])
		}
	}
}

func TestDecodeAndPreprocessInvert(t *testing.T) {
	p := NewImageProcessor(2)
	p.Invert = true
	out, err := p.DecodeAndPreprocess(bytes.NewReader(encodePNG(t, halfImage(2, 2))))
	if err != nil {
		t.Fatalf("DecodeAndPreprocess failed: %v", err)
	}
	if out.Data[0] != 255 || out.Data[1] != 0 {
		t.Errorf("Expected inverted pixels [255 0], got %v", out.Data[:2])
	}
}

func TestDecodeAndPreprocessJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, halfImage(16, 16), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}

	out, err := NewImageProcessor(28).DecodeAndPreprocess(&buf)
	if err != nil {
		t.Fatalf("DecodeAndPreprocess failed: %v", err)
	}
	if out.NumElems != 28*28 {
		t.Errorf("Expected 784 elements, got %d", out.NumElems)
	}
	for _, v := range out.Data {
		if v < 0 || v > 255 {
			t.Fatalf("Pixel value %f out of range", v)
		}
	}
}

func TestDecodeAndPreprocessErrors(t *testing.T) {
	if _, err := NewImageProcessor(28).DecodeAndPreprocess(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("Expected error for invalid image data")
	}
	if _, err := NewImageProcessor(0).DecodeAndPreprocess(bytes.NewReader(encodePNG(t, halfImage(2, 2)))); err == nil {
		t.Error("Expected error for zero target size")
	}
}

func TestPreprocessBatch(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i, size := range []int{4, 8, 12} {
		path := filepath.Join(dir, string(rune('a'+i))+".png")
		if err := os.WriteFile(path, encodePNG(t, halfImage(size, size)), 0644); err != nil {
			t.Fatalf("Failed to write image: %v", err)
		}
		paths = append(paths, path)
	}

	results, err := PreprocessBatch(paths, 4, false, 2)
	if err != nil {
		t.Fatalf("PreprocessBatch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r == nil || r.Data[0] != 0 || r.Data[3] != 255 {
			t.Errorf("Result %d has unexpected pixels", i)
		}
	}

	_, err = PreprocessBatch(append(paths, filepath.Join(dir, "missing.png")), 4, false, 0)
	if err == nil {
		t.Error("Expected error for missing file")
	}
}
