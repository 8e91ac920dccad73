package preprocessing

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-garments/tensor"
)

func TestMakeGridLayout(t *testing.T) {
	// Four 2x3 images: image k is filled with a distinct normalized value
	values := []float64{-1, -0.5, 0.5, 1}
	batch, _ := tensor.Zeros([]int{4, 1, 2, 3})
	for k, v := range values {
		for i := 0; i < 6; i++ {
			batch.Data[k*6+i] = v
		}
	}

	img, err := MakeGrid(batch, 2)
	if err != nil {
		t.Fatalf("MakeGrid failed: %v", err)
	}

	b := img.Bounds()
	if b.Dx() != 4*(3+2)+2 || b.Dy() != 2+2+2 {
		t.Fatalf("Unexpected grid size %dx%d", b.Dx(), b.Dy())
	}

	// Padding holds normalized 0, shown as mid gray
	if got := img.GrayAt(0, 0).Y; got != 128 {
		t.Errorf("Expected padding value 128, got %d", got)
	}

	want := []uint8{0, 64, 191, 255}
	for k, w := range want {
		x := k*5 + 2
		if got := img.GrayAt(x, 2).Y; got != w {
			t.Errorf("Tile %d: expected %d, got %d", k, w, got)
		}
		if got := img.GrayAt(x+2, 3).Y; got != w {
			t.Errorf("Tile %d corner: expected %d, got %d", k, w, got)
		}
	}
}

func TestMakeGridWrapsRows(t *testing.T) {
	batch, _ := tensor.Zeros([]int{10, 1, 1, 1})
	img, err := MakeGrid(batch, 0)
	if err != nil {
		t.Fatalf("MakeGrid failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 2 {
		t.Errorf("Expected 8x2 grid, got %v", img.Bounds())
	}
}

func TestMakeGridClampsOutOfRange(t *testing.T) {
	batch, _ := tensor.NewTensor([]int{2, 1, 1, 1}, []float64{-5, 5})
	img, err := MakeGrid(batch, 0)
	if err != nil {
		t.Fatalf("MakeGrid failed: %v", err)
	}
	if img.GrayAt(0, 0).Y != 0 || img.GrayAt(1, 0).Y != 255 {
		t.Errorf("Expected clamped values 0 and 255, got %d and %d", img.GrayAt(0, 0).Y, img.GrayAt(1, 0).Y)
	}
}

func TestMakeGridErrors(t *testing.T) {
	rgb, _ := tensor.Zeros([]int{1, 3, 2, 2})
	flat, _ := tensor.Zeros([]int{4, 4})
	gray, _ := tensor.Zeros([]int{1, 1, 2, 2})

	if _, err := MakeGrid(nil, 2); err == nil {
		t.Error("Expected error for nil batch")
	}
	if _, err := MakeGrid(flat, 2); err == nil {
		t.Error("Expected error for 2D batch")
	}
	if _, err := MakeGrid(rgb, 2); err == nil {
		t.Error("Expected error for multi-channel batch")
	}
	if _, err := MakeGrid(gray, -1); err == nil {
		t.Error("Expected error for negative padding")
	}
}

func TestSaveGridPNG(t *testing.T) {
	batch, _ := tensor.Full([]int{4, 1, 28, 28}, 1)
	path := filepath.Join(t.TempDir(), "grid.png")

	if err := SaveGridPNG(path, batch, 2); err != nil {
		t.Fatalf("SaveGridPNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open grid: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Failed to decode grid: %v", err)
	}
	if img.Bounds().Dx() != 122 || img.Bounds().Dy() != 32 {
		t.Errorf("Unexpected grid bounds %v", img.Bounds())
	}

	if err := SaveGridPNG(filepath.Join(t.TempDir(), "missing", "grid.png"), batch, 2); err == nil {
		t.Error("Expected error for missing directory")
	}
}
