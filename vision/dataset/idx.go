package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049

	// Header counts above these bounds are rejected before allocating.
	// The largest Fashion-MNIST split holds 60000 images of 28x28
	maxIDXSamples = 60000
	maxIDXSide    = 256
)

// idxImages is a decoded IDX3 image file: count images of rows x cols bytes
type idxImages struct {
	count, rows, cols int
	pixels            []byte
}

func readIDXImages(r io.Reader) (*idxImages, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(header[0:4]); magic != idxImagesMagic {
		return nil, fmt.Errorf("invalid image magic number: %d", magic)
	}

	imgs := &idxImages{
		count: int(binary.BigEndian.Uint32(header[4:8])),
		rows:  int(binary.BigEndian.Uint32(header[8:12])),
		cols:  int(binary.BigEndian.Uint32(header[12:16])),
	}
	if imgs.rows == 0 || imgs.cols == 0 || imgs.rows > maxIDXSide || imgs.cols > maxIDXSide {
		return nil, fmt.Errorf("invalid image size %dx%d", imgs.rows, imgs.cols)
	}
	if imgs.count > maxIDXSamples {
		return nil, fmt.Errorf("image count %d exceeds %d", imgs.count, maxIDXSamples)
	}

	imgs.pixels = make([]byte, imgs.count*imgs.rows*imgs.cols)
	if _, err := io.ReadFull(r, imgs.pixels); err != nil {
		return nil, fmt.Errorf("failed to read %d images: %w", imgs.count, err)
	}
	return imgs, nil
}

func readIDXLabels(r io.Reader) ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read label header: %w", err)
	}
	if magic := binary.BigEndian.Uint32(header[0:4]); magic != idxLabelsMagic {
		return nil, fmt.Errorf("invalid label magic number: %d", magic)
	}

	count := binary.BigEndian.Uint32(header[4:8])
	if count > maxIDXSamples {
		return nil, fmt.Errorf("label count %d exceeds %d", count, maxIDXSamples)
	}
	labels := make([]byte, count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("failed to read %d labels: %w", len(labels), err)
	}
	return labels, nil
}

// openGzip opens path and returns a reader over its decompressed contents.
// The returned close function releases both the file and the gzip reader
func openGzip(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	closeFn := func() error {
		gz.Close()
		return f.Close()
	}
	return gz, closeFn, nil
}

func loadIDXImages(path string) (*idxImages, error) {
	r, closeFn, err := openGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	imgs, err := readIDXImages(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return imgs, nil
}

func loadIDXLabels(path string) ([]byte, error) {
	r, closeFn, err := openGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	labels, err := readIDXLabels(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}
