package dataset

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultMirror serves the Fashion-MNIST archives
const DefaultMirror = "http://fashion-mnist.s3-website.eu-central-1.amazonaws.com/"

type resource struct {
	name string
	md5  string
}

const (
	trainImagesFile = "train-images-idx3-ubyte.gz"
	trainLabelsFile = "train-labels-idx1-ubyte.gz"
	testImagesFile  = "t10k-images-idx3-ubyte.gz"
	testLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

var fashionResources = []resource{
	{trainImagesFile, "8d4fb7e6c68d591d4c3dfef9ec88bf0d"},
	{trainLabelsFile, "25c81989df183df01b3e8a0aad5dffbe"},
	{testImagesFile, "bef4ecab320f06d8554ea6380940ec79"},
	{testLabelsFile, "bb300cfdad3c16e7a12a480ee83cd310"},
}

// downloader fetches the archives that are missing from a raw directory
type downloader struct {
	client *http.Client
	mirror string
	output io.Writer
}

// ensure downloads every resource not already present in rawDir
func (d *downloader) ensure(ctx context.Context, rawDir string) error {
	if err := os.MkdirAll(rawDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", rawDir, err)
	}

	for _, res := range fashionResources {
		path := filepath.Join(rawDir, res.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if d.output != nil {
			fmt.Fprintf(d.output, "Downloading %s%s to %s\n", d.mirror, res.name, path)
		}
		if err := d.fetch(ctx, res, path); err != nil {
			return fmt.Errorf("failed to download %s: %w", res.name, err)
		}
	}
	return nil
}

// fetch streams one archive into a temporary file, verifies its MD5 and
// renames it into place
func (d *downloader) fetch(ctx context.Context, res resource, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.mirror+res.name, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), res.name+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if sum := hex.EncodeToString(hash.Sum(nil)); sum != res.md5 {
		return fmt.Errorf("checksum mismatch: expected md5 %s, got %s", res.md5, sum)
	}
	return os.Rename(tmp.Name(), path)
}
