// Command fashion-eval evaluates a saved garment classifier checkpoint.
//
// Usage:
//
//	fashion-eval -checkpoint model_20240101_120000_4 [-limit 1000] [image.png ...]
//
// The checkpoint may be JSON or ONNX. Image arguments are classified after
// the validation pass. With -events the scalars of a run directory are
// printed instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/tsawler/go-garments/checkpoints"
	"github.com/tsawler/go-garments/layers"
	"github.com/tsawler/go-garments/summary"
	"github.com/tsawler/go-garments/tensor"
	"github.com/tsawler/go-garments/training"
	"github.com/tsawler/go-garments/vision/dataset"
	"github.com/tsawler/go-garments/vision/preprocessing"
)

func main() {
	var (
		checkpointPath = flag.String("checkpoint", "", "checkpoint file to evaluate (JSON or ONNX)")
		dataDir        = flag.String("data", "./data", "Fashion-MNIST root directory")
		download       = flag.Bool("download", true, "download the dataset if it is missing")
		limit          = flag.Int("limit", 0, "evaluate only the first N validation samples (0 = all)")
		batchSize      = flag.Int("batch", 4, "evaluation batch size")
		cacheSize      = flag.Int("cache", 0, "number of transformed samples to keep in memory")
		invert         = flag.Bool("invert", false, "invert image arguments (dark garment on light background)")
		exportPath     = flag.String("export-onnx", "", "also write the checkpoint as ONNX to this path")
		eventsDir      = flag.String("events", "", "print the scalars logged in a run directory and exit")
	)
	flag.Parse()

	if *eventsDir != "" {
		if err := printEvents(*eventsDir); err != nil {
			log.Fatalf("Failed to read events: %v", err)
		}
		return
	}
	if *checkpointPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cp, err := checkpoints.Load(*checkpointPath)
	if err != nil {
		log.Fatalf("Failed to load checkpoint: %v", err)
	}
	// Initial values are overwritten by RestoreWeights
	net, err := layers.NewNetwork(cp.ModelSpec, rand.New(rand.NewSource(1)))
	if err != nil {
		log.Fatalf("Failed to rebuild model: %v", err)
	}
	if err := checkpoints.RestoreWeights(net, cp.Weights); err != nil {
		log.Fatalf("Failed to restore weights: %v", err)
	}

	state := cp.TrainingState
	fmt.Printf("Checkpoint %s (%s %s)\n", *checkpointPath, cp.Metadata.Framework, cp.Metadata.Version)
	fmt.Printf("  run %s, epoch %d, step %d, best loss %.4f\n", state.RunTimestamp, state.Epoch, state.Step, state.BestLoss)
	fmt.Printf("  %d parameters\n", net.NumParameters())

	if *exportPath != "" {
		if err := checkpoints.NewCheckpointSaver(checkpoints.FormatONNX).SaveCheckpoint(cp, *exportPath); err != nil {
			log.Fatalf("Failed to export ONNX: %v", err)
		}
		fmt.Printf("  exported ONNX model to %s\n", *exportPath)
	}

	transform := preprocessing.DefaultFashionMNISTTransform()
	validSet, err := dataset.OpenFashionMNIST(ctx, dataset.FashionMNISTConfig{
		Root:      *dataDir,
		Train:     false,
		Download:  *download,
		Transform: transform,
		CacheSize: *cacheSize,
		Output:    os.Stdout,
	})
	if err != nil {
		log.Fatalf("Failed to load validation set: %v", err)
	}

	var evalSet training.Dataset = validSet
	if *limit > 0 {
		evalSet, err = training.NewSubsetDataset(validSet, *limit)
		if err != nil {
			log.Fatalf("Failed to limit validation set: %v", err)
		}
	}

	loaderConfig := training.DefaultDataLoaderConfig()
	loaderConfig.BatchSize = *batchSize
	loaderConfig.NumWorkers = training.DefaultWorkers()
	loader, err := training.NewDataLoader(evalSet, loaderConfig)
	if err != nil {
		log.Fatalf("Failed to create loader: %v", err)
	}

	bar := training.NewProgressBar(os.Stdout, "Validation", loader.Len())
	result, err := training.EvaluateWithProgress(ctx, net, loader, training.NewCrossEntropyLoss("mean"), len(dataset.Classes), bar)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	fmt.Printf("\nValidation: %d samples, loss %.4f, accuracy %.4f\n", result.Samples, result.Loss, result.Accuracy())
	fmt.Printf("Macro F1 %.4f\n", result.Confusion.GetMetric(training.MacroF1))
	for class, name := range dataset.Classes {
		acc, n := result.Confusion.ClassAccuracy(class)
		fmt.Printf("  %-12s %6.2f%% (%d samples)\n", name, acc*100, n)
	}
	if *cacheSize > 0 {
		fmt.Println(validSet.CacheStats())
	}

	if flag.NArg() > 0 {
		if err := classifyImages(net, flag.Args(), *invert, transform); err != nil {
			log.Fatalf("Failed to classify images: %v", err)
		}
	}
}

// classifyImages runs each image file through the network and prints the
// predicted class
func classifyImages(net *layers.Network, paths []string, invert bool, transform preprocessing.Transform) error {
	raw, err := preprocessing.PreprocessBatch(paths, layers.ImageSize, invert, training.DefaultWorkers())
	if err != nil {
		return err
	}

	samples := make([]*tensor.Tensor, len(raw))
	for i, r := range raw {
		if samples[i], err = transform.Apply(r); err != nil {
			return err
		}
	}
	batch, err := tensor.Stack(samples)
	if err != nil {
		return err
	}

	logits, err := net.Forward(batch, layers.Evaluation)
	if err != nil {
		return err
	}

	fmt.Println()
	for i, path := range paths {
		row := logits.Row(i)
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		fmt.Printf("%s: %s\n", path, dataset.Classes[best])
	}
	return nil
}

// printEvents prints every scalar found in the event files under dir,
// including the per-key child directories written by AddScalars
func printEvents(dir string) error {
	files, err := summary.EventFiles(dir)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		child, err := summary.EventFiles(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		files = append(files, child...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no event files in %s", dir)
	}
	sort.Strings(files)

	for _, path := range files {
		events, err := summary.ReadEvents(path)
		if err != nil {
			return err
		}
		fmt.Println(path)
		for _, e := range events {
			for _, v := range e.Values {
				fmt.Printf("  step %-8d %-40s %.4f\n", e.Step, v.Tag, v.SimpleValue)
			}
		}
	}
	return nil
}
