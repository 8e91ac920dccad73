// Command fashion-trainer trains the garment classifier on Fashion-MNIST.
//
// It downloads the dataset into ./data, writes a preview of the first
// training batch to garments_grid.png, logs scalars under ./runs and saves a
// checkpoint named model_<timestamp>_<epoch> whenever the best loss improves.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/tsawler/go-garments/layers"
	"github.com/tsawler/go-garments/optimizer"
	"github.com/tsawler/go-garments/tensor"
	"github.com/tsawler/go-garments/training"
	"github.com/tsawler/go-garments/vision/dataset"
	"github.com/tsawler/go-garments/vision/preprocessing"
)

func main() {
	fmt.Println("=== Fashion-MNIST Garment Classifier ===")
	fmt.Printf("CPU: %s (%d physical cores, %d logical, AVX2: %t)\n\n",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, cpuid.CPU.Supports(cpuid.AVX2))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	config := training.DefaultConfig()
	transform := preprocessing.DefaultFashionMNISTTransform()

	trainSet, err := dataset.NewFashionMNIST("./data", true, true, transform)
	if err != nil {
		log.Fatalf("Failed to load training set: %v", err)
	}
	validSet, err := dataset.NewFashionMNIST("./data", false, true, transform)
	if err != nil {
		log.Fatalf("Failed to load validation set: %v", err)
	}

	loaderConfig := training.DefaultDataLoaderConfig()
	loaderConfig.BatchSize = config.BatchSize
	loaderConfig.Shuffle = true
	trainLoader, err := training.NewDataLoader(trainSet, loaderConfig)
	if err != nil {
		log.Fatalf("Failed to create training loader: %v", err)
	}
	loaderConfig.Shuffle = false
	validLoader, err := training.NewDataLoader(validSet, loaderConfig)
	if err != nil {
		log.Fatalf("Failed to create validation loader: %v", err)
	}

	fmt.Printf("Training set has %d instances\n", trainSet.Len())
	fmt.Printf("Validation set has %d instances\n", validSet.Len())

	if err := previewFirstBatch(ctx, trainLoader, "garments_grid.png"); err != nil {
		log.Fatalf("Failed to preview training batch: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if err := showDummyLoss(rng); err != nil {
		log.Fatalf("Failed to compute dummy loss: %v", err)
	}

	spec, err := layers.NewGarmentClassifierSpec(config.BatchSize)
	if err != nil {
		log.Fatalf("Failed to compile model: %v", err)
	}
	net, err := layers.NewNetwork(spec, rng)
	if err != nil {
		log.Fatalf("Failed to build model: %v", err)
	}
	fmt.Println()
	layers.NewModelArchitecturePrinter("GarmentClassifier").PrintArchitecture(os.Stdout, spec)

	opt, err := optimizer.NewSGD(config.SGDConfig(), net.Parameters())
	if err != nil {
		log.Fatalf("Failed to create optimizer: %v", err)
	}

	trainer, err := training.NewTrainer(config, net, opt, trainLoader, validLoader, nil)
	if err != nil {
		log.Fatalf("Failed to create trainer: %v", err)
	}

	result, err := trainer.Run(ctx)
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	fmt.Printf("\nRun %s finished: best loss %.4f, logs in %s\n", result.Timestamp, result.BestLoss, result.LogDir)
	for _, e := range result.Epochs {
		if e.Checkpoint != "" {
			fmt.Printf("  epoch %d checkpoint: %s\n", e.Epoch+1, e.Checkpoint)
		}
	}
}

// previewFirstBatch saves the first training batch as an image grid and
// prints the class names of its samples
func previewFirstBatch(ctx context.Context, loader *training.DataLoader, path string) error {
	it := loader.Iter(ctx)
	defer it.Close()

	batch, err := it.Next()
	if err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("training loader is empty")
	}

	if err := preprocessing.SaveGridPNG(path, batch.Data, 2); err != nil {
		return err
	}

	names := make([]string, len(batch.Labels))
	for i, label := range batch.Labels {
		names[i] = dataset.Classes[label]
	}
	fmt.Printf("\nSaved first batch to %s\n", path)
	fmt.Println(strings.Join(names, "  "))
	return nil
}

// showDummyLoss prints the loss of random outputs against a fixed label set
func showDummyLoss(rng *rand.Rand) error {
	outputs, err := tensor.RandomUniform([]int{4, 10}, 0, 1, rng)
	if err != nil {
		return err
	}
	labels := []int{1, 5, 3, 7}

	loss, err := training.NewCrossEntropyLoss("mean").Forward(outputs, labels)
	if err != nil {
		return err
	}

	fmt.Println()
	for i := 0; i < outputs.Shape[0]; i++ {
		row := outputs.Row(i)
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%.4f", v)
		}
		fmt.Printf("[%s]\n", strings.Join(cells, ", "))
	}
	fmt.Println(labels)
	fmt.Printf("Total loss for this batch: %.4f\n", loss)
	return nil
}
