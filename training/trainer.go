package training

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tsawler/go-garments/checkpoints"
	"github.com/tsawler/go-garments/layers"
	"github.com/tsawler/go-garments/optimizer"
	"github.com/tsawler/go-garments/summary"
)

// Scalar tags written during a run
const (
	TagTrainLoss          = "Loss/train"
	TagTrainVsValidation  = "Training vs. Validation Loss"
	TagValidationAccuracy = "Accuracy/validation"
)

// BestLossSource selects which loss is stored as the new best after a checkpoint
type BestLossSource int

const (
	// TrainingLoss stores the epoch's training average, so the next
	// checkpoint decision compares a validation loss against a training loss
	TrainingLoss BestLossSource = iota
	// ValidationLoss stores the validation loss that triggered the checkpoint
	ValidationLoss
)

func (s BestLossSource) String() string {
	switch s {
	case TrainingLoss:
		return "TrainingLoss"
	case ValidationLoss:
		return "ValidationLoss"
	default:
		return "Unknown"
	}
}

// ScalarWriter receives the metrics of a run. *summary.Writer implements it
type ScalarWriter interface {
	AddScalar(tag string, value float64, step int64) error
	AddScalars(mainTag string, values map[string]float64, step int64) error
	Flush() error
}

// Config holds configuration for a training run
type Config struct {
	Epochs          int
	BatchSize       int
	LearningRate    float64
	Momentum        float64
	ReportInterval  int     // Report the mean training loss every N batches
	InitialBestLoss float64 // Validation loss the first checkpoint must beat

	RunsDir          string // Parent of the per-run log directory
	RunPrefix        string // Log directory is <RunsDir>/<RunPrefix>_<timestamp>
	CheckpointDir    string
	CheckpointFormat checkpoints.CheckpointFormat
	BestLossSource   BestLossSource

	Scheduler LRScheduler      // nil keeps the learning rate constant
	Output    io.Writer        // Console output (default os.Stdout)
	Clock     func() time.Time // Run timestamp source (default time.Now)
}

// DefaultConfig returns the garment classifier training configuration
func DefaultConfig() Config {
	return Config{
		Epochs:           5,
		BatchSize:        4,
		LearningRate:     0.001,
		Momentum:         0.9,
		ReportInterval:   1000,
		InitialBestLoss:  1_000_000,
		RunsDir:          "runs",
		RunPrefix:        "fashion_trainer",
		CheckpointDir:    ".",
		CheckpointFormat: checkpoints.FormatJSON,
		BestLossSource:   TrainingLoss,
		Output:           os.Stdout,
		Clock:            time.Now,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("report interval must be positive, got %d", c.ReportInterval)
	}
	if c.BestLossSource != TrainingLoss && c.BestLossSource != ValidationLoss {
		return fmt.Errorf("unknown best loss source: %d", int(c.BestLossSource))
	}
	return nil
}

// SGDConfig derives the optimizer configuration
func (c Config) SGDConfig() optimizer.SGDConfig {
	sgd := optimizer.DefaultSGDConfig()
	sgd.LearningRate = c.LearningRate
	sgd.Momentum = c.Momentum
	return sgd
}

// EpochResult records the outcome of one epoch
type EpochResult struct {
	Epoch              int // 0-based
	TrainLoss          float64
	ValidationLoss     float64
	ValidationAccuracy float64
	LearningRate       float64
	Checkpoint         string // Path written this epoch, "" if none
}

// RunResult records the outcome of a run
type RunResult struct {
	Timestamp string
	LogDir    string // "" when a ScalarWriter was supplied
	Epochs    []EpochResult
	BestLoss  float64
}

// Trainer runs the epoch loop: train, report, validate, log and checkpoint
type Trainer struct {
	config      Config
	net         *layers.Network
	optimizer   optimizer.Optimizer
	criterion   *CrossEntropyLoss
	trainLoader *DataLoader
	validLoader *DataLoader
	writer      ScalarWriter
	saver       *checkpoints.CheckpointSaver
	out         io.Writer
}

// NewTrainer creates a trainer. When writer is nil, Run opens a
// summary.Writer in the run's log directory
func NewTrainer(
	config Config,
	net *layers.Network,
	opt optimizer.Optimizer,
	trainLoader, validLoader *DataLoader,
	writer ScalarWriter,
) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}
	if net == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}
	if opt == nil {
		return nil, fmt.Errorf("optimizer cannot be nil")
	}
	if trainLoader == nil || validLoader == nil {
		return nil, fmt.Errorf("training and validation loaders are required")
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Scheduler == nil {
		config.Scheduler = ConstantLR{}
	}

	return &Trainer{
		config:      config,
		net:         net,
		optimizer:   opt,
		criterion:   NewCrossEntropyLoss("mean"),
		trainLoader: trainLoader,
		validLoader: validLoader,
		writer:      writer,
		saver:       checkpoints.NewCheckpointSaver(config.CheckpointFormat),
		out:         out,
	}, nil
}

// Run trains for config.Epochs epochs. Any error stops the run. Cancelling
// ctx stops it between batches with ctx.Err()
func (t *Trainer) Run(ctx context.Context) (*RunResult, error) {
	rc := NewRunContext(t.config.Clock(), t.config.InitialBestLoss)
	result := &RunResult{Timestamp: rc.Timestamp}

	writer := t.writer
	if writer == nil {
		result.LogDir = rc.LogDir(t.config.RunsDir, t.config.RunPrefix)
		w, err := summary.NewWriter(result.LogDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create summary writer: %w", err)
		}
		defer w.Close()
		writer = w
	}

	baseLR := t.optimizer.LearningRate()

	for epoch := 0; epoch < t.config.Epochs; epoch++ {
		rc.Epoch = epoch
		fmt.Fprintf(t.out, "EPOCH %d:\n", epoch+1)

		lr := t.config.Scheduler.LearningRate(epoch, baseLR)
		t.optimizer.UpdateLearningRate(lr)

		trainLoss, err := t.trainOneEpoch(ctx, rc, writer)
		if err != nil {
			return result, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}

		eval, err := Evaluate(ctx, t.net, t.validLoader, t.criterion, t.numClasses())
		if err != nil {
			return result, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		validLoss := eval.Loss
		accuracy := eval.Accuracy()

		fmt.Fprintf(t.out, "LOSS train %v valid %v\n", trainLoss, validLoss)
		fmt.Fprintf(t.out, "ACCURACY valid %.4f\n", accuracy)

		step := int64(epoch + 1)
		if err := writer.AddScalars(TagTrainVsValidation, map[string]float64{
			"Training":   trainLoss,
			"Validation": validLoss,
		}, step); err != nil {
			return result, fmt.Errorf("failed to log epoch losses: %w", err)
		}
		if err := writer.AddScalar(TagValidationAccuracy, accuracy, step); err != nil {
			return result, fmt.Errorf("failed to log validation accuracy: %w", err)
		}
		if err := writer.Flush(); err != nil {
			return result, fmt.Errorf("failed to flush metrics: %w", err)
		}

		if accuracy > rc.BestAccuracy {
			rc.BestAccuracy = accuracy
		}
		if ms, ok := t.config.Scheduler.(MetricScheduler); ok {
			ms.Observe(validLoss)
		}

		record := EpochResult{
			Epoch:              epoch,
			TrainLoss:          trainLoss,
			ValidationLoss:     validLoss,
			ValidationAccuracy: accuracy,
			LearningRate:       lr,
		}

		if validLoss < rc.BestLoss {
			switch t.config.BestLossSource {
			case ValidationLoss:
				rc.BestLoss = validLoss
			default:
				rc.BestLoss = trainLoss
			}

			path := rc.CheckpointPath(t.config.CheckpointDir)
			if err := t.saveCheckpoint(rc, path); err != nil {
				return result, fmt.Errorf("epoch %d: %w", epoch+1, err)
			}
			record.Checkpoint = path
		}

		result.Epochs = append(result.Epochs, record)
		result.BestLoss = rc.BestLoss
	}

	return result, nil
}

// trainOneEpoch runs one pass over the training loader and returns the last
// reported window mean, or 0 if the epoch was shorter than one window
func (t *Trainer) trainOneEpoch(ctx context.Context, rc *RunContext, writer ScalarWriter) (float64, error) {
	it := t.trainLoader.Iter(ctx)
	defer it.Close()

	batchesPerEpoch := t.trainLoader.Len()
	interval := t.config.ReportInterval
	runningLoss := 0.0
	lastLoss := 0.0

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		batch, err := it.Next()
		if err != nil {
			return 0, fmt.Errorf("failed to load training batch %d: %w", i, err)
		}
		if batch == nil {
			break
		}

		loss, err := t.trainStep(batch)
		if err != nil {
			return 0, fmt.Errorf("training step %d failed: %w", i, err)
		}
		runningLoss += loss
		rc.GlobalStep++

		if i%interval == interval-1 {
			lastLoss = runningLoss / float64(interval)
			fmt.Fprintf(t.out, "  batch %d loss: %v\n", i+1, lastLoss)
			if err := writer.AddScalar(TagTrainLoss, lastLoss, rc.ReportStep(batchesPerEpoch, i)); err != nil {
				return 0, fmt.Errorf("failed to log training loss: %w", err)
			}
			runningLoss = 0
		}
	}

	return lastLoss, nil
}

// trainStep zeroes gradients, runs forward and backward passes and applies
// one optimizer step
func (t *Trainer) trainStep(batch *Batch) (float64, error) {
	t.optimizer.ZeroGrad()

	logits, err := t.net.Forward(batch.Data, layers.Training)
	if err != nil {
		return 0, fmt.Errorf("forward pass failed: %w", err)
	}

	loss, grad, err := t.criterion.ForwardBackward(logits, batch.Labels)
	if err != nil {
		return 0, fmt.Errorf("loss computation failed: %w", err)
	}

	if err := t.net.Backward(grad); err != nil {
		return 0, fmt.Errorf("backward pass failed: %w", err)
	}

	if err := t.optimizer.Step(); err != nil {
		return 0, fmt.Errorf("optimizer step failed: %w", err)
	}

	return loss, nil
}

func (t *Trainer) saveCheckpoint(rc *RunContext, path string) error {
	optState, err := t.optimizer.GetState()
	if err != nil {
		return fmt.Errorf("failed to capture optimizer state: %w", err)
	}

	checkpoint := &checkpoints.Checkpoint{
		ModelSpec: t.net.Spec(),
		Weights:   checkpoints.ExtractWeights(t.net),
		TrainingState: checkpoints.TrainingState{
			RunTimestamp: rc.Timestamp,
			Epoch:        rc.Epoch,
			Step:         rc.GlobalStep,
			LearningRate: t.optimizer.LearningRate(),
			BestLoss:     rc.BestLoss,
			BestAccuracy: rc.BestAccuracy,
			TotalSteps:   t.config.Epochs * t.trainLoader.Len(),
		},
		OptimizerState: optState,
		Metadata: checkpoints.CheckpointMetadata{
			Description: fmt.Sprintf("garment classifier, epoch %d", rc.Epoch+1),
			Tags:        []string{"fashion-mnist"},
		},
	}

	if err := t.saver.SaveCheckpoint(checkpoint, path); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", path, err)
	}
	return nil
}

func (t *Trainer) numClasses() int {
	shape := t.net.Spec().OutputShape
	return shape[len(shape)-1]
}
