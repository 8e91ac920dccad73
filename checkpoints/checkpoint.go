package checkpoints

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/tsawler/go-garments/layers"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// ParseFormat maps "json" / "onnx" (case-insensitive) to a format
func ParseFormat(s string) (CheckpointFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "onnx":
		return FormatONNX, nil
	default:
		return 0, fmt.Errorf("unknown checkpoint format %q", s)
	}
}

const (
	frameworkName    = "go-garments"
	frameworkVersion = "1.0.0"
)

// Checkpoint represents a complete model state including weights, optimizer state, and training metadata
type Checkpoint struct {
	// Model architecture and weights
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	// Metadata
	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight" or "bias"
}

// TrainingState captures the current training progress
type TrainingState struct {
	RunTimestamp string  `json:"run_timestamp,omitempty"`
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	BestLoss     float64 `json:"best_loss"`
	BestAccuracy float64 `json:"best_accuracy"`
	TotalSteps   int     `json:"total_steps"`
}

// OptimizerState captures optimizer-specific state (momentum buffers)
type OptimizerState struct {
	Type       string                 `json:"type"` // "SGD"
	Parameters map[string]interface{} `json:"parameters"`
	StateData  []OptimizerTensor      `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	StateType string    `json:"state_type"` // "momentum"
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

// Format returns the format this saver writes
func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = frameworkName
		checkpoint.Metadata.Version = frameworkVersion
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	switch cs.format {
	case FormatJSON:
		return cs.saveJSON(checkpoint, path)
	case FormatONNX:
		return NewONNXExporter().ExportToONNX(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		return cs.loadJSON(path)
	case FormatONNX:
		return NewONNXImporter().ImportFromONNX(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// saveJSON writes to a temporary file and renames it into place so a
// crash never leaves a truncated checkpoint behind
func (cs *CheckpointSaver) saveJSON(checkpoint *Checkpoint, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(checkpoint); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

func (cs *CheckpointSaver) loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(bufio.NewReader(file)).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return &checkpoint, nil
}

// DetectFormat guesses a checkpoint's format from its extension, falling
// back to sniffing the first non-space byte ('{' means JSON)
func DetectFormat(path string) (CheckpointFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".onnx":
		return FormatONNX, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("failed to detect checkpoint format of %s: %w", path, err)
		}
		if unicode.IsSpace(rune(b)) {
			continue
		}
		if b == '{' {
			return FormatJSON, nil
		}
		return FormatONNX, nil
	}
}

// Load detects the format of path and loads it
func Load(path string) (*Checkpoint, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	return NewCheckpointSaver(format).LoadCheckpoint(path)
}

// ExtractWeights copies every network parameter into checkpoint form
func ExtractWeights(net *layers.Network) []WeightTensor {
	params := net.Parameters()
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		data := make([]float64, len(p.Value.Data))
		copy(data, p.Value.Data)
		shape := make([]int, len(p.Value.Shape))
		copy(shape, p.Value.Shape)
		weights = append(weights, WeightTensor{
			Name:  p.Name,
			Shape: shape,
			Data:  data,
			Layer: p.Layer,
			Type:  p.Type,
		})
	}
	return weights
}

// RestoreWeights copies checkpoint weights into the network. Every network
// parameter must be present with a matching shape
func RestoreWeights(net *layers.Network, weights []WeightTensor) error {
	weightMap := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		weightMap[w.Name] = w
	}

	params := net.Parameters()
	for _, p := range params {
		w, ok := weightMap[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing weight %s", p.Name)
		}
		if len(w.Shape) != len(p.Value.Shape) {
			return fmt.Errorf("shape mismatch for weight %s: model %v vs checkpoint %v", p.Name, p.Value.Shape, w.Shape)
		}
		for i, dim := range p.Value.Shape {
			if dim != w.Shape[i] {
				return fmt.Errorf("shape mismatch for weight %s: model %v vs checkpoint %v", p.Name, p.Value.Shape, w.Shape)
			}
		}
		if len(w.Data) != p.Value.NumElems {
			return fmt.Errorf("weight %s has %d values, expected %d", p.Name, len(w.Data), p.Value.NumElems)
		}
	}

	// Validate everything before mutating anything
	for _, p := range params {
		copy(p.Value.Data, weightMap[p.Name].Data)
	}
	return nil
}
