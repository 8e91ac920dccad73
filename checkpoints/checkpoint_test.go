package checkpoints

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tsawler/go-garments/layers"
)

func newTestNetwork(t *testing.T, seed int64) *layers.Network {
	t.Helper()
	spec, err := layers.NewGarmentClassifierSpec(4)
	if err != nil {
		t.Fatalf("Failed to create model spec: %v", err)
	}
	net, err := layers.NewNetwork(spec, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("Failed to create network: %v", err)
	}
	return net
}

func newTestCheckpoint(t *testing.T, net *layers.Network) *Checkpoint {
	t.Helper()
	return &Checkpoint{
		ModelSpec: net.Spec(),
		Weights:   ExtractWeights(net),
		TrainingState: TrainingState{
			RunTimestamp: "20240101_120000",
			Epoch:        3,
			Step:         15000,
			LearningRate: 0.001,
			BestLoss:     0.4213,
			BestAccuracy: 0.84,
			TotalSteps:   45000,
		},
		OptimizerState: &OptimizerState{
			Type:       "SGD",
			Parameters: map[string]interface{}{"learning_rate": 0.001, "momentum": 0.9},
			StateData: []OptimizerTensor{
				{Name: "conv1.bias", Shape: []int{6}, Data: []float64{1, 2, 3, 4, 5, 6}, StateType: "momentum"},
			},
		},
		Metadata: CheckpointMetadata{
			Version:     frameworkVersion,
			Framework:   frameworkName,
			CreatedAt:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			Description: "garment classifier",
			Tags:        []string{"fashion-mnist"},
		},
	}
}

func TestCheckpointFormatString(t *testing.T) {
	tests := []struct {
		format   CheckpointFormat
		expected string
	}{
		{FormatJSON, "JSON"},
		{FormatONNX, "ONNX"},
		{CheckpointFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("ONNX"); err != nil || f != FormatONNX {
		t.Errorf("ParseFormat(ONNX) = %v, %v", f, err)
	}
	if f, err := ParseFormat(" json "); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("pickle"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCheckpointJSONSaveLoad(t *testing.T) {
	net := newTestNetwork(t, 1)
	checkpoint := newTestCheckpoint(t, net)

	path := filepath.Join(t.TempDir(), "model_20240101_120000_3")
	saver := NewCheckpointSaver(FormatJSON)
	if err := saver.SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}

	loaded, err := saver.LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("Failed to load checkpoint: %v", err)
	}

	if loaded.TrainingState != checkpoint.TrainingState {
		t.Errorf("Training state mismatch: got %+v, want %+v", loaded.TrainingState, checkpoint.TrainingState)
	}
	if len(loaded.Weights) != len(checkpoint.Weights) {
		t.Fatalf("Expected %d weights, got %d", len(checkpoint.Weights), len(loaded.Weights))
	}
	for i, w := range loaded.Weights {
		orig := checkpoint.Weights[i]
		if w.Name != orig.Name || len(w.Data) != len(orig.Data) {
			t.Fatalf("Weight %d mismatch: %s vs %s", i, w.Name, orig.Name)
		}
		for j := range w.Data {
			if w.Data[j] != orig.Data[j] {
				t.Fatalf("Weight %s[%d]: %v vs %v", w.Name, j, w.Data[j], orig.Data[j])
			}
		}
	}
	if loaded.OptimizerState == nil || len(loaded.OptimizerState.StateData) != 1 {
		t.Fatalf("Optimizer state not preserved: %+v", loaded.OptimizerState)
	}
	if loaded.ModelSpec.TotalParameters != checkpoint.ModelSpec.TotalParameters {
		t.Errorf("Parameter count mismatch: %d vs %d", loaded.ModelSpec.TotalParameters, checkpoint.ModelSpec.TotalParameters)
	}

	// No temporary files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the checkpoint file, found %d entries", len(entries))
	}
}

func TestSaveCheckpointFillsMetadata(t *testing.T) {
	net := newTestNetwork(t, 2)
	checkpoint := &Checkpoint{ModelSpec: net.Spec(), Weights: ExtractWeights(net)}

	path := filepath.Join(t.TempDir(), "ckpt.json")
	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("Failed to save checkpoint: %v", err)
	}
	if checkpoint.Metadata.Framework != frameworkName {
		t.Errorf("Expected framework %s, got %s", frameworkName, checkpoint.Metadata.Framework)
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestSaveNilCheckpoint(t *testing.T) {
	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(nil, filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("Expected error for nil checkpoint")
	}
}

func TestUnsupportedCheckpointFormat(t *testing.T) {
	saver := NewCheckpointSaver(CheckpointFormat(99))
	net := newTestNetwork(t, 3)

	err := saver.SaveCheckpoint(newTestCheckpoint(t, net), filepath.Join(t.TempDir(), "x"))
	if err == nil || !strings.Contains(err.Error(), "unsupported checkpoint format") {
		t.Errorf("Expected unsupported format error, got %v", err)
	}
	if _, err := saver.LoadCheckpoint("x"); err == nil {
		t.Error("Expected error loading with unsupported format")
	}
}

func TestJSONLoadFileErrors(t *testing.T) {
	saver := NewCheckpointSaver(FormatJSON)

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := saver.LoadCheckpoint(filepath.Join(t.TempDir(), "missing.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := saver.LoadCheckpoint(path); err == nil {
			t.Error("Expected error for invalid JSON")
		}
	})
}

func TestJSONSaveFileErrors(t *testing.T) {
	net := newTestNetwork(t, 4)
	path := filepath.Join(t.TempDir(), "no-such-dir", "ckpt.json")
	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(newTestCheckpoint(t, net), path); err == nil {
		t.Error("Expected error saving into a missing directory")
	}
}

func TestExtractAndRestoreWeights(t *testing.T) {
	src := newTestNetwork(t, 5)
	dst := newTestNetwork(t, 6)

	weights := ExtractWeights(src)
	if len(weights) != len(src.Parameters()) {
		t.Fatalf("Expected %d weights, got %d", len(src.Parameters()), len(weights))
	}

	// Extracted weights are copies
	original := weights[0].Data[0]
	weights[0].Data[0] = original + 100
	if src.Parameters()[0].Value.Data[0] != original {
		t.Fatal("ExtractWeights must copy parameter data")
	}
	weights[0].Data[0] = original

	if err := RestoreWeights(dst, weights); err != nil {
		t.Fatalf("RestoreWeights failed: %v", err)
	}
	for i, p := range dst.Parameters() {
		if !p.Value.Equal(src.Parameters()[i].Value) {
			t.Errorf("Parameter %s not restored", p.Name)
		}
	}
}

func TestRestoreWeightsErrors(t *testing.T) {
	net := newTestNetwork(t, 7)
	before := net.Parameters()[0].Value.Clone()

	t.Run("MissingWeight", func(t *testing.T) {
		weights := ExtractWeights(net)
		if err := RestoreWeights(net, weights[1:]); err == nil {
			t.Error("Expected error for missing weight")
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		weights := ExtractWeights(net)
		for i := range weights {
			weights[i].Data[0] = 42
		}
		last := len(weights) - 1
		weights[last].Shape = []int{weights[last].Shape[0] + 1}
		if err := RestoreWeights(net, weights); err == nil {
			t.Error("Expected error for shape mismatch")
		}
	})

	if !net.Parameters()[0].Value.Equal(before) {
		t.Error("Failed restore must not modify parameters")
	}
}

func TestONNXRoundTrip(t *testing.T) {
	net := newTestNetwork(t, 8)
	checkpoint := newTestCheckpoint(t, net)

	path := filepath.Join(t.TempDir(), "model.onnx")
	if err := NewCheckpointSaver(FormatONNX).SaveCheckpoint(checkpoint, path); err != nil {
		t.Fatalf("Failed to export ONNX: %v", err)
	}

	loaded, err := NewCheckpointSaver(FormatONNX).LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("Failed to import ONNX: %v", err)
	}

	if loaded.OptimizerState != nil {
		t.Error("ONNX checkpoints do not carry optimizer state")
	}
	if loaded.TrainingState != checkpoint.TrainingState {
		t.Errorf("Training state mismatch: got %+v, want %+v", loaded.TrainingState, checkpoint.TrainingState)
	}
	if !loaded.Metadata.CreatedAt.Equal(checkpoint.Metadata.CreatedAt) {
		t.Errorf("CreatedAt mismatch: %v vs %v", loaded.Metadata.CreatedAt, checkpoint.Metadata.CreatedAt)
	}
	if loaded.Metadata.Framework != frameworkName {
		t.Errorf("Expected producer %s, got %s", frameworkName, loaded.Metadata.Framework)
	}

	spec := loaded.ModelSpec
	orig := checkpoint.ModelSpec
	if len(spec.Layers) != len(orig.Layers) {
		t.Fatalf("Expected %d layers, got %d", len(orig.Layers), len(spec.Layers))
	}
	for i, ls := range spec.Layers {
		if ls.Type != orig.Layers[i].Type || ls.Name != orig.Layers[i].Name {
			t.Errorf("Layer %d: got %s %s, want %s %s", i, ls.Type, ls.Name, orig.Layers[i].Type, orig.Layers[i].Name)
		}
	}
	if spec.TotalParameters != orig.TotalParameters {
		t.Errorf("Parameter count mismatch: %d vs %d", spec.TotalParameters, orig.TotalParameters)
	}

	// Weights survive at float32 precision and load into a fresh network
	restored, err := layers.NewNetwork(spec, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("Failed to build imported network: %v", err)
	}
	if err := RestoreWeights(restored, loaded.Weights); err != nil {
		t.Fatalf("RestoreWeights failed: %v", err)
	}
	for i, p := range restored.Parameters() {
		want := net.Parameters()[i].Value.Data
		for j, v := range p.Value.Data {
			if v != float64(float32(want[j])) {
				t.Fatalf("%s[%d] = %v, want %v", p.Name, j, v, float32(want[j]))
			}
		}
	}
}

func TestONNXDenseWithoutBias(t *testing.T) {
	spec, err := layers.NewModelBuilder([]int{2, 1, 4, 4}).
		AddFlatten("flatten").
		AddDense(3, false, "proj").
		Compile()
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	net, err := layers.NewNetwork(spec, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewNetwork failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "proj.onnx")
	if err := NewONNXExporter().ExportToONNX(&Checkpoint{ModelSpec: spec, Weights: ExtractWeights(net)}, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	loaded, err := NewONNXImporter().ImportFromONNX(path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(loaded.Weights) != 1 || loaded.Weights[0].Name != "proj.weight" {
		t.Fatalf("Unexpected weights: %+v", loaded.Weights)
	}
	if got := loaded.ModelSpec.Layers[1].Parameters["use_bias"]; got != false {
		t.Errorf("Expected use_bias=false, got %v", got)
	}
}

func TestONNXExportMissingWeight(t *testing.T) {
	net := newTestNetwork(t, 9)
	checkpoint := newTestCheckpoint(t, net)
	checkpoint.Weights = checkpoint.Weights[:2]

	err := NewONNXExporter().ExportToONNX(checkpoint, filepath.Join(t.TempDir(), "m.onnx"))
	if err == nil || !strings.Contains(err.Error(), "missing weight") {
		t.Errorf("Expected missing weight error, got %v", err)
	}
}

func TestONNXImportFileErrors(t *testing.T) {
	importer := NewONNXImporter()

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := importer.ImportFromONNX(filepath.Join(t.TempDir(), "missing.onnx")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.onnx")
		if err := os.WriteFile(path, []byte{0xff, 0xff, 0xff}, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := importer.ImportFromONNX(path); err == nil {
			t.Error("Expected error for invalid protobuf")
		}
	})

	t.Run("NoGraph", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.onnx")
		if err := os.WriteFile(path, (&onnxModel{IRVersion: onnxIRVersion}).marshal(), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := importer.ImportFromONNX(path); err == nil {
			t.Error("Expected error for model without graph")
		}
	})
}

func TestONNXRawDataInitializer(t *testing.T) {
	raw := make([]byte, 8)
	for i, v := range []float32{1.5, -2} {
		bits := math.Float32bits(v)
		raw[4*i] = byte(bits)
		raw[4*i+1] = byte(bits >> 8)
		raw[4*i+2] = byte(bits >> 16)
		raw[4*i+3] = byte(bits >> 24)
	}

	decoded, err := unmarshalTensor(onnxTensor{Name: "fc.bias", Dims: []int64{2}, DataType: onnxFloat, RawData: raw}.marshal())
	if err != nil {
		t.Fatalf("unmarshalTensor failed: %v", err)
	}
	w := decoded.toWeight("fc", "bias")
	if len(w.Data) != 2 || w.Data[0] != 1.5 || w.Data[1] != -2 {
		t.Errorf("Unexpected raw data decode: %v", w.Data)
	}
}

func TestDetectFormat(t *testing.T) {
	net := newTestNetwork(t, 10)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "model_20240101_120000_0")
	if err := NewCheckpointSaver(FormatJSON).SaveCheckpoint(newTestCheckpoint(t, net), jsonPath); err != nil {
		t.Fatal(err)
	}
	onnxPath := filepath.Join(dir, "model_20240101_120000_1")
	if err := NewCheckpointSaver(FormatONNX).SaveCheckpoint(newTestCheckpoint(t, net), onnxPath); err != nil {
		t.Fatal(err)
	}

	if f, err := DetectFormat(jsonPath); err != nil || f != FormatJSON {
		t.Errorf("DetectFormat(json) = %v, %v", f, err)
	}
	if f, err := DetectFormat(onnxPath); err != nil || f != FormatONNX {
		t.Errorf("DetectFormat(onnx) = %v, %v", f, err)
	}
	if f, err := DetectFormat("whatever.onnx"); err != nil || f != FormatONNX {
		t.Errorf("DetectFormat by extension = %v, %v", f, err)
	}

	for _, path := range []string{jsonPath, onnxPath} {
		checkpoint, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s) failed: %v", path, err)
		}
		if checkpoint.TrainingState.Epoch != 3 {
			t.Errorf("Load(%s) epoch = %d, want 3", path, checkpoint.TrainingState.Epoch)
		}
	}
}
