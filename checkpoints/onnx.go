package checkpoints

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tsawler/go-garments/internal/wire"
	"github.com/tsawler/go-garments/layers"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	onnxIRVersion = 7
	onnxOpsetVersion = 13

	onnxFloat = 1 // TensorProto.FLOAT

	attrFloat  = 1
	attrInt    = 2
	attrString = 3
	attrInts   = 7

	batchDimParam = "batch"
)

// Metadata property keys used to carry training state through an ONNX file
const (
	metaRunTimestamp = "run_timestamp"
	metaEpoch        = "epoch"
	metaStep         = "step"
	metaLearningRate = "learning_rate"
	metaBestLoss     = "best_loss"
	metaBestAccuracy = "best_accuracy"
	metaTotalSteps   = "total_steps"
	metaCreatedAt    = "created_at"
	metaDescription  = "description"
)

// ONNXExporter handles exporting models to ONNX format
type ONNXExporter struct {
	opsetVersion int64
	producerName string
}

// NewONNXExporter creates a new ONNX exporter
func NewONNXExporter() *ONNXExporter {
	return &ONNXExporter{
		opsetVersion: onnxOpsetVersion,
		producerName: frameworkName,
	}
}

// ExportToONNX exports a checkpoint to an ONNX model file
func (oe *ONNXExporter) ExportToONNX(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil || checkpoint.ModelSpec == nil {
		return fmt.Errorf("checkpoint must include a model spec")
	}

	model, err := oe.buildModel(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to build ONNX model: %w", err)
	}

	if err := os.WriteFile(path, model.marshal(), 0o644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %w", err)
	}
	return nil
}

func (oe *ONNXExporter) buildModel(checkpoint *Checkpoint) (*onnxModel, error) {
	graph, err := oe.buildGraph(checkpoint.ModelSpec, checkpoint.Weights)
	if err != nil {
		return nil, err
	}

	ts := checkpoint.TrainingState
	meta := []onnxStringEntry{
		{metaRunTimestamp, ts.RunTimestamp},
		{metaEpoch, strconv.Itoa(ts.Epoch)},
		{metaStep, strconv.Itoa(ts.Step)},
		{metaLearningRate, strconv.FormatFloat(ts.LearningRate, 'g', -1, 64)},
		{metaBestLoss, strconv.FormatFloat(ts.BestLoss, 'g', -1, 64)},
		{metaBestAccuracy, strconv.FormatFloat(ts.BestAccuracy, 'g', -1, 64)},
		{metaTotalSteps, strconv.Itoa(ts.TotalSteps)},
		{metaCreatedAt, checkpoint.Metadata.CreatedAt.Format(time.RFC3339Nano)},
	}
	if checkpoint.Metadata.Description != "" {
		meta = append(meta, onnxStringEntry{metaDescription, checkpoint.Metadata.Description})
	}

	return &onnxModel{
		IRVersion:       onnxIRVersion,
		ProducerName:    oe.producerName,
		ProducerVersion: frameworkVersion,
		ModelVersion:    1,
		Graph:           graph,
		Opsets:          []onnxOpset{{Version: oe.opsetVersion}},
		Metadata:        meta,
	}, nil
}

// buildGraph lowers the layer specs to ONNX nodes. Dense weights are stored
// [in, out], so a plain MatMul needs no transpose
func (oe *ONNXExporter) buildGraph(spec *layers.ModelSpec, weights []WeightTensor) (*onnxGraph, error) {
	if len(spec.InputShape) == 0 || len(spec.OutputShape) == 0 {
		return nil, fmt.Errorf("model spec is not compiled")
	}

	weightMap := make(map[string]WeightTensor, len(weights))
	for _, w := range weights {
		weightMap[w.Name] = w
	}

	graph := &onnxGraph{Name: frameworkName}
	graph.Inputs = append(graph.Inputs, newValueInfo("input", spec.InputShape))

	current := "input"
	addInit := func(name string) error {
		w, ok := weightMap[name]
		if !ok {
			return fmt.Errorf("missing weight %s", name)
		}
		graph.Initializers = append(graph.Initializers, newFloatTensor(w))
		return nil
	}

	for _, ls := range spec.Layers {
		output := ls.Name + "_output"

		switch ls.Type {
		case layers.Conv2D:
			k := int64(getIntParam(ls, "kernel_size", 1))
			s := int64(getIntParam(ls, "stride", 1))
			p := int64(getIntParam(ls, "padding", 0))

			inputs := []string{current, ls.Name + ".weight"}
			if err := addInit(ls.Name + ".weight"); err != nil {
				return nil, err
			}
			if getBoolParam(ls, "use_bias", true) {
				inputs = append(inputs, ls.Name+".bias")
				if err := addInit(ls.Name + ".bias"); err != nil {
					return nil, err
				}
			}
			graph.Nodes = append(graph.Nodes, onnxNode{
				Name:    ls.Name,
				OpType:  "Conv",
				Inputs:  inputs,
				Outputs: []string{output},
				Attributes: []onnxAttribute{
					intsAttr("kernel_shape", k, k),
					intsAttr("strides", s, s),
					intsAttr("pads", p, p, p, p),
					intsAttr("dilations", 1, 1),
					intAttr("group", 1),
				},
			})

		case layers.ReLU:
			graph.Nodes = append(graph.Nodes, onnxNode{
				Name:    ls.Name,
				OpType:  "Relu",
				Inputs:  []string{current},
				Outputs: []string{output},
			})

		case layers.MaxPool2D:
			k := int64(getIntParam(ls, "pool_size", 2))
			s := int64(getIntParam(ls, "stride", int(k)))
			graph.Nodes = append(graph.Nodes, onnxNode{
				Name:    ls.Name,
				OpType:  "MaxPool",
				Inputs:  []string{current},
				Outputs: []string{output},
				Attributes: []onnxAttribute{
					intsAttr("kernel_shape", k, k),
					intsAttr("strides", s, s),
					intsAttr("pads", 0, 0, 0, 0),
				},
			})

		case layers.Flatten:
			graph.Nodes = append(graph.Nodes, onnxNode{
				Name:       ls.Name,
				OpType:     "Flatten",
				Inputs:     []string{current},
				Outputs:    []string{output},
				Attributes: []onnxAttribute{intAttr("axis", 1)},
			})

		case layers.Dense:
			if err := addInit(ls.Name + ".weight"); err != nil {
				return nil, err
			}
			useBias := getBoolParam(ls, "use_bias", true)
			matmulOut := output
			if useBias {
				matmulOut = ls.Name + "_matmul"
			}
			graph.Nodes = append(graph.Nodes, onnxNode{
				Name:    ls.Name,
				OpType:  "MatMul",
				Inputs:  []string{current, ls.Name + ".weight"},
				Outputs: []string{matmulOut},
			})
			if useBias {
				if err := addInit(ls.Name + ".bias"); err != nil {
					return nil, err
				}
				graph.Nodes = append(graph.Nodes, onnxNode{
					Name:    ls.Name + "_add",
					OpType:  "Add",
					Inputs:  []string{matmulOut, ls.Name + ".bias"},
					Outputs: []string{output},
				})
			}

		default:
			return nil, fmt.Errorf("unsupported layer type for ONNX export: %s", ls.Type.String())
		}

		current = output
	}

	graph.Outputs = append(graph.Outputs, newValueInfo(current, spec.OutputShape))
	return graph, nil
}

func newValueInfo(name string, shape []int) onnxValueInfo {
	vi := onnxValueInfo{Name: name, ElemType: onnxFloat}
	for i, dim := range shape {
		if i == 0 {
			vi.Dims = append(vi.Dims, onnxDim{Param: batchDimParam})
			continue
		}
		vi.Dims = append(vi.Dims, onnxDim{Value: int64(dim)})
	}
	return vi
}

func newFloatTensor(w WeightTensor) onnxTensor {
	t := onnxTensor{Name: w.Name, DataType: onnxFloat}
	for _, dim := range w.Shape {
		t.Dims = append(t.Dims, int64(dim))
	}
	t.FloatData = make([]float32, len(w.Data))
	for i, v := range w.Data {
		t.FloatData[i] = float32(v)
	}
	return t
}

func intAttr(name string, v int64) onnxAttribute {
	return onnxAttribute{Name: name, Type: attrInt, I: v}
}

func intsAttr(name string, vals ...int64) onnxAttribute {
	return onnxAttribute{Name: name, Type: attrInts, Ints: vals}
}

// ONNXImporter handles importing models from ONNX format
type ONNXImporter struct{}

// NewONNXImporter creates a new ONNX importer
func NewONNXImporter() *ONNXImporter {
	return &ONNXImporter{}
}

// ImportFromONNX rebuilds a checkpoint (model spec, weights, training state)
// from an ONNX file written by ExportToONNX. Optimizer state is not stored
// in ONNX, so OptimizerState is always nil
func (oi *ONNXImporter) ImportFromONNX(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %w", err)
	}

	model, err := unmarshalModel(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX model: %w", err)
	}
	if model.Graph == nil {
		return nil, fmt.Errorf("ONNX model has no graph")
	}

	spec, weights, err := oi.convertGraph(model.Graph)
	if err != nil {
		return nil, err
	}

	checkpoint := &Checkpoint{
		ModelSpec: spec,
		Weights:   weights,
		Metadata: CheckpointMetadata{
			Version:   model.ProducerVersion,
			Framework: model.ProducerName,
		},
	}
	if err := applyMetadata(checkpoint, model.Metadata); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

func (oi *ONNXImporter) convertGraph(graph *onnxGraph) (*layers.ModelSpec, []WeightTensor, error) {
	if len(graph.Inputs) == 0 {
		return nil, nil, fmt.Errorf("ONNX graph has no inputs")
	}

	inputShape := make([]int, len(graph.Inputs[0].Dims))
	for i, dim := range graph.Inputs[0].Dims {
		if dim.Param != "" || dim.Value <= 0 {
			inputShape[i] = 1
			continue
		}
		inputShape[i] = int(dim.Value)
	}

	inits := make(map[string]onnxTensor, len(graph.Initializers))
	for _, t := range graph.Initializers {
		inits[t.Name] = t
	}

	builder := layers.NewModelBuilder(inputShape)
	var weights []WeightTensor

	takeWeight := func(initName, layer, kind string) (onnxTensor, error) {
		t, ok := inits[initName]
		if !ok {
			return onnxTensor{}, fmt.Errorf("missing initializer %s", initName)
		}
		weights = append(weights, t.toWeight(layer, kind))
		return t, nil
	}

	for i := 0; i < len(graph.Nodes); i++ {
		node := graph.Nodes[i]

		switch node.OpType {
		case "Conv":
			if len(node.Inputs) < 2 {
				return nil, nil, fmt.Errorf("conv node %s needs a weight input", node.Name)
			}
			name := layerName(node, node.Inputs[1])
			w, err := takeWeight(node.Inputs[1], name, "weight")
			if err != nil {
				return nil, nil, err
			}
			if len(w.Dims) != 4 {
				return nil, nil, fmt.Errorf("conv weight %s must be 4D, got %v", w.Name, w.Dims)
			}
			useBias := len(node.Inputs) > 2 && node.Inputs[2] != ""
			if useBias {
				if _, err := takeWeight(node.Inputs[2], name, "bias"); err != nil {
					return nil, nil, err
				}
			}
			kernel := node.firstInt("kernel_shape", w.Dims[2])
			stride := node.firstInt("strides", 1)
			pad := node.firstInt("pads", 0)
			builder.AddConv2D(int(w.Dims[0]), int(kernel), int(stride), int(pad), useBias, name)

		case "Relu":
			builder.AddReLU(node.Name)

		case "MaxPool":
			kernel := node.firstInt("kernel_shape", 2)
			stride := node.firstInt("strides", kernel)
			builder.AddMaxPool2D(int(kernel), int(stride), node.Name)

		case "Flatten":
			builder.AddFlatten(node.Name)

		case "MatMul":
			if len(node.Inputs) != 2 {
				return nil, nil, fmt.Errorf("matmul node %s needs two inputs", node.Name)
			}
			name := layerName(node, node.Inputs[1])
			w, err := takeWeight(node.Inputs[1], name, "weight")
			if err != nil {
				return nil, nil, err
			}
			if len(w.Dims) != 2 {
				return nil, nil, fmt.Errorf("dense weight %s must be 2D, got %v", w.Name, w.Dims)
			}

			// A following Add of an initializer onto the MatMul result is the bias
			useBias := false
			if i+1 < len(graph.Nodes) {
				next := graph.Nodes[i+1]
				if next.OpType == "Add" && len(next.Inputs) == 2 && len(node.Outputs) > 0 && next.Inputs[0] == node.Outputs[0] {
					if _, ok := inits[next.Inputs[1]]; ok {
						if _, err := takeWeight(next.Inputs[1], name, "bias"); err != nil {
							return nil, nil, err
						}
						useBias = true
						i++
					}
				}
			}
			builder.AddDense(int(w.Dims[1]), useBias, name)

		default:
			return nil, nil, fmt.Errorf("unsupported ONNX operator %s", node.OpType)
		}
	}

	spec, err := builder.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile imported model: %w", err)
	}
	return spec, weights, nil
}

// layerName prefers the "<layer>.weight" initializer prefix over the node name
// so imported weights line up with network parameter names
func layerName(node onnxNode, weightName string) string {
	if prefix, ok := strings.CutSuffix(weightName, ".weight"); ok && prefix != "" {
		return prefix
	}
	return node.Name
}

func applyMetadata(checkpoint *Checkpoint, entries []onnxStringEntry) error {
	ts := &checkpoint.TrainingState
	for _, e := range entries {
		var err error
		switch e.Key {
		case metaRunTimestamp:
			ts.RunTimestamp = e.Value
		case metaEpoch:
			ts.Epoch, err = strconv.Atoi(e.Value)
		case metaStep:
			ts.Step, err = strconv.Atoi(e.Value)
		case metaTotalSteps:
			ts.TotalSteps, err = strconv.Atoi(e.Value)
		case metaLearningRate:
			ts.LearningRate, err = strconv.ParseFloat(e.Value, 64)
		case metaBestLoss:
			ts.BestLoss, err = strconv.ParseFloat(e.Value, 64)
		case metaBestAccuracy:
			ts.BestAccuracy, err = strconv.ParseFloat(e.Value, 64)
		case metaCreatedAt:
			checkpoint.Metadata.CreatedAt, err = time.Parse(time.RFC3339Nano, e.Value)
		case metaDescription:
			checkpoint.Metadata.Description = e.Value
		}
		if err != nil {
			return fmt.Errorf("invalid ONNX metadata %s=%q: %w", e.Key, e.Value, err)
		}
	}
	return nil
}

func getIntParam(ls layers.LayerSpec, key string, defaultValue int) int {
	switch v := ls.Parameters[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

func getBoolParam(ls layers.LayerSpec, key string, defaultValue bool) bool {
	if v, ok := ls.Parameters[key].(bool); ok {
		return v
	}
	return defaultValue
}

// Minimal ONNX message model. Field numbers follow onnx.proto

type onnxModel struct {
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *onnxGraph
	Opsets          []onnxOpset
	Metadata        []onnxStringEntry
}

type onnxOpset struct {
	Domain  string
	Version int64
}

type onnxStringEntry struct {
	Key   string
	Value string
}

type onnxGraph struct {
	Name         string
	Nodes        []onnxNode
	Initializers []onnxTensor
	Inputs       []onnxValueInfo
	Outputs      []onnxValueInfo
}

type onnxNode struct {
	Inputs     []string
	Outputs    []string
	Name       string
	OpType     string
	Attributes []onnxAttribute
}

type onnxAttribute struct {
	Name string
	Type int64
	F    float32
	I    int64
	S    string
	Ints []int64
}

type onnxTensor struct {
	Dims      []int64
	DataType  int64
	FloatData []float32
	Name      string
	RawData   []byte
}

type onnxValueInfo struct {
	Name     string
	ElemType int64
	Dims     []onnxDim
}

type onnxDim struct {
	Value int64
	Param string
}

func (n onnxNode) firstInt(attr string, defaultValue int64) int64 {
	for _, a := range n.Attributes {
		if a.Name != attr {
			continue
		}
		if a.Type == attrInt {
			return a.I
		}
		if len(a.Ints) > 0 {
			return a.Ints[0]
		}
	}
	return defaultValue
}

// toWeight converts an initializer to a checkpoint weight named <layer>.<kind>
func (t onnxTensor) toWeight(layer, kind string) WeightTensor {
	shape := make([]int, len(t.Dims))
	for i, d := range t.Dims {
		shape[i] = int(d)
	}

	var data []float64
	if len(t.FloatData) > 0 {
		data = make([]float64, len(t.FloatData))
		for i, v := range t.FloatData {
			data[i] = float64(v)
		}
	} else {
		data = make([]float64, len(t.RawData)/4)
		for i := range data {
			bits := uint32(t.RawData[4*i]) | uint32(t.RawData[4*i+1])<<8 | uint32(t.RawData[4*i+2])<<16 | uint32(t.RawData[4*i+3])<<24
			data[i] = float64(math.Float32frombits(bits))
		}
	}

	return WeightTensor{
		Name:  layer + "." + kind,
		Shape: shape,
		Data:  data,
		Layer: layer,
		Type:  kind,
	}
}

func (m *onnxModel) marshal() []byte {
	var b []byte
	b = wire.AppendInt64(b, 1, m.IRVersion)
	b = wire.AppendString(b, 2, m.ProducerName)
	b = wire.AppendString(b, 3, m.ProducerVersion)
	b = wire.AppendString(b, 4, m.Domain)
	b = wire.AppendInt64(b, 5, m.ModelVersion)
	b = wire.AppendString(b, 6, m.DocString)
	if m.Graph != nil {
		b = wire.AppendMessage(b, 7, m.Graph.marshal())
	}
	for _, op := range m.Opsets {
		var ob []byte
		ob = wire.AppendString(ob, 1, op.Domain)
		ob = wire.AppendInt64(ob, 2, op.Version)
		b = wire.AppendMessage(b, 8, ob)
	}
	for _, e := range m.Metadata {
		var eb []byte
		eb = wire.AppendString(eb, 1, e.Key)
		eb = wire.AppendString(eb, 2, e.Value)
		b = wire.AppendMessage(b, 14, eb)
	}
	return b
}

func (g *onnxGraph) marshal() []byte {
	var b []byte
	for _, n := range g.Nodes {
		b = wire.AppendMessage(b, 1, n.marshal())
	}
	b = wire.AppendString(b, 2, g.Name)
	for _, t := range g.Initializers {
		b = wire.AppendMessage(b, 5, t.marshal())
	}
	for _, vi := range g.Inputs {
		b = wire.AppendMessage(b, 11, vi.marshal())
	}
	for _, vi := range g.Outputs {
		b = wire.AppendMessage(b, 12, vi.marshal())
	}
	return b
}

func (n onnxNode) marshal() []byte {
	var b []byte
	for _, in := range n.Inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range n.Outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = wire.AppendString(b, 3, n.Name)
	b = wire.AppendString(b, 4, n.OpType)
	for _, a := range n.Attributes {
		b = wire.AppendMessage(b, 5, a.marshal())
	}
	return b
}

func (a onnxAttribute) marshal() []byte {
	var b []byte
	b = wire.AppendString(b, 1, a.Name)
	switch a.Type {
	case attrFloat:
		b = wire.AppendFloat32(b, 2, a.F)
	case attrInt:
		b = wire.AppendInt64(b, 3, a.I)
	case attrString:
		b = wire.AppendString(b, 4, a.S)
	case attrInts:
		b = wire.AppendInt64s(b, 8, a.Ints)
	}
	b = wire.AppendInt64(b, 20, a.Type)
	return b
}

func (t onnxTensor) marshal() []byte {
	var b []byte
	b = wire.AppendInt64s(b, 1, t.Dims)
	b = wire.AppendInt64(b, 2, t.DataType)
	b = wire.AppendPackedFloat32s(b, 4, t.FloatData)
	b = wire.AppendString(b, 8, t.Name)
	if len(t.RawData) > 0 {
		b = wire.AppendMessage(b, 9, t.RawData)
	}
	return b
}

func (vi onnxValueInfo) marshal() []byte {
	var shape []byte
	for _, d := range vi.Dims {
		var db []byte
		if d.Param != "" {
			db = wire.AppendString(db, 2, d.Param)
		} else {
			db = wire.AppendInt64(db, 1, d.Value)
		}
		shape = wire.AppendMessage(shape, 1, db)
	}

	var tensorType []byte
	tensorType = wire.AppendInt64(tensorType, 1, vi.ElemType)
	tensorType = wire.AppendMessage(tensorType, 2, shape)

	var typeProto []byte
	typeProto = wire.AppendMessage(typeProto, 1, tensorType)

	var b []byte
	b = wire.AppendString(b, 1, vi.Name)
	b = wire.AppendMessage(b, 2, typeProto)
	return b
}

func unmarshalModel(data []byte) (*onnxModel, error) {
	m := &onnxModel{}
	err := wire.Parse(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			m.IRVersion = int64(f.Varint)
		case 2:
			m.ProducerName = f.String()
		case 3:
			m.ProducerVersion = f.String()
		case 4:
			m.Domain = f.String()
		case 5:
			m.ModelVersion = int64(f.Varint)
		case 6:
			m.DocString = f.String()
		case 7:
			g, err := unmarshalGraph(f.Bytes)
			if err != nil {
				return fmt.Errorf("graph: %w", err)
			}
			m.Graph = g
		case 8:
			var op onnxOpset
			err := wire.Parse(f.Bytes, func(f wire.Field) error {
				switch f.Num {
				case 1:
					op.Domain = f.String()
				case 2:
					op.Version = int64(f.Varint)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("opset_import: %w", err)
			}
			m.Opsets = append(m.Opsets, op)
		case 14:
			var e onnxStringEntry
			err := wire.Parse(f.Bytes, func(f wire.Field) error {
				switch f.Num {
				case 1:
					e.Key = f.String()
				case 2:
					e.Value = f.String()
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("metadata_props: %w", err)
			}
			m.Metadata = append(m.Metadata, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func unmarshalGraph(data []byte) (*onnxGraph, error) {
	g := &onnxGraph{}
	err := wire.Parse(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			n, err := unmarshalNode(f.Bytes)
			if err != nil {
				return fmt.Errorf("node: %w", err)
			}
			g.Nodes = append(g.Nodes, n)
		case 2:
			g.Name = f.String()
		case 5:
			t, err := unmarshalTensor(f.Bytes)
			if err != nil {
				return fmt.Errorf("initializer: %w", err)
			}
			g.Initializers = append(g.Initializers, t)
		case 11, 12:
			vi, err := unmarshalValueInfo(f.Bytes)
			if err != nil {
				return fmt.Errorf("value info: %w", err)
			}
			if f.Num == 11 {
				g.Inputs = append(g.Inputs, vi)
			} else {
				g.Outputs = append(g.Outputs, vi)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func unmarshalNode(data []byte) (onnxNode, error) {
	var n onnxNode
	err := wire.Parse(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			n.Inputs = append(n.Inputs, f.String())
		case 2:
			n.Outputs = append(n.Outputs, f.String())
		case 3:
			n.Name = f.String()
		case 4:
			n.OpType = f.String()
		case 5:
			a, err := unmarshalAttribute(f.Bytes)
			if err != nil {
				return fmt.Errorf("attribute: %w", err)
			}
			n.Attributes = append(n.Attributes, a)
		}
		return nil
	})
	return n, err
}

func unmarshalAttribute(data []byte) (onnxAttribute, error) {
	var a onnxAttribute
	err := wire.Parse(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			a.Name = f.String()
		case 2:
			a.F = f.Float32()
		case 3:
			a.I = int64(f.Varint)
		case 4:
			a.S = f.String()
		case 8:
			a.Ints, err = f.AppendInt64s(a.Ints)
		case 20:
			a.Type = int64(f.Varint)
		}
		return err
	})
	return a, err
}

func unmarshalTensor(data []byte) (onnxTensor, error) {
	var t onnxTensor
	err := wire.Parse(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			t.Dims, err = f.AppendInt64s(t.Dims)
		case 2:
			t.DataType = int64(f.Varint)
		case 4:
			t.FloatData, err = f.AppendFloat32s(t.FloatData)
		case 8:
			t.Name = f.String()
		case 9:
			t.RawData = append([]byte(nil), f.Bytes...)
		}
		return err
	})
	if err != nil {
		return t, err
	}
	if t.DataType != onnxFloat {
		return t, fmt.Errorf("tensor %s: unsupported data type %d", t.Name, t.DataType)
	}
	if len(t.RawData)%4 != 0 {
		return t, fmt.Errorf("tensor %s: raw data length %d is not a multiple of 4", t.Name, len(t.RawData))
	}
	return t, nil
}

func unmarshalValueInfo(data []byte) (onnxValueInfo, error) {
	var vi onnxValueInfo
	err := wire.Parse(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			vi.Name = f.String()
		case 2:
			// TypeProto -> tensor_type -> (elem_type, shape -> dim*)
			return wire.Parse(f.Bytes, func(f wire.Field) error {
				if f.Num != 1 {
					return nil
				}
				return wire.Parse(f.Bytes, func(f wire.Field) error {
					switch f.Num {
					case 1:
						vi.ElemType = int64(f.Varint)
					case 2:
						return wire.Parse(f.Bytes, func(f wire.Field) error {
							if f.Num != 1 {
								return nil
							}
							var d onnxDim
							err := wire.Parse(f.Bytes, func(f wire.Field) error {
								switch f.Num {
								case 1:
									d.Value = int64(f.Varint)
								case 2:
									d.Param = f.String()
								}
								return nil
							})
							vi.Dims = append(vi.Dims, d)
							return err
						})
					}
					return nil
				})
			})
		}
		return nil
	})
	return vi, err
}
