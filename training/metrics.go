package training

import (
	"fmt"

	"github.com/tsawler/go-garments/tensor"
)

// MetricType represents the multi-class evaluation metrics a ConfusionMatrix reports
type MetricType int

const (
	Accuracy MetricType = iota
	MacroPrecision
	MacroRecall
	MacroF1
	MicroPrecision
	MicroRecall
	MicroF1
)

func (mt MetricType) String() string {
	switch mt {
	case Accuracy:
		return "Accuracy"
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroPrecision:
		return "MicroPrecision"
	case MicroRecall:
		return "MicroRecall"
	case MicroF1:
		return "MicroF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix counts predictions per (true class, predicted class)
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}

	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Add records a single prediction
func (cm *ConfusionMatrix) Add(trueClass, predictedClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses {
		return fmt.Errorf("true class %d out of range [0, %d)", trueClass, cm.NumClasses)
	}
	if predictedClass < 0 || predictedClass >= cm.NumClasses {
		return fmt.Errorf("predicted class %d out of range [0, %d)", predictedClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predictedClass]++
	cm.TotalSamples++
	return nil
}

// UpdateFromLogits takes the argmax of each logits row as the prediction.
// Ties resolve to the lowest class index
func (cm *ConfusionMatrix) UpdateFromLogits(logits *tensor.Tensor, labels []int) error {
	if logits == nil || len(logits.Shape) != 2 {
		return fmt.Errorf("expected 2D logits [batch, classes]")
	}
	if logits.Shape[1] != cm.NumClasses {
		return fmt.Errorf("logits have %d classes, confusion matrix has %d", logits.Shape[1], cm.NumClasses)
	}
	if len(labels) != logits.Shape[0] {
		return fmt.Errorf("label count %d does not match batch size %d", len(labels), logits.Shape[0])
	}

	for i, label := range labels {
		if err := cm.Add(label, argmax(logits.Row(i))); err != nil {
			return err
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// GetMetric returns the requested metric
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	switch metric {
	case Accuracy:
		return cm.GetAccuracy()
	case MacroPrecision:
		return cm.calculateMacroPrecision()
	case MacroRecall:
		return cm.calculateMacroRecall()
	case MacroF1:
		return harmonicMean(cm.calculateMacroPrecision(), cm.calculateMacroRecall())
	case MicroPrecision:
		return cm.calculateMicroPrecision()
	case MicroRecall:
		return cm.calculateMicroRecall()
	case MicroF1:
		return harmonicMean(cm.calculateMicroPrecision(), cm.calculateMicroRecall())
	default:
		return 0.0
	}
}

// GetAccuracy returns overall classification accuracy
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}

	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}

	return float64(correct) / float64(cm.TotalSamples)
}

// ClassAccuracy returns the fraction of samples of class that were predicted
// correctly, and the number of samples of that class seen
func (cm *ConfusionMatrix) ClassAccuracy(class int) (float64, int) {
	if class < 0 || class >= cm.NumClasses {
		return 0.0, 0
	}
	total := 0
	for _, n := range cm.Matrix[class] {
		total += n
	}
	if total == 0 {
		return 0.0, 0
	}
	return float64(cm.Matrix[class][class]) / float64(total), total
}

func (cm *ConfusionMatrix) calculateMacroPrecision() float64 {
	sum := 0.0
	validClasses := 0

	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fp := 0.0
		for other := 0; other < cm.NumClasses; other++ {
			if other != class {
				fp += float64(cm.Matrix[other][class])
			}
		}

		if tp+fp > 0 {
			sum += tp / (tp + fp)
			validClasses++
		}
	}

	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func (cm *ConfusionMatrix) calculateMacroRecall() float64 {
	sum := 0.0
	validClasses := 0

	for class := 0; class < cm.NumClasses; class++ {
		if recall, n := cm.ClassAccuracy(class); n > 0 {
			sum += recall
			validClasses++
		}
	}

	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

// Every misclassification is one false positive and one false negative, so
// micro precision and micro recall both reduce to accuracy for single-label data
func (cm *ConfusionMatrix) calculateMicroPrecision() float64 {
	return cm.GetAccuracy()
}

func (cm *ConfusionMatrix) calculateMicroRecall() float64 {
	return cm.GetAccuracy()
}

func harmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0.0
	}
	return 2 * a * b / (a + b)
}
