package training

import (
	"math"
)

// LRScheduler maps an epoch index to a learning rate. The trainer applies it
// at the start of every epoch
type LRScheduler interface {
	// LearningRate returns the learning rate for epoch (0-based)
	LearningRate(epoch int, baseLR float64) float64

	// Name returns the scheduler name for logging
	Name() string
}

// MetricScheduler is an LRScheduler that also reacts to the validation loss
// reported at the end of each epoch
type MetricScheduler interface {
	LRScheduler
	Observe(validationLoss float64)
}

// ConstantLR keeps the learning rate unchanged
type ConstantLR struct{}

func (ConstantLR) LearningRate(epoch int, baseLR float64) float64 { return baseLR }
func (ConstantLR) Name() string                                   { return "ConstantLR" }

// StepLR multiplies the learning rate by Gamma every StepSize epochs
type StepLR struct {
	StepSize int
	Gamma    float64
}

// NewStepLR creates a step scheduler
func NewStepLR(stepSize int, gamma float64) *StepLR {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLR{StepSize: stepSize, Gamma: gamma}
}

func (s *StepLR) LearningRate(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

func (s *StepLR) Name() string { return "StepLR" }

// ExponentialLR multiplies the learning rate by Gamma every epoch
type ExponentialLR struct {
	Gamma float64
}

// NewExponentialLR creates an exponential scheduler
func NewExponentialLR(gamma float64) *ExponentialLR {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLR{Gamma: gamma}
}

func (s *ExponentialLR) LearningRate(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLR) Name() string { return "ExponentialLR" }

// CosineAnnealingLR anneals from the base rate to EtaMin over TMax epochs
type CosineAnnealingLR struct {
	TMax   int
	EtaMin float64
}

// NewCosineAnnealingLR creates a cosine annealing scheduler
func NewCosineAnnealingLR(tMax int, etaMin float64) *CosineAnnealingLR {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLR{TMax: tMax, EtaMin: etaMin}
}

func (s *CosineAnnealingLR) LearningRate(epoch int, baseLR float64) float64 {
	if epoch >= s.TMax {
		return s.EtaMin
	}
	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLR) Name() string { return "CosineAnnealingLR" }

// ReduceLROnPlateau multiplies the rate by Factor once the validation loss
// has failed to improve by more than Threshold for Patience epochs
type ReduceLROnPlateau struct {
	Factor    float64
	Patience  int
	Threshold float64

	best       float64
	badEpochs  int
	reductions int
	seen       bool
}

// NewReduceLROnPlateau creates a plateau scheduler
func NewReduceLROnPlateau(factor float64, patience int, threshold float64) *ReduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}
	if threshold < 0 {
		threshold = 1e-4
	}
	return &ReduceLROnPlateau{Factor: factor, Patience: patience, Threshold: threshold}
}

// Observe records the validation loss of a finished epoch
func (s *ReduceLROnPlateau) Observe(validationLoss float64) {
	if !s.seen || validationLoss < s.best-s.Threshold {
		s.best = validationLoss
		s.badEpochs = 0
		s.seen = true
		return
	}

	s.badEpochs++
	if s.badEpochs >= s.Patience {
		s.reductions++
		s.badEpochs = 0
	}
}

func (s *ReduceLROnPlateau) LearningRate(epoch int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Factor, float64(s.reductions))
}

func (s *ReduceLROnPlateau) Name() string { return "ReduceLROnPlateau" }
