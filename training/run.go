package training

import (
	"fmt"
	"path/filepath"
	"time"
)

// TimestampLayout formats run timestamps as YYYYMMDD_HHMMSS
const TimestampLayout = "20060102_150405"

// RunContext is the mutable state of one training run. It is owned by the
// trainer goroutine and passed to each stage of the loop
type RunContext struct {
	Timestamp    string  // Names the log directory and checkpoints
	Epoch        int     // Current epoch, 0-based
	GlobalStep   int     // Training batches processed so far
	BestLoss     float64 // Threshold a validation loss must beat to checkpoint
	BestAccuracy float64 // Highest validation accuracy seen
}

// NewRunContext starts a run at start with the given best-loss threshold
func NewRunContext(start time.Time, initialBestLoss float64) *RunContext {
	return &RunContext{
		Timestamp: start.Format(TimestampLayout),
		BestLoss:  initialBestLoss,
	}
}

// LogDir returns <runsDir>/<prefix>_<timestamp>
func (rc *RunContext) LogDir(runsDir, prefix string) string {
	return filepath.Join(runsDir, fmt.Sprintf("%s_%s", prefix, rc.Timestamp))
}

// CheckpointPath returns <dir>/model_<timestamp>_<epoch> for the current epoch
func (rc *RunContext) CheckpointPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("model_%s_%d", rc.Timestamp, rc.Epoch))
}

// ReportStep is the global step at which the report after batch i of the
// current epoch is logged. It is always at least 1
func (rc *RunContext) ReportStep(batchesPerEpoch, i int) int64 {
	return int64(rc.Epoch*batchesPerEpoch + i + 1)
}
