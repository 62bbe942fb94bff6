package pipeline

import (
	"time"

	"github.com/banshee-data/foam/internal/array"
)

// RawTrain is one train of detector data as delivered by the bridge.
//
// Exactly one of Stack and Modules is set. Stack is a dense
// (modules, h, w) or (pulses, modules, h, w) array; Modules holds one
// (h, w) or (pulses, h, w) array per module in module order.
type RawTrain struct {
	TrainID    uint64
	SourceName string
	Stack      *array.Dense[float32]
	Modules    []*array.Dense[float32]
}

// Pulses returns the number of pulses in the train, 0 for a pulse-less
// train and -1 when the train holds no data.
func (t *RawTrain) Pulses() int {
	switch {
	case t.Stack != nil:
		if t.Stack.Rank() == 4 {
			return t.Stack.Shape[0]
		}
		return 0
	case len(t.Modules) > 0 && t.Modules[0] != nil:
		if t.Modules[0].Rank() == 3 {
			return t.Modules[0].Shape[0]
		}
		return 0
	default:
		return -1
	}
}

// ProcessedTrain is the output of Processor.Process.
type ProcessedTrain struct {
	TrainID uint64
	Source  string

	// Assembled is (H, W), or (pulses, H, W) for a pulsed train.
	Assembled *array.Dense[float32]
	// Mean is the pulse-averaged image of this train alone, background
	// subtracted and cropped.
	Mean *array.Dense[float32]
	// MaskedMean is the moving average, background subtracted, with
	// threshold and region masks applied, then cropped.
	MaskedMean *array.Dense[float32]

	// PulseFOM is the NaN-aware mean intensity of every pulse within the
	// crop area, less the background; one entry for a pulse-less train.
	PulseFOM []float64
	// FOM is the NaN-aware mean intensity of MaskedMean.
	FOM float64
	// MaCount is how many trains the moving average currently holds.
	MaCount int
}

// Result is what the loop hands to a Sink for each train. Train is nil
// when the train was skipped, in which case Err holds the reason.
type Result struct {
	TrainID uint64
	Source  string
	Train   *ProcessedTrain
	Err     error
	Elapsed time.Duration
}

// Skipped reports whether the train was not processed.
func (r Result) Skipped() bool { return r.Train == nil }
