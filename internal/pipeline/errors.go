package pipeline

import (
	"errors"
	"fmt"
)

// ProcessingError reports a train that could not be processed. The loop
// skips the train and continues.
type ProcessingError struct {
	TrainID uint64
	Source  string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("source %q not assembled for train %d: %v", e.Source, e.TrainID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// StopPipelineError reports a failure the loop cannot continue past, such
// as an invalid processor configuration or a sink that stopped accepting
// records.
type StopPipelineError struct {
	Err error
}

func (e *StopPipelineError) Error() string {
	return "pipeline stopped: " + e.Err.Error()
}

func (e *StopPipelineError) Unwrap() error { return e.Err }

// IsSkippable reports whether err only invalidates the current train.
func IsSkippable(err error) bool {
	var stop *StopPipelineError
	if errors.As(err, &stop) {
		return false
	}
	var pe *ProcessingError
	return errors.As(err, &pe)
}
