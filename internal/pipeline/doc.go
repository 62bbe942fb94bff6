// Package pipeline runs the per-train acquisition loop: it assembles the raw
// module readouts of each train into a detector image, folds the image into
// the moving average, applies the operator masks and computes the
// figures of merit handed to the sinks.
//
// The loop is the composition root. geometry and imageproc know nothing
// about trains or sinks, and the storage and monitor packages only see the
// Result values passed to Sink.RecordTrain.
//
// A malformed train never stops the loop: shape errors from the geometry
// engine become a ProcessingError, the train is recorded as skipped with
// the reason "source not assembled", and the next train is processed with
// no state carried over from the failed one. Only a StopPipelineError ends
// Run early.
package pipeline
