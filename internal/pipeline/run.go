package pipeline

import (
	"context"
	"errors"
	"time"
)

// Sink consumes the result of every train, processed or skipped.
type Sink interface {
	RecordTrain(ctx context.Context, r Result) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, r Result) error

// RecordTrain calls f.
func (f SinkFunc) RecordTrain(ctx context.Context, r Result) error { return f(ctx, r) }

// MultiSink fans a result out to several sinks in order. The first error
// is returned after every sink has been called.
type MultiSink []Sink

// RecordTrain implements Sink.
func (m MultiSink) RecordTrain(ctx context.Context, r Result) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.RecordTrain(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats summarises a Run.
type Stats struct {
	Processed int
	Skipped   int
}

// Run processes trains from in until in is closed, ctx is cancelled or a
// fatal error occurs. Skippable errors are logged and recorded as skipped
// trains. A sink error stops the loop with a *StopPipelineError.
//
// Cancellation is checked between trains; a train already being assembled
// runs to completion.
func Run(ctx context.Context, p *Processor, in <-chan RawTrain, sink Sink) (Stats, error) {
	var st Stats
	start := time.Now()
	defer func() {
		diagf("run finished after %v: %d trains processed, %d skipped",
			time.Since(start).Round(time.Millisecond), st.Processed, st.Skipped)
	}()

	for {
		var t RawTrain
		var ok bool
		select {
		case <-ctx.Done():
			return st, nil
		case t, ok = <-in:
			if !ok {
				return st, nil
			}
		}

		began := time.Now()
		out, err := p.Process(ctx, &t)
		r := Result{TrainID: t.TrainID, Source: t.SourceName, Train: out, Err: err, Elapsed: time.Since(began)}

		switch {
		case err == nil:
			st.Processed++
			tracef("train %d processed in %v (fom %.4g, ma %d)", t.TrainID, r.Elapsed, out.FOM, out.MaCount)
		case IsSkippable(err):
			st.Skipped++
			opsf("source %q not assembled for train %d: %v", t.SourceName, t.TrainID, errors.Unwrap(err))
		case ctx.Err() != nil:
			return st, nil
		default:
			var stop *StopPipelineError
			if errors.As(err, &stop) {
				return st, err
			}
			return st, &StopPipelineError{Err: err}
		}

		if sink == nil {
			continue
		}
		if err := sink.RecordTrain(ctx, r); err != nil {
			opsf("sink rejected train %d: %v", t.TrainID, err)
			return st, &StopPipelineError{Err: err}
		}
	}
}
