package imageproc

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/foam/internal/array"
)

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

func (w *welford) result() (mean, std float64) {
	if w.n == 0 {
		return math.NaN(), math.NaN()
	}
	return w.mean, math.Sqrt(w.m2 / float64(w.n))
}

// NanMeanStd returns the mean and population standard deviation of the
// non-NaN values of data. Both are NaN when data holds no valid value.
func NanMeanStd[T array.Float](data []T) (mean, std float64) {
	var w welford
	for _, v := range data {
		if !array.IsNaN(v) {
			w.add(float64(v))
		}
	}
	return w.result()
}

// NanMean returns the mean of the non-NaN values of data, or NaN.
func NanMean[T array.Float](data []T) float64 {
	m, _ := NanMeanStd(data)
	return m
}

// NanStd returns the population standard deviation of the non-NaN values of
// data, or NaN.
func NanStd[T array.Float](data []T) float64 {
	_, s := NanMeanStd(data)
	return s
}

// CountValid returns the number of non-NaN values in data.
func CountValid[T array.Float](data []T) int {
	n := 0
	for _, v := range data {
		if !array.IsNaN(v) {
			n++
		}
	}
	return n
}

// NanMeanAxis reduces a along axis with NanMean. The result has the axis
// removed; reducing a 1D array yields a rank-0 array of one element.
func NanMeanAxis[T array.Float](a *array.Dense[T], axis int) (*array.Dense[T], error) {
	return reduceAxis(a, axis, func(w *welford) float64 {
		m, _ := w.result()
		return m
	})
}

// NanStdAxis reduces a along axis with NanStd.
func NanStdAxis[T array.Float](a *array.Dense[T], axis int) (*array.Dense[T], error) {
	return reduceAxis(a, axis, func(w *welford) float64 {
		_, s := w.result()
		return s
	})
}

func reduceAxis[T array.Float](a *array.Dense[T], axis int, fn func(*welford) float64) (*array.Dense[T], error) {
	if a == nil || a.Rank() == 0 {
		return nil, fmt.Errorf("%w: cannot reduce a rank-0 array", ErrInvalidArgument)
	}
	if axis < 0 || axis >= a.Rank() {
		return nil, fmt.Errorf("%w: axis %d out of range for rank %d", ErrInvalidArgument, axis, a.Rank())
	}

	// View the array as (outer, n, inner) with n the reduced axis.
	outer, inner := 1, 1
	for _, d := range a.Shape[:axis] {
		outer *= d
	}
	for _, d := range a.Shape[axis+1:] {
		inner *= d
	}
	n := a.Shape[axis]

	shape := make([]int, 0, a.Rank()-1)
	shape = append(shape, a.Shape[:axis]...)
	shape = append(shape, a.Shape[axis+1:]...)
	out := array.New[T](shape...)

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var w welford
			for k := 0; k < n; k++ {
				v := a.Data[(o*n+k)*inner+i]
				if !array.IsNaN(v) {
					w.add(float64(v))
				}
			}
			out.Data[o*inner+i] = T(fn(&w))
		}
	}
	return out, nil
}

// PulseMeanOptions tune NanMeanPulses. Zero values select the defaults.
type PulseMeanOptions struct {
	ChunkRows  int // image rows per task, default 16
	MaxWorkers int // concurrent tasks, default 4
}

// NanMeanPulses averages a (pulses, h, w) stack over its pulse axis,
// ignoring NaN. Row chunks of the output are computed concurrently.
// Cancelling ctx stops scheduling further chunks and returns ctx.Err().
func NanMeanPulses[T array.Float](ctx context.Context, a *array.Dense[T], opts PulseMeanOptions) (*array.Dense[T], error) {
	if a == nil || a.Rank() != 3 {
		return nil, fmt.Errorf("%w: pulse mean needs a (pulses, h, w) array", ErrInvalidArgument)
	}
	chunk := opts.ChunkRows
	if chunk < 1 {
		chunk = 16
	}
	workers := opts.MaxWorkers
	if workers < 1 {
		workers = 4
	}

	np, rows, cols := a.Shape[0], a.Shape[1], a.Shape[2]
	out := array.New[T](rows, cols)
	frame := rows * cols

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < rows; start += chunk {
		if gctx.Err() != nil {
			break
		}
		start, end := start, min(start+chunk, rows)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start * cols; i < end*cols; i++ {
				var w welford
				for p := 0; p < np; p++ {
					v := a.Data[p*frame+i]
					if !array.IsNaN(v) {
						w.add(float64(v))
					}
				}
				m, _ := w.result()
				out.Data[i] = T(m)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
