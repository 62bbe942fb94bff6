package imageproc

import (
	"fmt"

	"github.com/banshee-data/foam/internal/array"
)

// MovingAverage keeps a running average of the last Window images of a
// fixed shape. Until Window images have been added the result is the exact
// mean; after that each new image is blended in with weight 1/Window.
//
// A MovingAverage is not safe for concurrent use.
type MovingAverage[T array.Float] struct {
	window int
	count  int
	avg    *array.Dense[T]
}

// NewMovingAverage returns an empty accumulator. window < 1 is treated as 1.
func NewMovingAverage[T array.Float](window int) *MovingAverage[T] {
	return &MovingAverage[T]{window: max(window, 1)}
}

// Window returns the configured window size.
func (m *MovingAverage[T]) Window() int { return m.window }

// Count returns how many images the current average holds, at most Window.
func (m *MovingAverage[T]) Count() int { return m.count }

// SetWindow changes the window size. Shrinking the window discards the
// accumulated average; growing it keeps it.
func (m *MovingAverage[T]) SetWindow(window int) {
	window = max(window, 1)
	if window < m.window {
		m.Reset()
	}
	m.window = window
}

// Reset drops the accumulated average.
func (m *MovingAverage[T]) Reset() {
	m.avg = nil
	m.count = 0
}

// Add folds img into the average. An image whose shape differs from the
// accumulated one is rejected and leaves the average unchanged.
func (m *MovingAverage[T]) Add(img *array.Dense[T]) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidArgument)
	}
	if m.avg == nil || m.window == 1 {
		if m.avg != nil && !array.SameShape(m.avg, img) {
			return shapeChanged(m.avg.Shape, img.Shape)
		}
		m.avg = img.Clone()
		m.count = 1
		return nil
	}
	if !array.SameShape(m.avg, img) {
		return shapeChanged(m.avg.Shape, img.Shape)
	}

	if m.count < m.window {
		m.count++
	}
	n := T(m.count)
	for i, v := range img.Data {
		m.avg.Data[i] += (v - m.avg.Data[i]) / n
	}
	return nil
}

// Value returns a copy of the current average, or nil before the first Add.
func (m *MovingAverage[T]) Value() *array.Dense[T] {
	if m.avg == nil {
		return nil
	}
	return m.avg.Clone()
}

func shapeChanged(have, got []int) error {
	return fmt.Errorf("%w: image shape %v differs from the averaged shape %v", ErrInvalidArgument, got, have)
}
