package imageproc

import (
	"fmt"

	"github.com/banshee-data/foam/internal/array"
)

// SampleRate is the fixed down/up-sampling factor. Keeping it fixed lets
// UpSample invert DownSample exactly in shape.
const SampleRate = 2

// DownSample keeps every SampleRate-th element along the spatial axes. For
// a 3D array the leading axis is a pulse index and is kept whole.
func DownSample[T array.Float](x *array.Dense[T]) (*array.Dense[T], error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil array", ErrInvalidArgument)
	}
	switch x.Rank() {
	case 1:
		n := ceilDiv(x.Shape[0], SampleRate)
		out := array.New[T](n)
		for i := range out.Data {
			out.Data[i] = x.Data[i*SampleRate]
		}
		return out, nil
	case 2, 3:
		rows, cols := x.Rows(), x.Cols()
		dr, dc := ceilDiv(rows, SampleRate), ceilDiv(cols, SampleRate)
		shape := append(append([]int{}, x.Shape[:x.Rank()-2]...), dr, dc)
		out := array.New[T](shape...)
		frames := x.Size() / max(rows*cols, 1)
		for f := 0; f < frames && rows*cols > 0; f++ {
			src := x.Data[f*rows*cols:]
			dst := out.Data[f*dr*dc:]
			for r := 0; r < dr; r++ {
				for c := 0; c < dc; c++ {
					dst[r*dc+c] = src[r*SampleRate*cols+c*SampleRate]
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: down-sampling supports rank 1 to 3, got %d", ErrInvalidArgument, x.Rank())
	}
}

// UpSample repeats every element SampleRate times along the spatial axes
// and crops the result to shape. shape must be one that DownSample maps to
// x's shape, otherwise an error is returned.
func UpSample[T array.Float](x *array.Dense[T], shape []int) (*array.Dense[T], error) {
	if x == nil {
		return nil, fmt.Errorf("%w: nil array", ErrInvalidArgument)
	}
	if x.Rank() < 1 || x.Rank() > 3 {
		return nil, fmt.Errorf("%w: up-sampling supports rank 1 to 3, got %d", ErrInvalidArgument, x.Rank())
	}
	bad := fmt.Errorf("%w: array with shape %v cannot be up-sampled to shape %v", ErrInvalidArgument, x.Shape, shape)
	if len(shape) != x.Rank() {
		return nil, bad
	}
	spatial := x.Rank()
	if spatial == 3 {
		if shape[0] != x.Shape[0] {
			return nil, bad
		}
		spatial = 2
	}
	for k := x.Rank() - spatial; k < x.Rank(); k++ {
		if ceilDiv(shape[k], SampleRate) != x.Shape[k] {
			return nil, bad
		}
	}

	out := array.New[T](shape...)
	if x.Rank() == 1 {
		for i := range out.Data {
			out.Data[i] = x.Data[i/SampleRate]
		}
		return out, nil
	}

	rows, cols := shape[len(shape)-2], shape[len(shape)-1]
	sr, sc := x.Rows(), x.Cols()
	frames := 1
	if x.Rank() == 3 {
		frames = x.Shape[0]
	}
	for f := 0; f < frames; f++ {
		src := x.Data[f*sr*sc : (f+1)*sr*sc]
		dst := out.Data[f*rows*cols : (f+1)*rows*cols]
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				dst[r*cols+c] = src[(r/SampleRate)*sc+c/SampleRate]
			}
		}
	}
	return out, nil
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
