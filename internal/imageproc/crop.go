package imageproc

import (
	"fmt"
	"image"

	"github.com/banshee-data/foam/internal/array"
)

// SubtractBackground subtracts bkg from every pixel of img in place. NaN
// pixels stay NaN.
func SubtractBackground[T array.Float](img *array.Dense[T], bkg float64) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidArgument)
	}
	if bkg == 0 {
		return nil
	}
	b := T(bkg)
	for i := range img.Data {
		img.Data[i] -= b
	}
	return nil
}

// ClipRect returns the part of the w x h rectangle at column x, row y that
// lies inside a rows x cols image. ok is false when nothing is left.
func ClipRect(x, y, w, h, rows, cols int) (r image.Rectangle, ok bool) {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	r = image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, cols, rows))
	return r, !r.Empty()
}

// Crop copies the area r (x along columns, y along rows) out of a (y, x)
// image or a (pulses, y, x) stack. r must be non-empty and lie inside the
// image.
func Crop[T array.Float](img *array.Dense[T], r image.Rectangle) (*array.Dense[T], error) {
	if img == nil || (img.Rank() != 2 && img.Rank() != 3) {
		return nil, fmt.Errorf("%w: crop needs a (y, x) or (pulses, y, x) array", ErrInvalidArgument)
	}
	rows, cols := img.Rows(), img.Cols()
	if r.Empty() || !r.In(image.Rect(0, 0, cols, rows)) {
		return nil, fmt.Errorf("%w: crop area %v outside %dx%d image", ErrInvalidArgument, r, cols, rows)
	}

	w, h := r.Dx(), r.Dy()
	frames := img.Size() / (rows * cols)
	dims := []int{h, w}
	if img.Rank() == 3 {
		dims = []int{img.Shape[0], h, w}
	}
	out := array.New[T](dims...)
	for f := 0; f < frames; f++ {
		src := img.Data[f*rows*cols : (f+1)*rows*cols]
		dst := out.Data[f*h*w : (f+1)*h*w]
		for y := 0; y < h; y++ {
			base := (r.Min.Y+y)*cols + r.Min.X
			copy(dst[y*w:(y+1)*w], src[base:base+w])
		}
	}
	return out, nil
}
