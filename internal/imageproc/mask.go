package imageproc

import (
	"fmt"

	"github.com/banshee-data/foam/internal/array"
)

// ThresholdMask sets every pixel of img outside [lo, hi] to NaN in place.
// Use ±Inf for an open bound. Out-of-range pixels are removed, not clipped
// to the nearest bound, so they drop out of NaN-aware means instead of
// piling up at lo or hi; existing NaN pixels stay NaN.
func ThresholdMask[T array.Float](img *array.Dense[T], lo, hi float64) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidArgument)
	}
	if lo > hi {
		return fmt.Errorf("%w: threshold lower bound %v exceeds upper bound %v", ErrInvalidArgument, lo, hi)
	}
	nan := array.NaN[T]()
	for i, v := range img.Data {
		if f := float64(v); f < lo || f > hi {
			img.Data[i] = nan
		}
	}
	return nil
}

// RegionMask is a user-drawn pixel mask over the assembled image. Masked
// pixels are set to NaN by Apply.
type RegionMask struct {
	m *array.Mask
}

// NewRegionMask returns an empty mask for a rows x cols image.
func NewRegionMask(rows, cols int) *RegionMask {
	return &RegionMask{m: array.NewMask(rows, cols)}
}

// Shape returns (rows, cols).
func (rm *RegionMask) Shape() [2]int { return [2]int{rm.m.Rows, rm.m.Cols} }

// Add masks the w x h rectangle whose top-left pixel is column x, row y.
// The rectangle is clipped to the image.
func (rm *RegionMask) Add(x, y, w, h int) { rm.fill(x, y, w, h, true) }

// Remove unmasks the w x h rectangle at (x, y).
func (rm *RegionMask) Remove(x, y, w, h int) { rm.fill(x, y, w, h, false) }

// Clear unmasks everything.
func (rm *RegionMask) Clear() {
	for i := range rm.m.Data {
		rm.m.Data[i] = false
	}
}

// Set replaces the mask. m must have the same shape.
func (rm *RegionMask) Set(m *array.Mask) error {
	if m == nil || m.Rows != rm.m.Rows || m.Cols != rm.m.Cols {
		return fmt.Errorf("%w: mask shape does not match %dx%d", ErrInvalidArgument, rm.m.Rows, rm.m.Cols)
	}
	copy(rm.m.Data, m.Data)
	return nil
}

// Mask returns a copy of the current mask.
func (rm *RegionMask) Mask() *array.Mask { return rm.m.Clone() }

// Count returns the number of masked pixels.
func (rm *RegionMask) Count() int { return rm.m.Count() }

func (rm *RegionMask) fill(x, y, w, h int, v bool) {
	r0, r1 := max(y, 0), min(y+h, rm.m.Rows)
	c0, c1 := max(x, 0), min(x+w, rm.m.Cols)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			rm.m.Data[r*rm.m.Cols+c] = v
		}
	}
}

// ApplyRegionMask sets the masked pixels of img to NaN in place. img is one
// image (rows, cols) or a pulse stack (pulses, rows, cols).
func ApplyRegionMask[T array.Float](rm *RegionMask, img *array.Dense[T]) error {
	if img == nil || (img.Rank() != 2 && img.Rank() != 3) {
		return fmt.Errorf("%w: region mask applies to 2D or 3D images", ErrInvalidArgument)
	}
	if img.Rows() != rm.m.Rows || img.Cols() != rm.m.Cols {
		return fmt.Errorf("%w: image shape %v does not match mask %dx%d", ErrInvalidArgument, img.Shape, rm.m.Rows, rm.m.Cols)
	}
	n := len(rm.m.Data)
	nan := array.NaN[T]()
	for k := 0; k < img.Size()/n; k++ {
		frame := img.Data[k*n : (k+1)*n]
		for i, masked := range rm.m.Data {
			if masked {
				frame[i] = nan
			}
		}
	}
	return nil
}
