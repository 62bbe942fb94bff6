package imageproc

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/foam/internal/array"
)

// CannyParams holds the hysteresis thresholds for Canny.
//
// With UseQuantiles set, Low and High are quantiles in [0, 1] of the
// gradient magnitude distribution of the image instead of absolute
// magnitudes.
type CannyParams struct {
	Low          float64
	High         float64
	UseQuantiles bool
}

func (p CannyParams) validate() error {
	if p.Low < 0 || p.High < 0 || math.IsNaN(p.Low) || math.IsNaN(p.High) {
		return fmt.Errorf("%w: canny thresholds must be non-negative, got (%v, %v)", ErrInvalidArgument, p.Low, p.High)
	}
	if p.Low > p.High {
		return fmt.Errorf("%w: canny low threshold %v exceeds high threshold %v", ErrInvalidArgument, p.Low, p.High)
	}
	if p.UseQuantiles && p.High > 1 {
		return fmt.Errorf("%w: canny quantile thresholds must be in [0, 1], got (%v, %v)", ErrInvalidArgument, p.Low, p.High)
	}
	return nil
}

// tan(22.5deg) and tan(67.5deg): boundaries of the four gradient sectors.
var (
	tan22 = math.Tan(math.Pi / 8)
	tan67 = math.Tan(3 * math.Pi / 8)
)

// Canny returns the binary edge map of a 2D image.
//
// Gradients come from 3x3 Sobel operators with replicated borders. A pixel
// whose 3x3 neighbourhood holds a NaN has zero gradient, so masked regions
// never produce edges. Non-maximum suppression thins ridges along four
// gradient directions, and hysteresis keeps weak pixels (>= Low) only
// when they are 8-connected to a strong pixel (>= High).
func Canny[T array.Float](img *array.Dense[T], p CannyParams) (*array.Mask, error) {
	if img == nil || img.Rank() != 2 {
		return nil, fmt.Errorf("%w: canny needs a 2D image", ErrInvalidArgument)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	rows, cols := img.Rows(), img.Cols()
	mag, gx, gy := sobel(img)
	thin := suppress(mag, gx, gy, rows, cols)

	low, high := p.Low, p.High
	if p.UseQuantiles {
		sorted := append([]float64(nil), mag...)
		sort.Float64s(sorted)
		if len(sorted) > 0 {
			low = stat.Quantile(p.Low, stat.Empirical, sorted, nil)
			high = stat.Quantile(p.High, stat.Empirical, sorted, nil)
		}
	}
	return hysteresis(thin, rows, cols, low, high), nil
}

// EdgeParams are the edge-detection settings exposed to operators: a
// Gaussian pre-smoothing followed by Canny with absolute thresholds.
type EdgeParams struct {
	KernelSize int
	Sigma      float64
	Low        float64
	High       float64
}

// EdgeDetect smooths img with a Gaussian and runs Canny on the result.
func EdgeDetect[T array.Float](img *array.Dense[T], p EdgeParams) (*array.Mask, error) {
	smooth, err := GaussianBlur(img, p.KernelSize, p.Sigma)
	if err != nil {
		return nil, err
	}
	return Canny(smooth, CannyParams{Low: p.Low, High: p.High})
}

func sobel[T array.Float](img *array.Dense[T]) (mag, gx, gy []float64) {
	rows, cols := img.Rows(), img.Cols()
	n := rows * cols
	mag = make([]float64, n)
	gx = make([]float64, n)
	gy = make([]float64, n)

	clamp := func(i, n int) int {
		if i < 0 {
			return 0
		}
		if i >= n {
			return n - 1
		}
		return i
	}

	var win [3][3]float64
	for r := 0; r < rows; r++ {
	pixel:
		for c := 0; c < cols; c++ {
			for dr := -1; dr <= 1; dr++ {
				rr := clamp(r+dr, rows)
				for dc := -1; dc <= 1; dc++ {
					v := img.Data[rr*cols+clamp(c+dc, cols)]
					if array.IsNaN(v) {
						continue pixel
					}
					win[dr+1][dc+1] = float64(v)
				}
			}
			x := (win[0][2] + 2*win[1][2] + win[2][2]) - (win[0][0] + 2*win[1][0] + win[2][0])
			y := (win[2][0] + 2*win[2][1] + win[2][2]) - (win[0][0] + 2*win[0][1] + win[0][2])
			i := r*cols + c
			gx[i], gy[i] = x, y
			mag[i] = math.Hypot(x, y)
		}
	}
	return mag, gx, gy
}

// suppress keeps a pixel only when its magnitude is a local maximum across
// the gradient direction. Ties resolve towards the lower-index neighbour
// so a plateau two pixels wide yields a single edge.
func suppress(mag, gx, gy []float64, rows, cols int) []float64 {
	out := make([]float64, len(mag))
	at := func(r, c int) float64 {
		if r < 0 || r >= rows || c < 0 || c >= cols {
			return 0
		}
		return mag[r*cols+c]
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			m := mag[i]
			if m == 0 {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var before, after float64
			switch {
			case ay <= tan22*ax:
				before, after = at(r, c-1), at(r, c+1)
			case ay > tan67*ax:
				before, after = at(r-1, c), at(r+1, c)
			case gx[i]*gy[i] > 0:
				before, after = at(r-1, c-1), at(r+1, c+1)
			default:
				before, after = at(r-1, c+1), at(r+1, c-1)
			}
			if m > before && m >= after {
				out[i] = m
			}
		}
	}
	return out
}

func hysteresis(thin []float64, rows, cols int, low, high float64) *array.Mask {
	edges := array.NewMask(rows, cols)
	stack := make([]int, 0, 64)
	for i, m := range thin {
		if m > 0 && m >= high && !edges.Data[i] {
			edges.Data[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r, c := i/cols, i%cols
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				rr, cc := r+dr, c+dc
				if rr < 0 || rr >= rows || cc < 0 || cc >= cols {
					continue
				}
				j := rr*cols + cc
				if edges.Data[j] || thin[j] == 0 || thin[j] < low {
					continue
				}
				edges.Data[j] = true
				stack = append(stack, j)
			}
		}
	}
	return edges
}
