package imageproc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/foam/internal/array"
)

// GaussianKernel returns a normalised 1D Gaussian of odd length size.
func GaussianKernel(size int, sigma float64) ([]float64, error) {
	if size < 1 || size%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size must be a positive odd number, got %d", ErrInvalidArgument, size)
	}
	if !(sigma > 0) {
		return nil, fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalidArgument, sigma)
	}
	k := make([]float64, size)
	half := size / 2
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k, nil
}

// BoxKernel returns a normalised 1D averaging kernel of odd length size.
func BoxKernel(size int) ([]float64, error) {
	if size < 1 || size%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size must be a positive odd number, got %d", ErrInvalidArgument, size)
	}
	k := make([]float64, size)
	for i := range k {
		k[i] = 1 / float64(size)
	}
	return k, nil
}

// GaussianBlur smooths a 2D image with a separable Gaussian of the given
// size and sigma. See Convolve for the NaN handling.
func GaussianBlur[T array.Float](img *array.Dense[T], size int, sigma float64) (*array.Dense[T], error) {
	k, err := GaussianKernel(size, sigma)
	if err != nil {
		return nil, err
	}
	return Convolve(img, k, k)
}

// BoxBlur smooths a 2D image with a size x size moving average.
func BoxBlur[T array.Float](img *array.Dense[T], size int) (*array.Dense[T], error) {
	k, err := BoxKernel(size)
	if err != nil {
		return nil, err
	}
	return Convolve(img, k, k)
}

// Convolve applies the separable kernel ky (along rows) x kx (along
// columns) to a 2D image and returns a new image.
//
// The convolution is normalised: each output pixel is the weighted mean of
// the valid input pixels under the kernel, where NaN cells and cells
// beyond the image border carry no weight. A NaN input cell is NaN in the
// output. Kernels must be non-negative with a positive centre tap, so a
// valid cell always carries weight and is never NaN in the output.
func Convolve[T array.Float](img *array.Dense[T], kx, ky []float64) (*array.Dense[T], error) {
	if img == nil || img.Rank() != 2 {
		return nil, fmt.Errorf("%w: convolution needs a 2D image", ErrInvalidArgument)
	}
	if len(kx)%2 == 0 || len(ky)%2 == 0 {
		return nil, fmt.Errorf("%w: kernel lengths must be odd, got %d and %d", ErrInvalidArgument, len(kx), len(ky))
	}
	for _, k := range [][]float64{kx, ky} {
		if err := checkKernel(k); err != nil {
			return nil, err
		}
	}
	rows, cols := img.Rows(), img.Cols()
	n := rows * cols

	// Horizontal pass over the value and weight planes.
	num := make([]float64, n)
	den := make([]float64, n)
	hx := len(kx) / 2
	for r := 0; r < rows; r++ {
		line := img.Data[r*cols : (r+1)*cols]
		for c := 0; c < cols; c++ {
			var s, w float64
			for k, kv := range kx {
				cc := c + k - hx
				if cc < 0 || cc >= cols {
					continue
				}
				v := line[cc]
				if array.IsNaN(v) {
					continue
				}
				s += kv * float64(v)
				w += kv
			}
			num[r*cols+c] = s
			den[r*cols+c] = w
		}
	}

	// Vertical pass, then normalise.
	out := array.New[T](rows, cols)
	hy := len(ky) / 2
	nan := array.NaN[T]()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if array.IsNaN(img.Data[i]) {
				out.Data[i] = nan
				continue
			}
			var s, w float64
			for k, kv := range ky {
				rr := r + k - hy
				if rr < 0 || rr >= rows {
					continue
				}
				s += kv * num[rr*cols+c]
				w += kv * den[rr*cols+c]
			}
			out.Data[i] = T(s / w)
		}
	}
	return out, nil
}

func checkKernel(k []float64) error {
	for i, v := range k {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: kernel weight %d is %v, weights must be finite and non-negative", ErrInvalidArgument, i, v)
		}
	}
	if !(k[len(k)/2] > 0) {
		return fmt.Errorf("%w: kernel centre weight must be positive", ErrInvalidArgument)
	}
	return nil
}
