package imageproc

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/foam/internal/array"
)

// FourierTransform returns the magnitude of the 2D discrete Fourier
// transform of img with the zero frequency moved to the centre, at
// (rows/2, cols/2). NaN pixels contribute nothing. With logarithmic set the
// result is log(1 + |F|).
func FourierTransform[T array.Float](img *array.Dense[T], logarithmic bool) (*array.Dense[T], error) {
	if img == nil || img.Rank() != 2 {
		return nil, fmt.Errorf("%w: Fourier transform needs a 2D image", ErrInvalidArgument)
	}
	rows, cols := img.Rows(), img.Cols()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidArgument)
	}

	coeff := make([]complex128, rows*cols)
	for i, v := range img.Data {
		if !array.IsNaN(v) {
			coeff[i] = complex(float64(v), 0)
		}
	}

	rowFFT := fourier.NewCmplxFFT(cols)
	line := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		row := coeff[r*cols : (r+1)*cols]
		copy(row, rowFFT.Coefficients(line, row))
	}

	colFFT := fourier.NewCmplxFFT(rows)
	in := make([]complex128, rows)
	out := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			in[r] = coeff[r*cols+c]
		}
		colFFT.Coefficients(out, in)
		for r := 0; r < rows; r++ {
			coeff[r*cols+c] = out[r]
		}
	}

	res := array.New[T](rows, cols)
	for r := 0; r < rows; r++ {
		sr := (r + rows/2) % rows
		for c := 0; c < cols; c++ {
			sc := (c + cols/2) % cols
			m := cmplx.Abs(coeff[r*cols+c])
			if logarithmic {
				m = math.Log1p(m)
			}
			res.Data[sr*cols+sc] = T(m)
		}
	}
	return res, nil
}
