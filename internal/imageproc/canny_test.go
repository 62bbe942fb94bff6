package imageproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/foam/internal/array"
)

// stepImage is dark left of column split and bright from split on.
func stepImage(rows, cols, split int, hi float64) *array.Dense[float64] {
	img := array.New[float64](rows, cols)
	for r := 0; r < rows; r++ {
		for c := split; c < cols; c++ {
			img.Set(hi, r, c)
		}
	}
	return img
}

func edgeColumns(m *array.Mask) map[int]int {
	cols := map[int]int{}
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if m.At(r, c) {
				cols[c]++
			}
		}
	}
	return cols
}

func TestCannyVerticalStep(t *testing.T) {
	t.Parallel()

	img := stepImage(20, 20, 10, 10)
	edges, err := Canny(img, CannyParams{Low: 10, High: 20})
	require.NoError(t, err)

	assert.Equal(t, map[int]int{9: 20}, edgeColumns(edges))
}

func TestCannyQuantileThresholds(t *testing.T) {
	t.Parallel()

	img := stepImage(20, 20, 10, 10)
	abs, err := Canny(img, CannyParams{Low: 10, High: 20})
	require.NoError(t, err)
	q, err := Canny(img, CannyParams{Low: 0.5, High: 0.95, UseQuantiles: true})
	require.NoError(t, err)
	assert.Equal(t, abs.Data, q.Data)
}

func TestCannyHysteresisDropsIsolatedWeakEdges(t *testing.T) {
	t.Parallel()

	// Two steps: a strong one at column 5 and a weak one at column 15.
	img := array.New[float64](16, 24)
	for r := 0; r < 16; r++ {
		for c := 0; c < 24; c++ {
			switch {
			case c >= 15:
				img.Set(11, r, c)
			case c >= 5:
				img.Set(10, r, c)
			}
		}
	}
	// Strong step magnitude is 40, weak step magnitude is 4.
	edges, err := Canny(img, CannyParams{Low: 2, High: 20})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4: 16}, edgeColumns(edges))

	// Lowering the high threshold promotes the weak step too.
	edges, err = Canny(img, CannyParams{Low: 2, High: 3})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{4: 16, 14: 16}, edgeColumns(edges))
}

func TestCannyIgnoresMaskedPixels(t *testing.T) {
	t.Parallel()

	img := array.Full[float32](12, 12, 5)
	for r := 3; r < 6; r++ {
		for c := 0; c < 12; c++ {
			img.Set(array.NaN[float32](), r, c)
		}
	}
	edges, err := Canny(img, CannyParams{Low: 0.1, High: 0.2})
	require.NoError(t, err)
	assert.Zero(t, edges.Count())
}

func TestCannyRejects(t *testing.T) {
	t.Parallel()

	img := array.New[float64](4, 4)
	tests := []struct {
		name string
		img  *array.Dense[float64]
		p    CannyParams
	}{
		{"low above high", img, CannyParams{Low: 5, High: 1}},
		{"negative", img, CannyParams{Low: -1, High: 1}},
		{"quantile above one", img, CannyParams{Low: 0.1, High: 2, UseQuantiles: true}},
		{"not 2D", array.New[float64](2, 4, 4), CannyParams{Low: 1, High: 2}},
		{"nil", nil, CannyParams{Low: 1, High: 2}},
	}
	for _, tt := range tests {
		_, err := Canny(tt.img, tt.p)
		assert.ErrorIs(t, err, ErrInvalidArgument, tt.name)
	}
}

func TestEdgeDetect(t *testing.T) {
	t.Parallel()

	img := stepImage(24, 24, 12, 10)
	edges, err := EdgeDetect(img, EdgeParams{KernelSize: 5, Sigma: 1, Low: 5, High: 10})
	require.NoError(t, err)

	cols := edgeColumns(edges)
	total := 0
	for c, n := range cols {
		assert.True(t, c >= 10 && c <= 13, "edge at column %d", c)
		total += n
	}
	assert.GreaterOrEqual(t, total, 24)
	assert.LessOrEqual(t, total, 48)

	_, err = EdgeDetect(img, EdgeParams{KernelSize: 4, Sigma: 1, Low: 5, High: 10})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
