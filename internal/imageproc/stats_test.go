package imageproc

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/foam/internal/array"
)

func validValues[T array.Float](data []T) []float64 {
	var out []float64
	for _, v := range data {
		if !array.IsNaN(v) {
			out = append(out, float64(v))
		}
	}
	return out
}

func TestNanMeanStdMatchesValidSubset(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]float32, 5000)
	for i := range data {
		if rng.IntN(5) == 0 {
			data[i] = array.NaN[float32]()
			continue
		}
		data[i] = float32(rng.NormFloat64()*3 + 10)
	}

	valid := validValues(data)
	wantMean := stat.Mean(valid, nil)
	wantStd := math.Sqrt(stat.PopVariance(valid, nil))

	mean, std := NanMeanStd(data)
	assert.InDelta(t, wantMean, mean, 1e-9)
	assert.InDelta(t, wantStd, std, 1e-9)
	assert.InDelta(t, wantMean, NanMean(data), 1e-9)
	assert.InDelta(t, wantStd, NanStd(data), 1e-9)
	assert.Equal(t, len(valid), CountValid(data))
}

func TestNanMeanStdAllNaN(t *testing.T) {
	t.Parallel()

	data := array.NaNs[float64](4, 4).Data
	mean, std := NanMeanStd(data)
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(std))
	assert.True(t, math.IsNaN(NanMean[float64](nil)))
	assert.Equal(t, 0, CountValid(data))
}

func TestNanStdIsStableWithLargeOffset(t *testing.T) {
	t.Parallel()

	// Naive sum-of-squares loses every significant digit here.
	data := make([]float64, 1_000_000)
	for i := range data {
		data[i] = 1e9 + float64(i%2)
	}
	mean, std := NanMeanStd(data)
	assert.InDelta(t, 1e9+0.5, mean, 1e-3)
	assert.InDelta(t, 0.5, std, 1e-3)
}

func TestNanMeanAxis(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	a, err := array.FromSlice([]float64{
		1, 2, nan,
		3, nan, nan,
	}, 2, 3)
	require.NoError(t, err)

	rows, err := NanMeanAxis(a, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rows.Shape)
	assert.Equal(t, []float64{1.5, 3}, rows.Data)

	cols, err := NanMeanAxis(a, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, cols.Shape)
	assert.Equal(t, 2.0, cols.Data[0])
	assert.Equal(t, 2.0, cols.Data[1])
	assert.True(t, math.IsNaN(cols.Data[2]))

	std, err := NanStdAxis(a, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, std.Data[0], 1e-12)
	assert.Equal(t, 0.0, std.Data[1])
	assert.True(t, math.IsNaN(std.Data[2]))

	_, err = NanMeanAxis(a, 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NanMeanAxis(a, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNanMeanAxisMiddle(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(9, 9))
	a := array.New[float64](3, 4, 5)
	for i := range a.Data {
		a.Data[i] = rng.Float64()
	}
	got, err := NanMeanAxis(a, 1)
	require.NoError(t, err)
	require.Equal(t, []int{3, 5}, got.Shape)

	for o := 0; o < 3; o++ {
		for i := 0; i < 5; i++ {
			col := make([]float64, 4)
			for k := range col {
				col[k] = a.At(o, k, i)
			}
			assert.InDelta(t, stat.Mean(col, nil), got.At(o, i), 1e-12)
		}
	}
}

func TestNanMeanPulses(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(4, 8))
	a := array.New[float32](7, 37, 11)
	for i := range a.Data {
		a.Data[i] = rng.Float32()
		if rng.IntN(10) == 0 {
			a.Data[i] = array.NaN[float32]()
		}
	}
	// A pixel that is NaN in every pulse.
	for p := 0; p < 7; p++ {
		a.Set(array.NaN[float32](), p, 3, 3)
	}

	want, err := NanMeanAxis(a, 0)
	require.NoError(t, err)

	for _, opts := range []PulseMeanOptions{{}, {ChunkRows: 1, MaxWorkers: 8}, {ChunkRows: 100, MaxWorkers: 1}} {
		got, err := NanMeanPulses(context.Background(), a, opts)
		require.NoError(t, err)
		if diff := cmp.Diff(want.Data, got.Data, cmp.Comparer(func(x, y float32) bool {
			return x == y || (x != x && y != y)
		})); diff != "" {
			t.Errorf("NanMeanPulses(%+v) mismatch (-want +got):\n%s", opts, diff)
		}
	}
}

func TestNanMeanPulsesErrors(t *testing.T) {
	t.Parallel()

	_, err := NanMeanPulses(context.Background(), array.New[float32](4, 4), PulseMeanOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NanMeanPulses(ctx, array.New[float32](2, 64, 4), PulseMeanOptions{ChunkRows: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
