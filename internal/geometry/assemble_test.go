package geometry

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/foam/internal/array"
)

// fixture mirrors a 3x2 module grid with two pulses per train.
type fixture struct {
	g      *Geometry
	np     int
	nm     int
	mh, mw int
	ah, aw int
	shape  [2]int
}

func newFixture(t *testing.T, v Variant) *fixture {
	t.Helper()
	g, err := New(v, nRows, nCols, WithPool(testPool))
	require.NoError(t, err)
	return &fixture{
		g:     g,
		np:    2,
		nm:    g.NModules(),
		mh:    g.ModuleShape()[0],
		mw:    g.ModuleShape()[1],
		ah:    g.AsicShape()[0],
		aw:    g.AsicShape()[1],
		shape: g.AssembledShape(),
	}
}

func forEachVariant(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, v := range Variants {
		t.Run(v.Name, func(t *testing.T) {
			t.Parallel()
			fn(t, newFixture(t, v))
		})
	}
}

func assertAll[T array.Float](t *testing.T, data []T, want T) {
	t.Helper()
	for i, v := range data {
		if v != want {
			t.Fatalf("element %d = %v, want %v", i, v, want)
		}
	}
}

func sameBits[T array.Float](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(array.IsNaN(a[i]) && array.IsNaN(b[i])) {
			return false
		}
	}
	return true
}

func randomStack(rng *rand.Rand, shape ...int) *array.Dense[float32] {
	a := array.New[float32](shape...)
	for i := range a.Data {
		a.Data[i] = rng.Float32()*1000 - 500
	}
	return a
}

func TestAssemblingShapeCheck(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		tests := []struct {
			name  string
			src   []int
			dst   []int
			field string
		}{
			{"pulse count", []int{f.np - 1, f.nm, f.mh, f.mw}, []int{f.np, f.shape[0], f.shape[1]}, "pulses"},
			{"pulsed src into single image", []int{f.np, f.nm, f.mh, f.mw}, []int{f.shape[0], f.shape[1]}, "pulses"},
			{"single src into pulsed image", []int{f.nm, f.mh, f.mw}, []int{1, f.shape[0], f.shape[1]}, "pulses"},
			{"module count", []int{f.np, f.nm - 1, f.mh, f.mw}, []int{f.np, f.shape[0], f.shape[1]}, "modules"},
			{"module height", []int{f.np, f.nm, f.mh - 1, f.mw}, []int{f.np, f.shape[0], f.shape[1]}, "module shape"},
			{"module width", []int{f.np, f.nm, f.mh, f.mw - 1}, []int{f.np, f.shape[0], f.shape[1]}, "module shape"},
			{"image height", []int{f.np, f.nm, f.mh, f.mw}, []int{f.np, f.shape[0] + 1, f.shape[1]}, "image shape"},
			{"image width", []int{f.np, f.nm, f.mh, f.mw}, []int{f.np, f.shape[0], f.shape[1] + 1}, "image shape"},
			{"src rank", []int{f.mh, f.mw}, []int{f.shape[0], f.shape[1]}, "rank"},
			{"dst rank", []int{f.nm, f.mh, f.mw}, []int{f.shape[0] * f.shape[1]}, "rank"},
		}
		for _, tt := range tests {
			src := array.Ones[float32](tt.src...)
			dst := array.Full[float32](-3, tt.dst...)
			before := dst.Clone()

			err := PositionAllModules(f.g, src, dst, false)
			require.ErrorIs(t, err, ErrShapeMismatch, tt.name)
			var se *ShapeError
			require.True(t, errors.As(err, &se), tt.name)
			assert.Equal(t, tt.field, se.Field, tt.name)
			assert.True(t, sameBits(before.Data, dst.Data), "%s: destination modified", tt.name)
		}
	})
}

func TestValidationOrder(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		dst := array.New[float32](f.np, f.shape[0]+1, f.shape[1])

		// Every check fails; pulses is reported first.
		src := array.New[float32](f.np+1, f.nm+1, f.mh+1, f.mw)
		var se *ShapeError
		require.True(t, errors.As(PositionAllModules(f.g, src, dst, false), &se))
		assert.Equal(t, "pulses", se.Field)

		// Then module count before module shape and image shape.
		src = array.New[float32](f.np, f.nm+1, f.mh+1, f.mw)
		require.True(t, errors.As(PositionAllModules(f.g, src, dst, false), &se))
		assert.Equal(t, "modules", se.Field)
		assert.Equal(t, []int{f.nm}, se.Expected)
		assert.Equal(t, []int{f.nm + 1}, se.Actual)

		// Then module shape before image shape.
		src = array.New[float32](f.np, f.nm, f.mh+1, f.mw)
		require.True(t, errors.As(PositionAllModules(f.g, src, dst, false), &se))
		assert.Equal(t, "module shape", se.Field)
		assert.Equal(t, []int{f.mh, f.mw}, se.Expected)
		assert.Equal(t, []int{f.mh + 1, f.mw}, se.Actual)

		src = array.New[float32](f.np, f.nm, f.mh, f.mw)
		require.True(t, errors.As(PositionAllModules(f.g, src, dst, false), &se))
		assert.Equal(t, "image shape", se.Field)
		assert.Equal(t, []int{f.shape[0], f.shape[1]}, se.Expected)
	})
}

func TestModuleListShapeCheck(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		dst := array.Full[float64](-1, f.np, f.shape[0], f.shape[1])
		before := dst.Clone()

		mods := func(n int, shape ...int) []*array.Dense[float64] {
			out := make([]*array.Dense[float64], n)
			for i := range out {
				out[i] = array.Ones[float64](shape...)
			}
			return out
		}

		// Mixed pulse counts across modules.
		src := mods(f.nm, f.np, f.mh, f.mw)
		src[3] = array.Ones[float64](f.np+1, f.mh, f.mw)
		assert.ErrorIs(t, PositionModules(f.g, src, dst, false), ErrShapeMismatch)

		// Mixed ranks.
		src = mods(f.nm, f.np, f.mh, f.mw)
		src[1] = array.Ones[float64](f.mh, f.mw)
		assert.ErrorIs(t, PositionModules(f.g, src, dst, false), ErrShapeMismatch)

		// Too few modules, and none at all.
		assert.ErrorIs(t, PositionModules(f.g, mods(f.nm-1, f.np, f.mh, f.mw), dst, false), ErrShapeMismatch)
		assert.ErrorIs(t, PositionModules(f.g, nil, dst, false), ErrShapeMismatch)

		// One module with the wrong spatial shape.
		src = mods(f.nm, f.np, f.mh, f.mw)
		src[f.nm-1] = array.Ones[float64](f.np, f.mh, f.mw+1)
		assert.ErrorIs(t, PositionModules(f.g, src, dst, false), ErrShapeMismatch)

		// A nil entry.
		src = mods(f.nm, f.np, f.mh, f.mw)
		src[0] = nil
		assert.ErrorIs(t, PositionModules(f.g, src, dst, false), ErrShapeMismatch)

		assert.True(t, sameBits(before.Data, dst.Data), "destination modified by a rejected call")
	})
}

func TestPositionAllModulesSingle(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := array.Ones[float32](f.nm, f.mh, f.mw)
		dst := array.NaNs[float32](f.shape[0], f.shape[1])

		require.NoError(t, PositionAllModules(f.g, src, dst, false))
		assertAll(t, dst.Data, 1)
	})
}

func TestPositionAllModulesSingleVector(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := make([]*array.Dense[float32], f.nm)
		for i := range src {
			src[i] = array.Ones[float32](f.mh, f.mw)
		}
		dst := array.NaNs[float32](f.shape[0], f.shape[1])

		require.NoError(t, PositionModules(f.g, src, dst, false))
		assertAll(t, dst.Data, 1)
	})
}

func TestPositionAllModulesArray(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := array.Ones[float32](f.np, f.nm, f.mh, f.mw)
		dst := array.NaNs[float32](f.np, f.shape[0], f.shape[1])

		require.NoError(t, PositionAllModules(f.g, src, dst, false))
		assertAll(t, dst.Data, 1)
	})
}

func TestPositionAllModulesVector(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := make([]*array.Dense[float32], f.nm)
		for i := range src {
			src[i] = array.Ones[float32](f.np, f.mh, f.mw)
		}
		dst := array.NaNs[float32](f.np, f.shape[0], f.shape[1])

		require.NoError(t, PositionModules(f.g, src, dst, false))
		assertAll(t, dst.Data, 1)
	})
}

func TestPositionAllModulesFloat64(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := array.Full[float64](2.5, f.nm, f.mh, f.mw)
		dst := array.New[float64](f.shape[0], f.shape[1])

		require.NoError(t, PositionAllModules(f.g, src, dst, false))
		assertAll(t, dst.Data, 2.5)
	})
}

// Each module writes its own sentinel; every canvas pixel must carry the
// sentinel of the module whose footprint contains it.
func TestModuleRegionsDoNotOverlap(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := array.New[float32](f.np, f.nm, f.mh, f.mw)
		for p := 0; p < f.np; p++ {
			for m := 0; m < f.nm; m++ {
				src.Frame(p).Frame(m).Fill(float32(100*p + m + 1))
			}
		}
		dst := array.NaNs[float32](f.np, f.shape[0], f.shape[1])
		require.NoError(t, PositionAllModules(f.g, src, dst, false))

		for p := 0; p < f.np; p++ {
			img := dst.Frame(p)
			for r := 0; r < f.shape[0]; r++ {
				for c := 0; c < f.shape[1]; c++ {
					m := (r/f.mh)*nCols + c/f.mw
					if got, want := img.Data[r*f.shape[1]+c], float32(100*p+m+1); got != want {
						t.Fatalf("pulse %d pixel (%d, %d) = %v, want module %d sentinel %v", p, r, c, got, m, want)
					}
				}
			}
		}
	})
}

func TestIgnoreTileEdge(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := randomStack(rand.New(rand.NewPCG(1, 2)), f.np, f.nm, f.mh, f.mw)

		plain := array.NaNs[float32](f.np, f.shape[0], f.shape[1])
		require.NoError(t, PositionAllModules(f.g, src, plain, false))

		masked := array.NaNs[float32](f.np, f.shape[0], f.shape[1])
		require.NoError(t, PositionAllModules(f.g, src, masked, true))

		edgeRow := make([]bool, f.mh)
		for _, r := range f.g.EdgeRows() {
			edgeRow[r] = true
		}
		edgeCol := make([]bool, f.mw)
		for _, c := range f.g.EdgeCols() {
			edgeCol[c] = true
		}

		for p := 0; p < f.np; p++ {
			a, b := plain.Frame(p), masked.Frame(p)
			for r := 0; r < f.shape[0]; r++ {
				for c := 0; c < f.shape[1]; c++ {
					i := r*f.shape[1] + c
					onEdge := edgeRow[r%f.mh] || edgeCol[c%f.mw]
					if onEdge && !array.IsNaN(b.Data[i]) {
						t.Fatalf("pulse %d pixel (%d, %d) should be masked", p, r, c)
					}
					if !onEdge && a.Data[i] != b.Data[i] {
						t.Fatalf("pulse %d pixel (%d, %d) altered: %v -> %v", p, r, c, a.Data[i], b.Data[i])
					}
				}
			}
		}

		// The first canvas row is always a module edge.
		for c, v := range masked.Frame(0).Data[:f.shape[1]] {
			if !array.IsNaN(v) {
				t.Fatalf("canvas row 0 col %d = %v, want NaN", c, v)
			}
		}
	})
}

func TestIgnoreTileEdgeBorderRows(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		src := array.Ones[float32](f.np, f.nm, f.mh, f.mw)
		dst := array.NaNs[float32](f.np, f.shape[0], f.shape[1])
		require.NoError(t, PositionAllModules(f.g, src, dst, true))

		rowAllNaN := func(p, r int) bool {
			row := dst.Frame(p).Data[r*f.shape[1] : (r+1)*f.shape[1]]
			for _, v := range row {
				if !array.IsNaN(v) {
					return false
				}
			}
			return true
		}
		colAllNaN := func(p, c int) bool {
			img := dst.Frame(p)
			for r := 0; r < f.shape[0]; r++ {
				if !array.IsNaN(img.Data[r*f.shape[1]+c]) {
					return false
				}
			}
			return true
		}

		tileH := f.ah
		if f.g.Variant().EdgeRule == EdgeModuleRows {
			tileH = f.mh
		}
		for p := 0; p < f.np; p++ {
			for bottom, top := 0, tileH-1; bottom < f.shape[0]; bottom, top = bottom+tileH, top+tileH {
				assert.True(t, rowAllNaN(p, bottom), "row %d", bottom)
				assert.True(t, rowAllNaN(p, top), "row %d", top)
			}
			if f.g.Variant().EdgeRule == EdgeAsic {
				for left, right := 0, f.aw-1; right < f.shape[1]; left, right = left+f.aw, right+f.aw {
					assert.True(t, colAllNaN(p, left), "col %d", left)
					assert.True(t, colAllNaN(p, right), "col %d", right)
				}
			} else {
				// The single-tile variant masks no columns: column 0 keeps
				// its interior pixels.
				assert.False(t, colAllNaN(p, 0))
			}
		}
	})
}

func TestStorageLengthIsChecked(t *testing.T) {
	forEachVariant(t, func(t *testing.T, f *fixture) {
		short := func(shape ...int) *array.Dense[float32] {
			a := array.Ones[float32](shape...)
			a.Data = a.Data[:len(a.Data)-f.mw]
			return a
		}
		assertStorage := func(t *testing.T, err error, name string) {
			t.Helper()
			var se *ShapeError
			require.True(t, errors.As(err, &se), "%s: got %v", name, err)
			assert.Equal(t, "storage", se.Field, name)
		}

		dst := array.Full[float32](-3, f.np, f.shape[0], f.shape[1])
		before := dst.Clone()
		assertStorage(t, PositionAllModules(f.g, short(f.np, f.nm, f.mh, f.mw), dst, true), "dense src")
		assertStorage(t, PositionAllModules(f.g, array.Ones[float32](f.np, f.nm, f.mh, f.mw),
			short(f.np, f.shape[0], f.shape[1]), false), "dst")

		mods := make([]*array.Dense[float32], f.nm)
		for i := range mods {
			mods[i] = array.Ones[float32](f.np, f.mh, f.mw)
		}
		mods[f.nm-1] = short(f.np, f.mh, f.mw)
		assertStorage(t, PositionModules(f.g, mods, dst, false), "module list")
		assert.True(t, sameBits(before.Data, dst.Data), "destination modified")

		out := array.New[float32](f.np, f.nm, f.mh, f.mw)
		assertStorage(t, DismantleAllModules(f.g, short(f.np, f.shape[0], f.shape[1]), out), "dismantle src")
		assertAll(t, out.Data, 0)

		assertStorage(t, MaskModule(f.g.Variant(), short(f.mh, f.mw)), "mask module")
		assertStorage(t, MaskModules(f.g, short(f.nm, f.mh, f.mw)), "mask modules")

		neg := &array.Dense[float32]{Shape: []int{-f.nm, f.mh, f.mw}}
		var se *ShapeError
		require.True(t, errors.As(PositionAllModules(f.g, neg, dst, false), &se))
		assert.Equal(t, "shape", se.Field)
	})
}
