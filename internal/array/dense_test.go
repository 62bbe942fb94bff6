package array

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndFull(t *testing.T) {
	t.Parallel()

	a := New[float32](2, 3, 4)
	assert.Equal(t, 3, a.Rank())
	assert.Equal(t, 24, a.Size())
	for _, v := range a.Data {
		assert.Zero(t, v)
	}

	b := Full[float64](2.5, 3, 2)
	for _, v := range b.Data {
		assert.Equal(t, 2.5, v)
	}

	n := NaNs[float32](2, 2)
	for _, v := range n.Data {
		assert.True(t, IsNaN(v))
	}
}

func TestFromSlice(t *testing.T) {
	t.Parallel()

	_, err := FromSlice([]float64{1, 2, 3}, 2, 2)
	require.Error(t, err)

	a, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6.0, a.At(1, 2))
	assert.Equal(t, 2.0, a.At(0, 1))
}

func TestOffsetPanics(t *testing.T) {
	t.Parallel()

	a := New[float64](2, 3)
	assert.Panics(t, func() { a.At(2, 0) })
	assert.Panics(t, func() { a.At(0) })
	assert.NotPanics(t, func() { a.Set(1, 1, 2) })
}

func TestFrameSharesStorage(t *testing.T) {
	t.Parallel()

	a := New[float32](3, 2, 2)
	f := a.Frame(1)
	if diff := cmp.Diff([]int{2, 2}, f.Shape); diff != "" {
		t.Fatalf("frame shape mismatch (-want +got):\n%s", diff)
	}
	f.Fill(7)

	for i, v := range a.Data {
		want := float32(0)
		if i >= 4 && i < 8 {
			want = 7
		}
		assert.Equal(t, want, v, "element %d", i)
	}

	// Appending to a frame must never clobber the next frame.
	_ = append(f.Data, 99)
	assert.Equal(t, float32(0), a.Data[8])
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	a := Ones[float64](2, 2)
	b := a.Clone()
	b.Data[0] = 5
	b.Shape[0] = 9
	assert.Equal(t, 1.0, a.Data[0])
	assert.Equal(t, 2, a.Shape[0])
}

func TestShapeEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, ShapeEqual([]int{1, 2}, []int{1, 2}))
	assert.False(t, ShapeEqual([]int{1, 2}, []int{2, 1}))
	assert.False(t, ShapeEqual([]int{1, 2}, []int{1, 2, 1}))
	assert.True(t, SameShape(New[float32](4, 5), New[float32](4, 5)))
}

func TestNaNHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNaN(NaN[float32]()))
	assert.True(t, math.IsNaN(NaN[float64]()))
	assert.False(t, IsNaN(float32(1)))
}

func TestMask(t *testing.T) {
	t.Parallel()

	m := NewMask(3, 4)
	m.Set(1, 2, true)
	m.Set(2, 3, true)
	assert.True(t, m.At(1, 2))
	assert.False(t, m.At(0, 0))
	assert.Equal(t, 2, m.Count())

	c := m.Clone()
	c.Set(0, 0, true)
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 3, c.Count())
}
