// Package array provides the dense, row-major numeric arrays that carry
// detector data between the bridge, the geometry engine and the image
// kernels.
//
// Arrays are plain values owned by the caller. Nothing in this package keeps
// references to them after a call returns.
package array

import (
	"fmt"
	"math"
)

// Float is the set of element types accepted by the geometry engine and the
// image kernels. The element type is fixed for a given call; there is no
// implicit conversion between float32 and float64 arrays.
type Float interface {
	~float32 | ~float64
}

// Dense is an N-dimensional array stored contiguously in row-major order.
// Shape[0] is the slowest varying axis.
type Dense[T Float] struct {
	Shape []int
	Data  []T
}

// New returns a zero-filled array of the given shape.
func New[T Float](shape ...int) *Dense[T] {
	return &Dense[T]{Shape: cloneShape(shape), Data: make([]T, shapeSize(shape))}
}

// Full returns an array of the given shape with every element set to v.
func Full[T Float](v T, shape ...int) *Dense[T] {
	a := New[T](shape...)
	a.Fill(v)
	return a
}

// Ones returns an array of the given shape filled with 1.
func Ones[T Float](shape ...int) *Dense[T] {
	return Full[T](1, shape...)
}

// NaNs returns an array of the given shape filled with NaN.
func NaNs[T Float](shape ...int) *Dense[T] {
	return Full(NaN[T](), shape...)
}

// FromSlice wraps data without copying. The length of data must equal the
// product of shape.
func FromSlice[T Float](data []T, shape ...int) (*Dense[T], error) {
	if n := shapeSize(shape); n != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v (size %d)", len(data), shape, n)
	}
	return &Dense[T]{Shape: cloneShape(shape), Data: data}, nil
}

// Rank returns the number of axes.
func (a *Dense[T]) Rank() int { return len(a.Shape) }

// Size returns the number of elements.
func (a *Dense[T]) Size() int { return len(a.Data) }

// Fill sets every element to v.
func (a *Dense[T]) Fill(v T) {
	for i := range a.Data {
		a.Data[i] = v
	}
}

// Clone returns a deep copy.
func (a *Dense[T]) Clone() *Dense[T] {
	out := &Dense[T]{Shape: cloneShape(a.Shape), Data: make([]T, len(a.Data))}
	copy(out.Data, a.Data)
	return out
}

// Offset converts a multi-index into a flat offset. It panics when the index
// rank or any component is out of range.
func (a *Dense[T]) Offset(idx ...int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("array: index rank %d does not match array rank %d", len(idx), len(a.Shape)))
	}
	off := 0
	for k, i := range idx {
		if i < 0 || i >= a.Shape[k] {
			panic(fmt.Sprintf("array: index %d out of range for axis %d with size %d", i, k, a.Shape[k]))
		}
		off = off*a.Shape[k] + i
	}
	return off
}

// At returns the element at the given multi-index.
func (a *Dense[T]) At(idx ...int) T { return a.Data[a.Offset(idx...)] }

// Set stores v at the given multi-index.
func (a *Dense[T]) Set(v T, idx ...int) { a.Data[a.Offset(idx...)] = v }

// Frame returns a view of the i-th sub-array along the leading axis. The
// view shares storage with a.
func (a *Dense[T]) Frame(i int) *Dense[T] {
	if len(a.Shape) == 0 {
		panic("array: Frame on a rank-0 array")
	}
	if i < 0 || i >= a.Shape[0] {
		panic(fmt.Sprintf("array: frame %d out of range [0, %d)", i, a.Shape[0]))
	}
	stride := shapeSize(a.Shape[1:])
	return &Dense[T]{Shape: cloneShape(a.Shape[1:]), Data: a.Data[i*stride : (i+1)*stride : (i+1)*stride]}
}

// Rows and Cols return the size of the last two axes.
func (a *Dense[T]) Rows() int { return a.Shape[len(a.Shape)-2] }
func (a *Dense[T]) Cols() int { return a.Shape[len(a.Shape)-1] }

// SameShape reports whether a and b have identical shapes.
func SameShape[T Float](a, b *Dense[T]) bool {
	return ShapeEqual(a.Shape, b.Shape)
}

// ShapeEqual reports whether two shapes are identical.
func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NaN returns a quiet NaN of type T.
func NaN[T Float]() T { return T(math.NaN()) }

// IsNaN reports whether v is NaN.
func IsNaN[T Float](v T) bool { return v != v }

func shapeSize(shape []int) int {
	n := 1
	for _, s := range shape {
		if s < 0 {
			panic(fmt.Sprintf("array: negative dimension in shape %v", shape))
		}
		n *= s
	}
	return n
}

func cloneShape(shape []int) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}
