package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry is returned when a geometry cannot be constructed
	// for the requested variant and module grid.
	ErrInvalidGeometry = errors.New("invalid detector geometry")

	// ErrShapeMismatch is returned when an input or output array does not
	// agree with the geometry. Errors wrapping it are *ShapeError values.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// ShapeError reports the first shape disagreement found while validating an
// assemble, dismantle or mask call. No array has been modified when it is
// returned.
type ShapeError struct {
	Op       string // operation, e.g. "assemble"
	Field    string // what disagreed: "rank", "pulses", "modules", "module shape", "image shape", "storage"
	Expected []int
	Actual   []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s mismatch: expected %v, got %v", e.Op, e.Field, e.Expected, e.Actual)
}

// Unwrap lets errors.Is(err, ErrShapeMismatch) match.
func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

func shapeErr(op, field string, expected, actual []int) *ShapeError {
	return &ShapeError{Op: op, Field: field, Expected: expected, Actual: actual}
}
