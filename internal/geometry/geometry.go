package geometry

import (
	"fmt"

	"github.com/banshee-data/foam/internal/workpool"
)

// Center is a point in assembled-canvas pixel coordinates.
type Center struct {
	X float64 // along the column axis
	Y float64 // along the row axis
}

// Geometry is a detector variant laid out on a rows x cols module grid.
//
// Everything derived from the variant (placement offsets and edge tables) is
// resolved once in New; the hot copy loops only read plain slices.
type Geometry struct {
	variant Variant
	rows    int
	cols    int

	offsets  [][2]int // module index -> (row, col) of its top-left pixel
	edgeRows []int    // module-local rows masked as tile edges
	edgeCols []int    // module-local columns masked as tile edges

	pool *workpool.Pool
}

// Option configures a Geometry.
type Option func(*Geometry)

// WithPool runs placement work on p instead of the process-wide pool.
func WithPool(p *workpool.Pool) Option {
	return func(g *Geometry) { g.pool = p }
}

// New builds the geometry of variant v on a rows x cols module grid.
// Modules are numbered row-major: module 0 is top-left, then increasing
// column, then row.
func New(v Variant, rows, cols int, opts ...Option) (*Geometry, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: %s grid must have at least one row and one column, got %dx%d",
			ErrInvalidGeometry, v.Name, rows, cols)
	}
	if v.MaxColumns > 0 && cols > v.MaxColumns {
		return nil, fmt.Errorf("%w: %s supports at most %d module columns, got %d",
			ErrInvalidGeometry, v.Name, v.MaxColumns, cols)
	}

	g := &Geometry{
		variant: v,
		rows:    rows,
		cols:    cols,
		offsets: make([][2]int, rows*cols),
	}
	mh, mw := v.ModuleShape[0], v.ModuleShape[1]
	for i := range g.offsets {
		g.offsets[i] = [2]int{(i / cols) * mh, (i % cols) * mw}
	}
	g.edgeRows, g.edgeCols = v.edgeTables()

	for _, opt := range opts {
		opt(g)
	}

	diagf("built %s geometry: %dx%d modules, assembled shape %v, %d edge rows, %d edge cols per module",
		v.Name, rows, cols, g.AssembledShape(), len(g.edgeRows), len(g.edgeCols))
	return g, nil
}

// NewJungFrau is New(JungFrau, rows, cols).
func NewJungFrau(rows, cols int, opts ...Option) (*Geometry, error) {
	return New(JungFrau, rows, cols, opts...)
}

// NewEPix100 is New(EPix100, rows, cols).
func NewEPix100(rows, cols int, opts ...Option) (*Geometry, error) {
	return New(EPix100, rows, cols, opts...)
}

// Variant returns the detector variant.
func (g *Geometry) Variant() Variant { return g.variant }

// GridShape returns the module grid (rows, cols).
func (g *Geometry) GridShape() [2]int { return [2]int{g.rows, g.cols} }

// NModules returns rows * cols.
func (g *Geometry) NModules() int { return g.rows * g.cols }

// ModuleShape returns the pixel shape (height, width) of one module.
func (g *Geometry) ModuleShape() [2]int { return g.variant.ModuleShape }

// AsicShape returns the pixel shape (height, width) of one asic.
func (g *Geometry) AsicShape() [2]int { return g.variant.AsicShape() }

// AssembledShape returns (rows*moduleHeight, cols*moduleWidth).
func (g *Geometry) AssembledShape() [2]int {
	return [2]int{g.rows * g.variant.ModuleShape[0], g.cols * g.variant.ModuleShape[1]}
}

// AssembledCenter returns the geometric centre of the assembled canvas.
func (g *Geometry) AssembledCenter() Center {
	s := g.AssembledShape()
	return Center{X: float64(s[1]) / 2, Y: float64(s[0]) / 2}
}

// ModuleOffset returns the canvas (row, col) of the top-left pixel of module i.
func (g *Geometry) ModuleOffset(i int) [2]int { return g.offsets[i] }

// EdgeRows and EdgeCols return copies of the module-local tile-edge tables.
func (g *Geometry) EdgeRows() []int { return append([]int(nil), g.edgeRows...) }
func (g *Geometry) EdgeCols() []int { return append([]int(nil), g.edgeCols...) }

func (g *Geometry) workers() *workpool.Pool {
	if g.pool != nil {
		return g.pool
	}
	return workpool.Default()
}
