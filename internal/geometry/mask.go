package geometry

import (
	"github.com/banshee-data/foam/internal/array"
)

// MaskModule sets the tile-edge pixels of a single module to NaN in place.
//
// src is one module (h, w) or a per-pulse stack of one module (pulses, h, w);
// its spatial shape must equal v.ModuleShape. The border pattern is the one
// PositionAllModules applies with ignoreTileEdge.
func MaskModule[T array.Float](v Variant, src *array.Dense[T]) error {
	const op = "mask"
	if src == nil || (src.Rank() != 2 && src.Rank() != 3) {
		var got []int
		if src != nil {
			got = []int{src.Rank()}
		}
		return shapeErr(op, "rank", []int{2}, got)
	}
	if err := checkStorage(op, src); err != nil {
		return err
	}
	if err := v.validate(); err != nil {
		return err
	}
	mh, mw := v.ModuleShape[0], v.ModuleShape[1]
	if src.Rows() != mh || src.Cols() != mw {
		return shapeErr(op, "module shape", []int{mh, mw}, []int{src.Rows(), src.Cols()})
	}

	rows, cols := v.edgeTables()
	nan := array.NaN[T]()
	n := mh * mw
	for k := 0; k < src.Size()/n; k++ {
		maskBlock(src.Data[k*n:(k+1)*n], mw, 0, 0, mh, mw, rows, cols, nan)
	}
	return nil
}

// MaskModules masks every module of a dense stack (modules, h, w) or
// (pulses, modules, h, w) in place, fanning modules out over the geometry's
// worker pool.
func MaskModules[T array.Float](g *Geometry, src *array.Dense[T]) error {
	const op = "mask"
	s, err := denseStack(op, src)
	if err != nil {
		return err
	}
	if s.modules != g.NModules() {
		return shapeErr(op, "modules", []int{g.NModules()}, []int{s.modules})
	}
	ms := g.variant.ModuleShape
	if len(s.shapes) > 0 && s.shapes[0] != ms {
		return shapeErr(op, "module shape", ms[:], []int{s.shapes[0][0], s.shapes[0][1]})
	}

	nan := array.NaN[T]()
	nm := s.modules
	g.workers().Run(s.pulses*nm, func(u int) {
		maskBlock(s.block(u/nm, u%nm), ms[1], 0, 0, ms[0], ms[1], g.edgeRows, g.edgeCols, nan)
	})
	return nil
}

// maskBlock writes nan over the edge rows and columns of the h x w block
// whose top-left pixel is (r0, c0) in a row-major buffer of row length
// stride.
func maskBlock[T array.Float](data []T, stride, r0, c0, h, w int, rows, cols []int, nan T) {
	for _, r := range rows {
		base := (r0+r)*stride + c0
		line := data[base : base+w]
		for i := range line {
			line[i] = nan
		}
	}
	if len(cols) == 0 {
		return
	}
	for r := 0; r < h; r++ {
		base := (r0+r)*stride + c0
		for _, c := range cols {
			data[base+c] = nan
		}
	}
}
