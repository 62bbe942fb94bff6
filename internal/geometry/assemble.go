package geometry

import (
	"time"

	"github.com/banshee-data/foam/internal/array"
)

// PositionAllModules copies a dense module stack into the assembled canvas
// dst.
//
// src is (modules, h, w) with dst (H, W), or (pulses, modules, h, w) with
// dst (pulses, H, W). When ignoreTileEdge is set, the tile-edge pixels of
// every placed module are overwritten with NaN after the copy. Shapes are
// validated before any write; on error dst is unchanged.
func PositionAllModules[T array.Float](g *Geometry, src, dst *array.Dense[T], ignoreTileEdge bool) error {
	const op = "assemble"
	s, err := denseStack(op, src)
	if err != nil {
		return err
	}
	return position(g, op, s, dst, ignoreTileEdge)
}

// PositionModules is PositionAllModules for a list of per-module arrays,
// each (h, w) or (pulses, h, w), in module order.
func PositionModules[T array.Float](g *Geometry, src []*array.Dense[T], dst *array.Dense[T], ignoreTileEdge bool) error {
	const op = "assemble"
	s, err := listStack(op, src)
	if err != nil {
		return err
	}
	return position(g, op, s, dst, ignoreTileEdge)
}

func position[T array.Float](g *Geometry, op string, s *stack[T], dst *array.Dense[T], ignoreTileEdge bool) error {
	c, err := asCanvas(op, dst)
	if err != nil {
		return err
	}
	if err := validate(g, op, s, c); err != nil {
		return err
	}

	start := time.Now()
	nm := s.modules
	mh, mw := g.variant.ModuleShape[0], g.variant.ModuleShape[1]
	nan := array.NaN[T]()

	g.workers().Run(s.pulses*nm, func(u int) {
		p, m := u/nm, u%nm
		from := s.block(p, m)
		to := c.frame(p)
		off := g.offsets[m]
		for r := 0; r < mh; r++ {
			base := (off[0]+r)*c.cols + off[1]
			copy(to[base:base+mw], from[r*mw:(r+1)*mw])
		}
		if ignoreTileEdge {
			maskBlock(to, c.cols, off[0], off[1], mh, mw, g.edgeRows, g.edgeCols, nan)
		}
	})

	tracef("%s: placed %d modules x %d pulses (ignoreTileEdge=%t) in %v",
		op, nm, s.pulses, ignoreTileEdge, time.Since(start))
	return nil
}
