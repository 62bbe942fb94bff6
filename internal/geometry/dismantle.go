package geometry

import (
	"time"

	"github.com/banshee-data/foam/internal/array"
)

// DismantleAllModules scatters the assembled canvas src back into the dense
// module stack dst. It is the inverse of PositionAllModules: src (H, W)
// fills dst (modules, h, w), src (pulses, H, W) fills dst
// (pulses, modules, h, w). On error dst is unchanged.
func DismantleAllModules[T array.Float](g *Geometry, src, dst *array.Dense[T]) error {
	const op = "dismantle"
	s, err := denseStack(op, dst)
	if err != nil {
		return err
	}
	return dismantle(g, op, src, s)
}

// DismantleModules is DismantleAllModules into a list of per-module arrays.
func DismantleModules[T array.Float](g *Geometry, src *array.Dense[T], dst []*array.Dense[T]) error {
	const op = "dismantle"
	s, err := listStack(op, dst)
	if err != nil {
		return err
	}
	return dismantle(g, op, src, s)
}

func dismantle[T array.Float](g *Geometry, op string, src *array.Dense[T], s *stack[T]) error {
	c, err := asCanvas(op, src)
	if err != nil {
		return err
	}
	if err := validate(g, op, s, c); err != nil {
		return err
	}

	start := time.Now()
	nm := s.modules
	mh, mw := g.variant.ModuleShape[0], g.variant.ModuleShape[1]

	g.workers().Run(s.pulses*nm, func(u int) {
		p, m := u/nm, u%nm
		from := c.frame(p)
		to := s.block(p, m)
		off := g.offsets[m]
		for r := 0; r < mh; r++ {
			base := (off[0]+r)*c.cols + off[1]
			copy(to[r*mw:(r+1)*mw], from[base:base+mw])
		}
	})

	tracef("%s: extracted %d modules x %d pulses in %v", op, nm, s.pulses, time.Since(start))
	return nil
}
