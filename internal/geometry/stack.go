package geometry

import (
	"github.com/banshee-data/foam/internal/array"
)

// stack is the single iteration contract the placement code runs on. Both
// module-stack forms (one dense array, or a list of per-module arrays) are
// normalised into it before validation.
type stack[T array.Float] struct {
	pulsed  bool
	pulses  int // 1 when !pulsed
	modules int

	// shapes[m] is the spatial shape of module m. For a dense stack every
	// entry is the same.
	shapes [][2]int

	// block returns the contiguous pixels of module m in pulse p.
	block func(p, m int) []T
}

func (s *stack[T]) pulseDims() []int {
	if !s.pulsed {
		return []int{}
	}
	return []int{s.pulses}
}

// denseStack adapts a (modules, h, w) or (pulses, modules, h, w) array.
func denseStack[T array.Float](op string, a *array.Dense[T]) (*stack[T], error) {
	if a == nil {
		return nil, shapeErr(op, "rank", []int{3}, nil)
	}
	if a.Rank() == 3 || a.Rank() == 4 {
		if err := checkStorage(op, a); err != nil {
			return nil, err
		}
	}
	switch a.Rank() {
	case 3:
		nm, h, w := a.Shape[0], a.Shape[1], a.Shape[2]
		return &stack[T]{
			pulses:  1,
			modules: nm,
			shapes:  repeatShape(nm, h, w),
			block: func(_, m int) []T {
				n := h * w
				return a.Data[m*n : (m+1)*n]
			},
		}, nil
	case 4:
		np, nm, h, w := a.Shape[0], a.Shape[1], a.Shape[2], a.Shape[3]
		return &stack[T]{
			pulsed:  true,
			pulses:  np,
			modules: nm,
			shapes:  repeatShape(nm, h, w),
			block: func(p, m int) []T {
				n := h * w
				k := p*nm + m
				return a.Data[k*n : (k+1)*n]
			},
		}, nil
	default:
		return nil, shapeErr(op, "rank", []int{3}, []int{a.Rank()})
	}
}

// listStack adapts an ordered list of (h, w) or (pulses, h, w) module arrays.
// Every entry must have the same rank and pulse count.
func listStack[T array.Float](op string, mods []*array.Dense[T]) (*stack[T], error) {
	if len(mods) == 0 {
		return &stack[T]{pulses: 1}, nil
	}
	for _, m := range mods {
		if m == nil {
			return nil, shapeErr(op, "rank", []int{2}, nil)
		}
	}

	rank := mods[0].Rank()
	if rank != 2 && rank != 3 {
		return nil, shapeErr(op, "rank", []int{2}, []int{rank})
	}
	s := &stack[T]{
		pulsed:  rank == 3,
		pulses:  1,
		modules: len(mods),
		shapes:  make([][2]int, len(mods)),
	}
	if s.pulsed {
		s.pulses = mods[0].Shape[0]
	}
	for i, m := range mods {
		if m.Rank() != rank {
			return nil, shapeErr(op, "rank", []int{rank}, []int{m.Rank()})
		}
		if s.pulsed && m.Shape[0] != s.pulses {
			return nil, shapeErr(op, "pulses", []int{s.pulses}, []int{m.Shape[0]})
		}
		if err := checkStorage(op, m); err != nil {
			return nil, err
		}
		s.shapes[i] = [2]int{m.Rows(), m.Cols()}
	}
	s.block = func(p, m int) []T {
		mod := mods[m]
		if !s.pulsed {
			return mod.Data
		}
		n := mod.Shape[1] * mod.Shape[2]
		return mod.Data[p*n : (p+1)*n]
	}
	return s, nil
}

// checkStorage rejects an array whose backing slice does not hold exactly
// the elements its shape describes, or whose shape has a negative extent.
func checkStorage[T array.Float](op string, a *array.Dense[T]) error {
	n := 1
	for _, d := range a.Shape {
		if d < 0 {
			return shapeErr(op, "shape", nil, append([]int(nil), a.Shape...))
		}
		n *= d
	}
	if len(a.Data) != n {
		return shapeErr(op, "storage", []int{n}, []int{len(a.Data)})
	}
	return nil
}

func repeatShape(n, h, w int) [][2]int {
	out := make([][2]int, n)
	for i := range out {
		out[i] = [2]int{h, w}
	}
	return out
}

// canvas describes an assembled image, optionally with a leading pulse axis.
type canvas[T array.Float] struct {
	pulsed bool
	pulses int
	rows   int
	cols   int
	data   []T
}

func (c *canvas[T]) pulseDims() []int {
	if !c.pulsed {
		return []int{}
	}
	return []int{c.pulses}
}

func (c *canvas[T]) frame(p int) []T {
	n := c.rows * c.cols
	return c.data[p*n : (p+1)*n]
}

func asCanvas[T array.Float](op string, a *array.Dense[T]) (*canvas[T], error) {
	if a == nil {
		return nil, shapeErr(op, "rank", []int{2}, nil)
	}
	if a.Rank() == 2 || a.Rank() == 3 {
		if err := checkStorage(op, a); err != nil {
			return nil, err
		}
	}
	switch a.Rank() {
	case 2:
		return &canvas[T]{pulses: 1, rows: a.Shape[0], cols: a.Shape[1], data: a.Data}, nil
	case 3:
		return &canvas[T]{pulsed: true, pulses: a.Shape[0], rows: a.Shape[1], cols: a.Shape[2], data: a.Data}, nil
	default:
		return nil, shapeErr(op, "rank", []int{2}, []int{a.Rank()})
	}
}

// validate applies the shared precondition checks in a fixed order: pulse
// axis agreement, module count, per-module spatial shape, then canvas shape.
// The first violation is returned.
func validate[T array.Float](g *Geometry, op string, s *stack[T], c *canvas[T]) error {
	if s.pulsed != c.pulsed || s.pulses != c.pulses {
		return shapeErr(op, "pulses", c.pulseDims(), s.pulseDims())
	}
	if s.modules != g.NModules() {
		return shapeErr(op, "modules", []int{g.NModules()}, []int{s.modules})
	}
	ms := g.variant.ModuleShape
	for _, sh := range s.shapes {
		if sh != ms {
			return shapeErr(op, "module shape", ms[:], []int{sh[0], sh[1]})
		}
	}
	as := g.AssembledShape()
	if c.rows != as[0] || c.cols != as[1] {
		return shapeErr(op, "image shape", as[:], []int{c.rows, c.cols})
	}
	return nil
}
