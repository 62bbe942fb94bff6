package geometry

import (
	"fmt"
	"strings"
)

// EdgeRule selects which pixels of a module are treated as tile edges.
type EdgeRule int

const (
	// EdgeAsic masks the outer BorderWidth rows and columns of every asic.
	EdgeAsic EdgeRule = iota
	// EdgeModuleRows masks only the outer BorderWidth rows of the module.
	EdgeModuleRows
)

func (r EdgeRule) String() string {
	switch r {
	case EdgeAsic:
		return "asic"
	case EdgeModuleRows:
		return "module-rows"
	default:
		return fmt.Sprintf("EdgeRule(%d)", int(r))
	}
}

// Variant describes one detector family. Values are immutable and compared
// by value.
type Variant struct {
	Name        string
	ModuleShape [2]int // pixels (height, width)
	AsicGrid    [2]int // asics per module (rows, columns)
	BorderWidth int    // edge width in pixels
	MaxColumns  int    // largest supported module-grid column count; 0 means unbounded
	EdgeRule    EdgeRule
}

var (
	// JungFrau modules are 512x1024 pixels read out by 2x4 asics of 256x256.
	JungFrau = Variant{
		Name:        "JungFrau",
		ModuleShape: [2]int{512, 1024},
		AsicGrid:    [2]int{2, 4},
		BorderWidth: 1,
		MaxColumns:  2,
		EdgeRule:    EdgeAsic,
	}

	// EPix100 modules are 708x768 pixels. The top and bottom rows are
	// calibration rows, and only those are masked as tile edges.
	EPix100 = Variant{
		Name:        "ePix100",
		ModuleShape: [2]int{708, 768},
		AsicGrid:    [2]int{2, 2},
		BorderWidth: 1,
		MaxColumns:  2,
		EdgeRule:    EdgeModuleRows,
	}
)

// Variants lists the supported detector families.
var Variants = []Variant{JungFrau, EPix100}

// VariantByName looks up a variant by name, case-insensitively.
func VariantByName(name string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: unknown detector %q", ErrInvalidGeometry, name)
}

// AsicShape returns the pixel shape (height, width) of one asic.
func (v Variant) AsicShape() [2]int {
	return [2]int{v.ModuleShape[0] / v.AsicGrid[0], v.ModuleShape[1] / v.AsicGrid[1]}
}

func (v Variant) validate() error {
	if v.ModuleShape[0] < 1 || v.ModuleShape[1] < 1 {
		return fmt.Errorf("%w: %s module shape %v", ErrInvalidGeometry, v.Name, v.ModuleShape)
	}
	if v.AsicGrid[0] < 1 || v.AsicGrid[1] < 1 ||
		v.ModuleShape[0]%v.AsicGrid[0] != 0 || v.ModuleShape[1]%v.AsicGrid[1] != 0 {
		return fmt.Errorf("%w: %s asic grid %v does not tile module shape %v",
			ErrInvalidGeometry, v.Name, v.AsicGrid, v.ModuleShape)
	}
	if v.BorderWidth < 0 {
		return fmt.Errorf("%w: %s border width %d", ErrInvalidGeometry, v.Name, v.BorderWidth)
	}
	return nil
}

// edgeTables returns the module-local row and column indices that form tile
// edges under the variant's rule. Both slices are sorted and free of
// duplicates.
func (v Variant) edgeTables() (rows, cols []int) {
	ah, aw := v.AsicShape()[0], v.AsicShape()[1]
	switch v.EdgeRule {
	case EdgeModuleRows:
		rows = borderIndices(v.ModuleShape[0], v.ModuleShape[0], v.BorderWidth)
	default:
		rows = borderIndices(v.ModuleShape[0], ah, v.BorderWidth)
		cols = borderIndices(v.ModuleShape[1], aw, v.BorderWidth)
	}
	return rows, cols
}

// borderIndices lists the first and last b indices of every tile of length
// tile along an axis of length n.
func borderIndices(n, tile, b int) []int {
	if b <= 0 {
		return nil
	}
	seen := make([]bool, n)
	for start := 0; start < n; start += tile {
		end := start + tile
		for k := 0; k < b && k < tile; k++ {
			seen[start+k] = true
			seen[end-1-k] = true
		}
	}
	out := make([]int, 0, 2*b*(n/tile))
	for i, s := range seen {
		if s {
			out = append(out, i)
		}
	}
	return out
}
