package array

// Mask is a binary 2D map, used for edge maps and user-drawn region masks.
type Mask struct {
	Rows int
	Cols int
	Data []bool
}

// NewMask returns an all-false mask.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At reports whether (r, c) is set.
func (m *Mask) At(r, c int) bool { return m.Data[r*m.Cols+c] }

// Set stores v at (r, c).
func (m *Mask) Set(r, c int, v bool) { m.Data[r*m.Cols+c] = v }

// Count returns the number of set cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{Rows: m.Rows, Cols: m.Cols, Data: make([]bool, len(m.Data))}
	copy(out.Data, m.Data)
	return out
}
