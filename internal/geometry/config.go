package geometry

import (
	"fmt"
)

// Config selects a detector variant and module grid at configuration time.
type Config struct {
	Detector string // variant name, e.g. "JungFrau" or "ePix100"
	Rows     int    // module grid rows
	Cols     int    // module grid columns
}

// Validate checks the configuration without building a geometry.
func (c Config) Validate() error {
	v, err := VariantByName(c.Detector)
	if err != nil {
		return err
	}
	if c.Rows < 1 || c.Cols < 1 {
		return fmt.Errorf("%w: %s grid must be at least 1x1, got %dx%d", ErrInvalidGeometry, v.Name, c.Rows, c.Cols)
	}
	if v.MaxColumns > 0 && c.Cols > v.MaxColumns {
		return fmt.Errorf("%w: %s supports at most %d module columns, got %d", ErrInvalidGeometry, v.Name, v.MaxColumns, c.Cols)
	}
	return nil
}

// Build resolves the variant and constructs the geometry.
func (c Config) Build(opts ...Option) (*Geometry, error) {
	v, err := VariantByName(c.Detector)
	if err != nil {
		opsf("rejecting geometry config: %v", err)
		return nil, err
	}
	g, err := New(v, c.Rows, c.Cols, opts...)
	if err != nil {
		opsf("rejecting geometry config: %v", err)
		return nil, err
	}
	return g, nil
}
