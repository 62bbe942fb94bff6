// Package geometry assembles full detector images from per-module readouts
// of segmented 2D detectors, and scatters assembled images back into
// modules.
//
// Responsibilities: detector variant descriptors, module placement tables,
// shape validation, parallel assembly/dismantle and tile-edge masking.
// Key types: Variant, Geometry, ShapeError.
//
// The package holds no per-train state. A Geometry is built once per
// detector session and reused for every train; all arrays passed to it are
// owned by the caller. Every operation validates shapes before touching
// memory, so a rejected call leaves its destination unchanged.
package geometry
