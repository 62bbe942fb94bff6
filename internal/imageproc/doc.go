// Package imageproc holds the NaN-aware numeric kernels that run on assembled
// detector images: smoothing, Canny edge detection, reductions, the
// moving-average accumulator and the image masks.
//
// Masked pixels are NaN. Kernels skip them rather than propagating them:
// a NaN input cell stays NaN in a smoothed output, never spreads into its
// valid neighbours, and is excluded from every statistic. A reduction with
// no valid input yields NaN, not an error.
//
// Kernels are pure functions over array.Dense values and keep no state
// between calls. They are safe for concurrent use on disjoint inputs.
package imageproc
