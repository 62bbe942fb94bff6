package imageproc

import (
	"errors"
)

// ErrInvalidArgument is returned for inputs a kernel cannot process: wrong
// rank, bad kernel size, inverted thresholds and similar.
var ErrInvalidArgument = errors.New("invalid argument")
