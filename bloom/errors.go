package bloom

import "errors"

const (
	// ValueBytes is the fixed element width.
	ValueBytes = 32
)

var (
	ErrBadElemSize   = errors.New("bloom: element must be 32 bytes")
	ErrBadRegionSize = errors.New("bloom: region does not match capacity")
	ErrBadCapacity   = errors.New("bloom: capacity must be a non zero multiple of 8")
	ErrBadIterations = errors.New("bloom: iterations must be non zero")
)
