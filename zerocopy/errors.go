package zerocopy

import "errors"

var (
	ErrBufferTooSmall   = errors.New("zerocopy: buffer too small")
	ErrSizeMismatch     = errors.New("zerocopy: stored metadata does not match layout")
	ErrSizeOverflow     = errors.New("zerocopy: size computation overflow")
	ErrBadElemSize      = errors.New("zerocopy: element size mismatch")
	ErrFull             = errors.New("zerocopy: capacity exceeded")
	ErrIndexOutOfBounds = errors.New("zerocopy: index out of bounds")
)
