package zerocopy

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// WordBytes is the width of every header field.
	WordBytes = 8

	BoundedVecHeaderBytes = 2 * WordBytes
	CyclicVecHeaderBytes  = 3 * WordBytes
	SliceHeaderBytes      = WordBytes
)

func readU64BE(b []byte) uint64     { return binary.BigEndian.Uint64(b) }
func writeU64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// dataBytes returns n*elemSize, or an error if either is negative or the
// product (plus header) does not fit an int.
func dataBytes(header, n, elemSize int) (int, error) {
	if n < 0 || elemSize <= 0 {
		return 0, ErrBadElemSize
	}
	if n > 0 && elemSize > (math.MaxInt-header)/n {
		return 0, ErrSizeOverflow
	}
	return header + n*elemSize, nil
}

// BoundedVecSize returns the bytes claimed by a BoundedVec.
func BoundedVecSize(capacity, elemSize int) int {
	n, err := dataBytes(BoundedVecHeaderBytes, capacity, elemSize)
	if err != nil {
		return -1
	}
	return n
}

// CyclicVecSize returns the bytes claimed by a CyclicVec.
func CyclicVecSize(capacity, elemSize int) int {
	n, err := dataBytes(CyclicVecHeaderBytes, capacity, elemSize)
	if err != nil {
		return -1
	}
	return n
}

// SliceSize returns the bytes claimed by a Slice.
func SliceSize(length, elemSize int) int {
	n, err := dataBytes(SliceHeaderBytes, length, elemSize)
	if err != nil {
		return -1
	}
	return n
}

// Claim returns buf[*offset:*offset+n] and advances offset by n. The returned
// slice has its capacity clipped so appends can never spill into the next
// region.
func Claim(buf []byte, offset *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrSizeOverflow
	}
	start := *offset
	if start < 0 || start > len(buf) || n > len(buf)-start {
		return nil, fmt.Errorf(
			"%w: want=%d, got=%d", ErrBufferTooSmall, n, len(buf)-start)
	}
	*offset = start + n
	return buf[start : start+n : start+n], nil
}

// peekHeader returns the next header bytes without advancing offset.
func peekHeader(buf []byte, offset int, n int) ([]byte, error) {
	if offset < 0 || offset > len(buf) || n > len(buf)-offset {
		return nil, fmt.Errorf(
			"%w: header want=%d, got=%d", ErrBufferTooSmall, n, len(buf)-offset)
	}
	return buf[offset : offset+n], nil
}

func checkElem(elem []byte, elemSize int) error {
	if len(elem) != elemSize {
		return fmt.Errorf("%w: want=%d, got=%d", ErrBadElemSize, elemSize, len(elem))
	}
	return nil
}
