package zerocopy

import "fmt"

// Slice is a fixed length array of fixed size elements. Unlike the vectors it
// has no notion of a current length, every slot always exists.
type Slice struct {
	data     []byte
	elemSize int
}

// InitSlice lays out a zeroed slice of length elements at offset.
func InitSlice(buf []byte, offset *int, length, elemSize int) (*Slice, error) {
	size, err := dataBytes(SliceHeaderBytes, length, elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	clear(region)
	writeU64BE(region, uint64(length))
	return &Slice{data: region[SliceHeaderBytes:], elemSize: elemSize}, nil
}

// SliceFromBytes reopens a slice previously laid out by InitSlice.
func SliceFromBytes(buf []byte, offset *int, elemSize int) (*Slice, error) {
	hdr, err := peekHeader(buf, *offset, SliceHeaderBytes)
	if err != nil {
		return nil, err
	}
	length := readU64BE(hdr)
	if length > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: slice len=%d", ErrSizeMismatch, length)
	}
	size, err := dataBytes(SliceHeaderBytes, int(length), elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	return &Slice{data: region[SliceHeaderBytes:], elemSize: elemSize}, nil
}

func (s *Slice) Len() int      { return len(s.data) / s.elemSize }
func (s *Slice) ElemSize() int { return s.elemSize }

// Bytes returns the whole data region.
func (s *Slice) Bytes() []byte { return s.data }

// Get returns the element at i. The slice aliases the backing buffer.
func (s *Slice) Get(i int) ([]byte, error) {
	if i < 0 || i >= s.Len() {
		return nil, fmt.Errorf("%w: index=%d, len=%d", ErrIndexOutOfBounds, i, s.Len())
	}
	off := i * s.elemSize
	return s.data[off : off+s.elemSize : off+s.elemSize], nil
}

// Clear zeroes the data region.
func (s *Slice) Clear() { clear(s.data) }

// isZero reports whether every byte of the data region is zero.
func (s *Slice) isZero() bool {
	for _, b := range s.data {
		if b != 0 {
			return false
		}
	}
	return true
}
