package zerocopy

import (
	"fmt"
	"iter"
)

// BoundedVec is a linear, fixed capacity vector of fixed size elements.
type BoundedVec struct {
	meta     []byte
	data     []byte
	elemSize int
}

// InitBoundedVec lays out an empty vector at offset and advances it.
func InitBoundedVec(buf []byte, offset *int, capacity, elemSize int) (*BoundedVec, error) {
	size, err := dataBytes(BoundedVecHeaderBytes, capacity, elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	clear(region)
	writeU64BE(region[WordBytes:], uint64(capacity))
	return &BoundedVec{
		meta:     region[:BoundedVecHeaderBytes],
		data:     region[BoundedVecHeaderBytes:],
		elemSize: elemSize,
	}, nil
}

// BoundedVecFromBytes reopens a vector previously laid out by InitBoundedVec.
func BoundedVecFromBytes(buf []byte, offset *int, elemSize int) (*BoundedVec, error) {
	hdr, err := peekHeader(buf, *offset, BoundedVecHeaderBytes)
	if err != nil {
		return nil, err
	}
	length, capacity := readU64BE(hdr), readU64BE(hdr[WordBytes:])
	if length > capacity || capacity > uint64(len(buf)) {
		return nil, fmt.Errorf(
			"%w: bounded vec len=%d, cap=%d", ErrSizeMismatch, length, capacity)
	}
	size, err := dataBytes(BoundedVecHeaderBytes, int(capacity), elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	return &BoundedVec{
		meta:     region[:BoundedVecHeaderBytes],
		data:     region[BoundedVecHeaderBytes:],
		elemSize: elemSize,
	}, nil
}

func (v *BoundedVec) Len() int      { return int(readU64BE(v.meta)) }
func (v *BoundedVec) Capacity() int { return int(readU64BE(v.meta[WordBytes:])) }
func (v *BoundedVec) ElemSize() int { return v.elemSize }
func (v *BoundedVec) IsEmpty() bool { return v.Len() == 0 }
func (v *BoundedVec) IsFull() bool  { return v.Len() == v.Capacity() }

func (v *BoundedVec) slot(i int) []byte {
	off := i * v.elemSize
	return v.data[off : off+v.elemSize : off+v.elemSize]
}

// Push appends elem, failing with ErrFull once Capacity elements are stored.
func (v *BoundedVec) Push(elem []byte) error {
	if err := checkElem(elem, v.elemSize); err != nil {
		return err
	}
	n := v.Len()
	if n >= v.Capacity() {
		return fmt.Errorf("%w: capacity=%d", ErrFull, v.Capacity())
	}
	copy(v.slot(n), elem)
	writeU64BE(v.meta, uint64(n+1))
	return nil
}

// Get returns the element at i. The slice aliases the backing buffer.
func (v *BoundedVec) Get(i int) ([]byte, error) {
	if i < 0 || i >= v.Len() {
		return nil, fmt.Errorf("%w: index=%d, len=%d", ErrIndexOutOfBounds, i, v.Len())
	}
	return v.slot(i), nil
}

// Set overwrites an existing element.
func (v *BoundedVec) Set(i int, elem []byte) error {
	if err := checkElem(elem, v.elemSize); err != nil {
		return err
	}
	if i < 0 || i >= v.Len() {
		return fmt.Errorf("%w: index=%d, len=%d", ErrIndexOutOfBounds, i, v.Len())
	}
	copy(v.slot(i), elem)
	return nil
}

// Last returns the most recently pushed element.
func (v *BoundedVec) Last() ([]byte, bool) {
	n := v.Len()
	if n == 0 {
		return nil, false
	}
	return v.slot(n - 1), true
}

// Clear zeroes the stored elements and resets the length. Capacity is kept.
func (v *BoundedVec) Clear() {
	clear(v.data)
	writeU64BE(v.meta, 0)
}

// All iterates the stored elements in push order.
func (v *BoundedVec) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		n := v.Len()
		for i := 0; i < n; i++ {
			if !yield(i, v.slot(i)) {
				return
			}
		}
	}
}
