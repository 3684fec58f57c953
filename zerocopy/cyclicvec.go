package zerocopy

import (
	"fmt"
	"iter"
)

// CyclicVec is a ring buffer of fixed size elements. Push never fails; once
// the vector is full the logically oldest element is overwritten.
type CyclicVec struct {
	meta     []byte
	data     []byte
	elemSize int
}

const (
	cyclicLenOff  = 0
	cyclicCapOff  = WordBytes
	cyclicLastOff = 2 * WordBytes
)

// InitCyclicVec lays out an empty ring at offset and advances it. A ring
// needs a capacity of at least one.
func InitCyclicVec(buf []byte, offset *int, capacity, elemSize int) (*CyclicVec, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: cyclic vec capacity must be non zero", ErrSizeMismatch)
	}
	size, err := dataBytes(CyclicVecHeaderBytes, capacity, elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	clear(region)
	writeU64BE(region[cyclicCapOff:], uint64(capacity))
	return &CyclicVec{
		meta:     region[:CyclicVecHeaderBytes],
		data:     region[CyclicVecHeaderBytes:],
		elemSize: elemSize,
	}, nil
}

// CyclicVecFromBytes reopens a ring previously laid out by InitCyclicVec.
func CyclicVecFromBytes(buf []byte, offset *int, elemSize int) (*CyclicVec, error) {
	hdr, err := peekHeader(buf, *offset, CyclicVecHeaderBytes)
	if err != nil {
		return nil, err
	}
	length := readU64BE(hdr[cyclicLenOff:])
	capacity := readU64BE(hdr[cyclicCapOff:])
	last := readU64BE(hdr[cyclicLastOff:])
	if capacity == 0 || length > capacity || last >= capacity || capacity > uint64(len(buf)) {
		return nil, fmt.Errorf(
			"%w: cyclic vec len=%d, cap=%d, last=%d", ErrSizeMismatch, length, capacity, last)
	}
	size, err := dataBytes(CyclicVecHeaderBytes, int(capacity), elemSize)
	if err != nil {
		return nil, err
	}
	region, err := Claim(buf, offset, size)
	if err != nil {
		return nil, err
	}
	return &CyclicVec{
		meta:     region[:CyclicVecHeaderBytes],
		data:     region[CyclicVecHeaderBytes:],
		elemSize: elemSize,
	}, nil
}

func (v *CyclicVec) Len() int      { return int(readU64BE(v.meta[cyclicLenOff:])) }
func (v *CyclicVec) Capacity() int { return int(readU64BE(v.meta[cyclicCapOff:])) }
func (v *CyclicVec) ElemSize() int { return v.elemSize }
func (v *CyclicVec) IsEmpty() bool { return v.Len() == 0 }

// LastIndex is the slot holding the newest element. It is 0 for an empty
// ring.
func (v *CyclicVec) LastIndex() int { return int(readU64BE(v.meta[cyclicLastOff:])) }

// FirstIndex is the slot holding the oldest element.
func (v *CyclicVec) FirstIndex() int {
	n, c := v.Len(), v.Capacity()
	if n < c {
		return 0
	}
	return (v.LastIndex() + 1) % c
}

func (v *CyclicVec) slot(i int) []byte {
	off := i * v.elemSize
	return v.data[off : off+v.elemSize : off+v.elemSize]
}

// Push stores elem as the newest element, evicting the oldest when full.
func (v *CyclicVec) Push(elem []byte) error {
	if err := checkElem(elem, v.elemSize); err != nil {
		return err
	}
	n, c := v.Len(), v.Capacity()
	var idx int
	if n < c {
		idx = n
		writeU64BE(v.meta[cyclicLenOff:], uint64(n+1))
	} else {
		idx = (v.LastIndex() + 1) % c
	}
	copy(v.slot(idx), elem)
	writeU64BE(v.meta[cyclicLastOff:], uint64(idx))
	return nil
}

// Get returns the element in physical slot i.
func (v *CyclicVec) Get(i int) ([]byte, error) {
	if i < 0 || i >= v.Len() {
		return nil, fmt.Errorf("%w: index=%d, len=%d", ErrIndexOutOfBounds, i, v.Len())
	}
	return v.slot(i), nil
}

// Set overwrites the element in physical slot i.
func (v *CyclicVec) Set(i int, elem []byte) error {
	if err := checkElem(elem, v.elemSize); err != nil {
		return err
	}
	if i < 0 || i >= v.Len() {
		return fmt.Errorf("%w: index=%d, len=%d", ErrIndexOutOfBounds, i, v.Len())
	}
	copy(v.slot(i), elem)
	return nil
}

func (v *CyclicVec) First() ([]byte, bool) {
	if v.IsEmpty() {
		return nil, false
	}
	return v.slot(v.FirstIndex()), true
}

func (v *CyclicVec) Last() ([]byte, bool) {
	if v.IsEmpty() {
		return nil, false
	}
	return v.slot(v.LastIndex()), true
}

// Clear zeroes every slot and resets length and last index.
func (v *CyclicVec) Clear() {
	clear(v.data)
	writeU64BE(v.meta[cyclicLenOff:], 0)
	writeU64BE(v.meta[cyclicLastOff:], 0)
}

// All iterates from oldest to newest. The int is the physical slot.
func (v *CyclicVec) All() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		n, c := v.Len(), v.Capacity()
		first := v.FirstIndex()
		for k := 0; k < n; k++ {
			i := (first + k) % c
			if !yield(i, v.slot(i)) {
				return
			}
		}
	}
}
