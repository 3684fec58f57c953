package bloom

import (
	"fmt"

	"github.com/zeebo/blake3"
)

const bloomDomainV1 = 0xB0

func checkRegion(region []byte, capacityBits uint64) error {
	if uint64(len(region)) != BitsetBytesV1(capacityBits) {
		return fmt.Errorf("%w: want=%d, got=%d",
			ErrBadRegionSize, BitsetBytesV1(capacityBits), len(region))
	}
	return nil
}

// InsertV1 sets the iterations bits selected for elem.
func InsertV1(region []byte, capacityBits, iterations uint64, elem []byte) error {
	if err := CheckParams(capacityBits, iterations); err != nil {
		return err
	}
	if err := checkRegion(region, capacityBits); err != nil {
		return err
	}
	if len(elem) != ValueBytes {
		return ErrBadElemSize
	}
	h1, h2 := hashPairV1(elem)
	setBitsLSB0(region, capacityBits, iterations, h1, h2)
	return nil
}

// MaybeContainsV1 checks membership for elem.
//
// Returns (false,nil) if the filter says "definitely not present".
// Returns (true,nil) if the filter says "maybe present".
func MaybeContainsV1(region []byte, capacityBits, iterations uint64, elem []byte) (bool, error) {
	if err := CheckParams(capacityBits, iterations); err != nil {
		return false, err
	}
	if err := checkRegion(region, capacityBits); err != nil {
		return false, err
	}
	if len(elem) != ValueBytes {
		return false, ErrBadElemSize
	}
	h1, h2 := hashPairV1(elem)
	return testBitsLSB0(region, capacityBits, iterations, h1, h2), nil
}

// Filter binds a region to its parameters.
type Filter struct {
	Region       []byte
	CapacityBits uint64
	Iterations   uint64
}

func (f Filter) Insert(elem []byte) error {
	return InsertV1(f.Region, f.CapacityBits, f.Iterations, elem)
}

func (f Filter) MaybeContains(elem []byte) (bool, error) {
	return MaybeContainsV1(f.Region, f.CapacityBits, f.Iterations, elem)
}

// Clear zeroes the bitset.
func (f Filter) Clear() { clear(f.Region) }

// IsZero reports whether no bit is set.
func (f Filter) IsZero() bool {
	for _, b := range f.Region {
		if b != 0 {
			return false
		}
	}
	return true
}

func hashPairV1(elem32 []byte) (h1 uint64, h2 uint64) {
	// BLAKE3( 0xB0 || elem32 )
	var buf [1 + ValueBytes]byte
	buf[0] = bloomDomainV1
	copy(buf[1:], elem32)
	sum := blake3.Sum256(buf[:])
	h1 = readU64BE(sum[0:8])
	h2 = readU64BE(sum[8:16])
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

func setBitsLSB0(bitset []byte, mBits uint64, k uint64, h1, h2 uint64) {
	for i := uint64(0); i < k; i++ {
		j := (h1 + i*h2) % mBits
		bitset[j>>3] |= 1 << uint8(j&7)
	}
}

func testBitsLSB0(bitset []byte, mBits uint64, k uint64, h1, h2 uint64) bool {
	for i := uint64(0); i < k; i++ {
		j := (h1 + i*h2) % mBits
		if (bitset[j>>3] & (1 << uint8(j&7))) == 0 {
			return false
		}
	}
	return true
}
