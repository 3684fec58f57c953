package bloom

import "math"

// CheckParams validates a capacity (in bits) and iteration count.
func CheckParams(capacityBits uint64, iterations uint64) error {
	if capacityBits == 0 || capacityBits%8 != 0 {
		return ErrBadCapacity
	}
	if iterations == 0 {
		return ErrBadIterations
	}
	return nil
}

// BitsetBytesV1 returns the region size for capacityBits. Capacities are
// always whole bytes.
func BitsetBytesV1(capacityBits uint64) uint64 {
	return capacityBits / 8
}

// FalsePositiveRate estimates the false positive probability after n
// insertions into a filter of mBits probed k times:
//
//	(1 - e^(-k*n/m))^k
func FalsePositiveRate(mBits, k, n uint64) float64 {
	if mBits == 0 {
		return 1
	}
	return math.Pow(1-math.Exp(-float64(k)*float64(n)/float64(mBits)), float64(k))
}
