package hashchain

import "fmt"

// Fold absorbs value into a chain that has already absorbed n values. The
// first value becomes the chain itself, every later value is hashed with the
// running chain, so the result depends on insertion order.
func Fold(h Hasher, n uint64, chain [32]byte, value [32]byte) ([32]byte, error) {
	if n == 0 {
		return value, nil
	}
	return h.Hash(chain, value)
}

// Chain folds values in order starting from the empty chain.
func Chain(h Hasher, values ...[32]byte) ([32]byte, error) {
	var chain [32]byte
	var err error
	for i, v := range values {
		if chain, err = Fold(h, uint64(i), chain, v); err != nil {
			return [32]byte{}, err
		}
	}
	return chain, nil
}

// CheckValue fails with ErrValueNotInField when v can not be absorbed by h.
// Fold does not hash the first value of a chain, so callers check values
// up front to reject them consistently.
func CheckValue(h Hasher, v [32]byte) error {
	if h.Kind() == KindPoseidon && !InField(v) {
		return fmt.Errorf("%w: %x", ErrValueNotInField, v)
	}
	return nil
}
