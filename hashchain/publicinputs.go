package hashchain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// BatchProofInputs are the public inputs a batch update proof commits to.
// They are built fresh for every update call and consumed by
// PublicInputHash.
type BatchProofInputs struct {
	OldRoot         [32]byte
	NewRoot         [32]byte
	StartIndex      uint64
	EndIndex        uint64
	UserHashChain   [32]byte
	InputHashChain  [32]byte
	OutputHashChain [32]byte
}

// IndexWord encodes an index as a 32 byte big endian word.
func IndexWord(i uint64) [32]byte {
	return uint256.NewInt(i).Bytes32()
}

// MetaHash commits to the root transition and the leaf range.
func (p BatchProofInputs) MetaHash(h Hasher) ([32]byte, error) {
	return h.Hash(p.OldRoot, p.NewRoot, IndexWord(p.StartIndex), IndexWord(p.EndIndex))
}

// ChainHash commits to the three batch hash chains.
func (p BatchProofInputs) ChainHash(h Hasher) ([32]byte, error) {
	return h.Hash(p.UserHashChain, p.InputHashChain, p.OutputHashChain)
}

// PublicInputHash compresses all public inputs into the single value the
// verifier checks:
//
//	H( H(old, new, start, end), H(user, input, output) )
func (p BatchProofInputs) PublicInputHash(h Hasher) ([32]byte, error) {
	meta, err := p.MetaHash(h)
	if err != nil {
		return [32]byte{}, fmt.Errorf("meta hash: %w", err)
	}
	chains, err := p.ChainHash(h)
	if err != nil {
		return [32]byte{}, fmt.Errorf("chain hash: %w", err)
	}
	return h.Hash(meta, chains)
}
