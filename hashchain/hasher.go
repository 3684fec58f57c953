package hashchain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/iden3/go-iden3-crypto/utils"
)

// Kind identifies a hasher in persisted account metadata.
type Kind uint64

const (
	KindPoseidon Kind = 0
	KindKeccak   Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindPoseidon:
		return "poseidon"
	case KindKeccak:
		return "keccak"
	default:
		return fmt.Sprintf("hasher(%d)", uint64(k))
	}
}

// ParseKind maps a configuration name onto a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "poseidon", "":
		return KindPoseidon, nil
	case "keccak":
		return KindKeccak, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
}

type Hasher interface {
	Kind() Kind
	Hash(inputs ...[32]byte) ([32]byte, error)
}

// HasherFor returns the hasher for a persisted kind.
func HasherFor(kind Kind) (Hasher, error) {
	switch kind {
	case KindPoseidon:
		return Poseidon{}, nil
	case KindKeccak:
		return Keccak{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownHasher, uint64(kind))
}

// Poseidon hashes over the BN254 scalar field. Inputs at or above the field
// modulus are rejected rather than reduced.
type Poseidon struct{}

func (Poseidon) Kind() Kind { return KindPoseidon }

func (Poseidon) Hash(inputs ...[32]byte) ([32]byte, error) {
	if len(inputs) == 0 {
		return [32]byte{}, ErrNoInputs
	}
	ints := make([]*big.Int, len(inputs))
	for i := range inputs {
		ints[i] = new(big.Int).SetBytes(inputs[i][:])
		if !utils.CheckBigIntInField(ints[i]) {
			return [32]byte{}, fmt.Errorf("%w: input %d is %x", ErrValueNotInField, i, inputs[i])
		}
	}
	out, err := poseidon.Hash(ints)
	if err != nil {
		return [32]byte{}, err
	}
	var b [32]byte
	out.FillBytes(b[:])
	return b, nil
}

// Keccak hashes the concatenated inputs with Keccak-256 and clears the first
// byte so that every output is also a valid field element.
type Keccak struct{}

func (Keccak) Kind() Kind { return KindKeccak }

func (Keccak) Hash(inputs ...[32]byte) ([32]byte, error) {
	if len(inputs) == 0 {
		return [32]byte{}, ErrNoInputs
	}
	parts := make([][]byte, len(inputs))
	for i := range inputs {
		parts[i] = inputs[i][:]
	}
	var b [32]byte
	copy(b[:], crypto.Keccak256(parts...))
	b[0] = 0
	return b, nil
}

// InField reports whether v is a canonical field element, which is the
// precondition for values folded with the Poseidon hasher.
func InField(v [32]byte) bool {
	return utils.CheckBigIntInField(new(big.Int).SetBytes(v[:]))
}
