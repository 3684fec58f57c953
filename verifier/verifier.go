// Package verifier defines the proof gate a batched tree update passes
// through before any state changes.
package verifier

//go:generate mockgen -source verifier.go -destination verifier_mocks.go -package verifier

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCircuit = errors.New("verifier: unknown circuit id")
	ErrInvalidProof   = errors.New("verifier: invalid proof")
	ErrMalformedProof = errors.New("verifier: malformed proof")
	ErrMalformedKey   = errors.New("verifier: malformed verifying key")
	ErrNoVerifyingKey = errors.New("verifier: no verifying key for circuit and batch size")
	ErrDuplicateKey   = errors.New("verifier: verifying key already registered")
)

// Circuit selects the circuit parameters a proof was produced with.
type Circuit uint16

const (
	CircuitBatchAppend        Circuit = 1
	CircuitBatchNullify       Circuit = 2
	CircuitBatchAddressAppend Circuit = 3
)

func (c Circuit) String() string {
	switch c {
	case CircuitBatchAppend:
		return "append"
	case CircuitBatchNullify:
		return "nullify"
	case CircuitBatchAddressAppend:
		return "address-append"
	}
	return fmt.Sprintf("circuit(%d)", uint16(c))
}

// CircuitFromID maps the circuit id carried in instruction data. Unknown ids
// are rejected.
func CircuitFromID(id uint16) (Circuit, error) {
	switch c := Circuit(id); c {
	case CircuitBatchAppend, CircuitBatchNullify, CircuitBatchAddressAppend:
		return c, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownCircuit, id)
}

// ParseCircuit maps a configuration name onto a Circuit.
func ParseCircuit(name string) (Circuit, error) {
	for _, c := range []Circuit{CircuitBatchAppend, CircuitBatchNullify, CircuitBatchAddressAppend} {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCircuit, name)
}

const (
	ProofABytes = 32
	ProofBBytes = 64
	ProofCBytes = 32

	CompressedProofBytes = ProofABytes + ProofBBytes + ProofCBytes
)

// CompressedProof is a Groth16 proof with its points in compressed form.
type CompressedProof struct {
	A [ProofABytes]byte
	B [ProofBBytes]byte
	C [ProofCBytes]byte
}

type ProofVerifier interface {
	// Verify returns nil if proof attests to publicInputHash for the given
	// circuit and batch size.
	Verify(circuit Circuit, batchSize uint64, publicInputHash [32]byte, proof CompressedProof) error
}

// AcceptAll accepts every proof. It stands in for a real verifier in tests
// and in tooling explicitly run without proof checking.
type AcceptAll struct{}

func (AcceptAll) Verify(Circuit, uint64, [32]byte, CompressedProof) error { return nil }
