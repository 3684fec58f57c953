package batched

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/verifier"
)

// PublicInputs are the caller supplied claims of a batch update. The proof
// attests to them together with the values read from the accounts.
type PublicInputs struct {
	CircuitID       uint16
	NewRoot         [32]byte
	OutputHashChain [32]byte
	// RootIndex is the root history slot the prover built against.
	RootIndex uint16
}

// InstructionDataBatchUpdateProofInputs is the input to UpdateInputQueue and
// UpdateOutputQueue.
type InstructionDataBatchUpdateProofInputs struct {
	PublicInputs    PublicInputs
	CompressedProof verifier.CompressedProof
}

const (
	instrCircuitIDOff       = 0
	instrNewRootOff         = 2
	instrOutputHashChainOff = 34
	instrRootIndexOff       = 66
	instrProofAOff          = 68
	instrProofBOff          = instrProofAOff + verifier.ProofABytes
	instrProofCOff          = instrProofBOff + verifier.ProofBBytes

	InstructionDataBytes = instrProofCOff + verifier.ProofCBytes
)

// MarshalBinary encodes d in its fixed big endian form.
func (d InstructionDataBatchUpdateProofInputs) MarshalBinary() ([]byte, error) {
	b := make([]byte, InstructionDataBytes)
	binary.BigEndian.PutUint16(b[instrCircuitIDOff:], d.PublicInputs.CircuitID)
	copy(b[instrNewRootOff:], d.PublicInputs.NewRoot[:])
	copy(b[instrOutputHashChainOff:], d.PublicInputs.OutputHashChain[:])
	binary.BigEndian.PutUint16(b[instrRootIndexOff:], d.PublicInputs.RootIndex)
	copy(b[instrProofAOff:], d.CompressedProof.A[:])
	copy(b[instrProofBOff:], d.CompressedProof.B[:])
	copy(b[instrProofCOff:], d.CompressedProof.C[:])
	return b, nil
}

func (d *InstructionDataBatchUpdateProofInputs) UnmarshalBinary(b []byte) error {
	if len(b) != InstructionDataBytes {
		return fmt.Errorf("%w: instruction data want=%d, got=%d", ErrInvalidInstruction, InstructionDataBytes, len(b))
	}
	d.PublicInputs.CircuitID = binary.BigEndian.Uint16(b[instrCircuitIDOff:])
	copy(d.PublicInputs.NewRoot[:], b[instrNewRootOff:])
	copy(d.PublicInputs.OutputHashChain[:], b[instrOutputHashChainOff:])
	d.PublicInputs.RootIndex = binary.BigEndian.Uint16(b[instrRootIndexOff:])
	copy(d.CompressedProof.A[:], b[instrProofAOff:])
	copy(d.CompressedProof.B[:], b[instrProofBOff:])
	copy(d.CompressedProof.C[:], b[instrProofCOff:])
	return nil
}
