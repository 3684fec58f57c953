package verifier

import (
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	g1CompressedBytes = bn254.SizeOfG1AffineCompressed
	g2CompressedBytes = bn254.SizeOfG2AffineCompressed

	// VerifyingKeyBytes is the size of the binary verifying key encoding:
	// alpha | beta | gamma | delta | ic0 | ic1, all points compressed.
	VerifyingKeyBytes = 3*g1CompressedBytes + 3*g2CompressedBytes + g1CompressedBytes
)

// VerifyingKey is a Groth16 BN254 verifying key for a circuit with exactly
// one public input, the compressed public input hash.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    [2]bn254.G1Affine
}

func (vk *VerifyingKey) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, VerifyingKeyBytes)
	a := vk.Alpha.Bytes()
	out = append(out, a[:]...)
	for _, p := range []*bn254.G2Affine{&vk.Beta, &vk.Gamma, &vk.Delta} {
		b := p.Bytes()
		out = append(out, b[:]...)
	}
	for i := range vk.IC {
		b := vk.IC[i].Bytes()
		out = append(out, b[:]...)
	}
	return out, nil
}

func (vk *VerifyingKey) UnmarshalBinary(data []byte) error {
	if len(data) != VerifyingKeyBytes {
		return fmt.Errorf("%w: want=%d, got=%d", ErrMalformedKey, VerifyingKeyBytes, len(data))
	}
	off := 0
	if _, err := vk.Alpha.SetBytes(data[off : off+g1CompressedBytes]); err != nil {
		return fmt.Errorf("%w: alpha: %v", ErrMalformedKey, err)
	}
	off += g1CompressedBytes
	for _, p := range []*bn254.G2Affine{&vk.Beta, &vk.Gamma, &vk.Delta} {
		if _, err := p.SetBytes(data[off : off+g2CompressedBytes]); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		off += g2CompressedBytes
	}
	for i := range vk.IC {
		if _, err := vk.IC[i].SetBytes(data[off : off+g1CompressedBytes]); err != nil {
			return fmt.Errorf("%w: ic%d: %v", ErrMalformedKey, i, err)
		}
		off += g1CompressedBytes
	}
	return nil
}

// ReadVerifyingKey reads one binary encoded key.
func ReadVerifyingKey(r io.Reader) (*VerifyingKey, error) {
	data := make([]byte, VerifyingKeyBytes)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	vk := &VerifyingKey{}
	if err := vk.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return vk, nil
}

type keyID struct {
	circuit   Circuit
	batchSize uint64
}

// Groth16Verifier checks BN254 Groth16 proofs against verifying keys selected
// by circuit and batch size.
type Groth16Verifier struct {
	mu   sync.RWMutex
	keys map[keyID]*VerifyingKey
}

func NewGroth16Verifier() *Groth16Verifier {
	return &Groth16Verifier{keys: map[keyID]*VerifyingKey{}}
}

// Register adds the key used for proofs of circuit over batches of
// batchSize.
func (v *Groth16Verifier) Register(circuit Circuit, batchSize uint64, vk *VerifyingKey) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := keyID{circuit: circuit, batchSize: batchSize}
	if _, ok := v.keys[id]; ok {
		return fmt.Errorf("%w: %s batch size %d", ErrDuplicateKey, circuit, batchSize)
	}
	v.keys[id] = vk
	return nil
}

func (v *Groth16Verifier) Verify(
	circuit Circuit, batchSize uint64, publicInputHash [32]byte, proof CompressedProof) error {

	v.mu.RLock()
	vk, ok := v.keys[keyID{circuit: circuit, batchSize: batchSize}]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s batch size %d", ErrNoVerifyingKey, circuit, batchSize)
	}

	var a, c bn254.G1Affine
	var b bn254.G2Affine
	if _, err := a.SetBytes(proof.A[:]); err != nil {
		return fmt.Errorf("%w: a: %v", ErrMalformedProof, err)
	}
	if _, err := b.SetBytes(proof.B[:]); err != nil {
		return fmt.Errorf("%w: b: %v", ErrMalformedProof, err)
	}
	if _, err := c.SetBytes(proof.C[:]); err != nil {
		return fmt.Errorf("%w: c: %v", ErrMalformedProof, err)
	}

	vkX := vk.publicInputPoint(publicInputHash)

	// e(A, B) == e(alpha, beta) * e(vkX, gamma) * e(C, delta)
	var negA bn254.G1Affine
	negA.Neg(&a)
	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, vkX, c},
		[]bn254.G2Affine{b, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if !ok {
		return ErrInvalidProof
	}
	return nil
}

// publicInputPoint returns IC0 + x*IC1 with x the public input hash reduced
// into the scalar field.
func (vk *VerifyingKey) publicInputPoint(publicInputHash [32]byte) bn254.G1Affine {
	var x fr.Element
	x.SetBytes(publicInputHash[:])
	var term, out bn254.G1Affine
	term.ScalarMultiplication(&vk.IC[1], x.BigInt(new(big.Int)))
	out.Add(&vk.IC[0], &term)
	return out
}
