// Package verifiertesting provides verifying keys with known secrets, so
// that tests can produce proofs without a circuit.
package verifiertesting

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/stretchr/testify/require"
)

// TrapdoorKey is a verifying key generated together with its secret
// exponents. Knowing them, Prove can produce a proof that satisfies the
// verification equation for any public input, which is all that is needed to
// exercise the verifier without a circuit.
type TrapdoorKey struct {
	VK *verifier.VerifyingKey

	alpha, beta, gamma, delta fr.Element
	ic0, ic1                  fr.Element
}

func randomScalar(t *testing.T) fr.Element {
	t.Helper()
	var e fr.Element
	_, err := e.SetRandom()
	require.NoError(t, err)
	return e
}

func g1Mul(g bn254.G1Affine, s fr.Element) bn254.G1Affine {
	var p bn254.G1Affine
	p.ScalarMultiplication(&g, s.BigInt(new(big.Int)))
	return p
}

func g2Mul(g bn254.G2Affine, s fr.Element) bn254.G2Affine {
	var p bn254.G2Affine
	p.ScalarMultiplication(&g, s.BigInt(new(big.Int)))
	return p
}

// NewTrapdoorKey generates a key from fresh random secrets.
func NewTrapdoorKey(t *testing.T) *TrapdoorKey {
	_, _, g1, g2 := bn254.Generators()
	k := &TrapdoorKey{
		alpha: randomScalar(t),
		beta:  randomScalar(t),
		gamma: randomScalar(t),
		delta: randomScalar(t),
		ic0:   randomScalar(t),
		ic1:   randomScalar(t),
	}
	k.VK = &verifier.VerifyingKey{
		Alpha: g1Mul(g1, k.alpha),
		Beta:  g2Mul(g2, k.beta),
		Gamma: g2Mul(g2, k.gamma),
		Delta: g2Mul(g2, k.delta),
		IC:    [2]bn254.G1Affine{g1Mul(g1, k.ic0), g1Mul(g1, k.ic1)},
	}
	return k
}

// Prove returns a proof that verifies against publicInputHash.
//
// With A = a*G1, B = b*G2 the verification equation holds when
//
//	c = (a*b - alpha*beta - (ic0 + x*ic1)*gamma) / delta
func (k *TrapdoorKey) Prove(t *testing.T, publicInputHash [32]byte) verifier.CompressedProof {
	_, _, g1, g2 := bn254.Generators()
	a := randomScalar(t)
	b := randomScalar(t)

	var x, acc, tmp, c fr.Element
	x.SetBytes(publicInputHash[:])

	acc.Mul(&a, &b)
	tmp.Mul(&k.alpha, &k.beta)
	acc.Sub(&acc, &tmp)
	tmp.Mul(&x, &k.ic1)
	tmp.Add(&tmp, &k.ic0)
	tmp.Mul(&tmp, &k.gamma)
	acc.Sub(&acc, &tmp)
	tmp.Inverse(&k.delta)
	c.Mul(&acc, &tmp)

	pa := g1Mul(g1, a)
	pb := g2Mul(g2, b)
	pc := g1Mul(g1, c)

	var proof verifier.CompressedProof
	proof.A = pa.Bytes()
	proof.B = pb.Bytes()
	proof.C = pc.Bytes()
	return proof
}
