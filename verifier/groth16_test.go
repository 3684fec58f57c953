package verifier_test

import (
	"bytes"
	"testing"

	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/forestrie/go-batchedmerkle/verifier/verifiertesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroth16VerifierAcceptsValidProof(t *testing.T) {
	key := verifiertesting.NewTrapdoorKey(t)
	v := verifier.NewGroth16Verifier()
	require.NoError(t, v.Register(verifier.CircuitBatchAppend, 10, key.VK))

	pih := [32]byte{0, 1, 2, 3}
	proof := key.Prove(t, pih)

	require.NoError(t, v.Verify(verifier.CircuitBatchAppend, 10, pih, proof))
}

func TestGroth16VerifierRejects(t *testing.T) {
	key := verifiertesting.NewTrapdoorKey(t)
	v := verifier.NewGroth16Verifier()
	require.NoError(t, v.Register(verifier.CircuitBatchNullify, 10, key.VK))

	pih := [32]byte{0, 9}
	proof := key.Prove(t, pih)

	tests := []struct {
		name      string
		circuit   verifier.Circuit
		batchSize uint64
		pih       [32]byte
		proof     verifier.CompressedProof
		wantErr   error
	}{
		{
			name:    "wrong public input",
			circuit: verifier.CircuitBatchNullify, batchSize: 10,
			pih:     [32]byte{0, 8},
			proof:   proof,
			wantErr: verifier.ErrInvalidProof,
		},
		{
			name:    "no key for batch size",
			circuit: verifier.CircuitBatchNullify, batchSize: 11,
			pih:     pih,
			proof:   proof,
			wantErr: verifier.ErrNoVerifyingKey,
		},
		{
			name:    "no key for circuit",
			circuit: verifier.CircuitBatchAppend, batchSize: 10,
			pih:     pih,
			proof:   proof,
			wantErr: verifier.ErrNoVerifyingKey,
		},
		{
			name:    "garbage point",
			circuit: verifier.CircuitBatchNullify, batchSize: 10,
			pih:     pih,
			proof: func() verifier.CompressedProof {
				p := proof
				for i := range p.A {
					p.A[i] = 0xff
				}
				return p
			}(),
			wantErr: verifier.ErrMalformedProof,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.circuit, tt.batchSize, tt.pih, tt.proof)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGroth16VerifierRejectsDuplicateKey(t *testing.T) {
	key := verifiertesting.NewTrapdoorKey(t)
	v := verifier.NewGroth16Verifier()
	require.NoError(t, v.Register(verifier.CircuitBatchAppend, 10, key.VK))
	require.ErrorIs(t, v.Register(verifier.CircuitBatchAppend, 10, key.VK), verifier.ErrDuplicateKey)
}

func TestVerifyingKeyBinaryEncoding(t *testing.T) {
	key := verifiertesting.NewTrapdoorKey(t)
	data, err := key.VK.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, verifier.VerifyingKeyBytes)

	vk, err := verifier.ReadVerifyingKey(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, vk.Alpha.Equal(&key.VK.Alpha))
	assert.True(t, vk.Delta.Equal(&key.VK.Delta))
	assert.True(t, vk.IC[1].Equal(&key.VK.IC[1]))

	_, err = verifier.ReadVerifyingKey(bytes.NewReader(data[:10]))
	require.ErrorIs(t, err, verifier.ErrMalformedKey)
}

func TestCircuitFromID(t *testing.T) {
	c, err := verifier.CircuitFromID(2)
	require.NoError(t, err)
	assert.Equal(t, verifier.CircuitBatchNullify, c)

	_, err = verifier.CircuitFromID(0)
	require.ErrorIs(t, err, verifier.ErrUnknownCircuit)
	_, err = verifier.CircuitFromID(4)
	require.ErrorIs(t, err, verifier.ErrUnknownCircuit)

	c, err = verifier.ParseCircuit("address-append")
	require.NoError(t, err)
	assert.Equal(t, verifier.CircuitBatchAddressAppend, c)
}
