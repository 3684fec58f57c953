package batched

import (
	"encoding/binary"
	"testing"

	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/stretchr/testify/require"
)

const (
	testNumBatches = 4
	testBatchSize  = 5
)

func testQueueParams() QueueParams {
	return QueueParams{
		NumBatches:          testNumBatches,
		BatchSize:           testBatchSize,
		BloomFilterCapacity: 8 * 1024,
		NumIters:            3,
	}
}

func testTreeParams(tt TreeType) TreeParams {
	p := TreeParams{
		TreeType:            tt,
		ID:                  NewAccountID(),
		Height:              26,
		RootHistoryCapacity: 2,
		Queue:               testQueueParams(),
	}
	if tt == TreeTypeState {
		p.AssociatedQueue = NewAccountID()
	}
	return p
}

func newTestTree(t *testing.T, p TreeParams) (*BatchedMerkleTreeAccount, []byte) {
	t.Helper()
	size, err := TreeAccountSize(p)
	require.NoError(t, err)
	buf := make([]byte, size)
	tree, err := InitTreeAccount(buf, p)
	require.NoError(t, err)
	return tree, buf
}

func newTestOutputQueue(t *testing.T, tree *BatchedMerkleTreeAccount) (*BatchedQueueAccount, []byte) {
	t.Helper()
	p := QueueParams{
		QueueType:  QueueTypeOutput,
		NumBatches: testNumBatches,
		BatchSize:  testBatchSize,
	}
	size, err := QueueAccountSize(p)
	require.NoError(t, err)
	buf := make([]byte, size)
	qa, err := InitQueueAccount(buf, tree.AssociatedQueue(), tree.ID(), p)
	require.NoError(t, err)
	return qa, buf
}

// leaf returns a distinct field sized value.
func leaf(i int) [32]byte {
	var v [32]byte
	v[1] = 0x5a
	binary.BigEndian.PutUint64(v[24:], uint64(i)+1)
	return v
}

func root(i int) [32]byte {
	var r [32]byte
	r[2] = 0x7e
	binary.BigEndian.PutUint64(r[24:], uint64(i)+1)
	return r
}

func fillInput(t *testing.T, tree *BatchedMerkleTreeAccount, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		_, err := tree.InsertIntoCurrentBatch(leaf(i))
		require.NoError(t, err)
	}
}

func fillAddresses(t *testing.T, tree *BatchedMerkleTreeAccount, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		_, err := tree.InsertAddressIntoCurrentBatch(leaf(i))
		require.NoError(t, err)
	}
}

func nullifyData(newRoot [32]byte, rootIndex uint16) InstructionDataBatchUpdateProofInputs {
	return InstructionDataBatchUpdateProofInputs{
		PublicInputs: PublicInputs{
			CircuitID: uint16(verifier.CircuitBatchNullify),
			NewRoot:   newRoot,
			RootIndex: rootIndex,
		},
	}
}

func updateData(c verifier.Circuit, newRoot [32]byte, rootIndex uint16) InstructionDataBatchUpdateProofInputs {
	d := nullifyData(newRoot, rootIndex)
	d.PublicInputs.CircuitID = uint16(c)
	return d
}

func snapshot(buf []byte) []byte { return append([]byte(nil), buf...) }
