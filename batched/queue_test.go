package batched

import (
	"errors"
	"reflect"
	"testing"

	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRotatesWhenBatchFills(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	q := tree.Queue()

	for i := 0; i < testBatchSize; i++ {
		ins, err := tree.InsertIntoCurrentBatch(leaf(i))
		require.NoError(t, err)
		assert.Equal(t, 0, ins.BatchIndex)
		assert.Equal(t, uint64(i), ins.QueueIndex)
		assert.Equal(t, i == testBatchSize-1, ins.BatchFull)
	}
	assert.Equal(t, 1, q.CurrentBatchIndex())
	assert.Equal(t, uint64(testBatchSize), q.NextIndex())

	b, err := q.GetNextFullBatch()
	require.NoError(t, err)
	assert.Equal(t, 0, b.ID())

	ins, err := tree.InsertIntoCurrentBatch(leaf(100))
	require.NoError(t, err)
	assert.Equal(t, 1, ins.BatchIndex)
	b1, err := q.Batch(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(testBatchSize), b1.StartIndex())
}

// Values reach a batch only through the queue, and only while it is the
// current batch. Batches handed out by Batch and Batches are read only.
func TestQueueInsertsOnlyIntoCurrentBatch(t *testing.T) {
	_, ok := reflect.TypeOf(&Batch{}).MethodByName("Insert")
	require.False(t, ok, "batches must not accept inserts directly")

	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	q := tree.Queue()
	for i := 0; i < 2*testBatchSize+2; i++ {
		cur := q.CurrentBatchIndex()
		var others []BatchStatus
		for j, b := range q.Batches() {
			if j != cur {
				others = append(others, b.Status())
			}
		}
		ins, err := tree.InsertIntoCurrentBatch(leaf(i))
		require.NoError(t, err)
		require.Equal(t, cur, ins.BatchIndex)

		var after []BatchStatus
		for j, b := range q.Batches() {
			if j != cur {
				after = append(after, b.Status())
			}
		}
		require.Equal(t, others, after, "insert %d touched a batch other than %d", i, cur)
	}
}

// Filling every batch without applying any leaves the current batch Full.
// Inserts then stop until a proof frees it; a slot awaiting its proof is
// never refilled.
func TestQueueBlocksWhenEveryBatchAwaitsProof(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	q := tree.Queue()
	fillInput(t, tree, 0, testNumBatches*testBatchSize)

	assert.Equal(t, 0, q.CurrentBatchIndex())
	for _, b := range q.Batches() {
		assert.Equal(t, BatchStateFull, b.State())
	}

	_, err := tree.InsertIntoCurrentBatch(leaf(1000))
	require.ErrorIs(t, err, ErrBatchNotFilling)

	_, err = tree.UpdateInputQueue(nullifyData(root(0), 0), verifier.AcceptAll{})
	require.NoError(t, err)
	ins, err := tree.InsertIntoCurrentBatch(leaf(1000))
	require.NoError(t, err)
	assert.True(t, ins.ResetBatch)
	assert.Equal(t, 0, ins.BatchIndex)
}

// The batch receiving inserts is never one still waiting for its proof, for
// any interleaving of fills and updates.
func TestQueueCurrentBatchNeverAwaitsProof(t *testing.T) {
	p := testTreeParams(TreeTypeState)
	p.RootHistoryCapacity = 8
	tree, _ := newTestTree(t, p)
	q := tree.Queue()

	next := 0
	for round := 0; round < 12; round++ {
		inserts := 1 + (round*7)%(2*testBatchSize)
		for i := 0; i < inserts; i++ {
			cur, err := q.Batch(q.CurrentBatchIndex())
			require.NoError(t, err)
			_, err = tree.InsertIntoCurrentBatch(leaf(next))
			if cur.State() == BatchStateFull {
				require.ErrorIs(t, err, ErrBatchNotFilling)
				break
			}
			require.NoError(t, err)
			next++
		}
		if round%2 == 1 {
			_, lastSlot := tree.LastRoot()
			_, err := tree.UpdateInputQueue(nullifyData(root(round), uint16(lastSlot)), verifier.AcceptAll{})
			if err != nil {
				assert.True(t, errors.Is(err, ErrBatchNotReady) || errors.Is(err, ErrBatchAlreadyInserted), err)
			}
		}
	}
	assert.Equal(t, uint64(testBatchSize)*tree.SequenceNumber(), tree.NextIndex())
}

func TestQueueGetNextFullBatchNotReady(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	_, err := tree.Queue().GetNextFullBatch()
	require.ErrorIs(t, err, ErrBatchNotReady)

	fillInput(t, tree, 0, testBatchSize-1)
	_, err = tree.Queue().GetNextFullBatch()
	require.ErrorIs(t, err, ErrBatchNotReady)
}

func TestQueueCheckNonInclusion(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	fillInput(t, tree, 0, 3)

	require.ErrorIs(t, tree.CheckInputQueueNonInclusion(leaf(1)), ErrNonInclusionCheckFailed)
	require.NoError(t, tree.CheckInputQueueNonInclusion(leaf(500)))
}

func TestQueueAccountInclusionByIndex(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	qa, _ := newTestOutputQueue(t, tree)

	for i := 0; i < 3; i++ {
		_, err := qa.InsertIntoCurrentBatch(leaf(i))
		require.NoError(t, err)
	}
	q := qa.Queue()
	assert.True(t, q.LeafIndexCouldExistInBatches(2))
	assert.False(t, q.LeafIndexCouldExistInBatches(3))

	got, ok := q.ValueAt(1)
	require.True(t, ok)
	assert.Equal(t, leaf(1), got)

	ok, err := qa.ProveInclusionByIndex(1, leaf(1))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = qa.ProveInclusionByIndex(1, leaf(2))
	require.ErrorIs(t, err, ErrInclusionProofByIndexFailed)

	ok, err = qa.ProveInclusionByIndex(7, leaf(7))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = qa.ProveInclusionByIndexAndZeroOutLeaf(1, leaf(1))
	require.NoError(t, err)
	assert.True(t, ok)
	got, ok = q.ValueAt(1)
	require.True(t, ok)
	assert.Equal(t, [32]byte{}, got)
}

func TestQueueInclusionByIndexNeedsValues(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	fillInput(t, tree, 0, 1)
	_, err := tree.Queue().ProveInclusionByIndex(0, leaf(0))
	require.ErrorIs(t, err, ErrInvalidQueueType)
}

func TestQueueAccountLayout(t *testing.T) {
	tree, _ := newTestTree(t, testTreeParams(TreeTypeState))
	qa, buf := newTestOutputQueue(t, tree)
	_, err := qa.InsertIntoCurrentBatch(leaf(0))
	require.NoError(t, err)

	reopened, err := QueueAccountFromBytes(buf)
	require.NoError(t, err)
	assert.Equal(t, qa.ID(), reopened.ID())
	assert.Equal(t, tree.ID(), reopened.AssociatedTree())
	assert.Equal(t, qa.Params(), reopened.Params())
	assert.Equal(t, uint64(1), reopened.Queue().NextIndex())

	_, err = QueueAccountFromBytes(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrSizeMismatch)
	_, err = QueueAccountFromBytes(append(snapshot(buf), 0))
	require.ErrorIs(t, err, ErrSizeMismatch)

	bad := snapshot(buf)
	bad[0] = 'x'
	_, err = QueueAccountFromBytes(bad)
	require.ErrorIs(t, err, ErrBadDiscriminator)
}

func TestQueueAccountRejectsInputQueueParams(t *testing.T) {
	_, err := QueueAccountSize(testQueueParams())
	require.ErrorIs(t, err, ErrInvalidQueueType)

	p := QueueParams{QueueType: QueueTypeOutput, NumBatches: 2, BatchSize: 4, BloomFilterCapacity: 64, NumIters: 1}
	_, err = QueueAccountSize(p)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestQueueParamsFalsePositiveRate(t *testing.T) {
	p := testQueueParams()
	p.QueueType = QueueTypeInput
	rate := p.FalsePositiveRate()
	assert.Greater(t, rate, 0.0)
	assert.Less(t, rate, 1e-6)

	p.BatchSize *= 100
	assert.Greater(t, p.FalsePositiveRate(), rate)

	assert.Zero(t, QueueParams{QueueType: QueueTypeOutput, NumBatches: 2, BatchSize: 5}.FalsePositiveRate())
}
