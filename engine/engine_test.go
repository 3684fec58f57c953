package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-batchedmerkle/accountstore"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/metrics"
	"github.com/forestrie/go-batchedmerkle/verifier"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// faultyStore lets a test fail chosen writes.
type faultyStore struct {
	*accountstore.MemStore
	mu      sync.Mutex
	puts    map[batched.AccountID]int
	failPut func(id batched.AccountID, n int) error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemStore: accountstore.NewMemStore(), puts: map[batched.AccountID]int{}}
}

func (s *faultyStore) Put(
	ctx context.Context, id batched.AccountID, data []byte, expect accountstore.Version) (accountstore.Version, error) {

	s.mu.Lock()
	s.puts[id]++
	n, fail := s.puts[id], s.failPut
	s.mu.Unlock()
	if fail != nil {
		if err := fail(id, n); err != nil {
			return "", err
		}
	}
	return s.MemStore.Put(ctx, id, data, expect)
}

func testParams() batched.TreeParams {
	return batched.TreeParams{
		Height:              26,
		RootHistoryCapacity: 2,
		Queue: batched.QueueParams{
			NumBatches:          4,
			BatchSize:           5,
			BloomFilterCapacity: 8 * 1024,
			NumIters:            3,
		},
	}
}

func outputParams() batched.QueueParams {
	return batched.QueueParams{NumBatches: 4, BatchSize: 5}
}

func newTestEngine(t *testing.T, store accountstore.Store, v verifier.ProofVerifier, opts ...Option) *Engine {
	t.Helper()
	logger.New("NOOP")
	return New(logger.Sugar.WithServiceName("engine-test"), store, v, opts...)
}

func value(i int) [32]byte {
	var v [32]byte
	v[1] = 0x11
	v[31] = byte(i + 1)
	v[30] = byte((i + 1) >> 8)
	return v
}

func updateData(c verifier.Circuit, newRoot [32]byte, rootIndex uint16) batched.InstructionDataBatchUpdateProofInputs {
	return batched.InstructionDataBatchUpdateProofInputs{
		PublicInputs: batched.PublicInputs{CircuitID: uint16(c), NewRoot: newRoot, RootIndex: rootIndex},
	}
}

func createStateTree(t *testing.T, e *Engine) (batched.AccountID, batched.AccountID) {
	t.Helper()
	ctx := context.Background()
	treeID, err := e.CreateStateTree(ctx, testParams())
	require.NoError(t, err)
	queueID, err := e.CreateOutputQueue(ctx, treeID, outputParams())
	require.NoError(t, err)
	return treeID, queueID
}

func TestEngineStateTreeLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, accountstore.NewMemStore(), verifier.AcceptAll{})
	treeID, queueID := createStateTree(t, e)

	for i := 0; i < 5; i++ {
		ins, err := e.Insert(ctx, queueID, value(i))
		require.NoError(t, err)
		assert.Equal(t, i == 4, ins.BatchFull)
	}
	r1 := value(100)
	ev, err := e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, r1, 0))
	require.NoError(t, err)
	assert.Equal(t, batched.BatchEventAppend, ev.Kind)
	assert.Equal(t, queueID, ev.QueueID)

	qs, err := e.QueueStatus(ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, treeID, qs.AssociatedTree)
	assert.Equal(t, batched.BatchStateInserted, qs.Queue.Batches[0].State)

	txHash := value(200)
	for i := 0; i < 5; i++ {
		_, err := e.InsertNullifier(ctx, treeID, value(i), uint64(i), txHash)
		require.NoError(t, err)
	}
	require.ErrorIs(t, e.CheckNonInclusion(ctx, treeID, value(2)), batched.ErrNonInclusionCheckFailed)

	r2 := value(101)
	ev, err = e.UpdateInputQueue(ctx, treeID, updateData(verifier.CircuitBatchNullify, r2, 0))
	require.NoError(t, err)
	assert.Equal(t, batched.BatchEventNullify, ev.Kind)

	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), ts.NextIndex)
	assert.Equal(t, uint64(2), ts.SequenceNumber)
	assert.Equal(t, [][32]byte{r1, r2}, ts.Roots)
	assert.Equal(t, float64(10), testutil.ToFloat64(metrics.NextIndex.WithLabelValues("state")))

	_, err = e.UpdateInputQueue(ctx, treeID, updateData(verifier.CircuitBatchNullify, value(102), 1))
	require.ErrorIs(t, err, batched.ErrBatchNotReady)
}

func TestEngineAddressTree(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, accountstore.NewMemStore(), verifier.AcceptAll{})
	treeID, err := e.CreateAddressTree(ctx, testParams())
	require.NoError(t, err)

	_, err = e.CreateOutputQueue(ctx, treeID, outputParams())
	require.ErrorIs(t, err, batched.ErrQueueNotAssociated)

	for i := 0; i < 5; i++ {
		_, err := e.InsertAddress(ctx, treeID, value(i))
		require.NoError(t, err)
	}
	_, err = e.InsertNullifier(ctx, treeID, value(9), 0, value(9))
	require.ErrorIs(t, err, batched.ErrInvalidTreeType)

	ev, err := e.UpdateInputQueue(ctx, treeID, updateData(verifier.CircuitBatchAddressAppend, value(50), 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ev.NewNextIndex)
}

func TestEngineCreateOutputQueueChecksHasher(t *testing.T) {
	e := newTestEngine(t, accountstore.NewMemStore(), verifier.AcceptAll{})
	treeID, err := e.CreateStateTree(context.Background(), testParams())
	require.NoError(t, err)

	p := outputParams()
	p.Hasher = hashchain.KindKeccak
	_, err = e.CreateOutputQueue(context.Background(), treeID, p)
	require.ErrorIs(t, err, batched.ErrHasherMismatch)
}

func TestEngineRetriesLostCommit(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{})
	treeID, err := e.CreateAddressTree(ctx, testParams())
	require.NoError(t, err)

	conflicts := metrics.CommitConflicts.WithLabelValues("tree")
	before := testutil.ToFloat64(conflicts)
	store.failPut = func(_ batched.AccountID, n int) error {
		if n == 1 {
			return accountstore.ErrVersionConflict
		}
		return nil
	}
	ins, err := e.InsertAddress(ctx, treeID, value(0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), ins.QueueIndex)
	assert.Equal(t, before+1, testutil.ToFloat64(conflicts))

	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ts.Queue.NextIndex)
}

func TestEngineGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{}, WithRetries(1))
	treeID, err := e.CreateAddressTree(ctx, testParams())
	require.NoError(t, err)

	store.failPut = func(batched.AccountID, int) error { return accountstore.ErrVersionConflict }
	_, err = e.InsertAddress(ctx, treeID, value(0))
	require.ErrorIs(t, err, accountstore.ErrVersionConflict)
	assert.Equal(t, 2, store.puts[treeID])
}

// fillOutputBatch fills the first batch of the output queue.
func fillOutputBatch(t *testing.T, e *Engine, queueID batched.AccountID) {
	t.Helper()
	for i := 0; i < 5; i++ {
		_, err := e.Insert(context.Background(), queueID, value(i))
		require.NoError(t, err)
	}
}

// storedQueue reads the queue account as stored, without catching up with
// its tree.
func storedQueue(t *testing.T, store accountstore.Store, queueID batched.AccountID) batched.QueueAccountStatus {
	t.Helper()
	data, _, err := store.Get(context.Background(), queueID)
	require.NoError(t, err)
	qa, err := batched.QueueAccountFromBytes(data)
	require.NoError(t, err)
	return qa.Status()
}

// once runs fn the first time a write to id is attempted. Writes made by fn
// itself do not trigger it again.
func once(id batched.AccountID, fn func()) func(batched.AccountID, int) error {
	fired := false
	return func(put batched.AccountID, _ int) error {
		if put != id || fired {
			return nil
		}
		fired = true
		fn()
		return nil
	}
}

func TestEngineAppendRetriesWhenTreeChangesUnderIt(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{})
	treeID, queueID := createStateTree(t, e)
	fillOutputBatch(t, e, queueID)

	conflicts := metrics.CommitConflicts.WithLabelValues("tree")
	before := testutil.ToFloat64(conflicts)
	other := newTestEngine(t, store, verifier.AcceptAll{})
	store.failPut = once(treeID, func() {
		_, err := other.InsertNullifier(ctx, treeID, value(50), 0, value(60))
		require.NoError(t, err)
		_, err = other.Insert(ctx, queueID, value(5))
		require.NoError(t, err)
	})

	ev, err := e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, value(100), 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ev.SequenceNumber)
	assert.Equal(t, before+1, testutil.ToFloat64(conflicts))

	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ts.NextIndex)
	assert.Equal(t, uint64(1), ts.Queue.NextIndex, "concurrent nullifier kept")

	qs := storedQueue(t, store, queueID)
	assert.Equal(t, uint64(1), qs.AppliedSequenceNumber)
	assert.Equal(t, batched.BatchStateInserted, qs.Queue.Batches[0].State)
	assert.Equal(t, 1, qs.Queue.NextFullBatchIndex)
	assert.Equal(t, uint64(6), qs.Queue.NextIndex, "concurrent insert kept")
}

func TestEngineAppendSurvivesQueueWriteBetweenCommits(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{})
	treeID, queueID := createStateTree(t, e)
	fillOutputBatch(t, e, queueID)

	// Runs after the tree is committed and before the queue is.
	other := newTestEngine(t, store, verifier.AcceptAll{})
	store.failPut = once(queueID, func() {
		_, err := other.Insert(ctx, queueID, value(5))
		require.NoError(t, err)
		_, err = other.InsertNullifier(ctx, treeID, value(50), 0, value(60))
		require.NoError(t, err)
	})

	ev, err := e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, value(100), 0))
	require.NoError(t, err)
	assert.Equal(t, 0, ev.BatchIndex)

	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ts.SequenceNumber)
	assert.Equal(t, uint64(5), ts.NextIndex)
	assert.Equal(t, batched.AppendRecord{SequenceNumber: 1, BatchIndex: 0, RootIndex: 0}, ts.LastAppend)
	assert.Equal(t, uint64(1), ts.Queue.NextIndex)

	qs := storedQueue(t, store, queueID)
	assert.Equal(t, uint64(1), qs.AppliedSequenceNumber)
	assert.Equal(t, batched.BatchStateInserted, qs.Queue.Batches[0].State)
	assert.Equal(t, 1, qs.Queue.NextFullBatchIndex)
	assert.Equal(t, uint64(1), qs.Queue.Batches[1].NumInserted)

	store.failPut = nil
	for i := 6; i < 10; i++ {
		_, err := e.Insert(ctx, queueID, value(i))
		require.NoError(t, err)
	}
	ev, err = e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, value(101), 0))
	require.NoError(t, err)
	assert.Equal(t, 1, ev.BatchIndex)
	assert.Equal(t, uint64(5), ev.OldNextIndex)
	assert.Equal(t, uint64(10), ev.NewNextIndex)
}

func TestEngineAppendStandsWhenQueueWriteFails(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{})
	treeID, queueID := createStateTree(t, e)
	fillOutputBatch(t, e, queueID)

	diskFull := errors.New("disk full")
	store.failPut = func(id batched.AccountID, _ int) error {
		if id == queueID {
			return diskFull
		}
		return nil
	}
	_, err := e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, value(100), 0))
	require.NoError(t, err)

	stored := storedQueue(t, store, queueID)
	assert.Equal(t, uint64(0), stored.AppliedSequenceNumber)
	assert.Equal(t, batched.BatchStateFull, stored.Queue.Batches[0].State)

	qs, err := e.QueueStatus(ctx, queueID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), qs.AppliedSequenceNumber)
	assert.Equal(t, batched.BatchStateInserted, qs.Queue.Batches[0].State)
	assert.Equal(t, 1, qs.Queue.NextFullBatchIndex)

	// The next append stores the catch up before anything else.
	_, err = e.UpdateOutputQueue(ctx, treeID, updateData(verifier.CircuitBatchAppend, value(101), 0))
	require.ErrorIs(t, err, diskFull)
	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ts.SequenceNumber)

	store.failPut = nil
	_, err = e.Insert(ctx, queueID, value(5))
	require.NoError(t, err)
	stored = storedQueue(t, store, queueID)
	assert.Equal(t, uint64(1), stored.AppliedSequenceNumber)
	assert.Equal(t, batched.BatchStateInserted, stored.Queue.Batches[0].State)
	assert.Equal(t, 1, stored.Queue.NextFullBatchIndex)
}

func TestEngineRequireNonInclusionSeesConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	e := newTestEngine(t, store, verifier.AcceptAll{})
	treeID, err := e.CreateAddressTree(ctx, testParams())
	require.NoError(t, err)

	// The duplicate lands after the insert has read the tree and before it
	// commits.
	other := newTestEngine(t, store, verifier.AcceptAll{})
	store.failPut = once(treeID, func() {
		_, err := other.InsertAddress(ctx, treeID, value(0))
		require.NoError(t, err)
	})
	_, err = e.InsertAddress(ctx, treeID, value(0), RequireNonInclusion())
	require.ErrorIs(t, err, batched.ErrNonInclusionCheckFailed)

	ts, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ts.Queue.NextIndex)

	_, err = e.InsertNullifier(ctx, treeID, value(1), 0, value(2), RequireNonInclusion())
	require.ErrorIs(t, err, batched.ErrInvalidTreeType)

	// Without the option duplicates are queued.
	_, err = e.InsertAddress(ctx, treeID, value(0))
	require.NoError(t, err)
}

func TestEngineProofFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	v := verifier.NewMockProofVerifier(ctrl)
	v.EXPECT().Verify(verifier.CircuitBatchAddressAppend, uint64(5), gomock.Any(), gomock.Any()).
		Return(verifier.ErrInvalidProof)

	e := newTestEngine(t, accountstore.NewMemStore(), v)
	treeID, err := e.CreateAddressTree(ctx, testParams())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := e.InsertAddress(ctx, treeID, value(i))
		require.NoError(t, err)
	}
	before, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)

	failures := metrics.ProofFailures.WithLabelValues("address", "input")
	count := testutil.ToFloat64(failures)
	_, err = e.UpdateInputQueue(ctx, treeID, updateData(verifier.CircuitBatchAddressAppend, value(50), 0))
	require.ErrorIs(t, err, batched.ErrProofVerificationFailed)
	assert.Equal(t, count+1, testutil.ToFloat64(failures))

	after, err := e.TreeStatus(ctx, treeID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngineRejectsWrongAccountKind(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, accountstore.NewMemStore(), verifier.AcceptAll{})
	treeID, queueID := createStateTree(t, e)

	_, err := e.TreeStatus(ctx, queueID)
	require.ErrorIs(t, err, ErrNotATree)
	_, err = e.QueueStatus(ctx, treeID)
	require.ErrorIs(t, err, ErrNotAQueue)
	_, err = e.TreeStatus(ctx, batched.NewAccountID())
	require.ErrorIs(t, err, accountstore.ErrAccountNotFound)
}
