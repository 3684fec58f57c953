package batched

import (
	"fmt"

	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/verifier"
)

// UpdateInputQueue applies the oldest full batch of the tree's input queue.
// The proof must be for the nullify circuit on a state tree, or the address
// append circuit on an address tree.
//
// Every check, proof verification included, happens before the account is
// written. On error the account bytes are unchanged.
func (t *BatchedMerkleTreeAccount) UpdateInputQueue(
	data InstructionDataBatchUpdateProofInputs, v verifier.ProofVerifier) (BatchEvent, error) {

	kind, want := BatchEventNullify, verifier.CircuitBatchNullify
	if t.TreeType() == TreeTypeAddress {
		kind, want = BatchEventAddressAppend, verifier.CircuitBatchAddressAppend
	}
	circuit, err := circuitFor(data.PublicInputs.CircuitID, want)
	if err != nil {
		return BatchEvent{}, err
	}
	b, err := t.queue.GetNextFullBatch()
	if err != nil {
		return BatchEvent{}, err
	}
	ev := BatchEvent{Kind: kind, TreeID: t.ID(), QueueID: t.ID()}
	return t.applyBatch(ev, circuit, t.queue, b, data, v)
}

// UpdateOutputQueue appends the oldest full batch of the associated output
// queue to a state tree. Both accounts are updated in memory, and the tree
// records the append so that a queue write lost after the tree is stored can
// be redone with CompleteAppend. The queue must be up to date with the tree,
// otherwise ErrAppendPending is returned.
func (t *BatchedMerkleTreeAccount) UpdateOutputQueue(
	qa *BatchedQueueAccount, data InstructionDataBatchUpdateProofInputs, v verifier.ProofVerifier) (BatchEvent, error) {

	if t.TreeType() != TreeTypeState {
		return BatchEvent{}, fmt.Errorf("%w: appends need a state tree, have %s", ErrInvalidTreeType, t.TreeType())
	}
	if t.AssociatedQueue() != qa.ID() || qa.AssociatedTree() != t.ID() {
		return BatchEvent{}, fmt.Errorf("%w: tree %s, queue %s", ErrQueueNotAssociated, t.ID(), qa.ID())
	}
	if tk, qk := t.queue.Hasher().Kind(), qa.queue.Hasher().Kind(); tk != qk {
		return BatchEvent{}, fmt.Errorf("%w: tree %s, queue %s", ErrHasherMismatch, tk, qk)
	}
	if qa.AppendPending(t) {
		rec, _ := t.LastAppend()
		return BatchEvent{}, fmt.Errorf("%w: tree at append %d, queue at %d",
			ErrAppendPending, rec.SequenceNumber, qa.AppliedSequenceNumber())
	}
	circuit, err := circuitFor(data.PublicInputs.CircuitID, verifier.CircuitBatchAppend)
	if err != nil {
		return BatchEvent{}, err
	}
	b, err := qa.queue.GetNextFullBatch()
	if err != nil {
		return BatchEvent{}, err
	}
	ev := BatchEvent{Kind: BatchEventAppend, TreeID: t.ID(), QueueID: qa.ID()}
	ev, err = t.applyBatch(ev, circuit, qa.queue, b, data, v)
	if err != nil {
		return BatchEvent{}, err
	}
	t.setLastAppend(AppendRecord{
		SequenceNumber: ev.SequenceNumber,
		BatchIndex:     ev.BatchIndex,
		RootIndex:      ev.RootIndex,
	})
	qa.setAppliedSequenceNumber(ev.SequenceNumber)
	return ev, nil
}

func circuitFor(id uint16, want verifier.Circuit) (verifier.Circuit, error) {
	c, err := verifier.CircuitFromID(id)
	if err != nil {
		return 0, err
	}
	if c != want {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrCircuitMismatch, c, want)
	}
	return c, nil
}

// ProofInputs builds the public inputs an update applying b would be checked
// against. It does not modify the account.
func (t *BatchedMerkleTreeAccount) ProofInputs(b *Batch, pub PublicInputs) (hashchain.BatchProofInputs, error) {
	oldRoot, last := t.LastRoot()
	if int(pub.RootIndex) != last {
		return hashchain.BatchProofInputs{}, fmt.Errorf(
			"%w: proof built against slot %d, last root is in slot %d", ErrStaleRootIndex, pub.RootIndex, last)
	}
	start := t.NextIndex()
	end := start + b.BatchSize()
	if end > t.Capacity() {
		return hashchain.BatchProofInputs{}, fmt.Errorf(
			"%w: batch ends at %d, capacity %d", ErrTreeIsFull, end, t.Capacity())
	}
	return hashchain.BatchProofInputs{
		OldRoot:         oldRoot,
		NewRoot:         pub.NewRoot,
		StartIndex:      start,
		EndIndex:        end,
		UserHashChain:   b.UserHashChain(),
		InputHashChain:  b.InputHashChain(),
		OutputHashChain: pub.OutputHashChain,
	}, nil
}

func (t *BatchedMerkleTreeAccount) applyBatch(
	ev BatchEvent, circuit verifier.Circuit, q *BatchedQueue, b *Batch,
	data InstructionDataBatchUpdateProofInputs, v verifier.ProofVerifier) (BatchEvent, error) {

	inputs, err := t.ProofInputs(b, data.PublicInputs)
	if err != nil {
		return BatchEvent{}, err
	}
	pih, err := inputs.PublicInputHash(t.queue.Hasher())
	if err != nil {
		return BatchEvent{}, fmt.Errorf("public input hash: %w", err)
	}
	if err := v.Verify(circuit, b.BatchSize(), pih, data.CompressedProof); err != nil {
		return BatchEvent{}, fmt.Errorf("%w: %w", ErrProofVerificationFailed, err)
	}

	seq := t.SequenceNumber() + 1
	if err := t.roots.Push(inputs.NewRoot[:]); err != nil {
		return BatchEvent{}, err
	}
	rootIndex := uint64(t.roots.LastIndex())
	b.markInserted(seq+t.RootHistoryCapacity(), rootIndex)
	t.setU64(treeNextIndexOff, inputs.EndIndex)
	t.setU64(treeSequenceNumberOff, seq)
	q.advanceNextFullBatch()

	ev.BatchIndex = b.ID()
	ev.BatchSize = b.BatchSize()
	ev.OldNextIndex = inputs.StartIndex
	ev.NewNextIndex = inputs.EndIndex
	ev.NewRoot = inputs.NewRoot
	ev.RootIndex = rootIndex
	ev.SequenceNumber = seq
	return ev, nil
}
