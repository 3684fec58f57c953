package batched

import (
	"fmt"
)

// AppendRecord identifies an output queue batch appended to a state tree.
//
// Appending changes the tree and its output queue, which are separate
// accounts. The tree keeps the record of its newest append so that the queue
// side can be completed from the tree alone if the queue write is lost.
type AppendRecord struct {
	SequenceNumber uint64
	BatchIndex     int
	RootIndex      uint64
}

// LastAppend returns the newest append recorded by the tree. ok is false if
// no batch has been appended yet.
func (t *BatchedMerkleTreeAccount) LastAppend() (rec AppendRecord, ok bool) {
	rec = AppendRecord{
		SequenceNumber: t.u64(treeLastAppendSeqOff),
		BatchIndex:     int(t.u64(treeLastAppendBatchOff)),
		RootIndex:      t.u64(treeLastAppendRootOff),
	}
	return rec, rec.SequenceNumber != 0
}

func (t *BatchedMerkleTreeAccount) setLastAppend(rec AppendRecord) {
	t.setU64(treeLastAppendSeqOff, rec.SequenceNumber)
	t.setU64(treeLastAppendBatchOff, uint64(rec.BatchIndex))
	t.setU64(treeLastAppendRootOff, rec.RootIndex)
}

// AppendPending reports whether t records an append that a has not.
func (a *BatchedQueueAccount) AppendPending(t *BatchedMerkleTreeAccount) bool {
	rec, ok := t.LastAppend()
	return ok && rec.SequenceNumber > a.AppliedSequenceNumber()
}

// CompleteAppend brings the queue up to date with the last append recorded
// by its tree: the appended batch is marked inserted and the next full batch
// pointer moves past it. It reports whether the queue changed. Calling it
// again, or on a queue that is already up to date, changes nothing.
func (a *BatchedQueueAccount) CompleteAppend(t *BatchedMerkleTreeAccount) (bool, error) {
	if t.AssociatedQueue() != a.ID() || a.AssociatedTree() != t.ID() {
		return false, fmt.Errorf("%w: tree %s, queue %s", ErrQueueNotAssociated, t.ID(), a.ID())
	}
	if !a.AppendPending(t) {
		return false, nil
	}
	rec, _ := t.LastAppend()
	if next := a.queue.NextFullBatchIndex(); next != rec.BatchIndex {
		return false, fmt.Errorf("%w: tree appended batch %d, queue is at batch %d",
			ErrAppendOutOfOrder, rec.BatchIndex, next)
	}
	b, err := a.queue.GetNextFullBatch()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAppendOutOfOrder, err)
	}
	b.markInserted(rec.SequenceNumber+t.RootHistoryCapacity(), rec.RootIndex)
	a.queue.advanceNextFullBatch()
	a.setAppliedSequenceNumber(rec.SequenceNumber)
	return true, nil
}
