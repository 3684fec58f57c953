package batched

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/bloom"
	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/zerocopy"
)

// Batch record layout. Every field is a big endian uint64 except the two
// trailing hash chains.
const (
	batchStateOff          = 0
	batchSizeOff           = 8
	batchNumInsertedOff    = 16
	batchBloomCapacityOff  = 24
	batchNumItersOff       = 32
	batchStartIndexOff     = 40
	batchSequenceNumberOff = 48
	batchRootIndexOff      = 56
	batchBloomZeroedOff    = 64
	batchUserChainOff      = 72
	batchInputChainOff     = batchUserChainOff + HashBytes

	BatchRecordBytes = batchInputChainOff + HashBytes
)

// Batch is a view over one batch record plus the bloom bitset and value
// vector belonging to the same slot.
type Batch struct {
	id     int
	rec    []byte
	filter bloom.Filter
	values *zerocopy.BoundedVec
}

func (b *Batch) u64(off int) uint64       { return binary.BigEndian.Uint64(b.rec[off:]) }
func (b *Batch) setU64(off int, v uint64) { binary.BigEndian.PutUint64(b.rec[off:], v) }

func (b *Batch) hash(off int) [32]byte {
	var h [32]byte
	copy(h[:], b.rec[off:off+HashBytes])
	return h
}

func (b *Batch) setHash(off int, h [32]byte) { copy(b.rec[off:off+HashBytes], h[:]) }

// initBatchRecord writes the record of a never used batch.
func initBatchRecord(rec []byte, batchSize, bloomCapacity, numIters uint64) {
	clear(rec)
	b := Batch{rec: rec}
	b.setU64(batchStateOff, uint64(BatchStateFill))
	b.setU64(batchSizeOff, batchSize)
	b.setU64(batchBloomCapacityOff, bloomCapacity)
	b.setU64(batchNumItersOff, numIters)
	// A fresh bitset is all zero.
	b.setU64(batchBloomZeroedOff, 1)
}

func (b *Batch) ID() int                     { return b.id }
func (b *Batch) State() BatchState           { return BatchState(b.u64(batchStateOff)) }
func (b *Batch) BatchSize() uint64           { return b.u64(batchSizeOff) }
func (b *Batch) NumInserted() uint64         { return b.u64(batchNumInsertedOff) }
func (b *Batch) BloomFilterCapacity() uint64 { return b.u64(batchBloomCapacityOff) }
func (b *Batch) NumIters() uint64            { return b.u64(batchNumItersOff) }

// StartIndex is the queue local index of the first value of the current
// filling cycle.
func (b *Batch) StartIndex() uint64 { return b.u64(batchStartIndexOff) }

// SequenceNumber is the tree sequence number at which the root pushed for
// this batch leaves the root history. Zero until the batch is applied.
func (b *Batch) SequenceNumber() uint64 { return b.u64(batchSequenceNumberOff) }

// RootIndex is the root history slot of the root pushed for this batch.
func (b *Batch) RootIndex() uint64 { return b.u64(batchRootIndexOff) }

func (b *Batch) BloomFilterIsZeroed() bool { return b.u64(batchBloomZeroedOff) != 0 }
func (b *Batch) UserHashChain() [32]byte   { return b.hash(batchUserChainOff) }
func (b *Batch) InputHashChain() [32]byte  { return b.hash(batchInputChainOff) }

func (b *Batch) IsReadyToUpdateTree() bool { return b.State() == BatchStateFull }
func (b *Batch) IsInserted() bool          { return b.State() == BatchStateInserted }

// HasBloomFilter is false for output queue batches.
func (b *Batch) HasBloomFilter() bool { return len(b.filter.Region) > 0 }

// Values returns the pending values of an output queue batch, nil otherwise.
func (b *Batch) Values() *zerocopy.BoundedVec { return b.values }

// insert adds one element. Only the queue calls it, and only for its
// current batch. bloomValue is what membership is tracked by,
// userValue is folded into the user chain and leafValue into the input chain
// and value vector. Nothing is written unless every check passes.
func (b *Batch) insert(h hashchain.Hasher, bloomValue, userValue, leafValue [32]byte) error {
	if s := b.State(); s != BatchStateFill {
		return fmt.Errorf("%w: batch %d is %s", ErrBatchNotFilling, b.id, s)
	}
	n := b.NumInserted()
	if n >= b.BatchSize() {
		return fmt.Errorf("%w: batch %d holds %d of %d", ErrBatchNotFilling, b.id, n, b.BatchSize())
	}
	if b.values != nil && b.values.IsFull() {
		return fmt.Errorf("%w: batch %d value vec", zerocopy.ErrFull, b.id)
	}
	for _, v := range [][32]byte{userValue, leafValue} {
		if err := hashchain.CheckValue(h, v); err != nil {
			return err
		}
	}
	userChain, err := hashchain.Fold(h, n, b.UserHashChain(), userValue)
	if err != nil {
		return err
	}
	inputChain, err := hashchain.Fold(h, n, b.InputHashChain(), leafValue)
	if err != nil {
		return err
	}

	if b.HasBloomFilter() {
		if err := b.filter.Insert(bloomValue[:]); err != nil {
			return err
		}
		b.setU64(batchBloomZeroedOff, 0)
	}
	if b.values != nil {
		if err := b.values.Push(leafValue[:]); err != nil {
			return err
		}
	}
	b.setHash(batchUserChainOff, userChain)
	b.setHash(batchInputChainOff, inputChain)
	b.setU64(batchNumInsertedOff, n+1)
	if n+1 == b.BatchSize() {
		b.setU64(batchStateOff, uint64(BatchStateFull))
	}
	return nil
}

// MarkAsInserted records that the batch's proof has been applied at the
// given sequence number and root history slot.
func (b *Batch) MarkAsInserted(sequenceNumber, rootIndex uint64) error {
	switch b.State() {
	case BatchStateInserted:
		return fmt.Errorf("%w: batch %d", ErrBatchAlreadyInserted, b.id)
	case BatchStateFill:
		return fmt.Errorf("%w: batch %d holds %d of %d",
			ErrBatchNotReady, b.id, b.NumInserted(), b.BatchSize())
	}
	b.markInserted(sequenceNumber, rootIndex)
	return nil
}

func (b *Batch) markInserted(sequenceNumber, rootIndex uint64) {
	b.setU64(batchStateOff, uint64(BatchStateInserted))
	b.setHash(batchUserChainOff, [32]byte{})
	b.setU64(batchSequenceNumberOff, sequenceNumber)
	b.setU64(batchRootIndexOff, rootIndex)
}

// startFilling moves an Inserted batch back to Fill. It reports whether the
// bloom filter still held bits that had to be wiped.
func (b *Batch) startFilling(startIndex uint64) (wiped bool) {
	wiped = b.wipeBloomFilter()
	if b.values != nil {
		b.values.Clear()
	}
	b.setHash(batchUserChainOff, [32]byte{})
	b.setHash(batchInputChainOff, [32]byte{})
	b.setU64(batchNumInsertedOff, 0)
	b.setU64(batchStartIndexOff, startIndex)
	b.setU64(batchStateOff, uint64(BatchStateFill))
	return wiped
}

func (b *Batch) wipeBloomFilter() bool {
	if b.BloomFilterIsZeroed() {
		return false
	}
	held := !b.filter.IsZero()
	b.filter.Clear()
	b.setU64(batchBloomZeroedOff, 1)
	return held
}

// MaybeContains checks the batch's bloom filter. A zeroed or absent filter
// contains nothing.
func (b *Batch) MaybeContains(value [32]byte) (bool, error) {
	if !b.HasBloomFilter() || b.BloomFilterIsZeroed() {
		return false, nil
	}
	return b.filter.MaybeContains(value[:])
}

// LeafIndexCouldExistInBatch reports whether leafIndex names a value stored
// in this batch and not yet applied to the tree.
func (b *Batch) LeafIndexCouldExistInBatch(leafIndex uint64) bool {
	if b.IsInserted() {
		return false
	}
	start := b.StartIndex()
	return leafIndex >= start && leafIndex < start+b.NumInserted()
}

// BatchStatus is a copy of a batch's bookkeeping.
type BatchStatus struct {
	ID                  int
	State               BatchState
	BatchSize           uint64
	NumInserted         uint64
	StartIndex          uint64
	SequenceNumber      uint64
	RootIndex           uint64
	BloomFilterIsZeroed bool
	UserHashChain       [32]byte
	InputHashChain      [32]byte
}

func (b *Batch) Status() BatchStatus {
	return BatchStatus{
		ID:                  b.id,
		State:               b.State(),
		BatchSize:           b.BatchSize(),
		NumInserted:         b.NumInserted(),
		StartIndex:          b.StartIndex(),
		SequenceNumber:      b.SequenceNumber(),
		RootIndex:           b.RootIndex(),
		BloomFilterIsZeroed: b.BloomFilterIsZeroed(),
		UserHashChain:       b.UserHashChain(),
		InputHashChain:      b.InputHashChain(),
	}
}
