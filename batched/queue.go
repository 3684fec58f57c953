package batched

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/bloom"
	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/zerocopy"
)

// Queue metadata layout, embedded in both account headers.
const (
	queueTypeOff          = 0
	queueNumBatchesOff    = 8
	queueBatchSizeOff     = 16
	queueBloomCapacityOff = 24
	queueNumItersOff      = 32
	queueCurrentBatchOff  = 40
	queueNextFullBatchOff = 48
	queueNextIndexOff     = 56
	queueHasherOff        = 64

	QueueMetadataBytes = 72
)

// QueueRegionSize returns the bytes a queue with params p occupies after its
// metadata.
func QueueRegionSize(p QueueParams) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	n := int(p.NumBatches)
	size := zerocopy.SliceSize(n, BatchRecordBytes)
	size += n * zerocopy.SliceSize(int(bloom.BitsetBytesV1(p.BloomFilterCapacity)), 1)
	if p.QueueType.HasValues() {
		size += n * zerocopy.BoundedVecSize(int(p.BatchSize), HashBytes)
	}
	return size, nil
}

// BatchedQueue is a ring of batches. One batch, the current batch, accepts
// inserts at any time.
type BatchedQueue struct {
	meta    []byte
	batches []*Batch
	hasher  hashchain.Hasher
}

func (q *BatchedQueue) u64(off int) uint64       { return binary.BigEndian.Uint64(q.meta[off:]) }
func (q *BatchedQueue) setU64(off int, v uint64) { binary.BigEndian.PutUint64(q.meta[off:], v) }

func writeQueueMetadata(meta []byte, p QueueParams) {
	clear(meta[:QueueMetadataBytes])
	binary.BigEndian.PutUint64(meta[queueTypeOff:], uint64(p.QueueType))
	binary.BigEndian.PutUint64(meta[queueNumBatchesOff:], p.NumBatches)
	binary.BigEndian.PutUint64(meta[queueBatchSizeOff:], p.BatchSize)
	binary.BigEndian.PutUint64(meta[queueBloomCapacityOff:], p.BloomFilterCapacity)
	binary.BigEndian.PutUint64(meta[queueNumItersOff:], p.NumIters)
	binary.BigEndian.PutUint64(meta[queueHasherOff:], uint64(p.Hasher))
}

func readQueueParams(meta []byte) QueueParams {
	return QueueParams{
		QueueType:           QueueType(binary.BigEndian.Uint64(meta[queueTypeOff:])),
		NumBatches:          binary.BigEndian.Uint64(meta[queueNumBatchesOff:]),
		BatchSize:           binary.BigEndian.Uint64(meta[queueBatchSizeOff:]),
		BloomFilterCapacity: binary.BigEndian.Uint64(meta[queueBloomCapacityOff:]),
		NumIters:            binary.BigEndian.Uint64(meta[queueNumItersOff:]),
		Hasher:              hashchain.Kind(binary.BigEndian.Uint64(meta[queueHasherOff:])),
	}
}

// initQueue writes meta and lays out the queue region at offset. The caller
// has already checked that buf is exactly the right size.
func initQueue(buf []byte, offset *int, meta []byte, p QueueParams) (*BatchedQueue, error) {
	writeQueueMetadata(meta, p)
	n := int(p.NumBatches)
	records, err := zerocopy.InitSlice(buf, offset, n, BatchRecordBytes)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		rec, _ := records.Get(i)
		initBatchRecord(rec, p.BatchSize, p.BloomFilterCapacity, p.NumIters)
	}
	blooms := make([]*zerocopy.Slice, n)
	for i := range blooms {
		if blooms[i], err = zerocopy.InitSlice(
			buf, offset, int(bloom.BitsetBytesV1(p.BloomFilterCapacity)), 1); err != nil {
			return nil, err
		}
	}
	var values []*zerocopy.BoundedVec
	if p.QueueType.HasValues() {
		values = make([]*zerocopy.BoundedVec, n)
		for i := range values {
			if values[i], err = zerocopy.InitBoundedVec(buf, offset, int(p.BatchSize), HashBytes); err != nil {
				return nil, err
			}
		}
	}
	return newBatchedQueue(meta, p, records, blooms, values)
}

// queueFromBytes reopens a queue region, checking every sub layout against
// the metadata.
func queueFromBytes(buf []byte, offset *int, meta []byte) (*BatchedQueue, error) {
	p := readQueueParams(meta)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := int(p.NumBatches)
	records, err := zerocopy.SliceFromBytes(buf, offset, BatchRecordBytes)
	if err != nil {
		return nil, err
	}
	if records.Len() != n {
		return nil, fmt.Errorf("%w: batches want=%d, got=%d", ErrSizeMismatch, n, records.Len())
	}
	bitsetBytes := int(bloom.BitsetBytesV1(p.BloomFilterCapacity))
	blooms := make([]*zerocopy.Slice, n)
	for i := range blooms {
		if blooms[i], err = zerocopy.SliceFromBytes(buf, offset, 1); err != nil {
			return nil, err
		}
		if blooms[i].Len() != bitsetBytes {
			return nil, fmt.Errorf("%w: bloom filter %d want=%d, got=%d",
				ErrSizeMismatch, i, bitsetBytes, blooms[i].Len())
		}
	}
	var values []*zerocopy.BoundedVec
	if p.QueueType.HasValues() {
		values = make([]*zerocopy.BoundedVec, n)
		for i := range values {
			if values[i], err = zerocopy.BoundedVecFromBytes(buf, offset, HashBytes); err != nil {
				return nil, err
			}
			if values[i].Capacity() != int(p.BatchSize) {
				return nil, fmt.Errorf("%w: value vec %d want=%d, got=%d",
					ErrSizeMismatch, i, p.BatchSize, values[i].Capacity())
			}
		}
	}
	q, err := newBatchedQueue(meta, p, records, blooms, values)
	if err != nil {
		return nil, err
	}
	if q.CurrentBatchIndex() >= n || q.NextFullBatchIndex() >= n {
		return nil, fmt.Errorf("%w: batch index out of range", ErrSizeMismatch)
	}
	return q, nil
}

func newBatchedQueue(
	meta []byte, p QueueParams,
	records *zerocopy.Slice, blooms []*zerocopy.Slice, values []*zerocopy.BoundedVec,
) (*BatchedQueue, error) {
	h, err := hashchain.HasherFor(p.Hasher)
	if err != nil {
		return nil, err
	}
	q := &BatchedQueue{meta: meta[:QueueMetadataBytes], hasher: h}
	q.batches = make([]*Batch, p.NumBatches)
	for i := range q.batches {
		rec, err := records.Get(i)
		if err != nil {
			return nil, err
		}
		b := &Batch{
			id:  i,
			rec: rec,
			filter: bloom.Filter{
				Region:       blooms[i].Bytes(),
				CapacityBits: p.BloomFilterCapacity,
				Iterations:   p.NumIters,
			},
		}
		if values != nil {
			b.values = values[i]
		}
		if b.BatchSize() != p.BatchSize {
			return nil, fmt.Errorf("%w: batch %d size want=%d, got=%d",
				ErrSizeMismatch, i, p.BatchSize, b.BatchSize())
		}
		q.batches[i] = b
	}
	return q, nil
}

func (q *BatchedQueue) QueueType() QueueType        { return QueueType(q.u64(queueTypeOff)) }
func (q *BatchedQueue) NumBatches() int             { return len(q.batches) }
func (q *BatchedQueue) BatchSize() uint64           { return q.u64(queueBatchSizeOff) }
func (q *BatchedQueue) BloomFilterCapacity() uint64 { return q.u64(queueBloomCapacityOff) }
func (q *BatchedQueue) NumIters() uint64            { return q.u64(queueNumItersOff) }
func (q *BatchedQueue) Hasher() hashchain.Hasher    { return q.hasher }

// CurrentBatchIndex is the batch receiving inserts.
func (q *BatchedQueue) CurrentBatchIndex() int { return int(q.u64(queueCurrentBatchOff)) }

// NextFullBatchIndex is the oldest batch, in fill order, not yet applied.
func (q *BatchedQueue) NextFullBatchIndex() int { return int(q.u64(queueNextFullBatchOff)) }

// NextIndex counts every value ever inserted into the queue.
func (q *BatchedQueue) NextIndex() uint64 { return q.u64(queueNextIndexOff) }

func (q *BatchedQueue) Batch(i int) (*Batch, error) {
	if i < 0 || i >= len(q.batches) {
		return nil, fmt.Errorf("%w: batch %d of %d", zerocopy.ErrIndexOutOfBounds, i, len(q.batches))
	}
	return q.batches[i], nil
}

func (q *BatchedQueue) Batches() []*Batch { return q.batches }

// Insertion describes where an insert landed.
type Insertion struct {
	BatchIndex int
	// QueueIndex is the queue local index assigned to the value.
	QueueIndex uint64
	// BatchFull is true when this insert filled the batch and the queue
	// rotated to the next one.
	BatchFull bool
	// ResetBatch is true when the insert started a new filling cycle of a
	// previously applied batch.
	ResetBatch bool
}

// InsertIntoCurrentBatch inserts value into the current batch, recording it in
// both hash chains, the bloom filter and, for output queues, the value vector.
func (q *BatchedQueue) InsertIntoCurrentBatch(value [32]byte) (Insertion, error) {
	return q.insertIntoCurrentBatch(value, value, value, nil)
}

// insertIntoCurrentBatch is the common insert path. onWipe is called with the
// batch whose bloom filter was cleared because its slot started a new filling
// cycle.
func (q *BatchedQueue) insertIntoCurrentBatch(
	bloomValue, userValue, leafValue [32]byte, onWipe func(*Batch)) (Insertion, error) {

	cur := q.CurrentBatchIndex()
	b := q.batches[cur]

	switch b.State() {
	case BatchStateFull:
		return Insertion{}, fmt.Errorf(
			"%w: current batch %d is waiting for its proof", ErrBatchNotFilling, cur)
	case BatchStateFill, BatchStateInserted:
	default:
		return Insertion{}, fmt.Errorf("%w: batch %d state %d", ErrSizeMismatch, cur, b.State())
	}
	// Validate before a possible reset so that a rejected value leaves the
	// Inserted batch untouched.
	for _, v := range [][32]byte{userValue, leafValue} {
		if err := hashchain.CheckValue(q.hasher, v); err != nil {
			return Insertion{}, err
		}
	}

	ins := Insertion{BatchIndex: cur, QueueIndex: q.NextIndex()}
	if b.IsInserted() {
		if b.startFilling(q.NextIndex()) && onWipe != nil {
			onWipe(b)
		}
		ins.ResetBatch = true
	} else if b.NumInserted() == 0 {
		b.setU64(batchStartIndexOff, q.NextIndex())
	}

	if err := b.insert(q.hasher, bloomValue, userValue, leafValue); err != nil {
		return Insertion{}, err
	}
	q.setU64(queueNextIndexOff, q.NextIndex()+1)

	if b.IsReadyToUpdateTree() {
		q.setU64(queueCurrentBatchOff, uint64((cur+1)%len(q.batches)))
		ins.BatchFull = true
	}
	return ins, nil
}

// GetNextFullBatch returns the oldest batch, in fill order, that is waiting
// for its proof.
func (q *BatchedQueue) GetNextFullBatch() (*Batch, error) {
	i := q.NextFullBatchIndex()
	b := q.batches[i]
	switch b.State() {
	case BatchStateFull:
		return b, nil
	case BatchStateInserted:
		return nil, fmt.Errorf("%w: batch %d", ErrBatchAlreadyInserted, i)
	default:
		return nil, fmt.Errorf("%w: batch %d holds %d of %d",
			ErrBatchNotReady, i, b.NumInserted(), b.BatchSize())
	}
}

// advanceNextFullBatch moves past a batch that has just been applied.
func (q *BatchedQueue) advanceNextFullBatch() {
	q.setU64(queueNextFullBatchOff, uint64((q.NextFullBatchIndex()+1)%len(q.batches)))
}

// CheckNonInclusion fails with ErrNonInclusionCheckFailed if any batch's
// bloom filter may contain value.
func (q *BatchedQueue) CheckNonInclusion(value [32]byte) error {
	for _, b := range q.batches {
		ok, err := b.MaybeContains(value)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: batch %d", ErrNonInclusionCheckFailed, b.id)
		}
	}
	return nil
}

// previousBatchToWipe returns the batch preceding the current one if its
// bloom filter is due to be wiped: it has been applied, still holds bits, and
// the current batch is at least half full.
func (q *BatchedQueue) previousBatchToWipe() *Batch {
	n := len(q.batches)
	if n < 2 {
		return nil
	}
	cur := q.batches[q.CurrentBatchIndex()]
	prev := q.batches[(q.CurrentBatchIndex()+n-1)%n]
	if cur.State() != BatchStateFill || cur.NumInserted() < q.BatchSize()/2 {
		return nil
	}
	if !prev.IsInserted() || prev.BloomFilterIsZeroed() || !prev.HasBloomFilter() {
		return nil
	}
	return prev
}

// valueIndex locates leafIndex in a batch still holding its values.
func (q *BatchedQueue) valueIndex(leafIndex uint64) (*Batch, int, bool) {
	for _, b := range q.batches {
		if b.values != nil && b.LeafIndexCouldExistInBatch(leafIndex) {
			return b, int(leafIndex - b.StartIndex()), true
		}
	}
	return nil, 0, false
}

// LeafIndexCouldExistInBatches reports whether leafIndex names a value that
// is queued and not yet applied.
func (q *BatchedQueue) LeafIndexCouldExistInBatches(leafIndex uint64) bool {
	_, _, ok := q.valueIndex(leafIndex)
	return ok
}

// ValueAt returns the queued value at leafIndex.
func (q *BatchedQueue) ValueAt(leafIndex uint64) ([32]byte, bool) {
	b, i, ok := q.valueIndex(leafIndex)
	if !ok {
		return [32]byte{}, false
	}
	v, err := b.values.Get(i)
	if err != nil {
		return [32]byte{}, false
	}
	var out [32]byte
	copy(out[:], v)
	return out, true
}

// ProveInclusionByIndex checks value against the queued value at leafIndex.
// It returns false when leafIndex is not queued, and
// ErrInclusionProofByIndexFailed when it is queued with a different value.
func (q *BatchedQueue) ProveInclusionByIndex(leafIndex uint64, value [32]byte) (bool, error) {
	if !q.QueueType().HasValues() {
		return false, fmt.Errorf("%w: %s", ErrInvalidQueueType, q.QueueType())
	}
	got, ok := q.ValueAt(leafIndex)
	if !ok {
		return false, nil
	}
	if got != value {
		return false, fmt.Errorf("%w: leaf %d", ErrInclusionProofByIndexFailed, leafIndex)
	}
	return true, nil
}

// ProveInclusionByIndexAndZeroOutLeaf is ProveInclusionByIndex followed by
// zeroing the queued value, for values spent before reaching the tree. The
// batch hash chains are left as they are.
func (q *BatchedQueue) ProveInclusionByIndexAndZeroOutLeaf(leafIndex uint64, value [32]byte) (bool, error) {
	ok, err := q.ProveInclusionByIndex(leafIndex, value)
	if err != nil || !ok {
		return ok, err
	}
	b, i, _ := q.valueIndex(leafIndex)
	if err := b.values.Set(i, make([]byte, HashBytes)); err != nil {
		return false, err
	}
	return true, nil
}

// QueueStatus is a copy of a queue's bookkeeping.
type QueueStatus struct {
	QueueType           QueueType
	NumBatches          int
	BatchSize           uint64
	BloomFilterCapacity uint64
	NumIters            uint64
	Hasher              hashchain.Kind
	CurrentBatchIndex   int
	NextFullBatchIndex  int
	NextIndex           uint64
	Batches             []BatchStatus
}

func (q *BatchedQueue) Status() QueueStatus {
	s := QueueStatus{
		QueueType:           q.QueueType(),
		NumBatches:          q.NumBatches(),
		BatchSize:           q.BatchSize(),
		BloomFilterCapacity: q.BloomFilterCapacity(),
		NumIters:            q.NumIters(),
		Hasher:              q.hasher.Kind(),
		CurrentBatchIndex:   q.CurrentBatchIndex(),
		NextFullBatchIndex:  q.NextFullBatchIndex(),
		NextIndex:           q.NextIndex(),
	}
	for _, b := range q.batches {
		s.Batches = append(s.Batches, b.Status())
	}
	return s
}
