package batched

import (
	"encoding/binary"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/hashchain"
	"github.com/forestrie/go-batchedmerkle/zerocopy"
)

// Tree account header layout.
const (
	treeDiscriminatorOff       = 0
	treeTypeOff                = 8
	treeIDOff                  = 16
	treeAssociatedQueueOff     = 48
	treeHeightOff              = 80
	treeRootHistoryCapacityOff = 88
	treeSequenceNumberOff      = 96
	treeNextIndexOff           = 104
	treeLastAppendSeqOff       = 112
	treeLastAppendBatchOff     = 120
	treeLastAppendRootOff      = 128
	treeQueueMetadataOff       = 136

	TreeHeaderBytes = treeQueueMetadataOff + QueueMetadataBytes
)

// BatchedMerkleTreeAccount is a view over a tree account buffer. It owns the
// root history and the input queue embedded in the same buffer.
type BatchedMerkleTreeAccount struct {
	buf   []byte
	roots *zerocopy.CyclicVec
	queue *BatchedQueue
}

// TreeAccountSize returns the exact buffer size for a tree with params p.
func TreeAccountSize(p TreeParams) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	p, _ = p.withQueueType()
	qsize, err := QueueRegionSize(p.Queue)
	if err != nil {
		return 0, err
	}
	return TreeHeaderBytes + zerocopy.CyclicVecSize(int(p.RootHistoryCapacity), HashBytes) + qsize, nil
}

// InitTreeAccount lays out a new tree in buf. buf must be exactly
// TreeAccountSize(p) bytes; otherwise ErrSizeMismatch is returned and buf is
// not written.
func InitTreeAccount(buf []byte, p TreeParams) (*BatchedMerkleTreeAccount, error) {
	size, err := TreeAccountSize(p)
	if err != nil {
		return nil, err
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: tree account want=%d, got=%d", ErrSizeMismatch, size, len(buf))
	}
	p, _ = p.withQueueType()

	clear(buf)
	copy(buf[treeDiscriminatorOff:], TreeDiscriminator)
	binary.BigEndian.PutUint64(buf[treeTypeOff:], uint64(p.TreeType))
	copy(buf[treeIDOff:treeIDOff+32], p.ID[:])
	copy(buf[treeAssociatedQueueOff:treeAssociatedQueueOff+32], p.AssociatedQueue[:])
	binary.BigEndian.PutUint64(buf[treeHeightOff:], p.Height)
	binary.BigEndian.PutUint64(buf[treeRootHistoryCapacityOff:], p.RootHistoryCapacity)

	offset := TreeHeaderBytes
	roots, err := zerocopy.InitCyclicVec(buf, &offset, int(p.RootHistoryCapacity), HashBytes)
	if err != nil {
		return nil, err
	}
	queue, err := initQueue(buf, &offset, buf[treeQueueMetadataOff:TreeHeaderBytes], p.Queue)
	if err != nil {
		return nil, err
	}
	return &BatchedMerkleTreeAccount{buf: buf, roots: roots, queue: queue}, nil
}

// TreeAccountFromBytes reopens a tree account. The buffer length is checked
// against the size implied by the stored parameters before any other field
// is used.
func TreeAccountFromBytes(buf []byte) (*BatchedMerkleTreeAccount, error) {
	if len(buf) < TreeHeaderBytes {
		return nil, fmt.Errorf("%w: tree header want=%d, got=%d", ErrSizeMismatch, TreeHeaderBytes, len(buf))
	}
	if string(buf[treeDiscriminatorOff:treeDiscriminatorOff+DiscriminatorBytes]) != TreeDiscriminator {
		return nil, fmt.Errorf("%w: want %q", ErrBadDiscriminator, TreeDiscriminator)
	}
	t := &BatchedMerkleTreeAccount{buf: buf}
	p := t.Params()
	size, err := TreeAccountSize(p)
	if err != nil {
		return nil, err
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: tree account want=%d, got=%d", ErrSizeMismatch, size, len(buf))
	}
	offset := TreeHeaderBytes
	if t.roots, err = zerocopy.CyclicVecFromBytes(buf, &offset, HashBytes); err != nil {
		return nil, err
	}
	if t.roots.Capacity() != int(p.RootHistoryCapacity) {
		return nil, fmt.Errorf("%w: root history want=%d, got=%d",
			ErrSizeMismatch, p.RootHistoryCapacity, t.roots.Capacity())
	}
	if t.queue, err = queueFromBytes(buf, &offset, buf[treeQueueMetadataOff:TreeHeaderBytes]); err != nil {
		return nil, err
	}
	want, _ := p.TreeType.InputQueueType()
	if t.queue.QueueType() != want {
		return nil, fmt.Errorf("%w: %s tree with %s queue", ErrInvalidQueueType, p.TreeType, t.queue.QueueType())
	}
	return t, nil
}

func (t *BatchedMerkleTreeAccount) u64(off int) uint64       { return binary.BigEndian.Uint64(t.buf[off:]) }
func (t *BatchedMerkleTreeAccount) setU64(off int, v uint64) { binary.BigEndian.PutUint64(t.buf[off:], v) }

// Params recovers the parameters the account was initialized with.
func (t *BatchedMerkleTreeAccount) Params() TreeParams {
	return TreeParams{
		TreeType:            t.TreeType(),
		ID:                  t.ID(),
		AssociatedQueue:     t.AssociatedQueue(),
		Height:              t.Height(),
		RootHistoryCapacity: t.RootHistoryCapacity(),
		Queue:               readQueueParams(t.buf[treeQueueMetadataOff:TreeHeaderBytes]),
	}
}

func (t *BatchedMerkleTreeAccount) TreeType() TreeType               { return TreeType(t.u64(treeTypeOff)) }
func (t *BatchedMerkleTreeAccount) Height() uint64                   { return t.u64(treeHeightOff) }
func (t *BatchedMerkleTreeAccount) RootHistoryCapacity() uint64      { return t.u64(treeRootHistoryCapacityOff) }
func (t *BatchedMerkleTreeAccount) SequenceNumber() uint64           { return t.u64(treeSequenceNumberOff) }
func (t *BatchedMerkleTreeAccount) NextIndex() uint64                { return t.u64(treeNextIndexOff) }
func (t *BatchedMerkleTreeAccount) Queue() *BatchedQueue             { return t.queue }
func (t *BatchedMerkleTreeAccount) RootHistory() *zerocopy.CyclicVec { return t.roots }

func (t *BatchedMerkleTreeAccount) ID() AccountID {
	var id AccountID
	copy(id[:], t.buf[treeIDOff:])
	return id
}

// AssociatedQueue is the output queue paired with a state tree.
func (t *BatchedMerkleTreeAccount) AssociatedQueue() AccountID {
	var id AccountID
	copy(id[:], t.buf[treeAssociatedQueueOff:])
	return id
}

// Capacity is the number of leaves the tree can hold.
func (t *BatchedMerkleTreeAccount) Capacity() uint64 { return uint64(1) << t.Height() }

// LastRoot returns the newest root and its slot. An empty history yields
// the zero root in slot 0.
func (t *BatchedMerkleTreeAccount) LastRoot() ([32]byte, int) {
	var root [32]byte
	last, ok := t.roots.Last()
	if !ok {
		return root, 0
	}
	copy(root[:], last)
	return root, t.roots.LastIndex()
}

// Roots returns the root history from oldest to newest.
func (t *BatchedMerkleTreeAccount) Roots() [][32]byte {
	out := make([][32]byte, 0, t.roots.Len())
	for _, r := range t.roots.All() {
		var root [32]byte
		copy(root[:], r)
		out = append(out, root)
	}
	return out
}

// InsertIntoCurrentBatch inserts value into the input queue.
func (t *BatchedMerkleTreeAccount) InsertIntoCurrentBatch(value [32]byte) (Insertion, error) {
	return t.insertInput(value, value, value)
}

// InsertNullifierIntoCurrentBatch records that the leaf at leafIndex holding
// compressedAccountHash is spent by txHash. Membership is tracked by the
// account hash; the nullifier itself is what enters the tree.
func (t *BatchedMerkleTreeAccount) InsertNullifierIntoCurrentBatch(
	compressedAccountHash [32]byte, leafIndex uint64, txHash [32]byte) (Insertion, error) {

	if t.TreeType() != TreeTypeState {
		return Insertion{}, fmt.Errorf("%w: nullifiers need a state tree, have %s", ErrInvalidTreeType, t.TreeType())
	}
	h := t.queue.Hasher()
	for _, v := range [][32]byte{compressedAccountHash, txHash} {
		if err := hashchain.CheckValue(h, v); err != nil {
			return Insertion{}, err
		}
	}
	nullifier, err := hashchain.Nullifier(h, compressedAccountHash, leafIndex, txHash)
	if err != nil {
		return Insertion{}, err
	}
	return t.insertInput(compressedAccountHash, compressedAccountHash, nullifier)
}

// InsertAddressIntoCurrentBatch queues a new address.
func (t *BatchedMerkleTreeAccount) InsertAddressIntoCurrentBatch(address [32]byte) (Insertion, error) {
	if t.TreeType() != TreeTypeAddress {
		return Insertion{}, fmt.Errorf("%w: addresses need an address tree, have %s", ErrInvalidTreeType, t.TreeType())
	}
	return t.insertInput(address, address, address)
}

func (t *BatchedMerkleTreeAccount) insertInput(bloomValue, userValue, leafValue [32]byte) (Insertion, error) {
	ins, err := t.queue.insertIntoCurrentBatch(bloomValue, userValue, leafValue, t.zeroOutRootsFor)
	if err != nil {
		return ins, err
	}
	if prev := t.queue.previousBatchToWipe(); prev != nil {
		if prev.wipeBloomFilter() {
			t.zeroOutRootsFor(prev)
		}
	}
	return ins, nil
}

// CheckInputQueueNonInclusion fails with ErrNonInclusionCheckFailed if value
// may be held by any of the input queue's bloom filters.
func (t *BatchedMerkleTreeAccount) CheckInputQueueNonInclusion(value [32]byte) error {
	return t.queue.CheckNonInclusion(value)
}

// zeroOutRootsFor is called after the bloom filter of an applied batch has
// been wiped. Roots older than the one pushed for the batch were computed
// without the batch's values, so with the filter gone they could be used to
// argue those values are absent. They are overwritten with zero.
//
// Nothing is zeroed once the batch's own root has left the history: every
// older root has gone too.
func (t *BatchedMerkleTreeAccount) zeroOutRootsFor(b *Batch) {
	if t.SequenceNumber() >= b.SequenceNumber() {
		return
	}
	stop := int(b.RootIndex())
	zero := make([]byte, HashBytes)
	for i := range t.roots.All() {
		if i == stop {
			return
		}
		_ = t.roots.Set(i, zero)
	}
}

// TreeStatus is a copy of a tree account's state for readers.
type TreeStatus struct {
	ID                  AccountID
	AssociatedQueue     AccountID
	TreeType            TreeType
	Height              uint64
	RootHistoryCapacity uint64
	SequenceNumber      uint64
	NextIndex           uint64
	Roots               [][32]byte
	LastRootIndex       int
	// LastAppend is the newest output queue batch appended to the tree.
	LastAppend AppendRecord
	Queue      QueueStatus
}

func (t *BatchedMerkleTreeAccount) Status() TreeStatus {
	_, last := t.LastRoot()
	rec, _ := t.LastAppend()
	return TreeStatus{
		ID:                  t.ID(),
		AssociatedQueue:     t.AssociatedQueue(),
		TreeType:            t.TreeType(),
		Height:              t.Height(),
		RootHistoryCapacity: t.RootHistoryCapacity(),
		SequenceNumber:      t.SequenceNumber(),
		NextIndex:           t.NextIndex(),
		Roots:               t.Roots(),
		LastRootIndex:       last,
		LastAppend:          rec,
		Queue:               t.queue.Status(),
	}
}
