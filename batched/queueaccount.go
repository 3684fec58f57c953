package batched

import (
	"encoding/binary"
	"fmt"
)

// Queue account header layout.
const (
	queueAccDiscriminatorOff  = 0
	queueAccIDOff             = 8
	queueAccAssociatedTreeOff = 40
	queueAccAppliedSeqOff     = 72
	queueAccMetadataOff       = 80

	QueueHeaderBytes = queueAccMetadataOff + QueueMetadataBytes
)

// BatchedQueueAccount is a standalone queue, the output queue of a state
// tree. It stores the values waiting to be appended to the tree.
type BatchedQueueAccount struct {
	buf   []byte
	queue *BatchedQueue
}

// QueueAccountSize returns the exact buffer size for a queue account.
func QueueAccountSize(p QueueParams) (int, error) {
	if p.QueueType != QueueTypeOutput {
		return 0, fmt.Errorf("%w: standalone queues are output queues, got %s", ErrInvalidQueueType, p.QueueType)
	}
	qsize, err := QueueRegionSize(p)
	if err != nil {
		return 0, err
	}
	return QueueHeaderBytes + qsize, nil
}

// InitQueueAccount lays out a new output queue for tree in buf. buf must be
// exactly QueueAccountSize(p) bytes.
func InitQueueAccount(buf []byte, id, tree AccountID, p QueueParams) (*BatchedQueueAccount, error) {
	size, err := QueueAccountSize(p)
	if err != nil {
		return nil, err
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: queue account want=%d, got=%d", ErrSizeMismatch, size, len(buf))
	}
	clear(buf)
	copy(buf[queueAccDiscriminatorOff:], QueueDiscriminator)
	copy(buf[queueAccIDOff:queueAccIDOff+32], id[:])
	copy(buf[queueAccAssociatedTreeOff:queueAccAssociatedTreeOff+32], tree[:])

	offset := QueueHeaderBytes
	queue, err := initQueue(buf, &offset, buf[queueAccMetadataOff:QueueHeaderBytes], p)
	if err != nil {
		return nil, err
	}
	return &BatchedQueueAccount{buf: buf, queue: queue}, nil
}

// QueueAccountFromBytes reopens a queue account.
func QueueAccountFromBytes(buf []byte) (*BatchedQueueAccount, error) {
	if len(buf) < QueueHeaderBytes {
		return nil, fmt.Errorf("%w: queue header want=%d, got=%d", ErrSizeMismatch, QueueHeaderBytes, len(buf))
	}
	if string(buf[queueAccDiscriminatorOff:queueAccDiscriminatorOff+DiscriminatorBytes]) != QueueDiscriminator {
		return nil, fmt.Errorf("%w: want %q", ErrBadDiscriminator, QueueDiscriminator)
	}
	meta := buf[queueAccMetadataOff:QueueHeaderBytes]
	size, err := QueueAccountSize(readQueueParams(meta))
	if err != nil {
		return nil, err
	}
	if len(buf) != size {
		return nil, fmt.Errorf("%w: queue account want=%d, got=%d", ErrSizeMismatch, size, len(buf))
	}
	offset := QueueHeaderBytes
	queue, err := queueFromBytes(buf, &offset, meta)
	if err != nil {
		return nil, err
	}
	return &BatchedQueueAccount{buf: buf, queue: queue}, nil
}

func (a *BatchedQueueAccount) ID() AccountID {
	var id AccountID
	copy(id[:], a.buf[queueAccIDOff:])
	return id
}

// AppliedSequenceNumber is the tree sequence number of the last append this
// queue has recorded as applied.
func (a *BatchedQueueAccount) AppliedSequenceNumber() uint64 {
	return binary.BigEndian.Uint64(a.buf[queueAccAppliedSeqOff:])
}

func (a *BatchedQueueAccount) setAppliedSequenceNumber(seq uint64) {
	binary.BigEndian.PutUint64(a.buf[queueAccAppliedSeqOff:], seq)
}

// AssociatedTree is the state tree the queue feeds.
func (a *BatchedQueueAccount) AssociatedTree() AccountID {
	var id AccountID
	copy(id[:], a.buf[queueAccAssociatedTreeOff:])
	return id
}

func (a *BatchedQueueAccount) Queue() *BatchedQueue { return a.queue }

// Params recovers the queue parameters.
func (a *BatchedQueueAccount) Params() QueueParams {
	return readQueueParams(a.buf[queueAccMetadataOff:QueueHeaderBytes])
}

// InsertIntoCurrentBatch queues value for appending to the tree.
func (a *BatchedQueueAccount) InsertIntoCurrentBatch(value [32]byte) (Insertion, error) {
	return a.queue.InsertIntoCurrentBatch(value)
}

func (a *BatchedQueueAccount) ProveInclusionByIndex(leafIndex uint64, value [32]byte) (bool, error) {
	return a.queue.ProveInclusionByIndex(leafIndex, value)
}

func (a *BatchedQueueAccount) ProveInclusionByIndexAndZeroOutLeaf(leafIndex uint64, value [32]byte) (bool, error) {
	return a.queue.ProveInclusionByIndexAndZeroOutLeaf(leafIndex, value)
}

// QueueAccountStatus is a copy of a queue account's state for readers.
type QueueAccountStatus struct {
	ID             AccountID
	AssociatedTree AccountID
	// AppliedSequenceNumber is the tree sequence number of the last append
	// recorded in the queue.
	AppliedSequenceNumber uint64
	Queue                 QueueStatus
}

func (a *BatchedQueueAccount) Status() QueueAccountStatus {
	return QueueAccountStatus{
		ID:                    a.ID(),
		AssociatedTree:        a.AssociatedTree(),
		AppliedSequenceNumber: a.AppliedSequenceNumber(),
		Queue:                 a.queue.Status(),
	}
}

