package batched

import (
	"fmt"

	"github.com/forestrie/go-batchedmerkle/bloom"
	"github.com/forestrie/go-batchedmerkle/hashchain"
)

const (
	MaxNumBatches          = 1024
	MaxBatchSize           = 1 << 20
	MaxBloomFilterCapacity = 1 << 32
	MaxHeight              = 63
	// MaxRootHistoryCapacity bounds the root history so that every slot can
	// be named by the 16 bit root index of an update instruction.
	MaxRootHistoryCapacity = 1 << 16
)

// QueueParams fixes the shape of a queue. Output queues carry no bloom
// filters and must leave BloomFilterCapacity and NumIters zero.
type QueueParams struct {
	QueueType           QueueType
	NumBatches          uint64
	BatchSize           uint64
	BloomFilterCapacity uint64
	NumIters            uint64
	Hasher              hashchain.Kind
}

func (p QueueParams) Validate() error {
	if p.NumBatches == 0 || p.NumBatches > MaxNumBatches {
		return fmt.Errorf("%w: num batches %d", ErrInvalidParams, p.NumBatches)
	}
	if p.BatchSize == 0 || p.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: batch size %d", ErrInvalidParams, p.BatchSize)
	}
	if _, err := hashchain.HasherFor(p.Hasher); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	switch {
	case p.QueueType.HasBloomFilters():
		if p.BloomFilterCapacity > MaxBloomFilterCapacity {
			return fmt.Errorf("%w: bloom filter capacity %d", ErrInvalidParams, p.BloomFilterCapacity)
		}
		if err := bloom.CheckParams(p.BloomFilterCapacity, p.NumIters); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	case p.QueueType.HasValues():
		if p.BloomFilterCapacity != 0 || p.NumIters != 0 {
			return fmt.Errorf("%w: output queues have no bloom filter", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidQueueType, p.QueueType)
	}
	return nil
}

// FalsePositiveRate estimates the chance that a full batch's bloom filter
// reports a value that was never inserted. It is zero for queues without
// bloom filters.
func (p QueueParams) FalsePositiveRate() float64 {
	if !p.QueueType.HasBloomFilters() {
		return 0
	}
	return bloom.FalsePositiveRate(p.BloomFilterCapacity, p.NumIters, p.BatchSize)
}

// TreeParams fixes the shape of a tree account. Queue.QueueType is derived
// from TreeType and need not be set.
type TreeParams struct {
	TreeType            TreeType
	ID                  AccountID
	AssociatedQueue     AccountID
	Height              uint64
	RootHistoryCapacity uint64
	Queue               QueueParams
}

// withQueueType returns p with its input queue type filled in.
func (p TreeParams) withQueueType() (TreeParams, error) {
	qt, err := p.TreeType.InputQueueType()
	if err != nil {
		return p, err
	}
	p.Queue.QueueType = qt
	return p, nil
}

func (p TreeParams) Validate() error {
	p, err := p.withQueueType()
	if err != nil {
		return err
	}
	if p.Height == 0 || p.Height > MaxHeight {
		return fmt.Errorf("%w: height %d", ErrInvalidParams, p.Height)
	}
	if p.RootHistoryCapacity == 0 || p.RootHistoryCapacity > MaxRootHistoryCapacity {
		return fmt.Errorf("%w: root history capacity %d", ErrInvalidParams, p.RootHistoryCapacity)
	}
	if p.TreeType == TreeTypeAddress && !p.AssociatedQueue.IsZero() {
		return fmt.Errorf("%w: address trees have no output queue", ErrInvalidParams)
	}
	return p.Queue.Validate()
}
