package engine

import (
	"context"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/batched"
)

// CreateStateTree creates a state tree. Zero ids in p are filled with fresh
// ones; the output queue itself is created by CreateOutputQueue.
func (e *Engine) CreateStateTree(ctx context.Context, p batched.TreeParams) (batched.AccountID, error) {
	p.TreeType = batched.TreeTypeState
	if p.AssociatedQueue.IsZero() {
		p.AssociatedQueue = batched.NewAccountID()
	}
	return e.createTree(ctx, p)
}

// CreateAddressTree creates an address tree.
func (e *Engine) CreateAddressTree(ctx context.Context, p batched.TreeParams) (batched.AccountID, error) {
	p.TreeType = batched.TreeTypeAddress
	return e.createTree(ctx, p)
}

// warnFalsePositiveRate is the bloom filter false positive rate above which
// tree creation logs a warning.
const warnFalsePositiveRate = 0.01

func (e *Engine) createTree(ctx context.Context, p batched.TreeParams) (batched.AccountID, error) {
	if p.ID.IsZero() {
		p.ID = batched.NewAccountID()
	}
	size, err := batched.TreeAccountSize(p)
	if err != nil {
		return batched.AccountID{}, err
	}
	buf := make([]byte, size)
	tree, err := batched.InitTreeAccount(buf, p)
	if err != nil {
		return batched.AccountID{}, err
	}
	if _, err := e.store.Create(ctx, p.ID, buf); err != nil {
		return batched.AccountID{}, err
	}
	e.log.Infof("created %s tree %s: height %d, %d batches of %d, %d bytes",
		p.TreeType, p.ID, p.Height, p.Queue.NumBatches, p.Queue.BatchSize, size)
	if rate := tree.Params().Queue.FalsePositiveRate(); rate > warnFalsePositiveRate {
		e.log.Infof("tree %s: a full batch rejects a fresh value with probability %.3g, consider a larger bloom filter",
			p.ID, rate)
	}
	return p.ID, nil
}

// CreateOutputQueue creates the output queue of a state tree under the id
// the tree records for it.
func (e *Engine) CreateOutputQueue(
	ctx context.Context, treeID batched.AccountID, p batched.QueueParams) (batched.AccountID, error) {

	tree, err := e.readTree(ctx, treeID)
	if err != nil {
		return batched.AccountID{}, err
	}
	p.QueueType = batched.QueueTypeOutput
	if tk := tree.Queue().Hasher().Kind(); p.Hasher != tk {
		return batched.AccountID{}, fmt.Errorf("%w: tree %s uses %s", batched.ErrHasherMismatch, treeID, tk)
	}
	id := tree.AssociatedQueue()
	if id.IsZero() {
		return batched.AccountID{}, fmt.Errorf("%w: tree %s has no output queue", batched.ErrQueueNotAssociated, treeID)
	}
	size, err := batched.QueueAccountSize(p)
	if err != nil {
		return batched.AccountID{}, err
	}
	buf := make([]byte, size)
	if _, err := batched.InitQueueAccount(buf, id, treeID, p); err != nil {
		return batched.AccountID{}, err
	}
	if _, err := e.store.Create(ctx, id, buf); err != nil {
		return batched.AccountID{}, err
	}
	e.log.Infof("created output queue %s for tree %s: %d batches of %d, %d bytes",
		id, treeID, p.NumBatches, p.BatchSize, size)
	return id, nil
}
