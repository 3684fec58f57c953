package engine

import (
	"context"

	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/metrics"
)

const (
	queueInput  = "input"
	queueOutput = "output"
)

func (e *Engine) observeInsert(treeType batched.TreeType, queue string, ins batched.Insertion) {
	metrics.ValuesInserted.WithLabelValues(treeType.String(), queue).Inc()
	if ins.ResetBatch {
		e.log.Debugf("%s %s queue: batch %d restarted at %d", treeType, queue, ins.BatchIndex, ins.QueueIndex)
	}
	if ins.BatchFull {
		metrics.BatchesFilled.WithLabelValues(treeType.String(), queue).Inc()
		e.log.Debugf("%s %s queue: batch %d full, rotated", treeType, queue, ins.BatchIndex)
	}
}

// Insert queues value in an output queue for appending to its state tree.
// An append the tree has committed but the queue does not record yet is
// stored along with the value.
func (e *Engine) Insert(ctx context.Context, queueID batched.AccountID, value [32]byte) (batched.Insertion, error) {
	var ins batched.Insertion
	err := e.modify(ctx, queueID, accountQueue, func(data []byte) error {
		qa, err := openQueue(queueID, data)
		if err != nil {
			return err
		}
		if err := e.catchUp(ctx, qa); err != nil {
			return err
		}
		ins, err = qa.InsertIntoCurrentBatch(value)
		return err
	})
	if err != nil {
		return batched.Insertion{}, err
	}
	e.observeInsert(batched.TreeTypeState, queueOutput, ins)
	return ins, nil
}

// InsertOption configures a single insert into an input queue.
type InsertOption func(*insertOptions)

type insertOptions struct {
	requireNonInclusion bool
}

// RequireNonInclusion fails the insert with batched.ErrNonInclusionCheckFailed
// if the value may already be queued. The check is made against the same
// account bytes the insert is committed from, so a concurrent insert of the
// same value is caught when the commit is retried.
func RequireNonInclusion() InsertOption {
	return func(o *insertOptions) { o.requireNonInclusion = true }
}

// InsertNullifier spends the leaf at leafIndex of a state tree. Membership is
// tracked by compressedAccountHash.
func (e *Engine) InsertNullifier(
	ctx context.Context, treeID batched.AccountID,
	compressedAccountHash [32]byte, leafIndex uint64, txHash [32]byte, opts ...InsertOption) (batched.Insertion, error) {

	return e.insertInput(ctx, treeID, batched.TreeTypeState, compressedAccountHash, opts,
		func(tree *batched.BatchedMerkleTreeAccount) (batched.Insertion, error) {
			return tree.InsertNullifierIntoCurrentBatch(compressedAccountHash, leafIndex, txHash)
		})
}

// InsertAddress queues a new address in an address tree.
func (e *Engine) InsertAddress(
	ctx context.Context, treeID batched.AccountID, address [32]byte, opts ...InsertOption) (batched.Insertion, error) {

	return e.insertInput(ctx, treeID, batched.TreeTypeAddress, address, opts,
		func(tree *batched.BatchedMerkleTreeAccount) (batched.Insertion, error) {
			return tree.InsertAddressIntoCurrentBatch(address)
		})
}

func (e *Engine) insertInput(
	ctx context.Context, treeID batched.AccountID, treeType batched.TreeType,
	member [32]byte, opts []InsertOption,
	insert func(*batched.BatchedMerkleTreeAccount) (batched.Insertion, error)) (batched.Insertion, error) {

	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}
	var ins batched.Insertion
	err := e.modify(ctx, treeID, accountTree, func(data []byte) error {
		tree, err := openTree(treeID, data)
		if err != nil {
			return err
		}
		if o.requireNonInclusion {
			if err := tree.CheckInputQueueNonInclusion(member); err != nil {
				return err
			}
		}
		ins, err = insert(tree)
		return err
	})
	if err != nil {
		return batched.Insertion{}, err
	}
	e.observeInsert(treeType, queueInput, ins)
	return ins, nil
}

// CheckNonInclusion fails with batched.ErrNonInclusionCheckFailed if value
// may already be queued in the tree's input queue.
func (e *Engine) CheckNonInclusion(ctx context.Context, treeID batched.AccountID, value [32]byte) error {
	tree, err := e.readTree(ctx, treeID)
	if err != nil {
		return err
	}
	return tree.CheckInputQueueNonInclusion(value)
}
