package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forestrie/go-batchedmerkle/accountstore"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/metrics"
)

func (e *Engine) observeUpdate(
	tree *batched.BatchedMerkleTreeAccount, queue string, start time.Time, ev batched.BatchEvent, err error) {

	tt := tree.TreeType().String()
	metrics.MeasureDuration(metrics.VerifyDuration, start, tt, queue)
	if err != nil {
		if errors.Is(err, batched.ErrProofVerificationFailed) {
			metrics.ProofFailures.WithLabelValues(tt, queue).Inc()
		}
		return
	}
	metrics.BatchesApplied.WithLabelValues(tt, queue).Inc()
	metrics.NextIndex.WithLabelValues(tt).Set(float64(ev.NewNextIndex))
	metrics.SequenceNumber.WithLabelValues(tt).Set(float64(ev.SequenceNumber))
}

func (e *Engine) logEvent(ev batched.BatchEvent) {
	e.log.Debugf("%s applied to %s: batch %d, leaves [%d, %d), seq %d, root %x in slot %d",
		ev.Kind, ev.TreeID, ev.BatchIndex, ev.OldNextIndex, ev.NewNextIndex,
		ev.SequenceNumber, ev.NewRoot, ev.RootIndex)
}

// UpdateInputQueue applies the oldest full batch of a tree's input queue.
func (e *Engine) UpdateInputQueue(
	ctx context.Context, treeID batched.AccountID,
	data batched.InstructionDataBatchUpdateProofInputs) (batched.BatchEvent, error) {

	var ev batched.BatchEvent
	err := e.modify(ctx, treeID, accountTree, func(buf []byte) error {
		tree, err := openTree(treeID, buf)
		if err != nil {
			return err
		}
		start := time.Now()
		ev, err = tree.UpdateInputQueue(data, e.verifier)
		e.observeUpdate(tree, queueInput, start, ev, err)
		return err
	})
	if err != nil {
		return batched.BatchEvent{}, err
	}
	e.logEvent(ev)
	return ev, nil
}

// UpdateOutputQueue appends the oldest full batch of a state tree's output
// queue to the tree.
//
// Two accounts change. The tree is committed first and records the append.
// The queue commit follows; if it is lost the append still stands, and the
// queue is brought up to date from the tree by the next operation that
// reads it.
func (e *Engine) UpdateOutputQueue(
	ctx context.Context, treeID batched.AccountID,
	data batched.InstructionDataBatchUpdateProofInputs) (batched.BatchEvent, error) {

	for attempt := 0; ; attempt++ {
		ev, err := e.updateOutputQueueOnce(ctx, treeID, data)
		if err == nil {
			e.logEvent(ev)
			return ev, nil
		}
		if !errors.Is(err, accountstore.ErrVersionConflict) {
			return batched.BatchEvent{}, err
		}
		metrics.CommitConflicts.WithLabelValues(accountTree).Inc()
		if attempt >= e.retries {
			return batched.BatchEvent{}, err
		}
		e.log.Debugf("append to %s: conflict, retrying (%d)", treeID, attempt+1)
	}
}

func (e *Engine) updateOutputQueueOnce(
	ctx context.Context, treeID batched.AccountID,
	data batched.InstructionDataBatchUpdateProofInputs) (batched.BatchEvent, error) {

	treeBuf, treeVersion, err := e.store.Get(ctx, treeID)
	if err != nil {
		return batched.BatchEvent{}, err
	}
	tree, err := openTree(treeID, treeBuf)
	if err != nil {
		return batched.BatchEvent{}, err
	}
	queueID := tree.AssociatedQueue()
	queueBuf, queueVersion, err := e.store.Get(ctx, queueID)
	if err != nil {
		return batched.BatchEvent{}, fmt.Errorf("output queue of %s: %w", treeID, err)
	}
	qa, err := openQueue(queueID, queueBuf)
	if err != nil {
		return batched.BatchEvent{}, err
	}

	// The queue is never more than one append behind: an earlier append it
	// has not recorded is stored before the next one is made.
	caughtUp, err := qa.CompleteAppend(tree)
	if err != nil {
		return batched.BatchEvent{}, err
	}
	if caughtUp {
		if queueVersion, err = e.store.Put(ctx, queueID, queueBuf, queueVersion); err != nil {
			return batched.BatchEvent{}, err
		}
		e.log.Infof("append to %s: queue %s caught up with the previous append", treeID, queueID)
	}

	start := time.Now()
	ev, err := tree.UpdateOutputQueue(qa, data, e.verifier)
	e.observeUpdate(tree, queueOutput, start, ev, err)
	if err != nil {
		return batched.BatchEvent{}, err
	}

	if _, err := e.store.Put(ctx, treeID, treeBuf, treeVersion); err != nil {
		return batched.BatchEvent{}, err
	}
	if _, err := e.store.Put(ctx, queueID, queueBuf, queueVersion); err != nil {
		if ferr := e.finishAppend(ctx, tree); ferr != nil {
			e.log.Infof("append to %s: queue %s behind the tree until its next write: %v", treeID, queueID, ferr)
		}
	}
	return ev, nil
}

var errUpToDate = errors.New("queue up to date")

// finishAppend records the tree's last append in its output queue, re-reading
// the queue on every attempt.
func (e *Engine) finishAppend(ctx context.Context, tree *batched.BatchedMerkleTreeAccount) error {
	queueID := tree.AssociatedQueue()
	err := e.modify(ctx, queueID, accountQueue, func(data []byte) error {
		qa, err := openQueue(queueID, data)
		if err != nil {
			return err
		}
		changed, err := qa.CompleteAppend(tree)
		if err != nil {
			return err
		}
		if !changed {
			return errUpToDate
		}
		return nil
	})
	if errors.Is(err, errUpToDate) {
		return nil
	}
	return err
}

// catchUp applies, in memory, an append the queue's tree has committed but
// the queue does not record yet.
func (e *Engine) catchUp(ctx context.Context, qa *batched.BatchedQueueAccount) error {
	tree, err := e.readTree(ctx, qa.AssociatedTree())
	if err != nil {
		return fmt.Errorf("tree of queue %s: %w", qa.ID(), err)
	}
	changed, err := qa.CompleteAppend(tree)
	if err != nil {
		return err
	}
	if changed {
		e.log.Debugf("queue %s: caught up with append %d", qa.ID(), qa.AppliedSequenceNumber())
	}
	return nil
}
