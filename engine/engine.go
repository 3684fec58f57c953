// Package engine runs batched tree operations against stored accounts.
//
// Each operation reads the accounts it needs, applies the operation to a
// private copy of their bytes and commits the result conditional on the
// versions it read. An operation that loses a race is re-run on fresh bytes,
// up to the configured number of retries, so callers never act on state read
// before a concurrent writer committed.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-batchedmerkle/accountstore"
	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/forestrie/go-batchedmerkle/metrics"
	"github.com/forestrie/go-batchedmerkle/verifier"
)

const DefaultRetries = 3

const (
	accountTree  = "tree"
	accountQueue = "queue"
)

var (
	ErrNotATree  = errors.New("engine: account is not a tree")
	ErrNotAQueue = errors.New("engine: account is not a queue")
)

type Engine struct {
	log      logger.Logger
	store    accountstore.Store
	verifier verifier.ProofVerifier
	retries  int
}

type Option func(*Engine)

// WithRetries sets how often an operation is re-run after losing a commit
// race.
func WithRetries(n int) Option {
	return func(e *Engine) { e.retries = n }
}

func New(log logger.Logger, store accountstore.Store, v verifier.ProofVerifier, opts ...Option) *Engine {
	e := &Engine{
		log:      log,
		store:    store,
		verifier: v,
		retries:  DefaultRetries,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// modify runs fn over a fresh copy of the account and commits the result.
// fn must derive everything it does from the bytes it is given.
func (e *Engine) modify(
	ctx context.Context, id batched.AccountID, account string, fn func(data []byte) error) error {

	for attempt := 0; ; attempt++ {
		data, version, err := e.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		newVersion, err := e.store.Put(ctx, id, data, version)
		if err == nil {
			e.log.Debugf("commit %s: %s -> %s", id, version, newVersion)
			return nil
		}
		if !errors.Is(err, accountstore.ErrVersionConflict) {
			return err
		}
		metrics.CommitConflicts.WithLabelValues(account).Inc()
		if attempt >= e.retries {
			return err
		}
		e.log.Debugf("commit %s: conflict, retrying (%d)", id, attempt+1)
	}
}

func (e *Engine) readTree(ctx context.Context, id batched.AccountID) (*batched.BatchedMerkleTreeAccount, error) {
	data, _, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return openTree(id, data)
}

func openTree(id batched.AccountID, data []byte) (*batched.BatchedMerkleTreeAccount, error) {
	tree, err := batched.TreeAccountFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotATree, id, err)
	}
	return tree, nil
}

func openQueue(id batched.AccountID, data []byte) (*batched.BatchedQueueAccount, error) {
	qa, err := batched.QueueAccountFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAQueue, id, err)
	}
	return qa, nil
}

// TreeStatus reads a tree account.
func (e *Engine) TreeStatus(ctx context.Context, id batched.AccountID) (batched.TreeStatus, error) {
	tree, err := e.readTree(ctx, id)
	if err != nil {
		return batched.TreeStatus{}, err
	}
	return tree.Status(), nil
}

// QueueStatus reads an output queue account. The result includes any append
// its tree has committed that the queue account does not yet record.
func (e *Engine) QueueStatus(ctx context.Context, id batched.AccountID) (batched.QueueAccountStatus, error) {
	data, _, err := e.store.Get(ctx, id)
	if err != nil {
		return batched.QueueAccountStatus{}, err
	}
	qa, err := openQueue(id, data)
	if err != nil {
		return batched.QueueAccountStatus{}, err
	}
	if err := e.catchUp(ctx, qa); err != nil {
		return batched.QueueAccountStatus{}, err
	}
	return qa.Status(), nil
}
