// Package accountstore persists account buffers with optimistic concurrency.
//
// Every write names the version it was derived from. A write based on a
// stale read fails with ErrVersionConflict and the caller re-reads. This is
// the only synchronization between writers of the same account.
package accountstore

import (
	"context"
	"errors"

	"github.com/forestrie/go-batchedmerkle/batched"
)

var (
	ErrAccountExists   = errors.New("accountstore: account already exists")
	ErrAccountNotFound = errors.New("accountstore: account not found")
	ErrVersionConflict = errors.New("accountstore: version conflict")
	ErrCorruptRecord   = errors.New("accountstore: corrupt record")
	ErrUnknownCodec    = errors.New("accountstore: unknown codec")
)

// Version identifies one stored revision of an account. It is opaque to
// callers: a counter for the key value stores, the etag for blobs.
type Version string

type Store interface {
	// Create stores the first revision of an account. It fails with
	// ErrAccountExists if id is taken.
	Create(ctx context.Context, id batched.AccountID, data []byte) (Version, error)
	// Get returns the current bytes and version, or ErrAccountNotFound.
	Get(ctx context.Context, id batched.AccountID) ([]byte, Version, error)
	// Put replaces the account if its current version is expect, otherwise
	// it fails with ErrVersionConflict.
	Put(ctx context.Context, id batched.AccountID, data []byte, expect Version) (Version, error)
}

const accountKeyPrefix = "accounts/"

// AccountKey is the key or blob path an account is stored under.
func AccountKey(id batched.AccountID) string {
	return accountKeyPrefix + id.String()
}
