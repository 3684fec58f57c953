package accountstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/forestrie/go-batchedmerkle/batched"
)

// PebbleStore keeps accounts in a pebble database. Pebble has no
// transactions, so read-check-write sequences are serialized in process.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenPebble opens, creating if needed, the database at path. opts may be
// nil.
func OpenPebble(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) read(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (s *PebbleStore) Create(_ context.Context, id batched.AccountID, data []byte) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := []byte(AccountKey(id))

	_, err := s.read(key)
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return "", err
	}
	if err := s.db.Set(key, packRecord(1, data), pebble.Sync); err != nil {
		return "", err
	}
	return counterVersion(1), nil
}

func (s *PebbleStore) Get(_ context.Context, id batched.AccountID) ([]byte, Version, error) {
	rec, err := s.read([]byte(AccountKey(id)))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, "", err
	}
	counter, data, err := unpackRecord(rec)
	if err != nil {
		return nil, "", err
	}
	return data, counterVersion(counter), nil
}

func (s *PebbleStore) Put(_ context.Context, id batched.AccountID, data []byte, expect Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := []byte(AccountKey(id))

	rec, err := s.read(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return "", err
	}
	counter, _, err := unpackRecord(rec)
	if err != nil {
		return "", err
	}
	if err := checkCounter(counter, expect); err != nil {
		return "", err
	}
	if err := s.db.Set(key, packRecord(counter+1, data), pebble.Sync); err != nil {
		return "", err
	}
	return counterVersion(counter + 1), nil
}
