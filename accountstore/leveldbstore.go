package accountstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/forestrie/go-batchedmerkle/batched"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore keeps accounts in a goleveldb database. Writes run in a
// leveldb transaction so the version check and the write are atomic.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens, creating if needed, the database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("leveldb open %s: %w", path, err)
	}
	return NewLevelDBStore(db), nil
}

func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) Close() error { return s.db.Close() }

func (s *LevelDBStore) Create(_ context.Context, id batched.AccountID, data []byte) (Version, error) {
	key := []byte(AccountKey(id))
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return "", err
	}
	defer tr.Discard()

	ok, err := tr.Has(key, nil)
	if err != nil {
		return "", err
	}
	if ok {
		return "", fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	if err := tr.Put(key, packRecord(1, data), &opt.WriteOptions{Sync: true}); err != nil {
		return "", err
	}
	if err := tr.Commit(); err != nil {
		return "", err
	}
	return counterVersion(1), nil
}

func (s *LevelDBStore) Get(_ context.Context, id batched.AccountID) ([]byte, Version, error) {
	rec, err := s.db.Get([]byte(AccountKey(id)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
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

func (s *LevelDBStore) Put(_ context.Context, id batched.AccountID, data []byte, expect Version) (Version, error) {
	key := []byte(AccountKey(id))
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return "", err
	}
	defer tr.Discard()

	rec, err := tr.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
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
	if err := tr.Put(key, packRecord(counter+1, data), &opt.WriteOptions{Sync: true}); err != nil {
		return "", err
	}
	if err := tr.Commit(); err != nil {
		return "", err
	}
	return counterVersion(counter + 1), nil
}
