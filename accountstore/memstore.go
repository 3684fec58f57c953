package accountstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/forestrie/go-batchedmerkle/batched"
)

type memEntry struct {
	counter uint64
	data    []byte
}

// MemStore keeps accounts in process memory.
type MemStore struct {
	mu       sync.Mutex
	accounts map[batched.AccountID]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{accounts: map[batched.AccountID]memEntry{}}
}

func (s *MemStore) Create(_ context.Context, id batched.AccountID, data []byte) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	s.accounts[id] = memEntry{counter: 1, data: append([]byte(nil), data...)}
	return counterVersion(1), nil
}

func (s *MemStore) Get(_ context.Context, id batched.AccountID) ([]byte, Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return append([]byte(nil), e.data...), counterVersion(e.counter), nil
}

func (s *MemStore) Put(_ context.Context, id batched.AccountID, data []byte, expect Version) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.accounts[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err := checkCounter(e.counter, expect); err != nil {
		return "", err
	}
	e = memEntry{counter: e.counter + 1, data: append([]byte(nil), data...)}
	s.accounts[id] = e
	return counterVersion(e.counter), nil
}
