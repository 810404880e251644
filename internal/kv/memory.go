package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used in tests and for local runs
// without a data directory. It keeps a sorted key slice alongside the
// map so range scans stay ordered.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	keys []string // sorted, mirrors data
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		i := sort.SearchStrings(s.keys, key)
		s.keys = append(s.keys, "")
		copy(s.keys[i+1:], s.keys[i:])
		s.keys[i] = key
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	i := sort.SearchStrings(s.keys, key)
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryStore) RangeScan(ctx context.Context, start, endInclusive string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	// Snapshot the window so fn can call back into the store.
	i := sort.SearchStrings(s.keys, start)
	var window []string
	for ; i < len(s.keys) && s.keys[i] <= endInclusive; i++ {
		window = append(window, s.keys[i])
	}
	values := make([][]byte, len(window))
	for j, k := range window {
		values[j] = s.data[k]
	}
	s.mu.RUnlock()

	for j, k := range window {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[j]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	s.keys = nil
	return nil
}

// Compact is a no-op for the in-memory store.
func (s *MemoryStore) Compact(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
