package store

import (
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store for tests and ephemeral hosts. Keys are
// ordered, so prefix scans behave like the durable implementation.
type MemStore struct {
	mu     sync.RWMutex
	spaces map[Space]map[string][]byte
}

// NewMemStore returns an empty in-memory store with all spaces present.
func NewMemStore() *MemStore {
	spaces := make(map[Space]map[string][]byte, len(Spaces))
	for _, space := range Spaces {
		spaces[space] = make(map[string][]byte)
	}
	return &MemStore{spaces: spaces}
}

func (s *MemStore) Get(space Space, key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.space(space)[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

func (s *MemStore) PrefixScan(space Space, prefix []byte, fn func(key, value []byte) bool) {
	s.mu.RLock()
	bucket := s.space(space)
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	type pair struct{ k, v []byte }
	pairs := make([]pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, pair{k: []byte(k), v: append([]byte(nil), bucket[k]...)})
	}
	s.mu.RUnlock()

	for _, p := range pairs {
		if !fn(p.k, p.v) {
			return
		}
	}
}

func (s *MemStore) NewBatch() *WriteBatch {
	return NewWriteBatch()
}

func (s *MemStore) Commit(batch *WriteBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range batch.ops {
		bucket := s.space(op.space)
		if op.delete {
			delete(bucket, string(op.key))
		} else {
			bucket[string(op.key)] = op.value
		}
	}
}

func (s *MemStore) Close() error {
	return nil
}

// Len returns the number of keys in a space.
func (s *MemStore) Len(space Space) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.space(space))
}

func (s *MemStore) space(space Space) map[string][]byte {
	bucket, ok := s.spaces[space]
	if !ok {
		panic("store: missing state space")
	}
	return bucket
}
