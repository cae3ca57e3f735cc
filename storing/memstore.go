package storing

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

// kv is the btree.Item stored in a MemStore sub-database: ordering is purely
// by Key, following the teacher's history_reader_v3.go pattern of a small
// Item wrapper type plus AscendGreaterOrEqual range scans.
type kv struct {
	Key   []byte
	Value []byte
}

func (a *kv) Less(than btree.Item) bool {
	b := than.(*kv)
	return bytes.Compare(a.Key, b.Key) < 0
}

// MemStore is an in-memory Store backed by one google/btree per
// sub-database. It is the reference Store implementation used by
// keritesting and by callers that do not need durability.
type MemStore struct {
	mu   sync.Mutex
	subs map[string]*memSubDB
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{subs: map[string]*memSubDB{}}
}

func (m *MemStore) SubDB(name string) SubDB {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[name]
	if !ok {
		sub = &memSubDB{tree: btree.New(btreeDegree)}
		m.subs[name] = sub
	}
	return sub
}

type memSubDB struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func (s *memSubDB) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(&kv{Key: cloneBytes(key), Value: cloneBytes(value)})
	return nil
}

func (s *memSubDB) PutFirst(_ context.Context, key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.tree.Get(&kv{Key: key}); existing != nil {
		return false, nil
	}
	s.tree.ReplaceOrInsert(&kv{Key: cloneBytes(key), Value: cloneBytes(value)})
	return true, nil
}

func (s *memSubDB) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item := s.tree.Get(&kv{Key: key})
	if item == nil {
		return nil, false, nil
	}
	return cloneBytes(item.(*kv).Value), true, nil
}

func (s *memSubDB) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(&kv{Key: key})
	return nil
}

func (s *memSubDB) GetLastByPrefix(_ context.Context, prefix []byte) ([]byte, []byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var lastKey, lastValue []byte
	found := false
	s.tree.AscendGreaterOrEqual(&kv{Key: prefix}, func(item btree.Item) bool {
		it := item.(*kv)
		if !bytes.HasPrefix(it.Key, prefix) {
			return false
		}
		lastKey, lastValue = it.Key, it.Value
		found = true
		return true
	})
	if !found {
		return nil, nil, false, nil
	}
	return cloneBytes(lastKey), cloneBytes(lastValue), true, nil
}

// Range collects the matching items under the read lock and calls fn after
// releasing it, so fn may write to this same sub-database.
func (s *memSubDB) Range(_ context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	s.mu.RLock()
	var items []*kv
	s.tree.AscendGreaterOrEqual(&kv{Key: prefix}, func(item btree.Item) bool {
		it := item.(*kv)
		if !bytes.HasPrefix(it.Key, prefix) {
			return false
		}
		items = append(items, it)
		return true
	})
	s.mu.RUnlock()
	for _, it := range items {
		if !fn(it.Key, it.Value) {
			break
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
