package kv

import (
	"sort"
	"sync"
)

// MemoryStore is a map-backed Store. A positive Quota caps the total size
// of keys plus values in bytes, the way browser storage does.
type MemoryStore struct {
	Quota int

	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty store without a quota.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	if m.Quota > 0 {
		used := m.usedLocked() - len(m.data[key]) + len(value)
		if _, ok := m.data[key]; !ok {
			used += len(key)
		}
		if used > m.Quota {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// usedLocked must be called with m.mu held.
func (m *MemoryStore) usedLocked() int {
	n := 0
	for k, v := range m.data {
		n += len(k) + len(v)
	}
	return n
}
