package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend with TTL expiry and least-recently-
// used eviction at a capacity bound. It is the default backend and the
// fallback when no Redis is configured.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[Key]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
}

type memoryItem struct {
	key       Key
	entry     Entry
	expiresAt time.Time
}

// NewMemoryBackend creates a backend bounded at maxEntries. Zero or negative
// means unbounded.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	return &MemoryBackend{
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key Key) (*Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	item := elem.Value.(*memoryItem)
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		m.removeLocked(elem)
		return nil, false, nil
	}

	item.entry.LastAccess = time.Now().UTC()
	m.order.MoveToFront(elem)
	entry := item.entry
	return &entry, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key Key, entry *Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if elem, ok := m.entries[key]; ok {
		item := elem.Value.(*memoryItem)
		item.entry = *entry
		item.expiresAt = expiresAt
		m.order.MoveToFront(elem)
		return nil
	}

	elem := m.order.PushFront(&memoryItem{key: key, entry: *entry, expiresAt: expiresAt})
	m.entries[key] = elem

	if m.maxEntries > 0 {
		for len(m.entries) > m.maxEntries {
			oldest := m.order.Back()
			if oldest == nil {
				break
			}
			m.removeLocked(oldest)
		}
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.removeLocked(elem)
	}
	return nil
}

func (m *MemoryBackend) EvictExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	evicted := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		item := elem.Value.(*memoryItem)
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			m.removeLocked(elem)
			evicted++
		}
		elem = prev
	}
	return evicted, nil
}

// Len returns the current entry count.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) removeLocked(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	m.order.Remove(elem)
	delete(m.entries, item.key)
}
