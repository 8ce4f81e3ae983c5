package cache

import (
	"sync"
	"time"
)

// lruNode represents one key of a partition, in order of use.
type lruNode struct {
	entry CacheEntry
	// prev points to the node used just after this one
	prev *lruNode
	// next points to the node used just before this one
	next *lruNode
}

// memPartition keeps entries in a map and in a doubly-linked list ordered by use.
type memPartition struct {
	nodes map[string]*lruNode
	// head is the most recently used entry
	head *lruNode
	// tail is the least recently used entry
	tail *lruNode
}

func newMemPartition() *memPartition {
	return &memPartition{nodes: make(map[string]*lruNode)}
}

func (p *memPartition) addFront(n *lruNode) {
	n.prev = nil
	n.next = p.head
	if p.head != nil {
		p.head.prev = n
	}
	p.head = n
	if p.tail == nil {
		p.tail = n
	}
}

func (p *memPartition) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		p.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		p.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

// MemCache is an in-memory CacheProvider, mainly for tests and ephemeral deployments.
type MemCache struct {
	mutex      *sync.RWMutex
	partitions map[string]*memPartition
}

func NewMemCache() MemCache {
	return MemCache{
		mutex:      &sync.RWMutex{},
		partitions: make(map[string]*memPartition),
	}
}

func (m MemCache) Get(partition, key string) (CacheEntry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	p, ok := m.partitions[partition]
	if !ok {
		return CacheEntry{Key: key}, ErrNotFound
	}
	n, ok := p.nodes[key]
	if !ok {
		return CacheEntry{Key: key}, ErrNotFound
	}
	return n.entry, nil
}

func (m MemCache) Put(partition string, ce CacheEntry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		p = newMemPartition()
		m.partitions[partition] = p
	}
	if n, ok := p.nodes[ce.Key]; ok {
		p.remove(n)
	}
	n := &lruNode{entry: ce}
	p.nodes[ce.Key] = n
	p.addFront(n)
	return nil
}

func (m MemCache) Touch(partition, key string, usedAt time.Time) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil
	}
	if n, ok := p.nodes[key]; ok {
		n.entry.UsedAt = usedAt
		p.remove(n)
		p.addFront(n)
	}
	return nil
}

func (m MemCache) Purge(partition, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil
	}
	if n, ok := p.nodes[key]; ok {
		p.remove(n)
		delete(p.nodes, key)
	}
	return nil
}

func (m MemCache) Len(partition string) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if p, ok := m.partitions[partition]; ok {
		return len(p.nodes), nil
	}
	return 0, nil
}

func (m MemCache) LeastRecentlyUsed(partition string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	p, ok := m.partitions[partition]
	if !ok || p.tail == nil {
		return "", ErrNotFound
	}
	return p.tail.entry.Key, nil
}

func (m MemCache) Oldest(partition string) (string, time.Time, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	p, ok := m.partitions[partition]
	if !ok || len(p.nodes) == 0 {
		return "", time.Time{}, ErrNotFound
	}
	var oldestKey string
	var oldestTime time.Time
	for key, n := range p.nodes {
		if oldestKey == "" || n.entry.StoredAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = n.entry.StoredAt
		}
	}
	return oldestKey, oldestTime, nil
}

func (m MemCache) AllKeys(partition string, cb func(string)) error {
	m.mutex.RLock()
	keys := make([]string, 0)
	if p, ok := m.partitions[partition]; ok {
		for key := range p.nodes {
			keys = append(keys, key)
		}
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
	return nil
}
