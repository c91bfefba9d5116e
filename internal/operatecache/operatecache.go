// Package operatecache buffers pending metadata-store writes per key-prefix
// so a failed put or delete can be replayed once the store recovers or the
// next reconciliation sweep runs.
package operatecache

import "sync"

// Cache is a per-prefix buffer of pending puts and deletes. Mutations merge:
// a later put on a key supersedes an earlier pending delete and vice versa,
// so at most one of "pending put" / "pending delete" exists per (prefix,
// key) at any time.
type Cache struct {
	mu      sync.Mutex
	puts    map[string]map[string][]byte
	deletes map[string]map[string]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		puts:    make(map[string]map[string][]byte),
		deletes: make(map[string]map[string]struct{}),
	}
}

// AddPutEvent records a pending put, last-write-wins on key, and clears any
// pending delete for the same key.
func (c *Cache) AddPutEvent(prefix, key string, serializedValue []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.deletes[prefix]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(c.deletes, prefix)
		}
	}
	m, ok := c.puts[prefix]
	if !ok {
		m = make(map[string][]byte)
		c.puts[prefix] = m
	}
	m[key] = serializedValue
}

// AddDeleteEvent records a pending delete, clearing any pending put for key.
func (c *Cache) AddDeleteEvent(prefix, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.puts[prefix]; ok {
		delete(m, key)
		if len(m) == 0 {
			delete(c.puts, prefix)
		}
	}
	set, ok := c.deletes[prefix]
	if !ok {
		set = make(map[string]struct{})
		c.deletes[prefix] = set
	}
	set[key] = struct{}{}
}

// IsCacheClear reports whether prefix has no buffered operations.
func (c *Cache) IsCacheClear(prefix string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.puts[prefix]) == 0 && len(c.deletes[prefix]) == 0
}

// PendingPut is one buffered put awaiting replay.
type PendingPut struct {
	Key   string
	Value []byte
}

// Drain returns and clears the buffered puts and deletes for prefix, for
// the reconciler to replay against the metadata store.
func (c *Cache) Drain(prefix string) (puts []PendingPut, deletes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.puts[prefix]; ok {
		puts = make([]PendingPut, 0, len(m))
		for k, v := range m {
			puts = append(puts, PendingPut{Key: k, Value: v})
		}
		delete(c.puts, prefix)
	}
	if set, ok := c.deletes[prefix]; ok {
		deletes = make([]string, 0, len(set))
		for k := range set {
			deletes = append(deletes, k)
		}
		delete(c.deletes, prefix)
	}
	return puts, deletes
}
