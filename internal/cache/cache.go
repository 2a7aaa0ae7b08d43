// Package cache provides a key/value cache with per-entry expiry, persisted
// across runs through a SQLite-backed store. A cache instance covers one
// namespace and carries a single TTL; a TTL of zero means entries never
// expire. Expired entries are logically evicted on read and physically
// removed only by a pruning save.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value []byte
	// expireAt is the moment the entry stops being served. The zero value
	// means the entry never expires.
	expireAt time.Time
}

// Cache is a time-bounded key/value cache over one store namespace.
type Cache struct {
	store     *Store
	namespace string
	ttl       time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// Cache returns the cache for the given namespace, loading any previously
// persisted entries. The TTL applies to entries written through this
// instance; entries loaded from disk keep their stored expiry.
func (s *Store) Cache(namespace string, ttl time.Duration) (*Cache, error) {
	entries, err := s.load(namespace)
	if err != nil {
		return nil, err
	}
	return &Cache{
		store:     s,
		namespace: namespace,
		ttl:       ttl,
		now:       time.Now,
		entries:   entries,
	}, nil
}

// GetRaw returns the stored bytes for key. Expired entries are treated as
// absent but remain in place until a pruning save.
func (c *Cache) GetRaw(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && e.expireAt.Before(c.now()) {
		return nil, false
	}
	return e.value, true
}

// SetRaw stores bytes under key, stamping the expiry from the cache TTL.
func (c *Cache) SetRaw(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if c.ttl > 0 {
		e.expireAt = c.now().Add(c.ttl)
	}
	c.entries[key] = e
}

// Delete removes an entry immediately.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Keys returns the keys of all live entries, in no particular order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if !e.expireAt.IsZero() && e.expireAt.Before(now) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of physically held entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save persists the cache to its store. When prune is set, entries whose
// expiry has passed are removed before writing.
func (c *Cache) Save(prune bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prune {
		now := c.now()
		for key, e := range c.entries {
			if !e.expireAt.IsZero() && e.expireAt.Before(now) {
				delete(c.entries, key)
			}
		}
	}
	return c.store.persist(c.namespace, c.entries)
}

// Get returns the value for key decoded into T.
func Get[T any](c *Cache, key string) (T, bool) {
	var v T
	raw, ok := c.GetRaw(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// Set stores the JSON encoding of v under key.
func Set[T any](c *Cache, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache value for %s: %w", key, err)
	}
	c.SetRaw(key, raw)
	return nil
}
