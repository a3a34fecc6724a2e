// Package cache provides the resolution cache: an LRU map with per-entry TTL
// and an in-flight computation registry. All mutation is serialized behind the
// cache's own lock; no other component shares mutable state across goroutines.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/amaumene/gocomet/internal/errors"
)

// Item is one cache entry.
type Item struct {
	Key        string
	Value      interface{}
	Expiration time.Time
}

// Cache is an LRU cache with per-entry TTL and singleflight semantics on
// GetOrCompute.
type Cache struct {
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
	mu        sync.Mutex
	group     singleflight.Group
}

// New creates a cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the live value for key. Expired entries are removed lazily.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	item := elem.Value.(*Item)
	if time.Now().After(item.Expiration) {
		c.removeElement(elem)
		return nil, false
	}
	c.evictList.MoveToFront(elem)
	return item.Value, true
}

// Set stores value under key for ttl. At capacity the least-recently-used
// entry is evicted regardless of its remaining TTL.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiration := time.Now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*Item)
		item.Value = value
		item.Expiration = expiration
		c.evictList.MoveToFront(elem)
		return
	}

	elem := c.evictList.PushFront(&Item{Key: key, Value: value, Expiration: expiration})
	c.items[key] = elem

	if c.evictList.Len() > c.capacity {
		c.removeOldest()
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// ComputeFunc produces a value and the TTL it should be cached for. Returning
// an error caches nothing.
type ComputeFunc func() (interface{}, time.Duration, error)

// GetOrCompute returns the cached value for key or computes it. Concurrent
// callers for the same key share a single in-flight computation; a compute
// error is propagated to every waiter and nothing is cached, so the next
// caller retries fresh.
func (c *Cache) GetOrCompute(key string, compute ComputeFunc) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A waiter queued behind the winner may arrive after the value
		// landed; re-check before computing again.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		value, ttl, err := compute()
		if err != nil {
			return nil, apperrors.NewCacheComputeError(key, err)
		}
		if ttl > 0 {
			c.Set(key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// CleanExpired removes every expired entry.
func (c *Cache) CleanExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := c.evictList.Back(); elem != nil; elem = elem.Prev() {
		if now.After(elem.Value.(*Item).Expiration) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
}

// StartSweep runs CleanExpired every interval until ctx is cancelled.
func (c *Cache) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CleanExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Cache) removeOldest() {
	if elem := c.evictList.Back(); elem != nil {
		c.removeElement(elem)
	}
}

func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*Item).Key)
}
