/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package lrucache provides a simple bounded LRU cache with Prometheus metrics.
// It backs the per-key state of the sliding window rate limiter, keeping memory
// bounded under traffic from many distinct subjects.
package lrucache

import (
	"container/list"
	"fmt"
	"sync"
)

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// LRUCache represents an LRU cache with eviction mechanism and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	mu      sync.Mutex
	lruList *list.List
	cache   map[K]*list.Element // map of cache entries, value is a lruList element

	metricsCollector MetricsCollector
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &LRUCache[K, V]{
		maxEntries:       maxEntries,
		lruList:          list.New(),
		cache:            make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// Get returns a value from the cache by the provided key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Add adds a value to the cache with the provided key.
// If the cache is full, the oldest entry will be removed.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value = &cacheEntry[K, V]{key: key, value: value}
		return
	}
	c.addNew(key, value)
}

// GetOrAdd returns a value from the cache by the provided key.
// If the key does not exist, it adds a new value to the cache.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, exists = c.get(key); exists {
		return value, exists
	}
	value = valueProvider()
	c.addNew(key, value)
	return value, false
}

// Remove removes an entry from the cache by the provided key.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.lruList.Remove(elem)
	delete(c.cache, key)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// Len returns the number of entries in the cache.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return elem.Value.(*cacheEntry[K, V]).value, true
}

func (c *LRUCache[K, V]) addNew(key K, value V) {
	c.cache[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value})
	if len(c.cache) > c.maxEntries {
		c.evictOldest()
	}
	c.metricsCollector.SetAmount(len(c.cache))
}

func (c *LRUCache[K, V]) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}
	c.lruList.Remove(elem)
	delete(c.cache, elem.Value.(*cacheEntry[K, V]).key)
	c.metricsCollector.AddEvictions(1)
}
