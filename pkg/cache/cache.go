/*
 * Copyright 2026 The PawSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * reference from the Kubernetes repository:
 * https://github.com/kubernetes/kubernetes/blob/master/staging/src/k8s.io/apimachinery/pkg/util/cache/lruexpirecache.go
 */

// Package cache provides an LRU cache with per-entry expiry, used to keep
// remote point-lookup results warm in the entity facade.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrInvalidMaxSize is returned when the given max size is not positive.
var ErrInvalidMaxSize = errors.New("max size must be > 0")

// LRUExpireCache is a cache that returns the most recently accessed keys
// with a ttl beyond which entries are forcibly expired.
type LRUExpireCache[V any] struct {
	lock sync.Mutex

	maxSize      int
	evictionList list.List
	entries      map[string]*list.Element
}

// NewLRUExpireCache creates an expiring cache with the given size.
func NewLRUExpireCache[V any](maxSize int) (*LRUExpireCache[V], error) {
	if maxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}

	return &LRUExpireCache[V]{
		maxSize: maxSize,
		entries: map[string]*list.Element{},
	}, nil
}

type cacheEntry[V any] struct {
	key        string
	value      V
	expireTime time.Time
}

// Add adds the value to the cache at key with the specified ttl.
func (c *LRUExpireCache[V]) Add(key string, value V, ttl time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()

	oldElement, ok := c.entries[key]
	if ok {
		c.evictionList.MoveToFront(oldElement)
		oldElement.Value.(*cacheEntry[V]).value = value
		oldElement.Value.(*cacheEntry[V]).expireTime = time.Now().Add(ttl)
		return
	}

	if c.evictionList.Len() >= c.maxSize {
		toEvict := c.evictionList.Back()
		c.evictionList.Remove(toEvict)
		delete(c.entries, toEvict.Value.(*cacheEntry[V]).key)
	}

	element := c.evictionList.PushFront(&cacheEntry[V]{
		key:        key,
		value:      value,
		expireTime: time.Now().Add(ttl),
	})
	c.entries[key] = element
}

// Get returns the value at the given key and updates its position in the
// eviction list. Expired entries are removed on access.
func (c *LRUExpireCache[V]) Get(key string) (V, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var zero V
	element, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if time.Now().After(element.Value.(*cacheEntry[V]).expireTime) {
		c.evictionList.Remove(element)
		delete(c.entries, key)
		return zero, false
	}

	c.evictionList.MoveToFront(element)

	return element.Value.(*cacheEntry[V]).value, true
}

// Remove removes the entry at the given key.
func (c *LRUExpireCache[V]) Remove(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return
	}

	c.evictionList.Remove(element)
	delete(c.entries, key)
}

// Len returns the number of entries, including ones already expired but not
// yet evicted.
func (c *LRUExpireCache[V]) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.evictionList.Len()
}
