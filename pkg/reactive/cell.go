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
 */

// Package reactive provides observable value cells. A cell holds a value,
// notifies subscribed observers synchronously on change and supports derived
// cells that recompute when their source changes. The entity facade exposes
// list, count and selection state to the UI through cells.
package reactive

import (
	"context"
	"sync"

	"github.com/rs/xid"
)

// Observer is called with the new value after each change.
type Observer[T any] func(value T)

// Cell is an observable container for a single value. It is safe for use
// from multiple goroutines. Observers are invoked synchronously in the
// goroutine that performed the change, after the value has been stored.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	observers map[string]Observer[T]
}

// NewCell creates a cell holding the given initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:     initial,
		observers: make(map[string]Observer[T]),
	}
}

// Value returns the current value.
func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.value
}

// Set stores the given value and notifies observers.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	observers := make([]Observer[T], 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	c.mu.Unlock()

	// Observers run outside the lock so they can read the cell or
	// subscribe other cells without deadlocking.
	for _, observer := range observers {
		observer(value)
	}
}

// Update applies fn to the current value and stores the result, notifying
// observers. The read-modify-write is atomic with respect to other Updates.
func (c *Cell[T]) Update(fn func(value T) T) T {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	observers := make([]Observer[T], 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	c.mu.Unlock()

	for _, observer := range observers {
		observer(value)
	}
	return value
}

// Subscribe registers the observer and returns a function that removes it.
// The observer is not called with the current value; use Value for that.
func (c *Cell[T]) Subscribe(observer Observer[T]) func() {
	id := xid.New().String()

	c.mu.Lock()
	c.observers[id] = observer
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Derive creates a cell whose value is recomputed from source on every
// change. The returned cell is initialized from the current source value.
func Derive[S, T any](source *Cell[S], compute func(value S) T) *Cell[T] {
	derived := NewCell(compute(source.Value()))
	source.Subscribe(func(value S) {
		derived.Set(compute(value))
	})
	return derived
}

// Await blocks until the cell's value satisfies pred or the context is done.
// If the current value already satisfies pred it returns immediately, so
// concurrent callers racing a state flip all resolve exactly once.
func Await[T any](ctx context.Context, c *Cell[T], pred func(value T) bool) error {
	done := make(chan struct{})
	var once sync.Once

	unsubscribe := c.Subscribe(func(value T) {
		if pred(value) {
			once.Do(func() { close(done) })
		}
	})
	defer unsubscribe()

	// The value may have satisfied pred before the subscription was added.
	if pred(c.Value()) {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
