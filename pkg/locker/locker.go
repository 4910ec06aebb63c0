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
 * This file was written with reference to moby/locker.
 *   https://github.com/moby/locker
 */

// Package locker provides named mutexes. The replication channel uses one
// lock per document id so that successive pushes of the same document are
// serialized while pushes of different documents proceed in parallel.
//
// Lock references are automatically cleaned up on Unlock if nothing else is
// waiting for the lock.
package locker

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSuchLock is returned when the requested lock does not exist.
var ErrNoSuchLock = errors.New("no such lock")

// Locker provides a locking mechanism based on the passed in reference name.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockCtr
}

// lockCtr represents a lock with a given name together with its waiter
// count, which decides when the entry can be dropped from the map.
type lockCtr struct {
	mu      sync.Mutex
	waiters int32
}

func (l *lockCtr) inc() {
	atomic.AddInt32(&l.waiters, 1)
}

func (l *lockCtr) dec() {
	atomic.AddInt32(&l.waiters, -1)
}

func (l *lockCtr) count() int32 {
	return atomic.LoadInt32(&l.waiters)
}

// New creates a new Locker.
func New() *Locker {
	return &Locker{
		locks: make(map[string]*lockCtr),
	}
}

// Lock locks the mutex with the given name. If it doesn't exist, one is
// created.
func (l *Locker) Lock(name string) {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	if !exists {
		nameLock = &lockCtr{}
		l.locks[name] = nameLock
	}

	// The waiter count is incremented inside the main mutex so the lock is
	// not deleted while Lock and Unlock race.
	nameLock.inc()
	l.mu.Unlock()

	nameLock.mu.Lock()
	nameLock.dec()
}

// TryLock locks the mutex with the given name if it is not already held.
func (l *Locker) TryLock(name string) bool {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	if !exists {
		nameLock = &lockCtr{}
		l.locks[name] = nameLock
	}

	nameLock.inc()
	l.mu.Unlock()

	succeeded := nameLock.mu.TryLock()
	nameLock.dec()

	return succeeded
}

// Unlock unlocks the mutex with the given name. If no other caller is
// waiting on the lock, its entry is deleted.
func (l *Locker) Unlock(name string) error {
	l.mu.Lock()
	nameLock, exists := l.locks[name]
	if !exists {
		l.mu.Unlock()
		return ErrNoSuchLock
	}

	if nameLock.count() == 0 {
		delete(l.locks, name)
	}
	nameLock.mu.Unlock()

	l.mu.Unlock()
	return nil
}
