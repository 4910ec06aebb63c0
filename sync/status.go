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

package sync

import (
	gosync "sync"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
)

// State is the replication state of one collection's channel.
type State string

const (
	// StateIdle means the channel has not been started.
	StateIdle State = "idle"

	// StatePulling means the initial pull is running.
	StatePulling State = "pulling"

	// StatePushing means the push subscription is being established.
	StatePushing State = "pushing"

	// StateRealtime means the channel is fully up: pushes flow out and the
	// realtime subscription applies remote changes.
	StateRealtime State = "realtime-subscribed"

	// StatePaused means the channel was stopped.
	StatePaused State = "paused"

	// StateError means the last cycle failed; the channel retries with
	// backoff. Local reads and writes keep working meanwhile.
	StateError State = "error"
)

// maxRecentErrors bounds the error ring of a channel status.
const maxRecentErrors = 10

// Status is the operational snapshot of one collection's channel.
type Status struct {
	Collection   types.EntityType
	State        State
	LastPullAt   gotime.Time
	LastPushAt   gotime.Time
	PendingCount int
	RecentErrors []string
}

// statusTracker collects channel status under its own lock so status reads
// never contend with replication work.
type statusTracker struct {
	mu         gosync.Mutex
	collection types.EntityType
	state      State
	lastPullAt gotime.Time
	lastPushAt gotime.Time
	pending    int
	errs       []string
}

func newStatusTracker(collection types.EntityType) *statusTracker {
	return &statusTracker{
		collection: collection,
		state:      StateIdle,
	}
}

func (t *statusTracker) setState(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

func (t *statusTracker) markPull(at gotime.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPullAt = at
}

func (t *statusTracker) markPush(at gotime.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPushAt = at
}

func (t *statusTracker) addPending(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending += delta
	if t.pending < 0 {
		t.pending = 0
	}
}

func (t *statusTracker) recordError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.errs = append(t.errs, err.Error())
	if len(t.errs) > maxRecentErrors {
		t.errs = t.errs[len(t.errs)-maxRecentErrors:]
	}
}

func (t *statusTracker) snapshot(queued int) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	errs := make([]string, len(t.errs))
	copy(errs, t.errs)

	return Status{
		Collection:   t.collection,
		State:        t.state,
		LastPullAt:   t.lastPullAt,
		LastPushAt:   t.lastPushAt,
		PendingCount: t.pending + queued,
		RecentErrors: errs,
	}
}
