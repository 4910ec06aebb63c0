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
	"math/rand"
	gotime "time"
)

// Default values of the replication configuration.
const (
	DefaultRetryCeiling      = 3
	DefaultRetryInterval     = 5 * gotime.Second
	DefaultBackoffBase       = 100 * gotime.Millisecond
	DefaultBackoffMax        = 3 * gotime.Second
	DefaultConflictTolerance = gotime.Millisecond
)

// Config configures the replication channels.
type Config struct {
	// RetryCeiling is the maximum number of attempts for a failing push
	// before its queue entry is abandoned.
	RetryCeiling int

	// RetryInterval is how often the durable retry queue is processed and
	// not-yet-acknowledged local writes are re-enqueued.
	RetryInterval gotime.Duration

	// BackoffBase and BackoffMax bound the exponential backoff used when a
	// channel falls into the error state and schedules a new pull.
	BackoffBase gotime.Duration
	BackoffMax  gotime.Duration

	// ConflictTolerance is the window within which a local and a remote
	// stamp count as the same instant.
	ConflictTolerance gotime.Duration
}

func (c *Config) ensureDefaults() {
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = DefaultRetryCeiling
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.ConflictTolerance <= 0 {
		c.ConflictTolerance = DefaultConflictTolerance
	}
}

// backoff returns the wait before the given attempt, doubling from the base
// up to the cap with ±20% jitter.
func (c *Config) backoff(attempt int) gotime.Duration {
	wait := c.BackoffBase
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= c.BackoffMax {
			wait = c.BackoffMax
			break
		}
	}

	jitter := 0.8 + 0.4*rand.Float64()
	return gotime.Duration(float64(wait) * jitter)
}
