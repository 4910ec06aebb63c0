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

package store

import (
	"sync"

	"github.com/rs/xid"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/cmap"
)

// eventBufferSize is the buffer of a subscription's event channel.
const eventBufferSize = 256

// Change is one document mutation inside a change event.
type Change struct {
	Op  types.Operation
	Doc *types.Document
}

// ChangeEvent is delivered to subscribers of a collection's change stream.
// A bulk upsert produces a single event carrying all its changes.
type ChangeEvent struct {
	Collection types.EntityType
	Changes    []Change
}

// Subscription receives the change events of one collection in write order.
type Subscription struct {
	id     string
	mu     sync.Mutex
	closed bool
	events chan ChangeEvent
}

func newSubscription() *Subscription {
	return &Subscription{
		id:     xid.New().String(),
		events: make(chan ChangeEvent, eventBufferSize),
	}
}

// ID returns the id of this subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the event channel of this subscription.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Close closes this subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// publish delivers the event without blocking: publication happens under
// the store's write lock and a stuck subscriber must not stall writers. A
// full buffer drops the event; the replication channel recovers dropped
// writes through its periodic pending scan.
func (s *Subscription) publish(event ChangeEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// publisher fans change events out to the subscribers of one collection.
type publisher struct {
	collection types.EntityType
	subs       *cmap.Map[string, *Subscription]
	logger     logging.Logger
}

func newPublisher(collection types.EntityType) *publisher {
	return &publisher{
		collection: collection,
		subs:       cmap.New[string, *Subscription](),
		logger:     logging.New("store"),
	}
}

func (p *publisher) subscribe() *Subscription {
	sub := newSubscription()
	p.subs.Set(sub.id, sub)
	return sub
}

func (p *publisher) unsubscribe(sub *Subscription) {
	p.subs.Delete(sub.id, func(_ *Subscription, exists bool) bool {
		return exists
	})
	sub.Close()
}

// publish delivers the event to every subscriber. Slow subscribers have the
// event dropped rather than blocking the writer.
func (p *publisher) publish(event ChangeEvent) {
	for _, sub := range p.subs.Values() {
		if ok := sub.publish(event); !ok {
			p.logger.Warnf(
				"drop change event of %s for subscription %s",
				p.collection,
				sub.ID(),
			)
		}
	}
}
