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

// Package memory implements the remote backend interface in memory, for
// tests and offline development.
package memory

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	gotime "time"

	"github.com/rs/xid"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/sync"
)

// ErrRowNotFound is returned by FindOne when no row has the given id.
var ErrRowNotFound = errors.NotFound("row not found").WithCode("ErrRowNotFound")

// ErrUnavailable is returned while failure injection is on.
var ErrUnavailable = errors.Unavailable("remote is unavailable").WithCode("ErrRemoteUnavailable")

// publishTimeout is how long a fan-out waits on a full subscriber before
// dropping the event for that subscriber.
const publishTimeout = 100 * gotime.Millisecond

type row struct {
	doc    *types.Document
	source string
}

type subscriber struct {
	id     string
	mu     gosync.Mutex
	closed bool
	events chan sync.RemoteEvent
}

// publish delivers the event unless the subscription was torn down. Sending
// and closing share the same lock so a cancelled subscription never closes
// the channel under a blocked sender.
func (s *subscriber) publish(event sync.RemoteEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	case <-gotime.After(publishTimeout):
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Remote is an in-memory remote backend. Every push is applied to a table
// map and fanned out to realtime subscribers, echoes included, exactly as
// the real backend does.
type Remote struct {
	mu     gosync.Mutex
	tables map[types.EntityType]map[string]row
	subs   map[types.EntityType]map[string]*subscriber

	failing   bool
	pushCount int
}

// New creates an empty in-memory remote.
func New() *Remote {
	return &Remote{
		tables: make(map[types.EntityType]map[string]row),
		subs:   make(map[types.EntityType]map[string]*subscriber),
	}
}

// SetFailing toggles failure injection: while on, pushes and pulls fail
// with ErrUnavailable as if the backend were unreachable.
func (r *Remote) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// PushCount returns the number of accepted pushes.
func (r *Remote) PushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushCount
}

// Seed stores rows without notifying subscribers, as server-side fixtures.
func (r *Remote) Seed(collection types.EntityType, docs ...*types.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.table(collection)
	for _, doc := range docs {
		table[doc.ID] = row{doc: doc.DeepCopy(), source: sync.SourceRemote}
	}
}

// Pull returns all rows of the collection ordered by modified_on
// descending.
func (r *Remote) Pull(_ context.Context, collection types.EntityType) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return nil, fmt.Errorf("pull %s: %w", collection, ErrUnavailable)
	}

	table := r.table(collection)
	docs := make([]*types.Document, 0, len(table))
	for _, stored := range table {
		docs = append(docs, stored.doc.DeepCopy())
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].ModifiedOn.Equal(docs[j].ModifiedOn) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].ModifiedOn.After(docs[j].ModifiedOn)
	})

	return docs, nil
}

// Push applies one row mutation and notifies subscribers, including the
// pusher itself. Echo suppression is the client's job.
func (r *Remote) Push(
	_ context.Context,
	collection types.EntityType,
	op types.Operation,
	doc *types.Document,
	source string,
) error {
	r.mu.Lock()

	if r.failing {
		r.mu.Unlock()
		return fmt.Errorf("push %s/%s: %w", collection, doc.ID, ErrUnavailable)
	}

	stored := doc.DeepCopy()
	if op == types.OpDelete {
		stored.Deleted = true
	}

	table := r.table(collection)
	table[doc.ID] = row{doc: stored, source: source}
	r.pushCount++

	event := sync.RemoteEvent{
		Collection: collection,
		Op:         op,
		Doc:        stored.DeepCopy(),
		Source:     source,
	}
	subs := make([]*subscriber, 0, len(r.subs[collection]))
	for _, sub := range r.subs[collection] {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.publish(event)
	}

	return nil
}

// FindOne returns the row with the given id.
func (r *Remote) FindOne(
	_ context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, ErrUnavailable)
	}

	stored, ok := r.table(collection)[id]
	if !ok {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, ErrRowNotFound)
	}
	return stored.doc.DeepCopy(), nil
}

// Subscribe opens a realtime subscription for the collection. The channel
// closes when the context ends.
func (r *Remote) Subscribe(
	ctx context.Context,
	collection types.EntityType,
) (<-chan sync.RemoteEvent, error) {
	sub := &subscriber{
		id:     xid.New().String(),
		events: make(chan sync.RemoteEvent, 64),
	}

	r.mu.Lock()
	if r.subs[collection] == nil {
		r.subs[collection] = make(map[string]*subscriber)
	}
	r.subs[collection][sub.id] = sub
	r.mu.Unlock()

	go func() {
		<-ctx.Done()

		r.mu.Lock()
		delete(r.subs[collection], sub.id)
		r.mu.Unlock()
		sub.close()
	}()

	return sub.events, nil
}

// ServerWrite mutates a row as if another writer changed it on the backend,
// notifying subscribers with the server-side source marker.
func (r *Remote) ServerWrite(
	collection types.EntityType,
	op types.Operation,
	doc *types.Document,
) {
	r.mu.Lock()

	stored := doc.DeepCopy()
	if op == types.OpDelete {
		stored.Deleted = true
	}
	r.table(collection)[doc.ID] = row{doc: stored, source: sync.SourceRemote}

	event := sync.RemoteEvent{
		Collection: collection,
		Op:         op,
		Doc:        stored.DeepCopy(),
		Source:     sync.SourceRemote,
	}
	subs := make([]*subscriber, 0, len(r.subs[collection]))
	for _, sub := range r.subs[collection] {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.publish(event)
	}
}

func (r *Remote) table(collection types.EntityType) map[string]row {
	if r.tables[collection] == nil {
		r.tables[collection] = make(map[string]row)
	}
	return r.tables[collection]
}
