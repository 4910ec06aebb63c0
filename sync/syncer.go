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

// Package sync keeps the local document store and the remote backend
// eventually consistent in both directions. One channel per collection
// pulls remote rows, pushes local-origin writes and applies realtime
// change notifications through the conflict resolver. Sync failures are
// advisory: local reads and writes keep working while a channel is in the
// error state.
package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	gotime "time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/cmap"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/pkg/locker"
	"github.com/pawsync-team/pawsync/store"
)

// ErrChannelNotFound is returned when no channel runs for the collection.
var ErrChannelNotFound = errors.NotFound("sync channel not found").WithCode("ErrChannelNotFound")

// Option configures a Syncer.
type Option func(*Syncer)

// WithMetricsRegistry registers the sync metrics on the given registry.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(s *Syncer) {
		s.metrics = NewMetrics(reg)
	}
}

// WithClock replaces the wall clock used by the conflict resolver.
func WithClock(clock func() gotime.Time) Option {
	return func(s *Syncer) {
		s.clock = clock
	}
}

// Syncer owns the replication channels of all collections plus the shared
// retry queue processing.
type Syncer struct {
	store  *store.Store
	remote Remote
	queue  *RetryQueue
	conf   *Config

	// marker is this replica's _sync_source wire value.
	marker string

	resolver *Resolver
	metrics  *Metrics
	clock    func() gotime.Time
	locks    *locker.Locker
	channels *cmap.Map[types.EntityType, *Channel]
	logger   logging.Logger

	mu          gosync.Mutex
	retryCancel context.CancelFunc
	retryDone   chan struct{}
}

// New creates a syncer. The queue may be nil, in which case failed pushes
// are dropped after logging; production wiring always passes one.
func New(s *store.Store, remote Remote, queue *RetryQueue, conf Config, opts ...Option) *Syncer {
	conf.ensureDefaults()

	syncer := &Syncer{
		store:    s,
		remote:   remote,
		queue:    queue,
		conf:     &conf,
		marker:   fmt.Sprintf("%s:%s", SourceLocal, uuid.New().String()),
		clock:    gotime.Now,
		locks:    locker.New(),
		channels: cmap.New[types.EntityType, *Channel](),
		logger:   logging.New("sync"),
	}

	for _, opt := range opts {
		opt(syncer)
	}

	if syncer.metrics == nil {
		syncer.metrics = NewMetrics(nil)
	}
	syncer.resolver = NewResolver(syncer.conf.ConflictTolerance, syncer.clock)

	return syncer
}

// Marker returns this replica's _sync_source value.
func (s *Syncer) Marker() string {
	return s.marker
}

// Resolver returns the conflict resolver shared by all channels.
func (s *Syncer) Resolver() *Resolver {
	return s.resolver
}

// Start begins replication for the given collections and starts the retry
// queue processor. Starting an already-started collection is a no-op.
func (s *Syncer) Start(ctx context.Context, collections ...types.EntityType) {
	for _, collection := range collections {
		started := false
		s.channels.Upsert(collection, func(ch *Channel, exists bool) *Channel {
			if exists {
				return ch
			}
			started = true
			return newChannel(
				collection, s.store, s.remote, s.resolver,
				s.queue, s.conf, s.marker, s.metrics, s.locks,
			)
		})
		if started {
			if ch, ok := s.channels.Get(collection); ok {
				ch.Start(ctx)
			}
		}
	}

	s.startRetryLoop(ctx)
}

// StopSync stops replication of one collection and releases its
// subscriptions.
func (s *Syncer) StopSync(collection types.EntityType) error {
	ch, ok := s.channels.Get(collection)
	if !ok {
		return fmt.Errorf("stop sync of %s: %w", collection, ErrChannelNotFound)
	}

	ch.Stop()
	s.channels.Delete(collection, func(_ *Channel, exists bool) bool {
		return exists
	})
	return nil
}

// StopAll stops every channel and the retry processor.
func (s *Syncer) StopAll() {
	for _, collection := range s.channels.Keys() {
		if err := s.StopSync(collection); err != nil {
			s.logger.Warnf("stop sync: %s", err)
		}
	}

	s.mu.Lock()
	cancel := s.retryCancel
	done := s.retryDone
	s.retryCancel = nil
	s.retryDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Status returns the operational snapshot of every channel, sorted by
// collection name.
func (s *Syncer) Status(ctx context.Context) []Status {
	statuses := make([]Status, 0, s.channels.Len())
	for _, ch := range s.channels.Values() {
		statuses = append(statuses, ch.Status(ctx))
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Collection < statuses[j].Collection
	})
	return statuses
}

// StatusOf returns the snapshot of one collection's channel.
func (s *Syncer) StatusOf(ctx context.Context, collection types.EntityType) (Status, error) {
	ch, ok := s.channels.Get(collection)
	if !ok {
		return Status{}, fmt.Errorf("status of %s: %w", collection, ErrChannelNotFound)
	}
	return ch.Status(ctx), nil
}

// ProcessRetryQueue retries every queued push once. Entries that succeed are
// removed; entries that keep failing are abandoned at the retry ceiling.
func (s *Syncer) ProcessRetryQueue(ctx context.Context) (succeeded, abandoned int, err error) {
	if s.queue == nil {
		return 0, 0, nil
	}

	succeeded, abandoned, err = s.queue.Process(ctx, s.conf.RetryCeiling, s.retryPush)
	if err != nil {
		return succeeded, abandoned, err
	}

	if depth, derr := s.queue.ActiveCount(ctx); derr == nil {
		s.metrics.setRetryQueueDepth(depth)
	}
	return succeeded, abandoned, nil
}

func (s *Syncer) retryPush(ctx context.Context, entry *RetryEntry) error {
	s.locks.Lock(entry.Doc.ID)
	defer func() { _ = s.locks.Unlock(entry.Doc.ID) }()

	if err := s.remote.Push(ctx, entry.Collection, entry.Op, entry.Doc, s.marker); err != nil {
		return err
	}

	if err := s.store.MarkSynced(ctx, entry.Collection, entry.Doc.ID, s.clock(), 0); err != nil {
		if !errors.Is(err, store.ErrDocumentNotFound) {
			s.logger.Warnf("mark synced %s/%s: %s", entry.Collection, entry.Doc.ID, err)
		}
	}
	return nil
}

func (s *Syncer) startRetryLoop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.retryCancel != nil || s.queue == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.retryCancel = cancel
	s.retryDone = done

	go func() {
		defer close(done)
		ticker := gotime.NewTicker(s.conf.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := s.ProcessRetryQueue(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warnf("process retry queue: %s", err)
				}
			}
		}
	}()
}
