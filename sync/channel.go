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
	"context"
	"fmt"
	gosync "sync"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/cmap"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/pkg/locker"
	"github.com/pawsync-team/pawsync/store"
)

// Channel replicates one collection with its remote table. Its lifecycle is
// idle → pulling → pushing → realtime-subscribed, falling into error with
// backoff back to pulling, and into paused when stopped.
type Channel struct {
	collection types.EntityType
	store      *store.Store
	remote     Remote
	resolver   *Resolver
	queue      *RetryQueue
	conf       *Config

	// marker is this replica's _sync_source value; events carrying it are
	// echoes of our own pushes and are skipped.
	marker string

	metrics *Metrics
	status  *statusTracker
	logger  logging.Logger

	// locks serializes pushes of the same document id between the change
	// stream lanes and the retry processor.
	locks *locker.Locker
	lanes *cmap.Map[string, *pushLane]

	mu     gosync.Mutex
	sub    *store.Subscription
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// pushLane is the FIFO of not-yet-pushed mutations of one document id.
// Successive local mutations of a document are pushed in write order. The
// newest enqueued op and stamp are kept so the same mutation arriving twice,
// once from the pending scan and once from the change stream, pushes once.
type pushLane struct {
	tasks     []pushTask
	running   bool
	lastOp    types.Operation
	lastStamp gotime.Time
}

type pushTask struct {
	op  types.Operation
	doc *types.Document
}

func newChannel(
	collection types.EntityType,
	s *store.Store,
	remote Remote,
	resolver *Resolver,
	queue *RetryQueue,
	conf *Config,
	marker string,
	metrics *Metrics,
	locks *locker.Locker,
) *Channel {
	return &Channel{
		collection: collection,
		store:      s,
		remote:     remote,
		resolver:   resolver,
		queue:      queue,
		conf:       conf,
		marker:     marker,
		metrics:    metrics,
		status:     newStatusTracker(collection),
		logger:     logging.New("sync", logging.NewField("collection", string(collection))),
		locks:      locks,
		lanes:      cmap.New[string, *pushLane](),
	}
}

// Start begins replicating until Stop is called or the context is done.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop pauses the channel and releases its subscriptions. A stopped channel
// emits no further pushes and applies no further pulls.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.status.setState(StatePaused)
}

// Status returns the operational snapshot of this channel.
func (c *Channel) Status(ctx context.Context) Status {
	queued := 0
	if c.queue != nil {
		if count, err := c.queue.ActiveCount(ctx); err == nil {
			queued = count
		}
	}
	return c.status.snapshot(queued)
}

func (c *Channel) run(ctx context.Context) {
	attempt := 0
	for {
		err := c.cycle(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		c.status.setState(StateError)
		c.status.recordError(err)
		c.logger.Warnf("replication cycle failed: %s", err)

		select {
		case <-ctx.Done():
			return
		case <-gotime.After(c.conf.backoff(attempt)):
		}
		attempt++
	}
}

// cycle runs one pull → push → realtime pass. It returns nil only when the
// context ended; any failure bounces the channel back to pulling.
func (c *Channel) cycle(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.status.setState(StatePulling)
	if err := c.initialPull(ctx); err != nil {
		return err
	}

	c.status.setState(StatePushing)
	sub, err := c.store.Subscribe(c.collection)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		c.pushLoop(ctx, sub)
	}()

	// Tearing the cycle down cancels the push loop before waiting on it,
	// so an error exit cannot deadlock on pushDone.
	defer func() {
		cancel()
		<-pushDone
		c.store.Unsubscribe(c.collection, sub)
		c.mu.Lock()
		c.sub = nil
		c.mu.Unlock()
	}()

	// Writes made while the channel was down never hit the change stream;
	// enqueue them before going realtime.
	if err := c.pushPending(ctx); err != nil {
		return err
	}

	// A change event dropped on a full subscription would otherwise leave
	// its write unpushed until the next cycle restart.
	reconcileDone := make(chan struct{})
	go func() {
		defer close(reconcileDone)
		c.reconcileLoop(ctx)
	}()
	defer func() {
		cancel()
		<-reconcileDone
	}()

	events, err := c.remote.Subscribe(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("subscribe realtime of %s: %w", c.collection, err)
	}

	c.status.setState(StateRealtime)
	return c.applyLoop(ctx, events)
}

// pushPending enqueues local-origin documents whose latest write has not
// been acknowledged by the remote, including tombstones. Documents already
// sitting in the retry queue are left to the retry processor.
func (c *Channel) pushPending(ctx context.Context) error {
	docs, err := c.store.All(ctx, c.collection)
	if err != nil {
		return err
	}

	queued := make(map[string]bool)
	if c.queue != nil {
		entries, err := c.queue.Active(ctx)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Collection == c.collection {
				queued[entry.Doc.ID] = true
			}
		}
	}

	for _, doc := range docs {
		if doc.Sync.Origin != types.OriginLocal {
			continue
		}
		if !doc.Sync.SyncedAt.IsZero() && !doc.Sync.SyncedAt.Before(doc.ModifiedOn) {
			continue
		}
		if queued[doc.ID] {
			continue
		}

		op := types.OpUpdate
		if doc.Deleted {
			op = types.OpDelete
		}
		c.enqueuePush(ctx, doc.ID, pushTask{op: op, doc: doc})
	}

	return nil
}

// reconcileLoop periodically re-runs the pending scan while the channel is
// realtime, picking up writes whose change event was dropped.
func (c *Channel) reconcileLoop(ctx context.Context) {
	ticker := gotime.NewTicker(c.conf.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.pushPending(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warnf("reconcile pending pushes: %s", err)
			}
		}
	}
}

// initialPull fetches all remote rows and applies them through the conflict
// resolver. Individual bad rows are logged and skipped rather than aborting
// the whole pull.
func (c *Channel) initialPull(ctx context.Context) error {
	docs, err := c.remote.Pull(ctx, c.collection)
	if err != nil {
		c.metrics.observePull(c.collection, err, 0)
		return fmt.Errorf("pull %s: %w", c.collection, err)
	}

	batch := make([]*types.Document, 0, len(docs))
	for _, doc := range docs {
		winner, ok, err := c.resolveAgainstLocal(ctx, doc)
		if err != nil {
			c.logger.Warnf("skip pulled document %s/%s: %s", c.collection, doc.ID, err)
			continue
		}
		if ok {
			batch = append(batch, winner)
		}
	}

	if _, err := c.store.BulkUpsert(ctx, c.collection, batch); err != nil {
		c.metrics.observePull(c.collection, err, 0)
		return fmt.Errorf("apply pull of %s: %w", c.collection, err)
	}

	c.metrics.observePull(c.collection, nil, len(batch))
	c.status.markPull(gotime.Now())
	return nil
}

// pushLoop forwards local-origin changes to the remote backend. Writes that
// originate from an applied remote change are echoes and never pushed; this
// is what keeps a pulled document from bouncing back out.
func (c *Channel) pushLoop(ctx context.Context, sub *store.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			for _, change := range event.Changes {
				if change.Doc.Sync.Origin == types.OriginRemote {
					continue
				}
				c.enqueuePush(ctx, change.Doc.ID, pushTask{op: change.Op, doc: change.Doc})
			}
		}
	}
}

// enqueuePush appends the task to the document's lane and starts a drainer
// if none is running. Lanes keep pushes of one id in write order while
// different ids push in parallel. A task matching the lane's newest op and
// stamp is the startup overlap of the pending scan and the buffered change
// stream; it is enqueued once.
func (c *Channel) enqueuePush(ctx context.Context, id string, task pushTask) {
	start := false
	duplicate := false
	c.lanes.Upsert(id, func(lane *pushLane, exists bool) *pushLane {
		if !exists {
			lane = &pushLane{}
		}
		if exists && task.op == lane.lastOp && !lane.lastStamp.IsZero() &&
			task.doc.ModifiedOn.Equal(lane.lastStamp) {
			duplicate = true
			return lane
		}

		lane.lastOp = task.op
		lane.lastStamp = task.doc.ModifiedOn
		lane.tasks = append(lane.tasks, task)
		if !lane.running {
			lane.running = true
			start = true
		}
		return lane
	})
	if duplicate {
		return
	}

	c.status.addPending(1)
	if start {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.drainLane(ctx, id)
		}()
	}
}

func (c *Channel) drainLane(ctx context.Context, id string) {
	for {
		var task pushTask
		empty := false
		c.lanes.Upsert(id, func(lane *pushLane, _ bool) *pushLane {
			if len(lane.tasks) == 0 {
				lane.running = false
				empty = true
				return lane
			}
			task = lane.tasks[0]
			lane.tasks = lane.tasks[1:]
			return lane
		})
		if empty {
			c.lanes.Delete(id, func(lane *pushLane, exists bool) bool {
				return exists && !lane.running && len(lane.tasks) == 0
			})
			return
		}

		c.pushOne(ctx, task)
		c.status.addPending(-1)
	}
}

// pushOne pushes a single mutation. Failures are absorbed into the durable
// retry queue; the UI keeps reading and writing local state regardless.
func (c *Channel) pushOne(ctx context.Context, task pushTask) {
	if ctx.Err() != nil {
		return
	}

	c.locks.Lock(task.doc.ID)
	defer func() { _ = c.locks.Unlock(task.doc.ID) }()

	err := c.remote.Push(ctx, c.collection, task.op, task.doc, c.marker)
	c.metrics.observePush(c.collection, err)
	if err != nil {
		c.status.recordError(fmt.Errorf("push %s/%s: %w", c.collection, task.doc.ID, err))
		if c.queue != nil {
			if _, qerr := c.queue.Enqueue(ctx, c.collection, task.op, task.doc); qerr != nil {
				c.logger.Errorf("enqueue failed push of %s/%s: %s", c.collection, task.doc.ID, qerr)
			}
		}
		return
	}

	c.status.markPush(gotime.Now())
	if err := c.store.MarkSynced(ctx, c.collection, task.doc.ID, gotime.Now(), 0); err != nil {
		if !errors.Is(err, store.ErrDocumentNotFound) {
			c.logger.Warnf("mark synced %s/%s: %s", c.collection, task.doc.ID, err)
		}
	}
}

// applyLoop applies realtime events until the context ends. A closed event
// channel bounces the cycle so the subscription is re-established.
func (c *Channel) applyLoop(ctx context.Context, events <-chan RemoteEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("realtime subscription of %s closed", c.collection)
			}
			if event.Source == c.marker {
				// Echo of our own push.
				continue
			}
			if err := c.applyRemote(ctx, event); err != nil {
				c.logger.Warnf("apply remote event of %s: %s", c.collection, err)
				c.status.recordError(err)
			}
		}
	}
}

func (c *Channel) applyRemote(ctx context.Context, event RemoteEvent) error {
	doc := event.Doc
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("remote event of %s carries no document", c.collection)
	}
	if event.Op == types.OpDelete {
		doc = doc.DeepCopy()
		doc.Deleted = true
	}

	winner, ok, err := c.resolveAgainstLocal(ctx, doc)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if _, err := c.store.BulkUpsert(ctx, c.collection, []*types.Document{winner}); err != nil {
		return err
	}
	return nil
}

// resolveAgainstLocal runs the incoming remote document through the
// conflict resolver. It reports whether the winner needs to be applied:
// a local win needs no write at all.
func (c *Channel) resolveAgainstLocal(
	ctx context.Context,
	doc *types.Document,
) (*types.Document, bool, error) {
	local, err := c.store.FindOne(ctx, c.collection, doc.ID)
	if err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
		return nil, false, err
	}

	winner, who := c.resolver.Resolve(local, doc)
	if local != nil && who != WinnerRemote {
		c.metrics.observeConflict(c.collection, who)
	}
	if who == WinnerLocal {
		return nil, false, nil
	}

	return winner, true, nil
}
