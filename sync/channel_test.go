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
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/pkg/locker"
	"github.com/pawsync-team/pawsync/store"
)

// gatedRemote counts pushes and holds each one until the gate opens.
type gatedRemote struct {
	gate chan struct{}

	mu     gosync.Mutex
	pushed []string
}

func newGatedRemote() *gatedRemote {
	return &gatedRemote{gate: make(chan struct{})}
}

func (r *gatedRemote) Pull(context.Context, types.EntityType) ([]*types.Document, error) {
	return nil, nil
}

func (r *gatedRemote) Push(
	_ context.Context,
	_ types.EntityType,
	_ types.Operation,
	doc *types.Document,
	_ string,
) error {
	<-r.gate

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, doc.ID)
	return nil
}

func (r *gatedRemote) FindOne(
	_ context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	return nil, fmt.Errorf("find %s/%s: no such row", collection, id)
}

func (r *gatedRemote) Subscribe(
	ctx context.Context,
	_ types.EntityType,
) (<-chan RemoteEvent, error) {
	events := make(chan RemoteEvent)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return events, nil
}

func (r *gatedRemote) pushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushed)
}

func newGatedChannel(t *testing.T, queue *RetryQueue) (*Channel, *gatedRemote, *store.Store) {
	t.Helper()

	s := store.New(store.DefaultSchemas())
	assert.NoError(t, s.Initialize(context.Background()))

	remote := newGatedRemote()
	conf := &Config{}
	conf.ensureDefaults()

	ch := newChannel(
		types.EntityPet, s, remote, NewResolver(conf.ConflictTolerance, gotime.Now),
		queue, conf, "rxdb:test-replica", NewMetrics(nil), locker.New(),
	)
	return ch, remote, s
}

func TestPushLanes(t *testing.T) {
	ctx := context.Background()

	t.Run("the same mutation enqueued twice pushes once test", func(t *testing.T) {
		ch, remote, _ := newGatedChannel(t, nil)

		stamp := gotime.Now()
		doc := &types.Document{
			ID:         "rex",
			Fields:     map[string]interface{}{"name": "Rex"},
			ModifiedOn: stamp,
			Sync:       types.SyncMeta{Origin: types.OriginLocal},
		}

		ch.enqueuePush(ctx, doc.ID, pushTask{op: types.OpUpdate, doc: doc})
		ch.enqueuePush(ctx, doc.ID, pushTask{op: types.OpUpdate, doc: doc})
		close(remote.gate)

		assert.Eventually(t, func() bool {
			return remote.pushCount() == 1
		}, 3*gotime.Second, 10*gotime.Millisecond)

		gotime.Sleep(50 * gotime.Millisecond)
		assert.Equal(t, 1, remote.pushCount())
	})

	t.Run("a newer mutation of the same document still pushes test", func(t *testing.T) {
		ch, remote, _ := newGatedChannel(t, nil)
		close(remote.gate)

		stamp := gotime.Now()
		doc := &types.Document{
			ID:         "rex",
			Fields:     map[string]interface{}{"name": "Rex"},
			ModifiedOn: stamp,
			Sync:       types.SyncMeta{Origin: types.OriginLocal},
		}
		newer := doc.DeepCopy()
		newer.ModifiedOn = stamp.Add(gotime.Millisecond)

		ch.enqueuePush(ctx, doc.ID, pushTask{op: types.OpUpdate, doc: doc})
		ch.enqueuePush(ctx, newer.ID, pushTask{op: types.OpUpdate, doc: newer})

		assert.Eventually(t, func() bool {
			return remote.pushCount() == 2
		}, 3*gotime.Second, 10*gotime.Millisecond)
	})
}

func TestPushPending(t *testing.T) {
	ctx := context.Background()

	t.Run("documents in the retry queue are not re-enqueued test", func(t *testing.T) {
		queue, err := OpenRetryQueue(":memory:")
		assert.NoError(t, err)
		defer func() { assert.NoError(t, queue.Close()) }()

		ch, remote, s := newGatedChannel(t, queue)
		close(remote.gate)

		retrying, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "queued-pet",
			Fields: map[string]interface{}{"name": "Waldo"},
		})
		assert.NoError(t, err)
		_, err = queue.Enqueue(ctx, types.EntityPet, types.OpUpdate, retrying)
		assert.NoError(t, err)

		_, err = s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "free-pet",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)

		assert.NoError(t, ch.pushPending(ctx))

		assert.Eventually(t, func() bool {
			return remote.pushCount() == 1
		}, 3*gotime.Second, 10*gotime.Millisecond)

		gotime.Sleep(50 * gotime.Millisecond)
		remote.mu.Lock()
		defer remote.mu.Unlock()
		assert.Equal(t, []string{"free-pet"}, remote.pushed)
	})
}
