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

package sync_test

import (
	"context"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/store"
	"github.com/pawsync-team/pawsync/sync"
	"github.com/pawsync-team/pawsync/sync/memory"
)

const (
	waitFor = 3 * gotime.Second
	tick    = 10 * gotime.Millisecond
)

func newTestSyncer(t *testing.T) (*sync.Syncer, *store.Store, *memory.Remote) {
	t.Helper()

	s := store.New(store.DefaultSchemas())
	assert.NoError(t, s.Initialize(context.Background()))

	remote := memory.New()
	queue, err := sync.OpenRetryQueue(":memory:")
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, queue.Close())
	})

	syncer := sync.New(s, remote, queue, sync.Config{
		// Keep the ticker out of the way; tests drain the queue manually.
		RetryInterval: gotime.Hour,
	})
	return syncer, s, remote
}

func awaitRealtime(t *testing.T, syncer *sync.Syncer, collection types.EntityType) {
	t.Helper()

	assert.Eventually(t, func() bool {
		status, err := syncer.StatusOf(context.Background(), collection)
		return err == nil && status.State == sync.StateRealtime
	}, waitFor, tick)
}

func TestSyncer(t *testing.T) {
	ctx := context.Background()

	t.Run("initial pull applies remote rows locally test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		remote.Seed(types.EntityBreed,
			&types.Document{
				ID:         "akita",
				Fields:     map[string]interface{}{"name": "Akita"},
				ModifiedOn: gotime.Now().Add(-gotime.Hour),
			},
			&types.Document{
				ID:         "husky",
				Fields:     map[string]interface{}{"name": "Husky"},
				ModifiedOn: gotime.Now().Add(-gotime.Hour),
			},
		)

		syncer.Start(ctx, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityBreed)

		docs, err := s.Find(ctx, types.EntityBreed, nil)
		assert.NoError(t, err)
		assert.Len(t, docs, 2)
		for _, doc := range docs {
			assert.Equal(t, types.OriginRemote, doc.Sync.Origin)
		}

		// Pulled rows never push back out.
		assert.Equal(t, 0, remote.PushCount())
	})

	t.Run("local write pushes once and its echo is skipped test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		syncer.Start(ctx, types.EntityPet)
		awaitRealtime(t, syncer, types.EntityPet)

		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			return remote.PushCount() == 1
		}, waitFor, tick)

		// The realtime echo of our own push must not produce another local
		// write that pushes again.
		gotime.Sleep(100 * gotime.Millisecond)
		assert.Equal(t, 1, remote.PushCount())

		found, err := s.FindOne(ctx, types.EntityPet, "rex")
		assert.NoError(t, err)
		assert.Equal(t, types.OriginLocal, found.Sync.Origin)
		assert.False(t, found.Sync.SyncedAt.IsZero())
	})

	t.Run("server write is applied through the resolver test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		syncer.Start(ctx, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityBreed)

		remote.ServerWrite(types.EntityBreed, types.OpInsert, &types.Document{
			ID:         "akita",
			Fields:     map[string]interface{}{"name": "Akita"},
			ModifiedOn: gotime.Now(),
		})

		assert.Eventually(t, func() bool {
			doc, err := s.FindOne(ctx, types.EntityBreed, "akita")
			return err == nil && doc.Fields["name"] == "Akita"
		}, waitFor, tick)

		// Applied remote writes never bounce back out.
		gotime.Sleep(100 * gotime.Millisecond)
		assert.Equal(t, 0, remote.PushCount())
	})

	t.Run("server delete tombstones the local document test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		remote.Seed(types.EntityBreed, &types.Document{
			ID:         "akita",
			Fields:     map[string]interface{}{"name": "Akita"},
			ModifiedOn: gotime.Now().Add(-gotime.Hour),
		})

		syncer.Start(ctx, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityBreed)

		remote.ServerWrite(types.EntityBreed, types.OpDelete, &types.Document{
			ID:         "akita",
			Fields:     map[string]interface{}{"name": "Akita"},
			ModifiedOn: gotime.Now(),
		})

		assert.Eventually(t, func() bool {
			doc, err := s.FindOne(ctx, types.EntityBreed, "akita")
			return err == nil && doc.Deleted
		}, waitFor, tick)
	})

	t.Run("newer local write survives the initial pull test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		_, err := s.Insert(ctx, types.EntityBreed, &types.Document{
			ID:     "akita",
			Fields: map[string]interface{}{"name": "Akita Inu"},
		})
		assert.NoError(t, err)

		remote.Seed(types.EntityBreed, &types.Document{
			ID:         "akita",
			Fields:     map[string]interface{}{"name": "Akita"},
			ModifiedOn: gotime.Now().Add(-gotime.Hour),
		})

		syncer.Start(ctx, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityBreed)

		doc, err := s.FindOne(ctx, types.EntityBreed, "akita")
		assert.NoError(t, err)
		assert.Equal(t, "Akita Inu", doc.Fields["name"])
	})

	t.Run("writes made before start are pushed test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)

		syncer.Start(ctx, types.EntityPet)

		assert.Eventually(t, func() bool {
			return remote.PushCount() == 1
		}, waitFor, tick)

		pushed, err := remote.FindOne(ctx, types.EntityPet, "rex")
		assert.NoError(t, err)
		assert.Equal(t, "Rex", pushed.Fields["name"])
	})

	t.Run("failed pushes drain through the retry queue test", func(t *testing.T) {
		syncer, s, remote := newTestSyncer(t)
		defer syncer.StopAll()

		syncer.Start(ctx, types.EntityPet)
		awaitRealtime(t, syncer, types.EntityPet)

		remote.SetFailing(true)

		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)

		// The failed push lands in the durable queue.
		assert.Eventually(t, func() bool {
			status, err := syncer.StatusOf(ctx, types.EntityPet)
			return err == nil && status.PendingCount == 1
		}, waitFor, tick)
		assert.Equal(t, 0, remote.PushCount())

		remote.SetFailing(false)

		succeeded, abandoned, err := syncer.ProcessRetryQueue(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 0, abandoned)
		assert.Equal(t, 1, remote.PushCount())

		pushed, err := remote.FindOne(ctx, types.EntityPet, "rex")
		assert.NoError(t, err)
		assert.Equal(t, "Rex", pushed.Fields["name"])
	})

	t.Run("stop sync pauses the channel test", func(t *testing.T) {
		syncer, _, _ := newTestSyncer(t)
		defer syncer.StopAll()

		syncer.Start(ctx, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityBreed)

		assert.NoError(t, syncer.StopSync(types.EntityBreed))

		_, err := syncer.StatusOf(ctx, types.EntityBreed)
		assert.ErrorIs(t, err, sync.ErrChannelNotFound)
		assert.Equal(t, "ErrChannelNotFound", errors.CodeOf(err))
	})

	t.Run("status reports every started collection test", func(t *testing.T) {
		syncer, _, _ := newTestSyncer(t)
		defer syncer.StopAll()

		syncer.Start(ctx, types.EntityBreed, types.EntityPet)
		awaitRealtime(t, syncer, types.EntityBreed)
		awaitRealtime(t, syncer, types.EntityPet)

		statuses := syncer.Status(ctx)
		assert.Len(t, statuses, 2)
		assert.Equal(t, types.EntityBreed, statuses[0].Collection)
		assert.Equal(t, types.EntityPet, statuses[1].Collection)
	})
}
