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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/sync"
)

func newTestQueue(t *testing.T) *sync.RetryQueue {
	t.Helper()

	queue, err := sync.OpenRetryQueue(":memory:")
	assert.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, queue.Close())
	})
	return queue
}

func TestRetryQueue(t *testing.T) {
	ctx := context.Background()

	doc := &types.Document{
		ID:     "rex",
		Fields: map[string]interface{}{"name": "Rex"},
	}

	t.Run("enqueue and list active entries test", func(t *testing.T) {
		queue := newTestQueue(t)

		entry, err := queue.Enqueue(ctx, types.EntityPet, types.OpUpdate, doc)
		assert.NoError(t, err)
		assert.NotEmpty(t, entry.ID)

		entries, err := queue.Active(ctx)
		assert.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, types.EntityPet, entries[0].Collection)
		assert.Equal(t, types.OpUpdate, entries[0].Op)
		assert.Equal(t, "Rex", entries[0].Doc.Fields["name"])

		count, err := queue.ActiveCount(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("successful retry removes the entry test", func(t *testing.T) {
		queue := newTestQueue(t)

		_, err := queue.Enqueue(ctx, types.EntityPet, types.OpUpdate, doc)
		assert.NoError(t, err)

		succeeded, abandoned, err := queue.Process(ctx, 3,
			func(_ context.Context, _ *sync.RetryEntry) error {
				return nil
			},
		)
		assert.NoError(t, err)
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 0, abandoned)

		count, err := queue.ActiveCount(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("entry is abandoned at the retry ceiling test", func(t *testing.T) {
		queue := newTestQueue(t)

		_, err := queue.Enqueue(ctx, types.EntityPet, types.OpDelete, doc)
		assert.NoError(t, err)

		ceiling := 3
		attempts := 0
		push := func(_ context.Context, _ *sync.RetryEntry) error {
			attempts++
			return fmt.Errorf("remote still down")
		}

		for i := 0; i < ceiling-1; i++ {
			succeeded, abandoned, err := queue.Process(ctx, ceiling, push)
			assert.NoError(t, err)
			assert.Equal(t, 0, succeeded)
			assert.Equal(t, 0, abandoned)
		}

		// The final attempt reaches the ceiling and abandons the entry.
		succeeded, abandoned, err := queue.Process(ctx, ceiling, push)
		assert.NoError(t, err)
		assert.Equal(t, 0, succeeded)
		assert.Equal(t, 1, abandoned)
		assert.Equal(t, ceiling, attempts)

		// Abandoned entries disappear from the active set for good.
		count, err := queue.ActiveCount(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 0, count)

		succeeded, abandoned, err = queue.Process(ctx, ceiling, push)
		assert.NoError(t, err)
		assert.Equal(t, 0, succeeded)
		assert.Equal(t, 0, abandoned)
		assert.Equal(t, ceiling, attempts)
	})

	t.Run("entries are processed oldest first test", func(t *testing.T) {
		queue := newTestQueue(t)

		for i := 0; i < 3; i++ {
			_, err := queue.Enqueue(ctx, types.EntityPet, types.OpUpdate, &types.Document{
				ID:     fmt.Sprintf("pet-%d", i),
				Fields: map[string]interface{}{"name": fmt.Sprintf("Pet %d", i)},
			})
			assert.NoError(t, err)
		}

		var order []string
		_, _, err := queue.Process(ctx, 3, func(_ context.Context, entry *sync.RetryEntry) error {
			order = append(order, entry.Doc.ID)
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-0", "pet-1", "pet-2"}, order)
	})
}
