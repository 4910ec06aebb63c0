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

package query_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/query"
	"github.com/pawsync-team/pawsync/store"
)

func newTestEngine(t *testing.T) (*query.Engine, *store.Store) {
	t.Helper()

	s := store.New(store.DefaultSchemas())
	assert.NoError(t, s.Initialize(context.Background()))
	return query.New(s), s
}

func seedPets(t *testing.T, s *store.Store, count int) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < count; i++ {
		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID: fmt.Sprintf("pet-%02d", i),
			Fields: map[string]interface{}{
				"name":     fmt.Sprintf("Pet %02d", i),
				"breed_id": "akita",
			},
		})
		assert.NoError(t, err)
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("cursor walk yields every document exactly once test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 5)

		opts := types.QueryOptions{
			Limit:   2,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		}

		var collected []string
		pages := 0
		for {
			page, err := engine.ApplyFilters(ctx, types.EntityPet, nil, opts)
			assert.NoError(t, err)
			assert.Equal(t, 5, page.Total)
			assert.Equal(t, page.NextCursor != "", page.HasMore)

			for _, doc := range page.Records {
				collected = append(collected, doc.ID)
			}
			pages++

			if !page.HasMore {
				break
			}
			opts.Cursor = page.NextCursor
		}

		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{"pet-00", "pet-01", "pet-02", "pet-03", "pet-04"}, collected)
	})

	t.Run("cursor survives deletion of the cursor row test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 5)

		opts := types.QueryOptions{
			Limit:   2,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		}
		page, err := engine.ApplyFilters(ctx, types.EntityPet, nil, opts)
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-00", "pet-01"}, ids(page.Records))

		// Deleting the row the cursor points at must not skip or repeat the
		// remaining rows.
		_, err = s.Remove(ctx, types.EntityPet, "pet-01")
		assert.NoError(t, err)

		opts.Cursor = page.NextCursor
		page, err = engine.ApplyFilters(ctx, types.EntityPet, nil, opts)
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-02", "pet-03"}, ids(page.Records))
	})

	t.Run("descending order with id tiebreak test", func(t *testing.T) {
		engine, s := newTestEngine(t)

		for _, id := range []string{"b", "a", "c"} {
			_, err := s.Insert(ctx, types.EntityPet, &types.Document{
				ID:     id,
				Fields: map[string]interface{}{"name": "Same"},
			})
			assert.NoError(t, err)
		}

		page, err := engine.ApplyFilters(ctx, types.EntityPet, nil, types.QueryOptions{
			Limit:   3,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Desc},
		})
		assert.NoError(t, err)

		// Equal sort values fall back to ascending id.
		assert.Equal(t, []string{"a", "b", "c"}, ids(page.Records))
		assert.False(t, page.HasMore)
	})

	t.Run("mismatched cursor restarts from the first page test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 4)

		opts := types.QueryOptions{
			Limit:   2,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		}
		page, err := engine.ApplyFilters(ctx, types.EntityPet, nil, opts)
		assert.NoError(t, err)
		assert.True(t, page.HasMore)

		// Same cursor under different ordering: ignored, first page again.
		restarted, err := engine.ApplyFilters(ctx, types.EntityPet, nil, types.QueryOptions{
			Limit:   2,
			Cursor:  page.NextCursor,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Desc},
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-03", "pet-02"}, ids(restarted.Records))
	})

	t.Run("malformed cursor is ignored test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 3)

		page, err := engine.ApplyFilters(ctx, types.EntityPet, nil, types.QueryOptions{
			Limit:   2,
			Cursor:  "not-a-cursor",
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-00", "pet-01"}, ids(page.Records))
	})

	t.Run("filtered totals count matches not collection test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 3)

		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "stray",
			Fields: map[string]interface{}{"name": "Stray", "breed_id": "husky"},
		})
		assert.NoError(t, err)

		page, err := engine.ApplyFilters(ctx, types.EntityPet, []types.Filter{
			{Field: "breed_id", Equals: "akita"},
		}, types.QueryOptions{Limit: 10})
		assert.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Len(t, page.Records, 3)
	})

	t.Run("cursor is bound to its filters test", func(t *testing.T) {
		engine, s := newTestEngine(t)
		seedPets(t, s, 4)

		opts := types.QueryOptions{
			Limit:   2,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		}
		page, err := engine.ApplyFilters(ctx, types.EntityPet, []types.Filter{
			{Field: "breed_id", Equals: "akita"},
		}, opts)
		assert.NoError(t, err)
		assert.True(t, page.HasMore)

		// Reusing the cursor without the filter restarts from scratch.
		restarted, err := engine.ApplyFilters(ctx, types.EntityPet, nil, types.QueryOptions{
			Limit:   2,
			Cursor:  page.NextCursor,
			OrderBy: types.OrderBy{Field: "name", Direction: types.Asc},
		})
		assert.NoError(t, err)
		assert.Equal(t, []string{"pet-00", "pet-01"}, ids(restarted.Records))
	})
}

func ids(docs []*types.Document) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ID)
	}
	return out
}
