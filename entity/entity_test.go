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

package entity_test

import (
	"context"
	gosync "sync"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/entity"
	"github.com/pawsync-team/pawsync/store"
	"github.com/pawsync-team/pawsync/sync/memory"
)

const (
	waitFor = 3 * gotime.Second
	tick    = 10 * gotime.Millisecond
)

func newTestFacade(t *testing.T) (*entity.Facade, *store.Store, *memory.Remote) {
	t.Helper()

	s := store.New(store.DefaultSchemas())
	remote := memory.New()
	facade := entity.New(s, remote, entity.WithPageSize(2))

	assert.NoError(t, facade.Initialize(context.Background()))
	t.Cleanup(facade.Close)
	return facade, s, remote
}

func TestFacade(t *testing.T) {
	ctx := context.Background()

	t.Run("initialization is idempotent under concurrency test", func(t *testing.T) {
		s := store.New(store.DefaultSchemas())
		facade := entity.New(s, nil)
		defer facade.Close()

		var wg gosync.WaitGroup
		errs := make([]error, 8)
		for i := 0; i < len(errs); i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = facade.Initialize(ctx)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		assert.True(t, facade.Initialized().Value())
	})

	t.Run("entity store cells follow the change stream test", func(t *testing.T) {
		facade, s, _ := newTestFacade(t)

		breeds, err := facade.GetEntityStore(ctx, types.EntityBreed)
		assert.NoError(t, err)
		assert.Equal(t, 0, breeds.Total().Value())

		_, err = s.Insert(ctx, types.EntityBreed, &types.Document{
			ID:     "akita",
			Fields: map[string]interface{}{"name": "Akita"},
		})
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			return breeds.Total().Value() == 1
		}, waitFor, tick)
		assert.Equal(t, "akita", breeds.List().Value()[0].ID)

		_, err = s.Remove(ctx, types.EntityBreed, "akita")
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			return breeds.Total().Value() == 0
		}, waitFor, tick)
	})

	t.Run("get entity store rejects unknown collections test", func(t *testing.T) {
		facade, _, _ := newTestFacade(t)

		_, err := facade.GetEntityStore(ctx, "unknown")
		assert.ErrorIs(t, err, entity.ErrUnknownCollection)
	})

	t.Run("fetch and select prefers the local copy test", func(t *testing.T) {
		facade, s, remote := newTestFacade(t)

		_, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)

		doc, err := facade.FetchAndSelectEntity(ctx, types.EntityPet, "rex")
		assert.NoError(t, err)
		assert.Equal(t, "Rex", doc.Fields["name"])
		assert.Equal(t, 0, remote.PushCount())

		selected := facade.GetSelectedEntity(types.EntityPet).Value()
		assert.NotNil(t, selected)
		assert.Equal(t, "rex", selected.ID)
	})

	t.Run("fetch and select falls back to a remote point lookup test", func(t *testing.T) {
		facade, s, remote := newTestFacade(t)

		remote.Seed(types.EntityPet, &types.Document{
			ID:         "mia",
			Fields:     map[string]interface{}{"name": "Mia"},
			ModifiedOn: gotime.Now().Add(-gotime.Hour),
		})

		doc, err := facade.FetchAndSelectEntity(ctx, types.EntityPet, "mia")
		assert.NoError(t, err)
		assert.Equal(t, "Mia", doc.Fields["name"])

		// The remote hit is cached locally as a remote-origin write.
		local, err := s.FindOne(ctx, types.EntityPet, "mia")
		assert.NoError(t, err)
		assert.Equal(t, types.OriginRemote, local.Sync.Origin)

		_, err = facade.FetchAndSelectEntity(ctx, types.EntityPet, "absent")
		assert.Error(t, err)
	})

	t.Run("selection follows store updates and removals test", func(t *testing.T) {
		facade, s, _ := newTestFacade(t)

		inserted, err := s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex"},
		})
		assert.NoError(t, err)
		facade.SelectEntity(types.EntityPet, inserted)

		_, err = s.Upsert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rexy"},
		})
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			selected := facade.GetSelectedEntity(types.EntityPet).Value()
			return selected != nil && selected.Fields["name"] == "Rexy"
		}, waitFor, tick)

		_, err = s.Remove(ctx, types.EntityPet, "rex")
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			return facade.GetSelectedEntity(types.EntityPet).Value() == nil
		}, waitFor, tick)
	})

	t.Run("tab loaded counts drive the view-all affordance test", func(t *testing.T) {
		facade, _, _ := newTestFacade(t)

		key := types.TabKey{EntityID: "akita", TabID: "pets"}
		assert.False(t, facade.ShowViewAll(key))

		facade.SetTabLoadedCount(key, 1)
		assert.False(t, facade.ShowViewAll(key))

		// Page size is 2 in this fixture; reaching it implies more rows may
		// exist.
		facade.SetTabLoadedCount(key, 2)
		assert.True(t, facade.ShowViewAll(key))

		counts := facade.GetTabLoadedCounts().Value()
		assert.Equal(t, 2, counts[key])
	})

	t.Run("child tab resolves into a scoped query test", func(t *testing.T) {
		facade, s, _ := newTestFacade(t)

		for _, pet := range []struct{ id, breed string }{
			{"rex", "akita"},
			{"mia", "akita"},
			{"max", "husky"},
		} {
			_, err := s.Insert(ctx, types.EntityPet, &types.Document{
				ID: pet.id,
				Fields: map[string]interface{}{
					"name":     pet.id,
					"breed_id": pet.breed,
				},
			})
			assert.NoError(t, err)
		}

		tab := types.TabDescriptor{
			Type: types.TabTypeChild,
			ChildTable: &types.ChildTable{
				Table:       types.EntityPet,
				ParentField: "breed_id",
			},
		}

		page, err := facade.QueryTab(ctx, "akita", tab, types.QueryOptions{Limit: 10})
		assert.NoError(t, err)
		assert.Equal(t, 2, page.Total)

		_, err = facade.QueryTab(ctx, "akita", types.TabDescriptor{Type: "unknown"}, types.QueryOptions{})
		assert.ErrorIs(t, err, entity.ErrInvalidTabDescriptor)
	})

	t.Run("child tab live view follows the change stream test", func(t *testing.T) {
		facade, s, _ := newTestFacade(t)

		tab := types.TabDescriptor{
			Type: types.TabTypeChild,
			ChildTable: &types.ChildTable{
				Table:       types.EntityPet,
				ParentField: "breed_id",
			},
		}

		view, stop, err := facade.WatchTab(ctx, "akita", tab)
		assert.NoError(t, err)
		defer stop()
		assert.Len(t, view.Value(), 0)

		_, err = s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "rex",
			Fields: map[string]interface{}{"name": "Rex", "breed_id": "akita"},
		})
		assert.NoError(t, err)
		_, err = s.Insert(ctx, types.EntityPet, &types.Document{
			ID:     "max",
			Fields: map[string]interface{}{"name": "Max", "breed_id": "husky"},
		})
		assert.NoError(t, err)

		assert.Eventually(t, func() bool {
			docs := view.Value()
			return len(docs) == 1 && docs[0].ID == "rex"
		}, waitFor, tick)
	})
}
