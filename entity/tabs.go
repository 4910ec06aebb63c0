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

package entity

import (
	"context"
	"fmt"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/pkg/reactive"
)

// ErrInvalidTabDescriptor is returned when a tab descriptor cannot be
// resolved into a query.
var ErrInvalidTabDescriptor = errors.InvalidArgument(
	"invalid tab descriptor",
).WithCode("ErrInvalidTabDescriptor")

// QueryTab resolves a tab descriptor into a scoped cursor query: child tabs
// page over the child table's rows whose parent field equals the entity id.
func (f *Facade) QueryTab(
	ctx context.Context,
	entityID string,
	tab types.TabDescriptor,
	opts types.QueryOptions,
) (*types.Page, error) {
	filters, collection, err := tabScope(entityID, tab)
	if err != nil {
		return nil, err
	}
	return f.queries.ApplyFilters(ctx, collection, filters, opts)
}

// WatchTab resolves a tab descriptor into a live view: a cell holding the
// scoped rows, refreshed from the child table's change stream. The returned
// stop function releases the subscription.
func (f *Facade) WatchTab(
	ctx context.Context,
	entityID string,
	tab types.TabDescriptor,
) (*reactive.Cell[[]*types.Document], func(), error) {
	filters, collection, err := tabScope(entityID, tab)
	if err != nil {
		return nil, nil, err
	}

	docs, err := f.store.Find(ctx, collection, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("watch tab on %s: %w", collection, err)
	}
	view := reactive.NewCell(docs)

	sub, err := f.store.Subscribe(collection)
	if err != nil {
		return nil, nil, fmt.Errorf("watch tab on %s: %w", collection, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer f.store.Unsubscribe(collection, sub)

		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
				refreshed, err := f.store.Find(context.Background(), collection, filters)
				if err != nil {
					f.logger.Warnf("refresh tab view on %s: %s", collection, err)
					continue
				}
				view.Set(refreshed)
			}
		}
	}()

	return view, cancel, nil
}

// GetTabLoadedCounts returns the reactive loaded-count map keyed by
// (entityId, tabId).
func (f *Facade) GetTabLoadedCounts() *reactive.Cell[map[types.TabKey]int] {
	return f.tabCounts
}

// SetTabLoadedCount records how many rows a tab has loaded.
func (f *Facade) SetTabLoadedCount(key types.TabKey, count int) {
	f.tabCounts.Update(func(counts map[types.TabKey]int) map[types.TabKey]int {
		next := make(map[types.TabKey]int, len(counts)+1)
		for k, v := range counts {
			next[k] = v
		}
		next[key] = count
		return next
	})
}

// ShowViewAll reports whether a tab should offer the view-all affordance:
// only when the loaded count reached the page size, implying more rows may
// exist.
func (f *Facade) ShowViewAll(key types.TabKey) bool {
	return f.tabCounts.Value()[key] >= f.pageSize
}

func tabScope(entityID string, tab types.TabDescriptor) ([]types.Filter, types.EntityType, error) {
	if tab.Type != types.TabTypeChild || tab.ChildTable == nil {
		return nil, "", fmt.Errorf("tab type %q: %w", tab.Type, ErrInvalidTabDescriptor)
	}
	if tab.ChildTable.ParentField == "" || tab.ChildTable.Table == "" {
		return nil, "", fmt.Errorf("child table of tab: %w", ErrInvalidTabDescriptor)
	}

	filters := []types.Filter{{
		Field:  tab.ChildTable.ParentField,
		Equals: entityID,
	}}
	return filters, tab.ChildTable.Table, nil
}
