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

// Package entity bridges the document store's change stream into reactive
// cells consumed by UI layers: per-collection list and total-count cells,
// a selected-entity cell per collection, and per-tab loaded-count
// bookkeeping.
package entity

import (
	"context"
	"fmt"
	gosync "sync"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/cache"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/pkg/reactive"
	"github.com/pawsync-team/pawsync/query"
	"github.com/pawsync-team/pawsync/store"
	"github.com/pawsync-team/pawsync/sync"
)

var (
	// ErrNotReady is returned when the facade did not finish warming up
	// within the caller's deadline.
	ErrNotReady = errors.Unavailable("entity facade is not ready").WithCode("ErrFacadeNotReady")

	// ErrUnknownCollection is returned for entity types the store has no
	// schema for.
	ErrUnknownCollection = errors.InvalidArgument(
		"unknown collection",
	).WithCode("ErrUnknownCollection")
)

const (
	// DefaultPageSize is the page size the view-all affordance compares
	// loaded counts against.
	DefaultPageSize = 50

	// DefaultWarmupTimeout bounds how long GetEntityStore polls for
	// initialization before giving up.
	DefaultWarmupTimeout = 5 * gotime.Second

	// lookupCacheSize and lookupCacheTTL bound the remote point-lookup
	// cache.
	lookupCacheSize = 256
	lookupCacheTTL  = 30 * gotime.Second
)

// EntityStore exposes the reactive list and total-count state of one
// collection.
type EntityStore struct {
	collection types.EntityType
	list       *reactive.Cell[[]*types.Document]
	total      *reactive.Cell[int]
}

// Collection returns the entity type this store serves.
func (s *EntityStore) Collection() types.EntityType { return s.collection }

// List returns the reactive cell holding all live documents of the
// collection, sorted by id.
func (s *EntityStore) List() *reactive.Cell[[]*types.Document] { return s.list }

// Total returns the reactive cell holding the live-document count.
func (s *EntityStore) Total() *reactive.Cell[int] { return s.total }

// Option configures a Facade.
type Option func(*Facade)

// WithPageSize sets the page size the view-all decision compares against.
func WithPageSize(size int) Option {
	return func(f *Facade) {
		if size > 0 {
			f.pageSize = size
		}
	}
}

// WithWarmupTimeout bounds GetEntityStore's initialization wait.
func WithWarmupTimeout(timeout gotime.Duration) Option {
	return func(f *Facade) {
		if timeout > 0 {
			f.warmupTimeout = timeout
		}
	}
}

// Facade owns the reactive cells of every collection. All state flows from
// the store's change stream; UI layers subscribe to cells and never touch
// the store directly.
type Facade struct {
	store   *store.Store
	queries *query.Engine

	// remote serves point lookups for ids absent locally. May be nil, in
	// which case FetchAndSelectEntity is local-only.
	remote  sync.Remote
	lookups *cache.LRUExpireCache[*types.Document]

	pageSize      int
	warmupTimeout gotime.Duration

	mu        gosync.Mutex
	stores    map[types.EntityType]*EntityStore
	selected  map[types.EntityType]*reactive.Cell[*types.Document]
	tabCounts *reactive.Cell[map[types.TabKey]int]

	initialized *reactive.Cell[bool]
	initOnce    gosync.Once
	cancel      context.CancelFunc
	watchers    gosync.WaitGroup

	logger logging.Logger
}

// New creates a facade over the given store. The remote may be nil.
func New(s *store.Store, remote sync.Remote, opts ...Option) *Facade {
	lookups, _ := cache.NewLRUExpireCache[*types.Document](lookupCacheSize)

	facade := &Facade{
		store:         s,
		queries:       query.New(s),
		remote:        remote,
		lookups:       lookups,
		pageSize:      DefaultPageSize,
		warmupTimeout: DefaultWarmupTimeout,
		stores:        make(map[types.EntityType]*EntityStore),
		selected:      make(map[types.EntityType]*reactive.Cell[*types.Document]),
		tabCounts:     reactive.NewCell(map[types.TabKey]int{}),
		initialized:   reactive.NewCell(false),
		logger:        logging.New("entity"),
	}
	for _, opt := range opts {
		opt(facade)
	}
	return facade
}

// Initialize prepares the store, builds the per-collection cells and starts
// the change-stream watchers. It is idempotent: concurrent callers during
// startup all resolve once the first initialization completes.
func (f *Facade) Initialize(ctx context.Context) error {
	var initErr error
	f.initOnce.Do(func() {
		if err := f.store.Initialize(ctx); err != nil {
			initErr = fmt.Errorf("initialize store: %w", err)
			return
		}

		watchCtx, cancel := context.WithCancel(context.Background())
		f.cancel = cancel

		for _, collection := range f.store.Collections() {
			if err := f.startWatcher(watchCtx, collection); err != nil {
				initErr = fmt.Errorf("watch %s: %w", collection, err)
				cancel()
				return
			}
		}

		f.initialized.Set(true)
	})
	if initErr != nil {
		return initErr
	}

	// A concurrent caller may land here while the winning caller is still
	// inside the once; await the flip instead of racing it.
	waitCtx, cancel := context.WithTimeout(ctx, f.warmupTimeout)
	defer cancel()
	if err := reactive.Await(waitCtx, f.initialized, func(ready bool) bool { return ready }); err != nil {
		return fmt.Errorf("await initialization: %w", ErrNotReady)
	}
	return nil
}

// Initialized returns the cell that flips true once initialization is done.
func (f *Facade) Initialized() *reactive.Cell[bool] {
	return f.initialized
}

// Close stops the change-stream watchers.
func (f *Facade) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	f.watchers.Wait()
}

// GetEntityStore returns the reactive store of the collection, polling with
// a bounded timeout while the facade is still warming up.
func (f *Facade) GetEntityStore(
	ctx context.Context,
	collection types.EntityType,
) (*EntityStore, error) {
	waitCtx, cancel := context.WithTimeout(ctx, f.warmupTimeout)
	defer cancel()
	if err := reactive.Await(waitCtx, f.initialized, func(ready bool) bool { return ready }); err != nil {
		return nil, fmt.Errorf("get entity store of %s: %w", collection, ErrNotReady)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[collection]
	if !ok {
		return nil, fmt.Errorf("get entity store of %s: %w", collection, ErrUnknownCollection)
	}
	return s, nil
}

// GetSelectedEntity returns the selected-document cell of the collection.
// The cell holds nil until a selection is made.
func (f *Facade) GetSelectedEntity(collection types.EntityType) *reactive.Cell[*types.Document] {
	f.mu.Lock()
	defer f.mu.Unlock()

	cell, ok := f.selected[collection]
	if !ok {
		cell = reactive.NewCell[*types.Document](nil)
		f.selected[collection] = cell
	}
	return cell
}

// SelectEntity publishes the document on the collection's selection cell.
func (f *Facade) SelectEntity(collection types.EntityType, doc *types.Document) {
	f.GetSelectedEntity(collection).Set(doc)
}

// FetchAndSelectEntity fetches the document local-first, falling back to a
// remote point lookup when absent locally, and publishes it on the
// selection cell. Remote hits are written into the local store so the next
// lookup is local.
func (f *Facade) FetchAndSelectEntity(
	ctx context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	doc, err := f.store.FindOne(ctx, collection, id)
	switch {
	case err == nil:
		f.SelectEntity(collection, doc)
		return doc, nil
	case !errors.Is(err, store.ErrDocumentNotFound):
		return nil, fmt.Errorf("fetch %s/%s: %w", collection, id, err)
	}

	if f.remote == nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", collection, id, store.ErrDocumentNotFound)
	}

	cacheKey := fmt.Sprintf("%s/%s", collection, id)
	if cached, ok := f.lookups.Get(cacheKey); ok {
		f.SelectEntity(collection, cached)
		return cached, nil
	}

	remote, err := f.remote.FindOne(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s from remote: %w", collection, id, err)
	}
	f.lookups.Add(cacheKey, remote, lookupCacheTTL)

	// BulkUpsert keeps the remote origin so the write never re-pushes.
	if _, err := f.store.BulkUpsert(ctx, collection, []*types.Document{remote}); err != nil {
		f.logger.Warnf("cache remote lookup %s/%s locally: %s", collection, id, err)
	}

	f.SelectEntity(collection, remote)
	return remote, nil
}

// ApplyFilters answers a cursor-paginated query against the collection.
func (f *Facade) ApplyFilters(
	ctx context.Context,
	collection types.EntityType,
	filters []types.Filter,
	opts types.QueryOptions,
) (*types.Page, error) {
	return f.queries.ApplyFilters(ctx, collection, filters, opts)
}

// startWatcher builds the collection's cells and keeps them fed from the
// change stream.
func (f *Facade) startWatcher(ctx context.Context, collection types.EntityType) error {
	docs, err := f.store.Find(context.Background(), collection, nil)
	if err != nil {
		return err
	}

	entityStore := &EntityStore{
		collection: collection,
		list:       reactive.NewCell(docs),
		total:      reactive.NewCell(len(docs)),
	}
	f.mu.Lock()
	f.stores[collection] = entityStore
	f.mu.Unlock()

	sub, err := f.store.Subscribe(collection)
	if err != nil {
		return err
	}

	f.watchers.Add(1)
	go func() {
		defer f.watchers.Done()
		defer f.store.Unsubscribe(collection, sub)

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}
				f.refresh(collection, entityStore)
			}
		}
	}()

	return nil
}

// refresh recomputes the list and total cells from the store. Events carry
// the changed documents, but rebuilding from a snapshot keeps the cells
// correct under event drops on slow consumers.
func (f *Facade) refresh(collection types.EntityType, entityStore *EntityStore) {
	docs, err := f.store.Find(context.Background(), collection, nil)
	if err != nil {
		f.logger.Warnf("refresh %s: %s", collection, err)
		return
	}

	entityStore.list.Set(docs)
	entityStore.total.Set(len(docs))

	f.refreshSelection(collection, docs)
}

// refreshSelection keeps the selected document in step with store changes,
// clearing it when the document was removed.
func (f *Facade) refreshSelection(collection types.EntityType, docs []*types.Document) {
	f.mu.Lock()
	cell, ok := f.selected[collection]
	f.mu.Unlock()
	if !ok {
		return
	}

	current := cell.Value()
	if current == nil {
		return
	}

	for _, doc := range docs {
		if doc.ID == current.ID {
			if !doc.ModifiedOn.Equal(current.ModifiedOn) {
				cell.Set(doc)
			}
			return
		}
	}
	cell.Set(nil)
}
