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

// Package store implements the local document store backed by an in-memory
// database. It owns all documents of the engine: every collection of the
// platform is one table, writes are schema-validated, deletions are
// tombstones, and each collection exposes a change stream delivering events
// in write order.
package store

import (
	"context"
	"fmt"
	gosync "sync"
	gotime "time"

	"github.com/hashicorp/go-memdb"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/errors"
	"github.com/pawsync-team/pawsync/pkg/reactive"
	"github.com/pawsync-team/pawsync/pkg/validation"
)

var (
	// ErrNotInitialized is returned when an operation is issued before
	// Initialize has completed. Callers should await readiness and retry.
	ErrNotInitialized = errors.FailedPrecond("store is not initialized").WithCode("ErrStoreNotInitialized")

	// ErrCollectionNotFound is returned when the collection has no schema.
	ErrCollectionNotFound = errors.NotFound("collection not found").WithCode("ErrCollectionNotFound")

	// ErrDocumentInvalid is returned when a document fails schema checks.
	ErrDocumentInvalid = errors.InvalidArgument("document is invalid").WithCode("ErrDocumentInvalid")

	// ErrDocumentNotFound is returned when no document has the given id.
	ErrDocumentNotFound = errors.NotFound("document not found").WithCode("ErrDocumentNotFound")

	// ErrDocumentAlreadyExists is returned by Insert when the id is taken.
	ErrDocumentAlreadyExists = errors.AlreadyExists("document already exists").WithCode("ErrDocumentAlreadyExists")
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to stamp mutations.
func WithClock(clock func() gotime.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// Store is the local document store. All mutation goes through its API;
// documents handed out are deep copies and must not be mutated in place.
type Store struct {
	schemas map[types.EntityType]*Schema
	clock   func() gotime.Time
	logger  logging.Logger

	db   *memdb.MemDB
	pubs map[types.EntityType]*publisher

	// writeMu serializes commits and event publication so the change
	// stream of a collection observes events in write order.
	writeMu gosync.Mutex

	initOnce    gosync.Once
	initErr     error
	initialized *reactive.Cell[bool]
}

// New creates a store for the given collection schemas. Initialize must be
// called before any operation.
func New(schemas []*Schema, opts ...Option) *Store {
	byName := make(map[types.EntityType]*Schema, len(schemas))
	for _, schema := range schemas {
		byName[schema.Name] = schema
	}

	s := &Store{
		schemas:     byName,
		clock:       gotime.Now,
		logger:      logging.New("store"),
		pubs:        make(map[types.EntityType]*publisher),
		initialized: reactive.NewCell(false),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Initialize builds the underlying tables. It is idempotent: concurrent and
// repeated callers all observe the result of the first run.
func (s *Store) Initialize(_ context.Context) error {
	s.initOnce.Do(func() {
		db, err := memdb.NewMemDB(buildMemDBSchema(s.schemas))
		if err != nil {
			s.initErr = fmt.Errorf("new memdb: %w", err)
			return
		}

		s.db = db
		for name := range s.schemas {
			s.pubs[name] = newPublisher(name)
		}
		s.initialized.Set(true)
		s.logger.Infof("store initialized with %d collections", len(s.schemas))
	})

	return s.initErr
}

// Initialized exposes readiness as a reactive cell so callers can await
// startup instead of polling.
func (s *Store) Initialized() *reactive.Cell[bool] {
	return s.initialized
}

// Close closes the store.
func (s *Store) Close() error {
	for _, pub := range s.pubs {
		for _, sub := range pub.subs.Values() {
			pub.unsubscribe(sub)
		}
	}
	return nil
}

// Collections returns the collection names this store holds.
func (s *Store) Collections() []types.EntityType {
	names := make([]types.EntityType, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	return names
}

// Subscribe returns a subscription to the change stream of the collection.
func (s *Store) Subscribe(collection types.EntityType) (*Subscription, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	pub, ok := s.pubs[collection]
	if !ok {
		return nil, fmt.Errorf("subscribe %s: %w", collection, ErrCollectionNotFound)
	}
	return pub.subscribe(), nil
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Store) Unsubscribe(collection types.EntityType, sub *Subscription) {
	if pub, ok := s.pubs[collection]; ok {
		pub.unsubscribe(sub)
	}
}

// Insert persists a new document. It fails if the id is already taken or the
// document does not satisfy the collection schema.
func (s *Store) Insert(
	_ context.Context,
	collection types.EntityType,
	doc *types.Document,
) (*types.Document, error) {
	if err := s.validate(collection, doc); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	if existing, err := s.findInTxn(txn, collection, doc.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", collection, doc.ID, ErrDocumentAlreadyExists)
	}

	stored := doc.DeepCopy()
	stored.ModifiedOn = s.clock()
	stored.Deleted = false
	stored.Sync = types.SyncMeta{Origin: types.OriginLocal}

	if err := txn.Insert(string(collection), stored); err != nil {
		return nil, fmt.Errorf("insert %s/%s: %w", collection, doc.ID, err)
	}
	txn.Commit()

	s.pubs[collection].publish(ChangeEvent{
		Collection: collection,
		Changes:    []Change{{Op: types.OpInsert, Doc: stored.DeepCopy()}},
	})

	return stored.DeepCopy(), nil
}

// Upsert inserts or replaces the document with the same id. Applying the
// same upsert twice leaves the store unchanged: a write whose payload equals
// the stored one is a no-op and emits no event.
func (s *Store) Upsert(
	_ context.Context,
	collection types.EntityType,
	doc *types.Document,
) (*types.Document, error) {
	if err := s.validate(collection, doc); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := s.findInTxn(txn, collection, doc.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil && sameContent(existing, doc) {
		txn.Abort()
		return existing.DeepCopy(), nil
	}

	stored := doc.DeepCopy()
	stored.ModifiedOn = s.clock()
	stored.Sync = types.SyncMeta{Origin: types.OriginLocal}

	if err := txn.Insert(string(collection), stored); err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", collection, doc.ID, err)
	}
	txn.Commit()

	op := types.OpInsert
	if existing != nil {
		op = types.OpUpdate
	}
	s.pubs[collection].publish(ChangeEvent{
		Collection: collection,
		Changes:    []Change{{Op: op, Doc: stored.DeepCopy()}},
	})

	return stored.DeepCopy(), nil
}

// BulkUpsert applies a batch of remote-origin documents atomically with
// respect to the change stream: subscribers observe one batched event. The
// remote modification stamps are preserved so conflict resolution can keep
// comparing them.
func (s *Store) BulkUpsert(
	_ context.Context,
	collection types.EntityType,
	docs []*types.Document,
) ([]*types.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := s.schemas[collection]; !ok {
		return nil, fmt.Errorf("bulk upsert %s: %w", collection, ErrCollectionNotFound)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	now := s.clock()
	changes := make([]Change, 0, len(docs))
	stored := make([]*types.Document, 0, len(docs))

	for _, doc := range docs {
		if doc.ID == "" {
			s.logger.Warnf("skip remote document of %s without id", collection)
			continue
		}

		existing, err := s.findInTxn(txn, collection, doc.ID)
		if err != nil {
			return nil, err
		}

		applied := doc.DeepCopy()
		if applied.ModifiedOn.IsZero() {
			applied.ModifiedOn = now
		}
		applied.Sync = types.SyncMeta{
			Origin:   types.OriginRemote,
			SyncedAt: now,
		}

		if err := txn.Insert(string(collection), applied); err != nil {
			return nil, fmt.Errorf("bulk upsert %s/%s: %w", collection, doc.ID, err)
		}

		op := types.OpInsert
		switch {
		case applied.Deleted:
			op = types.OpDelete
		case existing != nil:
			op = types.OpUpdate
		}
		changes = append(changes, Change{Op: op, Doc: applied.DeepCopy()})
		stored = append(stored, applied.DeepCopy())
	}
	txn.Commit()

	if len(changes) > 0 {
		s.pubs[collection].publish(ChangeEvent{
			Collection: collection,
			Changes:    changes,
		})
	}

	return stored, nil
}

// FindOne returns the document with the given id, including tombstones.
func (s *Store) FindOne(
	_ context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	doc, err := s.findInTxn(txn, collection, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, ErrDocumentNotFound)
	}

	return doc.DeepCopy(), nil
}

// Find returns all live documents of the collection matching the filters.
// Tombstones are excluded.
func (s *Store) Find(
	_ context.Context,
	collection types.EntityType,
	filters []types.Filter,
) ([]*types.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	m, err := newMatcher(filters)
	if err != nil {
		return nil, err
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(string(collection), "id")
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}

	var docs []*types.Document
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc := raw.(*types.Document)
		if doc.Deleted {
			continue
		}
		if m.match(doc) {
			docs = append(docs, doc.DeepCopy())
		}
	}

	return docs, nil
}

// All returns every document of the collection including tombstones. The
// replication channel uses it to find writes that never reached the remote.
func (s *Store) All(
	_ context.Context,
	collection types.EntityType,
) ([]*types.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, ok := s.schemas[collection]; !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, ErrCollectionNotFound)
	}

	txn := s.db.Txn(false)
	defer txn.Abort()

	iter, err := txn.Get(string(collection), "id")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}

	var docs []*types.Document
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		docs = append(docs, raw.(*types.Document).DeepCopy())
	}
	return docs, nil
}

// Remove marks the document as deleted. The tombstone is kept so the
// deletion can propagate to the remote backend; Compact purges it later.
// Removing an already-deleted document is a no-op.
func (s *Store) Remove(
	_ context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := s.findInTxn(txn, collection, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("remove %s/%s: %w", collection, id, ErrDocumentNotFound)
	}
	if existing.Deleted {
		txn.Abort()
		return existing.DeepCopy(), nil
	}

	stored := existing.DeepCopy()
	stored.Deleted = true
	stored.ModifiedOn = s.clock()
	stored.Sync = types.SyncMeta{Origin: types.OriginLocal}

	if err := txn.Insert(string(collection), stored); err != nil {
		return nil, fmt.Errorf("remove %s/%s: %w", collection, id, err)
	}
	txn.Commit()

	s.pubs[collection].publish(ChangeEvent{
		Collection: collection,
		Changes:    []Change{{Op: types.OpDelete, Doc: stored.DeepCopy()}},
	})

	return stored.DeepCopy(), nil
}

// Compact physically purges tombstones whose deletion has already reached
// the remote backend. It returns the number of purged documents.
func (s *Store) Compact(_ context.Context, collection types.EntityType) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	iter, err := txn.Get(string(collection), "id")
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", collection, err)
	}

	var purge []*types.Document
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc := raw.(*types.Document)
		if doc.Deleted && propagated(doc) {
			purge = append(purge, doc)
		}
	}

	for _, doc := range purge {
		if err := txn.Delete(string(collection), doc); err != nil {
			return 0, fmt.Errorf("compact %s/%s: %w", collection, doc.ID, err)
		}
	}
	txn.Commit()

	return len(purge), nil
}

// MarkSynced updates the replication bookkeeping of a document after a
// successful push or a failed attempt. It emits no change event and does not
// touch the modification stamp.
func (s *Store) MarkSynced(
	_ context.Context,
	collection types.EntityType,
	id string,
	syncedAt gotime.Time,
	retries int,
) error {
	if err := s.ready(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := s.findInTxn(txn, collection, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("mark synced %s/%s: %w", collection, id, ErrDocumentNotFound)
	}

	stored := existing.DeepCopy()
	stored.Sync.SyncedAt = syncedAt
	stored.Sync.Retries = retries

	if err := txn.Insert(string(collection), stored); err != nil {
		return fmt.Errorf("mark synced %s/%s: %w", collection, id, err)
	}
	txn.Commit()

	return nil
}

func (s *Store) ready() error {
	if !s.initialized.Value() {
		return ErrNotInitialized
	}
	return nil
}

func (s *Store) validate(collection types.EntityType, doc *types.Document) error {
	if err := s.ready(); err != nil {
		return err
	}

	schema, ok := s.schemas[collection]
	if !ok {
		return fmt.Errorf("validate %s: %w", collection, ErrCollectionNotFound)
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document id is required: %w", ErrDocumentInvalid)
	}
	if err := validation.ValidateDocID(doc.ID); err != nil {
		return fmt.Errorf("%s: %w", err, ErrDocumentInvalid)
	}
	if err := validation.ValidateFields(doc.Fields, schema.Rules); err != nil {
		return fmt.Errorf("%s: %w", err, ErrDocumentInvalid)
	}

	return nil
}

func (s *Store) findInTxn(
	txn *memdb.Txn,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	if _, ok := s.schemas[collection]; !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, ErrCollectionNotFound)
	}

	raw, err := txn.First(string(collection), "id", id)
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*types.Document), nil
}

// sameContent reports whether two documents carry the same payload and
// deletion state; stamps and bookkeeping are ignored.
func sameContent(a, b *types.Document) bool {
	if a.Deleted != b.Deleted || a.Merged != b.Merged {
		return false
	}
	return looseDeepEqual(a.Fields, b.Fields)
}

func looseDeepEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !looseEqual(av, bv) {
			return false
		}
	}
	return true
}

func propagated(doc *types.Document) bool {
	if doc.Sync.Origin == types.OriginRemote {
		return true
	}
	return !doc.Sync.SyncedAt.IsZero() && !doc.Sync.SyncedAt.Before(doc.ModifiedOn)
}
