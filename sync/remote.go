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

	"github.com/pawsync-team/pawsync/api/types"
)

// Wire values of the _sync_source marker. Every pushed row carries the
// marker of its writer so the echo of a write can be recognized when it
// comes back through the realtime subscription.
const (
	// SourceLocal is the writer class of this engine. The full marker of
	// one replica is "rxdb:<replica-id>".
	SourceLocal = "rxdb"

	// SourceRemote is the writer class of server-side mutations.
	SourceRemote = "supabase"
)

// RemoteEvent is a change notification received from the remote backend.
type RemoteEvent struct {
	// Collection is the table the change happened in.
	Collection types.EntityType

	// Op is the kind of row mutation.
	Op types.Operation

	// Doc is the new row; for deletes it is the tombstone form of the row.
	Doc *types.Document

	// Source is the _sync_source marker of the writer that caused the
	// change. A replica skips events whose source equals its own marker.
	Source string
}

// Remote is the protocol boundary to the backend. Each collection maps to
// one remote table; pulls are ordered by last modification descending,
// pushes are row-level upserts and deletes, and Subscribe delivers realtime
// change notifications.
type Remote interface {
	// Pull fetches all rows of the collection ordered by modified_on
	// descending.
	Pull(ctx context.Context, collection types.EntityType) ([]*types.Document, error)

	// Push applies one row-level mutation, stamping the row with the given
	// _sync_source marker.
	Push(
		ctx context.Context,
		collection types.EntityType,
		op types.Operation,
		doc *types.Document,
		source string,
	) error

	// FindOne fetches a single row by id, for local-miss point lookups.
	FindOne(ctx context.Context, collection types.EntityType, id string) (*types.Document, error)

	// Subscribe opens a realtime subscription for the collection. The
	// returned channel is closed when the context is done or the
	// subscription is torn down.
	Subscribe(ctx context.Context, collection types.EntityType) (<-chan RemoteEvent, error)
}
