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

// Package types provides the data types shared between the local store, the
// replication channel and the entity facade.
package types

import (
	"time"
)

// EntityType is the name of a collection in the local store and of its
// mapped table on the remote backend.
type EntityType string

// Entity types of the pet-breeding platform.
const (
	EntityBreed      EntityType = "breed"
	EntityPet        EntityType = "pet"
	EntityKennel     EntityType = "kennel"
	EntityLitter     EntityType = "litter"
	EntityContact    EntityType = "contact"
	EntityDictionary EntityType = "dictionary"
	EntityView       EntityType = "view"
)

// WriteOrigin marks which side authored the last accepted write of a
// document. The replication channel pushes only local-origin writes; writes
// applied from a pull are marked remote so they do not echo back out.
type WriteOrigin string

const (
	// OriginLocal means the write was made by this client.
	OriginLocal WriteOrigin = "local"

	// OriginRemote means the write was applied from the remote backend.
	OriginRemote WriteOrigin = "remote"
)

// SyncMeta is per-document replication bookkeeping. It travels with the
// document and is never deleted independently.
type SyncMeta struct {
	// Origin is the side that authored the last write.
	Origin WriteOrigin `json:"origin"`

	// SyncedAt is when the document was last pushed or pulled.
	SyncedAt time.Time `json:"synced_at"`

	// Retries counts failed pushes of the current revision.
	Retries int `json:"retries"`
}

// Document is a schema-validated record of one collection. Callers must not
// mutate a document obtained from the store; all mutation goes through the
// store's API on a copy.
type Document struct {
	// ID is unique within the collection.
	ID string `json:"id"`

	// Fields holds the entity payload.
	Fields map[string]interface{} `json:"fields"`

	// ModifiedOn reflects the most recent accepted mutation, local or
	// remote.
	ModifiedOn time.Time `json:"modified_on"`

	// Deleted marks a tombstone kept until the deletion has propagated and
	// an explicit compaction pass purges it.
	Deleted bool `json:"_deleted"`

	// Merged marks the result of a structural conflict merge.
	Merged bool `json:"_merged,omitempty"`

	// Sync is the replication bookkeeping of this document.
	Sync SyncMeta `json:"sync"`
}

// DeepCopy returns a deep copy of this document.
func (d *Document) DeepCopy() *Document {
	if d == nil {
		return nil
	}

	clone := *d
	clone.Fields = deepCopyFields(d.Fields)
	return &clone
}

// Field returns the value of the given payload field.
func (d *Document) Field(name string) (interface{}, bool) {
	v, ok := d.Fields[name]
	return v, ok
}

func deepCopyFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	clone := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		clone[k] = deepCopyValue(v)
	}
	return clone
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyFields(val)
	case []interface{}:
		clone := make([]interface{}, len(val))
		for i, elem := range val {
			clone[i] = deepCopyValue(elem)
		}
		return clone
	default:
		return v
	}
}
