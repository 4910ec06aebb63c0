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

package store

import (
	"github.com/hashicorp/go-memdb"

	"github.com/pawsync-team/pawsync/api/types"
)

// buildMemDBSchema maps every collection to one table with a unique id
// index. Sorting on payload fields is done by the query engine, so the id
// index is the only one the tables need.
func buildMemDBSchema(schemas map[types.EntityType]*Schema) *memdb.DBSchema {
	tables := make(map[string]*memdb.TableSchema, len(schemas))

	for name := range schemas {
		tables[string(name)] = &memdb.TableSchema{
			Name: string(name),
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		}
	}

	return &memdb.DBSchema{Tables: tables}
}
