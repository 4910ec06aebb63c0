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
	"github.com/pawsync-team/pawsync/api/types"
)

// Schema fixes the field set of one collection. Rules are validator tags
// keyed by field name and are applied to every write.
type Schema struct {
	// Name is the collection this schema validates.
	Name types.EntityType

	// Rules maps field names to validator rule tags, e.g. "required".
	Rules map[string]interface{}
}

// DefaultSchemas returns the collection schemas of the pet-breeding
// platform. Field rules cover the required columns of the mapped remote
// tables; unlisted fields pass through unvalidated.
func DefaultSchemas() []*Schema {
	return []*Schema{
		{
			Name: types.EntityBreed,
			Rules: map[string]interface{}{
				"name": "required,min=1",
			},
		},
		{
			Name: types.EntityPet,
			Rules: map[string]interface{}{
				"name":     "required,min=1",
				"breed_id": "omitempty,min=1",
			},
		},
		{
			Name: types.EntityKennel,
			Rules: map[string]interface{}{
				"name": "required,min=1",
			},
		},
		{
			Name: types.EntityLitter,
			Rules: map[string]interface{}{
				"kennel_id": "omitempty,min=1",
			},
		},
		{
			Name: types.EntityContact,
			Rules: map[string]interface{}{
				"name": "required,min=1",
			},
		},
		{
			Name:  types.EntityDictionary,
			Rules: map[string]interface{}{},
		},
		{
			Name:  types.EntityView,
			Rules: map[string]interface{}{},
		},
	}
}
