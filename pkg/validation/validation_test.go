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

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/pkg/validation"
)

func TestValidation(t *testing.T) {
	t.Run("valid document ids", func(t *testing.T) {
		for _, id := range []string{
			"akita",
			"pet-01",
			"a",
			"0breed.pet_1~2:3",
		} {
			assert.NoError(t, validation.ValidateDocID(id), id)
		}
	})

	t.Run("invalid document ids", func(t *testing.T) {
		for _, id := range []string{
			"",
			"-starts-with-dash",
			".starts-with-dot",
			"has space",
			"has/slash",
		} {
			assert.Error(t, validation.ValidateDocID(id), id)
		}
	})

	t.Run("field rules", func(t *testing.T) {
		rules := map[string]interface{}{
			"name":     "required,min=1",
			"breed_id": "omitempty,min=1",
		}

		assert.NoError(t, validation.ValidateFields(map[string]interface{}{
			"name": "Rex",
		}, rules))

		assert.NoError(t, validation.ValidateFields(map[string]interface{}{
			"name":     "Rex",
			"breed_id": "akita",
			"color":    "brown",
		}, rules))

		err := validation.ValidateFields(map[string]interface{}{
			"name": "",
		}, rules)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("no rules accepts anything", func(t *testing.T) {
		assert.NoError(t, validation.ValidateFields(map[string]interface{}{
			"anything": 42,
		}, nil))
	})
}
