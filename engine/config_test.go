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

package engine_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/engine"
)

func TestConfig(t *testing.T) {
	t.Run("defaults are filled in test", func(t *testing.T) {
		conf := engine.NewConfig()

		assert.Equal(t, engine.DefaultLogLevel, conf.LogLevel)
		assert.Equal(t, engine.DefaultRetryQueuePath, conf.RetryQueuePath)
		assert.Equal(t, engine.DefaultPageSize, conf.PageSize)
		assert.Equal(t, engine.DefaultRetryCeiling, conf.Sync.RetryCeiling)
		assert.Equal(t, engine.DefaultRetryInterval, conf.Sync.RetryInterval)
		assert.Equal(t, engine.DefaultBackoffBase, conf.Sync.BackoffBase)
		assert.Equal(t, engine.DefaultBackoffMax, conf.Sync.BackoffMax)
		assert.Equal(t, engine.DefaultConflictTolerance, conf.Sync.ConflictTolerance)
		assert.Len(t, conf.Collections, 7)
		assert.NoError(t, conf.Validate())
	})

	t.Run("validate rejects bad values test", func(t *testing.T) {
		conf := engine.NewConfig()
		conf.LogLevel = "verbose"
		assert.Error(t, conf.Validate())

		conf = engine.NewConfig()
		conf.Supabase.BaseURL = "https://xyz.supabase.co"
		assert.Error(t, conf.Validate())

		conf.Supabase.APIKey = "anon-key"
		assert.NoError(t, conf.Validate())

		conf = engine.NewConfig()
		conf.Collections = []types.EntityType{"goldfish"}
		assert.Error(t, conf.Validate())
	})

	t.Run("config from file test", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		assert.NoError(t, os.WriteFile(path, []byte(`
log-level: debug
retry-queue-path: /tmp/pawsync-retry.db
page-size: 25
collections:
  - breed
  - pet
sync:
  retry-ceiling: 5
  retry-interval: 10s
supabase:
  base-url: https://xyz.supabase.co
  api-key: anon-key
`), 0o644))

		conf, err := engine.NewConfigFromFile(path)
		assert.NoError(t, err)
		assert.Equal(t, "debug", conf.LogLevel)
		assert.Equal(t, "/tmp/pawsync-retry.db", conf.RetryQueuePath)
		assert.Equal(t, 25, conf.PageSize)
		assert.Equal(t, []types.EntityType{types.EntityBreed, types.EntityPet}, conf.Collections)
		assert.Equal(t, 5, conf.Sync.RetryCeiling)
		assert.Equal(t, 10*time.Second, conf.Sync.RetryInterval)

		// Unset fields still fall back to defaults.
		assert.Equal(t, engine.DefaultBackoffBase, conf.Sync.BackoffBase)
	})

	t.Run("missing config file test", func(t *testing.T) {
		_, err := engine.NewConfigFromFile(filepath.Join(t.TempDir(), "absent.yml"))
		assert.Error(t, err)
	})
}
