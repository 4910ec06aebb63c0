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

package engine

import (
	"fmt"
	"os"
	gotime "time"

	"gopkg.in/yaml.v3"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/sync/supabase"
)

// Default values of the engine configuration.
const (
	DefaultLogLevel       = "info"
	DefaultRetryQueuePath = "pawsync-retry.db"
	DefaultPageSize       = 50

	DefaultRetryCeiling      = 3
	DefaultRetryInterval     = 5 * gotime.Second
	DefaultBackoffBase       = 100 * gotime.Millisecond
	DefaultBackoffMax        = 3 * gotime.Second
	DefaultConflictTolerance = gotime.Millisecond
)

// SyncConf is the replication section of the configuration.
type SyncConf struct {
	RetryCeiling      int             `yaml:"retry-ceiling"`
	RetryInterval     gotime.Duration `yaml:"retry-interval"`
	BackoffBase       gotime.Duration `yaml:"backoff-base"`
	BackoffMax        gotime.Duration `yaml:"backoff-max"`
	ConflictTolerance gotime.Duration `yaml:"conflict-tolerance"`
}

// Config is the configuration for creating an Engine.
type Config struct {
	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log-level"`

	// RetryQueuePath is the SQLite file holding the durable retry queue.
	RetryQueuePath string `yaml:"retry-queue-path"`

	// PageSize is the page size of the entity facade's view-all decision.
	PageSize int `yaml:"page-size"`

	// Collections lists the entity types to replicate. Empty means all.
	Collections []types.EntityType `yaml:"collections"`

	Sync SyncConf `yaml:"sync"`

	// Supabase configures the remote backend. An empty base-url runs the
	// engine local-only on the in-memory remote.
	Supabase supabase.Config `yaml:"supabase"`
}

// NewConfig returns a config with all defaults filled in.
func NewConfig() *Config {
	conf := &Config{}
	conf.ensureDefaultValue()
	return conf
}

// NewConfigFromFile creates a config from the given yaml file.
func NewConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	conf := &Config{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}

	conf.ensureDefaultValue()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level %q", c.LogLevel)
	}

	if c.Supabase.BaseURL != "" && c.Supabase.APIKey == "" {
		return fmt.Errorf("supabase.api-key is required when supabase.base-url is set")
	}

	valid := make(map[types.EntityType]bool, len(allCollections()))
	for _, collection := range allCollections() {
		valid[collection] = true
	}
	for _, collection := range c.Collections {
		if !valid[collection] {
			return fmt.Errorf("unknown collection %q", collection)
		}
	}
	return nil
}

// ensureDefaultValue fills the default values for unset fields.
func (c *Config) ensureDefaultValue() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.RetryQueuePath == "" {
		c.RetryQueuePath = DefaultRetryQueuePath
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if len(c.Collections) == 0 {
		c.Collections = allCollections()
	}

	if c.Sync.RetryCeiling <= 0 {
		c.Sync.RetryCeiling = DefaultRetryCeiling
	}
	if c.Sync.RetryInterval <= 0 {
		c.Sync.RetryInterval = DefaultRetryInterval
	}
	if c.Sync.BackoffBase <= 0 {
		c.Sync.BackoffBase = DefaultBackoffBase
	}
	if c.Sync.BackoffMax <= 0 {
		c.Sync.BackoffMax = DefaultBackoffMax
	}
	if c.Sync.ConflictTolerance <= 0 {
		c.Sync.ConflictTolerance = DefaultConflictTolerance
	}
}

func allCollections() []types.EntityType {
	return []types.EntityType{
		types.EntityBreed,
		types.EntityPet,
		types.EntityKennel,
		types.EntityLitter,
		types.EntityContact,
		types.EntityDictionary,
		types.EntityView,
	}
}
