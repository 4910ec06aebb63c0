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

// Package engine wires the local store, the replication syncer and the
// entity facade together from a single configuration and manages their
// lifecycle.
package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pawsync-team/pawsync/entity"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/store"
	"github.com/pawsync-team/pawsync/sync"
	"github.com/pawsync-team/pawsync/sync/memory"
	"github.com/pawsync-team/pawsync/sync/supabase"
)

// Engine is the top of the wiring: one local store, one syncer, one entity
// facade, built from one Config.
type Engine struct {
	conf *Config

	store  *store.Store
	remote sync.Remote
	queue  *sync.RetryQueue
	syncer *sync.Syncer
	facade *entity.Facade

	registry *prometheus.Registry
	logger   logging.Logger

	shutdown bool
}

// New creates an engine from the given config. Nothing runs until Start.
func New(conf *Config) (*Engine, error) {
	conf.ensureDefaultValue()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := logging.SetLogLevel(conf.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level: %w", err)
	}

	localStore := store.New(store.DefaultSchemas())

	var remote sync.Remote
	if conf.Supabase.BaseURL != "" {
		client, err := supabase.Dial(conf.Supabase)
		if err != nil {
			return nil, fmt.Errorf("dial supabase: %w", err)
		}
		remote = client
	} else {
		remote = memory.New()
	}

	queue, err := sync.OpenRetryQueue(conf.RetryQueuePath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	syncer := sync.New(localStore, remote, queue, sync.Config{
		RetryCeiling:      conf.Sync.RetryCeiling,
		RetryInterval:     conf.Sync.RetryInterval,
		BackoffBase:       conf.Sync.BackoffBase,
		BackoffMax:        conf.Sync.BackoffMax,
		ConflictTolerance: conf.Sync.ConflictTolerance,
	}, sync.WithMetricsRegistry(registry))

	facade := entity.New(localStore, remote, entity.WithPageSize(conf.PageSize))

	return &Engine{
		conf:     conf,
		store:    localStore,
		remote:   remote,
		queue:    queue,
		syncer:   syncer,
		facade:   facade,
		registry: registry,
		logger:   logging.New("engine"),
	}, nil
}

// Start initializes the store and facade and begins replication of the
// configured collections.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.facade.Initialize(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	e.syncer.Start(ctx, e.conf.Collections...)
	e.logger.Infof("engine started with %d collections", len(e.conf.Collections))
	return nil
}

// Shutdown stops replication, the facade watchers and the store, in that
// order so no watcher reads a closed store.
func (e *Engine) Shutdown() error {
	if e.shutdown {
		return nil
	}
	e.shutdown = true

	e.syncer.StopAll()
	e.facade.Close()

	if err := e.queue.Close(); err != nil {
		e.logger.Warnf("close retry queue: %s", err)
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("shutdown engine: %w", err)
	}

	e.logger.Infof("engine stopped")
	return nil
}

// Store returns the local document store.
func (e *Engine) Store() *store.Store { return e.store }

// Facade returns the reactive entity facade.
func (e *Engine) Facade() *entity.Facade { return e.facade }

// Syncer returns the replication syncer.
func (e *Engine) Syncer() *sync.Syncer { return e.syncer }

// Registry returns the metrics registry of this engine.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Config returns the config this engine was built from.
func (e *Engine) Config() *Config { return e.conf }
