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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pawsync-team/pawsync/api/types"
)

const (
	namespace = "pawsync"
	subsystem = "sync"
)

// Metrics counts replication activity per collection.
type Metrics struct {
	pullsTotal      *prometheus.CounterVec
	pulledDocsTotal *prometheus.CounterVec
	pushesTotal     *prometheus.CounterVec
	conflictsTotal  *prometheus.CounterVec
	retryQueueDepth prometheus.Gauge
}

// NewMetrics creates metrics registered on the given registerer. Passing nil
// registers nothing, which tests use to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pullsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pulls_total",
			Help:      "Number of completed pulls per collection and result.",
		}, []string{"collection", "result"}),
		pulledDocsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pulled_documents_total",
			Help:      "Number of documents applied from pulls per collection.",
		}, []string{"collection"}),
		pushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pushes_total",
			Help:      "Number of pushes per collection and result.",
		}, []string{"collection", "result"}),
		conflictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "conflicts_total",
			Help:      "Number of resolved conflicts per collection and winner.",
		}, []string{"collection", "winner"}),
		retryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_queue_depth",
			Help:      "Number of pushes waiting in the retry queue.",
		}),
	}
}

func (m *Metrics) observePull(collection types.EntityType, err error, docs int) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pullsTotal.WithLabelValues(string(collection), result).Inc()
	if docs > 0 {
		m.pulledDocsTotal.WithLabelValues(string(collection)).Add(float64(docs))
	}
}

func (m *Metrics) observePush(collection types.EntityType, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushesTotal.WithLabelValues(string(collection), result).Inc()
}

func (m *Metrics) observeConflict(collection types.EntityType, winner Winner) {
	m.conflictsTotal.WithLabelValues(string(collection), string(winner)).Inc()
}

func (m *Metrics) setRetryQueueDepth(depth int) {
	m.retryQueueDepth.Set(float64(depth))
}
