// Copyright 2025 Polyconn Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the registry's pool state and per-connection counters to
// Prometheus. It reads live snapshots on every scrape, so there is no
// background goroutine and no stale gauge to reset.
type Collector struct {
	registry *Registry

	poolLive        *prometheus.Desc
	poolMax         *prometheus.Desc
	poolUtilization *prometheus.Desc
	connsByType     *prometheus.Desc
	connsByState    *prometheus.Desc
	queriesTotal    *prometheus.Desc
	ddlsTotal       *prometheus.Desc
	errorsTotal     *prometheus.Desc
}

// NewCollector builds a collector bound to the given registry. Register it
// with prometheus.MustRegister.
func NewCollector(r *Registry) *Collector {
	return &Collector{
		registry: r,
		poolLive: prometheus.NewDesc(
			"polyconn_pool_connections_live",
			"Number of live connections in the pool",
			nil, nil,
		),
		poolMax: prometheus.NewDesc(
			"polyconn_pool_connections_max",
			"Configured pool ceiling",
			nil, nil,
		),
		poolUtilization: prometheus.NewDesc(
			"polyconn_pool_utilization_percent",
			"Pool utilization as a percentage of the ceiling",
			nil, nil,
		),
		connsByType: prometheus.NewDesc(
			"polyconn_pool_connections_by_type",
			"Live connections broken down by backend type",
			[]string{"type"}, nil,
		),
		connsByState: prometheus.NewDesc(
			"polyconn_pool_connections_by_state",
			"Live connections broken down by lifecycle state",
			[]string{"state"}, nil,
		),
		queriesTotal: prometheus.NewDesc(
			"polyconn_connection_queries_total",
			"Queries executed per connection",
			[]string{"id", "type"}, nil,
		),
		ddlsTotal: prometheus.NewDesc(
			"polyconn_connection_ddls_total",
			"DDL statements executed per connection",
			[]string{"id", "type"}, nil,
		),
		errorsTotal: prometheus.NewDesc(
			"polyconn_connection_errors_total",
			"Operation errors per connection",
			[]string{"id", "type"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolLive
	ch <- c.poolMax
	ch <- c.poolUtilization
	ch <- c.connsByType
	ch <- c.connsByState
	ch <- c.queriesTotal
	ch <- c.ddlsTotal
	ch <- c.errorsTotal
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.registry.Stats()

	ch <- prometheus.MustNewConstMetric(c.poolLive, prometheus.GaugeValue, float64(stats.Live))
	ch <- prometheus.MustNewConstMetric(c.poolMax, prometheus.GaugeValue, float64(stats.Max))
	ch <- prometheus.MustNewConstMetric(c.poolUtilization, prometheus.GaugeValue, stats.Utilization)

	for typeTag, n := range stats.ByType {
		ch <- prometheus.MustNewConstMetric(c.connsByType, prometheus.GaugeValue, float64(n), typeTag)
	}
	for state, n := range stats.ByState {
		ch <- prometheus.MustNewConstMetric(c.connsByState, prometheus.GaugeValue, float64(n), state)
	}

	for id, snap := range c.registry.MetricsSnapshots() {
		ch <- prometheus.MustNewConstMetric(c.queriesTotal, prometheus.CounterValue, float64(snap.QueriesTotal), id, snap.BackendType)
		ch <- prometheus.MustNewConstMetric(c.ddlsTotal, prometheus.CounterValue, float64(snap.DDLsTotal), id, snap.BackendType)
		ch <- prometheus.MustNewConstMetric(c.errorsTotal, prometheus.CounterValue, float64(snap.ErrorsTotal), id, snap.BackendType)
	}
}
