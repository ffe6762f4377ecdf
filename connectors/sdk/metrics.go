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

package sdk

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks per-client operation counters and latency percentiles.
// All counters are updated with atomics so recording never contends with
// the client's lifecycle lock.
type Metrics struct {
	backendType string

	queriesTotal     int64
	ddlsTotal        int64
	errorsTotal      int64
	connectsTotal    int64
	disconnectsTotal int64

	queryDurationTotal int64
	ddlDurationTotal   int64
	queryCount         int64
	ddlCount           int64

	connected int32

	queryLatencies *LatencyHistogram
}

// NewMetrics creates a metrics collector for one client.
func NewMetrics(backendType string) *Metrics {
	return &Metrics{
		backendType:    backendType,
		queryLatencies: NewLatencyHistogram(),
	}
}

// RecordQuery records a query operation.
func (m *Metrics) RecordQuery(duration time.Duration, err error) {
	atomic.AddInt64(&m.queriesTotal, 1)
	atomic.AddInt64(&m.queryDurationTotal, int64(duration))
	atomic.AddInt64(&m.queryCount, 1)
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}
	m.queryLatencies.Record(duration)
}

// RecordDDL records a DDL/write operation.
func (m *Metrics) RecordDDL(duration time.Duration, err error) {
	atomic.AddInt64(&m.ddlsTotal, 1)
	atomic.AddInt64(&m.ddlDurationTotal, int64(duration))
	atomic.AddInt64(&m.ddlCount, 1)
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}
}

// RecordConnect records a successful connect.
func (m *Metrics) RecordConnect() {
	atomic.AddInt64(&m.connectsTotal, 1)
	atomic.StoreInt32(&m.connected, 1)
}

// RecordDisconnect records a disconnect.
func (m *Metrics) RecordDisconnect() {
	atomic.AddInt64(&m.disconnectsTotal, 1)
	atomic.StoreInt32(&m.connected, 0)
}

// RecordError records a standalone error.
func (m *Metrics) RecordError() {
	atomic.AddInt64(&m.errorsTotal, 1)
}

// Snapshot is a point-in-time view of a client's metrics.
type Snapshot struct {
	BackendType      string        `json:"backend_type"`
	QueriesTotal     int64         `json:"queries_total"`
	DDLsTotal        int64         `json:"ddls_total"`
	ErrorsTotal      int64         `json:"errors_total"`
	ConnectsTotal    int64         `json:"connects_total"`
	DisconnectsTotal int64         `json:"disconnects_total"`
	Connected        bool          `json:"connected"`
	AvgQueryLatency  time.Duration `json:"avg_query_latency"`
	QueryLatencyP50  time.Duration `json:"query_latency_p50"`
	QueryLatencyP95  time.Duration `json:"query_latency_p95"`
	QueryLatencyP99  time.Duration `json:"query_latency_p99"`
}

// GetStats returns the current snapshot.
func (m *Metrics) GetStats() *Snapshot {
	queryCount := atomic.LoadInt64(&m.queryCount)

	var avgQueryLatency time.Duration
	if queryCount > 0 {
		avgQueryLatency = time.Duration(atomic.LoadInt64(&m.queryDurationTotal) / queryCount)
	}

	return &Snapshot{
		BackendType:      m.backendType,
		QueriesTotal:     atomic.LoadInt64(&m.queriesTotal),
		DDLsTotal:        atomic.LoadInt64(&m.ddlsTotal),
		ErrorsTotal:      atomic.LoadInt64(&m.errorsTotal),
		ConnectsTotal:    atomic.LoadInt64(&m.connectsTotal),
		DisconnectsTotal: atomic.LoadInt64(&m.disconnectsTotal),
		Connected:        atomic.LoadInt32(&m.connected) == 1,
		AvgQueryLatency:  avgQueryLatency,
		QueryLatencyP50:  m.queryLatencies.Percentile(0.5),
		QueryLatencyP95:  m.queryLatencies.Percentile(0.95),
		QueryLatencyP99:  m.queryLatencies.Percentile(0.99),
	}
}

// LatencyHistogram keeps a bounded sample set for percentile estimates.
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates an empty histogram.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 1000),
		maxSize: 10000,
	}
}

// Record adds a latency sample, dropping the oldest half when full.
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[len(h.samples)/2:]
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile, 0 when no samples exist.
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Count returns the number of samples held.
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}
