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
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("postgres")

	m.RecordConnect()
	m.RecordQuery(10*time.Millisecond, nil)
	m.RecordQuery(20*time.Millisecond, errors.New("fail"))
	m.RecordDDL(5*time.Millisecond, nil)
	m.RecordDisconnect()

	stats := m.GetStats()
	if stats.BackendType != "postgres" {
		t.Errorf("backend type = %q", stats.BackendType)
	}
	if stats.QueriesTotal != 2 {
		t.Errorf("queries = %d, want 2", stats.QueriesTotal)
	}
	if stats.DDLsTotal != 1 {
		t.Errorf("ddls = %d, want 1", stats.DDLsTotal)
	}
	if stats.ErrorsTotal != 1 {
		t.Errorf("errors = %d, want 1", stats.ErrorsTotal)
	}
	if stats.Connected {
		t.Error("expected disconnected after RecordDisconnect")
	}
	if stats.AvgQueryLatency != 15*time.Millisecond {
		t.Errorf("avg latency = %v, want 15ms", stats.AvgQueryLatency)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	m := NewMetrics("redis")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordQuery(time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := m.GetStats().QueriesTotal; got != 50 {
		t.Errorf("queries = %d, want 50", got)
	}
}

func TestLatencyHistogram_Percentiles(t *testing.T) {
	h := NewLatencyHistogram()

	if h.Percentile(0.5) != 0 {
		t.Error("empty histogram should report 0")
	}

	for i := 1; i <= 100; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	if got := h.Percentile(0.5); got < 45*time.Millisecond || got > 55*time.Millisecond {
		t.Errorf("p50 = %v, want ~50ms", got)
	}
	if got := h.Percentile(0.99); got < 95*time.Millisecond {
		t.Errorf("p99 = %v, want >= 95ms", got)
	}
	if h.Count() != 100 {
		t.Errorf("count = %d, want 100", h.Count())
	}
}
