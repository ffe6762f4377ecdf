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

// Package monitor runs periodic health sweeps over a connection pool and
// optionally reconnects connections whose probe failed.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/shared/logger"
)

// Pool is the slice of the registry the monitor needs. *registry.Registry
// satisfies it.
type Pool interface {
	HealthCheckAll(ctx context.Context) map[string]*base.HealthStatus
	Reconnect(ctx context.Context, id string) error
}

// SweepResult summarizes one pass over the pool.
type SweepResult struct {
	Checked     int
	Unhealthy   int
	Reconnected int
	Failed      []string
	Timestamp   time.Time
}

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = 30 * time.Second

// Monitor periodically health-checks every connection in a pool. With
// auto-reconnect enabled, connections whose probe fails are reconnected in
// the same sweep. A monitor is started at most once; Stop waits for the
// background goroutine to exit.
type Monitor struct {
	pool          Pool
	interval      time.Duration
	autoReconnect bool
	log           *logger.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	lastRun SweepResult
	mu      sync.Mutex
}

// New creates a monitor over the given pool. interval <= 0 falls back to
// DefaultInterval.
func New(pool Pool, interval time.Duration, autoReconnect bool) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		pool:          pool,
		interval:      interval,
		autoReconnect: autoReconnect,
		log:           logger.New("monitor"),
	}
}

// Start launches the background sweep loop. Calling Start on a running
// monitor logs a warning and does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warn("monitor already running", nil)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(loopCtx)

	m.log.Info("monitor started", map[string]interface{}{
		"interval":       m.interval.String(),
		"auto_reconnect": m.autoReconnect,
	})
}

// Stop cancels the loop and blocks until it has exited. Safe to call on a
// monitor that was never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.log.Info("monitor stopped", nil)
}

// Running reports whether the sweep loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastSweep returns the result of the most recent sweep.
func (m *Monitor) LastSweep() SweepResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Cancellation only interrupts the wait above. A sweep that is
			// already running keeps a live context, so probes and
			// reconnects in flight at shutdown run to completion.
			m.Sweep(context.WithoutCancel(ctx))
		}
	}
}

// Sweep runs one health pass over the pool. Exported so callers can force a
// check outside the timer (and so tests can drive the monitor directly).
func (m *Monitor) Sweep(ctx context.Context) SweepResult {
	result := SweepResult{Timestamp: time.Now()}

	statuses := m.pool.HealthCheckAll(ctx)
	result.Checked = len(statuses)

	for id, status := range statuses {
		if status.Healthy {
			continue
		}
		result.Unhealthy++

		m.log.Warn("unhealthy connection", map[string]interface{}{
			"id": id, "state": status.State.String(), "error": status.LastError,
		})

		if !m.autoReconnect {
			continue
		}

		if err := m.pool.Reconnect(ctx, id); err != nil {
			result.Failed = append(result.Failed, id)
			m.log.Error("auto-reconnect failed", map[string]interface{}{"id": id, "error": err.Error()})
			continue
		}
		result.Reconnected++
		m.log.Info("auto-reconnected", map[string]interface{}{"id": id})
	}

	m.mu.Lock()
	m.lastRun = result
	m.mu.Unlock()

	return result
}
