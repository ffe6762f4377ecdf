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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/shared/logger"
)

// Client wraps a backend Driver with the uniform lifecycle state machine,
// wall-clock timing, error translation and metrics. It is the only
// implementation of base.Client; backends differ only in their Driver.
//
// Locking: Connect, Disconnect and Reconnect take the write lock, so no two
// lifecycle transitions interleave. RunQuery, RunDDL and HealthCheck hold
// the read lock for their whole duration, which also guarantees a client is
// never disconnected while an operation is mid-flight.
type Client struct {
	driver  Driver
	desc    *base.Descriptor
	state   base.State
	lastErr error
	metrics *Metrics
	log     *logger.Logger
	mu      sync.RWMutex
}

// NewClient wraps a driver in a lifecycle-managed client. The client starts
// in the DISCONNECTED state.
func NewClient(driver Driver) *Client {
	return &Client{
		driver:  driver,
		state:   base.StateDisconnected,
		metrics: NewMetrics(driver.Type()),
		log:     logger.New("client." + driver.Type()),
	}
}

// Connect establishes the transport. Calling Connect on an already
// CONNECTED client is a no-op: the existing transport is kept and no second
// one is opened. On failure the client transitions to ERROR.
func (c *Client) Connect(ctx context.Context, desc *base.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == base.StateConnected {
		return nil
	}

	c.state = base.StateConnecting
	c.desc = desc.Clone()

	if err := c.driver.Open(ctx, c.desc); err != nil {
		wrapped := base.NewError(base.CodeConnectionFailed, "failed to open transport", err)
		c.state = base.StateError
		c.lastErr = wrapped
		c.metrics.RecordError()
		c.log.Error("connect failed", map[string]interface{}{"host": c.desc.Host, "error": err.Error()})
		return wrapped
	}

	c.state = base.StateConnected
	c.lastErr = nil
	c.metrics.RecordConnect()
	c.log.Info("connected", map[string]interface{}{"host": c.desc.Host, "type": c.driver.Type()})

	return nil
}

// Disconnect releases the transport and transitions to CLOSED. It is safe
// to call on a client that is not connected (no-op). The state is CLOSED
// afterwards even if the driver reports a close error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != base.StateConnected {
		c.state = base.StateClosed
		return nil
	}

	err := c.driver.Close(ctx)
	c.state = base.StateClosed
	c.metrics.RecordDisconnect()

	if err != nil {
		c.lastErr = err
		c.log.Warn("transport close reported an error", map[string]interface{}{"error": err.Error()})
		return base.NewError(base.CodeConnectionFailed, "failed to close transport", err)
	}

	c.log.Info("disconnected", nil)
	return nil
}

// Reconnect closes the current transport if any and connects again with the
// descriptor from the original Connect.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.desc == nil {
		return base.NewError(base.CodeConnectionFailed, "no descriptor: client was never connected", nil)
	}

	if c.state == base.StateConnected {
		if err := c.driver.Close(ctx); err != nil {
			c.log.Warn("closing stale transport failed", map[string]interface{}{"error": err.Error()})
		}
		c.metrics.RecordDisconnect()
	}

	c.state = base.StateConnecting
	if err := c.driver.Open(ctx, c.desc); err != nil {
		wrapped := base.NewError(base.CodeConnectionFailed, "reconnect failed", err)
		c.state = base.StateError
		c.lastErr = wrapped
		c.metrics.RecordError()
		return wrapped
	}

	c.state = base.StateConnected
	c.lastErr = nil
	c.metrics.RecordConnect()
	c.log.Info("reconnected", map[string]interface{}{"host": c.desc.Host})

	return nil
}

// RunQuery executes a read statement. Requires CONNECTED state, measures
// wall-clock time and attaches it to the result. Backend errors are wrapped
// as QUERY_FAILED without losing the original message.
func (c *Client) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != base.StateConnected {
		return nil, base.NewError(base.CodeNotConnected,
			"cannot run query: client is "+c.state.String(), nil)
	}

	start := time.Now()
	result, err := c.driver.RunQuery(ctx, statement, params)
	duration := time.Since(start)
	c.metrics.RecordQuery(duration, err)

	if err != nil {
		return nil, base.NewError(base.CodeQueryFailed, "query execution failed", err)
	}

	result.Duration = duration
	return result, nil
}

// RunDDL executes a statement with no result set. Requires CONNECTED state.
func (c *Client) RunDDL(ctx context.Context, statement string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != base.StateConnected {
		return base.NewError(base.CodeNotConnected,
			"cannot run DDL: client is "+c.state.String(), nil)
	}

	start := time.Now()
	err := c.driver.RunDDL(ctx, statement)
	c.metrics.RecordDDL(time.Since(start), err)

	if err != nil {
		return base.NewError(base.CodeDDLFailed, "DDL execution failed", err)
	}
	return nil
}

// HealthCheck reports the current state and, when connected, runs the
// driver's probe statement. It never returns an error; probe failures are
// encoded in the returned status. It observes but does not force state
// transitions.
func (c *Client) HealthCheck(ctx context.Context) *base.HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &base.HealthStatus{
		State:     c.state,
		Connected: c.state == base.StateConnected,
		Timestamp: time.Now(),
		Details:   map[string]string{"type": c.driver.Type()},
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}

	if !status.Connected {
		return status
	}

	start := time.Now()
	_, err := c.driver.RunQuery(ctx, c.driver.PingStatement(), nil)
	status.Latency = time.Since(start)
	status.Details["probe"] = c.driver.PingStatement()

	if err != nil {
		status.ProbeOK = false
		status.Healthy = false
		status.LastError = err.Error()
		return status
	}

	status.ProbeOK = true
	status.Healthy = true
	return status
}

// State returns the current lifecycle state.
func (c *Client) State() base.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastError returns the most recent lifecycle error, nil when healthy.
func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Descriptor returns a copy of the descriptor the client was connected
// with, or nil before the first Connect.
func (c *Client) Descriptor() *base.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc.Clone()
}

// Type returns the backend type tag of the underlying driver.
func (c *Client) Type() string {
	return c.driver.Type()
}

// Capabilities returns the operations the underlying driver supports.
func (c *Client) Capabilities() []string {
	return c.driver.Capabilities()
}

// Metrics returns the client's metrics collector.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("%s[%s]", c.driver.Type(), c.State())
}
