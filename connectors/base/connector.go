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

package base

import (
	"context"
	"time"
)

// Client is the uniform lifecycle contract every backend client satisfies.
// The registry, health monitor and capability catalog consume backends only
// through this interface.
type Client interface {
	// Lifecycle Management
	Connect(ctx context.Context, desc *Descriptor) error
	Disconnect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus

	// Data Operations
	RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*QueryResult, error)
	RunDDL(ctx context.Context, statement string) error

	// Metadata
	State() State
	LastError() error
	Type() string           // Backend type tag (postgres, redis, s3, ...)
	Capabilities() []string // Supported operations (query, ddl, publish, ...)
}

// State is the lifecycle state of a client. Exactly one state holds at any
// time; transitions are serialized by the client's lock.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

// String returns the canonical upper-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Descriptor bundles everything needed to reach a backend. It is treated as
// immutable once handed to a client; reconnects reuse it verbatim.
type Descriptor struct {
	Host     string                 `json:"host" yaml:"host"`
	Port     int                    `json:"port" yaml:"port"`
	Database string                 `json:"database,omitempty" yaml:"database,omitempty"` // Database, keyspace, bucket or namespace
	Username string                 `json:"username,omitempty" yaml:"username,omitempty"`
	Password string                 `json:"-" yaml:"-"` // Never serialized outward
	Options  map[string]interface{} `json:"options,omitempty" yaml:"options,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate a descriptor a client
// already owns.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Options != nil {
		cp.Options = make(map[string]interface{}, len(d.Options))
		for k, v := range d.Options {
			cp.Options[k] = v
		}
	}
	return &cp
}

// StringOption retrieves a string option with a fallback.
func (d *Descriptor) StringOption(key, defaultValue string) string {
	if d == nil || d.Options == nil {
		return defaultValue
	}
	if s, ok := d.Options[key].(string); ok {
		return s
	}
	return defaultValue
}

// IntOption retrieves an integer option with a fallback. YAML and JSON
// decoders produce different numeric types, so all of them are accepted.
func (d *Descriptor) IntOption(key string, defaultValue int) int {
	if d == nil || d.Options == nil {
		return defaultValue
	}
	switch v := d.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

// BoolOption retrieves a boolean option with a fallback.
func (d *Descriptor) BoolOption(key string, defaultValue bool) bool {
	if d == nil || d.Options == nil {
		return defaultValue
	}
	if b, ok := d.Options[key].(bool); ok {
		return b
	}
	return defaultValue
}

// DurationOption retrieves a duration option given as a string like "5s".
func (d *Descriptor) DurationOption(key string, defaultValue time.Duration) time.Duration {
	if d == nil || d.Options == nil {
		return defaultValue
	}
	if s, ok := d.Options[key].(string); ok {
		if parsed, err := time.ParseDuration(s); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// QueryResult contains the results of a RunQuery operation. A fresh result is
// produced per call; the caller owns it.
type QueryResult struct {
	Columns  []string               `json:"columns"`   // Ordered; may repeat per backend semantics
	Rows     [][]interface{}        `json:"rows"`      // Ordered tuples matching Columns
	RowCount int                    `json:"row_count"` // Number of rows returned
	Duration time.Duration          `json:"duration"`  // Wall-clock execution time
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HealthStatus is the result of a health check. Health checks never raise;
// all failure information is encoded here.
type HealthStatus struct {
	State     State             `json:"state"`
	Connected bool              `json:"connected"`
	Healthy   bool              `json:"healthy"`
	ProbeOK   bool              `json:"probe_ok"` // Backend-native probe succeeded
	Latency   time.Duration     `json:"latency"`
	LastError string            `json:"last_error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
