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
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/connectors/sdk"
	"github.com/polyconn/polyconn/shared/logger"
)

// Factory creates a fresh driver instance for one backend type.
type Factory func() sdk.Driver

// Record is the registry's bookkeeping entry for one live connection.
type Record struct {
	ID        string
	Type      string
	Client    *sdk.Client
	CreatedAt time.Time
	LastUsed  time.Time
	UseCount  int64
}

// Summary is the credential-free view of a record returned by List.
type Summary struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	State     string    `json:"state"`
	Host      string    `json:"host"`
	Database  string    `json:"database,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	UseCount  int64     `json:"use_count"`
}

// PoolStats is a read-only snapshot of the pool.
type PoolStats struct {
	Live        int            `json:"live"`
	Max         int            `json:"max"`
	Utilization float64        `json:"utilization"` // Percentage, 0-100
	ByType      map[string]int `json:"by_type"`
	ByState     map[string]int `json:"by_state"`
}

// Registry owns the bounded collection of connection records and is the
// single source of truth for what connections exist. All mutation goes
// through its operations under one registry-wide lock, so the live-record
// count can never exceed the configured maximum, even under concurrent
// callers.
type Registry struct {
	factories map[string]Factory
	records   map[string]*Record
	maxConns  int
	log       *logger.Logger
	mu        sync.Mutex
}

// DefaultMaxConnections bounds the pool when no explicit limit is given.
const DefaultMaxConnections = 10

// New creates a registry with the given connection ceiling.
func New(maxConns int) *Registry {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	return &Registry{
		factories: make(map[string]Factory),
		records:   make(map[string]*Record),
		maxConns:  maxConns,
		log:       logger.New("registry"),
	}
}

// RegisterDriver adds a backend type to the plugin map. Registering the
// same tag twice replaces the factory; this is a startup-time operation.
func (r *Registry) RegisterDriver(typeTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = factory
	r.log.Info("driver registered", map[string]interface{}{"type": typeTag})
}

// DriverTypes returns the registered backend type tags, sorted.
func (r *Registry) DriverTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DriverCapabilities returns the supported operations per registered backend
// type. Factories are invoked without connecting; drivers must report their
// type and capabilities statically.
func (r *Registry) DriverCapabilities() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := make(map[string][]string, len(r.factories))
	for typeTag, factory := range r.factories {
		caps[typeTag] = factory().Capabilities()
	}
	return caps
}

// Create instantiates a client for the given backend type, connects it and
// inserts a record under id. A failed connect leaves no record behind.
func (r *Registry) Create(ctx context.Context, id, typeTag string, desc *base.Descriptor) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return "", base.NewError(base.CodeConnectionExists,
			fmt.Sprintf("connection %q already registered", id), nil)
	}
	if len(r.records) >= r.maxConns {
		return "", base.NewError(base.CodeMaxConnections,
			fmt.Sprintf("pool is at capacity (%d)", r.maxConns), nil)
	}
	factory, ok := r.factories[typeTag]
	if !ok {
		return "", base.NewError(base.CodeUnknownClientType,
			fmt.Sprintf("backend type %q is not registered", typeTag), nil)
	}

	client := sdk.NewClient(factory())
	if err := client.Connect(ctx, desc); err != nil {
		r.log.Error("connect failed during create", map[string]interface{}{"id": id, "type": typeTag, "error": err.Error()})
		return "", err
	}

	now := time.Now()
	r.records[id] = &Record{
		ID:        id,
		Type:      typeTag,
		Client:    client,
		CreatedAt: now,
		LastUsed:  now,
	}

	r.log.Info("connection created", map[string]interface{}{
		"id": id, "type": typeTag, "live": len(r.records), "max": r.maxConns,
	})

	return id, nil
}

// Get returns the live client for id and bumps its usage metadata.
func (r *Registry) Get(id string) (*sdk.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return nil, base.NewError(base.CodeConnectionNotFound,
			fmt.Sprintf("connection %q not found", id), nil)
	}

	record.LastUsed = time.Now()
	record.UseCount++
	return record.Client, nil
}

// Close disconnects the client for id and removes its record.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists {
		return base.NewError(base.CodeConnectionNotFound,
			fmt.Sprintf("connection %q not found", id), nil)
	}

	if err := record.Client.Disconnect(ctx); err != nil {
		// Best effort: the record is removed regardless
		r.log.Warn("disconnect reported an error during close", map[string]interface{}{"id": id, "error": err.Error()})
	}

	delete(r.records, id)
	r.log.Info("connection closed", map[string]interface{}{"id": id, "live": len(r.records)})
	return nil
}

// CloseAll disconnects every client and empties the pool, tolerating
// individual disconnect failures. Returns the number of records removed.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	for id, record := range r.records {
		if err := record.Client.Disconnect(ctx); err != nil {
			r.log.Warn("disconnect failed during close-all", map[string]interface{}{"id": id, "error": err.Error()})
		}
		delete(r.records, id)
		closed++
	}

	r.log.Info("all connections closed", map[string]interface{}{"count": closed})
	return closed
}

// Reconnect re-establishes the connection for id using its original
// descriptor and refreshes the last-used timestamp.
func (r *Registry) Reconnect(ctx context.Context, id string) error {
	r.mu.Lock()
	record, exists := r.records[id]
	r.mu.Unlock()

	if !exists {
		return base.NewError(base.CodeConnectionNotFound,
			fmt.Sprintf("connection %q not found", id), nil)
	}

	// The client serializes its own lifecycle; holding the registry lock
	// across a potentially slow reconnect would stall unrelated callers.
	if err := record.Client.Reconnect(ctx); err != nil {
		r.log.Error("reconnect failed", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	r.mu.Lock()
	rec, still := r.records[id]
	if still {
		rec.LastUsed = time.Now()
	}
	r.mu.Unlock()

	if !still {
		// A concurrent Close removed the record while the client was
		// reconnecting. Tear the fresh transport down so it cannot leak.
		if derr := record.Client.Disconnect(ctx); derr != nil {
			r.log.Warn("disconnect after concurrent close failed", map[string]interface{}{"id": id, "error": derr.Error()})
		}
		return base.NewError(base.CodeConnectionNotFound,
			fmt.Sprintf("connection %q was closed during reconnect", id), nil)
	}

	r.log.Info("connection reconnected", map[string]interface{}{"id": id})
	return nil
}

// Resize changes the pool ceiling. Shrinking below the current live-record
// count is rejected; existing connections are never evicted.
func (r *Registry) Resize(newMax int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if newMax < len(r.records) {
		return base.NewError(base.CodeInvalidPoolSize,
			fmt.Sprintf("cannot shrink pool to %d with %d live connections", newMax, len(r.records)), nil)
	}
	if newMax <= 0 {
		return base.NewError(base.CodeInvalidPoolSize, "pool size must be positive", nil)
	}

	old := r.maxConns
	r.maxConns = newMax
	r.log.Info("pool resized", map[string]interface{}{"old_max": old, "new_max": newMax})
	return nil
}

// List returns a credential-free summary of every record, sorted by id.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	summaries := make([]Summary, 0, len(r.records))
	for _, record := range r.records {
		desc := record.Client.Descriptor()
		s := Summary{
			ID:        record.ID,
			Type:      record.Type,
			State:     record.Client.State().String(),
			CreatedAt: record.CreatedAt,
			LastUsed:  record.LastUsed,
			UseCount:  record.UseCount,
		}
		if desc != nil {
			s.Host = desc.Host
			s.Database = desc.Database
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Stats returns pool-level counters.
func (r *Registry) Stats() PoolStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := PoolStats{
		Live:    len(r.records),
		Max:     r.maxConns,
		ByType:  make(map[string]int),
		ByState: make(map[string]int),
	}
	if r.maxConns > 0 {
		stats.Utilization = float64(len(r.records)) / float64(r.maxConns) * 100
	}

	for _, record := range r.records {
		stats.ByType[record.Type]++
		stats.ByState[record.Client.State().String()]++
	}
	return stats
}

// HealthCheckAll runs a health check on every record currently in the
// pool. Checks run outside the registry lock so a slow backend cannot
// stall create/close callers; records removed mid-sweep simply drop out of
// the result.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]*base.HealthStatus {
	r.mu.Lock()
	clients := make(map[string]*sdk.Client, len(r.records))
	for id, record := range r.records {
		clients[id] = record.Client
	}
	r.mu.Unlock()

	results := make(map[string]*base.HealthStatus, len(clients))
	for id, client := range clients {
		results[id] = client.HealthCheck(ctx)
	}
	return results
}

// MetricsSnapshots returns the per-client metrics for every record.
func (r *Registry) MetricsSnapshots() map[string]*sdk.Snapshot {
	r.mu.Lock()
	clients := make(map[string]*sdk.Client, len(r.records))
	for id, record := range r.records {
		clients[id] = record.Client
	}
	r.mu.Unlock()

	out := make(map[string]*sdk.Snapshot, len(clients))
	for id, client := range clients {
		out[id] = client.Metrics().GetStats()
	}
	return out
}
