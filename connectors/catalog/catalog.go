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

// Package catalog publishes what the connection layer can do: the backend
// types available as resources and the tools callers may invoke against a
// live connection.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/connectors/sdk"
	"github.com/polyconn/polyconn/shared/logger"
)

// Pool is the slice of the registry the catalog needs. *registry.Registry
// satisfies it.
type Pool interface {
	Get(id string) (*sdk.Client, error)
	DriverCapabilities() map[string][]string
}

// Resource describes one backend type available through the layer.
type Resource struct {
	URI          string   `json:"uri"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
	Description  string   `json:"description"`
}

// Tool describes one invokable operation.
type Tool struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	RequiredParams []string `json:"required_params"`
}

// ToolResult wraps the outcome of one tool invocation.
type ToolResult struct {
	RequestID    string             `json:"request_id"`
	Tool         string             `json:"tool"`
	ConnectionID string             `json:"connection_id"`
	Result       *base.QueryResult  `json:"result,omitempty"`
	Health       *base.HealthStatus `json:"health,omitempty"`
	Duration     time.Duration      `json:"duration"`
}

// Catalog holds the static tool list and resolves tool invocations against
// the pool. The resource and tool sets are built at construction and never
// mutated afterwards, so reads need no locking.
type Catalog struct {
	pool      Pool
	resources []Resource
	tools     []Tool
	toolSet   map[string]Tool
	log       *logger.Logger
}

// New builds the catalog from the pool's registered backend types.
func New(pool Pool) *Catalog {
	c := &Catalog{
		pool: pool,
		log:  logger.New("catalog"),
	}

	caps := pool.DriverCapabilities()
	types := make([]string, 0, len(caps))
	for t := range caps {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		c.resources = append(c.resources, Resource{
			URI:          "polyconn://" + t,
			Name:         t,
			Type:         t,
			Capabilities: caps[t],
			Description:  fmt.Sprintf("%s backend", t),
		})
	}

	c.tools = []Tool{
		{Name: "run_query", Description: "Execute a read statement on a connection", RequiredParams: []string{"statement"}},
		{Name: "run_ddl", Description: "Execute a write or schema statement on a connection", RequiredParams: []string{"statement"}},
		{Name: "health_check", Description: "Probe a connection and report its health", RequiredParams: nil},
		{Name: "make_api_request", Description: "Send an HTTP request through a REST connection", RequiredParams: []string{"statement"}},
		{Name: "read_object", Description: "Fetch an object from an object-storage connection", RequiredParams: []string{"statement"}},
		{Name: "publish_message", Description: "Publish a message through a queue connection", RequiredParams: []string{"statement"}},
	}
	c.toolSet = make(map[string]Tool, len(c.tools))
	for _, t := range c.tools {
		c.toolSet[t.Name] = t
	}

	return c
}

// ListResources returns the backend types available, sorted by name.
func (c *Catalog) ListResources() []Resource {
	out := make([]Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// ListTools returns the invokable tools.
func (c *Catalog) ListTools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// ExecuteTool resolves the named tool against the given connection and runs
// it. Unknown tools fail with TOOL_NOT_FOUND; unknown connections propagate
// CONNECTION_NOT_FOUND from the pool.
func (c *Catalog) ExecuteTool(ctx context.Context, name, connID string, params map[string]interface{}) (*ToolResult, error) {
	requestID := uuid.New().String()

	tool, ok := c.toolSet[name]
	if !ok {
		return nil, base.NewError(base.CodeToolNotFound,
			fmt.Sprintf("tool %q is not in the catalog", name), nil)
	}

	client, err := c.pool.Get(connID)
	if err != nil {
		return nil, err
	}

	c.log.InfoReq(requestID, "executing tool", map[string]interface{}{
		"tool": name, "connection_id": connID, "type": client.Type(),
	})

	result := &ToolResult{
		RequestID:    requestID,
		Tool:         name,
		ConnectionID: connID,
	}
	start := time.Now()

	switch name {
	case "run_query", "make_api_request", "read_object":
		statement, err := requireStatement(tool, params, base.CodeQueryFailed)
		if err != nil {
			return nil, err
		}
		qr, err := client.RunQuery(ctx, statement, subParams(params))
		if err != nil {
			c.log.ErrorReq(requestID, "tool failed", err, map[string]interface{}{"tool": name})
			return nil, err
		}
		result.Result = qr

	case "run_ddl", "publish_message":
		statement, err := requireStatement(tool, params, base.CodeDDLFailed)
		if err != nil {
			return nil, err
		}
		if err := client.RunDDL(ctx, statement); err != nil {
			c.log.ErrorReq(requestID, "tool failed", err, map[string]interface{}{"tool": name})
			return nil, err
		}

	case "health_check":
		result.Health = client.HealthCheck(ctx)
	}

	result.Duration = time.Since(start)
	c.log.InfoReq(requestID, "tool completed", map[string]interface{}{
		"tool": name, "connection_id": connID, "duration_ms": result.Duration.Milliseconds(),
	})

	return result, nil
}

// requireStatement validates the statement parameter, reporting a miss
// under the code of the tool's operation family so API clients branching on
// codes see QUERY_FAILED for reads and DDL_FAILED for writes.
func requireStatement(tool Tool, params map[string]interface{}, code base.Code) (string, error) {
	statement, _ := params["statement"].(string)
	if statement == "" {
		return "", base.NewError(code,
			fmt.Sprintf("tool %q requires a non-empty 'statement' parameter", tool.Name), nil)
	}
	return statement, nil
}

// subParams extracts the nested backend parameters, if any.
func subParams(params map[string]interface{}) map[string]interface{} {
	if sub, ok := params["params"].(map[string]interface{}); ok {
		return sub
	}
	return nil
}
