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

// Package redis implements the Redis backend driver. Statements are plain
// command lines, e.g. "GET session:42" or "SET session:42 payload".
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver sends command-line statements to a Redis server.
type Driver struct {
	client *redis.Client
}

// New creates an unconnected Redis driver.
func New() *Driver {
	return &Driver{}
}

// Open dials the server and verifies it with PING. The descriptor's
// Database field selects the logical database number ("0" when empty).
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	port := desc.Port
	if port == 0 {
		port = 6379
	}

	db := 0
	if desc.Database != "" {
		n, err := strconv.Atoi(desc.Database)
		if err != nil {
			return fmt.Errorf("database must be a redis DB number: %w", err)
		}
		db = n
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", desc.Host, port),
		Username: desc.Username,
		Password: desc.Password,
		DB:       db,
		PoolSize: desc.IntOption("pool_size", 10),
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping: %w", err)
	}

	d.client = client
	return nil
}

// Close releases the client's connection pool.
func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// RunQuery executes one command line and flattens the reply: scalar replies
// become a single row, array replies one row per element.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	args, err := splitCommand(statement)
	if err != nil {
		return nil, err
	}

	reply, err := d.client.Do(ctx, args...).Result()
	if err != nil {
		return nil, err
	}

	result := &base.QueryResult{Columns: []string{"value"}}
	switch v := reply.(type) {
	case []interface{}:
		for _, item := range v {
			result.Rows = append(result.Rows, []interface{}{item})
		}
	default:
		result.Rows = [][]interface{}{{v}}
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// RunDDL executes one command line and discards the reply.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	args, err := splitCommand(statement)
	if err != nil {
		return err
	}
	return d.client.Do(ctx, args...).Err()
}

// PingStatement returns the health probe command.
func (d *Driver) PingStatement() string {
	return "PING"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "redis"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "pubsub", "ttl"}
}

// splitCommand tokenizes a command line. Double-quoted tokens may contain
// spaces: SET greeting "hello world".
func splitCommand(statement string) ([]interface{}, error) {
	fields := strings.Fields(strings.TrimSpace(statement))
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	var args []interface{}
	for i := 0; i < len(fields); i++ {
		token := fields[i]
		if strings.HasPrefix(token, `"`) && !strings.HasSuffix(strings.TrimPrefix(token, `"`), `"`) {
			// Re-join until the closing quote
			for i+1 < len(fields) {
				i++
				token += " " + fields[i]
				if strings.HasSuffix(fields[i], `"`) {
					break
				}
			}
		}
		args = append(args, strings.Trim(token, `"`))
	}
	return args, nil
}
