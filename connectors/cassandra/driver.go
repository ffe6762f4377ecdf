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

// Package cassandra implements the Apache Cassandra backend driver.
package cassandra

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver runs CQL statements against a Cassandra cluster.
type Driver struct {
	session *gocql.Session
}

// New creates an unconnected Cassandra driver.
func New() *Driver {
	return &Driver{}
}

// Open creates a session against the cluster. The descriptor's Database
// field names the keyspace.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	cluster := newClusterConfig(desc)

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	d.session = session
	return nil
}

// Close shuts the session down.
func (d *Driver) Close(ctx context.Context) error {
	if d.session == nil {
		return nil
	}
	d.session.Close()
	d.session = nil
	return nil
}

// RunQuery executes a CQL read statement. Parameters are bound to the
// statement's ? placeholders in sorted key order, matching the SQL drivers.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	query := d.session.Query(statement).WithContext(ctx)
	if len(params) > 0 {
		query = query.Bind(orderedArgs(params)...)
	}

	iter := query.Iter()

	columns := make([]string, 0, len(iter.Columns()))
	for _, col := range iter.Columns() {
		columns = append(columns, col.Name)
	}

	result := &base.QueryResult{Columns: columns}
	for {
		row := make(map[string]interface{}, len(columns))
		if !iter.MapScan(row) {
			break
		}
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		result.Rows = append(result.Rows, values)
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// RunDDL executes a CQL statement with no result set.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	return d.session.Query(statement).WithContext(ctx).Exec()
}

// PingStatement returns the health probe statement.
func (d *Driver) PingStatement() string {
	return "SELECT now() FROM system.local"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "cassandra"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "wide_rows"}
}

func newClusterConfig(desc *base.Descriptor) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(desc.Host)
	if desc.Port != 0 {
		cluster.Port = desc.Port
	}
	cluster.Keyspace = desc.Database
	cluster.Timeout = desc.DurationOption("timeout", 10*time.Second)
	cluster.ConnectTimeout = desc.DurationOption("connect_timeout", 10*time.Second)
	cluster.Consistency = parseConsistency(desc.StringOption("consistency", "quorum"))

	if desc.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: desc.Username,
			Password: desc.Password,
		}
	}
	return cluster
}

func parseConsistency(level string) gocql.Consistency {
	switch level {
	case "one":
		return gocql.One
	case "two":
		return gocql.Two
	case "all":
		return gocql.All
	case "local_quorum":
		return gocql.LocalQuorum
	case "local_one":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}

func orderedArgs(params map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		args = append(args, params[k])
	}
	return args
}
