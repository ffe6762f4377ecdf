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

// Package postgres implements the PostgreSQL backend driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver translates generic statements to PostgreSQL via database/sql.
type Driver struct {
	db *sql.DB
}

// New creates an unconnected PostgreSQL driver.
func New() *Driver {
	return &Driver{}
}

// Open establishes the connection pool and verifies it with a ping.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	dsn := buildDSN(desc)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	db.SetMaxOpenConns(desc.IntOption("max_open_conns", 25))
	db.SetMaxIdleConns(desc.IntOption("max_idle_conns", 5))
	db.SetConnMaxLifetime(desc.DurationOption("conn_max_lifetime", 5*time.Minute))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping: %w", err)
	}

	d.db = db
	return nil
}

// Close releases the connection pool.
func (d *Driver) Close(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

// RunQuery executes a read statement. Named parameters are bound in sorted
// key order to PostgreSQL's positional $1, $2, ... placeholders.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	rows, err := d.db.QueryContext(ctx, statement, orderedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows)
}

// RunDDL executes a statement with no result set.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	_, err := d.db.ExecContext(ctx, statement)
	return err
}

// PingStatement returns the health probe statement.
func (d *Driver) PingStatement() string {
	return "SELECT 1"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "postgres"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "transactions", "prepared_statements"}
}

func buildDSN(desc *base.Descriptor) string {
	port := desc.Port
	if port == 0 {
		port = 5432
	}
	sslmode := desc.StringOption("sslmode", "require")
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		desc.Host, port, desc.Database, desc.Username, desc.Password, sslmode)
}

// orderedArgs flattens the parameter map into positional arguments, sorted
// by key so binding is deterministic.
func orderedArgs(params map[string]interface{}) []interface{} {
	if len(params) == 0 {
		return nil
	}
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

// scanRows converts a sql.Rows cursor into a columnar result. []byte values
// are converted to strings so text columns serialize cleanly.
func scanRows(rows *sql.Rows) (*base.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &base.QueryResult{
		Columns: columns,
		Rows:    make([][]interface{}, 0),
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}
