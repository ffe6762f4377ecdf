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

// Package mongodb implements the MongoDB backend driver. Statements are
// database commands in extended-JSON form, e.g. {"ping": 1} or
// {"find": "users", "filter": {"age": {"$gt": 30}}}.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/polyconn/polyconn/connectors/base"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 100
	defaultMinPoolSize    = 10
)

// Driver runs extended-JSON commands against one MongoDB database.
type Driver struct {
	client   *mongo.Client
	database *mongo.Database
}

// New creates an unconnected MongoDB driver.
func New() *Driver {
	return &Driver{}
}

// Open connects the client and verifies the server with a primary-read ping.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	uri := buildURI(desc)

	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetMaxPoolSize(uint64(desc.IntOption("max_pool_size", defaultMaxPoolSize)))
	clientOpts.SetMinPoolSize(uint64(desc.IntOption("min_pool_size", defaultMinPoolSize)))
	clientOpts.SetConnectTimeout(desc.DurationOption("connect_timeout", defaultConnectTimeout))

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping: %w", err)
	}

	d.client = client
	d.database = client.Database(desc.Database)
	return nil
}

// Close disconnects the client.
func (d *Driver) Close(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	d.database = nil
	return err
}

// RunQuery parses the statement as an extended-JSON command, runs it and
// flattens the reply. Cursor-bearing replies (find, aggregate) yield one row
// per document in the first batch; other replies yield the reply document
// itself.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	cmd, err := parseCommand(statement, params)
	if err != nil {
		return nil, err
	}

	var reply bson.M
	if err := d.database.RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, err
	}

	result := &base.QueryResult{
		Columns:  []string{"document"},
		Metadata: map[string]interface{}{"ok": reply["ok"]},
	}

	if cursor, ok := reply["cursor"].(bson.M); ok {
		if batch, ok := cursor["firstBatch"].(bson.A); ok {
			for _, doc := range batch {
				result.Rows = append(result.Rows, []interface{}{doc})
			}
			result.RowCount = len(result.Rows)
			return result, nil
		}
	}

	result.Rows = [][]interface{}{{reply}}
	result.RowCount = 1
	return result, nil
}

// RunDDL runs a command whose reply the caller does not need (createIndexes,
// drop, insert and the like).
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	cmd, err := parseCommand(statement, nil)
	if err != nil {
		return err
	}
	return d.database.RunCommand(ctx, cmd).Err()
}

// PingStatement returns the health probe command.
func (d *Driver) PingStatement() string {
	return `{"ping": 1}`
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "mongodb"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "aggregation"}
}

// parseCommand decodes the extended-JSON statement into an ordered document
// (the command name must stay the first key) and appends any extra
// parameters as top-level fields.
func parseCommand(statement string, params map[string]interface{}) (bson.D, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(statement), false, &cmd); err != nil {
		return nil, fmt.Errorf("statement is not a valid command document: %w", err)
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("statement is an empty command document")
	}
	for k, v := range params {
		cmd = append(cmd, bson.E{Key: k, Value: v})
	}
	return cmd, nil
}

func buildURI(desc *base.Descriptor) string {
	port := desc.Port
	if port == 0 {
		port = 27017
	}
	if desc.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%d/%s",
			url.QueryEscape(desc.Username), url.QueryEscape(desc.Password), desc.Host, port, desc.Database)
	}
	return fmt.Sprintf("mongodb://%s:%d/%s", desc.Host, port, desc.Database)
}
