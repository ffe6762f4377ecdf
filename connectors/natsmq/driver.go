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

// Package natsmq implements the NATS message-queue backend driver.
// Statements are "VERB subject [payload]" lines:
//
//	PUB events.user.created {"id": 42}
//	REQ rpc.inventory.lookup {"sku": "X-9"}
//	PING
package natsmq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver publishes and requests over one NATS connection.
type Driver struct {
	conn       *nats.Conn
	reqTimeout time.Duration
}

// New creates an unconnected NATS driver.
func New() *Driver {
	return &Driver{}
}

// Open dials the server and verifies the connection with a flush.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	port := desc.Port
	if port == 0 {
		port = 4222
	}
	url := fmt.Sprintf("nats://%s:%d", desc.Host, port)

	opts := []nats.Option{
		nats.Name(desc.StringOption("client_name", "polyconn")),
		nats.Timeout(desc.DurationOption("dial_timeout", 10 * time.Second)),
		nats.MaxReconnects(-1),
	}
	if desc.Username != "" {
		opts = append(opts, nats.UserInfo(desc.Username, desc.Password))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}

	if err := conn.FlushTimeout(5 * time.Second); err != nil {
		conn.Close()
		return fmt.Errorf("flush: %w", err)
	}

	d.conn = conn
	d.reqTimeout = desc.DurationOption("request_timeout", 10*time.Second)
	return nil
}

// Close drains the connection so buffered messages are delivered first.
func (d *Driver) Close(ctx context.Context) error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Drain()
	d.conn = nil
	return err
}

// RunQuery handles PING (round-trip flush) and REQ (request/reply).
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	verb, subject, payload, err := parseStatement(statement)
	if err != nil {
		return nil, err
	}

	switch verb {
	case "PING":
		start := time.Now()
		if err := d.conn.FlushTimeout(5 * time.Second); err != nil {
			return nil, err
		}
		return &base.QueryResult{
			Columns:  []string{"rtt"},
			Rows:     [][]interface{}{{time.Since(start).String()}},
			RowCount: 1,
		}, nil

	case "REQ":
		reqCtx, cancel := context.WithTimeout(ctx, d.reqTimeout)
		defer cancel()

		msg, err := d.conn.RequestWithContext(reqCtx, subject, []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", subject, err)
		}
		return &base.QueryResult{
			Columns:  []string{"subject", "data"},
			Rows:     [][]interface{}{{msg.Subject, string(msg.Data)}},
			RowCount: 1,
		}, nil

	default:
		return nil, fmt.Errorf("verb %q is not a read operation", verb)
	}
}

// RunDDL handles PUB: fire-and-forget publish, flushed before returning.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	verb, subject, payload, err := parseStatement(statement)
	if err != nil {
		return err
	}
	if verb != "PUB" {
		return fmt.Errorf("verb %q is not a write operation", verb)
	}

	if err := d.conn.Publish(subject, []byte(payload)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return d.conn.FlushTimeout(5 * time.Second)
}

// PingStatement returns the health probe statement.
func (d *Driver) PingStatement() string {
	return "PING"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "nats"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "pubsub", "request_reply"}
}

// parseStatement splits "VERB subject payload"; the payload keeps its
// internal spacing. PING takes neither subject nor payload.
func parseStatement(statement string) (verb, subject, payload string, err error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return "", "", "", fmt.Errorf("empty statement")
	}

	parts := strings.SplitN(statement, " ", 3)
	verb = strings.ToUpper(parts[0])

	switch verb {
	case "PING":
		return verb, "", "", nil
	case "PUB", "REQ":
		if len(parts) < 2 || parts[1] == "" {
			return "", "", "", fmt.Errorf("%s requires a subject", verb)
		}
		subject = parts[1]
		if len(parts) > 2 {
			payload = parts[2]
		}
		return verb, subject, payload, nil
	default:
		return "", "", "", fmt.Errorf("unknown verb %q", parts[0])
	}
}
