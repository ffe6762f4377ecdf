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

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver is the backend-specific plugin surface. A driver owns exactly one
// transport handle and translates generic statements into backend-native
// calls; it carries no lifecycle state machine, retry logic or timing.
// Client wraps these primitives with all of that.
//
// Drivers are not required to be safe for concurrent use with Open/Close;
// the wrapping Client serializes those against in-flight operations.
type Driver interface {
	// Open establishes the transport described by desc. Called at most once
	// between Close calls.
	Open(ctx context.Context, desc *base.Descriptor) error

	// Close releases the transport handle. Must tolerate being called when
	// no transport is open.
	Close(ctx context.Context) error

	// RunQuery executes a read statement and returns columnar results.
	RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error)

	// RunDDL executes a statement with no result set (DDL, writes, publishes).
	RunDDL(ctx context.Context, statement string) error

	// PingStatement returns the backend-native probe statement used by
	// health checks, e.g. "SELECT 1" or "PING". The probe is executed
	// through RunQuery and must be cheap and non-destructive.
	PingStatement() string

	// Type returns the backend type tag (postgres, redis, s3, ...).
	Type() string

	// Capabilities lists the operations this backend supports.
	Capabilities() []string
}
