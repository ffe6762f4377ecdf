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

/*
Package sdk turns a backend-specific Driver into a fully lifecycle-managed
base.Client.

A Driver implements five primitives: Open, Close, RunQuery, RunDDL and
PingStatement. Client composes a driver with the state machine, per-client
locking, wall-clock timing, error translation into the base taxonomy and
metrics, so every backend behaves identically from the caller's point of
view. This is composition rather than subclassing: drivers carry zero
lifecycle logic and the lifecycle carries zero protocol logic.

The package also provides the reusable exponential-backoff retry policy
(RetryWithBackoff, RetryVoid) used to wrap any transient-failure-prone
operation, and MockDriver for tests.

Writing a backend:

	type myDriver struct{ conn *some.Conn }

	func (d *myDriver) Open(ctx context.Context, desc *base.Descriptor) error { ... }
	func (d *myDriver) Close(ctx context.Context) error                       { ... }
	func (d *myDriver) RunQuery(ctx context.Context, stmt string, params map[string]interface{}) (*base.QueryResult, error) { ... }
	func (d *myDriver) RunDDL(ctx context.Context, stmt string) error         { ... }
	func (d *myDriver) PingStatement() string                                 { return "SELECT 1" }
	func (d *myDriver) Type() string                                          { return "mybackend" }
	func (d *myDriver) Capabilities() []string                                { return []string{"query", "ddl"} }

	client := sdk.NewClient(&myDriver{})
	err := client.Connect(ctx, desc)
*/
package sdk
