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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
)

func testDescriptor() *base.Descriptor {
	return &base.Descriptor{Host: "localhost", Port: 5432, Database: "testdb", Username: "app"}
}

func TestClient_InitialState(t *testing.T) {
	client := NewClient(NewMockDriver("postgres"))
	if client.State() != base.StateDisconnected {
		t.Errorf("initial state = %v, want DISCONNECTED", client.State())
	}
	if client.LastError() != nil {
		t.Error("expected nil last error on a fresh client")
	}
	if client.Type() != "postgres" {
		t.Errorf("Type() = %q, want postgres", client.Type())
	}
}

func TestClient_ConnectSuccess(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if client.State() != base.StateConnected {
		t.Errorf("state = %v, want CONNECTED", client.State())
	}
	if driver.OpenCalls != 1 {
		t.Errorf("driver opened %d times, want 1", driver.OpenCalls)
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	driver := NewMockDriver("postgres")
	driver.OpenErr = errors.New("dial tcp: connection refused")
	client := NewClient(driver)

	err := client.Connect(context.Background(), testDescriptor())
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !base.IsCode(err, base.CodeConnectionFailed) {
		t.Errorf("error code = %q, want CONNECTION_FAILED", base.CodeOf(err))
	}
	if client.State() != base.StateError {
		t.Errorf("state = %v, want ERROR", client.State())
	}
	if client.LastError() == nil {
		t.Error("expected last error to be recorded")
	}
}

func TestClient_ConnectWhileConnected_NoSecondTransport(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatalf("second connect should be a no-op, got %v", err)
	}
	if driver.OpenCalls != 1 {
		t.Errorf("driver opened %d times, want 1 (no leaked second transport)", driver.OpenCalls)
	}
}

func TestClient_Disconnect(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("unexpected disconnect error: %v", err)
	}
	if client.State() != base.StateClosed {
		t.Errorf("state = %v, want CLOSED", client.State())
	}
	if driver.CloseCalls != 1 {
		t.Errorf("driver closed %d times, want 1", driver.CloseCalls)
	}

	// Safe to call again, transport not touched twice
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("repeat disconnect should be a no-op, got %v", err)
	}
	if driver.CloseCalls != 1 {
		t.Errorf("driver closed %d times after repeat disconnect, want 1", driver.CloseCalls)
	}
}

func TestClient_DisconnectNeverConnected(t *testing.T) {
	client := NewClient(NewMockDriver("redis"))
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect on fresh client should succeed, got %v", err)
	}
	if client.State() != base.StateClosed {
		t.Errorf("state = %v, want CLOSED", client.State())
	}
}

func TestClient_RunQuery(t *testing.T) {
	driver := NewMockDriver("postgres")
	driver.QueryResult = &base.QueryResult{
		Columns:  []string{"id", "name"},
		Rows:     [][]interface{}{{1, "alice"}, {2, "bob"}},
		RowCount: 2,
	}
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}

	result, err := client.RunQuery(ctx, "SELECT id, name FROM users", nil)
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("row count = %d, want 2", result.RowCount)
	}
	if result.Duration < 0 {
		t.Error("expected non-negative duration attached to result")
	}
	if driver.LastStatement != "SELECT id, name FROM users" {
		t.Errorf("driver saw statement %q", driver.LastStatement)
	}
}

func TestClient_RunQueryNotConnected(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)

	_, err := client.RunQuery(context.Background(), "SELECT 1", nil)
	if !base.IsCode(err, base.CodeNotConnected) {
		t.Fatalf("error code = %q, want NOT_CONNECTED", base.CodeOf(err))
	}
	if driver.QueryCalls != 0 {
		t.Error("backend was contacted despite NOT_CONNECTED state")
	}
}

func TestClient_RunQueryFailureWrapped(t *testing.T) {
	driver := NewMockDriver("postgres")
	cause := errors.New(`relation "nope" does not exist`)
	driver.QueryErr = cause
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}

	_, err := client.RunQuery(ctx, "SELECT * FROM nope", nil)
	if !base.IsCode(err, base.CodeQueryFailed) {
		t.Fatalf("error code = %q, want QUERY_FAILED", base.CodeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Error("original backend error lost in wrapping")
	}
}

func TestClient_RunDDL(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	if err := client.RunDDL(ctx, "CREATE TABLE t (id int)"); err != nil {
		t.Fatalf("unexpected DDL error: %v", err)
	}
	if driver.DDLCalls != 1 {
		t.Errorf("driver ran %d DDLs, want 1", driver.DDLCalls)
	}

	driver.DDLErr = errors.New("syntax error")
	err := client.RunDDL(ctx, "CREATE GARBAGE")
	if !base.IsCode(err, base.CodeDDLFailed) {
		t.Errorf("error code = %q, want DDL_FAILED", base.CodeOf(err))
	}
}

func TestClient_RunDDLNotConnected(t *testing.T) {
	client := NewClient(NewMockDriver("mysql"))
	err := client.RunDDL(context.Background(), "DROP TABLE t")
	if !base.IsCode(err, base.CodeNotConnected) {
		t.Fatalf("error code = %q, want NOT_CONNECTED", base.CodeOf(err))
	}
}

func TestClient_HealthCheckDisconnected(t *testing.T) {
	client := NewClient(NewMockDriver("postgres"))

	status := client.HealthCheck(context.Background())
	if status.Connected {
		t.Error("expected not connected")
	}
	if status.Healthy {
		t.Error("expected unhealthy")
	}
	if status.State != base.StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", status.State)
	}
}

func TestClient_HealthCheckProbe(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}

	status := client.HealthCheck(ctx)
	if !status.Healthy || !status.ProbeOK {
		t.Errorf("expected healthy probe, got healthy=%v probe=%v", status.Healthy, status.ProbeOK)
	}
	if driver.LastStatement != driver.Ping {
		t.Errorf("probe ran %q, want ping statement %q", driver.LastStatement, driver.Ping)
	}
}

func TestClient_HealthCheckProbeFailure_NeverThrows(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	driver.SetQueryErr(errors.New("server closed the connection unexpectedly"))

	status := client.HealthCheck(ctx)
	if status.Healthy {
		t.Error("expected unhealthy status after probe failure")
	}
	if status.ProbeOK {
		t.Error("expected probe failure to be recorded")
	}
	if status.LastError == "" {
		t.Error("expected probe error in status")
	}
	// Probe failure is observed, not a forced transition
	if client.State() != base.StateConnected {
		t.Errorf("state = %v, health check must not force transitions", client.State())
	}
}

func TestClient_Reconnect_ReusesDescriptor(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	desc := testDescriptor()
	if err := client.Connect(ctx, desc); err != nil {
		t.Fatal(err)
	}
	if err := client.Reconnect(ctx); err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if client.State() != base.StateConnected {
		t.Errorf("state = %v, want CONNECTED", client.State())
	}
	if driver.CloseCalls != 1 || driver.OpenCalls != 2 {
		t.Errorf("close=%d open=%d, want 1 and 2", driver.CloseCalls, driver.OpenCalls)
	}
	if driver.LastDesc.Host != desc.Host || driver.LastDesc.Database != desc.Database {
		t.Error("reconnect did not reuse the stored descriptor")
	}
}

func TestClient_ReconnectNeverConnected(t *testing.T) {
	client := NewClient(NewMockDriver("postgres"))
	if err := client.Reconnect(context.Background()); err == nil {
		t.Fatal("expected error reconnecting a never-connected client")
	}
}

func TestClient_DescriptorImmutable(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	desc := testDescriptor()
	desc.Options = map[string]interface{}{"sslmode": "require"}
	if err := client.Connect(ctx, desc); err != nil {
		t.Fatal(err)
	}

	// Caller mutates its copy after handing it over
	desc.Host = "evil.example"
	desc.Options["sslmode"] = "disable"

	stored := client.Descriptor()
	if stored.Host != "localhost" {
		t.Error("caller mutation leaked into the client's descriptor")
	}
	if stored.Options["sslmode"] != "require" {
		t.Error("caller option mutation leaked into the client's descriptor")
	}
}

func TestClient_ConcurrentQueriesAndDisconnect(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Either succeeds or fails NOT_CONNECTED; never panics or races
			_, _ = client.RunQuery(ctx, "SELECT 1", nil)
		}()
	}

	time.Sleep(time.Millisecond)
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect error: %v", err)
	}
	wg.Wait()

	if client.State() != base.StateClosed {
		t.Errorf("state = %v, want CLOSED", client.State())
	}
}

func TestClient_MetricsRecorded(t *testing.T) {
	driver := NewMockDriver("postgres")
	client := NewClient(driver)
	ctx := context.Background()

	if err := client.Connect(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.RunQuery(ctx, "SELECT 1", nil); err != nil {
		t.Fatal(err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}

	stats := client.Metrics().GetStats()
	if stats.ConnectsTotal != 1 || stats.QueriesTotal != 1 || stats.DisconnectsTotal != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Connected {
		t.Error("metrics still report connected after disconnect")
	}
}
