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
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyconn/polyconn/connectors/base"
	"github.com/polyconn/polyconn/connectors/sdk"
)

func newTestRegistry(maxConns int) *Registry {
	r := New(maxConns)
	r.RegisterDriver("postgres", func() sdk.Driver { return sdk.NewMockDriver("postgres") })
	r.RegisterDriver("mysql", func() sdk.Driver { return sdk.NewMockDriver("mysql") })
	return r
}

func testDescriptor() *base.Descriptor {
	return &base.Descriptor{
		Host:     "db.internal",
		Port:     5432,
		Database: "appdb",
		Username: "svc",
		Password: "hunter2",
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	id, err := r.Create(ctx, "primary", "postgres", testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "primary", id)

	client, err := r.Get("primary")
	require.NoError(t, err)
	assert.Equal(t, base.StateConnected, client.State())
	assert.Equal(t, "postgres", client.Type())
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "postgres", testDescriptor())
	require.NoError(t, err)

	// Same id with a different backend type is still a conflict
	_, err = r.Create(ctx, "a", "mysql", testDescriptor())
	require.Error(t, err)
	assert.Equal(t, base.CodeConnectionExists, base.CodeOf(err))

	// The original connection is untouched
	client, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "postgres", client.Type())
}

func TestRegistry_UnknownClientType(t *testing.T) {
	r := newTestRegistry(5)

	_, err := r.Create(context.Background(), "x", "oracle", testDescriptor())
	require.Error(t, err)
	assert.Equal(t, base.CodeUnknownClientType, base.CodeOf(err))
	assert.Empty(t, r.List())
}

func TestRegistry_CapacityEnforced(t *testing.T) {
	r := newTestRegistry(2)
	ctx := context.Background()

	_, err := r.Create(ctx, "x", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "y", "postgres", testDescriptor())
	require.NoError(t, err)

	_, err = r.Create(ctx, "z", "postgres", testDescriptor())
	require.Error(t, err)
	assert.Equal(t, base.CodeMaxConnections, base.CodeOf(err))

	// Closing one frees a slot for the same request
	require.NoError(t, r.Close(ctx, "x"))
	_, err = r.Create(ctx, "z", "postgres", testDescriptor())
	require.NoError(t, err)
}

func TestRegistry_FailedConnectLeavesNoRecord(t *testing.T) {
	r := New(5)
	r.RegisterDriver("flaky", func() sdk.Driver {
		d := sdk.NewMockDriver("flaky")
		d.OpenErr = errors.New("connection refused")
		return d
	})

	_, err := r.Create(context.Background(), "bad", "flaky", testDescriptor())
	require.Error(t, err)
	assert.Equal(t, base.CodeConnectionFailed, base.CodeOf(err))

	_, err = r.Get("bad")
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))
	assert.Equal(t, 0, r.Stats().Live)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry(5)

	_, err := r.Get("missing")
	require.Error(t, err)
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))
}

func TestRegistry_GetBumpsUsage(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	_, err := r.Create(ctx, "c1", "postgres", testDescriptor())
	require.NoError(t, err)

	before := r.List()[0]
	_, _ = r.Get("c1")
	_, _ = r.Get("c1")

	after := r.List()[0]
	assert.Equal(t, before.UseCount+2, after.UseCount)
	assert.False(t, after.LastUsed.Before(before.LastUsed))
}

func TestRegistry_CloseUnknown(t *testing.T) {
	r := newTestRegistry(5)

	err := r.Close(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := r.Create(ctx, id, "postgres", testDescriptor())
		require.NoError(t, err)
	}

	assert.Equal(t, 3, r.CloseAll(ctx))
	assert.Equal(t, 0, r.Stats().Live)
	assert.Equal(t, 0, r.CloseAll(ctx))
}

func TestRegistry_Reconnect(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	_, err := r.Create(ctx, "c1", "postgres", testDescriptor())
	require.NoError(t, err)

	require.NoError(t, r.Reconnect(ctx, "c1"))

	client, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, base.StateConnected, client.State())

	err = r.Reconnect(ctx, "missing")
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))
}

// gateDriver blocks its second Open (the one issued by a reconnect) until
// the test releases it, so a Close can be interleaved mid-reconnect.
type gateDriver struct {
	*sdk.MockDriver
	opens   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gateDriver) Open(ctx context.Context, desc *base.Descriptor) error {
	if g.opens.Add(1) > 1 {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.MockDriver.Open(ctx, desc)
}

func TestRegistry_ReconnectAfterConcurrentClose(t *testing.T) {
	driver := &gateDriver{
		MockDriver: sdk.NewMockDriver("postgres"),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	r := New(5)
	r.RegisterDriver("postgres", func() sdk.Driver { return driver })
	ctx := context.Background()

	_, err := r.Create(ctx, "c1", "postgres", testDescriptor())
	require.NoError(t, err)

	reconnectErr := make(chan error, 1)
	go func() { reconnectErr <- r.Reconnect(ctx, "c1") }()
	<-driver.entered // reconnect is mid-flight inside Open

	closeErr := make(chan error, 1)
	go func() { closeErr <- r.Close(ctx, "c1") }()

	// Let Close take the registry lock and park on the client before the
	// reconnect is allowed to finish.
	time.Sleep(20 * time.Millisecond)
	close(driver.release)
	require.NoError(t, <-closeErr)

	// The reconnect lost the race: its record is gone, so it must report
	// the connection as not found instead of resurrecting it.
	err = <-reconnectErr
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))

	_, err = r.Get("c1")
	assert.Equal(t, base.CodeConnectionNotFound, base.CodeOf(err))
	assert.Equal(t, 0, r.Stats().Live)

	// Every opened transport was closed again: nothing leaks.
	open, closed, _, _ := driver.Calls()
	assert.Equal(t, open, closed)
}

func TestRegistry_Resize(t *testing.T) {
	r := newTestRegistry(2)
	ctx := context.Background()

	_, err := r.Create(ctx, "a", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "b", "postgres", testDescriptor())
	require.NoError(t, err)

	// Shrinking below the live count is rejected and nothing is evicted
	err = r.Resize(1)
	require.Error(t, err)
	assert.Equal(t, base.CodeInvalidPoolSize, base.CodeOf(err))
	assert.Equal(t, 2, r.Stats().Live)

	require.NoError(t, r.Resize(4))
	_, err = r.Create(ctx, "c", "postgres", testDescriptor())
	require.NoError(t, err)

	err = r.Resize(0)
	assert.Equal(t, base.CodeInvalidPoolSize, base.CodeOf(err))
}

func TestRegistry_ListNeverExposesCredentials(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	desc := testDescriptor()
	desc.Password = "super-secret-password"
	_, err := r.Create(ctx, "c1", "postgres", desc)
	require.NoError(t, err)

	summaries := r.List()
	require.Len(t, summaries, 1)
	assert.Equal(t, "db.internal", summaries[0].Host)

	raw, err := json.Marshal(summaries)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "super-secret-password"),
		"serialized summary leaked the password")
	assert.False(t, strings.Contains(string(raw), "svc"),
		"serialized summary leaked the username")
}

func TestRegistry_ListSortedByID(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := r.Create(ctx, id, "postgres", testDescriptor())
		require.NoError(t, err)
	}

	summaries := r.List()
	require.Len(t, summaries, 3)
	assert.Equal(t, "alpha", summaries[0].ID)
	assert.Equal(t, "mid", summaries[1].ID)
	assert.Equal(t, "zeta", summaries[2].ID)
}

func TestRegistry_Stats(t *testing.T) {
	r := newTestRegistry(4)
	ctx := context.Background()

	_, err := r.Create(ctx, "p1", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "p2", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "m1", "mysql", testDescriptor())
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 3, stats.Live)
	assert.Equal(t, 4, stats.Max)
	assert.InDelta(t, 75.0, stats.Utilization, 0.01)
	assert.Equal(t, 2, stats.ByType["postgres"])
	assert.Equal(t, 1, stats.ByType["mysql"])
	assert.Equal(t, 3, stats.ByState["CONNECTED"])
}

func TestRegistry_HealthCheckAll(t *testing.T) {
	bad := sdk.NewMockDriver("postgres")
	r := New(5)
	r.RegisterDriver("postgres", func() sdk.Driver { return sdk.NewMockDriver("postgres") })
	r.RegisterDriver("badpg", func() sdk.Driver { return bad })
	ctx := context.Background()

	_, err := r.Create(ctx, "good", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "bad", "badpg", testDescriptor())
	require.NoError(t, err)

	bad.SetQueryErr(errors.New("connection reset by peer"))

	results := r.HealthCheckAll(ctx)
	require.Len(t, results, 2)
	assert.True(t, results["good"].Healthy)
	assert.False(t, results["bad"].Healthy)
	assert.Contains(t, results["bad"].LastError, "connection reset")
}

func TestRegistry_ConcurrentCreateRespectsLimit(t *testing.T) {
	r := newTestRegistry(5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = r.Create(ctx, string(rune('a'+n)), "postgres", testDescriptor())
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.Equal(t, base.CodeMaxConnections, base.CodeOf(err))
		}
	}
	assert.Equal(t, 5, created)
	assert.Equal(t, 5, r.Stats().Live)
}

func TestRegistry_DriverTypes(t *testing.T) {
	r := newTestRegistry(5)
	assert.Equal(t, []string{"mysql", "postgres"}, r.DriverTypes())
}
