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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ScrapesPoolState(t *testing.T) {
	r := newTestRegistry(4)
	ctx := context.Background()

	_, err := r.Create(ctx, "p1", "postgres", testDescriptor())
	require.NoError(t, err)
	_, err = r.Create(ctx, "m1", "mysql", testDescriptor())
	require.NoError(t, err)

	collector := NewCollector(r)

	// 3 pool gauges + 2 by-type + 1 by-state + 3 counters x 2 connections
	assert.Equal(t, 12, testutil.CollectAndCount(collector))
}

func TestCollector_EmptyPool(t *testing.T) {
	collector := NewCollector(newTestRegistry(4))

	// Only the three pool-level gauges when nothing is connected
	assert.Equal(t, 3, testutil.CollectAndCount(collector))
}
