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
	"sync"

	"github.com/polyconn/polyconn/connectors/base"
)

// MockDriver is a scriptable Driver implementation for tests in this and
// dependent packages (registry, monitor, catalog).
type MockDriver struct {
	BackendType string
	Caps        []string
	Ping        string

	// Scripted failures. OpenErrs is consumed one error per Open call,
	// letting tests fail the first N connects and then succeed.
	OpenErr  error
	OpenErrs []error
	CloseErr error
	QueryErr error
	DDLErr   error

	// Canned query result; a minimal one is synthesized when nil.
	QueryResult *base.QueryResult

	// Call tracking
	OpenCalls  int
	CloseCalls int
	QueryCalls int
	DDLCalls   int

	LastStatement string
	LastParams    map[string]interface{}
	LastDesc      *base.Descriptor

	mu sync.Mutex
}

// NewMockDriver creates a mock for the given backend type tag.
func NewMockDriver(backendType string) *MockDriver {
	return &MockDriver{
		BackendType: backendType,
		Caps:        []string{"query", "ddl"},
		Ping:        "SELECT 1",
	}
}

func (m *MockDriver) Open(ctx context.Context, desc *base.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	m.LastDesc = desc

	if len(m.OpenErrs) > 0 {
		err := m.OpenErrs[0]
		m.OpenErrs = m.OpenErrs[1:]
		return err
	}
	return m.OpenErr
}

func (m *MockDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return m.CloseErr
}

func (m *MockDriver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	m.LastStatement = statement
	m.LastParams = params

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if m.QueryResult != nil {
		return m.QueryResult, nil
	}
	return &base.QueryResult{
		Columns:  []string{"result"},
		Rows:     [][]interface{}{{"ok"}},
		RowCount: 1,
	}, nil
}

func (m *MockDriver) RunDDL(ctx context.Context, statement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DDLCalls++
	m.LastStatement = statement
	return m.DDLErr
}

func (m *MockDriver) PingStatement() string {
	return m.Ping
}

func (m *MockDriver) Type() string {
	return m.BackendType
}

func (m *MockDriver) Capabilities() []string {
	return m.Caps
}

// Calls returns the open/close/query/ddl call counts.
func (m *MockDriver) Calls() (open, close, query, ddl int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OpenCalls, m.CloseCalls, m.QueryCalls, m.DDLCalls
}

// SetQueryErr swaps the scripted query error. Safe to call while a client
// built on this mock is in use.
func (m *MockDriver) SetQueryErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryErr = err
}
