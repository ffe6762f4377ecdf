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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func capture(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	l := New("test-component")
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func decode(t *testing.T, buf *bytes.Buffer) Entry {
	t.Helper()
	var e Entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("log line is not valid JSON: %v (line: %s)", err, buf.String())
	}
	return e
}

func TestLogger_Info(t *testing.T) {
	l, buf := capture(t)

	l.Info("connection created", map[string]interface{}{"id": "pg-1"})

	e := decode(t, buf)
	if e.Level != INFO {
		t.Errorf("level = %q, want INFO", e.Level)
	}
	if e.Component != "test-component" {
		t.Errorf("component = %q, want test-component", e.Component)
	}
	if e.Message != "connection created" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Fields["id"] != "pg-1" {
		t.Errorf("fields[id] = %v, want pg-1", e.Fields["id"])
	}
	if e.Timestamp == "" {
		t.Error("missing timestamp")
	}
}

func TestLogger_ErrorReq(t *testing.T) {
	l, buf := capture(t)

	l.ErrorReq("req-42", "reconnect failed", errors.New("boom"), nil)

	e := decode(t, buf)
	if e.Level != ERROR {
		t.Errorf("level = %q, want ERROR", e.Level)
	}
	if e.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", e.RequestID)
	}
	if e.Fields["error"] != "boom" {
		t.Errorf("fields[error] = %v, want boom", e.Fields["error"])
	}
}

func TestLogger_InfoWithDuration(t *testing.T) {
	l, buf := capture(t)

	l.InfoWithDuration("sweep complete", 12.5, nil)

	e := decode(t, buf)
	if e.Fields["duration_ms"] != 12.5 {
		t.Errorf("fields[duration_ms] = %v, want 12.5", e.Fields["duration_ms"])
	}
}
