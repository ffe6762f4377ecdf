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

// Package resthttp implements the REST API backend driver. Statements are
// "METHOD /path" lines; parameters become the query string for reads and
// the JSON body for writes.
package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
)

// Driver sends HTTP requests against one base URL.
type Driver struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	headers    map[string]string
}

// New creates an unconnected REST driver.
func New() *Driver {
	return &Driver{}
}

// Open builds the base URL from the descriptor and verifies it with a GET
// against the configured health path ("/" by default). Port 443 or the
// "scheme" option selects https.
func (d *Driver) Open(ctx context.Context, desc *base.Descriptor) error {
	scheme := desc.StringOption("scheme", "")
	if scheme == "" {
		scheme = "http"
		if desc.Port == 443 {
			scheme = "https"
		}
	}

	baseURL := scheme + "://" + desc.Host
	if desc.Port != 0 && desc.Port != 80 && desc.Port != 443 {
		baseURL = fmt.Sprintf("%s://%s:%d", scheme, desc.Host, desc.Port)
	}

	client := &http.Client{
		Timeout: desc.DurationOption("timeout", 30 * time.Second),
	}

	headers := map[string]string{}
	if extra, ok := desc.Options["headers"].(map[string]interface{}); ok {
		for k, v := range extra {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	probe := desc.StringOption("health_path", "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+probe, nil)
	if err != nil {
		return err
	}
	if desc.Username != "" {
		req.SetBasicAuth(desc.Username, desc.Password)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", probe, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe %s: server returned %d", probe, resp.StatusCode)
	}

	d.httpClient = client
	d.baseURL = baseURL
	d.username = desc.Username
	d.password = desc.Password
	d.headers = headers
	return nil
}

// Close drops the client; idle connections are released by the transport.
func (d *Driver) Close(ctx context.Context) error {
	if d.httpClient != nil {
		d.httpClient.CloseIdleConnections()
		d.httpClient = nil
	}
	return nil
}

// RunQuery sends a GET (or other read method) with params as the query
// string. The response body is returned as one row; JSON array bodies are
// expanded to one row per element.
func (d *Driver) RunQuery(ctx context.Context, statement string, params map[string]interface{}) (*base.QueryResult, error) {
	method, path, err := parseStatement(statement)
	if err != nil {
		return nil, err
	}

	reqURL := d.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		reqURL += sep + q.Encode()
	}

	status, body, err := d.do(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, status, truncate(body, 200))
	}

	result := &base.QueryResult{
		Columns:  []string{"body"},
		Metadata: map[string]interface{}{"status": status},
	}

	var items []interface{}
	if json.Unmarshal([]byte(body), &items) == nil {
		for _, item := range items {
			result.Rows = append(result.Rows, []interface{}{item})
		}
	} else {
		result.Rows = [][]interface{}{{body}}
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// RunDDL sends a write request. Anything after the path is the literal
// request body: `POST /widgets {"name": "x"}`.
func (d *Driver) RunDDL(ctx context.Context, statement string) error {
	method, rest, err := parseStatement(statement)
	if err != nil {
		return err
	}

	path, body, _ := strings.Cut(rest, " ")

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}

	status, respBody, err := d.do(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, status, truncate(respBody, 200))
	}
	return nil
}

// PingStatement probes the service root.
func (d *Driver) PingStatement() string {
	return "GET /"
}

// Type returns the backend type tag.
func (d *Driver) Type() string {
	return "rest"
}

// Capabilities returns the supported operations.
func (d *Driver) Capabilities() []string {
	return []string{"query", "ddl", "http"}
}

func (d *Driver) do(ctx context.Context, method, reqURL string, body io.Reader) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBody), nil
}

// parseStatement splits "METHOD rest-of-line" and validates the method.
func parseStatement(statement string) (method, rest string, err error) {
	statement = strings.TrimSpace(statement)
	method, rest, _ = strings.Cut(statement, " ")
	method = strings.ToUpper(method)

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
	default:
		return "", "", fmt.Errorf("unsupported method %q", method)
	}

	if rest == "" || !strings.HasPrefix(rest, "/") {
		return "", "", fmt.Errorf("statement must name an absolute path, got %q", rest)
	}
	return method, rest, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
