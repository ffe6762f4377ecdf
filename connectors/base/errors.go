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

package base

import "errors"

// Code is a stable machine-readable error code. Callers branch on codes,
// never on message text.
type Code string

const (
	CodeConnectionFailed   Code = "CONNECTION_FAILED"
	CodeNotConnected       Code = "NOT_CONNECTED"
	CodeQueryFailed        Code = "QUERY_FAILED"
	CodeDDLFailed          Code = "DDL_FAILED"
	CodeConnectionExists   Code = "CONNECTION_EXISTS"
	CodeMaxConnections     Code = "MAX_CONNECTIONS"
	CodeUnknownClientType  Code = "UNKNOWN_CLIENT_TYPE"
	CodeConnectionNotFound Code = "CONNECTION_NOT_FOUND"
	CodeRetryExhausted     Code = "RETRY_EXHAUSTED"
	CodeInvalidPoolSize    Code = "INVALID_POOL_SIZE"
	CodeToolNotFound       Code = "TOOL_NOT_FOUND"
)

// Error is the typed error returned by every lifecycle and registry
// operation. The underlying cause is preserved for errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a typed error with an optional underlying cause.
func NewError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from an error chain, or "" for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
