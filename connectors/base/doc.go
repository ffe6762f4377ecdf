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
Package base defines the core contract shared by every Polyconn backend.

# Overview

Polyconn manages connections to heterogeneous backends (relational
databases, document stores, key-value stores, REST endpoints, object
storage, message queues) through one uniform lifecycle contract. This
package holds the pieces of that contract that every other package depends
on: the Client interface, the connection state machine, the immutable
Descriptor, result and health-status types, and the typed error taxonomy.

# State Machine

Every client moves through a fixed set of states:

	DISCONNECTED --connect--> CONNECTING --success--> CONNECTED
	CONNECTING   --failure--> ERROR
	CONNECTED    --disconnect--> CLOSED

DISCONNECTED and CLOSED are acceptable idle states. A client is CONNECTED
if and only if it holds a live transport handle.

# Errors

Operations fail with *Error carrying a stable Code (CONNECTION_FAILED,
NOT_CONNECTED, QUERY_FAILED, ...) so callers can decide between retrying
and failing fast without matching on message strings. Causes are wrapped
and reachable via errors.As/Is.

Concrete backends live in sibling packages (postgres, mysql, mongodb,
redis, cassandra, s3, resthttp, natsmq); the lifecycle wrapper that turns
a backend driver into a Client lives in the sdk package.
*/
package base
