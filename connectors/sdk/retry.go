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
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/polyconn/polyconn/connectors/base"
)

// RetryConfig configures the exponential-backoff retry policy. The policy
// itself is stateless beyond this configuration and is reusable for any
// operation type: queries, DDL, health probes.
type RetryConfig struct {
	MaxRetries int           // Retries after the initial attempt
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Cap applied to every delay
	Multiplier float64       // Backoff multiplier
	Jitter     float64       // Jitter factor (0-1), 0 disables

	// RetryIf decides whether an error is worth retrying. Nil retries
	// every failure.
	RetryIf func(error) bool

	// OnReconnect is invoked before the next attempt when the failure
	// looks connection-related. Its error is logged by callers, never
	// fatal to the retry loop.
	OnReconnect func(ctx context.Context) error
}

// DefaultRetryConfig returns a sensible default configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// IsConnectionError reports whether an error looks like a transport-level
// failure that a reconnect might repair.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if base.IsCode(err, base.CodeConnectionFailed) || base.IsCode(err, base.CodeNotConnected) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	connectionPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"broken pipe",
		"no route to host",
		"server closed",
		"not connected",
		"eof",
	}
	for _, pattern := range connectionPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryFunc is the operation type that can be retried.
type RetryFunc[T any] func() (T, error)

// RetryWithBackoff executes fn with bounded exponential-backoff retries.
// The delay before retry n is min(BaseDelay * Multiplier^n, MaxDelay); the
// sleep is cancellable through ctx. When every attempt has failed the last
// error is wrapped as RETRY_EXHAUSTED.
func RetryWithBackoff[T any](ctx context.Context, config *RetryConfig, fn RetryFunc[T]) (T, error) {
	var zero T

	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if config.RetryIf != nil && !config.RetryIf(err) {
			return zero, err
		}

		if attempt >= config.MaxRetries {
			break
		}

		waitTime := backoffDelay(config, attempt)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(waitTime):
		}

		// A reconnect between attempts gives connection-level failures a
		// chance to clear before the operation is tried again.
		if config.OnReconnect != nil && IsConnectionError(err) {
			_ = config.OnReconnect(ctx)
		}
	}

	return zero, base.NewError(base.CodeRetryExhausted,
		fmt.Sprintf("operation failed after %d attempts", config.MaxRetries+1), lastErr)
}

// RetryVoid executes a void function with retry.
func RetryVoid(ctx context.Context, config *RetryConfig, fn func() error) error {
	_, err := RetryWithBackoff(ctx, config, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// backoffDelay computes the capped, jittered delay for a retry attempt.
func backoffDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter > 0 {
		jitter := delay * config.Jitter * (rand.Float64()*2 - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Backoff is a standalone calculator for callers that manage their own
// retry loop.
type Backoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	attempt    int
}

// NewBackoff creates a backoff calculator.
func NewBackoff(base, max time.Duration, multiplier float64) *Backoff {
	return &Backoff{BaseDelay: base, MaxDelay: max, Multiplier: multiplier}
}

// Next returns the next delay in the sequence.
func (b *Backoff) Next() time.Duration {
	delay := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(b.attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	b.attempt++
	return time.Duration(delay)
}

// Reset restarts the sequence.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns how many delays have been handed out.
func (b *Backoff) Attempt() int {
	return b.attempt
}
