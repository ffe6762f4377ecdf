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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/polyconn/polyconn/shared/logger"
)

// SecretsManager resolves a secret reference into credential key-value
// pairs. Secrets are JSON objects with string values; a plain-string secret
// comes back under the "value" key.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// secretsAPI is the slice of the AWS client we call. Satisfied by
// *secretsmanager.Client and test fakes.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager fetches secrets from AWS Secrets Manager with a TTL
// cache so repeated connection setups do not hammer the API.
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	ttl    time.Duration
	log    *logger.Logger
	mu     sync.RWMutex
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions configures NewAWSSecretsManager.
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
}

// NewAWSSecretsManager builds a manager on the ambient AWS credential chain.
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		log:    logger.New("secrets"),
	}, nil
}

// GetSecret returns the credential map for ref, from cache when fresh.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", maskRef(ref), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var credentials map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &credentials); err != nil {
		// Single-value secrets (a bare API key) are not JSON objects
		credentials = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	s.log.Info("secret fetched", map[string]interface{}{"ref": maskRef(ref)})
	return credentials, nil
}

// Invalidate removes one secret from the cache.
func (s *AWSSecretsManager) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

// EnvSecretsManager resolves secrets from environment variables, for
// development and tests. A ref "DB_CREDS" reads DB_CREDS_USERNAME and
// DB_CREDS_PASSWORD.
type EnvSecretsManager struct{}

// GetSecret reads <REF>_USERNAME and <REF>_PASSWORD from the environment.
func (s *EnvSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	prefix := strings.ToUpper(strings.ReplaceAll(ref, "-", "_"))
	credentials := map[string]string{}
	if v := os.Getenv(prefix + "_USERNAME"); v != "" {
		credentials["username"] = v
	}
	if v := os.Getenv(prefix + "_PASSWORD"); v != "" {
		credentials["password"] = v
	}
	if len(credentials) == 0 {
		return nil, fmt.Errorf("no environment credentials found for %s", ref)
	}
	return credentials, nil
}

// ResolveCredentials fills in credentials for every enabled connection that
// names a credentials_secret. Inline credentials stay untouched otherwise.
func ResolveCredentials(ctx context.Context, cfg *Config, sm SecretsManager) error {
	for id, conn := range cfg.Connections {
		if !conn.Enabled || conn.CredentialsSecret == "" {
			continue
		}

		creds, err := sm.GetSecret(ctx, conn.CredentialsSecret)
		if err != nil {
			return fmt.Errorf("resolve credentials for connection %q: %w", id, err)
		}

		if u, ok := creds["username"]; ok {
			conn.Username = u
		}
		if p, ok := creds["password"]; ok {
			conn.Password = p
		}
		cfg.Connections[id] = conn
	}
	return nil
}

// maskRef keeps only the last path segment of a secret reference so logs
// never carry full ARNs.
func maskRef(ref string) string {
	if idx := strings.LastIndex(ref, ":"); idx != -1 {
		return "..." + ref[idx+1:]
	}
	return ref
}
