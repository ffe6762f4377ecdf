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

// Package config loads the service configuration from a YAML file.
// Environment variable references (${VAR}, $VAR, ${VAR:-default}) are
// expanded before parsing, so credentials can stay out of the file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polyconn/polyconn/connectors/base"
)

// Config is the root of the configuration file.
type Config struct {
	Version     string                      `yaml:"version"`
	Server      ServerConfig                `yaml:"server"`
	Pool        PoolConfig                  `yaml:"pool"`
	Monitor     MonitorConfig               `yaml:"monitor"`
	Retry       RetryConfig                 `yaml:"retry"`
	Connections map[string]ConnectionConfig `yaml:"connections,omitempty"`
}

// ServerConfig configures the admin HTTP API.
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// PoolConfig bounds the connection registry.
type PoolConfig struct {
	MaxConnections int `yaml:"max_connections"`
}

// MonitorConfig configures the background health sweeps.
type MonitorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	AutoReconnect bool          `yaml:"auto_reconnect"`
}

// RetryConfig configures the backoff policy for connection attempts.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Multiplier float64       `yaml:"multiplier"`
}

// ConnectionConfig declares one connection to establish at startup.
type ConnectionConfig struct {
	Type     string                 `yaml:"type"`
	Enabled  bool                   `yaml:"enabled"`
	Host     string                 `yaml:"host"`
	Port     int                    `yaml:"port,omitempty"`
	Database string                 `yaml:"database,omitempty"`
	Username string                 `yaml:"username,omitempty"`
	Password string                 `yaml:"password,omitempty"`
	Options  map[string]interface{} `yaml:"options,omitempty"`

	// CredentialsSecret names an AWS Secrets Manager secret holding
	// "username" and "password" keys. When set it overrides the inline
	// credentials.
	CredentialsSecret string `yaml:"credentials_secret,omitempty"`
}

// Descriptor converts the declaration into a connection descriptor.
func (c *ConnectionConfig) Descriptor() *base.Descriptor {
	return &base.Descriptor{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Options:  c.Options,
	}
}

// Load reads, expands and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses configuration bytes after environment expansion.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = 10
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 30 * time.Second
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 100 * time.Millisecond
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
}

func (c *Config) validate() error {
	if c.Version == "" {
		return fmt.Errorf("config must specify a version")
	}
	if c.Pool.MaxConnections < 0 {
		return fmt.Errorf("pool.max_connections must not be negative")
	}
	for name, conn := range c.Connections {
		if conn.Type == "" {
			return fmt.Errorf("connection %q must specify a type", name)
		}
		if conn.Host == "" {
			return fmt.Errorf("connection %q must specify a host", name)
		}
	}
	return nil
}

// EnabledConnections returns the declarations with enabled: true, keyed by
// connection id.
func (c *Config) EnabledConnections() map[string]ConnectionConfig {
	out := make(map[string]ConnectionConfig)
	for id, conn := range c.Connections {
		if conn.Enabled {
			out[id] = conn
		}
	}
	return out
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references. ${VAR:-default}
// falls back to the default when VAR is unset or empty; undefined variables
// without a default become the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
