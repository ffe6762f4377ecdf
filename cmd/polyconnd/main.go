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

// Command polyconnd runs the connection-management service: it loads the
// YAML configuration, registers the backend drivers, establishes the
// declared connections and serves the admin API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyconn/polyconn/connectors/cassandra"
	"github.com/polyconn/polyconn/connectors/catalog"
	"github.com/polyconn/polyconn/connectors/config"
	"github.com/polyconn/polyconn/connectors/mongodb"
	"github.com/polyconn/polyconn/connectors/monitor"
	"github.com/polyconn/polyconn/connectors/mysql"
	"github.com/polyconn/polyconn/connectors/natsmq"
	"github.com/polyconn/polyconn/connectors/postgres"
	"github.com/polyconn/polyconn/connectors/redis"
	"github.com/polyconn/polyconn/connectors/registry"
	"github.com/polyconn/polyconn/connectors/resthttp"
	"github.com/polyconn/polyconn/connectors/s3"
	"github.com/polyconn/polyconn/connectors/sdk"
	"github.com/polyconn/polyconn/server"
	"github.com/polyconn/polyconn/shared/logger"
)

func main() {
	configPath := flag.String("config", "polyconn.yaml", "path to the configuration file")
	flag.Parse()

	log := logger.New("polyconnd")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", map[string]interface{}{"path": *configPath, "error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := resolveSecrets(ctx, cfg); err != nil {
		log.Error("failed to resolve credentials", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	reg := registry.New(cfg.Pool.MaxConnections)
	registerDrivers(reg)
	prometheus.MustRegister(registry.NewCollector(reg))

	establishConnections(ctx, cfg, reg, log)

	mon := monitor.New(reg, cfg.Monitor.Interval, cfg.Monitor.AutoReconnect)
	if cfg.Monitor.Enabled {
		mon.Start(ctx)
	}

	cat := catalog.New(reg)
	srv := server.New(reg, mon, cat, server.Options{AllowedOrigins: cfg.Server.AllowedOrigins})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.ListenAddr) }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	mon.Stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	closed := reg.CloseAll(shutdownCtx)
	log.Info("shutdown complete", map[string]interface{}{"connections_closed": closed})
}

func registerDrivers(reg *registry.Registry) {
	reg.RegisterDriver("postgres", func() sdk.Driver { return postgres.New() })
	reg.RegisterDriver("mysql", func() sdk.Driver { return mysql.New() })
	reg.RegisterDriver("mongodb", func() sdk.Driver { return mongodb.New() })
	reg.RegisterDriver("redis", func() sdk.Driver { return redis.New() })
	reg.RegisterDriver("cassandra", func() sdk.Driver { return cassandra.New() })
	reg.RegisterDriver("s3", func() sdk.Driver { return s3.New() })
	reg.RegisterDriver("rest", func() sdk.Driver { return resthttp.New() })
	reg.RegisterDriver("nats", func() sdk.Driver { return natsmq.New() })
}

// resolveSecrets swaps secret references for real credentials. AWS Secrets
// Manager is used when POLYCONN_SECRETS_BACKEND=aws, the environment
// backend otherwise.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	var sm config.SecretsManager
	if os.Getenv("POLYCONN_SECRETS_BACKEND") == "aws" {
		awsSM, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{
			Region: os.Getenv("AWS_REGION"),
		})
		if err != nil {
			return err
		}
		sm = awsSM
	} else {
		sm = &config.EnvSecretsManager{}
	}
	return config.ResolveCredentials(ctx, cfg, sm)
}

// establishConnections creates every enabled declared connection, retrying
// with backoff so the service tolerates backends that come up after it.
// Failures are logged and skipped; the monitor or an operator can bring the
// connection up later through the API.
func establishConnections(ctx context.Context, cfg *config.Config, reg *registry.Registry, log *logger.Logger) {
	retryCfg := &sdk.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Multiplier: cfg.Retry.Multiplier,
	}

	for id, conn := range cfg.EnabledConnections() {
		desc := conn.Descriptor()
		err := sdk.RetryVoid(ctx, retryCfg, func() error {
			_, err := reg.Create(ctx, id, conn.Type, desc)
			return err
		})
		if err != nil {
			log.Error("failed to establish connection", map[string]interface{}{
				"id": id, "type": conn.Type, "error": err.Error(),
			})
			continue
		}
		log.Info("connection established", map[string]interface{}{"id": id, "type": conn.Type})
	}
}
