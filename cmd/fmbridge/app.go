// Copyright 2025 Tom Barlow
//
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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tombee/fmbridge/internal/audit"
	"github.com/tombee/fmbridge/internal/bridge"
	"github.com/tombee/fmbridge/internal/config"
	"github.com/tombee/fmbridge/internal/filemaker"
	fmlog "github.com/tombee/fmbridge/internal/log"
	mcpserver "github.com/tombee/fmbridge/internal/mcp/server"
	"github.com/tombee/fmbridge/internal/tracing"
)

// app wires the full invocation path: config, Data API client, session
// manager, discoverer, registry, dispatcher, refresher, MCP server.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *filemaker.Client
	sessions   *filemaker.SessionManager
	registry   *bridge.Registry
	dispatcher *bridge.Dispatcher
	refresher  *bridge.Refresher
	mcp        *mcpserver.Server
	audit      *audit.Store
	tracer     *tracing.Provider
}

// buildApp constructs the component graph. Nothing touches the network
// until the first refresh or invocation.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := fmlog.New(fmlog.FromEnv())
	slog.SetDefault(logger)

	tracer, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    "fmbridge",
		ServiceVersion: version,
		Endpoint:       os.Getenv("FMBRIDGE_OTLP_ENDPOINT"),
		Insecure:       os.Getenv("FMBRIDGE_OTLP_INSECURE") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}

	client := filemaker.NewClient(filemaker.ClientConfig{
		Host:              cfg.FileMaker.Host,
		Database:          cfg.FileMaker.Database,
		Layout:            cfg.FileMaker.Layout,
		RequestTimeout:    cfg.FileMaker.RequestTimeout,
		RequestsPerSecond: cfg.FileMaker.RemoteRPS,
		Logger:            logger,
	})

	sessions := filemaker.NewSessionManager(client, filemaker.SessionConfig{
		Username:     cfg.FileMaker.Username,
		Password:     cfg.FileMaker.Password,
		TTL:          cfg.FileMaker.TokenTTL,
		MinTTL:       cfg.FileMaker.TokenMinTTL,
		LoginBackoff: cfg.FileMaker.LoginBackoff,
		Logger:       logger,
	})

	var store *audit.Store
	var sink bridge.AuditSink
	if cfg.Audit.Path != "" {
		store, err = audit.Open(cfg.Audit.Path)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		sink = store
	}

	registry := bridge.NewRegistry()
	dispatcher := bridge.NewDispatcher(registry, sessions, client, sink, logger)

	discoverer := filemaker.NewDiscoverer(client, sessions, cfg.FileMaker.CatalogScript, logger)
	refresher := bridge.NewRefresher(discoverer, registry, cfg.FileMaker.RequestTimeout, logger)

	mcpSrv := mcpserver.New(mcpserver.Config{
		Name:           "fmbridge",
		Version:        version,
		CallsPerMinute: cfg.Server.CallsPerMinute,
		Logger:         logger,
	}, registry, dispatcher)

	refresher.OnRebuild(mcpSrv.SyncTools)

	return &app{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		sessions:   sessions,
		registry:   registry,
		dispatcher: dispatcher,
		refresher:  refresher,
		mcp:        mcpSrv,
		audit:      store,
		tracer:     tracer,
	}, nil
}

// bootstrap runs the initial discovery pass. Startup fails when the
// catalog cannot be fetched: a bridge with no tools is misconfiguration,
// not a serving state.
func (a *app) bootstrap(ctx context.Context) error {
	if err := a.refresher.Refresh(ctx); err != nil {
		return fmt.Errorf("initial catalog discovery: %w", err)
	}
	a.logger.Info("catalog discovered",
		slog.Int("tools", a.registry.Len()),
		slog.String("catalog_script", a.cfg.FileMaker.CatalogScript),
	)
	return nil
}

// shutdown releases remote and local resources. Safe to call once.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.refresher.Stop()
	if err := a.sessions.Close(ctx); err != nil {
		a.logger.Warn("session logout failed", fmlog.Error(err))
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close failed", fmlog.Error(err))
		}
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer shutdown failed", fmlog.Error(err))
	}
}
