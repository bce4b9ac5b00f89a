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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	fmlog "github.com/tombee/fmbridge/internal/log"
	"github.com/tombee/fmbridge/internal/web"
)

func newServeCommand(configPath *string) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI and MCP over HTTP",
		Long: `Start the HTTP server.

Serves the tool web UI at /, the MCP protocol over SSE at /mcp/sse,
Prometheus metrics at /metrics, and a health check at /healthz. The
FileMaker catalog is discovered at startup and refreshed on the
configured cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, listenAddr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, configPath, listenAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.refresher.Start(a.cfg.Server.RefreshSchedule); err != nil {
		return err
	}

	webSrv := web.New("fmbridge", a.registry, a.dispatcher, a.logger)
	mux := webSrv.Routes()
	mux.Handle("/mcp/", a.mcp.SSEHandler("/mcp"))
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := a.cfg.Server.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			slog.String("addr", addr),
			slog.Int("tools", a.registry.Len()),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", fmlog.Error(err))
	}
	return nil
}
