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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newStdioCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Long: `Serve the MCP protocol over stdin/stdout.

This mode is for direct integration with MCP clients that spawn the
bridge as a subprocess:

  {
    "mcpServers": {
      "filemaker": {
        "command": "fmbridge",
        "args": ["stdio"]
      }
    }
  }

Logs go to stderr; stdout carries only protocol traffic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(cmd.Context(), *configPath)
		},
	}
}

func runStdio(ctx context.Context, configPath string) error {
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
	// Long-lived stdio sessions still pick up catalog changes.
	if err := a.refresher.Start(a.cfg.Server.RefreshSchedule); err != nil {
		return err
	}

	return a.mcp.ServeStdio(ctx)
}
