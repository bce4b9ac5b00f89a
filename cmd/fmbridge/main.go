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

// fmbridge bridges a FileMaker-hosted script catalog to MCP clients. It
// discovers the catalog at startup, synthesizes one MCP tool per script,
// and serves them over SSE (with a web UI) or stdio.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// A .env file is the conventional way to supply FM_* credentials in
	// development; absence is not an error.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "fmbridge",
		Short:         "Expose FileMaker scripts as MCP tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	root.AddCommand(
		newServeCommand(&configPath),
		newStdioCommand(&configPath),
		newToolsCommand(&configPath),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fmbridge %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
