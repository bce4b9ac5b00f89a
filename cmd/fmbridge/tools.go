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
	"strings"

	"github.com/spf13/cobra"
)

func newToolsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Discover the catalog and list the tools it yields",
		Long: `Run one discovery pass against the FileMaker catalog script and
print the synthesized tool set. Useful for verifying catalog changes
without starting a server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd.Context(), *configPath)
		},
	}
}

func runTools(ctx context.Context, configPath string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	schemas := a.registry.List()
	fmt.Printf("%d tools\n\n", len(schemas))
	for _, schema := range schemas {
		fmt.Printf("%s\n", schema.Name)
		if schema.Description != "" {
			fmt.Printf("  %s\n", firstLine(schema.Description))
		}
		for _, p := range schema.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Printf("  - %s: %s%s\n", p.Name, p.Type, req)
		}
		fmt.Println()
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
