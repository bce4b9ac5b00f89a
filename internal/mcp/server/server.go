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

// Package server exposes the tool registry over the Model Context
// Protocol. Tools are not hand-registered: the set is synthesized from the
// live registry and replaced wholesale whenever a discovery pass rebuilds
// it, so the protocol surface and the web UI always describe the same
// catalog snapshot.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tombee/fmbridge/internal/bridge"
	fmlog "github.com/tombee/fmbridge/internal/log"
)

// Invoker executes one tool invocation. Implemented by bridge.Dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) (*bridge.Result, error)
}

// Config configures the MCP server.
type Config struct {
	// Name is the advertised server name (default: "fmbridge").
	Name string

	// Version is the fmbridge version string.
	Version string

	// CallsPerMinute rate-limits tool calls across the MCP surface.
	// Zero disables rate limiting.
	CallsPerMinute int

	// Logger receives server logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server wraps the MCP protocol server around the registry and dispatcher.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	registry    *bridge.Registry
	invoker     Invoker
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// New creates an MCP server bound to the registry and dispatcher. Call
// SyncTools (directly or via Refresher.OnRebuild) to publish the tool set.
func New(cfg Config, registry *bridge.Registry, invoker Invoker) *Server {
	if cfg.Name == "" {
		cfg.Name = "fmbridge"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *RateLimiter
	if cfg.CallsPerMinute > 0 {
		limiter = NewRateLimiter(cfg.CallsPerMinute)
	}

	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithRecovery(),
		),
		registry:    registry,
		invoker:     invoker,
		rateLimiter: limiter,
		logger:      fmlog.WithComponent(logger, "mcp"),
	}
	return s
}

// SyncTools replaces the advertised tool set with the given registry
// entries. mcp-go notifies connected clients that the tool list changed.
func (s *Server) SyncTools(entries []bridge.Entry) {
	tools := make([]mcpserver.ServerTool, 0, len(entries))
	for _, e := range entries {
		tools = append(tools, mcpserver.ServerTool{
			Tool:    e.Schema.MCPTool(),
			Handler: s.toolHandler(e.Schema.Name),
		})
	}
	s.mcpServer.SetTools(tools...)
	s.logger.Info("mcp tool set updated", slog.Int("tools", len(tools)))
}

// toolHandler returns the generic invocation handler bound to one tool
// name. The handler resolves everything else (schema, descriptor, session)
// at call time, so a registry rebuild or session refresh never leaves a
// handler holding stale state.
func (s *Server) toolHandler(toolName string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.rateLimiter != nil && !s.rateLimiter.AllowCall() {
			return errorResult("rate_limited", "Rate limit exceeded. Please try again later.", ""), nil
		}

		args := request.GetArguments()
		result, err := s.invoker.Invoke(ctx, toolName, args)
		if err != nil {
			bridgeErr := bridge.AsError(err)
			return errorResult(string(bridgeErr.Code), bridgeErr.Message, bridgeErr.RemoteCode), nil
		}

		return textResult(result)
	}
}

// ListTools returns the schemas currently advertised, for diagnostics.
func (s *Server) ListTools() []bridge.ToolSchema {
	return s.registry.List()
}

// ServeStdio serves the MCP protocol over stdin/stdout until EOF.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving mcp over stdio")
	if err := mcpserver.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// SSEHandler returns an HTTP handler serving the MCP protocol over SSE
// under basePath (e.g. "/mcp" serves /mcp/sse and /mcp/message).
func (s *Server) SSEHandler(basePath string) http.Handler {
	return mcpserver.NewSSEServer(s.mcpServer,
		mcpserver.WithStaticBasePath(basePath),
	)
}

// errorResult builds a protocol tool-error whose text payload carries the
// machine-readable code alongside the message.
func errorResult(code, message, remoteCode string) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if remoteCode != "" {
		payload["error"].(map[string]any)["remote_code"] = remoteCode
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(message)
	}
	result := mcp.NewToolResultError(string(encoded))
	return result
}

// textResult renders an invocation result as a text content block: JSON
// values re-encode compactly, plain strings pass through.
func textResult(result *bridge.Result) (*mcp.CallToolResult, error) {
	switch v := result.Value.(type) {
	case nil:
		return mcp.NewToolResultText(""), nil
	case string:
		return mcp.NewToolResultText(v), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return mcp.NewToolResultText(result.Raw), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}
