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

// Package web serves the human-facing surface: an index of all registered
// tools, a generated form per tool, and JSON endpoints mirroring the
// protocol operations. Pages render from the live tool registry, never
// from a separately maintained schema copy.
package web

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tombee/fmbridge/internal/bridge"
	fmlog "github.com/tombee/fmbridge/internal/log"
)

// Invoker executes one tool invocation. Implemented by bridge.Dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) (*bridge.Result, error)
}

// Server renders the web UI and JSON API from the registry.
type Server struct {
	title    string
	registry *bridge.Registry
	invoker  Invoker
	logger   *slog.Logger
}

// New creates a web server bound to the registry and dispatcher.
func New(title string, registry *bridge.Registry, invoker Invoker, logger *slog.Logger) *Server {
	if title == "" {
		title = "fmbridge"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		title:    title,
		registry: registry,
		invoker:  invoker,
		logger:   fmlog.WithComponent(logger, "web"),
	}
}

// Routes registers the UI and API handlers on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /tools/{name}", s.handleToolPage)
	mux.HandleFunc("POST /tools/{name}", s.handleToolSubmit)
	mux.HandleFunc("GET /api/tools", s.handleAPIList)
	mux.HandleFunc("POST /api/tools/{name}/invoke", s.handleAPIInvoke)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type indexTool struct {
	Name        string
	Description template.HTML
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	schemas := s.registry.List()
	tools := make([]indexTool, 0, len(schemas))
	for _, schema := range schemas {
		tools = append(tools, indexTool{
			Name:        schema.Name,
			Description: renderMarkdown(schema.Description),
		})
	}

	s.renderTemplate(w, indexTemplate, map[string]any{
		"Title":     s.title,
		"Tools":     tools,
		"ToolCount": len(tools),
	})
}

// toolPageData feeds the per-tool template for both GET and POST.
type toolPageData struct {
	Schema      bridge.ToolSchema
	Description template.HTML
	Error       *bridge.Error
	HasResult   bool
	Result      string
}

func (s *Server) handleToolPage(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.registry.Get(r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.renderTemplate(w, toolTemplate, toolPageData{
		Schema:      entry.Schema,
		Description: renderMarkdown(entry.Schema.Description),
	})
}

func (s *Server) handleToolSubmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, ok := s.registry.Get(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	data := toolPageData{
		Schema:      entry.Schema,
		Description: renderMarkdown(entry.Schema.Description),
	}

	args, err := formArguments(entry.Schema, r.PostForm)
	if err != nil {
		data.Error = bridge.AsError(err)
		s.renderTemplate(w, toolTemplate, data)
		return
	}

	result, err := s.invoker.Invoke(r.Context(), name, args)
	if err != nil {
		// Errors render inline; the page and session survive the failure.
		data.Error = bridge.AsError(err)
		s.renderTemplate(w, toolTemplate, data)
		return
	}

	data.HasResult = true
	data.Result = formatResult(result)
	s.renderTemplate(w, toolTemplate, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  s.registry.Len(),
	})
}

func (s *Server) renderTemplate(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("template render failed", fmlog.Error(err))
	}
}

// formArguments coerces posted form values into typed arguments per the
// tool schema. Unchecked checkboxes and empty optional fields are omitted
// so the dispatcher's required-parameter validation stays authoritative.
func formArguments(schema bridge.ToolSchema, form map[string][]string) (map[string]any, error) {
	args := make(map[string]any, len(schema.Parameters))
	for _, p := range schema.Parameters {
		values, present := form[p.Name]
		if !present || len(values) == 0 {
			continue
		}
		raw := strings.TrimSpace(values[0])

		switch p.Type {
		case "boolean":
			args[p.Name] = raw == "1" || raw == "on" || raw == "true"
		case "number", "integer":
			if raw == "" {
				continue
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, bridge.NewError(bridge.CodeInvalidArguments,
					"parameter %q must be a number", p.Name)
			}
			args[p.Name] = n
		default:
			if raw == "" {
				continue
			}
			args[p.Name] = raw
		}
	}
	return args, nil
}

// formatResult pretty-prints an invocation result for the result pane.
func formatResult(result *bridge.Result) string {
	if result.Value == nil {
		return "(empty result)"
	}
	if s, ok := result.Value.(string); ok {
		return s
	}
	pretty, err := json.MarshalIndent(result.Value, "", "  ")
	if err != nil {
		return result.Raw
	}
	return string(pretty)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

// writeErrorJSON writes a structured error response.
func writeErrorJSON(w http.ResponseWriter, status int, bridgeErr *bridge.Error) {
	payload := map[string]any{
		"code":    string(bridgeErr.Code),
		"message": bridgeErr.Message,
	}
	if bridgeErr.RemoteCode != "" {
		payload["remote_code"] = bridgeErr.RemoteCode
	}
	writeJSON(w, status, map[string]any{"error": payload})
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	schemas := s.registry.List()
	tools := make([]map[string]any, 0, len(schemas))
	for _, schema := range schemas {
		params := make([]map[string]any, 0, len(schema.Parameters))
		for _, p := range schema.Parameters {
			params = append(params, map[string]any{
				"name":        p.Name,
				"type":        p.Type,
				"description": p.Description,
				"required":    p.Required,
			})
		}
		tools = append(tools, map[string]any{
			"name":        schema.Name,
			"description": schema.Description,
			"parameters":  params,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleAPIInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Arguments map[string]any `json:"arguments"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err.Error() != "EOF" {
			writeErrorJSON(w, http.StatusBadRequest, bridge.NewError(
				bridge.CodeInvalidArguments, "malformed JSON body: %v", err))
			return
		}
	}

	result, err := s.invoker.Invoke(r.Context(), name, body.Arguments)
	if err != nil {
		bridgeErr := bridge.AsError(err)
		writeErrorJSON(w, statusForCode(bridgeErr.Code), bridgeErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result.Value})
}

// statusForCode maps bridge error codes onto HTTP statuses for the JSON
// API.
func statusForCode(code bridge.Code) int {
	switch code {
	case bridge.CodeToolNotFound:
		return http.StatusNotFound
	case bridge.CodeInvalidArguments:
		return http.StatusBadRequest
	case bridge.CodeAuthentication:
		return http.StatusBadGateway
	case bridge.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
