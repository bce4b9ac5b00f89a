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

// Package bridge contains the core of fmbridge: schema synthesis from
// discovered script descriptors, the atomically swapped tool registry, and
// the dispatcher that executes tool invocations against FileMaker.
package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ParameterSchema is one typed parameter of a tool.
type ParameterSchema struct {
	Name        string
	Type        string // "string", "number", "integer" or "boolean"
	Description string
	Required    bool
}

// ToolSchema is the protocol-facing descriptor of one tool. Derived 1:1
// from a ScriptDescriptor and regenerated on every discovery pass, never
// mutated in place.
type ToolSchema struct {
	Name        string
	Description string
	// Parameters preserves the catalog declaration order.
	Parameters []ParameterSchema
}

// MCPTool converts the schema into an mcp-go tool descriptor.
func (s ToolSchema) MCPTool() mcp.Tool {
	properties := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return mcp.Tool{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}

// ValidateArguments checks args against the schema: unknown keys and
// missing required parameters are rejected, and values must be compatible
// with the declared type. Returns an invalid_arguments Error on mismatch.
func (s ToolSchema) ValidateArguments(args map[string]any) error {
	byName := make(map[string]ParameterSchema, len(s.Parameters))
	for _, p := range s.Parameters {
		byName[p.Name] = p
	}

	for name, value := range args {
		p, ok := byName[name]
		if !ok {
			return NewError(CodeInvalidArguments, "unknown parameter %q for tool %q", name, s.Name)
		}
		if value == nil {
			continue
		}
		if err := checkType(p.Type, value); err != nil {
			return NewError(CodeInvalidArguments, "parameter %q of tool %q: %v", name, s.Name, err)
		}
	}

	for _, p := range s.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || v == nil {
			return NewError(CodeInvalidArguments, "missing required parameter %q for tool %q", p.Name, s.Name)
		}
	}
	return nil
}

// checkType verifies a decoded JSON value against a declared type.
func checkType(declared string, value any) error {
	switch declared {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number", "integer":
		switch v := value.(type) {
		case float64, int, int64, json.Number:
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return fmt.Errorf("expected %s, got non-numeric string %q", declared, v)
			}
		default:
			return fmt.Errorf("expected %s, got %T", declared, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}

// EncodeArguments marshals validated arguments into the flat name→string
// map the remote scripts expect, JSON-encoded for the script.param query
// value. Stringification is uniform and deterministic:
//
//   - strings pass through unchanged
//   - numbers use canonical decimal form (no exponent, no trailing zeros)
//   - booleans encode as "1"/"0"
//   - nil values are omitted
//   - composite values encode as compact JSON
func EncodeArguments(args map[string]any) (string, error) {
	if len(args) == 0 {
		return "", nil
	}

	flat := make(map[string]string, len(args))
	for name, value := range args {
		if value == nil {
			continue
		}
		s, err := stringify(value)
		if err != nil {
			return "", NewError(CodeInvalidArguments, "parameter %q: %v", name, err)
		}
		flat[name] = s
	}

	encoded, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("encode script parameter: %w", err)
	}
	return string(encoded), nil
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot encode value of type %T", value)
		}
		return string(encoded), nil
	}
}

// normalizeToolName maps a script name onto the tool-name alphabet
// accepted by MCP clients: runs of characters outside [A-Za-z0-9_-]
// collapse to a single underscore.
func normalizeToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		valid := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if valid {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
