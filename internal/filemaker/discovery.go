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

package filemaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tombee/fmbridge/internal/metrics"
)

// ScriptParameter is one declared parameter of a catalog script.
type ScriptParameter struct {
	Name        string
	Type        string // "string", "number", "integer" or "boolean"
	Description string
	Required    bool
}

// ScriptDescriptor describes one invocable script from a catalog snapshot.
// Immutable once emitted; a new discovery pass produces new values.
type ScriptDescriptor struct {
	Name        string
	Description string
	// Parameters preserves the declaration order from the catalog.
	Parameters []ScriptParameter
}

// DiscoveryError indicates a failed catalog query. It is non-fatal: the
// previous registry snapshot stays live until the next successful pass.
type DiscoveryError struct {
	Cause error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("catalog discovery failed: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// Discoverer queries the FileMaker catalog script for the set of invocable
// scripts and normalizes the result.
type Discoverer struct {
	client        *Client
	sessions      *SessionManager
	catalogScript string
	logger        *slog.Logger
}

// NewDiscoverer creates a Discoverer. catalogScript is the bootstrap
// script that returns the tool catalog (conventionally "GetToolList").
func NewDiscoverer(client *Client, sessions *SessionManager, catalogScript string, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		client:        client,
		sessions:      sessions,
		catalogScript: catalogScript,
		logger:        logger,
	}
}

// catalogEnvelope is the JSON the catalog script returns: a list of
// OpenAI-style function specs.
//
//	{"tools": [{"type": "function", "function": {"name": ..., "description": ...,
//	  "parameters": {"type": "object", "properties": {...}, "required": [...]}}}]}
type catalogEnvelope struct {
	Tools []struct {
		Function struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Parameters  json.RawMessage `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
}

// Discover runs the catalog script and returns the ordered script
// descriptors. An empty catalog is valid and yields an empty slice.
// Failures are wrapped in DiscoveryError.
func (d *Discoverer) Discover(ctx context.Context) ([]ScriptDescriptor, error) {
	token, err := d.sessions.Token(ctx)
	if err != nil {
		metrics.RecordDiscovery(metrics.StatusError)
		return nil, &DiscoveryError{Cause: err}
	}

	result, err := d.client.ExecuteScript(ctx, token, d.catalogScript, "")
	if err != nil {
		metrics.RecordDiscovery(metrics.StatusError)
		return nil, &DiscoveryError{Cause: err}
	}
	if result.ErrorCode != CodeOK {
		metrics.RecordDiscovery(metrics.StatusError)
		return nil, &DiscoveryError{
			Cause: fmt.Errorf("catalog script %q returned error code %s", d.catalogScript, result.ErrorCode),
		}
	}

	descriptors, err := parseCatalog([]byte(result.Raw), d.logger)
	if err != nil {
		metrics.RecordDiscovery(metrics.StatusError)
		return nil, &DiscoveryError{Cause: err}
	}

	metrics.RecordDiscovery(metrics.StatusOK)
	d.logger.Info("catalog discovered",
		slog.Int("scripts", len(descriptors)),
		slog.String("catalog_script", d.catalogScript),
	)
	return descriptors, nil
}

// parseCatalog normalizes the catalog JSON into descriptors. Entries with
// no function name are skipped with a warning rather than failing the
// whole pass.
func parseCatalog(raw []byte, logger *slog.Logger) ([]ScriptDescriptor, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var envelope catalogEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse catalog JSON: %w", err)
	}

	descriptors := make([]ScriptDescriptor, 0, len(envelope.Tools))
	for i, t := range envelope.Tools {
		if t.Function.Name == "" {
			logger.Warn("skipping catalog entry without a function name", slog.Int("index", i))
			continue
		}

		params, err := parseParameters(t.Function.Parameters)
		if err != nil {
			logger.Warn("skipping catalog entry with malformed parameters",
				slog.String("script", t.Function.Name),
				slog.Any("error", err),
			)
			continue
		}

		descriptors = append(descriptors, ScriptDescriptor{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  params,
		})
	}
	return descriptors, nil
}

// parseParameters reads an OpenAI-style parameters object, preserving the
// property declaration order (encoding/json maps would lose it). Remote
// script metadata is loosely typed: a property without a type defaults to
// "string", and a parameter is optional unless listed in "required". This
// is the documented deterministic default for untyped catalog entries.
func parseParameters(raw json.RawMessage) ([]ScriptParameter, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	// First pass: ordinary decode for the required list and property bodies.
	var spec struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, err
	}

	required := make(map[string]bool, len(spec.Required))
	for _, name := range spec.Required {
		required[name] = true
	}

	order, err := propertyOrder(raw)
	if err != nil {
		return nil, err
	}

	params := make([]ScriptParameter, 0, len(order))
	for _, name := range order {
		prop := spec.Properties[name]
		typ := prop.Type
		switch typ {
		case "string", "number", "integer", "boolean":
		default:
			typ = "string"
		}
		params = append(params, ScriptParameter{
			Name:        name,
			Type:        typ,
			Description: prop.Description,
			Required:    required[name],
		})
	}
	return params, nil
}

// propertyOrder walks the JSON token stream to recover the key order of
// the "properties" object.
func propertyOrder(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	// Find the "properties" key at the top level of the parameters object.
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("parameters is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)
		if key != "properties" {
			// Skip the value of this key.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		open, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := open.(json.Delim); !ok || delim != '{' {
			return nil, fmt.Errorf("properties is not a JSON object")
		}

		var order []string
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			name, _ := nameTok.(string)
			order = append(order, name)

			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		return order, nil
	}
	return nil, nil
}
