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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogOrderedParameters(t *testing.T) {
	raw := []byte(`{
		"tools": [
			{"type": "function", "function": {
				"name": "GetOrders",
				"description": "List orders for a customer.",
				"parameters": {
					"type": "object",
					"properties": {
						"customerId": {"type": "string", "description": "Customer ID"},
						"limit": {"type": "integer"},
						"includeClosed": {"type": "boolean"}
					},
					"required": ["customerId"]
				}
			}}
		]
	}`)

	descriptors, err := parseCatalog(raw, slog.Default())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)

	d := descriptors[0]
	assert.Equal(t, "GetOrders", d.Name)
	assert.Equal(t, "List orders for a customer.", d.Description)

	require.Len(t, d.Parameters, 3)
	assert.Equal(t, "customerId", d.Parameters[0].Name)
	assert.True(t, d.Parameters[0].Required)
	assert.Equal(t, "string", d.Parameters[0].Type)
	assert.Equal(t, "limit", d.Parameters[1].Name)
	assert.Equal(t, "integer", d.Parameters[1].Type)
	assert.False(t, d.Parameters[1].Required)
	assert.Equal(t, "includeClosed", d.Parameters[2].Name)
	assert.Equal(t, "boolean", d.Parameters[2].Type)
}

func TestParseCatalogUntypedDefaultsToOptionalString(t *testing.T) {
	raw := []byte(`{
		"tools": [
			{"function": {
				"name": "Reindex",
				"parameters": {"type": "object", "properties": {"target": {}}}
			}}
		]
	}`)

	descriptors, err := parseCatalog(raw, slog.Default())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Len(t, descriptors[0].Parameters, 1)

	p := descriptors[0].Parameters[0]
	assert.Equal(t, "string", p.Type)
	assert.False(t, p.Required)
}

func TestParseCatalogSkipsNamelessEntries(t *testing.T) {
	raw := []byte(`{
		"tools": [
			{"function": {"description": "no name"}},
			{"function": {"name": "Ping"}}
		]
	}`)

	descriptors, err := parseCatalog(raw, slog.Default())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "Ping", descriptors[0].Name)
	assert.Empty(t, descriptors[0].Parameters)
}

func TestParseCatalogEmpty(t *testing.T) {
	descriptors, err := parseCatalog([]byte(`{"tools": []}`), slog.Default())
	require.NoError(t, err)
	assert.Empty(t, descriptors)

	descriptors, err = parseCatalog(nil, slog.Default())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

func TestParseCatalogMalformedJSON(t *testing.T) {
	_, err := parseCatalog([]byte(`{"tools": [`), slog.Default())
	require.Error(t, err)
}

func TestDiscoverEndToEnd(t *testing.T) {
	catalog := map[string]any{
		"tools": []any{
			map[string]any{"function": map[string]any{
				"name":        "GetOrders",
				"description": "List orders.",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{"customerId": map[string]any{"type": "string"}},
					"required":   []string{"customerId"},
				},
			}},
		},
	}
	catalogJSON, err := json.Marshal(catalog)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/sessions"):
			fmt.Fprint(w, `{"messages":[{"code":"0","message":"OK"}],"response":{"token":"tok-1"}}`)
		case strings.Contains(r.URL.Path, "/script/GetToolList"):
			envelope := map[string]any{
				"messages": []any{map[string]any{"code": "0", "message": "OK"}},
				"response": map[string]any{"scriptResult": string(catalogJSON), "scriptError": "0"},
			}
			require.NoError(t, json.NewEncoder(w).Encode(envelope))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Database: "Sales", Layout: "API", BaseURL: srv.URL})
	sessions := NewSessionManager(client, SessionConfig{Username: "u", Password: "p"})
	d := NewDiscoverer(client, sessions, "GetToolList", slog.Default())

	descriptors, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "GetOrders", descriptors[0].Name)
	require.Len(t, descriptors[0].Parameters, 1)
	assert.True(t, descriptors[0].Parameters[0].Required)
}

func TestDiscoverFailureIsDiscoveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/sessions"):
			fmt.Fprint(w, `{"messages":[{"code":"0","message":"OK"}],"response":{"token":"tok-1"}}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"messages":[{"code":"802","message":"Unable to open file"}],"response":{}}`)
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Database: "Sales", Layout: "API", BaseURL: srv.URL})
	sessions := NewSessionManager(client, SessionConfig{Username: "u", Password: "p"})
	d := NewDiscoverer(client, sessions, "GetToolList", slog.Default())

	_, err := d.Discover(context.Background())
	require.Error(t, err)

	var discErr *DiscoveryError
	assert.True(t, errors.As(err, &discErr))
}
