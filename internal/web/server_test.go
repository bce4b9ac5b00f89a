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

package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/fmbridge/internal/bridge"
	"github.com/tombee/fmbridge/internal/filemaker"
)

type fakeInvoker struct {
	calls    int
	lastTool string
	lastArgs map[string]any
	result   *bridge.Result
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, toolName string, args map[string]any) (*bridge.Result, error) {
	f.calls++
	f.lastTool = toolName
	f.lastArgs = args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(t *testing.T, invoker Invoker) *Server {
	t.Helper()
	registry := bridge.NewRegistry()
	registry.Rebuild(bridge.Synthesize([]filemaker.ScriptDescriptor{
		{
			Name:        "GetOrders",
			Description: "List **orders** for a customer.",
			Parameters: []filemaker.ScriptParameter{
				{Name: "customerId", Type: "string", Required: true},
				{Name: "limit", Type: "number"},
				{Name: "includeClosed", Type: "boolean"},
			},
		},
		{Name: "Ping"},
	}, slog.Default()))
	return New("fmbridge", registry, invoker, slog.Default())
}

func TestIndexListsTools(t *testing.T) {
	s := testServer(t, &fakeInvoker{})
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "GetOrders")
	assert.Contains(t, body, "Ping")
	assert.Contains(t, body, "<strong>orders</strong>", "descriptions render as markdown")
}

func TestToolPageRendersForm(t *testing.T) {
	s := testServer(t, &fakeInvoker{})
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tools/GetOrders", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `name="customerId"`)
	assert.Contains(t, body, `type="number"`)
	assert.Contains(t, body, `type="checkbox"`)
}

func TestToolPageUnknownTool(t *testing.T) {
	s := testServer(t, &fakeInvoker{})
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tools/Nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestToolSubmitInvokes(t *testing.T) {
	invoker := &fakeInvoker{result: &bridge.Result{Value: "done", Raw: "done"}}
	s := testServer(t, invoker)

	form := url.Values{"customerId": {"42"}, "limit": {"5"}, "includeClosed": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/tools/GetOrders", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, invoker.calls)
	assert.Equal(t, "GetOrders", invoker.lastTool)
	assert.Equal(t, "42", invoker.lastArgs["customerId"])
	assert.Equal(t, 5.0, invoker.lastArgs["limit"])
	assert.Equal(t, true, invoker.lastArgs["includeClosed"])
	assert.Contains(t, rr.Body.String(), "done")
}

func TestToolSubmitOmitsEmptyOptional(t *testing.T) {
	invoker := &fakeInvoker{result: &bridge.Result{Value: "ok"}}
	s := testServer(t, invoker)

	form := url.Values{"customerId": {"42"}, "limit": {""}}
	req := httptest.NewRequest(http.MethodPost, "/tools/GetOrders", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	_, hasLimit := invoker.lastArgs["limit"]
	assert.False(t, hasLimit, "empty optional fields are omitted")
	_, hasClosed := invoker.lastArgs["includeClosed"]
	assert.False(t, hasClosed, "unchecked checkboxes are omitted")
}

func TestToolSubmitRendersErrorInline(t *testing.T) {
	invoker := &fakeInvoker{err: &bridge.Error{
		Code:       bridge.CodeRemoteInvocation,
		Message:    "Unable to open file",
		RemoteCode: "802",
	}}
	s := testServer(t, invoker)

	form := url.Values{"customerId": {"42"}}
	req := httptest.NewRequest(http.MethodPost, "/tools/GetOrders", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	// Failures render on the page itself, never as a bare HTTP error.
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "remote_invocation_error")
	assert.Contains(t, body, "Unable to open file")
	assert.Contains(t, body, "802")
	assert.Contains(t, body, "<form", "the form is still usable after an error")
}

func TestAPIListTools(t *testing.T) {
	s := testServer(t, &fakeInvoker{})
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tools", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Tools []struct {
			Name       string `json:"name"`
			Parameters []struct {
				Name     string `json:"name"`
				Type     string `json:"type"`
				Required bool   `json:"required"`
			} `json:"parameters"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Tools, 2)
	assert.Equal(t, "GetOrders", payload.Tools[0].Name)
	require.Len(t, payload.Tools[0].Parameters, 3)
	assert.Equal(t, "customerId", payload.Tools[0].Parameters[0].Name)
	assert.True(t, payload.Tools[0].Parameters[0].Required)
}

func TestAPIInvokeSuccess(t *testing.T) {
	invoker := &fakeInvoker{result: &bridge.Result{
		Value: map[string]any{"orders": []any{"a", "b"}},
		Raw:   `{"orders":["a","b"]}`,
	}}
	s := testServer(t, invoker)

	body := strings.NewReader(`{"arguments":{"customerId":"42"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tools/GetOrders/invoke", body)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":{"orders":["a","b"]}}`, rr.Body.String())
	assert.Equal(t, "42", invoker.lastArgs["customerId"])
}

func TestAPIInvokeErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        *bridge.Error
		wantStatus int
	}{
		{"not found", &bridge.Error{Code: bridge.CodeToolNotFound, Message: "no such tool"}, http.StatusNotFound},
		{"bad args", &bridge.Error{Code: bridge.CodeInvalidArguments, Message: "missing customerId"}, http.StatusBadRequest},
		{"timeout", &bridge.Error{Code: bridge.CodeTimeout, Message: "deadline exceeded"}, http.StatusGatewayTimeout},
		{"remote", &bridge.Error{Code: bridge.CodeRemoteInvocation, Message: "boom", RemoteCode: "802"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, &fakeInvoker{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/api/tools/GetOrders/invoke", strings.NewReader(`{}`))
			rr := httptest.NewRecorder()
			s.Routes().ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
			assert.Equal(t, string(tt.err.Code), payload.Error.Code)
		})
	}
}

func TestHealthz(t *testing.T) {
	s := testServer(t, &fakeInvoker{})
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","tools":2}`, rr.Body.String())
}
