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

// Package filemaker is a minimal client for the FileMaker Server Data API:
// session creation and teardown, and script execution against a layout.
// Every call is bounded by the configured request timeout and throttled by
// a client-side rate limit so a misbehaving caller cannot saturate the
// FileMaker host.
package filemaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures a Data API client.
type ClientConfig struct {
	// Host is the FileMaker Server hostname, without scheme.
	Host string

	// Database is the Data API database name.
	Database string

	// Layout is the layout scripts are executed against.
	Layout string

	// RequestTimeout bounds each remote call. Defaults to 30s.
	RequestTimeout time.Duration

	// RequestsPerSecond caps outbound calls to the host. Defaults to 10.
	RequestsPerSecond int

	// BaseURL overrides the computed https://{host} base. Used by tests
	// to point the client at a local test server.
	BaseURL string

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// Logger receives request-level debug logging.
	Logger *slog.Logger
}

// Client calls the FileMaker Data API.
type Client struct {
	baseURL    string
	database   string
	layout     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ScriptResult is the outcome of a script execution.
type ScriptResult struct {
	// Raw is the scriptResult string produced by the script, which by
	// convention is JSON but may be any text.
	Raw string

	// ErrorCode is the script-level error code (scriptError), "0" on
	// success.
	ErrorCode string
}

// dataAPIResponse is the envelope every Data API response uses.
type dataAPIResponse struct {
	Response struct {
		Token        string `json:"token"`
		ScriptResult string `json:"scriptResult"`
		ScriptError  string `json:"scriptError"`
	} `json:"response"`
	Messages []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"messages"`
}

// NewClient creates a Data API client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + cfg.Host
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		database:   cfg.Database,
		layout:     cfg.Layout,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		logger:     logger,
	}
}

// databaseURL returns the Data API base for the configured database.
func (c *Client) databaseURL() string {
	return fmt.Sprintf("%s/fmi/data/v1/databases/%s", c.baseURL, url.PathEscape(c.database))
}

// Login creates a Data API session and returns the bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := c.do(ctx, &request{
		method:    http.MethodPost,
		url:       c.databaseURL() + "/sessions",
		basicAuth: [2]string{username, password},
		jsonBody:  []byte("{}"),
	})
	if err != nil {
		return "", &AuthError{Cause: err}
	}
	if body.Response.Token == "" {
		return "", &AuthError{Cause: fmt.Errorf("login response contained no token")}
	}
	return body.Response.Token, nil
}

// Logout deletes a Data API session. Errors are returned but callers
// typically only log them; the session would idle out server-side anyway.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, &request{
		method: http.MethodDelete,
		url:    c.databaseURL() + "/sessions/" + url.PathEscape(token),
	})
	return err
}

// ExecuteScript runs the named script on the configured layout. param is
// passed through as the script.param query value; the Data API hands it to
// the script as its script parameter.
func (c *Client) ExecuteScript(ctx context.Context, token, script, param string) (*ScriptResult, error) {
	u := fmt.Sprintf("%s/layouts/%s/script/%s",
		c.databaseURL(), url.PathEscape(c.layout), url.PathEscape(script))
	if param != "" {
		u += "?" + url.Values{"script.param": {param}}.Encode()
	}

	body, err := c.do(ctx, &request{
		method: http.MethodGet,
		url:    u,
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	result := &ScriptResult{
		Raw:       body.Response.ScriptResult,
		ErrorCode: body.Response.ScriptError,
	}
	if result.ErrorCode == "" {
		result.ErrorCode = CodeOK
	}
	return result, nil
}

// request describes one Data API call.
type request struct {
	method    string
	url       string
	token     string
	basicAuth [2]string
	jsonBody  []byte
}

// do performs the HTTP exchange, applying the rate limit and timeout, and
// decodes the Data API envelope. Non-2xx responses and non-zero message
// codes become APIError.
func (c *Client) do(ctx context.Context, r *request) (*dataAPIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if r.jsonBody != nil {
		bodyReader = bytes.NewReader(r.jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.basicAuth[0] != "" {
		req.SetBasicAuth(r.basicAuth[0], r.basicAuth[1])
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.url, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("data api call",
		slog.String("method", r.method),
		slog.String("url", r.url),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope dataAPIResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			if resp.StatusCode >= 400 {
				return nil, &APIError{
					Code:       "-1",
					Message:    http.StatusText(resp.StatusCode),
					HTTPStatus: resp.StatusCode,
				}
			}
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	if code, message, ok := envelopeError(&envelope); ok || resp.StatusCode >= 400 {
		apiErr := &APIError{Code: code, Message: message, HTTPStatus: resp.StatusCode}
		if apiErr.Code == "" {
			apiErr.Code = "-1"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}

	return &envelope, nil
}

// envelopeError extracts a non-OK message code from the Data API envelope.
func envelopeError(envelope *dataAPIResponse) (code, message string, found bool) {
	for _, m := range envelope.Messages {
		if m.Code != CodeOK {
			return m.Code, m.Message, true
		}
	}
	return "", "", false
}
