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

package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}

	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}

	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}

	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected *Config
	}{
		{
			name:    "defaults when no env vars",
			envVars: map[string]string{},
			expected: &Config{
				Level:     "info",
				Format:    FormatJSON,
				Output:    os.Stderr,
				AddSource: false,
			},
		},
		{
			name: "LOG_LEVEL=debug",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			expected: &Config{
				Level:     "debug",
				Format:    FormatJSON,
				Output:    os.Stderr,
				AddSource: false,
			},
		},
		{
			name: "FMBRIDGE_LOG_LEVEL takes precedence over LOG_LEVEL",
			envVars: map[string]string{
				"FMBRIDGE_LOG_LEVEL": "warn",
				"LOG_LEVEL":          "debug",
			},
			expected: &Config{
				Level:     "warn",
				Format:    FormatJSON,
				Output:    os.Stderr,
				AddSource: false,
			},
		},
		{
			name: "FMBRIDGE_DEBUG enables debug and source",
			envVars: map[string]string{
				"FMBRIDGE_DEBUG":     "1",
				"FMBRIDGE_LOG_LEVEL": "error",
			},
			expected: &Config{
				Level:     "debug",
				Format:    FormatJSON,
				Output:    os.Stderr,
				AddSource: true,
			},
		},
		{
			name: "LOG_FORMAT=text",
			envVars: map[string]string{
				"LOG_FORMAT": "text",
			},
			expected: &Config{
				Level:     "info",
				Format:    FormatText,
				Output:    os.Stderr,
				AddSource: false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()

			if cfg.Level != tt.expected.Level {
				t.Errorf("expected level %q, got %q", tt.expected.Level, cfg.Level)
			}
			if cfg.Format != tt.expected.Format {
				t.Errorf("expected format %q, got %q", tt.expected.Format, cfg.Format)
			}
			if cfg.AddSource != tt.expected.AddSource {
				t.Errorf("expected AddSource %v, got %v", tt.expected.AddSource, cfg.AddSource)
			}
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}

	if entry["msg"] != "test message" {
		t.Errorf("expected msg 'test message', got %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key 'value', got %v", entry["key"])
	}
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{
		Level:  "warn",
		Format: FormatJSON,
		Output: &buf,
	})

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("expected warn to pass the filter, got %q", out)
	}
}

func TestWithTool(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithTool(logger, "GetOrders", "req-123").Info("invoked")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry[ToolKey] != "GetOrders" {
		t.Errorf("expected tool field, got %v", entry[ToolKey])
	}
	if entry[RequestIDKey] != "req-123" {
		t.Errorf("expected request_id field, got %v", entry[RequestIDKey])
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("abc"); got != "[REDACTED]" {
		t.Errorf("short token should be fully redacted, got %q", got)
	}
	if got := SanitizeToken("fmserver-token-9f3a"); got != "...9f3a" {
		t.Errorf("expected masked token, got %q", got)
	}
}
