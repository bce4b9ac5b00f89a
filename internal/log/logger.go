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
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

// Standard field keys for structured logging.
// These constants ensure consistent field naming across the codebase.
const (
	// ToolKey is the field key for tool names.
	ToolKey = "tool"
	// ScriptKey is the field key for FileMaker script names.
	ScriptKey = "script"
	// RequestIDKey is the field key for invocation request identifiers.
	RequestIDKey = "request_id"
	// DurationKey is the field key for duration in milliseconds.
	DurationKey = "duration_ms"
	// ComponentKey is the field key for component names.
	ComponentKey = "component"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Default: info
	Level string

	// Format sets the output format (json, text).
	// Default: json
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	// Default: false
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
// Output goes to stderr: stdout is reserved for the MCP stdio transport.
func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Format:    FormatJSON,
		Output:    os.Stderr,
		AddSource: false,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - FMBRIDGE_DEBUG: true/1 to enable debug level and source logging (takes precedence)
//   - FMBRIDGE_LOG_LEVEL: debug, info, warn, error (takes precedence over LOG_LEVEL)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, text (default: json)
//   - LOG_SOURCE: 1 to enable source file/line (default: 0)
func FromEnv() *Config {
	cfg := DefaultConfig()

	// FMBRIDGE_DEBUG enables debug logging and source information
	debug := os.Getenv("FMBRIDGE_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	// FMBRIDGE_LOG_LEVEL takes precedence over LOG_LEVEL (but not FMBRIDGE_DEBUG)
	if debug == "" {
		if level := os.Getenv("FMBRIDGE_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv("LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	case FormatJSON:
		fallthrough
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a new logger with a component name field.
// Component names help identify which part of the system generated the log.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(ComponentKey, component))
}

// WithRequestID returns a new logger with a request ID field.
// Request IDs are used for tracing individual tool invocations.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String(RequestIDKey, requestID))
}

// WithTool returns a new logger with tool invocation context fields.
// This adds the tool name and request ID to all subsequent log entries.
func WithTool(logger *slog.Logger, tool, requestID string) *slog.Logger {
	return logger.With(
		slog.String(ToolKey, tool),
		slog.String(RequestIDKey, requestID),
	)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value int64) slog.Attr {
	return slog.Int64(key+"_ms", value)
}

// SanitizeToken masks a session token, showing only the last 4 characters.
// This prevents accidental credential leakage in logs.
// Returns "[REDACTED]" if the token is shorter than 4 characters.
func SanitizeToken(token string) string {
	if len(token) <= 4 {
		return "[REDACTED]"
	}
	return "..." + token[len(token)-4:]
}

// SanitizeSecret completely redacts a secret value.
// This should be used for any sensitive data that should never appear in logs.
func SanitizeSecret(secret string) string {
	return "[REDACTED]"
}
