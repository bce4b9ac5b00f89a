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

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/fmbridge/internal/filemaker"
	fmlog "github.com/tombee/fmbridge/internal/log"
	"github.com/tombee/fmbridge/internal/metrics"
)

// SessionSource hands out the current session token. Handlers never cache
// tokens; they resolve one per call through this interface.
type SessionSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(token string)
}

// ScriptRunner executes one script on the remote platform.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, token, script, param string) (*filemaker.ScriptResult, error)
}

// AuditSink records completed invocations. Implementations must not block
// the invocation path on failure; errors are logged, not propagated.
type AuditSink interface {
	Record(ctx context.Context, rec InvocationRecord) error
}

// InvocationRecord is one audit log entry.
type InvocationRecord struct {
	RequestID  string
	Tool       string
	Script     string
	Status     string // "ok" or a bridge error code
	RemoteCode string
	StartedAt  time.Time
	Duration   time.Duration
}

// Result is a successful invocation payload.
type Result struct {
	// Value is the script result parsed as JSON when possible, otherwise
	// the raw string.
	Value any

	// Raw is the untouched scriptResult string.
	Raw string
}

// Dispatcher executes tool invocations: resolve, validate, marshal, call,
// translate. It holds no per-tool state; every tool shares the one generic
// path parameterized by the registry entry's descriptor.
type Dispatcher struct {
	registry *Registry
	sessions SessionSource
	runner   ScriptRunner
	audit    AuditSink
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher. audit may be nil.
func NewDispatcher(registry *Registry, sessions SessionSource, runner ScriptRunner, audit AuditSink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		sessions: sessions,
		runner:   runner,
		audit:    audit,
		logger:   fmlog.WithComponent(logger, "dispatcher"),
		tracer:   otel.Tracer("fmbridge/bridge"),
	}
}

// Invoke executes one tool invocation. Local validation failures
// (tool_not_found, invalid_arguments) never reach the network. A remote
// expired-session response triggers exactly one session refresh and call
// retry; every other remote failure propagates immediately. The returned
// error is always a *Error.
func (d *Dispatcher) Invoke(ctx context.Context, toolName string, args map[string]any) (*Result, error) {
	requestID := uuid.NewString()
	logger := fmlog.WithTool(d.logger, toolName, requestID)
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "bridge.invoke",
		trace.WithAttributes(attribute.String("tool", toolName)))
	defer span.End()

	result, err := d.invoke(ctx, toolName, args, logger)

	status := metrics.StatusOK
	remoteCode := ""
	if err != nil {
		bridgeErr := AsError(err)
		status = string(bridgeErr.Code)
		remoteCode = bridgeErr.RemoteCode
		span.SetStatus(codes.Error, bridgeErr.Message)
		logger.Warn("invocation failed",
			slog.String("status", status),
			fmlog.Error(bridgeErr),
			fmlog.Duration("duration", time.Since(start).Milliseconds()),
		)
	} else {
		logger.Info("invocation succeeded",
			fmlog.Duration("duration", time.Since(start).Milliseconds()),
		)
	}
	span.SetAttributes(attribute.String("status", status))
	metrics.RecordInvocation(toolName, status, time.Since(start))

	if d.audit != nil {
		rec := InvocationRecord{
			RequestID:  requestID,
			Tool:       toolName,
			Status:     status,
			RemoteCode: remoteCode,
			StartedAt:  start,
			Duration:   time.Since(start),
		}
		if entry, ok := d.registry.Get(toolName); ok {
			rec.Script = entry.Descriptor.Name
		}
		if auditErr := d.audit.Record(ctx, rec); auditErr != nil {
			logger.Warn("audit record failed", fmlog.Error(auditErr))
		}
	}

	return result, err
}

func (d *Dispatcher) invoke(ctx context.Context, toolName string, args map[string]any, logger *slog.Logger) (*Result, error) {
	entry, ok := d.registry.Get(toolName)
	if !ok {
		return nil, NewError(CodeToolNotFound, "tool %q is not registered", toolName)
	}

	if err := entry.Schema.ValidateArguments(args); err != nil {
		return nil, err
	}

	param, err := EncodeArguments(args)
	if err != nil {
		return nil, err
	}

	token, err := d.sessions.Token(ctx)
	if err != nil {
		return nil, classifySessionError(err)
	}

	script := entry.Descriptor.Name
	result, err := d.runner.ExecuteScript(ctx, token, script, param)
	if err != nil && filemaker.IsSessionExpired(err) {
		// The cached token went stale mid-flight. Refresh the session and
		// retry the call exactly once.
		logger.Info("session expired mid-invocation, refreshing once")
		d.sessions.Invalidate(token)

		token, err = d.sessions.Token(ctx)
		if err != nil {
			return nil, classifySessionError(err)
		}

		result, err = d.runner.ExecuteScript(ctx, token, script, param)
		if err != nil && filemaker.IsSessionExpired(err) {
			bridgeErr := NewError(CodeSessionRetryExhausted,
				"call to %q still rejected after session refresh", script)
			bridgeErr.Cause = err
			if apiErr := asAPIError(err); apiErr != nil {
				bridgeErr.RemoteCode = apiErr.Code
			}
			return nil, bridgeErr
		}
	}
	if err != nil {
		return nil, classifyRemoteError(err)
	}

	if result.ErrorCode != filemaker.CodeOK {
		bridgeErr := NewError(CodeRemoteInvocation,
			"script %q returned error code %s", script, result.ErrorCode)
		bridgeErr.RemoteCode = result.ErrorCode
		return nil, bridgeErr
	}

	return parseResult(result.Raw), nil
}

// parseResult unwraps the scriptResult string: JSON parses to its value,
// anything else passes through as the raw string.
func parseResult(raw string) *Result {
	res := &Result{Raw: raw, Value: raw}
	if raw == "" {
		res.Value = nil
		return res
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		res.Value = parsed
	}
	return res
}

// classifySessionError maps session manager failures onto the taxonomy.
func classifySessionError(err error) *Error {
	if filemaker.IsTimeout(err) {
		return &Error{Code: CodeTimeout, Message: "login timed out", Cause: err}
	}
	return &Error{Code: CodeAuthentication, Message: err.Error(), Cause: err}
}

// classifyRemoteError maps remote call failures onto the taxonomy,
// carrying the FileMaker code/message pair verbatim where present.
func classifyRemoteError(err error) *Error {
	if filemaker.IsTimeout(err) {
		return &Error{Code: CodeTimeout, Message: "remote call timed out", Cause: err}
	}
	if apiErr := asAPIError(err); apiErr != nil {
		return &Error{
			Code:       CodeRemoteInvocation,
			Message:    apiErr.Message,
			RemoteCode: apiErr.Code,
			Cause:      err,
		}
	}
	return &Error{Code: CodeRemoteInvocation, Message: err.Error(), Cause: err}
}

func asAPIError(err error) *filemaker.APIError {
	var apiErr *filemaker.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
