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
	"errors"
	"fmt"
)

// Code classifies invocation failures. Every failure surfaced to a
// transport carries one of these machine-readable codes plus a
// human-readable message.
type Code string

const (
	// CodeAuthentication indicates login failed: bad credentials or an
	// unreachable FileMaker host.
	CodeAuthentication Code = "authentication_error"

	// CodeDiscovery indicates a catalog query failed. Non-fatal: the
	// previous registry snapshot stays live.
	CodeDiscovery Code = "discovery_error"

	// CodeToolNotFound indicates the requested tool is not in the
	// current registry snapshot.
	CodeToolNotFound Code = "tool_not_found"

	// CodeInvalidArguments indicates local schema validation failed; no
	// remote call was made.
	CodeInvalidArguments Code = "invalid_arguments"

	// CodeRemoteInvocation indicates the remote script execution failed.
	// RemoteCode/Message carry the FileMaker error pair verbatim.
	CodeRemoteInvocation Code = "remote_invocation_error"

	// CodeTimeout indicates a remote call exceeded its bound.
	CodeTimeout Code = "timeout"

	// CodeSessionRetryExhausted indicates the call still failed with an
	// expired session after the single refresh-and-retry.
	CodeSessionRetryExhausted Code = "session_expired_retry_exhausted"
)

// Error is a structured invocation failure.
type Error struct {
	// Code is the machine-readable classification.
	Code Code

	// Message is the human-readable description.
	Message string

	// RemoteCode is the FileMaker error code when the failure originated
	// remotely, empty otherwise.
	RemoteCode string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.RemoteCode != "" {
		return fmt.Sprintf("%s: %s (remote code %s)", e.Code, e.Message, e.RemoteCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a structured invocation failure.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a bridge *Error from err, wrapping unclassified errors
// as remote invocation failures so transports always have a code to show.
func AsError(err error) *Error {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr
	}
	return &Error{
		Code:    CodeRemoteInvocation,
		Message: err.Error(),
		Cause:   err,
	}
}
