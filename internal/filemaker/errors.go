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
	"errors"
	"fmt"
	"net"
)

// Data API error codes relevant to session handling.
// See FileMaker error code reference.
const (
	// CodeOK is returned on success.
	CodeOK = "0"
	// CodeInvalidToken is returned when the session token is missing,
	// expired, or otherwise invalid.
	CodeInvalidToken = "952"
)

// APIError is an error reported by the FileMaker Data API. It carries the
// remote code/message pair verbatim for diagnosability.
type APIError struct {
	// Code is the FileMaker error code as returned in messages[0].code.
	Code string

	// Message is the remote error message.
	Message string

	// HTTPStatus is the HTTP status of the response, if any.
	HTTPStatus int
}

func (e *APIError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("filemaker error %s: %s [HTTP %d]", e.Code, e.Message, e.HTTPStatus)
	}
	return fmt.Sprintf("filemaker error %s: %s", e.Code, e.Message)
}

// SessionExpired reports whether the error indicates an invalid or
// expired session token.
func (e *APIError) SessionExpired() bool {
	return e.Code == CodeInvalidToken || e.HTTPStatus == 401
}

// AuthError indicates a login failure: bad credentials or an unreachable
// host during session creation.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("filemaker authentication failed: %v", e.Cause)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// IsSessionExpired reports whether err is an APIError for an invalid or
// expired token.
func IsSessionExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.SessionExpired()
}

// IsTimeout reports whether err was caused by a deadline or network
// timeout rather than a remote-side failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
