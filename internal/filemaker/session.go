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
	"log/slog"
	"sync"
	"time"

	fmlog "github.com/tombee/fmbridge/internal/log"
	"github.com/tombee/fmbridge/internal/metrics"
)

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	// Username and Password authenticate the Data API session.
	Username string
	Password string

	// TTL is the assumed session lifetime after login. FileMaker Server
	// expires idle Data API sessions after 15 minutes by default.
	TTL time.Duration

	// MinTTL is the minimum remaining lifetime a cached token must have
	// to be handed out without triggering a refresh.
	MinTTL time.Duration

	// LoginBackoff is the fixed delay before the single login retry.
	LoginBackoff time.Duration

	// Logger receives session lifecycle logging.
	Logger *slog.Logger
}

// SessionManager owns the Data API session token. The token is never
// handed to long-lived holders: callers fetch it per call via Token, so a
// refresh transparently replaces it for everyone.
//
// The mutex is held across the login call, making refresh single-flight:
// concurrent callers block and then observe the token the one login
// produced.
type SessionManager struct {
	client *Client
	cfg    SessionConfig
	logger *slog.Logger

	mu        sync.Mutex
	token     string
	issuedAt  time.Time
	expiresAt time.Time
}

// NewSessionManager creates a session manager. No login happens until the
// first Token call.
func NewSessionManager(client *Client, cfg SessionConfig) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MinTTL <= 0 {
		cfg.MinTTL = time.Minute
	}
	if cfg.LoginBackoff <= 0 {
		cfg.LoginBackoff = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Token returns a session token with at least MinTTL of remaining
// lifetime, logging in if there is no usable cached token. Login failures
// are retried exactly once after a fixed backoff, then returned as
// AuthError.
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.expiresAt) >= m.cfg.MinTTL {
		return m.token, nil
	}

	token, err := m.login(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	m.token = token
	m.issuedAt = now
	m.expiresAt = now.Add(m.cfg.TTL)
	m.logger.Info("data api session established",
		slog.String("token", fmlog.SanitizeToken(token)),
		slog.Time("expires_at", m.expiresAt),
	)
	return token, nil
}

// login performs the login call with a single fixed-backoff retry.
// Callers hold m.mu.
func (m *SessionManager) login(ctx context.Context) (string, error) {
	token, err := m.client.Login(ctx, m.cfg.Username, m.cfg.Password)
	if err == nil {
		metrics.RecordLogin(metrics.StatusOK)
		return token, nil
	}

	metrics.RecordLogin(metrics.StatusError)
	m.logger.Warn("login failed, retrying once",
		slog.Any("error", err),
		slog.Duration("backoff", m.cfg.LoginBackoff),
	)

	select {
	case <-time.After(m.cfg.LoginBackoff):
	case <-ctx.Done():
		return "", &AuthError{Cause: ctx.Err()}
	}

	token, err = m.client.Login(ctx, m.cfg.Username, m.cfg.Password)
	if err != nil {
		metrics.RecordLogin(metrics.StatusError)
		return "", err
	}
	metrics.RecordLogin(metrics.StatusOK)
	return token, nil
}

// Invalidate drops the cached token if it is still the one the caller saw
// fail. A token cached after a concurrent refresh is left alone.
func (m *SessionManager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == token {
		m.token = ""
		m.expiresAt = time.Time{}
	}
}

// Close logs out the current session, if any. Safe to call multiple times.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := m.client.Logout(ctx, token); err != nil {
		m.logger.Warn("logout failed", slog.Any("error", err))
		return err
	}
	m.logger.Info("data api session closed", slog.String("token", fmlog.SanitizeToken(token)))
	return nil
}
