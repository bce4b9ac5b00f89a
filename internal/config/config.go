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

// Package config loads and validates fmbridge configuration from a YAML
// file and environment variables. Environment variables override file
// values; the FileMaker credentials are normally supplied via environment
// (or a .env file loaded by the CLI) and never written to disk by fmbridge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file nor environment provides a value.
const (
	DefaultListenAddr      = ":7860"
	DefaultCatalogScript   = "GetToolList"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultTokenMinTTL     = 60 * time.Second
	DefaultTokenTTL        = 15 * time.Minute
	DefaultRefreshSchedule = "*/15 * * * *"
	DefaultLoginBackoff    = 2 * time.Second
	DefaultCallsPerMinute  = 120
	DefaultRemoteRPS       = 10
)

// FileMaker holds the connection settings for the FileMaker Data API.
type FileMaker struct {
	// Host is the FileMaker Server hostname (no scheme).
	Host string `yaml:"host"`
	// Database is the Data API database name.
	Database string `yaml:"database"`
	// Layout is the layout used for script execution.
	Layout string `yaml:"layout"`
	// Username and Password authenticate the Data API session.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// CatalogScript is the bootstrap script that returns the tool catalog.
	CatalogScript string `yaml:"catalog_script"`

	// RequestTimeout bounds every remote call (login, discovery, execution).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TokenTTL is the assumed Data API session lifetime when the server
	// does not report one. FileMaker sessions idle out after 15 minutes.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// TokenMinTTL is the minimum remaining lifetime a cached token must
	// have to be handed out without a refresh.
	TokenMinTTL time.Duration `yaml:"token_min_ttl"`

	// LoginBackoff is the fixed delay before the single login retry.
	LoginBackoff time.Duration `yaml:"login_backoff"`

	// RemoteRPS caps outbound requests per second to the FileMaker host.
	RemoteRPS int `yaml:"remote_rps"`
}

// Server holds the settings for the HTTP surface (web UI, MCP SSE,
// metrics, health).
type Server struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// RefreshSchedule is a five-field cron expression (UTC) for periodic
	// catalog rediscovery. Empty disables periodic refresh.
	RefreshSchedule string `yaml:"refresh_schedule"`

	// CallsPerMinute rate-limits tool calls on the MCP surface.
	CallsPerMinute int `yaml:"calls_per_minute"`
}

// Audit holds the invocation audit log settings.
type Audit struct {
	// Path is the SQLite database file. Empty disables the audit log.
	Path string `yaml:"path"`
}

// Config is the root fmbridge configuration.
type Config struct {
	FileMaker FileMaker `yaml:"filemaker"`
	Server    Server    `yaml:"server"`
	Audit     Audit     `yaml:"audit"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		FileMaker: FileMaker{
			CatalogScript:  DefaultCatalogScript,
			RequestTimeout: DefaultRequestTimeout,
			TokenTTL:       DefaultTokenTTL,
			TokenMinTTL:    DefaultTokenMinTTL,
			LoginBackoff:   DefaultLoginBackoff,
			RemoteRPS:      DefaultRemoteRPS,
		},
		Server: Server{
			ListenAddr:      DefaultListenAddr,
			RefreshSchedule: DefaultRefreshSchedule,
			CallsPerMinute:  DefaultCallsPerMinute,
		},
	}
}

// Load reads configuration from the optional YAML file at path, then
// applies environment overrides and defaults. A missing file is not an
// error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. The FM_*
// names match the original deployment convention.
func (c *Config) applyEnv() {
	setString(&c.FileMaker.Host, "FM_HOST")
	setString(&c.FileMaker.Database, "FM_DATABASE")
	setString(&c.FileMaker.Layout, "FM_LAYOUT")
	setString(&c.FileMaker.Username, "FM_USERNAME")
	setString(&c.FileMaker.Password, "FM_PASSWORD")
	setString(&c.FileMaker.CatalogScript, "FMBRIDGE_CATALOG_SCRIPT")
	setString(&c.Server.ListenAddr, "FMBRIDGE_LISTEN_ADDR")
	setString(&c.Server.RefreshSchedule, "FMBRIDGE_REFRESH_SCHEDULE")
	setString(&c.Audit.Path, "FMBRIDGE_AUDIT_DB")

	if v := os.Getenv("FMBRIDGE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FileMaker.RequestTimeout = d
		}
	}
	if v := os.Getenv("FMBRIDGE_CALLS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.CallsPerMinute = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyDefaults fills zero values left after file and env merging.
func (c *Config) applyDefaults() {
	if c.FileMaker.CatalogScript == "" {
		c.FileMaker.CatalogScript = DefaultCatalogScript
	}
	if c.FileMaker.RequestTimeout <= 0 {
		c.FileMaker.RequestTimeout = DefaultRequestTimeout
	}
	if c.FileMaker.TokenTTL <= 0 {
		c.FileMaker.TokenTTL = DefaultTokenTTL
	}
	if c.FileMaker.TokenMinTTL <= 0 {
		c.FileMaker.TokenMinTTL = DefaultTokenMinTTL
	}
	if c.FileMaker.LoginBackoff <= 0 {
		c.FileMaker.LoginBackoff = DefaultLoginBackoff
	}
	if c.FileMaker.RemoteRPS <= 0 {
		c.FileMaker.RemoteRPS = DefaultRemoteRPS
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.CallsPerMinute <= 0 {
		c.Server.CallsPerMinute = DefaultCallsPerMinute
	}
}

// Validate checks that the required FileMaker connection settings are set.
func (c *Config) Validate() error {
	var missing []string
	if c.FileMaker.Host == "" {
		missing = append(missing, "FM_HOST")
	}
	if c.FileMaker.Database == "" {
		missing = append(missing, "FM_DATABASE")
	}
	if c.FileMaker.Layout == "" {
		missing = append(missing, "FM_LAYOUT")
	}
	if c.FileMaker.Username == "" {
		missing = append(missing, "FM_USERNAME")
	}
	if c.FileMaker.Password == "" {
		missing = append(missing, "FM_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required FileMaker settings: %v", missing)
	}
	if c.FileMaker.TokenMinTTL >= c.FileMaker.TokenTTL {
		return fmt.Errorf("token_min_ttl (%s) must be below token_ttl (%s)",
			c.FileMaker.TokenMinTTL, c.FileMaker.TokenTTL)
	}
	return nil
}
