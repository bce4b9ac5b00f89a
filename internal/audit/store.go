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

// Package audit provides SQLite-backed persistence of tool invocations.
// The store records who-called-what-when for operational diagnosis; it
// never stores script results, so it is not a response cache.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/fmbridge/internal/bridge"
)

// Store is a SQLite-backed audit log. It implements bridge.AuditSink.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the audit database at path. The special value
// ":memory:" creates an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}

	// WAL mode lets readers proceed while an invocation is being recorded.
	connStr := path
	if path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect audit database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}
	return store, nil
}

// migrate creates the schema.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS invocations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id  TEXT NOT NULL,
			tool        TEXT NOT NULL,
			script      TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			remote_code TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_tool ON invocations(tool);
		CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations(started_at);
	`)
	return err
}

// Record inserts one invocation record.
func (s *Store) Record(ctx context.Context, rec bridge.InvocationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocations (request_id, tool, script, status, remote_code, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Tool,
		rec.Script,
		rec.Status,
		rec.RemoteCode,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// Recent returns the most recent invocation records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]bridge.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, tool, script, status, remote_code, started_at, duration_ms
		FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var records []bridge.InvocationRecord
	for rows.Next() {
		var rec bridge.InvocationRecord
		var startedAt string
		var durationMS int64
		if err := rows.Scan(&rec.RequestID, &rec.Tool, &rec.Script, &rec.Status, &rec.RemoteCode, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			rec.StartedAt = ts
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
