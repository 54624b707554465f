/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("already exists")
)

// schemaVersion tracks the SQLite schema. Bump it when you add a migration.
const schemaVersion = 2

// SQLite is the row store. It is safe for concurrent use; writes are
// serialized on a single connection.
type SQLite struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// OpenSQLite creates or opens the database at path, enables WAL mode and
// brings the schema up to date.
func OpenSQLite(path string) (*SQLite, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", applog.Err(err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", applog.Err(err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", applog.Err(err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", applog.Err(err))
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", applog.Err(err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", applog.Err(err))
		return nil, err
	}
	l.Info("database ready")
	return &SQLite{db: db, path: path, log: applog.WithComponent("storage")}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the handle for diagnostics and tests.
func (s *SQLite) DB() *sql.DB { return s.db }

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Check runs SQLite's quick integrity check.
func (s *SQLite) Check(ctx context.Context) error {
	var res string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&res); err != nil {
		return fmt.Errorf("quick_check: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(res), "ok") {
		return fmt.Errorf("quick_check: %s", res)
	}
	return nil
}

// Backup writes a consistent copy of the database into dir, named after the
// database file and the current time, and returns its path.
func (s *SQLite) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(dir, fmt.Sprintf("%s.%s.bak", filepath.Base(s.path), stamp))
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, bak); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}
	s.log.Info("database backed up", slog.String("to", bak))
	return bak, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureSchema creates the tables of the current schema that do not exist.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id               INTEGER PRIMARY KEY,
			item_type        TEXT    NOT NULL,
			content          TEXT    NOT NULL DEFAULT '',
			html_content     TEXT,
			x                REAL    NOT NULL,
			y                REAL    NOT NULL,
			width            REAL    NOT NULL,
			height           REAL    NOT NULL,
			original_width   REAL    NOT NULL DEFAULT 0,
			original_height  REAL    NOT NULL DEFAULT 0,
			aspect_ratio     REAL    NOT NULL DEFAULT 1,
			rotation         REAL    NOT NULL DEFAULT 0,
			z_index          INTEGER NOT NULL DEFAULT 0,
			border_radius    REAL    NOT NULL DEFAULT 0,
			font_family      TEXT,
			font_size        REAL,
			font_weight      TEXT,
			text_color       TEXT,
			line_height      REAL,
			font_variation   TEXT,
			stroke_color     TEXT,
			stroke_thickness REAL,
			user_id          TEXT    NOT NULL DEFAULT '',
			updated_at       TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_z ON items(z_index);`,
		`CREATE TABLE IF NOT EXISTS center_point (
			id INTEGER PRIMARY KEY CHECK(id=1),
			x  REAL NOT NULL,
			y  REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
			email         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS id_sequence (
			id   INTEGER PRIMARY KEY CHECK(id=1),
			next INTEGER NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade; just log and continue
		applog.WithComponent("storage").Warn("database schema is newer than this build", slog.Int("schema", cur))
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// v1 stored no font variation axes and had no z-order index
			stmts = []string{
				`ALTER TABLE items ADD COLUMN font_variation TEXT;`,
				`CREATE INDEX IF NOT EXISTS idx_items_z ON items(z_index);`,
			}
			if has, err := hasColumn(ctx, db, "items", "font_variation"); err != nil {
				return err
			} else if has {
				stmts = stmts[1:]
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name=?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	return n > 0, nil
}
