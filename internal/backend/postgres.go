/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
	applog "github.com/mjsxi/matts-infinite-canvas-sub000/internal/log"
	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is the row store for postgres:// DSNs.
type Postgres struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenPostgres connects to dsn and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	p := &Postgres{db: db, log: applog.WithComponent("postgres")}
	p.log.Info("database ready")
	return p, nil
}

// Close closes the pool.
func (p *Postgres) Close() error { return p.db.Close() }

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// applyMigrations applies embedded SQL migrations in filename order and
// records each one in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	l := applog.WithOperation(applog.WithComponent("postgres"), "migrate")
	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

// ListItems returns every item ordered by z-index, then id.
func (p *Postgres) ListItems(ctx context.Context) ([]item.Row, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+storage.ItemColumns+` FROM items ORDER BY z_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var out []item.Row
	for rows.Next() {
		r, err := storage.ScanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetItem returns one item row.
func (p *Postgres) GetItem(ctx context.Context, id int64) (item.Row, error) {
	r, err := storage.ScanItem(p.db.QueryRowContext(ctx, `SELECT `+storage.ItemColumns+` FROM items WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return item.Row{}, storage.ErrNotFound
	}
	if err != nil {
		return item.Row{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return r, nil
}

// xmax is zero only for a freshly inserted tuple.
const pgUpsertItem = `INSERT INTO items (` + storage.ItemColumns + `, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23, now())
	ON CONFLICT (id) DO UPDATE SET
		item_type=EXCLUDED.item_type, content=EXCLUDED.content, html_content=EXCLUDED.html_content,
		x=EXCLUDED.x, y=EXCLUDED.y, width=EXCLUDED.width, height=EXCLUDED.height,
		original_width=EXCLUDED.original_width, original_height=EXCLUDED.original_height,
		aspect_ratio=EXCLUDED.aspect_ratio, rotation=EXCLUDED.rotation, z_index=EXCLUDED.z_index,
		border_radius=EXCLUDED.border_radius, font_family=EXCLUDED.font_family, font_size=EXCLUDED.font_size,
		font_weight=EXCLUDED.font_weight, text_color=EXCLUDED.text_color, line_height=EXCLUDED.line_height,
		font_variation=EXCLUDED.font_variation, stroke_color=EXCLUDED.stroke_color,
		stroke_thickness=EXCLUDED.stroke_thickness, user_id=EXCLUDED.user_id, updated_at=now()
	RETURNING (xmax = 0)`

// UpsertItem inserts or replaces r. created reports whether the row is new.
func (p *Postgres) UpsertItem(ctx context.Context, r item.Row) (bool, error) {
	var created bool
	if err := p.db.QueryRowContext(ctx, pgUpsertItem, storage.ItemArgs(r)...).Scan(&created); err != nil {
		return false, fmt.Errorf("upsert item %d: %w", r.ID, err)
	}
	return created, nil
}

// DeleteItem removes id.
func (p *Postgres) DeleteItem(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetCenter returns the center point row.
func (p *Postgres) GetCenter(ctx context.Context) (item.CenterPoint, error) {
	c := item.CenterPoint{ID: item.CenterPointID}
	err := p.db.QueryRowContext(ctx, `SELECT x, y FROM center_point WHERE id=$1`, item.CenterPointID).Scan(&c.X, &c.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return item.CenterPoint{}, storage.ErrNotFound
	}
	if err != nil {
		return item.CenterPoint{}, fmt.Errorf("get center: %w", err)
	}
	return c, nil
}

// PutCenter stores the center point.
func (p *Postgres) PutCenter(ctx context.Context, c item.CenterPoint) (item.CenterPoint, error) {
	c.ID = item.CenterPointID
	_, err := p.db.ExecContext(ctx, `INSERT INTO center_point (id, x, y) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET x=EXCLUDED.x, y=EXCLUDED.y`, c.ID, c.X, c.Y)
	if err != nil {
		return item.CenterPoint{}, fmt.Errorf("put center: %w", err)
	}
	return c, nil
}

// ReserveIDs hands out count consecutive ids above every stored or reserved id.
func (p *Postgres) ReserveIDs(ctx context.Context, count int) (first int64, err error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve ids: count %d", count)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	// the row lock serializes concurrent reservations
	if _, err = tx.ExecContext(ctx, `INSERT INTO id_sequence (id, next) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return 0, fmt.Errorf("seed id sequence: %w", err)
	}
	var next, maxID int64
	if err = tx.QueryRowContext(ctx, `SELECT next FROM id_sequence WHERE id=1 FOR UPDATE`).Scan(&next); err != nil {
		return 0, fmt.Errorf("read id sequence: %w", err)
	}
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max item id: %w", err)
	}
	first = max(next, maxID+1)
	if _, err = tx.ExecContext(ctx, `UPDATE id_sequence SET next=$1 WHERE id=1`, first+int64(count)); err != nil {
		return 0, fmt.Errorf("advance id sequence: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return first, nil
}

// CreateUser inserts u.
func (p *Postgres) CreateUser(ctx context.Context, u storage.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("user %q: %w", u.Username, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByName looks a user up case-insensitively.
func (p *Postgres) UserByName(ctx context.Context, username string) (storage.User, error) {
	return p.user(ctx, `lower(username)=lower($1)`, strings.TrimSpace(username))
}

// UserByID looks a user up by id.
func (p *Postgres) UserByID(ctx context.Context, id string) (storage.User, error) {
	return p.user(ctx, `id=$1`, id)
}

func (p *Postgres) user(ctx context.Context, where string, arg any) (storage.User, error) {
	var u storage.User
	err := p.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, role, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.User{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}
