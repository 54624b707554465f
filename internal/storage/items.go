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
	"time"

	"github.com/mjsxi/matts-infinite-canvas-sub000/internal/item"
)

// ItemColumns lists the items table columns in Row order.
const ItemColumns = `id, item_type, content, html_content, x, y, width, height, original_width, original_height,
	aspect_ratio, rotation, z_index, border_radius, font_family, font_size, font_weight, text_color, line_height,
	font_variation, stroke_color, stroke_thickness, user_id`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanItem reads one items row selected with ItemColumns.
func ScanItem(sc RowScanner) (item.Row, error) {
	var (
		r                                          item.Row
		html, family, weight, color, varia, stroke sql.NullString
		size, line, thick                          sql.NullFloat64
	)
	err := sc.Scan(&r.ID, &r.ItemType, &r.Content, &html, &r.X, &r.Y, &r.Width, &r.Height,
		&r.OriginalWidth, &r.OriginalHeight, &r.AspectRatio, &r.Rotation, &r.ZIndex, &r.BorderRadius,
		&family, &size, &weight, &color, &line, &varia, &stroke, &thick, &r.UserID)
	if err != nil {
		return item.Row{}, err
	}
	r.HTMLContent = nullStr(html)
	r.FontFamily = nullStr(family)
	r.FontWeight = nullStr(weight)
	r.TextColor = nullStr(color)
	r.FontVariation = nullStr(varia)
	r.StrokeColor = nullStr(stroke)
	r.FontSize = nullF64(size)
	r.LineHeight = nullF64(line)
	r.StrokeWidth = nullF64(thick)
	return r, nil
}

// ItemArgs returns the column values of r in ItemColumns order.
func ItemArgs(r item.Row) []any {
	return []any{r.ID, r.ItemType, r.Content, r.HTMLContent, r.X, r.Y, r.Width, r.Height,
		r.OriginalWidth, r.OriginalHeight, r.AspectRatio, r.Rotation, r.ZIndex, r.BorderRadius,
		r.FontFamily, r.FontSize, r.FontWeight, r.TextColor, r.LineHeight, r.FontVariation,
		r.StrokeColor, r.StrokeWidth, r.UserID}
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullF64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// ListItems returns every item ordered by z-index, then id.
func (s *SQLite) ListItems(ctx context.Context) ([]item.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ItemColumns+` FROM items ORDER BY z_index, id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var out []item.Row
	for rows.Next() {
		r, err := ScanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetItem returns one item row.
func (s *SQLite) GetItem(ctx context.Context, id int64) (item.Row, error) {
	r, err := ScanItem(s.db.QueryRowContext(ctx, `SELECT `+ItemColumns+` FROM items WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return item.Row{}, ErrNotFound
	}
	if err != nil {
		return item.Row{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return r, nil
}

const upsertItem = `INSERT INTO items (` + ItemColumns + `, updated_at)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		item_type=excluded.item_type, content=excluded.content, html_content=excluded.html_content,
		x=excluded.x, y=excluded.y, width=excluded.width, height=excluded.height,
		original_width=excluded.original_width, original_height=excluded.original_height,
		aspect_ratio=excluded.aspect_ratio, rotation=excluded.rotation, z_index=excluded.z_index,
		border_radius=excluded.border_radius, font_family=excluded.font_family, font_size=excluded.font_size,
		font_weight=excluded.font_weight, text_color=excluded.text_color, line_height=excluded.line_height,
		font_variation=excluded.font_variation, stroke_color=excluded.stroke_color,
		stroke_thickness=excluded.stroke_thickness, user_id=excluded.user_id, updated_at=excluded.updated_at`

// UpsertItem inserts or replaces r. created reports whether the row is new.
func (s *SQLite) UpsertItem(ctx context.Context, r item.Row) (created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	var one int
	switch err := tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE id=?`, r.ID).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("probe item %d: %w", r.ID, err)
	}
	args := append(ItemArgs(r), time.Now().UTC().Format(time.RFC3339Nano))
	if _, err = tx.ExecContext(ctx, upsertItem, args...); err != nil {
		return false, fmt.Errorf("upsert item %d: %w", r.ID, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return created, nil
}

// DeleteItem removes id. ErrNotFound is returned when no row matched.
func (s *SQLite) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxItemID returns the highest item id, or 0 for an empty table.
func (s *SQLite) MaxItemID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max item id: %w", err)
	}
	return id, nil
}

// GetCenter returns the center point row.
func (s *SQLite) GetCenter(ctx context.Context) (item.CenterPoint, error) {
	c := item.CenterPoint{ID: item.CenterPointID}
	err := s.db.QueryRowContext(ctx, `SELECT x, y FROM center_point WHERE id=?`, item.CenterPointID).Scan(&c.X, &c.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return item.CenterPoint{}, ErrNotFound
	}
	if err != nil {
		return item.CenterPoint{}, fmt.Errorf("get center: %w", err)
	}
	return c, nil
}

// PutCenter stores the center point; the id is always CenterPointID.
func (s *SQLite) PutCenter(ctx context.Context, c item.CenterPoint) (item.CenterPoint, error) {
	c.ID = item.CenterPointID
	_, err := s.db.ExecContext(ctx, `INSERT INTO center_point (id, x, y) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET x=excluded.x, y=excluded.y`, c.ID, c.X, c.Y)
	if err != nil {
		return item.CenterPoint{}, fmt.Errorf("put center: %w", err)
	}
	return c, nil
}

// ReserveIDs hands out count consecutive item ids that are above every id
// stored or reserved before.
func (s *SQLite) ReserveIDs(ctx context.Context, count int) (first int64, err error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve ids: count %d", count)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	var next, maxID int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE((SELECT next FROM id_sequence WHERE id=1), 1)`).Scan(&next); err != nil {
		return 0, fmt.Errorf("read id sequence: %w", err)
	}
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM items`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max item id: %w", err)
	}
	first = max(next, maxID+1)
	if _, err = tx.ExecContext(ctx, `INSERT INTO id_sequence (id, next) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET next=excluded.next`, first+int64(count)); err != nil {
		return 0, fmt.Errorf("advance id sequence: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return first, nil
}
